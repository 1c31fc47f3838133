package gallery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/storage"
	"sticker-studio-server/modules/common/utils"
)

const MaxUploadSize = 10 << 20

var (
	ErrInvalidKind = errors.New("kind must be background or character")
	ErrTooLarge    = errors.New("image exceeds 10 MiB")
	ErrNotFound    = errors.New("image not found")
)

// Store - 이미지 메타데이터 저장소 (database.Client 구현)
type Store interface {
	CreateImage(ctx context.Context, img *model.Image) (*model.Image, error)
	FetchImage(ctx context.Context, imageID string) (*model.Image, error)
	ListImages(ctx context.Context, userID, kind string) ([]model.Image, error)
}

// BlobStore - 이미지 바이너리 저장소 (storage.Client 구현)
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
}

// UploadRequest - OwnerID가 nil이면 공용 라이브러리 이미지
type UploadRequest struct {
	OwnerID  *string
	Kind     string
	FileName string
	Data     []byte
}

// Service manages the background and character library.
type Service struct {
	store Store
	blobs BlobStore
}

func NewService(store Store, blobs BlobStore) *Service {
	return &Service{store: store, blobs: blobs}
}

// Upload - 검증, 원본/프리뷰 업로드, 레코드 생성
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*model.Image, error) {
	if !model.ValidUploadKind(req.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if len(req.Data) > MaxUploadSize {
		return nil, ErrTooLarge
	}
	mimeType, err := utils.DetectImageMIME(req.Data)
	if err != nil {
		return nil, err
	}

	imageID := uuid.NewString()
	owner := "shared"
	if req.OwnerID != nil {
		owner = "user-" + *req.OwnerID
	}
	filePath := fmt.Sprintf("%ss/%s/%s%s", req.Kind, owner, imageID, utils.ExtensionFor(mimeType))

	if err := s.blobs.Upload(ctx, filePath, req.Data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	var previewPath *string
	if preview, err := utils.MakePreview(req.Data, utils.PreviewMaxSide); err != nil {
		log.Warn().Err(err).Str("path", filePath).Msg("⚠️  Preview skipped")
	} else {
		p := fmt.Sprintf("previews/%ss/%s/%s.webp", req.Kind, owner, imageID)
		if err := s.blobs.Upload(ctx, p, preview, "image/webp"); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("⚠️  Preview upload failed")
		} else {
			previewPath = &p
		}
	}

	return s.store.CreateImage(ctx, &model.Image{
		ImageID:     imageID,
		OwnerID:     req.OwnerID,
		Kind:        req.Kind,
		FileName:    cleanFileName(req.FileName, imageID),
		FilePath:    filePath,
		MimeType:    mimeType,
		FileSize:    int64(len(req.Data)),
		PreviewPath: previewPath,
	})
}

// Open - 이미지(또는 프리뷰) 바이너리와 MIME 타입 반환. 소유자/공용만 허용.
func (s *Service) Open(ctx context.Context, userID, imageID string, preview bool) ([]byte, string, error) {
	img, err := s.store.FetchImage(ctx, imageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if !img.VisibleTo(userID) {
		return nil, "", ErrNotFound
	}

	filePath, mimeType := img.FilePath, img.MimeType
	if preview && img.PreviewPath != nil {
		filePath, mimeType = *img.PreviewPath, "image/webp"
	}

	data, err := s.blobs.Download(ctx, filePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	if mimeType == "" {
		mimeType = utils.MIMETypeOrDefault(data)
	}
	return data, mimeType, nil
}

// List - 사용자 + 공용 이미지
func (s *Service) List(ctx context.Context, userID, kind string) ([]model.Image, error) {
	if !model.ValidUploadKind(kind) && kind != model.KindGenerated {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return s.store.ListImages(ctx, userID, kind)
}

func cleanFileName(name, fallback string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}
