package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"sticker-studio-server/modules/common/database"
	"sticker-studio-server/modules/common/model"
	"sticker-studio-server/modules/common/storage"
	"sticker-studio-server/modules/common/style"
	"sticker-studio-server/modules/common/utils"
	"sticker-studio-server/modules/notify"
)

const (
	MaxSubjectLength = 80
	maxErrorMessage  = 500
)

var (
	ErrInvalidSubject     = errors.New("subject must be 1-80 characters")
	ErrImageNotFound      = errors.New("image not found")
	ErrWrongImageKind     = errors.New("image has the wrong kind")
	ErrGenerationNotFound = errors.New("generation not found")
	ErrNotCancellable     = errors.New("generation already finished")
)

// Store - generation/이미지 메타데이터 저장소 (database.Client 구현)
type Store interface {
	FetchImage(ctx context.Context, imageID string) (*model.Image, error)
	CreateImage(ctx context.Context, img *model.Image) (*model.Image, error)
	CreateGeneration(ctx context.Context, g *model.Generation) (*model.Generation, error)
	FetchGeneration(ctx context.Context, generationID string) (*model.Generation, error)
	ListGenerations(ctx context.Context, userID string, limit int) ([]model.Generation, error)
	Transition(ctx context.Context, generationID string, fromStatuses []string, to string, fields map[string]interface{}) (bool, error)
}

// BlobStore - 이미지 바이너리 저장소 (storage.Client 구현)
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Download(ctx context.Context, path string) ([]byte, error)
}

// Generator - 합성 어댑터 (*Adapter 구현)
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Image, error)
}

// JobQueue - 작업 큐와 취소 플래그 (redis.Queue 구현)
type JobQueue interface {
	Enqueue(ctx context.Context, generationID string) (int64, error)
	SetCancelled(ctx context.Context, generationID string) error
	IsCancelled(ctx context.Context, generationID string) bool
}

// Publisher - 상태 변경 이벤트 발행 (notify.Publisher 구현)
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// Deps - Service 의존성
type Deps struct {
	Store     Store
	Blobs     BlobStore
	Generator Generator
	Queue     JobQueue
	Events    Publisher
	Styles    *style.Catalog
	Timeout   time.Duration
}

// SubmitRequest - 사용자가 고른 배경/캐릭터/주제/스타일
type SubmitRequest struct {
	BackgroundImageID string
	CharacterImageID  string
	Subject           string
	Style             string
}

// Service runs the generation lifecycle: submit, process, cancel.
type Service struct {
	store     Store
	blobs     BlobStore
	generator Generator
	queue     JobQueue
	events    Publisher
	styles    *style.Catalog
	timeout   time.Duration
}

// NewService - 서비스 생성
func NewService(d Deps) *Service {
	if d.Styles == nil {
		d.Styles = style.Default()
	}
	return &Service{
		store:     d.Store,
		blobs:     d.Blobs,
		generator: d.Generator,
		queue:     d.Queue,
		events:    d.Events,
		styles:    d.Styles,
		timeout:   d.Timeout,
	}
}

func (s *Service) Styles() *style.Catalog {
	return s.styles
}

// Submit - 입력 검증 후 pending generation 생성, 큐에 추가
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*model.Generation, error) {
	subject, err := NormalizeSubject(req.Subject)
	if err != nil {
		return nil, err
	}
	if _, ok := s.styles.Lookup(req.Style); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, req.Style)
	}
	if _, err := s.visibleImage(ctx, userID, req.BackgroundImageID, model.KindBackground); err != nil {
		return nil, err
	}
	if _, err := s.visibleImage(ctx, userID, req.CharacterImageID, model.KindCharacter); err != nil {
		return nil, err
	}

	gen, err := s.store.CreateGeneration(ctx, &model.Generation{
		UserID:            userID,
		BackgroundImageID: req.BackgroundImageID,
		CharacterImageID:  req.CharacterImageID,
		Subject:           subject,
		Style:             req.Style,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, gen.GenerationID); err != nil {
		s.markFailed(ctx, gen, []string{model.StatusPending}, model.ErrorCodeInternal, err)
		return nil, fmt.Errorf("failed to enqueue generation: %w", err)
	}
	return gen, nil
}

// NormalizeSubject trims the subject and enforces its length.
func NormalizeSubject(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || utf8.RuneCountInString(subject) > MaxSubjectLength {
		return "", ErrInvalidSubject
	}
	return subject, nil
}

func (s *Service) visibleImage(ctx context.Context, userID, imageID, kind string) (*model.Image, error) {
	if imageID == "" {
		return nil, fmt.Errorf("%w: no %s selected", ErrImageNotFound, kind)
	}
	img, err := s.store.FetchImage(ctx, imageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imageID)
	}
	if err != nil {
		return nil, err
	}
	if !img.VisibleTo(userID) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imageID)
	}
	if img.Kind != kind {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrWrongImageKind, imageID, img.Kind, kind)
	}
	return img, nil
}

// Get - 소유자만 조회 가능
func (s *Service) Get(ctx context.Context, userID, generationID string) (*model.Generation, error) {
	gen, err := s.store.FetchGeneration(ctx, generationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	return gen, nil
}

// List - 사용자의 최근 generation 목록
func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.Generation, error) {
	return s.store.ListGenerations(ctx, userID, limit)
}

// Cancel - pending/processing generation 취소
func (s *Service) Cancel(ctx context.Context, userID, generationID string) (*model.Generation, error) {
	gen, err := s.Get(ctx, userID, generationID)
	if err != nil {
		return nil, err
	}
	if gen.Terminal() {
		return gen, ErrNotCancellable
	}

	// 워커가 provider 호출 전후로 확인하는 플래그
	if err := s.queue.SetCancelled(ctx, generationID); err != nil {
		return nil, err
	}

	ok, err := s.store.Transition(ctx, generationID, []string{model.StatusPending, model.StatusProcessing}, model.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.FetchGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return latest, ErrNotCancellable
	}

	log.Info().Str("generation_id", generationID).Str("user_id", userID).Msg("🛑 Generation cancelled")
	s.publish(ctx, latest, notify.EventGenerationCancelled, "")
	return latest, nil
}

// Process - 워커가 호출. pending generation 하나를 끝까지 처리.
// 실패는 generation 레코드에 기록하고 error로도 반환.
func (s *Service) Process(ctx context.Context, generationID string) error {
	gen, err := s.store.FetchGeneration(ctx, generationID)
	if err != nil {
		return fmt.Errorf("failed to load generation %s: %w", generationID, err)
	}
	if gen.Status != model.StatusPending {
		log.Info().Str("generation_id", generationID).Str("status", gen.Status).Msg("⏭️  Skipping generation that is not pending")
		return nil
	}

	if s.queue.IsCancelled(ctx, generationID) {
		s.finishCancelled(ctx, gen, model.StatusPending)
		return nil
	}

	ok, err := s.store.Transition(ctx, generationID, []string{model.StatusPending}, model.StatusProcessing, nil)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	log.Info().Str("generation_id", generationID).Str("style", gen.Style).Str("subject", gen.Subject).Msg("🚀 Processing generation")
	start := time.Now()

	img, err := s.compose(ctx, gen)
	if err != nil {
		code := ClassifyError(err)
		s.markFailed(ctx, gen, []string{model.StatusProcessing}, code, err)
		return fmt.Errorf("generation %s failed (%s): %w", generationID, code, err)
	}

	if s.queue.IsCancelled(ctx, generationID) {
		log.Info().Str("generation_id", generationID).Msg("🛑 Cancelled during generation, discarding result")
		// Cancel이 DB 전이에 실패했으면 플래그만 남아 있음
		s.finishCancelled(ctx, gen, model.StatusProcessing)
		return nil
	}

	result, err := s.storeResult(ctx, gen, img)
	if err != nil {
		s.markFailed(ctx, gen, []string{model.StatusProcessing}, model.ErrorCodeInternal, err)
		return fmt.Errorf("generation %s: %w", generationID, err)
	}

	ok, err = s.store.Transition(ctx, generationID, []string{model.StatusProcessing}, model.StatusCompleted, map[string]interface{}{
		"result_image_id": result.ImageID,
	})
	if err != nil {
		return err
	}
	if !ok {
		log.Info().Str("generation_id", generationID).Msg("🛑 Generation changed state before completion, result kept unlinked")
		return nil
	}

	gen.Status = model.StatusCompleted
	gen.ResultImageID = &result.ImageID
	s.publish(ctx, gen, notify.EventGenerationCompleted, "")

	log.Info().Str("generation_id", generationID).Dur("elapsed", time.Since(start)).Msg("✅ Generation completed")
	return nil
}

// compose - 입력 이미지 다운로드 후 어댑터 호출 (timeout 적용)
func (s *Service) compose(ctx context.Context, gen *model.Generation) (*Image, error) {
	var background, character []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		background, err = s.loadImage(gctx, gen.BackgroundImageID)
		return err
	})
	g.Go(func() (err error) {
		character, err = s.loadImage(gctx, gen.CharacterImageID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	genCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return s.generator.Generate(genCtx, GenerationRequest{
		Background: background,
		Character:  character,
		Subject:    gen.Subject,
		Style:      gen.Style,
	})
}

func (s *Service) loadImage(ctx context.Context, imageID string) ([]byte, error) {
	img, err := s.store.FetchImage(ctx, imageID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: image %s: %w", ErrMissingImage, imageID, err)
	}
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Download(ctx, img.FilePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: image %s: %w", ErrMissingImage, imageID, err)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// storeResult - 결과 업로드, 프리뷰 생성, generated 이미지 레코드 생성
func (s *Service) storeResult(ctx context.Context, gen *model.Generation, img *Image) (*model.Image, error) {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = utils.MIMETypeOrDefault(img.Data)
	}
	fileName := gen.GenerationID + utils.ExtensionFor(mimeType)
	filePath := fmt.Sprintf("generated/user-%s/%s", gen.UserID, fileName)

	if err := s.blobs.Upload(ctx, filePath, img.Data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to upload result: %w", err)
	}

	var previewPath *string
	if preview, err := utils.MakePreview(img.Data, utils.PreviewMaxSide); err != nil {
		log.Warn().Err(err).Str("generation_id", gen.GenerationID).Msg("⚠️  Preview skipped")
	} else {
		p := fmt.Sprintf("previews/generated/user-%s/%s.webp", gen.UserID, gen.GenerationID)
		if err := s.blobs.Upload(ctx, p, preview, "image/webp"); err != nil {
			log.Warn().Err(err).Str("generation_id", gen.GenerationID).Msg("⚠️  Preview upload failed")
		} else {
			previewPath = &p
		}
	}

	owner := gen.UserID
	return s.store.CreateImage(ctx, &model.Image{
		OwnerID:     &owner,
		Kind:        model.KindGenerated,
		FileName:    fileName,
		FilePath:    filePath,
		MimeType:    mimeType,
		FileSize:    int64(len(img.Data)),
		PreviewPath: previewPath,
	})
}

func (s *Service) finishCancelled(ctx context.Context, gen *model.Generation, from string) {
	ok, err := s.store.Transition(ctx, gen.GenerationID, []string{from}, model.StatusCancelled, nil)
	if err != nil {
		log.Error().Err(err).Str("generation_id", gen.GenerationID).Msg("❌ Failed to mark generation cancelled")
		return
	}
	if ok {
		gen.Status = model.StatusCancelled
		s.publish(ctx, gen, notify.EventGenerationCancelled, "")
	}
}

func (s *Service) markFailed(ctx context.Context, gen *model.Generation, from []string, code string, cause error) {
	msg := cause.Error()
	if len(msg) > maxErrorMessage {
		msg = strings.ToValidUTF8(msg[:maxErrorMessage], "")
	}

	// 요청 ctx가 끝났어도 실패 기록은 남김
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ok, err := s.store.Transition(ctx, gen.GenerationID, from, model.StatusFailed, map[string]interface{}{
		"error_code":    code,
		"error_message": msg,
	})
	if err != nil {
		log.Error().Err(err).Str("generation_id", gen.GenerationID).Msg("❌ Failed to record generation failure")
		return
	}
	if !ok {
		return
	}

	log.Error().Err(cause).Str("generation_id", gen.GenerationID).Str("error_code", code).Msg("❌ Generation failed")
	gen.Status = model.StatusFailed
	gen.ErrorCode = &code
	gen.ErrorMessage = &msg
	s.publish(ctx, gen, notify.EventGenerationFailed, UserMessage(code))
}

func (s *Service) publish(ctx context.Context, gen *model.Generation, eventType, message string) {
	if s.events == nil {
		return
	}
	ev := notify.Event{
		Type:         eventType,
		UserID:       gen.UserID,
		GenerationID: gen.GenerationID,
		Status:       gen.Status,
		Message:      message,
	}
	if gen.ResultImageID != nil {
		ev.ResultImageID = *gen.ResultImageID
	}
	if gen.ErrorCode != nil {
		ev.ErrorCode = *gen.ErrorCode
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("generation_id", gen.GenerationID).Str("type", eventType).Msg("⚠️  Failed to publish event")
	}
}

// ClassifyError - 오류를 generation error code로 변환
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrorCodeTimeout
	case errors.Is(err, ErrUnknownStyle):
		return model.ErrorCodeUnknownStyle
	case errors.Is(err, ErrMissingImage):
		return model.ErrorCodeMissingImage
	case errors.Is(err, ErrNoImage):
		return model.ErrorCodeNoImage
	case errors.Is(err, ErrMissingCredentials):
		return model.ErrorCodeCredentials
	case errors.Is(err, ErrProvider):
		return model.ErrorCodeProvider
	default:
		return model.ErrorCodeInternal
	}
}

// UserMessage - error code별 사용자 안내 문구
func UserMessage(code string) string {
	switch code {
	case model.ErrorCodeTimeout:
		return "The image service took too long to respond. Please try again."
	case model.ErrorCodeUnknownStyle:
		return "That style is not available."
	case model.ErrorCodeMissingImage:
		return "One of the selected images is no longer available."
	case model.ErrorCodeNoImage:
		return "The image service did not return a picture. Try a different subject or style."
	case model.ErrorCodeCredentials:
		return "Image generation is not configured on this server."
	case model.ErrorCodeProvider:
		return "The image service reported an error."
	default:
		return "Something went wrong while creating your sticker."
	}
}
