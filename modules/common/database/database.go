package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"sticker-studio-server/modules/common/config"
	"sticker-studio-server/modules/common/model"
)

const (
	tableUsers       = "sticker_users"
	tableImages      = "sticker_images"
	tableGenerations = "sticker_generations"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	log.Info().Str("url", cfg.SupabaseURL).Msg("✅ Supabase client initialized")
	return &Client{supabase: supabaseClient}, nil
}

// ---- users ----

// CreateUser - sticker_users 레코드 생성 (username 중복이면 ErrConflict)
func (c *Client) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	if _, err := c.FetchUserByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username %q", ErrConflict, username)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	insertData := map[string]interface{}{
		"username":      username,
		"password_hash": passwordHash,
		"is_admin":      false,
	}

	data, _, err := c.supabase.From(tableUsers).
		Insert(insertData, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	var users []model.User
	if err := decodeRows(data, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user record returned")
	}

	log.Info().Str("user_id", users[0].UserID).Str("username", username).Msg("👤 User created")
	return &users[0], nil
}

// FetchUserByUsername - username으로 사용자 조회
func (c *Client) FetchUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return c.fetchUser("username", username)
}

// FetchUser - user_id로 사용자 조회
func (c *Client) FetchUser(ctx context.Context, userID string) (*model.User, error) {
	return c.fetchUser("user_id", userID)
}

func (c *Client) fetchUser(column, value string) (*model.User, error) {
	data, _, err := c.supabase.From(tableUsers).
		Select("*", "", false).
		Eq(column, value).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableUsers, err)
	}

	var users []model.User
	if err := decodeRows(data, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: user %s=%s", ErrNotFound, column, value)
	}
	return &users[0], nil
}

// ---- images ----

// CreateImage - sticker_images 레코드 생성
func (c *Client) CreateImage(ctx context.Context, img *model.Image) (*model.Image, error) {
	insertData := map[string]interface{}{
		"owner_id":     img.OwnerID,
		"kind":         img.Kind,
		"file_name":    img.FileName,
		"file_path":    img.FilePath,
		"mime_type":    img.MimeType,
		"file_size":    img.FileSize,
		"preview_path": img.PreviewPath,
	}
	if img.ImageID != "" {
		insertData["image_id"] = img.ImageID
	}

	data, _, err := c.supabase.From(tableImages).
		Insert(insertData, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert image record: %w", err)
	}

	var images []model.Image
	if err := decodeRows(data, &images); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no image record returned")
	}

	log.Info().Str("image_id", images[0].ImageID).Str("kind", img.Kind).Str("path", img.FilePath).Msg("💾 Image record created")
	return &images[0], nil
}

// FetchImage - image_id로 이미지 메타데이터 조회
func (c *Client) FetchImage(ctx context.Context, imageID string) (*model.Image, error) {
	data, _, err := c.supabase.From(tableImages).
		Select("*", "", false).
		Eq("image_id", imageID).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableImages, err)
	}

	var images []model.Image
	if err := decodeRows(data, &images); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: image %s", ErrNotFound, imageID)
	}
	return &images[0], nil
}

// ListImages - 사용자 소유 + 공용 이미지 목록 (kind별, 최신순)
func (c *Client) ListImages(ctx context.Context, userID, kind string) ([]model.Image, error) {
	data, _, err := c.supabase.From(tableImages).
		Select("*", "", false).
		Eq("kind", kind).
		Or(fmt.Sprintf("owner_id.eq.%s,owner_id.is.null", userID), "").
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	var images []model.Image
	if err := decodeRows(data, &images); err != nil {
		return nil, err
	}
	return images, nil
}

// ---- generations ----

// CreateGeneration - pending 상태의 generation 레코드 생성
func (c *Client) CreateGeneration(ctx context.Context, g *model.Generation) (*model.Generation, error) {
	insertData := map[string]interface{}{
		"user_id":             g.UserID,
		"background_image_id": g.BackgroundImageID,
		"character_image_id":  g.CharacterImageID,
		"subject":             g.Subject,
		"style":               g.Style,
		"status":              model.StatusPending,
	}

	data, _, err := c.supabase.From(tableGenerations).
		Insert(insertData, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert generation: %w", err)
	}

	var gens []model.Generation
	if err := decodeRows(data, &gens); err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("no generation record returned")
	}

	log.Info().Str("generation_id", gens[0].GenerationID).Str("user_id", g.UserID).Msg("📝 Generation created")
	return &gens[0], nil
}

// FetchGeneration - generation_id로 조회
func (c *Client) FetchGeneration(ctx context.Context, generationID string) (*model.Generation, error) {
	data, _, err := c.supabase.From(tableGenerations).
		Select("*", "", false).
		Eq("generation_id", generationID).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", tableGenerations, err)
	}

	var gens []model.Generation
	if err := decodeRows(data, &gens); err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("%w: generation %s", ErrNotFound, generationID)
	}
	return &gens[0], nil
}

// ListGenerations - 사용자의 최근 generation 목록
func (c *Client) ListGenerations(ctx context.Context, userID string, limit int) ([]model.Generation, error) {
	data, _, err := c.supabase.From(tableGenerations).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}

	var gens []model.Generation
	if err := decodeRows(data, &gens); err != nil {
		return nil, err
	}
	return gens, nil
}

// Transition - fromStatuses 중 하나일 때만 status를 바꾸고 추가 필드를 기록.
// 조건이 맞지 않아 아무 행도 바뀌지 않으면 false.
func (c *Client) Transition(ctx context.Context, generationID string, fromStatuses []string, to string, fields map[string]interface{}) (bool, error) {
	updateData := map[string]interface{}{"status": to}
	for k, v := range fields {
		updateData[k] = v
	}

	now := time.Now().UTC()
	switch to {
	case model.StatusProcessing:
		updateData["started_at"] = now
	case model.StatusCompleted, model.StatusFailed, model.StatusCancelled:
		updateData["completed_at"] = now
	}

	data, _, err := c.supabase.From(tableGenerations).
		Update(updateData, "representation", "").
		Eq("generation_id", generationID).
		In("status", fromStatuses).
		Execute()
	if err != nil {
		return false, fmt.Errorf("failed to update generation status: %w", err)
	}

	var gens []model.Generation
	if err := decodeRows(data, &gens); err != nil {
		return false, err
	}
	if len(gens) == 0 {
		log.Warn().Str("generation_id", generationID).Strs("from", fromStatuses).Str("to", to).Msg("⚠️  Generation status unchanged")
		return false, nil
	}

	log.Info().Str("generation_id", generationID).Str("status", to).Msg("✅ Generation status updated")
	return true, nil
}

func decodeRows(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
