package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/config"
)

var ErrObjectNotFound = errors.New("storage object not found")

// Client - Supabase Storage REST 클라이언트
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient(cfg *config.Config) *Client {
	return NewClientWith(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, nil)
}

// NewClientWith builds a client against an explicit endpoint.
func NewClientWith(baseURL, serviceKey, bucket string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		httpClient: httpClient,
	}
}

func (c *Client) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, strings.TrimLeft(path, "/"))
}

// Upload - Storage에 바이너리 업로드 (같은 경로면 덮어씀)
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	uploadURL := c.objectURL(path)
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("📤 Uploading object to storage")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Info().Str("path", path).Int("bytes", len(data)).Msg("✅ Object uploaded")
	return nil
}

// Download - Storage에서 바이너리 다운로드
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	fullURL := c.objectURL(path)
	log.Debug().Str("path", path).Msg("📥 Downloading object from storage")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to download object: status %d, body: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("✅ Object downloaded")
	return data, nil
}
