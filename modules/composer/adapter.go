package composer

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/gemini"
	"sticker-studio-server/modules/common/style"
	"sticker-studio-server/modules/common/utils"
)

var (
	ErrUnknownStyle       = errors.New("unknown style")
	ErrMissingImage       = errors.New("background and character images are required")
	ErrMissingCredentials = errors.New("image provider is not configured")
	ErrProvider           = errors.New("image provider failed")
	ErrNoImage            = errors.New("provider returned no image")
)

// ContentStreamer is the provider side of the adapter; *gemini.Client implements it.
type ContentStreamer interface {
	StreamContent(ctx context.Context, req gemini.Request) iter.Seq2[gemini.Chunk, error]
}

// GenerationRequest - 합성 요청 입력
type GenerationRequest struct {
	Background []byte
	Character  []byte
	Subject    string
	Style      string
}

// Image is the first image the provider emitted.
type Image struct {
	Data     []byte
	MIMEType string
}

// Adapter composes a background and a character into one image through the
// provider. It holds no per-call state and is safe for concurrent use.
type Adapter struct {
	streamer ContentStreamer
	styles   *style.Catalog
}

// NewAdapter - 어댑터 생성. styles가 nil이면 기본 카탈로그 사용.
func NewAdapter(streamer ContentStreamer, styles *style.Catalog) *Adapter {
	if styles == nil {
		styles = style.Default()
	}
	return &Adapter{streamer: streamer, styles: styles}
}

// Generate sends one streamed request and returns the first image chunk.
// Text chunks are logged, empty chunks skipped, and a stream that ends without
// an image is ErrNoImage. There are no retries and no internal timeout: ctx
// bounds the call.
func (a *Adapter) Generate(ctx context.Context, req GenerationRequest) (*Image, error) {
	descriptor, ok := a.styles.Lookup(req.Style)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStyle, req.Style)
	}
	if len(req.Background) == 0 || len(req.Character) == 0 {
		return nil, ErrMissingImage
	}
	if a.streamer == nil {
		return nil, ErrMissingCredentials
	}

	request := gemini.Request{Parts: []gemini.Part{
		gemini.BlobPart(req.Background, utils.MIMETypeOrDefault(req.Background)),
		gemini.BlobPart(req.Character, utils.MIMETypeOrDefault(req.Character)),
		gemini.TextPart(BuildInstruction(descriptor, req.Subject)),
	}}

	log.Info().Str("style", req.Style).Str("subject", req.Subject).Msg("🎨 Requesting composite image")

	chunks := 0
	for chunk, err := range a.streamer.StreamContent(ctx, request) {
		if err != nil {
			if errors.Is(err, gemini.ErrMissingAPIKey) {
				return nil, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrProvider, err)
		}
		chunks++

		if chunk.Empty() {
			continue
		}
		if blob, ok := chunk.FirstBlob(); ok {
			log.Info().Int("bytes", len(blob.Data)).Str("mime_type", blob.MIMEType).Int("chunk", chunks).Msg("✅ Received image from provider")
			return &Image{Data: blob.Data, MIMEType: blob.MIMEType}, nil
		}
		for _, text := range chunk.Texts() {
			log.Info().Str("text", text).Msg("💬 Provider text")
		}
	}

	log.Warn().Int("chunks", chunks).Msg("⚠️  Stream ended without an image")
	return nil, ErrNoImage
}
