package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.0-flash-preview-image-generation"

var ErrMissingAPIKey = errors.New("gemini: API key is required")

// Backend selects the genai transport.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini"
	BackendVertexAI  Backend = "vertex"
)

// Options configures NewClient.
type Options struct {
	APIKey   string
	Model    string
	Backend  Backend
	Project  string
	Location string
}

// contentStreamer is the slice of *genai.Models the client uses.
type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Client streams image+text generations from Gemini.
type Client struct {
	models contentStreamer
	model  string
}

// NewClient - Gemini 클라이언트 생성 (Gemini API backend는 API key 없으면 실패)
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	cc := &genai.ClientConfig{}
	switch opts.Backend {
	case BackendVertexAI:
		cc.Backend = genai.BackendVertexAI
		cc.Project = opts.Project
		cc.Location = opts.Location
	case BackendGeminiAPI, "":
		if opts.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = opts.APIKey
	default:
		return nil, fmt.Errorf("gemini: unknown backend %q", opts.Backend)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendGeminiAPI
	}
	log.Info().Str("model", model).Str("backend", string(backend)).Msg("✅ Gemini client initialized")
	return &Client{models: client.Models, model: model}, nil
}

// newClientWith wires an arbitrary streamer; used by tests.
func newClientWith(models contentStreamer, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{models: models, model: model}
}

// StreamContent sends req as a single user turn asking for IMAGE and TEXT
// modalities and yields one Chunk per streamed response. A provider error is
// yielded once and ends the sequence. Breaking out of the range stops the
// underlying stream.
func (c *Client) StreamContent(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if c == nil || c.models == nil {
			yield(Chunk{}, ErrMissingAPIKey)
			return
		}

		contents := []*genai.Content{
			genai.NewContentFromParts(toGenaiParts(req.Parts), genai.RoleUser),
		}
		cfg := &genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		}

		log.Debug().Str("model", c.model).Int("parts", len(req.Parts)).Msg("📤 Streaming request to Gemini")

		for resp, err := range c.models.GenerateContentStream(ctx, c.model, contents, cfg) {
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(chunkFromResponse(resp), nil) {
				return
			}
		}
	}
}

func toGenaiParts(parts []Part) []*genai.Part {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			out = append(out, genai.NewPartFromText(p.Text))
		case PartBlob:
			out = append(out, genai.NewPartFromBytes(p.Data, p.MIMEType))
		}
	}
	return out
}

// chunkFromResponse maps the first candidate's parts. Anything missing along
// candidate → content → parts yields an empty chunk.
func chunkFromResponse(resp *genai.GenerateContentResponse) Chunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return Chunk{}
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || candidate.Content.Parts == nil {
		return Chunk{}
	}

	var parts []Part
	for _, p := range candidate.Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			parts = append(parts, BlobPart(p.InlineData.Data, p.InlineData.MIMEType))
			continue
		}
		if p.Text != "" {
			parts = append(parts, TextPart(p.Text))
		}
	}
	return Chunk{Parts: parts}
}
