package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GENERATION_TIMEOUT", "")
	t.Setenv("WORKER_CONCURRENCY", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("SUPABASE_STORAGE_BUCKET", "")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.GenerationTimeout)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, "gemini-2.0-flash-preview-image-generation", cfg.GeminiModel)
	assert.Equal(t, "https://example.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, "stickers", cfg.SupabaseStorageBucket)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("duration", func(t *testing.T) {
		t.Setenv("GENERATION_TIMEOUT", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "GENERATION_TIMEOUT")
	})

	t.Run("negative duration", func(t *testing.T) {
		t.Setenv("GENERATION_TIMEOUT", "-5s")
		_, err := Load()
		assert.ErrorContains(t, err, "must be positive")
	})

	t.Run("concurrency", func(t *testing.T) {
		t.Setenv("WORKER_CONCURRENCY", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "WORKER_CONCURRENCY")
	})
}

func TestValidateGemini(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"api key present", Config{GeminiBackend: BackendGeminiAPI, GeminiAPIKey: "k"}, ""},
		{"api key missing", Config{GeminiBackend: BackendGeminiAPI}, "GEMINI_API_KEY is required"},
		{"vertex with project", Config{GeminiBackend: BackendVertexAI, GoogleProject: "p"}, ""},
		{"vertex without project", Config{GeminiBackend: BackendVertexAI}, "GOOGLE_CLOUD_PROJECT"},
		{"unknown backend", Config{GeminiBackend: "openai"}, "unknown GEMINI_BACKEND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.ValidateGemini()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestValidateRequiresSupabase(t *testing.T) {
	cfg := Config{RedisHost: "localhost", GeminiBackend: BackendGeminiAPI, GeminiAPIKey: "k"}
	assert.ErrorContains(t, cfg.Validate(), "SUPABASE_URL")

	cfg.SupabaseURL = "https://x.supabase.co"
	assert.ErrorContains(t, cfg.Validate(), "SUPABASE_SERVICE_KEY")

	cfg.SupabaseServiceKey = "service"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigSetsGlobal(t *testing.T) {
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service")
	t.Setenv("GEMINI_BACKEND", BackendGeminiAPI)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Cleanup(func() { globalConfig = nil })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, GetConfig())
}
