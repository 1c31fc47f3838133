package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Gemini backends
const (
	BackendGeminiAPI = "gemini"
	BackendVertexAI  = "vertex"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port         string
	LogLevel     string
	LogPretty    bool
	CookieSecure bool
	SessionTTL   time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Gemini API
	GeminiAPIKey   string
	GeminiModel    string
	GeminiBackend  string
	GoogleProject  string
	GoogleLocation string

	// Generation
	StyleCatalogPath  string
	GenerationTimeout time.Duration
	WorkerConcurrency int
}

var globalConfig *Config

// LoadConfig - .env + 환경변수 로드 후 검증
func LoadConfig() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg

	log.Info().
		Str("redis", cfg.GetRedisAddr()).
		Bool("redis_tls", cfg.RedisUseTLS).
		Str("supabase", cfg.SupabaseURL).
		Str("gemini_model", cfg.GeminiModel).
		Str("gemini_backend", cfg.GeminiBackend).
		Dur("generation_timeout", cfg.GenerationTimeout).
		Msg("✅ Configuration loaded")

	return cfg, nil
}

// Load reads the environment without validating required keys. Commands that
// only need a subset (generate, styles) validate what they use themselves.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("⚠️  .env file not found, using environment variables")
	}

	generationTimeout, err := getDuration("GENERATION_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	concurrency, err := getInt("WORKER_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", concurrency)
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getBool("LOG_PRETTY", false),
		CookieSecure: getBool("COOKIE_SECURE", false),
		SessionTTL:   sessionTTL,

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", false),

		SupabaseURL:           strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "stickers"),

		GeminiAPIKey:   strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash-preview-image-generation"),
		GeminiBackend:  strings.ToLower(getEnv("GEMINI_BACKEND", BackendGeminiAPI)),
		GoogleProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleLocation: getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),

		StyleCatalogPath:  getEnv("STYLE_CATALOG_PATH", ""),
		GenerationTimeout: generationTimeout,
		WorkerConcurrency: concurrency,
	}, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal().Msg("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// Validate - 필수 환경변수 검증
func (c *Config) Validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if err := c.ValidateSupabase(); err != nil {
		return err
	}
	return c.ValidateGemini()
}

// ValidateSupabase checks only the database/storage keys.
func (c *Config) ValidateSupabase() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	return nil
}

// ValidateGemini checks only the provider credentials.
func (c *Config) ValidateGemini() error {
	switch c.GeminiBackend {
	case BackendGeminiAPI:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	case BackendVertexAI:
		if c.GoogleProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the vertex backend")
		}
	default:
		return fmt.Errorf("unknown GEMINI_BACKEND %q", c.GeminiBackend)
	}
	return nil
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
		log.Warn().Str("key", key).Str("value", raw).Msg("⚠️  Invalid boolean, using default")
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return parsed, nil
}
