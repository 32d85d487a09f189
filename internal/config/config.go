package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	pkgRetry "github.com/futig/zoning-qa/internal/pkg/retry"
	"github.com/joho/godotenv"
)

// Provider names
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Embedding cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerAddr         string   `env:"SERVER_ADDR" envDefault:":8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Database configuration
	DatabaseURL         string        `env:"DATABASE_URL"`
	DBMaxConns          int           `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns          int           `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
	MigrationsPath      string        `env:"MIGRATIONS_PATH" envDefault:"file://internal/repository/migrations"`

	RAG       RAGConfig       `envPrefix:"RAG_"`
	Embedding EmbeddingConfig `envPrefix:"EMBEDDING_"`
	LLM       LLMConfig       `envPrefix:"LLM_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Bedrock   BedrockConfig   `envPrefix:"BEDROCK_"`
	Limits    LimitsConfig    `envPrefix:"LIMITS_"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mock configuration: in-memory store and deterministic providers
	EnableMocks bool `env:"ENABLE_MOCKS" envDefault:"false"`

	// Environment (set from flag, not from env var)
	Environment string
}

type RAGConfig struct {
	PhasesFile    string        `env:"PHASES_FILE" envDefault:"internal/config/phases.yaml"`
	ActivePhase   string        `env:"ACTIVE_PHASE"`
	QueryTimeout  time.Duration `env:"QUERY_TIMEOUT" envDefault:"30s"`
	IngestTimeout time.Duration `env:"INGEST_TIMEOUT" envDefault:"5m"`
	IngestWorkers int           `env:"INGEST_WORKERS" envDefault:"4"`

	// PhaseRefreshInterval polls the phase store for changes made by other
	// instances. Zero disables polling.
	PhaseRefreshInterval time.Duration `env:"PHASE_REFRESH_INTERVAL" envDefault:"30s"`
}

type EmbeddingConfig struct {
	HTTPClientConfig
	Provider  string               `env:"PROVIDER" envDefault:"openai"`
	Endpoint  string               `env:"ENDPOINT" envDefault:"/embeddings"`
	BatchSize int                  `env:"BATCH_SIZE" envDefault:"64"`
	RateLimit RateLimitConfig      `envPrefix:"RATE_LIMIT_"`
	Retry     pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type LLMConfig struct {
	HTTPClientConfig
	Provider  string               `env:"PROVIDER" envDefault:"openai"`
	Endpoint  string               `env:"ENDPOINT" envDefault:"/chat/completions"`
	RateLimit RateLimitConfig      `envPrefix:"RATE_LIMIT_"`
	Retry     pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

// RateLimitConfig of zero per second disables throttling
type RateLimitConfig struct {
	PerSecond float64 `env:"PER_SECOND" envDefault:"0"`
	Burst     int     `env:"BURST" envDefault:"1"`
}

type HTTPClientConfig struct {
	RequestTimeout        time.Duration `env:"TIMEOUT" envDefault:"60s"`
	ConnTimeout           time.Duration `env:"CONN_TIMEOUT" envDefault:"10s"`
	KeepAlive             time.Duration `env:"KEEP_ALIVE" envDefault:"90s"`
	IdleConnTimeout       time.Duration `env:"IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ResponseHeaderTimeout time.Duration `env:"RESPONSE_HEADER_TIMEOUT" envDefault:"60s"`
	Token                 string        `env:"TOKEN"`
	AuthHeader            string        `env:"AUTH_HEADER"`
	Url                   string        `env:"SERVICE_URL" envDefault:"https://api.openai.com/v1"`
}

type CacheConfig struct {
	Backend         string        `env:"BACKEND" envDefault:"memory"`
	TTL             time.Duration `env:"TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10m"`
	MaxItems        int           `env:"MAX_ITEMS" envDefault:"50000"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix     string        `env:"REDIS_PREFIX" envDefault:"zoning-qa:emb:"`
}

// LimitsConfig bounds request input
type LimitsConfig struct {
	MaxDocumentBytes  int `env:"MAX_DOCUMENT_BYTES" envDefault:"10485760"`
	MaxTitleLength    int `env:"MAX_TITLE_LENGTH" envDefault:"300"`
	MaxQuestionLength int `env:"MAX_QUESTION_LENGTH" envDefault:"2000"`
	MaxTopK           int `env:"MAX_TOP_K" envDefault:"50"`
}

type BedrockConfig struct {
	Region string `env:"REGION" envDefault:"us-east-1"`
}

func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	envFile := getEnvFile(*envFlag)
	// Try to load env file, but don't fail if it's missing.
	// In containerized/prod environments variables are usually set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	cfg.Environment = *envFlag

	return cfg, nil
}

// Parse reads and validates the configuration from the process environment
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if !cfg.EnableMocks && cfg.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required unless ENABLE_MOCKS is set")
	}

	// Validate Database configuration
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 200 {
		errors = append(errors, fmt.Sprintf("DB_MAX_CONNS must be between 1 and 200, got %d", cfg.DBMaxConns))
	}

	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		errors = append(errors, fmt.Sprintf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS(%d), got %d", cfg.DBMaxConns, cfg.DBMinConns))
	}

	if cfg.RAG.IngestWorkers < 1 || cfg.RAG.IngestWorkers > 64 {
		errors = append(errors, fmt.Sprintf("RAG_INGEST_WORKERS must be between 1 and 64, got %d", cfg.RAG.IngestWorkers))
	}

	if cfg.RAG.QueryTimeout <= 0 {
		errors = append(errors, "RAG_QUERY_TIMEOUT must be positive")
	}

	if cfg.RAG.PhaseRefreshInterval < 0 {
		errors = append(errors, "RAG_PHASE_REFRESH_INTERVAL must not be negative")
	}

	if cfg.Embedding.BatchSize < 1 || cfg.Embedding.BatchSize > 2048 {
		errors = append(errors, fmt.Sprintf("EMBEDDING_BATCH_SIZE must be between 1 and 2048, got %d", cfg.Embedding.BatchSize))
	}

	for name, provider := range map[string]string{"EMBEDDING_PROVIDER": cfg.Embedding.Provider, "LLM_PROVIDER": cfg.LLM.Provider} {
		if provider != ProviderOpenAI && provider != ProviderBedrock {
			errors = append(errors, fmt.Sprintf("%s must be %q or %q, got %q", name, ProviderOpenAI, ProviderBedrock, provider))
		}
	}

	switch cfg.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		errors = append(errors, fmt.Sprintf("CACHE_BACKEND must be memory, redis or none, got %q", cfg.Cache.Backend))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func getEnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}
