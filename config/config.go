package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the advisory server. Values come
// from the environment, optionally seeded by config/.env.
type Config struct {
	ServerAddr string
	JWTSecret  string
	TokenTTL   time.Duration

	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Logging  LoggingConfig
	LLM      LLMConfig

	TaxonomyPath   string
	RetrievalLimit int
	CacheTTL       time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// LLMConfig describes the OpenAI-compatible chat completions backend.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Load reads configuration from the environment. A missing config/.env is
// fine; settings can be supplied externally.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{
		ServerAddr: envOrDefault("SERVER_ADDR", ":8080"),
		JWTSecret:  strings.TrimSpace(os.Getenv("JWT_SECRET")),
		TokenTTL:   parseDuration(envOrDefault("TOKEN_TTL", "24h"), 24*time.Hour),
		Postgres: PostgresConfig{
			DSN:             strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
			MaxConns:        parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8),
			MinConns:        parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1),
			MaxConnLifetime: parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime: parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			ConnectTimeout:  parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            strings.TrimSpace(os.Getenv("MONGO_URI")),
			Database:       envOrDefault("MONGO_DATABASE", "agkaizen"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseNonNegativeInt(envOrDefault("REDIS_DB", "0"), 0),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
			Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
			ServiceName:  envOrDefault("SERVICE_NAME", "agkaizen-server"),
		},
		LLM: LLMConfig{
			BaseURL:     strings.TrimRight(envOrDefault("LLM_API_BASE", "https://api.openai.com/v1"), "/"),
			APIKey:      strings.TrimSpace(os.Getenv("LLM_API_KEY")),
			Model:       envOrDefault("LLM_MODEL", "gpt-4o-mini"),
			Temperature: parseFloat(envOrDefault("LLM_TEMPERATURE", "0.2"), 0.2),
			MaxTokens:   parsePositiveInt(envOrDefault("LLM_MAX_TOKENS", "800"), 800),
			Timeout:     parseDuration(envOrDefault("LLM_TIMEOUT", "20s"), 20*time.Second),
		},
		TaxonomyPath:   envOrDefault("TAXONOMY_PATH", "configs/taxonomy.yaml"),
		RetrievalLimit: parsePositiveInt(envOrDefault("RETRIEVAL_LIMIT", "6"), 6),
		CacheTTL:       parseDuration(envOrDefault("ANALYSIS_CACHE_TTL", "15m"), 15*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles() error {
	if err := godotenv.Load("config/.env"); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// ignore missing config/.env so that environment variables can be supplied externally
			return nil
		}
		return err
	}
	return nil
}

func (c *Config) validate() error {
	missing := make([]string, 0, 2)

	if c.Postgres.DSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.TaxonomyPath == "" {
		missing = append(missing, "TAXONOMY_PATH")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}

func parseInt32(raw string, fallback int32) int32 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil || value <= 0 {
		return fallback
	}
	return int32(value)
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseNonNegativeInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseFloat(raw string, fallback float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func parseBool(raw string, fallback bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
