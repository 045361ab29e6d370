package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the poster service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"poster-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"POSTER_API_PORT" envDefault:"8290"`
	LogLevel        string        `env:"POSTER_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// DynamoDB single-table store
	DynamoTable    string `env:"POSTER_DYNAMODB_TABLE" envDefault:"poster-app"`
	DynamoRegion   string `env:"POSTER_DYNAMODB_REGION" envDefault:"us-east-2"`
	DynamoEndpoint string `env:"POSTER_DYNAMODB_ENDPOINT"` // set for DynamoDB Local
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`

	// S3 Storage Configuration
	S3Bucket       string        `env:"POSTER_S3_BUCKET"`
	S3Region       string        `env:"POSTER_S3_REGION" envDefault:"us-east-2"`
	S3Endpoint     string        `env:"POSTER_S3_ENDPOINT"`
	S3UsePathStyle bool          `env:"POSTER_S3_USE_PATH_STYLE" envDefault:"false"`
	S3KeyPrefix    string        `env:"POSTER_S3_KEY_PREFIX" envDefault:"generated/"`
	S3PresignTTL   time.Duration `env:"POSTER_S3_PRESIGN_TTL" envDefault:"1h"`

	// Image generation (Bedrock)
	BedrockModelID string `env:"POSTER_BEDROCK_MODEL_ID" envDefault:"stability.sd3-5-large-v1:0"`
	BedrockRegion  string `env:"POSTER_BEDROCK_REGION" envDefault:"us-west-2"`

	// Image editing limits
	EditMaxImageBytes  int64 `env:"EDIT_MAX_IMAGE_BYTES" envDefault:"5242880"`
	EditMaxPromptChars int   `env:"EDIT_MAX_PROMPT_CHARS" envDefault:"800"`

	// Credit policy
	CreditsRefillAmount   int           `env:"CREDITS_REFILL_AMOUNT" envDefault:"10"`
	CreditsRefillInterval time.Duration `env:"CREDITS_REFILL_INTERVAL" envDefault:"24h"`

	// History listing
	HistoryPageSize   int `env:"HISTORY_PAGE_SIZE" envDefault:"20"`
	HistoryPageMax    int `env:"HISTORY_PAGE_MAX" envDefault:"50"`
	FeaturedScanPages int `env:"FEATURED_SCAN_PAGES" envDefault:"8"`
	FeaturedScanSize  int `env:"FEATURED_SCAN_SIZE" envDefault:"100"`

	// Share links
	ShareBaseURL string `env:"SHARE_BASE_URL"` // e.g. "https://posters.example.com/share"

	// Authentication
	AuthEnabled       bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer        string `env:"AUTH_ISSUER"`
	Account           string `env:"ACCOUNT"`
	AuthJWKSURL       string `env:"AUTH_JWKS_URL"`
	AuthRequiredGroup string `env:"AUTH_REQUIRED_GROUP"` // empty disables the group gate
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.DynamoTable = strings.TrimSpace(cfg.DynamoTable)
	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.S3KeyPrefix = strings.TrimSpace(cfg.S3KeyPrefix)
	cfg.BedrockModelID = strings.TrimSpace(cfg.BedrockModelID)
	cfg.ShareBaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.ShareBaseURL), "/")

	if cfg.DynamoTable == "" {
		return nil, fmt.Errorf("POSTER_DYNAMODB_TABLE must not be empty")
	}
	if cfg.S3KeyPrefix != "" && !strings.HasSuffix(cfg.S3KeyPrefix, "/") {
		cfg.S3KeyPrefix += "/"
	}
	if cfg.CreditsRefillAmount < 1 {
		cfg.CreditsRefillAmount = 1
	}
	if cfg.HistoryPageMax < 1 {
		cfg.HistoryPageMax = 50
	}
	if cfg.HistoryPageSize < 1 || cfg.HistoryPageSize > cfg.HistoryPageMax {
		cfg.HistoryPageSize = 20
	}
	if cfg.FeaturedScanPages < 1 {
		cfg.FeaturedScanPages = 8
	}
	if cfg.FeaturedScanSize < 1 {
		cfg.FeaturedScanSize = 100
	}
	if cfg.EditMaxImageBytes < 1 {
		cfg.EditMaxImageBytes = 5 * 1024 * 1024
	}
	if cfg.EditMaxPromptChars < 1 {
		cfg.EditMaxPromptChars = 800
	}
	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// PresignTTLSeconds returns the presign TTL in whole seconds.
func (c *Config) PresignTTLSeconds() int {
	return int(c.S3PresignTTL.Seconds())
}
