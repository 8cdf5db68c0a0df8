package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultJWTSecret is accepted outside production only
	DefaultJWTSecret = "change-me-in-production"

	StoreBackendDynamoDB = "dynamodb"
	StoreBackendMemory   = "memory"
)

type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Store         StoreConfig         `envconfig:"STORE"`
	DynamoDB      DynamoDBConfig      `envconfig:"DYNAMODB"`
	JWT           JWTConfig           `envconfig:"JWT"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	RateLimit     RateLimitConfig     `envconfig:"RATE_LIMIT"`
	Idempotency   IdempotencyConfig   `envconfig:"IDEMPOTENCY"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	CORS          CORSConfig          `envconfig:"CORS"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
}

type AWSConfig struct {
	Region     string `envconfig:"REGION" default:"us-east-1"`
	Profile    string `envconfig:"PROFILE" default:""`
	SecretName string `envconfig:"SECRET_NAME" default:""`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"5000"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	BodyLimit    int           `envconfig:"BODY_LIMIT" default:"10485760"` // 10 MB

	// ProxyHeader is read for the client IP only when the peer is listed
	// in TrustedProxies (IPs or CIDR ranges)
	ProxyHeader    string   `envconfig:"PROXY_HEADER"`
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// IsProduction reports whether the service runs in production mode
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

type StoreConfig struct {
	Backend string `envconfig:"BACKEND" default:"dynamodb"` // dynamodb or memory
}

type DynamoDBConfig struct {
	UsersTableName     string `envconfig:"USERS_TABLE_NAME" default:"bookmarks-api-users"`
	BookmarksTableName string `envconfig:"BOOKMARKS_TABLE_NAME" default:"bookmarks-api-bookmarks"`
	Region             string `envconfig:"REGION" default:"us-east-1"`
	Endpoint           string `envconfig:"ENDPOINT" default:""` // e.g. http://localhost:8000 for DynamoDB Local
	CreateTables       bool   `envconfig:"CREATE_TABLES" default:"false"`
}

type JWTConfig struct {
	Secret     string        `envconfig:"SECRET" default:"change-me-in-production"`
	SecretName string        `envconfig:"SECRET_NAME" default:""` // Secrets Manager id, overrides SECRET
	TTL        time.Duration `envconfig:"TTL" default:"168h"`
	Issuer     string        `envconfig:"ISSUER" default:"bookmarks-api"`
}

type AuthConfig struct {
	BcryptCost int `envconfig:"BCRYPT_COST" default:"10"`
}

type RedisConfig struct {
	Enabled             bool          `envconfig:"ENABLED" default:"false"`
	Address             string        `envconfig:"ADDRESS" default:"localhost:6379"`
	Password            string        `envconfig:"PASSWORD" default:""`
	Database            int           `envconfig:"DATABASE" default:"0"`
	MaxRetries          int           `envconfig:"MAX_RETRIES" default:"3"`
	PoolSize            int           `envconfig:"POOL_SIZE" default:"100"`
	PoolTimeout         time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	TLSEnabled          bool          `envconfig:"TLS_ENABLED" default:"false"`
	PasswordFromSecrets bool          `envconfig:"PASSWORD_FROM_SECRETS" default:"false"`
	ClusterMode         bool          `envconfig:"CLUSTER_MODE" default:"false"`
	RouteByLatency      bool          `envconfig:"ROUTE_BY_LATENCY" default:"true"`
	RouteRandomly       bool          `envconfig:"ROUTE_RANDOMLY" default:"false"`
	ReadOnly            bool          `envconfig:"READ_ONLY" default:"false"`
}

type RateLimitConfig struct {
	RPS         int           `envconfig:"RPS" default:"20"`
	Burst       int           `envconfig:"BURST" default:"40"`
	WindowSize  time.Duration `envconfig:"WINDOW_SIZE" default:"1s"`
	Enabled     bool          `envconfig:"ENABLED" default:"true"`
	ExemptPaths []string      `envconfig:"EXEMPT_PATHS" default:"/healthz,/health,/readyz,/metrics"`
}

type IdempotencyConfig struct {
	Enabled bool          `envconfig:"ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"TTL" default:"5m"`
}

type ObservabilityConfig struct {
	MetricsPath    string  `envconfig:"METRICS_PATH" default:"/metrics"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	TraceExporter  string  `envconfig:"TRACE_EXPORTER" default:"otlp"` // otlp or stdout
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"0.1"`
}

type CORSConfig struct {
	AllowOrigins string `envconfig:"ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:3001,http://localhost:5173,http://127.0.0.1:5173,http://localhost:4173,http://127.0.0.1:4173"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	// Additional processing for slice fields that envconfig doesn't handle well
	if exemptPaths := os.Getenv("RATE_LIMIT_EXEMPT_PATHS"); exemptPaths != "" {
		cfg.RateLimit.ExemptPaths = strings.Split(exemptPaths, ",")
		for i := range cfg.RateLimit.ExemptPaths {
			cfg.RateLimit.ExemptPaths[i] = strings.TrimSpace(cfg.RateLimit.ExemptPaths[i])
		}
	}

	for i := range cfg.Server.TrustedProxies {
		cfg.Server.TrustedProxies[i] = strings.TrimSpace(cfg.Server.TrustedProxies[i])
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	// Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	// Validate port
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", cfg.Server.Port)
	}

	if cfg.Server.ProxyHeader != "" && len(cfg.Server.TrustedProxies) == 0 {
		return fmt.Errorf("SERVER_TRUSTED_PROXIES is required when SERVER_PROXY_HEADER is set")
	}

	switch cfg.Store.Backend {
	case StoreBackendDynamoDB, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %q", cfg.Store.Backend)
	}

	// The secret may still arrive from Secrets Manager at startup
	if cfg.JWT.SecretName == "" {
		if cfg.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required")
		}
		if cfg.Server.IsProduction() && cfg.JWT.Secret == DefaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be changed in production")
		}
	}

	if cfg.JWT.TTL <= 0 {
		return fmt.Errorf("invalid JWT ttl: %s", cfg.JWT.TTL)
	}

	// bcrypt.MinCost .. bcrypt.MaxCost
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return fmt.Errorf("invalid bcrypt cost: %d", cfg.Auth.BcryptCost)
	}

	// Validate sample rate
	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	return nil
}
