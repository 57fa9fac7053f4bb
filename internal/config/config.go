package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment
// variables. Externally established keys (PORT, MONGODB_URI, ...) keep
// their conventional names; service-specific fields get an AIGUARD_
// prefix.
type Config struct {
	// Mode selects the runtime mode: "api" or "worker".
	Mode string `env:"AIGUARD_MODE" envDefault:"api"`

	// Server
	Host string `env:"AIGUARD_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"3000"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AIGUARD_LOG_FORMAT" envDefault:"json"`

	// Persistence
	MongoURI    string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDBName string `env:"MONGODB_DB_NAME" envDefault:"aiguard"`

	// Shared rate-limit backend. Empty disables the shared backend and
	// falls back to the in-process limiter (see pkg/ratelimit).
	RedisURL string `env:"REDIS_URL"`

	// Forwarder policy
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"250ms"`

	// Inbound body cap, bytes.
	MaxRequestSize int64 `env:"MAX_REQUEST_SIZE" envDefault:"1048576"`

	// Crypto Vault master key. Values shorter than 32 bytes are derived via
	// PBKDF2 (see pkg/vault).
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Identity verifier endpoint; the proxy only consumes the external
	// provider's HTTP interface.
	IdentityVerifierURL string `env:"AIGUARD_IDENTITY_VERIFIER_URL"`

	// Admin override secret (X-Admin-Key).
	AdminSecretKey string `env:"ADMIN_SECRET_KEY"`

	// Process-default provider credentials (credential-resolver tier 3).
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`

	// CORS
	CORSAllowedOrigins []string `env:"AIGUARD_CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Quota/rate-limit day-rollover timezone (IANA name, e.g. "UTC").
	RateLimitTimezone string `env:"AIGUARD_RATE_LIMIT_TIMEZONE" envDefault:"UTC"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
