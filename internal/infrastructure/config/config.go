package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8085"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// InternalKeyHash is the bcrypt hash of the pre-shared key guarding the
	// /internal endpoints. Empty disables them.
	InternalKeyHash string `env:"INTERNAL_KEY_HASH"`

	Provider ProviderConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Redis    RedisConfig
}

// ProviderConfig points at the external identity provider. URL and API key
// left empty put the client into its NotConfigured fail-fast mode.
type ProviderConfig struct {
	URL       string        `env:"PROVIDER_URL"`
	APIKey    string        `env:"PROVIDER_API_KEY"`
	JWTSecret string        `env:"PROVIDER_JWT_SECRET"`
	Timeout   time.Duration `env:"PROVIDER_TIMEOUT, default=10s"`
}

type StoreConfig struct {
	URL            string        `env:"PROFILE_STORE_URL, default=http://localhost:8086"`
	Timeout        time.Duration `env:"PROFILE_STORE_TIMEOUT, default=10s"`
	RetryAttempts  int           `env:"PROFILE_STORE_RETRY_ATTEMPTS, default=3"`
	InitialBackoff time.Duration `env:"PROFILE_STORE_RETRY_BACKOFF, default=1s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=authcore"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
