package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort  string `env:"APP_PORT" envDefault:"8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SignInPlatform picks which Google client ID the provider is configured with.
	SignInPlatform        string `env:"SIGNIN_PLATFORM" envDefault:"web"`
	GoogleWebClientID     string `env:"GOOGLE_WEB_CLIENT_ID"`
	GoogleAndroidClientID string `env:"GOOGLE_ANDROID_CLIENT_ID"`
	GoogleIOSClientID     string `env:"GOOGLE_IOS_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL     string `env:"GOOGLE_REDIRECT_URL"`

	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey          string `env:"FIREBASE_API_KEY"`
	FirebaseMasterAPIKey    string `env:"FIREBASE_MASTER_API_KEY"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`

	// Empty RedisAddr keeps sessions in process memory.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Empty DatabaseDSN disables identity link records.
	DatabaseDSN string `env:"DATABASE_DSN"`

	OutcomeTimeout time.Duration `env:"SIGNIN_OUTCOME_TIMEOUT" envDefault:"30s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.GoogleWebClientID == "" && c.GoogleAndroidClientID == "" && c.GoogleIOSClientID == "" {
		return fmt.Errorf("config: at least one google client id is required")
	}
	if c.FirebaseAPIKey == "" {
		return fmt.Errorf("config: FIREBASE_API_KEY is required")
	}
	if c.OutcomeTimeout <= 0 {
		return fmt.Errorf("config: SIGNIN_OUTCOME_TIMEOUT must be positive")
	}
	return nil
}

// MasterAPIKey returns the key of the auth instance that holds backend sessions.
// It defaults to the primary project when no separate master is configured.
func (c Config) MasterAPIKey() string {
	if c.FirebaseMasterAPIKey != "" {
		return c.FirebaseMasterAPIKey
	}
	return c.FirebaseAPIKey
}
