// Package config loads the process configuration from the environment and
// owns logger setup. All recognized variables are declared on Config; boot
// fails fast on a missing or malformed value.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Environment names accepted in NODE_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is the full environment contract of the service.
type Config struct {
	Env  string `env:"NODE_ENV" env-default:"development"`
	Host string `env:"HOST" env-default:"localhost"`
	Port int    `env:"PORT" env-default:"3000"`

	CORS    bool `env:"CORS" env-default:"false"`
	Swagger bool `env:"SWAGGER" env-default:"true"`

	// IngestEnabled gates the scheduler and worker. When false the instance
	// is a read-only replica: it serves queries and fans out bus messages
	// but never polls sources.
	IngestEnabled bool `env:"INGEST_ENABLED" env-default:"false"`

	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	RedisURL    string `env:"REDIS_URL" env-required:"true"`

	// KMAAPIKey enables the weather-warning adapter when set.
	KMAAPIKey string `env:"KMA_API_KEY"`

	// PEWS simulation mode — both must be set, or neither.
	PEWSSimEqkID   string `env:"KMA_PEWS_SIM_EQK_ID"`
	PEWSSimStartAt string `env:"KMA_PEWS_SIM_START_AT"`
}

// Load reads an optional .env file and then the process environment.
// A missing .env is not an error; a missing required variable is. A .env
// that exists but cannot be read is warned about and otherwise ignored —
// the process environment is the source of truth.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to load env file, continuing with process environment",
				"path", envPath, "error", err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the cross-field rules cleanenv cannot express.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid NODE_ENV %q (want development, production or test)", c.Env)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if (c.PEWSSimEqkID == "") != (c.PEWSSimStartAt == "") {
		return fmt.Errorf("KMA_PEWS_SIM_EQK_ID and KMA_PEWS_SIM_START_AT must be set together")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PEWSSimEnabled reports whether earthquake simulation mode is active.
func (c *Config) PEWSSimEnabled() bool {
	return c.PEWSSimEqkID != "" && c.PEWSSimStartAt != ""
}
