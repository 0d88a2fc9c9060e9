package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // DEFAULT_TZ must resolve in minimal containers

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken  string `envconfig:"BOT_TOKEN" required:"true" validate:"required"`
	DBPath    string `envconfig:"DB_PATH" default:"./data/notifier.db" validate:"required"`
	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"Europe/Moscow" validate:"required,timezone"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080" validate:"required"` // admin API + healthz

	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1m" validate:"gt=0"`
	AutoStart    bool          `envconfig:"AUTOSTART" default:"true"`
	Workers      int           `envconfig:"WORKERS" default:"4" validate:"min=1,max=64"`

	BreakerFailures uint32        `envconfig:"BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout  time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`
}

// Location returns the zone used for calendar math.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.DefaultTZ)
}

// Load reads a .env file when present, then environment variables into Config.
func Load() (Config, error) {
	// A missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
