package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment configuration
type Config struct {
	Port                 int           `envconfig:"PORT" default:"8080"`
	Driver               string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL          string        `envconfig:"DATABASE_URL"`
	CreateSchema         bool          `envconfig:"CREATE_SCHEMA" default:"true"`
	DropSchemaOnShutdown bool          `envconfig:"DROP_SCHEMA_ON_SHUTDOWN" default:"false"`
	DBConnectionTimeout  time.Duration `envconfig:"DB_CONNECTION_TIMEOUT" default:"5s"`
	PollDelay            time.Duration `envconfig:"POLL_DELAY" default:"1s"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat            string        `envconfig:"LOG_FORMAT" default:"json"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs basic validation.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %q", c.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.PollDelay <= 0 {
		return fmt.Errorf("invalid POLL_DELAY: %s", c.PollDelay)
	}
	if c.DBConnectionTimeout <= 0 {
		return fmt.Errorf("invalid DB_CONNECTION_TIMEOUT: %s", c.DBConnectionTimeout)
	}
	return nil
}
