package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nfrund/lernsino/internal/multiplayer"
)

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "LERNSINO_"

// DefaultHubAddr is the listen address of the bundled hub.
const DefaultHubAddr = ":8080"

// Config holds all configuration for the application.
type Config struct {
	// HubURL is the websocket endpoint of the remote hub.
	HubURL string `env:"WS_URL" validate:"required,url,startswith=ws"`
	// ReconnectInterval is the fixed delay between reconnect attempts.
	ReconnectInterval time.Duration `env:"RECONNECT_INTERVAL" validate:"gt=0"`
	// MaxReconnectAttempts bounds the retries after a drop; 0 retries forever.
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" validate:"gte=0"`
	DialTimeout          time.Duration `env:"DIAL_TIMEOUT" validate:"gt=0"`
	// FallbackChannel names the same-device broadcast channel used without a hub.
	FallbackChannel string `env:"FALLBACK_CHANNEL" validate:"required"`
	// FallbackDir holds the spool files that carry the fallback channel
	// between processes on this device.
	FallbackDir string `env:"FALLBACK_DIR" validate:"required"`
	// HubAddr is the listen address of the bundled development hub.
	HubAddr string `env:"HUB_ADDR" validate:"required"`
}

// Default returns the configuration used when no environment is set. Client
// settings take the multiplayer package defaults.
func Default() *Config {
	return &Config{
		HubURL:            multiplayer.DefaultURL,
		ReconnectInterval: multiplayer.DefaultReconnectInterval,
		DialTimeout:       multiplayer.DefaultDialTimeout,
		FallbackChannel:   multiplayer.DefaultFallbackChannel,
		FallbackDir:       os.TempDir(),
		HubAddr:           DefaultHubAddr,
	}
}

// Load reads a .env file if present, then the process environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv parses the process environment over Default without touching .env files.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports the first offending fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %v", fields)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
