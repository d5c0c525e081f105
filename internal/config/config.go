// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string `env:"SCHAT_ADDR,default=:2222" validate:"required"`
	HostKeyPath    string `env:"SCHAT_HOST_KEY,default=configs/ssh_host_key"`
	AuthorizedKeys string `env:"SCHAT_AUTHORIZED_KEYS"`

	WebSocketAddr  string `env:"SCHAT_WS_ADDR"`
	WebSocketToken string `env:"SCHAT_WS_TOKEN" validate:"required_with=WebSocketAddr"`

	OutboxSize        int           `env:"SCHAT_OUTBOX_SIZE,default=64" validate:"min=1"`
	DeliveryTimeout   time.Duration `env:"SCHAT_DELIVERY_TIMEOUT,default=250ms" validate:"min=0"`
	MaxRoomNameLength int           `env:"SCHAT_MAX_ROOM_NAME_LENGTH,default=32" validate:"min=1,max=256"`
	MaxLineLength     int           `env:"SCHAT_MAX_LINE_LENGTH,default=512" validate:"min=1"`
	RetainEmptyRooms  bool          `env:"SCHAT_RETAIN_EMPTY_ROOMS,default=false"`
	RateBurst         int           `env:"SCHAT_RATE_BURST,default=10" validate:"min=0"`
	RateInterval      time.Duration `env:"SCHAT_RATE_INTERVAL,default=1s" validate:"min=0"`

	LogLevel string `env:"SCHAT_LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

var validate = validator.New()

// Override adjusts a loaded configuration before it is validated.
type Override func(*Config)

// Load reads envFile when it exists, then the process environment, applies
// overrides in order and validates the result.
// Variables already set in the environment win over the file.
func Load(envFile string, overrides ...Override) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
