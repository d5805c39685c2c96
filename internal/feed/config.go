package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/abxfeed/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("feed: invalid config")

// Config describes the ABX endpoint and the recovery policy.
type Config struct {
	Host      string
	Port      int
	Transport session.Config
	// ResendInterval spaces consecutive resend exchanges. Zero disables pacing.
	ResendInterval time.Duration
	// MaxConnectAttempts bounds dials for the stream-all exchange. Resends always dial once.
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Host:               "127.0.0.1",
		Port:               3000,
		Transport:          session.DefaultConfig(),
		ResendInterval:     100 * time.Millisecond,
		MaxConnectAttempts: 1,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.ResendInterval < 0 {
		return fmt.Errorf("%w: negative resend interval %v", ErrInvalidConfig, c.ResendInterval)
	}
	if c.MaxConnectAttempts < 1 {
		return fmt.Errorf("%w: max connect attempts must be >= 1", ErrInvalidConfig)
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
