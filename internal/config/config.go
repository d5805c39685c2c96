package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/abxfeed/internal/feed"
	"github.com/danmuck/abxfeed/internal/logging"
)

const DefaultOutput = "output.json"

var ErrInvalid = errors.New("config: invalid")

// Config is the full client configuration after file and flag overlays.
type Config struct {
	Feed            feed.Config
	Output          string
	Log             logging.Config
	MetricsTextfile string
}

type fileConfig struct {
	Host               string        `toml:"host"`
	Port               int           `toml:"port"`
	Output             string        `toml:"output"`
	ResendInterval     string        `toml:"resend_interval"`
	MaxConnectAttempts int           `toml:"max_connect_attempts"`
	ConnectTimeout     string        `toml:"connect_timeout"`
	ReadTimeout        string        `toml:"read_timeout"`
	WriteTimeout       string        `toml:"write_timeout"`
	Log                fileLogConfig `toml:"log"`
	Metrics            struct {
		Textfile string `toml:"textfile"`
	} `toml:"metrics"`
}

type fileLogConfig struct {
	Level      string `toml:"level"`
	Timestamp  bool   `toml:"timestamp"`
	NoColor    bool   `toml:"no_color"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

func Default() Config {
	return Config{
		Feed:   feed.DefaultConfig(),
		Output: DefaultOutput,
		Log:    logging.DefaultConfig(logging.ProfileRuntime),
	}
}

// Load overlays the keys defined in the TOML file at path onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalid, path, undecoded)
	}

	if meta.IsDefined("host") {
		cfg.Feed.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Feed.Port = raw.Port
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Feed.MaxConnectAttempts = raw.MaxConnectAttempts
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"resend_interval", raw.ResendInterval, &cfg.Feed.ResendInterval},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Feed.Transport.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Feed.Transport.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Feed.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("%w: log.level %q", ErrInvalid, raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}
	if meta.IsDefined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.FileMaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.FileMaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("metrics", "textfile") {
		cfg.MetricsTextfile = strings.TrimSpace(raw.Metrics.Textfile)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Output) == "" {
		return fmt.Errorf("%w: missing output path", ErrInvalid)
	}
	if err := cfg.Feed.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
