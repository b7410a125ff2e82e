// Package config loads the daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.wpphub/config.toml.
type Config struct {
	// DataDir holds the databases, logs and the daemon lock. Empty means
	// ~/.wpphub.
	DataDir    string    `toml:"data_dir"`
	ListenAddr string    `toml:"listen_addr"`
	LogLevel   string    `toml:"log_level"`
	Pairing    Pairing   `toml:"pairing"`
	Reconnect  Reconnect `toml:"reconnect"`
	Dedup      Dedup     `toml:"dedup"`
	Device     Device    `toml:"device"`
	Reply      Reply     `toml:"reply"`
}

// Pairing bounds how long the façade waits for a pairing artifact.
type Pairing struct {
	QRTimeout   Duration `toml:"qr_timeout"`
	CodeTimeout Duration `toml:"code_timeout"`
}

// Reconnect configures the retry backoff.
type Reconnect struct {
	InitialDelay Duration `toml:"initial_delay"`
	MaxDelay     Duration `toml:"max_delay"`
	Multiplier   float64  `toml:"multiplier"`
}

// Dedup sizes the per-session inbound message cache.
type Dedup struct {
	Capacity int `toml:"capacity"`
}

// Device is what linked phones show for this hub.
type Device struct {
	OSName string `toml:"os_name"`
}

// Reply configures the default inbound reply handler.
type Reply struct {
	Enabled   bool     `toml:"enabled"`
	Keywords  []string `toml:"keywords"`
	ReplyText string   `toml:"reply_text"`
	Commands  bool     `toml:"commands"`
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":5000",
		LogLevel:   "info",
		Pairing: Pairing{
			QRTimeout:   Duration{60 * time.Second},
			CodeTimeout: Duration{60 * time.Second},
		},
		Reconnect: Reconnect{
			InitialDelay: Duration{2 * time.Second},
			MaxDelay:     Duration{time.Minute},
			Multiplier:   2,
		},
		Dedup:  Dedup{Capacity: 1000},
		Device: Device{OSName: "wpphub"},
		Reply:  Reply{Enabled: true, Commands: true},
	}
}

// Load reads config from the given path over the defaults. Returns an error
// if the file is missing or invalid.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Pairing.QRTimeout.Duration <= 0 || c.Pairing.CodeTimeout.Duration <= 0 {
		errs = append(errs, errors.New("pairing timeouts must be positive"))
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, errors.New("reconnect.multiplier must be at least 1"))
	}
	if c.Dedup.Capacity <= 0 {
		errs = append(errs, errors.New("dedup.capacity must be positive"))
	}
	return errors.Join(errs...)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
