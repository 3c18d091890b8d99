package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level  slog.Level `yaml:"level"`
	Format string     `yaml:"format"`
}

func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Format, validation.In("text", "json")),
	)
}

type SerializerConfig struct {
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
	MaxBatch       int           `yaml:"max_batch"`
	LockTimeout    time.Duration `yaml:"lock_timeout"`
}

func (c *SerializerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CoalesceWindow, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBatch, validation.Required, validation.Min(1)),
		validation.Field(&c.LockTimeout, validation.Min(time.Duration(0))),
	)
}

type RollbackConfig struct {
	Validate bool `yaml:"validate"`
}

type PlatformConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether a platform endpoint is configured.
func (c *PlatformConfig) Enabled() bool {
	return c.URL != ""
}

func (c *PlatformConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

type HTTPConfig struct {
	Port  int    `yaml:"port"`
	Token string `yaml:"token,omitempty"`
}

// Address returns the HTTP listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type Config struct {
	Author     string           `yaml:"author"`
	Log        LogConfig        `yaml:"log"`
	Serializer SerializerConfig `yaml:"serializer"`
	Rollback   RollbackConfig   `yaml:"rollback"`
	Platform   PlatformConfig   `yaml:"platform"`
	HTTP       HTTPConfig       `yaml:"http"`
	Watch      WatchConfig      `yaml:"watch"`
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Author, validation.Required),
	); err != nil {
		return err
	}
	for _, v := range []validation.Validatable{&c.Log, &c.Serializer, &c.Platform, &c.HTTP} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Author: DefaultAuthor,
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: "text",
		},
		Serializer: SerializerConfig{
			MaxBatch: 64,
		},
		Platform: PlatformConfig{
			Timeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Port: 8099,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// LoadConfig reads path over the defaults, expanding ${VAR} references.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// NewLogger builds the process logger described by c.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
