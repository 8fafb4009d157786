// Package config loads the client configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/VlasiukRV/realtime-transcription/internal/db"
)

const (
	DefaultServerURL = "http://localhost:8000"
	DefaultLanguage  = "ru"
	DefaultTheme     = "dark"
	DefaultLogLevel  = "info"

	// DefaultConfigFile is the config filename under the app config dir.
	DefaultConfigFile = "config.yaml"
	appDir            = "captions"
)

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.BytesMarshaler.
func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// StreamConfig tunes the streaming connection.
type StreamConfig struct {
	ReconnectInterval Duration `yaml:"reconnect_interval"`
	ConnectTimeout    Duration `yaml:"connect_timeout"`
	CloseTimeout      Duration `yaml:"close_timeout"`
}

// Playback backends.
const (
	BackendExec    = "exec"
	BackendSpeaker = "speaker"
)

// PlaybackConfig tunes audio playback. Backend "exec" runs Command per
// clip; "speaker" decodes in process and plays on the default device.
type PlaybackConfig struct {
	Mute         bool     `yaml:"mute"`
	Backend      string   `yaml:"backend"`
	Command      []string `yaml:"command,omitempty"`
	PollInterval Duration `yaml:"poll_interval"`
	PollAttempts int      `yaml:"poll_attempts"`
}

// Config is the full client configuration.
type Config struct {
	ServerURL      string         `yaml:"server_url"`
	Language       string         `yaml:"language"`
	Theme          string         `yaml:"theme"`
	RequestTimeout Duration       `yaml:"request_timeout"`
	Stream         StreamConfig   `yaml:"stream"`
	Playback       PlaybackConfig `yaml:"playback"`
	DBPath         string         `yaml:"db_path"`
	LogLevel       string         `yaml:"log_level"`
	LogFile        string         `yaml:"log_file"`
	SentryDSN      string         `yaml:"sentry_dsn,omitempty"`

	path string
}

// Dir returns the app config directory.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appDir)
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), DefaultConfigFile)
}

// Load reads the config at path (DefaultPath when empty), applies
// environment overrides and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := &Config{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

func (c *Config) applyEnv(getenv func(string) string) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	c.ServerURL = env("CAPTIONS_SERVER_URL", c.ServerURL)
	c.Language = env("CAPTIONS_LANG", c.Language)
	c.LogLevel = env("CAPTIONS_LOG_LEVEL", c.LogLevel)
	c.LogFile = env("CAPTIONS_LOG_FILE", c.LogFile)
	c.SentryDSN = env("CAPTIONS_SENTRY_DSN", c.SentryDSN)
}

// Validate applies defaults and rejects out-of-range values.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("config: server_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("config: server_url must be http(s) or ws(s), got %q", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("config: server_url %q has no host", c.ServerURL)
	}

	if c.Language == "" {
		c.Language = DefaultLanguage
	}

	if c.Theme == "" {
		c.Theme = DefaultTheme
	}
	if c.Theme != "light" && c.Theme != "dark" {
		return fmt.Errorf("config: theme must be light or dark, got %q", c.Theme)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(Dir(), "captions.log")
	}
	if c.DBPath == "" {
		c.DBPath = db.DefaultDBPath()
	}

	durations := []struct {
		name string
		d    *Duration
		def  time.Duration
	}{
		{"request_timeout", &c.RequestTimeout, 10 * time.Second},
		{"stream.reconnect_interval", &c.Stream.ReconnectInterval, 5 * time.Second},
		{"stream.connect_timeout", &c.Stream.ConnectTimeout, 10 * time.Second},
		{"stream.close_timeout", &c.Stream.CloseTimeout, time.Second},
		{"playback.poll_interval", &c.Playback.PollInterval, 500 * time.Millisecond},
	}
	for _, d := range durations {
		if *d.d == 0 {
			*d.d = Duration(d.def)
		}
		if *d.d < 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.name, d.d.Std())
		}
	}

	if c.Playback.Backend == "" {
		c.Playback.Backend = BackendExec
	}
	if c.Playback.Backend != BackendExec && c.Playback.Backend != BackendSpeaker {
		return fmt.Errorf("config: playback.backend must be exec or speaker, got %q", c.Playback.Backend)
	}

	if c.Playback.PollAttempts == 0 {
		c.Playback.PollAttempts = 20
	}
	if c.Playback.PollAttempts < 0 {
		return fmt.Errorf("config: playback.poll_attempts must be >= 1, got %d", c.Playback.PollAttempts)
	}
	return nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
