package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("server = %q, want %q", cfg.ServerURL, DefaultServerURL)
	}
	if cfg.Language != "ru" {
		t.Errorf("language = %q, want %q", cfg.Language, "ru")
	}
	if cfg.Stream.ReconnectInterval.Std() != 5*time.Second {
		t.Errorf("reconnect = %v, want 5s", cfg.Stream.ReconnectInterval.Std())
	}
	if cfg.Stream.ConnectTimeout.Std() != 10*time.Second {
		t.Errorf("connect timeout = %v, want 10s", cfg.Stream.ConnectTimeout.Std())
	}
	if cfg.Playback.PollInterval.Std() != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want 500ms", cfg.Playback.PollInterval.Std())
	}
	if cfg.Playback.PollAttempts != 20 {
		t.Errorf("poll attempts = %d, want 20", cfg.Playback.PollAttempts)
	}
	if cfg.Playback.Backend != BackendExec {
		t.Errorf("backend = %q, want %q", cfg.Playback.Backend, BackendExec)
	}
	if cfg.LogFile == "" || cfg.DBPath == "" {
		t.Error("log file and db path should default")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server_url: https://captions.example.com
language: fr
theme: light
stream:
  reconnect_interval: 2s
  connect_timeout: 3s
playback:
  mute: true
  command: [mpv, --no-video, "{file}"]
  poll_interval: 250ms
  poll_attempts: 4
log_level: debug
`)
	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "https://captions.example.com" {
		t.Errorf("server = %q", cfg.ServerURL)
	}
	if cfg.Language != "fr" || cfg.Theme != "light" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Stream.ReconnectInterval.Std() != 2*time.Second {
		t.Errorf("reconnect = %v, want 2s", cfg.Stream.ReconnectInterval.Std())
	}
	if cfg.Stream.CloseTimeout.Std() != time.Second {
		t.Errorf("close timeout = %v, want default 1s", cfg.Stream.CloseTimeout.Std())
	}
	if !cfg.Playback.Mute {
		t.Error("mute should be set")
	}
	if len(cfg.Playback.Command) != 3 || cfg.Playback.Command[2] != "{file}" {
		t.Errorf("command = %v", cfg.Playback.Command)
	}
	if cfg.Playback.PollInterval.Std() != 250*time.Millisecond || cfg.Playback.PollAttempts != 4 {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Path() != path {
		t.Errorf("path = %q, want %q", cfg.Path(), path)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server_url: http://file:8000\nlanguage: en\n")
	env := map[string]string{
		"CAPTIONS_SERVER_URL": "http://env:9000",
		"CAPTIONS_LANG":       "de",
		"CAPTIONS_LOG_LEVEL":  "warn",
		"CAPTIONS_SENTRY_DSN": "https://key@sentry.example.com/1",
	}
	cfg, err := load(path, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "http://env:9000" {
		t.Errorf("server = %q, want %q", cfg.ServerURL, "http://env:9000")
	}
	if cfg.Language != "de" {
		t.Errorf("language = %q, want %q", cfg.Language, "de")
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q, want %q", cfg.LogLevel, "warn")
	}
	if cfg.SentryDSN == "" {
		t.Error("sentry dsn should come from env")
	}
}

func TestValidateRejects(t *testing.T) {
	bad := map[string]string{
		"scheme":    "server_url: ftp://host\n",
		"theme":     "theme: purple\n",
		"log level": "log_level: loud\n",
		"duration":  "stream:\n  reconnect_interval: -1s\n",
		"attempts":  "playback:\n  poll_attempts: -2\n",
		"backend":   "playback:\n  backend: alsa\n",
	}
	for name, body := range bad {
		if _, err := load(writeConfig(t, body), noEnv); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestBadDurationString(t *testing.T) {
	_, err := load(writeConfig(t, "request_timeout: soon\n"), noEnv)
	if err == nil {
		t.Error("expected parse error for bad duration")
	}
}

func TestMarshalDurations(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "reconnect_interval: 5s") {
		t.Errorf("yaml missing duration string:\n%s", out)
	}
}
