package commands

import (
	"fmt"
	"net/url"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/VlasiukRV/realtime-transcription/internal/app"
	"github.com/VlasiukRV/realtime-transcription/internal/config"
	"github.com/VlasiukRV/realtime-transcription/internal/db"
	"github.com/VlasiukRV/realtime-transcription/internal/logging"
	"github.com/VlasiukRV/realtime-transcription/internal/playback"
	"github.com/VlasiukRV/realtime-transcription/internal/session"
	"github.com/VlasiukRV/realtime-transcription/internal/stream"
)

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg := getConfig()

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// --lang wins over the remembered selection.
	if cmd.Flags().Changed("lang") {
		if err := store.SetSelectedLanguage(cfg.Language); err != nil {
			return fmt.Errorf("save language: %w", err)
		}
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var player playback.Player
	switch {
	case cfg.Playback.Mute:
		player = playback.Discard{}
	case cfg.Playback.Backend == config.BackendSpeaker:
		player = playback.NewSpeakerPlayer()
	default:
		player = playback.NewExecPlayer(cfg.Playback.Command, "")
	}

	s := session.New(session.Options{
		ServerURL:       cfg.ServerURL,
		DefaultLanguage: cfg.Language,
		DefaultTheme:    cfg.Theme,
		RequestTimeout:  cfg.RequestTimeout.Std(),
		Stream: stream.Config{
			ReconnectInterval: cfg.Stream.ReconnectInterval.Std(),
			ConnectTimeout:    cfg.Stream.ConnectTimeout.Std(),
			CloseTimeout:      cfg.Stream.CloseTimeout.Std(),
		},
		Playback: playback.Config{
			PollInterval: cfg.Playback.PollInterval.Std(),
			PollAttempts: cfg.Playback.PollAttempts,
		},
		Player:    player,
		Registrar: client,
		Catalog:   client,
		Worker:    client,
		Settings:  store,
		Logger:    logger,
	})
	defer s.Dispose()

	logger.Infow("starting", "server", cfg.ServerURL, "lang", cfg.Language, "mute", cfg.Playback.Mute, "backend", cfg.Playback.Backend, "config", cfg.Path())

	p := tea.NewProgram(app.New(s, displayHost(cfg.ServerURL)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Errorw("tui exited", "error", err)
		return err
	}
	return nil
}

// newLogger builds the file logger, with Sentry reporting when a DSN is
// configured. The returned func flushes both.
func newLogger(cfg *config.Config) (*zap.SugaredLogger, func(), error) {
	var opts []zap.Option
	reporting, err := logging.InitSentry(cfg.SentryDSN, version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}
	if reporting {
		opts = append(opts, logging.SentryHook(sentry.CurrentHub()))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile, opts...)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() {
		_ = logger.Sync()
		if reporting {
			sentry.Flush(logging.FlushTimeout)
		}
	}, nil
}

func displayHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
