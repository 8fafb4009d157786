// Package session is the entry point the UI talks to. It owns the
// connection manager, the message dispatcher and the playback queue and
// coordinates language switches with the server.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/VlasiukRV/realtime-transcription/internal/api"
	"github.com/VlasiukRV/realtime-transcription/internal/dispatch"
	"github.com/VlasiukRV/realtime-transcription/internal/playback"
	"github.com/VlasiukRV/realtime-transcription/internal/segment"
	"github.com/VlasiukRV/realtime-transcription/internal/stream"
)

// SwitchReason is the close reason sent when the language changes.
const SwitchReason = "Lang switch"

// Registrar announces a language to the server before it is streamed.
type Registrar interface {
	RegisterLanguage(ctx context.Context, lang string) (string, error)
}

// Catalog lists the languages the server supports.
type Catalog interface {
	Languages(ctx context.Context) ([]string, error)
}

// WorkerControl starts, stops and inspects the server's transcriber.
type WorkerControl interface {
	StartWorker(ctx context.Context) (string, error)
	StopWorker(ctx context.Context) (string, error)
	WorkerState(ctx context.Context) (api.WorkerState, error)
}

// Settings persists choices across restarts.
type Settings interface {
	SelectedLanguage() (string, error)
	SetSelectedLanguage(lang string) error
	Theme() (string, error)
	SetTheme(theme string) error
}

// Listener observes everything the session shows to the user.
type Listener interface {
	StatusChanged(status string)
	SegmentAdded(seg *segment.Segment)
	PlaybackChanged(seg *segment.Segment)
}

// Language is one entry of the language picker.
type Language struct {
	Code string
	Name string
}

// DefaultLanguages is used when the catalog cannot be fetched.
var DefaultLanguages = []Language{
	{Code: "en", Name: "English"},
	{Code: "ru", Name: "Russian"},
	{Code: "fr", Name: "Français"},
}

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Worker actions.
const (
	WorkerStart = "start"
	WorkerStop  = "stop"
	WorkerState = "state"
)

// Options wires a session.
type Options struct {
	ServerURL       string
	DefaultLanguage string
	DefaultTheme    string
	RequestTimeout  time.Duration

	Stream   stream.Config // BaseURL defaults to ServerURL
	Playback playback.Config
	Player   playback.Player

	Registrar Registrar
	Catalog   Catalog
	Worker    WorkerControl
	Settings  Settings
	Listener  Listener
	Logger    *zap.SugaredLogger
}

type (
	catalogMsg struct {
		codes []string
		err   error
	}
	registeredMsg struct {
		seq     uint64
		lang    string
		message string
		err     error
	}
	workerMsg struct {
		action  string
		message string
		err     error
	}
)

// Session coordinates one client. Not safe for concurrent use; call it
// from the bubbletea Update loop.
type Session struct {
	opts     Options
	logger   *zap.SugaredLogger
	listener Listener

	queue      *playback.Queue
	dispatcher *dispatch.Dispatcher
	manager    *stream.Manager

	languages []Language
	fallback  bool
	selected  string
	theme     string
	regSeq    uint64
}

// New creates a session and loads persisted settings.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Player == nil {
		opts.Player = playback.Discard{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = api.DefaultTimeout
	}
	if opts.DefaultTheme == "" {
		opts.DefaultTheme = ThemeDark
	}
	if opts.Stream.BaseURL == "" {
		opts.Stream.BaseURL = opts.ServerURL
	}

	s := &Session{
		opts:      opts,
		logger:    opts.Logger,
		listener:  opts.Listener,
		languages: DefaultLanguages,
	}
	s.queue = playback.New(opts.Player, opts.Playback, opts.Logger.Named("playback"))
	s.queue.OnChange(s.playbackChanged)
	s.dispatcher = dispatch.New(s.queue, opts.Logger.Named("dispatch"))
	s.dispatcher.SetListener(s)
	s.manager = stream.New(opts.Stream, s.dispatcher, opts.Logger.Named("stream"))

	s.selected = opts.DefaultLanguage
	s.theme = opts.DefaultTheme
	s.loadSettings()
	return s
}

func (s *Session) loadSettings() {
	if s.opts.Settings == nil {
		return
	}
	if lang, err := s.opts.Settings.SelectedLanguage(); err != nil {
		s.logger.Warnw("read selected language", "error", err)
	} else if lang != "" {
		s.selected = lang
	}
	if theme, err := s.opts.Settings.Theme(); err != nil {
		s.logger.Warnw("read theme", "error", err)
	} else if theme == ThemeDark || theme == ThemeLight {
		s.theme = theme
	}
}

// SetListener replaces the listener.
func (s *Session) SetListener(l Listener) { s.listener = l }

// Init fetches the catalog and selects the persisted (or default) language.
func (s *Session) Init() tea.Cmd {
	return tea.Batch(s.fetchCatalog(), s.SelectLanguage(s.selected))
}

// SelectLanguage persists lang, registers it with the server and, once
// the server accepts it, replaces the current socket with one for lang.
// On failure the current socket is left alone.
func (s *Session) SelectLanguage(lang string) tea.Cmd {
	if lang == "" {
		s.logger.Warnw("select language: empty code")
		return nil
	}
	s.selected = lang
	if s.opts.Settings != nil {
		if err := s.opts.Settings.SetSelectedLanguage(lang); err != nil {
			s.logger.Errorw("persist selected language", "lang", lang, "error", err)
		}
	}

	if s.opts.Registrar == nil {
		return s.switchTo(lang)
	}

	s.regSeq++
	seq := s.regSeq
	reg, timeout := s.opts.Registrar, s.opts.RequestTimeout
	s.logger.Infow("registering language", "lang", lang)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		message, err := reg.RegisterLanguage(ctx, lang)
		return registeredMsg{seq: seq, lang: lang, message: message, err: err}
	}
}

func (s *Session) switchTo(lang string) tea.Cmd {
	closeCmd := s.manager.Close(SwitchReason)
	s.dispatcher.SetStatus(fmt.Sprintf("Connecting to %s...", hostOf(s.opts.ServerURL)))
	return tea.Batch(closeCmd, s.manager.Open(lang))
}

// Update routes msg to the session's components.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {

	case catalogMsg:
		s.applyCatalog(msg)
		return nil

	case registeredMsg:
		if msg.seq != s.regSeq {
			s.logger.Debugw("ignoring superseded registration", "lang", msg.lang)
			return nil
		}
		if msg.err != nil {
			s.logger.Warnw("language registration failed", "lang", msg.lang, "error", msg.err)
			s.dispatcher.SetStatus(failureText(msg.err, "language registration failed"))
			return nil
		}
		s.logger.Infow("language registered", "lang", msg.lang, "message", msg.message)
		return s.switchTo(msg.lang)

	case workerMsg:
		if msg.err != nil {
			s.logger.Warnw("worker control failed", "action", msg.action, "error", msg.err)
			s.dispatcher.SetStatus(failureText(msg.err, "worker "+msg.action+" failed"))
			return nil
		}
		s.dispatcher.SetStatus(msg.message)
		return nil
	}

	return tea.Batch(
		s.manager.Update(msg),
		s.dispatcher.Update(msg),
		s.queue.Update(msg),
	)
}

func (s *Session) fetchCatalog() tea.Cmd {
	if s.opts.Catalog == nil {
		s.fallback = true
		return nil
	}
	catalog, timeout := s.opts.Catalog, s.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		codes, err := catalog.Languages(ctx)
		return catalogMsg{codes: codes, err: err}
	}
}

func (s *Session) applyCatalog(msg catalogMsg) {
	if msg.err == nil && len(msg.codes) == 0 {
		msg.err = errors.New("empty language catalog")
	}
	if msg.err != nil {
		s.logger.Warnw("language catalog unavailable, using defaults", "error", msg.err)
		s.languages = DefaultLanguages
		s.fallback = true
		return
	}
	langs := make([]Language, 0, len(msg.codes))
	for _, code := range msg.codes {
		if code != "" {
			langs = append(langs, Language{Code: code, Name: code})
		}
	}
	s.languages = langs
	s.fallback = false
	s.logger.Infow("language catalog loaded", "count", len(langs))
}

// TogglePause flips whether incoming transcript frames are dropped.
func (s *Session) TogglePause() {
	s.dispatcher.SetPaused(!s.dispatcher.Paused())
}

// Clear empties the transcript and silences playback.
func (s *Session) Clear() {
	s.dispatcher.Clear()
	s.queue.SkipAll()
}

// SkipAudio silences playback, including clips still being decoded, and
// keeps the transcript.
func (s *Session) SkipAudio() {
	s.dispatcher.DropPendingAudio()
	s.queue.SkipAll()
}

// ToggleTheme switches between the dark and light theme and persists it.
func (s *Session) ToggleTheme() {
	if s.theme == ThemeDark {
		s.theme = ThemeLight
	} else {
		s.theme = ThemeDark
	}
	if s.opts.Settings != nil {
		if err := s.opts.Settings.SetTheme(s.theme); err != nil {
			s.logger.Errorw("persist theme", "theme", s.theme, "error", err)
		}
	}
}

// Worker runs a worker control action: WorkerStart, WorkerStop or WorkerState.
func (s *Session) Worker(action string) tea.Cmd {
	w := s.opts.Worker
	if w == nil {
		return nil
	}
	timeout := s.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		message, err := RunWorker(ctx, w, action)
		return workerMsg{action: action, message: message, err: err}
	}
}

// RunWorker performs a worker action and returns a line for the user.
func RunWorker(ctx context.Context, w WorkerControl, action string) (string, error) {
	switch action {
	case WorkerStart:
		return w.StartWorker(ctx)
	case WorkerStop:
		return w.StopWorker(ctx)
	case WorkerState:
		st, err := w.WorkerState(ctx)
		if err != nil {
			return "", err
		}
		if st.Message == "" {
			return fmt.Sprintf("Worker: %s", st.Status), nil
		}
		return fmt.Sprintf("Worker: %s (%s)", st.Status, st.Message), nil
	}
	return "", fmt.Errorf("unknown worker action %q", action)
}

// Dispose closes the socket and stops playback.
func (s *Session) Dispose() {
	s.manager.Dispose()
	s.queue.SkipAll()
}

// StatusChanged implements dispatch.Listener.
func (s *Session) StatusChanged(status string) {
	if s.listener != nil {
		s.listener.StatusChanged(status)
	}
}

// SegmentAdded implements dispatch.Listener.
func (s *Session) SegmentAdded(seg *segment.Segment) {
	if s.listener != nil {
		s.listener.SegmentAdded(seg)
	}
}

func (s *Session) playbackChanged(seg *segment.Segment) {
	if s.listener != nil {
		s.listener.PlaybackChanged(seg)
	}
}

// Status returns the status line.
func (s *Session) Status() string { return s.dispatcher.Status() }

// Segments returns the transcript, oldest first.
func (s *Session) Segments() []*segment.Segment { return s.dispatcher.Segments() }

// Languages returns the picker entries.
func (s *Session) Languages() []Language { return s.languages }

// CatalogFallback reports whether Languages is the built-in default set.
func (s *Session) CatalogFallback() bool { return s.fallback }

// Selected returns the most recently selected language.
func (s *Session) Selected() string { return s.selected }

// Streaming returns the language of the current or last socket.
func (s *Session) Streaming() string { return s.manager.Language() }

// Paused reports whether transcript frames are dropped.
func (s *Session) Paused() bool { return s.dispatcher.Paused() }

// Theme returns the current theme name.
func (s *Session) Theme() string { return s.theme }

// ConnState returns the connection state.
func (s *Session) ConnState() stream.State { return s.manager.State() }

// Reconnecting reports whether the reconnect timer is armed.
func (s *Session) Reconnecting() bool { return s.manager.Reconnecting() }

// Opened returns how many sockets have been created.
func (s *Session) Opened() int { return s.manager.Opened() }

// Queue returns the playback queue.
func (s *Session) Queue() *playback.Queue { return s.queue }

// failureText picks the server's detail for err, or fallback.
func failureText(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
