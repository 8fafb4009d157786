package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/VlasiukRV/realtime-transcription/internal/api"
	"github.com/VlasiukRV/realtime-transcription/internal/playback"
	"github.com/VlasiukRV/realtime-transcription/internal/segment"
	"github.com/VlasiukRV/realtime-transcription/internal/stream"
)

// fakeConn delivers frames pushed by the test until it is closed.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) >= 2 {
		c.reason = string(data[2:])
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

type fakeDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*fakeConn
}

func (d *fakeDialer) dial(_ context.Context, url string) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newFakeConn()
	d.urls = append(d.urls, url)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) snapshot() ([]string, []*fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...), append([]*fakeConn(nil), d.conns...)
}

type fakeServer struct {
	mu      sync.Mutex
	reg     []string
	fail    map[string]error
	gate    map[string]chan struct{}
	langs   []string
	langErr error
}

func (f *fakeServer) RegisterLanguage(_ context.Context, lang string) (string, error) {
	f.mu.Lock()
	f.reg = append(f.reg, lang)
	gate := f.gate[lang]
	err := f.fail[lang]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return "Language " + lang + " added.", nil
}

func (f *fakeServer) Languages(context.Context) ([]string, error) {
	return f.langs, f.langErr
}

func (f *fakeServer) StartWorker(context.Context) (string, error) { return "Worker started!", nil }
func (f *fakeServer) StopWorker(context.Context) (string, error) {
	return "", &api.Error{Status: 500, Detail: "worker busy"}
}
func (f *fakeServer) WorkerState(context.Context) (api.WorkerState, error) {
	return api.WorkerState{Status: "running", Message: "Listening"}, nil
}

func (f *fakeServer) registered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reg...)
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSettings) get(k string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[k]
}

func (m *memSettings) set(k, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[k] = v
	return nil
}

func (m *memSettings) SelectedLanguage() (string, error) { return m.get("selectedLanguage"), nil }
func (m *memSettings) SetSelectedLanguage(l string) error { return m.set("selectedLanguage", l) }
func (m *memSettings) Theme() (string, error)             { return m.get("theme"), nil }
func (m *memSettings) SetTheme(t string) error            { return m.set("theme", t) }

type recordingPlayer struct {
	mu    sync.Mutex
	clips []string
}

func (p *recordingPlayer) Play(_ context.Context, clip []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, string(clip))
	return nil
}

// harness runs commands on goroutines and feeds their messages back into
// the session on the test goroutine, like the bubbletea program loop.
type harness struct {
	t      *testing.T
	s      *Session
	msgs   chan tea.Msg
	dialer *fakeDialer
	server *fakeServer
	store  *memSettings
	player *recordingPlayer
}

func newHarness(t *testing.T, stored map[string]string) *harness {
	t.Helper()
	if stored == nil {
		stored = map[string]string{}
	}
	h := &harness{
		t:      t,
		msgs:   make(chan tea.Msg, 256),
		dialer: &fakeDialer{},
		server: &fakeServer{fail: map[string]error{}, gate: map[string]chan struct{}{}, langs: []string{"en", "fr", "de"}},
		store:  &memSettings{values: stored},
		player: &recordingPlayer{},
	}
	h.s = New(Options{
		ServerURL:       "http://captions.test:8000",
		DefaultLanguage: "ru",
		Stream: stream.Config{
			ReconnectInterval: time.Hour,
			Dial:              h.dialer.dial,
		},
		Playback:  playback.Config{PollInterval: time.Millisecond},
		Player:    h.player,
		Registrar: h.server,
		Catalog:   h.server,
		Worker:    h.server,
		Settings:  h.store,
		Logger:    zap.NewNop().Sugar(),
	})
	t.Cleanup(h.s.Dispose)
	return h
}

func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		if msg := cmd(); msg != nil {
			h.msgs <- msg
		}
	}()
}

func (h *harness) handle(msg tea.Msg) {
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, cmd := range batch {
			h.run(cmd)
		}
		return
	}
	h.run(h.s.Update(msg))
}

// until processes messages until cond holds.
func (h *harness) until(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case msg := <-h.msgs:
			h.handle(msg)
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s (status %q, state %s)", what, h.s.Status(), h.s.ConnState())
		}
	}
}

// settle processes messages for a short while.
func (h *harness) settle() {
	deadline := time.After(50 * time.Millisecond)
	for {
		select {
		case msg := <-h.msgs:
			h.handle(msg)
		case <-deadline:
			return
		}
	}
}

func (h *harness) connectedTo(lang string) func() bool {
	return func() bool {
		return h.s.ConnState() == stream.Connected && h.s.Streaming() == lang
	}
}

func TestInitConnectsToPersistedLanguage(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "en"})

	h.run(h.s.Init())
	h.until("connected to en", h.connectedTo("en"))

	urls, _ := h.dialer.snapshot()
	if len(urls) != 1 || urls[0] != "ws://captions.test:8000/ws/transcribe/en" {
		t.Errorf("dialed = %v", urls)
	}
	if got := h.server.registered(); fmt.Sprint(got) != "[en]" {
		t.Errorf("registered = %v, want [en]", got)
	}
	if h.s.Status() != "Connected: en" {
		t.Errorf("status = %q, want %q", h.s.Status(), "Connected: en")
	}
}

func TestInitDefaultsLanguage(t *testing.T) {
	h := newHarness(t, nil)

	h.run(h.s.Init())
	h.until("connected to ru", h.connectedTo("ru"))

	if h.store.get("selectedLanguage") != "ru" {
		t.Errorf("persisted = %q, want %q", h.store.get("selectedLanguage"), "ru")
	}
}

func TestSelectLanguageFailureKeepsSocket(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "en"})
	h.run(h.s.Init())
	h.until("connected to en", h.connectedTo("en"))

	h.server.mu.Lock()
	h.server.fail["fr"] = fmt.Errorf("register language fr: %w", &api.Error{Status: 400, Detail: "Unsupported language"})
	h.server.mu.Unlock()

	h.run(h.s.SelectLanguage("fr"))
	h.until("failure status", func() bool { return h.s.Status() == "Unsupported language" })
	h.settle()

	urls, conns := h.dialer.snapshot()
	if len(urls) != 1 {
		t.Errorf("dialed = %v, want only en", urls)
	}
	if conns[0].isClosed() {
		t.Error("en socket should stay open")
	}
	if !h.connectedTo("en")() {
		t.Errorf("state = %s lang = %s, want connected en", h.s.ConnState(), h.s.Streaming())
	}
	if got := h.server.registered(); fmt.Sprint(got) != "[en fr]" {
		t.Errorf("registered = %v, want [en fr]", got)
	}
}

func TestSelectLanguageSuccessSwitchesSocket(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "en"})
	h.run(h.s.Init())
	h.until("connected to en", h.connectedTo("en"))

	h.run(h.s.SelectLanguage("fr"))
	h.until("connected to fr", h.connectedTo("fr"))

	urls, conns := h.dialer.snapshot()
	want := []string{
		"ws://captions.test:8000/ws/transcribe/en",
		"ws://captions.test:8000/ws/transcribe/fr",
	}
	if fmt.Sprint(urls) != fmt.Sprint(want) {
		t.Errorf("dialed = %v, want %v", urls, want)
	}
	if !conns[0].isClosed() {
		t.Error("en socket should be closed")
	}
	if conns[0].closeReason() != SwitchReason {
		t.Errorf("close reason = %q, want %q", conns[0].closeReason(), SwitchReason)
	}
	if conns[1].isClosed() {
		t.Error("fr socket should be open")
	}
	if h.store.get("selectedLanguage") != "fr" {
		t.Errorf("persisted = %q, want fr", h.store.get("selectedLanguage"))
	}
	if h.s.Reconnecting() {
		t.Error("deliberate switch must not arm the reconnect timer")
	}
}

func TestGenericRegistrationFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.server.fail["de"] = errors.New("connection refused")

	h.run(h.s.SelectLanguage("de"))
	h.until("failure status", func() bool { return h.s.Status() == "language registration failed" })

	if urls, _ := h.dialer.snapshot(); len(urls) != 0 {
		t.Errorf("dialed = %v, want none", urls)
	}
}

func TestSupersededRegistrationIgnored(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.server.gate["de"] = gate

	h.run(h.s.SelectLanguage("de"))
	h.run(h.s.SelectLanguage("fr"))
	h.until("connected to fr", h.connectedTo("fr"))

	close(gate)
	h.settle()

	if !h.connectedTo("fr")() {
		t.Errorf("streaming %s, want fr", h.s.Streaming())
	}
	if urls, _ := h.dialer.snapshot(); len(urls) != 1 {
		t.Errorf("dialed = %v, want only fr", urls)
	}
}

func TestCatalogFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.server.langErr = errors.New("404")

	h.run(h.s.Init())
	h.until("connected to ru", h.connectedTo("ru"))
	h.settle()

	if !h.s.CatalogFallback() {
		t.Error("expected fallback catalog")
	}
	var codes []string
	for _, l := range h.s.Languages() {
		codes = append(codes, l.Code)
	}
	if fmt.Sprint(codes) != "[en ru fr]" {
		t.Errorf("languages = %v, want [en ru fr]", codes)
	}

	h.run(h.s.SelectLanguage("fr"))
	h.until("connected to fr", h.connectedTo("fr"))
}

func TestCatalogLoaded(t *testing.T) {
	h := newHarness(t, nil)

	h.run(h.s.Init())
	h.until("catalog", func() bool { return len(h.s.Languages()) == 3 && h.s.Languages()[2].Code == "de" })

	if h.s.CatalogFallback() {
		t.Error("catalog should not be the fallback")
	}
}

func TestServiceMessageScenario(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "en"})
	h.run(h.s.Init())
	h.until("connected to en", h.connectedTo("en"))

	_, conns := h.dialer.snapshot()
	conns[0].frames <- []byte("Service Message: worker started")
	h.until("status", func() bool { return h.s.Status() == "worker started" })

	if len(h.s.Segments()) != 0 {
		t.Errorf("segments = %d, want 0", len(h.s.Segments()))
	}
	if h.s.Queue().Len() != 0 || h.s.Queue().Playing() != nil {
		t.Error("queue should be empty")
	}
}

func TestHolaScenario(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "es"})
	h.run(h.s.Init())
	h.until("connected to es", h.connectedTo("es"))

	var states []segment.PlaybackState
	h.s.SetListener(listenerFunc(func(seg *segment.Segment) { states = append(states, seg.State) }))

	clip := base64.StdEncoding.EncodeToString([]byte("ID3hola"))
	_, conns := h.dialer.snapshot()
	conns[0].frames <- []byte(`{"original_text":"Hello","translated_text":"Hola","audio_content":"` + clip + `"}`)

	h.until("played", func() bool {
		segs := h.s.Segments()
		return len(segs) == 1 && segs[0].State == segment.Played
	})

	if fmt.Sprint(states) != "[queued playing played]" {
		t.Errorf("states = %v", states)
	}
	if h.s.Queue().Len() != 0 {
		t.Errorf("queue len = %d, want 0", h.s.Queue().Len())
	}
	if fmt.Sprint(h.player.clips) != "[ID3hola]" {
		t.Errorf("clips = %v", h.player.clips)
	}
}

func TestPauseAndClear(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "en"})
	h.run(h.s.Init())
	h.until("connected to en", h.connectedTo("en"))
	_, conns := h.dialer.snapshot()

	conns[0].frames <- []byte(`{"translated_text":"one"}`)
	h.until("one segment", func() bool { return len(h.s.Segments()) == 1 })

	h.s.TogglePause()
	conns[0].frames <- []byte(`{"translated_text":"dropped"}`)
	conns[0].frames <- []byte("Service Message: still here")
	h.until("notice", func() bool { return h.s.Status() == "still here" })
	if len(h.s.Segments()) != 1 {
		t.Errorf("segments = %d, want 1 while paused", len(h.s.Segments()))
	}

	h.s.TogglePause()
	h.s.Clear()
	if len(h.s.Segments()) != 0 {
		t.Errorf("segments = %d, want 0 after clear", len(h.s.Segments()))
	}
}

func TestSkipAudioSilencesPendingDecode(t *testing.T) {
	h := newHarness(t, map[string]string{"selectedLanguage": "es"})
	h.run(h.s.Init())
	h.until("connected to es", h.connectedTo("es"))
	_, conns := h.dialer.snapshot()

	clip := base64.StdEncoding.EncodeToString([]byte("ID3late"))
	conns[0].frames <- []byte(`{"translated_text":"Hola","audio_content":"` + clip + `"}`)
	h.until("segment added", func() bool { return len(h.s.Segments()) == 1 })

	// The clip decode result has not been handled yet.
	h.s.SkipAudio()
	h.until("played", func() bool { return h.s.Segments()[0].State == segment.Played })
	h.settle()

	h.player.mu.Lock()
	defer h.player.mu.Unlock()
	if len(h.player.clips) != 0 {
		t.Errorf("clips = %v, want none after skip", h.player.clips)
	}
	if h.s.Segments()[0].HasAudio() {
		t.Error("skipped segment should not keep its audio")
	}
}

func TestToggleThemePersists(t *testing.T) {
	h := newHarness(t, map[string]string{"theme": "light"})
	if h.s.Theme() != ThemeLight {
		t.Fatalf("theme = %q, want light", h.s.Theme())
	}
	h.s.ToggleTheme()
	if h.s.Theme() != ThemeDark {
		t.Errorf("theme = %q, want dark", h.s.Theme())
	}
	if h.store.get("theme") != "dark" {
		t.Errorf("persisted theme = %q, want dark", h.store.get("theme"))
	}
}

func TestWorkerActions(t *testing.T) {
	h := newHarness(t, nil)

	h.run(h.s.Worker(WorkerStart))
	h.until("started", func() bool { return h.s.Status() == "Worker started!" })

	h.run(h.s.Worker(WorkerState))
	h.until("state", func() bool { return h.s.Status() == "Worker: running (Listening)" })

	h.run(h.s.Worker(WorkerStop))
	h.until("stop failure", func() bool { return h.s.Status() == "worker busy" })

	if _, err := RunWorker(context.Background(), h.server, "reboot"); err == nil || !strings.Contains(err.Error(), "reboot") {
		t.Errorf("err = %v, want unknown action", err)
	}
}

// listenerFunc records playback changes only.
type listenerFunc func(*segment.Segment)

func (f listenerFunc) StatusChanged(string)                 {}
func (f listenerFunc) SegmentAdded(*segment.Segment)        {}
func (f listenerFunc) PlaybackChanged(seg *segment.Segment) { f(seg) }
