package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the connection state of a Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	}
	return "unknown"
}

// Conn is the part of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// DialFunc opens a connection to url. It must honour ctx cancellation.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer returns a DialFunc backed by gorilla/websocket.
func WebSocketDialer(handshakeTimeout time.Duration) DialFunc {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, url string) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return conn, nil
	}
}

// Handler receives connection callbacks. All methods run on the program
// loop; the returned command (may be nil) is scheduled by the caller.
type Handler interface {
	OnOpen(lang string) tea.Cmd
	OnClose(deliberate bool) tea.Cmd
	OnMessage(frame []byte) tea.Cmd
	OnError(err error) tea.Cmd
}

// Config controls endpoint and retry behaviour.
type Config struct {
	BaseURL           string
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
	CloseTimeout      time.Duration
	Dial              DialFunc
}

const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultConnectTimeout    = 10 * time.Second
	DefaultCloseTimeout      = time.Second
)

// Messages produced by the manager's commands. Each carries the socket
// generation (or timer token) it belongs to so late results from a
// retired socket are ignored.
type (
	dialedMsg struct {
		gen  uint64
		conn Conn
	}
	dialFailedMsg struct {
		gen uint64
		err error
	}
	frameMsg struct {
		gen  uint64
		data []byte
	}
	readFailedMsg struct {
		gen uint64
		err error
	}
	closedMsg struct {
		gen uint64
	}
	reconnectTickMsg struct {
		token uint64
	}
)

// Manager keeps at most one logical connection for the selected language
// and reconnects after unexpected loss. It is not safe for concurrent use;
// call it only from the bubbletea Update loop.
type Manager struct {
	cfg     Config
	handler Handler
	logger  *zap.SugaredLogger

	state   State
	lang    string
	seq     uint64
	current uint64        // generation of the live socket, 0 if none
	closing uint64        // generation being closed deliberately
	retired chan struct{} // closed once the closing socket is torn down
	conn    Conn
	cancel  context.CancelFunc
	opened  int

	timerArmed bool
	timerToken uint64
}

// New creates a disconnected manager.
func New(cfg Config, h Handler, logger *zap.SugaredLogger) *Manager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = WebSocketDialer(cfg.ConnectTimeout)
	}
	return &Manager{cfg: cfg, handler: h, logger: logger}
}

// State returns the current connection state.
func (m *Manager) State() State { return m.state }

// Language returns the language of the last Open.
func (m *Manager) Language() string { return m.lang }

// Opened returns how many sockets have been created.
func (m *Manager) Opened() int { return m.opened }

// Reconnecting reports whether the reconnect timer is armed.
func (m *Manager) Reconnecting() bool { return m.timerArmed }

// Open starts connecting to the endpoint for lang. It does nothing when
// lang is empty or a socket is already connecting or connected.
func (m *Manager) Open(lang string) tea.Cmd {
	if lang == "" {
		m.logger.Warnw("open skipped: no language selected")
		return nil
	}
	if m.state == Connecting || m.state == Connected {
		m.logger.Debugw("open skipped: socket active", "state", m.state.String(), "lang", m.lang)
		return nil
	}
	endpoint, err := Endpoint(m.cfg.BaseURL, lang)
	if err != nil {
		m.logger.Errorw("open failed", "lang", lang, "error", err)
		return nil
	}

	// A socket still closing must be gone before the next dial.
	var retired <-chan struct{}
	if m.state == Closing {
		retired = m.retired
	}

	m.lang = lang
	m.seq++
	gen := m.seq
	m.current = gen
	m.opened++
	m.state = Connecting

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	m.cancel = cancel
	dial := m.cfg.Dial

	m.logger.Infow("connecting", "url", endpoint, "gen", gen)
	return func() tea.Msg {
		defer cancel()
		if retired != nil {
			select {
			case <-retired:
			case <-ctx.Done():
				return dialFailedMsg{gen: gen, err: ctx.Err()}
			}
		}
		conn, err := dial(ctx, endpoint)
		if err != nil {
			return dialFailedMsg{gen: gen, err: err}
		}
		return dialedMsg{gen: gen, conn: conn}
	}
}

// Close deliberately tears down the current socket. The reconnect timer
// is cancelled and will not be re-armed by the resulting closure.
func (m *Manager) Close(reason string) tea.Cmd {
	if m.state != Connecting && m.state != Connected {
		return nil
	}
	m.stopTimer()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	conn, gen := m.conn, m.current
	m.conn = nil
	m.current = 0
	m.closing = gen
	m.state = Closing
	// An earlier socket may still be closing when a dial is abandoned.
	prev := m.retired
	retired := make(chan struct{})
	m.retired = retired

	m.logger.Infow("closing", "reason", reason, "gen", gen)
	timeout := m.cfg.CloseTimeout
	return func() tea.Msg {
		if conn != nil {
			closeConn(conn, reason, timeout)
		}
		if prev != nil {
			select {
			case <-prev:
			case <-time.After(timeout):
			}
		}
		close(retired)
		return closedMsg{gen: gen}
	}
}

// Dispose closes any socket synchronously and stops the timer. Used on
// program exit; the manager must not be used afterwards.
func (m *Manager) Dispose() {
	m.stopTimer()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		closeConn(m.conn, "client exit", m.cfg.CloseTimeout)
		m.conn = nil
	}
	m.current = 0
	m.state = Disconnected
}

// Update handles the manager's own messages and ignores everything else.
func (m *Manager) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {

	case dialedMsg:
		if msg.gen != m.current {
			m.logger.Debugw("discarding stale connection", "gen", msg.gen)
			conn, timeout := msg.conn, m.cfg.CloseTimeout
			return func() tea.Msg {
				closeConn(conn, "superseded", timeout)
				return nil
			}
		}
		m.cancel = nil
		m.conn = msg.conn
		m.state = Connected
		m.stopTimer()
		m.logger.Infow("connected", "lang", m.lang, "gen", msg.gen)
		return tea.Batch(m.handler.OnOpen(m.lang), readCmd(msg.gen, msg.conn))

	case dialFailedMsg:
		if msg.gen != m.current {
			return nil
		}
		return m.lost(msg.err)

	case frameMsg:
		if msg.gen != m.current {
			return nil
		}
		return tea.Batch(m.handler.OnMessage(msg.data), readCmd(msg.gen, m.conn))

	case readFailedMsg:
		if msg.gen != m.current {
			return nil
		}
		if m.conn != nil {
			_ = m.conn.Close()
			m.conn = nil
		}
		return m.lost(msg.err)

	case closedMsg:
		if msg.gen != m.closing || m.state != Closing {
			return nil
		}
		m.closing = 0
		m.retired = nil
		m.state = Disconnected
		m.logger.Infow("closed", "gen", msg.gen)
		return m.handler.OnClose(true)

	case reconnectTickMsg:
		if !m.timerArmed || msg.token != m.timerToken {
			return nil
		}
		next := m.tick(msg.token)
		if m.state != Disconnected {
			return next
		}
		m.logger.Infow("reconnecting", "lang", m.lang)
		return tea.Batch(m.Open(m.lang), next)
	}
	return nil
}

// lost moves to Disconnected after an unexpected failure and arms the
// reconnect timer.
func (m *Manager) lost(err error) tea.Cmd {
	m.current = 0
	m.cancel = nil
	m.state = Disconnected

	var cmds []tea.Cmd
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		m.logger.Infow("server closed connection", "lang", m.lang, "error", err)
	} else {
		m.logger.Warnw("transport error", "lang", m.lang, "error", err)
		cmds = append(cmds, m.handler.OnError(err))
	}
	cmds = append(cmds, m.handler.OnClose(false), m.armTimer())
	return tea.Batch(cmds...)
}

func (m *Manager) armTimer() tea.Cmd {
	if m.timerArmed {
		return nil
	}
	m.timerArmed = true
	m.timerToken++
	return m.tick(m.timerToken)
}

func (m *Manager) stopTimer() {
	if m.timerArmed {
		m.timerArmed = false
		m.timerToken++
	}
}

func (m *Manager) tick(token uint64) tea.Cmd {
	return tea.Tick(m.cfg.ReconnectInterval, func(time.Time) tea.Msg {
		return reconnectTickMsg{token: token}
	})
}

// readCmd reads the next frame from conn. Only one read is outstanding
// per socket, so frames reach Update in delivery order.
func readCmd(gen uint64, conn Conn) tea.Cmd {
	return func() tea.Msg {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return readFailedMsg{gen: gen, err: err}
		}
		return frameMsg{gen: gen, data: data}
	}
}

func closeConn(conn Conn, reason string, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	_ = conn.Close()
}
