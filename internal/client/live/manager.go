package live

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"petchat/internal/app/dto"
)

// Config identifies the live endpoint and the bearer token presented at
// handshake.
type Config struct {
	URL   string
	Token string
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns one live connection. It does not reconnect; a dropped
// connection stays dropped until a new Manager is opened.
type Manager struct {
	dialer  Dialer
	logger  *slog.Logger
	handler Handler

	mu        sync.Mutex
	conn      Conn
	connected bool
	closed    bool
	lastErr   string
	subs      []string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Open dials cfg.URL and returns the Manager whatever the outcome; a failed
// handshake is reported through handler as ConnectError.
func Open(ctx context.Context, cfg Config, handler Handler, opts ...Option) *Manager {
	m := &Manager{handler: handler}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = WebsocketDialer{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.handler == nil {
		m.handler = func(Event) {}
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	conn, err := m.dialer.Dial(ctx, cfg.URL, header)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.logger.Warn("live connect failed", "url", cfg.URL, "error", err)
		m.handler(ConnectError{Err: err})
		return m
	}
	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.mu.Unlock()
	m.logger.Debug("live connected", "url", cfg.URL)
	m.handler(Connected{})
	go m.readLoop(conn)
	return m
}

func (m *Manager) readLoop(conn Conn) {
	for {
		var env dto.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			m.dropped(err)
			return
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env dto.Envelope) {
	switch env.Event {
	case dto.EventChatMessage, dto.EventMessage:
		var msg dto.ChatMessage
		if err := env.Decode(&msg); err != nil {
			m.logger.Debug("live frame dropped", "event", env.Event, "error", err)
			return
		}
		if m.isClosed() {
			return
		}
		m.handler(MessageReceived{Name: env.Event, Message: msg})
	case dto.EventError:
		var e dto.LiveError
		_ = env.Decode(&e)
		m.logger.Info("live server error", "message", e.Message)
	default:
		m.logger.Debug("live event ignored", "event", env.Event)
	}
}

func (m *Manager) dropped(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.lastErr = err.Error()
	m.subs = nil
	m.mu.Unlock()
	m.logger.Warn("live connection dropped", "error", err)
	m.handler(Disconnected{Err: err})
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Send emits one envelope. It reports false without queueing anything when
// the Manager is not connected or the write fails.
func (m *Manager) Send(event string, payload any) bool {
	m.mu.Lock()
	conn, ok := m.conn, m.connected
	m.mu.Unlock()
	if !ok {
		return false
	}
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		m.logger.Warn("live send encode failed", "event", event, "error", err)
		return false
	}
	m.writeMu.Lock()
	err = conn.WriteJSON(env)
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Warn("live send failed", "event", event, "error", err)
		return false
	}
	return true
}

// JoinRoom subscribes to a room key such as "chat_<roomID>".
func (m *Manager) JoinRoom(key string) bool {
	if !m.Send(dto.EventJoinRoom, key) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s == key {
			return true
		}
	}
	m.subs = append(m.subs, key)
	return true
}

func (m *Manager) LeaveRoom(key string) bool {
	ok := m.Send(dto.EventLeaveRoom, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s == key {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			break
		}
	}
	return ok
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) Subscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subs...)
}

// Close shuts the connection once; later calls return nil. No events are
// delivered afterwards.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.connected = false
		m.subs = nil
		conn := m.conn
		m.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
