// Package channel manages the real-time alert push channel.
package channel

import (
	"context"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("channel manager closed")

// State represents the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Conn is one open full-duplex connection delivering one payload per message.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens connections to the alert endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// Handler receives decoded alerts in arrival order.
type Handler func(models.AlertRecord)

// Config configures the channel manager.
type Config struct {
	URL         string
	DialTimeout time.Duration // default: 10s

	// Reconnect settings. The defaults give a fixed 2s delay.
	ReconnectDelay      time.Duration
	MaxReconnectDelay   time.Duration
	ReconnectMultiplier float64
}

// DefaultConfig returns default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                 url,
		DialTimeout:         10 * time.Second,
		ReconnectDelay:      2 * time.Second,
		MaxReconnectDelay:   2 * time.Second,
		ReconnectMultiplier: 1,
	}
}

// Manager owns the push connection state machine.
// At most one connection is open at any time.
type Manager struct {
	config  Config
	dialer  Dialer
	handler Handler
	backoff *Backoff
	verbose bool

	onStateChange func(State)

	mu         sync.Mutex
	state      State
	desired    bool
	closed     bool
	gen        uint64 // bumped on every connect and explicit stop
	conn       Conn
	cancelDial context.CancelFunc
	timer      *time.Timer
	timerGen   uint64
	wg         sync.WaitGroup
}

// NewManager creates a manager that hands decoded alerts to handler.
func NewManager(config Config, dialer Dialer, handler Handler) *Manager {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = 2 * time.Second
	}
	if config.ReconnectMultiplier <= 0 {
		config.ReconnectMultiplier = 1
	}
	if handler == nil {
		handler = func(models.AlertRecord) {}
	}
	return &Manager{
		config:  config,
		dialer:  dialer,
		handler: handler,
		backoff: NewBackoffWithConfig(
			config.ReconnectDelay,
			config.MaxReconnectDelay,
			config.ReconnectMultiplier,
			0,
		),
	}
}

// SetVerbose enables verbose logging.
func (m *Manager) SetVerbose(v bool) {
	m.verbose = v
}

// OnStateChange registers a callback invoked on every state change, in
// order. It runs with the manager lock held: it must not block or call
// back into the manager.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Desired reports whether the manager should keep the channel connected.
func (m *Manager) Desired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desired
}

// ReconnectPending reports whether a reconnect attempt is scheduled.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Start marks the channel as wanted and connects unless a connection is
// already open or being opened.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.desired = true
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.backoff.Reset()
	m.connectLocked()
	m.mu.Unlock()
	return nil
}

// Stop closes the channel and suppresses reconnects until the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.desired = false
	m.cancelTimerLocked()
	changed := m.disconnectLocked()
	m.mu.Unlock()

	if changed {
		m.logf("stopped")
	}
}

// Close stops the channel for good and waits for its goroutines.
func (m *Manager) Close() error {
	m.Stop()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// connectLocked begins an asynchronous dial. Caller holds m.mu and has
// checked the state is disconnected.
func (m *Manager) connectLocked() {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
	m.cancelDial = cancel
	m.setStateLocked(StateConnecting)

	m.wg.Add(1)
	go m.run(ctx, cancel, gen)
}

// disconnectLocked tears down any open or pending connection.
func (m *Manager) disconnectLocked() bool {
	if m.state == StateDisconnected {
		return false
	}
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(StateDisconnected)
	return true
}

// run dials and then reads until the connection ends.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer m.wg.Done()

	m.logf("connecting to %s", redact(m.config.URL))
	conn, err := m.dialer.Dial(ctx, m.config.URL)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.cancelDial = nil
	if err != nil {
		m.setStateLocked(StateDisconnected)
		delay, scheduled := m.scheduleReconnectLocked()
		m.mu.Unlock()

		if scheduled {
			m.logf("connect failed: %v, retrying in %v", err, delay)
		} else {
			m.logf("connect failed: %v", err)
		}
		return
	}
	m.conn = conn
	m.backoff.Reset()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	m.logf("connected")
	m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		metrics.StreamMessagesTotal.Inc()

		rec, err := models.ParseAlert(data)
		if err != nil {
			metrics.StreamMalformedTotal.Inc()
			metrics.MalformedDroppedTotal.WithLabelValues("push").Inc()
			continue
		}
		if !m.current(gen) {
			return
		}
		m.handler(rec)
	}
}

// handleClosed reacts to an unexpected end of connection gen.
func (m *Manager) handleClosed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		// Stopped explicitly; the close was ours.
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(StateDisconnected)
	delay, scheduled := m.scheduleReconnectLocked()
	m.mu.Unlock()

	if scheduled {
		m.logf("connection lost: %v, reconnecting in %v", cause, delay)
	} else {
		m.logf("connection lost: %v", cause)
	}
}

// scheduleReconnectLocked arms a single reconnect timer if the channel is
// still wanted.
func (m *Manager) scheduleReconnectLocked() (time.Duration, bool) {
	if !m.desired || m.closed || m.timer != nil {
		return 0, false
	}
	delay := m.backoff.Next()
	m.timerGen++
	tg := m.timerGen
	m.timer = time.AfterFunc(delay, func() { m.reconnect(tg) })
	return delay, true
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

func (m *Manager) reconnect(tg uint64) {
	m.mu.Lock()
	if tg != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	if m.closed || !m.desired || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	metrics.StreamReconnectsTotal.Inc()
	m.connectLocked()
	m.mu.Unlock()

	m.logf("reconnecting (attempt %d)", m.backoff.Attempt())
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && !m.closed
}

// setStateLocked updates the state and notifies the callback.
func (m *Manager) setStateLocked(s State) {
	old := m.state
	m.state = s
	metrics.StreamState.Set(float64(s))
	if old != s && m.onStateChange != nil {
		m.onStateChange(s)
	}
}

func (m *Manager) logf(format string, args ...interface{}) {
	if m.verbose {
		log.Printf("[channel] "+format, args...)
	}
}

// redact strips the query string, which may carry the credential.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
