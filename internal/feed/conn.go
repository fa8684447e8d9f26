// Package feed keeps the live order streams alive across failures: each
// connection manager probes before committing, applies a connect timeout,
// and degrades to an HTTP fallback poller when the socket cannot be held.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bunstack/internal/logging"
	"bunstack/internal/order"
	"bunstack/internal/ratelimit"
	"bunstack/internal/robustness"
)

// Default stream timings.
const (
	DefaultProbeTimeout   = 3 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultPollInterval   = 15 * time.Second
)

// ManagerConfig configures a connection manager for one stream.
type ManagerConfig struct {
	// Name identifies the stream in events and the registry.
	Name string

	// URL builds the connect URL. It is called on every connect attempt so
	// a credentialed stream always embeds the freshest access token.
	URL func() string

	// Fallback, when set, is the HTTP loader used whenever the stream
	// cannot be established or fails.
	Fallback *Loader

	// AuthRequired marks streams whose URL carries a credential. Terminal
	// session failure closes these with a login-required error.
	AuthRequired bool

	ProbeTimeout   time.Duration
	ConnectTimeout time.Duration
	PollInterval   time.Duration

	// Breaker gates the availability probe. A default breaker is created
	// when nil.
	Breaker *robustness.CircuitBreaker

	// DialBudget caps how fast connect attempts may be made. A default
	// budget is created when nil.
	DialBudget *ratelimit.Bucket
}

// StreamState is a point-in-time view of a managed stream.
type StreamState struct {
	Status     Status
	LastError  error
	Orders     []order.Order
	Total      int
	TotalToday int
}

// Manager keeps one stream alive. It never returns errors to the caller:
// every failure degrades to the fallback loader and is reported on the
// event channel.
type Manager struct {
	name           string
	url            func() string
	probeTimeout   time.Duration
	connectTimeout time.Duration
	breaker        *robustness.CircuitBreaker
	dials          *ratelimit.Bucket
	authRequired   bool
	events         chan<- Event
	fallback       *poller

	// onAuthError is installed by the registry to route token-rejected
	// streams into the session refresh path.
	onAuthError func(error)

	mu         sync.Mutex
	status     Status
	lastErr    error
	authClosed bool
	conn       *websocket.Conn
	done       chan struct{}
	last       Batch
}

// NewManager creates a manager emitting on the given event channel.
func NewManager(cfg ManagerConfig, events chan<- Event) *Manager {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Breaker == nil {
		cfg.Breaker = robustness.NewCircuitBreaker(3, 30*time.Second)
	}
	if cfg.DialBudget == nil {
		// A burst of ten dials, then one every five seconds.
		cfg.DialBudget = ratelimit.NewBucket(10, 0.2)
	}

	m := &Manager{
		name:           cfg.Name,
		url:            cfg.URL,
		probeTimeout:   cfg.ProbeTimeout,
		connectTimeout: cfg.ConnectTimeout,
		breaker:        cfg.Breaker,
		dials:          cfg.DialBudget,
		authRequired:   cfg.AuthRequired,
		events:         events,
		status:         StatusClosed,
	}
	if cfg.Fallback != nil {
		m.fallback = newPoller(cfg.Fallback, cfg.PollInterval, m.replace, m.fallbackFailed)
	}
	return m
}

// Connect establishes the stream. It is a no-op while the stream is already
// OPEN or CONNECTING, and never returns an error: failures degrade to the
// fallback loader and surface as events.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.status == StatusOpen || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	m.lastErr = nil
	m.authClosed = false
	m.mu.Unlock()
	m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusConnecting})

	if !m.dials.Allow() {
		m.fail(errors.New("dial budget exhausted"), false)
		return
	}

	url := m.url()

	// Availability probe: a throwaway connection attempt, gated by the
	// circuit breaker so a flapping endpoint is not hammered.
	if err := m.breaker.Execute(func() error { return m.probe(ctx, url) }); err != nil {
		m.fail(fmt.Errorf("availability probe failed: %w", err), false)
		return
	}

	conn, err := m.dial(ctx, url)
	if err != nil {
		m.fail(fmt.Errorf("stream connect failed: %w", err), false)
		return
	}

	m.mu.Lock()
	if m.status != StatusConnecting {
		// Disconnected while dialing.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.status = StatusOpen
	m.lastErr = nil
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusOpen})
	if m.fallback != nil {
		m.fallback.Stop()
	}
	logging.Info("stream open", "stream", m.name)

	go m.readLoop(conn, done)
}

// Disconnect tears the stream down: pending reads are released, the
// transport reference is dropped and the fallback poller stops. Repeated
// calls are safe no-ops.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.status == StatusClosed {
		m.mu.Unlock()
		if m.fallback != nil {
			m.fallback.Stop()
		}
		return
	}
	m.status = StatusClosing
	conn := m.conn
	m.conn = nil
	done := m.done
	m.done = nil
	m.mu.Unlock()
	m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusClosing})

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
	if m.fallback != nil {
		m.fallback.Stop()
	}

	m.mu.Lock()
	m.status = StatusClosed
	m.lastErr = nil
	m.mu.Unlock()
	m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusClosed})
}

// State returns the current stream state, including the latest wholesale
// batch.
func (m *Manager) State() StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]order.Order, len(m.last.Orders))
	copy(orders, m.last.Orders)
	return StreamState{
		Status:     m.status,
		LastError:  m.lastErr,
		Orders:     orders,
		Total:      m.last.Total,
		TotalToday: m.last.TotalToday,
	}
}

// Name returns the stream name.
func (m *Manager) Name() string {
	return m.name
}

// RequiresAuth reports whether the stream URL carries a credential.
func (m *Manager) RequiresAuth() bool {
	return m.authRequired
}

// ClosedByAuth reports whether the stream is closed because of a
// token-related error, which makes it eligible for reconnection after a
// successful refresh.
func (m *Manager) ClosedByAuth() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusClosed && m.authClosed
}

// MarkLoginRequired closes the stream with a terminal session error and
// preserves it. Used by the registry when the refresh path fails.
func (m *Manager) MarkLoginRequired(err error) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	done := m.done
	m.done = nil
	already := m.status == StatusClosed
	m.status = StatusClosed
	m.lastErr = err
	m.authClosed = true
	m.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
	if m.fallback != nil {
		m.fallback.Stop()
	}

	m.emit(Event{Stream: m.name, Kind: StreamError, Err: err, Auth: true})
	if !already {
		m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusClosed})
	}
}

// probe checks endpoint availability with a short throwaway connection.
func (m *Manager) probe(ctx context.Context, url string) error {
	dialer := &websocket.Dialer{HandshakeTimeout: m.probeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// dial opens the real connection with the connect timeout.
func (m *Manager) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: m.connectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	return conn, err
}

// readLoop delivers validated batches until the transport fails or the
// stream is deliberately closed.
func (m *Manager) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect, not a failure.
				return
			default:
			}
			m.fail(fmt.Errorf("stream read failed: %w", err), false)
			return
		}

		batch, err := Parse(data)
		if err != nil {
			if errors.Is(err, ErrTokenRejected) {
				m.fail(err, true)
				return
			}
			// A malformed frame is dropped; the next wholesale replace
			// self-heals whatever this frame would have shown.
			logging.Debug("ignoring malformed frame", "stream", m.name, "error", err)
			continue
		}

		m.replace(batch)
	}
}

// replace installs a validated batch as the new order collection. Both the
// stream and the fallback poller funnel through here.
func (m *Manager) replace(batch Batch) {
	m.mu.Lock()
	m.last = batch
	m.mu.Unlock()
	m.emit(Event{Stream: m.name, Kind: OrdersReplaced, Batch: &batch})
}

// fallbackFailed records the terminal fallback error. At this point neither
// the stream nor the HTTP path can produce the data set.
func (m *Manager) fallbackFailed(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	logging.Warn("fallback exhausted", "stream", m.name, "error", err)
	m.emit(Event{Stream: m.name, Kind: StreamError, Err: err})
}

// fail closes the stream after a failure. Token-related failures go to the
// session refresh path; everything else degrades to the fallback poller.
func (m *Manager) fail(err error, auth bool) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.done = nil
	m.status = StatusClosed
	m.lastErr = err
	m.authClosed = auth
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	logging.Warn("stream failed", "stream", m.name, "auth", auth, "error", err)
	m.emit(Event{Stream: m.name, Kind: StreamError, Err: err, Auth: auth})
	m.emit(Event{Stream: m.name, Kind: StatusChanged, Status: StatusClosed})

	if auth {
		if fn := m.onAuthError; fn != nil {
			fn(err)
		}
		return
	}
	if m.fallback != nil {
		m.fallback.Start()
	}
}

// emit delivers an event without blocking the stream goroutine.
func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		logging.Debug("dropping stream event, consumer not draining",
			"stream", m.name, "kind", ev.Kind.String())
	}
}
