package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskbeacon/taskbeacon/pkg/eventbus"
	"github.com/taskbeacon/taskbeacon/pkg/logger"
	"github.com/taskbeacon/taskbeacon/pkg/notify"
)

// eventName is the SSE event name streamed for every payload, including the
// initial snapshot. Browser clients register a single listener for it.
const eventName = "notification"

// eventTypeInitial marks the snapshot frame sent right after admission.
const eventTypeInitial = "initial"

const (
	defaultGlobalLimit    = 100
	defaultPerSourceLimit = 5
	defaultKeepalive      = 30 * time.Second

	// Retry hints surfaced with rejections: global capacity drains slower
	// than a single source's connections.
	serviceRetryAfter = 30 * time.Second
	sourceRetryAfter  = 10 * time.Second
)

// EventSource is the subscription half of the event bus.
type EventSource interface {
	Subscribe(fn eventbus.Listener) func()
}

// NotificationSource supplies the current record for the initial snapshot
// frame. Satisfied by notify.Store.
type NotificationSource interface {
	Get(subject string) (*notify.Notification, bool)
}

// Transport is one streaming client's write side. WriteFrame and
// WriteComment must be safe for concurrent use: bus fan-out and keepalive
// run on different goroutines.
type Transport interface {
	// Prepare sets transport headers before the first frame.
	Prepare() error
	// WriteFrame writes one named event frame.
	WriteFrame(event string, data []byte) error
	// WriteComment writes a no-op frame that keeps intermediary proxies
	// from dropping the idle connection.
	WriteComment(text string) error
	// Closed signals client disconnect.
	Closed() <-chan struct{}
}

// Manager owns the lifecycle of streaming connections: admission control
// against global and per-source limits, per-connection subject filtering,
// periodic keepalive and exactly-once teardown.
type Manager struct {
	bus    EventSource
	store  NotificationSource
	logger *slog.Logger

	globalLimit    int
	perSourceLimit int
	keepalive      time.Duration

	mu          sync.Mutex
	globalCount int
	perSource   map[string]int

	done      chan struct{}
	closeOnce sync.Once
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithGlobalLimit caps concurrent connections across all sources.
func WithGlobalLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.globalLimit = n
		}
	}
}

// WithPerSourceLimit caps concurrent connections per source key.
func WithPerSourceLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.perSourceLimit = n
		}
	}
}

// WithKeepaliveInterval sets how often idle connections receive a comment frame.
func WithKeepaliveInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.keepalive = d
		}
	}
}

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// NewManager creates a connection manager fed by bus, using store for
// initial snapshot frames.
func NewManager(bus EventSource, store NotificationSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		bus:            bus,
		store:          store,
		logger:         slog.Default(),
		globalLimit:    defaultGlobalLimit,
		perSourceLimit: defaultPerSourceLimit,
		keepalive:      defaultKeepalive,
		perSource:      make(map[string]int),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Establish runs a connection from admission to teardown and blocks until
// the client disconnects, the context is cancelled or the manager shuts
// down. It returns a *Rejection when admission control refuses the
// connection; any other return is a normal close.
func (m *Manager) Establish(ctx context.Context, sourceKey, subject string, t Transport) error {
	subject = notify.NormalizeSubject(subject)

	if rej := m.admit(sourceKey); rej != nil {
		m.logger.Info("connection rejected",
			logger.Component("stream.manager"),
			logger.Source(sourceKey),
			slog.String("reason", string(rej.Reason)),
		)
		return rej
	}

	conn := &Connection{
		id:        uuid.New().String(),
		sourceKey: sourceKey,
		subject:   subject,
		manager:   m,
		logger:    m.logger,
	}
	defer conn.Teardown()

	if err := t.Prepare(); err != nil {
		return err
	}
	if err := m.sendSnapshot(t, subject); err != nil {
		return err
	}

	// Write failures inside the bus callback cannot return through
	// Establish, so they trip this signal instead.
	failed := make(chan struct{})
	var failOnce sync.Once

	unsub := m.bus.Subscribe(func(ev eventbus.Event) {
		// Events for other subjects drop here, before any write. An empty
		// subject is a broadcast (cleared_all).
		if ev.Subject != subject && ev.Subject != "" {
			return
		}
		if err := t.WriteFrame(eventName, ev.Payload); err != nil {
			failOnce.Do(func() { close(failed) })
		}
	})
	conn.setUnsubscribe(unsub)

	ticker := time.NewTicker(m.keepalive)
	conn.setKeepalive(ticker.Stop)

	m.logger.Info("connection established",
		logger.Component("stream.manager"),
		logger.ConnectionID(conn.id),
		logger.Source(sourceKey),
		logger.Subject(subject),
	)

	for {
		select {
		case <-t.Closed():
			return nil
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case <-failed:
			return nil
		case <-ticker.C:
			if err := t.WriteComment("keepalive"); err != nil {
				return nil
			}
		}
	}
}

// Close releases all blocked Establish calls. Safe to call repeatedly.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// Stats is consumed by the health endpoint.
type Stats struct {
	ActiveConnections int `json:"active_connections"`
	UniqueSources     int `json:"unique_sources"`
	GlobalLimit       int `json:"global_limit"`
	PerSourceLimit    int `json:"per_source_limit"`
}

// Stats reports current admission counters and configured limits.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		ActiveConnections: m.globalCount,
		UniqueSources:     len(m.perSource),
		GlobalLimit:       m.globalLimit,
		PerSourceLimit:    m.perSourceLimit,
	}
}

// admit attributes capacity to a new connection. The protocol is
// increment-first, validate-second, rollback-on-reject: the limit is checked
// against the counter's post-increment value, so concurrent attempts can
// never both observe room and both proceed past the limit.
func (m *Manager) admit(sourceKey string) *Rejection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.globalCount++
	if m.globalCount > m.globalLimit {
		m.globalCount--
		return &Rejection{Reason: ReasonServiceAtCapacity, RetryAfter: serviceRetryAfter}
	}

	m.perSource[sourceKey]++
	if m.perSource[sourceKey] > m.perSourceLimit {
		m.perSource[sourceKey]--
		if m.perSource[sourceKey] == 0 {
			delete(m.perSource, sourceKey)
		}
		m.globalCount--
		return &Rejection{Reason: ReasonTooManySourceConnections, RetryAfter: sourceRetryAfter}
	}

	return nil
}

// release returns a connection's capacity. Counters floor at zero as a
// guard against double-decrement bugs, and drained per-source entries are
// deleted so one-shot clients never grow the map without bound.
func (m *Manager) release(sourceKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.globalCount > 0 {
		m.globalCount--
	}
	if n, ok := m.perSource[sourceKey]; ok {
		if n <= 1 {
			delete(m.perSource, sourceKey)
		} else {
			m.perSource[sourceKey] = n - 1
		}
	}
}

// resetCounters clears admission state between tests.
func (m *Manager) resetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalCount = 0
	m.perSource = make(map[string]int)
}

func (m *Manager) sendSnapshot(t Transport, subject string) error {
	var n *notify.Notification
	if m.store != nil {
		if cur, ok := m.store.Get(subject); ok {
			n = cur
		}
	}
	payload, err := eventbus.BuildPayload(eventTypeInitial, n)
	if err != nil {
		return err
	}
	return t.WriteFrame(eventName, payload)
}
