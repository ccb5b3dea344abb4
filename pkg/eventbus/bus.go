package eventbus

import (
	"log/slog"
	"sync"

	"github.com/taskbeacon/taskbeacon/pkg/logger"
	"github.com/taskbeacon/taskbeacon/pkg/notify"
)

// Event is the envelope fanned out to listeners. Payload is the canonical
// JSON representation encoded exactly once per publish, so listener count
// never multiplies serialization cost.
type Event struct {
	Subject      string
	Type         string
	Payload      []byte
	Notification *notify.Notification
}

// Listener receives published events. Listeners run synchronously on the
// publisher's goroutine, in registration order.
type Listener func(Event)

type entry struct {
	id uint64
	fn Listener
}

// Bus is a process-wide publish/subscribe channel decoupling the
// notification store from streaming consumers. All methods are safe for
// concurrent use.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners []entry
	logger    *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger for the Bus.
func WithLogger(log *slog.Logger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.logger = log
		}
	}
}

// New creates an empty Bus.
func New(opts ...BusOption) *Bus {
	b := &Bus{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener and returns a capability that removes
// exactly that listener. Calling the returned function more than once is a
// no-op.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(id)
		})
	}
}

// Publish builds the canonical payload for the event, serializes it once,
// and delivers the envelope to every listener in registration order. A
// panicking listener is isolated: it is logged and the remaining listeners
// still receive the event.
func (b *Bus) Publish(subject, eventType string, n *notify.Notification) {
	payload, err := BuildPayload(eventType, n)
	if err != nil {
		b.logger.Error("failed to encode event payload",
			logger.Component("eventbus"),
			logger.Subject(subject),
			logger.EventType(eventType),
			logger.Error(err),
		)
		return
	}

	ev := Event{
		Subject:      subject,
		Type:         eventType,
		Payload:      payload,
		Notification: n,
	}

	b.mu.RLock()
	snapshot := make([]entry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, e := range snapshot {
		b.deliver(e, ev)
	}
}

// ListenerCount returns the number of registered listeners. Health checks
// compare it against active connection counts to detect subscription leaks.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Bus) deliver(e entry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				logger.Component("eventbus"),
				logger.Subject(ev.Subject),
				logger.EventType(ev.Type),
				slog.Any("panic", r),
			)
		}
	}()
	e.fn(ev)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.listeners {
		if e.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}
