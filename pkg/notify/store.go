package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskbeacon/taskbeacon/pkg/logger"
)

// Publisher receives mutation events from the store. Satisfied by
// eventbus.Bus; a nil publisher disables event emission.
type Publisher interface {
	Publish(subject, eventType string, n *Notification)
}

const (
	defaultTTL      = 24 * time.Hour
	defaultMaxCount = 100
	defaultDebounce = 50 * time.Millisecond
)

// Store owns the canonical notification table keyed by normalized subject.
// All methods are safe for concurrent use. Mutations update the unread
// index under the same lock as the table, so the index is never stale
// relative to committed state.
type Store struct {
	storage   Storage
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	ttl      time.Duration
	maxCount int
	debounce time.Duration

	mu     sync.Mutex
	table  map[string]*Notification
	unread map[string]*Notification // subjects with unread && completed
	seq    uint64
	dirty  bool
	closed bool

	// pending is the shared completion for the next debounced write.
	// Every Save caller inside one debounce window waits on the same one.
	pending *pendingSave
	timer   *time.Timer
}

type pendingSave struct {
	done chan struct{}
	err  error
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the max record age enforced by Cleanup. Zero disables TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxCount sets the capacity enforced by Cleanup.
func WithMaxCount(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCount = n
		}
	}
}

// WithDebounce sets the save coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithPublisher sets the event publisher notified on mutations.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger for the Store.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store backed by the given storage.
func New(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:  storage,
		logger:   slog.Default(),
		now:      time.Now,
		ttl:      defaultTTL,
		maxCount: defaultMaxCount,
		debounce: defaultDebounce,
		table:    make(map[string]*Notification),
		unread:   make(map[string]*Notification),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates or overwrites the record for subject, marking it unread
// and stamping the current time. The timestamp never goes backwards for a
// given subject even if the wall clock does.
func (s *Store) Upsert(subject, message string, status Status, metadata map[string]any) *Notification {
	subject = NormalizeSubject(subject)

	s.mu.Lock()
	ts := s.now().UnixMilli()
	if prev, ok := s.table[subject]; ok && prev.Timestamp > ts {
		ts = prev.Timestamp
	}
	s.seq++
	n := &Notification{
		Subject:   subject,
		Message:   message,
		Status:    status,
		Timestamp: ts,
		Unread:    true,
		Metadata:  metadata,
		Seq:       s.seq,
	}
	s.table[subject] = n
	s.patchUnreadLocked(n)
	s.scheduleSaveLocked()
	out := *n
	s.mu.Unlock()

	s.publish(subject, EventUpdated, &out)
	return &out
}

// MarkRead clears the unread flag for subject. Returns whether a record
// existed.
func (s *Store) MarkRead(subject string) bool {
	subject = NormalizeSubject(subject)

	s.mu.Lock()
	n, ok := s.table[subject]
	if !ok {
		s.mu.Unlock()
		return false
	}
	n.Unread = false
	delete(s.unread, subject)
	s.scheduleSaveLocked()
	out := *n
	s.mu.Unlock()

	s.publish(subject, EventRead, &out)
	return true
}

// Remove deletes the record for subject. Returns whether a record existed.
func (s *Store) Remove(subject string) bool {
	subject = NormalizeSubject(subject)

	s.mu.Lock()
	_, ok := s.table[subject]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.table, subject)
	delete(s.unread, subject)
	s.scheduleSaveLocked()
	s.mu.Unlock()

	s.publish(subject, EventRemoved, nil)
	return true
}

// RemoveAll clears the table and index atomically and returns the number of
// records removed. The cleared_all event carries an empty subject, which
// listeners treat as a broadcast.
func (s *Store) RemoveAll() int {
	s.mu.Lock()
	count := len(s.table)
	clear(s.table)
	clear(s.unread)
	if count > 0 {
		s.scheduleSaveLocked()
	}
	s.mu.Unlock()

	if count > 0 {
		s.publish("", EventClearedAll, nil)
	}
	return count
}

// Get returns a copy of the current record for subject.
func (s *Store) Get(subject string) (*Notification, bool) {
	subject = NormalizeSubject(subject)

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.table[subject]
	if !ok {
		return nil, false
	}
	out := *n
	return &out, true
}

// GetUnread returns unread completed notifications, newest first. With a
// non-empty subject the result is at most one record, looked up in O(1)
// through the unread index.
func (s *Store) GetUnread(subject string) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subject != "" {
		if n, ok := s.unread[NormalizeSubject(subject)]; ok {
			return []Notification{*n}
		}
		return []Notification{}
	}

	out := make([]Notification, 0, len(s.unread))
	for _, n := range s.unread {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Cleanup removes TTL-expired records first, then enforces capacity through
// the eviction algorithm. It re-reads current state under the lock, so it is
// safe to call concurrently with upserts. Returns the number of records
// removed; a persistence failure is surfaced alongside the count.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.mu.Lock()
	now := s.now()
	removed := 0

	for subject, n := range s.table {
		if n.Expired(s.ttl, now) {
			delete(s.table, subject)
			delete(s.unread, subject)
			removed++
		}
	}

	for _, subject := range s.evictionVictimsLocked(len(s.table) - s.maxCount) {
		delete(s.table, subject)
		delete(s.unread, subject)
		removed++
	}

	if removed > 0 {
		s.dirty = true
	}
	s.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	return removed, s.SaveImmediate(ctx)
}

// Stats reports table and index sizes for the health surface.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Count:       len(s.table),
		UnreadCount: len(s.unread),
		MaxCount:    s.maxCount,
		TTL:         s.ttl,
	}
}

// Stats is a point-in-time snapshot of store occupancy.
type Stats struct {
	Count       int           `json:"count"`
	UnreadCount int           `json:"unread_count"`
	MaxCount    int           `json:"max_count"`
	TTL         time.Duration `json:"ttl"`
}

// Load replaces the in-memory table with the persisted snapshot. A missing
// snapshot is not an error: the store starts empty.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.storage.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	var table map[string]*Notification
	if err := json.Unmarshal(data, &table); err != nil {
		return errors.Join(ErrDecodeSnapshot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = make(map[string]*Notification, len(table))
	s.unread = make(map[string]*Notification, len(table))
	for subject, n := range table {
		subject = NormalizeSubject(subject)
		n.Subject = subject
		s.table[subject] = n
		s.patchUnreadLocked(n)
		if n.Seq > s.seq {
			s.seq = n.Seq
		}
	}
	return nil
}

// Save requests a debounced write and blocks until it completes. All callers
// whose requests fall into the same debounce window share a single
// underlying write and observe its one outcome.
func (s *Store) Save() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.scheduleSaveLocked()
	p := s.pending
	s.mu.Unlock()

	<-p.done
	return p.err
}

// SaveImmediate writes the current table synchronously, bypassing the
// debounce window.
func (s *Store) SaveImmediate(ctx context.Context) error {
	s.mu.Lock()
	data, err := s.encodeLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.storage.Write(ctx, data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the debounce timer and flushes dirty state. Safe to call once;
// subsequent Save calls return ErrStoreClosed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	p := s.pending
	s.pending = nil
	dirty := s.dirty
	s.mu.Unlock()

	var err error
	if dirty {
		err = s.SaveImmediate(ctx)
	}
	if p != nil {
		p.err = err
		close(p.done)
	}
	return err
}

// scheduleSaveLocked marks the table dirty and arms the debounce timer.
// The caller must hold s.mu.
func (s *Store) scheduleSaveLocked() {
	s.dirty = true
	if s.closed || s.pending != nil {
		return
	}
	s.pending = &pendingSave{done: make(chan struct{})}
	s.timer = time.AfterFunc(s.debounce, s.flush)
}

// flush performs the debounced write and resolves the shared completion.
// A failed background write keeps dirty set so the next mutation retries.
func (s *Store) flush() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.timer = nil
	if p == nil {
		s.mu.Unlock()
		return
	}
	if !s.dirty {
		// An intervening SaveImmediate already wrote everything the
		// waiters asked for.
		s.mu.Unlock()
		p.err = nil
		close(p.done)
		return
	}
	data, err := s.encodeLocked()
	s.dirty = false
	s.mu.Unlock()

	if err == nil {
		err = s.storage.Write(context.Background(), data)
	}
	if err != nil {
		s.logger.Error("background save failed",
			logger.Component("notify.store"),
			logger.Error(err),
		)
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
	p.err = err
	close(p.done)
}

func (s *Store) encodeLocked() ([]byte, error) {
	data, err := json.Marshal(s.table)
	if err != nil {
		return nil, errors.Join(ErrEncodeSnapshot, err)
	}
	return data, nil
}

// patchUnreadLocked keeps the unread index consistent with one record.
// The caller must hold s.mu.
func (s *Store) patchUnreadLocked(n *Notification) {
	if n.Unread && n.Status == StatusCompleted {
		s.unread[n.Subject] = n
	} else {
		delete(s.unread, n.Subject)
	}
}

func (s *Store) publish(subject, eventType string, n *Notification) {
	if s.publisher != nil {
		s.publisher.Publish(subject, eventType, n)
	}
}
