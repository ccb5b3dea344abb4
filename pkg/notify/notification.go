package notify

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a background task.
type Status string

const (
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
)

// Valid reports whether the status is one of the recognized values.
func (s Status) Valid() bool {
	return s == StatusWorking || s == StatusCompleted
}

// Event types published by the store on mutation.
const (
	EventUpdated    = "updated"
	EventRead       = "read"
	EventRemoved    = "removed"
	EventClearedAll = "cleared_all"
)

// Notification is the core domain model: one record per subject,
// last write wins.
type Notification struct {
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Status    Status         `json:"status"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
	Unread    bool           `json:"unread"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Seq is the store-assigned write sequence. It breaks timestamp ties
	// deterministically during eviction (lower seq evicts first) and is
	// persisted so the ordering survives restarts.
	Seq uint64 `json:"seq"`
}

// Expired reports whether the record's age meets or exceeds ttl.
func (n *Notification) Expired(ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.UnixMilli()-n.Timestamp >= ttl.Milliseconds()
}

// older orders records for eviction: by timestamp, then by write sequence.
func older(a, b *Notification) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Seq < b.Seq
}

// NormalizeSubject canonicalizes a subject key. Subjects are project paths
// and must compare equal regardless of caller casing or stray whitespace.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
