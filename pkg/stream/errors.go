package stream

import (
	"errors"
	"fmt"
	"time"
)

// RejectReason is the machine-readable cause of an admission rejection.
type RejectReason string

const (
	// ReasonServiceAtCapacity means the global connection limit is reached.
	ReasonServiceAtCapacity RejectReason = "service_at_capacity"
	// ReasonTooManySourceConnections means one source holds too many
	// concurrent connections.
	ReasonTooManySourceConnections RejectReason = "too_many_connections_for_source"
)

// Rejection is returned when admission control refuses a connection. It is
// transient: the client should retry after RetryAfter.
type Rejection struct {
	Reason     RejectReason
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("stream: connection rejected: %s (retry after %s)", r.Reason, r.RetryAfter)
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// ErrStreamingUnsupported is returned when the underlying response writer
// cannot flush, which server-sent events require.
var ErrStreamingUnsupported = errors.New("stream: response writer does not support flushing")
