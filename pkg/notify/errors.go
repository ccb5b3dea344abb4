package notify

import "errors"

var (
	// ErrNotFound is returned by storage backends when no snapshot has been
	// written yet. The store treats it as an empty table, not a failure.
	ErrNotFound = errors.New("notify: snapshot not found")

	// ErrStoreClosed is returned when operations are attempted after Close.
	ErrStoreClosed = errors.New("notify: store is closed")

	// ErrEncodeSnapshot is returned when the table cannot be serialized.
	ErrEncodeSnapshot = errors.New("notify: failed to encode snapshot")

	// ErrDecodeSnapshot is returned when a persisted snapshot cannot be parsed.
	ErrDecodeSnapshot = errors.New("notify: failed to decode snapshot")
)
