package notify

import "context"

// Storage persists the store's table as a single opaque snapshot under one
// logical key. Implementations must ensure any directory or container
// prerequisites before the first write.
type Storage interface {
	// Read returns the last written snapshot, or ErrNotFound when nothing
	// has been persisted yet.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the snapshot.
	Write(ctx context.Context, data []byte) error
}
