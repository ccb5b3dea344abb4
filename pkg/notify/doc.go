// Package notify implements the authoritative notification store: one
// record per project subject, a derived unread index for O(1) unread
// queries, TTL and capacity eviction, and debounced persistence to a
// pluggable snapshot storage (local file or Redis).
//
// The store is the single writer of notification state. Mutations publish
// events through an optional Publisher so streaming consumers stay decoupled
// from storage concerns.
//
// Basic usage:
//
//	store := notify.New(notify.NewFileStorage("/var/lib/taskbeacon/notifications.json"),
//		notify.WithTTL(24*time.Hour),
//		notify.WithMaxCount(100),
//	)
//	if err := store.Load(ctx); err != nil {
//		// handle error
//	}
//
//	store.Upsert("~/projects/api", "build finished", notify.StatusCompleted, nil)
//	unread := store.GetUnread("")
//
// Repeated mutations inside the debounce window collapse into a single
// snapshot write; Save blocks until that shared write completes.
package notify
