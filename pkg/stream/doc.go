// Package stream manages long-lived streaming connections from browser
// tabs: admission control against global and per-source limits,
// per-connection subject filtering of bus events, periodic keepalive and
// idempotent teardown.
//
// Admission uses an increment-first, validate-second, rollback-on-reject
// protocol so concurrent connection attempts can never slip past a limit
// through a stale pre-check read. Rejections are transient and carry a
// machine-readable reason plus a retry hint.
//
//	manager := stream.NewManager(bus, store,
//		stream.WithGlobalLimit(100),
//		stream.WithPerSourceLimit(5),
//	)
//
//	// inside an HTTP handler:
//	transport, err := stream.NewSSETransport(w, r)
//	if err != nil { ... }
//	err = manager.Establish(r.Context(), clientip.GetIP(r), subject, transport)
package stream
