package stream

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
)

// SSETransport writes text/event-stream frames to an http.ResponseWriter.
// A mutex serializes writes because bus fan-out and keepalive run on
// different goroutines.
type SSETransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
	closed  <-chan struct{}
	mu      sync.Mutex
}

// NewSSETransport wraps an HTTP exchange as a streaming transport. It
// returns ErrStreamingUnsupported when the server stack cannot flush
// (for example behind a buffering middleware).
func NewSSETransport(w http.ResponseWriter, r *http.Request) (*SSETransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSETransport{
		w:       w,
		flusher: flusher,
		closed:  r.Context().Done(),
	}, nil
}

// Prepare sets event-stream headers and flushes them so the client sees the
// connection as established before the first frame.
func (t *SSETransport) Prepare() error {
	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx) so frames reach the client promptly.
	h.Set("X-Accel-Buffering", "no")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.WriteHeader(http.StatusOK)
	t.flusher.Flush()
	return nil
}

// WriteFrame writes one named event frame and flushes it.
func (t *SSETransport) WriteFrame(event string, data []byte) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	// Multi-line payloads need one data: prefix per line.
	for _, line := range bytes.Split(data, []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(buf.Bytes()); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// WriteComment writes a comment frame, ignored by EventSource clients.
func (t *SSETransport) WriteComment(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintf(t.w, ": %s\n\n", text); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// Closed reports client disconnect through the request context.
func (t *SSETransport) Closed() <-chan struct{} {
	return t.closed
}
