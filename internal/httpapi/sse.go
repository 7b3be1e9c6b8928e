package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

// sseTransport adapts a session.Transport onto one long-lived SSE
// response. Send writes one "data: <json>\n\n" frame and flushes
// immediately so the client observes pushes without
// buffering delay.
type sseTransport struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
	done    chan struct{}
}

func newSSETransport(w http.ResponseWriter) (*sseTransport, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &sseTransport{w: w, flusher: flusher, done: make(chan struct{})}, nil
}

func (t *sseTransport) Send(msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("sse transport closed")
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := t.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := t.w.Write(encoded); err != nil {
		return err
	}
	if _, err := t.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// Done reports when Close has been called, the cue for the GET /mcp
// handler goroutine to return and let the HTTP server reclaim the
// connection.
func (t *sseTransport) Done() <-chan struct{} {
	return t.done
}
