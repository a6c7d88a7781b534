package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultKeepAliveInterval = 15 * time.Second

// sseWriter frames payloads as server-sent events. Writes are serialised so
// the keep-alive ticker can share the connection with the event loop.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	s := &sseWriter{w: w, flusher: flusher}
	s.flush()
	return s
}

// Send writes payload as one "data:" event.
func (s *sseWriter) Send(payload any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.write("data: " + string(bytes.TrimRight(buf.Bytes(), "\n")) + "\n\n")
}

// Done writes the end-of-stream sentinel.
func (s *sseWriter) Done() error {
	return s.write("data: [DONE]\n\n")
}

func (s *sseWriter) KeepAlive() error {
	return s.write(": keepalive\n\n")
}

// keepAlive writes a comment line every interval until ctx ends or the
// returned stop function is called.
func (s *sseWriter) keepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.KeepAlive(); err != nil {
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *sseWriter) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write([]byte(frame)); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flush()
	return nil
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
