// internal/mockserver/sse.go
package mockserver

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"

	"rpchat/internal/stream"
)

type sseWriter struct {
	w http.ResponseWriter
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &sseWriter{w: w}
}

// Write sends one event as a data frame and flushes it
func (s *sseWriter) Write(ev stream.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return s.WriteRaw(string(data))
}

// WriteRaw sends a data frame with an arbitrary payload
func (s *sseWriter) WriteRaw(payload string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}
