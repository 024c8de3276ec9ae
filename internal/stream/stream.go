// Package stream - Build Event Streaming
// Frames pipeline progress as newline-delimited JSON over a long-lived
// HTTP response. Every stream carries zero or more progress events and
// exactly one terminal complete event.
package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"dappforge/internal/pipeline"
)

// Event is one NDJSON frame.
type Event struct {
	Type      string                `json:"type"` // progress | status | complete
	Status    pipeline.Status       `json:"status,omitempty"`
	Message   string                `json:"message,omitempty"`
	Iteration int                   `json:"iteration,omitempty"`
	Result    *pipeline.BuildResult `json:"result,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Writer emits NDJSON events to an HTTP response, flushing after each
// frame. Safe for concurrent use; Complete is a one-shot.
type Writer struct {
	mu        sync.Mutex
	w         io.Writer
	flusher   http.Flusher
	completed bool
}

// NewWriter prepares the response for NDJSON streaming and returns the
// frame writer.
func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Progress emits one progress frame. Frames after Complete are dropped.
func (s *Writer) Progress(status pipeline.Status, message string, iteration int) {
	s.emit(Event{
		Type:      "progress",
		Status:    status,
		Message:   message,
		Iteration: iteration,
	})
}

// Status emits an informational status frame.
func (s *Writer) Status(message string) {
	s.emit(Event{Type: "status", Message: message})
}

// Complete emits the terminal frame. Exactly one complete frame is
// written per stream; subsequent calls are no-ops.
func (s *Writer) Complete(result pipeline.BuildResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return
	}
	s.completed = true
	s.write(Event{Type: "complete", Result: &result})
}

func (s *Writer) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return
	}
	s.write(ev)
}

func (s *Writer) write(ev Event) {
	ev.Timestamp = time.Now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
