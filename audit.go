package goOnboard

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEvent is one recorded engine decision. It never carries the
// verification code or the email address.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher goroutine. Emit is
// never called concurrently by the engine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc func(ctx context.Context, event AuditEvent)

func (f AuditSinkFunc) Emit(ctx context.Context, event AuditEvent) { f(ctx, event) }

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// LogSink writes each event as a structured log entry. Failed decisions are
// logged at Warn, the rest at Info.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink returns a LogSink. A nil logger falls back to the standard logger.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	fields := logrus.Fields{
		"audit":   event.EventType,
		"success": event.Success,
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.Origin != "" {
		fields["origin"] = event.Origin
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta."+k] = v
	}

	entry := s.log.WithFields(fields)
	if event.Success {
		entry.Info("audit")
		return
	}
	entry.Warn("audit")
}

// JSONWriterSink writes one JSON object per line to w. Write errors are
// dropped; an audit trail must not fail the request that produced it.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// MultiSink fans each event out to every sink in order.
type MultiSink []AuditSink

func (m MultiSink) Emit(ctx context.Context, event AuditEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}
