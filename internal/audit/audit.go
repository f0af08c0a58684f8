package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event kinds recorded by the execution pipeline.
const (
	KindConsentCheck  = "consent.check"
	KindTaskCreated   = "task.created"
	KindTaskDenied    = "task.denied"
	KindTaskFailed    = "task.failed"
	KindMessageQueued = "message.queued"
	KindMessageDenied = "message.denied"
	KindMessageFailed = "message.failed"
)

// Event is one audit record. PatientRef/RecipientRef are FHIR-style
// references; identifiers stay unmasked here and sinks decide presentation.
type Event struct {
	Time         time.Time `json:"ts"`
	Kind         string    `json:"event"`
	PatientRef   string    `json:"patient_ref,omitempty"`
	RecipientRef string    `json:"recipient_ref,omitempty"`
	Action       string    `json:"action,omitempty"`
	PurposeOfUse string    `json:"purpose_of_use,omitempty"`
	Allowed      *bool     `json:"allowed,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	PolicyRefs   []string  `json:"policy_refs,omitempty"`
	ExternalID   string    `json:"external_id,omitempty"`
}

// Sink receives audit events. Implementations must be safe for concurrent
// use. Record errors are reported but the pipeline never aborts on them.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Record(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MemorySink keeps the most recent events in a bounded in-memory ring.
// It replaces the process-global audit list of earlier revisions so lifetime
// and visibility are owned by whoever constructed it.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	max    int
}

func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 512
	}
	return &MemorySink{max: max}
}

func (s *MemorySink) Record(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// LoggerSink emits every event as a structured log line.
type LoggerSink struct {
	Log zerolog.Logger
}

func (s LoggerSink) Record(_ context.Context, event Event) error {
	e := s.Log.Info().
		Time("ts", event.Time).
		Str("event", event.Kind)
	if event.PatientRef != "" {
		e = e.Str("patient_ref", event.PatientRef)
	}
	if event.RecipientRef != "" {
		e = e.Str("recipient_ref", event.RecipientRef)
	}
	if event.Action != "" {
		e = e.Str("action", event.Action)
	}
	if event.PurposeOfUse != "" {
		e = e.Str("purpose_of_use", event.PurposeOfUse)
	}
	if event.Allowed != nil {
		e = e.Bool("allowed", *event.Allowed)
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	if event.ExternalID != "" {
		e = e.Str("external_id", event.ExternalID)
	}
	e.Msg("audit")
	return nil
}

// MultiSink fans events out to every sink, returning the first error after
// all sinks ran.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
