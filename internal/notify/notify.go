package notify

import (
	"context"
	"errors"
	"time"
)

const (
	EventPatientCreated    = "patient_created"
	EventProcessingStarted = "processing_started"
	EventPatientProcessed  = "patient_processed"
	EventPromptsEvolved    = "prompts_evolved"
	EventFeedbackReceived  = "feedback_received"
)

// Event is the envelope every sink receives.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter delivers events on a best-effort basis.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

type Nop struct{}

func (Nop) Emit(context.Context, string, any) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
