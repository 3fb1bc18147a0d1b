package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/processing"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

type Processor interface {
	Process(ctx context.Context, req processing.Request) (*processing.Result, error)
}

type PatientWorker struct {
	processor Processor
}

func NewPatientWorker(p Processor) *PatientWorker {
	return &PatientWorker{processor: p}
}

// ProcessTask runs the orchestration for one queued patient. Bad input and
// unknown patients are not retried; an in-flight run is, since the other
// run may still fail. A run whose outcome could not be written completes:
// retrying it would repeat the billed tiers to redo one write.
func (w *PatientWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PatientProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing queued patient", "patient_id", payload.PatientID, "trigger", payload.Trigger)

	res, err := w.processor.Process(ctx, processing.Request{
		PatientID: payload.PatientID,
		Strategy:  payload.Strategy,
	})
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("process patient %s: %w: %w", payload.PatientID, err, asynq.SkipRetry)
	case err != nil:
		return fmt.Errorf("process patient %s: %w", payload.PatientID, err)
	}

	if !res.Persisted {
		slog.Warn("queued patient processed without persisting outcome",
			"patient_id", payload.PatientID,
			"tier", res.Outcome.Tier,
		)
	}
	return nil
}
