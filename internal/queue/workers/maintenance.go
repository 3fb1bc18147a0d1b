package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/vaultmind/internal/feedback"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

type Maintainer interface {
	CaptureSnapshot(ctx context.Context, windowDays int) (*models.PerformanceSnapshot, error)
	EvolvePrompts(ctx context.Context) (*feedback.Evolution, error)
}

type SnapshotWorker struct {
	maintainer Maintainer
}

func NewSnapshotWorker(m Maintainer) *SnapshotWorker {
	return &SnapshotWorker{maintainer: m}
}

func (w *SnapshotWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.MetricsSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	snap, err := w.maintainer.CaptureSnapshot(ctx, payload.WindowDays)
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	slog.Info("performance snapshot captured",
		"processed", snap.TotalProcessed,
		"avg_accuracy", snap.AvgAccuracy,
		"prompt_version", snap.PromptVersion,
	)
	return nil
}

type EvolveWorker struct {
	maintainer Maintainer
}

func NewEvolveWorker(m Maintainer) *EvolveWorker {
	return &EvolveWorker{maintainer: m}
}

func (w *EvolveWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	ev, err := w.maintainer.EvolvePrompts(ctx)
	if err != nil {
		return fmt.Errorf("evolve prompts: %w", err)
	}
	slog.Info("scheduled prompt evolution", "action", ev.Action, "version", ev.Version)
	return nil
}
