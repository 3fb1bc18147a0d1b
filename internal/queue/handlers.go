package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	r := &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
	r.mux.Use(logTask)
	return r
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if err != nil {
			slog.Error("task failed", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}
		slog.Info("task completed", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
}
