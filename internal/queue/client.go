package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/vaultmind/internal/config"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
	}
}

// RedisOpt maps the shared Redis settings onto asynq's connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueuePatientProcess schedules one orchestration run. The worker holds the
// per-patient lock, so duplicate tasks for the same patient are harmless.
func (c *Client) EnqueuePatientProcess(ctx context.Context, payload PatientProcessPayload) error {
	if payload.PatientID == "" {
		return fmt.Errorf("enqueue %s: empty patient id", TypePatientProcess)
	}
	return c.enqueue(ctx, TypePatientProcess, payload,
		asynq.Queue(QueueCritical), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute))
}

func (c *Client) EnqueueMetricsSnapshot(ctx context.Context, windowDays int) error {
	return c.enqueue(ctx, TypeMetricsSnapshot, MetricsSnapshotPayload{WindowDays: windowDays},
		asynq.Queue(QueueLow), asynq.MaxRetry(1), asynq.Timeout(time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
