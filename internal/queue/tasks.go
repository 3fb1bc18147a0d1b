package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypePatientProcess  = "patient:process"
	TypeMetricsSnapshot = "metrics:snapshot"
	TypePromptsEvolve   = "prompts:evolve"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Triggers recorded on a PatientProcessPayload.
const (
	TriggerCreate    = "create"
	TriggerReprocess = "reprocess"
	TriggerWebhook   = "webhook"
	TriggerBatch     = "batch"
)

type PatientProcessPayload struct {
	PatientID string `json:"patient_id"`
	Strategy  string `json:"strategy,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
}

type MetricsSnapshotPayload struct {
	WindowDays int `json:"window_days"`
}

// NewMetricsSnapshotTask builds the periodic snapshot task registered with the
// scheduler.
func NewMetricsSnapshotTask(windowDays int) (*asynq.Task, error) {
	data, err := json.Marshal(MetricsSnapshotPayload{WindowDays: windowDays})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeMetricsSnapshot, data, asynq.Queue(QueueLow), asynq.MaxRetry(1)), nil
}

func NewPromptsEvolveTask() *asynq.Task {
	return asynq.NewTask(TypePromptsEvolve, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}
