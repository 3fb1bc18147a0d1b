package models

import (
	"time"
)

const (
	TierVaultFunction = "vault_function"
	TierDirectLLM     = "direct_llm"
	TierStatic        = "static_fallback"
)

// Outcome is the canonical result of a processing run, whichever tier produced it.
type Outcome struct {
	Success       bool          `json:"success"`
	Summary       string        `json:"summary"`
	Tokens        TokenUsage    `json:"tokens_used"`
	CostUSD       float64       `json:"cost_usd"`
	Model         string        `json:"claude_model"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"processing_duration_ms"`
	Tier          string        `json:"tier"`
	Degraded      bool          `json:"degraded"`
	PromptVersion string        `json:"prompt_version"`
	Error         string        `json:"error,omitempty"`
}

// Charge is one billed processing run. Re-processing appends a new charge.
type Charge struct {
	ID            string     `json:"id" db:"id"`
	PatientID     string     `json:"patient_id" db:"patient_id"`
	Tier          string     `json:"tier" db:"tier"`
	Model         string     `json:"model" db:"model"`
	Tokens        TokenUsage `json:"tokens_used" db:"tokens"`
	CostUSD       float64    `json:"cost_usd" db:"cost_usd"`
	PromptVersion string     `json:"prompt_version" db:"prompt_version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
