package models

import (
	"time"
)

const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

type LabResult struct {
	TestName    string `json:"test_name"`
	Value       string `json:"value"`
	Date        string `json:"date"`
	NormalRange string `json:"normal_range,omitempty"`
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type Patient struct {
	ID             string      `json:"id" db:"id"`
	NameToken      string      `json:"name_token" db:"name_token"`
	SSNToken       string      `json:"ssn_token,omitempty" db:"ssn_token"`
	DOBToken       string      `json:"dob_token,omitempty" db:"dob_token"`
	AddressToken   string      `json:"address_token,omitempty" db:"address_token"`
	Condition      string      `json:"condition" db:"condition"`
	Department     string      `json:"department" db:"department"`
	Priority       string      `json:"priority" db:"priority"`
	AssignedDoctor string      `json:"assigned_doctor" db:"assigned_doctor"`
	LabResults     []LabResult `json:"lab_results" db:"lab_results"`
	Source         string      `json:"source,omitempty" db:"source"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`

	Processed            bool        `json:"processed" db:"processed"`
	ProcessedAt          *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
	AISummary            string      `json:"ai_summary,omitempty" db:"ai_summary"`
	TokensUsed           *TokenUsage `json:"tokens_used,omitempty" db:"tokens_used"`
	CostUSD              float64     `json:"cost_usd" db:"cost_usd"`
	Model                string      `json:"claude_model,omitempty" db:"model"`
	ProcessingDurationMs int64       `json:"processing_duration_ms" db:"processing_duration_ms"`
	PromptVersion        string      `json:"prompt_version,omitempty" db:"prompt_version"`
}

// ApplyOutcome sets every outcome field at once; it is the only path that
// flips Processed to true.
func (p *Patient) ApplyOutcome(o Outcome, at time.Time) {
	tokens := o.Tokens
	p.Processed = true
	p.ProcessedAt = &at
	p.AISummary = o.Summary
	p.TokensUsed = &tokens
	p.CostUSD = o.CostUSD
	p.Model = o.Model
	p.ProcessingDurationMs = o.Duration.Milliseconds()
	p.PromptVersion = o.PromptVersion
}
