package models

import (
	"time"
)

// GenerationParams are the LLM settings a template ships with.
type GenerationParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Model       string  `json:"model,omitempty"`
}

// Overrides replace individual generation parameters for one call.
type Overrides struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Model       string   `json:"model,omitempty"`
}

func (p GenerationParams) Merge(o Overrides) GenerationParams {
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		p.MaxTokens = *o.MaxTokens
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	return p
}

type PromptTemplate struct {
	Version     string           `json:"version" db:"version"`
	Body        string           `json:"template" db:"body"`
	Description string           `json:"description" db:"description"`
	Parameters  GenerationParams `json:"parameters" db:"parameters"`
	UsageCount  int              `json:"usage_count" db:"usage_count"`
	AvgRating   float64          `json:"avg_rating" db:"avg_rating"`
	AvgCost     float64          `json:"avg_cost" db:"avg_cost"`
	CostSamples int              `json:"-" db:"cost_samples"`
	Active      bool             `json:"active" db:"active"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	LastUsed    *time.Time       `json:"last_used,omitempty" db:"last_used"`
}

// Selection is a template chosen for one processing run.
type Selection struct {
	Version    string           `json:"version"`
	Body       string           `json:"template"`
	Parameters GenerationParams `json:"parameters"`
}
