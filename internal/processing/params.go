package processing

import (
	"fmt"
	"strings"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

const (
	urgentTemperature = 0.3
	defaultMaxTokens  = 1000
	noLabResults      = "No lab results"
)

// adaptParams fills defaults into the selected parameters and tightens the
// temperature for urgent patients.
func adaptParams(p models.GenerationParams, priority, defaultModel string) models.GenerationParams {
	if p.Model == "" {
		p.Model = defaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if strings.EqualFold(priority, models.PriorityUrgent) {
		p.Temperature = urgentTemperature
	}
	return p
}

// formatLabs renders lab results one per line as "- name: value (Normal: range)".
func formatLabs(labs []models.LabResult) string {
	if len(labs) == 0 {
		return noLabResults
	}

	lines := make([]string, 0, len(labs))
	for _, lab := range labs {
		name := lab.TestName
		if name == "" {
			name = "Unknown"
		}
		value := lab.Value
		if value == "" {
			value = "N/A"
		}
		line := fmt.Sprintf("- %s: %s", name, value)
		if lab.NormalRange != "" {
			line += fmt.Sprintf(" (Normal: %s)", lab.NormalRange)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func truncateToken(token string, n int) string {
	if len(token) <= n {
		return token
	}
	return token[:n]
}
