package processing

import (
	"fmt"
	"strings"
	"time"
)

const (
	staticModel        = "fallback-mock"
	staticInputTokens  = 150
	staticOutputTokens = 100
	staticCostUSD      = 0.001
	staticDuration     = 100 * time.Millisecond
)

type cannedSummary struct {
	keywords []string
	text     string
}

// cannedSummaries are matched in order against the lower-cased condition;
// the last entry has no keywords and always matches.
var cannedSummaries = []cannedSummary{
	{
		keywords: []string{"cardiac", "heart", "coronary", "myocardial", "arrhythmia", "angina"},
		text: "Cardiovascular presentation. Review ECG, troponin trend and blood pressure; " +
			"confirm antiplatelet and statin therapy and arrange cardiology follow-up.",
	},
	{
		keywords: []string{"renal", "kidney", "nephr", "ckd"},
		text: "Renal presentation. Trend creatinine, eGFR and electrolytes; review " +
			"nephrotoxic medications and fluid balance and consider nephrology referral.",
	},
	{
		keywords: []string{"diabet", "glucose", "a1c", "insulin"},
		text: "Diabetes-related presentation. Review HbA1c and fasting glucose, screen for " +
			"hypoglycaemia, and reassess the glycaemic regimen and foot and eye checks.",
	},
	{
		keywords: []string{"respiratory", "pneumonia", "asthma", "copd", "lung", "bronch"},
		text: "Respiratory presentation. Monitor oxygen saturation and respiratory rate, " +
			"review chest imaging, and escalate if work of breathing increases.",
	},
	{
		text: "General presentation. Review vital signs and available results and schedule " +
			"clinician review to confirm the plan of care.",
	},
}

// staticSummary produces the degraded-mode outcome. It never fails and never
// blocks.
func staticSummary(condition string) staticResult {
	condition = orDefault(condition, "Unknown condition")
	lower := strings.ToLower(condition)

	text := cannedSummaries[len(cannedSummaries)-1].text
	for _, c := range cannedSummaries {
		if matchesAny(lower, c.keywords) {
			text = c.text
			break
		}
	}

	return staticResult{
		summary: fmt.Sprintf("**Clinical Assessment**: Patient presents with %s. %s\n\n"+
			"**Note**: This is a fallback response generated while the AI services were unavailable.",
			condition, text),
	}
}

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
