package prompt

import (
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/models"
)

const (
	// BaselineVersion is the only catalog entry seeded active.
	BaselineVersion = "v1.0"
	// DefaultVersion is used when no template has enough usage to rank.
	DefaultVersion = "v4.0"
)

// CatalogEntry is a built-in template definition.
type CatalogEntry struct {
	Version     string
	Body        string
	Description string
	Parameters  models.GenerationParams
}

// Catalog is the fixed set of templates seeded at startup, oldest first.
var Catalog = []CatalogEntry{
	{
		Version: "v1.0",
		Body: `Analyze the following patient data and provide a concise clinical summary:

Patient Information:
- Name: {name}
- Condition: {condition}
- Department: {department}
- Lab Results: {lab_results}

Provide a professional medical summary focusing on:
1. Current condition assessment
2. Key findings from lab results
3. Recommended next steps

Keep the summary concise and clinical.`,
		Description: "Original baseline prompt",
		Parameters:  models.GenerationParams{Temperature: 0.7, MaxTokens: 500},
	},
	{
		Version: "v2.0",
		Body: `You are an experienced medical AI assistant. Analyze this patient data with clinical precision:

PATIENT DATA:
Name: {name}
Primary Condition: {condition}
Department: {department}
Laboratory Results: {lab_results}

ANALYSIS REQUIREMENTS:
1. Assess severity and urgency
2. Identify critical lab value deviations
3. Suggest evidence-based interventions
4. Note any red flags requiring immediate attention

Format: Professional medical summary (3-4 sentences).`,
		Description: "Enhanced with structured analysis requirements",
		Parameters:  models.GenerationParams{Temperature: 0.6, MaxTokens: 600},
	},
	{
		Version: "v3.0",
		Body: `Clinical Summary Request:

Patient: {name}
Chief Complaint: {condition}
Treating Department: {department}
Lab Data: {lab_results}

Generate a SOAP-style summary:
- Subjective: Patient presentation
- Objective: Lab findings and vitals
- Assessment: Clinical interpretation
- Plan: Recommended actions

Be specific, actionable, and evidence-based.`,
		Description: "SOAP format for structured output",
		Parameters:  models.GenerationParams{Temperature: 0.5, MaxTokens: 700},
	},
	{
		Version: "v4.0",
		Body: `You are an expert medical AI assistant. Your task is to analyze patient data and generate a professional clinical summary.

<patient_data>
    <name>{name}</name>
    <condition>{condition}</condition>
    <department>{department}</department>
    <lab_results>
{lab_results}
    </lab_results>
</patient_data>

<requirements>
    1. Analyze the patient's current status based on the condition and lab results.
    2. Identify any critical values or concerning trends.
    3. Recommend specific, evidence-based next steps or interventions.
    4. Maintain a professional, objective clinical tone.
</requirements>

<example>
    <input>
        <name>Jane Doe</name>
        <condition>Type 2 Diabetes</condition>
        <department>Endocrinology</department>
        <lab_results>
          - HbA1c: 8.5% (Normal: <5.7%)
          - Fasting Glucose: 145 mg/dL (Normal: <100 mg/dL)
        </lab_results>
    </input>
    <output>
        **Clinical Assessment**: Patient presents with uncontrolled Type 2 Diabetes, evidenced by elevated HbA1c (8.5%) and fasting glucose (145 mg/dL), indicating suboptimal glycemic control.

        **Key Findings**:
        - Hyperglycemia and elevated long-term glucose markers.

        **Plan**:
        1. Review and potentially intensify oral hypoglycemic agents or consider insulin initiation.
        2. Reinforce lifestyle modifications (diet/exercise).
        3. Schedule follow-up in 3 months to monitor HbA1c.
    </output>
</example>

Based on the patient data provided above, generate the clinical summary within <clinical_summary> tags.
`,
		Description: "XML-structured prompt with few-shot example",
		Parameters:  models.GenerationParams{Temperature: 0.4, MaxTokens: 800},
	},
}

// CatalogEntryFor returns the built-in entry for version.
func CatalogEntryFor(version string) (CatalogEntry, bool) {
	for _, e := range Catalog {
		if e.Version == version {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// DefaultSelection is the selection used when the registry cannot answer.
func DefaultSelection() models.Selection {
	e, _ := CatalogEntryFor(DefaultVersion)
	return models.Selection{Version: e.Version, Body: e.Body, Parameters: e.Parameters}
}

// Templates turns the catalog into seedable records. Creation times are
// staggered so catalog order is preserved by CreatedAt.
func Templates(catalog []CatalogEntry, now time.Time) []models.PromptTemplate {
	out := make([]models.PromptTemplate, 0, len(catalog))
	for i, e := range catalog {
		out = append(out, models.PromptTemplate{
			Version:     e.Version,
			Body:        e.Body,
			Description: e.Description,
			Parameters:  e.Parameters,
			Active:      e.Version == BaselineVersion,
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return out
}
