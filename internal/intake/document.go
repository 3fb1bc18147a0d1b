package intake

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nikhilbhutani/vaultmind/internal/document"
	"github.com/nikhilbhutani/vaultmind/internal/processing"
)

const (
	DocumentStatusSuccess          = "success"
	DocumentStatusInsufficientData = "insufficient_data"
)

type Confidence struct {
	Name float64 `json:"name"`
	SSN  float64 `json:"ssn"`
	DOB  float64 `json:"dob"`
}

type AutoExtracted struct {
	Condition string `json:"condition"`
	PIICount  int    `json:"pii_count"`
	FileType  string `json:"file_type"`
	Pages     int    `json:"pages"`
}

type DocumentResult struct {
	Status           string            `json:"status"`
	Message          string            `json:"message"`
	PatientID        string            `json:"patient_id,omitempty"`
	Processed        bool              `json:"processed"`
	DetectedEntities []document.Entity `json:"detected_entities"`
	ConfidenceScores *Confidence       `json:"confidence_scores,omitempty"`
	AutoExtracted    *AutoExtracted    `json:"auto_extracted,omitempty"`
	Required         []string          `json:"required,omitempty"`
}

// CreateFromDocument builds a patient from an uploaded note. The redacted
// text drives the direct LLM tier for this one run and is never stored, so
// the run is always inline.
func (s *Service) CreateFromDocument(ctx context.Context, r io.Reader, filename, contentType string) (*DocumentResult, error) {
	doc, err := s.extractor.Extract(ctx, r, filename, contentType)
	if err != nil {
		return nil, err
	}

	det := document.DetectPII(doc.Text)
	entities := det.Entities
	if entities == nil {
		entities = []document.Entity{}
	}

	fields := det.Fields()
	if fields["name"] == "" || fields["ssn"] == "" {
		return &DocumentResult{
			Status:           DocumentStatusInsufficientData,
			Message:          "Could not extract enough PII to create patient record",
			DetectedEntities: entities,
			Required:         []string{"name", "ssn"},
		}, nil
	}

	condition := document.InferCondition(doc.Text)
	in := CreateInput{
		Name:      fields["name"],
		SSN:       fields["ssn"],
		DOB:       fields["dob"],
		Condition: condition,
	}
	in.normalize()

	p, err := s.store(ctx, in, SourceDocumentUpload)
	if err != nil {
		return nil, err
	}

	processed := false
	res, err := s.runInline(ctx, processing.Request{
		PatientID:    p.ID,
		Patient:      p,
		DocumentText: det.Redact(doc.Text),
	})
	if err != nil {
		slog.Error("document patient processing failed", "patient_id", p.ID, "error", err)
	} else {
		processed = res.Patient != nil && res.Patient.Processed
	}

	return &DocumentResult{
		Status:           DocumentStatusSuccess,
		Message:          "Patient record created from document",
		PatientID:        p.ID,
		Processed:        processed,
		DetectedEntities: entities,
		ConfidenceScores: &Confidence{
			Name: det.Confidence(document.EntityName),
			SSN:  det.Confidence(document.EntitySSN),
			DOB:  det.Confidence(document.EntityDOB),
		},
		AutoExtracted: &AutoExtracted{
			Condition: condition,
			PIICount:  len(det.Entities),
			FileType:  doc.FileType,
			Pages:     doc.Pages,
		},
	}, nil
}

// ProcessFromWebhook starts a run for a record announced by the content
// store. An empty id is ignored.
func (s *Service) ProcessFromWebhook(ctx context.Context, id, trigger string) (*ReprocessResult, error) {
	if id == "" {
		return &ReprocessResult{Status: "ignored"}, nil
	}
	res, err := s.Reprocess(ctx, id, "", trigger)
	if err != nil {
		return nil, fmt.Errorf("webhook process %s: %w", id, err)
	}
	if res.Status == "queued" {
		res.Status = "processing"
	}
	return res, nil
}
