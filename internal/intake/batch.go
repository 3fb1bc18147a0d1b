package intake

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

const maxReportedErrors = 10

type BatchResult struct {
	BatchID    string   `json:"batch_id,omitempty"`
	Total      int      `json:"total"`
	Created    int      `json:"created"`
	Failed     int      `json:"failed"`
	PatientIDs []string `json:"patient_ids"`
	Errors     []string `json:"errors"`
}

func (r *BatchResult) fail(msg string) {
	r.Failed++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// BatchCreate creates each record independently; one bad record does not
// stop the rest.
func (s *Service) BatchCreate(ctx context.Context, inputs []CreateInput) *BatchResult {
	res := &BatchResult{Total: len(inputs), PatientIDs: []string{}, Errors: []string{}}
	for i, in := range inputs {
		if err := s.createOne(ctx, in, SourceBatch, res); err != nil {
			res.fail(fmt.Sprintf("Record %d: %v", i+1, err))
		}
	}
	return res
}

// UploadCSV reads a header row followed by one patient per row. Columns are
// matched by header name; name and ssn are required.
func (s *Service) UploadCSV(ctx context.Context, r io.Reader) (*BatchResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, models.NewValidationError("csv file is empty")
	}
	if err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("read csv header: %v", err))
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	res := &BatchResult{
		BatchID:    "batch-" + uuid.NewString()[:6],
		PatientIDs: []string{},
		Errors:     []string{},
	}
	// Row numbers count the header as row 1.
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Total++
			res.fail(fmt.Sprintf("Row %d: %v", row, err))
			continue
		}
		res.Total++

		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		in := CreateInput{
			Name:           get("name"),
			SSN:            get("ssn"),
			DOB:            get("dob"),
			Address:        get("address"),
			Condition:      orDefault(get("condition"), "Unknown"),
			Department:     get("department"),
			Priority:       get("priority"),
			AssignedDoctor: get("assigned_doctor"),
		}
		if in.Name == "" || in.SSN == "" {
			res.fail(fmt.Sprintf("Row %d: Missing required fields (name, ssn)", row))
			continue
		}
		if err := s.createOne(ctx, in, SourceBatchUpload, res); err != nil {
			res.fail(fmt.Sprintf("Row %d: %v", row, err))
		}
	}
	return res, nil
}

func (s *Service) createOne(ctx context.Context, in CreateInput, source string, res *BatchResult) error {
	in.normalize()
	if err := in.validate(false); err != nil {
		return err
	}
	p, err := s.store(ctx, in, source)
	if err != nil {
		return err
	}
	res.Created++
	res.PatientIDs = append(res.PatientIDs, p.ID)
	s.dispatch(ctx, p, queue.TriggerBatch, "")
	return nil
}
