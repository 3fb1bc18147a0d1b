package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/vaultmind/internal/document"
	"github.com/nikhilbhutani/vaultmind/internal/metrics"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
	"github.com/nikhilbhutani/vaultmind/internal/patient"
	"github.com/nikhilbhutani/vaultmind/internal/processing"
	"github.com/nikhilbhutani/vaultmind/internal/queue"
)

const (
	SourceAPI            = "api"
	SourceBatch          = "batch"
	SourceBatchUpload    = "batch_upload"
	SourceDocumentUpload = "document_upload"

	defaultDepartment = "General"
	defaultDoctor     = "Unassigned"

	DefaultPageSize = 50
	MaxPageSize     = 200
)

type Vault interface {
	Tokenize(ctx context.Context, fields map[string]string) (map[string]string, error)
	Detokenize(ctx context.Context, field, token string) (string, error)
}

type Processor interface {
	Process(ctx context.Context, req processing.Request) (*processing.Result, error)
}

type Enqueuer interface {
	EnqueuePatientProcess(ctx context.Context, payload queue.PatientProcessPayload) error
}

type Deps struct {
	Patients  patient.Store
	Vault     Vault
	Processor Processor
	// Queue is optional; without it every run is inline.
	Queue     Enqueuer
	Extractor document.TextExtractor
	Events    notify.Emitter
	Metrics   *metrics.Collector
}

// Service is the patient intake surface: it tokenizes PII before anything
// is stored and hands new records to the orchestrator.
type Service struct {
	patients  patient.Store
	vault     Vault
	processor Processor
	queue     Enqueuer
	extractor document.TextExtractor
	events    notify.Emitter
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		patients:  d.Patients,
		vault:     d.Vault,
		processor: d.Processor,
		queue:     d.Queue,
		extractor: d.Extractor,
		events:    d.Events,
		metrics:   d.Metrics,
		now:       time.Now,
	}
	if s.events == nil {
		s.events = notify.Nop{}
	}
	if s.extractor == nil {
		s.extractor = document.NewTextExtractor(0)
	}
	return s
}

type CreateInput struct {
	Name           string             `json:"name"`
	SSN            string             `json:"ssn"`
	DOB            string             `json:"dob"`
	Address        string             `json:"address,omitempty"`
	Condition      string             `json:"condition"`
	Department     string             `json:"department,omitempty"`
	Priority       string             `json:"priority,omitempty"`
	AssignedDoctor string             `json:"assigned_doctor,omitempty"`
	LabResults     []models.LabResult `json:"lab_results,omitempty"`
}

func (in *CreateInput) normalize() {
	in.Department = orDefault(strings.TrimSpace(in.Department), defaultDepartment)
	in.AssignedDoctor = orDefault(strings.TrimSpace(in.AssignedDoctor), defaultDoctor)
	in.Priority = orDefault(strings.ToUpper(strings.TrimSpace(in.Priority)), models.PriorityNormal)
	in.Condition = strings.TrimSpace(in.Condition)
}

// validate checks the single-record contract. Bulk paths relax dob and
// condition, matching what spreadsheets usually carry.
func (in CreateInput) validate(strict bool) error {
	var fields []string
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, "name is required")
	}
	if strings.TrimSpace(in.SSN) == "" {
		fields = append(fields, "ssn is required")
	}
	if strict && strings.TrimSpace(in.DOB) == "" {
		fields = append(fields, "dob is required")
	}
	if strict && in.Condition == "" {
		fields = append(fields, "condition is required")
	}
	switch in.Priority {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		fields = append(fields, fmt.Sprintf("priority %q must be one of LOW, NORMAL, HIGH, URGENT", in.Priority))
	}
	if len(fields) > 0 {
		return models.NewValidationError(fields...)
	}
	return nil
}

// Dispatch reports how a run was started.
const (
	DispatchQueued    = "queued"
	DispatchProcessed = "processed"
	DispatchFailed    = "failed"
)

type CreateResult struct {
	Patient  *models.Patient `json:"patient"`
	Dispatch string          `json:"dispatch"`
}

// Create tokenizes, stores and triggers processing for one patient. A
// processing failure is logged, not returned: the record exists either way.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in.normalize()
	if err := in.validate(true); err != nil {
		return nil, err
	}
	p, err := s.store(ctx, in, SourceAPI)
	if err != nil {
		return nil, err
	}
	updated, dispatch := s.dispatch(ctx, p, queue.TriggerCreate, "")
	return &CreateResult{Patient: updated, Dispatch: dispatch}, nil
}

func (s *Service) store(ctx context.Context, in CreateInput, source string) (*models.Patient, error) {
	if s.vault == nil || s.patients == nil {
		return nil, fmt.Errorf("intake collaborators: %w", models.ErrConfigurationMissing)
	}

	tokens, err := s.vault.Tokenize(ctx, map[string]string{
		"name":    in.Name,
		"ssn":     in.SSN,
		"dob":     in.DOB,
		"address": in.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("tokenize patient: %w", err)
	}

	p := &models.Patient{
		ID:             uuid.NewString(),
		NameToken:      tokens["name"],
		SSNToken:       tokens["ssn"],
		DOBToken:       tokens["dob"],
		AddressToken:   tokens["address"],
		Condition:      in.Condition,
		Department:     in.Department,
		Priority:       in.Priority,
		AssignedDoctor: in.AssignedDoctor,
		LabResults:     in.LabResults,
		Source:         source,
		CreatedAt:      s.now().UTC(),
	}
	if p.LabResults == nil {
		p.LabResults = []models.LabResult{}
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("store patient: %w: %w", models.ErrPersistence, err)
	}

	s.metrics.PatientCreated(source)
	if err := s.events.Emit(ctx, notify.EventPatientCreated, map[string]any{"patient": p}); err != nil {
		slog.Warn("failed to emit patient created", "patient_id", p.ID, "error", err)
	}
	slog.Info("patient created", "patient_id", p.ID, "source", source)
	return p, nil
}

// dispatch queues the run, falling back to an awaited inline run when the
// queue is absent or rejects the task.
func (s *Service) dispatch(ctx context.Context, p *models.Patient, trigger, strategy string) (*models.Patient, string) {
	if s.queue != nil {
		err := s.queue.EnqueuePatientProcess(ctx, queue.PatientProcessPayload{
			PatientID: p.ID,
			Strategy:  strategy,
			Trigger:   trigger,
		})
		if err == nil {
			return p, DispatchQueued
		}
		slog.Warn("enqueue failed, processing inline", "patient_id", p.ID, "error", err)
	}

	res, err := s.runInline(ctx, processing.Request{PatientID: p.ID, Patient: p, Strategy: strategy})
	if err != nil {
		slog.Error("inline processing failed", "patient_id", p.ID, "trigger", trigger, "error", err)
		return p, DispatchFailed
	}
	return res.Patient, DispatchProcessed
}

func (s *Service) runInline(ctx context.Context, req processing.Request) (*processing.Result, error) {
	if s.processor == nil {
		return nil, fmt.Errorf("processor: %w", models.ErrConfigurationMissing)
	}
	return s.processor.Process(ctx, req)
}

type Page struct {
	Patients []models.Patient `json:"patients"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Pages    int              `json:"pages"`
	Limit    int              `json:"limit"`
}

// List returns one page, newest first. Out-of-range arguments are clamped.
func (s *Service) List(ctx context.Context, page, limit int) (*Page, error) {
	page = max(page, 1)
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	total, err := s.patients.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	items, err := s.patients.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	pages := 1
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Page{Patients: items, Total: total, Page: page, Pages: pages, Limit: limit}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Patient, error) {
	return s.patients.Get(ctx, id)
}

type ReprocessResult struct {
	Status      string          `json:"status"`
	PatientID   string          `json:"patient_id"`
	QueuedAt    *time.Time      `json:"queued_at,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Outcome     *models.Outcome `json:"outcome,omitempty"`
	Persisted   *bool           `json:"persisted,omitempty"`
}

// Reprocess re-runs the chain for an existing patient. Unlike Create it
// reports processing errors, including a run already in flight.
func (s *Service) Reprocess(ctx context.Context, id, strategy, trigger string) (*ReprocessResult, error) {
	p, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trigger = orDefault(trigger, queue.TriggerReprocess)

	if s.queue != nil {
		err := s.queue.EnqueuePatientProcess(ctx, queue.PatientProcessPayload{
			PatientID: p.ID,
			Strategy:  strategy,
			Trigger:   trigger,
		})
		if err == nil {
			at := s.now().UTC()
			return &ReprocessResult{Status: "queued", PatientID: p.ID, QueuedAt: &at}, nil
		}
		slog.Warn("enqueue failed, reprocessing inline", "patient_id", p.ID, "error", err)
	}

	res, err := s.runInline(ctx, processing.Request{PatientID: p.ID, Strategy: strategy})
	if err != nil {
		return nil, fmt.Errorf("reprocess patient %s: %w", p.ID, err)
	}
	return &ReprocessResult{
		Status:      "processing_complete",
		PatientID:   p.ID,
		ProcessedAt: res.Patient.ProcessedAt,
		Outcome:     &res.Outcome,
		Persisted:   &res.Persisted,
	}, nil
}

type Decrypted struct {
	Fields map[string]*string `json:"fields"`
	Errors map[string]string  `json:"errors,omitempty"`
}

// Decrypt resolves every token the patient carries. A field that cannot be
// resolved is reported as null with its error alongside.
func (s *Service) Decrypt(ctx context.Context, id string) (*Decrypted, error) {
	p, err := s.patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.vault == nil {
		return nil, fmt.Errorf("vault: %w", models.ErrConfigurationMissing)
	}

	out := &Decrypted{Fields: make(map[string]*string), Errors: make(map[string]string)}
	for _, f := range []struct{ name, token string }{
		{"name", p.NameToken},
		{"ssn", p.SSNToken},
		{"dob", p.DOBToken},
		{"address", p.AddressToken},
	} {
		if strings.TrimSpace(f.token) == "" {
			continue
		}
		v, err := s.vault.Detokenize(ctx, f.name, f.token)
		if err != nil {
			if errors.Is(err, models.ErrConfigurationMissing) {
				return nil, err
			}
			slog.Warn("failed to detokenize field", "patient_id", p.ID, "field", f.name, "error", err)
			out.Fields[f.name] = nil
			out.Errors[f.name] = err.Error()
			continue
		}
		out.Fields[f.name] = &v
	}
	slog.Info("patient decrypted", "patient_id", p.ID, "fields", len(out.Fields), "failed", len(out.Errors))
	return out, nil
}

func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.patients.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset patients: %w", err)
	}
	slog.Warn("all patients deleted", "count", n)
	return n, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
