package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nikhilbhutani/vaultmind/internal/audit"
	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/llm"
	"github.com/nikhilbhutani/vaultmind/internal/metrics"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
	"github.com/nikhilbhutani/vaultmind/internal/prompt"
	"github.com/nikhilbhutani/vaultmind/internal/vault"
)

type Selector interface {
	Select(ctx context.Context, strategy string, overrides models.Overrides) (models.Selection, error)
}

type CostRecorder interface {
	RecordCost(ctx context.Context, version string, cost float64) error
}

type PatientStore interface {
	Get(ctx context.Context, id string) (*models.Patient, error)
	SaveOutcome(ctx context.Context, id string, o models.Outcome, at time.Time) (*models.Patient, error)
}

type VaultFunction interface {
	InvokeFunction(ctx context.Context, functionID string, req vault.FunctionRequest) (*vault.FunctionResult, error)
}

type Detokenizer interface {
	Detokenize(ctx context.Context, field, token string) (string, error)
}

// Options are the orchestrator's tunables.
type Options struct {
	FunctionID      string
	DefaultModel    string
	Strategy        string
	VaultTimeout    time.Duration
	LLMTimeout      time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	EmitTimeout     time.Duration
	Pricing         llm.Pricing
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FunctionID:      cfg.Vault.FunctionID,
		DefaultModel:    cfg.LLM.DefaultModel,
		Strategy:        cfg.Processing.Strategy,
		VaultTimeout:    cfg.Vault.FunctionTimeout,
		LLMTimeout:      cfg.LLM.Timeout,
		BreakerFailures: cfg.Processing.BreakerFailures,
		BreakerCooldown: cfg.Processing.BreakerCooldown,
		EmitTimeout:     cfg.Processing.EmitTimeout,
		Pricing:         llm.Pricing{InputPerMTok: cfg.LLM.InputPricePerMTok, OutputPerMTok: cfg.LLM.OutputPricePerMTok},
	}
}

// Deps are the collaborators of a run. Selector and Patients are required;
// every other field may be nil.
type Deps struct {
	Selector    Selector
	Costs       CostRecorder
	Patients    PatientStore
	Vault       VaultFunction
	Detokenizer Detokenizer
	LLM         llm.Gateway
	Ledger      audit.Ledger
	Events      notify.Emitter
	Metrics     *metrics.Collector
	Locker      Locker
}

// Orchestrator drives one patient through template selection, the fallback
// chain, persistence and notification.
type Orchestrator struct {
	selector    Selector
	costs       CostRecorder
	patients    PatientStore
	vault       VaultFunction
	detokenizer Detokenizer
	llm         llm.Gateway
	ledger      audit.Ledger
	events      notify.Emitter
	metrics     *metrics.Collector
	locker      Locker
	opts        Options
	now         func() time.Time

	vaultBreaker *gobreaker.CircuitBreaker[*vault.FunctionResult]
	llmBreaker   *gobreaker.CircuitBreaker[*llm.ChatResponse]

	pending sync.WaitGroup
}

func New(deps Deps, opts Options) *Orchestrator {
	o := &Orchestrator{
		selector:     deps.Selector,
		costs:        deps.Costs,
		patients:     deps.Patients,
		vault:        deps.Vault,
		detokenizer:  deps.Detokenizer,
		llm:          deps.LLM,
		ledger:       deps.Ledger,
		events:       deps.Events,
		metrics:      deps.Metrics,
		locker:       deps.Locker,
		opts:         opts,
		now:          time.Now,
		vaultBreaker: newBreaker[*vault.FunctionResult](models.TierVaultFunction, opts.BreakerFailures, opts.BreakerCooldown),
		llmBreaker:   newBreaker[*llm.ChatResponse](models.TierDirectLLM, opts.BreakerFailures, opts.BreakerCooldown),
	}
	if o.locker == nil {
		o.locker = NewLocalLocker()
	}
	if o.events == nil {
		o.events = notify.Nop{}
	}
	if o.opts.EmitTimeout <= 0 {
		o.opts.EmitTimeout = 5 * time.Second
	}
	return o
}

type Request struct {
	PatientID string
	// Patient skips the store lookup when set.
	Patient *models.Patient
	// DocumentText is the extracted upload, used as the direct LLM prompt
	// source. It is never persisted.
	DocumentText string
	Strategy     string
	Overrides    models.Overrides
}

type Result struct {
	Outcome models.Outcome `json:"outcome"`
	Patient *models.Patient `json:"patient"`
	// Persisted is false when the outcome could not be written back.
	Persisted bool `json:"persisted"`
}

// Process runs the fallback chain for one patient. Once the patient is
// loaded the run always produces an outcome: the static tier cannot fail.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	if req.PatientID == "" && req.Patient != nil {
		req.PatientID = req.Patient.ID
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, models.NewValidationError("patient_id is required")
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = o.opts.Strategy
	}
	if _, err := prompt.ParseStrategy(strategy); err != nil {
		return nil, err
	}

	if o.selector == nil || o.patients == nil {
		return nil, fmt.Errorf("orchestrator collaborators: %w", models.ErrConfigurationMissing)
	}

	release, err := o.locker.Acquire(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	defer release()

	p := req.Patient
	if p == nil {
		p, err = o.patients.Get(ctx, req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}

	o.emitAsync(notify.EventProcessingStarted, map[string]any{"patient_id": p.ID})

	sel, err := o.selector.Select(ctx, strategy, req.Overrides)
	if err != nil {
		slog.Warn("template selection failed, using default", "patient_id", p.ID, "error", err)
		sel = prompt.DefaultSelection()
		sel.Parameters = sel.Parameters.Merge(req.Overrides)
	}
	params := adaptParams(sel.Parameters, p.Priority, o.opts.DefaultModel)

	outcome := o.runChain(ctx, p, sel, params, req.DocumentText)
	outcome.PromptVersion = sel.Version
	outcome.DurationMs = outcome.Duration.Milliseconds()

	o.metrics.ObserveRun(outcome.Tier, outcome.Duration, outcome.CostUSD, outcome.Degraded)
	o.recordCharge(ctx, p.ID, outcome)

	at := o.now().UTC()
	result := &Result{Outcome: outcome}
	updated, err := o.patients.SaveOutcome(ctx, p.ID, outcome, at)
	if err != nil {
		slog.Error("failed to persist processing outcome", "patient_id", p.ID, "error", err)
		o.metrics.PersistFailed()
		local := *p
		local.ApplyOutcome(outcome, at)
		result.Patient = &local
	} else {
		result.Patient = updated
		result.Persisted = true
	}

	o.emitAsync(notify.EventPatientProcessed, map[string]any{
		"patient_id": p.ID,
		"patient":    result.Patient,
	})

	slog.Info("patient processed",
		"patient_id", p.ID,
		"tier", outcome.Tier,
		"model", outcome.Model,
		"prompt_version", outcome.PromptVersion,
		"degraded", outcome.Degraded,
		"persisted", result.Persisted,
	)
	return result, nil
}

// runChain tries each tier in order and normalizes the first success.
func (o *Orchestrator) runChain(ctx context.Context, p *models.Patient, sel models.Selection, params models.GenerationParams, documentText string) models.Outcome {
	tiers := []struct {
		name string
		run  func() (tierResult, error)
	}{
		{models.TierVaultFunction, func() (tierResult, error) { return o.runVault(ctx, p, sel, params) }},
		{models.TierDirectLLM, func() (tierResult, error) { return o.runLLM(ctx, p, sel, params, documentText) }},
	}

	var failures []error
	for _, t := range tiers {
		start := o.now()
		res, err := t.run()
		if err == nil {
			out := res.normalize(params.Model, o.opts.Pricing)
			out.Duration = o.now().Sub(start)
			return out
		}
		slog.Warn("processing tier failed", "patient_id", p.ID, "tier", t.name, "error", err)
		o.metrics.TierFailed(t.name, failureReason(err))
		failures = append(failures, fmt.Errorf("%s: %w", t.name, err))
	}

	out := staticSummary(p.Condition).normalize(params.Model, o.opts.Pricing)
	out.Error = errors.Join(failures...).Error()
	return out
}

func (o *Orchestrator) recordCharge(ctx context.Context, patientID string, out models.Outcome) {
	if o.ledger != nil {
		_, err := o.ledger.Record(ctx, models.Charge{
			PatientID:     patientID,
			Tier:          out.Tier,
			Model:         out.Model,
			Tokens:        out.Tokens,
			CostUSD:       out.CostUSD,
			PromptVersion: out.PromptVersion,
		})
		if err != nil {
			slog.Warn("failed to record processing charge", "patient_id", patientID, "error", err)
		}
	}

	// Stub costs would skew the template's cost mean.
	if o.costs != nil && !out.Degraded {
		if err := o.costs.RecordCost(ctx, out.PromptVersion, out.CostUSD); err != nil {
			slog.Warn("failed to record template cost", "prompt_version", out.PromptVersion, "error", err)
		}
	}
}

// emitAsync publishes outside the request path; failures are only logged.
func (o *Orchestrator) emitAsync(event string, payload any) {
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.EmitTimeout)
		defer cancel()
		if err := o.events.Emit(ctx, event, payload); err != nil {
			slog.Warn("failed to emit event", "event", event, "error", err)
		}
	}()
}

// Wait blocks until every pending event emission has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func logReleaseFailure(key string, err error) {
	slog.Warn("failed to release processing lease", "patient_id", key, "error", err)
}

func logDetokenizeFailure(patientID string, err error) {
	slog.Warn("could not detokenize patient name", "patient_id", patientID, "error", err)
}
