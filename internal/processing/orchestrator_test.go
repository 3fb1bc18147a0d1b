package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/vaultmind/internal/audit"
	"github.com/nikhilbhutani/vaultmind/internal/llm"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/notify"
	"github.com/nikhilbhutani/vaultmind/internal/patient"
	"github.com/nikhilbhutani/vaultmind/internal/prompt"
	"github.com/nikhilbhutani/vaultmind/internal/vault"
)

type fakeSelector struct {
	sel models.Selection
	err error
}

func (f fakeSelector) Select(_ context.Context, _ string, o models.Overrides) (models.Selection, error) {
	if f.err != nil {
		return models.Selection{}, f.err
	}
	s := f.sel
	s.Parameters = s.Parameters.Merge(o)
	return s, nil
}

type fakeVault struct {
	mu      sync.Mutex
	calls   int
	lastReq vault.FunctionRequest
	result  *vault.FunctionResult
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeVault) InvokeFunction(_ context.Context, _ string, req vault.FunctionRequest) (*vault.FunctionResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

func (f *fakeVault) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	lastReq llm.ChatRequest
	resp    *llm.ChatResponse
	err     error
}

func (f *fakeGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeGateway) Provider(string) (llm.Provider, error) { return nil, llm.ErrNotConfigured }
func (f *fakeGateway) ListModels() []llm.ModelInfo            { return nil }

type fakeDetokenizer struct {
	name string
	err  error
}

func (f fakeDetokenizer) Detokenize(context.Context, string, string) (string, error) {
	return f.name, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(_ context.Context, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type failingSaveStore struct {
	*patient.MemoryStore
}

func (f failingSaveStore) SaveOutcome(context.Context, string, models.Outcome, time.Time) (*models.Patient, error) {
	return nil, errors.Join(models.ErrPersistence, errors.New("connection reset"))
}

type costRecorder struct {
	mu    sync.Mutex
	costs map[string][]float64
}

func (c *costRecorder) RecordCost(_ context.Context, version string, cost float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.costs == nil {
		c.costs = make(map[string][]float64)
	}
	c.costs[version] = append(c.costs[version], cost)
	return nil
}

var testSelection = models.Selection{
	Version:    "v2.0",
	Body:       "Summarize {name} with {condition} in {department}. Labs:\n{lab_results}",
	Parameters: models.GenerationParams{Temperature: 0.6, MaxTokens: 600},
}

type harness struct {
	orch     *Orchestrator
	patients *patient.MemoryStore
	ledger   *audit.MemoryLedger
	vault    *fakeVault
	gateway  *fakeGateway
	events   *recordingEmitter
	costs    *costRecorder
}

func newHarness(t *testing.T, mutate func(*Deps, *Options)) *harness {
	t.Helper()
	h := &harness{
		patients: patient.NewMemoryStore(),
		ledger:   audit.NewMemoryLedger(),
		vault:    &fakeVault{err: errors.New("vault down")},
		gateway:  &fakeGateway{err: llm.ErrUnavailable},
		events:   &recordingEmitter{},
		costs:    &costRecorder{},
	}
	deps := Deps{
		Selector:    fakeSelector{sel: testSelection},
		Costs:       h.costs,
		Patients:    h.patients,
		Vault:       h.vault,
		Detokenizer: fakeDetokenizer{name: "Jane Doe"},
		LLM:         h.gateway,
		Ledger:      h.ledger,
		Events:      h.events,
	}
	opts := Options{
		FunctionID:      "fn-1",
		DefaultModel:    "claude-3-5-sonnet-20241022",
		Strategy:        "best_performing",
		BreakerFailures: 100,
		BreakerCooldown: time.Minute,
		Pricing:         llm.Pricing{InputPerMTok: 3, OutputPerMTok: 15},
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	h.orch = New(deps, opts)
	t.Cleanup(h.orch.Wait)
	return h
}

func (h *harness) addPatient(t *testing.T, id, condition, priority string) {
	t.Helper()
	require.NoError(t, h.patients.Create(context.Background(), &models.Patient{
		ID:         id,
		NameToken:  "tok_name_0123456789",
		Condition:  condition,
		Department: "Endocrinology",
		Priority:   priority,
		CreatedAt:  time.Now(),
	}))
}

func TestProcess_VaultTierSucceeds(t *testing.T) {
	h := newHarness(t, nil)
	cost := 0.0042
	h.vault.err = nil
	h.vault.result = &vault.FunctionResult{
		Success:    true,
		Summary:    "Stable.",
		TokensUsed: map[string]int{"input_tokens": 300, "output_tokens": 120},
		CostUSD:    &cost,
		Model:      "claude-3-5-sonnet-20241022",
	}
	h.addPatient(t, "p1", "Hypertension", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, models.TierVaultFunction, res.Outcome.Tier)
	assert.Equal(t, models.TokenUsage{Input: 300, Output: 120}, res.Outcome.Tokens)
	assert.InDelta(t, 0.0042, res.Outcome.CostUSD, 1e-12)
	assert.Equal(t, "v2.0", res.Outcome.PromptVersion)
	assert.False(t, res.Outcome.Degraded)
	assert.True(t, res.Persisted)
	assert.True(t, res.Patient.Processed)
	assert.Equal(t, "Stable.", res.Patient.AISummary)
	assert.Zero(t, h.gateway.calls, "later tiers must not run")

	assert.Equal(t, "tok_name_0123456789", h.vault.lastReq.PatientData.NameToken)
	assert.Equal(t, noLabResults, h.vault.lastReq.PatientData.LabResults)
	assert.Equal(t, testSelection.Body, h.vault.lastReq.PromptTemplate)

	h.orch.Wait()
	assert.ElementsMatch(t, []string{notify.EventProcessingStarted, notify.EventPatientProcessed}, h.events.Events())
	assert.Equal(t, []float64{0.0042}, h.costs.costs["v2.0"])
}

func TestProcess_UrgentTemperature(t *testing.T) {
	h := newHarness(t, nil)
	h.addPatient(t, "p1", "Sepsis", models.PriorityUrgent)

	_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 0.3, h.vault.lastReq.Parameters.Temperature)
	assert.Equal(t, 0.3, h.gateway.lastReq.Temperature)
	assert.Equal(t, 600, h.gateway.lastReq.MaxTokens)
	assert.Equal(t, "claude-3-5-sonnet-20241022", h.gateway.lastReq.Model)
}

func TestProcess_FallsBackToDirectLLM(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.err = nil
	h.gateway.resp = &llm.ChatResponse{Content: "LLM summary", Model: "claude-x", InputTokens: 1000, OutputTokens: 200}
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, models.TierDirectLLM, res.Outcome.Tier)
	assert.Equal(t, "LLM summary", res.Outcome.Summary)
	assert.Equal(t, "claude-x", res.Outcome.Model)
	// Missing provider cost is estimated from the configured rates.
	assert.InDelta(t, 0.006, res.Outcome.CostUSD, 1e-12)

	content := h.gateway.lastReq.Messages[0].Content
	assert.Contains(t, content, "Summarize Jane Doe with Asthma in Endocrinology.")
	assert.Contains(t, content, noLabResults)
}

func TestProcess_DocumentTextDrivesPrompt(t *testing.T) {
	h := newHarness(t, nil)
	h.gateway.err = nil
	h.gateway.resp = &llm.ChatResponse{Content: "doc summary", InputTokens: 10, OutputTokens: 10, CostUSD: 0.0001}
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	_, err := h.orch.Process(context.Background(), Request{PatientID: "p1", DocumentText: "CT chest shows consolidation"})
	require.NoError(t, err)

	content := h.gateway.lastReq.Messages[0].Content
	assert.Contains(t, content, "MEDICAL DOCUMENT:\nCT chest shows consolidation")
	assert.NotContains(t, content, "Jane Doe")
}

func TestProcess_DetokenizeFailureUsesPlaceholder(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) {
		d.Detokenizer = fakeDetokenizer{err: vault.ErrVaultUnreachable}
	})
	h.gateway.err = nil
	h.gateway.resp = &llm.ChatResponse{Content: "ok", InputTokens: 1, OutputTokens: 1}
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)
	assert.Contains(t, h.gateway.lastReq.Messages[0].Content, "Patient (Token: tok_name_0...)")
}

func TestProcess_AllRemoteTiersFailDegrades(t *testing.T) {
	h := newHarness(t, nil)
	h.addPatient(t, "p1", "Diabetes", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	out := res.Outcome
	assert.True(t, out.Success)
	assert.True(t, out.Degraded)
	assert.Equal(t, models.TierStatic, out.Tier)
	assert.Equal(t, "fallback-mock", out.Model)
	assert.Equal(t, models.TokenUsage{Input: 150, Output: 100}, out.Tokens)
	assert.Equal(t, 0.001, out.CostUSD)
	assert.Equal(t, int64(100), out.DurationMs)
	assert.Contains(t, out.Summary, "Diabetes")
	assert.Contains(t, out.Summary, "Diabetes-related presentation")
	assert.Contains(t, out.Error, "vault down")

	stored, err := h.patients.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, stored.Processed)
	assert.Equal(t, "fallback-mock", stored.Model)
	assert.NotEmpty(t, stored.AISummary)
	assert.Equal(t, "v2.0", stored.PromptVersion)

	assert.Empty(t, h.costs.costs, "stub costs are not fed into template cost means")
}

func TestProcess_EndToEndDiabetesWithoutRemoteTiers(t *testing.T) {
	h := newHarness(t, func(d *Deps, o *Options) {
		reg := prompt.NewRegistry(prompt.NewMemoryStore())
		_, err := reg.EnsureSeeded(context.Background(), prompt.Catalog)
		require.NoError(t, err)
		d.Selector = prompt.NewSelector(reg)
		d.Costs = reg
		d.Vault = nil
		d.LLM = nil
		o.FunctionID = ""
	})
	h.addPatient(t, "p1", "Diabetes", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, prompt.DefaultVersion, res.Outcome.PromptVersion)
	assert.Contains(t, res.Outcome.Summary, "Diabetes")
	assert.Equal(t, models.TokenUsage{Input: 150, Output: 100}, *res.Patient.TokensUsed)
	assert.Equal(t, 0.001, res.Patient.CostUSD)
	assert.True(t, res.Patient.Processed)
}

func TestProcess_TwiceRecordsTwoCharges(t *testing.T) {
	h := newHarness(t, nil)
	h.addPatient(t, "p1", "CKD stage 3", models.PriorityNormal)

	for i := 0; i < 2; i++ {
		_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
		require.NoError(t, err)
	}

	charges, err := h.ledger.ListByPatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, charges, 2)
	assert.NotEqual(t, charges[0].ID, charges[1].ID)
	for _, c := range charges {
		assert.Equal(t, models.TierStatic, c.Tier)
		assert.Equal(t, 0.001, c.CostUSD)
	}
}

func TestProcess_PersistFailureStillReturnsOutcome(t *testing.T) {
	store := failingSaveStore{MemoryStore: patient.NewMemoryStore()}
	h := newHarness(t, func(d *Deps, _ *Options) { d.Patients = store })
	require.NoError(t, store.Create(context.Background(), &models.Patient{ID: "p1", Condition: "Heart failure"}))

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)

	assert.False(t, res.Persisted)
	assert.True(t, res.Patient.Processed)
	assert.Contains(t, res.Patient.AISummary, "Cardiovascular presentation")

	stored, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, stored.Processed)
}

func TestProcess_SelectorFailureUsesDefaultTemplate(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) {
		d.Selector = fakeSelector{err: errors.New("registry offline")}
	})
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultVersion, res.Outcome.PromptVersion)
}

func TestProcess_Validation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.Process(context.Background(), Request{})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.orch.Process(context.Background(), Request{PatientID: "p1", Strategy: "roulette"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.orch.Process(context.Background(), Request{PatientID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestProcess_MissingCollaborators(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Options) { d.Selector = nil })

	_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
	assert.Zero(t, h.vault.Calls())
}

func TestProcess_ConcurrentRunIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.vault.block = make(chan struct{})
	h.vault.entered = make(chan struct{}, 1)
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
		done <- err
	}()
	<-h.vault.entered

	_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	assert.ErrorIs(t, err, models.ErrProcessingInFlight)

	close(h.vault.block)
	require.NoError(t, <-done)

	// The lease is released once the first run finishes.
	h.vault.block = nil
	h.vault.entered = nil
	_, err = h.orch.Process(context.Background(), Request{PatientID: "p1"})
	assert.NoError(t, err)
}

func TestProcess_VaultBreakerOpens(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.BreakerFailures = 2 })
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	for i := 0; i < 4; i++ {
		_, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, h.vault.Calls(), "open breaker short-circuits the vault tier")
	assert.Equal(t, 2, h.gateway.calls)
}

func TestProcess_MissingFunctionIDDoesNotTripBreaker(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) {
		o.BreakerFailures = 1
		o.FunctionID = ""
	})
	h.vault.err = models.ErrConfigurationMissing
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	for i := 0; i < 3; i++ {
		res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
		require.NoError(t, err)
		assert.Equal(t, models.TierStatic, res.Outcome.Tier)
	}
	assert.Equal(t, 3, h.vault.Calls())
}

func TestProcess_UnsuccessfulVaultResultFallsThrough(t *testing.T) {
	h := newHarness(t, nil)
	h.vault.err = nil
	h.vault.result = &vault.FunctionResult{Success: false, Error: "function crashed"}
	h.addPatient(t, "p1", "Asthma", models.PriorityNormal)

	res, err := h.orch.Process(context.Background(), Request{PatientID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.TierStatic, res.Outcome.Tier)
	assert.Contains(t, res.Outcome.Error, "function crashed")
	assert.Equal(t, 1, h.gateway.calls)
}
