package processing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nikhilbhutani/vaultmind/internal/llm"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/nikhilbhutani/vaultmind/internal/prompt"
	"github.com/nikhilbhutani/vaultmind/internal/vault"
)

// tierResult is what a tier hands back before normalization.
type tierResult interface {
	normalize(model string, pricing llm.Pricing) models.Outcome
}

type vaultResult struct {
	res *vault.FunctionResult
}

func (r vaultResult) normalize(model string, pricing llm.Pricing) models.Outcome {
	tokens := tokensFromMap(r.res.TokensUsed)

	var cost float64
	if r.res.CostUSD != nil {
		cost = *r.res.CostUSD
	}
	if cost <= 0 {
		cost = pricing.Cost(tokens.Input, tokens.Output)
	}

	return models.Outcome{
		Success: true,
		Summary: r.res.Summary,
		Tokens:  tokens,
		CostUSD: cost,
		Model:   orDefault(r.res.Model, model),
		Tier:    models.TierVaultFunction,
	}
}

// tokensFromMap accepts both the input/output and input_tokens/output_tokens
// spellings.
func tokensFromMap(m map[string]int) models.TokenUsage {
	var t models.TokenUsage
	if v, ok := m["input"]; ok {
		t.Input = v
	} else {
		t.Input = m["input_tokens"]
	}
	if v, ok := m["output"]; ok {
		t.Output = v
	} else {
		t.Output = m["output_tokens"]
	}
	return t
}

type llmResult struct {
	resp *llm.ChatResponse
}

func (r llmResult) normalize(model string, pricing llm.Pricing) models.Outcome {
	tokens := models.TokenUsage{Input: r.resp.InputTokens, Output: r.resp.OutputTokens}
	cost := r.resp.CostUSD
	if cost <= 0 {
		cost = pricing.Cost(tokens.Input, tokens.Output)
	}
	return models.Outcome{
		Success: true,
		Summary: r.resp.Content,
		Tokens:  tokens,
		CostUSD: cost,
		Model:   orDefault(r.resp.Model, model),
		Tier:    models.TierDirectLLM,
	}
}

type staticResult struct {
	summary string
}

func (r staticResult) normalize(string, llm.Pricing) models.Outcome {
	return models.Outcome{
		Success:  true,
		Summary:  r.summary,
		Tokens:   models.TokenUsage{Input: staticInputTokens, Output: staticOutputTokens},
		CostUSD:  staticCostUSD,
		Model:    staticModel,
		Duration: staticDuration,
		Tier:     models.TierStatic,
		Degraded: true,
	}
}

var errEmptySummary = errors.New("empty summary")

func newBreaker[T any](name string, failures int, cooldown time.Duration) *gobreaker.CircuitBreaker[T] {
	if failures <= 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		// Missing configuration and caller cancellation say nothing about
		// the remote side.
		IsExcluded: func(err error) bool {
			return errors.Is(err, models.ErrConfigurationMissing) ||
				errors.Is(err, llm.ErrNotConfigured) ||
				errors.Is(err, context.Canceled)
		},
	})
}

func (o *Orchestrator) runVault(ctx context.Context, p *models.Patient, sel models.Selection, params models.GenerationParams) (tierResult, error) {
	if o.vault == nil {
		return nil, fmt.Errorf("vault function client: %w", models.ErrConfigurationMissing)
	}

	in := vault.FunctionRequest{
		PromptTemplate: sel.Body,
		PatientData: vault.FunctionPatientData{
			NameToken:  p.NameToken,
			SSNToken:   p.SSNToken,
			DOBToken:   p.DOBToken,
			Condition:  orDefault(p.Condition, "Unknown"),
			Department: orDefault(p.Department, "General"),
			LabResults: formatLabs(p.LabResults),
		},
		Parameters: params,
	}

	res, err := o.vaultBreaker.Execute(func() (*vault.FunctionResult, error) {
		tctx, cancel := withTimeout(ctx, o.opts.VaultTimeout)
		defer cancel()

		res, err := o.vault.InvokeFunction(tctx, o.opts.FunctionID, in)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return nil, fmt.Errorf("vault function reported failure: %s: %w", orDefault(res.Error, "no detail"), models.ErrRemoteInvocation)
		}
		if strings.TrimSpace(res.Summary) == "" {
			return nil, fmt.Errorf("vault function: %w", errors.Join(models.ErrRemoteInvocation, errEmptySummary))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return vaultResult{res: res}, nil
}

func (o *Orchestrator) runLLM(ctx context.Context, p *models.Patient, sel models.Selection, params models.GenerationParams, documentText string) (tierResult, error) {
	if o.llm == nil {
		return nil, fmt.Errorf("direct llm: %w", llm.ErrNotConfigured)
	}

	text, err := o.buildPrompt(ctx, p, sel, documentText)
	if err != nil {
		return nil, err
	}

	req := llm.ChatRequest{
		Model:       params.Model,
		Messages:    []llm.Message{{Role: "user", Content: text}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	resp, err := o.llmBreaker.Execute(func() (*llm.ChatResponse, error) {
		tctx, cancel := withTimeout(ctx, o.opts.LLMTimeout)
		defer cancel()

		resp, err := o.llm.Chat(tctx, req)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(resp.Content) == "" {
			return nil, fmt.Errorf("direct llm: %w: %w", llm.ErrUnavailable, errEmptySummary)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return llmResult{resp: resp}, nil
}

const documentPrompt = `You are an expert medical AI assistant. Analyze the following patient medical document and provide a professional clinical summary.

MEDICAL DOCUMENT:
%s

ANALYSIS REQUIREMENTS:
1. Assess the patient's current condition and severity
2. Identify key clinical findings, lab results, and vital signs
3. Note any critical values or concerning trends
4. Recommend specific, evidence-based next steps or interventions
5. Maintain a professional, objective clinical tone

Format: Provide a concise clinical summary (3-5 sentences) focusing on the most important findings and recommendations.`

// buildPrompt prefers the uploaded document text. Otherwise the template is
// rendered with the detokenized name, or a token-tagged placeholder when the
// vault cannot resolve it.
func (o *Orchestrator) buildPrompt(ctx context.Context, p *models.Patient, sel models.Selection, documentText string) (string, error) {
	if strings.TrimSpace(documentText) != "" {
		return fmt.Sprintf(documentPrompt, documentText), nil
	}

	rendered, err := prompt.Render(sel.Body, map[string]string{
		"name":        o.patientName(ctx, p),
		"condition":   orDefault(p.Condition, "Unknown"),
		"department":  orDefault(p.Department, "General"),
		"lab_results": formatLabs(p.LabResults),
	})
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", sel.Version, err)
	}
	return rendered, nil
}

func (o *Orchestrator) patientName(ctx context.Context, p *models.Patient) string {
	if p.NameToken == "" {
		return "Unknown"
	}
	placeholder := fmt.Sprintf("Patient (Token: %s...)", truncateToken(p.NameToken, 10))
	if o.detokenizer == nil {
		return placeholder
	}

	tctx, cancel := withTimeout(ctx, o.opts.VaultTimeout)
	defer cancel()
	name, err := o.detokenizer.Detokenize(tctx, "name", p.NameToken)
	if err != nil || name == "" {
		logDetokenizeFailure(p.ID, err)
		return placeholder
	}
	return name
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// failureReason is the metrics label for a tier error.
func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, models.ErrConfigurationMissing), errors.Is(err, llm.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, llm.ErrTimeout):
		return "timeout"
	case errors.Is(err, llm.ErrAuth):
		return "auth"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, errEmptySummary):
		return "empty_summary"
	default:
		return "unavailable"
	}
}
