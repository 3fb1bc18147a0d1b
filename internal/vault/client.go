package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/models"
)

var (
	ErrMalformedToken   = errors.New("malformed vault token")
	ErrVaultUnreachable = errors.New("vault unreachable")
)

// fieldColumns maps intake field names to vault table columns.
var fieldColumns = []struct{ field, column string }{
	{"name", "name"},
	{"ssn", "ssn"},
	{"dob", "date_of_birth"},
	{"address", "state"},
	{"email", "email_address"},
}

func columnFor(field string) (string, bool) {
	for _, fc := range fieldColumns {
		if fc.field == field {
			return fc.column, true
		}
	}
	return "", false
}

var skyflowIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type Client struct {
	baseURL        string
	vaultID        string
	bearerToken    string
	table          string
	httpClient     *http.Client
	functionClient *http.Client
}

func NewClient(cfg config.VaultConfig) *Client {
	return &Client{
		baseURL:        cfg.URL,
		vaultID:        cfg.VaultID,
		bearerToken:    cfg.BearerToken,
		table:          cfg.Table,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		functionClient: &http.Client{Timeout: cfg.FunctionTimeout},
	}
}

func (c *Client) configured() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "VAULT_URL")
	}
	if c.vaultID == "" {
		missing = append(missing, "VAULT_ID")
	}
	if c.bearerToken == "" {
		missing = append(missing, "VAULT_BEARER_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("vault client: %s: %w", strings.Join(missing, ", "), models.ErrConfigurationMissing)
	}
	return nil
}

type insertRecord struct {
	Fields map[string]string `json:"fields"`
}

type insertRequest struct {
	Records      []insertRecord `json:"records"`
	Tokenization bool           `json:"tokenization"`
}

type insertResponse struct {
	Records []struct {
		SkyflowID string            `json:"skyflow_id"`
		Tokens    map[string]string `json:"tokens"`
		Fields    map[string]string `json:"fields"`
	} `json:"records"`
}

// Tokenize stores the sensitive fields present in fields and returns a token
// per field name ("name", "ssn", "dob", "address", "email"). Empty and
// unknown fields are skipped, so partial sets are fine.
func (c *Client) Tokenize(ctx context.Context, fields map[string]string) (map[string]string, error) {
	columns := make(map[string]string)
	for _, fc := range fieldColumns {
		v := strings.TrimSpace(fields[fc.field])
		if v == "" {
			continue
		}
		if fc.column == "date_of_birth" {
			v = normalizeDate(v)
		}
		columns[fc.column] = v
	}
	if len(columns) == 0 {
		return map[string]string{}, nil
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	var resp insertResponse
	endpoint := fmt.Sprintf("%s/v1/vaults/%s/%s", c.baseURL, c.vaultID, c.table)
	status, err := c.postJSON(ctx, c.httpClient, endpoint, insertRequest{
		Records:      []insertRecord{{Fields: columns}},
		Tokenization: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("insert vault record: %w", err)
	}
	if status >= 400 {
		return nil, fmt.Errorf("insert vault record (%d): %w", status, ErrVaultUnreachable)
	}
	if len(resp.Records) == 0 {
		return nil, fmt.Errorf("insert vault record: empty response: %w", ErrVaultUnreachable)
	}

	rec := resp.Records[0]
	tokens := make(map[string]string, len(columns))
	for _, fc := range fieldColumns {
		if _, ok := columns[fc.column]; !ok {
			continue
		}
		switch {
		case rec.Tokens[fc.column] != "":
			tokens[fc.field] = rec.Tokens[fc.column]
		case rec.Fields[fc.column] != "":
			tokens[fc.field] = rec.Fields[fc.column]
		default:
			tokens[fc.field] = rec.SkyflowID
		}
	}
	return tokens, nil
}

type detokenizeRequest struct {
	Parameters []detokenizeParam `json:"detokenizationParameters"`
}

type detokenizeParam struct {
	Token string `json:"token"`
}

type detokenizeResponse struct {
	Records []struct {
		Token string `json:"token"`
		Value string `json:"value"`
	} `json:"records"`
}

// Detokenize resolves the token issued for field ("name", "ssn", "dob",
// "address", "email") to its plaintext. A record id stands in for every field
// of its record, so it is looked up directly and only field's column is read
// before falling back to the token endpoint.
func (c *Client) Detokenize(ctx context.Context, field, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("detokenize %s: empty token: %w", field, ErrMalformedToken)
	}
	if err := c.configured(); err != nil {
		return "", err
	}

	if skyflowIDPattern.MatchString(strings.ToLower(token)) {
		column, ok := columnFor(field)
		if !ok {
			return "", fmt.Errorf("detokenize: unknown field %q: %w", field, ErrMalformedToken)
		}
		if v, ok := c.lookupRecord(ctx, token, column); ok {
			return v, nil
		}
	}

	var resp detokenizeResponse
	endpoint := fmt.Sprintf("%s/v1/vaults/%s/tokens/detokenize", c.baseURL, c.vaultID)
	status, err := c.postJSON(ctx, c.httpClient, endpoint, detokenizeRequest{
		Parameters: []detokenizeParam{{Token: token}},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("detokenize: %w", err)
	}
	switch {
	case status >= 500:
		return "", fmt.Errorf("detokenize (%d): %w", status, ErrVaultUnreachable)
	case status >= 400:
		return "", fmt.Errorf("detokenize (%d): %w", status, ErrMalformedToken)
	}
	if len(resp.Records) == 0 || resp.Records[0].Value == "" {
		return "", fmt.Errorf("detokenize: no value for token: %w", ErrMalformedToken)
	}
	return resp.Records[0].Value, nil
}

func (c *Client) lookupRecord(ctx context.Context, id, column string) (string, bool) {
	q := url.Values{}
	q.Set("skyflow_ids", id)
	q.Set("redaction", "PLAIN_TEXT")
	endpoint := fmt.Sprintf("%s/v1/vaults/%s/%s?%s", c.baseURL, c.vaultID, c.table, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var body struct {
		Records []struct {
			Fields map[string]any `json:"fields"`
		} `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Records) == 0 {
		return "", false
	}
	v, ok := body.Records[0].Fields[column]
	if !ok || v == nil || fmt.Sprint(v) == "" {
		return "", false
	}
	return fmt.Sprint(v), true
}

// FunctionRequest is the body handed to a vault-confined function.
type FunctionRequest struct {
	PromptTemplate string                  `json:"prompt_template"`
	PatientData    FunctionPatientData     `json:"patient_data"`
	Parameters     models.GenerationParams `json:"parameters"`
}

type FunctionPatientData struct {
	NameToken  string `json:"name_token"`
	SSNToken   string `json:"ssn_token"`
	DOBToken   string `json:"dob_token"`
	Condition  string `json:"condition"`
	Department string `json:"department"`
	LabResults string `json:"lab_results"`
}

// FunctionResult is the function's reply as sent; token usage may use either
// input/output or input_tokens/output_tokens keys.
type FunctionResult struct {
	Success    bool           `json:"success"`
	Summary    string         `json:"summary"`
	TokensUsed map[string]int `json:"tokens_used"`
	CostUSD    *float64       `json:"cost_usd"`
	Model      string         `json:"claude_model"`
	Error      string         `json:"error"`
}

// InvokeFunction runs functionID inside the vault. A 404 on the vault-scoped
// route is retried on the global functions route.
func (c *Client) InvokeFunction(ctx context.Context, functionID string, in FunctionRequest) (*FunctionResult, error) {
	if functionID == "" {
		return nil, fmt.Errorf("vault function id: %w", models.ErrConfigurationMissing)
	}
	if err := c.configured(); err != nil {
		return nil, err
	}

	payload := map[string]any{"body": in}
	var raw json.RawMessage

	endpoint := fmt.Sprintf("%s/v1/vaults/%s/functions/%s", c.baseURL, c.vaultID, functionID)
	status, err := c.postJSON(ctx, c.functionClient, endpoint, payload, &raw)
	if err == nil && status == http.StatusNotFound {
		endpoint = fmt.Sprintf("%s/v1/functions/%s", c.baseURL, functionID)
		status, err = c.postJSON(ctx, c.functionClient, endpoint, payload, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("invoke vault function: %w", errors.Join(models.ErrRemoteInvocation, err))
	}
	if status >= 400 {
		return nil, fmt.Errorf("invoke vault function (%d): %w", status, models.ErrRemoteInvocation)
	}

	result, err := decodeFunctionResult(raw)
	if err != nil {
		return nil, fmt.Errorf("decode vault function result: %w", errors.Join(models.ErrRemoteInvocation, err))
	}
	return result, nil
}

func decodeFunctionResult(raw json.RawMessage) (*FunctionResult, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	for _, key := range []string{"result", "body"} {
		if inner, ok := envelope[key]; ok && len(inner) > 0 && inner[0] == '{' {
			raw = inner
			break
		}
	}

	var res FunctionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// postJSON returns the response status. Bodies of 2xx responses are decoded
// into out; transport failures wrap ErrVaultUnreachable.
func (c *Client) postJSON(ctx context.Context, client *http.Client, endpoint string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return 0, errors.Join(ErrVaultUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// normalizeDate turns MM/DD/YYYY into YYYY-MM-DD; anything else is kept.
func normalizeDate(v string) string {
	parts := strings.Split(v, "/")
	if len(parts) != 3 {
		return v
	}
	if t, err := time.Parse("1/2/2006", v); err == nil {
		return t.Format("2006-01-02")
	}
	return v
}
