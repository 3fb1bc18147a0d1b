package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nikhilbhutani/vaultmind/internal/config"
	"github.com/nikhilbhutani/vaultmind/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(config.VaultConfig{
		URL:             url,
		VaultID:         "v1",
		BearerToken:     "secret",
		Table:           "persons",
		Timeout:         2 * time.Second,
		FunctionTimeout: 2 * time.Second,
	})
}

func TestTokenize(t *testing.T) {
	var got insertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/vaults/v1/persons", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{
				"skyflow_id": "rec-1",
				"tokens":     map[string]string{"name": "tok-name"},
			}},
		})
	}))
	defer srv.Close()

	tokens, err := newTestClient(srv.URL).Tokenize(context.Background(), map[string]string{
		"name":      "Jane Doe",
		"dob":       "03/15/1980",
		"ssn":       "",
		"condition": "Diabetes",
	})
	require.NoError(t, err)

	assert.True(t, got.Tokenization)
	require.Len(t, got.Records, 1)
	assert.Equal(t, map[string]string{"name": "Jane Doe", "date_of_birth": "1980-03-15"}, got.Records[0].Fields)
	assert.Equal(t, map[string]string{"name": "tok-name", "dob": "rec-1"}, tokens)
}

func TestTokenizeNothingToStore(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	tokens, err := c.Tokenize(context.Background(), map[string]string{"condition": "x"})
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestTokenizeNotConfigured(t *testing.T) {
	c := NewClient(config.VaultConfig{})
	_, err := c.Tokenize(context.Background(), map[string]string{"name": "x"})
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}

func TestDetokenize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req detokenizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.Parameters[0].Token {
		case "good":
			json.NewEncoder(w).Encode(map[string]any{"records": []map[string]string{{"token": "good", "value": "Jane"}}})
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	v, err := c.Detokenize(context.Background(), "name", "good")
	require.NoError(t, err)
	assert.Equal(t, "Jane", v)

	_, err = c.Detokenize(context.Background(), "name", "garbage")
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = c.Detokenize(context.Background(), "name", "boom")
	assert.ErrorIs(t, err, ErrVaultUnreachable)

	_, err = c.Detokenize(context.Background(), "name", " ")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestDetokenizeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Detokenize(context.Background(), "name", "tok")
	assert.ErrorIs(t, err, ErrVaultUnreachable)
	assert.NotErrorIs(t, err, ErrMalformedToken)
}

func TestDetokenizeRecordID(t *testing.T) {
	id := "5f0c6b8e-1d2a-4c3b-9e8f-0a1b2c3d4e5f"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, id, r.URL.Query().Get("skyflow_ids"))
		assert.Equal(t, "PLAIN_TEXT", r.URL.Query().Get("redaction"))
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"fields": map[string]any{"skyflow_id": id, "name": "Jane Doe"}}},
		})
	}))
	defer srv.Close()

	v, err := newTestClient(srv.URL).Detokenize(context.Background(), "name", id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", v)
}

func TestDetokenizeRecordIDReadsRequestedField(t *testing.T) {
	id := "5f0c6b8e-1d2a-4c3b-9e8f-0a1b2c3d4e5f"
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			tokenCalls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{"fields": map[string]any{
				"skyflow_id":    id,
				"name":          "Jane Doe",
				"ssn":           "123-45-6789",
				"date_of_birth": "1980-03-15",
			}}},
		})
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	tests := []struct {
		field string
		want  string
	}{
		{"name", "Jane Doe"},
		{"ssn", "123-45-6789"},
		{"dob", "1980-03-15"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			v, err := c.Detokenize(context.Background(), tt.field, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	// A column missing from the record never borrows another field's value.
	_, err := c.Detokenize(context.Background(), "address", id)
	assert.ErrorIs(t, err, ErrMalformedToken)
	assert.Equal(t, int32(1), tokenCalls.Load())

	_, err = c.Detokenize(context.Background(), "condition", id)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestInvokeFunctionRetriesGlobalRoute(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v1/vaults/v1/functions/fn" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]FunctionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Diabetes", body["body"].PatientData.Condition)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"success":     true,
				"summary":     "ok",
				"tokens_used": map[string]int{"input_tokens": 10, "output_tokens": 20},
			},
		})
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).InvokeFunction(context.Background(), "fn", FunctionRequest{
		PatientData: FunctionPatientData{Condition: "Diabetes"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/v1/vaults/v1/functions/fn", "/v1/functions/fn"}, paths)
	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, 10, res.TokensUsed["input_tokens"])
	assert.Nil(t, res.CostUSD)
}

func TestInvokeFunctionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	_, err := c.InvokeFunction(context.Background(), "fn", FunctionRequest{})
	assert.ErrorIs(t, err, models.ErrRemoteInvocation)

	_, err = c.InvokeFunction(context.Background(), "", FunctionRequest{})
	assert.ErrorIs(t, err, models.ErrConfigurationMissing)
}
