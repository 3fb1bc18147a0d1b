package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicChatCompletion(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Stable glycemic control."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1000, "output_tokens": 200}
		}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", Pricing{InputPerMTok: 3, OutputPerMTok: 15}, option.WithBaseURL(srv.URL+"/"))
	resp, err := p.ChatCompletion(context.Background(), ChatRequest{
		Model:       "claude-3-5-sonnet-20241022",
		Messages:    []Message{{Role: "user", Content: "summarize"}},
		Temperature: 0.3,
		MaxTokens:   800,
	})
	require.NoError(t, err)

	assert.Equal(t, "Stable glycemic control.", resp.Content)
	assert.Equal(t, 1000, resp.InputTokens)
	assert.Equal(t, 200, resp.OutputTokens)
	assert.InDelta(t, 0.006, resp.CostUSD, 1e-12)
	assert.Equal(t, 0.3, body["temperature"])
	assert.Equal(t, float64(800), body["max_tokens"])
}

func TestAnthropicErrorsAreCategorized(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadRequest, ErrMalformedRequest},
		{http.StatusInternalServerError, ErrUnavailable},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(c.status)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		}))

		p := NewAnthropicProvider("k", Pricing{}, option.WithBaseURL(srv.URL+"/"))
		_, err := p.ChatCompletion(context.Background(), ChatRequest{
			Model:    "claude-3-5-sonnet-20241022",
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		assert.ErrorIs(t, err, c.want, "status %d", c.status)
		srv.Close()
	}
}
