package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// Failure categories reported by providers. Every provider error wraps one.
var (
	ErrAuth             = errors.New("llm authentication failed")
	ErrRateLimited      = errors.New("llm rate limited")
	ErrTimeout          = errors.New("llm request timed out")
	ErrMalformedRequest = errors.New("llm rejected request")
	ErrUnavailable      = errors.New("llm unavailable")
	ErrNotConfigured    = errors.New("llm provider not configured")
)

// Classify maps a provider or transport error to its category.
func Classify(err error) error {
	for _, kind := range []error{ErrAuth, ErrRateLimited, ErrTimeout, ErrMalformedRequest, ErrUnavailable, ErrNotConfigured} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return classifyStatus(anthropicErr.StatusCode)
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return classifyStatus(openaiErr.HTTPStatusCode)
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return classifyStatus(requestErr.HTTPStatusCode)
	}

	return ErrUnavailable
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 400 && status < 500:
		return ErrMalformedRequest
	default:
		return ErrUnavailable
	}
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	switch Classify(err) {
	case ErrRateLimited, ErrTimeout, ErrUnavailable:
		return true
	}
	return false
}

func categorize(provider string, err error) error {
	return fmt.Errorf("%s chat: %w: %w", provider, Classify(err), err)
}
