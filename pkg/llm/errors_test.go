package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-decisions/pkg/retry"
)

func TestError_Error_IncludesContext(t *testing.T) {
	err := NewErrorWithContext(
		ErrorTypeEndpoint,
		"server error",
		true,
		errors.New("underlying network issue"),
		"gpt-4o",
		"https://api.openai.com/v1",
		503,
	)

	result := err.Error()
	assert.Contains(t, result, "HTTP 503")
	assert.Contains(t, result, "model=gpt-4o")
	assert.Contains(t, result, "endpoint=api.openai.com")
	assert.Contains(t, result, "underlying network issue")
	// Endpoint is redacted to host only
	assert.NotContains(t, result, "/v1")
}

func TestError_Error_MinimalContext(t *testing.T) {
	err := &Error{Type: ErrorTypeAuth, Message: "authentication failed"}

	assert.Equal(t, "auth authentication failed", err.Error())
}

func TestError_UnwrapAndRetryable(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewError(ErrorTypeEndpoint, "server error", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRetryable(cause))
}

func TestError_SatisfiesRetryPackage(t *testing.T) {
	var r retry.RetryableError = NewError(ErrorTypeAuth, "authentication failed", false, nil)

	assert.False(t, retry.IsRetryable(r), "auth errors declare themselves permanent")
	assert.True(t, retry.IsRetryable(NewError(ErrorTypeRateLimited, "rate limited", true, nil)))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
		retryable  bool
	}{
		{"503 service unavailable", errors.New("HTTP 503 Service Unavailable"), ErrorTypeEndpoint, 503, true},
		{"500 internal", errors.New("HTTP 500 Internal Server Error"), ErrorTypeEndpoint, 500, true},
		{"429 rate limit", errors.New("HTTP 429 Too Many Requests"), ErrorTypeRateLimited, 429, true},
		{"rate limit text", errors.New("rate limit exceeded"), ErrorTypeRateLimited, 0, true},
		{"anthropic rate limit type", errors.New("anthropic api error type: rate_limit_error"), ErrorTypeRateLimited, 0, true},
		{"529 overloaded", errors.New("status code: 529"), ErrorTypeEndpoint, 529, true},
		{"overloaded text", errors.New("overloaded_error: Overloaded"), ErrorTypeEndpoint, 0, true},
		{"401 unauthorized", errors.New("HTTP 401 Unauthorized"), ErrorTypeAuth, 401, false},
		{"invalid key", errors.New("invalid api key provided"), ErrorTypeAuth, 0, false},
		{"model missing", errors.New("the model `gpt-9` does not exist"), ErrorTypeModel, 0, false},
		{"404 endpoint", errors.New("HTTP 404 Not Found"), ErrorTypeEndpoint, 404, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, 0, true},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), ErrorTypeEndpoint, 0, true},
		{"context canceled", context.Canceled, ErrorTypeEndpoint, 0, false},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorTypeEndpoint, 0, false},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantType, result.Type)
			assert.Equal(t, tt.wantStatus, result.StatusCode)
			assert.Equal(t, tt.retryable, result.Retryable)
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyError_PreservesExistingError(t *testing.T) {
	original := &Error{Type: ErrorTypeEndpoint, Message: "server error", Retryable: true, StatusCode: 503}

	assert.Same(t, original, ClassifyError(fmt.Errorf("call: %w", original)))
}

func TestClassifyWithStatus_PrefersSDKStatus(t *testing.T) {
	result := classifyWithStatus(errors.New("request failed"), 429)

	assert.Equal(t, ErrorTypeRateLimited, result.Type)
	assert.Equal(t, 429, result.StatusCode)
}

func TestExtractStatusCode_Precision(t *testing.T) {
	tests := []struct {
		errStr string
		want   int
	}{
		{"HTTP 503 Service Unavailable", 503},
		{"status 429 rate limited", 429},
		{"status: 500", 500},
		{"error, status code: 502, message: bad gateway", 502},
		{"Status: 404 Not Found", 404},
		{"processed 503 records", 0},
		{"port 5432 connection failed", 0},
		{"error after 429 seconds", 0},
	}

	for _, tt := range tests {
		t.Run(tt.errStr, func(t *testing.T) {
			assert.Equal(t, tt.want, extractStatusCode(tt.errStr))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeNone, GetErrorType(nil))
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
	assert.Equal(t, ErrorTypeModel, GetErrorType(NewError(ErrorTypeModel, "model not found", false, nil)))
	assert.True(t, strings.HasPrefix(NewError(ErrorTypeModel, "x", false, nil).Error(), "model"))
}
