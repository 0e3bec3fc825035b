package llm

import (
	"context"
	"fmt"
	"time"
)

// TestResult contains connection test results.
type TestResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// ConnectionTester checks that a configured provider answers.
type ConnectionTester interface {
	Test(ctx context.Context, client LLMClient) *TestResult
}

type connectionTester struct {
	timeout time.Duration
}

// NewConnectionTester creates a tester that gives each probe timeout to answer.
func NewConnectionTester(timeout time.Duration) ConnectionTester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &connectionTester{timeout: timeout}
}

// Test sends a minimal prompt through client.
func (t *connectionTester) Test(ctx context.Context, client LLMClient) *TestResult {
	if client == nil {
		return &TestResult{Message: "LLM not configured"}
	}

	result := &TestResult{Provider: client.GetProvider(), Model: client.GetModel()}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.GenerateResponse(ctx, "Say 'ok' and nothing else.", "", 0)
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	if err != nil {
		classified := ClassifyError(err)
		result.ErrorType = classified.Type
		result.Message = describeFailure(classified)
		return result
	}
	if resp == nil || resp.Content == "" {
		result.ErrorType = ErrorTypeUnknown
		result.Message = "LLM returned no response"
		return result
	}

	result.Success = true
	result.Message = fmt.Sprintf("LLM connection successful (model: %s, %dms)", result.Model, result.ResponseTimeMs)
	return result
}

func describeFailure(err *Error) string {
	switch err.Type {
	case ErrorTypeAuth:
		return "LLM: Invalid API key"
	case ErrorTypeModel:
		return "LLM: Model not found"
	case ErrorTypeRateLimited:
		return "LLM: Rate limited"
	case ErrorTypeEndpoint:
		return fmt.Sprintf("LLM: %s - check base URL", err.Message)
	}
	return fmt.Sprintf("LLM: %v", err)
}

var _ ConnectionTester = (*connectionTester)(nil)
