// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/animatch/llm"
)

// Executor provides tool execution with retry and per-attempt timeouts.
type Executor struct {
	config ToolConfig
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultToolConfig()}
}

// Execute runs a tool with retry logic. Each attempt is bounded by the
// configured timeout. Failures are classified: argument and validation
// errors are fatal, a spent retry budget is transient.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return ToolResult{}, llm.Fatal(fmt.Errorf("validation failed: %w", err))
	}

	var lastErr error
	toolName := tool.Metadata().Name
	maxRetries := e.config.Retries()
	attemptTimeout := time.Duration(e.config.Timeout()) * time.Second

	for attempt := uint32(0); attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		result, err := tool.Execute(attemptCtx, args)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		if result.Success() {
			return result, nil
		}

		if !e.shouldRetry(result) {
			return result, llm.Fatal(result.Error)
		}

		lastErr = result.Error
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("unknown error")
	}
	return ToolResult{}, llm.Transient(fmt.Errorf("tool '%s' failed after %d attempts: %w", toolName, maxRetries, lastErr))
}

// calculateBackoff returns the backoff duration for the given attempt.
func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if a failed result is retryable.
func (e *Executor) shouldRetry(result ToolResult) bool {
	if result.Error == nil {
		return true
	}

	errLower := strings.ToLower(result.Error.Error())

	// Don't retry validation errors or malformed arguments.
	nonRetryable := []string{"validation", "invalid", "malformed", "empty"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	return true
}
