// Error classification for completion backends.
//
// The retry wrapper around the agent loop only retries transient
// conditions (network failures, rate limits, server errors). Anything
// the backend rejects outright (malformed request, auth, schema) is
// fatal and aborts the current attempt for good.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Error wraps a provider failure with its retry classification.
type Error struct {
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Retryable {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Retryable: true, Err: err}
}

// Fatal wraps err as a non-retryable failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Retryable: false, Err: err}
}

// IsTransient reports whether err is worth retrying. Unclassified errors
// are inspected with the same heuristics providers use.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return classify(err)
}

// Classify wraps a raw provider error with its retry classification.
// Already-classified errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Retryable: classify(err), Err: err}
}

func classify(err error) bool {
	// A cancelled caller is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return retryableStatus(openaiErr.HTTPStatusCode)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection", "rate limit", "overloaded", "temporarily"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// Unknown failures default to retryable: transport-level errors from
	// SDK internals rarely carry a typed cause.
	return true
}

// retryableStatus classifies an HTTP status: rate limits, timeouts and
// server errors are retryable; other client errors are not.
func retryableStatus(code int) bool {
	switch {
	case code == 408 || code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
