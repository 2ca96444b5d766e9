package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/richinex/animatch/llm"
)

type flakyTool struct {
	BaseTool
	failures int
	calls    int
}

func (t *flakyTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "flaky", Description: "fails then succeeds"}
}

func (t *flakyTool) Execute(_ context.Context, _ json.RawMessage) (ToolResult, error) {
	t.calls++
	if t.calls <= t.failures {
		return FailureResult(fmt.Errorf("connection reset")), nil
	}
	return SuccessResult("done"), nil
}

type rejectingTool struct {
	BaseTool
	calls int
}

func (t *rejectingTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "rejecting", Description: "always rejects"}
}

func (t *rejectingTool) Validate(_ json.RawMessage) error {
	return fmt.Errorf("query cannot be empty")
}

func (t *rejectingTool) Execute(_ context.Context, _ json.RawMessage) (ToolResult, error) {
	t.calls++
	return SuccessResult("should not run"), nil
}

type badArgsTool struct {
	BaseTool
	calls int
}

func (t *badArgsTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "badargs", Description: "rejects its arguments at runtime"}
}

func (t *badArgsTool) Execute(_ context.Context, _ json.RawMessage) (ToolResult, error) {
	t.calls++
	return FailureResult(fmt.Errorf("invalid arguments: no query")), nil
}

type stallingTool struct {
	BaseTool
	calls int
}

func (t *stallingTool) Metadata() ToolMetadata {
	return ToolMetadata{Name: "stalling", Description: "blocks until cancelled"}
}

func (t *stallingTool) Execute(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
	t.calls++
	<-ctx.Done()
	return ToolResult{}, ctx.Err()
}

func TestExecutorRetriesTransientFailure(t *testing.T) {
	tool := &flakyTool{failures: 2}
	executor := NewDefaultExecutor()

	result, err := executor.Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success() {
		t.Fatalf("expected success after retries, got %v", result.Error)
	}
	if tool.calls != 3 {
		t.Errorf("expected 3 calls, got %d", tool.calls)
	}
}

func TestExecutorExhaustionIsTransient(t *testing.T) {
	tool := &flakyTool{failures: 10}
	executor := NewExecutor(ToolConfig{MaxRetries: 2})

	_, err := executor.Execute(context.Background(), tool, nil)
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if !llm.IsTransient(err) {
		t.Error("spent retry budget should classify as transient")
	}
	if tool.calls != 2 {
		t.Errorf("expected 2 calls, got %d", tool.calls)
	}
}

func TestExecutorValidationFailureFatal(t *testing.T) {
	tool := &rejectingTool{}
	executor := NewDefaultExecutor()

	_, err := executor.Execute(context.Background(), tool, nil)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if llm.IsTransient(err) {
		t.Error("validation failure should be fatal")
	}
	if tool.calls != 0 {
		t.Errorf("tool executed despite failing validation: %d calls", tool.calls)
	}
}

func TestExecutorArgumentFailureNotRetried(t *testing.T) {
	tool := &badArgsTool{}
	executor := NewDefaultExecutor()

	_, err := executor.Execute(context.Background(), tool, nil)
	if err == nil {
		t.Fatal("expected error for runtime argument failure")
	}
	if llm.IsTransient(err) {
		t.Error("argument failure should be fatal")
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 call, got %d", tool.calls)
	}
}

func TestExecutorAttemptTimeout(t *testing.T) {
	tool := &stallingTool{}
	executor := NewExecutor(ToolConfig{TimeoutSecs: 1, MaxRetries: 1})

	start := time.Now()
	_, err := executor.Execute(context.Background(), tool, nil)
	if err == nil {
		t.Fatal("expected error for stalled tool")
	}
	if !llm.IsTransient(err) {
		t.Error("timed-out attempt should classify as transient")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("attempt was not bounded by the configured timeout: %v", elapsed)
	}
	if tool.calls != 1 {
		t.Errorf("expected 1 call, got %d", tool.calls)
	}
}

func TestExecutorContextCancelled(t *testing.T) {
	tool := &flakyTool{failures: 10}
	executor := NewDefaultExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := executor.Execute(ctx, tool, nil); err == nil {
		t.Error("expected error once context is cancelled")
	}
}
