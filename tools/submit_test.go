package tools

import (
	"encoding/json"
	"testing"
)

func TestSubmitMetadataWithSeason(t *testing.T) {
	tool := NewSubmitTool(true)
	meta := tool.Metadata()

	if meta.Name != SubmitToolName {
		t.Errorf("expected name %q, got %q", SubmitToolName, meta.Name)
	}

	names := make(map[string]bool)
	for _, p := range meta.Parameters {
		names[p.Name] = true
	}
	for _, want := range []string{"id", "name", "season", "confidence_score"} {
		if !names[want] {
			t.Errorf("missing parameter %q", want)
		}
	}
}

func TestSubmitMetadataWithoutSeason(t *testing.T) {
	tool := NewSubmitTool(false)
	for _, p := range tool.Metadata().Parameters {
		if p.Name == "season" {
			t.Error("season parameter present on seasonless variant")
		}
	}
}

func TestParseSubmission(t *testing.T) {
	result, err := ParseSubmission(json.RawMessage(`{"id": 42, "name": "Frieren", "season": 1, "confidence_score": 95}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Found() {
		t.Fatal("expected a found result")
	}
	if *result.ID != 42 || *result.Name != "Frieren" || *result.Season != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Score() != 95 {
		t.Errorf("expected score 95, got %d", result.Score())
	}
}

func TestParseSubmissionEmpty(t *testing.T) {
	result, err := ParseSubmission(json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Found() {
		t.Error("empty submission should not be found")
	}
	if result.Score() != 0 {
		t.Errorf("expected score 0, got %d", result.Score())
	}
}

func TestParseSubmissionMalformed(t *testing.T) {
	if _, err := ParseSubmission(json.RawMessage(`{"id": "not a number"}`)); err == nil {
		t.Error("expected error for malformed arguments")
	}
}

func TestSubmitValidate(t *testing.T) {
	tool := NewSubmitTool(true)
	if err := tool.Validate(json.RawMessage(`{"id": 1, "confidence_score": 80}`)); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
	if err := tool.Validate(json.RawMessage(`{"id": []}`)); err == nil {
		t.Error("expected validation error")
	}
}
