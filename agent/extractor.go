package agent

import (
	"context"
	"fmt"

	jsonutil "github.com/richinex/animatch/internal/json"
	"github.com/richinex/animatch/llm"
	"github.com/richinex/animatch/model"
)

// Extractor recovers a structured match result from free-form model text.
// It is the fallback path for runs where the model answered with prose
// instead of calling the terminal tool.
type Extractor struct {
	provider llm.Provider
	prompt   string
}

// NewExtractor creates an extractor with the given system prompt.
func NewExtractor(provider llm.Provider, prompt string) *Extractor {
	return &Extractor{provider: provider, prompt: prompt}
}

// Extract asks the model to restate text as a match result.
func (e *Extractor) Extract(ctx context.Context, text string) (model.MatchResult, error) {
	messages := []llm.ChatMessage{
		llm.SystemMessage(e.prompt),
		llm.UserMessage(text),
	}

	resp, err := e.provider.ChatWithFormat(ctx, messages, llm.NewJSONObjectFormat())
	if err != nil {
		return model.MatchResult{}, fmt.Errorf("extraction request failed: %w", err)
	}

	result, err := jsonutil.ExtractJSONFromResponse[model.MatchResult](resp.Content)
	if err != nil {
		return model.MatchResult{}, llm.Fatal(fmt.Errorf("extraction produced no usable result: %w", err))
	}
	return result, nil
}
