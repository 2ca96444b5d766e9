// Package agent implements the multi-turn tool-calling loop that resolves
// one catalog match per invocation.
//
// Information Hiding:
// - Conversation assembly and turn ordering hidden
// - Terminal tool interception hidden from tools themselves
// - Text-vs-tool result resolution internalized
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinex/animatch/llm"
	"github.com/richinex/animatch/model"
	"github.com/richinex/animatch/tools"
)

// Matcher drives one conversation with the model until it submits a match
// result. A Matcher is single-use per Match call: the conversation is owned
// by that call and never shared.
type Matcher struct {
	provider  llm.Provider
	registry  *tools.Registry
	executor  *tools.Executor
	extractor *Extractor
	prompt    string
	logger    *slog.Logger
}

// NewBgmTVMatcher creates a matcher wired for bgm.tv search.
func NewBgmTVMatcher(provider llm.Provider, logger *slog.Logger) (*Matcher, error) {
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewBgmTVSearchTool(),
		tools.NewSubmitTool(false),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return newMatcher(provider, registry, matchBgmPrompt, extractBgmResultPrompt, logger), nil
}

// NewTMDBMatcher creates a matcher wired for TMDB search, including the
// season lookup tool.
func NewTMDBMatcher(provider llm.Provider, logger *slog.Logger) (*Matcher, error) {
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		tools.NewTMDBSearchTVTool(),
		tools.NewTMDBSearchMovieTool(),
		tools.NewTMDBSeasonTool(),
		tools.NewSubmitTool(true),
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return newMatcher(provider, registry, matchTMDBPrompt, extractTMDBResultPrompt, logger), nil
}

// NewMatcher creates a matcher with an explicit registry and prompts.
// The registry must contain the terminal submit tool.
func NewMatcher(provider llm.Provider, registry *tools.Registry, prompt, extractPrompt string, logger *slog.Logger) *Matcher {
	return newMatcher(provider, registry, prompt, extractPrompt, logger)
}

func newMatcher(provider llm.Provider, registry *tools.Registry, prompt, extractPrompt string, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		provider:  provider,
		registry:  registry,
		executor:  tools.NewDefaultExecutor(),
		extractor: NewExtractor(provider, extractPrompt),
		prompt:    prompt,
		logger:    logger,
	}
}

// Match runs the loop for one query until the model submits a result or an
// unrecoverable error occurs. There is no internal round cap; callers bound
// wall-clock cost with their own retry or timeout wrapping.
func (m *Matcher) Match(ctx context.Context, query string) (model.MatchResult, error) {
	messages := []llm.ChatMessage{
		llm.SystemMessage(m.prompt),
		llm.UserMessage(query),
	}
	m.logger.Debug("match started", "provider", m.provider.Name(), "tools", m.registry.Names())

	for {
		resp, err := m.provider.ChatWithTools(ctx, messages, m.registry.Definitions())
		if err != nil {
			return model.MatchResult{}, fmt.Errorf("completion failed: %w", err)
		}

		// A tool call always wins over stray text in the same round:
		// only the terminal tool is authoritative, and intermediate
		// text is just narration.
		if len(resp.ToolCalls) > 0 {
			call := resp.ToolCalls[0]
			messages = append(messages, llm.AssistantToolCallMessage(resp.Content, call))

			if call.Name == tools.SubmitToolName {
				result, err := tools.ParseSubmission(call.Arguments)
				if err != nil {
					return model.MatchResult{}, llm.Fatal(err)
				}
				m.logger.Info("match submitted",
					"provider", m.provider.Name(),
					"found", result.Found(),
					"score", result.Score())
				return result, nil
			}

			output, err := m.callTool(ctx, call)
			if err != nil {
				return model.MatchResult{}, err
			}
			messages = append(messages, llm.ToolResultMessage(call.ID, output))
			continue
		}

		if resp.Content == "" {
			return model.MatchResult{}, llm.Fatal(errors.New("model returned an empty response"))
		}

		// Text-only round: the answer is final. Only a response that is
		// a match result in full parses directly; anything with
		// surrounding narration goes through the extractor.
		messages = append(messages, llm.AssistantMessage(resp.Content))
		m.logger.Debug("text answer", "content", resp.Content)

		var result model.MatchResult
		if err := json.Unmarshal([]byte(resp.Content), &result); err == nil {
			return result, nil
		}
		return m.extractor.Extract(ctx, resp.Content)
	}
}

// callTool dispatches one tool call and returns the serialized result.
func (m *Matcher) callTool(ctx context.Context, call llm.ToolCall) (string, error) {
	tool, ok := m.registry.Get(call.Name)
	if !ok {
		return "", llm.Fatal(fmt.Errorf("model requested unknown tool %q", call.Name))
	}

	m.logger.Info("tool call", "tool", call.Name)

	result, err := m.executor.Execute(ctx, tool, call.Arguments)
	if err != nil {
		return "", llm.Classify(err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", llm.Fatal(fmt.Errorf("failed to encode tool result: %w", err))
	}
	return string(payload), nil
}
