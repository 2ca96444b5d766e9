// Terminal submit tool.
//
// The agent ends a match run by calling "submit" with the match result as
// arguments. The loop takes the arguments directly and never executes the
// tool, so Execute is a sentinel no-op.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/richinex/animatch/model"
)

// SubmitToolName is the distinguished terminal tool name. A call to it
// ends the agent loop with its arguments as the result.
const SubmitToolName = "submit"

// SubmitTool is the terminal tool the agent calls to deliver its result.
type SubmitTool struct {
	BaseTool
	withSeason bool
}

// NewSubmitTool creates the terminal tool. withSeason adds the season
// parameter for platforms that model seasons.
func NewSubmitTool(withSeason bool) *SubmitTool {
	return &SubmitTool{withSeason: withSeason}
}

// Metadata returns the tool metadata.
func (t *SubmitTool) Metadata() ToolMetadata {
	params := []ToolParameter{
		{Name: "id", ParamType: "number", Description: "The id of the matched entry"},
		{Name: "name", ParamType: "string", Description: "The name of the matched entry"},
	}
	if t.withSeason {
		params = append(params, ToolParameter{
			Name: "season", ParamType: "number", Description: "The season number of the matched entry",
		})
	}
	params = append(params, ToolParameter{
		Name: "confidence_score", ParamType: "number",
		Description: "The confidence score of the match, value range from 0 to 100",
		Required:    true,
	})

	return ToolMetadata{
		Name:        SubmitToolName,
		Description: "Submit the match result",
		Parameters:  params,
	}
}

// Validate checks that the arguments decode into a match result.
func (t *SubmitTool) Validate(args json.RawMessage) error {
	var result model.MatchResult
	if err := json.Unmarshal(args, &result); err != nil {
		return fmt.Errorf("invalid submit arguments: %w", err)
	}
	return nil
}

// Execute is never reached in normal operation; the agent loop intercepts
// submit calls before dispatch.
func (t *SubmitTool) Execute(_ context.Context, _ json.RawMessage) (ToolResult, error) {
	return SuccessResult(""), nil
}

// ParseSubmission decodes terminal-tool arguments into a MatchResult.
func ParseSubmission(args json.RawMessage) (model.MatchResult, error) {
	var result model.MatchResult
	if err := json.Unmarshal(args, &result); err != nil {
		return model.MatchResult{}, fmt.Errorf("malformed submit arguments: %w", err)
	}
	return result, nil
}

// Verify SubmitTool implements Tool
var _ Tool = (*SubmitTool)(nil)
