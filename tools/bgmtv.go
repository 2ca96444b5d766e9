// bgm.tv catalog tool.
//
// Information Hiding:
// - Search endpoint and request body shape hidden
// - Infobox trimming internalized
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultBgmBaseURL = "https://api.bgm.tv"

const bgmUserAgent = "richinex/animatch"

// bgmInfoboxItem is one infobox entry. Values can be a plain string or a
// list of {"v": ...} objects, so the raw JSON is carried through as-is.
type bgmInfoboxItem struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// bgmSubject is a search hit trimmed for the agent. The infobox keeps only
// the name aliases, which is what matters for title matching.
type bgmSubject struct {
	ID            int              `json:"id"`
	Type          int              `json:"type"`
	Name          string           `json:"name"`
	NameCN        string           `json:"name_cn"`
	Date          string           `json:"date,omitempty"`
	Eps           int              `json:"eps"`
	TotalEpisodes int              `json:"total_episodes"`
	Infobox       []bgmInfoboxItem `json:"infobox"`
}

type bgmPage struct {
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
	Data   []bgmSubject `json:"data"`
}

// BgmTVSearchTool searches bgm.tv subjects.
type BgmTVSearchTool struct {
	BaseTool
	client  *http.Client
	baseURL string
}

// NewBgmTVSearchTool creates the search tool. BGM_API_URL overrides the
// default endpoint.
func NewBgmTVSearchTool() *BgmTVSearchTool {
	baseURL := os.Getenv("BGM_API_URL")
	if baseURL == "" {
		baseURL = defaultBgmBaseURL
	}
	return &BgmTVSearchTool{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
	}
}

// Metadata returns the tool metadata.
func (t *BgmTVSearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "bgm_tv_search",
		Description: "Search for TV shows on BgmTV",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The search query for bgm tv", Required: true},
			{Name: "start_date", ParamType: "string", Description: "The earliest air date for the search, example: 2024-01-01", Required: false},
		},
	}
}

type bgmSearchArgs struct {
	Query     string `json:"query"`
	StartDate string `json:"start_date,omitempty"`
}

// Validate validates the arguments.
func (t *BgmTVSearchTool) Validate(args json.RawMessage) error {
	var a bgmSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute searches bgm.tv subjects, sorted by rank.
func (t *BgmTVSearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a bgmSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	keyword := strings.Join(strings.Fields(a.Query), "+")

	var airDate []string
	if a.StartDate != "" {
		airDate = append(airDate, ">="+a.StartDate)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(map[string]interface{}{
		"keyword": keyword,
		"filter": map[string]interface{}{
			"sort":     "rank",
			"nsfw":     true,
			"air_date": airDate,
		},
	})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode request: %w", err)), nil
	}
	body := buf.Bytes()

	url := t.baseURL + "/v0/search/subjects?limit=10&offset=0"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return FailureResult(fmt.Errorf("failed to create request: %w", err)), nil
	}
	req.Header.Set("User-Agent", bgmUserAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return FailureResult(fmt.Errorf("request failed: %w", err)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read response body: %w", err)), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FailureResult(fmt.Errorf("bgm.tv returned %s: %s", resp.Status, string(respBody))), nil
	}

	var page bgmPage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return FailureResult(fmt.Errorf("failed to decode response: %w", err)), nil
	}

	for i := range page.Data {
		page.Data[i].Infobox = trimInfobox(page.Data[i].Infobox)
	}

	out, err := json.Marshal(page)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode results: %w", err)), nil
	}
	return SuccessResult(string(out)), nil
}

// trimInfobox keeps only the name alias entries.
func trimInfobox(items []bgmInfoboxItem) []bgmInfoboxItem {
	kept := items[:0]
	for _, item := range items {
		switch item.Key {
		case "中文名", "别名", "英文名":
			kept = append(kept, item)
		}
	}
	return kept
}

// Verify BgmTVSearchTool implements Tool
var _ Tool = (*BgmTVSearchTool)(nil)
