// TMDB catalog tools.
//
// Information Hiding:
// - TMDB REST endpoints and auth hidden behind a small client
// - Response trimming hidden from the agent
// - Episode group vs. details season resolution internalized
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const defaultTMDBBaseURL = "https://api.themoviedb.org/3"

// tmdbClient is a minimal TMDB v3 API client shared by the TMDB tools.
type tmdbClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

func newTMDBClient() *tmdbClient {
	baseURL := os.Getenv("TMDB_API_URL")
	if baseURL == "" {
		baseURL = defaultTMDBBaseURL
	}
	return &tmdbClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		apiKey:  os.Getenv("TMDB_API_KEY"),
		baseURL: baseURL,
	}
}

// get issues a GET request against the API and decodes the JSON response
// into out.
func (c *tmdbClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("TMDB_API_KEY not set")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("language", "zh-CN")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tmdb returned %s: %s", resp.Status, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// tmdbShow is a trimmed TV search hit. Only the fields the agent needs to
// judge a match are kept.
type tmdbShow struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	FirstAirDate string `json:"first_air_date"`
}

type tmdbMovie struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	OriginalTitle string `json:"original_title"`
	ReleaseDate   string `json:"release_date"`
}

// TMDBSearchTVTool searches TMDB for TV shows.
type TMDBSearchTVTool struct {
	BaseTool
	client *tmdbClient
}

// NewTMDBSearchTVTool creates the TV search tool. Configuration comes from
// TMDB_API_KEY and TMDB_API_URL.
func NewTMDBSearchTVTool() *TMDBSearchTVTool {
	return &TMDBSearchTVTool{client: newTMDBClient()}
}

// Metadata returns the tool metadata.
func (t *TMDBSearchTVTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "tmdb_search_tv_show",
		Description: "Search for TV shows on TMDB",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The search query for TV shows", Required: true},
		},
	}
}

type tmdbSearchArgs struct {
	Query string `json:"query"`
	Year  int    `json:"year,omitempty"`
}

// Validate validates the arguments.
func (t *TMDBSearchTVTool) Validate(args json.RawMessage) error {
	var a tmdbSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute searches for TV shows.
func (t *TMDBSearchTVTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a tmdbSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	params := url.Values{}
	params.Set("query", a.Query)
	if a.Year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(a.Year))
	}

	var page struct {
		Results []tmdbShow `json:"results"`
	}
	if err := t.client.get(ctx, "/search/tv", params, &page); err != nil {
		return FailureResult(err), nil
	}

	out, err := json.Marshal(map[string]interface{}{"data": page.Results})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode results: %w", err)), nil
	}
	return SuccessResult(string(out)), nil
}

// TMDBSearchMovieTool searches TMDB for movies.
type TMDBSearchMovieTool struct {
	BaseTool
	client *tmdbClient
}

// NewTMDBSearchMovieTool creates the movie search tool.
func NewTMDBSearchMovieTool() *TMDBSearchMovieTool {
	return &TMDBSearchMovieTool{client: newTMDBClient()}
}

// Metadata returns the tool metadata.
func (t *TMDBSearchMovieTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "tmdb_search_movie",
		Description: "Search for movies on TMDB",
		Parameters: []ToolParameter{
			{Name: "query", ParamType: "string", Description: "The search query for movies", Required: true},
		},
	}
}

// Validate validates the arguments.
func (t *TMDBSearchMovieTool) Validate(args json.RawMessage) error {
	var a tmdbSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// Execute searches for movies.
func (t *TMDBSearchMovieTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a tmdbSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	params := url.Values{}
	params.Set("query", a.Query)
	if a.Year > 0 {
		params.Set("year", strconv.Itoa(a.Year))
	}

	var page struct {
		Results []tmdbMovie `json:"results"`
	}
	if err := t.client.get(ctx, "/search/movie", params, &page); err != nil {
		return FailureResult(err), nil
	}

	out, err := json.Marshal(map[string]interface{}{"data": page.Results})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode results: %w", err)), nil
	}
	return SuccessResult(string(out)), nil
}

// tmdbSeason is a season as reported to the agent. Episode-group seasons
// and details seasons share this shape.
type tmdbSeason struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Number       int    `json:"number"`
	FirstAirDate string `json:"first_air_date,omitempty"`
}

// TMDBSeasonTool fetches the season list of a TV show. Episode groups are
// preferred when the show has a group of type 6 (seasons), since those
// reflect how the show is actually split; the plain details seasons are
// appended after.
type TMDBSeasonTool struct {
	BaseTool
	client *tmdbClient
}

// NewTMDBSeasonTool creates the season detail tool.
func NewTMDBSeasonTool() *TMDBSeasonTool {
	return &TMDBSeasonTool{client: newTMDBClient()}
}

// Metadata returns the tool metadata.
func (t *TMDBSeasonTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "tmdb_season",
		Description: "Get Tv seasons detail",
		Parameters: []ToolParameter{
			{Name: "tv_id", ParamType: "number", Description: "The TMDB ID of the TV show", Required: true},
		},
	}
}

type tmdbSeasonArgs struct {
	TVID int64 `json:"tv_id"`
}

// Validate validates the arguments.
func (t *TMDBSeasonTool) Validate(args json.RawMessage) error {
	var a tmdbSeasonArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.TVID == 0 {
		return fmt.Errorf("tv_id cannot be empty")
	}
	return nil
}

// Execute fetches the season list.
func (t *TMDBSeasonTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a tmdbSeasonArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	seasons, err := t.groupSeasons(ctx, a.TVID)
	if err != nil {
		return FailureResult(err), nil
	}

	var details struct {
		Seasons []struct {
			ID           int64  `json:"id"`
			Name         string `json:"name"`
			SeasonNumber int    `json:"season_number"`
			AirDate      string `json:"air_date"`
		} `json:"seasons"`
	}
	if err := t.client.get(ctx, fmt.Sprintf("/tv/%d", a.TVID), nil, &details); err != nil {
		return FailureResult(err), nil
	}
	for _, s := range details.Seasons {
		seasons = append(seasons, tmdbSeason{
			ID:           strconv.FormatInt(s.ID, 10),
			Name:         s.Name,
			Number:       s.SeasonNumber,
			FirstAirDate: s.AirDate,
		})
	}

	out, err := json.Marshal(map[string]interface{}{"data": seasons})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode results: %w", err)), nil
	}
	return SuccessResult(string(out)), nil
}

// groupSeasons resolves seasons from the show's episode groups, if any.
func (t *TMDBSeasonTool) groupSeasons(ctx context.Context, tvID int64) ([]tmdbSeason, error) {
	var groups struct {
		Results []struct {
			ID   string `json:"id"`
			Type int    `json:"type"`
		} `json:"results"`
	}
	if err := t.client.get(ctx, fmt.Sprintf("/tv/%d/episode_groups", tvID), nil, &groups); err != nil {
		return nil, err
	}

	groupID := ""
	for _, g := range groups.Results {
		// Type 6 is the "seasons" grouping.
		if g.Type == 6 {
			groupID = g.ID
		}
	}
	if groupID == "" && len(groups.Results) > 0 {
		groupID = groups.Results[0].ID
	}
	if groupID == "" {
		return nil, nil
	}

	var details struct {
		Groups []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Order    int    `json:"order"`
			Episodes []struct {
				AirDate string `json:"air_date"`
			} `json:"episodes"`
		} `json:"groups"`
	}
	if err := t.client.get(ctx, "/tv/episode_group/"+groupID, nil, &details); err != nil {
		return nil, err
	}

	var seasons []tmdbSeason
	for _, g := range details.Groups {
		s := tmdbSeason{ID: g.ID, Name: g.Name, Number: g.Order}
		if len(g.Episodes) > 0 {
			s.FirstAirDate = g.Episodes[0].AirDate
		}
		seasons = append(seasons, s)
	}
	return seasons, nil
}

// Verify tool implementations
var (
	_ Tool = (*TMDBSearchTVTool)(nil)
	_ Tool = (*TMDBSearchMovieTool)(nil)
	_ Tool = (*TMDBSeasonTool)(nil)
)
