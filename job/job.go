// Package job runs catalog matching as resumable background jobs.
//
// Information Hiding:
// - Job registry layout and locking hidden
// - Checkpoint advancement rules internalized
// - Background execution lifecycle hidden behind control operations
package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/richinex/animatch/model"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusCreated   Status = "Created"
	StatusRunning   Status = "Running"
	StatusPaused    Status = "Paused"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Key identifies a job. At most one job exists per key at a time.
type Key struct {
	Platform model.Platform
	Year     int
}

// Job is one batch of entries to match. The item list is an immutable
// snapshot taken at creation; everything else is guarded by the runner's
// lock.
type Job struct {
	Key      Key
	Provider string
	Model    string

	items []model.MediaEntry

	status       Status
	currentIndex int
	numMatched   int
	numFailed    int
	numProcessed int
	startTime    time.Time

	// execID names the background execution allowed to act on this job.
	// A goroutine whose id no longer matches must exit without writing.
	execID string
}

// View is a serializable point-in-time snapshot of a job. The item list
// is deliberately excluded.
type View struct {
	Platform     model.Platform `json:"platform"`
	Year         int            `json:"year"`
	Status       Status         `json:"status"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	NumItems     int            `json:"num_items_to_match"`
	CurrentIndex int            `json:"current_index"`
	NumProcessed int            `json:"num_processed"`
	NumMatched   int            `json:"num_matched"`
	NumFailed    int            `json:"num_failed"`
	StartTime    time.Time      `json:"job_start_time"`
}

// view must be called with the runner lock held.
func (j *Job) view() View {
	return View{
		Platform:     j.Key.Platform,
		Year:         j.Key.Year,
		Status:       j.status,
		Provider:     j.Provider,
		Model:        j.Model,
		NumItems:     len(j.items),
		CurrentIndex: j.currentIndex,
		NumProcessed: j.numProcessed,
		NumMatched:   j.numMatched,
		NumFailed:    j.numFailed,
		StartTime:    j.startTime,
	}
}

// Matcher resolves one entry against a platform catalog. Implementations
// wrap their own retry policy; an error here means the budget is spent.
type Matcher interface {
	Match(ctx context.Context, platform model.Platform, provider, model, query string) (model.MatchResult, error)
}

// Store is the persistence surface the runner needs. Both update calls
// are idempotent: repeating a write with the same arguments leaves the
// same stored state.
type Store interface {
	QueryUnmatched(ctx context.Context, platform model.Platform, year int) ([]model.MediaEntry, error)
	UpdateMapping(ctx context.Context, anilistID int, platform model.Platform, platformID string, score int) error
	UpdateSeason(ctx context.Context, anilistID int, platform model.Platform, season int) error
}

// buildQuery renders the identifying fields of an entry as the agent's
// prompt payload.
func buildQuery(entry model.MediaEntry) string {
	payload, err := json.Marshal(map[string]interface{}{
		"titles":         entry.Titles,
		"year":           entry.Year,
		"media_type":     entry.MediaType,
		"start_date":     entry.StartDate,
		"episode_number": entry.EpisodeNumber,
	})
	if err != nil {
		return entry.Titles
	}
	return string(payload)
}
