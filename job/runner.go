package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/animatch/model"
)

var (
	// ErrExists is returned by Create when the key already holds a job.
	ErrExists = errors.New("job already exists")
	// ErrNotFound is returned by operations on a key with no job.
	ErrNotFound = errors.New("no such job")
)

// Runner owns the job registry and executes jobs in the background, one
// goroutine per running job. All mutable job state is guarded by a single
// lock; critical sections are short and never span a network call.
type Runner struct {
	mu    sync.Mutex
	jobs  map[Key]*Job
	store Store

	matcher Matcher
	logger  *slog.Logger
}

// NewRunner creates a job runner.
func NewRunner(store Store, matcher Matcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		jobs:    make(map[Key]*Job),
		store:   store,
		matcher: matcher,
		logger:  logger,
	}
}

// Create queries unmatched entries for the key, snapshots them and inserts
// a new job. A second create for the same key fails without touching the
// existing job.
func (r *Runner) Create(ctx context.Context, key Key, provider, mdl string) (View, error) {
	r.mu.Lock()
	_, exists := r.jobs[key]
	r.mu.Unlock()
	if exists {
		return View{}, fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrExists)
	}

	items, err := r.store.QueryUnmatched(ctx, key.Platform, key.Year)
	if err != nil {
		return View{}, fmt.Errorf("failed to query unmatched entries: %w", err)
	}

	j := &Job{
		Key:       key,
		Provider:  provider,
		Model:     mdl,
		items:     items,
		status:    StatusCreated,
		startTime: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another create may have won while the query ran.
	if _, exists := r.jobs[key]; exists {
		return View{}, fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrExists)
	}
	r.jobs[key] = j

	r.logger.Info("job created",
		"platform", key.Platform, "year", key.Year,
		"items", len(items), "provider", provider, "model", mdl)
	return j.view(), nil
}

// Run starts background execution for the job. Running an already running
// job is a no-op.
func (r *Runner) Run(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[key]
	if !ok {
		return fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrNotFound)
	}
	if j.status == StatusRunning {
		return nil
	}
	r.spawnLocked(j)
	return nil
}

// Pause asks the job's execution to stop at the next item boundary. The
// in-flight item, if any, is allowed to finish. Returns whether the job
// transitioned to Paused.
func (r *Runner) Pause(key Key) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[key]
	if !ok {
		return false, fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrNotFound)
	}
	if j.status != StatusRunning {
		return false, nil
	}
	j.status = StatusPaused
	r.logger.Info("job paused", "platform", key.Platform, "year", key.Year, "index", j.currentIndex)
	return true, nil
}

// Resume restarts a paused job at its checkpoint. Resuming a job that is
// not paused is a no-op.
func (r *Runner) Resume(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[key]
	if !ok {
		return fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrNotFound)
	}
	if j.status != StatusPaused {
		return nil
	}
	r.spawnLocked(j)
	r.logger.Info("job resumed", "platform", key.Platform, "year", key.Year, "index", j.currentIndex)
	return nil
}

// spawnLocked marks the job running under a fresh execution id and starts
// its goroutine. Must be called with the lock held.
func (r *Runner) spawnLocked(j *Job) {
	j.status = StatusRunning
	j.execID = uuid.NewString()
	go r.execute(context.Background(), j.Key, j.execID)
}

// Remove deletes the job regardless of status. A running execution is not
// preempted: it finishes its current item, fails its next registry check
// and exits. Per-item writes already made remain in place.
func (r *Runner) Remove(key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[key]; !ok {
		return fmt.Errorf("%s/%d: %w", key.Platform, key.Year, ErrNotFound)
	}
	delete(r.jobs, key)
	r.logger.Info("job removed", "platform", key.Platform, "year", key.Year)
	return nil
}

// List returns a snapshot of all jobs, ordered by platform then year.
func (r *Runner) List() []View {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]View, 0, len(r.jobs))
	for _, j := range r.jobs {
		views = append(views, j.view())
	}
	sort.Slice(views, func(i, k int) bool {
		if views[i].Platform != views[k].Platform {
			return views[i].Platform < views[k].Platform
		}
		return views[i].Year < views[k].Year
	})
	return views
}

// Get returns a snapshot of one job.
func (r *Runner) Get(key Key) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[key]
	if !ok {
		return View{}, false
	}
	return j.view(), true
}

// execute is the background loop for one job. It holds the lock only for
// reads and checkpoint writes; matching and persistence run unlocked. The
// execID check makes a superseded goroutine exit silently, so pause then
// resume can never double-process an item.
func (r *Runner) execute(ctx context.Context, key Key, execID string) {
	for {
		r.mu.Lock()
		j, ok := r.jobs[key]
		if !ok || j.execID != execID || j.status != StatusRunning {
			r.mu.Unlock()
			return
		}
		if j.currentIndex >= len(j.items) {
			j.status = StatusCompleted
			r.mu.Unlock()
			r.logger.Info("job completed", "platform", key.Platform, "year", key.Year)
			return
		}
		index := j.currentIndex
		item := j.items[index]
		provider, mdl := j.Provider, j.Model
		r.mu.Unlock()

		matched, persistErr := r.processItem(ctx, key, item, provider, mdl)

		r.mu.Lock()
		j, ok = r.jobs[key]
		if !ok || j.execID != execID {
			r.mu.Unlock()
			return
		}
		if matched {
			j.numMatched++
		} else {
			j.numFailed++
		}
		j.numProcessed++
		j.currentIndex = index + 1
		done := j.currentIndex == len(j.items)
		if persistErr != nil {
			// The item is marked processed so a re-run does not loop on
			// it, but the job stops where the operator can see it.
			j.status = StatusFailed
			r.mu.Unlock()
			r.logger.Error("job halted on persistence failure",
				"platform", key.Platform, "year", key.Year,
				"anilist_id", item.AnilistID, "error", persistErr)
			return
		}
		if done {
			j.status = StatusCompleted
			r.mu.Unlock()
			r.logger.Info("job completed",
				"platform", key.Platform, "year", key.Year,
				"matched", j.numMatched, "failed", j.numFailed)
			return
		}
		r.mu.Unlock()
	}
}

// processItem matches one entry and persists the outcome. A match error
// after the matcher's own retry budget counts the item as failed; only a
// persistence failure is returned.
func (r *Runner) processItem(ctx context.Context, key Key, item model.MediaEntry, provider, mdl string) (matched bool, persistErr error) {
	result, err := r.matcher.Match(ctx, key.Platform, provider, mdl, buildQuery(item))
	if err != nil {
		r.logger.Warn("match failed",
			"platform", key.Platform, "anilist_id", item.AnilistID, "error", err)
		return false, nil
	}

	if !result.Found() {
		r.logger.Info("no confident match",
			"platform", key.Platform, "anilist_id", item.AnilistID)
		return false, nil
	}

	platformID := strconv.Itoa(*result.ID)
	if err := r.store.UpdateMapping(ctx, item.AnilistID, key.Platform, platformID, result.Score()); err != nil {
		return false, fmt.Errorf("failed to update mapping: %w", err)
	}
	if result.Season != nil && key.Platform.SupportsSeason() {
		if err := r.store.UpdateSeason(ctx, item.AnilistID, key.Platform, *result.Season); err != nil {
			return false, fmt.Errorf("failed to update season: %w", err)
		}
	}

	r.logger.Info("match persisted",
		"platform", key.Platform, "anilist_id", item.AnilistID,
		"platform_id", platformID, "score", result.Score())
	return true, nil
}
