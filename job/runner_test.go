package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/richinex/animatch/model"
)

func intPtr(v int) *int { return &v }

// fakeMatcher resolves by entry title. When gated, each Match signals on
// started and then blocks until the test releases one token, which lets
// tests control item pacing.
type fakeMatcher struct {
	mu      sync.Mutex
	results map[string]model.MatchResult
	errs    map[string]error
	gate    chan struct{}
	started chan string
	queries []string
}

func (m *fakeMatcher) Match(ctx context.Context, _ model.Platform, _, _, query string) (model.MatchResult, error) {
	var payload struct {
		Titles string `json:"titles"`
	}
	if err := json.Unmarshal([]byte(query), &payload); err != nil {
		return model.MatchResult{}, fmt.Errorf("bad query payload: %w", err)
	}

	if m.started != nil {
		m.started <- payload.Titles
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return model.MatchResult{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, payload.Titles)
	if err, ok := m.errs[payload.Titles]; ok {
		return model.MatchResult{}, err
	}
	return m.results[payload.Titles], nil
}

func (m *fakeMatcher) matchedTitles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

type mappingWrite struct {
	anilistID  int
	platformID string
	score      int
}

// fakeStore records writes and can fail on demand.
type fakeStore struct {
	mu       sync.Mutex
	items    []model.MediaEntry
	queryErr error

	mappings   []mappingWrite
	seasons    map[int]int
	failUpdate map[int]error
}

func (s *fakeStore) QueryUnmatched(_ context.Context, _ model.Platform, _ int) ([]model.MediaEntry, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return append([]model.MediaEntry(nil), s.items...), nil
}

func (s *fakeStore) UpdateMapping(_ context.Context, anilistID int, _ model.Platform, platformID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failUpdate[anilistID]; ok {
		return err
	}
	s.mappings = append(s.mappings, mappingWrite{anilistID, platformID, score})
	return nil
}

func (s *fakeStore) UpdateSeason(_ context.Context, anilistID int, _ model.Platform, season int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seasons == nil {
		s.seasons = make(map[int]int)
	}
	s.seasons[anilistID] = season
	return nil
}

func (s *fakeStore) writes() []mappingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mappingWrite(nil), s.mappings...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func entry(id int, title string) model.MediaEntry {
	return model.MediaEntry{AnilistID: id, Titles: title, Year: 2023, MediaType: model.MediaTV}
}

func TestRunCompletesJob(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{
		entry(1, "Frieren"), entry(2, "Obscure Short"), entry(3, "Mushishi"),
	}}
	matcher := &fakeMatcher{results: map[string]model.MatchResult{
		"Frieren":  {ID: intPtr(42), Name: strPtr("Frieren"), Season: intPtr(1), ConfidenceScore: intPtr(95)},
		"Mushishi": {ID: intPtr(7), Name: strPtr("Mushishi"), ConfidenceScore: intPtr(85)},
		// Obscure Short resolves to an empty result: processed but unmatched.
	}}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	view, err := runner.Create(context.Background(), key, "anthropic", "m")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if view.Status != StatusCreated || view.NumItems != 3 {
		t.Fatalf("unexpected create view: %+v", view)
	}

	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	waitFor(t, "job completion", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusCompleted
	})

	v, _ := runner.Get(key)
	if v.CurrentIndex != 3 || v.NumProcessed != 3 {
		t.Errorf("unexpected progress: %+v", v)
	}
	if v.NumMatched != 2 || v.NumFailed != 1 {
		t.Errorf("unexpected counters: matched=%d failed=%d", v.NumMatched, v.NumFailed)
	}

	writes := store.writes()
	if len(writes) != 2 {
		t.Fatalf("expected 2 mapping writes, got %d", len(writes))
	}
	if writes[0].anilistID != 1 || writes[0].platformID != "42" || writes[0].score != 95 {
		t.Errorf("unexpected first write: %+v", writes[0])
	}
	if store.seasons[1] != 1 {
		t.Errorf("expected season write for entry 1, got %v", store.seasons)
	}
	if _, ok := store.seasons[3]; ok {
		t.Error("entry without season should not get a season write")
	}
}

func TestSeasonIgnoredOnSeasonlessPlatform(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "Frieren")}}
	matcher := &fakeMatcher{results: map[string]model.MatchResult{
		"Frieren": {ID: intPtr(425998), Season: intPtr(2), ConfidenceScore: intPtr(90)},
	}}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformBgmTV, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	waitFor(t, "job completion", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusCompleted
	})

	if len(store.seasons) != 0 {
		t.Errorf("bgm.tv must not receive season writes: %v", store.seasons)
	}
	if len(store.writes()) != 1 {
		t.Errorf("expected the mapping write to still happen")
	}
}

func TestDuplicateCreateRejected(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "Frieren")}}
	runner := NewRunner(store, &fakeMatcher{}, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := runner.Create(context.Background(), key, "openai", "other"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for duplicate create, got %v", err)
	}

	// The original job is untouched.
	v, ok := runner.Get(key)
	if !ok || v.Provider != "anthropic" {
		t.Errorf("existing job mutated: %+v", v)
	}
}

func TestPauseResumeProcessesRemainderExactlyOnce(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{
		entry(1, "A"), entry(2, "B"), entry(3, "C"),
	}}
	matcher := &fakeMatcher{
		gate:    make(chan struct{}),
		started: make(chan string, 8),
		results: map[string]model.MatchResult{
			"A": {ID: intPtr(10), ConfidenceScore: intPtr(90)},
			"C": {ID: intPtr(30), ConfidenceScore: intPtr(80)},
		},
	}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if title := <-matcher.started; title != "A" {
		t.Fatalf("expected item A in flight, got %q", title)
	}

	// Pause while item A is still in flight, then let it finish.
	paused, err := runner.Pause(key)
	if err != nil || !paused {
		t.Fatalf("Pause failed: paused=%v err=%v", paused, err)
	}
	matcher.gate <- struct{}{}

	waitFor(t, "checkpoint after pause", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusPaused && v.CurrentIndex == 1
	})
	v, _ := runner.Get(key)
	if v.NumProcessed != 1 || v.NumMatched != 1 {
		t.Errorf("in-flight item must finish and be recorded: %+v", v)
	}

	if err := runner.Resume(key); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	matcher.gate <- struct{}{}
	matcher.gate <- struct{}{}

	waitFor(t, "job completion", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusCompleted
	})

	titles := matcher.matchedTitles()
	if len(titles) != 3 {
		t.Fatalf("expected each item matched exactly once, got %v", titles)
	}
	want := []string{"A", "B", "C"}
	for i, title := range titles {
		if title != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], title)
		}
	}
}

func TestPauseWhenNotRunning(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "A")}}
	runner := NewRunner(store, &fakeMatcher{}, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	paused, err := runner.Pause(key)
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if paused {
		t.Error("pausing a created job should report no transition")
	}

	if _, err := runner.Pause(Key{Platform: model.PlatformTMDB, Year: 1999}); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRemoveMidRun(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "A"), entry(2, "B")}}
	matcher := &fakeMatcher{
		gate:    make(chan struct{}),
		started: make(chan string, 8),
		results: map[string]model.MatchResult{
			"A": {ID: intPtr(10), ConfidenceScore: intPtr(90)},
		},
	}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if title := <-matcher.started; title != "A" {
		t.Fatalf("expected item A in flight, got %q", title)
	}

	// Remove while item A is in flight. The job disappears immediately.
	if err := runner.Remove(key); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(runner.List()) != 0 {
		t.Error("removed job still visible in list")
	}

	// Let the in-flight item finish. Its persistence write lands, but the
	// execution finds its job gone and stops before item B.
	matcher.gate <- struct{}{}

	waitFor(t, "in-flight write", func() bool {
		return len(store.writes()) == 1
	})
	time.Sleep(20 * time.Millisecond)
	if titles := matcher.matchedTitles(); len(titles) != 1 {
		t.Errorf("execution continued past removal: %v", titles)
	}
}

func TestPersistenceErrorHaltsJob(t *testing.T) {
	store := &fakeStore{
		items:      []model.MediaEntry{entry(1, "A"), entry(2, "B"), entry(3, "C")},
		failUpdate: map[int]error{2: errors.New("disk full")},
	}
	matcher := &fakeMatcher{results: map[string]model.MatchResult{
		"A": {ID: intPtr(10), ConfidenceScore: intPtr(90)},
		"B": {ID: intPtr(20), ConfidenceScore: intPtr(90)},
		"C": {ID: intPtr(30), ConfidenceScore: intPtr(90)},
	}}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	waitFor(t, "job failure", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusFailed
	})

	v, _ := runner.Get(key)
	// The failing item is still marked processed so a re-run cannot loop
	// on it, and item C is never attempted.
	if v.CurrentIndex != 2 || v.NumProcessed != 2 {
		t.Errorf("unexpected checkpoint after failure: %+v", v)
	}
	if v.NumMatched != 1 || v.NumFailed != 1 {
		t.Errorf("unexpected counters: %+v", v)
	}
	if titles := matcher.matchedTitles(); len(titles) != 2 {
		t.Errorf("item after the failure was attempted: %v", titles)
	}
}

func TestMatchErrorCountsAsFailed(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "A"), entry(2, "B")}}
	matcher := &fakeMatcher{
		results: map[string]model.MatchResult{
			"B": {ID: intPtr(20), ConfidenceScore: intPtr(90)},
		},
		errs: map[string]error{"A": errors.New("match failed after 3 attempts")},
	}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	waitFor(t, "job completion", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusCompleted
	})

	v, _ := runner.Get(key)
	if v.NumMatched != 1 || v.NumFailed != 1 || v.NumProcessed != 2 {
		t.Errorf("unexpected counters: %+v", v)
	}
}

func TestRunUnknownJob(t *testing.T) {
	runner := NewRunner(&fakeStore{}, &fakeMatcher{}, nil)
	if err := runner.Run(Key{Platform: model.PlatformTMDB, Year: 2023}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := runner.Resume(Key{Platform: model.PlatformTMDB, Year: 2023}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := runner.Remove(Key{Platform: model.PlatformTMDB, Year: 2023}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	store := &fakeStore{}
	runner := NewRunner(store, &fakeMatcher{}, nil)

	ctx := context.Background()
	for _, key := range []Key{
		{Platform: model.PlatformTMDB, Year: 2024},
		{Platform: model.PlatformBgmTV, Year: 2023},
		{Platform: model.PlatformTMDB, Year: 2023},
	} {
		if _, err := runner.Create(ctx, key, "anthropic", "m"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	views := runner.List()
	if len(views) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(views))
	}
	if views[0].Platform != model.PlatformBgmTV {
		t.Errorf("unexpected ordering: %+v", views)
	}
	if views[1].Year != 2023 || views[2].Year != 2024 {
		t.Errorf("years not ordered within platform: %+v", views)
	}
}

func TestRunIdempotentWhileRunning(t *testing.T) {
	store := &fakeStore{items: []model.MediaEntry{entry(1, "A")}}
	matcher := &fakeMatcher{gate: make(chan struct{})}
	runner := NewRunner(store, matcher, nil)

	key := Key{Platform: model.PlatformTMDB, Year: 2023}
	if _, err := runner.Create(context.Background(), key, "anthropic", "m"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := runner.Run(key); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// A second run on an already running job must not spawn a second
	// execution fighting over the gate.
	if err := runner.Run(key); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	matcher.gate <- struct{}{}
	waitFor(t, "job completion", func() bool {
		v, ok := runner.Get(key)
		return ok && v.Status == StatusCompleted
	})
	if titles := matcher.matchedTitles(); len(titles) != 1 {
		t.Errorf("item processed more than once: %v", titles)
	}
}

func strPtr(s string) *string { return &s }
