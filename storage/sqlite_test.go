package storage

import (
	"context"
	"testing"

	"github.com/richinex/animatch/model"
)

func testEntries() []model.MediaEntry {
	return []model.MediaEntry{
		{AnilistID: 1, Titles: "葬送のフリーレン / Frieren", Year: 2023, MediaType: model.MediaTV, StartDate: "2023-09-29", EpisodeNumber: 28},
		{AnilistID: 2, Titles: "Mushishi", Year: 2005, MediaType: model.MediaTV, StartDate: "2005-10-23", EpisodeNumber: 26},
		{AnilistID: 3, Titles: "Suzume", Year: 2023, MediaType: model.MediaMovie, StartDate: "2023-04-14"},
	}
}

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	platforms := []model.Platform{model.PlatformBgmTV, model.PlatformTMDB}
	if err := store.ImportEntries(ctx, testEntries(), platforms); err != nil {
		t.Fatalf("ImportEntries failed: %v", err)
	}
	return store
}

func TestQueryUnmatched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries, err := store.QueryUnmatched(ctx, model.PlatformTMDB, 2023)
	if err != nil {
		t.Fatalf("QueryUnmatched failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for 2023, got %d", len(entries))
	}
	if entries[0].AnilistID != 1 || entries[1].AnilistID != 3 {
		t.Errorf("unexpected ordering: %+v", entries)
	}
	if entries[0].StartDate != "2023-09-29" || entries[0].EpisodeNumber != 28 {
		t.Errorf("entry fields lost in round trip: %+v", entries[0])
	}

	entries, err = store.QueryUnmatched(ctx, model.PlatformBgmTV, 1999)
	if err != nil {
		t.Fatalf("QueryUnmatched failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries for 1999, got %d", len(entries))
	}
}

func TestUpdateMappingRemovesFromUnmatched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateMapping(ctx, 1, model.PlatformTMDB, "209867", 95); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}

	entries, err := store.QueryUnmatched(ctx, model.PlatformTMDB, 2023)
	if err != nil {
		t.Fatalf("QueryUnmatched failed: %v", err)
	}
	if len(entries) != 1 || entries[0].AnilistID != 3 {
		t.Errorf("matched entry still reported unmatched: %+v", entries)
	}

	// The other platform is untouched.
	entries, err = store.QueryUnmatched(ctx, model.PlatformBgmTV, 2023)
	if err != nil {
		t.Fatalf("QueryUnmatched failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("bgm.tv mapping affected by tmdb update: %+v", entries)
	}
}

func TestUpdateMappingIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.UpdateMapping(ctx, 1, model.PlatformTMDB, "209867", 95); err != nil {
			t.Fatalf("UpdateMapping attempt %d failed: %v", i, err)
		}
	}

	mappings, err := store.ListMappings(ctx, model.PlatformTMDB, model.ReviewReady)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if len(mappings) != 1 {
		t.Fatalf("expected 1 ready mapping, got %d", len(mappings))
	}
	m := mappings[0]
	if m.PlatformID != "209867" || m.Confidence != 95 {
		t.Errorf("unexpected mapping: %+v", m)
	}
}

func TestUpdateSeason(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateMapping(ctx, 1, model.PlatformTMDB, "209867", 95); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	if err := store.UpdateSeason(ctx, 1, model.PlatformTMDB, 1); err != nil {
		t.Fatalf("UpdateSeason failed: %v", err)
	}

	mappings, err := store.ListMappings(ctx, model.PlatformTMDB, model.ReviewReady)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if len(mappings) != 1 || mappings[0].Season == nil || *mappings[0].Season != 1 {
		t.Errorf("season not stored: %+v", mappings)
	}
}

func TestReimportPreservesReviewState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateMapping(ctx, 1, model.PlatformTMDB, "209867", 95); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}

	// Importing the same entries again must not reset the mapping.
	if err := store.ImportEntries(ctx, testEntries(), []model.Platform{model.PlatformTMDB}); err != nil {
		t.Fatalf("re-import failed: %v", err)
	}

	mappings, err := store.ListMappings(ctx, model.PlatformTMDB, model.ReviewReady)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if len(mappings) != 1 {
		t.Errorf("review state lost on re-import: %+v", mappings)
	}
}

func TestSetReviewStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateMapping(ctx, 1, model.PlatformTMDB, "209867", 95); err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	if err := store.SetReviewStatus(ctx, 1, model.PlatformTMDB, model.ReviewAccepted); err != nil {
		t.Fatalf("SetReviewStatus failed: %v", err)
	}

	mappings, err := store.ListMappings(ctx, model.PlatformTMDB, model.ReviewAccepted)
	if err != nil {
		t.Fatalf("ListMappings failed: %v", err)
	}
	if len(mappings) != 1 {
		t.Errorf("expected accepted mapping: %+v", mappings)
	}

	if err := store.SetReviewStatus(ctx, 999, model.PlatformTMDB, model.ReviewAccepted); err == nil {
		t.Error("expected error for unknown entry")
	}
}
