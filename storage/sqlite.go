// Package storage provides the SQLite entry and mapping store.
//
// Information Hiding:
// - SQLite connection management hidden behind the store type
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/animatch/model"
)

// SqliteStore holds media entries and their per-platform mappings.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			anilist_id INTEGER PRIMARY KEY,
			titles TEXT NOT NULL,
			year INTEGER NOT NULL,
			media_type TEXT NOT NULL,
			start_date TEXT,
			episode_number INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_entries_year
		ON entries(year);

		CREATE TABLE IF NOT EXISTS mappings (
			anilist_id INTEGER NOT NULL,
			platform TEXT NOT NULL,
			platform_id TEXT,
			confidence INTEGER NOT NULL DEFAULT 0,
			season INTEGER,
			review_status TEXT NOT NULL DEFAULT 'UnMatched',
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (anilist_id, platform),
			FOREIGN KEY (anilist_id) REFERENCES entries(anilist_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_mappings_status
		ON mappings(platform, review_status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ImportEntries inserts entries and seeds an unmatched mapping row per
// platform. Existing entries are updated in place; existing mapping rows
// are left untouched so review state survives re-imports.
func (s *SqliteStore) ImportEntries(ctx context.Context, entries []model.MediaEntry, platforms []model.Platform) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (anilist_id, titles, year, media_type, start_date, episode_number)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(anilist_id) DO UPDATE SET
			titles = excluded.titles,
			year = excluded.year,
			media_type = excluded.media_type,
			start_date = excluded.start_date,
			episode_number = excluded.episode_number,
			updated_at = datetime('now')
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer entryStmt.Close()

	mappingStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO mappings (anilist_id, platform) VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mapping insert: %w", err)
	}
	defer mappingStmt.Close()

	for _, entry := range entries {
		if _, err := entryStmt.ExecContext(ctx,
			entry.AnilistID, entry.Titles, entry.Year,
			string(entry.MediaType), entry.StartDate, entry.EpisodeNumber); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", entry.AnilistID, err)
		}
		for _, platform := range platforms {
			if _, err := mappingStmt.ExecContext(ctx, entry.AnilistID, string(platform)); err != nil {
				return fmt.Errorf("failed to seed mapping for entry %d: %w", entry.AnilistID, err)
			}
		}
	}

	return tx.Commit()
}

// QueryUnmatched returns entries from the given year whose mapping for the
// platform is still unmatched, ordered by anilist id.
func (s *SqliteStore) QueryUnmatched(ctx context.Context, platform model.Platform, year int) ([]model.MediaEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.anilist_id, e.titles, e.year, e.media_type, e.start_date, e.episode_number
		FROM entries e
		JOIN mappings m ON m.anilist_id = e.anilist_id
		WHERE m.platform = ? AND m.review_status = ? AND e.year = ?
		ORDER BY e.anilist_id
	`, string(platform), string(model.ReviewUnmatched), year)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched entries: %w", err)
	}
	defer rows.Close()

	var entries []model.MediaEntry
	for rows.Next() {
		var entry model.MediaEntry
		var mediaType string
		var startDate sql.NullString
		if err := rows.Scan(&entry.AnilistID, &entry.Titles, &entry.Year,
			&mediaType, &startDate, &entry.EpisodeNumber); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry.MediaType = model.MediaType(mediaType)
		entry.StartDate = startDate.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// UpdateMapping records a match for the entry on the platform and marks it
// ready for review. Idempotent: repeating the same write leaves the same
// stored state.
func (s *SqliteStore) UpdateMapping(ctx context.Context, anilistID int, platform model.Platform, platformID string, score int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mappings (anilist_id, platform, platform_id, confidence, review_status, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(anilist_id, platform) DO UPDATE SET
			platform_id = excluded.platform_id,
			confidence = excluded.confidence,
			review_status = excluded.review_status,
			updated_at = datetime('now')
	`, anilistID, string(platform), platformID, score, string(model.ReviewReady))
	if err != nil {
		return fmt.Errorf("failed to update mapping: %w", err)
	}
	return nil
}

// UpdateSeason records the matched season number. Idempotent.
func (s *SqliteStore) UpdateSeason(ctx context.Context, anilistID int, platform model.Platform, season int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mappings SET season = ?, updated_at = datetime('now')
		WHERE anilist_id = ? AND platform = ?
	`, season, anilistID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to update season: %w", err)
	}
	return nil
}

// Mapping is one stored platform mapping, joined with its entry titles for
// review listings.
type Mapping struct {
	AnilistID    int                `json:"anilist_id"`
	Titles       string             `json:"titles"`
	Platform     model.Platform     `json:"platform"`
	PlatformID   string             `json:"platform_id"`
	Confidence   int                `json:"confidence"`
	Season       *int               `json:"season,omitempty"`
	ReviewStatus model.ReviewStatus `json:"review_status"`
}

// ListMappings returns all mappings for a platform with the given review
// status, ordered by anilist id.
func (s *SqliteStore) ListMappings(ctx context.Context, platform model.Platform, status model.ReviewStatus) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.anilist_id, e.titles, m.platform, m.platform_id, m.confidence, m.season, m.review_status
		FROM mappings m
		JOIN entries e ON e.anilist_id = m.anilist_id
		WHERE m.platform = ? AND m.review_status = ?
		ORDER BY m.anilist_id
	`, string(platform), string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []Mapping
	for rows.Next() {
		var m Mapping
		var platformID sql.NullString
		var season sql.NullInt64
		var platformStr, statusStr string
		if err := rows.Scan(&m.AnilistID, &m.Titles, &platformStr, &platformID,
			&m.Confidence, &season, &statusStr); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.Platform = model.Platform(platformStr)
		m.ReviewStatus = model.ReviewStatus(statusStr)
		m.PlatformID = platformID.String
		if season.Valid {
			v := int(season.Int64)
			m.Season = &v
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}
	return mappings, nil
}

// SetReviewStatus updates the review state of one mapping, for accepting
// or rejecting a proposed match.
func (s *SqliteStore) SetReviewStatus(ctx context.Context, anilistID int, platform model.Platform, status model.ReviewStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mappings SET review_status = ?, updated_at = datetime('now')
		WHERE anilist_id = ? AND platform = ?
	`, string(status), anilistID, string(platform))
	if err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no mapping for entry %d on %s", anilistID, platform)
	}
	return nil
}
