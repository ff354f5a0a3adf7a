// Package sqlite provides durable storage for sync checkpoints and run
// history backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
)

// Ensure Store implements both interfaces.
var (
	_ driven.CheckpointStore  = (*Store)(nil)
	_ driven.SyncHistoryStore = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	kind        TEXT PRIMARY KEY,
	last_synced INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sync_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	ended_at    INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	docs_indexed INTEGER NOT NULL DEFAULT 0,
	docs_deleted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_kind ON sync_runs(kind, started_at DESC);
`

// Store persists checkpoints and sync run history in one SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the store at the given data directory.
// If dataDir is empty, defaults to ~/.brainbot/data.
func New(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".brainbot", "data")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "brainbot.db")

	// WAL mode keeps checkpoint commits durable without blocking readers.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the checkpoint for a source kind.
func (s *Store) Get(ctx context.Context, kind domain.SourceKind) (*domain.SyncCheckpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT last_synced, updated_at FROM checkpoints WHERE kind = ?
	`, kind.String())

	var lastSynced, updatedAt int64
	err := row.Scan(&lastSynced, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning checkpoint for %s: %w", domain.ErrCheckpointCorrupt, kind, err)
	}
	if lastSynced < 0 {
		return nil, fmt.Errorf("%w: negative timestamp for %s", domain.ErrCheckpointCorrupt, kind)
	}

	return &domain.SyncCheckpoint{
		Kind:       kind,
		LastSynced: time.Unix(0, lastSynced).UTC(),
		UpdatedAt:  time.Unix(0, updatedAt).UTC(),
	}, nil
}

// Set atomically stores or replaces the checkpoint for a source. The single
// upsert statement commits in one transaction, so a crash mid-write leaves
// the previous checkpoint intact.
func (s *Store) Set(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (kind, last_synced, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET
			last_synced = excluded.last_synced,
			updated_at = excluded.updated_at
	`, checkpoint.Kind.String(), checkpoint.LastSynced.UnixNano(), checkpoint.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCheckpointCommit, err)
	}
	return nil
}

// Delete removes the checkpoint for a source.
func (s *Store) Delete(ctx context.Context, kind domain.SourceKind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE kind = ?`, kind.String())
	if err != nil {
		return fmt.Errorf("deleting checkpoint for %s: %w", kind, err)
	}
	return nil
}

// Record appends a sync run record.
func (s *Store) Record(ctx context.Context, rec driven.SyncRunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (kind, started_at, ended_at, success, error, docs_indexed, docs_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Kind.String(), rec.StartedAt.UnixNano(), rec.EndedAt.UnixNano(),
		boolToInt(rec.Success), rec.Error, rec.DocumentsIndexed, rec.DocumentsDeleted)
	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// Recent returns the most recent run records for a kind, newest first.
func (s *Store) Recent(ctx context.Context, kind domain.SourceKind, limit int) ([]driven.SyncRunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, started_at, ended_at, success, error, docs_indexed, docs_deleted
		FROM sync_runs WHERE kind = ?
		ORDER BY started_at DESC LIMIT ?
	`, kind.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var records []driven.SyncRunRecord
	for rows.Next() {
		var rec driven.SyncRunRecord
		var kindStr string
		var startedAt, endedAt int64
		var success int
		if err := rows.Scan(&kindStr, &startedAt, &endedAt, &success, &rec.Error,
			&rec.DocumentsIndexed, &rec.DocumentsDeleted); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		rec.Kind = domain.SourceKind(kindStr)
		rec.StartedAt = time.Unix(0, startedAt).UTC()
		rec.EndedAt = time.Unix(0, endedAt).UTC()
		rec.Success = success != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync runs: %w", err)
	}
	return records, nil
}

// Prune keeps only the most recent keep records per kind.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_runs WHERE id NOT IN (
			SELECT id FROM sync_runs r
			WHERE (
				SELECT COUNT(*) FROM sync_runs r2
				WHERE r2.kind = r.kind AND r2.started_at >= r.started_at
			) <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning sync runs: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
