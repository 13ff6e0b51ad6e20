package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pathlight/pathlight/internal/cache"
	"github.com/pathlight/pathlight/internal/pathstate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for paths, their revision
// history, and cache entries. It satisfies cache.EntryStore.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used
// by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "pathlight.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	// Revisions cascade when their path goes away.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Paths ---

// CreatePath inserts a new path record.
func (s *Store) CreatePath(ctx context.Context, rec PathRecord) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paths (id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		rec.ID, string(state),
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetPath loads a path by id. The returned state is normalized.
func (s *Store) GetPath(ctx context.Context, id string) (PathRecord, error) {
	var rec PathRecord
	var state, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, created_at, updated_at FROM paths WHERE id = ?`, id,
	).Scan(&rec.ID, &state, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return PathRecord{}, ErrNotFound
	}
	if err != nil {
		return PathRecord{}, err
	}
	if err := decodePathRow(&rec, state, createdAt, updatedAt); err != nil {
		return PathRecord{}, err
	}
	return rec, nil
}

// ListPaths returns the most recently updated paths. A limit <= 0 means
// at most 100.
func (s *Store) ListPaths(ctx context.Context, limit int) ([]PathRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, created_at, updated_at FROM paths ORDER BY updated_at DESC, id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PathRecord
	for rows.Next() {
		var rec PathRecord
		var state, createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &state, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := decodePathRow(&rec, state, createdAt, updatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// UpdatePath overwrites a path's state document and bumps updated_at.
func (s *Store) UpdatePath(ctx context.Context, id string, state pathstate.PathState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE paths SET state = ?, updated_at = ? WHERE id = ?`,
		string(doc), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePathWithRevision overwrites a path's state and appends the audit
// revision in one transaction, so the stored state and its history never
// drift apart. Returns the new revision's id.
func (s *Store) UpdatePathWithRevision(ctx context.Context, id string, state pathstate.PathState, rev Revision) (int64, error) {
	doc, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("encoding state: %w", err)
	}
	diff, err := json.Marshal(rev.Diff)
	if err != nil {
		return 0, fmt.Errorf("encoding diff: %w", err)
	}
	createdAt := rev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning update transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE paths SET state = ?, updated_at = ? WHERE id = ?`,
		string(doc), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if n == 0 {
		tx.Rollback()
		return 0, ErrNotFound
	}

	ins, err := tx.ExecContext(ctx, `
		INSERT INTO path_revisions (path_id, diff, summary, created_at)
		VALUES (?, ?, ?, ?)`,
		id, string(diff), rev.Summary, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("recording revision: %w", err)
	}
	revID, err := ins.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing update: %w", err)
	}
	return revID, nil
}

// DeletePath removes a path and, via the schema's cascade, its revisions.
func (s *Store) DeletePath(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM paths WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func decodePathRow(rec *PathRecord, state, createdAt, updatedAt string) error {
	if err := json.Unmarshal([]byte(state), &rec.State); err != nil {
		return fmt.Errorf("decoding state for path %s: %w", rec.ID, err)
	}
	rec.State.Normalize()
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = t
	if t, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return fmt.Errorf("parsing updated_at: %w", err)
	}
	rec.UpdatedAt = t
	return nil
}

// --- Revisions ---

// InsertRevision appends an audit entry to a path's history and returns
// its id.
func (s *Store) InsertRevision(ctx context.Context, rev Revision) (int64, error) {
	diff, err := json.Marshal(rev.Diff)
	if err != nil {
		return 0, fmt.Errorf("encoding diff: %w", err)
	}
	createdAt := rev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO path_revisions (path_id, diff, summary, created_at)
		VALUES (?, ?, ?, ?)`,
		rev.PathID, string(diff), rev.Summary, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRevisions returns a path's newest revisions first. A limit <= 0
// means at most 50.
func (s *Store) ListRevisions(ctx context.Context, pathID string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path_id, diff, summary, created_at
		FROM path_revisions WHERE path_id = ?
		ORDER BY id DESC LIMIT ?`, pathID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Revision
	for rows.Next() {
		var rev Revision
		var diff, createdAt string
		if err := rows.Scan(&rev.ID, &rev.PathID, &diff, &rev.Summary, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(diff), &rev.Diff); err != nil {
			return nil, fmt.Errorf("decoding diff for revision %d: %w", rev.ID, err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		rev.CreatedAt = t
		results = append(results, rev)
	}
	return results, rows.Err()
}

// --- Cache entries ---

// GetEntry implements cache.EntryStore. Expired rows are returned as-is;
// staleness is the cache layer's call.
func (s *Store) GetEntry(ctx context.Context, key string) (cache.Entry, bool, error) {
	var e cache.Entry
	var payload string
	var created, updated, expires, accessed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT key, payload, usage_count, created_at, updated_at, expires_at, last_accessed_at
		FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &payload, &e.UsageCount, &created, &updated, &expires, &accessed)
	if err == sql.ErrNoRows {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, err
	}
	e.Payload = json.RawMessage(payload)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	e.ExpiresAt = time.UnixMilli(expires).UTC()
	e.LastAccessedAt = time.UnixMilli(accessed).UTC()
	return e, true, nil
}

// UpsertEntry implements cache.EntryStore. Create-or-overwrite plus the
// usage increment happen in one statement; the stored row comes back via
// RETURNING.
func (s *Store) UpsertEntry(ctx context.Context, key string, payload json.RawMessage, expiresAt time.Time) (cache.Entry, error) {
	now := time.Now().UTC()

	var e cache.Entry
	var stored string
	var created, updated, expires, accessed int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cache_entries (key, payload, usage_count, created_at, updated_at, expires_at, last_accessed_at)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			usage_count = cache_entries.usage_count + 1,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at,
			last_accessed_at = excluded.last_accessed_at
		RETURNING key, payload, usage_count, created_at, updated_at, expires_at, last_accessed_at`,
		key, string(payload), now.UnixMilli(), now.UnixMilli(), expiresAt.UnixMilli(), now.UnixMilli(),
	).Scan(&e.Key, &stored, &e.UsageCount, &created, &updated, &expires, &accessed)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("upserting cache entry: %w", err)
	}
	e.Payload = json.RawMessage(stored)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	e.ExpiresAt = time.UnixMilli(expires).UTC()
	e.LastAccessedAt = time.UnixMilli(accessed).UTC()
	return e, nil
}

// TouchEntry implements cache.EntryStore.
func (s *Store) TouchEntry(ctx context.Context, key string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE cache_entries SET usage_count = usage_count + 1, last_accessed_at = ?
		WHERE key = ? RETURNING usage_count`,
		time.Now().UnixMilli(), key,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("touching cache entry: %w", err)
	}
	return count, nil
}

// DeleteExpired implements cache.EntryStore.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
