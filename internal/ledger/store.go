package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"rapidkrill/internal/config"
)

// ErrDuplicateEntry is returned when a file identity is already recorded.
// The ledger is append-once: callers treat this as "someone got there
// first", not as a failure.
var ErrDuplicateEntry = errors.New("ledger entry already exists")

// Store manages pipeline persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.StateDir, "ledger.db")
	return OpenPath(dbPath)
}

// OpenPath opens the database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record appends one outcome row for a file identity. Inserting a path that
// is already present returns ErrDuplicateEntry and leaves the existing row
// untouched.
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO processed_files (
            path, outcome, reason, nasc, latitude, longitude, miles,
            seabed_m, sample_time, processed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Path,
		entry.Outcome,
		nullableString(entry.Reason),
		entry.NASC,
		entry.Latitude,
		entry.Longitude,
		entry.Miles,
		entry.SeabedM,
		nullableTime(entry.SampleTime),
		entry.ProcessedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateEntry
	}
	return nil
}

// Has reports whether a file identity is present in the ledger.
func (s *Store) Has(ctx context.Context, path string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_files WHERE path = ?`, path,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return count > 0, nil
}

// Get fetches one ledger entry, or nil when absent.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM processed_files WHERE path = ?`, path)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

// ProcessedPaths returns every file identity in the ledger. The detector
// seeds its skip set from this at startup.
func (s *Store) ProcessedPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM processed_files`)
	if err != nil {
		return nil, fmt.Errorf("scan processed paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths[path] = struct{}{}
	}
	return paths, rows.Err()
}

// List returns ledger entries newest-first, up to limit (0 means all).
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM processed_files ORDER BY processed_at DESC`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns ledger counts per outcome.
func (s *Store) Stats(ctx context.Context) (LedgerStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM processed_files GROUP BY outcome`)
	if err != nil {
		return LedgerStats{}, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	var stats LedgerStats
	for rows.Next() {
		var outcome Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return LedgerStats{}, err
		}
		stats.Total += count
		switch outcome {
		case OutcomeSucceeded:
			stats.Succeeded = count
		case OutcomeFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

const entryColumns = `path, outcome, reason, nasc, latitude, longitude, miles, seabed_m, sample_time, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry       Entry
		reason      sql.NullString
		sampleTime  sql.NullString
		processedAt string
	)
	if err := row.Scan(
		&entry.Path,
		&entry.Outcome,
		&reason,
		&entry.NASC,
		&entry.Latitude,
		&entry.Longitude,
		&entry.Miles,
		&entry.SeabedM,
		&sampleTime,
		&processedAt,
	); err != nil {
		return nil, err
	}
	entry.Reason = reason.String
	if sampleTime.Valid {
		if parsed, err := time.Parse(time.RFC3339Nano, sampleTime.String); err == nil {
			entry.SampleTime = &parsed
		}
	}
	if parsed, err := time.Parse(time.RFC3339Nano, processedAt); err == nil {
		entry.ProcessedAt = parsed
	}
	return &entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
