package jobstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/use-agent/rewardrunner/engine"
	"github.com/use-agent/rewardrunner/models"
)

// SQLiteStore keeps job state in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between runner goroutines.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_state (
		account TEXT NOT NULL,
		day TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		done_at TEXT NOT NULL,
		PRIMARY KEY (account, day, offer_id)
	);
	CREATE INDEX IF NOT EXISTS idx_job_state_day ON job_state(day);

	CREATE TABLE IF NOT EXISTS quarantine (
		account TEXT NOT NULL,
		offer_id TEXT NOT NULL,
		failures INTEGER NOT NULL,
		last_failure INTEGER NOT NULL,
		until INTEGER NOT NULL,
		PRIMARY KEY (account, offer_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsDone reports whether offerID was completed for account on day.
func (s *SQLiteStore) IsDone(ctx context.Context, account, day, offerID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM job_state WHERE account = ? AND day = ? AND offer_id = ?`,
		account, day, offerID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, models.NewRunError(models.ErrCodeStore, "job state lookup failed", err)
	}
	return true, nil
}

// MarkDone records offerID as completed. Marking twice is a no-op.
func (s *SQLiteStore) MarkDone(ctx context.Context, account, day, offerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job_state (account, day, offer_id, done_at) VALUES (?, ?, ?, ?)`,
		account, day, offerID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return models.NewRunError(models.ErrCodeStore, "job state write failed", err)
	}
	return nil
}

// Prune deletes records for days before cutoff and streaks that last
// failed before it.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_state WHERE day < ?`, dayOf(cutoff))
	if err != nil {
		return 0, models.NewRunError(models.ErrCodeStore, "job state prune failed", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE last_failure < ?`, unixNano(cutoff))
	if err != nil {
		return removed, models.NewRunError(models.ErrCodeStore, "quarantine prune failed", err)
	}
	n, err := res.RowsAffected()
	return removed + n, err
}

// LoadQuarantine returns the saved streaks of account.
func (s *SQLiteStore) LoadQuarantine(ctx context.Context, account string) (map[string]engine.QuarantineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT offer_id, failures, last_failure, until FROM quarantine WHERE account = ?`, account)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeStore, "quarantine lookup failed", err)
	}
	defer rows.Close()

	entries := make(map[string]engine.QuarantineEntry)
	for rows.Next() {
		var (
			key         string
			e           engine.QuarantineEntry
			last, until int64
		)
		if err := rows.Scan(&key, &e.Failures, &last, &until); err != nil {
			return nil, models.NewRunError(models.ErrCodeStore, "quarantine scan failed", err)
		}
		e.LastFailure = fromUnixNano(last)
		e.Until = fromUnixNano(until)
		entries[key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewRunError(models.ErrCodeStore, "quarantine scan failed", err)
	}
	return entries, nil
}

// SaveQuarantine replaces the saved streaks of account in one transaction.
func (s *SQLiteStore) SaveQuarantine(ctx context.Context, account string, entries map[string]engine.QuarantineEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.NewRunError(models.ErrCodeStore, "quarantine write failed", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quarantine WHERE account = ?`, account); err != nil {
		return models.NewRunError(models.ErrCodeStore, "quarantine write failed", err)
	}
	for key, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quarantine (account, offer_id, failures, last_failure, until) VALUES (?, ?, ?, ?, ?)`,
			account, key, e.Failures, unixNano(e.LastFailure), unixNano(e.Until),
		)
		if err != nil {
			return models.NewRunError(models.ErrCodeStore, "quarantine write failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return models.NewRunError(models.ErrCodeStore, "quarantine write failed", err)
	}
	return nil
}

// unixNano stores the zero time as 0.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
