/*
Package sqlite persists finished batch reports.

PURPOSE:
  Run history for the forecasting service: every completed batch is
  saved with its summary and per-site reports so operators can list past
  runs and re-fetch a full report by session id. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  runs:         One row per batch (summary columns + summary JSON)
  site_reports: One row per site per batch, ordered by position

WRITE SHAPE:
  A run and its site rows are inserted in one database transaction;
  a run is either fully present or absent.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/supply.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  store.SaveRun(ctx, report, referenceDate)

SEE ALSO:
  - pipeline/orchestrator.go: produces the BatchReport saved here
  - api/handlers.go: serves saved runs back out
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/supply-engine/supply"
)

// Store persists batch reports in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Runs (one row per completed batch)
	CREATE TABLE IF NOT EXISTS runs (
		session_id TEXT PRIMARY KEY,
		reference_date TEXT NOT NULL,
		total_sites INTEGER NOT NULL,
		resupply_sites INTEGER NOT NULL,
		total_quantity INTEGER NOT NULL,
		error_sites INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at DESC);

	-- Per-site reports, preserving batch order via position
	CREATE TABLE IF NOT EXISTS site_reports (
		session_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		site_id TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		error TEXT,
		report_json TEXT NOT NULL,
		PRIMARY KEY (session_id, position),
		FOREIGN KEY (session_id) REFERENCES runs(session_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_site_reports_site
		ON site_reports(site_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN STORE
// =============================================================================

// RunSummary is the condensed listing row for one saved batch.
type RunSummary struct {
	SessionID            string    `json:"session_id"`
	ReferenceDate        time.Time `json:"reference_date"`
	TotalSites           int       `json:"total_sites"`
	SitesNeedingResupply int       `json:"sites_needing_resupply"`
	TotalQuantity        int       `json:"total_quantity"`
	ErrorSites           int       `json:"error_sites"`
	CreatedAt            time.Time `json:"created_at"`
}

// SaveRun persists a batch report and its per-site rows atomically.
func (s *Store) SaveRun(ctx context.Context, report *supply.BatchReport, referenceDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(session_id, reference_date, total_sites, resupply_sites, total_quantity, error_sites, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.SessionID,
		referenceDate.UTC().Format(time.RFC3339),
		report.Summary.TotalSites,
		report.Summary.SitesNeedingResupply,
		report.Summary.TotalQuantity,
		report.Summary.ErrorSites,
		string(summaryJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, r := range report.Results {
		reportJSON, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode site report: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO site_reports
			(session_id, position, site_id, action, quantity, error, report_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			report.SessionID, i, string(r.SiteID), string(r.Action), r.Quantity,
			nullString(r.Error), string(reportJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert site report: %w", err)
		}
	}

	return tx.Commit()
}

// GetRun reconstructs a saved batch report. Returns nil when the session
// id is unknown.
func (s *Store) GetRun(ctx context.Context, sessionID string) (*supply.BatchReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summaryJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT summary_json FROM runs WHERE session_id = ?", sessionID,
	).Scan(&summaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	report := &supply.BatchReport{SessionID: sessionID}
	if err := json.Unmarshal([]byte(summaryJSON), &report.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT report_json FROM site_reports
		WHERE session_id = ?
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, err
		}
		var r supply.SiteReport
		if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
			return nil, fmt.Errorf("failed to decode site report: %w", err)
		}
		report.Results = append(report.Results, r)
	}

	return report, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, reference_date, total_sites, resupply_sites, total_quantity, error_sites, created_at
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var refDate, createdAt string
		if err := rows.Scan(&r.SessionID, &refDate, &r.TotalSites,
			&r.SitesNeedingResupply, &r.TotalQuantity, &r.ErrorSites, &createdAt); err != nil {
			return nil, err
		}
		r.ReferenceDate, _ = time.Parse(time.RFC3339, refDate)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SiteHistory returns one site's report across past runs, newest first.
func (s *Store) SiteHistory(ctx context.Context, siteID supply.SiteID, limit int) ([]supply.SiteReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.report_json
		FROM site_reports sr
		JOIN runs r ON r.session_id = sr.session_id
		WHERE sr.site_id = ?
		ORDER BY r.created_at DESC, r.rowid DESC
		LIMIT ?
	`, string(siteID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []supply.SiteReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, err
		}
		var r supply.SiteReport
		if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
			return nil, fmt.Errorf("failed to decode site report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"site_reports", "runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
