package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/Tidyfs/internal/domain"
)

// DBFileName is the history database inside the state dir
const DBFileName = "tidyfs.db"

// Manager persists run history
type Manager struct {
	db *sql.DB
}

// RunRecord is one finished tool run
type RunRecord struct {
	ID        int64
	RunID     string
	Tool      string
	Root      string
	StartTime time.Time
	EndTime   time.Time
	Status    domain.RunStatus
	Scanned   int
	Succeeded int
	Failed    int
	Error     string

	// Failures is only filled by SaveRun callers and GetFailures
	Failures []domain.Failure
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// NewManager opens (or creates) the history database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection avoids "database is locked"
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	manager := &Manager{db: db}
	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		tool TEXT NOT NULL,
		root TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		scanned INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_tool_time ON runs(tool, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(tool, root, status);

	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveRun records a run and its failures in one transaction.
// An empty RunID is filled in; the stored id is returned.
func (m *Manager) SaveRun(record RunRecord) (string, error) {
	if !record.Status.IsValid() {
		return "", fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'partial')", record.Status)
	}
	if record.Tool == "" {
		return "", fmt.Errorf("tool cannot be empty")
	}
	if record.RunID == "" {
		record.RunID = NewRunID()
	}

	tx, err := m.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, tool, root, start_time, end_time, status, scanned, succeeded, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.Tool,
		record.Root,
		record.StartTime,
		record.EndTime,
		string(record.Status),
		record.Scanned,
		record.Succeeded,
		record.Failed,
		record.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run record: %w", err)
	}

	if len(record.Failures) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO run_failures (run_id, path, reason) VALUES (?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare failure insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range record.Failures {
			if _, err := stmt.Exec(record.RunID, f.Path, f.Reason); err != nil {
				return "", fmt.Errorf("failed to save failure for %s: %w", f.Path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run record: %w", err)
	}

	return record.RunID, nil
}

const selectRuns = `
	SELECT id, run_id, tool, root, start_time, end_time, status, scanned, succeeded, failed, error
	FROM runs`

// GetHistory returns the latest runs of a tool, newest first
func (m *Manager) GetHistory(tool string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+`
		WHERE tool = ?
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, tool, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanRuns(rows)
}

// GetAllHistory returns the latest runs of every tool, newest first
func (m *Manager) GetAllHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+`
		ORDER BY start_time DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	return scanRuns(rows)
}

// GetLastSuccess returns the last fully successful run of tool on root,
// or nil when there is none
func (m *Manager) GetLastSuccess(tool, root string) (*RunRecord, error) {
	row := m.db.QueryRow(selectRuns+`
		WHERE tool = ? AND root = ? AND status = 'success'
		ORDER BY start_time DESC, id DESC
		LIMIT 1`, tool, root)

	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return record, nil
}

// GetFailures returns the failed paths of one run
func (m *Manager) GetFailures(runID string) ([]domain.Failure, error) {
	rows, err := m.db.Query(`
		SELECT path, reason FROM run_failures
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []domain.Failure
	for rows.Next() {
		var f domain.Failure
		var reason sql.NullString
		if err := rows.Scan(&f.Path, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Reason = reason.String
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}
	return failures, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var record RunRecord
	var status string
	var errText sql.NullString
	err := row.Scan(
		&record.ID,
		&record.RunID,
		&record.Tool,
		&record.Root,
		&record.StartTime,
		&record.EndTime,
		&status,
		&record.Scanned,
		&record.Succeeded,
		&record.Failed,
		&errText,
	)
	if err != nil {
		return nil, err
	}
	record.Status = domain.RunStatus(status)
	record.Error = errText.String
	return &record, nil
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
