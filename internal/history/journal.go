// Package history records sync runs and per-item outcomes in MySQL so operators
// can see what failed and retry it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/contentsync/internal/differ"
	"github.com/dbsmedya/contentsync/internal/logger"
	"github.com/dbsmedya/contentsync/internal/reconciler"
	"github.com/dbsmedya/contentsync/internal/sqlutil"
)

// RunStatus is the final state of a sync run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

const createRunTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id CHAR(36) PRIMARY KEY,
	collection VARCHAR(255) NOT NULL,
	run_status VARCHAR(20) NOT NULL DEFAULT 'running',
	total_differences INT NOT NULL DEFAULT 0,
	applied INT NOT NULL DEFAULT 0,
	failed INT NOT NULL DEFAULT 0,
	message TEXT,
	started_at TIMESTAMP(3) NOT NULL,
	completed_at TIMESTAMP(3) NULL,
	INDEX idx_collection_started (collection, started_at),
	INDEX idx_status (run_status)
) ENGINE=InnoDB;
`

const createItemTableSQL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id CHAR(36) NOT NULL,
	item_key VARCHAR(255) NOT NULL,
	item_name VARCHAR(255) NOT NULL,
	resolution VARCHAR(32) NOT NULL,
	op VARCHAR(16) NOT NULL DEFAULT '',
	record_id VARCHAR(255) NOT NULL DEFAULT '',
	success TINYINT(1) NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uk_run_key (run_id, item_key),
	INDEX idx_run_success (run_id, success),
	FOREIGN KEY (run_id) REFERENCES %[2]s(run_id) ON DELETE CASCADE
) ENGINE=InnoDB;
`

// Run is one recorded sync.
type Run struct {
	RunID            string     `json:"runId"`
	Collection       string     `json:"collection"`
	Status           RunStatus  `json:"status"`
	TotalDifferences int        `json:"totalDifferences"`
	Applied          int        `json:"applied"`
	Failed           int        `json:"failed"`
	Message          string     `json:"message"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Item is one recorded batch item.
type Item struct {
	RunID      string `json:"runId"`
	Key        string `json:"key"`
	Name       string `json:"name"`
	Resolution string `json:"resolution"`
	Op         string `json:"op"`
	RecordID   string `json:"recordId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Journal persists runs. Table names carry the configured prefix.
type Journal struct {
	db        *sql.DB
	runTable  string
	itemTable string
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewJournal creates a journal over an open history database.
func NewJournal(db *sql.DB, tablePrefix string, log *logger.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	runTable, err := sqlutil.TableName(tablePrefix, "run")
	if err != nil {
		return nil, fmt.Errorf("invalid table prefix: %w", err)
	}
	itemTable, err := sqlutil.TableName(tablePrefix, "run_item")
	if err != nil {
		return nil, fmt.Errorf("invalid table prefix: %w", err)
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Journal{
		db:        db,
		runTable:  runTable,
		itemTable: itemTable,
		logger:    log,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// InitializeTables creates the journal tables if they don't exist. Safe to call on
// every startup.
func (j *Journal) InitializeTables(ctx context.Context) error {
	j.logger.Debug("Initializing history tables")

	if _, err := j.db.ExecContext(ctx, fmt.Sprintf(createRunTableSQL, j.runTable)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", j.runTable, err)
	}
	if _, err := j.db.ExecContext(ctx, fmt.Sprintf(createItemTableSQL, j.itemTable, j.runTable)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", j.itemTable, err)
	}
	return nil
}

// StartRun inserts a running entry and returns its id.
func (j *Journal) StartRun(ctx context.Context, collection string) (string, error) {
	runID := j.newID()

	_, err := j.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (run_id, collection, run_status, started_at) VALUES (?, ?, ?, ?)", j.runTable),
		runID, collection, RunStatusRunning, j.now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	j.logger.Debugw("Run started", "run_id", runID, "collection", collection)
	return runID, nil
}

// RecordItem stores the outcome of one batch item. Recording the same key twice
// for a run overwrites the first outcome.
func (j *Journal) RecordItem(ctx context.Context, runID string, item reconciler.ItemResult) error {
	_, err := j.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (run_id, item_key, item_name, resolution, op, record_id, success, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE success = VALUES(success), error_message = VALUES(error_message), record_id = VALUES(record_id)`, j.itemTable),
		runID, item.Key, item.Name, string(item.Resolution), string(item.Op), item.ID, item.Success, nullString(item.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record item %q: %w", item.Key, err)
	}
	return nil
}

// FinishRun closes a run. A batch with failures is partial; a run error (analysis,
// re-analysis or verification) marks the run failed. result may be nil when
// analysis failed.
func (j *Journal) FinishRun(ctx context.Context, runID string, result *reconciler.SyncResult, runErr error) error {
	status := RunStatusSucceeded
	total, applied, failed, message := 0, 0, 0, ""
	if result != nil {
		total = reportTotal(result.Before)
		if batch := result.Batch; batch != nil {
			applied, failed, message = batch.Applied, batch.Failed, batch.Message
			if !batch.Success {
				status = RunStatusPartial
			}
		}
	}
	if runErr != nil {
		status = RunStatusFailed
		message = runErr.Error()
	}

	res, err := j.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET run_status = ?, total_differences = ?, applied = ?, failed = ?, message = ?, completed_at = ? WHERE run_id = ?", j.runTable),
		status, total, applied, failed, message, j.now(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	j.logger.Infow("Run recorded", "run_id", runID, "status", status, "applied", applied, "failed", failed)
	return nil
}

// ListRuns returns the most recent runs of a collection, newest first.
func (j *Journal) ListRuns(ctx context.Context, collection string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT run_id, collection, run_status, total_differences, applied, failed, COALESCE(message, ''), started_at, completed_at
FROM %s WHERE collection = ? ORDER BY started_at DESC LIMIT ?`, j.runTable),
		collection, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one recorded run, or ErrRunNotFound.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := j.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT run_id, collection, run_status, total_differences, applied, failed, COALESCE(message, ''), started_at, completed_at
FROM %s WHERE run_id = ?`, j.runTable),
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var completed sql.NullTime
	if err := row.Scan(&r.RunID, &r.Collection, &r.Status, &r.TotalDifferences, &r.Applied, &r.Failed, &r.Message, &r.StartedAt, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

// Items returns the recorded items of a run in insertion order. With failedOnly
// set, only failed items are returned; those are the ones to retry.
func (j *Journal) Items(ctx context.Context, runID string, failedOnly bool) ([]Item, error) {
	query := fmt.Sprintf(`SELECT run_id, item_key, item_name, resolution, op, record_id, success, COALESCE(error_message, '')
FROM %s WHERE run_id = ?`, j.itemTable)
	if failedOnly {
		query += " AND success = 0"
	}
	query += " ORDER BY id ASC"

	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.RunID, &it.Key, &it.Name, &it.Resolution, &it.Op, &it.RecordID, &it.Success, &it.Error); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

func reportTotal(r *differ.Report) int {
	if r == nil {
		return 0
	}
	return r.TotalDifferences
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
