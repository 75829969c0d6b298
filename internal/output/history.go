/*
PURPOSE:
  Keeps every benchmark record in a local SQLite database so runs can be
  compared over time (`vlm-bench history`).

REQUIREMENTS:
  Implementation-discovered:
  - CSV/JSONL files are per run and get overwritten; history must not.
  - Pure Go driver: no cgo toolchain needed on benchmark hosts.

ARCHITECTURE INTEGRATION:
  - Written by: internal/engine
  - Read by: internal/cli (history command)

ERROR HANDLING:
  - Open/schema errors are returned; the engine logs and continues without history.
  - SQLite allows one writer; the pool is limited to one connection.

USAGE:
  h, err := output.OpenHistory("~/.vlm-bench/history.db")
  h.Write(record)
  runs, err := h.Runs(ctx, 10)
*/

package output

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/daryltucker/vlm-bench/internal/model"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT    NOT NULL,
	ts            INTEGER NOT NULL,
	backend       TEXT    NOT NULL,
	variant       TEXT    NOT NULL,
	device        TEXT    NOT NULL,
	status        TEXT    NOT NULL,
	failed_in     TEXT    NOT NULL DEFAULT '',
	model_dir     TEXT    NOT NULL DEFAULT '',
	image         TEXT    NOT NULL DEFAULT '',
	prompt        TEXT    NOT NULL DEFAULT '',
	load_ns       INTEGER NOT NULL,
	preprocess_ns INTEGER NOT NULL,
	generate_ns   INTEGER NOT NULL,
	output        TEXT    NOT NULL DEFAULT '',
	error         TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
`

// HistoryStore persists records in SQLite.
type HistoryStore struct {
	db *sql.DB
}

// RunSummary aggregates one run.
type RunSummary struct {
	RunID     string
	Started   time.Time
	Attempted int
	Succeeded int
	// Fastest is the lowest total among successful outcomes (zero if none).
	Fastest       time.Duration
	FastestConfig string
}

// OpenHistory opens (creating if needed) the database at path.
func OpenHistory(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Write inserts one record.
func (h *HistoryStore) Write(r model.Record) error {
	_, err := h.db.Exec(`INSERT INTO outcomes
		(run_id, ts, backend, variant, device, status, failed_in, model_dir, image, prompt,
		 load_ns, preprocess_ns, generate_ns, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Timestamp.UnixNano(), r.Backend, r.Variant, r.Device, r.Status, r.FailedIn,
		r.ModelDir, r.Image, r.Prompt,
		int64(r.LoadDuration), int64(r.PreprocessDuration), int64(r.GenerateDuration),
		r.Output, r.Error,
	)
	return err
}

// Records returns the records of one run in insertion (matrix) order.
func (h *HistoryStore) Records(ctx context.Context, runID string) ([]model.Record, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT run_id, ts, backend, variant, device, status, failed_in,
		model_dir, image, prompt, load_ns, preprocess_ns, generate_ns, output, error
		FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var (
			r                  model.Record
			ts, load, pre, gen int64
		)
		if err := rows.Scan(&r.RunID, &ts, &r.Backend, &r.Variant, &r.Device, &r.Status, &r.FailedIn,
			&r.ModelDir, &r.Image, &r.Prompt, &load, &pre, &gen, &r.Output, &r.Error); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		r.LoadDuration = time.Duration(load)
		r.PreprocessDuration = time.Duration(pre)
		r.GenerateDuration = time.Duration(gen)
		r.TotalDuration = r.LoadDuration + r.PreprocessDuration + r.GenerateDuration
		if s := r.PreprocessDuration.Seconds(); r.Status == model.PhaseDone.String() && s > 0 {
			r.ImagesPerSecond = 1 / s
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Runs summarizes the most recent runs, newest first.
func (h *HistoryStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT run_id, MIN(ts), COUNT(*),
		SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END)
		FROM outcomes GROUP BY run_id ORDER BY MIN(id) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s  RunSummary
			ts int64
		)
		if err := rows.Scan(&s.RunID, &ts, &s.Attempted, &s.Succeeded); err != nil {
			return nil, err
		}
		s.Started = time.Unix(0, ts)
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range runs {
		var (
			total                    int64
			backend, variant, device string
		)
		err := h.db.QueryRowContext(ctx, `SELECT load_ns + preprocess_ns + generate_ns AS total,
			backend, variant, device FROM outcomes
			WHERE run_id = ? AND status = 'done' ORDER BY total, id LIMIT 1`, runs[i].RunID).
			Scan(&total, &backend, &variant, &device)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs[i].Fastest = time.Duration(total)
		runs[i].FastestConfig = fmt.Sprintf("%s/%s/%s", backend, variant, device)
	}
	return runs, nil
}

// Close closes the database.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
