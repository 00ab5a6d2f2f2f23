package validation

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/flanksource/docmorph/errors"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS validation_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    original TEXT NOT NULL,
    regenerated TEXT NOT NULL,
    score REAL NOT NULL,
    threshold REAL NOT NULL,
    passed INTEGER NOT NULL,
    band TEXT,
    algorithm TEXT,
    error TEXT,
    error_code TEXT,
    duration_ms INTEGER DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_original ON validation_runs(original);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON validation_runs(created_at DESC);
`

// History archives validation results in SQLite for trend queries across
// runs.
type History struct {
	db *sql.DB
}

// HistoryEntry is one archived result row.
type HistoryEntry struct {
	RunID       string
	Original    string
	Regenerated string
	Band        string
	Algorithm   string
	Error       string

	ID         int64
	Score      float64
	Threshold  float64
	DurationMS int64
	CreatedAt  time.Time

	Passed bool
}

// OpenHistory opens (creating if needed) the history database at dbPath.
func OpenHistory(dbPath string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "create history directory")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "open history database %s", dbPath)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "set pragma %s", pragma)
		}
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "initialize history schema")
	}
	return &History{db: db}, nil
}

// Close releases the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Record archives every result of a report under the report's creation
// timestamp.
func (h *History) Record(report *ValidationReport) error {
	tx, err := h.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "begin history transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO validation_runs
		(run_id, original, regenerated, score, threshold, passed, band, algorithm, error, error_code, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "prepare history insert")
	}
	defer stmt.Close() //nolint:errcheck

	runID := report.CreatedAt.Format("20060102T150405")
	for _, res := range report.Results {
		if _, err := stmt.Exec(runID, res.Original, res.Regenerated, res.Score, res.Threshold,
			res.Passed, string(res.Band), string(res.Algorithm), res.Error, string(res.ErrorCode),
			res.Duration.Milliseconds(), report.CreatedAt); err != nil {
			return errors.Wrap(errors.ErrCodeValidation, err, "insert history row for %s", res.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "commit history transaction")
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (h *History) Recent(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(`
		SELECT id, run_id, original, regenerated, score, threshold, passed, band, algorithm, error, duration_ms, created_at
		FROM validation_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "query history")
	}
	defer rows.Close() //nolint:errcheck

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Original, &e.Regenerated, &e.Score, &e.Threshold,
			&e.Passed, &e.Band, &e.Algorithm, &e.Error, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "scan history row")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ScoreTrend returns the chronological scores recorded for one original
// file, oldest first.
func (h *History) ScoreTrend(original string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(`
		SELECT score FROM validation_runs
		WHERE original = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, original, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "query score trend")
	}
	defer rows.Close() //nolint:errcheck

	var scores []float64
	for rows.Next() {
		var s float64
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "scan score")
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// PassRate reports the fraction of passing rows recorded since the cutoff.
func (h *History) PassRate(since time.Time) (float64, error) {
	var total, passed int64
	err := h.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(passed), 0) FROM validation_runs
		WHERE created_at >= ?
	`, since).Scan(&total, &passed)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeValidation, err, "query pass rate")
	}
	if total == 0 {
		return 0, nil
	}
	return float64(passed) / float64(total), nil
}
