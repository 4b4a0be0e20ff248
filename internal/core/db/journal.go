package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound indicates a run ID with no journal entry.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one weaving run in the journal.
type RunRecord struct {
	RunID      string         `db:"run_id"`
	Package    string         `db:"package"`
	BuildMode  string         `db:"build_mode"`
	DryRun     bool           `db:"dry_run"`
	State      string         `db:"state"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	Rules      int            `db:"rules"`
	Scanned    int            `db:"scanned"`
	Woven      int            `db:"woven"`
	Written    int            `db:"written"`
	Warnings   int            `db:"warnings"`
	Error      sql.NullString `db:"error"`
}

// ClassRecord is one class that received edits during a run.
type ClassRecord struct {
	RunID     string         `db:"run_id"`
	ClassName string         `db:"class_name"`
	Path      string         `db:"path"`
	State     string         `db:"state"`
	Edits     int            `db:"edits"`
	SHABefore sql.NullString `db:"sha256_before"`
	SHAAfter  sql.NullString `db:"sha256_after"`
}

// Journal records finished runs.
type Journal struct {
	queries *Queries
}

// NewJournal creates a journal over loaded queries. The schema must be
// migrated.
func NewJournal(queries *Queries) *Journal {
	return &Journal{queries: queries}
}

// Record stores a run and its classes in one transaction.
func (j *Journal) Record(run RunRecord, classes []ClassRecord) error {
	return j.queries.InTx(func(tx *Queries) error {
		_, err := tx.Exec("insert-run",
			run.RunID, run.Package, run.BuildMode, run.DryRun, run.State,
			run.StartedAt.UTC(), nullTimeUTC(run.FinishedAt),
			run.Rules, run.Scanned, run.Woven, run.Written, run.Warnings, run.Error)
		if err != nil {
			return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
		}
		for _, c := range classes {
			_, err := tx.Exec("insert-woven-class",
				run.RunID, c.ClassName, c.Path, c.State, c.Edits, c.SHABefore, c.SHAAfter)
			if err != nil {
				return fmt.Errorf("failed to record class %s: %w", c.ClassName, err)
			}
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (j *Journal) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []RunRecord
	if err := j.queries.Select("list-runs", &runs, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run and its classes.
func (j *Journal) GetRun(runID string) (RunRecord, []ClassRecord, error) {
	var run RunRecord
	err := j.queries.Get("get-run", &run, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	var classes []ClassRecord
	if err := j.queries.Select("list-run-classes", &classes, runID); err != nil {
		return RunRecord{}, nil, fmt.Errorf("failed to list classes of run %s: %w", runID, err)
	}
	return run, classes, nil
}

// Prune deletes runs started before cutoff and returns how many were
// removed.
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	var n int64
	err := j.queries.InTx(func(tx *Queries) error {
		if _, err := tx.Exec("delete-classes-before", cutoff.UTC()); err != nil {
			return err
		}
		res, err := tx.Exec("delete-runs-before", cutoff.UTC())
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return n, nil
}

func nullTimeUTC(t sql.NullTime) sql.NullTime {
	if t.Valid {
		t.Time = t.Time.UTC()
	}
	return t
}
