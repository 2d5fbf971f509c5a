// Package db persists label validation runs in a sqlite database so the
// class distribution of a scene can be compared across annotation rounds.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Zhao-Qihao/xbzl-data/internal/labels"
	"github.com/Zhao-Qihao/xbzl-data/internal/timeutil"
)

// DB stores validation run history.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the sqlite database at path and brings its
// schema up to date.
func Open(path string) (*DB, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Run is one recorded validation of a scene.
type Run struct {
	ID          string
	Scene       string
	TotalFrames int
	Errors      int
	Warnings    int
	CreatedAt   time.Time
	Classes     []labels.ClassCount // first-seen order
}

// Histogram rebuilds the class histogram of the run.
func (r *Run) Histogram() *labels.ClassHistogram {
	h := labels.NewClassHistogram()
	for _, c := range r.Classes {
		h.AddN(c.Class, c.Count)
	}
	return h
}

func (r *Run) String() string {
	parts := make([]string, 0, len(r.Classes))
	for _, c := range r.Classes {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Class, c.Count))
	}
	return fmt.Sprintf("%s  %s  frames=%d errors=%d warnings=%d  %s",
		r.CreatedAt.Format(time.RFC3339), r.ID, r.TotalFrames, r.Errors, r.Warnings, strings.Join(parts, " "))
}

// RecordRun stores report under a new run id and returns the stored run.
func (db *DB) RecordRun(report *labels.Report) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		Scene:       report.Scene,
		TotalFrames: report.TotalFrames,
		Errors:      report.Errors(),
		Warnings:    report.Warnings(),
		CreatedAt:   db.clock.Now().UTC(),
		Classes:     report.Histogram.Entries(),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO validation_runs (run_id, scene, total_frames, errors, warnings, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scene, run.TotalFrames, run.Errors, run.Warnings, run.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO validation_class_counts (run_id, position, class_name, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare class insert: %w", err)
	}
	defer stmt.Close()
	for i, c := range run.Classes {
		if _, err := stmt.Exec(run.ID, i, c.Class, c.Count); err != nil {
			return nil, fmt.Errorf("failed to insert class %q: %w", c.Class, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs for scene, newest first. A limit of
// zero or less returns every run.
func (db *DB) ListRuns(scene string, limit int) ([]Run, error) {
	query := `
		SELECT run_id, scene, total_frames, errors, warnings, created_unix_nanos
		FROM validation_runs
		WHERE scene = ?
		ORDER BY created_unix_nanos DESC, rowid DESC`
	args := []any{scene}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var nanos int64
		if err := rows.Scan(&r.ID, &r.Scene, &r.TotalFrames, &r.Errors, &r.Warnings, &nanos); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, nanos).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for i := range runs {
		classes, err := db.classCounts(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Classes = classes
	}
	return runs, nil
}

// GetRun returns the run with the given id, or sql.ErrNoRows.
func (db *DB) GetRun(id string) (*Run, error) {
	var r Run
	var nanos int64
	err := db.QueryRow(`
		SELECT run_id, scene, total_frames, errors, warnings, created_unix_nanos
		FROM validation_runs WHERE run_id = ?`, id).
		Scan(&r.ID, &r.Scene, &r.TotalFrames, &r.Errors, &r.Warnings, &nanos)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	r.CreatedAt = time.Unix(0, nanos).UTC()
	if r.Classes, err = db.classCounts(id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) classCounts(runID string) ([]labels.ClassCount, error) {
	rows, err := db.Query(`
		SELECT class_name, count FROM validation_class_counts
		WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query class counts: %w", err)
	}
	defer rows.Close()

	var out []labels.ClassCount
	for rows.Next() {
		var c labels.ClassCount
		if err := rows.Scan(&c.Class, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
