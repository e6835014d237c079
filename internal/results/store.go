// Package results persists op events and run summaries in SQLite.
//
// A run is opened with StartRun, receives strides through the sink returned
// by Sink and is closed with FinishRun, which stores the computed metrics.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cyclegen/internal/collector"
	"cyclegen/internal/core"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	session       TEXT NOT NULL,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER,
	total_ops     INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	ops_per_sec   REAL NOT NULL DEFAULT 0,
	p50_ns        INTEGER NOT NULL DEFAULT 0,
	p99_ns        INTEGER NOT NULL DEFAULT 0,
	passed        INTEGER
);
CREATE TABLE IF NOT EXISTS ops (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	alias            TEXT NOT NULL,
	cycle            INTEGER NOT NULL,
	ts               INTEGER NOT NULL,
	status           INTEGER NOT NULL,
	tries            INTEGER NOT NULL,
	service_time_ns  INTEGER NOT NULL,
	response_time_ns INTEGER NOT NULL,
	outcome          TEXT NOT NULL,
	error            TEXT
);
CREATE INDEX IF NOT EXISTS ops_run_alias ON ops(run_id, alias);
`

// Store is a SQLite results database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run summarizes one stored run.
type Run struct {
	ID           string
	Session      string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	TotalOps     int
	SuccessCount int
	FailureCount int
	SkippedCount int
	OpsPerSec    float64
	P50          time.Duration
	P99          time.Duration
	Passed       *bool // nil without thresholds
}

// StartRun records a new run and returns its id. Ids are time ordered.
func (s *Store) StartRun(ctx context.Context, session string, at time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session, started_at) VALUES (?, ?, ?)`,
		id.String(), session, at.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id.String(), nil
}

// FinishRun stores the run's summary. passed is nil when no thresholds were
// checked.
func (s *Store) FinishRun(ctx context.Context, id string, at time.Time, m *collector.Metrics, passed *bool) error {
	var pass sql.NullBool
	if passed != nil {
		pass = sql.NullBool{Bool: *passed, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, total_ops = ?, success_count = ?, failure_count = ?, skipped_count = ?,
		    ops_per_sec = ?, p50_ns = ?, p99_ns = ?, passed = ?
		WHERE id = ?`,
		at.UnixNano(), m.TotalOps, m.SuccessCount, m.FailureCount, m.SkippedCount,
		m.OpsPerSec, int64(m.ServiceTime.P50), int64(m.ServiceTime.P99), pass, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const selectRun = `
	SELECT id, session, started_at, COALESCE(finished_at, 0), total_ops, success_count, failure_count,
	       skipped_count, ops_per_sec, p50_ns, p99_ns, passed
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		started, finished int64
		p50, p99          int64
		passed            sql.NullBool
	)
	err := sc.Scan(&r.ID, &r.Session, &started, &finished, &r.TotalOps, &r.SuccessCount,
		&r.FailureCount, &r.SkippedCount, &r.OpsPerSec, &p50, &p99, &passed)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished != 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	r.P50, r.P99 = time.Duration(p50), time.Duration(p99)
	if passed.Valid {
		r.Passed = &passed.Bool
	}
	return &r, nil
}

// Outcome names stored in the ops table.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

func outcome(ev core.Event) string {
	switch {
	case ev.Skipped:
		return OutcomeSkipped
	case ev.Success:
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// SaveStride stores every event of a stride in one transaction.
func (s *Store) SaveStride(ctx context.Context, runID string, st core.Stride) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ops (run_id, alias, cycle, ts, status, tries, service_time_ns, response_time_ns, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range st.Events {
		alias := ev.Alias
		if alias == "" {
			alias = st.Alias
		}
		var errText sql.NullString
		if ev.Error != "" {
			errText = sql.NullString{String: ev.Error, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, runID, alias, ev.Cycle, ev.Timestamp.UnixNano(), ev.Status, ev.Tries,
			int64(ev.ServiceTime), int64(ev.ResponseTime), outcome(ev), errText)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", ev.Cycle, err)
		}
	}
	return tx.Commit()
}

// OutcomeCounts returns the number of stored ops per outcome for a run,
// optionally restricted to one alias.
func (s *Store) OutcomeCounts(ctx context.Context, runID, alias string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, count(*) FROM ops
		WHERE run_id = ? AND (? = '' OR alias = ?)
		GROUP BY outcome`, runID, alias, alias)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			o string
			n int
		)
		if err := rows.Scan(&o, &n); err != nil {
			return nil, err
		}
		counts[o] = n
	}
	return counts, rows.Err()
}

// Sink adapts the store to a core.StrideSink for one run. Write failures
// are logged and counted since the sink interface cannot return them.
func (s *Store) Sink(runID string) *Sink {
	return &Sink{store: s, runID: runID}
}

// Sink writes strides of one run.
type Sink struct {
	store  *Store
	runID  string
	failed atomic.Int64
}

func (k *Sink) ReportStride(st core.Stride) {
	if err := k.store.SaveStride(context.Background(), k.runID, st); err != nil {
		k.failed.Add(1)
		k.store.logger.Error("failed to store stride",
			slog.String("run", k.runID),
			slog.String("alias", st.Alias),
			slog.Int64("first", st.First),
			slog.Any("error", err),
		)
	}
}

// Failed returns the number of strides that could not be stored.
func (k *Sink) Failed() int64 {
	return k.failed.Load()
}
