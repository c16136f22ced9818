package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/conform/internal/harness"
	"github.com/roach88/conform/internal/load"
	"github.com/roach88/conform/internal/value"
)

// Run kinds.
const (
	KindSuite = "suite"
	KindLoad  = "load"
)

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one stored run.
type Run struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Name      string        `json:"name"`
	Target    string        `json:"target"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Pass      bool          `json:"pass"`
	Report    []byte        `json:"-"`
}

// ScenarioRow is the stored outcome of one scenario in a suite run.
type ScenarioRow struct {
	Seq       int           `json:"seq"`
	Name      string        `json:"name"`
	Status    int           `json:"status"`
	ErrorKind string        `json:"error_kind"`
	Pass      bool          `json:"pass"`
	Errors    []string      `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// LoadRow is the stored headline of a load run.
type LoadRow struct {
	VUs          int     `json:"vus"`
	Iterations   int     `json:"iterations"`
	Requests     int     `json:"requests"`
	Failed       int     `json:"failed"`
	FailedRate   float64 `json:"failed_rate"`
	P95          float64 `json:"p95_ms"`
	P99          float64 `json:"p99_ms"`
	ChecksPassed int     `json:"checks_passed"`
	ChecksFailed int     `json:"checks_failed"`
}

// RunDetail is a run with its per-kind rows. Scenarios is empty for load
// runs and Load is nil for suite runs.
type RunDetail struct {
	Run
	Scenarios []ScenarioRow `json:"scenarios"`
	Load      *LoadRow      `json:"load,omitempty"`
}

// SaveSuiteRun records a suite result and returns the new run ID.
// The report is the result's canonical snapshot.
func (s *Store) SaveSuiteRun(ctx context.Context, target string, started time.Time, res *harness.SuiteResult) (string, error) {
	report, err := harness.Snapshot(res)
	if err != nil {
		return "", fmt.Errorf("snapshot suite %s: %w", res.Name, err)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, Run{
		ID:        id,
		Kind:      KindSuite,
		Name:      res.Name,
		Target:    target,
		StartedAt: started,
		Duration:  res.Duration,
		Pass:      res.Pass(),
		Report:    report,
	}); err != nil {
		return "", err
	}

	for i, sc := range res.Scenarios {
		errs, err := marshalErrors(sc.Errors())
		if err != nil {
			return "", fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scenario_results (run_id, seq, name, status, error_kind, pass, errors, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, sc.Name, sc.Status, harness.ErrorKind(sc.ServerErr), sc.Pass(), string(errs), sc.Duration.Milliseconds())
		if err != nil {
			return "", fmt.Errorf("insert scenario %s: %w", sc.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit suite run: %w", err)
	}
	return id, nil
}

// SaveLoadRun records a load summary and returns the new run ID.
func (s *Store) SaveLoadRun(ctx context.Context, target string, started time.Time, sum *load.Summary) (string, error) {
	report, err := canonicalJSON(sum)
	if err != nil {
		return "", fmt.Errorf("encode summary %s: %w", sum.Flow, err)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, Run{
		ID:        id,
		Kind:      KindLoad,
		Name:      sum.Flow,
		Target:    target,
		StartedAt: started,
		Duration:  sum.Elapsed,
		Pass:      sum.Pass(),
		Report:    report,
	}); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO load_summaries (run_id, vus, iterations, requests, failed, failed_rate, p95_ms, p99_ms, checks_passed, checks_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, sum.VUs, sum.Iterations, sum.Requests, sum.Failed, sum.FailedRate,
		sum.Latency.P95, sum.Latency.P99, sum.ChecksPassed, sum.ChecksFailed)
	if err != nil {
		return "", fmt.Errorf("insert load summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit load run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first. A limit <= 0
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, target, started_at, duration_ms, pass, report
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with its scenario or load rows.
// Returns ErrNotFound if no run has the ID.
func (s *Store) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, target, started_at, duration_ms, pass, report
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{Run: run, Scenarios: []ScenarioRow{}}
	switch run.Kind {
	case KindSuite:
		detail.Scenarios, err = s.readScenarios(ctx, id)
	case KindLoad:
		detail.Load, err = s.readLoad(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Store) readScenarios(ctx context.Context, runID string) ([]ScenarioRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, status, error_kind, pass, errors, duration_ms
		FROM scenario_results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	defer rows.Close()

	out := []ScenarioRow{}
	for rows.Next() {
		var (
			sc       ScenarioRow
			errsJSON string
			ms       int64
		)
		if err := rows.Scan(&sc.Seq, &sc.Name, &sc.Status, &sc.ErrorKind, &sc.Pass, &errsJSON, &ms); err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		if err := json.Unmarshal([]byte(errsJSON), &sc.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors of %s: %w", sc.Name, err)
		}
		sc.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return out, nil
}

func (s *Store) readLoad(ctx context.Context, runID string) (*LoadRow, error) {
	var l LoadRow
	err := s.db.QueryRowContext(ctx, `
		SELECT vus, iterations, requests, failed, failed_rate, p95_ms, p99_ms, checks_passed, checks_failed
		FROM load_summaries
		WHERE run_id = ?
	`, runID).Scan(&l.VUs, &l.Iterations, &l.Requests, &l.Failed, &l.FailedRate,
		&l.P95, &l.P99, &l.ChecksPassed, &l.ChecksFailed)
	if err != nil {
		return nil, fmt.Errorf("query load summary: %w", err)
	}
	return &l, nil
}

func insertRun(ctx context.Context, tx *sql.Tx, r Run) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, name, target, started_at, duration_ms, pass, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Kind, r.Name, r.Target, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(), r.Pass, string(r.Report))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r       Run
		started int64
		ms      int64
		report  string
	)
	if err := row.Scan(&r.ID, &r.Kind, &r.Name, &r.Target, &started, &ms, &r.Pass, &report); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	r.Duration = time.Duration(ms) * time.Millisecond
	r.Report = []byte(report)
	return r, nil
}

// marshalErrors encodes failure messages as a canonical JSON array.
func marshalErrors(msgs []string) ([]byte, error) {
	arr := make(value.Array, len(msgs))
	for i, m := range msgs {
		arr[i] = value.String(m)
	}
	return value.MarshalCanonical(arr)
}

// canonicalJSON re-encodes any JSON-marshalable value in canonical form.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	parsed, err := value.Parse(data)
	if err != nil {
		return nil, err
	}
	return value.MarshalCanonical(parsed)
}

// ScenarioOutcome is one recorded outcome of a named scenario.
type ScenarioOutcome struct {
	RunID     string    `json:"run_id"`
	Suite     string    `json:"suite"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
	ScenarioRow
}

// ScenarioHistory returns the most recent outcomes of the scenario called
// name across suite runs, newest first. A limit <= 0 returns every outcome.
func (s *Store) ScenarioHistory(ctx context.Context, name string, limit int) ([]ScenarioOutcome, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.target, r.started_at,
		       sr.seq, sr.name, sr.status, sr.error_kind, sr.pass, sr.errors, sr.duration_ms
		FROM scenario_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE sr.name = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY ASC, sr.seq ASC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query scenario history: %w", err)
	}
	defer rows.Close()

	out := []ScenarioOutcome{}
	for rows.Next() {
		var (
			o        ScenarioOutcome
			started  int64
			errsJSON string
			ms       int64
		)
		if err := rows.Scan(&o.RunID, &o.Suite, &o.Target, &started,
			&o.Seq, &o.Name, &o.Status, &o.ErrorKind, &o.Pass, &errsJSON, &ms); err != nil {
			return nil, fmt.Errorf("scan scenario outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(errsJSON), &o.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal errors of %s: %w", o.Name, err)
		}
		o.StartedAt = time.UnixMilli(started).UTC()
		o.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario history: %w", err)
	}
	return out, nil
}
