package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunInfo summarizes a stored run.
type RunInfo struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Tests      int        `json:"tests"`
	Failures   int        `json:"failures"`
}

// Result is one stored assertion outcome.
type Result struct {
	Seq         int       `json:"seq"`
	OK          bool      `json:"ok"`
	Description string    `json:"description"`
	RecordedAt  time.Time `json:"recorded_at"`
}

const runColumns = `
	SELECT r.id, r.scenario, r.started_at, r.finished_at, r.exit_code,
	       COUNT(res.seq), COALESCE(SUM(1 - res.ok), 0)
	FROM runs r
	LEFT JOIN results res ON res.run_id = r.id
`

// Runs lists every run, oldest first. Returns an empty slice (not nil) for
// an empty journal.
func (j *Journal) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := j.db.QueryContext(ctx, runColumns+`
		GROUP BY r.id
		ORDER BY r.started_at ASC, r.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunInfo{}
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Lookup returns the summary of run id, or ErrUnknownRun.
func (j *Journal) Lookup(ctx context.Context, id string) (RunInfo, error) {
	row := j.db.QueryRowContext(ctx, runColumns+`
		WHERE r.id = ?
		GROUP BY r.id
	`, id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return info, err
}

// Last returns the most recently started run, or ErrNoRuns.
func (j *Journal) Last(ctx context.Context) (RunInfo, error) {
	row := j.db.QueryRowContext(ctx, runColumns+`
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT 1
	`)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, ErrNoRuns
	}
	return info, err
}

// Results returns the outcomes of run id in report order.
func (j *Journal) Results(ctx context.Context, id string) ([]Result, error) {
	if _, err := j.Lookup(ctx, id); err != nil {
		return nil, err
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, ok, description, recorded_at
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var res Result
		var recorded string
		if err := rows.Scan(&res.Seq, &res.OK, &res.Description, &recorded); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if res.RecordedAt, err = time.Parse(timeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunInfo, error) {
	var (
		info     RunInfo
		started  string
		finished sql.NullString
		code     sql.NullInt64
	)
	if err := s.Scan(&info.ID, &info.Scenario, &started, &finished, &code, &info.Tests, &info.Failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunInfo{}, err
		}
		return RunInfo{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if info.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return RunInfo{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return RunInfo{}, fmt.Errorf("parse finished_at: %w", err)
		}
		info.FinishedAt = &t
	}
	if code.Valid {
		c := int(code.Int64)
		info.ExitCode = &c
	}
	return info, nil
}
