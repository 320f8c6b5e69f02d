package journal

import (
	"context"
	"fmt"
)

// Run is an open journal run. It implements diag.Recorder.
type Run struct {
	j  *Journal
	id string
}

// BeginRun inserts a new run labelled with scenario.
func (j *Journal) BeginRun(ctx context.Context, scenario string) (*Run, error) {
	id := j.ids.Generate()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, started_at)
		VALUES (?, ?, ?)
	`, id, scenario, j.timestamp())
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	return &Run{j: j, id: id}, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// Record appends one assertion outcome. A second record with the same seq
// is ignored.
func (r *Run) Record(seq int, ok bool, description string) error {
	_, err := r.j.db.Exec(`
		INSERT INTO results (run_id, seq, ok, description, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, r.id, seq, ok, description, r.j.timestamp())
	if err != nil {
		return fmt.Errorf("record result %d: %w", seq, err)
	}
	return nil
}

// Finish stores the exit code of the run and closes it.
func (r *Run) Finish(ctx context.Context, exitCode int) error {
	res, err := r.j.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, exit_code = ?
		WHERE id = ?
	`, r.j.timestamp(), exitCode, r.id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", r.id, ErrUnknownRun)
	}
	return nil
}
