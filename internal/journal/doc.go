// Package journal keeps a durable record of assertion outcomes.
//
// A journal is a SQLite database. Each test run gets a row in runs,
// identified by a UUIDv7 so that run ids sort by start time, and every
// assertion reported during the run is appended to results with its
// sequence number and rendered description. A Run satisfies
// diag.Recorder, so wiring it into the diagnostics is enough to journal a
// run:
//
//	j, err := journal.Open("results.db")
//	...
//	run, err := j.BeginRun(ctx, "hello")
//	d := diag.New(diag.WithRecorder(run))
//	...
//	run.Finish(ctx, d.Terminate())
//
// The database uses WAL mode so that a report can be read while a run is
// being written.
package journal
