// Package diag counts assertions and renders them as a test report.
//
// Three reporting modes are supported:
//
//   - tap: one "ok N desc" or "not ok N desc" line per assertion and a
//     trailing "1..N" plan line (Test Anything Protocol).
//   - old: no per assertion output; Terminate prints a success and a
//     failure tally.
//   - success: "SUCCESS: desc" and "FAILURE: desc" lines, then the tally.
//
// Descriptions are the info value given to Success, Failure or Assert,
// rendered as canonical JSON (sorted keys, NFC normalized strings) unless
// it is already a scalar, in which case its plain text form is used.
//
// A Diagnostics value is owned by a single goroutine, the one pumping the
// event loop. It is not safe for concurrent use.
package diag
