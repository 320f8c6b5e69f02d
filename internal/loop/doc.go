// Package loop provides the single-threaded event pump that every
// completion and event callback runs on.
//
// Transports receive frames on their own goroutines and Post a callback to
// the Loop. The test script's goroutine calls PumpOnce, which runs at most
// one posted callback and returns. Callbacks therefore never run
// concurrently with each other nor with the script between two pumps, and
// the state they touch needs no locking.
//
// Thread-safety model:
//   - Post, Nudge, Close, Len: safe from any goroutine
//   - PumpOnce: must be called from exactly one goroutine
package loop
