// Package ident generates identifiers for broadcast events and journal runs.
package ident

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// Safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7.
//
// Panics if the system random source fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence returns predetermined identifiers in order.
type Sequence struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequence creates a generator returning ids in order.
func NewSequence(ids ...string) *Sequence {
	return &Sequence{ids: ids}
}

// Generate returns the next identifier. It panics once the sequence is
// exhausted so that a test issuing more broadcasts than planned fails loudly.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("ident: sequence exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
