package testutil

import "sync"

// FixedRefGenerator returns predetermined local references for queued
// actions, enabling deterministic assertions and golden comparisons.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedRefGenerator struct {
	mu   sync.Mutex
	refs []string
	idx  int
}

// NewFixedRefGenerator creates a generator that returns refs in order.
//
// Panics when all refs are consumed - fail-fast for test misconfiguration
// (the test enqueued more actions than it expected to).
func NewFixedRefGenerator(refs ...string) *FixedRefGenerator {
	return &FixedRefGenerator{refs: refs}
}

// Generate returns the next predetermined reference.
func (g *FixedRefGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.refs) {
		panic("FixedRefGenerator: all refs exhausted")
	}
	ref := g.refs[g.idx]
	g.idx++
	return ref
}
