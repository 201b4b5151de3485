// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialGenerator produces prefix-1, prefix-2, ... in order.
//
// The harness uses one per scenario for transaction ids and generated
// keys, so two runs of the same scenario produce byte-identical snapshots.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialGenerator creates a generator. An empty prefix defaults to "tx".
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	if prefix == "" {
		prefix = "tx"
	}
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
