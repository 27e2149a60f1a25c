package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedClock returns a predetermined time, advancing only when told to.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock pinned to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// SeqIDGenerator produces deterministic IDs: prefix-1, prefix-2, ...
type SeqIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqIDGenerator creates a generator with the given prefix.
func NewSeqIDGenerator(prefix string) *SeqIDGenerator {
	return &SeqIDGenerator{prefix: prefix}
}

func (g *SeqIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
