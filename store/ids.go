package store

import (
	"fmt"
	"sync"
	"time"
)

const suffixSpace = 1000000

// IDGenerator issues AUD-<year>-<6 digits> identifiers. The suffix is the
// last six digits of the millisecond clock, bumped past the previous value so
// a single process never hands out the same suffix twice in a row.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{last: -1, now: time.Now}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now()
	suffix := t.UnixMilli() % suffixSpace
	if g.last >= 0 && suffix <= g.last && g.last-suffix < suffixSpace/2 {
		suffix = g.last + 1
	}
	suffix %= suffixSpace
	g.last = suffix
	return fmt.Sprintf("AUD-%04d-%06d", t.Year(), suffix)
}
