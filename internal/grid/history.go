package grid

import (
	"time"

	"hl-grid-bot/internal/gateway"
)

const historyCapacity = 128

// ExecutedFill is one past fill kept for diagnostics. Decision logic
// only ever looks at the fill passed into OnExecutedOrder directly.
type ExecutedFill struct {
	Side  gateway.Side
	Price float64
	Time  time.Time
}

// fillRing is a bounded append-only record of recent fills.
type fillRing struct {
	entries []ExecutedFill
	next    int
	wrapped bool
}

func newFillRing() *fillRing {
	return &fillRing{entries: make([]ExecutedFill, historyCapacity)}
}

func (r *fillRing) Add(fill ExecutedFill) {
	if fill.Time.IsZero() {
		fill.Time = time.Now().UTC()
	}
	r.entries[r.next] = fill
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.wrapped = true
	}
}

// Recent returns the recorded fills oldest first.
func (r *fillRing) Recent() []ExecutedFill {
	if !r.wrapped {
		out := make([]ExecutedFill, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]ExecutedFill, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
