package grid

import (
	"testing"

	"hl-grid-bot/internal/gateway"
)

func TestFillRingWrapsAround(t *testing.T) {
	ring := newFillRing()
	for i := 0; i < historyCapacity+2; i++ {
		ring.Add(ExecutedFill{Side: gateway.SideBuy, Price: float64(i)})
	}
	recent := ring.Recent()
	if len(recent) != historyCapacity {
		t.Fatalf("expected %d entries, got %d", historyCapacity, len(recent))
	}
	if recent[0].Price != 2 {
		t.Fatalf("expected oldest entry price 2, got %v", recent[0].Price)
	}
	if recent[len(recent)-1].Price != float64(historyCapacity+1) {
		t.Fatalf("unexpected newest entry %v", recent[len(recent)-1])
	}
}
