package grid

import (
	"errors"
	"testing"
)

func TestCoinCounter(t *testing.T) {
	coins := newCoinCounter(2)
	coins.Increment()
	if coins.Count() != 3 {
		t.Fatalf("expected 3, got %d", coins.Count())
	}
	for i := 0; i < 3; i++ {
		if err := coins.Decrement(); err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
	}
	if coins.Count() != 0 {
		t.Fatalf("expected 0, got %d", coins.Count())
	}
	if err := coins.Decrement(); !errors.Is(err, ErrInventoryDepleted) {
		t.Fatalf("expected ErrInventoryDepleted, got %v", err)
	}
	if coins.Count() != 0 {
		t.Fatalf("failed decrement must not change the count, got %d", coins.Count())
	}
}
