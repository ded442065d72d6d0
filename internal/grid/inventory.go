package grid

import "errors"

// ErrInventoryDepleted is returned when a close-long fill would take
// the coin count below zero. The counter is never clamped.
var ErrInventoryDepleted = errors.New("coin count cannot be decremented below zero")

type coinCounter struct {
	count int
}

func newCoinCounter(initial int) *coinCounter {
	return &coinCounter{count: initial}
}

func (c *coinCounter) Count() int {
	return c.count
}

func (c *coinCounter) Increment() {
	c.count++
}

func (c *coinCounter) Decrement() error {
	if c.count <= 0 {
		return ErrInventoryDepleted
	}
	c.count--
	return nil
}
