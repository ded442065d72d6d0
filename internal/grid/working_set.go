package grid

import (
	"math"
	"sort"

	"hl-grid-bot/internal/gateway"
)

// priceEpsilon bounds the float drift a limit price picks up on a round
// trip through the exchange API. Two prices closer than this are the
// same rung.
const priceEpsilon = 1e-6

func samePrice(a, b float64) bool {
	return math.Abs(a-b) < priceEpsilon
}

// workingSet is the engine's in-memory view of the resting orders it
// owns. It is only ever touched by the goroutine processing fills for
// one observer, so it carries no lock.
type workingSet struct {
	orders []gateway.Order
}

func newWorkingSet() *workingSet {
	return &workingSet{}
}

func (s *workingSet) Replace(orders []gateway.Order) {
	s.orders = append(s.orders[:0], orders...)
}

func (s *workingSet) Add(order gateway.Order) {
	s.orders = append(s.orders, order)
}

// RemoveByID drops the order with the given id. Removing an unknown id
// is a no-op.
func (s *workingSet) RemoveByID(id string) bool {
	for i, order := range s.orders {
		if order.ID == id {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (s *workingSet) ContainsRungAtPrice(side gateway.Side, price float64) bool {
	for _, order := range s.orders {
		if order.Side == side && samePrice(order.Price, price) {
			return true
		}
	}
	return false
}

// BuysBelowHighest returns every Buy rung except the highest-priced
// one. These are the stale levels pruning cancels after a fill.
func (s *workingSet) BuysBelowHighest() []gateway.Order {
	var buys []gateway.Order
	for _, order := range s.orders {
		if order.Side.IsBuy() {
			buys = append(buys, order)
		}
	}
	if len(buys) <= 1 {
		return nil
	}
	sort.Slice(buys, func(i, j int) bool { return buys[i].Price < buys[j].Price })
	return buys[:len(buys)-1]
}

func (s *workingSet) CountSide(side gateway.Side) int {
	n := 0
	for _, order := range s.orders {
		if order.Side == side {
			n++
		}
	}
	return n
}

func (s *workingSet) Len() int {
	return len(s.orders)
}

func (s *workingSet) Orders() []gateway.Order {
	out := make([]gateway.Order, len(s.orders))
	copy(out, s.orders)
	return out
}
