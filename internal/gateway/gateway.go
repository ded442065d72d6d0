package gateway

import (
	"context"
	"strings"
)

// Side is the normalized order side. Raw exchange codes are translated
// exactly once at this boundary; internal logic never compares raw strings.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

// ParseSide normalizes the side encodings seen on the wire: the exchange's
// book codes ("B" for bid, "A" for ask) and the ccxt-style words.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "b", "buy", "bid":
		return SideBuy, true
	case "a", "s", "sell", "ask":
		return SideSell, true
	default:
		return 0, false
	}
}

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

func (s Side) IsBuy() bool  { return s == SideBuy }
func (s Side) IsSell() bool { return s == SideSell }

// Order is the projection of an exchange-side resting order.
type Order struct {
	ID     string
	Symbol string
	Side   Side
	Price  float64
	Size   float64
}

// AccountData is the perp account snapshot the grid engine sizes from.
type AccountData struct {
	FreeBalance float64
	TotalEquity float64
}

// Gateway is the exchange boundary consumed by the grid engine. Mutating
// calls may fail with transport or exchange errors; the engine does not
// retry them.
type Gateway interface {
	CurrentPrice(ctx context.Context) (float64, error)
	AccountData(ctx context.Context) (AccountData, error)
	OpenOrders(ctx context.Context) ([]Order, error)
	BuyAtMarketPrice(ctx context.Context, qty, price float64) error
	CreateOpenLong(ctx context.Context, qty, price float64) (Order, error)
	CreateCloseLong(ctx context.Context, qty, price float64) (Order, error)
	CancelOrder(ctx context.Context, id string) error
	SetCrossMarginLeverage(ctx context.Context, leverage int) error
}
