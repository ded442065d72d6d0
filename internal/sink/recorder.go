package sink

import (
	"context"
	"fmt"
	"time"

	"hl-grid-bot/internal/config"
	"hl-grid-bot/internal/gateway"
	"hl-grid-bot/internal/metrics"

	"go.uber.org/zap"
)

// Fill is the order observation recorded for every executed order the
// engine processes.
type Fill struct {
	OrderID string
	Symbol  string
	Side    gateway.Side
	Price   float64
	Size    float64
	Status  string
	Time    time.Time
}

// Position is a snapshot of a grid rung at a lifecycle edge.
type Position struct {
	Symbol string
	Side   gateway.Side
	Size   float64
	Price  float64
	Status string
}

const (
	StatusCreated       = "created"
	StatusFilled        = "filled"
	StatusCanceled      = "canceled"
	StatusPartialUpdate = "partial_update"
)

// Recorder receives trading observations. Calls are fire-and-forget:
// implementations log their own failures and never surface errors into
// the decision path.
type Recorder interface {
	OnNewOrder(fill Fill, sessionID string)
	OnNewBuyPosition(pos Position, sessionID string)
	OnNewSellPosition(pos Position, sessionID string)
	OnFilledBuyPosition(pos Position, sessionID string)
	OnFilledSellPosition(pos Position, sessionID string)
	Close() error
}

// New selects the recorder implementation from config. The context
// bounds the lifetime of any background writer the driver starts.
func New(ctx context.Context, cfg config.SinkConfig, m *metrics.Metrics, log *zap.Logger) (Recorder, error) {
	if m == nil {
		m = metrics.NewNoop()
	}
	switch cfg.Driver {
	case "", config.SinkDriverNoop:
		return Noop{}, nil
	case config.SinkDriverSQLite:
		return NewSQLite(cfg.SQLitePath, m, log)
	case config.SinkDriverPostgres:
		p, err := NewPostgres(cfg, m, log)
		if err != nil {
			return nil, err
		}
		p.Start(ctx)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
}

type observation struct {
	EventType string
	SessionID string
	Symbol    string
	Side      string
	Price     float64
	Size      float64
	Status    string
	OrderID   string
	Time      time.Time
}

func fillObservation(fill Fill, sessionID string) observation {
	if fill.Time.IsZero() {
		fill.Time = time.Now().UTC()
	}
	return observation{
		EventType: "order",
		SessionID: sessionID,
		Symbol:    fill.Symbol,
		Side:      fill.Side.String(),
		Price:     fill.Price,
		Size:      fill.Size,
		Status:    fill.Status,
		OrderID:   fill.OrderID,
		Time:      fill.Time,
	}
}

func positionObservation(event string, pos Position, sessionID string) observation {
	return observation{
		EventType: event,
		SessionID: sessionID,
		Symbol:    pos.Symbol,
		Side:      pos.Side.String(),
		Price:     pos.Price,
		Size:      pos.Size,
		Status:    pos.Status,
		Time:      time.Now().UTC(),
	}
}
