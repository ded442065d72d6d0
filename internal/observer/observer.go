package observer

import (
	"context"
	"strconv"
	"time"

	"hl-grid-bot/internal/gateway"
	"hl-grid-bot/internal/grid"
	"hl-grid-bot/internal/hl/ws"

	"go.uber.org/zap"
)

// FillHandler is the engine surface the observer drives.
type FillHandler interface {
	OnExecutedOrder(ctx context.Context, fill grid.Fill) error
	OnCanceledOrder(fill grid.Fill)
}

// Observer binds one address's order-update stream to one grid engine.
// It is the unit of lifecycle control exposed to the registry.
type Observer struct {
	client *ws.Client
	engine FillHandler
	log    *zap.Logger

	ctx context.Context
}

func New(client *ws.Client, engine FillHandler, log *zap.Logger) *Observer {
	return &Observer{client: client, engine: engine, log: log}
}

// Run connects the stream and blocks until it terminates. Fills are
// handed to the engine one at a time in stream order.
func (o *Observer) Run(ctx context.Context) error {
	o.ctx = ctx
	return o.client.Run(ctx, o.HandleOrderUpdates)
}

// Stop shuts the stream down. Safe to call more than once.
func (o *Observer) Stop() error {
	o.client.Stop()
	return nil
}

func (o *Observer) Running() bool {
	return o.client.Running()
}

// HandleOrderUpdates processes one inbound batch. A failure on one
// update is logged and does not stop the rest of the batch.
func (o *Observer) HandleOrderUpdates(updates []ws.OrderUpdate) {
	for _, update := range updates {
		o.handleUpdate(update)
	}
}

func (o *Observer) handleUpdate(update ws.OrderUpdate) {
	ctx := o.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	switch update.Status {
	case "filled":
		fill := o.toFill(update)
		if err := o.engine.OnExecutedOrder(ctx, fill); err != nil {
			o.log.Error("fill handling failed",
				zap.Int64("oid", update.Order.Oid),
				zap.String("side", update.Order.Side),
				zap.Float64("price", update.Order.LimitPx),
				zap.Error(err))
		}
	case "canceled":
		o.engine.OnCanceledOrder(o.toFill(update))
	default:
		// open, rejected and friends carry no action today
	}
}

// toFill normalizes the wire payload into the engine's fill type. The
// raw side code is translated here and nowhere else.
func (o *Observer) toFill(update ws.OrderUpdate) grid.Fill {
	fill := grid.Fill{}
	if update.StatusTimestamp > 0 {
		fill.Time = time.UnixMilli(update.StatusTimestamp).UTC()
	}
	raw := update.Order
	if raw.Oid == 0 {
		return fill
	}
	side, ok := gateway.ParseSide(raw.Side)
	if !ok {
		o.log.Warn("order update with unknown side dropped",
			zap.Int64("oid", raw.Oid),
			zap.String("side", raw.Side))
		return fill
	}
	size, err := strconv.ParseFloat(raw.Sz, 64)
	if err != nil || size == 0 {
		if orig, origErr := strconv.ParseFloat(raw.OrigSz, 64); origErr == nil {
			size = orig
		}
	}
	fill.Order = &gateway.Order{
		ID:     strconv.FormatInt(raw.Oid, 10),
		Symbol: raw.Coin,
		Side:   side,
		Price:  raw.LimitPx,
		Size:   size,
	}
	return fill
}
