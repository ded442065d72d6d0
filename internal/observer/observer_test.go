package observer

import (
	"context"
	"errors"
	"testing"

	"hl-grid-bot/internal/grid"
	"hl-grid-bot/internal/hl/ws"

	"go.uber.org/zap"
)

type fakeEngine struct {
	executed []grid.Fill
	canceled []grid.Fill
	failOn   string
}

func (f *fakeEngine) OnExecutedOrder(_ context.Context, fill grid.Fill) error {
	if fill.Order != nil && fill.Order.ID == f.failOn {
		return errors.New("engine failure")
	}
	f.executed = append(f.executed, fill)
	return nil
}

func (f *fakeEngine) OnCanceledOrder(fill grid.Fill) {
	f.canceled = append(f.canceled, fill)
}

func update(oid int64, side, status string, price float64) ws.OrderUpdate {
	return ws.OrderUpdate{
		Order: ws.BasicOrder{
			Coin:    "BTC",
			Side:    side,
			LimitPx: price,
			Sz:      "0.1",
			Oid:     oid,
		},
		Status:          status,
		StatusTimestamp: 1700000000000,
	}
}

func TestHandleOrderUpdatesDispatchesByStatus(t *testing.T) {
	engine := &fakeEngine{}
	obs := New(nil, engine, zap.NewNop())

	obs.HandleOrderUpdates([]ws.OrderUpdate{
		update(1, "B", "filled", 99000),
		update(2, "A", "open", 101000),
		update(3, "A", "canceled", 102000),
	})

	if len(engine.executed) != 1 {
		t.Fatalf("expected 1 executed fill, got %d", len(engine.executed))
	}
	fill := engine.executed[0]
	if fill.Order == nil || fill.Order.ID != "1" || !fill.Order.Side.IsBuy() || fill.Order.Price != 99000 {
		t.Fatalf("unexpected fill %+v", fill.Order)
	}
	if len(engine.canceled) != 1 || engine.canceled[0].Order.ID != "3" {
		t.Fatalf("unexpected canceled fills %+v", engine.canceled)
	}
}

func TestBatchErrorIsolation(t *testing.T) {
	engine := &fakeEngine{failOn: "1"}
	obs := New(nil, engine, zap.NewNop())

	obs.HandleOrderUpdates([]ws.OrderUpdate{
		update(1, "B", "filled", 99000),
		update(2, "A", "filled", 101000),
	})

	if len(engine.executed) != 1 || engine.executed[0].Order.ID != "2" {
		t.Fatalf("failure on one fill must not stop the batch, got %+v", engine.executed)
	}
}

func TestToFillNormalizesPayload(t *testing.T) {
	obs := New(nil, &fakeEngine{}, zap.NewNop())

	fill := obs.toFill(update(7, "A", "filled", 101000))
	if fill.Order == nil {
		t.Fatal("expected order payload")
	}
	if fill.Order.ID != "7" || !fill.Order.Side.IsSell() || fill.Order.Size != 0.1 {
		t.Fatalf("unexpected order %+v", fill.Order)
	}
	if fill.Time.IsZero() {
		t.Fatal("expected fill time from status timestamp")
	}

	u := update(8, "B", "filled", 99000)
	u.Order.Sz = "0.0"
	u.Order.OrigSz = "0.25"
	fill = obs.toFill(u)
	if fill.Order.Size != 0.25 {
		t.Fatalf("expected fallback to original size, got %v", fill.Order.Size)
	}
}

func TestToFillDropsUnknownSide(t *testing.T) {
	obs := New(nil, &fakeEngine{}, zap.NewNop())
	fill := obs.toFill(update(9, "?", "filled", 99000))
	if fill.Order != nil {
		t.Fatalf("unknown side must yield no payload, got %+v", fill.Order)
	}
}

func TestToFillMissingOrderPayload(t *testing.T) {
	obs := New(nil, &fakeEngine{}, zap.NewNop())
	fill := obs.toFill(ws.OrderUpdate{Status: "filled"})
	if fill.Order != nil {
		t.Fatalf("missing payload must yield nil order, got %+v", fill.Order)
	}
}
