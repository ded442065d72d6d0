package grid

import (
	"context"
	"fmt"
	"time"

	"hl-grid-bot/internal/config"
	"hl-grid-bot/internal/gateway"
	"hl-grid-bot/internal/metrics"
	"hl-grid-bot/internal/sink"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fill is one executed-order notification handed to the engine. Order
// is nil when the notification carried no order payload.
type Fill struct {
	Order *gateway.Order
	Time  time.Time
}

// Notifier delivers out-of-band alerts for trades the operator should
// know about immediately, such as compensating market buys.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// Engine owns one address's grid: the working set of resting rungs,
// the inventory counter, and the decisions taken on each fill. All
// state is per instance; fills for one engine are processed strictly
// one at a time by the owning observer.
type Engine struct {
	gw       gateway.Gateway
	rec      sink.Recorder
	m        *metrics.Metrics
	log      *zap.Logger
	cfg      config.GridConfig
	notifier Notifier

	sessionID string
	orders    *workingSet
	coins     *coinCounter
	history   *fillRing
}

func New(gw gateway.Gateway, rec sink.Recorder, m *metrics.Metrics, log *zap.Logger, cfg config.GridConfig) *Engine {
	if rec == nil {
		rec = sink.Noop{}
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		gw:        gw,
		rec:       rec,
		m:         m,
		log:       log,
		cfg:       cfg,
		sessionID: uuid.NewString(),
		orders:    newWorkingSet(),
		coins:     newCoinCounter(cfg.InitialCoins),
		history:   newFillRing(),
	}
}

// SetNotifier installs an alert channel. Must be called before the
// engine starts processing fills.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

func (e *Engine) CoinCount() int {
	return e.coins.Count()
}

// RecentFills returns the diagnostic record of past fills, oldest first.
func (e *Engine) RecentFills() []ExecutedFill {
	return e.history.Recent()
}

// Orders returns a copy of the current working set.
func (e *Engine) Orders() []gateway.Order {
	return e.orders.Orders()
}

func (e *Engine) gap() float64 {
	return e.cfg.Gaps[e.cfg.GapIndex]
}

func (e *Engine) rungQty(equity, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return equity / e.cfg.QuantityDivider / price
}

// SetupInitialPositions bootstraps a fresh grid: sets leverage, sizes a
// rung from the free balance, buys the initial inventory at market, and
// opens one Buy and one Sell rung around the current price.
func (e *Engine) SetupInitialPositions(ctx context.Context) error {
	e.log.Info("setting up initial positions", zap.Int("leverage", e.cfg.MaxLeverage))
	if err := e.gw.SetCrossMarginLeverage(ctx, e.cfg.MaxLeverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}
	acct, err := e.gw.AccountData(ctx)
	if err != nil {
		return fmt.Errorf("fetch account data: %w", err)
	}
	price, err := e.gw.CurrentPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch current price: %w", err)
	}
	perRung := e.rungQty(acct.FreeBalance, price)
	if perRung <= 0 {
		return fmt.Errorf("cannot size grid rung: free balance %.2f, price %.2f", acct.FreeBalance, price)
	}
	initialQty := perRung * e.cfg.InitialRungs
	e.log.Info("buying initial inventory",
		zap.Float64("qty", initialQty),
		zap.Float64("price", price),
		zap.Float64("free_balance", acct.FreeBalance))
	if err := e.gw.BuyAtMarketPrice(ctx, initialQty, price); err != nil {
		return fmt.Errorf("initial market buy: %w", err)
	}
	e.m.MarketBuys.Inc()

	gap := e.gap()
	if err := e.createRung(ctx, gateway.SideBuy, perRung, price-gap); err != nil {
		return err
	}
	return e.createRung(ctx, gateway.SideSell, perRung, price+gap)
}

// RecoverPreviousState reconciles the working set from the exchange's
// live open orders. An empty exchange-side set means a fresh start and
// re-runs the bootstrap. A set missing one side is kept as found and
// only logged; the grid self-corrects on the next fill or is fixed by
// hand.
func (e *Engine) RecoverPreviousState(ctx context.Context) error {
	open, err := e.gw.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	e.orders.Replace(open)
	if e.orders.Len() == 0 {
		e.log.Info("no resting orders found, bootstrapping grid")
		return e.SetupInitialPositions(ctx)
	}
	buys := e.orders.CountSide(gateway.SideBuy)
	sells := e.orders.CountSide(gateway.SideSell)
	if buys == 0 || sells == 0 {
		e.log.Warn("recovered grid is missing one side",
			zap.Int("buy_rungs", buys),
			zap.Int("sell_rungs", sells))
	}
	e.log.Info("recovered working set", zap.Int("orders", e.orders.Len()))
	return nil
}

// OnExecutedOrder reacts to one fill: records it, rebuilds the rungs
// around the fill price, prunes stale Buy levels, and keeps the
// inventory counter in step. Exchange errors abort the call and leave
// the working set to the next fill or a restart to reconcile.
func (e *Engine) OnExecutedOrder(ctx context.Context, fill Fill) error {
	if fill.Order == nil {
		e.log.Warn("executed order notification without payload dropped")
		return nil
	}
	order := *fill.Order
	e.log.Info("order executed",
		zap.String("id", order.ID),
		zap.String("side", order.Side.String()),
		zap.Float64("price", order.Price))
	e.m.FillsProcessed.Inc()
	e.history.Add(ExecutedFill{Side: order.Side, Price: order.Price, Time: fill.Time})
	e.rec.OnNewOrder(sink.Fill{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Price:   order.Price,
		Size:    order.Size,
		Status:  sink.StatusFilled,
		Time:    fill.Time,
	}, e.sessionID)
	e.orders.RemoveByID(order.ID)

	acct, err := e.gw.AccountData(ctx)
	if err != nil {
		return fmt.Errorf("refresh account data: %w", err)
	}

	if order.Side.IsBuy() {
		err = e.handleOpenLongFilled(ctx, acct.TotalEquity, order)
	} else {
		err = e.handleCloseLongFilled(ctx, acct.TotalEquity, order)
	}
	if err != nil {
		return err
	}
	e.checkGridShape()
	return nil
}

// OnCanceledOrder drops a canceled order from the working set. No rung
// is recreated in its place.
func (e *Engine) OnCanceledOrder(fill Fill) {
	if fill.Order == nil {
		return
	}
	e.orders.RemoveByID(fill.Order.ID)
}

// An open long filled: the price moved down and we bought a coin.
func (e *Engine) handleOpenLongFilled(ctx context.Context, equity float64, order gateway.Order) error {
	e.coins.Increment()
	e.rec.OnFilledBuyPosition(sink.Position{
		Symbol: order.Symbol,
		Side:   order.Side,
		Size:   order.Size,
		Price:  order.Price,
		Status: sink.StatusFilled,
	}, e.sessionID)
	return e.regrow(ctx, equity, order.Price)
}

// A close long filled: the price moved up and we sold a coin. When the
// inventory drops to the floor, buy back at market so the grid always
// has coins to sell into rising prices.
func (e *Engine) handleCloseLongFilled(ctx context.Context, equity float64, order gateway.Order) error {
	e.rec.OnFilledSellPosition(sink.Position{
		Symbol: order.Symbol,
		Side:   order.Side,
		Size:   order.Size,
		Price:  order.Price,
		Status: sink.StatusFilled,
	}, e.sessionID)
	if err := e.regrow(ctx, equity, order.Price); err != nil {
		return err
	}
	if err := e.coins.Decrement(); err != nil {
		return err
	}
	if e.coins.Count() <= e.cfg.MinCoins {
		qty := 2 * e.rungQty(equity, order.Price)
		e.log.Info("inventory at minimum, buying at market",
			zap.Int("coins", e.coins.Count()),
			zap.Float64("qty", qty),
			zap.Float64("price", order.Price))
		if err := e.gw.BuyAtMarketPrice(ctx, qty, order.Price); err != nil {
			return fmt.Errorf("compensating market buy: %w", err)
		}
		e.m.MarketBuys.Inc()
		e.notifyMarketBuy(order.Symbol, qty, order.Price)
	}
	return nil
}

// notifyMarketBuy alerts best-effort off the decision path; a failed
// delivery is logged only.
func (e *Engine) notifyMarketBuy(symbol string, qty, price float64) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg := fmt.Sprintf("compensating market buy: %.6f %s at %.2f", qty, symbol, price)
		if err := e.notifier.Send(ctx, msg); err != nil {
			e.log.Warn("market buy alert failed", zap.Error(err))
		}
	}()
}

// regrow opens the two rungs flanking the fill price and prunes Buy
// levels left behind below the market.
func (e *Engine) regrow(ctx context.Context, equity, fillPrice float64) error {
	qty := e.rungQty(equity, fillPrice)
	if qty <= 0 {
		return fmt.Errorf("cannot size rung: equity %.2f, price %.2f", equity, fillPrice)
	}
	gap := e.gap()
	if err := e.createRung(ctx, gateway.SideBuy, qty, fillPrice-gap); err != nil {
		return err
	}
	if err := e.createRung(ctx, gateway.SideSell, qty, fillPrice+gap); err != nil {
		return err
	}
	return e.pruneLowBuys(ctx)
}

// createRung places one resting order unless a rung of the same side
// already sits at that price.
func (e *Engine) createRung(ctx context.Context, side gateway.Side, qty, price float64) error {
	if e.orders.ContainsRungAtPrice(side, price) {
		e.log.Debug("rung already exists",
			zap.String("side", side.String()),
			zap.Float64("price", price))
		return nil
	}
	var (
		order gateway.Order
		err   error
	)
	if side.IsBuy() {
		order, err = e.gw.CreateOpenLong(ctx, qty, price)
	} else {
		order, err = e.gw.CreateCloseLong(ctx, qty, price)
	}
	if err != nil {
		e.m.OrdersFailed.Inc()
		return fmt.Errorf("create %s rung at %.2f: %w", side, price, err)
	}
	e.orders.Add(order)
	e.m.OrdersPlaced.Inc()
	e.log.Info("rung created",
		zap.String("id", order.ID),
		zap.String("side", side.String()),
		zap.Float64("price", order.Price),
		zap.Float64("qty", order.Size))
	pos := sink.Position{
		Symbol: order.Symbol,
		Side:   side,
		Size:   order.Size,
		Price:  order.Price,
		Status: sink.StatusCreated,
	}
	if side.IsBuy() {
		e.rec.OnNewBuyPosition(pos, e.sessionID)
	} else {
		e.rec.OnNewSellPosition(pos, e.sessionID)
	}
	return nil
}

// pruneLowBuys cancels every Buy rung below the highest one so the grid
// tracks the single nearest-below-market buy level.
func (e *Engine) pruneLowBuys(ctx context.Context) error {
	for _, order := range e.orders.BuysBelowHighest() {
		if err := e.gw.CancelOrder(ctx, order.ID); err != nil {
			return fmt.Errorf("cancel stale buy rung %s: %w", order.ID, err)
		}
		e.orders.RemoveByID(order.ID)
		e.m.OrdersCanceled.Inc()
		e.log.Info("stale buy rung canceled",
			zap.String("id", order.ID),
			zap.Float64("price", order.Price))
	}
	return nil
}

// checkGridShape is a diagnostic only: a misshapen grid is logged, not
// corrected.
func (e *Engine) checkGridShape() {
	buys := e.orders.CountSide(gateway.SideBuy)
	sells := e.orders.CountSide(gateway.SideSell)
	if buys != 1 || sells < 1 {
		e.log.Error("grid shape violated",
			zap.Int("buy_rungs", buys),
			zap.Int("sell_rungs", sells))
	}
}
