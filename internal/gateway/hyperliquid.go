package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"hl-grid-bot/internal/hl/exchange"
	"hl-grid-bot/internal/hl/rest"

	"go.uber.org/zap"
)

// Hyperliquid implements Gateway on top of the /info and /exchange clients.
// It resolves the traded symbol's asset index and size decimals once and
// caches them for the connection's lifetime.
type Hyperliquid struct {
	rest     *rest.Client
	ex       *exchange.Client
	log      *zap.Logger
	symbol   string
	user     string
	slippage float64

	mu         sync.Mutex
	assetReady bool
	assetID    int
	szDecimals int
}

func NewHyperliquid(restClient *rest.Client, exClient *exchange.Client, log *zap.Logger, symbol, user string, slippage float64) *Hyperliquid {
	return &Hyperliquid{
		rest:     restClient,
		ex:       exClient,
		log:      log,
		symbol:   symbol,
		user:     user,
		slippage: slippage,
	}
}

func (h *Hyperliquid) CurrentPrice(ctx context.Context) (float64, error) {
	mids, err := h.rest.Info(ctx, rest.InfoRequest{Type: "allMids"})
	if err != nil {
		return 0, err
	}
	if px, ok := floatFromAny(mids[h.symbol]); ok && px > 0 {
		return px, nil
	}
	return 0, fmt.Errorf("no mid price for %s", h.symbol)
}

func (h *Hyperliquid) AccountData(ctx context.Context) (AccountData, error) {
	state, err := h.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: h.user})
	if err != nil {
		return AccountData{}, err
	}
	data := AccountData{}
	if summary, ok := toMap(state["marginSummary"]); ok {
		data.TotalEquity = floatFromMap(summary, "accountValue")
	}
	if free, ok := floatFromAny(state["withdrawable"]); ok {
		data.FreeBalance = free
	}
	if data.TotalEquity == 0 && data.FreeBalance == 0 {
		return AccountData{}, errors.New("clearinghouse state missing margin summary")
	}
	return data, nil
}

func (h *Hyperliquid) OpenOrders(ctx context.Context) ([]Order, error) {
	resp, err := h.rest.InfoAny(ctx, rest.InfoRequest{Type: "openOrders", User: h.user})
	if err != nil {
		return nil, err
	}
	list, ok := toSlice(resp)
	if !ok {
		return nil, errors.New("unexpected openOrders payload")
	}
	orders := make([]Order, 0, len(list))
	for _, item := range list {
		entry, ok := toMap(item)
		if !ok {
			continue
		}
		coin := stringFromAny(entry["coin"])
		if coin != h.symbol {
			continue
		}
		side, ok := ParseSide(stringFromAny(entry["side"]))
		if !ok {
			h.log.Warn("open order with unknown side dropped", zap.Any("order", entry))
			continue
		}
		orders = append(orders, Order{
			ID:     stringFromAny(entry["oid"]),
			Symbol: coin,
			Side:   side,
			Price:  floatFromMap(entry, "limitPx", "px"),
			Size:   floatFromMap(entry, "sz", "origSz"),
		})
	}
	return orders, nil
}

// BuyAtMarketPrice emulates a market order with an aggressive IOC limit,
// the same way the reference SDK implements market orders.
func (h *Hyperliquid) BuyAtMarketPrice(ctx context.Context, qty, price float64) error {
	if qty <= 0 || price <= 0 {
		return fmt.Errorf("invalid market buy qty=%f price=%f", qty, price)
	}
	_, err := h.place(ctx, true, qty, price*(1+h.slippage), exchange.TifIoc)
	return err
}

func (h *Hyperliquid) CreateOpenLong(ctx context.Context, qty, price float64) (Order, error) {
	return h.place(ctx, true, qty, price, exchange.TifGtc)
}

func (h *Hyperliquid) CreateCloseLong(ctx context.Context, qty, price float64) (Order, error) {
	return h.place(ctx, false, qty, price, exchange.TifGtc)
}

func (h *Hyperliquid) place(ctx context.Context, isBuy bool, qty, price float64, tif exchange.Tif) (Order, error) {
	assetID, szDecimals, err := h.asset(ctx)
	if err != nil {
		return Order{}, err
	}
	size := roundDown(qty, szDecimals)
	limit := normalizeLimitPrice(price, szDecimals)
	if size <= 0 || limit <= 0 {
		return Order{}, fmt.Errorf("derived order size %f or price %f is invalid", size, limit)
	}
	wire, err := exchange.LimitOrderWire(assetID, isBuy, size, limit, false, tif, "")
	if err != nil {
		return Order{}, err
	}
	resp, err := h.ex.PlaceOrder(ctx, wire)
	if err != nil {
		return Order{}, err
	}
	orderID := exchange.OrderIDFromResponse(resp)
	if orderID == "" {
		return Order{}, errors.New("missing order id in exchange response")
	}
	side := SideSell
	if isBuy {
		side = SideBuy
	}
	return Order{ID: orderID, Symbol: h.symbol, Side: side, Price: limit, Size: size}, nil
}

func (h *Hyperliquid) CancelOrder(ctx context.Context, id string) error {
	assetID, _, err := h.asset(ctx)
	if err != nil {
		return err
	}
	oid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %s: %w", id, err)
	}
	_, err = h.ex.CancelOrder(ctx, assetID, oid)
	return err
}

func (h *Hyperliquid) SetCrossMarginLeverage(ctx context.Context, leverage int) error {
	assetID, _, err := h.asset(ctx)
	if err != nil {
		return err
	}
	_, err = h.ex.UpdateLeverage(ctx, assetID, leverage, true)
	return err
}

func (h *Hyperliquid) asset(ctx context.Context) (int, int, error) {
	h.mu.Lock()
	if h.assetReady {
		id, dec := h.assetID, h.szDecimals
		h.mu.Unlock()
		return id, dec, nil
	}
	h.mu.Unlock()

	meta, err := h.rest.Info(ctx, rest.InfoRequest{Type: "meta"})
	if err != nil {
		return 0, 0, err
	}
	universe, ok := toSlice(meta["universe"])
	if !ok {
		return 0, 0, errors.New("meta payload missing universe")
	}
	for i, entry := range universe {
		asset, ok := toMap(entry)
		if !ok {
			continue
		}
		if stringFromAny(asset["name"]) != h.symbol {
			continue
		}
		h.mu.Lock()
		h.assetID = i
		h.szDecimals = intFromAny(asset["szDecimals"], 0)
		h.assetReady = true
		id, dec := h.assetID, h.szDecimals
		h.mu.Unlock()
		return id, dec, nil
	}
	return 0, 0, fmt.Errorf("asset %s not found in universe", h.symbol)
}

func roundDown(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Floor(value)
	}
	factor := math.Pow10(decimals)
	return math.Floor(value*factor) / factor
}

func roundTo(value float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(value)
	}
	factor := math.Pow10(decimals)
	return math.Round(value*factor) / factor
}

// normalizeLimitPrice applies the exchange's perp tick rule: at most five
// significant figures and at most 6-szDecimals decimal places.
func normalizeLimitPrice(price float64, szDecimals int) float64 {
	if price <= 0 {
		return 0
	}
	if sig, err := strconv.ParseFloat(strconv.FormatFloat(price, 'g', 5, 64), 64); err == nil {
		price = sig
	}
	decimals := 6 - szDecimals
	if decimals < 0 {
		decimals = 0
	}
	return roundTo(price, decimals)
}
