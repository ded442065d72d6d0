// Package app wires the trading stack together: shared REST client,
// recording sink, metrics, alerts, and the observer registry with its
// per-address factory.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hl-grid-bot/internal/alerts"
	"hl-grid-bot/internal/config"
	"hl-grid-bot/internal/gateway"
	"hl-grid-bot/internal/grid"
	"hl-grid-bot/internal/hl/exchange"
	"hl-grid-bot/internal/hl/rest"
	"hl-grid-bot/internal/hl/ws"
	"hl-grid-bot/internal/metrics"
	"hl-grid-bot/internal/observer"
	"hl-grid-bot/internal/sink"

	"go.uber.org/zap"
)

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	rest     *rest.Client
	rec      sink.Recorder
	prom     *metrics.Prometheus
	alerts   *alerts.Telegram
	registry *observer.Registry
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.Sink.Driver == config.SinkDriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Sink.SQLitePath), 0o755); err != nil {
			return nil, err
		}
	}
	prom := metrics.NewPrometheus()
	rec, err := sink.New(ctx, cfg.Sink, prom.Metrics, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		log:    log,
		rest:   rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log),
		rec:    rec,
		prom:   prom,
		alerts: alerts.NewTelegram(cfg.Telegram, log),
	}
	a.registry = observer.NewRegistry(a.buildObserver, a.prom.Metrics, log)
	if cfg.Telegram.Enabled {
		a.registry.SetNotifier(a.alerts)
	}
	return a, nil
}

func (a *App) Registry() *observer.Registry {
	return a.registry
}

func (a *App) MetricsHandler() http.Handler {
	return a.prom.Handler()
}

func (a *App) Close() error {
	return a.rec.Close()
}

// buildObserver assembles one address's full stack: signer, exchange
// client, gateway, engine (with state recovery) and stream client.
func (a *App) buildObserver(ctx context.Context, address string) (observer.Runner, error) {
	cfg := a.cfg
	privateKey := strings.TrimSpace(os.Getenv("HL_PRIVATE_KEY"))
	if privateKey == "" {
		return nil, errors.New("HL_PRIVATE_KEY is required")
	}
	isMainnet := !strings.Contains(strings.ToLower(cfg.REST.BaseURL), "testnet")
	signer, err := exchange.NewSigner(privateKey, isMainnet)
	if err != nil {
		return nil, err
	}
	if wallet := strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS")); wallet != "" {
		if !strings.EqualFold(wallet, signer.Address().Hex()) {
			return nil, fmt.Errorf("wallet address does not match private key: got %s expected %s", wallet, signer.Address().Hex())
		}
	}
	vaultAddress := strings.TrimSpace(os.Getenv("HL_VAULT_ADDRESS"))
	exClient, err := exchange.NewClient(cfg.REST.BaseURL, cfg.REST.Timeout, signer, vaultAddress)
	if err != nil {
		return nil, err
	}
	exClient.SetLogger(a.log)

	gw := gateway.NewHyperliquid(a.rest, exClient, a.log, cfg.Grid.Symbol, address, cfg.Grid.Slippage)
	engine := grid.New(gw, a.rec, a.prom.Metrics, a.log, cfg.Grid)
	if cfg.Telegram.Enabled {
		engine.SetNotifier(a.alerts)
	}
	if err := engine.RecoverPreviousState(ctx); err != nil {
		return nil, fmt.Errorf("recover state for %s: %w", address, err)
	}

	wsClient := ws.New(cfg.WS.URL, address, ws.Options{
		PingInterval:         cfg.WS.PingInterval,
		ReconnectBaseDelay:   cfg.WS.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.WS.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.WS.MaxReconnectAttempts,
		Metrics:              a.prom.Metrics,
	}, a.log)
	return observer.New(wsClient, engine, a.log), nil
}

// Run drives the single-address bot mode: start one observer for the
// address and block until shutdown or until the observer dies.
func (a *App) Run(ctx context.Context, address string) error {
	id, err := a.registry.Start(ctx, address)
	if err != nil {
		return err
	}
	a.log.Info("bot running", zap.String("observer_id", id), zap.String("address", address))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.registry.StopAll()
			return nil
		case <-ticker.C:
			info, err := a.registry.Get(id)
			if err != nil {
				return err
			}
			if info.Status == observer.StatusCrashed {
				a.registry.StopAll()
				return fmt.Errorf("observer terminated: %s", info.LastError)
			}
			if info.Status == observer.StatusStopped {
				a.registry.StopAll()
				return nil
			}
		}
	}
}
