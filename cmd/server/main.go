package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hl-grid-bot/internal/api"
	"hl-grid-bot/internal/app"
	"hl-grid-bot/internal/config"
	"hl-grid-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	token := strings.TrimSpace(os.Getenv("API_TOKEN"))
	if token == "" {
		log.Warn("API_TOKEN not set, control plane is unauthenticated")
	}
	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: api.NewServer(application.Registry(), log, token, application.MetricsHandler()).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control plane listening", zap.String("addr", cfg.API.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown failed", zap.Error(err))
	}
	application.Registry().StopAll()
	log.Info("shutdown complete")
}
