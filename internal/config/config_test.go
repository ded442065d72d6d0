package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGridDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Grid.Symbol != "BTC" {
		t.Fatalf("expected symbol BTC, got %q", cfg.Grid.Symbol)
	}
	if len(cfg.Grid.Gaps) == 0 {
		t.Fatalf("expected gap table default")
	}
	if cfg.Grid.QuantityDivider != 6 {
		t.Fatalf("expected quantity divider 6, got %v", cfg.Grid.QuantityDivider)
	}
	if cfg.Grid.InitialRungs != 5 {
		t.Fatalf("expected initial rungs 5, got %v", cfg.Grid.InitialRungs)
	}
	if cfg.Grid.MinCoins != 1 {
		t.Fatalf("expected min coins 1, got %v", cfg.Grid.MinCoins)
	}
	if cfg.Grid.MaxLeverage != 40 {
		t.Fatalf("expected max leverage 40, got %v", cfg.Grid.MaxLeverage)
	}
}

func TestWSDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.WS.URL == "" {
		t.Fatalf("expected ws url default")
	}
	if cfg.WS.PingInterval != 15*time.Second {
		t.Fatalf("expected ping interval 15s, got %v", cfg.WS.PingInterval)
	}
	if cfg.WS.ReconnectBaseDelay != time.Second {
		t.Fatalf("expected reconnect base delay 1s, got %v", cfg.WS.ReconnectBaseDelay)
	}
	if cfg.WS.ReconnectMaxDelay != 60*time.Second {
		t.Fatalf("expected reconnect max delay 60s, got %v", cfg.WS.ReconnectMaxDelay)
	}
	if cfg.WS.MaxReconnectAttempts != 8 {
		t.Fatalf("expected max reconnect attempts 8, got %v", cfg.WS.MaxReconnectAttempts)
	}
}

func TestValidateGapIndex(t *testing.T) {
	cfg := &Config{Grid: GridConfig{Gaps: []float64{100, 500}, GapIndex: 2}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected gap index validation error")
	}
}

func TestValidateSinkDriver(t *testing.T) {
	cfg := &Config{Sink: SinkConfig{Driver: "redis"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected sink driver validation error")
	}
}

func TestValidatePostgresDSNRequired(t *testing.T) {
	cfg := &Config{Sink: SinkConfig{Driver: "postgres"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected postgres dsn validation error")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"grid:\n" +
		"  symbol: ETH\n" +
		"  gaps: [50, 100]\n" +
		"ws:\n" +
		"  max_reconnect_attempts: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Grid.Symbol != "ETH" {
		t.Fatalf("expected symbol ETH, got %q", cfg.Grid.Symbol)
	}
	if len(cfg.Grid.Gaps) != 2 || cfg.Grid.Gaps[0] != 50 {
		t.Fatalf("unexpected gaps %v", cfg.Grid.Gaps)
	}
	if cfg.WS.MaxReconnectAttempts != 3 {
		t.Fatalf("expected max reconnect attempts 3, got %v", cfg.WS.MaxReconnectAttempts)
	}
	if cfg.REST.BaseURL == "" {
		t.Fatalf("expected rest base url default")
	}
}
