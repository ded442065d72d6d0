package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	REST     RESTConfig     `yaml:"rest"`
	WS       WSConfig       `yaml:"ws"`
	Grid     GridConfig     `yaml:"grid"`
	Sink     SinkConfig     `yaml:"sink"`
	API      APIConfig      `yaml:"api"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL                  string        `yaml:"url"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

type GridConfig struct {
	Symbol          string    `yaml:"symbol"`
	Gaps            []float64 `yaml:"gaps"`
	GapIndex        int       `yaml:"gap_index"`
	QuantityDivider float64   `yaml:"quantity_divider"`
	InitialRungs    float64   `yaml:"initial_rungs"`
	InitialCoins    int       `yaml:"initial_coins"`
	MinCoins        int       `yaml:"min_coins"`
	MaxLeverage     int       `yaml:"max_leverage"`
	Slippage        float64   `yaml:"slippage"`
}

const (
	SinkDriverNoop     = "noop"
	SinkDriverSQLite   = "sqlite"
	SinkDriverPostgres = "postgres"
)

type SinkConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	QueueSize   int    `yaml:"queue_size"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 15 * time.Second
	}
	if cfg.WS.ReconnectBaseDelay == 0 {
		cfg.WS.ReconnectBaseDelay = time.Second
	}
	if cfg.WS.ReconnectMaxDelay == 0 {
		cfg.WS.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.WS.MaxReconnectAttempts == 0 {
		cfg.WS.MaxReconnectAttempts = 8
	}
	if cfg.Grid.Symbol == "" {
		cfg.Grid.Symbol = "BTC"
	}
	if len(cfg.Grid.Gaps) == 0 {
		cfg.Grid.Gaps = []float64{100, 500, 1000, 1500, 2000, 2500, 3000}
	}
	if cfg.Grid.QuantityDivider == 0 {
		cfg.Grid.QuantityDivider = 6
	}
	if cfg.Grid.InitialRungs == 0 {
		cfg.Grid.InitialRungs = 5
	}
	if cfg.Grid.InitialCoins == 0 {
		cfg.Grid.InitialCoins = 4
	}
	if cfg.Grid.MinCoins == 0 {
		cfg.Grid.MinCoins = 1
	}
	if cfg.Grid.MaxLeverage == 0 {
		cfg.Grid.MaxLeverage = 40
	}
	if cfg.Grid.Slippage == 0 {
		cfg.Grid.Slippage = 0.05
	}
	cfg.Sink.Driver = strings.ToLower(strings.TrimSpace(cfg.Sink.Driver))
	if cfg.Sink.Driver == "" {
		cfg.Sink.Driver = SinkDriverNoop
	}
	if cfg.Sink.QueueSize <= 0 {
		cfg.Sink.QueueSize = 256
	}
	if cfg.Sink.SQLitePath == "" {
		cfg.Sink.SQLitePath = "data/observations.db"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}
}

func validate(cfg *Config) error {
	if cfg.Grid.GapIndex < 0 || cfg.Grid.GapIndex >= len(cfg.Grid.Gaps) {
		return fmt.Errorf("grid.gap_index %d out of range for %d gaps", cfg.Grid.GapIndex, len(cfg.Grid.Gaps))
	}
	for i, gap := range cfg.Grid.Gaps {
		if gap <= 0 {
			return fmt.Errorf("grid.gaps[%d] must be > 0", i)
		}
	}
	if cfg.Grid.QuantityDivider <= 0 {
		return errors.New("grid.quantity_divider must be > 0")
	}
	if cfg.Grid.InitialRungs <= 0 {
		return errors.New("grid.initial_rungs must be > 0")
	}
	if cfg.Grid.MinCoins < 0 {
		return errors.New("grid.min_coins must be >= 0")
	}
	if cfg.Grid.MaxLeverage <= 0 {
		return errors.New("grid.max_leverage must be > 0")
	}
	if cfg.Grid.Slippage < 0 || cfg.Grid.Slippage >= 1 {
		return errors.New("grid.slippage must be in [0, 1)")
	}
	if cfg.WS.ReconnectBaseDelay > cfg.WS.ReconnectMaxDelay {
		return errors.New("ws.reconnect_base_delay exceeds ws.reconnect_max_delay")
	}
	if cfg.WS.MaxReconnectAttempts < 0 {
		return errors.New("ws.max_reconnect_attempts must be >= 0")
	}
	switch strings.ToLower(cfg.Sink.Driver) {
	case "noop", "sqlite", "postgres":
	default:
		return fmt.Errorf("sink.driver %q is not one of noop, sqlite, postgres", cfg.Sink.Driver)
	}
	if strings.EqualFold(cfg.Sink.Driver, "postgres") && strings.TrimSpace(cfg.Sink.PostgresDSN) == "" {
		return errors.New("sink.postgres_dsn is required for the postgres sink")
	}
	return nil
}
