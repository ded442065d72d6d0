package sink

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"hl-grid-bot/internal/config"
	"hl-grid-bot/internal/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const pgWriteTimeout = 3 * time.Second

// Postgres buffers observations on a channel and writes them from a
// single background goroutine so recording never blocks fill handling.
// A full queue drops the observation and logs once.
type Postgres struct {
	db      *sql.DB
	m       *metrics.Metrics
	log     *zap.Logger
	queue   chan observation
	started atomic.Bool
	dropped atomic.Uint64
}

func NewPostgres(cfg config.SinkConfig, m *metrics.Metrics, log *zap.Logger) (*Postgres, error) {
	dsn := strings.TrimSpace(cfg.PostgresDSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	p := &Postgres{
		db:    db,
		m:     m,
		log:   log,
		queue: make(chan observation, queueSize),
	}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

func (p *Postgres) OnNewOrder(fill Fill, sessionID string) {
	p.enqueue(fillObservation(fill, sessionID))
}

func (p *Postgres) OnNewBuyPosition(pos Position, sessionID string) {
	p.enqueue(positionObservation("buy_position", pos, sessionID))
}

func (p *Postgres) OnNewSellPosition(pos Position, sessionID string) {
	p.enqueue(positionObservation("sell_position", pos, sessionID))
}

func (p *Postgres) OnFilledBuyPosition(pos Position, sessionID string) {
	p.enqueue(positionObservation("buy_position_filled", pos, sessionID))
}

func (p *Postgres) OnFilledSellPosition(pos Position, sessionID string) {
	p.enqueue(positionObservation("sell_position_filled", pos, sessionID))
}

func (p *Postgres) enqueue(obs observation) {
	select {
	case p.queue <- obs:
	default:
		p.m.SinkErrors.Inc()
		if p.dropped.Add(1) == 1 && p.log != nil {
			p.log.Warn("observation queue full")
		}
	}
}

func (p *Postgres) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-p.queue:
			p.write(ctx, obs)
		}
	}
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pgWriteTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS observations (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_observations_session ON observations (session_id, ts)`)
	return err
}

func (p *Postgres) write(ctx context.Context, obs observation) {
	ctx, cancel := context.WithTimeout(ctx, pgWriteTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `INSERT INTO observations
		(ts, event_type, session_id, symbol, side, price, size, status, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		obs.Time, obs.EventType, obs.SessionID, obs.Symbol, obs.Side, obs.Price, obs.Size, obs.Status, obs.OrderID)
	if err != nil {
		p.m.SinkErrors.Inc()
		if p.log != nil {
			p.log.Warn("observation insert failed", zap.String("event", obs.EventType), zap.Error(err))
		}
	}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
