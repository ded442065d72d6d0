package sink

import (
	"context"
	"database/sql"
	"time"

	"hl-grid-bot/internal/metrics"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const sqliteWriteTimeout = 3 * time.Second

// SQLite appends observations to a local database file. Writes are
// synchronous; a failed insert is logged and dropped.
type SQLite struct {
	db  *sql.DB
	m   *metrics.Metrics
	log *zap.Logger
}

func NewSQLite(path string, m *metrics.Metrics, log *zap.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &SQLite{db: db, m: m, log: log}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		size REAL NOT NULL,
		status TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_observations_session ON observations (session_id, ts)`)
	return err
}

func (s *SQLite) OnNewOrder(fill Fill, sessionID string) {
	s.write(fillObservation(fill, sessionID))
}

func (s *SQLite) OnNewBuyPosition(pos Position, sessionID string) {
	s.write(positionObservation("buy_position", pos, sessionID))
}

func (s *SQLite) OnNewSellPosition(pos Position, sessionID string) {
	s.write(positionObservation("sell_position", pos, sessionID))
}

func (s *SQLite) OnFilledBuyPosition(pos Position, sessionID string) {
	s.write(positionObservation("buy_position_filled", pos, sessionID))
}

func (s *SQLite) OnFilledSellPosition(pos Position, sessionID string) {
	s.write(positionObservation("sell_position_filled", pos, sessionID))
}

func (s *SQLite) write(obs observation) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteWriteTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO observations
		(ts, event_type, session_id, symbol, side, price, size, status, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.Time, obs.EventType, obs.SessionID, obs.Symbol, obs.Side, obs.Price, obs.Size, obs.Status, obs.OrderID)
	if err != nil {
		s.m.SinkErrors.Inc()
		if s.log != nil {
			s.log.Warn("observation insert failed", zap.String("event", obs.EventType), zap.Error(err))
		}
	}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
