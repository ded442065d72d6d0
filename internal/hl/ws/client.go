package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"hl-grid-bot/internal/metrics"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// State is the streaming client's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// ErrReconnectExhausted is returned by Run once the reconnect budget is
// spent. The client never retries past it.
var ErrReconnectExhausted = errors.New("ws reconnect attempts exhausted")

// stopPollInterval bounds how long a backoff sleep can ignore Stop.
const stopPollInterval = 250 * time.Millisecond

// BasicOrder is the nested order payload of an orderUpdates event.
type BasicOrder struct {
	Coin      string  `json:"coin"`
	Side      string  `json:"side"`
	LimitPx   float64 `json:"limitPx,string"`
	Sz        string  `json:"sz"`
	Oid       int64   `json:"oid"`
	Timestamp int64   `json:"timestamp"`
	OrigSz    string  `json:"origSz"`
}

// OrderUpdate is one element of the orderUpdates channel data list.
type OrderUpdate struct {
	Order           BasicOrder `json:"order"`
	Status          string     `json:"status"`
	StatusTimestamp int64      `json:"statusTimestamp"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// UpdateHandler receives each decoded orderUpdates batch in stream order.
type UpdateHandler func(updates []OrderUpdate)

// Client maintains one address's orderUpdates subscription. It owns
// reconnection with capped exponential backoff and the keepalive ping loop.
// Stop is cooperative: it flips the intent flag before closing the
// transport so the read loop's failure branch does not schedule another
// reconnect.
type Client struct {
	url          string
	user         string
	pingInterval time.Duration
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxAttempts  int
	log          *zap.Logger
	m            *metrics.Metrics

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	running  bool
	attempts int
}

type Options struct {
	PingInterval         time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	Metrics              *metrics.Metrics
}

func New(url, user string, opts Options, log *zap.Logger) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = time.Second
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 60 * time.Second
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 8
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	return &Client{
		url:          url,
		user:         user,
		pingInterval: opts.PingInterval,
		baseDelay:    opts.ReconnectBaseDelay,
		maxDelay:     opts.ReconnectMaxDelay,
		maxAttempts:  opts.MaxReconnectAttempts,
		log:          log,
		m:            opts.Metrics,
		state:        StateDisconnected,
	}
}

// Run connects, subscribes and pumps order updates into handler until Stop
// is called, ctx is done, or the reconnect budget is exhausted. Updates are
// delivered in stream order from a single goroutine.
func (c *Client) Run(ctx context.Context, handler UpdateHandler) error {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return errors.New("ws client already stopped")
	}
	c.running = true
	c.attempts = 0
	c.mu.Unlock()

	for {
		if err := c.connectAndSubscribe(ctx); err != nil {
			if next, terminalErr := c.prepareReconnect(ctx, err); !next {
				return terminalErr
			}
			continue
		}

		pingCtx, cancelPing := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			c.pingLoop(pingCtx)
		}()

		err := c.readLoop(ctx, handler)
		cancelPing()
		<-pingDone

		if next, terminalErr := c.prepareReconnect(ctx, err); !next {
			return terminalErr
		}
	}
}

func (c *Client) connectAndSubscribe(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	sub := map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": "orderUpdates",
			"user": c.user,
		},
	}
	if err := writeJSON(ctx, conn, sub); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		return err
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "stop")
		return errors.New("ws client stopped during connect")
	}
	c.conn = conn
	c.state = StateSubscribed
	c.attempts = 0
	c.mu.Unlock()
	c.log.Info("ws subscribed", zap.String("user", c.user))
	return nil
}

func (c *Client) readLoop(ctx context.Context, handler UpdateHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("ws not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(data, handler)
	}
}

func (c *Client) dispatch(data []byte, handler UpdateHandler) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("ws message decode failed", zap.Error(err))
		return
	}
	if env.Channel != "orderUpdates" {
		return
	}
	var updates []OrderUpdate
	if err := json.Unmarshal(env.Data, &updates); err != nil {
		c.log.Warn("orderUpdates payload decode failed", zap.Error(err))
		return
	}
	if handler != nil && len(updates) > 0 {
		handler(updates)
	}
}

// prepareReconnect decides what follows a transport failure. It returns
// next=false with the terminal error when the client should stop, or
// next=true after the backoff sleep when another attempt is allowed.
func (c *Client) prepareReconnect(ctx context.Context, cause error) (bool, error) {
	c.closeConn()

	if ctx.Err() != nil {
		c.setState(StateStopped)
		return false, ctx.Err()
	}
	c.mu.Lock()
	if !c.running {
		c.state = StateStopped
		c.mu.Unlock()
		return false, nil
	}
	c.attempts++
	attempt := c.attempts
	if attempt > c.maxAttempts {
		c.state = StateStopped
		c.running = false
		c.mu.Unlock()
		c.log.Error("ws reconnect exhausted", zap.Int("attempts", attempt-1), zap.Error(cause))
		return false, ErrReconnectExhausted
	}
	c.state = StateReconnecting
	c.mu.Unlock()
	c.m.WSReconnects.Inc()

	delay := c.backoffDelay(attempt)
	c.log.Warn("ws reconnecting",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	if !c.sleepInterruptible(ctx, delay) {
		c.setState(StateStopped)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// sleepInterruptible waits for d, polling the stop intent so Stop is
// observed within stopPollInterval. Returns false when interrupted.
func (c *Client) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if ctx.Err() != nil {
			return false
		}
		c.mu.Lock()
		running := c.running
		c.mu.Unlock()
		if !running {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > stopPollInterval {
			remaining = stopPollInterval
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	interval := c.pingInterval
	c.mu.Unlock()
	if conn == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

// Stop requests shutdown and closes the transport. Safe to call
// concurrently with a reconnect in progress; no further reconnect is
// scheduled once it returns.
func (c *Client) Stop() {
	c.mu.Lock()
	c.running = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "stop")
	}
}

// Running reports whether the client still intends to maintain the stream.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.state != StateStopped
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "reset")
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"method": "ping"}
