// Package stream maintains the push channels (prices, alerts, order
// events) over websockets, with exponential-backoff reconnection and a
// hard retry ceiling.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartcore/internal/model"
)

// Wire message type tags.
const (
	TypePrice         = "price"
	TypeAlert         = "alert"
	TypeOrder         = "order"
	TypeExecution     = "execution"
	TypeOrderSnapshot = "order_snapshot"
	TypeInfo          = "info"
	TypeError         = "error"
	TypeHeartbeat     = "heartbeat"
)

// Envelope is the wire frame every push channel uses.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Conn is the minimal connection surface the client reads from.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a connection to a stream endpoint.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer is the production dialer.
func WebsocketDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return wsConn{conn}, nil
}

type wsConn struct{ conn *websocket.Conn }

func (w wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w wsConn) Close() error { return w.conn.Close() }

// Counters receives stream health increments. All methods must be cheap;
// a nil Counters disables them.
type Counters interface {
	StreamConnected(channel string)
	StreamReconnect(channel string)
	StreamDropped(channel, reason string)
}

// Options bounds the reconnect schedule.
type Options struct {
	InitialDelay time.Duration // first retry delay, doubled per attempt
	MaxDelay     time.Duration // delay cap
	MaxAttempts  int           // consecutive failures before giving up
}

// DefaultOptions matches the production reconnect schedule.
func DefaultOptions() Options {
	return Options{InitialDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 5}
}

// Backoff returns the delay before reconnect attempt n (0-based):
// initial doubled per attempt, capped at max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	d := initial << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Client is one reconnecting push channel. Dial failures and dropped
// connections schedule a retry with exponential backoff; after
// MaxAttempts consecutive failures the client parks itself in the
// disconnected state until Start is called again.
type Client struct {
	Channel string // label used in logs and metrics

	url      string
	dial     Dialer
	opts     Options
	counters Counters

	// Callbacks fire on the read goroutine. Nil callbacks are skipped.
	OnPrice  func(model.PriceTick)
	OnAlert  func(model.Alert)
	OnEvent  func(Envelope) // order, execution, order_snapshot, info, error
	OnStatus func(model.StreamStatus)

	// after schedules a callback; swapped out in tests.
	after func(d time.Duration, fn func()) *time.Timer

	mu      sync.Mutex
	status  model.StreamStatus
	attempt int
	gen     int
	conn    Conn
	timer   *time.Timer
	stopped bool
}

// New creates a client for url. A nil dialer uses websockets; a nil
// counters disables metrics.
func New(channel, url string, dial Dialer, opts Options, counters Counters) *Client {
	if dial == nil {
		dial = WebsocketDialer
	}
	if opts.InitialDelay <= 0 {
		opts = DefaultOptions()
	}
	return &Client{
		Channel:  channel,
		url:      url,
		dial:     dial,
		opts:     opts,
		counters: counters,
		after:    time.AfterFunc,
		status:   model.StreamDisconnected,
	}
}

// Status returns the current channel state.
func (c *Client) Status() model.StreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start opens the channel. Calling Start on a parked client resets the
// attempt counter and tries again.
func (c *Client) Start() {
	c.mu.Lock()
	c.stopped = false
	c.attempt = 0
	c.gen++
	c.mu.Unlock()
	c.connect()
}

// Stop closes the channel and invalidates any pending reconnect timer.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.gen++
	conn := c.conn
	c.conn = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	changed := c.setStatusLocked(model.StreamDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.notifyStatus(changed)
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.dial(context.Background(), c.url)

	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		slog.Warn("stream dial failed", "channel", c.Channel, "error", err)
		c.scheduleReconnect()
		return
	}
	c.conn = conn
	c.attempt = 0
	changed := c.setStatusLocked(model.StreamConnected)
	c.mu.Unlock()

	c.notifyStatus(changed)
	if c.counters != nil {
		c.counters.StreamConnected(c.Channel)
	}
	slog.Info("stream connected", "channel", c.Channel)
	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			c.mu.Lock()
			stale := c.stopped || gen != c.gen
			c.mu.Unlock()
			if stale {
				return
			}
			slog.Warn("stream read failed", "channel", c.Channel, "error", err)
			c.scheduleReconnect()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.attempt >= c.opts.MaxAttempts {
		changed := c.setStatusLocked(model.StreamDisconnected)
		c.mu.Unlock()
		c.notifyStatus(changed)
		slog.Error("stream retries exhausted", "channel", c.Channel, "attempts", c.opts.MaxAttempts)
		return
	}
	delay := Backoff(c.attempt, c.opts.InitialDelay, c.opts.MaxDelay)
	c.attempt++
	changed := c.setStatusLocked(model.StreamReconnecting)
	gen := c.gen
	c.timer = c.after(delay, func() {
		c.mu.Lock()
		invalid := c.stopped || gen != c.gen
		c.mu.Unlock()
		if invalid {
			return
		}
		c.connect()
	})
	attempt := c.attempt
	c.mu.Unlock()

	c.notifyStatus(changed)
	if c.counters != nil {
		c.counters.StreamReconnect(c.Channel)
	}
	slog.Info("stream reconnect scheduled", "channel", c.Channel, "delay", delay, "attempt", attempt)
}

// handleMessage routes one frame. Heartbeats are consumed silently;
// frames that fail to parse are dropped without tearing the connection
// down.
func (c *Client) handleMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.drop("unparseable")
		return
	}
	switch env.Type {
	case TypeHeartbeat:
		return
	case TypePrice:
		var tick model.PriceTick
		if err := json.Unmarshal(env.Data, &tick); err != nil {
			c.drop("bad_price")
			return
		}
		if c.OnPrice != nil {
			c.OnPrice(tick)
		}
	case TypeAlert:
		var alert model.Alert
		if err := json.Unmarshal(env.Data, &alert); err != nil {
			c.drop("bad_alert")
			return
		}
		if c.OnAlert != nil {
			c.OnAlert(alert)
		}
	case TypeOrder, TypeExecution, TypeOrderSnapshot, TypeInfo, TypeError:
		if c.OnEvent != nil {
			c.OnEvent(env)
		}
	default:
		c.drop("unknown_type")
	}
}

func (c *Client) drop(reason string) {
	if c.counters != nil {
		c.counters.StreamDropped(c.Channel, reason)
	}
	slog.Debug("stream frame dropped", "channel", c.Channel, "reason", reason)
}

// setStatusLocked records a state change and returns whether it changed;
// callers invoke notifyStatus after releasing the lock.
func (c *Client) setStatusLocked(s model.StreamStatus) bool {
	if c.status == s {
		return false
	}
	c.status = s
	return true
}

func (c *Client) notifyStatus(changed bool) {
	if !changed || c.OnStatus == nil {
		return
	}
	c.mu.Lock()
	s := c.status
	c.mu.Unlock()
	c.OnStatus(s)
}
