package hub

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is a single websocket viewer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Channel filters. Empty means every channel.
	filterMu sync.RWMutex
	filters  map[string]bool
}

// matchesChannel reports whether the client wants messages on channel.
// A filter entry ending in ":*" matches the channel prefix.
func (c *Client) matchesChannel(channel string) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	if len(c.filters) == 0 {
		return true
	}
	if c.filters[channel] {
		return true
	}
	for f := range c.filters {
		if strings.HasSuffix(f, ":*") && strings.HasPrefix(channel, strings.TrimSuffix(f, "*")) {
			return true
		}
	}
	return false
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}

		envelope, _ := json.Marshal(map[string]any{
			"channel": channel,
			"data":    entry.Data,
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Write coalescing: batch queued messages into a single
			// frame with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("viewer disconnected", "id", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type     string   `json:"type"`
			Channels []string `json:"channels"`
			Ping     int64    `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "subscribe":
			c.setFilters(base.Channels)
		case "unsubscribe":
			c.clearFilters(base.Channels)
		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

func (c *Client) setFilters(channels []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	if c.filters == nil {
		c.filters = make(map[string]bool)
	}
	for _, ch := range channels {
		c.filters[ch] = true
	}
}

func (c *Client) clearFilters(channels []string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	for _, ch := range channels {
		delete(c.filters, ch)
	}
}
