// Package hub fans chart state out to connected websocket viewers and
// serves the REST surface for drawings, presets and gap backfill.
//
// Channel naming:
//
//	candles:<symbol>:<interval>   full candle snapshots
//	tick:<symbol>                 live price updates
//	overlay:<symbol>              derived annotations, zones, health
//	drawings:<symbol>             annotation collection changes
//	status:<channel>              stream connectivity changes
package hub

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chartcore/internal/metrics"
)

// replayCapacity is the per-channel envelope history for gap backfill.
const replayCapacity = 500

// Hub manages websocket viewers and per-channel fan-out with replay
// buffers for reconnect backfill.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection.
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	metrics *metrics.Metrics
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// New creates a hub. metrics may be nil.
func New(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		metrics:     m,
	}
}

// Publish sends data on a channel to every subscribed viewer. The
// envelope is hand-crafted JSON; per-channel seq lets clients detect
// gaps and backfill over REST.
func (h *Hub) Publish(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayCapacity)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	rb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if h.metrics != nil {
				h.metrics.HubFanoutDrops.WithLabelValues(client.id).Inc()
			}
		}
	}
}

// PublishJSON marshals v and publishes it on channel.
func (h *Hub) PublishJSON(channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("publish marshal failed", "channel", channel, "error", err)
		return
	}
	h.Publish(channel, data)
}

// ServeClient registers an upgraded connection and starts its pumps.
// lastTS, when set, limits the initial snapshot to entries newer than
// that timestamp (RFC3339Nano).
func (h *Hub) ServeClient(conn *websocket.Conn, lastTS string) {
	client := &Client{
		id:   conn.RemoteAddr().String(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.HubClients.Set(float64(count))
	}
	slog.Info("viewer connected", "total", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient deregisters a client and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	if h.metrics != nil {
		h.metrics.HubClients.Set(float64(count))
	}
}

// LatestAll returns a snapshot of the newest payload per channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel in
// [fromSeq, toSeq], used by the gap backfill endpoint.
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
