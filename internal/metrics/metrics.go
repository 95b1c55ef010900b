package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartcore/internal/model"
)

// Metrics holds all Prometheus metrics for the chart service.
type Metrics struct {
	TicksTotal       prometheus.Counter
	DerivationsTotal prometheus.Counter
	DeriveDur        prometheus.Histogram

	// Stream health (by channel: price, alert, order)
	StreamConnects *prometheus.CounterVec
	StreamRetries  *prometheus.CounterVec
	StreamDrops    *prometheus.CounterVec

	// Annotation engine
	DrawingOps        *prometheus.CounterVec // labels: op
	DrawingsPersisted prometheus.Counter

	// Pane coordinator
	PaneRebuilds prometheus.Counter
	PanesActive  prometheus.Gauge

	// Storage
	StoreWriteDur  prometheus.Histogram
	StoreErrors    prometheus.Counter
	CompactionRuns prometheus.Counter

	// Data API
	FetchDur *prometheus.HistogramVec // labels: endpoint

	// Fan-out to connected viewers
	HubClients     prometheus.Gauge
	HubFanoutDrops *prometheus.CounterVec // labels: client

	// Tick ring buffer
	RingDropped prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_ticks_total",
			Help: "Total price ticks received from the price stream",
		}),
		DerivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_derivations_total",
			Help: "Total overlay derivation cycles",
		}),
		DeriveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartcore_derive_duration_seconds",
			Help:    "Overlay derivation latency per cycle",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		StreamConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcore_stream_connects_total",
			Help: "Successful stream connections (by channel)",
		}, []string{"channel"}),
		StreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcore_stream_reconnects_total",
			Help: "Stream reconnect attempts scheduled (by channel)",
		}, []string{"channel"}),
		StreamDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcore_stream_dropped_frames_total",
			Help: "Stream frames dropped (by channel and reason)",
		}, []string{"channel", "reason"}),

		DrawingOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcore_drawing_ops_total",
			Help: "Drawing operations applied (create, delete, clear, undo, redo, import)",
		}, []string{"op"}),
		DrawingsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_drawings_persisted_total",
			Help: "Drawing snapshots written to storage",
		}),

		PaneRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_pane_rebuilds_total",
			Help: "Full pane teardown and rebuild cycles",
		}),
		PanesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartcore_panes_active",
			Help: "Currently live panes (main pane included)",
		}),

		StoreWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartcore_store_write_duration_seconds",
			Help:    "KV store write latency",
			Buckets: prometheus.DefBuckets,
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_store_errors_total",
			Help: "KV store operation failures",
		}),
		CompactionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_store_compactions_total",
			Help: "Scheduled store compaction runs",
		}),

		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chartcore_fetch_duration_seconds",
			Help:    "Data API fetch latency (by endpoint)",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		HubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartcore_hub_clients",
			Help: "Connected websocket viewers",
		}),
		HubFanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartcore_hub_fanout_drops_total",
			Help: "Messages dropped because a viewer send buffer was full",
		}, []string{"client"}),

		RingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartcore_tick_ring_dropped_total",
			Help: "Price ticks dropped on a full ring buffer",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.DerivationsTotal,
		m.DeriveDur,
		m.StreamConnects,
		m.StreamRetries,
		m.StreamDrops,
		m.DrawingOps,
		m.DrawingsPersisted,
		m.PaneRebuilds,
		m.PanesActive,
		m.StoreWriteDur,
		m.StoreErrors,
		m.CompactionRuns,
		m.FetchDur,
		m.HubClients,
		m.HubFanoutDrops,
		m.RingDropped,
	)

	return m
}

// StreamConnected implements the stream counter hooks.
func (m *Metrics) StreamConnected(channel string) {
	m.StreamConnects.WithLabelValues(channel).Inc()
}

func (m *Metrics) StreamReconnect(channel string) {
	m.StreamRetries.WithLabelValues(channel).Inc()
}

func (m *Metrics) StreamDropped(channel, reason string) {
	m.StreamDrops.WithLabelValues(channel, reason).Inc()
}

// DrawingOp implements the annotation counter hooks.
func (m *Metrics) DrawingOp(op string) {
	m.DrawingOps.WithLabelValues(op).Inc()
}

func (m *Metrics) DrawingPersisted(dur time.Duration, err error) {
	m.StoreWriteDur.Observe(dur.Seconds())
	if err != nil {
		m.StoreErrors.Inc()
		return
	}
	m.DrawingsPersisted.Inc()
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	PriceStream  model.StreamStatus `json:"price_stream"`
	AlertStream  model.StreamStatus `json:"alert_stream"`
	LastTickTime time.Time          `json:"last_tick_time"`
	StoreOK      bool               `json:"store_ok"`
	DataAPIOK    bool               `json:"data_api_ok"`
	ActiveSymbol string             `json:"active_symbol"`

	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		PriceStream: model.StreamDisconnected,
		AlertStream: model.StreamDisconnected,
		StartedAt:   time.Now(),
	}
}

func (h *HealthStatus) SetPriceStream(s model.StreamStatus) {
	h.mu.Lock()
	h.PriceStream = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetAlertStream(s model.StreamStatus) {
	h.mu.Lock()
	h.AlertStream = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetDataAPIOK(v bool) {
	h.mu.Lock()
	h.DataAPIOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetActiveSymbol(sym string) {
	h.mu.Lock()
	h.ActiveSymbol = sym
	h.mu.Unlock()
}

// CheckStore probes the KV store with a read and records latency +
// health. A missing probe key is a healthy store.
func (h *HealthStatus) CheckStore(store model.KVStore) {
	start := time.Now()
	_, err := store.Get("chartcore:healthcheck")
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store model.KVStore, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if store != nil {
					h.CheckStore(store)
				}
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if h.PriceStream != model.StreamConnected || !h.StoreOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.PriceStream != model.StreamConnected && !h.StoreOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string             `json:"status"`
		Uptime         string             `json:"uptime"`
		PriceStream    model.StreamStatus `json:"price_stream"`
		AlertStream    model.StreamStatus `json:"alert_stream"`
		LastTickTime   string             `json:"last_tick_time"`
		TickAge        string             `json:"tick_age"`
		StoreOK        bool               `json:"store_ok"`
		StoreLatencyMs float64            `json:"store_latency_ms"`
		DataAPIOK      bool               `json:"data_api_ok"`
		ActiveSymbol   string             `json:"active_symbol"`
		LastCheckAt    string             `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		PriceStream:    h.PriceStream,
		AlertStream:    h.AlertStream,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		DataAPIOK:      h.DataAPIOK,
		ActiveSymbol:   h.ActiveSymbol,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
