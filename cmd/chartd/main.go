package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"chartcore/config"
	"chartcore/internal/annotation"
	"chartcore/internal/histdata"
	"chartcore/internal/hub"
	"chartcore/internal/indicator"
	"chartcore/internal/logger"
	"chartcore/internal/metrics"
	"chartcore/internal/model"
	"chartcore/internal/overlay"
	"chartcore/internal/pane"
	"chartcore/internal/render"
	"chartcore/internal/ringbuf"
	"chartcore/internal/store/memory"
	redisstore "chartcore/internal/store/redis"
	sqlitestore "chartcore/internal/store/sqlite"
	"chartcore/internal/stream"
)

// storeRetention bounds how long stale per-symbol records survive before
// the scheduled compaction drops them.
const storeRetention = 90 * 24 * time.Hour

func main() {
	cfg := config.Load()

	if cfg.LogFile != "" {
		logger.InitRotating("chartd", slog.LevelInfo, cfg.LogFile, cfg.LogMaxSizeMB)
	} else {
		logger.Init("chartd", slog.LevelInfo)
	}
	slog.Info("starting", "symbol", cfg.Symbol, "interval", cfg.Interval, "store", cfg.StoreBackend)

	presets, err := config.LoadPresets(cfg.PresetsPath)
	if err != nil {
		slog.Error("presets load failed", "error", err)
		os.Exit(1)
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetActiveSymbol(cfg.Symbol)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Persistence ----
	store, sqliteStore := openStore(cfg)
	defer store.Close()
	health.CheckStore(store)
	health.StartLivenessChecker(ctx, store, 10*time.Second)

	// ---- Scheduled compaction (SQLite only) ----
	var compactor *cron.Cron
	if sqliteStore != nil && cfg.CompactionCron != "" {
		compactor = cron.New()
		_, err := compactor.AddFunc(cfg.CompactionCron, func() {
			n, err := sqliteStore.Compact(storeRetention)
			if err != nil {
				slog.Warn("compaction failed", "error", err)
				return
			}
			prom.CompactionRuns.Inc()
			slog.Info("compaction done", "removed", n)
		})
		if err != nil {
			slog.Warn("compaction schedule invalid", "cron", cfg.CompactionCron, "error", err)
		} else {
			compactor.Start()
		}
	}

	// ---- Chart session ----
	engine := annotation.NewEngine(store)
	engine.Cap = cfg.DrawingCap
	engine.Interval = time.Duration(cfg.IntervalSeconds) * time.Second
	engine.Counters = prom
	engine.SetSymbol(cfg.Symbol)
	drawings := annotation.NewShared(engine)

	coordinator := pane.New(render.NewHeadlessFactory())
	fanout := hub.New(prom)
	data := histdata.NewClient(cfg.DataBaseURL, cfg.DataAPIKey)

	session := &session{
		cfg:         cfg,
		presets:     presets,
		data:        data,
		coordinator: coordinator,
		hub:         fanout,
		prom:        prom,
		health:      health,
		drawings:    drawings,
	}
	session.refresh(ctx)

	// ---- Price stream → ring buffer → update loop ----
	ticks := ringbuf.New(4096)
	opts := stream.Options{
		InitialDelay: cfg.StreamInitialDelay,
		MaxDelay:     cfg.StreamMaxDelay,
		MaxAttempts:  cfg.StreamMaxAttempts,
	}

	priceStream := stream.New("price", cfg.PriceStreamURL, nil, opts, prom)
	priceStream.OnPrice = func(t model.PriceTick) {
		prom.TicksTotal.Inc()
		if !ticks.Push(t) {
			prom.RingDropped.Inc()
		}
	}
	priceStream.OnStatus = func(s model.StreamStatus) {
		health.SetPriceStream(s)
		fanout.PublishJSON("status:price", map[string]any{"status": s})
	}
	priceStream.Start()
	defer priceStream.Stop()

	alertStream := stream.New("alert", cfg.AlertStreamURL, nil, opts, prom)
	alertStream.OnAlert = func(a model.Alert) {
		fanout.PublishJSON("alerts:"+a.Symbol, a)
	}
	alertStream.OnStatus = func(s model.StreamStatus) {
		health.SetAlertStream(s)
		fanout.PublishJSON("status:alert", map[string]any{"status": s})
	}
	alertStream.Start()
	defer alertStream.Stop()

	orderStream := stream.New("order", cfg.OrderStreamURL, nil, opts, prom)
	orderStream.OnEvent = func(e stream.Envelope) {
		fanout.Publish("orders:"+e.Type, e.Data)
	}
	orderStream.Start()
	defer orderStream.Stop()

	go session.tickLoop(ctx, ticks, health)
	go session.refreshLoop(ctx)

	// ---- HTTP surface ----
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: hub.Routes(fanout, drawings, presets),
	}
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
			cancel()
		}
	}()

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	if compactor != nil {
		compactor.Stop()
	}
	coordinator.Close()
	cancel()
	slog.Info("stopped")
}

// openStore selects the persistence backend. The second return value is
// non-nil only for SQLite, which supports compaction.
func openStore(cfg *config.Config) (model.KVStore, *sqlitestore.Store) {
	switch cfg.StoreBackend {
	case "redis":
		s, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			slog.Warn("redis unavailable, falling back to memory", "error", err)
			return memory.New(), nil
		}
		return s, nil
	case "memory":
		return memory.New(), nil
	default:
		os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
		s, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			slog.Warn("sqlite unavailable, falling back to memory", "error", err)
			return memory.New(), nil
		}
		return s, s
	}
}

// session owns the fetch → derive → render → publish cycle for the
// active symbol and interval.
type session struct {
	cfg         *config.Config
	presets     *config.Presets
	data        *histdata.Client
	coordinator *pane.Coordinator
	hub         *hub.Hub
	prom        *metrics.Metrics
	health      *metrics.HealthStatus
	drawings    *annotation.Shared

	candles []model.Candle
	series  model.IndicatorSeries
}

// refresh re-fetches history and intelligence, re-derives analytics and
// rebuilds the panes. A failed primary fetch keeps the previous state.
func (s *session) refresh(ctx context.Context) {
	traceID := logger.GenerateTraceID(s.cfg.Symbol, time.Now())
	log := slog.Default().With("trace_id", traceID)

	fetchStart := time.Now()
	candles, err := s.data.FetchCandles(ctx, s.cfg.Symbol, s.cfg.Interval, model.TimeRange{})
	s.prom.FetchDur.WithLabelValues("candles").Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		s.health.SetDataAPIOK(false)
		log.Warn("candle fetch failed, keeping previous state", "error", err)
		return
	}
	s.health.SetDataAPIOK(true)
	s.candles = candles

	keys := append(append([]string{}, s.presets.Indicators...), s.presets.SubPanes...)
	s.series = indicator.BuildSeries(candles, keys)

	// Intelligence is best-effort: the chart renders without it.
	var primitives model.OverlayPrimitives
	var patterns []model.PatternEntry
	in := overlay.Inputs{Candles: candles, Indicators: s.series}
	if payload, err := s.data.FetchIntelligence(ctx, s.cfg.Symbol, s.cfg.Interval); err != nil {
		log.Debug("intelligence skipped", "error", err)
	} else {
		patterns = payload.Patterns
		primitives = overlay.Primitives(*payload, candles)
		in.Patterns = payload.Patterns
		for _, lvl := range payload.SupportResistance {
			in.SupportResistance = append(in.SupportResistance, model.PriceLevel{Price: lvl.Price, Label: lvl.Label})
		}
		for _, lvl := range payload.Fibonacci {
			in.Fibonacci = append(in.Fibonacci, model.PriceLevel{Price: lvl.Price, Label: lvl.Label})
		}
	}

	deriveStart := time.Now()
	out := overlay.Derive(in)
	s.prom.DeriveDur.Observe(time.Since(deriveStart).Seconds())
	s.prom.DerivationsTotal.Inc()
	out.Zones = overlay.TopZones(out.Zones, 5)

	primitives.Markers = append(primitives.Markers, annotationMarkers(out.Annotations, s.presets)...)

	// AI trendline and channel conversions land in the drawings
	// collection as one undoable batch; re-runs skip known IDs.
	if len(primitives.Drawings) > 0 {
		var imported int
		var ds []model.Drawing
		s.drawings.Do(func(e *annotation.Engine) {
			imported = e.ImportNew(primitives.Drawings)
			ds = e.Drawings()
		})
		if imported > 0 {
			s.hub.PublishJSON("drawings:"+s.cfg.Symbol, ds)
		}
	}

	comparisons := s.fetchComparisons(ctx, log)

	s.coordinator.Apply(pane.View{
		ChartType: render.Candlestick,
		Overlays:  overlayKeys(s.presets),
		SubPanes:  s.presets.SubPanes,
	})
	s.coordinator.SetDataset(pane.Dataset{
		Candles:     candles,
		Indicators:  s.series,
		Primitives:  primitives,
		Comparisons: comparisons,
	})
	s.prom.PaneRebuilds.Inc()
	s.prom.PanesActive.Set(float64(len(s.coordinator.Panes())))

	s.hub.PublishJSON("candles:"+s.cfg.Symbol+":"+s.cfg.Interval, candles)
	s.hub.PublishJSON("overlay:"+s.cfg.Symbol, out)

	log.Info("chart refreshed",
		"candles", len(candles),
		"patterns", len(patterns),
		"zones", len(out.Zones),
		"health", out.Health.Overall,
	)
}

// fetchComparisons loads candle histories for the configured comparison
// symbols. A failing symbol is skipped; the rest are resampled onto the
// chart's bucket grid so their bar times line up with the primary series.
func (s *session) fetchComparisons(ctx context.Context, log *slog.Logger) map[string][]model.Candle {
	if len(s.cfg.ComparisonSymbols) == 0 {
		return nil
	}
	start := time.Now()
	raw := s.data.FetchComparison(ctx, s.cfg.ComparisonSymbols, s.cfg.Interval, model.TimeRange{})
	s.prom.FetchDur.WithLabelValues("comparison").Observe(time.Since(start).Seconds())
	if len(raw) < len(s.cfg.ComparisonSymbols) {
		log.Debug("comparison symbols skipped", "requested", len(s.cfg.ComparisonSymbols), "loaded", len(raw))
	}

	bucket := time.Duration(s.cfg.IntervalSeconds) * time.Second
	out := make(map[string][]model.Candle, len(raw))
	for sym, cs := range raw {
		out[sym] = histdata.Resample(cs, bucket)
	}
	return out
}

// refreshLoop re-runs the derivation cycle on a fixed schedule.
func (s *session) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// tickLoop drains buffered price ticks once a second and fans the
// freshest one out to viewers.
func (s *session) tickLoop(ctx context.Context, ticks *ringbuf.Ring, health *metrics.HealthStatus) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drained := ticks.Drain()
			if len(drained) == 0 {
				continue
			}
			last := drained[len(drained)-1]
			health.SetLastTickTime(last.Time)
			s.hub.PublishJSON("tick:"+last.Symbol, last)
		}
	}
}

func overlayKeys(p *config.Presets) []string {
	sub := make(map[string]bool, len(p.SubPanes))
	for _, k := range p.SubPanes {
		sub[k] = true
	}
	var keys []string
	for _, k := range p.Indicators {
		if !sub[k] && k != indicator.KeyRSI && k != indicator.KeyATR {
			keys = append(keys, k)
		}
	}
	return keys
}

func annotationMarkers(anns []model.PatternAnnotation, p *config.Presets) []model.MarkerSpec {
	markers := make([]model.MarkerSpec, 0, len(anns))
	for _, a := range anns {
		pos, shape, color := "aboveBar", "circle", p.Styles.NeutralColor
		switch a.Direction {
		case model.Bullish:
			pos, shape, color = "belowBar", "arrowUp", p.Styles.BullishColor
		case model.Bearish:
			shape, color = "arrowDown", p.Styles.BearishColor
		}
		markers = append(markers, model.MarkerSpec{
			Time:     a.EndTime,
			Position: pos,
			Shape:    shape,
			Color:    color,
			Text:     a.Name,
		})
	}
	return markers
}
