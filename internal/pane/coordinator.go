// Package pane builds and tears down chart panes: one main price pane
// plus zero or more indicator sub-panes, kept scroll-synchronized from
// the main pane outward.
package pane

import (
	"errors"
	"log/slog"
	"sort"

	"chartcore/internal/indicator"
	"chartcore/internal/model"
	"chartcore/internal/render"
)

// MainKey is the registry key of the main price pane.
const MainKey = "main"

// View selects what the coordinator renders. Any change to it requires a
// full rebuild; panes are never patched in place.
type View struct {
	ChartType render.SeriesKind // Candlestick, Line or Area
	Overlays  []string          // indicator keys drawn on the main pane
	SubPanes  []string          // indicator keys drawn in their own pane
}

// Dataset is the immutable data snapshot a rebuild renders from.
type Dataset struct {
	Candles     []model.Candle
	Indicators  model.IndicatorSeries
	Primitives  model.OverlayPrimitives   // derived price lines and markers
	Comparisons map[string][]model.Candle // comparison symbols, drawn as close lines
}

// Coordinator owns the pane lifecycle. Every relevant change (chart
// type, overlay toggle, sub-pane toggle, new dataset) destroys all live
// panes and rebuilds from scratch, so no per-change patching logic can
// drift out of sync.
//
// Designed for single-goroutine usage — no locks needed.
type Coordinator struct {
	factory render.Factory
	reg     *Registry

	view View
	data Dataset

	// Styles overrides the default series style per indicator key.
	Styles map[string]render.SeriesStyle

	lastRange model.TimeRange
	sizes     map[string][2]int // container → width, height
}

// New creates a coordinator with no live panes.
func New(factory render.Factory) *Coordinator {
	return &Coordinator{
		factory: factory,
		reg:     NewRegistry(),
		view:    View{ChartType: render.Candlestick},
		sizes:   make(map[string][2]int),
	}
}

// Apply replaces the view and rebuilds.
func (c *Coordinator) Apply(view View) {
	if view.ChartType == "" {
		view.ChartType = render.Candlestick
	}
	c.view = view
	c.Rebuild()
}

// SetDataset replaces the data snapshot and rebuilds.
func (c *Coordinator) SetDataset(data Dataset) {
	c.data = data
	c.Rebuild()
}

// SetChartType switches the main series kind and rebuilds.
func (c *Coordinator) SetChartType(kind render.SeriesKind) {
	c.view.ChartType = kind
	c.Rebuild()
}

// ToggleOverlay adds or removes a main-pane indicator key and rebuilds.
func (c *Coordinator) ToggleOverlay(key string) {
	c.view.Overlays = toggle(c.view.Overlays, key)
	c.Rebuild()
}

// ToggleSubPane adds or removes an indicator sub-pane and rebuilds.
func (c *Coordinator) ToggleSubPane(key string) {
	c.view.SubPanes = toggle(c.view.SubPanes, key)
	c.Rebuild()
}

// View returns the current view selection.
func (c *Coordinator) View() View { return c.view }

// Panes returns the live pane keys in creation order.
func (c *Coordinator) Panes() []string { return c.reg.Keys() }

// Rebuild destroys every live pane and reconstructs the main pane and
// sub-panes from the current view and dataset. A missing container skips
// that pane and nothing else.
func (c *Coordinator) Rebuild() {
	c.reg.DestroyAll()
	c.buildMain()
	for _, key := range c.view.SubPanes {
		c.buildSubPane(key)
	}
}

// HandleResize records a container size and applies it to the pane
// currently bound to that container. The size is reapplied on every
// subsequent rebuild.
func (c *Coordinator) HandleResize(containerID string, width, height int) {
	c.sizes[containerID] = [2]int{width, height}
	for _, key := range c.reg.Keys() {
		if containerFor(key) == containerID {
			c.reg.Surface(key).Resize(width, height)
		}
	}
}

// VisibleRange returns the last visible window observed on the main
// pane.
func (c *Coordinator) VisibleRange() model.TimeRange { return c.lastRange }

// Close tears down every pane. Safe to call more than once.
func (c *Coordinator) Close() {
	c.reg.DestroyAll()
}

func (c *Coordinator) buildMain() {
	surface, err := c.factory.CreatePane(containerFor(MainKey))
	if err != nil {
		if !errors.Is(err, render.ErrNoContainer) {
			slog.Warn("main pane create failed", "error", err)
		}
		return
	}
	c.reg.Create(MainKey, surface)

	series := surface.AddSeries(c.view.ChartType, c.styleFor(MainKey))
	if c.view.ChartType == render.Candlestick {
		series.SetCandles(c.data.Candles)
	} else {
		series.SetData(closePoints(c.data.Candles))
	}

	for _, key := range c.view.Overlays {
		c.addOverlay(surface, key)
	}

	for i, sym := range sortedKeys(c.data.Comparisons) {
		style := c.styleFor("cmp:" + sym)
		if style.Color == "" {
			style.Color = comparisonColors[i%len(comparisonColors)]
			style.LineWidth = 1
		}
		surface.AddSeries(render.Line, style).SetData(closePoints(c.data.Comparisons[sym]))
	}

	for _, pl := range c.data.Primitives.PriceLines {
		surface.CreatePriceLine(pl)
	}
	surface.SetMarkers(c.data.Primitives.Markers)

	// Scroll sync is one-directional: the main pane notifies, sub-panes
	// follow via SetVisibleRange, which does not notify back.
	unsub := surface.SubscribeVisibleRangeChange(func(r model.TimeRange) {
		c.lastRange = r
		for _, key := range c.reg.Keys() {
			if key == MainKey {
				continue
			}
			c.reg.Surface(key).SetVisibleRange(r)
		}
	})
	c.reg.OnDestroy(MainKey, unsub)

	c.applySize(MainKey, surface)
}

func (c *Coordinator) buildSubPane(key string) {
	surface, err := c.factory.CreatePane(containerFor(key))
	if err != nil {
		if !errors.Is(err, render.ErrNoContainer) {
			slog.Warn("sub-pane create failed", "pane", key, "error", err)
		}
		return
	}
	c.reg.Create(key, surface)

	switch key {
	case "volume":
		series := surface.AddSeries(render.Histogram, c.styleFor(key))
		series.SetData(volumePoints(c.data.Candles))
	default:
		c.addOverlay(surface, key)
	}

	if key == indicator.KeyRSI {
		surface.CreatePriceLine(model.PriceLineSpec{Price: 70, Color: "#787b86", LineWidth: 1, Style: "dashed"})
		surface.CreatePriceLine(model.PriceLineSpec{Price: 30, Color: "#787b86", LineWidth: 1, Style: "dashed"})
	}

	if !c.lastRange.IsZero() {
		surface.SetVisibleRange(c.lastRange)
	}
	c.applySize(key, surface)
}

// addOverlay attaches one line series per stored series under key. The
// "bb" toggle fans out to its three band keys.
func (c *Coordinator) addOverlay(surface render.Surface, key string) {
	keys := []string{key}
	if key == "bb" {
		keys = []string{indicator.KeyBBUpper, indicator.KeyBBMiddle, indicator.KeyBBLower}
	}
	for _, k := range keys {
		pts := c.data.Indicators[k]
		if len(pts) == 0 {
			continue
		}
		surface.AddSeries(render.Line, c.styleFor(k)).SetData(pts)
	}
}

func (c *Coordinator) styleFor(key string) render.SeriesStyle {
	if s, ok := c.Styles[key]; ok {
		return s
	}
	return render.SeriesStyle{LineWidth: 2}
}

func (c *Coordinator) applySize(key string, surface render.Surface) {
	if wh, ok := c.sizes[containerFor(key)]; ok {
		surface.Resize(wh[0], wh[1])
	}
}

// comparisonColors cycles over comparison symbols in sorted order.
var comparisonColors = []string{"#ff9800", "#ab47bc", "#26a69a", "#5c6bc0"}

func sortedKeys(m map[string][]model.Candle) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containerFor(key string) string {
	if key == MainKey {
		return "chart-main"
	}
	return "pane-" + key
}

func toggle(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i:i], keys[i+1:]...)
		}
	}
	return append(keys, key)
}

func closePoints(candles []model.Candle) []model.SeriesPoint {
	pts := make([]model.SeriesPoint, len(candles))
	for i, cd := range candles {
		pts[i] = model.SeriesPoint{Time: cd.Time, Value: cd.Close}
	}
	return pts
}

func volumePoints(candles []model.Candle) []model.SeriesPoint {
	pts := make([]model.SeriesPoint, len(candles))
	for i, cd := range candles {
		pts[i] = model.SeriesPoint{Time: cd.Time, Value: cd.Volume}
	}
	return pts
}
