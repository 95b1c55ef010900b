package pane

import (
	"testing"
	"time"

	"chartcore/internal/model"
	"chartcore/internal/render"
)

func testCandles(n int) []model.Candle {
	out := make([]model.Candle, n)
	base := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	for i := range out {
		px := 100 + float64(i)
		out[i] = model.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: px, High: px + 1, Low: px - 1, Close: px + 0.5,
			Volume: 1000,
		}
	}
	return out
}

func testDataset(n int) Dataset {
	candles := testCandles(n)
	series := model.IndicatorSeries{
		"rsi":   {{Time: candles[n-1].Time, Value: 55}},
		"sma20": {{Time: candles[n-1].Time, Value: 110}},
	}
	return Dataset{Candles: candles, Indicators: series}
}

func TestRebuildCreatesMainAndSubPanes(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick, Overlays: []string{"sma20"}, SubPanes: []string{"rsi", "volume"}})

	keys := c.Panes()
	if len(keys) != 3 || keys[0] != MainKey || keys[1] != "rsi" || keys[2] != "volume" {
		t.Fatalf("pane keys = %v", keys)
	}

	main := f.Surface("chart-main")
	if len(main.SeriesList) != 2 {
		t.Fatalf("main series = %d, want candles + sma20", len(main.SeriesList))
	}
	if main.SeriesList[0].Kind() != render.Candlestick {
		t.Errorf("main series kind = %s", main.SeriesList[0].Kind())
	}
	if len(main.SeriesList[0].Candles) != 30 {
		t.Errorf("main candle count = %d", len(main.SeriesList[0].Candles))
	}

	rsi := f.Surface("pane-rsi")
	if len(rsi.PriceLines) != 2 {
		t.Errorf("rsi reference lines = %d, want 2", len(rsi.PriceLines))
	}

	vol := f.Surface("pane-volume")
	if vol.SeriesList[0].Kind() != render.Histogram {
		t.Errorf("volume series kind = %s", vol.SeriesList[0].Kind())
	}
	if vol.SeriesList[0].Points[0].Value != 1000 {
		t.Errorf("volume point = %v", vol.SeriesList[0].Points[0])
	}
}

func TestComparisonSymbolsRenderAsMainPaneLines(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	data := testDataset(10)
	data.Comparisons = map[string][]model.Candle{
		"TCS":  testCandles(10),
		"INFY": testCandles(10),
	}
	c.SetDataset(data)

	main := f.Surface("chart-main")
	if len(main.SeriesList) != 3 {
		t.Fatalf("main series = %d, want candles + 2 comparisons", len(main.SeriesList))
	}
	// Comparison symbols attach in sorted order with distinct colors.
	infy, tcs := main.SeriesList[1], main.SeriesList[2]
	if infy.Kind() != render.Line || tcs.Kind() != render.Line {
		t.Fatalf("comparison kinds = %s, %s", infy.Kind(), tcs.Kind())
	}
	if infy.Style.Color == "" || infy.Style.Color == tcs.Style.Color {
		t.Errorf("comparison colors = %q, %q", infy.Style.Color, tcs.Style.Color)
	}
	if infy.Points[9].Value != 109.5 {
		t.Errorf("comparison uses close values, got %v", infy.Points[9].Value)
	}
}

func TestLineChartUsesClosePoints(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(10)
	c.Apply(View{ChartType: render.Line})

	main := f.Surface("chart-main")
	s := main.SeriesList[0]
	if s.Kind() != render.Line {
		t.Fatalf("kind = %s", s.Kind())
	}
	if len(s.Points) != 10 || s.Points[0].Value != 100.5 {
		t.Errorf("close points = %d first=%v", len(s.Points), s.Points[0])
	}
}

func TestBollingerToggleFansOutToThreeSeries(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	ds := testDataset(30)
	now := ds.Candles[len(ds.Candles)-1].Time
	ds.Indicators["bb_upper"] = []model.SeriesPoint{{Time: now, Value: 112}}
	ds.Indicators["bb_middle"] = []model.SeriesPoint{{Time: now, Value: 110}}
	ds.Indicators["bb_lower"] = []model.SeriesPoint{{Time: now, Value: 108}}
	c.data = ds
	c.Apply(View{ChartType: render.Candlestick, Overlays: []string{"bb"}})

	main := f.Surface("chart-main")
	if len(main.SeriesList) != 4 {
		t.Fatalf("main series = %d, want candles + three bands", len(main.SeriesList))
	}
}

func TestMainRangeEchoesToSubPanesOneWay(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick, SubPanes: []string{"rsi"}})

	r := model.TimeRange{
		From: time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 9, 45, 0, 0, time.UTC),
	}
	f.Surface("chart-main").EmitVisibleRange(r)

	if got := f.Surface("pane-rsi").Range; got != r {
		t.Errorf("sub-pane range = %v, want %v", got, r)
	}
	if c.VisibleRange() != r {
		t.Errorf("coordinator range = %v", c.VisibleRange())
	}

	// Scrolling a sub-pane must not move the main pane.
	other := model.TimeRange{From: r.From.Add(time.Hour), To: r.To.Add(time.Hour)}
	f.Surface("pane-rsi").EmitVisibleRange(other)
	if got := f.Surface("chart-main").Range; got != r {
		t.Errorf("main range moved to %v after sub-pane scroll", got)
	}
}

func TestNewSubPaneInheritsLastRange(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick})

	r := model.TimeRange{
		From: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	f.Surface("chart-main").EmitVisibleRange(r)

	c.ToggleSubPane("rsi")
	if got := f.Surface("pane-rsi").Range; got != r {
		t.Errorf("new sub-pane range = %v, want %v", got, r)
	}
}

func TestRebuildTearsDownOldSurfaces(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick, SubPanes: []string{"rsi"}})

	oldMain := f.Surface("chart-main")
	oldRSI := f.Surface("pane-rsi")

	c.SetChartType(render.Line)

	if !oldMain.Removed || !oldRSI.Removed {
		t.Fatal("old surfaces not removed on rebuild")
	}
	if f.Surface("chart-main") == oldMain {
		t.Fatal("main surface not recreated")
	}

	// The old main pane can no longer drive sub-panes.
	r := model.TimeRange{From: time.Unix(1, 0), To: time.Unix(2, 0)}
	oldMain.EmitVisibleRange(r)
	if f.Surface("pane-rsi").Range == r {
		t.Error("stale subscription survived rebuild")
	}
}

func TestToggleOverlayOffRemovesSeries(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick, Overlays: []string{"sma20"}})

	if got := len(f.Surface("chart-main").SeriesList); got != 2 {
		t.Fatalf("series before toggle = %d", got)
	}
	c.ToggleOverlay("sma20")
	if got := len(f.Surface("chart-main").SeriesList); got != 1 {
		t.Errorf("series after toggle off = %d, want 1", got)
	}
	c.ToggleOverlay("sma20")
	if got := len(f.Surface("chart-main").SeriesList); got != 2 {
		t.Errorf("series after toggle back on = %d, want 2", got)
	}
}

func TestMissingContainerSkipsPaneOnly(t *testing.T) {
	f := render.NewHeadlessFactory()
	f.Missing = map[string]bool{"pane-rsi": true}
	c := New(f)
	c.data = testDataset(30)
	c.Apply(View{ChartType: render.Candlestick, SubPanes: []string{"rsi", "volume"}})

	keys := c.Panes()
	if len(keys) != 2 || keys[0] != MainKey || keys[1] != "volume" {
		t.Fatalf("pane keys = %v, want main and volume only", keys)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(10)
	c.Apply(View{ChartType: render.Candlestick, SubPanes: []string{"rsi"}})

	c.Close()
	c.Close()

	if got := c.Panes(); len(got) != 0 {
		t.Errorf("panes after close = %v", got)
	}
	if !f.Surface("chart-main").Removed {
		t.Error("main surface not removed")
	}
}

func TestResizeAppliesNowAndAfterRebuild(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	c.data = testDataset(10)
	c.Apply(View{ChartType: render.Candlestick, SubPanes: []string{"rsi"}})

	c.HandleResize("pane-rsi", 800, 200)
	if s := f.Surface("pane-rsi"); s.Width != 800 || s.Height != 200 {
		t.Fatalf("sub-pane size = %dx%d", s.Width, s.Height)
	}

	c.Rebuild()
	if s := f.Surface("pane-rsi"); s.Width != 800 || s.Height != 200 {
		t.Errorf("size not reapplied after rebuild: %dx%d", s.Width, s.Height)
	}
}

func TestPriceLinesAndMarkersReachMainPane(t *testing.T) {
	f := render.NewHeadlessFactory()
	c := New(f)
	ds := testDataset(10)
	ds.Primitives = model.OverlayPrimitives{
		PriceLines: []model.PriceLineSpec{{Price: 105, Title: "Resistance"}},
		Markers:    []model.MarkerSpec{{Position: "belowBar", Shape: "arrowUp"}},
	}
	c.SetDataset(ds)

	main := f.Surface("chart-main")
	if len(main.PriceLines) != 1 || main.PriceLines[0].Title != "Resistance" {
		t.Errorf("price lines = %+v", main.PriceLines)
	}
	if len(main.Markers) != 1 {
		t.Errorf("markers = %d", len(main.Markers))
	}
}
