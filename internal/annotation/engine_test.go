package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"chartcore/internal/model"
	"chartcore/internal/store/memory"
)

func pt(minute int, price float64) model.DrawingPoint {
	return model.DrawingPoint{
		Time:  time.Date(2026, 2, 2, 14, minute, 0, 0, time.UTC),
		Price: price,
	}
}

func newTestEngine() *Engine {
	e := NewEngine(memory.New())
	e.SetSymbol("AAPL")
	return e
}

func TestCommitExactlyAtRequiredCount(t *testing.T) {
	for tool, desc := range toolTable {
		e := newTestEngine()
		e.SelectTool(tool)

		for i := 0; i < desc.PointsRequired-1; i++ {
			if d := e.AddPoint(pt(i, 100)); d != nil {
				t.Errorf("%s: committed after %d/%d points", tool, i+1, desc.PointsRequired)
			}
			if e.PendingCount() != i+1 {
				t.Errorf("%s: pending = %d, want %d", tool, e.PendingCount(), i+1)
			}
		}

		d := e.AddPoint(pt(desc.PointsRequired, 100))
		if d == nil {
			t.Fatalf("%s: no drawing at required count %d", tool, desc.PointsRequired)
		}
		if len(d.Points) != desc.PointsRequired {
			t.Errorf("%s: points = %d, want %d", tool, len(d.Points), desc.PointsRequired)
		}
		if e.PendingCount() != 0 {
			t.Errorf("%s: pending not cleared after commit", tool)
		}

		if desc.AutoResetsToCursor {
			if e.ActiveTool() != model.ToolCursor {
				t.Errorf("%s: tool did not reset to cursor", tool)
			}
		} else if e.ActiveTool() != tool {
			t.Errorf("%s: multi-point tool should stay active", tool)
		}
	}
}

// Single click with the horizontal line tool immediately yields a priced
// drawing and hands control back to the cursor.
func TestHorizontalLine_SingleClick(t *testing.T) {
	e := newTestEngine()
	e.SelectTool(model.ToolHorizontalLine)

	d := e.AddPoint(pt(0, 42.50))
	if d == nil {
		t.Fatal("expected immediate commit")
	}
	if d.Type != model.ToolHorizontalLine {
		t.Errorf("type = %s", d.Type)
	}
	if len(d.Points) != 1 || d.Points[0].Price != 42.50 {
		t.Errorf("points = %+v, want single point at 42.50", d.Points)
	}
	if d.Price != 42.50 {
		t.Errorf("derived price = %.2f, want 42.50", d.Price)
	}
	if e.ActiveTool() != model.ToolCursor {
		t.Errorf("activeTool = %s, want cursor", e.ActiveTool())
	}
}

func TestMeasure_DerivedFields(t *testing.T) {
	e := newTestEngine()
	e.Interval = time.Minute
	e.SelectTool(model.ToolMeasure)

	e.AddPoint(pt(0, 100))
	d := e.AddPoint(pt(5, 110))
	if d == nil || d.Measure == nil {
		t.Fatal("expected measure drawing with derived fields")
	}
	m := d.Measure
	if math.Abs(m.PriceDelta-10) > 1e-9 {
		t.Errorf("priceDelta = %.2f, want 10", m.PriceDelta)
	}
	if math.Abs(m.PctDelta-10) > 1e-9 {
		t.Errorf("pctDelta = %.2f, want 10", m.PctDelta)
	}
	if m.BarCount != 5 {
		t.Errorf("barCount = %d, want 5", m.BarCount)
	}
}

func TestCursorInputIgnored(t *testing.T) {
	e := newTestEngine()
	if d := e.AddPoint(pt(0, 100)); d != nil {
		t.Error("cursor input should not commit")
	}
	if e.PendingCount() != 0 {
		t.Error("cursor input should not accumulate")
	}
}

func TestSelectTool_ClearsPendingAndSelection(t *testing.T) {
	e := newTestEngine()
	e.SelectTool(model.ToolTrendline)
	e.AddPoint(pt(0, 100))
	e.AddPoint(pt(1, 101))
	e.Select(e.Drawings()[0].ID)

	e.SelectTool(model.ToolRectangle)
	if e.PendingCount() != 0 {
		t.Error("pending not cleared on tool switch")
	}
	if e.Selected() != "" {
		t.Error("selection not cleared on tool switch")
	}
}

func drawIDs(ds []model.Drawing) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}

func TestUndoRedo_RestoresExactCollections(t *testing.T) {
	e := newTestEngine()

	var states [][]string // collection after each mutation
	record := func() { states = append(states, drawIDs(e.Drawings())) }

	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 10))
	record()
	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(1, 20))
	record()
	e.Select(e.Drawings()[0].ID)
	e.DeleteSelected()
	record()
	e.ImportDrawings([]model.Drawing{
		{Type: model.ToolTrendline, Points: []model.DrawingPoint{pt(2, 30), pt(3, 31)}},
		{Type: model.ToolRay, Points: []model.DrawingPoint{pt(4, 32), pt(5, 33)}},
	})
	record()
	e.ClearAll()
	record()

	// Walk all the way back
	for i := len(states) - 2; i >= 0; i-- {
		e.Undo()
		if got := drawIDs(e.Drawings()); !reflect.DeepEqual(got, states[i]) {
			t.Fatalf("undo to state %d: got %v, want %v", i, got, states[i])
		}
	}
	e.Undo() // back to empty initial state
	if len(e.Drawings()) != 0 {
		t.Fatal("expected empty collection at bottom of undo stack")
	}
	if e.CanUndo() {
		t.Error("undo stack should be exhausted")
	}

	// And forward again
	for i := 0; i < len(states); i++ {
		e.Redo()
		if got := drawIDs(e.Drawings()); !reflect.DeepEqual(got, states[i]) {
			t.Fatalf("redo to state %d: got %v, want %v", i, got, states[i])
		}
	}
	if e.CanRedo() {
		t.Error("redo stack should be exhausted")
	}
}

func TestMutationClearsRedo(t *testing.T) {
	e := newTestEngine()
	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 10))
	e.Undo()
	if !e.CanRedo() {
		t.Fatal("expected redo available after undo")
	}

	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(1, 20))
	if e.CanRedo() {
		t.Error("new mutation must clear the redo stack")
	}
}

func TestCap_OldestDroppedFirst(t *testing.T) {
	e := newTestEngine()
	e.Cap = 3

	for i := 0; i < 5; i++ {
		e.SelectTool(model.ToolHorizontalLine)
		e.AddPoint(pt(i, float64(i)))
	}

	ds := e.Drawings()
	if len(ds) != 3 {
		t.Fatalf("len = %d, want cap 3", len(ds))
	}
	// Survivors are the newest three (prices 2, 3, 4)
	for i, want := range []float64{2, 3, 4} {
		if ds[i].Price != want {
			t.Errorf("drawing %d price = %.0f, want %.0f", i, ds[i].Price, want)
		}
	}
}

func TestPersistence_RoundTripAndStackReset(t *testing.T) {
	kv := memory.New()
	e := NewEngine(kv)
	e.SetSymbol("AAPL")
	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 42.5))

	// Switching symbols resets everything session-local...
	e.SetSymbol("TSLA")
	if len(e.Drawings()) != 0 || e.CanUndo() || e.CanRedo() || e.PendingCount() != 0 {
		t.Fatal("symbol change must reset drawings, stacks and pending points")
	}

	// ...and switching back reloads the persisted collection.
	e.SetSymbol("AAPL")
	if len(e.Drawings()) != 1 || e.Drawings()[0].Price != 42.5 {
		t.Fatalf("persisted collection not reloaded: %+v", e.Drawings())
	}
	if e.CanUndo() {
		t.Error("stacks are session-local and must not survive symbol change")
	}
}

func TestPersistence_LegacyKeyMigration(t *testing.T) {
	kv := memory.New()
	legacy := []model.Drawing{{ID: "old-1", Type: model.ToolHorizontalLine, Price: 10}}
	data, _ := json.Marshal(legacy)
	kv.Set("chart_drawings_MSFT", data)

	e := NewEngine(kv)
	e.SetSymbol("MSFT")
	if len(e.Drawings()) != 1 || e.Drawings()[0].ID != "old-1" {
		t.Fatalf("legacy drawings not loaded: %+v", e.Drawings())
	}

	// Migrated to the new key; legacy key gone.
	if v, _ := kv.Get("chartcore:drawings:MSFT"); v == nil {
		t.Error("expected migrated value under new key")
	}
	if v, _ := kv.Get("chart_drawings_MSFT"); v != nil {
		t.Error("expected legacy key removed after migration")
	}
}

// failStore errors on every operation.
type failStore struct{}

func (failStore) Get(string) ([]byte, error)   { return nil, errors.New("down") }
func (failStore) Set(string, []byte) error     { return errors.New("down") }
func (failStore) Remove(string) error          { return errors.New("down") }
func (failStore) Close() error                 { return nil }

func TestStorageFailuresSwallowed(t *testing.T) {
	e := NewEngine(failStore{})
	e.SetSymbol("AAPL")

	e.SelectTool(model.ToolHorizontalLine)
	if d := e.AddPoint(pt(0, 42.5)); d == nil {
		t.Fatal("commit must succeed despite storage failure")
	}
	if len(e.Drawings()) != 1 {
		t.Fatal("in-memory collection must remain authoritative")
	}
}

func TestImportDrawings_SingleUndoableBatch(t *testing.T) {
	e := newTestEngine()
	batch := make([]model.Drawing, 3)
	for i := range batch {
		batch[i] = model.Drawing{
			ID:     fmt.Sprintf("ai-%d", i),
			Type:   model.ToolTrendline,
			Points: []model.DrawingPoint{pt(i, 100), pt(i+1, 101)},
		}
	}
	e.ImportDrawings(batch)
	if len(e.Drawings()) != 3 {
		t.Fatalf("len = %d, want 3", len(e.Drawings()))
	}

	e.Undo()
	if len(e.Drawings()) != 0 {
		t.Errorf("batch import must undo as one operation, %d drawings left", len(e.Drawings()))
	}
}

func TestImportNew_SkipsKnownIDs(t *testing.T) {
	e := newTestEngine()
	batch := []model.Drawing{
		{ID: "ai-trend-1", Type: model.ToolTrendline, Points: []model.DrawingPoint{pt(0, 100), pt(1, 101)}},
		{ID: "ai-trend-2", Type: model.ToolTrendline, Points: []model.DrawingPoint{pt(2, 102), pt(3, 103)}},
	}

	if got := e.ImportNew(batch); got != 2 {
		t.Fatalf("first import = %d, want 2", got)
	}
	// Re-feeding the same conversions must not duplicate them.
	if got := e.ImportNew(batch); got != 0 {
		t.Fatalf("repeat import = %d, want 0", got)
	}
	if len(e.Drawings()) != 2 {
		t.Fatalf("len = %d, want 2", len(e.Drawings()))
	}

	// A fresh ID still lands, and the repeat did not push an undo frame.
	e.ImportNew([]model.Drawing{{ID: "ai-trend-3", Type: model.ToolTrendline, Points: []model.DrawingPoint{pt(4, 104), pt(5, 105)}}})
	if len(e.Drawings()) != 3 {
		t.Fatalf("len = %d, want 3", len(e.Drawings()))
	}
	e.Undo()
	e.Undo()
	if len(e.Drawings()) != 0 || e.CanUndo() {
		t.Errorf("expected exactly two undo frames, %d drawings left", len(e.Drawings()))
	}
}

func TestReplaceAll_SingleUndoableSwap(t *testing.T) {
	e := newTestEngine()
	e.Cap = 2
	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 10))

	e.ReplaceAll([]model.Drawing{
		{ID: "r1", Type: model.ToolHorizontalLine, Price: 1},
		{ID: "r2", Type: model.ToolHorizontalLine, Price: 2},
		{ID: "r3", Type: model.ToolHorizontalLine, Price: 3},
	})
	if got := drawIDs(e.Drawings()); !reflect.DeepEqual(got, []string{"r2", "r3"}) {
		t.Fatalf("replaced = %v, want cap-trimmed r2, r3", got)
	}

	e.Undo()
	if got := len(e.Drawings()); got != 1 {
		t.Errorf("undo after replace left %d drawings, want original 1", got)
	}
}

// opRecorder records counter callbacks.
type opRecorder struct {
	ops      []string
	persists int
	errs     int
}

func (r *opRecorder) DrawingOp(op string) { r.ops = append(r.ops, op) }
func (r *opRecorder) DrawingPersisted(_ time.Duration, err error) {
	if err != nil {
		r.errs++
		return
	}
	r.persists++
}

func TestCountersReceiveOpsAndPersists(t *testing.T) {
	rec := &opRecorder{}
	e := newTestEngine()
	e.Counters = rec

	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 10))
	e.Select(e.Drawings()[0].ID)
	e.DeleteSelected()
	e.Undo()
	e.Redo()
	e.ImportDrawings([]model.Drawing{{Type: model.ToolTrendline, Points: []model.DrawingPoint{pt(1, 11), pt(2, 12)}}})
	e.ClearAll()

	want := []string{"create", "delete", "undo", "redo", "import", "clear"}
	if !reflect.DeepEqual(rec.ops, want) {
		t.Errorf("ops = %v, want %v", rec.ops, want)
	}
	if rec.persists != len(want) || rec.errs != 0 {
		t.Errorf("persists = %d errs = %d, want %d and 0", rec.persists, rec.errs, len(want))
	}
}

func TestCountersReportPersistFailures(t *testing.T) {
	rec := &opRecorder{}
	e := NewEngine(failStore{})
	e.Counters = rec
	e.SetSymbol("AAPL")

	e.SelectTool(model.ToolHorizontalLine)
	e.AddPoint(pt(0, 10))

	if rec.errs != 1 || rec.persists != 0 {
		t.Errorf("errs = %d persists = %d, want 1 and 0", rec.errs, rec.persists)
	}
}
