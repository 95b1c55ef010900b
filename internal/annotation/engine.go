// Package annotation implements the tool-driven drawing engine: a small
// state machine that collects pointer input into committed drawings, with
// undo/redo, per-symbol persistence and batch import.
package annotation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"chartcore/internal/model"
)

const (
	// DefaultCap bounds the persisted collection per symbol; oldest
	// drawings are dropped first when exceeded.
	DefaultCap = 200

	keyPrefix       = "chartcore:drawings:"
	legacyKeyPrefix = "chart_drawings_"

	defaultColor     = "#2962ff"
	defaultLineWidth = 2
)

// StorageKey returns the KV key holding the persisted drawings for a
// symbol. Shared with the REST layer so both address the same records.
func StorageKey(symbol string) string { return keyPrefix + symbol }

// Counters receives engine activity for instrumentation. *metrics.Metrics
// implements it; a nil Counters disables reporting.
type Counters interface {
	// DrawingOp records one applied operation (create, delete, clear,
	// replace, import, undo, redo).
	DrawingOp(op string)

	// DrawingPersisted records one snapshot write and its outcome.
	DrawingPersisted(dur time.Duration, err error)
}

// Engine is the annotation state machine for one chart view.
// Designed for single-goroutine usage — no locks needed; callers
// serialize access.
//
// States: idle (activeTool = cursor, no pending points) and collecting
// (a drawing tool is active and points accumulate until the tool's
// required count commits a drawing).
type Engine struct {
	store  model.KVStore
	symbol string

	// Interval is the bar interval, used to derive the measure tool's
	// bar count from its endpoint times.
	Interval time.Duration

	// Cap bounds the drawings collection. Zero means DefaultCap.
	Cap int

	// Counters receives operation and persistence events when non-nil.
	Counters Counters

	activeTool model.ToolType
	pending    []model.DrawingPoint
	drawings   []model.Drawing
	selected   string

	// Session-local snapshot stacks; reset on symbol change.
	undo [][]model.Drawing
	redo [][]model.Drawing

	// now is injectable for tests.
	now   func() time.Time
	idSeq int64
}

// NewEngine creates an annotation engine backed by the given store.
func NewEngine(store model.KVStore) *Engine {
	return &Engine{
		store:      store,
		Interval:   time.Minute,
		Cap:        DefaultCap,
		activeTool: model.ToolCursor,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetSymbol switches the engine to a symbol: loads that symbol's
// persisted drawings (migrating the legacy key once if the current key is
// empty) and resets pending points, selection, active tool and both
// stacks. Storage failures are swallowed; the engine starts empty.
func (e *Engine) SetSymbol(symbol string) {
	e.symbol = symbol
	e.activeTool = model.ToolCursor
	e.pending = nil
	e.selected = ""
	e.undo = nil
	e.redo = nil
	e.drawings = e.load(symbol)
}

// Symbol returns the active symbol.
func (e *Engine) Symbol() string { return e.symbol }

// SelectTool activates a drawing tool, clearing pending points and the
// current selection. Selecting the cursor (or an unknown tool) returns
// the engine to idle.
func (e *Engine) SelectTool(t model.ToolType) {
	if _, ok := Describe(t); !ok {
		t = model.ToolCursor
	}
	e.activeTool = t
	e.pending = nil
	e.selected = ""
}

// ActiveTool returns the currently active tool.
func (e *Engine) ActiveTool() model.ToolType { return e.activeTool }

// PendingCount returns how many points the active tool has collected.
func (e *Engine) PendingCount() int { return len(e.pending) }

// AddPoint feeds one pointer input to the active tool. When the tool's
// required point count is reached a drawing commits and is returned;
// otherwise nil. Input while the cursor is active is ignored.
func (e *Engine) AddPoint(p model.DrawingPoint) *model.Drawing {
	desc, ok := Describe(e.activeTool)
	if !ok {
		return nil
	}

	e.pending = append(e.pending, p)
	if len(e.pending) < desc.PointsRequired {
		return nil
	}

	d := e.synthesize(e.activeTool, e.pending)
	e.pending = nil
	if desc.AutoResetsToCursor {
		e.activeTool = model.ToolCursor
	}

	e.mutate("create", func() {
		e.drawings = append(e.drawings, d)
	})
	return &d
}

// Select marks a drawing as selected. An unknown ID clears the selection.
func (e *Engine) Select(id string) {
	for i := range e.drawings {
		if e.drawings[i].ID == id {
			e.selected = id
			return
		}
	}
	e.selected = ""
}

// Selected returns the selected drawing ID, or "".
func (e *Engine) Selected() string { return e.selected }

// DeleteSelected removes the currently selected drawing, if any.
func (e *Engine) DeleteSelected() {
	if e.selected == "" {
		return
	}
	id := e.selected
	e.mutate("delete", func() {
		kept := e.drawings[:0:0]
		for _, d := range e.drawings {
			if d.ID != id {
				kept = append(kept, d)
			}
		}
		e.drawings = kept
		e.selected = ""
	})
}

// ClearAll empties the drawings collection.
func (e *Engine) ClearAll() {
	if len(e.drawings) == 0 {
		return
	}
	e.mutate("clear", func() {
		e.drawings = nil
		e.selected = ""
	})
}

// ReplaceAll swaps the whole collection in one undoable mutation. Used by
// bulk REST updates; the configured cap applies.
func (e *Engine) ReplaceAll(ds []model.Drawing) {
	e.mutate("replace", func() {
		e.drawings = snapshot(ds)
		e.selected = ""
	})
}

// ImportDrawing commits one externally produced drawing as an undoable
// mutation, bypassing point collection.
func (e *Engine) ImportDrawing(d model.Drawing) {
	e.ImportDrawings([]model.Drawing{d})
}

// ImportDrawings commits externally produced drawings (e.g. AI overlay
// conversions) as a single undoable batch.
func (e *Engine) ImportDrawings(ds []model.Drawing) {
	if len(ds) == 0 {
		return
	}
	e.mutate("import", func() {
		for _, d := range ds {
			if d.ID == "" {
				d.ID = e.nextID(d.Type)
			}
			if d.CreatedAt.IsZero() {
				d.CreatedAt = e.now()
			}
			e.drawings = append(e.drawings, d)
		}
	})
}

// ImportNew imports only the drawings whose IDs are not already present,
// as a single undoable batch, and returns how many were added. Repeated
// calls with the same batch are no-ops, so a refresh loop can re-feed the
// latest conversions without duplicating them.
func (e *Engine) ImportNew(ds []model.Drawing) int {
	existing := make(map[string]bool, len(e.drawings))
	for _, d := range e.drawings {
		existing[d.ID] = true
	}
	fresh := ds[:0:0]
	for _, d := range ds {
		if d.ID == "" || !existing[d.ID] {
			fresh = append(fresh, d)
		}
	}
	e.ImportDrawings(fresh)
	return len(fresh)
}

// Undo restores the collection to its state before the last mutation.
func (e *Engine) Undo() {
	if len(e.undo) == 0 {
		return
	}
	snap := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, snapshot(e.drawings))
	e.drawings = snap
	e.selected = ""
	e.countOp("undo")
	e.persist()
}

// Redo reverses the last Undo.
func (e *Engine) Redo() {
	if len(e.redo) == 0 {
		return
	}
	snap := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, snapshot(e.drawings))
	e.drawings = snap
	e.selected = ""
	e.countOp("redo")
	e.persist()
}

// CanUndo reports whether an Undo is available.
func (e *Engine) CanUndo() bool { return len(e.undo) > 0 }

// CanRedo reports whether a Redo is available.
func (e *Engine) CanRedo() bool { return len(e.redo) > 0 }

// Drawings returns the committed drawings in creation order.
func (e *Engine) Drawings() []model.Drawing { return e.drawings }

// mutate wraps a collection mutation: pre-mutation snapshot onto the undo
// stack, redo cleared, cap applied, collection persisted.
func (e *Engine) mutate(op string, fn func()) {
	e.undo = append(e.undo, snapshot(e.drawings))
	e.redo = nil
	fn()
	e.applyCap()
	e.countOp(op)
	e.persist()
}

func (e *Engine) countOp(op string) {
	if e.Counters != nil {
		e.Counters.DrawingOp(op)
	}
}

func (e *Engine) applyCap() {
	cap := e.Cap
	if cap <= 0 {
		cap = DefaultCap
	}
	if over := len(e.drawings) - cap; over > 0 {
		e.drawings = append([]model.Drawing(nil), e.drawings[over:]...)
	}
}

// synthesize builds a committed Drawing from collected points, attaching
// tool-specific derived fields.
func (e *Engine) synthesize(tool model.ToolType, points []model.DrawingPoint) model.Drawing {
	d := model.Drawing{
		ID:        e.nextID(tool),
		Type:      tool,
		Points:    append([]model.DrawingPoint(nil), points...),
		Color:     defaultColor,
		LineWidth: defaultLineWidth,
		CreatedAt: e.now(),
	}

	switch tool {
	case model.ToolHorizontalLine:
		d.Price = points[0].Price
	case model.ToolMeasure:
		a, b := points[0], points[1]
		m := model.Measurement{PriceDelta: b.Price - a.Price}
		if a.Price != 0 {
			m.PctDelta = m.PriceDelta / a.Price * 100
		}
		if e.Interval > 0 {
			m.BarCount = int(math.Round(b.Time.Sub(a.Time).Abs().Seconds() / e.Interval.Seconds()))
		}
		d.Measure = &m
	}
	return d
}

func (e *Engine) nextID(tool model.ToolType) string {
	e.idSeq++
	return fmt.Sprintf("%s-%d-%d", tool, e.now().UnixNano(), e.idSeq)
}

// persist serializes the collection under the symbol-scoped key.
// Failures are swallowed: the in-memory collection stays authoritative.
func (e *Engine) persist() {
	if e.store == nil || e.symbol == "" {
		return
	}
	data, err := json.Marshal(e.drawings)
	if err != nil {
		return
	}
	start := time.Now()
	err = e.store.Set(keyPrefix+e.symbol, data)
	if e.Counters != nil {
		e.Counters.DrawingPersisted(time.Since(start), err)
	}
	if err != nil {
		slog.Debug("drawing persist failed", "symbol", e.symbol, "err", err)
	}
}

// load reads the persisted collection for a symbol, migrating the legacy
// key when the current key is absent.
func (e *Engine) load(symbol string) []model.Drawing {
	if e.store == nil || symbol == "" {
		return nil
	}

	data, err := e.store.Get(keyPrefix + symbol)
	if err != nil {
		slog.Debug("drawing load failed", "symbol", symbol, "err", err)
		return nil
	}
	if data == nil {
		legacy, err := e.store.Get(legacyKeyPrefix + symbol)
		if err != nil || legacy == nil {
			return nil
		}
		data = legacy
		// One-time migration to the namespaced key.
		if e.store.Set(keyPrefix+symbol, legacy) == nil {
			_ = e.store.Remove(legacyKeyPrefix + symbol)
		}
	}

	var ds []model.Drawing
	if err := json.Unmarshal(data, &ds); err != nil {
		slog.Debug("drawing decode failed", "symbol", symbol, "err", err)
		return nil
	}
	return ds
}

func snapshot(ds []model.Drawing) []model.Drawing {
	return append([]model.Drawing(nil), ds...)
}
