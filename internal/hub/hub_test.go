package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"chartcore/config"
	"chartcore/internal/annotation"
	"chartcore/internal/model"
	"chartcore/internal/store/memory"
)

// envelope is the parsed fan-out message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func addTestClient(h *Hub, filters ...string) *Client {
	c := &Client{id: "test", send: make(chan []byte, 16), hub: h}
	if len(filters) > 0 {
		c.setFilters(filters)
	}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	return c
}

func TestPublishEnvelopeFormat(t *testing.T) {
	h := New(nil)
	c := addTestClient(h)

	h.Publish("tick:RELIANCE", []byte(`{"symbol":"RELIANCE","price":2850.5}`))

	var env envelope
	if err := json.Unmarshal(<-c.send, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if env.Channel != "tick:RELIANCE" {
		t.Errorf("channel = %q", env.Channel)
	}
	if env.Seq != 1 || env.ChannelSeq != 1 {
		t.Errorf("seq = %d, channel_seq = %d", env.Seq, env.ChannelSeq)
	}
	var tick map[string]any
	if err := json.Unmarshal(env.Data, &tick); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if tick["price"] != 2850.5 {
		t.Errorf("data = %v", tick)
	}
}

func TestChannelSeqIsPerChannel(t *testing.T) {
	h := New(nil)

	h.Publish("tick:A", []byte(`1`))
	h.Publish("tick:A", []byte(`2`))
	h.Publish("tick:B", []byte(`3`))

	if got := h.ChannelSeq("tick:A"); got != 2 {
		t.Errorf("tick:A seq = %d", got)
	}
	if got := h.ChannelSeq("tick:B"); got != 1 {
		t.Errorf("tick:B seq = %d", got)
	}
}

func TestFilteredClientOnlySeesSubscribedChannels(t *testing.T) {
	h := New(nil)
	c := addTestClient(h, "overlay:RELIANCE", "tick:*")

	h.Publish("overlay:RELIANCE", []byte(`{}`))
	h.Publish("overlay:TCS", []byte(`{}`))
	h.Publish("tick:TCS", []byte(`{}`))

	if got := len(c.send); got != 2 {
		t.Fatalf("delivered = %d, want overlay:RELIANCE and tick:TCS only", got)
	}
	var env envelope
	json.Unmarshal(<-c.send, &env)
	if env.Channel != "overlay:RELIANCE" {
		t.Errorf("first = %s", env.Channel)
	}
	json.Unmarshal(<-c.send, &env)
	if env.Channel != "tick:TCS" {
		t.Errorf("second = %s", env.Channel)
	}
}

func TestFullSendQueueDropsInsteadOfBlocking(t *testing.T) {
	h := New(nil)
	c := &Client{id: "slow", send: make(chan []byte, 1), hub: h}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.Publish("tick:A", []byte(`1`))
	h.Publish("tick:A", []byte(`2`)) // queue full, must not block

	if got := len(c.send); got != 1 {
		t.Errorf("queued = %d", got)
	}
}

func TestReplayRangeBackfillsGap(t *testing.T) {
	h := New(nil)
	for i := 1; i <= 10; i++ {
		h.Publish("candles:X:5m", []byte(`{"n":`+string(rune('0'+i%10))+`}`))
	}

	msgs := h.ReplayRange("candles:X:5m", 3, 5)
	if len(msgs) != 3 {
		t.Fatalf("replayed = %d, want 3", len(msgs))
	}
	var env envelope
	json.Unmarshal(msgs[0], &env)
	if env.ChannelSeq != 3 {
		t.Errorf("first replayed seq = %d", env.ChannelSeq)
	}
	if h.ReplayRange("unknown", 1, 5) != nil {
		t.Error("unknown channel should replay nothing")
	}
}

func testRouter(t *testing.T, h *Hub, cap int) (chi.Router, *memory.Store) {
	t.Helper()
	store := memory.New()
	eng := annotation.NewEngine(store)
	if cap > 0 {
		eng.Cap = cap
	}
	return Routes(h, annotation.NewShared(eng), config.DefaultPresets()), store
}

func TestDrawingsRoutes(t *testing.T) {
	h := New(nil)
	router, store := testRouter(t, h, 0)

	c := addTestClient(h)

	body := `[{"id":"hl-1","type":"horizontalLine","points":[{"price":2850}],"price":2850}]`
	req := httptest.NewRequest("PUT", "/api/drawings/RELIANCE", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("PUT code = %d: %s", rec.Code, rec.Body.String())
	}

	// Persisted by the engine under its key scheme.
	data, err := store.Get(annotation.StorageKey("RELIANCE"))
	if err != nil || data == nil {
		t.Fatalf("stored drawings missing: %v", err)
	}
	var stored []model.Drawing
	if err := json.Unmarshal(data, &stored); err != nil || len(stored) != 1 {
		t.Fatalf("stored = %s", data)
	}

	// Change was fanned out.
	var env envelope
	json.Unmarshal(<-c.send, &env)
	if env.Channel != "drawings:RELIANCE" {
		t.Errorf("fanout channel = %s", env.Channel)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/drawings/RELIANCE", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "hl-1") {
		t.Errorf("GET = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/drawings/RELIANCE", nil))
	if rec.Code != 204 {
		t.Errorf("DELETE code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/drawings/RELIANCE", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("after DELETE: %s", got)
	}
}

// drawingStateResp mirrors the state document the drawing routes return.
type drawingStateResp struct {
	Symbol       string          `json:"symbol"`
	ActiveTool   string          `json:"activeTool"`
	PendingCount int             `json:"pendingCount"`
	CanUndo      bool            `json:"canUndo"`
	CanRedo      bool            `json:"canRedo"`
	Count        int             `json:"count"`
	Committed    json.RawMessage `json:"committed"`
}

func postJSON(t *testing.T, router chi.Router, path, body string) drawingStateResp {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", path, strings.NewReader(body)))
	if rec.Code != 200 {
		t.Fatalf("POST %s = %d: %s", path, rec.Code, rec.Body.String())
	}
	var state drawingStateResp
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("POST %s decode: %v", path, err)
	}
	return state
}

func TestDrawingLifecycleOverRest(t *testing.T) {
	h := New(nil)
	router, _ := testRouter(t, h, 0)
	c := addTestClient(h)

	base := "/api/drawings/TCS"

	state := postJSON(t, router, base+"/tool", `{"tool":"trendline"}`)
	if state.ActiveTool != "trendline" || state.PendingCount != 0 {
		t.Fatalf("after tool select: %+v", state)
	}

	state = postJSON(t, router, base+"/points", `{"time":"2024-01-01T09:15:00Z","price":2800}`)
	if state.PendingCount != 1 || state.Committed != nil || state.Count != 0 {
		t.Fatalf("after first point: %+v", state)
	}
	if len(c.send) != 0 {
		t.Fatal("uncommitted point must not fan out")
	}

	state = postJSON(t, router, base+"/points", `{"time":"2024-01-01T10:15:00Z","price":2850}`)
	if state.Committed == nil || state.Count != 1 || !state.CanUndo {
		t.Fatalf("after commit: %+v", state)
	}
	var env envelope
	json.Unmarshal(<-c.send, &env)
	if env.Channel != "drawings:TCS" {
		t.Errorf("commit fanout channel = %s", env.Channel)
	}

	state = postJSON(t, router, base+"/undo", `{}`)
	if state.Count != 0 || !state.CanRedo || state.CanUndo {
		t.Fatalf("after undo: %+v", state)
	}

	state = postJSON(t, router, base+"/redo", `{}`)
	if state.Count != 1 || !state.CanUndo || state.CanRedo {
		t.Fatalf("after redo: %+v", state)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", base+"/state", nil))
	var got drawingStateResp
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("GET state: %v", err)
	}
	if got.Count != 1 || !got.CanUndo {
		t.Errorf("state = %+v", got)
	}
}

func TestBulkPutAppliesEngineCap(t *testing.T) {
	h := New(nil)
	router, store := testRouter(t, h, 2)

	body := `[` +
		`{"id":"d1","type":"horizontalLine","points":[{"price":1}],"price":1},` +
		`{"id":"d2","type":"horizontalLine","points":[{"price":2}],"price":2},` +
		`{"id":"d3","type":"horizontalLine","points":[{"price":3}],"price":3}]`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PUT", "/api/drawings/RELIANCE", strings.NewReader(body)))
	if rec.Code != 200 {
		t.Fatalf("PUT code = %d", rec.Code)
	}

	data, _ := store.Get(annotation.StorageKey("RELIANCE"))
	var stored []model.Drawing
	json.Unmarshal(data, &stored)
	if len(stored) != 2 {
		t.Fatalf("stored = %d, want cap of 2", len(stored))
	}
	// Oldest dropped first.
	if stored[0].ID != "d2" || stored[1].ID != "d3" {
		t.Errorf("kept = %s, %s", stored[0].ID, stored[1].ID)
	}
}

func TestMissedEndpointValidatesParams(t *testing.T) {
	h := New(nil)
	router, _ := testRouter(t, h, 0)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/missed?channel=tick:A", nil))
	if rec.Code != 400 {
		t.Errorf("missing range code = %d", rec.Code)
	}

	h.Publish("tick:A", []byte(`1`))
	h.Publish("tick:A", []byte(`2`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/missed?channel=tick:A&from=1&to=2", nil))
	if rec.Code != 200 {
		t.Fatalf("code = %d", rec.Code)
	}
	var resp struct {
		CurrentSeq int64             `json:"current_seq"`
		Messages   []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CurrentSeq != 2 || len(resp.Messages) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}
