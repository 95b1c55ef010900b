package hub

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"chartcore/config"
	"chartcore/internal/annotation"
	"chartcore/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// drawingState is the outward annotation-engine state: active tool,
// pending point count and undo/redo availability.
type drawingState struct {
	Symbol       string         `json:"symbol"`
	ActiveTool   model.ToolType `json:"activeTool"`
	PendingCount int            `json:"pendingCount"`
	CanUndo      bool           `json:"canUndo"`
	CanRedo      bool           `json:"canRedo"`
	Selected     string         `json:"selected,omitempty"`
	Count        int            `json:"count"`
}

func stateOf(e *annotation.Engine) drawingState {
	return drawingState{
		Symbol:       e.Symbol(),
		ActiveTool:   e.ActiveTool(),
		PendingCount: e.PendingCount(),
		CanUndo:      e.CanUndo(),
		CanRedo:      e.CanRedo(),
		Selected:     e.Selected(),
		Count:        len(e.Drawings()),
	}
}

// Routes builds the HTTP surface: the viewer websocket, the annotation
// engine's drawing operations, presets and gap backfill.
func Routes(h *Hub, drawings *annotation.Shared, presets *config.Presets) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		h.ServeClient(conn, req.URL.Query().Get("last_ts"))
	})

	r.Get("/api/state", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, h.LatestAll())
	})

	r.Get("/api/missed", func(w http.ResponseWriter, req *http.Request) {
		channel := req.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(req.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(req.URL.Query().Get("to"), 10, 64)
		if channel == "" || from <= 0 || to < from {
			http.Error(w, "channel, from and to are required", http.StatusBadRequest)
			return
		}
		envelopes := h.ReplayRange(channel, from, to)
		msgs := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			msgs[i] = e
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":     channel,
			"current_seq": h.ChannelSeq(channel),
			"messages":    msgs,
		})
	})

	r.Get("/api/presets", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, presets)
	})

	r.Route("/api/drawings/{symbol}", func(r chi.Router) {
		drawingRoutes(r, h, drawings)
	})

	return r
}

// drawingRoutes exposes the annotation engine over REST. The engine is
// the single writer for the drawings collection; every mutation fans the
// new collection out on drawings:<symbol>.
func drawingRoutes(r chi.Router, h *Hub, drawings *annotation.Shared) {
	// run executes op against the engine bound to the request's symbol
	// and returns the resulting state plus the serialized collection.
	run := func(req *http.Request, op func(*annotation.Engine)) (drawingState, []byte) {
		symbol := chi.URLParam(req, "symbol")
		var state drawingState
		var data []byte
		drawings.Do(func(e *annotation.Engine) {
			if e.Symbol() != symbol {
				e.SetSymbol(symbol)
			}
			if op != nil {
				op(e)
			}
			state = stateOf(e)
			data = marshalDrawings(e.Drawings())
		})
		return state, data
	}

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		_, data := run(req, nil)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		state, _ := run(req, nil)
		writeJSON(w, http.StatusOK, state)
	})

	r.Put("/", func(w http.ResponseWriter, req *http.Request) {
		var ds []model.Drawing
		if err := json.NewDecoder(req.Body).Decode(&ds); err != nil {
			http.Error(w, "invalid drawings payload", http.StatusBadRequest)
			return
		}
		state, data := run(req, func(e *annotation.Engine) { e.ReplaceAll(ds) })
		h.Publish("drawings:"+state.Symbol, data)
		writeJSON(w, http.StatusOK, state)
	})

	r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
		state, data := run(req, func(e *annotation.Engine) { e.ClearAll() })
		h.Publish("drawings:"+state.Symbol, data)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/tool", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Tool model.ToolType `json:"tool"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid tool payload", http.StatusBadRequest)
			return
		}
		state, _ := run(req, func(e *annotation.Engine) { e.SelectTool(body.Tool) })
		writeJSON(w, http.StatusOK, state)
	})

	r.Post("/points", func(w http.ResponseWriter, req *http.Request) {
		var p model.DrawingPoint
		if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
			http.Error(w, "invalid point payload", http.StatusBadRequest)
			return
		}
		var committed *model.Drawing
		state, data := run(req, func(e *annotation.Engine) { committed = e.AddPoint(p) })
		if committed != nil {
			h.Publish("drawings:"+state.Symbol, data)
		}
		writeJSON(w, http.StatusOK, struct {
			drawingState
			Committed *model.Drawing `json:"committed,omitempty"`
		}{state, committed})
	})

	r.Post("/select", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid select payload", http.StatusBadRequest)
			return
		}
		state, _ := run(req, func(e *annotation.Engine) { e.Select(body.ID) })
		writeJSON(w, http.StatusOK, state)
	})

	r.Delete("/selected", func(w http.ResponseWriter, req *http.Request) {
		state, data := run(req, func(e *annotation.Engine) { e.DeleteSelected() })
		h.Publish("drawings:"+state.Symbol, data)
		writeJSON(w, http.StatusOK, state)
	})

	r.Post("/undo", func(w http.ResponseWriter, req *http.Request) {
		state, data := run(req, func(e *annotation.Engine) { e.Undo() })
		h.Publish("drawings:"+state.Symbol, data)
		writeJSON(w, http.StatusOK, state)
	})

	r.Post("/redo", func(w http.ResponseWriter, req *http.Request) {
		state, data := run(req, func(e *annotation.Engine) { e.Redo() })
		h.Publish("drawings:"+state.Symbol, data)
		writeJSON(w, http.StatusOK, state)
	})

	r.Post("/import", func(w http.ResponseWriter, req *http.Request) {
		var ds []model.Drawing
		if err := json.NewDecoder(req.Body).Decode(&ds); err != nil {
			http.Error(w, "invalid drawings payload", http.StatusBadRequest)
			return
		}
		state, data := run(req, func(e *annotation.Engine) { e.ImportDrawings(ds) })
		h.Publish("drawings:"+state.Symbol, data)
		writeJSON(w, http.StatusOK, state)
	})
}

func marshalDrawings(ds []model.Drawing) []byte {
	if len(ds) == 0 {
		return []byte("[]")
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
