package pane

import "chartcore/internal/render"

// handle is one live pane: its surface plus the teardown closures that
// must run before the pane is rebuilt or dropped.
type handle struct {
	key       string
	surface   render.Surface
	teardowns []func()
	destroyed bool
}

// Registry owns every live pane handle with an explicit create/destroy
// lifecycle, replacing ad-hoc maps of chart instances torn down across
// multiple code paths.
type Registry struct {
	order   []string
	handles map[string]*handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

// Create registers a pane surface under key, destroying any previous
// holder of the key first.
func (r *Registry) Create(key string, surface render.Surface) {
	r.Destroy(key)
	r.handles[key] = &handle{key: key, surface: surface}
	r.order = append(r.order, key)
}

// OnDestroy appends a teardown closure for key, run exactly once when the
// pane is destroyed.
func (r *Registry) OnDestroy(key string, fn func()) {
	if h, ok := r.handles[key]; ok {
		h.teardowns = append(h.teardowns, fn)
	}
}

// Surface returns the surface for key, or nil if the pane is not live.
func (r *Registry) Surface(key string) render.Surface {
	if h, ok := r.handles[key]; ok && !h.destroyed {
		return h.surface
	}
	return nil
}

// Keys returns the live pane keys in creation order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.order))
	for _, k := range r.order {
		if h, ok := r.handles[k]; ok && !h.destroyed {
			keys = append(keys, k)
		}
	}
	return keys
}

// Destroy tears down the pane for key: teardown closures first, then the
// surface. Idempotent — destroying an absent or already-destroyed key is
// a no-op.
func (r *Registry) Destroy(key string) {
	h, ok := r.handles[key]
	if !ok || h.destroyed {
		return
	}
	h.destroyed = true
	for _, fn := range h.teardowns {
		fn()
	}
	h.surface.Remove()
	delete(r.handles, key)

	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// DestroyAll tears down every pane, sub-panes before the main pane
// (reverse creation order).
func (r *Registry) DestroyAll() {
	for i := len(r.order) - 1; i >= 0; i-- {
		r.Destroy(r.order[i])
	}
}
