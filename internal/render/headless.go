package render

import (
	"errors"
	"sync"

	"chartcore/internal/model"
)

// ErrNoContainer is returned by a factory when the target container does
// not exist or is not ready.
var ErrNoContainer = errors.New("render: container not available")

// HeadlessFactory creates in-memory surfaces. It backs the service when
// no real chart library is attached and every test that exercises the
// pane coordinator.
type HeadlessFactory struct {
	mu       sync.Mutex
	surfaces map[string]*HeadlessSurface

	// Missing simulates absent containers: CreatePane on a listed
	// container returns ErrNoContainer.
	Missing map[string]bool
}

// NewHeadlessFactory creates an empty factory.
func NewHeadlessFactory() *HeadlessFactory {
	return &HeadlessFactory{surfaces: make(map[string]*HeadlessSurface)}
}

// CreatePane creates a surface for the container.
func (f *HeadlessFactory) CreatePane(containerID string) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[containerID] {
		return nil, ErrNoContainer
	}
	s := &HeadlessSurface{Container: containerID}
	f.surfaces[containerID] = s
	return s, nil
}

// Surface returns the live surface for a container, or nil.
func (f *HeadlessFactory) Surface(containerID string) *HeadlessSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surfaces[containerID]
}

// HeadlessSurface records every operation applied to it.
type HeadlessSurface struct {
	mu sync.Mutex

	Container  string
	SeriesList []*HeadlessSeries
	PriceLines []model.PriceLineSpec
	Markers    []model.MarkerSpec
	Range      model.TimeRange
	Width      int
	Height     int
	Removed    bool

	subs   map[int]func(model.TimeRange)
	subSeq int
}

// AddSeries records and returns a new series.
func (s *HeadlessSurface) AddSeries(kind SeriesKind, style SeriesStyle) Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed {
		return &HeadlessSeries{kind: kind}
	}
	series := &HeadlessSeries{kind: kind, Style: style}
	s.SeriesList = append(s.SeriesList, series)
	return series
}

func (s *HeadlessSurface) CreatePriceLine(spec model.PriceLineSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed {
		return
	}
	s.PriceLines = append(s.PriceLines, spec)
}

func (s *HeadlessSurface) SetMarkers(markers []model.MarkerSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed {
		return
	}
	s.Markers = markers
}

func (s *HeadlessSurface) SubscribeVisibleRangeChange(cb func(model.TimeRange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(model.TimeRange))
	}
	s.subSeq++
	id := s.subSeq
	s.subs[id] = cb
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *HeadlessSurface) SetVisibleRange(r model.TimeRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed {
		return
	}
	s.Range = r
}

// EmitVisibleRange simulates a user scroll/zoom: applies the range and
// notifies subscribers synchronously.
func (s *HeadlessSurface) EmitVisibleRange(r model.TimeRange) {
	s.mu.Lock()
	if s.Removed {
		s.mu.Unlock()
		return
	}
	s.Range = r
	cbs := make([]func(model.TimeRange), 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(r)
	}
}

func (s *HeadlessSurface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Removed {
		return
	}
	s.Width, s.Height = width, height
}

// Remove tears the surface down. Idempotent.
func (s *HeadlessSurface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Removed = true
	s.subs = nil
}

// HeadlessSeries records the data last applied to a series.
type HeadlessSeries struct {
	mu sync.Mutex

	kind    SeriesKind
	Style   SeriesStyle
	Points  []model.SeriesPoint
	Candles []model.Candle
}

func (hs *HeadlessSeries) Kind() SeriesKind { return hs.kind }

func (hs *HeadlessSeries) SetData(points []model.SeriesPoint) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.Points = points
}

func (hs *HeadlessSeries) SetCandles(candles []model.Candle) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.Candles = candles
}
