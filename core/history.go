package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

// DefaultHistoryCapacity is the number of samples kept per series.
const DefaultHistoryCapacity = 100

// series is a fixed-capacity FIFO of float32 values.
type series struct {
	buf   []float32
	start int
	n     int
}

func newSeries(capacity int) *series {
	return &series{buf: make([]float32, capacity)}
}

func (s *series) push(v float32) {
	if len(s.buf) == 0 {
		return
	}
	if s.n < len(s.buf) {
		s.buf[(s.start+s.n)%len(s.buf)] = v
		s.n++
		return
	}
	s.buf[s.start] = v
	s.start = (s.start + 1) % len(s.buf)
}

// values returns the stored values oldest first.
func (s *series) values() []float32 {
	out := make([]float32, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.start+i)%len(s.buf)]
	}
	return out
}

type unitSeries [model.ParameterCount]*series

// RecordMode selects what the plant-wide series receive on each Record.
type RecordMode int

const (
	// RecordAllOutlets appends every unit's outlet in chain order, Source
	// first, so one Record adds Len() values to each series. The outlet of
	// Sink is the effluent it received.
	RecordAllOutlets RecordMode = iota
	// RecordEffluent appends only the plant effluent once per Record.
	RecordEffluent
)

// HistoryOption configures a HistoryStore.
type HistoryOption func(*HistoryStore)

// WithCapacity sets the per-series capacity. Values below one fall back to
// DefaultHistoryCapacity.
func WithCapacity(n int) HistoryOption {
	return func(h *HistoryStore) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithRecordMode selects what the plant-wide series record.
func WithRecordMode(m RecordMode) HistoryOption {
	return func(h *HistoryStore) {
		h.mode = m
	}
}

// WithUnitSeries additionally records every unit's outlet per parameter.
func WithUnitSeries() HistoryOption {
	return func(h *HistoryStore) {
		h.perUnit = make(map[uuid.UUID]*unitSeries)
	}
}

// HistoryStore keeps a bounded time series per parameter. By default each
// Record call appends every unit's outlet, in chain order, to the series of
// each parameter, dropping the oldest values once a series is full.
type HistoryStore struct {
	capacity int
	mode     RecordMode
	global   [model.ParameterCount]*series
	perUnit  map[uuid.UUID]*unitSeries
}

// NewHistoryStore builds an empty store.
func NewHistoryStore(opts ...HistoryOption) *HistoryStore {
	h := &HistoryStore{capacity: DefaultHistoryCapacity}
	for _, opt := range opts {
		opt(h)
	}
	h.Clear()
	return h
}

// Capacity returns the per-series capacity.
func (h *HistoryStore) Capacity() int { return h.capacity }

// Mode reports what the plant-wide series record.
func (h *HistoryStore) Mode() RecordMode { return h.mode }

// TracksUnits reports whether per-unit series are recorded.
func (h *HistoryStore) TracksUnits() bool { return h.perUnit != nil }

// Clear drops every recorded value.
func (h *HistoryStore) Clear() {
	for i := range h.global {
		h.global[i] = newSeries(h.capacity)
	}
	if h.perUnit != nil {
		h.perUnit = make(map[uuid.UUID]*unitSeries)
	}
}

// Record appends the state of p to every parameter series according to the
// store's RecordMode. With per-unit tracking enabled it also appends each
// unit's outlet to that unit's series and forgets units that are no longer
// in the pipeline.
func (h *HistoryStore) Record(p *Pipeline) {
	if h.mode == RecordEffluent {
		h.pushGlobal(p.Effluent())
	} else {
		for _, u := range p.Units() {
			h.pushGlobal(recordedSample(u))
		}
	}
	if h.perUnit == nil {
		return
	}

	live := make(map[uuid.UUID]struct{}, p.Len())
	for _, u := range p.Units() {
		live[u.ID] = struct{}{}
		sample := recordedSample(u)
		us, ok := h.perUnit[u.ID]
		if !ok {
			us = new(unitSeries)
			for i := range us {
				us[i] = newSeries(h.capacity)
			}
			h.perUnit[u.ID] = us
		}
		for _, param := range model.Parameters() {
			us[param].push(sample.Get(param))
		}
	}
	for id := range h.perUnit {
		if _, ok := live[id]; !ok {
			delete(h.perUnit, id)
		}
	}
}

func (h *HistoryStore) pushGlobal(sample model.WaterSample) {
	for _, param := range model.Parameters() {
		h.global[param].push(sample.Get(param))
	}
}

// recordedSample is the outlet of u, or for Sink the effluent it received.
func recordedSample(u UnitView) model.WaterSample {
	if u.Kind == model.Sink {
		return u.Inlet
	}
	return u.Outlet
}

// Series returns a copy of the plant-wide series for param, most recent last.
// An invalid parameter yields nil.
func (h *HistoryStore) Series(param model.Parameter) []float32 {
	if !param.Valid() {
		return nil
	}
	return h.global[param].values()
}

// UnitSeries returns a copy of one unit's outlet series for param.
func (h *HistoryStore) UnitSeries(id uuid.UUID, param model.Parameter) ([]float32, error) {
	if !param.Valid() {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidParameter, int(param))
	}
	us, ok := h.perUnit[id]
	if !ok {
		return nil, fmt.Errorf("%w: no history for %s", ErrUnknownUnit, id)
	}
	return us[param].values(), nil
}
