package core

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

var (
	// ErrInvalidIndex indicates a position outside the insertable or
	// removable range, including the Source and Sink slots.
	ErrInvalidIndex = errors.New("invalid unit index")
	// ErrUnknownUnit indicates a handle that no longer names a unit.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrUnknownPreset indicates a preset name that is not registered.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrInvalidValue indicates a non-finite value or a negative
	// concentration.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// Connection is one pipe between adjacent units, from upstream to downstream.
type Connection struct {
	From uuid.UUID
	To   uuid.UUID
}

// Pipeline is a strictly linear treatment train. Source is always at index
// 0 and Sink always last; every unit in between runs in index order.
//
// Pipeline is not safe for concurrent use. Hosts that touch it from several
// goroutines must serialise every call (see internal/sim/state).
type Pipeline struct {
	units map[uuid.UUID]*ProcessUnit
	order []uuid.UUID

	// connections is rebuilt from order on every topology change.
	connections []Connection
	revision    uint64

	ticks   uint64
	elapsed time.Duration

	newID func() uuid.UUID
}

// NewPipeline creates a pipeline holding only Source and Sink.
func NewPipeline() *Pipeline {
	p := &Pipeline{
		units: make(map[uuid.UUID]*ProcessUnit),
		newID: uuid.New,
	}
	src := newProcessUnit(p.newID(), model.Source, model.DefaultUnitConfig())
	sink := newProcessUnit(p.newID(), model.Sink, model.DefaultUnitConfig())
	p.units[src.ID] = src
	p.units[sink.ID] = sink
	p.order = []uuid.UUID{src.ID, sink.ID}
	p.relink()
	return p
}

//
// ---------- Simulation ----------
//

// Step advances the plant by one tick. All treatment units are simulated
// first, each on the inlet left by the previous tick's propagation; only
// then is every outlet copied downstream. A unit therefore never sees an
// upstream result computed in the same tick.
//
// dt only advances the elapsed simulation clock; transfer functions are
// steady-state and do not depend on it.
func (p *Pipeline) Step(dt time.Duration) {
	last := len(p.order) - 1
	for i := 1; i < last; i++ {
		p.units[p.order[i]].simulate()
	}
	for i := 1; i <= last; i++ {
		p.units[p.order[i]].inlet = p.units[p.order[i-1]].outlet
	}
	p.ticks++
	if dt > 0 {
		p.elapsed += dt
	}
}

// Ticks returns how many times Step has run.
func (p *Pipeline) Ticks() uint64 { return p.ticks }

// Elapsed returns the accumulated simulation time passed to Step.
func (p *Pipeline) Elapsed() time.Duration { return p.elapsed }

//
// ---------- Topology ----------
//

// Insert creates a unit of the given kind at position at, shifting later
// units (and Sink) downstream. Valid positions are 1..Len()-1; Len()-1
// places the unit immediately before Sink.
func (p *Pipeline) Insert(kind model.UnitKind, cfg model.UnitConfig, at int) (uuid.UUID, error) {
	if !kind.Insertable() {
		return uuid.Nil, fmt.Errorf("%w: %s cannot be inserted", model.ErrInvalidUnitKind, kind.Key())
	}
	if at < 1 || at > len(p.order)-1 {
		return uuid.Nil, fmt.Errorf("%w: insert position %d outside 1..%d", ErrInvalidIndex, at, len(p.order)-1)
	}
	if err := cfg.Validate(); err != nil {
		return uuid.Nil, err
	}

	u := newProcessUnit(p.newID(), kind, cfg.Clone())
	p.units[u.ID] = u
	p.order = slices.Insert(p.order, at, u.ID)
	p.relink()
	return u.ID, nil
}

// Append inserts a unit immediately before Sink.
func (p *Pipeline) Append(kind model.UnitKind, cfg model.UnitConfig) (uuid.UUID, error) {
	return p.Insert(kind, cfg, len(p.order)-1)
}

// Remove deletes the treatment unit at index and closes the gap. Source and
// Sink cannot be removed.
func (p *Pipeline) Remove(index int) error {
	if index <= 0 || index >= len(p.order)-1 {
		return fmt.Errorf("%w: remove position %d outside 1..%d", ErrInvalidIndex, index, len(p.order)-2)
	}
	delete(p.units, p.order[index])
	p.order = slices.Delete(p.order, index, index+1)
	p.relink()
	return nil
}

// RemoveUnit deletes the unit with the given handle.
func (p *Pipeline) RemoveUnit(id uuid.UUID) error {
	idx, err := p.IndexOf(id)
	if err != nil {
		return err
	}
	return p.Remove(idx)
}

// Reset removes every treatment unit, leaving Source and Sink. The influent
// held by Source is kept.
func (p *Pipeline) Reset() {
	if len(p.order) == 2 {
		return
	}
	for _, id := range p.order[1 : len(p.order)-1] {
		delete(p.units, id)
	}
	p.order = []uuid.UUID{p.order[0], p.order[len(p.order)-1]}
	p.relink()
}

// LoadPreset resets the pipeline and appends the preset's units with their
// default configurations.
func (p *Pipeline) LoadPreset(name string) error {
	kinds, err := PresetKinds(name)
	if err != nil {
		return err
	}
	p.Reset()
	for _, kind := range kinds {
		if _, err := p.Append(kind, model.DefaultConfigFor(kind)); err != nil {
			return err
		}
	}
	return nil
}

// Connections returns the ordered pipe list, one entry per adjacent pair.
func (p *Pipeline) Connections() []Connection {
	return append([]Connection(nil), p.connections...)
}

// Revision increases on every topology change; renderers compare it to
// decide whether their cached connections are stale.
func (p *Pipeline) Revision() uint64 { return p.revision }

func (p *Pipeline) relink() {
	p.connections = p.connections[:0]
	for i := 1; i < len(p.order); i++ {
		p.connections = append(p.connections, Connection{From: p.order[i-1], To: p.order[i]})
	}
	p.revision++
}

//
// ---------- Queries ----------
//

// Len returns the number of units including Source and Sink.
func (p *Pipeline) Len() int { return len(p.order) }

// SourceID returns the handle of the Source unit.
func (p *Pipeline) SourceID() uuid.UUID { return p.order[0] }

// SinkID returns the handle of the Sink unit.
func (p *Pipeline) SinkID() uuid.UUID { return p.order[len(p.order)-1] }

// IndexOf returns the current position of the unit with the given handle.
func (p *Pipeline) IndexOf(id uuid.UUID) (int, error) {
	if _, ok := p.units[id]; !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	return slices.Index(p.order, id), nil
}

// Unit returns a view of the unit at index.
func (p *Pipeline) Unit(index int) (UnitView, error) {
	if index < 0 || index >= len(p.order) {
		return UnitView{}, fmt.Errorf("%w: %d outside 0..%d", ErrInvalidIndex, index, len(p.order)-1)
	}
	return p.units[p.order[index]].view(index), nil
}

// Lookup returns a view of the unit with the given handle. Handles of
// removed units report ErrUnknownUnit.
func (p *Pipeline) Lookup(id uuid.UUID) (UnitView, error) {
	idx, err := p.IndexOf(id)
	if err != nil {
		return UnitView{}, err
	}
	return p.units[id].view(idx), nil
}

// Units returns views of every unit in chain order.
func (p *Pipeline) Units() []UnitView {
	out := make([]UnitView, 0, len(p.order))
	for i, id := range p.order {
		out = append(out, p.units[id].view(i))
	}
	return out
}

// Names returns unit names in chain order.
func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.units[id].Name)
	}
	return out
}

// Influent returns the sample Source currently feeds into the train.
func (p *Pipeline) Influent() model.WaterSample {
	return p.units[p.SourceID()].outlet
}

// Effluent returns the sample most recently delivered to Sink.
func (p *Pipeline) Effluent() model.WaterSample {
	return p.units[p.SinkID()].inlet
}

//
// ---------- Mutation of inputs ----------
//

// SetInfluent replaces the raw influent. Values must be finite and
// concentrations non-negative.
func (p *Pipeline) SetInfluent(sample model.WaterSample) error {
	for _, param := range model.Parameters() {
		if err := checkValue(param, sample.Get(param)); err != nil {
			return err
		}
	}
	p.units[p.SourceID()].outlet = sample
	return nil
}

// SetInfluentParameter overwrites a single influent parameter.
func (p *Pipeline) SetInfluentParameter(param model.Parameter, value float32) error {
	if !param.Valid() {
		return fmt.Errorf("%w: %d", model.ErrInvalidParameter, int(param))
	}
	if err := checkValue(param, value); err != nil {
		return err
	}
	src := p.units[p.SourceID()]
	src.outlet.Set(param, value)
	return nil
}

// SetUnitConfig replaces the configuration of the unit with the given handle.
func (p *Pipeline) SetUnitConfig(id uuid.UUID, cfg model.UnitConfig) error {
	u, ok := p.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	u.Config = cfg.Clone()
	return nil
}

// SetRemovalOverride sets a removal efficiency override on one unit.
func (p *Pipeline) SetRemovalOverride(id uuid.UUID, param model.Parameter, efficiency float32) error {
	u, ok := p.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	return u.Config.SetOverride(param, efficiency)
}

// ClearRemovalOverride restores the built-in formula for param on one unit.
func (p *Pipeline) ClearRemovalOverride(id uuid.UUID, param model.Parameter) error {
	u, ok := p.units[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, id)
	}
	u.Config.ClearOverride(param)
	return nil
}

func checkValue(param model.Parameter, v float32) error {
	if !model.IsFinite(v) {
		return fmt.Errorf("%w: %s=%v is not finite", ErrInvalidValue, param, v)
	}
	if param.IsConcentration() && v < 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, param, v)
	}
	return nil
}
