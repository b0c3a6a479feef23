// internal/sim/state/state.go
package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/internal/events"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/wastewater-simulator/internal/sim/state"

// Topology operations reported to the metrics recorder.
const (
	OpInsert = "insert"
	OpRemove = "remove"
	OpReset  = "reset"
	OpPreset = "preset"
	OpConfig = "config"
)

// PlantState serialises every access to one Pipeline and its HistoryStore so
// a tick loop, RPC handlers, schedules and config reloads can share them.
type PlantState struct {
	// mu guards everything below. The core is not reentrant, so every
	// mutation and every Step takes the write lock.
	mu sync.RWMutex

	engine *core.SimulationEngine

	historyCapacity int
	unitHistory     bool
	recordMode      core.RecordMode

	// log is an optional structured logger for state-level events.
	log logging.Logger

	// metrics is an optional recorder for Prometheus-friendly metrics.
	metrics MetricsRecorder
}

// PlantSnapshot is a detached copy of the plant taken under the read lock.
type PlantSnapshot struct {
	Ticks       uint64
	Elapsed     time.Duration
	Revision    uint64
	Units       []core.UnitView
	Connections []core.Connection
	Influent    model.WaterSample
	Effluent    model.WaterSample
}

// MetricsRecorder receives tick and topology updates.
type MetricsRecorder interface {
	ObserveStep(d time.Duration, effluent model.WaterSample)
	SetUnitCount(n int)
	IncTopologyChange(op string)
}

// PlantStateOption customises PlantState construction.
type PlantStateOption func(*PlantState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) PlantStateOption {
	return func(s *PlantState) {
		s.metrics = m
	}
}

// WithHistoryCapacity sets the per-series history capacity.
func WithHistoryCapacity(n int) PlantStateOption {
	return func(s *PlantState) {
		if n > 0 {
			s.historyCapacity = n
		}
	}
}

// WithUnitHistory records a series per unit as well as for the effluent.
func WithUnitHistory() PlantStateOption {
	return func(s *PlantState) {
		s.unitHistory = true
	}
}

// WithRecordMode selects what the plant-wide history series record.
func WithRecordMode(m core.RecordMode) PlantStateOption {
	return func(s *PlantState) {
		s.recordMode = m
	}
}

// NewPlantState creates a plant holding only Source and Sink.
func NewPlantState(log logging.Logger, opts ...PlantStateOption) *PlantState {
	if log == nil {
		log = logging.Noop()
	}
	s := &PlantState{
		historyCapacity: core.DefaultHistoryCapacity,
		log:             log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.engine = core.NewSimulationEngine(core.NewPipeline(), s.newHistory(s.historyCapacity))
	s.updateMetricsLocked()
	return s
}

func (s *PlantState) newHistory(capacity int) *core.HistoryStore {
	opts := []core.HistoryOption{core.WithCapacity(capacity), core.WithRecordMode(s.recordMode)}
	if s.unitHistory {
		opts = append(opts, core.WithUnitSeries())
	}
	return core.NewHistoryStore(opts...)
}

//
// ---------- Simulation ----------
//

// Step advances the plant one tick, records history and returns the new
// effluent.
func (s *PlantState) Step(ctx context.Context, dt time.Duration) model.WaterSample {
	_, span := otel.Tracer(tracerName).Start(ctx, "PlantState.Step")
	defer span.End()

	s.mu.Lock()
	start := time.Now()
	s.engine.Tick(dt)
	took := time.Since(start)
	p := s.engine.Pipeline
	effluent := p.Effluent()
	tick := p.Ticks()
	units := p.Len()
	if s.metrics != nil {
		s.metrics.ObserveStep(took, effluent)
	}
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int64("wwtp.tick", int64(tick)),
		attribute.Int("wwtp.units", units),
	)
	return effluent
}

// Run executes up to ticks steps of dt, checking ctx between ticks. It
// returns the number of ticks completed.
func (s *PlantState) Run(ctx context.Context, ticks int, dt time.Duration) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "PlantState.Run",
		trace.WithAttributes(attribute.Int("wwtp.ticks", ticks)))
	defer span.End()

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return i, err
		}
		s.Step(ctx, dt)
	}
	return ticks, nil
}

// RegisterTickListener adds fn to the callbacks run after each tick, while
// the write lock is held. fn must not call back into PlantState.
func (s *PlantState) RegisterTickListener(fn func(tick uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.RegisterTickListener(fn)
}

//
// ---------- Topology ----------
//

// InsertUnit places a unit of kind at position at (1..Len-1).
func (s *PlantState) InsertUnit(ctx context.Context, kind model.UnitKind, cfg model.UnitConfig, at int) (core.UnitView, error) {
	return s.insert(ctx, kind, func(p *core.Pipeline) (uuid.UUID, error) {
		return p.Insert(kind, cfg, at)
	})
}

// AppendUnit places a unit immediately before Sink.
func (s *PlantState) AppendUnit(ctx context.Context, kind model.UnitKind, cfg model.UnitConfig) (core.UnitView, error) {
	return s.insert(ctx, kind, func(p *core.Pipeline) (uuid.UUID, error) {
		return p.Append(kind, cfg)
	})
}

// insert runs place under the write lock so the position is resolved
// against the topology it is applied to.
func (s *PlantState) insert(ctx context.Context, kind model.UnitKind, place func(p *core.Pipeline) (uuid.UUID, error)) (core.UnitView, error) {
	s.mu.Lock()
	p := s.engine.Pipeline
	id, err := place(p)
	if err != nil {
		s.mu.Unlock()
		return core.UnitView{}, err
	}
	view, _ := p.Lookup(id)
	units := p.Len()
	s.topologyChangedLocked(OpInsert)
	s.mu.Unlock()

	s.log.Debug(ctx, "unit inserted",
		logging.String("unit_id", id.String()),
		logging.String("unit_kind", kind.Key()),
		logging.Int("index", view.Index),
	)
	capitan.Emit(ctx, events.UnitInserted,
		events.KeyUnitID.Field(id.String()),
		events.KeyUnitKind.Field(kind.Key()),
		events.KeyIndex.Field(view.Index),
		events.KeyUnits.Field(units),
	)
	return view, nil
}

// RemoveUnit deletes the treatment unit at index and returns its last view.
func (s *PlantState) RemoveUnit(ctx context.Context, index int) (core.UnitView, error) {
	s.mu.Lock()
	p := s.engine.Pipeline
	if index <= 0 || index >= p.Len()-1 {
		err := fmt.Errorf("%w: remove position %d outside 1..%d", core.ErrInvalidIndex, index, p.Len()-2)
		s.mu.Unlock()
		return core.UnitView{}, err
	}
	view, _ := p.Unit(index)
	return s.removeLocked(ctx, view)
}

// RemoveUnitByID deletes the unit with the given handle.
func (s *PlantState) RemoveUnitByID(ctx context.Context, id uuid.UUID) (core.UnitView, error) {
	s.mu.Lock()
	view, err := s.engine.Pipeline.Lookup(id)
	if err != nil {
		s.mu.Unlock()
		return core.UnitView{}, err
	}
	return s.removeLocked(ctx, view)
}

// removeLocked is entered with s.mu held and releases it.
func (s *PlantState) removeLocked(ctx context.Context, view core.UnitView) (core.UnitView, error) {
	p := s.engine.Pipeline
	if err := p.Remove(view.Index); err != nil {
		s.mu.Unlock()
		return core.UnitView{}, err
	}
	units := p.Len()
	s.topologyChangedLocked(OpRemove)
	s.mu.Unlock()

	s.log.Debug(ctx, "unit removed",
		logging.String("unit_id", view.ID.String()),
		logging.String("unit_kind", view.Kind.Key()),
	)
	capitan.Emit(ctx, events.UnitRemoved,
		events.KeyUnitID.Field(view.ID.String()),
		events.KeyUnitKind.Field(view.Kind.Key()),
		events.KeyIndex.Field(view.Index),
		events.KeyUnits.Field(units),
	)
	return view, nil
}

// Reset removes every treatment unit. Influent and history are kept.
func (s *PlantState) Reset(ctx context.Context) {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	s.mu.Lock()
	removed := s.engine.Pipeline.Len() - 2
	s.engine.Pipeline.Reset()
	s.topologyChangedLocked(OpReset)
	s.mu.Unlock()

	reqLog.Debug(ctx, "plant reset", logging.Int("removed", removed))
	capitan.Emit(ctx, events.PlantReset, events.KeyUnits.Field(2))
}

// LoadPreset replaces the treatment train with a named preset.
func (s *PlantState) LoadPreset(ctx context.Context, name string) error {
	s.mu.Lock()
	p := s.engine.Pipeline
	if err := p.LoadPreset(name); err != nil {
		s.mu.Unlock()
		return err
	}
	units := p.Len()
	s.topologyChangedLocked(OpPreset)
	s.mu.Unlock()

	s.log.Info(ctx, "preset loaded", logging.String("preset", name), logging.Int("units", units))
	capitan.Emit(ctx, events.PresetLoaded,
		events.KeyPreset.Field(name),
		events.KeyUnits.Field(units),
	)
	return nil
}

//
// ---------- Influent and unit configuration ----------
//

// SetInfluent replaces the raw influent.
func (s *PlantState) SetInfluent(ctx context.Context, sample model.WaterSample) error {
	s.mu.Lock()
	err := s.engine.Pipeline.SetInfluent(sample)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	capitan.Emit(ctx, events.InfluentChanged,
		events.KeyParams.Field("*"),
		events.KeySource.Field("set"),
	)
	return nil
}

// SetInfluentParameter overwrites one influent parameter.
func (s *PlantState) SetInfluentParameter(ctx context.Context, param model.Parameter, value float32) error {
	s.mu.Lock()
	err := s.engine.Pipeline.SetInfluentParameter(param, value)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	capitan.Emit(ctx, events.InfluentChanged,
		events.KeyParams.Field(param.String()),
		events.KeySource.Field("set"),
	)
	return nil
}

// OverlayInfluent applies a partial influent keyed by parameter name. Either
// every value is applied or none is. source labels the change in events.
func (s *PlantState) OverlayInfluent(ctx context.Context, values map[string]float32, source string) (model.WaterSample, error) {
	s.mu.Lock()
	p := s.engine.Pipeline
	next, err := p.Influent().Overlay(values)
	if err == nil {
		err = p.SetInfluent(next)
	}
	s.mu.Unlock()
	if err != nil {
		return model.WaterSample{}, err
	}

	capitan.Emit(ctx, events.InfluentChanged,
		events.KeyParams.Field(joinKeys(values)),
		events.KeySource.Field(source),
	)
	return next, nil
}

// UpdateUnitConfig replaces one unit's configuration.
func (s *PlantState) UpdateUnitConfig(ctx context.Context, id uuid.UUID, cfg model.UnitConfig) (core.UnitView, error) {
	return s.updateUnit(ctx, id, func(p *core.Pipeline) error {
		return p.SetUnitConfig(id, cfg)
	})
}

// ModifyUnitConfig edits one unit's configuration in place. edit receives a
// copy of the current config under the write lock and the result is
// validated and stored before the lock is released, so concurrent edits
// never overwrite each other. edit must not call back into PlantState.
func (s *PlantState) ModifyUnitConfig(ctx context.Context, id uuid.UUID, edit func(cfg *model.UnitConfig) error) (core.UnitView, error) {
	return s.updateUnit(ctx, id, func(p *core.Pipeline) error {
		view, err := p.Lookup(id)
		if err != nil {
			return err
		}
		cfg := view.Config
		if err := edit(&cfg); err != nil {
			return err
		}
		return p.SetUnitConfig(id, cfg)
	})
}

// SetRemovalOverride sets a removal efficiency override on one unit.
func (s *PlantState) SetRemovalOverride(ctx context.Context, id uuid.UUID, param model.Parameter, efficiency float32) (core.UnitView, error) {
	return s.updateUnit(ctx, id, func(p *core.Pipeline) error {
		return p.SetRemovalOverride(id, param, efficiency)
	})
}

// ClearRemovalOverride restores the built-in formula for one parameter.
func (s *PlantState) ClearRemovalOverride(ctx context.Context, id uuid.UUID, param model.Parameter) (core.UnitView, error) {
	return s.updateUnit(ctx, id, func(p *core.Pipeline) error {
		return p.ClearRemovalOverride(id, param)
	})
}

func (s *PlantState) updateUnit(ctx context.Context, id uuid.UUID, fn func(p *core.Pipeline) error) (core.UnitView, error) {
	s.mu.Lock()
	p := s.engine.Pipeline
	if err := fn(p); err != nil {
		s.mu.Unlock()
		return core.UnitView{}, err
	}
	view, err := p.Lookup(id)
	units := p.Len()
	s.mu.Unlock()
	if err != nil {
		return core.UnitView{}, err
	}

	capitan.Emit(ctx, events.UnitUpdated,
		events.KeyUnitID.Field(id.String()),
		events.KeyUnitKind.Field(view.Kind.Key()),
		events.KeyIndex.Field(view.Index),
		events.KeyUnits.Field(units),
	)
	return view, nil
}

//
// ---------- Queries ----------
//

// Snapshot returns a coherent, detached view of the plant.
func (s *PlantState) Snapshot() PlantSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.engine.Pipeline
	return PlantSnapshot{
		Ticks:       p.Ticks(),
		Elapsed:     p.Elapsed(),
		Revision:    p.Revision(),
		Units:       p.Units(),
		Connections: p.Connections(),
		Influent:    p.Influent(),
		Effluent:    p.Effluent(),
	}
}

// Unit returns the view of one unit.
func (s *PlantState) Unit(id uuid.UUID) (core.UnitView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Pipeline.Lookup(id)
}

// Series returns the plant-wide history of param, most recent last.
func (s *PlantState) Series(param model.Parameter) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.History.Series(param)
}

// UnitSeries returns one unit's outlet history. It requires WithUnitHistory.
func (s *PlantState) UnitSeries(id uuid.UUID, param model.Parameter) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.History.UnitSeries(id, param)
}

// HistoryCapacity returns the current per-series capacity.
func (s *PlantState) HistoryCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.History.Capacity()
}

//
// ---------- Configuration ----------
//

// ApplyConfig rebuilds the plant from cfg. The new train is assembled off to
// the side and swapped in only if every step succeeds, so a bad config never
// leaves a half-built plant. The influent starts from the current influent
// with cfg.Influent overlaid. Tick count and elapsed time restart at zero.
func (s *PlantState) ApplyConfig(ctx context.Context, cfg *config.PlantConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	units, err := cfg.ResolveUnits()
	if err != nil {
		return err
	}

	next := core.NewPipeline()
	if cfg.Preset != "" {
		if err := next.LoadPreset(cfg.Preset); err != nil {
			return err
		}
	}
	for _, u := range units {
		if _, err := next.Append(u.Kind, u.Config); err != nil {
			return err
		}
	}

	s.mu.Lock()
	influent, err := s.engine.Pipeline.Influent().Overlay(cfg.Influent)
	if err == nil {
		err = next.SetInfluent(influent)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	history := s.engine.History
	if cfg.HistoryCapacity > 0 && cfg.HistoryCapacity != history.Capacity() {
		s.historyCapacity = cfg.HistoryCapacity
		history = s.newHistory(cfg.HistoryCapacity)
	}
	engine := core.NewSimulationEngine(next, history)
	for _, fn := range s.engine.TickListeners() {
		engine.RegisterTickListener(fn)
	}
	s.engine = engine
	count := next.Len()
	s.topologyChangedLocked(OpConfig)
	s.mu.Unlock()

	s.log.Info(ctx, "plant config applied",
		logging.String("preset", cfg.Preset),
		logging.Int("units", count),
		logging.Int("history_capacity", history.Capacity()),
	)
	return nil
}

func (s *PlantState) topologyChangedLocked(op string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncTopologyChange(op)
	s.updateMetricsLocked()
}

func (s *PlantState) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetUnitCount(s.engine.Pipeline.Len())
}

func joinKeys(values map[string]float32) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
