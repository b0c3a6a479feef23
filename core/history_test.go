package core

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

func TestHistoryStore_DefaultRecordsEveryOutlet(t *testing.T) {
	p := NewPipeline()
	if _, err := p.Append(model.AerationTank, model.DefaultUnitConfig()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h := NewHistoryStore()
	if h.Mode() != RecordAllOutlets {
		t.Fatalf("Mode() = %v, want RecordAllOutlets", h.Mode())
	}

	p.Step(time.Second)
	h.Record(p)
	units := p.Units()
	for _, param := range model.Parameters() {
		got := h.Series(param)
		if len(got) != len(units) {
			t.Fatalf("len(Series(%s)) = %d after one Record, want %d", param, len(got), len(units))
		}
	}
	got := h.Series(model.BOD)
	want := []float32{
		units[0].Outlet.Get(model.BOD),
		units[1].Outlet.Get(model.BOD),
		units[2].Inlet.Get(model.BOD),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Series(BOD) = %v, want %v", got, want)
		}
	}
	if got[1] >= got[0] {
		t.Fatalf("aeration outlet BOD %v not below influent %v", got[1], got[0])
	}
}

func TestHistoryStore_EvictsOldestAtCapacity(t *testing.T) {
	p := NewPipeline()
	h := NewHistoryStore(WithCapacity(5), WithRecordMode(RecordEffluent))

	for i := 0; i < 8; i++ {
		if err := p.SetInfluentParameter(model.BOD, float32(i)); err != nil {
			t.Fatalf("SetInfluentParameter: %v", err)
		}
		p.Step(time.Second)
		h.Record(p)
	}

	got := h.Series(model.BOD)
	want := []float32{3, 4, 5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("len(Series) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Series(BOD) = %v, want %v", got, want)
		}
	}
}

func TestHistoryStore_DefaultCapacityBound(t *testing.T) {
	p := NewPipeline()
	if err := p.LoadPreset(DefaultPreset); err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}
	h := NewHistoryStore()
	if h.Capacity() != DefaultHistoryCapacity {
		t.Fatalf("Capacity() = %d, want %d", h.Capacity(), DefaultHistoryCapacity)
	}

	for i := 0; i < DefaultHistoryCapacity+17; i++ {
		p.Step(time.Second)
		h.Record(p)
	}
	for _, param := range model.Parameters() {
		if n := len(h.Series(param)); n != DefaultHistoryCapacity {
			t.Fatalf("len(Series(%s)) = %d, want %d", param, n, DefaultHistoryCapacity)
		}
	}
	if last := h.Series(model.TSS); last[len(last)-1] != p.Effluent().Get(model.TSS) {
		t.Fatalf("most recent TSS %v != current effluent %v", last[len(last)-1], p.Effluent().Get(model.TSS))
	}
}

func TestHistoryStore_SeriesIsACopy(t *testing.T) {
	p := NewPipeline()
	h := NewHistoryStore(WithCapacity(3))
	p.Step(time.Second)
	h.Record(p)

	s := h.Series(model.COD)
	s[0] = -1
	if h.Series(model.COD)[0] == -1 {
		t.Fatalf("Series returned shared storage")
	}
	if h.Series(model.Parameter(-1)) != nil {
		t.Fatalf("Series(invalid) should be nil")
	}

	h.Clear()
	if n := len(h.Series(model.COD)); n != 0 {
		t.Fatalf("len(Series) after Clear = %d, want 0", n)
	}
}

func TestHistoryStore_UnitSeries(t *testing.T) {
	p := NewPipeline()
	clarifier, _ := p.Append(model.PrimaryClarifier, model.DefaultUnitConfig())
	h := NewHistoryStore(WithCapacity(10), WithUnitSeries())

	p.Step(time.Second)
	h.Record(p)

	tss, err := h.UnitSeries(clarifier, model.TSS)
	if err != nil {
		t.Fatalf("UnitSeries: %v", err)
	}
	if len(tss) != 1 || tss[0] != 60 {
		t.Fatalf("clarifier TSS series = %v, want [60]", tss)
	}

	sink, err := h.UnitSeries(p.SinkID(), model.TSS)
	if err != nil || sink[0] != p.Effluent().Get(model.TSS) {
		t.Fatalf("sink series = %v, %v", sink, err)
	}

	if err := p.RemoveUnit(clarifier); err != nil {
		t.Fatalf("RemoveUnit: %v", err)
	}
	p.Step(time.Second)
	h.Record(p)
	if _, err := h.UnitSeries(clarifier, model.TSS); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("UnitSeries(removed) error = %v, want ErrUnknownUnit", err)
	}
	if _, err := h.UnitSeries(uuid.New(), model.Parameter(40)); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("UnitSeries(bad param) error = %v, want ErrInvalidParameter", err)
	}
}

func TestHistoryStore_RecordAllOutlets(t *testing.T) {
	p := NewPipeline()
	if _, err := p.Append(model.PrimaryClarifier, model.DefaultUnitConfig()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h := NewHistoryStore(WithCapacity(7), WithRecordMode(RecordAllOutlets))
	if h.Mode() != RecordAllOutlets {
		t.Fatalf("Mode() = %v, want RecordAllOutlets", h.Mode())
	}

	p.Step(time.Second)
	h.Record(p)
	got := h.Series(model.TSS)
	want := []float32{200, 60, 60}
	if len(got) != len(want) {
		t.Fatalf("Series(TSS) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Series(TSS) = %v, want %v", got, want)
		}
	}

	p.Step(time.Second)
	h.Record(p)
	p.Step(time.Second)
	h.Record(p)
	got = h.Series(model.TSS)
	if len(got) != 7 {
		t.Fatalf("len(Series) = %d, want capacity 7", len(got))
	}
	if got[6] != 60 {
		t.Fatalf("most recent TSS = %v, want effluent 60", got[6])
	}
}

func TestHistoryStore_WithoutUnitSeries(t *testing.T) {
	p := NewPipeline()
	h := NewHistoryStore()
	p.Step(time.Second)
	h.Record(p)
	if h.TracksUnits() {
		t.Fatalf("TracksUnits() = true without WithUnitSeries")
	}
	if _, err := h.UnitSeries(p.SourceID(), model.BOD); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("UnitSeries error = %v, want ErrUnknownUnit", err)
	}
}

func TestSimulationEngine_TickRecordsAndNotifies(t *testing.T) {
	se := NewSimulationEngine(nil, NewHistoryStore(WithCapacity(4)))
	if err := se.Pipeline.LoadPreset("membrane"); err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}

	var seen []uint64
	se.RegisterTickListener(func(tick uint64) { seen = append(seen, tick) })
	se.Run(6, time.Minute)

	if len(seen) != 6 || seen[0] != 1 || seen[5] != 6 {
		t.Fatalf("listener ticks = %v, want 1..6", seen)
	}
	listeners := se.TickListeners()
	if len(listeners) != 1 {
		t.Fatalf("len(TickListeners()) = %d, want 1", len(listeners))
	}
	listeners[0] = nil
	if se.TickListeners()[0] == nil {
		t.Fatalf("TickListeners returned shared storage")
	}
	if n := len(se.History.Series(model.Pathogens)); n != 4 {
		t.Fatalf("len(Series) = %d, want 4", n)
	}
	if se.Pipeline.Elapsed() != 6*time.Minute {
		t.Fatalf("Elapsed() = %v, want 6m", se.Pipeline.Elapsed())
	}
}
