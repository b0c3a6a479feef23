package state

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

func TestPlantStateStepRecordsHistory(t *testing.T) {
	s := newPlantStateForTest(t, WithHistoryCapacity(5))
	ctx := context.Background()

	var effluent model.WaterSample
	for i := 0; i < 8; i++ {
		effluent = s.Step(ctx, time.Minute)
	}

	snap := s.Snapshot()
	if snap.Ticks != 8 || snap.Elapsed != 8*time.Minute {
		t.Fatalf("Ticks=%d Elapsed=%v, want 8 and 8m", snap.Ticks, snap.Elapsed)
	}
	if snap.Effluent != effluent {
		t.Fatalf("Snapshot effluent differs from Step result")
	}
	series := s.Series(model.BOD)
	if len(series) != 5 {
		t.Fatalf("len(Series) = %d, want 5", len(series))
	}
	if series[4] != effluent.Get(model.BOD) {
		t.Fatalf("latest BOD %v != effluent %v", series[4], effluent.Get(model.BOD))
	}
	if s.HistoryCapacity() != 5 {
		t.Fatalf("HistoryCapacity() = %d, want 5", s.HistoryCapacity())
	}
}

func TestPlantStateRunStopsOnCancel(t *testing.T) {
	s := newPlantStateForTest(t)

	done, err := s.Run(context.Background(), 12, time.Second)
	if err != nil || done != 12 {
		t.Fatalf("Run = %d, %v; want 12, nil", done, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done, err = s.Run(ctx, 5, time.Second)
	if !errors.Is(err, context.Canceled) || done != 0 {
		t.Fatalf("cancelled Run = %d, %v; want 0, context.Canceled", done, err)
	}
}

func TestPlantStateTopology(t *testing.T) {
	s := newPlantStateForTest(t)
	ctx := context.Background()
	before := unitNames(s)

	view, err := s.InsertUnit(ctx, model.ReverseOsmosis, model.DefaultUnitConfig(), 3)
	if err != nil {
		t.Fatalf("InsertUnit: %v", err)
	}
	if view.Index != 3 || view.Kind != model.ReverseOsmosis {
		t.Fatalf("inserted view = %+v", view)
	}

	removed, err := s.RemoveUnit(ctx, 3)
	if err != nil {
		t.Fatalf("RemoveUnit: %v", err)
	}
	if removed.ID != view.ID {
		t.Fatalf("removed %s, want %s", removed.ID, view.ID)
	}
	if got := unitNames(s); !slices.Equal(got, before) {
		t.Fatalf("names after insert+remove = %v, want %v", got, before)
	}

	if _, err := s.RemoveUnit(ctx, 0); !errors.Is(err, core.ErrInvalidIndex) {
		t.Fatalf("RemoveUnit(0) error = %v, want ErrInvalidIndex", err)
	}
	if _, err := s.InsertUnit(ctx, model.Pump, model.DefaultUnitConfig(), 0); !errors.Is(err, core.ErrInvalidIndex) {
		t.Fatalf("InsertUnit(0) error = %v, want ErrInvalidIndex", err)
	}
	if _, err := s.RemoveUnitByID(ctx, view.ID); !errors.Is(err, core.ErrUnknownUnit) {
		t.Fatalf("RemoveUnitByID(stale) error = %v, want ErrUnknownUnit", err)
	}

	appended, err := s.AppendUnit(ctx, model.FlowMeter, model.DefaultUnitConfig())
	if err != nil {
		t.Fatalf("AppendUnit: %v", err)
	}
	snap := s.Snapshot()
	if snap.Units[len(snap.Units)-2].ID != appended.ID {
		t.Fatalf("appended unit is not immediately before the outlet")
	}

	s.Reset(ctx)
	if got := kindsOf(s); !slices.Equal(got, []model.UnitKind{model.Source, model.Sink}) {
		t.Fatalf("kinds after Reset = %v", got)
	}
	if err := s.LoadPreset(ctx, "sewer-lagoon"); !errors.Is(err, core.ErrUnknownPreset) {
		t.Fatalf("LoadPreset(unknown) error = %v, want ErrUnknownPreset", err)
	}
}

func TestPlantStateInfluentEditing(t *testing.T) {
	s := NewPlantState(nil)
	ctx := context.Background()

	if err := s.SetInfluentParameter(ctx, model.COD, 900); err != nil {
		t.Fatalf("SetInfluentParameter: %v", err)
	}
	if err := s.SetInfluentParameter(ctx, model.COD, -1); !errors.Is(err, core.ErrInvalidValue) {
		t.Fatalf("negative COD error = %v, want ErrInvalidValue", err)
	}

	next, err := s.OverlayInfluent(ctx, map[string]float32{"tss": 400, "ph": 7.2}, "test")
	if err != nil {
		t.Fatalf("OverlayInfluent: %v", err)
	}
	if next.Get(model.TSS) != 400 || next.Get(model.COD) != 900 {
		t.Fatalf("overlay result = %v", next.Map())
	}

	if _, err := s.OverlayInfluent(ctx, map[string]float32{"tss": 1, "bogus": 2}, "test"); !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("bad overlay error = %v, want ErrInvalidParameter", err)
	}
	if got := s.Snapshot().Influent.Get(model.TSS); got != 400 {
		t.Fatalf("failed overlay partially applied: TSS = %v", got)
	}

	sample := model.DefaultInfluent()
	sample.Set(model.Hardness, 90)
	if err := s.SetInfluent(ctx, sample); err != nil {
		t.Fatalf("SetInfluent: %v", err)
	}
	s.Step(ctx, time.Second)
	if got := s.Snapshot().Effluent.Get(model.Hardness); got != 90 {
		t.Fatalf("empty plant effluent hardness = %v, want 90", got)
	}
}

func TestPlantStateUnitUpdates(t *testing.T) {
	s := NewPlantState(nil)
	ctx := context.Background()
	view, err := s.AppendUnit(ctx, model.AerationTank, model.DefaultUnitConfig())
	if err != nil {
		t.Fatalf("AppendUnit: %v", err)
	}

	updated, err := s.SetRemovalOverride(ctx, view.ID, model.BOD, 0.5)
	if err != nil {
		t.Fatalf("SetRemovalOverride: %v", err)
	}
	if eff, ok := updated.Config.Override(model.BOD); !ok || eff != 0.5 {
		t.Fatalf("override not visible in view: %v %v", eff, ok)
	}
	if got := s.Step(ctx, time.Second).Get(model.BOD); got != 150 {
		t.Fatalf("BOD = %v, want 150", got)
	}

	if _, err := s.SetRemovalOverride(ctx, view.ID, model.BOD, 3); !errors.Is(err, model.ErrInvalidEfficiency) {
		t.Fatalf("efficiency 3 error = %v, want ErrInvalidEfficiency", err)
	}
	if _, err := s.ClearRemovalOverride(ctx, view.ID, model.BOD); err != nil {
		t.Fatalf("ClearRemovalOverride: %v", err)
	}

	cfg := model.DefaultUnitConfig()
	cfg.HRTHours = 20
	updated, err = s.UpdateUnitConfig(ctx, view.ID, cfg)
	if err != nil {
		t.Fatalf("UpdateUnitConfig: %v", err)
	}
	if updated.Config.HRTHours != 20 {
		t.Fatalf("HRTHours = %v, want 20", updated.Config.HRTHours)
	}
	if _, err := s.UpdateUnitConfig(ctx, uuid.New(), cfg); !errors.Is(err, core.ErrUnknownUnit) {
		t.Fatalf("UpdateUnitConfig(unknown) error = %v, want ErrUnknownUnit", err)
	}
}

func TestPlantStateModifyUnitConfig(t *testing.T) {
	s := newPlantStateForTest(t)
	ctx := context.Background()
	id := s.Snapshot().Units[3].ID

	view, err := s.ModifyUnitConfig(ctx, id, func(cfg *model.UnitConfig) error {
		cfg.HRTHours = 4
		return cfg.SetOverride(model.BOD, 0.5)
	})
	if err != nil {
		t.Fatalf("ModifyUnitConfig: %v", err)
	}
	if view.Config.HRTHours != 4 {
		t.Fatalf("HRTHours = %v, want 4", view.Config.HRTHours)
	}
	if eff, ok := view.Config.Override(model.BOD); !ok || eff != 0.5 {
		t.Fatalf("Override(BOD) = %v, %v", eff, ok)
	}

	editErr := errors.New("stop")
	if _, err := s.ModifyUnitConfig(ctx, id, func(cfg *model.UnitConfig) error {
		cfg.HRTHours = 99
		return editErr
	}); !errors.Is(err, editErr) {
		t.Fatalf("ModifyUnitConfig error = %v, want edit error", err)
	}
	if _, err := s.ModifyUnitConfig(ctx, id, func(cfg *model.UnitConfig) error {
		cfg.VolumeM3 = -1
		return nil
	}); !errors.Is(err, model.ErrInvalidConfig) {
		t.Fatalf("ModifyUnitConfig(invalid) error = %v, want ErrInvalidConfig", err)
	}
	got, err := s.Unit(id)
	if err != nil {
		t.Fatalf("Unit: %v", err)
	}
	if got.Config.HRTHours != 4 || got.Config.VolumeM3 != 1000 {
		t.Fatalf("failed edits leaked into config: %+v", got.Config)
	}

	if _, err := s.ModifyUnitConfig(ctx, uuid.New(), func(*model.UnitConfig) error { return nil }); !errors.Is(err, core.ErrUnknownUnit) {
		t.Fatalf("ModifyUnitConfig(unknown) error = %v, want ErrUnknownUnit", err)
	}
}

func TestPlantStateUnitHistory(t *testing.T) {
	s := NewPlantState(nil, WithUnitHistory(), WithHistoryCapacity(3))
	ctx := context.Background()
	view, err := s.AppendUnit(ctx, model.SecondaryClarifier, model.DefaultUnitConfig())
	if err != nil {
		t.Fatalf("AppendUnit: %v", err)
	}
	for i := 0; i < 4; i++ {
		s.Step(ctx, time.Second)
	}
	series, err := s.UnitSeries(view.ID, model.TSS)
	if err != nil {
		t.Fatalf("UnitSeries: %v", err)
	}
	if len(series) != 3 || series[2] != 30 {
		t.Fatalf("clarifier TSS series = %v, want 3 values ending in 30", series)
	}
}

func TestPlantStateRecordAllOutlets(t *testing.T) {
	s := NewPlantState(nil, WithRecordMode(core.RecordAllOutlets), WithHistoryCapacity(100))
	ctx := context.Background()
	if _, err := s.AppendUnit(ctx, model.SecondaryClarifier, model.DefaultUnitConfig()); err != nil {
		t.Fatalf("AppendUnit: %v", err)
	}
	s.Step(ctx, time.Second)
	s.Step(ctx, time.Second)

	series := s.Series(model.TSS)
	want := []float32{200, 30, 30, 200, 30, 30}
	if !slices.Equal(series, want) {
		t.Fatalf("Series(TSS) = %v, want %v", series, want)
	}
}

func TestPlantStateApplyConfig(t *testing.T) {
	s := newPlantStateForTest(t)
	ctx := context.Background()
	if err := s.SetInfluentParameter(ctx, model.Sulfates, 120); err != nil {
		t.Fatalf("SetInfluentParameter: %v", err)
	}
	s.Step(ctx, time.Second)

	cfg, err := config.Parse([]byte(`{
		"units": [{"kind": "pump"}, {"kind": "reverse_osmosis"}],
		"influent": {"salinity": 3},
		"history_capacity": 7
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := s.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	want := []model.UnitKind{model.Source, model.Pump, model.ReverseOsmosis, model.Sink}
	if got := kindsOf(s); !slices.Equal(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	snap := s.Snapshot()
	if snap.Influent.Get(model.Salinity) != 3 || snap.Influent.Get(model.Sulfates) != 120 {
		t.Fatalf("influent = %v", snap.Influent.Map())
	}
	if snap.Ticks != 0 {
		t.Fatalf("Ticks = %d after config, want 0", snap.Ticks)
	}
	if s.HistoryCapacity() != 7 {
		t.Fatalf("HistoryCapacity() = %d, want 7", s.HistoryCapacity())
	}

	bad := &config.PlantConfig{Units: []config.UnitEntry{{Kind: "pump"}, {Kind: "time_machine"}}}
	if err := s.ApplyConfig(ctx, bad); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("bad config error = %v, want ErrInvalidConfig", err)
	}
	if got := kindsOf(s); !slices.Equal(got, want) {
		t.Fatalf("rejected config changed the plant: %v", got)
	}
}

func TestPlantStateTickListenersSurviveConfig(t *testing.T) {
	s := NewPlantState(nil)
	ctx := context.Background()

	var ticks []uint64
	s.RegisterTickListener(func(tick uint64) { ticks = append(ticks, tick) })
	s.Step(ctx, time.Second)

	if err := s.ApplyConfig(ctx, &config.PlantConfig{Preset: "membrane"}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	s.Step(ctx, time.Second)

	if !slices.Equal(ticks, []uint64{1, 1}) {
		t.Fatalf("listener ticks = %v, want [1 1]", ticks)
	}
}
