package state

import (
	"context"
	"testing"

	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

func newPlantStateForTest(t *testing.T, opts ...PlantStateOption) *PlantState {
	t.Helper()
	s := NewPlantState(logging.Noop(), opts...)
	if err := s.LoadPreset(context.Background(), "default"); err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}
	return s
}

func unitNames(s *PlantState) []string {
	snap := s.Snapshot()
	out := make([]string, 0, len(snap.Units))
	for _, u := range snap.Units {
		out = append(out, u.Name)
	}
	return out
}

func kindsOf(s *PlantState) []model.UnitKind {
	snap := s.Snapshot()
	out := make([]model.UnitKind, 0, len(snap.Units))
	for _, u := range snap.Units {
		out = append(out, u.Kind)
	}
	return out
}
