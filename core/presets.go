package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/signalsfoundry/wastewater-simulator/model"
)

// DefaultPreset is the conventional municipal train loaded at startup.
const DefaultPreset = "default"

var presets = map[string][]model.UnitKind{
	DefaultPreset: {
		model.PrimaryClarifier,
		model.PrimarySedimentationTank,
		model.AerationTank,
		model.ActiveSludge,
		model.NitrificationTank,
		model.SecondaryClarifier,
		model.ChlorineDisinfection,
		model.Filtration,
	},
	"membrane": {
		model.Pump,
		model.PrimaryClarifier,
		model.MembraneBioreactor,
		model.NitrificationTank,
		model.MembraneFiltrationUnit,
		model.UVDisinfection,
		model.FlowMeter,
	},
	"industrial": {
		model.OilGreaseSeparator,
		model.CoagulationFlocculation,
		model.Electrocoagulation,
		model.MetalsRemoval,
		model.PhosphorusRemoval,
		model.ChemicalOxidation,
		model.ActivatedCarbonFilter,
		model.WaterSoftener,
		model.ReverseOsmosis,
		model.OzoneDisinfection,
	},
}

// Presets returns the names of every built-in preset, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetKinds returns the unit kinds of a preset in chain order.
func PresetKinds(name string) ([]model.UnitKind, error) {
	kinds, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return slices.Clone(kinds), nil
}
