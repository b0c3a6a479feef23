package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidUnitKind indicates an unknown or non-insertable unit kind.
	ErrInvalidUnitKind = errors.New("invalid unit kind")
	// ErrInvalidEfficiency indicates a removal efficiency outside [-1, 1].
	ErrInvalidEfficiency = errors.New("removal efficiency must be within [-1, 1]")
	// ErrInvalidConfig indicates a unit configuration failed validation.
	ErrInvalidConfig = errors.New("invalid unit config")
)

// UnitKind tags the transfer function a process unit runs.
type UnitKind int

const (
	// Source is the plant inlet. It is never simulated; its outlet is the influent.
	Source UnitKind = iota
	// Sink is the plant outlet. It is never simulated; its inlet is the effluent.
	Sink

	PrimarySedimentationTank
	PrimaryClarifier
	AerationTank
	SecondaryClarifier
	ChlorineDisinfection
	UVDisinfection
	AnaerobicFilter
	SludgeDigester
	OilGreaseSeparator
	PhosphorusRemoval
	DryingBed
	Pump
	FlowMeter
	WaterSoftener
	ActivatedCarbonFilter
	HeatExchanger
	MetalsRemoval
	MembraneFiltrationUnit
	ReverseOsmosis
	CoagulationFlocculation
	MembraneFiltration
	ChemicalOxidation
	ActiveSludge
	NitrificationTank
	Biofilter
	Filtration
	MembraneBioreactor
	OzoneDisinfection
	AnaerobicAerobicFilter
	Electrocoagulation

	unitKindCount
)

type unitKindInfo struct {
	key         string
	name        string
	description string
}

var unitKindInfos = [unitKindCount]unitKindInfo{
	Source:                   {"inlet", "Inlet", "Entry point of wastewater into the system."},
	Sink:                     {"outlet", "Outlet", "Exit point of treated water from the system."},
	PrimarySedimentationTank: {"primary_sedimentation_tank", "Primary Sedimentation Tank", "Removes settleable solids and reduces BOD through sedimentation."},
	PrimaryClarifier:         {"primary_clarifier", "Primary Clarifier", "Removes settleable solids and oil & grease from wastewater."},
	AerationTank:             {"aeration_tank", "Aeration Tank", "Promotes microbial degradation of organic matter under aerobic conditions."},
	SecondaryClarifier:       {"secondary_clarifier", "Secondary Clarifier", "Settles out microbial biomass from the aeration tank."},
	ChlorineDisinfection:     {"chlorine_disinfection", "Chlorine Disinfection Unit", "Uses chlorine to disinfect water, killing remaining pathogens."},
	UVDisinfection:           {"uv_disinfection", "UV Disinfection", "Utilizes UV radiation to inactivate pathogens without chemical additives."},
	AnaerobicFilter:          {"anaerobic_filter", "Anaerobic Filter", "Employs anaerobic bacteria to degrade organic pollutants."},
	SludgeDigester:           {"sludge_digester", "Sludge Digester", "Reduces sludge volume and stabilizes organic content anaerobically."},
	OilGreaseSeparator:       {"oil_grease_separator", "Oil and Grease Separator", "Separates oils and greases from water by flotation mechanisms."},
	PhosphorusRemoval:        {"phosphorus_removal", "Phosphorus Removal Unit", "Eliminates phosphorus via chemical precipitation methods."},
	DryingBed:                {"drying_bed", "Drying Bed", "Allows for dewatering of sludge through evaporation and drainage."},
	Pump:                     {"pump", "Pump", "Boosts water pressure to facilitate flow through the treatment processes."},
	FlowMeter:                {"flow_meter", "Flow Meter", "Monitors the flow rate of water for system control and optimization."},
	WaterSoftener:            {"water_softener", "Water Softener", "Reduces water hardness by exchanging calcium and magnesium ions for sodium ions."},
	ActivatedCarbonFilter:    {"activated_carbon_filter", "Activated Carbon Filter", "Adsorbs organic pollutants, enhancing taste and odor quality."},
	HeatExchanger:            {"heat_exchanger", "Heat Exchanger", "Regulates water temperature for optimal treatment conditions."},
	MetalsRemoval:            {"metals_removal", "Metals Removal Unit", "Eliminates heavy metals to prevent toxicity in the environment."},
	MembraneFiltrationUnit:   {"membrane_filtration_unit", "Membrane Filtration Unit", "Uses microfiltration or ultrafiltration membranes for fine particle removal."},
	ReverseOsmosis:           {"reverse_osmosis", "Reverse Osmosis Unit", "Employs semi-permeable membranes to desalinate and purify water."},
	CoagulationFlocculation:  {"coagulation_flocculation", "Coagulation and Flocculation", "Destabilizes particles for subsequent removal of COD and TSS."},
	MembraneFiltration:       {"membrane_filtration", "Membrane Filtration", "Removes particles, pathogens, and COD through ultrafiltration membranes."},
	ChemicalOxidation:        {"chemical_oxidation", "Chemical Oxidation", "Applies strong oxidants to degrade organic pollutants and color."},
	ActiveSludge:             {"active_sludge", "Active Sludge Process", "Biological treatment to remove BOD, COD, and TSS through aeration and sedimentation."},
	NitrificationTank:        {"nitrification_tank", "Nitrification Tank", "Biological process to convert ammonium to nitrate through nitrification."},
	Biofilter:                {"biofilter", "Biofilter", "Biological treatment system to remove BOD, COD, and NH₄⁺ from wastewater."},
	Filtration:               {"filtration", "Filtration", "Removes suspended solids and turbidity from wastewater."},
	MembraneBioreactor:       {"membrane_bioreactor", "Membrane Bioreactor", "Membrane bioreactor, bacteria and protozoa remove contaminants."},
	OzoneDisinfection:        {"ozone_disinfection", "Ozone Disinfection", "Removes pathogens and oxidizes contaminants using ozone."},
	AnaerobicAerobicFilter:   {"anaerobic_aerobic_filter", "Anaerobic-Aerobic Filter", "Biological treatment system to remove BOD, COD, and NH₄⁺ from wastewater."},
	Electrocoagulation:       {"electrocoagulation", "Electrocoagulation Unit", "Removes metals and suspended solids, changes EC and pH of wastewater."},
}

// UnitKinds returns every treatment kind that can be inserted into a
// pipeline, i.e. all kinds except Source and Sink.
func UnitKinds() []UnitKind {
	out := make([]UnitKind, 0, int(unitKindCount)-2)
	for k := PrimarySedimentationTank; k < unitKindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a known kind, including Source and Sink.
func (k UnitKind) Valid() bool {
	return k >= 0 && k < unitKindCount
}

// Insertable reports whether k may be placed between Source and Sink.
func (k UnitKind) Insertable() bool {
	return k.Valid() && k != Source && k != Sink
}

// Key returns the snake_case identifier used in configs and on the wire.
func (k UnitKind) Key() string {
	if !k.Valid() {
		return fmt.Sprintf("unit_kind(%d)", int(k))
	}
	return unitKindInfos[k].key
}

// String returns the display name, e.g. "Aeration Tank".
func (k UnitKind) String() string {
	if !k.Valid() {
		return k.Key()
	}
	return unitKindInfos[k].name
}

// Description returns the one-line process description shown to operators.
func (k UnitKind) Description() string {
	if !k.Valid() {
		return ""
	}
	return unitKindInfos[k].description
}

// ParseUnitKind accepts either a key ("aeration_tank") or a display name
// ("Aeration Tank"), case-insensitively.
func ParseUnitKind(s string) (UnitKind, error) {
	trimmed := strings.TrimSpace(s)
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(trimmed))
	for k := UnitKind(0); k < unitKindCount; k++ {
		info := unitKindInfos[k]
		if info.key == norm || strings.EqualFold(info.name, trimmed) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidUnitKind, s)
}

// UnitConfig carries the per-unit operating knobs.
type UnitConfig struct {
	VolumeM3      float32 `json:"volume_m3"`
	FlowRateM3Day float32 `json:"flow_rate_m3_day"`
	HRTHours      float32 `json:"hrt_hours"`
	SRTDays       float32 `json:"srt_days"`
	TemperatureC  float32 `json:"temperature_c"`

	// RemovalOverrides replaces the built-in result for a parameter with
	// inlet*(1-efficiency). Negative efficiencies increase the parameter.
	RemovalOverrides map[Parameter]float32 `json:"removal_overrides,omitempty"`
}

// DefaultUnitConfig returns the stock configuration for a new unit.
func DefaultUnitConfig() UnitConfig {
	return UnitConfig{
		VolumeM3:      1000,
		FlowRateM3Day: 100,
		HRTHours:      10,
		SRTDays:       20,
		TemperatureC:  20,
	}
}

// DefaultConfigFor returns the stock configuration for kind. Heat exchangers
// are shipped with a 25 °C setpoint.
func DefaultConfigFor(kind UnitKind) UnitConfig {
	cfg := DefaultUnitConfig()
	if kind == HeatExchanger {
		cfg.TemperatureC = 25
	}
	return cfg
}

// Clone returns a deep copy so callers never share the overrides map.
func (c UnitConfig) Clone() UnitConfig {
	out := c
	if c.RemovalOverrides != nil {
		out.RemovalOverrides = make(map[Parameter]float32, len(c.RemovalOverrides))
		for p, eff := range c.RemovalOverrides {
			out.RemovalOverrides[p] = eff
		}
	}
	return out
}

// Override returns the removal efficiency override for p, if any.
func (c UnitConfig) Override(p Parameter) (float32, bool) {
	eff, ok := c.RemovalOverrides[p]
	return eff, ok
}

// SetOverride records a removal efficiency override for p.
func (c *UnitConfig) SetOverride(p Parameter, efficiency float32) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidParameter, int(p))
	}
	if efficiency < -1 || efficiency > 1 || !IsFinite(efficiency) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidEfficiency, p, efficiency)
	}
	if c.RemovalOverrides == nil {
		c.RemovalOverrides = make(map[Parameter]float32)
	}
	c.RemovalOverrides[p] = efficiency
	return nil
}

// ClearOverride drops any override for p; the built-in formula applies again.
func (c *UnitConfig) ClearOverride(p Parameter) {
	delete(c.RemovalOverrides, p)
	if len(c.RemovalOverrides) == 0 {
		c.RemovalOverrides = nil
	}
}

// Validate checks that the physical knobs are finite and non-negative, the
// operating temperature is finite and every override is within range.
func (c UnitConfig) Validate() error {
	checks := []struct {
		name  string
		value float32
	}{
		{"volume_m3", c.VolumeM3},
		{"flow_rate_m3_day", c.FlowRateM3Day},
		{"hrt_hours", c.HRTHours},
		{"srt_days", c.SRTDays},
	}
	for _, chk := range checks {
		if chk.value < 0 || !IsFinite(chk.value) {
			return fmt.Errorf("%w: %s must be finite and non-negative, got %v", ErrInvalidConfig, chk.name, chk.value)
		}
	}
	if !IsFinite(c.TemperatureC) {
		return fmt.Errorf("%w: temperature_c must be finite, got %v", ErrInvalidConfig, c.TemperatureC)
	}
	for p, eff := range c.RemovalOverrides {
		if !p.Valid() {
			return fmt.Errorf("%w: override for %w", ErrInvalidConfig, ErrInvalidParameter)
		}
		if eff < -1 || eff > 1 || !IsFinite(eff) {
			return fmt.Errorf("%w: %w: %s=%v", ErrInvalidConfig, ErrInvalidEfficiency, p, eff)
		}
	}
	return nil
}
