package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParameter indicates a Parameter outside the closed enumeration.
var ErrInvalidParameter = errors.New("invalid water parameter")

// Parameter identifies one water-quality measure tracked by a WaterSample.
type Parameter int

const (
	// BOD is the biochemical oxygen demand (mg/L).
	BOD Parameter = iota
	// COD is the chemical oxygen demand (mg/L).
	COD
	// TSS is total suspended solids (mg/L).
	TSS
	// NH4 is ammonium (mg/L).
	NH4
	// NO3 is nitrate (mg/L).
	NO3
	// PH is the pH level.
	PH
	// Phosphorus is total phosphorus (mg/L).
	Phosphorus
	// OilGrease is oils and greases (mg/L).
	OilGrease
	// DissolvedOxygen is dissolved oxygen (mg/L).
	DissolvedOxygen
	// Temperature is the water temperature (°C).
	Temperature
	// Pathogens is the pathogen count (CFU/mL).
	Pathogens
	// Salinity is salinity (ppt).
	Salinity
	// Turbidity is turbidity (NTU).
	Turbidity
	// Conductivity is electrical conductivity (µS/cm).
	Conductivity
	// Alkalinity is alkalinity (mg CaCO3/L).
	Alkalinity
	// ResidualChlorine is residual chlorine (mg/L).
	ResidualChlorine
	// Hardness is total hardness (mg CaCO3/L).
	Hardness
	// Sulfates is sulfates (mg/L).
	Sulfates
	// Chlorides is chlorides (mg/L).
	Chlorides
	// HeavyMetals is heavy metals (mg/L).
	HeavyMetals

	parameterCount
)

// ParameterCount is the number of parameters in every WaterSample.
const ParameterCount = int(parameterCount)

type parameterInfo struct {
	key   string
	label string
	unit  string
}

var parameterInfos = [parameterCount]parameterInfo{
	BOD:              {key: "bod", label: "BOD", unit: "mg/L"},
	COD:              {key: "cod", label: "COD", unit: "mg/L"},
	TSS:              {key: "tss", label: "TSS", unit: "mg/L"},
	NH4:              {key: "nh4", label: "NH₄⁺", unit: "mg/L"},
	NO3:              {key: "no3", label: "NO₃⁻", unit: "mg/L"},
	PH:               {key: "ph", label: "pH"},
	Phosphorus:       {key: "phosphorus", label: "Total Phosphorus", unit: "mg/L"},
	OilGrease:        {key: "oil_grease", label: "Oils and Greases", unit: "mg/L"},
	DissolvedOxygen:  {key: "dissolved_oxygen", label: "Dissolved Oxygen", unit: "mg/L"},
	Temperature:      {key: "temperature", label: "Temperature", unit: "°C"},
	Pathogens:        {key: "pathogens", label: "Pathogens", unit: "CFU/mL"},
	Salinity:         {key: "salinity", label: "Salinity", unit: "ppt"},
	Turbidity:        {key: "turbidity", label: "Turbidity", unit: "NTU"},
	Conductivity:     {key: "conductivity", label: "Electrical Conductivity", unit: "µS/cm"},
	Alkalinity:       {key: "alkalinity", label: "Alkalinity", unit: "mg CaCO₃/L"},
	ResidualChlorine: {key: "residual_chlorine", label: "Residual Chlorine", unit: "mg/L"},
	Hardness:         {key: "hardness", label: "Total Hardness", unit: "mg CaCO₃/L"},
	Sulfates:         {key: "sulfates", label: "Sulfates", unit: "mg/L"},
	Chlorides:        {key: "chlorides", label: "Chlorides", unit: "mg/L"},
	HeavyMetals:      {key: "heavy_metals", label: "Heavy Metals", unit: "mg/L"},
}

// Parameters returns every parameter in enumeration order.
func Parameters() []Parameter {
	out := make([]Parameter, 0, ParameterCount)
	for p := Parameter(0); p < parameterCount; p++ {
		out = append(out, p)
	}
	return out
}

// Valid reports whether p belongs to the enumeration.
func (p Parameter) Valid() bool {
	return p >= 0 && p < parameterCount
}

// String returns the stable snake_case key used in configs and on the wire.
func (p Parameter) String() string {
	if !p.Valid() {
		return fmt.Sprintf("parameter(%d)", int(p))
	}
	return parameterInfos[p].key
}

// Unit returns the measurement unit, or "" for dimensionless parameters.
func (p Parameter) Unit() string {
	if !p.Valid() {
		return ""
	}
	return parameterInfos[p].unit
}

// Label returns a human-readable name including the unit, e.g. "BOD (mg/L)".
func (p Parameter) Label() string {
	if !p.Valid() {
		return p.String()
	}
	info := parameterInfos[p]
	if info.unit == "" {
		return info.label
	}
	return info.label + " (" + info.unit + ")"
}

// IsConcentration reports whether the parameter is a physical quantity that
// can never be negative. pH and temperature are the only exceptions.
func (p Parameter) IsConcentration() bool {
	return p.Valid() && p != PH && p != Temperature
}

// ParseParameter resolves a key such as "bod" or "dissolved_oxygen".
// Matching is case-insensitive and accepts '-' or ' ' in place of '_'.
func ParseParameter(s string) (Parameter, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	for p := Parameter(0); p < parameterCount; p++ {
		if parameterInfos[p].key == norm {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidParameter, s)
}

// MarshalText implements encoding.TextMarshaler so Parameters can key JSON maps.
func (p Parameter) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidParameter, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Parameter) UnmarshalText(text []byte) error {
	parsed, err := ParseParameter(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
