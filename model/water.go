package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// WaterSample holds one value per Parameter. It is a plain value: assigning
// or passing a WaterSample copies it, so no two units ever share storage.
type WaterSample struct {
	values [parameterCount]float32
}

// DefaultInfluent returns the baseline raw-wastewater profile.
func DefaultInfluent() WaterSample {
	var w WaterSample
	w.values = [parameterCount]float32{
		BOD:              300,
		COD:              600,
		TSS:              200,
		NH4:              50,
		NO3:              5,
		PH:               6.5,
		Phosphorus:       10,
		OilGrease:        30,
		DissolvedOxygen:  2,
		Temperature:      20,
		Pathogens:        1e6,
		Salinity:         0.5,
		Turbidity:        50,
		Conductivity:     1500,
		Alkalinity:       200,
		ResidualChlorine: 0,
		Hardness:         250,
		Sulfates:         80,
		Chlorides:        100,
		HeavyMetals:      5,
	}
	return w
}

// Get returns the value of p. An out-of-range Parameter is a programming
// error and panics.
func (w WaterSample) Get(p Parameter) float32 {
	mustValid(p)
	return w.values[p]
}

// Set overwrites the value of p. Callers are responsible for keeping
// concentration values non-negative.
func (w *WaterSample) Set(p Parameter, v float32) {
	mustValid(p)
	w.values[p] = v
}

// Map returns the sample keyed by parameter key, for display and encoding.
func (w WaterSample) Map() map[string]float32 {
	out := make(map[string]float32, ParameterCount)
	for p := Parameter(0); p < parameterCount; p++ {
		out[p.String()] = w.values[p]
	}
	return out
}

// Overlay returns a copy of w with every entry of values applied on top.
// Keys are parameter keys as accepted by ParseParameter.
func (w WaterSample) Overlay(values map[string]float32) (WaterSample, error) {
	out := w
	for key, v := range values {
		p, err := ParseParameter(key)
		if err != nil {
			return w, err
		}
		out.values[p] = v
	}
	return out, nil
}

// MarshalJSON encodes the sample as an object keyed by parameter key.
func (w WaterSample) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Map())
}

// UnmarshalJSON overlays the decoded keys onto the receiver, so a partial
// object only changes the parameters it names.
func (w *WaterSample) UnmarshalJSON(data []byte) error {
	var raw map[string]float32
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next, err := w.Overlay(raw)
	if err != nil {
		return err
	}
	*w = next
	return nil
}

func mustValid(p Parameter) {
	if !p.Valid() {
		panic(fmt.Errorf("%w: %d", ErrInvalidParameter, int(p)))
	}
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
