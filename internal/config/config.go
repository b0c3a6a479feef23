// Package config loads and validates plant configuration files.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/model"
)

// ErrInvalidConfig indicates a plant configuration that failed to decode or
// validate.
var ErrInvalidConfig = errors.New("invalid plant config")

// UnitEntry names one treatment unit by kind key or display name. A nil
// Config takes the kind's defaults.
type UnitEntry struct {
	Kind   string            `json:"kind"`
	Config *model.UnitConfig `json:"config,omitempty"`
}

// UnmarshalJSON decodes a partial config object over the kind's defaults,
// so {"hrt_hours": 6} only changes the retention time.
func (e *UnitEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind   string          `json:"kind"`
		Config json.RawMessage `json:"config"`
	}
	if err := strictDecode(data, &raw); err != nil {
		return err
	}
	e.Kind = raw.Kind
	e.Config = nil
	if len(raw.Config) == 0 || string(raw.Config) == "null" {
		return nil
	}

	cfg := model.DefaultUnitConfig()
	if kind, err := model.ParseUnitKind(raw.Kind); err == nil {
		cfg = model.DefaultConfigFor(kind)
	}
	if err := strictDecode(raw.Config, &cfg); err != nil {
		return fmt.Errorf("unit %q config: %w", raw.Kind, err)
	}
	e.Config = &cfg
	return nil
}

// Schedule overlays Influent onto the plant's influent whenever Cron fires.
type Schedule struct {
	Name     string             `json:"name"`
	Cron     string             `json:"cron"`
	Influent map[string]float32 `json:"influent"`
}

// PlantConfig describes a plant layout. Preset units come first, then Units
// are appended in order.
type PlantConfig struct {
	Preset          string             `json:"preset,omitempty"`
	Units           []UnitEntry        `json:"units,omitempty"`
	Influent        map[string]float32 `json:"influent,omitempty"`
	HistoryCapacity int                `json:"history_capacity,omitempty"`
	Schedules       []Schedule         `json:"schedules,omitempty"`
}

// Unit is a resolved UnitEntry.
type Unit struct {
	Kind   model.UnitKind
	Config model.UnitConfig
}

// Parse decodes and validates a JSON plant configuration. Unknown fields are
// rejected so typos surface instead of being silently ignored.
func Parse(data []byte) (*PlantConfig, error) {
	var cfg PlantConfig
	if err := strictDecode(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*PlantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plant config %s: %w", path, err)
	}
	return Parse(data)
}

// Validate checks every reference in the configuration without touching any
// plant state.
func (c *PlantConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if c.Preset != "" {
		if _, err := core.PresetKinds(c.Preset); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if _, err := c.ResolveUnits(); err != nil {
		return err
	}
	if err := validateInfluent("influent", c.Influent); err != nil {
		return err
	}
	if c.HistoryCapacity < 0 {
		return fmt.Errorf("%w: history_capacity must be non-negative, got %d", ErrInvalidConfig, c.HistoryCapacity)
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("%w: schedules[%d]: empty name", ErrInvalidConfig, i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate schedule %q", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("%w: schedule %q: cron %q: %v", ErrInvalidConfig, name, s.Cron, err)
		}
		if len(s.Influent) == 0 {
			return fmt.Errorf("%w: schedule %q has no influent values", ErrInvalidConfig, name)
		}
		if err := validateInfluent("schedule "+name, s.Influent); err != nil {
			return err
		}
	}
	return nil
}

// ResolveUnits parses each entry's kind and fills in default configs.
func (c *PlantConfig) ResolveUnits() ([]Unit, error) {
	out := make([]Unit, 0, len(c.Units))
	for i, e := range c.Units {
		kind, err := model.ParseUnitKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: units[%d]: %v", ErrInvalidConfig, i, err)
		}
		if !kind.Insertable() {
			return nil, fmt.Errorf("%w: units[%d]: %s cannot be placed in the train", ErrInvalidConfig, i, kind.Key())
		}
		cfg := model.DefaultConfigFor(kind)
		if e.Config != nil {
			cfg = e.Config.Clone()
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: units[%d]: %v", ErrInvalidConfig, i, err)
		}
		out = append(out, Unit{Kind: kind, Config: cfg})
	}
	return out, nil
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validateInfluent(where string, values map[string]float32) error {
	for key, v := range values {
		p, err := model.ParseParameter(key)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, where, err)
		}
		if v != v || (p.IsConcentration() && v < 0) {
			return fmt.Errorf("%w: %s: %s=%v", ErrInvalidConfig, where, p, v)
		}
	}
	return nil
}
