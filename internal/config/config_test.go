package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/wastewater-simulator/model"
)

const samplePlant = `{
  "preset": "default",
  "units": [
    {"kind": "uv_disinfection"},
    {"kind": "Heat Exchanger", "config": {"hrt_hours": 1, "temperature_c": 30}}
  ],
  "influent": {"bod": 280, "temperature": 14},
  "history_capacity": 50,
  "schedules": [
    {"name": "storm", "cron": "0 */6 * * *", "influent": {"tss": 450, "turbidity": 120}}
  ]
}`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(samplePlant))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Preset != "default" || cfg.HistoryCapacity != 50 || len(cfg.Schedules) != 1 {
		t.Fatalf("decoded config = %+v", cfg)
	}

	units, err := cfg.ResolveUnits()
	if err != nil {
		t.Fatalf("ResolveUnits: %v", err)
	}
	if len(units) != 2 || units[0].Kind != model.UVDisinfection || units[1].Kind != model.HeatExchanger {
		t.Fatalf("units = %+v", units)
	}
	if units[0].Config.HRTHours != 10 {
		t.Fatalf("default config not applied: %+v", units[0].Config)
	}
	if units[1].Config.TemperatureC != 30 {
		t.Fatalf("heat exchanger setpoint = %v, want 30", units[1].Config.TemperatureC)
	}
	if units[1].Config.VolumeM3 != 1000 {
		t.Fatalf("partial config dropped defaults: volume = %v, want 1000", units[1].Config.VolumeM3)
	}
}

func TestParseRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"unknown field":      `{"presett": "default"}`,
		"unknown preset":     `{"preset": "lagoon"}`,
		"unknown kind":       `{"units": [{"kind": "warp_core"}]}`,
		"endpoint kind":      `{"units": [{"kind": "outlet"}]}`,
		"unknown unit field": `{"units": [{"kind": "pump", "config": {"hrt": 4}}]}`,
		"bad unit config":    `{"units": [{"kind": "pump", "config": {"volume_m3": -4}}]}`,
		"negative influent":  `{"influent": {"cod": -1}}`,
		"unknown parameter":  `{"influent": {"unobtainium": 1}}`,
		"negative history":   `{"history_capacity": -1}`,
		"bad cron":           `{"schedules": [{"name": "x", "cron": "every tuesday", "influent": {"bod": 1}}]}`,
		"duplicate schedule": `{"schedules": [{"name": "x", "cron": "@hourly", "influent": {"bod": 1}}, {"name": "x", "cron": "@daily", "influent": {"bod": 2}}]}`,
		"empty schedule":     `{"schedules": [{"name": "x", "cron": "@hourly"}]}`,
		"not json":           `preset: default`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: error = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.json")
	if err := os.WriteFile(path, []byte(samplePlant), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Influent["bod"] != 280 {
		t.Fatalf("influent = %v", cfg.Influent)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Fatalf("Load(missing) error = %v", err)
	}
}

func TestEmptyConfigIsValid(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse({}): %v", err)
	}
	if units, _ := cfg.ResolveUnits(); len(units) != 0 {
		t.Fatalf("units = %v, want none", units)
	}
}
