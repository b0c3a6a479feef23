// Package events declares the capitan signals emitted by the plant host.
// Hooks observe them for auditing and logging; nothing in the simulation
// core depends on them.
package events

import "github.com/zoobzio/capitan"

// Topology signals.
var (
	// UnitInserted is emitted after a unit joins the treatment train.
	UnitInserted = capitan.NewSignal(
		"wwtp.unit.inserted",
		"Treatment unit inserted",
	)

	// UnitRemoved is emitted after a unit leaves the treatment train.
	UnitRemoved = capitan.NewSignal(
		"wwtp.unit.removed",
		"Treatment unit removed",
	)

	// UnitUpdated is emitted when a unit's configuration or overrides change.
	UnitUpdated = capitan.NewSignal(
		"wwtp.unit.updated",
		"Treatment unit configuration changed",
	)

	// PlantReset is emitted when every treatment unit is cleared.
	PlantReset = capitan.NewSignal(
		"wwtp.plant.reset",
		"Treatment train reset",
	)

	// PresetLoaded is emitted when a named preset replaces the train.
	PresetLoaded = capitan.NewSignal(
		"wwtp.preset.loaded",
		"Preset loaded",
	)
)

// Influent signals.
var (
	// InfluentChanged is emitted when the raw influent is edited.
	InfluentChanged = capitan.NewSignal(
		"wwtp.influent.changed",
		"Influent changed",
	)

	// ScheduleFired is emitted when a cron schedule overlays the influent.
	ScheduleFired = capitan.NewSignal(
		"wwtp.schedule.fired",
		"Influent schedule fired",
	)
)

// Configuration signals.
var (
	ConfigApplied = capitan.NewSignal(
		"wwtp.config.applied",
		"Plant configuration applied",
	)

	ConfigRejected = capitan.NewSignal(
		"wwtp.config.rejected",
		"Plant configuration rejected",
	)
)

// Run signals.
var (
	RunStarted = capitan.NewSignal(
		"wwtp.run.started",
		"Simulation run started",
	)

	RunFinished = capitan.NewSignal(
		"wwtp.run.finished",
		"Simulation run finished",
	)
)
