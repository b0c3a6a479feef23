package events

import "github.com/zoobzio/capitan"

// Field keys for plant events.
var (
	// KeyUnitID is the stable handle of the affected unit.
	KeyUnitID = capitan.NewStringKey("unit_id")

	// KeyUnitKind is the catalogue key of the affected unit's kind.
	KeyUnitKind = capitan.NewStringKey("unit_kind")

	// KeyIndex is the unit's position in the train when the event fired.
	KeyIndex = capitan.NewIntKey("index")

	// KeyUnits is the number of units in the train after the change.
	KeyUnits = capitan.NewIntKey("units")

	KeyPreset   = capitan.NewStringKey("preset")
	KeyParams   = capitan.NewStringKey("parameters")
	KeySchedule = capitan.NewStringKey("schedule")
	KeySource   = capitan.NewStringKey("source")
	KeyError    = capitan.NewStringKey("error")
	KeyRunID    = capitan.NewStringKey("run_id")
	KeyTicks    = capitan.NewIntKey("ticks")
	KeyElapsed  = capitan.NewDurationKey("elapsed")
)
