package events

import (
	"context"

	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/zoobzio/capitan"
)

// LogHooks forwards plant events to log. Rejections and failures log at warn,
// everything else at info.
func LogHooks(log logging.Logger) {
	if log == nil {
		log = logging.Noop()
	}

	topology := func(msg string) func(context.Context, *capitan.Event) {
		return func(ctx context.Context, e *capitan.Event) {
			id, _ := KeyUnitID.From(e)
			kind, _ := KeyUnitKind.From(e)
			units, _ := KeyUnits.From(e)
			log.Info(ctx, msg,
				logging.String("unit_id", id),
				logging.String("unit_kind", kind),
				logging.Int("units", units),
			)
		}
	}
	capitan.Hook(UnitInserted, topology("unit inserted"))
	capitan.Hook(UnitRemoved, topology("unit removed"))
	capitan.Hook(UnitUpdated, topology("unit updated"))
	capitan.Hook(PlantReset, topology("plant reset"))

	capitan.Hook(PresetLoaded, func(ctx context.Context, e *capitan.Event) {
		name, _ := KeyPreset.From(e)
		units, _ := KeyUnits.From(e)
		log.Info(ctx, "preset loaded", logging.String("preset", name), logging.Int("units", units))
	})
	capitan.Hook(InfluentChanged, func(ctx context.Context, e *capitan.Event) {
		params, _ := KeyParams.From(e)
		src, _ := KeySource.From(e)
		log.Info(ctx, "influent changed", logging.String("parameters", params), logging.String("source", src))
	})
	capitan.Hook(ScheduleFired, func(ctx context.Context, e *capitan.Event) {
		name, _ := KeySchedule.From(e)
		log.Info(ctx, "schedule fired", logging.String("schedule", name))
	})
	capitan.Hook(ConfigApplied, func(ctx context.Context, e *capitan.Event) {
		src, _ := KeySource.From(e)
		log.Info(ctx, "plant config applied", logging.String("source", src))
	})
	capitan.Hook(ConfigRejected, func(ctx context.Context, e *capitan.Event) {
		src, _ := KeySource.From(e)
		msg, _ := KeyError.From(e)
		log.Warn(ctx, "plant config rejected; keeping previous", logging.String("source", src), logging.String("error", msg))
	})
	capitan.Hook(RunStarted, func(ctx context.Context, e *capitan.Event) {
		id, _ := KeyRunID.From(e)
		log.Info(ctx, "run started", logging.String("run_id", id))
	})
	capitan.Hook(RunFinished, func(ctx context.Context, e *capitan.Event) {
		id, _ := KeyRunID.From(e)
		ticks, _ := KeyTicks.From(e)
		elapsed, _ := KeyElapsed.From(e)
		log.Info(ctx, "run finished",
			logging.String("run_id", id),
			logging.Int("ticks", ticks),
			logging.Duration("elapsed", elapsed),
		)
	})
}
