package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/internal/events"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/internal/observability"
	"github.com/signalsfoundry/wastewater-simulator/internal/sim/state"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"github.com/signalsfoundry/wastewater-simulator/timectrl"
	"github.com/zoobzio/capitan"
)

// Options configures one batch run.
type Options struct {
	Preset      string
	ConfigPath  string
	Ticks       int
	Tick        time.Duration
	Speed       float64
	RealTime    bool
	ReportEvery int
	Start       time.Time
}

func main() {
	opts := Options{Start: time.Now().UTC()}
	flag.StringVar(&opts.Preset, "preset", core.DefaultPreset, "plant preset to load when -config is not given")
	flag.StringVar(&opts.ConfigPath, "config", "", "path to a JSON plant configuration")
	flag.IntVar(&opts.Ticks, "ticks", 100, "number of simulation ticks to run")
	flag.DurationVar(&opts.Tick, "dt", time.Minute, "simulated time per tick")
	flag.Float64Var(&opts.Speed, "speed", 1, "real-time speed multiplier")
	flag.BoolVar(&opts.RealTime, "realtime", false, "pace ticks against the wall clock instead of running flat out")
	flag.IntVar(&opts.ReportEvery, "report-every", 10, "log the effluent every N ticks (0 disables)")
	flag.Parse()

	log := logging.NewFromEnv()
	events.LogHooks(log)
	defer capitan.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tracing := observability.TracingConfigFromEnv()
	if tracing.Plant == "" {
		tracing.Plant = opts.Preset
	}
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options, out io.Writer, log logging.Logger) error {
	if opts.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive, got %d", opts.Ticks)
	}
	if opts.Tick <= 0 {
		return fmt.Errorf("dt must be positive, got %s", opts.Tick)
	}

	ctx, runLog, runID := logging.WithRunLogger(ctx, log)

	plant := state.NewPlantState(runLog)
	source := opts.Preset
	if opts.ConfigPath != "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		if err := plant.ApplyConfig(ctx, cfg); err != nil {
			return err
		}
		source = opts.ConfigPath
	} else if err := plant.LoadPreset(ctx, opts.Preset); err != nil {
		return err
	}

	mode := timectrl.Accelerated
	if opts.RealTime {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(opts.Start, opts.Tick, mode)
	if err := tc.SetSpeed(opts.Speed); err != nil {
		return err
	}

	ticks := 0
	tc.AddListener(func(now time.Time, dt time.Duration) {
		effluent := plant.Step(ctx, dt)
		ticks++
		if opts.ReportEvery > 0 && ticks%opts.ReportEvery == 0 {
			runLog.Info(ctx, "effluent",
				logging.Int("tick", ticks),
				logging.String("sim_time", now.Format(time.RFC3339)),
				logging.Float64("bod", float64(effluent.Get(model.BOD))),
				logging.Float64("cod", float64(effluent.Get(model.COD))),
				logging.Float64("tss", float64(effluent.Get(model.TSS))),
				logging.Float64("nh4", float64(effluent.Get(model.NH4))),
			)
		}
	})

	capitan.Emit(ctx, events.RunStarted,
		events.KeyRunID.Field(runID),
		events.KeyPreset.Field(source),
		events.KeyTicks.Field(opts.Ticks),
	)
	runLog.Info(ctx, "starting simulation",
		logging.String("plant", source),
		logging.Int("ticks", opts.Ticks),
		logging.Duration("dt", opts.Tick),
		logging.String("mode", mode.String()),
		logging.Float64("speed", opts.Speed),
	)

	<-tc.Start(ctx, time.Duration(opts.Ticks)*opts.Tick)

	snap := plant.Snapshot()
	capitan.Emit(ctx, events.RunFinished,
		events.KeyRunID.Field(runID),
		events.KeyTicks.Field(int(snap.Ticks)),
		events.KeyElapsed.Field(snap.Elapsed),
	)

	writeReport(out, snap)
	return ctx.Err()
}

// writeReport prints the train and an influent/effluent table with the
// removal achieved per parameter.
func writeReport(out io.Writer, snap state.PlantSnapshot) {
	fmt.Fprintf(out, "Plant after %d ticks (%s simulated):\n", snap.Ticks, snap.Elapsed)
	for _, u := range snap.Units {
		fmt.Fprintf(out, "  %2d. %s\n", u.Index, u.Name)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Parameter\tUnit\tInfluent\tEffluent\tRemoval\t")
	for _, p := range model.Parameters() {
		in := snap.Influent.Get(p)
		eff := snap.Effluent.Get(p)
		removal := "-"
		if p.IsConcentration() && in > 0 {
			removal = fmt.Sprintf("%.1f%%", 100*(1-float64(eff)/float64(in)))
		}
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.3f\t%s\t\n", p.Label(), p.Unit(), in, eff, removal)
	}
	_ = w.Flush()
}
