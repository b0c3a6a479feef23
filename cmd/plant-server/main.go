package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/wastewater-simulator/core"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/internal/control"
	"github.com/signalsfoundry/wastewater-simulator/internal/events"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/internal/observability"
	"github.com/signalsfoundry/wastewater-simulator/internal/schedule"
	"github.com/signalsfoundry/wastewater-simulator/internal/sim/state"
	"github.com/signalsfoundry/wastewater-simulator/timectrl"
	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// Config holds the plant server settings.
type Config struct {
	ListenAddress   string
	MetricsAddress  string
	PlantConfigPath string
	Preset          string
	TickInterval    time.Duration
	Speed           float64
	HistoryCapacity int
	UnitHistory     bool
	EffluentOnly    bool
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the PlantControl gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.PlantConfigPath, "config", "", "JSON plant configuration to load and watch for changes")
	flag.StringVar(&cfg.Preset, "preset", core.DefaultPreset, "preset to start from when -config is not given")
	flag.DurationVar(&cfg.TickInterval, "tick", time.Second, "simulated time per tick")
	flag.Float64Var(&cfg.Speed, "speed", 1, "simulation speed relative to the wall clock")
	flag.IntVar(&cfg.HistoryCapacity, "history", core.DefaultHistoryCapacity, "samples kept per history series")
	flag.BoolVar(&cfg.UnitHistory, "unit-history", false, "record per-unit outlet history")
	flag.BoolVar(&cfg.EffluentOnly, "history-effluent-only", false, "record only the effluent into the plant-wide series instead of every unit outlet")
	flag.Parse()

	log := logging.NewFromEnv()
	events.LogHooks(log)
	defer capitan.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "plant server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the plant until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	if log == nil {
		log = logging.Noop()
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewPlantCollector(reg)
	if err != nil {
		return err
	}
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return err
	}

	opts := []state.PlantStateOption{
		state.WithMetricsRecorder(collector),
		state.WithHistoryCapacity(cfg.HistoryCapacity),
	}
	if cfg.UnitHistory {
		opts = append(opts, state.WithUnitHistory())
	}
	if cfg.EffluentOnly {
		opts = append(opts, state.WithRecordMode(core.RecordEffluent))
	}
	plant := state.NewPlantState(log, opts...)
	if err := plant.LoadPreset(ctx, cfg.Preset); err != nil {
		return err
	}

	scheduler := schedule.New(plant, log, schedule.WithRecorder(schedMetrics))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.PlantConfigPath != "" {
		apply := func(ctx context.Context, pc *config.PlantConfig) error {
			if err := plant.ApplyConfig(ctx, pc); err != nil {
				return err
			}
			return scheduler.Load(pc.Schedules)
		}
		reloader := config.NewReloader(
			config.NewFileWatcher(cfg.PlantConfigPath),
			cfg.PlantConfigPath,
			apply,
			log,
			config.WithReloadRecorder(schedMetrics),
		)
		go func() {
			if err := reloader.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn(runCtx, "config watcher stopped", logging.Err(err))
			}
		}()
	}

	scheduler.Start(runCtx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		scheduler.Stop(stopCtx)
	}()

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			control.RequestIDUnaryServerInterceptor(log),
			control.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	control.RegisterPlantControlServer(server, control.NewService(plant, log))

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsSrv = serveMetrics(cfg.MetricsAddress, collector, log)
	}

	loopDone := runTickLoop(runCtx, cfg, plant, log)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting PlantControl gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var result error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		result = err
	}

	log.Info(ctx, "shutting down plant server")
	cancel()
	server.GracefulStop()
	<-loopDone

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return result
}

// runTickLoop steps the plant once per tick of simulated time, paced against
// the wall clock by cfg.Speed.
func runTickLoop(ctx context.Context, cfg Config, plant *state.PlantState, log logging.Logger) <-chan struct{} {
	tc := timectrl.NewTimeController(time.Now().UTC(), cfg.TickInterval, timectrl.RealTime)
	if cfg.Speed > 0 {
		if err := tc.SetSpeed(cfg.Speed); err != nil {
			log.Warn(ctx, "ignoring speed", logging.Float64("speed", cfg.Speed), logging.Err(err))
		}
	}
	tc.AddListener(func(_ time.Time, dt time.Duration) {
		plant.Step(ctx, dt)
	})

	log.Info(ctx, "starting tick loop",
		logging.Duration("tick", cfg.TickInterval),
		logging.Float64("speed", tc.Speed()),
	)
	return tc.Start(ctx, 0)
}

func serveMetrics(addr string, collector *observability.PlantCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
