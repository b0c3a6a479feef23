package config

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/wastewater-simulator/internal/events"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/zoobzio/capitan"
)

// ApplyFunc installs a validated configuration. Returning an error rejects
// it and the previous configuration stays in effect.
type ApplyFunc func(ctx context.Context, cfg *PlantConfig) error

// ReloadRecorder receives the outcome of every reload attempt.
type ReloadRecorder interface {
	ObserveReload(at time.Time, err error)
}

// ReloaderOption customises a Reloader.
type ReloaderOption func(*Reloader)

// WithReloadRecorder attaches a metrics recorder.
func WithReloadRecorder(rec ReloadRecorder) ReloaderOption {
	return func(r *Reloader) {
		r.metrics = rec
	}
}

// Reloader feeds every revision a Watcher emits through Parse and apply.
type Reloader struct {
	watcher Watcher
	source  string
	apply   ApplyFunc
	log     logging.Logger
	metrics ReloadRecorder

	mu      sync.RWMutex
	current *PlantConfig
	last    []byte
}

// NewReloader builds a Reloader. source names the origin in logs and events.
func NewReloader(w Watcher, source string, apply ApplyFunc, log logging.Logger, opts ...ReloaderOption) *Reloader {
	if log == nil {
		log = logging.Noop()
	}
	r := &Reloader{
		watcher: w,
		source:  source,
		apply:   apply,
		log:     log.With(logging.String("source", source)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Current returns the last applied configuration, or nil.
func (r *Reloader) Current() *PlantConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Run blocks applying revisions until ctx is cancelled or the watcher stops.
func (r *Reloader) Run(ctx context.Context) error {
	ch, err := r.watcher.Watch(ctx)
	if err != nil {
		return err
	}
	for data := range ch {
		r.handle(ctx, data)
	}
	return ctx.Err()
}

func (r *Reloader) handle(ctx context.Context, data []byte) {
	r.mu.RLock()
	unchanged := r.last != nil && bytes.Equal(r.last, data)
	r.mu.RUnlock()
	if unchanged {
		return
	}

	cfg, err := Parse(data)
	if err == nil && r.apply != nil {
		err = r.apply(ctx, cfg)
	}
	if r.metrics != nil {
		r.metrics.ObserveReload(time.Now(), err)
	}
	if err != nil {
		r.log.Warn(ctx, "plant config rejected", logging.Err(err))
		capitan.Emit(ctx, events.ConfigRejected,
			events.KeySource.Field(r.source),
			events.KeyError.Field(err.Error()),
		)
		return
	}

	r.mu.Lock()
	r.current = cfg
	r.last = append([]byte(nil), data...)
	r.mu.Unlock()

	r.log.Info(ctx, "plant config applied",
		logging.String("preset", cfg.Preset),
		logging.Int("units", len(cfg.Units)),
		logging.Int("schedules", len(cfg.Schedules)),
	)
	capitan.Emit(ctx, events.ConfigApplied, events.KeySource.Field(r.source))
}
