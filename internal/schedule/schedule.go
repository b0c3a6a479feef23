// Package schedule switches the plant influent on cron schedules, e.g. a
// storm-water profile every evening or a diluted night load.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/signalsfoundry/wastewater-simulator/internal/config"
	"github.com/signalsfoundry/wastewater-simulator/internal/events"
	"github.com/signalsfoundry/wastewater-simulator/internal/logging"
	"github.com/signalsfoundry/wastewater-simulator/model"
	"github.com/zoobzio/capitan"
)

// ErrUnknownSchedule is returned by Fire for a name that is not loaded.
var ErrUnknownSchedule = errors.New("unknown schedule")

// InfluentTarget receives influent overlays. PlantState satisfies it.
type InfluentTarget interface {
	OverlayInfluent(ctx context.Context, values map[string]float32, source string) (model.WaterSample, error)
}

// Recorder receives scheduler metrics.
type Recorder interface {
	IncScheduleFire(name string)
	SetScheduleEntries(count int)
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

// WithLocation evaluates cron specs in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cronOpts = append(s.cronOpts, cron.WithLocation(loc))
	}
}

// Entry describes one loaded schedule.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type loaded struct {
	schedule config.Schedule
	id       cron.EntryID
}

// Scheduler owns a cron runner whose jobs overlay influent onto a target.
type Scheduler struct {
	target   InfluentTarget
	log      logging.Logger
	metrics  Recorder
	cronOpts []cron.Option

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]loaded
	ctx     context.Context
}

// New builds a stopped Scheduler with no schedules.
func New(target InfluentTarget, log logging.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logging.Noop()
	}
	s := &Scheduler{
		target:  target,
		log:     log,
		entries: make(map[string]loaded),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.cron = cron.New(s.cronOpts...)
	return s
}

// Load replaces every schedule. All specs are parsed before anything is
// swapped, so an invalid entry leaves the previous set running.
func (s *Scheduler) Load(schedules []config.Schedule) error {
	parsed := make([]cron.Schedule, len(schedules))
	seen := make(map[string]struct{}, len(schedules))
	for i, sc := range schedules {
		if _, dup := seen[sc.Name]; dup || sc.Name == "" {
			return fmt.Errorf("%w: schedule name %q empty or repeated", config.ErrInvalidConfig, sc.Name)
		}
		seen[sc.Name] = struct{}{}
		sched, err := cron.ParseStandard(sc.Cron)
		if err != nil {
			return fmt.Errorf("%w: schedule %q: %v", config.ErrInvalidConfig, sc.Name, err)
		}
		parsed[i] = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, e := range s.entries {
		s.cron.Remove(e.id)
		delete(s.entries, name)
	}
	for i, sc := range schedules {
		name := sc.Name
		id := s.cron.Schedule(parsed[i], cron.FuncJob(func() {
			if err := s.Fire(s.baseContext(), name); err != nil {
				s.log.Warn(s.baseContext(), "influent schedule failed",
					logging.String("schedule", name),
					logging.Err(err),
				)
			}
		}))
		s.entries[name] = loaded{schedule: sc, id: id}
	}
	if s.metrics != nil {
		s.metrics.SetScheduleEntries(len(s.entries))
	}
	s.log.Info(s.ctx, "influent schedules loaded", logging.Int("count", len(s.entries)))
	return nil
}

// Fire applies the named schedule's influent immediately.
func (s *Scheduler) Fire(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSchedule, name)
	}

	if _, err := s.target.OverlayInfluent(ctx, e.schedule.Influent, "schedule:"+name); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncScheduleFire(name)
	}
	capitan.Emit(ctx, events.ScheduleFired, events.KeySchedule.Field(name))
	return nil
}

// Entries lists loaded schedules sorted by name. Next is zero until the
// scheduler has started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, Entry{
			Name: name,
			Spec: e.schedule.Cron,
			Next: s.cron.Entry(e.id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start runs the cron loop in its own goroutine. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}
