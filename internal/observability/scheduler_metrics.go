package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes metrics for the influent scheduler and the
// plant configuration reloader.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	ScheduleFires   *prometheus.CounterVec
	ScheduleEntries prometheus.Gauge
	ConfigReloads   *prometheus.CounterVec
	LastReload      prometheus.Gauge
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	fires := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wwtp_schedule_fires_total",
		Help: "Influent schedule activations, labeled by schedule name.",
	}, []string{"schedule"})
	fires, err := registerCounterVec(reg, fires, "wwtp_schedule_fires_total")
	if err != nil {
		return nil, err
	}

	entries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwtp_schedule_entries",
		Help: "Number of influent schedules currently loaded.",
	})
	entries, err = registerGauge(reg, entries, "wwtp_schedule_entries")
	if err != nil {
		return nil, err
	}

	reloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wwtp_config_reloads_total",
		Help: "Plant configuration reload attempts, labeled by result.",
	}, []string{"result"})
	reloads, err = registerCounterVec(reg, reloads, "wwtp_config_reloads_total")
	if err != nil {
		return nil, err
	}

	lastReload := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wwtp_config_last_reload_timestamp_seconds",
		Help: "Unix time of the last successfully applied plant configuration.",
	})
	lastReload, err = registerGauge(reg, lastReload, "wwtp_config_last_reload_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:        gatherer,
		ScheduleFires:   fires,
		ScheduleEntries: entries,
		ConfigReloads:   reloads,
		LastReload:      lastReload,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncScheduleFire counts one activation of the named schedule.
func (c *SchedulerCollector) IncScheduleFire(name string) {
	if c == nil || c.ScheduleFires == nil {
		return
	}
	c.ScheduleFires.WithLabelValues(name).Inc()
}

// SetScheduleEntries updates the loaded schedule gauge.
func (c *SchedulerCollector) SetScheduleEntries(count int) {
	if c == nil || c.ScheduleEntries == nil {
		return
	}
	c.ScheduleEntries.Set(float64(count))
}

// ObserveReload records the outcome of one configuration reload.
func (c *SchedulerCollector) ObserveReload(at time.Time, err error) {
	if c == nil || c.ConfigReloads == nil {
		return
	}
	if err != nil {
		c.ConfigReloads.WithLabelValues("rejected").Inc()
		return
	}
	c.ConfigReloads.WithLabelValues("applied").Inc()
	if c.LastReload != nil {
		c.LastReload.Set(float64(at.Unix()))
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
