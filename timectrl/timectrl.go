package timectrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidSpeed is returned for non-positive speed multipliers.
var ErrInvalidSpeed = errors.New("speed multiplier must be positive")

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one Tick every Tick/Speed of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Listener is invoked once per tick with the new simulation time and the
// simulated duration that just elapsed.
type Listener func(now time.Time, dt time.Duration)

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	speed       float64
	currentTime time.Time

	listeners []Listener
}

// NewTimeController constructs a controller running at speed 1.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		speed:       1,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Speed returns the wall-clock multiplier used in RealTime mode.
func (tc *TimeController) Speed() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.speed
}

// SetSpeed changes the wall-clock multiplier. A speed of 2 runs the plant
// twice as fast as real time. It takes effect on the next tick.
func (tc *TimeController) SetSpeed(speed float64) error {
	if speed <= 0 || speed != speed {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	tc.mu.Lock()
	tc.speed = speed
	tc.mu.Unlock()
	return nil
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Start.
func (tc *TimeController) AddListener(fn Listener) {
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until duration of
// simulation time has elapsed (zero runs until ctx is cancelled). It returns
// a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		if tc.Tick <= 0 {
			return
		}

		var wait <-chan time.Time
		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.wallInterval())
			defer ticker.Stop()
			wait = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if wait != nil {
				select {
				case <-ctx.Done():
					return
				case <-wait:
				}
				ticker.Reset(tc.wallInterval())
			} else if ctx.Err() != nil {
				return
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.mu.Unlock()

			for _, fn := range tc.listeners {
				fn(simTime, tc.Tick)
			}
		}
	}()
	return done
}

func (tc *TimeController) wallInterval() time.Duration {
	iv := time.Duration(float64(tc.Tick) / tc.Speed())
	if iv <= 0 {
		iv = time.Nanosecond
	}
	return iv
}

