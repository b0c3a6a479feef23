package state

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/wastewater-simulator/model"
)

// TestTickLoopAndControlConcurrency runs the tick loop alongside concurrent
// control-style mutations and readers to verify the state stays race-free
// and every observed topology keeps its endpoints.
func TestTickLoopAndControlConcurrency(t *testing.T) {
	s := newPlantStateForTest(t, WithUnitHistory())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	var ticks atomic.Int64

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			s.Step(ctx, time.Second)
			ticks.Add(1)
		}
	}()

	kinds := model.UnitKinds()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				switch rng.Intn(5) {
				case 0:
					kind := kinds[rng.Intn(len(kinds))]
					_, _ = s.AppendUnit(ctx, kind, model.DefaultConfigFor(kind))
				case 1:
					n := len(s.Snapshot().Units)
					if n > 2 {
						_, _ = s.RemoveUnit(ctx, 1+rng.Intn(n-2))
					}
				case 2:
					_ = s.SetInfluentParameter(ctx, model.BOD, float32(rng.Intn(500)))
				case 3:
					_, _ = s.OverlayInfluent(ctx, map[string]float32{"tss": float32(rng.Intn(300))}, "test")
				default:
					if rng.Intn(20) == 0 {
						_ = s.LoadPreset(ctx, "membrane")
					}
				}
			}
		}(int64(w))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			snap := s.Snapshot()
			if len(snap.Units) < 2 ||
				snap.Units[0].Kind != model.Source ||
				snap.Units[len(snap.Units)-1].Kind != model.Sink {
				t.Errorf("snapshot lost its endpoints: %d units", len(snap.Units))
				return
			}
			if len(snap.Connections) != len(snap.Units)-1 {
				t.Errorf("connections = %d for %d units", len(snap.Connections), len(snap.Units))
				return
			}
			if n := len(s.Series(model.BOD)); n > s.HistoryCapacity() {
				t.Errorf("series length %d exceeds capacity", n)
				return
			}
		}
	}()

	wg.Wait()
	if ticks.Load() == 0 {
		t.Fatalf("tick loop never ran")
	}
}

func TestAppendUnitConcurrentWithRemove(t *testing.T) {
	s := NewPlantState(nil)
	ctx := context.Background()

	const rounds = 500
	var wg sync.WaitGroup
	var appended, removed atomic.Int64
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := s.AppendUnit(ctx, model.Pump, model.DefaultUnitConfig()); err != nil {
					t.Errorf("AppendUnit: %v", err)
					return
				}
				appended.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if _, err := s.RemoveUnit(ctx, 1); err == nil {
					removed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	want := 2 + int(appended.Load()-removed.Load())
	if len(snap.Units) != want {
		t.Fatalf("units = %d, want %d", len(snap.Units), want)
	}
	if last := snap.Units[len(snap.Units)-1]; last.Kind != model.Sink {
		t.Fatalf("last unit = %v, want Sink", last.Kind)
	}
}
