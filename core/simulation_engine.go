package core

import "time"

// TickListener is notified with the tick count after every tick.
type TickListener func(tick uint64)

// SimulationEngine couples a Pipeline with its HistoryStore and notifies
// listeners after every tick.
type SimulationEngine struct {
	Pipeline      *Pipeline
	History       *HistoryStore
	tickListeners []TickListener
}

// NewSimulationEngine wraps p. A nil history gets a default store.
func NewSimulationEngine(p *Pipeline, history *HistoryStore) *SimulationEngine {
	if p == nil {
		p = NewPipeline()
	}
	if history == nil {
		history = NewHistoryStore()
	}
	return &SimulationEngine{
		Pipeline: p,
		History:  history,
	}
}

// RegisterTickListener adds fn to the callbacks run after each tick.
func (se *SimulationEngine) RegisterTickListener(fn TickListener) {
	se.tickListeners = append(se.tickListeners, fn)
}

// TickListeners returns the registered callbacks in registration order.
func (se *SimulationEngine) TickListeners() []TickListener {
	return append([]TickListener(nil), se.tickListeners...)
}

// Tick steps the pipeline once, records history and notifies listeners.
func (se *SimulationEngine) Tick(dt time.Duration) {
	se.Pipeline.Step(dt)
	se.History.Record(se.Pipeline)

	tick := se.Pipeline.Ticks()
	for _, fn := range se.tickListeners {
		fn(tick)
	}
}

// Run executes ticks consecutive ticks of length dt.
func (se *SimulationEngine) Run(ticks int, dt time.Duration) {
	for i := 0; i < ticks; i++ {
		se.Tick(dt)
	}
}
