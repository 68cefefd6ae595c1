// Package engine provides the tick-based simulation loop and the coordinator
// that runs every social subsystem in a fixed order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickSchedule defines when the slower callbacks fire relative to the tick
// counter. The counter reads as minutes on the display calendar regardless
// of Step.
const (
	TicksPerSimHour = 60   // 60 ticks = 1 sim-hour
	TicksPerSimDay  = 1440 // 24 hours × 60
)

// Engine drives the simulation forward. All access to simulation state from
// outside the loop goes through Do so triggers never interleave with a tick.
type Engine struct {
	Interval time.Duration // Wall-clock time between ticks at speed 1.
	Step     time.Duration // Simulated time advanced per tick.

	// Callbacks for each tick layer, populated during setup.
	OnTick func(tick uint64, dt time.Duration)
	OnHour func(tick uint64)
	OnDay  func(tick uint64)

	mu      sync.Mutex
	tick    uint64
	speed   float64
	running bool
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		Step:     time.Second,
		speed:    1.0,
	}
}

// Run drives ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	tick, speed := e.tick, e.speed
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", tick, "speed", speed)

	defer func() {
		e.mu.Lock()
		e.running = false
		tick := e.tick
		e.mu.Unlock()
		slog.Info("simulation engine stopped", "tick", tick)
	}()

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !sleep(ctx, 100*time.Millisecond) {
				return nil
			}
			continue
		}

		start := time.Now()
		e.Do(e.stepLocked)

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			if !sleep(ctx, target-elapsed) {
				return nil
			}
		} else if ctx.Err() != nil {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Advance runs n ticks synchronously, regardless of speed.
func (e *Engine) Advance(n int) {
	for i := 0; i < n; i++ {
		e.Do(e.stepLocked)
	}
}

// Do runs fn between ticks.
func (e *Engine) Do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Speed returns the speed multiplier. 0 is paused.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier.
func (e *Engine) SetSpeed(v float64) {
	e.mu.Lock()
	e.speed = max(v, 0)
	e.mu.Unlock()
	slog.Info("speed changed", "speed", v)
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// stepLocked advances the simulation by one tick. Callers hold mu.
func (e *Engine) stepLocked() {
	e.tick++

	if e.OnTick != nil {
		e.OnTick(e.tick, e.Step)
	}
	if e.tick%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(e.tick)
	}
	if e.tick%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(e.tick)
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	totalHours := tick / 60
	hours := totalHours % 24
	days := totalHours/24 + 1
	return fmt.Sprintf("Day %d, %d:%02d", days, hours, minutes)
}
