package timectrl

import (
	"context"
	"strings"
	"sync"
	"time"
)

// FrameTick is the nominal duration of one simulation frame (1/60 s).
const FrameTick = time.Second / 60

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow while still
	// stepping by Tick.
	Accelerated
)

// String returns the config spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Accelerated:
		return "accelerated"
	default:
		return "realtime"
	}
}

// ParseMode maps "realtime" / "accelerated" (any case) to a Mode. Unknown
// values fall back to RealTime and report false.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accelerated", "fast":
		return Accelerated, true
	case "realtime", "real-time", "":
		return RealTime, true
	default:
		return RealTime, false
	}
}

// TimeController drives the frame loop and notifies registered listeners
// synchronously, once per tick, from a single goroutine.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64

	listeners []func(time.Time)
}

// NewTimeController constructs a controller. A non-positive tick defaults to
// FrameTick.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = FrameTick
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns the number of ticks delivered so far.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves the simulation clock without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick. Listeners must be
// registered before Start.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine until duration of
// simulation time has elapsed (forever when duration <= 0) or ctx is done.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		tc.run(ctx, duration)
	}()
	return done
}

func (tc *TimeController) run(ctx context.Context, duration time.Duration) {
	tc.mu.RLock()
	simTime := tc.currentTime
	listeners := append([]func(time.Time){}, tc.listeners...)
	tick := tc.Tick
	mode := tc.Mode
	tc.mu.RUnlock()

	var tickC <-chan time.Time
	if mode == RealTime {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		tickC = ticker.C
	}

	// Whole ticks, rounded; FrameTick itself is truncated.
	var budget int64
	if duration > 0 {
		budget = max(int64((duration+tick/2)/tick), 1)
	}
	for n := int64(0); budget == 0 || n < budget; n++ {

		if tickC != nil {
			select {
			case <-ctx.Done():
				return
			case <-tickC:
			}
		} else if ctx.Err() != nil {
			return
		}

		simTime = simTime.Add(tick)

		tc.mu.Lock()
		tc.currentTime = simTime
		tc.ticks++
		tc.mu.Unlock()

		for _, fn := range listeners {
			fn(simTime)
		}
	}
}
