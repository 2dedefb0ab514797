package core

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/marslink-sim/kb"
	"github.com/signalsfoundry/marslink-sim/model"
)

type fakeMetrics struct {
	mu        sync.Mutex
	frames    int
	retargets map[string]int
	pulses    map[string]int
	invalid   int
	lastLinks map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{retargets: map[string]int{}, pulses: map[string]int{}}
}

func (m *fakeMetrics) ObserveFrame(_ time.Duration, links, _, _ map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	m.lastLinks = links
}

func (m *fakeMetrics) IncRetarget(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retargets[body]++
}

func (m *fakeMetrics) IncLaserPulse(direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses[direction]++
}

func (m *fakeMetrics) IncInvalidFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid++
}

func newDefaultEngine(t *testing.T, seed uint64, opts ...EngineOption) *SimulationEngine {
	t.Helper()
	rng := NewRand(seed)
	reg := kb.NewRegistry()
	st, err := NewSimulationState(DefaultScenario(), reg, DefaultBuildOptions(), rng)
	if err != nil {
		t.Fatalf("NewSimulationState error: %v", err)
	}
	return NewSimulationEngine(reg, st, append([]EngineOption{WithRand(rng)}, opts...)...)
}

func TestSimulationEngine_StepInvariants(t *testing.T) {
	se := newDefaultEngine(t, 42)

	sessions := 0
	for i := 1; i <= 600; i++ {
		f := se.Step(context.Background())
		if f.Number != uint64(i) {
			t.Fatalf("frame number = %d, want %d", f.Number, i)
		}
		if math.Abs(f.SimTime-float64(i)/60) > 1e-9 {
			t.Fatalf("sim time = %v at frame %d", f.SimTime, i)
		}
		if err := f.Validate(); err != nil {
			t.Fatalf("frame %d invalid: %v", i, err)
		}

		for _, bs := range se.State.Bodies() {
			for j, pos := range bs.SatPos {
				if d := pos.DistanceTo(bs.Center); math.Abs(d-bs.OrbitRadius) > 1e-6 {
					t.Fatalf("frame %d: %s sat %d off shell by %v", i, bs.Body, j, d-bs.OrbitRadius)
				}
			}
			for _, adv := range bs.Adversaries {
				if d := adv.Position.DistanceTo(bs.Center); math.Abs(d-bs.OrbitRadius) > 1e-6 {
					t.Fatalf("frame %d: %s adversary off shell by %v", i, bs.Body, d-bs.OrbitRadius)
				}
			}
		}

		for _, l := range f.Links {
			switch l.Kind {
			case LinkEarthSatellites:
				if !IsVisible(l.From, l.To, se.State.Earth.Center, 2, 8) {
					t.Fatalf("frame %d: committed earth link is not visible", i)
				}
			case LinkMarsSatellites:
				if !IsVisible(l.From, l.To, se.State.Mars.Center, 1.1, 3.3) {
					t.Fatalf("frame %d: committed mars link is not visible", i)
				}
			}
		}

		if n := se.State.Sessions.Len(); n < sessions {
			t.Fatalf("session count shrank from %d to %d", sessions, n)
		} else {
			sessions = n
		}
	}
	if sessions == 0 {
		t.Fatalf("no sessions created in 10 s of simulation")
	}
}

func TestSimulationEngine_RegistryTracksPositions(t *testing.T) {
	se := newDefaultEngine(t, 7)
	se.Step(context.Background())

	sat := se.State.Earth.Satellites[0]
	got, ok := se.Registry.Position(sat.ID)
	if !ok || got != se.State.Earth.SatPos[0] {
		t.Fatalf("registry position %+v, state %+v", got, se.State.Earth.SatPos[0])
	}
	adv := se.State.Mars.Adversaries[0]
	got, _ = se.Registry.Position(adv.Entity.ID)
	if got != adv.Position {
		t.Fatalf("adversary registry position %+v, state %+v", got, adv.Position)
	}
}

func TestSimulationEngine_FrameContents(t *testing.T) {
	se := newDefaultEngine(t, 9)
	var f *Frame
	for range 60 * 40 {
		f = se.Step(context.Background())
		if len(f.Lasers) > 0 && len(f.Sensing) > 0 {
			break
		}
	}

	if len(f.Entities) != se.Registry.Len() {
		t.Fatalf("frame has %d entities, registry %d", len(f.Entities), se.Registry.Len())
	}
	if len(f.Beams) != 2 {
		t.Fatalf("beams = %d, want one per adversary", len(f.Beams))
	}
	if len(f.Lasers) == 0 || len(f.Sensing) == 0 {
		t.Fatalf("expected laser and sensing output within 40 s: lasers=%d sensing=%d", len(f.Lasers), len(f.Sensing))
	}
	for _, l := range f.Lasers {
		if l.Tail < 0 || l.Head > 1 || l.Tail > l.Head {
			t.Fatalf("laser segment [%v,%v]", l.Tail, l.Head)
		}
	}
	if f.Beacons.Relay[0] < 0 || f.Beacons.Relay[0] > 1 {
		t.Fatalf("relay beacon %v", f.Beacons.Relay[0])
	}
}

func TestSimulationEngine_RunAndListeners(t *testing.T) {
	metrics := newFakeMetrics()
	se := newDefaultEngine(t, 11, WithMetrics(metrics))

	var seen []uint64
	se.RegisterTickListener(func(f *Frame) { seen = append(seen, f.Number) })
	var published int
	se.AddSink(FrameSinkFunc(func(*Frame) { published++ }))

	if n := se.Run(context.Background(), 60*20); n != 60*20 {
		t.Fatalf("Run returned %d", n)
	}
	if len(seen) != 60*20 || seen[0] != 1 || published != 60*20 {
		t.Fatalf("listener saw %d frames, sink %d", len(seen), published)
	}
	if metrics.frames != 60*20 {
		t.Fatalf("metrics observed %d frames", metrics.frames)
	}
	if metrics.retargets["earth"] == 0 || metrics.retargets["mars"] == 0 {
		t.Fatalf("expected retargets within 20 s: %v", metrics.retargets)
	}
	if metrics.pulses["earth-to-mars"] == 0 {
		t.Fatalf("expected laser pulses within 20 s: %v", metrics.pulses)
	}
	if metrics.invalid != 0 {
		t.Fatalf("invalid frames: %d", metrics.invalid)
	}
}

func TestSimulationEngine_RunCancelled(t *testing.T) {
	se := newDefaultEngine(t, 13)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if n := se.Run(ctx, 100); n != 0 {
		t.Fatalf("Run on cancelled context produced %d frames", n)
	}
	if se.State.FrameNumber != 0 {
		t.Fatalf("state advanced on cancelled run")
	}
}

func TestSimulationEngine_InvalidFrameCounted(t *testing.T) {
	metrics := newFakeMetrics()
	reg := kb.NewRegistry()
	st := &SimulationState{
		Earth:    &BodyState{Body: model.BodyEarth, Radius: 2, OrbitRadius: 3.5, MaxLinkDistance: 8},
		Mars:     &BodyState{Body: model.BodyMars, Center: Vec3{X: 12}, Radius: 1.1, OrbitRadius: 2.5, MaxLinkDistance: 3.3},
		Sessions: NewSessionTable(DefaultSessionPolicies(2, 1.1), &SequenceRand{}),
	}
	e := &model.Entity{Name: "broken", Role: model.RoleFriendlySatellite}
	if _, err := reg.Add(e, Vec3{X: 3.5}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	st.Earth.Satellites = []*model.Entity{e}
	st.Earth.Orbits = []MotionModel{&StaticMotionModel{At: Vec3{X: math.NaN()}}}
	st.Earth.SatPos = []Vec3{{X: 3.5}}

	se := NewSimulationEngine(reg, st, WithMetrics(metrics), WithRand(&SequenceRand{}))
	f := se.Step(context.Background())
	if f.Validate() == nil {
		t.Fatalf("expected frame with NaN to fail validation")
	}
	if metrics.invalid != 1 {
		t.Fatalf("invalid frames = %d, want 1", metrics.invalid)
	}
}
