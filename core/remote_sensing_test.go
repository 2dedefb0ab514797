package core

import (
	"math"
	"testing"
)

func TestSensingState_Lifecycle(t *testing.T) {
	cfg := DefaultSensingConfig()
	// Threshold draw 0 -> 15 s; duration draw 0.5 -> (3+2)*0.75 = 3.75 s.
	rng := &SequenceRand{Values: []float64{0, 0.5}}
	s := SensingState{Timer: 14.99}

	if changed := s.Step(cfg, FrameStep, rng); !changed || !s.Active {
		t.Fatalf("expected activation once timer passes 15 s: %+v", s)
	}
	if s.Timer != 0 || s.ActiveDuration != 3.75 {
		t.Fatalf("after activation: %+v", s)
	}

	frames := 0
	for s.Active {
		s.Step(cfg, FrameStep, rng)
		frames++
		if frames > 1000 {
			t.Fatalf("sensing never deactivated")
		}
	}
	elapsed := float64(frames) * FrameStep
	if elapsed < 3.75 || elapsed > 3.75+2*FrameStep {
		t.Fatalf("active for %v s, want just over 3.75", elapsed)
	}
	if s.Timer != 0 {
		t.Fatalf("timer should reset on deactivation: %+v", s)
	}
}

func TestSensingState_NotBeforeBaseThreshold(t *testing.T) {
	cfg := DefaultSensingConfig()
	rng := &SequenceRand{Values: []float64{0}}
	s := SensingState{}
	for range int(14.9 / FrameStep) {
		if s.Step(cfg, FrameStep, rng) {
			t.Fatalf("activated at timer %v, before the 15 s floor", s.Timer)
		}
	}
}

func TestNewSensingState_Staggered(t *testing.T) {
	s := NewSensingState(DefaultSensingConfig(), &SequenceRand{Values: []float64{0.5}})
	if s.Timer != 15 || s.Active {
		t.Fatalf("NewSensingState = %+v, want timer 15 inactive", s)
	}
}

func TestSensingFootprint(t *testing.T) {
	cfg := DefaultSensingConfig()
	mars := Vec3{X: 12}
	start, surface, length, ok := SensingFootprint(cfg, Vec3{X: 12, Y: 2.5}, mars, 1.1)
	if !ok {
		t.Fatalf("SensingFootprint not ok")
	}
	if math.Abs(start.Y-2.35) > 1e-12 || math.Abs(surface.Y-1.1) > 1e-12 {
		t.Fatalf("start=%+v surface=%+v", start, surface)
	}
	if math.Abs(length-(2.35-1.1)/2) > 1e-12 {
		t.Fatalf("length = %v", length)
	}
	if _, _, _, ok := SensingFootprint(cfg, mars, mars, 1.1); ok {
		t.Fatalf("satellite at body center must not produce a cone")
	}
}
