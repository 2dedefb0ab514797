package core

// SensingConfig tunes the remote-sensing activity controller.
type SensingConfig struct {
	// An inactive satellite activates once its timer exceeds
	// BaseThreshold + U(0, ThresholdJitter). The threshold is redrawn
	// every frame.
	BaseThreshold   float64
	ThresholdJitter float64
	// Active duration is (MinActive + U(0, ActiveJitter)) * ActiveScale.
	MinActive    float64
	ActiveJitter float64
	ActiveScale  float64
	// InitialTimerMax staggers satellites at startup: timer = U(0, max).
	InitialTimerMax float64
	// BeamOffset moves the cone start toward the body center.
	BeamOffset float64
}

// DefaultSensingConfig returns the stock sensing tuning.
func DefaultSensingConfig() SensingConfig {
	return SensingConfig{
		BaseThreshold:   15,
		ThresholdJitter: 15,
		MinActive:       3,
		ActiveJitter:    4,
		ActiveScale:     0.75,
		InitialTimerMax: 30,
		BeamOffset:      0.15,
	}
}

// SensingState is the per-satellite sensing record.
type SensingState struct {
	Timer          float64
	Active         bool
	ActiveDuration float64
}

// NewSensingState returns an inactive record with a staggered timer.
func NewSensingState(cfg SensingConfig, rng Rand) SensingState {
	return SensingState{Timer: uniform(rng, 0, cfg.InitialTimerMax)}
}

// Step advances the record by dt and reports whether Active flipped.
func (s *SensingState) Step(cfg SensingConfig, dt float64, rng Rand) bool {
	s.Timer += dt
	if !s.Active {
		if s.Timer > cfg.BaseThreshold+rng.Float64()*cfg.ThresholdJitter {
			s.Active = true
			s.ActiveDuration = (cfg.MinActive + rng.Float64()*cfg.ActiveJitter) * cfg.ActiveScale
			s.Timer = 0
			return true
		}
		return false
	}
	if s.Timer > s.ActiveDuration {
		s.Active = false
		s.Timer = 0
		return true
	}
	return false
}

// SensingFootprint returns the rendered footprint of an active satellite: the
// cone starts BeamOffset toward the body center, points at the surface
// point below the satellite and is half as long as the remaining distance.
// ok is false when the satellite sits at the body center.
func SensingFootprint(cfg SensingConfig, sat, center Vec3, bodyRadius float64) (start, surface Vec3, length float64, ok bool) {
	down, ok := center.Sub(sat).Normalize()
	if !ok {
		return sat, center, 0, false
	}
	surface = center.Sub(down.Scale(bodyRadius))
	start = sat.Add(down.Scale(cfg.BeamOffset))
	return start, surface, start.DistanceTo(surface) * 0.5, true
}
