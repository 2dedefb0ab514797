package core

import "fmt"

// PulseState is the phase of a laser pulse cycle.
type PulseState int

const (
	PulseIdle PulseState = iota
	PulseSending
	PulseRetracting
)

func (s PulseState) String() string {
	switch s {
	case PulseIdle:
		return "idle"
	case PulseSending:
		return "sending"
	case PulseRetracting:
		return "retracting"
	default:
		return fmt.Sprintf("pulse-state-%d", int(s))
	}
}

// LaserDirection is the fixed direction of one laser system.
type LaserDirection int

const (
	EarthToMars LaserDirection = iota
	MarsToEarth
)

func (d LaserDirection) String() string {
	if d == MarsToEarth {
		return "mars-to-earth"
	}
	return "earth-to-mars"
}

// LaserConfig holds the pulse kinematics. Speeds are path fractions per
// simulated second.
type LaserConfig struct {
	PulseSpeed     float64
	PulseLength    float64
	RetractSpeed   float64
	MinInterval    float64
	IntervalJitter float64
}

// DefaultLaserConfig returns the stock pulse timings.
func DefaultLaserConfig() LaserConfig {
	return LaserConfig{
		PulseSpeed:     0.5,
		PulseLength:    0.4,
		RetractSpeed:   1.0,
		MinInterval:    2,
		IntervalJitter: 4,
	}
}

// LaserPulse is one pulse state machine. Progress values are fractions of
// the station-to-station path measured from the origin station.
type LaserPulse struct {
	Direction       LaserDirection
	State           PulseState
	PulseTime       float64
	PulseProgress   float64
	RetractProgress float64
	TailAtHit       float64
	NextInterval    float64
}

// NewLaserPulse returns an idle pulse with its first interval sampled.
func NewLaserPulse(cfg LaserConfig, dir LaserDirection, rng Rand) *LaserPulse {
	return &LaserPulse{
		Direction:    dir,
		NextInterval: uniform(rng, cfg.MinInterval, cfg.MinInterval+cfg.IntervalJitter),
	}
}

// Step advances the pulse by dt and reports whether a new pulse was fired.
func (p *LaserPulse) Step(cfg LaserConfig, dt float64, rng Rand) bool {
	p.PulseTime += dt
	switch p.State {
	case PulseIdle:
		if p.PulseTime > p.NextInterval {
			p.State = PulseSending
			p.PulseTime = 0
			p.PulseProgress = 0
			p.RetractProgress = 0
			p.NextInterval = uniform(rng, cfg.MinInterval, cfg.MinInterval+cfg.IntervalJitter)
			return true
		}
	case PulseSending:
		p.PulseProgress += cfg.PulseSpeed * dt
		if p.PulseProgress >= 1 {
			p.TailAtHit = max(0, p.PulseProgress-cfg.PulseLength)
			p.State = PulseRetracting
			p.PulseTime = 0
		}
	case PulseRetracting:
		p.RetractProgress += cfg.RetractSpeed * dt
		if p.RetractProgress >= 1 {
			p.State = PulseIdle
			p.PulseTime = 0
		}
	}
	return false
}

// Segment returns the lit part of the path as [tail, head] fractions.
// ok is false while idle.
func (p *LaserPulse) Segment(cfg LaserConfig) (tail, head float64, ok bool) {
	switch p.State {
	case PulseSending:
		return max(0, p.PulseProgress-cfg.PulseLength), p.PulseProgress, true
	case PulseRetracting:
		return p.TailAtHit + p.RetractProgress*(1-p.TailAtHit), 1, true
	default:
		return 0, 0, false
	}
}

// LaserPath is the straight line between a pair of laser ground stations.
type LaserPath struct {
	Earth Vec3
	Mars  Vec3
}

// Point returns the position at fraction f along the path for the given
// direction; f = 0 is the origin station.
func (lp LaserPath) Point(dir LaserDirection, f float64) Vec3 {
	from, to := lp.Earth, lp.Mars
	if dir == MarsToEarth {
		from, to = lp.Mars, lp.Earth
	}
	return from.Lerp(to, f)
}
