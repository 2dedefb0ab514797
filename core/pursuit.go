package core

// PursuitConfig tunes the adversary steering controller.
type PursuitConfig struct {
	// Standoff is the distance the adversary tries to keep short of its
	// target along the line between them.
	Standoff float64
	// Smoothing is the fraction of the remaining gap closed per frame.
	Smoothing float64
	// MinRetarget and MaxRetarget bound the follow interval in seconds.
	MinRetarget float64
	MaxRetarget float64
	// BeamOffset moves the rendered beam start off the adversary body.
	BeamOffset float64
}

// DefaultPursuitConfig returns the stock adversary tuning.
func DefaultPursuitConfig() PursuitConfig {
	return PursuitConfig{
		Standoff:    0.4,
		Smoothing:   0.02,
		MinRetarget: 7,
		MaxRetarget: 10,
		BeamOffset:  0.15,
	}
}

// PursuitState is the per-adversary controller record.
type PursuitState struct {
	TargetIndex int
	FollowTime  float64
	TargetTime  float64
}

// NewPursuitState picks a uniform initial target among n friendlies and
// samples the first follow interval.
func NewPursuitState(cfg PursuitConfig, n int, rng Rand) PursuitState {
	st := PursuitState{TargetTime: uniform(rng, cfg.MinRetarget, cfg.MaxRetarget)}
	if n > 0 {
		st.TargetIndex = rng.IntN(n)
	}
	return st
}

// PursuitStep advances one adversary by dt. targets holds the current
// positions of the friendly satellites it may follow; center and radius
// describe its orbital shell. It returns the new position and whether a
// new target was chosen this frame.
//
// With a single friendly the target never changes; with none the adversary
// holds position. A zero-length steering direction skips the steering step
// and a zero-length shell vector keeps the previous position.
func PursuitStep(cfg PursuitConfig, st *PursuitState, pos Vec3, targets []Vec3, center Vec3, radius, dt float64, rng Rand) (Vec3, bool) {
	st.FollowTime += dt
	if len(targets) == 0 {
		return pos, false
	}

	retargeted := false
	if st.FollowTime > st.TargetTime {
		if len(targets) > 1 {
			next := st.TargetIndex
			for next == st.TargetIndex {
				next = rng.IntN(len(targets))
			}
			st.TargetIndex = next
			retargeted = true
		}
		st.FollowTime = 0
		st.TargetTime = uniform(rng, cfg.MinRetarget, cfg.MaxRetarget)
	}
	if st.TargetIndex >= len(targets) {
		st.TargetIndex = 0
	}

	target := targets[st.TargetIndex]
	dir, ok := target.Sub(pos).Normalize()
	if !ok {
		return pos, retargeted
	}
	desired := target.Sub(dir.Scale(cfg.Standoff))
	moved := pos.Lerp(desired, cfg.Smoothing)

	projected, ok := ProjectOntoShell(moved, center, radius)
	if !ok {
		return pos, retargeted
	}
	return projected, retargeted
}

// BeamStart returns the point BeamOffset along the line from the adversary
// toward its target. ok is false when the two coincide.
func BeamStart(cfg PursuitConfig, adversary, target Vec3) (Vec3, bool) {
	dir, ok := target.Sub(adversary).Normalize()
	if !ok {
		return adversary, false
	}
	return adversary.Add(dir.Scale(cfg.BeamOffset)), true
}
