package core

import (
	"math/rand/v2"
	"time"
)

// Rand is the randomness source used by every controller. Tests inject a
// scripted implementation; production uses a PCG generator.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). n must be > 0.
	IntN(n int) int
}

// NewRand returns a PCG-backed Rand. A zero seed draws one from the wall
// clock so unseeded runs differ.
func NewRand(seed uint64) Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SequenceRand replays a fixed list of Float64 values in a loop. IntN maps
// the next value onto [0, n).
type SequenceRand struct {
	Values []float64
	next   int
}

// Float64 returns the next scripted value, or 0 when none are scripted.
func (s *SequenceRand) Float64() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	v := s.Values[s.next%len(s.Values)]
	s.next++
	return v
}

// IntN scales the next scripted value onto [0, n).
func (s *SequenceRand) IntN(n int) int {
	i := int(s.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// uniform samples U(lo, hi).
func uniform(r Rand, lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}
