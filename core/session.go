package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/marslink-sim/model"
)

// PairKind separates the session families. Each family has its own timing
// policy and its own key namespace, so the same two entity ids can never
// collide across families.
type PairKind int

const (
	PairEarthSatellites PairKind = iota
	PairMarsSatellites
	PairEarthGround
	PairMarsGround
)

func (k PairKind) String() string {
	switch k {
	case PairEarthSatellites:
		return "earth-satellites"
	case PairMarsSatellites:
		return "mars-satellites"
	case PairEarthGround:
		return "earth-ground"
	case PairMarsGround:
		return "mars-ground"
	default:
		return fmt.Sprintf("pair-kind-%d", int(k))
	}
}

// PairKey identifies a session. A is always the smaller id, so
// NewPairKey(k, a, b) == NewPairKey(k, b, a).
type PairKey struct {
	Kind PairKind
	A    model.EntityID
	B    model.EntityID
}

// NewPairKey builds an order-independent key for the pair (a, b).
func NewPairKey(kind PairKind, a, b model.EntityID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Kind: kind, A: a, B: b}
}

func (k PairKey) String() string {
	return fmt.Sprintf("%s/%d-%d", k.Kind, k.A, k.B)
}

// SessionPolicy holds the timing constants of one pair family. All values
// are simulated seconds except CloseDistance, which is in scene units.
// CloseDistance <= 0 disables the close override.
type SessionPolicy struct {
	InitialWindow float64
	MinDuration   float64
	MaxDuration   float64
	MinGap        float64
	MaxGap        float64
	CloseDistance float64
}

// DefaultSessionPolicies returns the stock timings for a scene with the
// given Earth and Mars radii.
func DefaultSessionPolicies(earthRadius, marsRadius float64) map[PairKind]SessionPolicy {
	return map[PairKind]SessionPolicy{
		PairEarthSatellites: {InitialWindow: 4, MinDuration: 2, MaxDuration: 6, MinGap: 1, MaxGap: 4, CloseDistance: 1.5 * earthRadius},
		PairMarsSatellites:  {InitialWindow: 4, MinDuration: 2, MaxDuration: 6, MinGap: 1, MaxGap: 4, CloseDistance: 1.5 * marsRadius},
		PairEarthGround:     {InitialWindow: 15, MinDuration: 1.5, MaxDuration: 4.5, MinGap: 8, MaxGap: 20},
		PairMarsGround:      {InitialWindow: 12, MinDuration: 1.5, MaxDuration: 4.5, MinGap: 6, MaxGap: 16},
	}
}

// Session is the scheduling state of one pair.
type Session struct {
	Communicating bool
	StartTime     float64
	Duration      float64
	NextStartTime float64
	Close         bool
}

// SessionTable owns every session created so far. Entries are created the
// first time a pair is eligible and are never removed; a pair that loses
// eligibility simply stops being advanced.
type SessionTable struct {
	policies map[PairKind]SessionPolicy
	rng      Rand
	sessions map[PairKey]*Session
}

// NewSessionTable builds an empty table. Kinds missing from policies fall
// back to a zero policy (no delay, zero-length sessions).
func NewSessionTable(policies map[PairKind]SessionPolicy, rng Rand) *SessionTable {
	if rng == nil {
		rng = NewRand(0)
	}
	return &SessionTable{
		policies: policies,
		rng:      rng,
		sessions: make(map[PairKey]*Session),
	}
}

// Advance runs one frame of the state machine for an eligible pair and
// reports whether the pair is communicating afterwards. distance is the
// current separation of the two endpoints; it only matters for families
// with a close override.
func (st *SessionTable) Advance(key PairKey, simTime, distance float64) bool {
	p := st.policies[key.Kind]

	s, ok := st.sessions[key]
	if !ok {
		s = &Session{NextStartTime: uniform(st.rng, 0, p.InitialWindow)}
		st.sessions[key] = s
	}

	if p.CloseDistance > 0 {
		s.Close = distance < p.CloseDistance
		if s.Close {
			s.Communicating = true
			return true
		}
	}

	if !s.Communicating {
		if simTime > s.NextStartTime {
			s.Communicating = true
			s.StartTime = simTime
			s.Duration = uniform(st.rng, p.MinDuration, p.MaxDuration)
		}
	} else if simTime-s.StartTime > s.Duration {
		s.Communicating = false
		s.NextStartTime = simTime + uniform(st.rng, p.MinGap, p.MaxGap)
	}
	return s.Communicating
}

// Get returns a copy of the session for key.
func (st *SessionTable) Get(key PairKey) (Session, bool) {
	s, ok := st.sessions[key]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of sessions ever created.
func (st *SessionTable) Len() int {
	return len(st.sessions)
}

// CountByKind returns session counts keyed by PairKind.String().
func (st *SessionTable) CountByKind() map[string]int {
	out := make(map[string]int)
	for k := range st.sessions {
		out[k.Kind.String()]++
	}
	return out
}

// Keys returns all session keys in a stable order.
func (st *SessionTable) Keys() []PairKey {
	keys := make([]PairKey, 0, len(st.sessions))
	for k := range st.sessions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	return keys
}
