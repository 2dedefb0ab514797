package core

import "github.com/signalsfoundry/marslink-sim/model"

// ConnectivityService evaluates which entity pairs are geometrically able
// to talk each frame, runs the session scheduler for every eligible pair
// and returns the committed link set.
type ConnectivityService struct {
	Sessions *SessionTable

	// GroundConeDeg is the maximum angle, seen from the body center,
	// between a ground station and a satellite it can reach.
	GroundConeDeg float64
}

// NewConnectivityService wires the service to a session table.
func NewConnectivityService(sessions *SessionTable) *ConnectivityService {
	return &ConnectivityService{
		Sessions:      sessions,
		GroundConeDeg: 20,
	}
}

// UpdateConnectivity evaluates every candidate pair at st.SimTime using the
// positions cached in st. Eligible pairs advance their sessions; pairs that
// are not eligible leave their sessions untouched.
func (cs *ConnectivityService) UpdateConnectivity(st *SimulationState) []CommLink {
	var links []CommLink
	cone := degToRad(cs.GroundConeDeg)

	links = cs.satellitePairs(links, st.Earth, PairEarthSatellites, LinkEarthSatellites, st.SimTime)
	links = cs.satellitePairs(links, st.Mars, PairMarsSatellites, LinkMarsSatellites, st.SimTime)
	links = cs.groundPairs(links, st.Earth, PairEarthGround, st.SimTime, cone)
	links = cs.groundPairs(links, st.Mars, PairMarsGround, st.SimTime, cone)

	// The adversary station's downlink to its own satellite bypasses the
	// session scheduler.
	if idx := stationIndex(st.Earth, st.AdversaryGround); idx >= 0 {
		gs := st.AdversaryGround
		gsPos := st.Earth.StationPos[idx]
		for _, adv := range st.Earth.Adversaries {
			if WithinGroundCone(gsPos, adv.Position, st.Earth.Center, cone) {
				links = append(links, CommLink{
					Kind: LinkAdversaryDownlink,
					A:    gs.ID,
					B:    adv.Entity.ID,
					From: gsPos,
					To:   adv.Position,
				})
			}
		}
	}
	return links
}

func (cs *ConnectivityService) satellitePairs(links []CommLink, bs *BodyState, kind PairKind, tag LinkKind, simTime float64) []CommLink {
	n := len(bs.Satellites)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := bs.SatPos[i], bs.SatPos[j]
			if !IsVisible(a, b, bs.Center, bs.Radius, bs.MaxLinkDistance) {
				continue
			}
			ea, eb := bs.Satellites[i], bs.Satellites[j]
			key := NewPairKey(kind, ea.ID, eb.ID)
			if cs.Sessions.Advance(key, simTime, a.DistanceTo(b)) {
				links = append(links, CommLink{Kind: tag, A: ea.ID, B: eb.ID, From: a, To: b})
			}
		}
	}
	return links
}

func (cs *ConnectivityService) groundPairs(links []CommLink, bs *BodyState, kind PairKind, simTime, cone float64) []CommLink {
	for si, gs := range bs.Stations {
		gsPos := bs.StationPos[si]
		tag := groundLinkKind(bs.Body, gs.Role)
		for i, sat := range bs.Satellites {
			satPos := bs.SatPos[i]
			if !WithinGroundCone(gsPos, satPos, bs.Center, cone) {
				continue
			}
			key := NewPairKey(kind, gs.ID, sat.ID)
			if cs.Sessions.Advance(key, simTime, gsPos.DistanceTo(satPos)) {
				links = append(links, CommLink{Kind: tag, A: gs.ID, B: sat.ID, From: gsPos, To: satPos})
			}
		}
	}
	return links
}

func groundLinkKind(body model.Body, role model.Role) LinkKind {
	switch {
	case body == model.BodyMars:
		return LinkMarsGround
	case role == model.RoleAdversaryGroundStation:
		return LinkEarthAdversaryGround
	default:
		return LinkEarthGround
	}
}

func stationIndex(bs *BodyState, e *model.Entity) int {
	if e == nil {
		return -1
	}
	for i, s := range bs.Stations {
		if s == e {
			return i
		}
	}
	return -1
}
