package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/marslink-sim/kb"
	"github.com/signalsfoundry/marslink-sim/model"
)

// BodyState groups everything that orbits or stands on one planet.
// Positions are cached here each frame; the registry holds the same values
// for concurrent readers.
type BodyState struct {
	Body        model.Body
	Center      Vec3
	Radius      float64
	OrbitRadius float64
	// MaxLinkDistance is the absolute satellite-pair range limit.
	MaxLinkDistance float64

	Satellites  []*model.Entity
	Orbits      []MotionModel
	SatPos      []Vec3
	Stations    []*model.Entity
	StationPos  []Vec3
	Adversaries []*AdversaryState
	Sensing     []*SensingSatellite
}

// AdversaryState is the pursuit record of one adversary satellite.
type AdversaryState struct {
	Entity   *model.Entity
	Pursuit  PursuitState
	Position Vec3
}

// SensingSatellite links a friendly satellite to its sensing record.
type SensingSatellite struct {
	Entity *model.Entity
	// SatIndex is the satellite's index in BodyState.Satellites.
	SatIndex int
	State    SensingState
}

// LaserSystem is one pulse state machine mounted on a relay.
type LaserSystem struct {
	Relay  *model.Entity
	System int
	Path   LaserPath
	Pulse  *LaserPulse
}

// SimulationState is the single owner of all mutable simulation state.
// Only SimulationEngine.Step mutates it.
type SimulationState struct {
	FrameNumber uint64
	SimTime     float64

	Earth           *BodyState
	Mars            *BodyState
	AdversaryGround *model.Entity
	Relays          []*model.Entity
	RelayPos        []Vec3
	Lasers          []*LaserSystem

	Sessions *SessionTable
}

// Bodies returns Earth then Mars.
func (s *SimulationState) Bodies() []*BodyState {
	return []*BodyState{s.Earth, s.Mars}
}

// BuildOptions carries controller tuning into NewSimulationState.
type BuildOptions struct {
	Pursuit PursuitConfig
	Sensing SensingConfig
	Laser   LaserConfig
}

// DefaultBuildOptions returns the stock controller tuning.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Pursuit: DefaultPursuitConfig(),
		Sensing: DefaultSensingConfig(),
		Laser:   DefaultLaserConfig(),
	}
}

// NewSimulationState builds the scene described by sc, registers every
// entity in reg and returns the initial state at frame 0.
func NewSimulationState(sc *Scenario, reg *kb.Registry, opts BuildOptions, rng Rand) (*SimulationState, error) {
	if sc == nil || reg == nil {
		return nil, fmt.Errorf("%w: scenario and registry are required", ErrInvalidScenario)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewRand(0)
	}

	st := &SimulationState{
		Earth: newBodyState(model.BodyEarth, sc.Earth),
		Mars:  newBodyState(model.BodyMars, sc.Mars),
		Sessions: NewSessionTable(
			DefaultSessionPolicies(sc.Earth.Radius, sc.Mars.Radius), rng),
	}

	for _, b := range []struct {
		state *BodyState
		spec  BodySpec
	}{{st.Earth, sc.Earth}, {st.Mars, sc.Mars}} {
		if err := addSatellites(reg, b.state, b.spec, rng); err != nil {
			return nil, err
		}
	}
	for _, t := range sc.TLE {
		body, _ := parseBody(t.Body)
		bs := st.Earth
		if body == model.BodyMars {
			bs = st.Mars
		}
		params, err := OrbitFromTLE(t.Line1, t.Line2, bs.OrbitRadius, sc.TLETimeScale)
		if err != nil {
			return nil, fmt.Errorf("tle %q: %w", t.Name, err)
		}
		if err := addSatellite(reg, bs, t.Name, params); err != nil {
			return nil, err
		}
	}

	for _, b := range []struct {
		state *BodyState
		spec  BodySpec
	}{{st.Earth, sc.Earth}, {st.Mars, sc.Mars}} {
		if err := addGroundStations(reg, b.state, b.spec); err != nil {
			return nil, err
		}
	}
	if g := sc.AdversaryGround; g != nil {
		site := model.GroundSite{LatDeg: g.LatDeg, LonDeg: g.LonDeg}
		e := &model.Entity{
			Name: "earth-adversary-gs",
			Role: model.RoleAdversaryGroundStation,
			Body: model.BodyEarth,
			Site: &site,
		}
		pos := SurfacePosition(site, st.Earth.Center, st.Earth.Radius+0.01)
		if _, err := reg.Add(e, pos); err != nil {
			return nil, err
		}
		st.AdversaryGround = e
		st.Earth.Stations = append(st.Earth.Stations, e)
		st.Earth.StationPos = append(st.Earth.StationPos, pos)
	}

	for _, bs := range st.Bodies() {
		for i := range sc.bodySpec(bs.Body).Adversaries {
			pos := randomShellPoint(bs.Center, bs.OrbitRadius, rng)
			e := &model.Entity{
				Name:  fmt.Sprintf("%s-adversary-%d", bs.Body, i),
				Role:  model.RoleAdversarySatellite,
				Body:  bs.Body,
				Orbit: &model.OrbitParams{Radius: bs.OrbitRadius},
			}
			if _, err := reg.Add(e, pos); err != nil {
				return nil, err
			}
			bs.Adversaries = append(bs.Adversaries, &AdversaryState{
				Entity:   e,
				Pursuit:  NewPursuitState(opts.Pursuit, len(bs.Satellites), rng),
				Position: pos,
			})
		}
		for i := range len(bs.Satellites) / 2 {
			bs.Sensing = append(bs.Sensing, &SensingSatellite{
				Entity:   bs.Satellites[i],
				SatIndex: i,
				State:    NewSensingState(opts.Sensing, rng),
			})
		}
	}

	if err := addRelaysAndLasers(reg, st, sc, opts.Laser, rng); err != nil {
		return nil, err
	}
	return st, nil
}

func (sc *Scenario) bodySpec(b model.Body) BodySpec {
	if b == model.BodyMars {
		return sc.Mars
	}
	return sc.Earth
}

func newBodyState(body model.Body, spec BodySpec) *BodyState {
	return &BodyState{
		Body:            body,
		Center:          spec.Center,
		Radius:          spec.Radius,
		OrbitRadius:     spec.OrbitRadius,
		MaxLinkDistance: spec.LinkRange * spec.Radius,
	}
}

func addSatellites(reg *kb.Registry, bs *BodyState, spec BodySpec, rng Rand) error {
	for i := range spec.Satellites {
		params := model.OrbitParams{
			Radius:      spec.OrbitRadius,
			Inclination: uniform(rng, 0, math.Pi),
			Node:        uniform(rng, 0, 2*math.Pi),
			Phase:       uniform(rng, 0, 2*math.Pi),
			Speed:       uniform(rng, spec.MinSpeed, spec.MaxSpeed),
		}
		if err := addSatellite(reg, bs, fmt.Sprintf("%s-sat-%d", bs.Body, i), params); err != nil {
			return err
		}
	}
	return nil
}

func addSatellite(reg *kb.Registry, bs *BodyState, name string, params model.OrbitParams) error {
	orbit := &CircularOrbit{Center: bs.Center, Params: params}
	pos := orbit.Position(0)
	e := &model.Entity{
		Name:  name,
		Role:  model.RoleFriendlySatellite,
		Body:  bs.Body,
		Orbit: &orbit.Params,
	}
	if _, err := reg.Add(e, pos); err != nil {
		return err
	}
	bs.Satellites = append(bs.Satellites, e)
	bs.Orbits = append(bs.Orbits, orbit)
	bs.SatPos = append(bs.SatPos, pos)
	return nil
}

func addGroundStations(reg *kb.Registry, bs *BodyState, spec BodySpec) error {
	for bi, band := range spec.GroundBands {
		for j := range band.Stations {
			site := model.GroundSite{
				LatDeg: band.LatDeg,
				LonDeg: 360 / float64(band.Stations) * float64(j),
			}
			pos := SurfacePosition(site, bs.Center, bs.Radius+0.01)
			e := &model.Entity{
				Name: fmt.Sprintf("%s-gs-%d-%d", bs.Body, bi, j),
				Role: model.RoleGroundStation,
				Body: bs.Body,
				Site: &site,
			}
			if _, err := reg.Add(e, pos); err != nil {
				return err
			}
			bs.Stations = append(bs.Stations, e)
			bs.StationPos = append(bs.StationPos, pos)
		}
	}
	return nil
}

func addRelaysAndLasers(reg *kb.Registry, st *SimulationState, sc *Scenario, cfg LaserConfig, rng Rand) error {
	var paths []LaserPath
	for i, z := range sc.LaserStations.Offsets {
		earth := st.Earth.Center.Add(Vec3{Y: st.Earth.Radius + sc.LaserStations.Height, Z: z})
		mars := st.Mars.Center.Add(Vec3{Y: st.Mars.Radius + sc.LaserStations.Height, Z: z})
		for _, ep := range []struct {
			body model.Body
			pos  Vec3
		}{{model.BodyEarth, earth}, {model.BodyMars, mars}} {
			e := &model.Entity{
				Name: fmt.Sprintf("%s-laser-%d", ep.body, i),
				Role: model.RoleLaserStation,
				Body: ep.body,
			}
			if _, err := reg.Add(e, ep.pos); err != nil {
				return err
			}
		}
		paths = append(paths, LaserPath{Earth: earth, Mars: mars})
	}

	for _, r := range sc.Relays {
		pos := st.Earth.Center.Lerp(st.Mars.Center, r.Fraction)
		e := &model.Entity{
			Name: "relay-" + r.Name,
			Role: model.RoleSpacecraft,
			Body: model.BodyEarth,
		}
		if r.Fraction > 0.5 {
			e.Body = model.BodyMars
		}
		if _, err := reg.Add(e, pos); err != nil {
			return err
		}
		st.Relays = append(st.Relays, e)
		st.RelayPos = append(st.RelayPos, pos)
		if !r.Lasers || len(paths) == 0 {
			continue
		}
		for sys, dir := range []LaserDirection{EarthToMars, MarsToEarth} {
			st.Lasers = append(st.Lasers, &LaserSystem{
				Relay:  e,
				System: sys,
				Path:   paths[sys%len(paths)],
				Pulse:  NewLaserPulse(cfg, dir, rng),
			})
		}
	}
	return nil
}

// randomShellPoint draws a uniform point on the sphere (center, radius).
func randomShellPoint(center Vec3, radius float64, rng Rand) Vec3 {
	z := uniform(rng, -1, 1)
	phi := uniform(rng, 0, 2*math.Pi)
	rxy := math.Sqrt(1 - z*z)
	return center.Add(Vec3{X: rxy * math.Cos(phi), Y: rxy * math.Sin(phi), Z: z}.Scale(radius))
}
