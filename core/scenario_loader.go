package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/marslink-sim/model"
)

// ErrInvalidScenario is returned when a scenario document fails validation.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario describes the static scene built once at startup.
//
// YAML schema (v1):
//
//	version: 1
//	earth:
//	  radius: 2
//	  orbit_radius: 3.5
//	  satellites: 16
//	  link_range: 4          # multiple of radius
//	  ground_bands:
//	    - {lat_deg: -60, stations: 8}
//	  adversaries: 1
//	mars:
//	  center: {x: 12, y: 0, z: 0}
//	  ...
//	adversary_ground: {lat_deg: 0, lon_deg: 0}
//	relays:
//	  - {name: earth-to-mars, fraction: 0.3, lasers: true}
//	tle_time_scale: 200
//	tle:
//	  - {name: iss, body: earth, line1: "...", line2: "..."}
//
// Omitted keys keep the values from DefaultScenario.
type Scenario struct {
	Version         int             `yaml:"version"`
	Earth           BodySpec        `yaml:"earth"`
	Mars            BodySpec        `yaml:"mars"`
	AdversaryGround *GroundSiteSpec `yaml:"adversary_ground"`
	Relays          []RelaySpec     `yaml:"relays"`
	LaserStations   LaserSpec       `yaml:"laser_stations"`
	TLETimeScale    float64         `yaml:"tle_time_scale"`
	TLE             []TLESpec       `yaml:"tle"`
}

// BodySpec configures one planet and its constellation.
type BodySpec struct {
	Radius      float64          `yaml:"radius"`
	Center      model.Vec3       `yaml:"center"`
	OrbitRadius float64          `yaml:"orbit_radius"`
	Satellites  int              `yaml:"satellites"`
	MinSpeed    float64          `yaml:"min_speed"`
	MaxSpeed    float64          `yaml:"max_speed"`
	LinkRange   float64          `yaml:"link_range"`
	GroundBands []GroundBandSpec `yaml:"ground_bands"`
	Adversaries int              `yaml:"adversaries"`
}

// GroundBandSpec places Stations equally spaced in longitude at LatDeg.
type GroundBandSpec struct {
	LatDeg   float64 `yaml:"lat_deg"`
	Stations int     `yaml:"stations"`
}

// GroundSiteSpec is a single surface location.
type GroundSiteSpec struct {
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
}

// RelaySpec places a static relay spacecraft at Fraction of the
// Earth-Mars center line.
type RelaySpec struct {
	Name     string  `yaml:"name"`
	Fraction float64 `yaml:"fraction"`
	Lasers   bool    `yaml:"lasers"`
}

// LaserSpec positions the laser station pairs above each body's pole.
// Station pair i sits at z = Offsets[i].
type LaserSpec struct {
	Height  float64   `yaml:"height"`
	Offsets []float64 `yaml:"offsets"`
}

// TLESpec seeds an extra friendly satellite from a two-line element set.
type TLESpec struct {
	Name  string `yaml:"name"`
	Body  string `yaml:"body"`
	Line1 string `yaml:"line1"`
	Line2 string `yaml:"line2"`
}

// DefaultScenario returns the stock Earth-Mars scene.
func DefaultScenario() *Scenario {
	return &Scenario{
		Version: 1,
		Earth: BodySpec{
			Radius:      2,
			OrbitRadius: 3.5,
			Satellites:  16,
			MinSpeed:    0.2,
			MaxSpeed:    0.35,
			LinkRange:   4,
			GroundBands: []GroundBandSpec{
				{LatDeg: -60, Stations: 8},
				{LatDeg: -30, Stations: 8},
				{LatDeg: 0, Stations: 8},
				{LatDeg: 30, Stations: 8},
				{LatDeg: 60, Stations: 8},
			},
			Adversaries: 1,
		},
		Mars: BodySpec{
			Radius:      1.1,
			Center:      model.Vec3{X: 12},
			OrbitRadius: 2.5,
			Satellites:  8,
			MinSpeed:    0.2,
			MaxSpeed:    0.35,
			LinkRange:   3,
			GroundBands: []GroundBandSpec{
				{LatDeg: -45, Stations: 4},
				{LatDeg: 0, Stations: 4},
				{LatDeg: 45, Stations: 4},
			},
			Adversaries: 1,
		},
		AdversaryGround: &GroundSiteSpec{LatDeg: 0, LonDeg: 0},
		Relays: []RelaySpec{
			{Name: "earth-to-mars", Fraction: 0.3, Lasers: true},
			{Name: "mars-to-earth", Fraction: 0.7, Lasers: true},
		},
		LaserStations: LaserSpec{Height: 0.02, Offsets: []float64{0.1, -0.1}},
		TLETimeScale:  200,
	}
}

// LoadScenario decodes a YAML scenario on top of DefaultScenario and
// validates it. Unknown keys are rejected.
func LoadScenario(r io.Reader) (*Scenario, error) {
	sc := DefaultScenario()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// LoadScenarioFile reads a scenario from path. An empty path yields the
// default scene.
func LoadScenarioFile(path string) (*Scenario, error) {
	if path == "" {
		sc := DefaultScenario()
		return sc, sc.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %q: %w", path, err)
	}
	return LoadScenario(bytes.NewReader(b))
}

// Validate checks structural constraints and returns an error wrapping
// ErrInvalidScenario on the first violation.
func (sc *Scenario) Validate() error {
	if sc.Version != 1 {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidScenario, sc.Version)
	}
	if err := sc.Earth.validate("earth"); err != nil {
		return err
	}
	if err := sc.Mars.validate("mars"); err != nil {
		return err
	}
	if sc.Earth.Center.DistanceTo(sc.Mars.Center) <= sc.Earth.OrbitRadius+sc.Mars.OrbitRadius {
		return fmt.Errorf("%w: earth and mars orbit shells overlap", ErrInvalidScenario)
	}
	if g := sc.AdversaryGround; g != nil && !validSite(g.LatDeg, g.LonDeg) {
		return fmt.Errorf("%w: adversary_ground lat/lon out of range", ErrInvalidScenario)
	}
	seen := make(map[string]bool)
	for i, r := range sc.Relays {
		if r.Name == "" {
			return fmt.Errorf("%w: relays[%d].name is required", ErrInvalidScenario, i)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate relay %q", ErrInvalidScenario, r.Name)
		}
		seen[r.Name] = true
		if r.Fraction <= 0 || r.Fraction >= 1 {
			return fmt.Errorf("%w: relays[%d].fraction must be in (0,1)", ErrInvalidScenario, i)
		}
	}
	if sc.LaserStations.Height < 0 {
		return fmt.Errorf("%w: laser_stations.height must be >= 0", ErrInvalidScenario)
	}
	if len(sc.TLE) > 0 && sc.TLETimeScale <= 0 {
		return fmt.Errorf("%w: tle_time_scale must be positive", ErrInvalidScenario)
	}
	for i, t := range sc.TLE {
		if t.Name == "" {
			return fmt.Errorf("%w: tle[%d].name is required", ErrInvalidScenario, i)
		}
		if _, err := parseBody(t.Body); err != nil {
			return fmt.Errorf("%w: tle[%d]: %v", ErrInvalidScenario, i, err)
		}
	}
	return nil
}

func (b BodySpec) validate(name string) error {
	switch {
	case b.Radius <= 0:
		return fmt.Errorf("%w: %s.radius must be positive", ErrInvalidScenario, name)
	case b.OrbitRadius <= b.Radius:
		return fmt.Errorf("%w: %s.orbit_radius must exceed radius", ErrInvalidScenario, name)
	case b.Satellites < 0 || b.Adversaries < 0:
		return fmt.Errorf("%w: %s counts must be >= 0", ErrInvalidScenario, name)
	case b.MinSpeed < 0 || b.MaxSpeed < b.MinSpeed:
		return fmt.Errorf("%w: %s speed range invalid", ErrInvalidScenario, name)
	case b.LinkRange <= 0:
		return fmt.Errorf("%w: %s.link_range must be positive", ErrInvalidScenario, name)
	case !b.Center.IsFinite():
		return fmt.Errorf("%w: %s.center must be finite", ErrInvalidScenario, name)
	}
	for i, band := range b.GroundBands {
		if band.Stations < 0 || !validSite(band.LatDeg, 0) {
			return fmt.Errorf("%w: %s.ground_bands[%d] invalid", ErrInvalidScenario, name, i)
		}
	}
	return nil
}

func validSite(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -360 && lon <= 360 && !math.IsNaN(lat) && !math.IsNaN(lon)
}

func parseBody(s string) (model.Body, error) {
	switch s {
	case "earth", "":
		return model.BodyEarth, nil
	case "mars":
		return model.BodyMars, nil
	default:
		return 0, fmt.Errorf("unknown body %q", s)
	}
}
