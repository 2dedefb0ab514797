package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/marslink-sim/model"
)

// ErrInvalidTLE is returned when a TLE cannot seed a scene orbit.
var ErrInvalidTLE = errors.New("invalid TLE")

// MotionModel yields an entity's position for a given simulated time in
// seconds.
type MotionModel interface {
	Position(simSeconds float64) Vec3
}

// StaticMotionModel keeps the entity at a fixed position.
type StaticMotionModel struct {
	At Vec3
}

// Position for static motion ignores time.
func (m *StaticMotionModel) Position(float64) Vec3 {
	return m.At
}

// CircularOrbit moves an entity along an inclined circular orbit around
// Center. The position is always exactly Params.Radius from Center.
type CircularOrbit struct {
	Center Vec3
	Params model.OrbitParams
}

// Position evaluates the orbit at simSeconds.
func (o *CircularOrbit) Position(simSeconds float64) Vec3 {
	p := o.Params
	return OrbitPosition(simSeconds, p.Radius, o.Center, p.Inclination, p.Node, p.Phase, p.Speed)
}

// OrbitPosition maps time and orbital parameters to a position: a point on
// a flat circle in the body's equatorial plane, rotated by inclination
// about X, then by node about the polar (Z) axis, then translated by center.
func OrbitPosition(t, radius float64, center Vec3, inclination, node, phase, speed float64) Vec3 {
	theta := phase + t*speed

	x1 := radius * math.Cos(theta)
	y1 := radius * math.Sin(theta)

	// Inclination about X (z1 is 0 on the flat circle).
	x2 := x1
	y2 := y1 * math.Cos(inclination)
	z2 := y1 * math.Sin(inclination)

	// Ascending node about Z.
	x := x2*math.Cos(node) - y2*math.Sin(node)
	y := x2*math.Sin(node) + y2*math.Cos(node)

	return Vec3{X: center.X + x, Y: center.Y + y, Z: center.Z + z2}
}

// OrbitFromTLE seeds scene orbit parameters from a two-line element set.
// The SGP4 state vector at the TLE epoch fixes the orbital plane and the
// argument of latitude; the mean angular rate is multiplied by timeScale so
// that a real orbit plays back at scene speed. The scene radius is supplied
// by the caller because the scene is not to scale.
func OrbitFromTLE(line1, line2 string, radius, timeScale float64) (params model.OrbitParams, err error) {
	if radius <= 0 || timeScale <= 0 {
		return model.OrbitParams{}, fmt.Errorf("%w: radius and time scale must be positive", ErrInvalidTLE)
	}
	epoch, err := tleEpoch(line1)
	if err != nil {
		return model.OrbitParams{}, err
	}

	defer func() {
		// go-satellite panics on malformed element fields.
		if r := recover(); r != nil {
			params = model.OrbitParams{}
			err = fmt.Errorf("%w: %v", ErrInvalidTLE, r)
		}
	}()

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	year, month, day := epoch.Date()
	hour, min, sec := epoch.Clock()
	posECI, velECI := satellite.Propagate(sat, year, int(month), day, hour, min, sec)

	r := Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}
	v := Vec3{X: velECI.X, Y: velECI.Y, Z: velECI.Z}
	if !r.IsFinite() || !v.IsFinite() || r.Norm() == 0 {
		return model.OrbitParams{}, fmt.Errorf("%w: propagation failed at epoch %s", ErrInvalidTLE, epoch.Format(time.RFC3339))
	}

	return orbitFromStateVector(r, v, radius, timeScale)
}

// orbitFromStateVector converts a position/velocity pair into the
// (inclination, node, phase, speed) parametrisation used by OrbitPosition.
func orbitFromStateVector(r, v Vec3, radius, timeScale float64) (model.OrbitParams, error) {
	h := r.Cross(v)
	hNorm := h.Norm()
	rNorm := r.Norm()
	if hNorm == 0 || rNorm == 0 {
		return model.OrbitParams{}, fmt.Errorf("%w: degenerate state vector", ErrInvalidTLE)
	}

	inclination := math.Acos(clamp(h.Z/hNorm, -1, 1))

	// Node vector n = k × h.
	n := Vec3{X: -h.Y, Y: h.X}
	var node, phase float64
	if n.Norm() < 1e-12 {
		// Equatorial orbit: node is undefined, measure phase from +X.
		node = 0
		phase = math.Atan2(r.Y, r.X)
		if h.Z < 0 {
			phase = -phase
		}
	} else {
		node = math.Atan2(n.Y, n.X)
		u, _ := n.AngleTo(r)
		if r.Z < 0 {
			u = 2*math.Pi - u
		}
		phase = u
	}

	return model.OrbitParams{
		Radius:      radius,
		Inclination: inclination,
		Node:        wrapAngle(node),
		Phase:       wrapAngle(phase),
		Speed:       hNorm / (rNorm * rNorm) * timeScale,
	}, nil
}

// tleEpoch parses the epoch field (columns 19-32) of TLE line 1.
func tleEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 || !strings.HasPrefix(line1, "1 ") {
		return time.Time{}, fmt.Errorf("%w: line 1 too short or mislabelled", ErrInvalidTLE)
	}
	field := strings.TrimSpace(line1[18:32])
	if len(field) < 3 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrInvalidTLE, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year %q: %v", ErrInvalidTLE, field[:2], err)
	}
	days, err := strconv.ParseFloat(field[2:], 64)
	if err != nil || days < 1 || days >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, field[2:])
	}
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((days - 1) * float64(24*time.Hour))), nil
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
