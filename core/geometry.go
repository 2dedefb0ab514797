package core

import (
	"math"

	"github.com/signalsfoundry/marslink-sim/model"
)

// Vec3 is the scene-space vector used throughout the simulation.
type Vec3 = model.Vec3

// SegmentClearsSphere checks whether the straight segment between p1 and p2
// stays strictly outside the sphere (center, radius). If the closest point
// of the segment lies inside or on the sphere, the body blocks the
// line-of-sight and the function returns false.
func SegmentClearsSphere(p1, p2, center Vec3, radius float64) bool {
	a := p1.Sub(center)
	v := p2.Sub(p1)
	lenSq := v.Dot(v)
	if lenSq == 0 {
		// Degenerate case: same point. The closest point is the point itself.
		return a.Norm() > radius
	}

	// t* minimises |a + t v|^2 over t ∈ ℝ, clamped to the segment.
	t := -a.Dot(v) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := a.Add(v.Scale(t))
	return closest.Norm() > radius
}

// IsVisible reports whether a communication link between a and b is
// geometrically possible: the endpoints are closer than maxDistance and
// the occluding body does not block the segment between them.
func IsVisible(a, b, occluderCenter Vec3, occluderRadius, maxDistance float64) bool {
	if a.DistanceTo(b) >= maxDistance {
		return false
	}
	return SegmentClearsSphere(a, b, occluderCenter, occluderRadius)
}

// WithinGroundCone reports whether the satellite lies within maxAngle
// (radians) of the station's zenith, both measured from the body center.
// Zero-length vectors are never visible.
func WithinGroundCone(station, sat, center Vec3, maxAngle float64) bool {
	angle, ok := station.Sub(center).AngleTo(sat.Sub(center))
	if !ok {
		return false
	}
	return angle < maxAngle
}

// SurfacePosition places a site on a sphere of the given radius around
// center. Latitude is measured from the XZ plane towards +Y.
func SurfacePosition(site model.GroundSite, center Vec3, radius float64) Vec3 {
	lat := degToRad(site.LatDeg)
	lon := degToRad(site.LonDeg)
	return Vec3{
		X: center.X + radius*math.Cos(lat)*math.Cos(lon),
		Y: center.Y + radius*math.Sin(lat),
		Z: center.Z + radius*math.Cos(lat)*math.Sin(lon),
	}
}

// ProjectOntoShell rescales pos so it lies exactly radius away from center.
// ok is false when pos coincides with center; pos is then returned as is.
func ProjectOntoShell(pos, center Vec3, radius float64) (Vec3, bool) {
	unit, ok := pos.Sub(center).Normalize()
	if !ok {
		return pos, false
	}
	return center.Add(unit.Scale(radius)), true
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}
