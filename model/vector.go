package model

import "math"

// Vec3 is a scene-space vector. One unit is half an Earth radius.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v × other.
func (v Vec3) Cross(other Vec3) Vec3 {
	return Vec3{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Normalize returns the unit vector along v. ok is false for the zero
// vector, in which case the zero vector is returned.
func (v Vec3) Normalize() (unit Vec3, ok bool) {
	n := v.Norm()
	if n == 0 {
		return Vec3{}, false
	}
	return v.Scale(1 / n), true
}

// Lerp interpolates from v towards other by alpha.
func (v Vec3) Lerp(other Vec3, alpha float64) Vec3 {
	return Vec3{
		X: v.X + (other.X-v.X)*alpha,
		Y: v.Y + (other.Y-v.Y)*alpha,
		Z: v.Z + (other.Z-v.Z)*alpha,
	}
}

// AngleTo returns the angle between v and other in radians. It reports
// ok=false if either vector has zero length.
func (v Vec3) AngleTo(other Vec3) (angle float64, ok bool) {
	denom := v.Norm() * other.Norm()
	if denom == 0 {
		return 0, false
	}
	cos := v.Dot(other) / denom
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos), true
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
