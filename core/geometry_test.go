package core

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/marslink-sim/model"
)

func TestSegmentClearsSphere_NoObstruction(t *testing.T) {
	// Two satellites on the same side of Earth; the segment stays at y = 3.
	posA := Vec3{X: -3.5, Y: 3, Z: 0}
	posB := Vec3{X: 3.5, Y: 3, Z: 0}

	if !SegmentClearsSphere(posA, posB, Vec3{}, 2) {
		t.Errorf("expected LoS between two satellites on the same side of Earth")
	}
}

func TestSegmentClearsSphere_Obstructed(t *testing.T) {
	// Two points on opposite sides: the chord passes through the body.
	posA := Vec3{X: 3.5}
	posB := Vec3{X: -3.5}

	if SegmentClearsSphere(posA, posB, Vec3{}, 2) {
		t.Errorf("expected LoS to be blocked by Earth")
	}
}

func TestSegmentClearsSphere_OffsetCenter(t *testing.T) {
	mars := Vec3{X: 12}
	posA := Vec3{X: 12 + 2.5}
	posB := Vec3{X: 12 - 2.5}
	if SegmentClearsSphere(posA, posB, mars, 1.1) {
		t.Errorf("expected Mars to block the chord through its center")
	}
	if !SegmentClearsSphere(Vec3{X: 12 + 2.5, Z: 2}, Vec3{X: 12 - 2.5, Z: 2}, mars, 1.1) {
		t.Errorf("expected chord above Mars to be clear")
	}
}

func TestSegmentClearsSphere_DegenerateSegment(t *testing.T) {
	p := Vec3{X: 3}
	if !SegmentClearsSphere(p, p, Vec3{}, 2) {
		t.Errorf("zero-length segment outside the sphere should be clear")
	}
	q := Vec3{X: 1}
	if SegmentClearsSphere(q, q, Vec3{}, 2) {
		t.Errorf("zero-length segment inside the sphere should be blocked")
	}
}

func TestIsVisible_Distance(t *testing.T) {
	a := Vec3{X: -3.5, Y: 3}
	b := Vec3{X: 3.5, Y: 3}
	if !IsVisible(a, b, Vec3{}, 2, 8) {
		t.Fatalf("7 units apart with max 8 should be visible")
	}
	if IsVisible(a, b, Vec3{}, 2, 7) {
		t.Fatalf("distance equal to max must not be visible")
	}
}

func TestIsVisible_Symmetric(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	randomPoint := func() Vec3 {
		return Vec3{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64()*10 - 5}
	}
	for i := range 2000 {
		a, b := randomPoint(), randomPoint()
		ab := IsVisible(a, b, Vec3{}, 2, 8)
		ba := IsVisible(b, a, Vec3{}, 2, 8)
		if ab != ba {
			t.Fatalf("case %d: IsVisible(a,b)=%v IsVisible(b,a)=%v for a=%+v b=%+v", i, ab, ba, a, b)
		}
	}
}

func TestWithinGroundCone(t *testing.T) {
	center := Vec3{}
	station := SurfacePosition(model.GroundSite{LatDeg: 0, LonDeg: 0}, center, 2.01)

	tests := []struct {
		name     string
		angleDeg float64
		want     bool
	}{
		{"overhead", 0, true},
		{"inside", 19, true},
		{"outside", 25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := degToRad(tt.angleDeg)
			sat := Vec3{X: 3.5 * math.Cos(a), Z: 3.5 * math.Sin(a)}
			if got := WithinGroundCone(station, sat, center, degToRad(20)); got != tt.want {
				t.Fatalf("WithinGroundCone at %v° = %v, want %v", tt.angleDeg, got, tt.want)
			}
		})
	}

	if WithinGroundCone(station, center, center, degToRad(20)) {
		t.Fatalf("satellite at the body center must not be visible")
	}
}

func TestSurfacePosition(t *testing.T) {
	mars := Vec3{X: 12}
	pos := SurfacePosition(model.GroundSite{LatDeg: 90}, mars, 1.11)
	if math.Abs(pos.X-12) > 1e-9 || math.Abs(pos.Y-1.11) > 1e-9 || math.Abs(pos.Z) > 1e-9 {
		t.Fatalf("north pole position = %+v", pos)
	}
	pos = SurfacePosition(model.GroundSite{LatDeg: 0, LonDeg: 90}, Vec3{}, 2)
	if math.Abs(pos.Z-2) > 1e-9 || math.Abs(pos.X) > 1e-9 {
		t.Fatalf("lon 90 position = %+v, want +Z", pos)
	}
}

func TestProjectOntoShell(t *testing.T) {
	center := Vec3{X: 12}
	got, ok := ProjectOntoShell(Vec3{X: 20, Y: 0}, center, 2.5)
	if !ok || math.Abs(got.DistanceTo(center)-2.5) > 1e-12 {
		t.Fatalf("ProjectOntoShell = %+v, %v", got, ok)
	}
	got, ok = ProjectOntoShell(center, center, 2.5)
	if ok || got != center {
		t.Fatalf("degenerate ProjectOntoShell = %+v, %v", got, ok)
	}
}
