package geometry

import (
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestRayPointDistanceLateralOnly(t *testing.T) {
	// Point sits 3 units to the side of a ray along +x.
	origin := v3.Vec{}
	dir := v3.Vec{X: 1}
	p := v3.Vec{X: 10, Y: 3}

	d := RayPointDistance(p, origin, dir, 1)
	want := math.Sqrt(9 + 100)
	if math.Abs(d-want) > 1e-12 {
		t.Errorf("scale 1 distance = %f, want %f", d, want)
	}

	// With scale 0 the 10 units of depth vanish; only laterality counts.
	d = RayPointDistance(p, origin, dir, 0)
	if math.Abs(d-3) > 1e-12 {
		t.Errorf("scale 0 distance = %f, want 3", d)
	}
}

func TestRayPointDistanceAsymmetric(t *testing.T) {
	// Manual computation for an asymmetric case: ray from (1,2,3) along
	// +z, point at (2,2,8). Displacement (1,0,5): along = 5, lateral = 1.
	origin := v3.Vec{X: 1, Y: 2, Z: 3}
	dir := v3.Vec{Z: 4} // non-unit on purpose
	p := v3.Vec{X: 2, Y: 2, Z: 8}

	scale := 0.5
	got := RayPointDistance(p, origin, dir, scale)
	want := math.Sqrt(1 + (0.5*5)*(0.5*5))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("distance = %f, want %f", got, want)
	}
}

func TestRayPointDistanceDegenerateDirection(t *testing.T) {
	d := RayPointDistance(v3.Vec{X: 1}, v3.Vec{}, v3.Vec{}, 1)
	if !math.IsInf(d, 1) {
		t.Errorf("zero direction should give +Inf, got %f", d)
	}
}
