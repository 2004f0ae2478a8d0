package geometry

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// RayPointDistance measures how far p is from the ray (origin, direction)
// for picking purposes. The displacement from origin to p is split into a
// component along the ray and a lateral component; the along-ray part is
// scaled by longitudinalScale before the two are recombined. A scale below
// one de-emphasizes depth, so a click favors laterally close points over
// points that merely sit near the camera along the view ray.
//
// direction need not be unit length; a zero direction yields +Inf.
func RayPointDistance(p, origin, direction v3.Vec, longitudinalScale float64) float64 {
	len2 := direction.Length2()
	if len2 == 0 {
		return math.Inf(1)
	}
	d := direction.DivScalar(math.Sqrt(len2))
	delta := p.Sub(origin)
	along := delta.Dot(d)
	lateral2 := delta.Length2() - along*along
	if lateral2 < 0 {
		lateral2 = 0
	}
	along *= longitudinalScale
	return math.Sqrt(lateral2 + along*along)
}
