// Package geometry defines the shared interface for progressively loaded,
// level-of-detail-rendered spatial geometry. Concrete types (pointcloud,
// trimesh) implement Geometry behind this interface; the viewer drives them
// through the factory, the load contract, and the per-frame draw/estimate
// cycle without knowing which type it holds.
package geometry

import (
	"context"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/peterdachuan/displaz/pkg/render"
)

// DefaultDrawLimit is the per-call vertex cap used by concrete types unless
// overridden. Draw calls exceeding it report MoreToDraw and continue on the
// next incremental frame.
const DefaultDrawLimit = 1 << 20

// Geometry is the shared interface for all displaz geometry types.
//
// Loading runs once (typically on a worker goroutine) and publishes file
// name, offset, centroid and bounding box atomically on success. Drawing,
// estimation and picking run on the render path and never block on a load
// in flight; they serve the best available state.
type Geometry interface {
	// LoadFile loads geometry from fileName, retaining at most
	// maxVertexCount vertices and simplifying if the source is larger.
	// Progress is reported to registered observers: a step description at
	// the start of each loading phase and a non-decreasing percentage
	// ending at 100 on success. On error the publicly visible state is
	// left untouched.
	LoadFile(ctx context.Context, fileName string, maxVertexCount int) error

	// ReloadFile loads again from the file of the previous successful
	// LoadFile, with a fresh vertex budget.
	ReloadFile(ctx context.Context, maxVertexCount int) error

	// PointCount returns the number of vertices currently held.
	PointCount() int

	// DrawPoints feeds point vertex data to prog, which must already be
	// bound and fully configured by the caller. quality trades fidelity
	// for cost; incremental continues a previous partial draw instead of
	// restarting. The returned count reflects what this call shaded and
	// whether more remains at this quality.
	DrawPoints(prog render.Program, trans *render.TransformState, quality float64, incremental bool) DrawCount

	// DrawEdges feeds edge data to prog. No-op for types without edges.
	DrawEdges(prog render.Program, trans *render.TransformState)

	// DrawFaces feeds face data to prog. No-op for types without faces.
	DrawFaces(prog render.Program, trans *render.TransformState)

	// EstimateCost reports, per quality, the DrawCount a full draw at that
	// quality would shade under the given transform, without touching any
	// state. Estimates are monotonic in quality. MoreToDraw is set when
	// the amount exceeds the per-call limit, i.e. further incremental
	// frames would be needed. An empty qualities slice yields an empty
	// result.
	EstimateCost(trans *render.TransformState, incremental bool, qualities []float64) []DrawCount

	// PickVertex returns the vertex closest to the given ray, where
	// "closest" scales the displacement component along the ray direction
	// by longitudinalScale before combining with the lateral component.
	// This de-emphasizes depth so sparse point picks match what the user
	// aimed at. Mesh types return the nearest ray-surface intersection
	// when one exists. ok is false when the geometry holds no data.
	PickVertex(rayOrigin, rayDirection v3.Vec, longitudinalScale float64) (pos v3.Vec, dist float64, ok bool)

	// FileName returns the source of the geometry.
	FileName() string

	// Offset returns the translation subtracted from all vertex positions
	// before float32 storage. Chosen once at load; never changes for the
	// lifetime of the object.
	Offset() v3.Vec

	// Centroid returns the geometric centre of mass, offset-relative.
	Centroid() v3.Vec

	// BoundingBox returns the axis-aligned bounds, offset-relative.
	BoundingBox() sdf.Box3

	// AddObserver registers a load progress observer.
	AddObserver(obs LoadObserver)
}

// DrawTarget maps a quality to the vertex count a full draw at that quality
// covers, out of numVertices total. quality clamps to [0,1]; the mapping is
// monotonic, which concrete types rely on for the EstimateCost contract.
func DrawTarget(numVertices int, quality float64) int {
	if numVertices <= 0 || quality <= 0 {
		return 0
	}
	if quality >= 1 {
		return numVertices
	}
	t := int(math.Ceil(float64(numVertices) * quality))
	if t > numVertices {
		t = numVertices
	}
	return t
}
