// Package trimesh implements the triangle mesh geometry type. Meshes come
// from PLY files with face topology or STL files, are stored as indexed
// float32 buffers offset-relative, and carry an R-tree over triangle bounds
// so ray picking degenerates to the nearest surface intersection.
package trimesh

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/peterdachuan/displaz/pkg/geometry"
	"github.com/peterdachuan/displaz/pkg/geometry/ply"
	"github.com/peterdachuan/displaz/pkg/render"
)

// Compile-time interface check.
var _ geometry.Geometry = (*TriMesh)(nil)

func init() {
	geometry.Register(func(fileName string) (geometry.Geometry, bool) {
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".stl":
			return New(), true
		case ".ply":
			h, err := ply.Sniff(fileName)
			if err == nil && h.HasFaces() {
				return New(), true
			}
		}
		return nil, false
	})
}

// TriMesh is an indexed triangle mesh with progressive point drawing and
// ray-intersection picking.
type TriMesh struct {
	geometry.Base

	mu sync.RWMutex
	// verts holds x,y,z float32 triples, offset-relative.
	verts []float32
	// normals holds one accumulated unit normal per vertex.
	normals []float32
	// faces holds triangle vertex indices.
	faces []uint32
	// edgePositions holds precomputed unique edge segment endpoints for
	// DrawLines, two triples per segment.
	edgePositions []float32
	cursor        int
	drawLimit     int
	tree          *rtreego.Rtree
}

// New returns an empty mesh.
func New() *TriMesh {
	return &TriMesh{drawLimit: geometry.DefaultDrawLimit}
}

// SetDrawLimit overrides the per-call vertex cap. Values below one restore
// the default.
func (m *TriMesh) SetDrawLimit(limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < 1 {
		limit = geometry.DefaultDrawLimit
	}
	m.drawLimit = limit
}

// PointCount returns the number of vertices currently held.
func (m *TriMesh) PointCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.verts) / 3
}

// TriangleCount returns the number of triangles currently held.
func (m *TriMesh) TriangleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces) / 3
}

// ReloadFile loads again from the file of the previous successful load.
func (m *TriMesh) ReloadFile(ctx context.Context, maxVertexCount int) error {
	fileName := m.FileName()
	if fileName == "" {
		return errNothingLoaded
	}
	return m.LoadFile(ctx, fileName, maxVertexCount)
}

// DrawPoints feeds the mesh vertex set to prog under the same quality and
// incremental contract as a point cloud.
func (m *TriMesh) DrawPoints(prog render.Program, trans *render.TransformState, quality float64, incremental bool) geometry.DrawCount {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.verts) / 3
	target := geometry.DrawTarget(n, quality)
	if !incremental || m.cursor > target {
		m.cursor = 0
	}
	count := target - m.cursor
	if count > m.drawLimit {
		count = m.drawLimit
	}
	if count > 0 && prog != nil {
		prog.DrawPoints(m.verts[m.cursor*3 : (m.cursor+count)*3])
	}
	m.cursor += count
	return geometry.DrawCount{NumVertices: float64(count), MoreToDraw: m.cursor < target}
}

// DrawEdges feeds the unique edge set to prog.
func (m *TriMesh) DrawEdges(prog render.Program, trans *render.TransformState) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.edgePositions) > 0 && prog != nil {
		prog.DrawLines(m.edgePositions)
	}
}

// DrawFaces feeds the indexed triangles with per-vertex normals to prog.
func (m *TriMesh) DrawFaces(prog render.Program, trans *render.TransformState) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.faces) > 0 && prog != nil {
		prog.DrawTriangles(m.verts, m.normals, m.faces)
	}
}

// EstimateCost mirrors DrawPoints: per quality, the vertices a full draw
// still has to shade, MoreToDraw when that exceeds the per-call limit.
func (m *TriMesh) EstimateCost(trans *render.TransformState, incremental bool, qualities []float64) []geometry.DrawCount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make([]geometry.DrawCount, len(qualities))
	n := len(m.verts) / 3
	for i, q := range qualities {
		remaining := geometry.DrawTarget(n, q)
		if incremental {
			remaining -= m.cursor
			if remaining < 0 {
				remaining = 0
			}
		}
		counts[i] = geometry.DrawCount{
			NumVertices: float64(remaining),
			MoreToDraw:  remaining > m.drawLimit,
		}
	}
	return counts
}

// PickVertex returns the nearest ray-surface intersection when the ray hits
// the mesh, and otherwise falls back to the scaled-metric closest vertex.
// ok is false for an empty mesh or degenerate ray.
func (m *TriMesh) PickVertex(rayOrigin, rayDirection v3.Vec, longitudinalScale float64) (v3.Vec, float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.verts) == 0 || rayDirection.Length2() == 0 {
		return v3.Vec{}, math.Inf(1), false
	}

	offset := m.Offset()
	origin := rayOrigin.Sub(offset)
	dir := rayDirection.Normalize()

	if t, ok := m.nearestIntersection(origin, dir); ok {
		pos := origin.Add(dir.MulScalar(t))
		return pos.Add(offset), math.Abs(longitudinalScale * t), true
	}

	// No surface hit: closest vertex under the pick metric.
	best := math.Inf(1)
	var bestPt v3.Vec
	for i := 0; i+2 < len(m.verts); i += 3 {
		pt := v3.Vec{
			X: float64(m.verts[i]),
			Y: float64(m.verts[i+1]),
			Z: float64(m.verts[i+2]),
		}
		dist := geometry.RayPointDistance(pt, origin, dir, longitudinalScale)
		if dist < best {
			best = dist
			bestPt = pt
		}
	}
	return bestPt.Add(offset), best, true
}

// nearestIntersection finds the smallest non-negative ray parameter t at
// which the ray hits a triangle. Candidate triangles come from the R-tree,
// queried with the bounds of the ray segment clipped to the mesh box.
func (m *TriMesh) nearestIntersection(origin, dir v3.Vec) (float64, bool) {
	if m.tree == nil {
		return 0, false
	}
	t0, t1, ok := clipRayToBox(origin, dir, m.BoundingBox(), 1e-6)
	if !ok {
		return 0, false
	}
	a := origin.Add(dir.MulScalar(t0))
	b := origin.Add(dir.MulScalar(t1))
	lo := a.Min(b)
	size := a.Max(b).Sub(lo)
	rect, err := rtreego.NewRect(
		rtreego.Point{lo.X, lo.Y, lo.Z},
		[]float64{size.X + rectPad, size.Y + rectPad, size.Z + rectPad},
	)
	if err != nil {
		return 0, false
	}

	best := math.Inf(1)
	found := false
	for _, sp := range m.tree.SearchIntersect(rect) {
		e := sp.(*triEntry)
		i0, i1, i2 := m.faces[e.face*3], m.faces[e.face*3+1], m.faces[e.face*3+2]
		t, ok := rayTriangle(origin, dir, m.vertex(i0), m.vertex(i1), m.vertex(i2))
		if ok && t < best {
			best = t
			found = true
		}
	}
	return best, found
}

func (m *TriMesh) vertex(i uint32) v3.Vec {
	return v3.Vec{
		X: float64(m.verts[i*3]),
		Y: float64(m.verts[i*3+1]),
		Z: float64(m.verts[i*3+2]),
	}
}

// rectPad keeps R-tree rectangles strictly positive in every dimension;
// axis-aligned triangles otherwise produce zero-extent rectangles.
const rectPad = 1e-9

// triEntry is one triangle in the pick acceleration index.
type triEntry struct {
	rect rtreego.Rect
	face int
}

func (e *triEntry) Bounds() rtreego.Rect {
	return e.rect
}

// rayTriangle is the Möller-Trumbore ray/triangle intersection. It returns
// the ray parameter of the hit, requiring t >= 0.
func rayTriangle(o, d, a, b, c v3.Vec) (float64, bool) {
	const eps = 1e-12
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	pv := d.Cross(e2)
	det := e1.Dot(pv)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1.0 / det
	tv := o.Sub(a)
	u := tv.Dot(pv) * inv
	if u < -1e-9 || u > 1+1e-9 {
		return 0, false
	}
	qv := tv.Cross(e1)
	v := d.Dot(qv) * inv
	if v < -1e-9 || u+v > 1+1e-9 {
		return 0, false
	}
	t := e2.Dot(qv) * inv
	if t < 0 {
		return 0, false
	}
	return t, true
}

// clipRayToBox intersects the ray with box inflated by pad, returning the
// entry and exit parameters clamped to t >= 0.
func clipRayToBox(o, d v3.Vec, box sdf.Box3, pad float64) (float64, float64, bool) {
	lo := v3.Vec{X: box.Min.X - pad, Y: box.Min.Y - pad, Z: box.Min.Z - pad}
	hi := v3.Vec{X: box.Max.X + pad, Y: box.Max.Y + pad, Z: box.Max.Z + pad}
	t0 := 0.0
	t1 := math.Inf(1)
	origin := [3]float64{o.X, o.Y, o.Z}
	dir := [3]float64{d.X, d.Y, d.Z}
	bmin := [3]float64{lo.X, lo.Y, lo.Z}
	bmax := [3]float64{hi.X, hi.Y, hi.Z}
	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < bmin[i] || origin[i] > bmax[i] {
				return 0, 0, false
			}
			continue
		}
		ta := (bmin[i] - origin[i]) / dir[i]
		tb := (bmax[i] - origin[i]) / dir[i]
		if ta > tb {
			ta, tb = tb, ta
		}
		if ta > t0 {
			t0 = ta
		}
		if tb < t1 {
			t1 = tb
		}
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}
