package trimesh

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/peterdachuan/displaz/pkg/render"
)

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const quadPLY = `ply
format ascii 1.0
element vertex 4
property float x
property float y
property float z
element face 2
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
1 1 0
0 1 0
3 0 1 2
3 0 2 3
`

// asciiSTL renders triangles as an ascii STL body.
func asciiSTL(tris [][3]v3.Vec) []byte {
	var sb strings.Builder
	sb.WriteString("solid test\n")
	for _, tri := range tris {
		sb.WriteString(" facet normal 0 0 0\n  outer loop\n")
		for _, v := range tri {
			fmt.Fprintf(&sb, "   vertex %g %g %g\n", v.X, v.Y, v.Z)
		}
		sb.WriteString("  endloop\n endfacet\n")
	}
	sb.WriteString("endsolid test\n")
	return []byte(sb.String())
}

// binarySTL renders triangles as a binary STL body.
func binarySTL(tris [][3]v3.Vec) []byte {
	var buf bytes.Buffer
	buf.Write(make([]byte, 80))
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(tris)))
	buf.Write(count[:])
	writeF32 := func(f float64) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(f)))
		buf.Write(b[:])
	}
	for _, tri := range tris {
		writeF32(0)
		writeF32(0)
		writeF32(0) // normal, recomputed on load
		for _, v := range tri {
			writeF32(v.X)
			writeF32(v.Y)
			writeF32(v.Z)
		}
		buf.Write([]byte{0, 0})
	}
	return buf.Bytes()
}

func unitTriangle() [][3]v3.Vec {
	return [][3]v3.Vec{{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
	}}
}

func mustLoad(t *testing.T, path string, budget int) *TriMesh {
	t.Helper()
	m := New()
	if err := m.LoadFile(context.Background(), path, budget); err != nil {
		t.Fatalf("LoadFile(%s): %v", path, err)
	}
	return m
}

func TestLoadPLYMesh(t *testing.T) {
	path := writeTemp(t, "quad.ply", []byte(quadPLY))
	m := mustLoad(t, path, 1000)

	if m.PointCount() != 4 {
		t.Errorf("point count = %d, want 4", m.PointCount())
	}
	if m.TriangleCount() != 2 {
		t.Errorf("triangle count = %d, want 2", m.TriangleCount())
	}
	bbox := m.BoundingBox()
	if bbox.Min != (v3.Vec{}) || bbox.Max != (v3.Vec{X: 1, Y: 1, Z: 0}) {
		t.Errorf("bbox = %+v", bbox)
	}
	abs := m.Centroid().Add(m.Offset())
	if abs.Sub(v3.Vec{X: 0.5, Y: 0.5, Z: 0}).Length() > 1e-9 {
		t.Errorf("absolute centroid = %+v", abs)
	}
}

func TestLoadSTLAscii(t *testing.T) {
	// A tetrahedron repeats each vertex in three facets; loading must
	// deduplicate down to 4 vertices.
	a := v3.Vec{X: 0, Y: 0, Z: 0}
	b := v3.Vec{X: 1, Y: 0, Z: 0}
	c := v3.Vec{X: 0, Y: 1, Z: 0}
	d := v3.Vec{X: 0, Y: 0, Z: 1}
	tris := [][3]v3.Vec{{a, b, c}, {a, b, d}, {a, c, d}, {b, c, d}}

	m := mustLoad(t, writeTemp(t, "tet.stl", asciiSTL(tris)), 1000)
	if m.PointCount() != 4 {
		t.Errorf("point count = %d, want 4", m.PointCount())
	}
	if m.TriangleCount() != 4 {
		t.Errorf("triangle count = %d, want 4", m.TriangleCount())
	}
}

func TestLoadSTLBinary(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "tri.stl", binarySTL(unitTriangle())), 1000)
	if m.PointCount() != 3 {
		t.Errorf("point count = %d, want 3", m.PointCount())
	}
	if m.TriangleCount() != 1 {
		t.Errorf("triangle count = %d, want 1", m.TriangleCount())
	}
}

func TestPickSurfaceIntersection(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "tri.stl", asciiSTL(unitTriangle())), 1000)

	origin := v3.Vec{X: 0.2, Y: 0.2, Z: 1}
	dir := v3.Vec{Z: -1}

	pos, dist, ok := m.PickVertex(origin, dir, 1)
	if !ok {
		t.Fatal("expected a pick")
	}
	want := v3.Vec{X: 0.2, Y: 0.2, Z: 0}
	if pos.Sub(want).Length() > 1e-6 {
		t.Errorf("picked %+v, want %+v", pos, want)
	}
	if math.Abs(dist-1) > 1e-9 {
		t.Errorf("distance = %f, want 1", dist)
	}

	// The intersection lies along the ray, so the distance scales with
	// the longitudinal factor.
	_, dist, _ = m.PickVertex(origin, dir, 0.5)
	if math.Abs(dist-0.5) > 1e-9 {
		t.Errorf("scaled distance = %f, want 0.5", dist)
	}
}

func TestPickFallsBackToVertex(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "tri.stl", asciiSTL(unitTriangle())), 1000)

	// This ray misses the triangle; the pick falls back to the closest
	// vertex under the scaled metric, which is (1,0,0).
	origin := v3.Vec{X: 5, Y: 4, Z: 1}
	dir := v3.Vec{Z: -1}

	pos, dist, ok := m.PickVertex(origin, dir, 1)
	if !ok {
		t.Fatal("expected a pick")
	}
	if pos != (v3.Vec{X: 1, Y: 0, Z: 0}) {
		t.Errorf("picked %+v, want (1,0,0)", pos)
	}
	// Displacement (-4,-4,-1): 1 along the ray, sqrt(32) lateral.
	want := math.Sqrt(32 + 1)
	if math.Abs(dist-want) > 1e-6 {
		t.Errorf("distance = %f, want %f", dist, want)
	}
}

func TestPickEmpty(t *testing.T) {
	m := New()
	_, dist, ok := m.PickVertex(v3.Vec{}, v3.Vec{X: 1}, 1)
	if ok {
		t.Error("empty mesh should not pick")
	}
	if !math.IsInf(dist, 1) {
		t.Errorf("distance = %f, want +Inf", dist)
	}
}

func TestDrawFacesAndEdges(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "quad.ply", []byte(quadPLY)), 1000)
	trans := render.NewTransformState(800, 600)

	prog := &render.CountingProgram{}
	m.DrawFaces(prog, trans)
	if prog.Triangles != 2 {
		t.Errorf("faces drew %d triangles, want 2", prog.Triangles)
	}

	prog.Reset()
	m.DrawEdges(prog, trans)
	// The fan-triangulated quad has 5 unique edges: 4 sides + 1 diagonal.
	if prog.Segments != 5 {
		t.Errorf("edges drew %d segments, want 5", prog.Segments)
	}
}

func TestDrawPointsContract(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "quad.ply", []byte(quadPLY)), 1000)
	m.SetDrawLimit(3)
	trans := render.NewTransformState(800, 600)

	est := m.EstimateCost(trans, false, []float64{1.0})[0]
	if est.NumVertices != 4 || !est.MoreToDraw {
		t.Fatalf("estimate = %+v", est)
	}

	prog := &render.CountingProgram{}
	dc := m.DrawPoints(prog, trans, 1.0, false)
	if dc.NumVertices != 3 || !dc.MoreToDraw {
		t.Fatalf("first draw = %+v", dc)
	}
	dc = m.DrawPoints(prog, trans, 1.0, true)
	if dc.NumVertices != 1 || dc.MoreToDraw {
		t.Fatalf("second draw = %+v", dc)
	}
	if prog.Points != 4 {
		t.Errorf("program saw %d points, want 4", prog.Points)
	}
}

func TestDecimationRespectsBudget(t *testing.T) {
	// A long triangle strip: 2x100 vertices, 198 triangles.
	var tris [][3]v3.Vec
	for i := 0; i < 99; i++ {
		x0 := float64(i)
		x1 := float64(i + 1)
		a := v3.Vec{X: x0, Y: 0}
		b := v3.Vec{X: x1, Y: 0}
		c := v3.Vec{X: x0, Y: 1}
		d := v3.Vec{X: x1, Y: 1}
		tris = append(tris, [3]v3.Vec{a, b, c}, [3]v3.Vec{b, d, c})
	}
	path := writeTemp(t, "strip.stl", asciiSTL(tris))

	const budget = 10
	m := mustLoad(t, path, budget)
	if m.PointCount() > budget {
		t.Errorf("point count = %d exceeds budget %d", m.PointCount(), budget)
	}
	if m.PointCount() == 0 || m.TriangleCount() == 0 {
		t.Errorf("decimation destroyed the mesh: %d verts, %d faces",
			m.PointCount(), m.TriangleCount())
	}

	// Picking still works on the simplified surface.
	_, _, ok := m.PickVertex(v3.Vec{X: 50, Y: 0.5, Z: 5}, v3.Vec{Z: -1}, 1)
	if !ok {
		t.Error("pick failed on decimated mesh")
	}
}

func TestLoadFailureRollback(t *testing.T) {
	data := binarySTL(unitTriangle())
	data = data[:len(data)-10] // size no longer matches the count

	m := New()
	err := m.LoadFile(context.Background(), writeTemp(t, "bad.stl", data), 1000)
	if err == nil {
		t.Fatal("expected load failure")
	}
	if m.PointCount() != 0 || m.FileName() != "" {
		t.Errorf("failed load mutated state: count=%d name=%q", m.PointCount(), m.FileName())
	}
}

func TestReloadWithoutLoad(t *testing.T) {
	m := New()
	if err := m.ReloadFile(context.Background(), 100); err == nil {
		t.Fatal("expected error reloading before any load")
	}
}

func TestMonotonicCost(t *testing.T) {
	m := mustLoad(t, writeTemp(t, "quad.ply", []byte(quadPLY)), 1000)
	counts := m.EstimateCost(nil, false, []float64{0, 0.3, 0.6, 1.0})
	for i := 1; i < len(counts); i++ {
		if counts[i].NumVertices < counts[i-1].NumVertices {
			t.Fatalf("estimates not monotonic: %+v", counts)
		}
	}
}
