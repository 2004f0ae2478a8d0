package trimesh

import (
	"bufio"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/chewxy/math32"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/dhconnelly/rtreego"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/peterdachuan/displaz/pkg/geometry/ply"
)

var errNothingLoaded = errors.New("trimesh: no file has been loaded")

// ctxCheckInterval is how many records pass between cancellation checks.
const ctxCheckInterval = 4096

// LoadFile reads a mesh from fileName, decimating to at most maxVertexCount
// vertices when the source is larger. On success the file name, offset,
// centroid and bounding box are published atomically; on error no publicly
// visible state changes.
func (m *TriMesh) LoadFile(ctx context.Context, fileName string, maxVertexCount int) error {
	if maxVertexCount <= 0 {
		return errors.Errorf("trimesh: vertex budget %d must be positive", maxVertexCount)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.BeginLoad()

	var (
		md  *meshData
		err error
	)
	if strings.ToLower(filepath.Ext(fileName)) == ".stl" {
		md, err = m.loadSTL(ctx, fileName)
	} else {
		md, err = m.loadPLY(ctx, fileName)
	}
	if err != nil {
		return err
	}
	if len(md.verts) == 0 || len(md.faces) == 0 {
		return errors.Errorf("trimesh: no usable mesh data in %s", fileName)
	}

	if len(md.verts) > maxVertexCount {
		m.StepStarted("simplifying mesh")
		md.decimate(maxVertexCount)
		if len(md.faces) == 0 {
			return errors.Errorf("trimesh: simplification left no faces in %s", fileName)
		}
	}

	m.StepStarted("building index")
	built := buildMesh(md)
	m.Progress(99)

	m.mu.Lock()
	m.verts = built.verts
	m.normals = built.normals
	m.faces = built.faces
	m.edgePositions = built.edges
	m.tree = built.tree
	m.cursor = 0
	m.mu.Unlock()
	m.Commit(fileName, built.offset, built.centroid, built.bbox)
	m.Progress(100)
	return nil
}

// meshData is the format-independent assembly buffer: absolute double
// precision vertices, triangle indices, and a dedup map for formats like
// STL that repeat vertices per facet.
type meshData struct {
	verts []v3.Vec
	faces []uint32
	dedup map[v3.Vec]uint32
}

func newMeshData() *meshData {
	return &meshData{dedup: make(map[v3.Vec]uint32)}
}

// vertexIndex returns the index for p, deduplicating exact repeats.
func (md *meshData) vertexIndex(p v3.Vec) uint32 {
	if i, ok := md.dedup[p]; ok {
		return i
	}
	i := uint32(len(md.verts))
	md.verts = append(md.verts, p)
	md.dedup[p] = i
	return i
}

func (md *meshData) addTriangle(a, b, c v3.Vec) {
	i0 := md.vertexIndex(a)
	i1 := md.vertexIndex(b)
	i2 := md.vertexIndex(c)
	if i0 == i1 || i1 == i2 || i0 == i2 {
		return // degenerate
	}
	md.faces = append(md.faces, i0, i1, i2)
}

// decimate clusters vertices on a uniform grid with at most budget cells,
// replacing each cluster by its centroid and dropping faces that collapse.
// Cluster count is bounded by g^3 <= budget, which bounds PointCount.
func (md *meshData) decimate(budget int) {
	g := int(math.Cbrt(float64(budget)))
	if g < 1 {
		g = 1
	}

	lo := md.verts[0]
	hi := md.verts[0]
	for _, v := range md.verts {
		lo = lo.Min(v)
		hi = hi.Max(v)
	}
	size := hi.Sub(lo)

	cellOf := func(v float64, lo, size float64) int {
		if size <= 0 {
			return 0
		}
		c := int(float64(g) * (v - lo) / size)
		if c < 0 {
			c = 0
		}
		if c >= g {
			c = g - 1
		}
		return c
	}

	type cluster struct {
		sum v3.Vec
		n   int
	}
	cells := make(map[int]int) // cell key -> new vertex index
	clusters := make([]cluster, 0, budget)
	remap := make([]uint32, len(md.verts))
	for i, v := range md.verts {
		key := cellOf(v.X, lo.X, size.X) +
			g*(cellOf(v.Y, lo.Y, size.Y)+g*cellOf(v.Z, lo.Z, size.Z))
		ci, ok := cells[key]
		if !ok {
			ci = len(clusters)
			cells[key] = ci
			clusters = append(clusters, cluster{})
		}
		clusters[ci].sum = clusters[ci].sum.Add(v)
		clusters[ci].n++
		remap[i] = uint32(ci)
	}

	verts := make([]v3.Vec, len(clusters))
	for i, c := range clusters {
		verts[i] = c.sum.DivScalar(float64(c.n))
	}

	faces := md.faces[:0]
	for f := 0; f+2 < len(md.faces); f += 3 {
		i0 := remap[md.faces[f]]
		i1 := remap[md.faces[f+1]]
		i2 := remap[md.faces[f+2]]
		if i0 == i1 || i1 == i2 || i0 == i2 {
			continue
		}
		faces = append(faces, i0, i1, i2)
	}

	md.verts = verts
	md.faces = faces
	md.dedup = nil
}

// builtMesh is the render-ready result of a load: offset-relative float32
// buffers plus the pick index.
type builtMesh struct {
	offset   v3.Vec
	centroid v3.Vec
	bbox     sdf.Box3
	verts    []float32
	normals  []float32
	edges    []float32
	faces    []uint32
	tree     *rtreego.Rtree
}

func buildMesh(md *meshData) *builtMesh {
	b := &builtMesh{faces: md.faces}
	b.offset = v3.Vec{
		X: math.Floor(md.verts[0].X),
		Y: math.Floor(md.verts[0].Y),
		Z: math.Floor(md.verts[0].Z),
	}

	// Offset-relative vertex buffer plus centroid and bounds.
	b.verts = make([]float32, 0, len(md.verts)*3)
	var sum v3.Vec
	var lo, hi v3.Vec
	for i, v := range md.verts {
		rel := v.Sub(b.offset)
		if i == 0 {
			lo, hi = rel, rel
		} else {
			lo = lo.Min(rel)
			hi = hi.Max(rel)
		}
		sum = sum.Add(rel)
		b.verts = append(b.verts, float32(rel.X), float32(rel.Y), float32(rel.Z))
	}
	b.centroid = sum.DivScalar(float64(len(md.verts)))
	b.bbox = sdf.Box3{Min: lo, Max: hi}

	b.normals = vertexNormals(b.verts, md.faces)
	b.edges = edgeSegments(b.verts, md.faces)

	b.tree = rtreego.NewTree(3, 25, 50)
	for f := 0; f+2 < len(md.faces); f += 3 {
		tlo, thi := triBounds(b.verts, md.faces[f], md.faces[f+1], md.faces[f+2])
		rect, err := rtreego.NewRect(
			rtreego.Point{tlo.X, tlo.Y, tlo.Z},
			[]float64{thi.X - tlo.X + rectPad, thi.Y - tlo.Y + rectPad, thi.Z - tlo.Z + rectPad},
		)
		if err != nil {
			continue
		}
		b.tree.Insert(&triEntry{rect: rect, face: f / 3})
	}
	return b
}

func triBounds(verts []float32, i0, i1, i2 uint32) (lo, hi v3.Vec) {
	a := vecAt(verts, i0)
	b := vecAt(verts, i1)
	c := vecAt(verts, i2)
	return a.Min(b).Min(c), a.Max(b).Max(c)
}

func vecAt(verts []float32, i uint32) v3.Vec {
	return v3.Vec{
		X: float64(verts[i*3]),
		Y: float64(verts[i*3+1]),
		Z: float64(verts[i*3+2]),
	}
}

// vertexNormals accumulates area-weighted face normals per vertex and
// normalizes the result.
func vertexNormals(verts []float32, faces []uint32) []float32 {
	normals := make([]float32, len(verts))
	for f := 0; f+2 < len(faces); f += 3 {
		a := vecAt(verts, faces[f])
		b := vecAt(verts, faces[f+1])
		c := vecAt(verts, faces[f+2])
		n := b.Sub(a).Cross(c.Sub(a))
		for _, i := range faces[f : f+3] {
			normals[i*3] += float32(n.X)
			normals[i*3+1] += float32(n.Y)
			normals[i*3+2] += float32(n.Z)
		}
	}
	for i := 0; i+2 < len(normals); i += 3 {
		l := math32.Sqrt(normals[i]*normals[i] + normals[i+1]*normals[i+1] + normals[i+2]*normals[i+2])
		if l > 0 {
			normals[i] /= l
			normals[i+1] /= l
			normals[i+2] /= l
		}
	}
	return normals
}

// edgeSegments returns endpoint pairs for the unique undirected edge set.
func edgeSegments(verts []float32, faces []uint32) []float32 {
	seen := make(map[uint64]struct{}, len(faces))
	var segs []float32
	addEdge := func(i, j uint32) {
		if i > j {
			i, j = j, i
		}
		key := uint64(i)<<32 | uint64(j)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		segs = append(segs,
			verts[i*3], verts[i*3+1], verts[i*3+2],
			verts[j*3], verts[j*3+1], verts[j*3+2])
	}
	for f := 0; f+2 < len(faces); f += 3 {
		addEdge(faces[f], faces[f+1])
		addEdge(faces[f+1], faces[f+2])
		addEdge(faces[f+2], faces[f])
	}
	return segs
}

// loadPLY reads vertices and fan-triangulated faces from a PLY file.
func (m *TriMesh) loadPLY(ctx context.Context, fileName string) (*meshData, error) {
	m.StepStarted("reading header")
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "trimesh: open")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := ply.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	vcount := h.VertexCount()
	if vcount == 0 {
		return nil, errors.Errorf("trimesh: no vertex data in %s", fileName)
	}
	fel := h.Element("face")
	fcount := 0
	if fel != nil {
		fcount = fel.Count
	}
	m.Progress(5)

	md := newMeshData()
	md.verts = make([]v3.Vec, 0, vcount)
	rows := 0
	m.StepStarted("reading vertices")
	onVertex := func(x, y, z float64) error {
		if rows%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.Progress(5 + int(45*float64(rows)/float64(vcount)))
		}
		md.verts = append(md.verts, v3.Vec{X: x, Y: y, Z: z})
		rows++
		return nil
	}

	faceRows := 0
	badFaces := 0
	startedFaces := false
	onFace := func(idx []int) error {
		if !startedFaces {
			m.StepStarted("reading faces")
			startedFaces = true
		}
		if faceRows%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if fcount > 0 {
				m.Progress(50 + int(35*float64(faceRows)/float64(fcount)))
			}
		}
		faceRows++
		if len(idx) < 3 {
			badFaces++
			return nil
		}
		for k := 1; k+1 < len(idx); k++ {
			i0, i1, i2 := idx[0], idx[k], idx[k+1]
			if !validIndex(i0, len(md.verts)) || !validIndex(i1, len(md.verts)) || !validIndex(i2, len(md.verts)) {
				badFaces++
				return nil
			}
			md.faces = append(md.faces, uint32(i0), uint32(i1), uint32(i2))
		}
		return nil
	}

	if err := ply.NewDecoder(br, h).Decode(onVertex, onFace); err != nil {
		return nil, err
	}
	if badFaces > 0 {
		logrus.WithFields(logrus.Fields{"file": fileName, "faces": badFaces}).
			Warn("skipped malformed faces")
	}
	md.dedup = nil // PLY vertices are already indexed
	return md, nil
}

func validIndex(i, n int) bool {
	return i >= 0 && i < n
}
