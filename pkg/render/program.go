package render

// Program is the handle to a bound, fully-configured shader program. The
// viewer sets all shader state (binding, uniforms) before a draw call;
// geometry only pushes vertex data through this interface.
//
// Positions are flat float32 triples (x,y,z) in the geometry's
// offset-relative frame. Implementations translate these into backend draw
// calls (vertex buffer upload + glDrawArrays, or equivalent).
type Program interface {
	// DrawPoints draws one point per position triple.
	DrawPoints(positions []float32)
	// DrawLines draws one segment per pair of position triples.
	DrawLines(positions []float32)
	// DrawTriangles draws indexed triangles. normals holds one float32
	// triple per vertex and may be nil for flat shading.
	DrawTriangles(positions, normals []float32, indices []uint32)
}

// Compile-time interface check.
var _ Program = (*CountingProgram)(nil)

// CountingProgram is a Program that tallies the vertex data fed to it
// instead of rendering. It backs dry-run draws in tests and tooling.
type CountingProgram struct {
	Points    int // points drawn
	Segments  int // line segments drawn
	Triangles int // triangles drawn
}

func (p *CountingProgram) DrawPoints(positions []float32) {
	p.Points += len(positions) / 3
}

func (p *CountingProgram) DrawLines(positions []float32) {
	p.Segments += len(positions) / 6
}

func (p *CountingProgram) DrawTriangles(positions, normals []float32, indices []uint32) {
	p.Triangles += len(indices) / 3
}

// Reset zeroes all counters.
func (p *CountingProgram) Reset() {
	*p = CountingProgram{}
}
