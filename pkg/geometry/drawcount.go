package geometry

// DrawCount is an estimate of the amount of geometry drawn in a frame.
//
// NumVertices is real-valued since cost estimation may interpolate between
// discrete levels of detail. MoreToDraw reports whether the geometry has
// further data to draw at the requested quality.
type DrawCount struct {
	NumVertices float64
	MoreToDraw  bool
}

// Add combines two counts: vertex counts sum and the more-to-draw flags OR.
// The viewer aggregates partial draws from many geometries this way to
// decide whether another incremental frame is needed.
func (d DrawCount) Add(rhs DrawCount) DrawCount {
	return DrawCount{
		NumVertices: d.NumVertices + rhs.NumVertices,
		MoreToDraw:  d.MoreToDraw || rhs.MoreToDraw,
	}
}

// Accumulate adds rhs into d in place.
func (d *DrawCount) Accumulate(rhs DrawCount) {
	d.NumVertices += rhs.NumVertices
	d.MoreToDraw = d.MoreToDraw || rhs.MoreToDraw
}
