// Package pointcloud implements the point cloud geometry type. Points come
// from ASCII xyz-style files or point-only PLY files, are stored float32
// offset-relative in a deterministically shuffled order, and draw as
// uniform prefixes of that order so partial and reduced-quality frames stay
// spatially representative.
package pointcloud

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/peterdachuan/displaz/pkg/geometry"
	"github.com/peterdachuan/displaz/pkg/geometry/ply"
	"github.com/peterdachuan/displaz/pkg/render"
)

// Compile-time interface check.
var _ geometry.Geometry = (*PointCloud)(nil)

func init() {
	geometry.Register(func(fileName string) (geometry.Geometry, bool) {
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".xyz", ".txt", ".pts":
			return New(), true
		case ".ply":
			h, err := ply.Sniff(fileName)
			if err == nil && !h.HasFaces() {
				return New(), true
			}
		}
		return nil, false
	})
}

// PointCloud is a budget-bounded, progressively drawable point set.
type PointCloud struct {
	geometry.Base

	mu sync.RWMutex
	// positions holds x,y,z float32 triples, offset-relative, in draw
	// order: a deterministic shuffle, so any prefix is a uniform
	// subsample of the whole cloud.
	positions []float32
	// cursor is the incremental draw position, in vertices.
	cursor    int
	drawLimit int
}

// New returns an empty point cloud.
func New() *PointCloud {
	return &PointCloud{drawLimit: geometry.DefaultDrawLimit}
}

// SetDrawLimit overrides the per-call vertex cap. Values below one restore
// the default.
func (p *PointCloud) SetDrawLimit(limit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if limit < 1 {
		limit = geometry.DefaultDrawLimit
	}
	p.drawLimit = limit
}

// PointCount returns the number of points currently held.
func (p *PointCloud) PointCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.positions) / 3
}

// ReloadFile loads again from the file of the previous successful load.
func (p *PointCloud) ReloadFile(ctx context.Context, maxVertexCount int) error {
	fileName := p.FileName()
	if fileName == "" {
		return errNothingLoaded
	}
	return p.LoadFile(ctx, fileName, maxVertexCount)
}

// DrawPoints feeds the next slice of the draw order to prog. A
// non-incremental call restarts from the front; incremental calls continue
// where the previous call stopped. Each call shades at most the per-call
// limit, reporting MoreToDraw until the quality target is covered.
func (p *PointCloud) DrawPoints(prog render.Program, trans *render.TransformState, quality float64, incremental bool) geometry.DrawCount {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.positions) / 3
	target := geometry.DrawTarget(n, quality)
	if !incremental || p.cursor > target {
		p.cursor = 0
	}
	count := target - p.cursor
	if count > p.drawLimit {
		count = p.drawLimit
	}
	if count > 0 && prog != nil {
		prog.DrawPoints(p.positions[p.cursor*3 : (p.cursor+count)*3])
	}
	p.cursor += count
	return geometry.DrawCount{NumVertices: float64(count), MoreToDraw: p.cursor < target}
}

// EstimateCost reports, per quality, the total vertices a full draw at that
// quality still has to shade, with MoreToDraw set when that exceeds the
// per-call limit. Pure; no state is touched.
func (p *PointCloud) EstimateCost(trans *render.TransformState, incremental bool, qualities []float64) []geometry.DrawCount {
	p.mu.RLock()
	defer p.mu.RUnlock()

	counts := make([]geometry.DrawCount, len(qualities))
	n := len(p.positions) / 3
	for i, q := range qualities {
		remaining := geometry.DrawTarget(n, q)
		if incremental {
			remaining -= p.cursor
			if remaining < 0 {
				remaining = 0
			}
		}
		counts[i] = geometry.DrawCount{
			NumVertices: float64(remaining),
			MoreToDraw:  remaining > p.drawLimit,
		}
	}
	return counts
}

// PickVertex returns the point closest to the ray under the scaled
// longitudinal metric. ok is false for an empty cloud or degenerate ray.
func (p *PointCloud) PickVertex(rayOrigin, rayDirection v3.Vec, longitudinalScale float64) (v3.Vec, float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.positions) == 0 || rayDirection.Length2() == 0 {
		return v3.Vec{}, math.Inf(1), false
	}

	offset := p.Offset()
	origin := rayOrigin.Sub(offset)
	dir := rayDirection.Normalize()

	best := math.Inf(1)
	var bestPt v3.Vec
	for i := 0; i+2 < len(p.positions); i += 3 {
		pt := v3.Vec{
			X: float64(p.positions[i]),
			Y: float64(p.positions[i+1]),
			Z: float64(p.positions[i+2]),
		}
		delta := pt.Sub(origin)
		along := delta.Dot(dir)
		lateral2 := delta.Length2() - along*along
		if lateral2 < 0 {
			lateral2 = 0
		}
		along *= longitudinalScale
		dist := math.Sqrt(lateral2 + along*along)
		if dist < best {
			best = dist
			bestPt = pt
		}
	}
	return bestPt.Add(offset), best, true
}
