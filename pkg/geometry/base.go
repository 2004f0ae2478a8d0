package geometry

import (
	"sync"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/peterdachuan/displaz/pkg/render"
)

// metadata is the publicly readable load result, swapped as one unit so
// readers observe either the fully-old or fully-new values.
type metadata struct {
	fileName string
	offset   v3.Vec
	centroid v3.Vec
	bbox     sdf.Box3
}

// Base carries the state and behavior shared by all geometry types:
// file/offset/centroid/bbox bookkeeping, observer registration, monotonic
// progress emission, and the default edge/face draw no-ops. Concrete types
// embed it and call BeginLoad / StepStarted / Progress / Commit from their
// loaders.
type Base struct {
	mu        sync.RWMutex
	meta      metadata
	observers []LoadObserver
	lastPct   int
}

// FileName returns the source file of the last successful load.
func (b *Base) FileName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta.fileName
}

// Offset returns the coordinate offset chosen at load time.
//
// Naively storing vertices as 32 bit floats fails for geographic coordinate
// systems: a small object may sit very far from the origin. All stored
// vertex data is relative to this offset.
func (b *Base) Offset() v3.Vec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta.offset
}

// Centroid returns the geometric centre of mass, offset-relative.
func (b *Base) Centroid() v3.Vec {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta.centroid
}

// BoundingBox returns the axis-aligned bounds, offset-relative.
func (b *Base) BoundingBox() sdf.Box3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta.bbox
}

// AddObserver registers a load progress observer. Safe to call while a load
// is in flight; the observer sees events from the next emission on.
func (b *Base) AddObserver(obs LoadObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, obs)
}

// Commit atomically publishes the result of a successful load. Loaders call
// it exactly once, after all data is validated, so a failed load never
// leaves the public state half-updated.
func (b *Base) Commit(fileName string, offset, centroid v3.Vec, bbox sdf.Box3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta = metadata{fileName: fileName, offset: offset, centroid: centroid, bbox: bbox}
}

// BeginLoad resets the progress sequence for a new load.
func (b *Base) BeginLoad() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPct = -1
}

// StepStarted notifies observers that a major loading phase has begun.
func (b *Base) StepStarted(description string) {
	for _, obs := range b.snapshotObservers() {
		obs.LoadStepStarted(description)
	}
}

// Progress notifies observers of load progress. Values are clamped to
// [0,100] and to be non-decreasing within one load; duplicates are dropped.
func (b *Base) Progress(percent int) {
	b.mu.Lock()
	if percent > 100 {
		percent = 100
	}
	if percent <= b.lastPct {
		b.mu.Unlock()
		return
	}
	b.lastPct = percent
	obs := make([]LoadObserver, len(b.observers))
	copy(obs, b.observers)
	b.mu.Unlock()

	for _, o := range obs {
		o.LoadProgress(percent)
	}
}

func (b *Base) snapshotObservers() []LoadObserver {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obs := make([]LoadObserver, len(b.observers))
	copy(obs, b.observers)
	return obs
}

// DrawEdges is a no-op; types with edge topology override it.
func (b *Base) DrawEdges(prog render.Program, trans *render.TransformState) {}

// DrawFaces is a no-op; types with face topology override it.
func (b *Base) DrawFaces(prog render.Program, trans *render.TransformState) {}
