// Package render defines the boundary between geometry and the rendering
// backend. Geometry types never touch shader or context state; they feed
// vertex data into an already-configured Program under a caller-supplied
// TransformState.
package render

import (
	"github.com/go-gl/mathgl/mgl64"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// TransformState carries the camera transform for one frame. The projection
// and model-view matrices are owned by the viewer; geometry only reads them
// and, for offset handling, derives a translated copy.
type TransformState struct {
	// ViewSize is the viewport size in pixels.
	ViewSize [2]int
	// Projection maps eye space to clip space.
	Projection mgl64.Mat4
	// ModelView maps world space to eye space.
	ModelView mgl64.Mat4
}

// NewTransformState returns an identity transform for the given viewport.
func NewTransformState(width, height int) *TransformState {
	return &TransformState{
		ViewSize:   [2]int{width, height},
		Projection: mgl64.Ident4(),
		ModelView:  mgl64.Ident4(),
	}
}

// Translated returns a copy of the transform with the model-view translated
// by v. Geometry applies its coordinate offset this way, so vertex data can
// stay in reduced-precision offset-relative coordinates.
func (ts *TransformState) Translated(v v3.Vec) *TransformState {
	out := *ts
	out.ModelView = ts.ModelView.Mul4(mgl64.Translate3D(v.X, v.Y, v.Z))
	return &out
}

// EyePosition returns the camera position in the space the model-view maps
// from (world space, or offset-relative space for a Translated copy).
func (ts *TransformState) EyePosition() v3.Vec {
	inv := ts.ModelView.Inv()
	p := inv.Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	return v3.Vec{X: p.X(), Y: p.Y(), Z: p.Z()}
}
