package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultFocalScale approximates cot(fovy/2) when the projection is unknown.
const DefaultFocalScale = 2.0

// Camera is the per-frame view used by culling and LOD selection.
type Camera struct {
	ViewProjection mgl32.Mat4
	Position       mgl32.Vec3
	ViewportWidth  float32
	ViewportHeight float32
	// FocalScale is the projection's Y scale, cot(fovy/2). Zero falls back to
	// DefaultFocalScale.
	FocalScale float32
}

// NewPerspectiveCamera builds a camera at eye looking at target.
func NewPerspectiveCamera(eye, target, up mgl32.Vec3, fovyDeg, near, far, width, height float32) Camera {
	aspect := float32(1.0)
	if height > 0 && width > 0 {
		aspect = width / height
	}
	fovy := mgl32.DegToRad(fovyDeg)
	proj := mgl32.Perspective(fovy, aspect, near, far)
	view := mgl32.LookAtV(eye, target, up)

	return Camera{
		ViewProjection: proj.Mul4(view),
		Position:       eye,
		ViewportWidth:  width,
		ViewportHeight: height,
		FocalScale:     float32(1.0 / math.Tan(float64(fovy)/2.0)),
	}
}

func (c Camera) Frustum() Frustum {
	return ExtractFrustum(c.ViewProjection)
}

func (c Camera) Focal() float32 {
	if c.FocalScale > 0 && finite(c.FocalScale) {
		return c.FocalScale
	}
	return DefaultFocalScale
}
