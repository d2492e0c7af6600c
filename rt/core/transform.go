package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a position/rotation/scale placement that produces world
// matrices for renderable objects.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform(position mgl32.Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t Transform) WithScale(s float32) Transform {
	t.Scale = mgl32.Vec3{s, s, s}
	return t
}

// WithYaw rotates around +Y by the given angle in radians.
func (t Transform) WithYaw(angle float32) Transform {
	t.Rotation = mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0})
	return t
}

// Matrix returns T * R * S.
func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}
