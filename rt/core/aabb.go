package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned box in Min/Max form.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func NewAABB(minB, maxB mgl32.Vec3) AABB {
	return AABB{Min: minB, Max: maxB}
}

// EmptyAABB returns the identity for Union. It is never Valid.
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Valid reports whether every coordinate is finite and the box has positive
// extent on all three axes. Zero-volume, inverted and NaN boxes are invalid.
func (b AABB) Valid() bool {
	for i := 0; i < 3; i++ {
		if !finite(b.Min[i]) || !finite(b.Max[i]) {
			return false
		}
		if !(b.Max[i] > b.Min[i]) {
			return false
		}
	}
	return true
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extents returns the half size of the box.
func (b AABB) Extents() mgl32.Vec3 {
	return b.Max.Sub(b.Min).Mul(0.5)
}

func (b AABB) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Radius is the half diagonal, i.e. the radius of the bounding sphere
// centered on the box.
func (b AABB) Radius() float32 {
	return b.Extents().Len()
}

// LongestAxis returns 0, 1 or 2.
func (b AABB) LongestAxis() int {
	extent := b.Size()
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	return axis
}

func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{min(b.Min.X(), o.Min.X()), min(b.Min.Y(), o.Min.Y()), min(b.Min.Z(), o.Min.Z())},
		Max: mgl32.Vec3{max(b.Max.X(), o.Max.X()), max(b.Max.Y(), o.Max.Y()), max(b.Max.Z(), o.Max.Z())},
	}
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Expand grows the box by margin on every side. Invalid boxes are returned
// unchanged.
func (b AABB) Expand(margin float32) AABB {
	if !b.Valid() || margin <= 0 {
		return b
	}
	m := mgl32.Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Transform returns the world-space box enclosing all 8 transformed corners.
// The result is conservative for any affine m. Invalid boxes are returned
// unchanged so they keep failing visibility tests downstream.
func (b AABB) Transform(m mgl32.Mat4) AABB {
	if !b.Valid() {
		return b
	}

	corners := [8]mgl32.Vec3{
		{b.Min.X(), b.Min.Y(), b.Min.Z()},
		{b.Max.X(), b.Min.Y(), b.Min.Z()},
		{b.Min.X(), b.Max.Y(), b.Min.Z()},
		{b.Max.X(), b.Max.Y(), b.Min.Z()},
		{b.Min.X(), b.Min.Y(), b.Max.Z()},
		{b.Max.X(), b.Min.Y(), b.Max.Z()},
		{b.Min.X(), b.Max.Y(), b.Max.Z()},
		{b.Max.X(), b.Max.Y(), b.Max.Z()},
	}

	out := EmptyAABB()
	for _, c := range corners {
		wc := m.Mul4x1(c.Vec4(1.0)).Vec3()
		out.Min = mgl32.Vec3{min(out.Min.X(), wc.X()), min(out.Min.Y(), wc.Y()), min(out.Min.Z(), wc.Z())}
		out.Max = mgl32.Vec3{max(out.Max.X(), wc.X()), max(out.Max.Y(), wc.Y()), max(out.Max.Z(), wc.Z())}
	}
	return out
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
