package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Containment is the result of classifying a box against a frustum.
type Containment uint8

const (
	Outside Containment = iota
	Intersecting
	Inside
)

func (c Containment) String() string {
	switch c {
	case Outside:
		return "outside"
	case Intersecting:
		return "intersecting"
	case Inside:
		return "inside"
	}
	return "unknown"
}

// Frustum holds 6 normalized planes in Ax + By + Cz + D = 0 form with the
// normals pointing inside, ordered left, right, bottom, top, near, far.
//
// Degenerate is set when the view-projection matrix could not produce a
// usable volume. A degenerate frustum accepts every valid box.
type Frustum struct {
	Planes     [6]mgl32.Vec4
	Degenerate bool
}

// ExtractFrustum derives the clip planes from a view-projection matrix by
// combining its rows (OpenGL-style -1..1 depth).
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var f Frustum

	for _, v := range vp {
		if !finite(v) {
			f.Degenerate = true
			return f
		}
	}
	det := vp.Det()
	if det == 0 || !finite(det) {
		f.Degenerate = true
		return f
	}

	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	f.Planes[PlaneLeft] = r3.Add(r0)
	f.Planes[PlaneRight] = r3.Sub(r0)
	f.Planes[PlaneBottom] = r3.Add(r1)
	f.Planes[PlaneTop] = r3.Sub(r1)
	f.Planes[PlaneNear] = r3.Add(r2)
	f.Planes[PlaneFar] = r3.Sub(r2)

	for i := range f.Planes {
		p := f.Planes[i]
		length := float32(math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])))
		if !(length > 0) || !finite(length) {
			f.Degenerate = true
			return f
		}
		f.Planes[i] = p.Mul(1.0 / length)
	}

	return f
}

// Distance is the signed distance of point pt to plane i.
func (f Frustum) Distance(i int, pt mgl32.Vec3) float32 {
	return f.Planes[i].Dot(pt.Vec4(1.0))
}

// TestAABB reports whether b is not fully behind any plane. Invalid boxes
// always fail.
func (f Frustum) TestAABB(b AABB) bool {
	return f.Classify(b) != Outside
}

// Classify tests b against every plane using its positive and negative
// vertices, the corners extremal along and against each plane normal.
func (f Frustum) Classify(b AABB) Containment {
	if !b.Valid() {
		return Outside
	}
	if f.Degenerate {
		return Inside
	}

	result := Inside
	for i := 0; i < 6; i++ {
		plane := f.Planes[i]

		var pos, neg mgl32.Vec3
		for axis := 0; axis < 3; axis++ {
			if plane[axis] > 0 {
				pos[axis] = b.Max[axis]
				neg[axis] = b.Min[axis]
			} else {
				pos[axis] = b.Min[axis]
				neg[axis] = b.Max[axis]
			}
		}

		if f.Distance(i, pos) < 0 {
			return Outside
		}
		if f.Distance(i, neg) < 0 {
			result = Intersecting
		}
	}
	return result
}
