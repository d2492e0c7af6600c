package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookDownNegZ() mgl32.Mat4 {
	// 90 deg FOV, aspect 1, near 1, far 100, eye at origin looking down -Z
	proj := mgl32.Perspective(mgl32.DegToRad(90), 1.0, 1.0, 100.0)
	view := mgl32.LookAtV(
		mgl32.Vec3{0, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
	return proj.Mul4(view)
}

func TestFrustumCulling(t *testing.T) {
	f := ExtractFrustum(lookDownNegZ())
	require.False(t, f.Degenerate)

	tests := []struct {
		name     string
		aabbMin  mgl32.Vec3
		aabbMax  mgl32.Vec3
		expected bool
	}{
		{
			name:     "Inside (center)",
			aabbMin:  mgl32.Vec3{-1, -1, -10},
			aabbMax:  mgl32.Vec3{1, 1, -5},
			expected: true,
		},
		{
			name:     "Outside (Left)",
			aabbMin:  mgl32.Vec3{-20, -1, -10},
			aabbMax:  mgl32.Vec3{-15, 1, -5},
			expected: false,
		},
		{
			name:     "Outside (Right)",
			aabbMin:  mgl32.Vec3{15, -1, -10},
			aabbMax:  mgl32.Vec3{20, 1, -5},
			expected: false,
		},
		{
			name:     "Outside (Top)",
			aabbMin:  mgl32.Vec3{-1, 15, -10},
			aabbMax:  mgl32.Vec3{1, 20, -5},
			expected: false,
		},
		{
			name:     "Outside (Behind/Near)",
			aabbMin:  mgl32.Vec3{-1, -1, 2},
			aabbMax:  mgl32.Vec3{1, 1, 5},
			expected: false,
		},
		{
			name:     "Outside (Far)",
			aabbMin:  mgl32.Vec3{-1, -1, -200},
			aabbMax:  mgl32.Vec3{1, 1, -150},
			expected: false,
		},
		{
			// left edge is at x = -10 for z = -10
			name:     "Intersecting (Left Plane)",
			aabbMin:  mgl32.Vec3{-15, -1, -10},
			aabbMax:  mgl32.Vec3{-5, 1, -5},
			expected: true,
		},
		{
			name:     "Encompassing (Huge box)",
			aabbMin:  mgl32.Vec3{-1000, -1000, -1000},
			aabbMax:  mgl32.Vec3{1000, 1000, 1000},
			expected: true,
		},
		{
			name:     "Zero volume",
			aabbMin:  mgl32.Vec3{0, 0, -10},
			aabbMax:  mgl32.Vec3{0, 1, -5},
			expected: false,
		},
		{
			name:     "Inverted",
			aabbMin:  mgl32.Vec3{1, 1, -5},
			aabbMax:  mgl32.Vec3{-1, -1, -10},
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, f.TestAABB(NewAABB(tc.aabbMin, tc.aabbMax)))
		})
	}
}

func TestFrustumPlanesNormalized(t *testing.T) {
	f := ExtractFrustum(lookDownNegZ())
	for i, p := range f.Planes {
		n := mgl32.Vec3{p[0], p[1], p[2]}
		assert.InDelta(t, 1.0, n.Len(), 1e-5, "plane %d", i)
	}

	// eye looks down -Z so the near plane normal points towards -Z
	assert.Less(t, f.Planes[PlaneNear][2], float32(0))
	assert.Greater(t, f.Planes[PlaneFar][2], float32(0))
	assert.Greater(t, f.Planes[PlaneLeft][0], float32(0))
	assert.Less(t, f.Planes[PlaneRight][0], float32(0))
}

func TestFrustumClassify(t *testing.T) {
	f := ExtractFrustum(lookDownNegZ())

	assert.Equal(t, Inside, f.Classify(NewAABB(mgl32.Vec3{-1, -1, -10}, mgl32.Vec3{1, 1, -5})))
	assert.Equal(t, Intersecting, f.Classify(NewAABB(mgl32.Vec3{-15, -1, -10}, mgl32.Vec3{-5, 1, -5})))
	assert.Equal(t, Outside, f.Classify(NewAABB(mgl32.Vec3{15, -1, -10}, mgl32.Vec3{20, 1, -5})))
	assert.Equal(t, Outside, f.Classify(EmptyAABB()))
}

func TestFrustumOrtho(t *testing.T) {
	proj := mgl32.Ortho(-10, 10, -10, 10, 0, 20)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	f := ExtractFrustum(proj.Mul4(view))
	require.False(t, f.Degenerate)

	assert.True(t, f.TestAABB(NewAABB(mgl32.Vec3{-1, -1, -6}, mgl32.Vec3{1, 1, -4})))
	// far = 20 puts the far plane at z = -20
	assert.False(t, f.TestAABB(NewAABB(mgl32.Vec3{-1, -1, -26}, mgl32.Vec3{1, 1, -24})))
}

func TestDegenerateMatrixFailsOpen(t *testing.T) {
	nan := float32(math.NaN())
	flattened := lookDownNegZ().Mul4(mgl32.Scale3D(1, 1, 0))

	tests := []struct {
		name string
		vp   mgl32.Mat4
	}{
		{name: "zero", vp: mgl32.Mat4{}},
		{name: "nan", vp: mgl32.Mat4{nan, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}},
		{name: "flattened", vp: flattened},
	}

	far := NewAABB(mgl32.Vec3{500, 500, 500}, mgl32.Vec3{501, 501, 501})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := ExtractFrustum(tc.vp)
			assert.True(t, f.Degenerate)
			assert.True(t, f.TestAABB(far))
			assert.False(t, f.TestAABB(NewAABB(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1})))
		})
	}
}

func TestCameraFrustum(t *testing.T) {
	cam := NewPerspectiveCamera(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}, 90, 0.1, 100, 800, 600)
	assert.InDelta(t, 1.0, cam.Focal(), 1e-5)

	f := cam.Frustum()
	assert.True(t, f.TestAABB(NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})))
	assert.False(t, f.TestAABB(NewAABB(mgl32.Vec3{-1, -1, 11}, mgl32.Vec3{1, 1, 12})))

	assert.Equal(t, float32(DefaultFocalScale), Camera{}.Focal())
}
