package main

import (
	"context"
	"testing"

	"github.com/gekko3d/vispipe"
	"github.com/gekko3d/vispipe/rt/core"
	"github.com/gekko3d/vispipe/rt/occlusion"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsInvalidFlags(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"negative retest", []string{"--retest=-1"}, "retest must be >= 1"},
		{"zero retest", []string{"--retest=0"}, "retest must be >= 1"},
		{"zero frames", []string{"--frames=0"}, "frames must be >= 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"visbench", "run", "--objects=10"}, tc.args...)
			err := newApp().Run(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRunSmallScene(t *testing.T) {
	err := newApp().Run([]string{"visbench", "run", "--objects=200", "--frames=3", "--retest=2"})
	assert.NoError(t, err)
}

func TestBuildSceneIsSeeded(t *testing.T) {
	a := buildScene(3, 100, 2, 3)
	b := buildScene(3, 100, 2, 3)
	require.Len(t, a, 100)
	for i := range a {
		assert.Equal(t, a[i].World, b[i].World)
		assert.Equal(t, a[i].Material, b[i].Material)
		assert.Len(t, a[i].LODMeshes, 2)
		assert.True(t, a[i].WorldBounds().Valid())
	}
}

func TestWallReadbackLagsOneFrame(t *testing.T) {
	rb := newWallReadback()
	hidden := core.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	shown := core.NewAABB(mgl32.Vec3{30, -1, -1}, mgl32.Vec3{32, 1, 1})
	rb.submit([]occlusion.Request{{ID: 1, Slot: 0, Proxy: hidden}, {ID: 2, Slot: 1, Proxy: shown}})

	_, status := rb.Poll(0)
	assert.Equal(t, occlusion.StatusNotReady, status)

	rb.submit(nil)
	samples, status := rb.Poll(0)
	assert.Equal(t, occlusion.StatusReady, status)
	assert.Zero(t, samples)
	samples, status = rb.Poll(1)
	assert.Equal(t, occlusion.StatusReady, status)
	assert.Positive(t, samples)

	_, status = rb.Poll(0)
	assert.Equal(t, occlusion.StatusFailed, status)
}

func TestOrbitSceneCullsBehindWall(t *testing.T) {
	rb := newWallReadback()
	p, err := vispipe.New(vispipe.DefaultConfig(), vispipe.WithReadback(rb))
	require.NoError(t, err)
	defer p.Close()

	objs := buildScene(1, 2000, 4, 8)
	var last *vispipe.FrameResult
	for frame := 0; frame < 4; frame++ {
		res, err := p.Frame(context.Background(), objs, orbitCamera(0, 60, 1280, 720))
		require.NoError(t, err)
		rb.submit(res.Queries)
		last = res
	}
	assert.Positive(t, last.Stats.CulledByOcclusion)
	assert.Less(t, last.Stats.VisibleObjects, len(objs))
}
