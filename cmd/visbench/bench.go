package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/gekko3d/vispipe"
	"github.com/gekko3d/vispipe/rt/core"
	"github.com/gekko3d/vispipe/rt/occlusion"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"
)

const sceneExtent = 50

func runBench(ctx *cli.Context) error {
	logger := setupLogging(ctx)

	cfg := vispipe.DefaultConfig()
	cfg.LeafThreshold = ctx.Int("leaf")
	cfg.Workers = ctx.Int("workers")
	cfg.EnableOcclusion = !ctx.Bool("no-occlusion")
	cfg.Occlusion.MaxQueries = ctx.Int("max-queries")
	retest := ctx.Int("retest")
	if retest < 1 {
		return fmt.Errorf("retest must be >= 1 (got %d)", retest)
	}
	cfg.Occlusion.RetestInterval = uint32(retest)
	cfg.EnableLOD = !ctx.Bool("no-lod")
	cfg.Instancing.EnableMaterialMerging = ctx.Bool("merge-materials")

	frames := ctx.Int("frames")
	if frames < 1 {
		return fmt.Errorf("frames must be >= 1 (got %d)", frames)
	}

	readback := newWallReadback()
	p, err := vispipe.New(cfg, vispipe.WithLogger(logger), vispipe.WithReadback(readback))
	if err != nil {
		logger.Errorf("%v", err)
		return err
	}
	defer p.Close()

	objs := buildScene(ctx.Int64("seed"), ctx.Int("objects"), ctx.Int("meshes"), ctx.Int("materials"))
	logger.Infof("scene: %d objects, %d meshes, %d materials", len(objs), ctx.Int("meshes"), ctx.Int("materials"))

	w, h := float32(ctx.Int("width")), float32(ctx.Int("height"))
	var (
		last    *vispipe.FrameResult
		elapsed time.Duration
	)
	for frame := 0; frame < frames; frame++ {
		cam := orbitCamera(frame, frames, w, h)

		start := time.Now()
		res, err := p.Frame(context.Background(), objs, cam)
		if err != nil {
			logger.Errorf("frame %d: %v", frame, err)
			return err
		}
		elapsed += time.Since(start)

		readback.submit(res.Queries)
		if ctx.GlobalBool("vv") {
			logger.Debugf("frame %d: visible=%d batches=%d queries=%d",
				res.Stats.Frame, res.Stats.VisibleObjects, res.Stats.TotalBatches, len(res.Queries))
		}
		last = res
	}

	logger.Infof("last frame statistics\n%s", last.Stats.Table())
	logger.Infof("last frame profile\n%s", p.Profiler().String())
	logger.Infof("%d frames in %s (%.3f ms/frame)", frames, elapsed,
		float64(elapsed.Microseconds())/1000.0/float64(frames))
	return nil
}

// buildScene scatters n objects in a cube. Every object gets a base mesh and
// two reduced meshes.
func buildScene(seed int64, n, meshCount, materialCount int) []core.RenderableObject {
	rng := rand.New(rand.NewSource(seed))
	meshCount = max(meshCount, 1)
	materialCount = max(materialCount, 1)

	type meshSet struct {
		base core.MeshHandle
		lods []core.MeshHandle
	}
	meshes := make([]meshSet, meshCount)
	for i := range meshes {
		meshes[i] = meshSet{
			base: core.NewMeshHandle(),
			lods: []core.MeshHandle{core.NewMeshHandle(), core.NewMeshHandle()},
		}
	}
	materials := make([]core.Material, materialCount)
	for i := range materials {
		materials[i] = core.NewMaterial(
			[4]float32{rng.Float32(), rng.Float32(), rng.Float32(), 1},
			float32(i%2),
			0.2+0.6*rng.Float32(),
		)
	}

	unit := core.NewAABB(mgl32.Vec3{-0.5, -0.5, -0.5}, mgl32.Vec3{0.5, 0.5, 0.5})
	objs := make([]core.RenderableObject, n)
	for i := range objs {
		pos := mgl32.Vec3{
			(rng.Float32()*2 - 1) * sceneExtent,
			(rng.Float32()*2 - 1) * sceneExtent,
			(rng.Float32()*2 - 1) * sceneExtent,
		}
		xf := core.NewTransform(pos).
			WithScale(0.5 + 1.5*rng.Float32()).
			WithYaw(rng.Float32() * 2 * math.Pi)
		m := meshes[rng.Intn(meshCount)]
		objs[i] = core.RenderableObject{
			ID:          core.ObjectID(i + 1),
			LocalBounds: unit,
			World:       xf.Matrix(),
			Mesh:        m.base,
			LODMeshes:   m.lods,
			Shader:      core.ShaderID(1 + i%2),
			Material:    materials[rng.Intn(materialCount)],
		}
	}
	return objs
}

// orbitCamera circles the scene once over frames, looking at the origin.
func orbitCamera(frame, frames int, w, h float32) core.Camera {
	angle := 2 * math.Pi * float64(frame) / float64(frames)
	radius := 1.5 * sceneExtent
	eye := mgl32.Vec3{
		float32(radius * math.Cos(angle)),
		sceneExtent / 4,
		float32(radius * math.Sin(angle)),
	}
	return core.NewPerspectiveCamera(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}, 60, 0.1, 3*sceneExtent, w, h)
}

// wallReadback answers a query on the second poll after its submission. Proxies whose
// center lies within the central slab |x| < sceneExtent/5 are occluded.
type wallReadback struct {
	pending map[int32]pendingQuery
	frame   uint64
}

type pendingQuery struct {
	proxy core.AABB
	frame uint64
}

func newWallReadback() *wallReadback {
	return &wallReadback{pending: make(map[int32]pendingQuery)}
}

func (r *wallReadback) submit(reqs []occlusion.Request) {
	r.frame++
	for _, req := range reqs {
		r.pending[req.Slot] = pendingQuery{proxy: req.Proxy, frame: r.frame}
	}
}

func (r *wallReadback) Poll(slot int32) (uint64, occlusion.Status) {
	q, ok := r.pending[slot]
	if !ok {
		return 0, occlusion.StatusFailed
	}
	if q.frame >= r.frame {
		return 0, occlusion.StatusNotReady
	}
	delete(r.pending, slot)
	if c := q.proxy.Center(); math.Abs(float64(c.X())) < sceneExtent/5 {
		return 0, occlusion.StatusReady
	}
	return uint64(q.proxy.Size().Len() * 100), occlusion.StatusReady
}
