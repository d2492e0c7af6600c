package vispipe

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gekko3d/vispipe/rt/batch"
	"github.com/gekko3d/vispipe/rt/bvh"
	"github.com/gekko3d/vispipe/rt/core"
	"github.com/gekko3d/vispipe/rt/instancing"
	"github.com/gekko3d/vispipe/rt/lod"
	"github.com/gekko3d/vispipe/rt/occlusion"
)

const (
	StageSync      = "sync"
	StageFrustum   = "frustum"
	StageOcclusion = "occlusion"
	StageLOD       = "lod"
	StageGroup     = "group"
	StageBatch     = "batch"
)

const poolQueueSize = 256

// FrameResult is the output of one frame.
type FrameResult struct {
	// Batches are the draws in submission order.
	Batches []batch.DrawCall
	// Queries are occlusion tests to render this frame. Their results are
	// fed back through Resolve or the configured readback.
	Queries []occlusion.Request
	Stats   Stats
}

// Pipeline owns the spatial index and the occlusion query pool across
// frames. Frames are serialized; only frustum culling fans out.
type Pipeline struct {
	mu sync.Mutex

	cfg      Config
	log      Logger
	profiler *Profiler
	readback occlusion.Readback
	pool     worker.DynamicWorkerPool

	culler    *bvh.Culler
	occlusion *occlusion.Culler
	lod       *lod.Selector
	grouper   *instancing.Grouper
	batcher   *batch.Batcher

	frame  uint64
	closed bool
}

func New(cfg Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:      cfg,
		log:      NewNopLogger(),
		profiler: NewProfiler(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = p.cfg

	var cullerOpts []bvh.CullerOption
	if cfg.Workers > 0 {
		p.pool = worker.NewDynamicWorkerPool(cfg.Workers, poolQueueSize, time.Second)
		cullerOpts = append(cullerOpts, bvh.WithWorkerPool(p.pool, cfg.ParallelSplitDepth, cfg.ParallelMinObjects))
	}

	var err error
	if p.culler, err = bvh.NewCuller(cfg.LeafThreshold, cullerOpts...); err != nil {
		return nil, p.fail(err)
	}
	if cfg.EnableOcclusion {
		if p.occlusion, err = occlusion.NewCuller(cfg.Occlusion); err != nil {
			return nil, p.fail(err)
		}
	}
	if cfg.EnableLOD {
		if p.lod, err = lod.NewSelector(cfg.LOD); err != nil {
			return nil, p.fail(err)
		}
	}
	if p.grouper, err = instancing.NewGrouper(cfg.Instancing); err != nil {
		return nil, p.fail(err)
	}
	p.batcher = batch.NewBatcher(cfg.Batch)

	p.log.Debugf("pipeline ready: leaf=%d occlusion=%t lod=%t workers=%d",
		cfg.LeafThreshold, cfg.EnableOcclusion, cfg.EnableLOD, cfg.Workers)
	return p, nil
}

func (p *Pipeline) fail(err error) error {
	if p.pool != nil {
		p.pool.Stop()
	}
	return err
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// Frame runs every stage for objects seen through cam. If ctx is done
// between stages the frame is abandoned: in-flight occlusion queries are
// discarded and ctx.Err() is returned.
func (p *Pipeline) Frame(ctx context.Context, objects []core.RenderableObject, cam core.Camera) (*FrameResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if err := p.checkpoint(ctx); err != nil {
		return nil, err
	}

	p.frame++
	prof := p.profiler
	prof.Reset()
	stats := Stats{Frame: p.frame, TotalObjects: len(objects)}

	prof.BeginScope(StageSync)
	stats.BVHRebuilt = p.culler.Sync(objects)
	live := make(core.IDSet, len(objects))
	for i := range objects {
		live.Add(objects[i].ID)
	}
	if p.occlusion != nil {
		p.occlusion.Retain(live)
	}
	if p.lod != nil {
		p.lod.Retain(live)
	}
	prof.EndScope(StageSync)
	if stats.BVHRebuilt {
		p.log.Debugf("frame %d: bvh rebuilt over %d objects", p.frame, len(objects))
	}
	if err := p.checkpoint(ctx); err != nil {
		return nil, err
	}

	prof.BeginScope(StageFrustum)
	frustum := cam.Frustum()
	if frustum.Degenerate {
		stats.FrustumDisabled = true
		p.log.Debugf("frame %d: degenerate view-projection, frustum culling disabled", p.frame)
	}
	inFrustum := p.culler.Cull(frustum)
	stats.CulledByFrustum = len(objects) - len(inFrustum)
	prof.EndScope(StageFrustum)
	if err := p.checkpoint(ctx); err != nil {
		return nil, err
	}

	prof.BeginScope(StageOcclusion)
	survivors := inFrustum
	var queries []occlusion.Request
	if p.occlusion != nil {
		p.occlusion.Poll(p.readback)

		candidates := make([]occlusion.Candidate, len(inFrustum))
		for k, i := range inFrustum {
			candidates[k] = occlusion.Candidate{
				ID:             objects[i].ID,
				Bounds:         p.culler.WorldBounds(i),
				RetestInterval: objects[i].RetestInterval,
			}
		}
		queries = p.occlusion.BeginQueryPass(candidates)

		survivors = make([]int32, 0, len(inFrustum))
		for _, i := range inFrustum {
			if p.occlusion.IsVisible(objects[i].ID) {
				survivors = append(survivors, i)
			}
		}
		stats.CulledByOcclusion = len(inFrustum) - len(survivors)
		stats.Occlusion = p.occlusion.Stats()
		if stats.Occlusion.Bypassed > 0 {
			p.log.Debugf("frame %d: query pool exhausted, %d objects bypassed", p.frame, stats.Occlusion.Bypassed)
		}
	}
	stats.VisibleObjects = len(survivors)
	prof.EndScope(StageOcclusion)
	if err := p.checkpoint(ctx); err != nil {
		return nil, err
	}

	prof.BeginScope(StageLOD)
	if p.lod != nil {
		p.lod.BeginFrame(p.frame)
	}
	items := make([]instancing.Item, len(survivors))
	for k, i := range survivors {
		obj := &objects[i]
		level, blend := 0, float32(1)
		if p.lod != nil {
			st := p.lod.Update(p.frame, obj.ID, p.culler.WorldBounds(i), cam, obj.MaxLevel())
			level, blend = st.Level, st.Blend
		}
		items[k] = instancing.Item{
			ID:       obj.ID,
			Mesh:     obj.MeshForLevel(level),
			Shader:   obj.Shader,
			Texture:  obj.Texture,
			Material: obj.Material,
			World:    obj.World,
			Level:    level,
			Blend:    blend,
		}
	}
	if p.lod != nil {
		stats.LOD = p.lod.Stats()
	}
	prof.EndScope(StageLOD)

	prof.BeginScope(StageGroup)
	groups := p.grouper.Group(items)
	stats.Instancing = p.grouper.Stats()
	prof.EndScope(StageGroup)

	prof.BeginScope(StageBatch)
	calls := p.batcher.Batch(groups)
	stats.Batching = batch.Summarize(calls)
	stats.TotalBatches = len(calls)
	prof.EndScope(StageBatch)
	if err := p.checkpoint(ctx); err != nil {
		return nil, err
	}

	prof.SetCount("objects", stats.TotalObjects)
	prof.SetCount("visible", stats.VisibleObjects)
	prof.SetCount("batches", stats.TotalBatches)
	prof.SetCount("queries", len(queries))
	stats.StageTimes = prof.Timings()
	stats.finish()

	return &FrameResult{Batches: calls, Queries: queries, Stats: stats}, nil
}

// checkpoint abandons the frame when ctx is done.
func (p *Pipeline) checkpoint(ctx context.Context) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	p.abandonLocked()
	p.log.Warnf("frame %d abandoned: %v", p.frame, err)
	return err
}

// Resolve applies query results read back by the caller.
func (p *Pipeline) Resolve(results []occlusion.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.occlusion != nil {
		p.occlusion.Resolve(results)
	}
}

// Abandon discards in-flight occlusion queries, for example after a device
// loss. Affected objects are drawn until retested.
func (p *Pipeline) Abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandonLocked()
}

func (p *Pipeline) abandonLocked() {
	if p.occlusion != nil {
		p.occlusion.Abandon()
	}
}

// Clear resets the spatial index, the query pool and all LOD states.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.culler.Clear()
	if p.occlusion != nil {
		p.occlusion.Clear()
	}
	if p.lod != nil {
		p.lod.Clear()
	}
	p.frame = 0
}

// Close stops the worker pool. The pipeline cannot be used afterwards.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.pool != nil {
		p.pool.Stop()
		p.pool = nil
	}
	return nil
}

// Profiler returns a snapshot of the last frame's profile. It is safe to
// read while another frame runs.
func (p *Pipeline) Profiler() *Profiler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profiler.Clone()
}

// ObjectState reports the occlusion state of id.
func (p *Pipeline) ObjectState(id core.ObjectID) (occlusion.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.occlusion == nil {
		return occlusion.Unknown, false
	}
	return p.occlusion.State(id)
}

// LODState reports the LOD record of id.
func (p *Pipeline) LODState(id core.ObjectID) (lod.State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lod == nil {
		return lod.State{}, false
	}
	return p.lod.State(id)
}
