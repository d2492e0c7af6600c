package vispipe

import (
	"fmt"

	"github.com/gekko3d/vispipe/rt/batch"
	"github.com/gekko3d/vispipe/rt/bvh"
	"github.com/gekko3d/vispipe/rt/instancing"
	"github.com/gekko3d/vispipe/rt/lod"
	"github.com/gekko3d/vispipe/rt/occlusion"
)

// Config holds every tunable of the pipeline. All of it is validated by New.
type Config struct {
	LeafThreshold int

	EnableOcclusion bool
	Occlusion       occlusion.Config

	EnableLOD bool
	LOD       lod.Config

	Instancing instancing.Config
	Batch      batch.Config

	// Workers > 0 culls BVH subtrees on a worker pool of that size.
	Workers int
	// ParallelSplitDepth is the tree depth at which subtrees become tasks.
	ParallelSplitDepth int
	// ParallelMinObjects is the scene size below which culling stays serial.
	ParallelMinObjects int
}

func DefaultConfig() Config {
	return Config{
		LeafThreshold:      bvh.DefaultLeafThreshold,
		EnableOcclusion:    true,
		Occlusion:          occlusion.DefaultConfig(),
		EnableLOD:          true,
		LOD:                lod.DefaultConfig(),
		Instancing:         instancing.DefaultConfig(),
		Batch:              batch.DefaultConfig(),
		Workers:            0,
		ParallelSplitDepth: 3,
		ParallelMinObjects: 2048,
	}
}

func (c Config) Validate() error {
	if c.LeafThreshold < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, bvh.ErrInvalidLeafThreshold)
	}
	if c.EnableOcclusion {
		if err := c.Occlusion.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.EnableLOD {
		if err := c.LOD.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if err := c.Instancing.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0 (got %d)", ErrInvalidConfig, c.Workers)
	}
	if c.Workers > 0 && c.ParallelSplitDepth < 1 {
		return fmt.Errorf("%w: parallel split depth must be >= 1 (got %d)", ErrInvalidConfig, c.ParallelSplitDepth)
	}
	return nil
}

type Option func(p *Pipeline)

func WithLogger(l Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithReadback sets the source polled for occlusion query results at the
// start of every frame.
func WithReadback(rb occlusion.Readback) Option {
	return func(p *Pipeline) {
		p.readback = rb
	}
}

func WithProfiler(prof *Profiler) Option {
	return func(p *Pipeline) {
		if prof != nil {
			p.profiler = prof
		}
	}
}

// WithWorkers overrides Config.Workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.cfg.Workers = n
	}
}
