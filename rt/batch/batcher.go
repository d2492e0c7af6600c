package batch

import (
	"cmp"
	"math"
	"slices"

	"github.com/gekko3d/vispipe/rt/core"
	"github.com/gekko3d/vispipe/rt/instancing"
)

type Config struct {
	// MergeAdjacent folds neighbouring instanced draws with the same sort key
	// and mesh into one submission. Single draws stay single so groups below
	// the instancing threshold are never fused.
	MergeAdjacent bool
}

func DefaultConfig() Config {
	return Config{MergeAdjacent: true}
}

// DrawCall is one GPU submission in final order.
type DrawCall struct {
	Key       core.SortKey
	Mesh      core.MeshHandle
	Material  core.Material
	Instances []instancing.Instance
	Instanced bool
}

func (d *DrawCall) InstanceCount() int {
	return len(d.Instances)
}

type Batcher struct {
	cfg Config
}

func NewBatcher(cfg Config) *Batcher {
	return &Batcher{cfg: cfg}
}

func (b *Batcher) Config() Config {
	return b.cfg
}

// Batch orders groups by shader, texture and material and returns the draw
// list. The order is a pure function of the groups, independent of their
// input order.
func (b *Batcher) Batch(groups []instancing.Group) []DrawCall {
	sorted := slices.Clone(groups)
	slices.SortStableFunc(sorted, func(x, y instancing.Group) int { return x.Compare(&y) })

	calls := make([]DrawCall, 0, len(sorted))
	for i := range sorted {
		g := &sorted[i]
		if b.cfg.MergeAdjacent && len(calls) > 0 {
			last := &calls[len(calls)-1]
			if last.Instanced && g.Instanced && last.Key == g.Key && last.Mesh == g.Mesh {
				last.Instances = append(last.Instances, g.Instances...)
				continue
			}
		}
		calls = append(calls, DrawCall{
			Key:       g.Key,
			Mesh:      g.Mesh,
			Material:  g.Material,
			Instances: slices.Clone(g.Instances),
			Instanced: g.Instanced,
		})
	}

	if b.cfg.MergeAdjacent {
		for i := range calls {
			slices.SortStableFunc(calls[i].Instances, func(x, y instancing.Instance) int {
				return cmp.Compare(x.ID, y.ID)
			})
		}
	}
	return calls
}

type Stats struct {
	Objects      int
	Batches      int
	Instanced    int
	MaxInstances int
	MinInstances int
	AvgInstances float32
	// StateChanges counts shader or texture switches between consecutive
	// draws.
	StateChanges int
}

// MeetsTarget reports whether there is at most one draw per ten objects.
// Above 1000 objects the bound is strict.
func (s Stats) MeetsTarget() bool {
	limit := int(math.Ceil(float64(s.Objects) / 10))
	if s.Objects >= 1000 {
		return s.Batches < limit
	}
	return s.Batches <= limit
}

func Summarize(calls []DrawCall) Stats {
	s := Stats{Batches: len(calls)}
	for i := range calls {
		n := calls[i].InstanceCount()
		s.Objects += n
		if calls[i].Instanced {
			s.Instanced++
		}
		if i == 0 || n > s.MaxInstances {
			s.MaxInstances = n
		}
		if i == 0 || n < s.MinInstances {
			s.MinInstances = n
		}
		if i > 0 {
			prev := calls[i-1].Key
			if prev.Shader != calls[i].Key.Shader || prev.Texture != calls[i].Key.Texture {
				s.StateChanges++
			}
		}
	}
	if s.Batches > 0 {
		s.AvgInstances = float32(s.Objects) / float32(s.Batches)
	}
	return s
}
