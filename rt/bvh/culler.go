package bvh

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/gekko3d/vispipe/rt/core"
)

const (
	defaultSplitDepth  = 3
	defaultMinParallel = 2048
)

// Culler owns the tree across frames and rebuilds it whenever the object
// list changes membership, order or any world bounds.
type Culler struct {
	builder *Builder
	tree    *Tree

	ids    []core.ObjectID
	bounds []core.AABB

	pool        worker.DynamicWorkerPool
	splitDepth  int
	minParallel int

	rebuilds int
}

type CullerOption func(c *Culler)

// WithWorkerPool farms the subtrees found at splitDepth out to pool once the
// tree indexes at least minObjects objects.
func WithWorkerPool(pool worker.DynamicWorkerPool, splitDepth, minObjects int) CullerOption {
	return func(c *Culler) {
		c.pool = pool
		if splitDepth > 0 {
			c.splitDepth = splitDepth
		}
		if minObjects > 0 {
			c.minParallel = minObjects
		}
	}
}

func NewCuller(leafThreshold int, opts ...CullerOption) (*Culler, error) {
	builder, err := NewBuilder(leafThreshold)
	if err != nil {
		return nil, err
	}
	c := &Culler{
		builder:     builder,
		splitDepth:  defaultSplitDepth,
		minParallel: defaultMinParallel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sync computes world bounds for objects and rebuilds the tree if anything
// changed since the previous call. It reports whether a rebuild happened.
func (c *Culler) Sync(objects []core.RenderableObject) bool {
	changed := c.tree == nil || len(objects) != len(c.ids)

	if changed {
		c.ids = make([]core.ObjectID, len(objects))
		c.bounds = make([]core.AABB, len(objects))
	}
	for i := range objects {
		obj := &objects[i]
		wb := obj.WorldBounds()
		if c.ids[i] != obj.ID || c.bounds[i] != wb {
			changed = true
		}
		c.ids[i] = obj.ID
		c.bounds[i] = wb
	}

	if !changed {
		return false
	}

	// bounds are mutated in place on the next Sync, so the tree keeps its own copy
	c.tree = c.builder.Build(slices.Clone(c.bounds))
	c.rebuilds++
	return true
}

func (c *Culler) Tree() *Tree {
	return c.tree
}

// WorldBounds returns the cached world bounds of the object at index i of
// the last synced list.
func (c *Culler) WorldBounds(i int32) core.AABB {
	return c.bounds[i]
}

func (c *Culler) ID(i int32) core.ObjectID {
	return c.ids[i]
}

func (c *Culler) Rebuilds() int {
	return c.rebuilds
}

// Cull returns indices into the last synced object list of every object that
// passes the frustum test, in ascending order.
func (c *Culler) Cull(f core.Frustum) []int32 {
	if c.tree == nil {
		return nil
	}
	if c.pool == nil || c.tree.Len() < c.minParallel {
		return c.tree.Query(f)
	}
	return c.tree.QueryParallel(f, c.pool, c.splitDepth)
}

func (c *Culler) Clear() {
	c.tree = nil
	c.ids = nil
	c.bounds = nil
}

type subtree struct {
	node   int32
	inside bool
}

// QueryParallel returns the same result as Query. Subtrees rooted at depth
// are culled as independent pool tasks, each writing only its own slot.
func (t *Tree) QueryParallel(f core.Frustum, pool worker.DynamicWorkerPool, depth int) []int32 {
	var roots []subtree
	var out []int32
	t.collectSubtrees(0, f, false, depth, &roots, &out)

	results := make([][]int32, len(roots))

	// WaitGroup is the per-frame barrier; pool.Wait blocks until the
	// whole pool is idle.
	var wg sync.WaitGroup
	for k, r := range roots {
		wg.Add(1)
		slot := k
		root := r
		pool.SubmitTask(worker.Task{
			ID: slot,
			Do: func() (any, error) {
				defer wg.Done()
				var part []int32
				t.queryNode(root.node, f, root.inside, &part)
				results[slot] = part
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, part := range results {
		out = append(out, part...)
	}
	sortIndices(out)
	return out
}

// collectSubtrees walks the top of the tree serially. Leaves met above depth
// are culled in place.
func (t *Tree) collectSubtrees(idx int32, f core.Frustum, inside bool, depth int, roots *[]subtree, out *[]int32) {
	n := &t.nodes[idx]
	if !inside {
		switch f.Classify(n.Bounds) {
		case core.Outside:
			return
		case core.Inside:
			inside = true
		}
	}

	if n.IsLeaf() {
		t.queryNode(idx, f, inside, out)
		return
	}
	if depth <= 0 {
		*roots = append(*roots, subtree{node: idx, inside: inside})
		return
	}
	t.collectSubtrees(n.Left, f, inside, depth-1, roots, out)
	t.collectSubtrees(n.Right, f, inside, depth-1, roots, out)
}
