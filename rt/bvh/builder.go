package bvh

import (
	"errors"
	"sort"

	"github.com/gekko3d/vispipe/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultLeafThreshold is the maximum number of objects kept in a leaf.
const DefaultLeafThreshold = 16

var ErrInvalidLeafThreshold = errors.New("bvh: leaf threshold must be >= 1")

// Node is an element of the flat node array. A leaf has Left == -1 and
// references LeafCount entries of the leaf index list starting at LeafFirst.
type Node struct {
	Bounds    core.AABB
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) IsLeaf() bool {
	return n.Left < 0
}

type item struct {
	bounds   core.AABB
	centroid mgl32.Vec3
	index    int32
}

type Builder struct {
	LeafThreshold int
}

func NewBuilder(leafThreshold int) (*Builder, error) {
	if leafThreshold < 1 {
		return nil, ErrInvalidLeafThreshold
	}
	return &Builder{LeafThreshold: leafThreshold}, nil
}

// Build constructs a tree over bounds by recursive median splits on the
// longest axis. Indices in the tree refer to positions in bounds.
//
// Invalid boxes are gathered under a separate subtree with empty bounds so
// that they still occupy exactly one leaf without inflating node bounds.
func (b *Builder) Build(bounds []core.AABB) *Tree {
	t := &Tree{bounds: bounds}
	if len(bounds) == 0 {
		t.nodes = []Node{{Bounds: core.EmptyAABB(), Left: -1, Right: -1}}
		return t
	}

	valid := make([]item, 0, len(bounds))
	var invalid []item
	for i, box := range bounds {
		it := item{bounds: box, index: int32(i)}
		if box.Valid() {
			it.centroid = box.Center()
			valid = append(valid, it)
		} else {
			invalid = append(invalid, it)
		}
	}

	t.nodes = make([]Node, 0, 2*len(bounds)/max(b.LeafThreshold, 1)+1)
	t.leaves = make([]int32, 0, len(bounds))

	switch {
	case len(invalid) == 0:
		b.recursiveBuild(t, valid, false)
	case len(valid) == 0:
		b.recursiveBuild(t, invalid, true)
	default:
		root := t.push(Node{Left: -1, Right: -1})
		left := b.recursiveBuild(t, valid, false)
		right := b.recursiveBuild(t, invalid, true)
		t.nodes[root].Bounds = t.nodes[left].Bounds
		t.nodes[root].Left = left
		t.nodes[root].Right = right
	}
	return t
}

func (b *Builder) recursiveBuild(t *Tree, items []item, degenerate bool) int32 {
	idx := t.push(Node{Left: -1, Right: -1})

	bounds := core.EmptyAABB()
	if !degenerate {
		for _, it := range items {
			bounds = bounds.Union(it.bounds)
		}
	}
	t.nodes[idx].Bounds = bounds

	if len(items) <= b.LeafThreshold {
		t.nodes[idx].LeafFirst = int32(len(t.leaves))
		t.nodes[idx].LeafCount = int32(len(items))
		for _, it := range items {
			t.leaves = append(t.leaves, it.index)
		}
		return idx
	}

	if !degenerate {
		axis := bounds.LongestAxis()
		sort.Slice(items, func(i, j int) bool {
			ci, cj := items[i].centroid[axis], items[j].centroid[axis]
			if ci != cj {
				return ci < cj
			}
			return items[i].index < items[j].index
		})
	}

	mid := len(items) / 2
	left := b.recursiveBuild(t, items[:mid], degenerate)
	right := b.recursiveBuild(t, items[mid:], degenerate)
	t.nodes[idx].Left = left
	t.nodes[idx].Right = right

	return idx
}

// Tree is an immutable BVH over a snapshot of bounds.
type Tree struct {
	nodes  []Node
	leaves []int32
	bounds []core.AABB
}

func (t *Tree) push(n Node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Tree) Nodes() []Node {
	return t.nodes
}

// Leaves returns the leaf index list referenced by leaf nodes.
func (t *Tree) Leaves() []int32 {
	return t.leaves
}

// Len is the number of indexed objects.
func (t *Tree) Len() int {
	return len(t.bounds)
}

func (t *Tree) Bounds() core.AABB {
	return t.nodes[0].Bounds
}

func (t *Tree) Depth() int {
	return t.depth(0)
}

func (t *Tree) depth(idx int32) int {
	n := &t.nodes[idx]
	if n.IsLeaf() {
		return 1
	}
	return 1 + max(t.depth(n.Left), t.depth(n.Right))
}

// Query returns the indices of all boxes that pass the frustum test, in
// ascending order.
func (t *Tree) Query(f core.Frustum) []int32 {
	out := make([]int32, 0, len(t.bounds)/4)
	t.queryNode(0, f, false, &out)
	sortIndices(out)
	return out
}

// queryNode skips subtrees whose bounds are outside. Below a node that is
// fully inside, objects only need the validity check.
func (t *Tree) queryNode(idx int32, f core.Frustum, inside bool, out *[]int32) {
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
		for _, i := range t.leaves[n.LeafFirst : n.LeafFirst+n.LeafCount] {
			box := t.bounds[i]
			if inside {
				if box.Valid() {
					*out = append(*out, i)
				}
			} else if f.TestAABB(box) {
				*out = append(*out, i)
			}
		}
		return
	}

	t.queryNode(n.Left, f, inside, out)
	t.queryNode(n.Right, f, inside, out)
}

func sortIndices(s []int32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
