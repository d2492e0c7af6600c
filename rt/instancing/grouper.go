package instancing

import (
	"cmp"
	"errors"
	"slices"

	"github.com/gekko3d/vispipe/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidThreshold = errors.New("instancing: auto instancing threshold must be >= 1")

type Config struct {
	// AutoInstancingThreshold is the minimum group size drawn as one
	// instanced submission.
	AutoInstancingThreshold int
	// EnableMaterialMerging groups objects that share mesh, shader and
	// texture regardless of material scalars. Instances whose material key
	// differs from the group's carry it as an override.
	EnableMaterialMerging bool
}

func DefaultConfig() Config {
	return Config{
		AutoInstancingThreshold: 2,
		EnableMaterialMerging:   false,
	}
}

func (c Config) Validate() error {
	if c.AutoInstancingThreshold < 1 {
		return ErrInvalidThreshold
	}
	return nil
}

// Item is a visible object after LOD selection.
type Item struct {
	ID       core.ObjectID
	Mesh     core.MeshHandle
	Shader   core.ShaderID
	Texture  core.TextureID
	Material core.Material
	World    mgl32.Mat4
	Level    int
	Blend    float32
}

// Instance is the per-instance payload of a draw.
type Instance struct {
	ID       core.ObjectID
	World    mgl32.Mat4
	Material core.Material
	// Override is set when Material differs from the draw's material and has
	// to be uploaded per instance.
	Override bool
	Level    int
	Blend    float32
}

// Group is a set of instances sharing mesh and pipeline state.
type Group struct {
	Key       core.SortKey
	Mesh      core.MeshHandle
	Material  core.Material
	Instances []Instance
	Instanced bool
}

func (g *Group) FirstID() core.ObjectID {
	if len(g.Instances) == 0 {
		return 0
	}
	return g.Instances[0].ID
}

// Compare orders groups by sort key, then mesh, then first object id.
func (g *Group) Compare(o *Group) int {
	if c := g.Key.Compare(o.Key); c != 0 {
		return c
	}
	if c := cmp.Compare(g.Mesh, o.Mesh); c != 0 {
		return c
	}
	return cmp.Compare(g.FirstID(), o.FirstID())
}

type groupKey struct {
	mesh     core.MeshHandle
	shader   core.ShaderID
	texture  core.TextureID
	material core.MaterialKey
}

type Stats struct {
	Objects          int
	Groups           int
	InstancedGroups  int
	InstancedObjects int
	// Ratio is objects per group.
	Ratio        float32
	AvgInstances float32
}

type Grouper struct {
	cfg   Config
	stats Stats
}

func NewGrouper(cfg Config) (*Grouper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Grouper{cfg: cfg}, nil
}

func (g *Grouper) Config() Config {
	return g.cfg
}

// Group clusters items by mesh and pipeline state. Clusters smaller than
// the threshold are emitted as single-instance groups so that every item
// appears in exactly one group. The result is ordered by Group.Compare.
func (g *Grouper) Group(items []Item) []Group {
	buckets := make(map[groupKey][]Item)
	for _, it := range items {
		k := groupKey{mesh: it.Mesh, shader: it.Shader, texture: it.Texture}
		if !g.cfg.EnableMaterialMerging {
			k.material = it.Material.Key()
		}
		buckets[k] = append(buckets[k], it)
	}

	groups := make([]Group, 0, len(buckets))
	for _, members := range buckets {
		slices.SortFunc(members, func(a, b Item) int { return cmp.Compare(a.ID, b.ID) })

		if len(members) < g.cfg.AutoInstancingThreshold {
			for _, it := range members {
				groups = append(groups, single(it))
			}
			continue
		}

		rep := members[0].Material
		repKey := rep.Key()
		grp := Group{
			Key:       core.SortKey{Shader: members[0].Shader, Texture: members[0].Texture, Material: repKey},
			Mesh:      members[0].Mesh,
			Material:  rep,
			Instances: make([]Instance, len(members)),
			Instanced: true,
		}
		for i, it := range members {
			grp.Instances[i] = newInstance(it, it.Material.Key() != repKey)
		}
		groups = append(groups, grp)
	}

	slices.SortFunc(groups, func(a, b Group) int { return a.Compare(&b) })
	g.stats = summarize(len(items), groups)
	return groups
}

// Stats describes the last call to Group.
func (g *Grouper) Stats() Stats {
	return g.stats
}

func single(it Item) Group {
	return Group{
		Key:       core.SortKey{Shader: it.Shader, Texture: it.Texture, Material: it.Material.Key()},
		Mesh:      it.Mesh,
		Material:  it.Material,
		Instances: []Instance{newInstance(it, false)},
	}
}

func newInstance(it Item, override bool) Instance {
	return Instance{
		ID:       it.ID,
		World:    it.World,
		Material: it.Material,
		Override: override,
		Level:    it.Level,
		Blend:    it.Blend,
	}
}

func summarize(objects int, groups []Group) Stats {
	s := Stats{Objects: objects, Groups: len(groups)}
	for i := range groups {
		if groups[i].Instanced {
			s.InstancedGroups++
			s.InstancedObjects += len(groups[i].Instances)
		}
	}
	if s.Groups > 0 {
		s.Ratio = float32(objects) / float32(s.Groups)
	}
	if s.InstancedGroups > 0 {
		s.AvgInstances = float32(s.InstancedObjects) / float32(s.InstancedGroups)
	}
	return s
}
