package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type ObjectID uint64

// MeshHandle identifies a mesh asset. Handles compare lexically.
type MeshHandle string

type ShaderID uint64

// TextureID 0 means untextured and sorts before any texture.
type TextureID uint64

const NoTexture TextureID = 0

func NewMeshHandle() MeshHandle {
	return MeshHandle(uuid.NewString())
}

// IDSet is a set of object ids.
type IDSet map[ObjectID]struct{}

func (s IDSet) Has(id ObjectID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id ObjectID) {
	s[id] = struct{}{}
}

// RenderableObject is the per-frame descriptor supplied by the caller.
type RenderableObject struct {
	ID          ObjectID
	LocalBounds AABB
	World       mgl32.Mat4
	Mesh        MeshHandle
	// LODMeshes are the reduced meshes for levels 1..n. Level 0 always uses
	// Mesh. When empty the object has a single mesh and its level is not
	// clamped.
	LODMeshes []MeshHandle
	Shader    ShaderID
	Texture   TextureID
	Material  Material
	// RetestInterval overrides the occlusion retest interval in frames.
	// Zero uses the pipeline default.
	RetestInterval uint32
}

func (o *RenderableObject) WorldBounds() AABB {
	return o.LocalBounds.Transform(o.World)
}

func (o *RenderableObject) SortKey() SortKey {
	return SortKey{Shader: o.Shader, Texture: o.Texture, Material: o.Material.Key()}
}

// MaxLevel returns the highest level index with a distinct mesh, or -1 when
// the object has no LOD meshes.
func (o *RenderableObject) MaxLevel() int {
	if len(o.LODMeshes) == 0 {
		return -1
	}
	return len(o.LODMeshes)
}

func (o *RenderableObject) MeshForLevel(level int) MeshHandle {
	if level <= 0 || len(o.LODMeshes) == 0 {
		return o.Mesh
	}
	if level > len(o.LODMeshes) {
		level = len(o.LODMeshes)
	}
	return o.LODMeshes[level-1]
}
