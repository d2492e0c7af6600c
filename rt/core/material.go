package core

import (
	"cmp"
	"math"
)

// Material carries the scalar surface properties that take part in sorting
// and instancing decisions. Channels are expected in 0..1.
type Material struct {
	Albedo    [4]float32 // RGBA
	Metallic  float32
	Roughness float32
	Emissive  [3]float32 // RGB
}

func NewMaterial(albedo [4]float32, metallic, roughness float32) Material {
	return Material{
		Albedo:    albedo,
		Metallic:  metallic,
		Roughness: roughness,
	}
}

// Helper for default white
func DefaultMaterial() Material {
	return Material{
		Albedo:    [4]float32{1, 1, 1, 1},
		Metallic:  0.0,
		Roughness: 1.0,
	}
}

// MaterialKey is the 8-bit quantized form of a Material. It is used only to
// compare materials, never for shading.
type MaterialKey struct {
	Albedo    [4]uint8
	Metallic  uint8
	Roughness uint8
	Emissive  [3]uint8
}

func (m Material) Key() MaterialKey {
	var k MaterialKey
	for i, v := range m.Albedo {
		k.Albedo[i] = quantize(v)
	}
	k.Metallic = quantize(m.Metallic)
	k.Roughness = quantize(m.Roughness)
	for i, v := range m.Emissive {
		k.Emissive[i] = quantize(v)
	}
	return k
}

// quantize truncates a clamped 0..1 value to 8 bits. NaN maps to 0.
func quantize(v float32) uint8 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}

func (k MaterialKey) bytes() [9]uint8 {
	return [9]uint8{
		k.Albedo[0], k.Albedo[1], k.Albedo[2], k.Albedo[3],
		k.Metallic, k.Roughness,
		k.Emissive[0], k.Emissive[1], k.Emissive[2],
	}
}

// Compare orders keys by albedo, metallic, roughness, then emissive.
func (k MaterialKey) Compare(o MaterialKey) int {
	a, b := k.bytes(), o.bytes()
	for i := range a {
		if c := cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// SortKey orders draw submissions: shader first, then texture, then
// material.
type SortKey struct {
	Shader   ShaderID
	Texture  TextureID
	Material MaterialKey
}

func (k SortKey) Compare(o SortKey) int {
	if c := cmp.Compare(k.Shader, o.Shader); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Texture, o.Texture); c != 0 {
		return c
	}
	return k.Material.Compare(o.Material)
}

func (k SortKey) Less(o SortKey) bool {
	return k.Compare(o) < 0
}
