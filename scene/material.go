package scene

import (
	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
)

// Material describes surface appearance. It is turned into a
// deferred.Material when the scene is uploaded.
type Material struct {
	Name      string
	Albedo    core.Color // multiplied with AlbedoTexture if set
	Metallic  float32
	Roughness float32
	Unlit     bool // output raw albedo, skip lighting

	// Overlay materials are drawn after lighting with alpha blending and
	// never cast shadows.
	Overlay bool

	AlbedoTexture *Texture
}

// DefaultMaterial returns a plain white matte material.
func DefaultMaterial() *Material {
	return &Material{
		Name:      "Default",
		Albedo:    core.ColorWhite,
		Roughness: 0.5,
	}
}

// NewMaterial creates a dielectric material with the given albedo.
func NewMaterial(name string, albedo core.Color) *Material {
	return &Material{
		Name:      name,
		Albedo:    albedo,
		Roughness: 0.5,
	}
}

// NewPBRMaterial creates a material with the given albedo, metallic and roughness.
func NewPBRMaterial(name string, albedo core.Color, metallic, roughness float32) *Material {
	return &Material{
		Name:      name,
		Albedo:    albedo,
		Metallic:  metallic,
		Roughness: roughness,
	}
}

// build converts m into the material the geometry pass draws with.
func (m *Material) build(p *gpu.Program) *deferred.Material {
	dm := deferred.DefaultMaterial(p)
	dm.Albedo = m.Albedo
	dm.Roughness = m.Roughness
	dm.Metalness = m.Metallic
	dm.ReceivesLighting = !m.Unlit
	if m.Overlay {
		dm.RenderPass = deferred.RenderPassOverlay
	}
	if m.AlbedoTexture != nil {
		dm.AlbedoMap = m.AlbedoTexture.ID
	}
	return dm
}
