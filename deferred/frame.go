// Package deferred implements the deferred shading passes: the G-buffer,
// per-light shadow and lighting passes, screen-space ambient occlusion and
// tone mapping.
//
// Passes run strictly in order on the goroutine owning the graphics context.
// Every pass scopes the pipeline state it touches with a gpu.StateStack, so a
// pass that returns early leaves the state exactly as it found it.
package deferred

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

// RenderPass selects which pass of the frame draws a material.
type RenderPass uint8

const (
	// RenderPassScene materials are drawn into the G-buffer and cast shadows.
	RenderPassScene RenderPass = iota
	// RenderPassOverlay materials are drawn after lighting and never cast.
	RenderPassOverlay
)

// Material is what a renderable draws with in the geometry pass.
type Material struct {
	Program *gpu.Program
	Albedo  core.Color
	// AlbedoMap, when non-zero, is multiplied with Albedo.
	AlbedoMap        gpu.TextureID
	Roughness        float32
	Metalness        float32
	ReceivesLighting bool
	RenderPass       RenderPass
}

// DefaultMaterial returns a lit, white, fairly rough material drawn with p.
func DefaultMaterial(p *gpu.Program) *Material {
	return &Material{
		Program:          p,
		Albedo:           core.ColorWhite,
		Roughness:        0.5,
		ReceivesLighting: true,
		RenderPass:       RenderPassScene,
	}
}

// Renderable is a drawable the scene hands to the passes.
type Renderable interface {
	ActiveRecursively() bool
	CastsShadows() bool
	ActiveMaterial() *Material
	ModelMatrix() mgl32.Mat4
	Mesh() gpu.MeshID
}

// Transformer supplies a light's world placement.
type Transformer interface {
	WorldPosition() mgl32.Vec3
	// Forward is the normalized world-space direction the object faces.
	Forward() mgl32.Vec3
}

// FrameSource is the scene as seen by one frame. Both slices are iterated in
// order; lights are shaded in the order returned.
type FrameSource interface {
	Renderables() []Renderable
	Lights() []*Light
}

// View holds the camera matrices used for one pass.
type View struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
	Near, Far  float32
}

func (v View) ViewProjection() mgl32.Mat4 { return v.Projection.Mul4(v.View) }

func (v View) apply(p *gpu.Program) {
	p.SetMat4("B_View", v.View)
	p.SetMat4("B_Projection", v.Projection)
}

// FrameContext carries the per-frame objects every pass needs.
type FrameContext struct {
	Stack   *gpu.StateStack
	GBuffer *GBuffer
	View    View
	Source  FrameSource
	// Replacement, when set, draws every renderable with this program
	// instead of its material's.
	Replacement *gpu.Program
}

func (ctx *FrameContext) device() gpu.Device { return ctx.Stack.Device() }

// DrawRenderables draws every renderable accepted by keep with its material
// program, or with ctx.Replacement when one is set. Renderables without a
// material or program are skipped. It returns the number of draws issued.
func DrawRenderables(ctx *FrameContext, rs []Renderable, keep func(Renderable) bool) int {
	defer ctx.Stack.Scope(gpu.AspectProgram)()

	dev := ctx.device()
	n := 0
	for _, r := range rs {
		if keep != nil && !keep(r) {
			continue
		}
		mat := r.ActiveMaterial()
		if mat == nil {
			continue
		}
		p := mat.Program
		if ctx.Replacement != nil {
			p = ctx.Replacement
		}
		if p == nil {
			continue
		}
		p.SetMat4("B_Model", r.ModelMatrix())
		ctx.View.apply(p)
		if ctx.Replacement == nil {
			p.SetColor("B_Albedo", mat.Albedo)
			p.SetFloat("B_Roughness", mat.Roughness)
			p.SetFloat("B_Metalness", mat.Metalness)
			p.SetBool("B_ReceivesLighting", mat.ReceivesLighting)
			if p.Has("B_AlbedoMap") {
				p.SetTexture("B_AlbedoMap", mat.AlbedoMap)
				p.SetBool("B_HasAlbedoMap", mat.AlbedoMap != 0)
			}
		}
		p.Use()
		dev.DrawMesh(r.Mesh())
		n++
	}
	return n
}

// IsSceneRenderable accepts active renderables whose material is drawn in the
// scene pass.
func IsSceneRenderable(r Renderable) bool {
	if !r.ActiveRecursively() {
		return false
	}
	mat := r.ActiveMaterial()
	return mat != nil && mat.RenderPass == RenderPassScene
}

// IsShadowCaster additionally requires the renderable to cast shadows.
func IsShadowCaster(r Renderable) bool {
	return IsSceneRenderable(r) && r.CastsShadows()
}

// PassError reports a fatal failure inside a pass. Shader is empty when the
// failure is not tied to a program.
type PassError struct {
	Pass   string
	Shader string
	Err    error
}

func (e *PassError) Error() string {
	if e.Shader == "" {
		return fmt.Sprintf("%s pass: %v", e.Pass, e.Err)
	}
	return fmt.Sprintf("%s pass (shader %q): %v", e.Pass, e.Shader, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }

// checkDevice turns a fatal device condition into a PassError.
func checkDevice(dev gpu.Device, pass string) error {
	if err := dev.Err(); err != nil {
		return &PassError{Pass: pass, Err: err}
	}
	return nil
}
