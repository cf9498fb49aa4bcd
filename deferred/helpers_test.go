package deferred_test

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/softgpu"
)

// ssaoStageValue is what the test occlusion shader writes everywhere.
const ssaoStageValue = 0.5

// builtinShaders gives every built-in program a Go fragment with the same
// uniform interface as its GLSL.
func builtinShaders() map[string]softgpu.Shader {
	shader := func(name string, frag softgpu.FragmentFunc) softgpu.Shader {
		src, _ := deferred.Source(name)
		return softgpu.Shader{Uniforms: softgpu.ParseUniforms(src.Vertex, src.Fragment), Fragment: frag}
	}

	// Lights add albedo·colour·intensity to lit pixels, no falloff.
	light := func(f *softgpu.Fragment) {
		if f.Fetch(deferred.TexMisc, f.X, f.Y).X() < 0.5 {
			f.Out(0, mgl32.Vec4{})
			return
		}
		a := f.Fetch(deferred.TexAlbedo, f.X, f.Y)
		c := f.Vec3("B_LightColor").Mul(f.Float("B_LightIntensity"))
		f.Out(0, mgl32.Vec4{a[0] * c[0], a[1] * c[1], a[2] * c[2], 0})
	}
	copyMap := func(f *softgpu.Fragment) {
		f.Out(0, f.Fetch("B_SSAOMap", f.X, f.Y))
	}

	return map[string]softgpu.Shader{
		deferred.ProgramGeometry:         shader(deferred.ProgramGeometry, nil),
		deferred.ProgramShadowDepth:      shader(deferred.ProgramShadowDepth, nil),
		deferred.ProgramShadowDistance:   shader(deferred.ProgramShadowDistance, nil),
		deferred.ProgramLightDirectional: shader(deferred.ProgramLightDirectional, light),
		deferred.ProgramLightPoint:       shader(deferred.ProgramLightPoint, light),
		deferred.ProgramLightSpot:        shader(deferred.ProgramLightSpot, light),
		deferred.ProgramSSAO: shader(deferred.ProgramSSAO, func(f *softgpu.Fragment) {
			f.Out(0, mgl32.Vec4{ssaoStageValue, ssaoStageValue, ssaoStageValue, 1})
		}),
		deferred.ProgramSSAOBlurX: shader(deferred.ProgramSSAOBlurX, copyMap),
		deferred.ProgramSSAOBlurY: shader(deferred.ProgramSSAOBlurY, copyMap),
		deferred.ProgramSSAOApply: shader(deferred.ProgramSSAOApply, func(f *softgpu.Fragment) {
			c := f.Fetch(deferred.TexColorRead, f.X, f.Y)
			ao := f.Fetch("B_SSAOMap", f.X, f.Y).X()
			f.Out(0, mgl32.Vec4{c[0] * ao, c[1] * ao, c[2] * ao, c[3]})
		}),
		deferred.ProgramTonemap: shader(deferred.ProgramTonemap, func(f *softgpu.Fragment) {
			c := f.Fetch(deferred.TexColorRead, f.X, f.Y)
			e, g := f.Float("B_Exposure"), f.Float("B_Gamma")
			var out mgl32.Vec4
			for i := range 3 {
				m := 1 - math.Exp(-float64(c[i]*e))
				out[i] = float32(math.Pow(m, 1/float64(g)))
			}
			out[3] = 1
			f.Out(0, out)
		}),
		deferred.ProgramPresent: shader(deferred.ProgramPresent, func(f *softgpu.Fragment) {
			f.Out(0, f.Sample(deferred.TexColor, f.UV))
		}),
	}
}

type fixture struct {
	dev   *softgpu.Device
	stack *gpu.StateStack
	gbuf  *deferred.GBuffer
	ctx   *deferred.FrameContext
}

func newFixture(t *testing.T, w, h int) *fixture {
	t.Helper()
	dev := softgpu.New(w, h)
	dev.RegisterAll(builtinShaders())
	stack := gpu.NewStateStack(dev)
	g, err := deferred.NewGBuffer(stack, w, h)
	if err != nil {
		t.Fatalf("NewGBuffer: %v", err)
	}
	t.Cleanup(g.Release)
	return &fixture{
		dev:   dev,
		stack: stack,
		gbuf:  g,
		ctx: &deferred.FrameContext{
			Stack:   stack,
			GBuffer: g,
			View:    testView(w, h),
			Source:  &frameSource{},
		},
	}
}

// fillSurface writes a uniform lit surface into the G-buffer.
func (fx *fixture) fillSurface(albedo mgl32.Vec4, lit bool) {
	misc := mgl32.Vec4{0, 0.5, 0, 1}
	if lit {
		misc[0] = 1
	}
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttAlbedo), albedo)
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttNormal), mgl32.Vec4{0, 0, 1, 0})
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttMisc), misc)
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttDepth), mgl32.Vec4{0.5, 0, 0, 0})
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttColor), mgl32.Vec4{})
}

func (fx *fixture) color(x, y int) mgl32.Vec4 {
	return fx.dev.Pixel(fx.gbuf.Texture(deferred.AttColor), x, y)
}

func testView(w, h int) deferred.View {
	eye := mgl32.Vec3{0, 0, 5}
	return deferred.View{
		View:       mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), float32(w)/float32(h), 0.1, 100),
		Position:   eye,
		Near:       0.1,
		Far:        100,
	}
}

type transform struct {
	pos, fwd mgl32.Vec3
}

func (t transform) WorldPosition() mgl32.Vec3 { return t.pos }
func (t transform) Forward() mgl32.Vec3       { return t.fwd }

type renderable struct {
	active bool
	casts  bool
	mat    *deferred.Material
	model  mgl32.Mat4
	mesh   gpu.MeshID
}

func (r *renderable) ActiveRecursively() bool            { return r.active }
func (r *renderable) CastsShadows() bool                 { return r.casts }
func (r *renderable) ActiveMaterial() *deferred.Material { return r.mat }
func (r *renderable) ModelMatrix() mgl32.Mat4            { return r.model }
func (r *renderable) Mesh() gpu.MeshID                   { return r.mesh }

type frameSource struct {
	renderables []deferred.Renderable
	lights      []*deferred.Light
}

func (s *frameSource) Renderables() []deferred.Renderable { return s.renderables }
func (s *frameSource) Lights() []*deferred.Light          { return s.lights }

func approxEqual(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func vecApprox(a, b mgl32.Vec4, eps float32) bool {
	for i := range a {
		if !approxEqual(a[i], b[i], eps) {
			return false
		}
	}
	return true
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	core.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { core.SetLogger(nil) })
	return &buf
}
