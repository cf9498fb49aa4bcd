package renderer_test

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/softgpu"
	"render-engine/renderer"
)

var builtinPrograms = []string{
	deferred.ProgramGeometry,
	deferred.ProgramLightDirectional,
	deferred.ProgramLightPoint,
	deferred.ProgramLightSpot,
	deferred.ProgramShadowDepth,
	deferred.ProgramShadowDistance,
	deferred.ProgramSSAO,
	deferred.ProgramSSAOBlurX,
	deferred.ProgramSSAOBlurY,
	deferred.ProgramSSAOApply,
	deferred.ProgramTonemap,
	deferred.ProgramPresent,
}

func stub(name string, frag softgpu.FragmentFunc) softgpu.Shader {
	src, _ := deferred.Source(name)
	return softgpu.Shader{Uniforms: softgpu.ParseUniforms(src.Vertex, src.Fragment), Fragment: frag}
}

// newDevice registers every built-in program. Present copies Color so the
// back buffer can be inspected; the other programs only record their draws.
func newDevice(w, h int) *softgpu.Device {
	dev := softgpu.New(w, h)
	for _, name := range builtinPrograms {
		dev.Register(name, stub(name, nil))
	}
	dev.Register(deferred.ProgramPresent, stub(deferred.ProgramPresent, func(f *softgpu.Fragment) {
		f.Out(0, f.Fetch(deferred.TexColor, f.X, f.Y))
	}))
	return dev
}

func newEngine(t *testing.T, dev *softgpu.Device, opts ...renderer.Option) *renderer.RenderEngine {
	t.Helper()
	w, h := dev.TextureSize(dev.BackBuffer())
	re, err := renderer.NewRenderEngine(dev, w, h, opts...)
	if err != nil {
		t.Fatalf("NewRenderEngine: %v", err)
	}
	t.Cleanup(re.Release)
	return re
}

type camera struct{}

func (camera) FrameView(aspect float32) deferred.View {
	eye := mgl32.Vec3{0, 0, 5}
	return deferred.View{
		View:       mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(mgl32.DegToRad(60), aspect, 0.1, 100),
		Position:   eye,
		Near:       0.1,
		Far:        100,
	}
}

type transform struct{ pos, fwd mgl32.Vec3 }

func (t transform) WorldPosition() mgl32.Vec3 { return t.pos }
func (t transform) Forward() mgl32.Vec3       { return t.fwd }

type renderable struct {
	mat  *deferred.Material
	mesh gpu.MeshID
}

func (r *renderable) ActiveRecursively() bool            { return true }
func (r *renderable) CastsShadows() bool                 { return true }
func (r *renderable) ActiveMaterial() *deferred.Material { return r.mat }
func (r *renderable) ModelMatrix() mgl32.Mat4            { return mgl32.Ident4() }
func (r *renderable) Mesh() gpu.MeshID                   { return r.mesh }

type frame struct {
	renderables []deferred.Renderable
	lights      []*deferred.Light
}

func (f *frame) Renderables() []deferred.Renderable { return f.renderables }
func (f *frame) Lights() []*deferred.Light          { return f.lights }

func programsDrawn(dev *softgpu.Device) []string {
	var out []string
	for _, d := range dev.Draws {
		if len(out) == 0 || out[len(out)-1] != d.Program {
			out = append(out, d.Program)
		}
	}
	return out
}

func TestRenderFrameStageOrder(t *testing.T) {
	dev := newDevice(8, 8)
	cfg := deferred.NewSSAOConfig()
	cfg.SetBlurRadius(0)
	re := newEngine(t, dev, renderer.WithSSAO(cfg))

	sun := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}})
	sun.CastShadows = true
	sun.ShadowProgram = re.ShadowProgram(sun.Kind)
	scene := &frame{
		renderables: []deferred.Renderable{&renderable{mat: re.DefaultMaterial(), mesh: 1}},
		lights:      []*deferred.Light{sun},
	}
	if err := re.RenderFrame(scene, camera{}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		deferred.ProgramGeometry,
		deferred.ProgramShadowDepth,
		deferred.ProgramLightDirectional,
		deferred.ProgramSSAO,
		deferred.ProgramSSAOApply,
		deferred.ProgramTonemap,
		deferred.ProgramPresent,
	}
	if got := programsDrawn(dev); !slices.Equal(got, want) {
		t.Errorf("stages = %v\nwant     %v", got, want)
	}
	last := dev.Draws[len(dev.Draws)-1]
	if last.Framebuffer != gpu.DefaultFramebuffer {
		t.Errorf("present drew into framebuffer %d", last.Framebuffer)
	}
	if !re.Stack().Balanced() {
		t.Error("frame left state on the stack")
	}
	if dev.Framebuffer() != gpu.DefaultFramebuffer || dev.Program() != 0 {
		t.Error("frame leaked framebuffer or program binding")
	}
}

func TestRenderFramePresentsBackground(t *testing.T) {
	dev := newDevice(4, 4)
	bg := core.NewColor(0.2, 0.4, 0.6)
	re := newEngine(t, dev, renderer.WithTonemap(false), renderer.WithBackground(bg))

	if err := re.RenderFrame(&frame{}, camera{}); err != nil {
		t.Fatal(err)
	}
	if got := dev.Pixel(dev.BackBuffer(), 2, 1); got != bg.Vec4() {
		t.Errorf("back buffer = %v, want background %v", got, bg.Vec4())
	}
}

func TestRenderFrameAbandonsOnFatalError(t *testing.T) {
	dev := newDevice(4, 4)
	re := newEngine(t, dev)

	// A light program that loses the device while shading.
	dev.Register("test/lose", stub(deferred.ProgramLightDirectional, func(f *softgpu.Fragment) {
		dev.LoseContext()
	}))
	p, err := gpu.NewProgram(dev, gpu.ProgramSource{Name: "test/lose"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()
	l := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}})
	l.ScreenProgram = p

	err = re.RenderFrame(&frame{lights: []*deferred.Light{l}}, camera{})
	if !errors.Is(err, gpu.ErrContextLost) {
		t.Fatalf("err = %v, want ErrContextLost", err)
	}
	var pe *deferred.PassError
	if !errors.As(err, &pe) || pe.Pass != "light" {
		t.Errorf("err = %v, want a light PassError", err)
	}
	if n := len(dev.DrawsWith(deferred.ProgramPresent)); n != 0 {
		t.Errorf("abandoned frame presented %d times", n)
	}
	if !re.Stack().Balanced() {
		t.Error("abandoned frame left state on the stack")
	}

	dev.ResetLog()
	if err := re.RenderFrame(&frame{}, camera{}); !errors.Is(err, gpu.ErrContextLost) {
		t.Errorf("next frame err = %v, want ErrContextLost", err)
	}
	if len(dev.Draws) != 0 {
		t.Errorf("frame on a lost device drew %d times", len(dev.Draws))
	}
}

func TestRenderFrameStats(t *testing.T) {
	dev := newDevice(4, 4)
	re := newEngine(t, dev)

	overlay := re.DefaultMaterial()
	overlay.RenderPass = deferred.RenderPassOverlay
	off := deferred.NewPointLight(transform{}, 3)
	off.Enabled = false
	scene := &frame{
		renderables: []deferred.Renderable{
			&renderable{mat: re.DefaultMaterial(), mesh: 1},
			&renderable{mat: re.DefaultMaterial(), mesh: 2},
			&renderable{mat: overlay, mesh: 3},
		},
		lights: []*deferred.Light{
			deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}}),
			off,
			nil,
		},
	}
	if err := re.RenderFrame(scene, camera{}); err != nil {
		t.Fatal(err)
	}
	want := renderer.FrameStats{Renderables: 2, Overlays: 1, Lights: 1}
	if got := re.DrawStats(); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
	for _, d := range dev.DrawsWith(deferred.ProgramGeometry) {
		if d.Mesh == 3 && !d.Blend.Enabled {
			t.Error("overlay drawn without blending")
		}
	}
}

func TestRenderFrameNoScene(t *testing.T) {
	re := newEngine(t, newDevice(2, 2))
	if err := re.RenderFrame(nil, camera{}); err == nil {
		t.Error("RenderFrame(nil) succeeded")
	}
}

func TestResize(t *testing.T) {
	dev := newDevice(8, 8)
	re := newEngine(t, dev, renderer.WithSSAO(nil))

	re.Resize(16, 12)
	if w, h := re.GBuffer().Size(); w != 16 || h != 12 {
		t.Errorf("gbuffer %dx%d, want 16x12", w, h)
	}
	if w, h := re.SSAO().Framebuffer().Size(); w != 16 || h != 12 {
		t.Errorf("ssao %dx%d, want 16x12", w, h)
	}

	re.Resize(0, 0)
	if w, h := re.GBuffer().Size(); w != 16 || h != 12 {
		t.Errorf("zero resize changed gbuffer to %dx%d", w, h)
	}
}

func TestReleaseFreesEverything(t *testing.T) {
	dev := newDevice(4, 4)
	re, err := renderer.NewRenderEngine(dev, 4, 4, renderer.WithSSAO(nil))
	if err != nil {
		t.Fatal(err)
	}
	re.Release()
	if tex, fbs, progs := dev.Live(); tex != 0 || fbs != 0 || progs != 0 {
		t.Errorf("live after Release: %d textures, %d framebuffers, %d programs", tex, fbs, progs)
	}
}

func TestNewRenderEngineCleansUpOnFailure(t *testing.T) {
	dev := softgpu.New(4, 4)
	for _, name := range builtinPrograms {
		if name != deferred.ProgramTonemap {
			dev.Register(name, stub(name, nil))
		}
	}
	_, err := renderer.NewRenderEngine(dev, 4, 4, renderer.WithSSAO(nil))
	if !errors.Is(err, gpu.ErrLinkFailed) {
		t.Fatalf("err = %v, want ErrLinkFailed", err)
	}
	if tex, fbs, progs := dev.Live(); tex != 0 || fbs != 0 || progs != 0 {
		t.Errorf("live after failed init: %d textures, %d framebuffers, %d programs", tex, fbs, progs)
	}
}

func TestRenderFrameForgetsRemovedLights(t *testing.T) {
	var logs bytes.Buffer
	core.SetLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { core.SetLogger(nil) })

	re := newEngine(t, newDevice(4, 4))
	l := deferred.NewDirectionalLight(nil)
	l.CastShadows = true
	lit, dark := &frame{lights: []*deferred.Light{l}}, &frame{}

	for _, f := range []*frame{lit, lit, dark, lit} {
		if err := re.RenderFrame(f, camera{}); err != nil {
			t.Fatal(err)
		}
	}
	if n := strings.Count(logs.String(), "no shadow program"); n != 2 {
		t.Errorf("got %d shadow warnings, want 2 (one per time the light was added):\n%s", n, logs.String())
	}
}
