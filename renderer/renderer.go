// Package renderer drives the deferred pipeline for one frame: G-buffer
// clear, geometry, lights, ambient occlusion, overlays, tone mapping and
// present.
package renderer

import (
	"errors"
	"fmt"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
)

// Camera supplies the view a frame is rendered from.
type Camera interface {
	// FrameView returns the camera matrices for a target of the given
	// width/height ratio.
	FrameView(aspect float32) deferred.View
}

// FrameStats counts what the most recent frame drew.
type FrameStats struct {
	Renderables int // geometry-pass draws
	Overlays    int // overlay draws
	Lights      int // enabled lights shaded
}

type config struct {
	ssao       bool
	ssaoCfg    *deferred.SSAOConfig
	tonemap    bool
	strict     bool
	seed       int64
	background core.Color
}

// Option configures NewRenderEngine.
type Option func(*config)

// WithSSAO enables ambient occlusion. A nil cfg uses deferred.NewSSAOConfig().
func WithSSAO(cfg *deferred.SSAOConfig) Option {
	return func(c *config) {
		c.ssao = true
		c.ssaoCfg = cfg
	}
}

// WithTonemap turns the tone-mapping post-process on or off (default on).
func WithTonemap(on bool) Option {
	return func(c *config) { c.tonemap = on }
}

// WithStrict selects whether an unbalanced state pop panics (default) or
// only logs.
func WithStrict(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// WithSeed seeds the SSAO sample generator.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

// WithBackground sets the colour of pixels no geometry covers.
func WithBackground(bg core.Color) Option {
	return func(c *config) { c.background = bg }
}

// RenderEngine owns every GPU resource of the pipeline and renders frames
// from a deferred.FrameSource.
type RenderEngine struct {
	dev   gpu.Device
	stack *gpu.StateStack

	gbuf    *deferred.GBuffer
	lights  *deferred.LightPass
	ssao    *deferred.SSAO
	tonemap *deferred.Tonemap

	geometry *gpu.Program
	present  *gpu.Program
	shadow   map[deferred.ShadowTarget]*gpu.Program

	Background core.Color

	stats FrameStats
}

// NewRenderEngine builds the pipeline on dev for a width×height target.
func NewRenderEngine(dev gpu.Device, width, height int, opts ...Option) (*RenderEngine, error) {
	cfg := config{tonemap: true, strict: true, seed: 42, background: core.ColorBlack}
	for _, o := range opts {
		o(&cfg)
	}

	re := &RenderEngine{
		dev:        dev,
		stack:      gpu.NewStateStack(dev, gpu.WithStrict(cfg.strict)),
		shadow:     make(map[deferred.ShadowTarget]*gpu.Program),
		Background: cfg.background,
	}
	if err := re.init(cfg, width, height); err != nil {
		re.Release()
		return nil, fmt.Errorf("failed to create render engine: %w", err)
	}

	core.Logger().Info("render engine initialized",
		"width", width, "height", height, "ssao", cfg.ssao, "tonemap", cfg.tonemap)
	return re, nil
}

func (re *RenderEngine) init(cfg config, width, height int) error {
	var err error
	if re.gbuf, err = deferred.NewGBuffer(re.stack, width, height); err != nil {
		return err
	}
	if re.lights, err = deferred.NewLightPass(re.stack); err != nil {
		return err
	}

	for _, p := range []struct {
		dst  **gpu.Program
		name string
	}{
		{&re.geometry, deferred.ProgramGeometry},
		{&re.present, deferred.ProgramPresent},
	} {
		if *p.dst, err = deferred.LoadProgram(re.dev, p.name); err != nil {
			return &deferred.PassError{Pass: "init", Shader: p.name, Err: err}
		}
	}
	for _, k := range []deferred.LightKind{deferred.LightDirectional, deferred.LightPoint} {
		name := deferred.ShadowProgramName(k)
		p, err := deferred.LoadProgram(re.dev, name)
		if err != nil {
			return &deferred.PassError{Pass: "shadow", Shader: name, Err: err}
		}
		re.shadow[k.ShadowTarget()] = p
	}

	if cfg.ssao {
		opts := []deferred.SSAOOption{deferred.WithSeed(cfg.seed)}
		if cfg.ssaoCfg != nil {
			opts = append(opts, deferred.WithSSAOConfig(cfg.ssaoCfg))
		}
		if re.ssao, err = deferred.NewSSAO(re.stack, width, height, opts...); err != nil {
			return err
		}
	}
	if cfg.tonemap {
		if re.tonemap, err = deferred.NewTonemap(re.dev); err != nil {
			return err
		}
	}
	return nil
}

func (re *RenderEngine) Device() gpu.Device             { return re.dev }
func (re *RenderEngine) Stack() *gpu.StateStack         { return re.stack }
func (re *RenderEngine) GBuffer() *deferred.GBuffer     { return re.gbuf }
func (re *RenderEngine) LightPass() *deferred.LightPass { return re.lights }
func (re *RenderEngine) GeometryProgram() *gpu.Program  { return re.geometry }
func (re *RenderEngine) DrawStats() FrameStats          { return re.stats }
func (re *RenderEngine) Tonemap() *deferred.Tonemap     { return re.tonemap }

// SSAO returns the ambient occlusion pass, or nil when it is disabled.
func (re *RenderEngine) SSAO() *deferred.SSAO { return re.ssao }

// DefaultMaterial returns a lit white material drawn with the built-in
// geometry program.
func (re *RenderEngine) DefaultMaterial() *deferred.Material {
	return deferred.DefaultMaterial(re.geometry)
}

// ShadowProgram returns the built-in program shadow casters of a light of
// kind k are drawn with. Assign it to Light.ShadowProgram to enable shadows.
func (re *RenderEngine) ShadowProgram(k deferred.LightKind) *gpu.Program {
	return re.shadow[k.ShadowTarget()]
}

// RenderFrame renders src from cam into the default framebuffer.
//
// Stages run in a fixed order and the device is checked after each one. A
// fatal error abandons the frame: the error is returned and nothing is
// presented.
func (re *RenderEngine) RenderFrame(src deferred.FrameSource, cam Camera) error {
	if src == nil || cam == nil {
		return errors.New("no scene or camera")
	}
	if err := re.check("frame"); err != nil {
		return err
	}

	w, h := re.gbuf.Size()
	ctx := &deferred.FrameContext{
		Stack:   re.stack,
		GBuffer: re.gbuf,
		View:    cam.FrameView(float32(w) / float32(max(h, 1))),
		Source:  src,
	}
	re.stats = FrameStats{}

	defer re.stack.Scope(gpu.AspectViewport)()
	re.dev.SetViewport(gpu.ViewportState{Viewport: re.gbuf.PixelRect()})

	re.gbuf.ClearBuffersAndBackground(re.Background)
	if err := re.check("clear"); err != nil {
		return err
	}

	re.stats.Renderables = re.renderGeometry(ctx)
	if err := re.check("geometry"); err != nil {
		return err
	}

	lights := src.Lights()
	re.lights.PruneWarnings(lights)
	for _, l := range lights {
		if l == nil || !l.Enabled {
			continue
		}
		if err := re.lights.Render(ctx, l, core.NDCRect); err != nil {
			return err
		}
		re.stats.Lights++
	}

	if re.ssao != nil {
		if err := re.ssao.Render(ctx); err != nil {
			return err
		}
	}

	re.stats.Overlays = re.renderOverlays(ctx)
	if err := re.check("overlay"); err != nil {
		return err
	}

	if re.tonemap != nil {
		if err := re.tonemap.Render(ctx); err != nil {
			return err
		}
	}

	re.presentColor()
	return re.check("present")
}

// renderGeometry fills the G-buffer with every scene-pass renderable.
func (re *RenderEngine) renderGeometry(ctx *deferred.FrameContext) int {
	defer re.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectBlend | gpu.AspectDepth)()

	re.gbuf.Bind()
	re.gbuf.SetAllDrawBuffers()
	re.dev.SetBlend(gpu.NoBlend)
	re.dev.SetDepth(gpu.DepthState{Test: true, Mask: true, Func: gpu.DepthLess})
	return deferred.DrawRenderables(ctx, ctx.Source.Renderables(), deferred.IsSceneRenderable)
}

// renderOverlays draws overlay materials over the lit image, depth tested
// against the scene but without writing depth.
func (re *RenderEngine) renderOverlays(ctx *deferred.FrameContext) int {
	defer re.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectBlend | gpu.AspectDepth)()

	re.gbuf.Bind()
	re.gbuf.SetColorDrawBuffer()
	re.dev.SetBlend(gpu.BlendState{Enabled: true, Src: gpu.BlendSrcAlpha, Dst: gpu.BlendOneMinusSrcAlpha})
	re.dev.SetDepth(gpu.DepthState{Test: true, Mask: false, Func: gpu.DepthLessEqual})
	return deferred.DrawRenderables(ctx, ctx.Source.Renderables(), isOverlay)
}

func isOverlay(r deferred.Renderable) bool {
	if !r.ActiveRecursively() {
		return false
	}
	mat := r.ActiveMaterial()
	return mat != nil && mat.RenderPass == deferred.RenderPassOverlay
}

// presentColor copies G-buffer Color to the default framebuffer.
func (re *RenderEngine) presentColor() {
	defer re.stack.Scope(gpu.AspectFramebuffer | gpu.AspectProgram | gpu.AspectBlend | gpu.AspectDepth)()

	re.dev.BindFramebuffer(gpu.DefaultFramebuffer)
	re.dev.SetBlend(gpu.NoBlend)
	re.dev.SetDepth(gpu.DepthState{Func: gpu.DepthAlways})
	re.present.SetTexture(deferred.TexColor, re.gbuf.Texture(deferred.AttColor))
	re.present.Use()
	re.dev.DrawFullscreen()
}

func (re *RenderEngine) check(stage string) error {
	if err := re.dev.Err(); err != nil {
		return &deferred.PassError{Pass: stage, Err: err}
	}
	return nil
}

// Resize resizes the G-buffer and the SSAO target. Zero sizes, as reported
// for minimised windows, are ignored.
func (re *RenderEngine) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if w, h := re.gbuf.Size(); w == width && h == height {
		return
	}
	re.gbuf.Resize(width, height)
	if re.ssao != nil {
		re.ssao.SetFBSize(width, height)
	}
	core.Logger().Info("render engine resized", "width", width, "height", height)
}

// Release frees every GPU resource the engine owns. It is safe to call on a
// partially constructed engine.
func (re *RenderEngine) Release() {
	if re.tonemap != nil {
		re.tonemap.Release()
		re.tonemap = nil
	}
	if re.ssao != nil {
		re.ssao.Release()
		re.ssao = nil
	}
	if re.lights != nil {
		re.lights.Release()
		re.lights = nil
	}
	for _, p := range []*gpu.Program{re.geometry, re.present} {
		if p != nil {
			p.Release()
		}
	}
	re.geometry, re.present = nil, nil
	for t, p := range re.shadow {
		p.Release()
		delete(re.shadow, t)
	}
	if re.gbuf != nil {
		re.gbuf.Release()
		re.gbuf = nil
	}
}
