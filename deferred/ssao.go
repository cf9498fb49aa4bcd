package deferred

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

// SSAO darkens creases and contact regions from the depth buffer.
//
// A frame runs four stages: occlusion into Color0 of the pass framebuffer,
// an optional separable blur (X into Color1, Y back into Color0), and an
// apply stage that multiplies G-buffer Color by the occlusion.
type SSAO struct {
	stack *gpu.StateStack
	cfg   *SSAOConfig
	rng   *rand.Rand

	fb *gpu.Framebuffer

	occlusion *gpu.Program
	blurX     *gpu.Program
	blurY     *gpu.Program
	apply     *gpu.Program

	axesTex gpu.TextureID

	kernel  []float32
	offsets []mgl32.Vec3

	kernelVersion  uint64
	offsetsVersion uint64
	axesVersion    uint64
	sizeVersion    uint64

	// Build counters, incremented every time derived data is regenerated.
	KernelBuilds int
	OffsetBuilds int
	AxesBuilds   int
}

// SSAOOption configures NewSSAO.
type SSAOOption func(*SSAO)

// WithSeed seeds the generator for offsets and axes.
func WithSeed(seed int64) SSAOOption {
	return func(s *SSAO) { s.rng = rand.New(rand.NewSource(seed)) }
}

// WithSSAOConfig starts from cfg instead of NewSSAOConfig().
func WithSSAOConfig(cfg *SSAOConfig) SSAOOption {
	return func(s *SSAO) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// NewSSAO creates the pass framebuffer, the four programs and the axes texture.
func NewSSAO(stack *gpu.StateStack, width, height int, opts ...SSAOOption) (*SSAO, error) {
	s := &SSAO{
		stack: stack,
		cfg:   NewSSAOConfig(),
		rng:   rand.New(rand.NewSource(42)),
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg.normalize()
	s.cfg.SetFBSize(width, height)

	if err := s.init(); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

func (s *SSAO) init() error {
	dev := s.stack.Device()
	w, h := s.cfg.FBSize()

	fb, err := gpu.NewFramebuffer(dev, w, h)
	if err != nil {
		return &PassError{Pass: "ssao", Err: err}
	}
	s.fb = fb
	desc := gpu.TextureDesc{Format: gpu.FormatRGBA8, Filter: gpu.FilterBilinear, Wrap: gpu.WrapRepeat}
	for _, att := range []gpu.Attachment{gpu.Color0, gpu.Color1} {
		if _, err := fb.AddAttachment(att, desc); err != nil {
			return &PassError{Pass: "ssao", Err: err}
		}
	}
	if err := fb.Check(); err != nil {
		return &PassError{Pass: "ssao", Err: err}
	}
	s.sizeVersion = s.cfg.sizeVersion

	for _, p := range []struct {
		dst  **gpu.Program
		name string
	}{
		{&s.occlusion, ProgramSSAO},
		{&s.blurX, ProgramSSAOBlurX},
		{&s.blurY, ProgramSSAOBlurY},
		{&s.apply, ProgramSSAOApply},
	} {
		prog, err := LoadProgram(dev, p.name)
		if err != nil {
			return &PassError{Pass: "ssao", Shader: p.name, Err: err}
		}
		*p.dst = prog
	}

	s.axesTex, err = dev.NewTexture(gpu.TextureDesc{
		Format: gpu.FormatRGBA8,
		Width:  1,
		Height: 1,
		Filter: gpu.FilterNearest,
		Wrap:   gpu.WrapRepeat,
	})
	if err != nil {
		return &PassError{Pass: "ssao", Err: fmt.Errorf("random axes texture: %w", err)}
	}
	return nil
}

// Config returns the live configuration. Changes take effect next frame.
func (s *SSAO) Config() *SSAOConfig { return s.cfg }

// SetFBSize resizes the pass framebuffer.
func (s *SSAO) SetFBSize(w, h int) {
	s.cfg.SetFBSize(w, h)
	s.syncSize()
}

func (s *SSAO) syncSize() {
	if s.sizeVersion == s.cfg.sizeVersion {
		return
	}
	s.fb.Resize(s.cfg.FBSize())
	s.sizeVersion = s.cfg.sizeVersion
}

// Texture is the final occlusion texture (Color0).
func (s *SSAO) Texture() gpu.TextureID { return s.fb.Texture(gpu.Color0) }

// Framebuffer exposes the pass framebuffer.
func (s *SSAO) Framebuffer() *gpu.Framebuffer { return s.fb }

// Kernel returns the normalized blur kernel of 2*BlurRadius+1 weights.
func (s *SSAO) Kernel() []float32 {
	if s.kernelVersion != s.cfg.kernelVersion {
		s.kernel = blurKernel(s.cfg.BlurRadius())
		s.kernelVersion = s.cfg.kernelVersion
		s.KernelBuilds++
	}
	return s.kernel
}

// Offsets returns the hemisphere sample offsets.
func (s *SSAO) Offsets() []mgl32.Vec3 {
	if s.offsetsVersion != s.cfg.offsetsVersion {
		s.offsets = hemisphereOffsets(s.rng, s.cfg.NumSamples(), s.cfg.Separable())
		s.offsetsVersion = s.cfg.offsetsVersion
		s.OffsetBuilds++
	}
	return s.offsets
}

// AxesTexture returns the random-axes texture, regenerating it if the axis
// count changed.
func (s *SSAO) AxesTexture() gpu.TextureID {
	if s.axesVersion != s.cfg.axesVersion {
		side, px := randomAxes(s.rng, s.cfg.NumAxes())
		s.stack.Device().UploadTexture(s.axesTex, side, side, px)
		s.axesVersion = s.cfg.axesVersion
		s.AxesBuilds++
	}
	return s.axesTex
}

// blurKernel returns weights exp(-0.5*i²/3) for i in [-r, r], summing to 1.
func blurKernel(r int) []float32 {
	k := make([]float32, 0, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		w := math.Exp(-0.5 * float64(i*i) / 3)
		k = append(k, float32(w))
		sum += w
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}

// hemisphereOffsets generates n offsets in the +Z hemisphere. Separable
// offsets lie in the XZ plane for the first half of the indices and the YZ
// plane for the rest. Lengths grow as lerp(0.1, 1, t²) with t = i/n so
// samples cluster near the surface.
func hemisphereOffsets(rng *rand.Rand, n int, separable bool) []mgl32.Vec3 {
	uniform := func(lo, hi float32) float32 { return lo + rng.Float32()*(hi-lo) }

	out := make([]mgl32.Vec3, n)
	for i := range out {
		var v mgl32.Vec3
		if separable {
			j := 0
			if i > n/2 {
				j = 1
			}
			v[j] = uniform(-1, 1)
		} else {
			v[0] = uniform(-1, 1)
			v[1] = uniform(-1, 1)
		}
		v[2] = uniform(0.2, 1)
		v = v.Normalize()

		t := float32(i) / float32(n)
		out[i] = v.Mul(lerp(0.1, 1, t*t))
	}
	return out
}

// randomAxes fills a ceil(sqrt(n))² RGBA grid with random RGB in [0,1].
// Only n distinct axes are drawn; the remaining pixels repeat them.
func randomAxes(rng *rand.Rand, n int) (side int, rgba []float32) {
	side = int(math.Ceil(math.Sqrt(float64(n))))
	axes := make([]mgl32.Vec3, n)
	for i := range axes {
		axes[i] = mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()}
	}
	rgba = make([]float32, 0, 4*side*side)
	for i := range side * side {
		a := axes[i%n]
		rgba = append(rgba, a[0], a[1], a[2], 1)
	}
	return side, rgba
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// Render runs the four SSAO stages for the current frame. The pass
// framebuffer is sized to the current viewport first.
func (s *SSAO) Render(ctx *FrameContext) error {
	dev := s.stack.Device()
	vp := dev.Viewport().Viewport
	s.SetFBSize(int(vp.W), int(vp.H))

	kernel := s.Kernel()
	offsets := s.Offsets()
	axes := s.AxesTexture()

	s.renderOcclusion(ctx, kernel, offsets, axes)

	s.apply.SetTexture("B_SSAOMap", s.Texture())
	ctx.GBuffer.ApplyPass(s.apply, true, core.NDCRect)

	return checkDevice(dev, "ssao")
}

func (s *SSAO) renderOcclusion(ctx *FrameContext, kernel []float32, offsets []mgl32.Vec3, axes gpu.TextureID) {
	const aspects = gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectViewport |
		gpu.AspectProgram | gpu.AspectBlend | gpu.AspectDepth
	defer s.stack.Scope(aspects)()

	dev := s.stack.Device()
	w, h := s.fb.Size()
	s.fb.Bind()
	dev.SetViewport(gpu.ViewportState{Viewport: core.RectI{W: int32(w), H: int32(h)}})
	dev.SetBlend(gpu.NoBlend)
	dev.SetDepth(gpu.DepthState{Func: gpu.DepthAlways})

	// Occlusion.
	p := s.occlusion
	aw, ah := dev.TextureSize(axes)
	p.SetFloat("B_SSAOIntensity", s.cfg.Intensity())
	p.SetFloat("B_SSAORadius", s.cfg.Radius())
	p.SetVec2("B_RandomAxesUvMultiply", mgl32.Vec2{float32(w) / float32(max(aw, 1)), float32(h) / float32(max(ah, 1))})
	p.SetTexture("B_RandomAxes", axes)
	p.SetInt("B_NumRandomOffsets", int32(len(offsets)))
	p.SetVec3s("B_RandomHemisphereOffsetsArray", offsets)
	p.SetMat4("B_View", ctx.View.View)
	p.SetMat4("B_Projection", ctx.View.Projection)
	p.SetMat4("B_InvProjection", ctx.View.Projection.Inv())
	ctx.GBuffer.BindAttachmentsForReading(p)
	s.fb.SetDrawBuffers(gpu.Color0)
	p.Use()
	dev.DrawFullscreen()

	if s.cfg.BlurRadius() <= 0 {
		return
	}

	blur := func(p *gpu.Program, src, dst gpu.Attachment) {
		p.SetTexture("B_SSAOMap", s.fb.Texture(src))
		p.SetFloats("B_BlurKernel", kernel)
		p.SetInt("B_BlurRadius", int32(s.cfg.BlurRadius()))
		p.SetBool("B_BilateralEnabled", s.cfg.Bilateral())
		ctx.GBuffer.BindAttachmentsForReading(p)
		s.fb.SetDrawBuffers(dst)
		p.Use()
		dev.DrawFullscreen()
	}
	blur(s.blurX, gpu.Color0, gpu.Color1)
	blur(s.blurY, gpu.Color1, gpu.Color0)
}

// Release frees the framebuffer, programs and axes texture.
func (s *SSAO) Release() {
	if s.fb != nil {
		s.fb.Release()
	}
	for _, p := range []*gpu.Program{s.occlusion, s.blurX, s.blurY, s.apply} {
		if p != nil {
			p.Release()
		}
	}
	if s.axesTex != 0 {
		s.stack.Device().DeleteTexture(s.axesTex)
		s.axesTex = 0
	}
}
