package deferred

import (
	"fmt"

	"render-engine/core"
	"render-engine/gpu"
)

// G-buffer attachment slots.
const (
	AttColor     = gpu.Color0
	AttAlbedo    = gpu.Color1
	AttNormal    = gpu.Color2
	AttMisc      = gpu.Color3
	AttColorRead = gpu.Color4
	AttDepth     = gpu.DepthStencil
)

// Sampler names the G-buffer attachments are bound under.
const (
	TexColor        = "B_GTex_Color"
	TexAlbedo       = "B_GTex_Albedo"
	TexNormal       = "B_GTex_Normal"
	TexMisc         = "B_GTex_Misc"
	TexDepthStencil = "B_GTex_DepthStencil"
	TexColorRead    = "B_GTex_ColorRead"
)

// GBuffer is the deferred geometry buffer.
//
// Color accumulates lit colour and is the only attachment screen passes
// write. ColorRead is a snapshot of Color that passes sample from, since a
// texture cannot be read while it is being written. Misc packs
// receives-lighting, roughness and metalness into x, y and z.
type GBuffer struct {
	stack *gpu.StateStack
	fb    *gpu.Framebuffer
}

var gbufferLayout = []struct {
	att    gpu.Attachment
	format gpu.TextureFormat
}{
	{AttColor, gpu.FormatRGBA16F},
	{AttAlbedo, gpu.FormatRGBA8},
	{AttNormal, gpu.FormatRGBA16F},
	{AttMisc, gpu.FormatRGBA8},
	{AttColorRead, gpu.FormatRGBA16F},
	{AttDepth, gpu.FormatDepth24Stencil8},
}

// NewGBuffer allocates all attachments at width×height. An incomplete
// framebuffer is fatal and wraps gpu.ErrFramebufferIncomplete.
func NewGBuffer(stack *gpu.StateStack, width, height int) (*GBuffer, error) {
	fb, err := gpu.NewFramebuffer(stack.Device(), width, height)
	if err != nil {
		return nil, fmt.Errorf("gbuffer: %w", err)
	}
	for _, l := range gbufferLayout {
		desc := gpu.TextureDesc{Format: l.format, Filter: gpu.FilterNearest, Wrap: gpu.WrapClampToEdge}
		if _, err := fb.AddAttachment(l.att, desc); err != nil {
			fb.Release()
			return nil, fmt.Errorf("gbuffer: %w", err)
		}
	}
	if err := fb.Check(); err != nil {
		fb.Release()
		return nil, fmt.Errorf("gbuffer: %w", err)
	}
	core.Logger().Info("gbuffer created", "width", width, "height", height)
	return &GBuffer{stack: stack, fb: fb}, nil
}

func (g *GBuffer) Framebuffer() *gpu.Framebuffer { return g.fb }
func (g *GBuffer) Size() (int, int)              { return g.fb.Size() }

// Texture returns the texture attached at att.
func (g *GBuffer) Texture(att gpu.Attachment) gpu.TextureID { return g.fb.Texture(att) }

// Resize reallocates every attachment. Contents are undefined afterwards.
func (g *GBuffer) Resize(width, height int) {
	g.fb.Resize(width, height)
}

func (g *GBuffer) Release() { g.fb.Release() }

// PixelRect is the G-buffer's full viewport in pixels.
func (g *GBuffer) PixelRect() core.RectI {
	w, h := g.fb.Size()
	return core.RectI{W: int32(w), H: int32(h)}
}

// Bind binds the G-buffer framebuffer. Callers scope the binding themselves.
func (g *GBuffer) Bind() { g.fb.Bind() }

// SetAllDrawBuffers targets Color, Albedo, Normal and Misc, in that order.
func (g *GBuffer) SetAllDrawBuffers() {
	g.fb.SetDrawBuffers(AttColor, AttAlbedo, AttNormal, AttMisc)
}

// SetAllDrawBuffersExceptColor targets Albedo, Normal and Misc.
func (g *GBuffer) SetAllDrawBuffersExceptColor() {
	g.fb.SetDrawBuffers(AttAlbedo, AttNormal, AttMisc)
}

func (g *GBuffer) SetColorDrawBuffer() {
	g.fb.SetDrawBuffers(AttColor)
}

// BindAttachmentsForReading binds Albedo, Normal, Misc and DepthStencil to p.
// Samplers p does not declare are skipped silently.
func (g *GBuffer) BindAttachmentsForReading(p *gpu.Program) {
	p.SetTextureIfPresent(TexAlbedo, g.fb.Texture(AttAlbedo))
	p.SetTextureIfPresent(TexNormal, g.fb.Texture(AttNormal))
	p.SetTextureIfPresent(TexMisc, g.fb.Texture(AttMisc))
	p.SetTextureIfPresent(TexDepthStencil, g.fb.Texture(AttDepth))
}

// PrepareColorReadBuffer copies Color into ColorRead over mask only.
func (g *GBuffer) PrepareColorReadBuffer(mask core.Rect) {
	clip := mask.ToPixels(g.PixelRect())
	if clip.Empty() {
		return
	}
	defer g.stack.Scope(gpu.AspectFramebuffer)()
	g.Bind()
	g.stack.Device().CopyAttachment(AttColor, AttColorRead, clip)
}

// ApplyPass draws a full-screen triangle with p into Color, clipped to mask.
// With readFromColor, Color is first copied into ColorRead over the mask and
// bound as B_GTex_ColorRead. It reports whether anything was drawn; an empty
// mask draws nothing.
func (g *GBuffer) ApplyPass(p *gpu.Program, readFromColor bool, mask core.Rect) bool {
	return g.applyPass(p, readFromColor, gpu.NoBlend, mask)
}

// ApplyPassBlend is ApplyPass with blending src·fragment + dst·Color.
// ColorRead is always refreshed and bound.
func (g *GBuffer) ApplyPassBlend(p *gpu.Program, src, dst gpu.BlendFactor, mask core.Rect) bool {
	return g.applyPass(p, true, gpu.BlendState{Enabled: true, Src: src, Dst: dst}, mask)
}

func (g *GBuffer) applyPass(p *gpu.Program, readFromColor bool, blend gpu.BlendState, mask core.Rect) bool {
	vp := g.PixelRect()
	clip := mask.ToPixels(vp)
	if clip.Empty() {
		return false
	}

	const aspects = gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectViewport |
		gpu.AspectProgram | gpu.AspectBlend | gpu.AspectDepth
	defer g.stack.Scope(aspects)()

	dev := g.stack.Device()
	g.Bind()
	dev.SetViewport(gpu.ViewportState{Viewport: vp, Scissor: true, Clip: clip})
	dev.SetDepth(gpu.DepthState{Test: false, Mask: false, Func: gpu.DepthAlways})
	dev.SetBlend(blend)

	if readFromColor {
		dev.CopyAttachment(AttColor, AttColorRead, clip)
		p.SetTexture(TexColorRead, g.fb.Texture(AttColorRead))
	}
	g.BindAttachmentsForReading(p)
	g.SetColorDrawBuffer()
	p.Use()
	dev.DrawFullscreen()
	return true
}

// ClearAllBuffersExceptColor clears Albedo, Normal, Misc to zero and depth to 1.
func (g *GBuffer) ClearAllBuffersExceptColor() {
	defer g.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectViewport | gpu.AspectDepth)()
	dev := g.stack.Device()
	g.Bind()
	dev.SetViewport(gpu.ViewportState{Viewport: g.PixelRect()})
	dev.SetDepth(gpu.DepthState{Test: true, Mask: true, Func: gpu.DepthLess})
	g.SetAllDrawBuffersExceptColor()
	dev.Clear(gpu.ClearColor|gpu.ClearDepth|gpu.ClearStencil, core.ColorClear, 1)
}

// ClearBuffersAndBackground clears every attachment and fills Color with bg.
func (g *GBuffer) ClearBuffersAndBackground(bg core.Color) {
	g.ClearAllBuffersExceptColor()

	defer g.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectViewport)()
	dev := g.stack.Device()
	g.Bind()
	dev.SetViewport(gpu.ViewportState{Viewport: g.PixelRect()})
	g.SetColorDrawBuffer()
	dev.Clear(gpu.ClearColor, bg, 1)
}
