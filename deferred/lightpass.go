package deferred

import (
	"render-engine/core"
	"render-engine/gpu"
)

// LightPassState is where a LightPass is within one light.
type LightPassState uint8

const (
	StateIdle LightPassState = iota
	StateShadowRender
	StateLightApply
)

func (s LightPassState) String() string {
	switch s {
	case StateShadowRender:
		return "shadow"
	case StateLightApply:
		return "apply"
	}
	return "idle"
}

// LightPass renders a light's shadow map and adds its contribution to the
// G-buffer Color attachment. It owns one scratch 2D and one scratch cube
// shadow target, shared by every light and grown on demand.
type LightPass struct {
	stack    *gpu.StateStack
	programs map[LightKind]*gpu.Program

	shadow2D   *gpu.Framebuffer
	shadowCube *gpu.Framebuffer

	state    LightPassState
	observer func(LightPassState)
	warned   map[*Light]bool
}

// NewLightPass loads the built-in screen programs for every light kind.
func NewLightPass(stack *gpu.StateStack) (*LightPass, error) {
	lp := &LightPass{
		stack:    stack,
		programs: make(map[LightKind]*gpu.Program),
		warned:   make(map[*Light]bool),
	}
	for _, k := range []LightKind{LightDirectional, LightPoint, LightSpot} {
		name := lightProgramName(k)
		p, err := LoadProgram(stack.Device(), name)
		if err != nil {
			lp.Release()
			return nil, &PassError{Pass: "light", Shader: name, Err: err}
		}
		lp.programs[k] = p
	}
	return lp, nil
}

func (lp *LightPass) State() LightPassState { return lp.state }

// OnStateChange registers fn to be called on every state transition.
func (lp *LightPass) OnStateChange(fn func(LightPassState)) { lp.observer = fn }

func (lp *LightPass) setState(s LightPassState) {
	lp.state = s
	if lp.observer != nil {
		lp.observer(s)
	}
}

// ScreenProgram returns the program l is shaded with.
func (lp *LightPass) ScreenProgram(l *Light) *gpu.Program {
	if l.ScreenProgram != nil {
		return l.ScreenProgram
	}
	return lp.programs[l.Kind]
}

// Render shades one light: its shadow map if it casts shadows, then its
// additive contribution inside renderRect. Disabled lights are skipped.
func (lp *LightPass) Render(ctx *FrameContext, l *Light, renderRect core.Rect) error {
	if !l.Enabled {
		return nil
	}
	defer lp.setState(StateIdle)

	var (
		shadowTex gpu.TextureID
		shadowed  bool
	)
	if l.CastShadows {
		if l.ShadowProgram == nil {
			lp.warnNoShadowProgram(l)
		} else {
			lp.setState(StateShadowRender)
			tex, err := lp.renderShadow(ctx, l)
			if err != nil {
				return err
			}
			shadowTex, shadowed = tex, true
		}
	}

	lp.setState(StateLightApply)
	lp.applyLight(ctx, l, renderRect, shadowTex, shadowed)
	return checkDevice(lp.stack.Device(), "light")
}

func (lp *LightPass) warnNoShadowProgram(l *Light) {
	if lp.warned[l] {
		return
	}
	lp.warned[l] = true
	core.Logger().Warn("light casts shadows but has no shadow program; shadows disabled",
		"kind", l.Kind.String())
}

// PruneWarnings forgets the once-per-light warnings of every light not in
// live.
func (lp *LightPass) PruneWarnings(live []*Light) {
	if len(lp.warned) == 0 {
		return
	}
	keep := make(map[*Light]bool, len(live))
	for _, l := range live {
		keep[l] = true
	}
	for l := range lp.warned {
		if !keep[l] {
			delete(lp.warned, l)
		}
	}
}

func (lp *LightPass) renderShadow(ctx *FrameContext, l *Light) (gpu.TextureID, error) {
	target := l.Kind.ShadowTarget()
	fb, err := lp.shadowTarget(target, max(l.ShadowMapSize, 1))
	if err != nil {
		return 0, &PassError{Pass: "shadow", Shader: l.ShadowProgram.Name(), Err: err}
	}

	const aspects = gpu.AspectFramebuffer | gpu.AspectDrawBuffers | gpu.AspectViewport |
		gpu.AspectBlend | gpu.AspectDepth
	defer lp.stack.Scope(aspects)()

	dev := lp.stack.Device()
	w, h := fb.Size()
	dev.SetViewport(gpu.ViewportState{Viewport: core.RectI{W: int32(w), H: int32(h)}})
	dev.SetBlend(gpu.NoBlend)
	dev.SetDepth(gpu.DepthState{Test: true, Mask: true, Func: gpu.DepthLess})

	var casters []Renderable
	if ctx.Source != nil {
		casters = ctx.Source.Renderables()
	}
	shadowCtx := *ctx
	shadowCtx.Replacement = l.ShadowProgram

	switch target {
	case ShadowTargetCube:
		_, far := l.ShadowPlanes()
		l.ShadowProgram.SetVec3("B_LightPositionWorld", l.Position())
		l.ShadowProgram.SetFloat("B_LightZFar", far)
		for face, view := range l.ShadowViews() {
			fb.AttachFace(gpu.Color0, face)
			fb.SetDrawBuffers(gpu.Color0)
			dev.Clear(gpu.ClearColor|gpu.ClearDepth, core.ColorWhite, 1)
			shadowCtx.View = view
			DrawRenderables(&shadowCtx, casters, IsShadowCaster)
		}
		return fb.Texture(gpu.Color0), nil
	default:
		fb.SetDrawBuffers()
		dev.Clear(gpu.ClearDepth, core.ColorClear, 1)
		shadowCtx.View = l.ShadowViews()[0]
		DrawRenderables(&shadowCtx, casters, IsShadowCaster)
		return fb.Texture(gpu.DepthStencil), nil
	}
}

// shadowTarget returns the scratch framebuffer for target, allocating it on
// first use and resizing it to size.
func (lp *LightPass) shadowTarget(target ShadowTarget, size int) (*gpu.Framebuffer, error) {
	slot := &lp.shadow2D
	if target == ShadowTargetCube {
		slot = &lp.shadowCube
	}
	if *slot != nil {
		(*slot).Resize(size, size)
		return *slot, nil
	}

	fb, err := gpu.NewFramebuffer(lp.stack.Device(), size, size)
	if err != nil {
		return nil, err
	}
	depth := gpu.TextureDesc{
		Format:       gpu.FormatDepth32F,
		Filter:       gpu.FilterBilinear,
		Wrap:         gpu.WrapClampToBorder,
		DepthCompare: target == ShadowTarget2D,
	}
	if _, err := fb.AddAttachment(gpu.DepthStencil, depth); err != nil {
		fb.Release()
		return nil, err
	}
	if target == ShadowTargetCube {
		cube := gpu.TextureDesc{Target: gpu.TextureCube, Format: gpu.FormatRGBA16F, Filter: gpu.FilterBilinear}
		if _, err := fb.AddAttachment(gpu.Color0, cube); err != nil {
			fb.Release()
			return nil, err
		}
	}

	restore := lp.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers)
	if target == ShadowTargetCube {
		fb.SetDrawBuffers(gpu.Color0)
	} else {
		fb.SetDrawBuffers()
	}
	err = fb.Check()
	restore()
	if err != nil {
		fb.Release()
		return nil, err
	}
	*slot = fb
	return fb, nil
}

func (lp *LightPass) applyLight(ctx *FrameContext, l *Light, renderRect core.Rect, shadowTex gpu.TextureID, shadowed bool) {
	rect := core.Intersection(l.ScreenRect(ctx.View), renderRect)
	if rect.IsEmpty() {
		core.Logger().Debug("light culled: empty screen rect", "kind", l.Kind.String())
		return
	}

	p := lp.ScreenProgram(l)
	near, far := l.ShadowPlanes()

	p.SetBool("B_LightCastsShadows", shadowed)
	p.SetFloat("B_LightIntensity", l.effectiveIntensity())
	p.SetVec3("B_LightColor", l.Color.Vec3())
	p.SetVec3("B_LightForwardWorld", l.Forward())
	p.SetVec3("B_LightPositionWorld", l.Position())
	p.SetFloat("B_LightShadowBias", l.ShadowBias)
	p.SetFloat("B_LightShadowExponentConstant", l.ShadowExponentConstant)
	p.SetFloat("B_LightZNear", near)
	p.SetFloat("B_LightZFar", far)

	switch l.Kind.ShadowTarget() {
	case ShadowTargetCube:
		p.SetTexture("B_LightShadowMapCube", shadowTex)
	default:
		p.SetTexture("B_LightShadowMap", shadowTex)
		if p.Has("B_LightShadowSoftness") {
			p.SetFloat("B_LightShadowSoftness", float32(min(l.ShadowSoftness, MaxShadowSoftness)))
		}
		if p.Has("B_LightViewProj") {
			p.SetMat4("B_LightViewProj", l.ShadowViews()[0].ViewProjection())
		}
	}

	// Kind-specific and camera uniforms are optional: compilers strip the
	// ones a program does not use.
	if p.Has("B_LightRange") {
		p.SetFloat("B_LightRange", l.Range)
	}
	if p.Has("B_LightSpotAngle") {
		p.SetFloat("B_LightSpotAngle", l.SpotAngle)
	}
	if p.Has("B_InvViewProjection") {
		p.SetMat4("B_InvViewProjection", ctx.View.ViewProjection().Inv())
	}
	if p.Has("B_CameraPositionWorld") {
		p.SetVec3("B_CameraPositionWorld", ctx.View.Position)
	}

	ctx.GBuffer.ApplyPassBlend(p, gpu.BlendOne, gpu.BlendOne, rect)
}

// Release frees the shadow targets and built-in programs and forgets the
// shadow warnings already given.
func (lp *LightPass) Release() {
	for _, fb := range []*gpu.Framebuffer{lp.shadow2D, lp.shadowCube} {
		if fb != nil {
			fb.Release()
		}
	}
	lp.shadow2D, lp.shadowCube = nil, nil
	clear(lp.warned)
	for k, p := range lp.programs {
		p.Release()
		delete(lp.programs, k)
	}
}
