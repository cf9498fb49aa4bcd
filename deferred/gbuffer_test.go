package deferred_test

import (
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/softgpu"
)

func loadFill(t *testing.T, fx *fixture, v mgl32.Vec4) *gpu.Program {
	t.Helper()
	fx.dev.Register("test/fill", softgpu.Shader{
		Uniforms: []string{deferred.TexColorRead},
		Fragment: func(f *softgpu.Fragment) { f.Out(0, v) },
	})
	p, err := gpu.NewProgram(fx.dev, gpu.ProgramSource{Name: "test/fill"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGBufferLayout(t *testing.T) {
	fx := newFixture(t, 8, 4)
	for _, att := range []gpu.Attachment{
		deferred.AttColor, deferred.AttAlbedo, deferred.AttNormal,
		deferred.AttMisc, deferred.AttColorRead, deferred.AttDepth,
	} {
		tex := fx.gbuf.Texture(att)
		if tex == 0 {
			t.Errorf("%s not allocated", att)
			continue
		}
		if w, h := fx.dev.TextureSize(tex); w != 8 || h != 4 {
			t.Errorf("%s is %dx%d, want 8x4", att, w, h)
		}
	}
	if desc, _ := fx.dev.TextureDesc(fx.gbuf.Texture(deferred.AttDepth)); !desc.Format.IsDepth() {
		t.Error("depth attachment has a colour format")
	}
}

func TestGBufferResize(t *testing.T) {
	fx := newFixture(t, 8, 8)
	fx.gbuf.Resize(16, 10)
	if w, h := fx.dev.TextureSize(fx.gbuf.Texture(deferred.AttNormal)); w != 16 || h != 10 {
		t.Errorf("normal is %dx%d after resize, want 16x10", w, h)
	}
	if got := fx.gbuf.PixelRect(); got != (core.RectI{W: 16, H: 10}) {
		t.Errorf("PixelRect = %+v", got)
	}
}

func TestGBufferDrawBufferSets(t *testing.T) {
	fx := newFixture(t, 4, 4)
	tests := []struct {
		name string
		set  func()
		want []gpu.Attachment
	}{
		{"all", fx.gbuf.SetAllDrawBuffers, []gpu.Attachment{deferred.AttColor, deferred.AttAlbedo, deferred.AttNormal, deferred.AttMisc}},
		{"except color", fx.gbuf.SetAllDrawBuffersExceptColor, []gpu.Attachment{deferred.AttAlbedo, deferred.AttNormal, deferred.AttMisc}},
		{"color", fx.gbuf.SetColorDrawBuffer, []gpu.Attachment{deferred.AttColor}},
	}
	for _, tt := range tests {
		restore := fx.stack.Scope(gpu.AspectFramebuffer | gpu.AspectDrawBuffers)
		tt.set()
		if got := fx.dev.DrawBuffers(); !slices.Equal(got, tt.want) {
			t.Errorf("%s: draw buffers = %v, want %v", tt.name, got, tt.want)
		}
		restore()
	}
}

func TestApplyPassEmptyMaskDrawsNothing(t *testing.T) {
	fx := newFixture(t, 8, 8)
	p := loadFill(t, fx, mgl32.Vec4{1, 1, 1, 1})

	offscreen := core.Intersection(core.NDCRect, core.Rect{MinX: 2, MinY: 2, MaxX: 3, MaxY: 3})
	if fx.gbuf.ApplyPass(p, true, offscreen) {
		t.Error("ApplyPass reported a draw for an empty mask")
	}
	if len(fx.dev.Draws) != 0 || len(fx.dev.Copies) != 0 {
		t.Errorf("got %d draws and %d copies, want none", len(fx.dev.Draws), len(fx.dev.Copies))
	}
}

func TestApplyPassRespectsMask(t *testing.T) {
	fx := newFixture(t, 8, 8)
	p := loadFill(t, fx, mgl32.Vec4{1, 1, 1, 1})

	right := core.Rect{MinX: 0, MinY: -1, MaxX: 1, MaxY: 1}
	if !fx.gbuf.ApplyPass(p, false, right) {
		t.Fatal("ApplyPass drew nothing")
	}
	for x := range 8 {
		got := fx.color(x, 3)[0]
		want := float32(0)
		if x >= 4 {
			want = 1
		}
		if got != want {
			t.Errorf("color(%d,3).r = %v, want %v", x, got, want)
		}
	}
	// Only Color is written.
	if got := fx.dev.Pixel(fx.gbuf.Texture(deferred.AttAlbedo), 6, 3); got != (mgl32.Vec4{}) {
		t.Errorf("albedo written: %v", got)
	}
	if !fx.stack.Balanced() {
		t.Error("ApplyPass left state on the stack")
	}
	if fx.dev.Framebuffer() != gpu.DefaultFramebuffer || fx.dev.Blend() != gpu.NoBlend {
		t.Error("ApplyPass leaked framebuffer or blend state")
	}
}

func TestApplyPassBlendAdds(t *testing.T) {
	fx := newFixture(t, 4, 4)
	p := loadFill(t, fx, mgl32.Vec4{0.25, 0.25, 0.25, 0})
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttColor), mgl32.Vec4{0.5, 0.5, 0.5, 1})

	fx.gbuf.ApplyPassBlend(p, gpu.BlendOne, gpu.BlendOne, core.NDCRect)

	if got := fx.color(1, 1); !vecApprox(got, mgl32.Vec4{0.75, 0.75, 0.75, 1}, 1e-6) {
		t.Errorf("blended color = %v", got)
	}
	draws := fx.dev.DrawsWith("test/fill")
	if len(draws) != 1 || draws[0].Blend != gpu.AdditiveBlend {
		t.Errorf("draws = %+v, want one additive draw", draws)
	}
}

func TestPrepareColorReadBufferCopiesMaskOnly(t *testing.T) {
	fx := newFixture(t, 8, 8)
	fx.dev.Fill(fx.gbuf.Texture(deferred.AttColor), mgl32.Vec4{1, 0, 0, 1})

	left := core.Rect{MinX: -1, MinY: -1, MaxX: 0, MaxY: 1}
	fx.gbuf.PrepareColorReadBuffer(left)

	read := fx.gbuf.Texture(deferred.AttColorRead)
	if got := fx.dev.Pixel(read, 1, 1); got != (mgl32.Vec4{1, 0, 0, 1}) {
		t.Errorf("inside mask = %v, want copied red", got)
	}
	if got := fx.dev.Pixel(read, 6, 1); got != (mgl32.Vec4{}) {
		t.Errorf("outside mask = %v, want untouched", got)
	}
}

func TestClearBuffersAndBackground(t *testing.T) {
	fx := newFixture(t, 4, 4)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

	bg := core.NewColor(0.1, 0.2, 0.3)
	fx.gbuf.ClearBuffersAndBackground(bg)

	if got := fx.color(2, 2); got != bg.Vec4() {
		t.Errorf("color = %v, want background %v", got, bg.Vec4())
	}
	if got := fx.dev.Pixel(fx.gbuf.Texture(deferred.AttAlbedo), 2, 2); got != (mgl32.Vec4{}) {
		t.Errorf("albedo = %v, want cleared", got)
	}
	if got := fx.dev.Pixel(fx.gbuf.Texture(deferred.AttDepth), 2, 2).X(); got != 1 {
		t.Errorf("depth = %v, want 1", got)
	}
}

func TestBindAttachmentsForReadingIsSilent(t *testing.T) {
	fx := newFixture(t, 4, 4)
	p := loadFill(t, fx, mgl32.Vec4{})
	logs := captureLogs(t)
	fx.gbuf.BindAttachmentsForReading(p)
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %s", logs)
	}
}
