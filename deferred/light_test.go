package deferred_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/softgpu"
)

func TestLightKindShadowTarget(t *testing.T) {
	tests := []struct {
		kind deferred.LightKind
		want deferred.ShadowTarget
	}{
		{deferred.LightDirectional, deferred.ShadowTarget2D},
		{deferred.LightSpot, deferred.ShadowTarget2D},
		{deferred.LightPoint, deferred.ShadowTargetCube},
	}
	for _, tt := range tests {
		if got := tt.kind.ShadowTarget(); got != tt.want {
			t.Errorf("%s: target = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestLightDefaults(t *testing.T) {
	l := deferred.NewPointLight(transform{}, 20)
	if l.ShadowNear != deferred.DefaultShadowNear || l.ShadowFar != deferred.DefaultShadowFar {
		t.Errorf("shadow planes = %v/%v, want %v/%v", l.ShadowNear, l.ShadowFar,
			deferred.DefaultShadowNear, deferred.DefaultShadowFar)
	}
	near, far := l.ShadowPlanes()
	if !approxEqual(near, 1, 1e-5) || !approxEqual(far, 20, 1e-5) {
		t.Errorf("ShadowPlanes = %v, %v, want 1, 20", near, far)
	}
	if l.ShadowSoftness != deferred.DefaultShadowSoftness {
		t.Errorf("ShadowSoftness = %d, want %d", l.ShadowSoftness, deferred.DefaultShadowSoftness)
	}
	if n := len(l.ShadowViews()); n != 6 {
		t.Errorf("point light has %d shadow views, want 6", n)
	}
	if n := len(deferred.NewSpotLight(transform{fwd: mgl32.Vec3{0, -1, 0}}, 5, 0.5).ShadowViews()); n != 1 {
		t.Errorf("spot light has %d shadow views, want 1", n)
	}
}

func TestLightScreenRect(t *testing.T) {
	cam := testView(100, 100)
	tests := []struct {
		name  string
		light *deferred.Light
		check func(core.Rect) bool
	}{
		{"directional covers screen", deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}}),
			func(r core.Rect) bool { return r == core.NDCRect }},
		{"behind camera is empty", deferred.NewPointLight(transform{pos: mgl32.Vec3{0, 0, 20}}, 1),
			func(r core.Rect) bool { return r.IsEmpty() }},
		{"far to the side is empty", deferred.NewPointLight(transform{pos: mgl32.Vec3{50, 0, 0}}, 1),
			func(r core.Rect) bool { return r.IsEmpty() }},
		{"around camera covers screen", deferred.NewPointLight(transform{pos: mgl32.Vec3{0, 0, 5}}, 2),
			func(r core.Rect) bool { return r == core.NDCRect }},
		{"small in front is partial", deferred.NewPointLight(transform{pos: mgl32.Vec3{0, 0, 0}}, 0.5),
			func(r core.Rect) bool {
				return !r.IsEmpty() && r.Area() < core.NDCRect.Area() && r.MinX < 0 && r.MaxX > 0
			}},
	}
	for _, tt := range tests {
		if got := tt.light.ScreenRect(cam); !tt.check(got) {
			t.Errorf("%s: ScreenRect = %+v", tt.name, got)
		}
	}
}

func newLightPass(t *testing.T, fx *fixture) *deferred.LightPass {
	t.Helper()
	lp, err := deferred.NewLightPass(fx.stack)
	if err != nil {
		t.Fatalf("NewLightPass: %v", err)
	}
	t.Cleanup(lp.Release)
	return lp
}

func TestLightPassTwoLightsAddUp(t *testing.T) {
	fx := newFixture(t, 8, 8)
	lp := newLightPass(t, fx)
	albedo := mgl32.Vec4{0.2, 0.3, 0.4, 1}
	fx.fillSurface(albedo, true)

	for range 2 {
		l := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, 0, -1}})
		if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
			t.Fatal(err)
		}
	}

	want := mgl32.Vec4{0.4, 0.6, 0.8, 0}
	for _, p := range [][2]int{{0, 0}, {4, 4}, {7, 7}} {
		if got := fx.color(p[0], p[1]); !vecApprox(got, want, 1e-5) {
			t.Errorf("color%v = %v, want %v", p, got, want)
		}
	}
	if !fx.stack.Balanced() {
		t.Error("light pass left state on the stack")
	}
}

func TestLightPassIntensityScalesAlbedo(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{0.2, 0.3, 0.4, 1}, true)

	l := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, 0, -1}})
	l.Intensity = 2
	l.Color = core.Color{R: 1, G: 1, B: 1, A: 1}
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	want := mgl32.Vec4{0.4, 0.6, 0.8, 0}
	if got := fx.color(2, 2); !vecApprox(got, want, 1e-5) {
		t.Errorf("color = %v, want %v", got, want)
	}
}

func TestLightPassShadowSoftnessUniform(t *testing.T) {
	tests := []struct {
		softness uint
		want     float32
	}{
		{0, 0},
		{3, 3},
		{1000, deferred.MaxShadowSoftness},
	}
	for _, tt := range tests {
		fx := newFixture(t, 2, 2)
		var got []float32
		src, _ := deferred.Source(deferred.ProgramLightDirectional)
		fx.dev.Register(deferred.ProgramLightDirectional, softgpu.Shader{
			Uniforms: softgpu.ParseUniforms(src.Vertex, src.Fragment),
			Fragment: func(f *softgpu.Fragment) {
				got = append(got, f.Float("B_LightShadowSoftness"))
				f.Out(0, mgl32.Vec4{})
			},
		})
		lp := newLightPass(t, fx)
		fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

		l := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}})
		l.CastShadows = true
		l.ShadowProgram = loadProgram(t, fx, deferred.ProgramShadowDepth)
		l.ShadowMapSize = 4
		l.ShadowSoftness = tt.softness
		if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
			t.Fatal(err)
		}
		if len(got) == 0 {
			t.Fatalf("softness %d: light shader never ran", tt.softness)
		}
		if got[0] != tt.want {
			t.Errorf("softness %d: B_LightShadowSoftness = %v, want %v", tt.softness, got[0], tt.want)
		}
	}
}

func TestLightPassUnlitPixelsUnchanged(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, false)

	l := deferred.NewDirectionalLight(nil)
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	if got := fx.color(2, 2); got != (mgl32.Vec4{}) {
		t.Errorf("unlit pixel = %v, want unchanged", got)
	}
}

func TestLightPassOffscreenLightDrawsNothing(t *testing.T) {
	fx := newFixture(t, 16, 16)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

	l := deferred.NewPointLight(transform{pos: mgl32.Vec3{50, 0, 0}}, 1)
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	if n := len(fx.dev.Draws); n != 0 {
		t.Errorf("got %d draws, want 0", n)
	}
	if n := len(fx.dev.Copies); n != 0 {
		t.Errorf("got %d copies, want 0", n)
	}
}

func TestLightPassClipsToLightRect(t *testing.T) {
	fx := newFixture(t, 32, 32)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

	l := deferred.NewPointLight(transform{}, 0.5)
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	draws := fx.dev.DrawsWith(deferred.ProgramLightPoint)
	if len(draws) != 1 {
		t.Fatalf("got %d light draws, want 1", len(draws))
	}
	d := draws[0]
	if !d.Viewport.Scissor || d.Viewport.Clip.W >= 32 || d.Viewport.Clip.H >= 32 {
		t.Errorf("draw clip = %+v, want a partial scissor", d.Viewport)
	}
	if d.Blend != gpu.AdditiveBlend {
		t.Errorf("blend = %+v, want additive", d.Blend)
	}
	if !slices.Equal(d.DrawBuffers, []gpu.Attachment{deferred.AttColor}) {
		t.Errorf("draw buffers = %v, want [Color]", d.DrawBuffers)
	}
	if got := fx.color(0, 0); got != (mgl32.Vec4{}) {
		t.Errorf("corner pixel outside light rect = %v", got)
	}
	if len(fx.dev.Copies) != 1 || fx.dev.Copies[0].Rect != d.Viewport.Clip {
		t.Errorf("copies = %+v, want one copy over %+v", fx.dev.Copies, d.Viewport.Clip)
	}
}

func TestLightPassRenderRectIntersection(t *testing.T) {
	fx := newFixture(t, 8, 8)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

	left := core.Rect{MinX: -1, MinY: -1, MaxX: 0, MaxY: 1}
	if err := lp.Render(fx.ctx, deferred.NewDirectionalLight(nil), left); err != nil {
		t.Fatal(err)
	}
	if fx.color(1, 4)[0] == 0 || fx.color(6, 4)[0] != 0 {
		t.Errorf("lit left %v, right %v; want only the left half lit", fx.color(1, 4), fx.color(6, 4))
	}
}

func TestLightPassMissingShadowProgram(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)
	logs := captureLogs(t)

	l := deferred.NewDirectionalLight(nil)
	l.CastShadows = true
	for range 2 {
		if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}

	if n := strings.Count(logs.String(), "no shadow program"); n != 1 {
		t.Errorf("got %d shadow warnings, want 1:\n%s", n, logs)
	}
	if n := len(fx.dev.DrawsWith(deferred.ProgramLightDirectional)); n != 2 {
		t.Errorf("light applied %d times, want 2", n)
	}
	for _, d := range fx.dev.Draws {
		if d.Kind == softgpu.DrawMesh {
			t.Errorf("unexpected mesh draw %+v", d)
		}
	}
}

func TestLightPassPruneWarnings(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	logs := captureLogs(t)

	l := deferred.NewDirectionalLight(nil)
	l.CastShadows = true
	render := func() {
		t.Helper()
		if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
			t.Fatal(err)
		}
	}
	warnings := func() int { return strings.Count(logs.String(), "no shadow program") }

	render()
	lp.PruneWarnings([]*deferred.Light{l})
	render()
	if n := warnings(); n != 1 {
		t.Fatalf("live light warned %d times, want 1", n)
	}

	lp.PruneWarnings(nil)
	render()
	if n := warnings(); n != 2 {
		t.Errorf("pruned light warned %d times in total, want 2", n)
	}
}

func TestLightPassShadowCasters(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)

	geometry, err := deferred.LoadProgram(fx.dev, deferred.ProgramGeometry)
	if err != nil {
		t.Fatal(err)
	}
	shadow, err := deferred.LoadProgram(fx.dev, deferred.ProgramShadowDepth)
	if err != nil {
		t.Fatal(err)
	}
	scene := deferred.DefaultMaterial(geometry)
	overlay := deferred.DefaultMaterial(geometry)
	overlay.RenderPass = deferred.RenderPassOverlay

	caster := &renderable{active: true, casts: true, mat: scene, mesh: 1, model: mgl32.Translate3D(1, 2, 3)}
	fx.ctx.Source = &frameSource{renderables: []deferred.Renderable{
		caster,
		&renderable{active: false, casts: true, mat: scene, mesh: 2},
		&renderable{active: true, casts: false, mat: scene, mesh: 3},
		&renderable{active: true, casts: true, mat: overlay, mesh: 4},
		&renderable{active: true, casts: true, mat: nil, mesh: 5},
	}}

	l := deferred.NewDirectionalLight(transform{fwd: mgl32.Vec3{0, -1, 0}})
	l.CastShadows = true
	l.ShadowProgram = shadow
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}

	var meshes []gpu.MeshID
	for _, d := range fx.dev.Draws {
		if d.Mesh == 0 {
			continue
		}
		if d.Program != deferred.ProgramShadowDepth {
			t.Errorf("caster drawn with %q, want the shadow program", d.Program)
		}
		if d.Model != caster.model {
			t.Errorf("caster model matrix = %v", d.Model)
		}
		meshes = append(meshes, d.Mesh)
	}
	if !slices.Equal(meshes, []gpu.MeshID{1}) {
		t.Errorf("shadow draws for meshes %v, want [1]", meshes)
	}
	if !fx.stack.Balanced() {
		t.Error("shadow pass left state on the stack")
	}
}

func TestLightPassPointShadowRendersSixFaces(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	shadow, err := deferred.LoadProgram(fx.dev, deferred.ProgramShadowDistance)
	if err != nil {
		t.Fatal(err)
	}
	fx.ctx.Source = &frameSource{renderables: []deferred.Renderable{
		&renderable{active: true, casts: true, mat: deferred.DefaultMaterial(nil), mesh: 9},
	}}

	l := deferred.NewPointLight(transform{}, 5)
	l.CastShadows = true
	l.ShadowProgram = shadow
	l.ShadowMapSize = 8
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	if n := len(fx.dev.DrawsWith(deferred.ProgramShadowDistance)); n != 6 {
		t.Errorf("got %d cube face draws, want 6", n)
	}
}

func TestLightPassStateSequence(t *testing.T) {
	tests := []struct {
		name    string
		casts   bool
		program bool
		want    []deferred.LightPassState
	}{
		{"no shadows", false, false, []deferred.LightPassState{deferred.StateLightApply, deferred.StateIdle}},
		{"shadows without program", true, false, []deferred.LightPassState{deferred.StateLightApply, deferred.StateIdle}},
		{"shadowed", true, true, []deferred.LightPassState{
			deferred.StateShadowRender, deferred.StateLightApply, deferred.StateIdle,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, 4, 4)
			lp := newLightPass(t, fx)
			var seen []deferred.LightPassState
			lp.OnStateChange(func(s deferred.LightPassState) { seen = append(seen, s) })

			l := deferred.NewDirectionalLight(nil)
			l.CastShadows = tt.casts
			if tt.program {
				l.ShadowProgram = loadProgram(t, fx, deferred.ProgramShadowDepth)
				l.ShadowMapSize = 4
			}
			if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(seen, tt.want) {
				t.Errorf("states = %v, want %v", seen, tt.want)
			}
			if lp.State() != deferred.StateIdle {
				t.Errorf("final state = %s", lp.State())
			}
		})
	}
}

func TestLightPassDisabledLight(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	l := deferred.NewDirectionalLight(nil)
	l.Enabled = false
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	if len(fx.dev.Draws) != 0 {
		t.Errorf("disabled light drew %d times", len(fx.dev.Draws))
	}
}

func TestLightPassContextLost(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	fx.dev.LoseContext()

	err := lp.Render(fx.ctx, deferred.NewDirectionalLight(nil), core.NDCRect)
	if !errors.Is(err, gpu.ErrContextLost) {
		t.Fatalf("err = %v, want ErrContextLost", err)
	}
	var pe *deferred.PassError
	if !errors.As(err, &pe) || pe.Pass != "light" {
		t.Errorf("err = %#v, want a light PassError", err)
	}
}

func TestNegativeIntensityClamped(t *testing.T) {
	fx := newFixture(t, 4, 4)
	lp := newLightPass(t, fx)
	fx.fillSurface(mgl32.Vec4{1, 1, 1, 1}, true)

	l := deferred.NewDirectionalLight(nil)
	l.Intensity = -3
	if err := lp.Render(fx.ctx, l, core.NDCRect); err != nil {
		t.Fatal(err)
	}
	if got := fx.color(1, 1); got != (mgl32.Vec4{}) {
		t.Errorf("color = %v, want no contribution", got)
	}
}
