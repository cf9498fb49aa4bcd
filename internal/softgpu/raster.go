package softgpu

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/gpu"
)

// Fragment is the per-pixel context handed to a FragmentFunc.
type Fragment struct {
	// X and Y are window pixel coordinates, origin bottom left.
	X, Y int
	// UV is the pixel centre mapped to [0,1] across the viewport.
	UV mgl32.Vec2

	dev       *Device
	prog      *program
	out       [gpu.MaxColorAttachments]mgl32.Vec4
	written   [gpu.MaxColorAttachments]bool
	discarded bool
}

func (f *Fragment) value(name string) any {
	loc := slices.Index(f.prog.uniforms, name)
	if loc < 0 {
		return nil
	}
	return f.prog.values[int32(loc)]
}

func (f *Fragment) Float(name string) float32 {
	v, _ := f.value(name).(float32)
	return v
}

func (f *Fragment) Int(name string) int32 {
	v, _ := f.value(name).(int32)
	return v
}

func (f *Fragment) Bool(name string) bool { return f.Int(name) != 0 }

func (f *Fragment) Vec2(name string) mgl32.Vec2 {
	v, _ := f.value(name).(mgl32.Vec2)
	return v
}

func (f *Fragment) Vec3(name string) mgl32.Vec3 {
	v, _ := f.value(name).(mgl32.Vec3)
	return v
}

func (f *Fragment) Vec4(name string) mgl32.Vec4 {
	v, _ := f.value(name).(mgl32.Vec4)
	return v
}

func (f *Fragment) Mat4(name string) mgl32.Mat4 {
	v, _ := f.value(name).(mgl32.Mat4)
	return v
}

func (f *Fragment) Floats(name string) []float32 {
	v, _ := f.value(name).([]float32)
	return v
}

func (f *Fragment) Vec3s(name string) []mgl32.Vec3 {
	v, _ := f.value(name).([]mgl32.Vec3)
	return v
}

func (f *Fragment) sampler(name string) *texture {
	unit, ok := f.value(name).(int32)
	if !ok {
		return nil
	}
	return f.dev.textures[f.dev.units[int(unit)]]
}

// Bound reports whether sampler name has a texture on its unit.
func (f *Fragment) Bound(name string) bool { return f.sampler(name) != nil }

// TextureSize returns the size of the texture bound to sampler name.
func (f *Fragment) TextureSize(name string) (int, int) {
	t := f.sampler(name)
	if t == nil {
		return 0, 0
	}
	return t.desc.Width, t.desc.Height
}

// Sample does a nearest-neighbour lookup honouring the texture's wrap mode.
func (f *Fragment) Sample(name string, uv mgl32.Vec2) mgl32.Vec4 {
	t := f.sampler(name)
	if t == nil {
		return mgl32.Vec4{}
	}
	x := wrap(int(math.Floor(float64(uv[0])*float64(t.desc.Width))), t.desc.Width, t.desc.Wrap)
	y := wrap(int(math.Floor(float64(uv[1])*float64(t.desc.Height))), t.desc.Height, t.desc.Wrap)
	return t.texel(0, x, y)
}

// Fetch reads texel (x, y) of sampler name, clamped to the edge.
func (f *Fragment) Fetch(name string, x, y int) mgl32.Vec4 {
	t := f.sampler(name)
	if t == nil {
		return mgl32.Vec4{}
	}
	return t.texel(0, clampInt(x, 0, t.desc.Width-1), clampInt(y, 0, t.desc.Height-1))
}

// SampleCube looks up a cube texture along dir.
func (f *Fragment) SampleCube(name string, dir mgl32.Vec3) mgl32.Vec4 {
	t := f.sampler(name)
	if t == nil || len(t.faces) != 6 {
		return mgl32.Vec4{}
	}
	face, u, v := cubeFace(dir)
	n := t.desc.Width
	x := clampInt(int(u*float32(n)), 0, n-1)
	y := clampInt(int(v*float32(n)), 0, n-1)
	return t.texel(face, x, y)
}

// Out writes fragment output i.
func (f *Fragment) Out(i int, v mgl32.Vec4) {
	if i < 0 || i >= gpu.MaxColorAttachments {
		return
	}
	f.out[i] = v
	f.written[i] = true
}

// Discard drops the fragment.
func (f *Fragment) Discard() { f.discarded = true }

func (t *texture) texel(face, x, y int) mgl32.Vec4 {
	i := 4 * (y*t.desc.Width + x)
	px := t.faces[face]
	return mgl32.Vec4{px[i], px[i+1], px[i+2], px[i+3]}
}

func (t *texture) store(face, x, y int, v mgl32.Vec4) {
	if x < 0 || y < 0 || x >= t.desc.Width || y >= t.desc.Height {
		return
	}
	i := 4 * (y*t.desc.Width + x)
	copy(t.faces[face][i:i+4], v[:])
}

func wrap(i, n int, mode gpu.WrapMode) int {
	if mode == gpu.WrapRepeat {
		i %= n
		if i < 0 {
			i += n
		}
		return i
	}
	return clampInt(i, 0, n-1)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// cubeFace picks the major axis the way GL does and returns face index
// (+X,-X,+Y,-Y,+Z,-Z) and face coordinates in [0,1].
func cubeFace(d mgl32.Vec3) (face int, u, v float32) {
	ax, ay, az := abs32(d[0]), abs32(d[1]), abs32(d[2])
	var sc, tc, ma float32
	switch {
	case ax >= ay && ax >= az:
		ma = ax
		if d[0] > 0 {
			face, sc, tc = 0, -d[2], -d[1]
		} else {
			face, sc, tc = 1, d[2], -d[1]
		}
	case ay >= az:
		ma = ay
		if d[1] > 0 {
			face, sc, tc = 2, d[0], d[2]
		} else {
			face, sc, tc = 3, d[0], -d[2]
		}
	default:
		ma = az
		if d[2] > 0 {
			face, sc, tc = 4, d[0], -d[1]
		} else {
			face, sc, tc = 5, -d[0], -d[1]
		}
	}
	if ma == 0 {
		return 0, 0.5, 0.5
	}
	return face, (sc/ma + 1) / 2, (tc/ma + 1) / 2
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// target returns the attachment texture and face att resolves to on the
// bound framebuffer.
func (d *Device) target(att gpu.Attachment) (*texture, int) {
	fb := d.framebuffers[d.fb]
	if fb == nil {
		return nil, 0
	}
	b, ok := fb.attachments[att]
	if !ok {
		return nil, 0
	}
	t := d.textures[b.tex]
	if t == nil || b.face >= len(t.faces) {
		return nil, 0
	}
	return t, b.face
}

// region returns the pixel rect rasterisation writes to: the viewport, or
// for Clear the whole target, narrowed by the scissor when enabled.
func (d *Device) region(base core.RectI) core.RectI {
	if d.viewport.Scissor {
		return base.Clip(d.viewport.Clip)
	}
	return base
}

func (d *Device) Clear(mask gpu.ClearMask, color core.Color, depth float32) {
	d.Clears++
	if mask&gpu.ClearColor != 0 {
		for _, att := range d.DrawBuffers() {
			if t, face := d.target(att); t != nil {
				fill(t, face, d.region(fullRect(t)), color.Vec4())
			}
		}
	}
	if mask&(gpu.ClearDepth|gpu.ClearStencil) != 0 {
		if t, face := d.target(gpu.DepthStencil); t != nil {
			fill(t, face, d.region(fullRect(t)), mgl32.Vec4{depth, 0, 0, 0})
		}
	}
}

func fullRect(t *texture) core.RectI {
	return core.RectI{W: int32(t.desc.Width), H: int32(t.desc.Height)}
}

func fill(t *texture, face int, r core.RectI, v mgl32.Vec4) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			t.store(face, int(x), int(y), v)
		}
	}
}

func (d *Device) CopyAttachment(src, dst gpu.Attachment, rect core.RectI) {
	d.Copies = append(d.Copies, CopyCall{Framebuffer: d.fb, Src: src, Dst: dst, Rect: rect})
	st, sf := d.target(src)
	dt, df := d.target(dst)
	if st == nil || dt == nil {
		return
	}
	r := rect.Clip(fullRect(st)).Clip(fullRect(dt))
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			dt.store(df, int(x), int(y), st.texel(sf, int(x), int(y)))
		}
	}
}

func (d *Device) record(kind DrawKind, mesh gpu.MeshID) *program {
	prog := d.programs[d.prog]
	dc := DrawCall{
		Kind:        kind,
		Framebuffer: d.fb,
		DrawBuffers: d.DrawBuffers(),
		Viewport:    d.viewport,
		Blend:       d.blend,
		Mesh:        mesh,
	}
	if prog != nil {
		dc.Program = prog.name
		if loc := slices.Index(prog.uniforms, "B_Model"); loc >= 0 {
			dc.Model, _ = prog.values[int32(loc)].(mgl32.Mat4)
		}
	}
	d.Draws = append(d.Draws, dc)
	return prog
}

func (d *Device) DrawMesh(m gpu.MeshID) {
	d.record(DrawMesh, m)
}

func (d *Device) DrawFullscreen() {
	prog := d.record(DrawFullscreen, 0)
	if prog == nil || prog.shader.Fragment == nil {
		return
	}
	vp := d.viewport.Viewport
	r := d.region(vp)
	if r.Empty() {
		return
	}
	bufs := d.DrawBuffers()
	frag := Fragment{dev: d, prog: prog}
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			frag.X, frag.Y = int(x), int(y)
			frag.UV = mgl32.Vec2{
				(float32(x-vp.X) + 0.5) / float32(vp.W),
				(float32(y-vp.Y) + 0.5) / float32(vp.H),
			}
			frag.written = [gpu.MaxColorAttachments]bool{}
			frag.discarded = false
			prog.shader.Fragment(&frag)
			if frag.discarded {
				continue
			}
			for i, att := range bufs {
				if i >= gpu.MaxColorAttachments || !frag.written[i] {
					continue
				}
				t, face := d.target(att)
				if t == nil {
					continue
				}
				src := frag.out[i]
				if d.blend.Enabled {
					src = blend(d.blend, src, t.texel(face, int(x), int(y)))
				}
				t.store(face, int(x), int(y), src)
			}
		}
	}
}

func blend(b gpu.BlendState, src, dst mgl32.Vec4) mgl32.Vec4 {
	fs := factor(b.Src, src, dst)
	fd := factor(b.Dst, src, dst)
	var out mgl32.Vec4
	for i := range out {
		out[i] = src[i]*fs[i] + dst[i]*fd[i]
	}
	return out
}

func factor(f gpu.BlendFactor, src, dst mgl32.Vec4) mgl32.Vec4 {
	switch f {
	case gpu.BlendOne:
		return mgl32.Vec4{1, 1, 1, 1}
	case gpu.BlendSrcAlpha:
		return mgl32.Vec4{src[3], src[3], src[3], src[3]}
	case gpu.BlendOneMinusSrcAlpha:
		a := 1 - src[3]
		return mgl32.Vec4{a, a, a, a}
	case gpu.BlendDstColor:
		return dst
	}
	return mgl32.Vec4{}
}
