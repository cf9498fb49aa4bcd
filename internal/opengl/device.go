// Package opengl implements gpu.Device on an OpenGL 4.1 core context.
//
// All calls must happen on the goroutine that owns the context (see
// internal/window). The device caches the pipeline state it sets so the
// state stack can read it back without glGet round trips.
package opengl

import (
	"fmt"
	"log/slog"
	"slices"
	"unsafe"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"render-engine/core"
	"render-engine/gpu"
)

// glMesh holds the OpenGL buffer objects for an uploaded mesh.
type glMesh struct {
	vao, vbo, ebo uint32
	count         int32
	indexed       bool
}

// Device is the OpenGL gpu.Device.
type Device struct {
	log *slog.Logger

	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID][]gpu.Attachment // draw buffers per FBO
	meshes       map[gpu.MeshID]*glMesh
	units        map[int]gpu.TextureID

	screenVAO uint32 // empty VAO for the fullscreen triangle

	fb       gpu.FramebufferID
	prog     gpu.ProgramID
	viewport gpu.ViewportState
	blend    gpu.BlendState
	depth    gpu.DepthState

	err    error
	warned map[uint32]bool
}

var _ gpu.Device = (*Device)(nil)

// New loads the GL function pointers for the current context and returns a
// device whose default framebuffer is width×height pixels.
func New(width, height int) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}
	d := &Device{
		log:          core.Logger().With("device", "opengl"),
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: map[gpu.FramebufferID][]gpu.Attachment{gpu.DefaultFramebuffer: {gpu.Color0}},
		meshes:       make(map[gpu.MeshID]*glMesh),
		units:        make(map[int]gpu.TextureID),
		warned:       make(map[uint32]bool),
	}
	d.log.Info("device created",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	gl.GenVertexArrays(1, &d.screenVAO)
	gl.Enable(gl.TEXTURE_CUBE_MAP_SEAMLESS)

	// Put GL into the state the getters report.
	d.applyBlend(gpu.NoBlend)
	d.applyDepth(gpu.DepthState{Mask: true, Func: gpu.DepthLess})
	d.applyViewport(gpu.ViewportState{Viewport: core.RectI{W: int32(width), H: int32(height)}})
	return d, nil
}

// Release frees every object the device still owns.
func (d *Device) Release() {
	for id := range d.meshes {
		d.DeleteMesh(id)
	}
	for id := range d.textures {
		d.DeleteTexture(id)
	}
	for id := range d.framebuffers {
		d.DeleteFramebuffer(id)
	}
	if d.screenVAO != 0 {
		gl.DeleteVertexArrays(1, &d.screenVAO)
		d.screenVAO = 0
	}
}

// ── Framebuffers ──────────────────────────────────────────────────────────────

func (d *Device) NewFramebuffer() (gpu.FramebufferID, error) {
	var id uint32
	gl.GenFramebuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("opengl: glGenFramebuffers returned 0")
	}
	d.framebuffers[gpu.FramebufferID(id)] = []gpu.Attachment{gpu.Color0}
	return gpu.FramebufferID(id), nil
}

func glAttachment(att gpu.Attachment, f gpu.TextureFormat) uint32 {
	switch {
	case att.IsColor():
		return gl.COLOR_ATTACHMENT0 + uint32(att)
	case f == gpu.FormatDepth24Stencil8:
		return gl.DEPTH_STENCIL_ATTACHMENT
	}
	return gl.DEPTH_ATTACHMENT
}

func (d *Device) AttachTexture(att gpu.Attachment, tex gpu.TextureID, face int) {
	if d.fb == gpu.DefaultFramebuffer {
		return
	}
	t := d.textures[tex]
	if t == nil {
		return
	}
	target := uint32(gl.TEXTURE_2D)
	if t.desc.Target == gpu.TextureCube {
		target = uint32(gl.TEXTURE_CUBE_MAP_POSITIVE_X + face)
	}
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, glAttachment(att, t.desc.Format), target, uint32(tex), 0)
}

func (d *Device) CheckFramebuffer() error {
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status == gl.FRAMEBUFFER_COMPLETE {
		return nil
	}
	return fmt.Errorf("opengl: framebuffer %d status 0x%x: %w", d.fb, status, gpu.ErrFramebufferIncomplete)
}

func (d *Device) DeleteFramebuffer(fb gpu.FramebufferID) {
	if fb == gpu.DefaultFramebuffer {
		return
	}
	if _, ok := d.framebuffers[fb]; !ok {
		return
	}
	if d.fb == fb {
		d.BindFramebuffer(gpu.DefaultFramebuffer)
	}
	id := uint32(fb)
	gl.DeleteFramebuffers(1, &id)
	delete(d.framebuffers, fb)
}

func (d *Device) BindFramebuffer(fb gpu.FramebufferID) {
	if _, ok := d.framebuffers[fb]; !ok {
		fb = gpu.DefaultFramebuffer
	}
	if d.fb == fb {
		return
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	d.fb = fb
}

func (d *Device) Framebuffer() gpu.FramebufferID { return d.fb }

// SetDrawBuffers routes fragment outputs. The default framebuffer always
// draws to the back buffer.
func (d *Device) SetDrawBuffers(atts []gpu.Attachment) {
	if d.fb == gpu.DefaultFramebuffer {
		return
	}
	if _, ok := d.framebuffers[d.fb]; !ok {
		return
	}
	d.framebuffers[d.fb] = slices.Clone(atts)
	if len(atts) == 0 {
		gl.DrawBuffer(gl.NONE)
		gl.ReadBuffer(gl.NONE)
		return
	}
	bufs := make([]uint32, len(atts))
	for i, a := range atts {
		bufs[i] = gl.COLOR_ATTACHMENT0 + uint32(a)
	}
	gl.DrawBuffers(int32(len(bufs)), &bufs[0])
	gl.ReadBuffer(bufs[0])
}

func (d *Device) DrawBuffers() []gpu.Attachment {
	return slices.Clone(d.framebuffers[d.fb])
}

// ── Meshes ────────────────────────────────────────────────────────────────────

// NewMesh uploads interleaved vertices with attributes 0 position, 1 normal,
// 2 uv and 3 colour.
func (d *Device) NewMesh(data core.MeshData) (gpu.MeshID, error) {
	if len(data.Vertices) == 0 {
		return 0, fmt.Errorf("opengl: empty mesh")
	}
	stride := int32(unsafe.Sizeof(core.Vertex{}))
	m := &glMesh{count: int32(len(data.Vertices))}

	gl.GenVertexArrays(1, &m.vao)
	gl.GenBuffers(1, &m.vbo)
	gl.BindVertexArray(m.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data.Vertices)*int(stride), gl.Ptr(data.Vertices), gl.STATIC_DRAW)

	var v core.Vertex
	attrs := []struct {
		size   int32
		offset uintptr
	}{
		{3, unsafe.Offsetof(v.Position)},
		{3, unsafe.Offsetof(v.Normal)},
		{2, unsafe.Offsetof(v.UV)},
		{4, unsafe.Offsetof(v.Color)},
	}
	for i, a := range attrs {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointerWithOffset(uint32(i), a.size, gl.FLOAT, false, stride, a.offset)
	}

	if len(data.Indices) > 0 {
		m.indexed = true
		m.count = int32(len(data.Indices))
		gl.GenBuffers(1, &m.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(data.Indices)*4, gl.Ptr(data.Indices), gl.STATIC_DRAW)
	}
	gl.BindVertexArray(0)

	id := gpu.MeshID(m.vao)
	d.meshes[id] = m
	return id, nil
}

func (d *Device) DeleteMesh(id gpu.MeshID) {
	m := d.meshes[id]
	if m == nil {
		return
	}
	gl.DeleteBuffers(1, &m.vbo)
	if m.ebo != 0 {
		gl.DeleteBuffers(1, &m.ebo)
	}
	gl.DeleteVertexArrays(1, &m.vao)
	delete(d.meshes, id)
}

// ── Pipeline state ────────────────────────────────────────────────────────────

func (d *Device) SetViewport(vs gpu.ViewportState) {
	if vs == d.viewport {
		return
	}
	d.applyViewport(vs)
}

func (d *Device) applyViewport(vs gpu.ViewportState) {
	r := vs.Viewport
	gl.Viewport(r.X, r.Y, r.W, r.H)
	if vs.Scissor {
		gl.Enable(gl.SCISSOR_TEST)
		gl.Scissor(vs.Clip.X, vs.Clip.Y, max(vs.Clip.W, 0), max(vs.Clip.H, 0))
	} else {
		gl.Disable(gl.SCISSOR_TEST)
	}
	d.viewport = vs
}

func (d *Device) Viewport() gpu.ViewportState { return d.viewport }

func glBlendFactor(f gpu.BlendFactor) uint32 {
	switch f {
	case gpu.BlendOne:
		return gl.ONE
	case gpu.BlendSrcAlpha:
		return gl.SRC_ALPHA
	case gpu.BlendOneMinusSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	case gpu.BlendDstColor:
		return gl.DST_COLOR
	}
	return gl.ZERO
}

func (d *Device) SetBlend(b gpu.BlendState) {
	if b == d.blend {
		return
	}
	d.applyBlend(b)
}

func (d *Device) applyBlend(b gpu.BlendState) {
	if b.Enabled {
		gl.Enable(gl.BLEND)
	} else {
		gl.Disable(gl.BLEND)
	}
	gl.BlendFunc(glBlendFactor(b.Src), glBlendFactor(b.Dst))
	d.blend = b
}

func (d *Device) Blend() gpu.BlendState { return d.blend }

func glDepthFunc(f gpu.DepthFunc) uint32 {
	switch f {
	case gpu.DepthLessEqual:
		return gl.LEQUAL
	case gpu.DepthAlways:
		return gl.ALWAYS
	}
	return gl.LESS
}

func (d *Device) SetDepth(s gpu.DepthState) {
	if s == d.depth {
		return
	}
	d.applyDepth(s)
}

func (d *Device) applyDepth(s gpu.DepthState) {
	if s.Test {
		gl.Enable(gl.DEPTH_TEST)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
	gl.DepthMask(s.Mask)
	gl.DepthFunc(glDepthFunc(s.Func))
	d.depth = s
}

func (d *Device) Depth() gpu.DepthState { return d.depth }

// ── Drawing ───────────────────────────────────────────────────────────────────

// Clear honours the scissor clip. Depth writes are enabled for the duration
// of the call.
func (d *Device) Clear(mask gpu.ClearMask, color core.Color, depth float32) {
	var bits uint32
	if mask&gpu.ClearColor != 0 {
		gl.ClearColor(color.R, color.G, color.B, color.A)
		bits |= gl.COLOR_BUFFER_BIT
	}
	if mask&gpu.ClearDepth != 0 {
		gl.ClearDepth(float64(depth))
		bits |= gl.DEPTH_BUFFER_BIT
	}
	if mask&gpu.ClearStencil != 0 {
		gl.ClearStencil(0)
		bits |= gl.STENCIL_BUFFER_BIT
	}
	if !d.depth.Mask {
		gl.DepthMask(true)
		defer gl.DepthMask(false)
	}
	gl.Clear(bits)
}

// CopyAttachment blits rect between two colour attachments of the bound
// framebuffer and restores its draw buffers.
func (d *Device) CopyAttachment(src, dst gpu.Attachment, rect core.RectI) {
	if d.fb == gpu.DefaultFramebuffer || !src.IsColor() || !dst.IsColor() {
		return
	}
	scissor := d.viewport.Scissor
	if scissor {
		gl.Disable(gl.SCISSOR_TEST)
	}
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0 + uint32(src))
	gl.DrawBuffer(gl.COLOR_ATTACHMENT0 + uint32(dst))
	x0, y0, x1, y1 := rect.X, rect.Y, rect.X+rect.W, rect.Y+rect.H
	gl.BlitFramebuffer(x0, y0, x1, y1, x0, y0, x1, y1, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	d.SetDrawBuffers(d.framebuffers[d.fb])
	if scissor {
		gl.Enable(gl.SCISSOR_TEST)
	}
}

func (d *Device) DrawFullscreen() {
	gl.BindVertexArray(d.screenVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
}

func (d *Device) DrawMesh(id gpu.MeshID) {
	m := d.meshes[id]
	if m == nil {
		return
	}
	gl.BindVertexArray(m.vao)
	if m.indexed {
		gl.DrawElements(gl.TRIANGLES, m.count, gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(gl.TRIANGLES, 0, m.count)
	}
	gl.BindVertexArray(0)
}

// Err drains the GL error queue. Out-of-memory is fatal and sticky; other
// errors are logged once per code.
func (d *Device) Err() error {
	if d.err != nil {
		return d.err
	}
	for code := gl.GetError(); code != gl.NO_ERROR; code = gl.GetError() {
		if code == gl.OUT_OF_MEMORY {
			d.err = fmt.Errorf("opengl: out of memory: %w", gpu.ErrContextLost)
			return d.err
		}
		if !d.warned[code] {
			d.warned[code] = true
			d.log.Warn("gl error", "code", fmt.Sprintf("0x%x", code))
		}
	}
	return nil
}
