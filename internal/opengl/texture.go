package opengl

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.1-core/gl"

	"render-engine/gpu"
)

type texture struct {
	desc gpu.TextureDesc
}

func (t *texture) target() uint32 {
	if t.desc.Target == gpu.TextureCube {
		return gl.TEXTURE_CUBE_MAP
	}
	return gl.TEXTURE_2D
}

// glFormat returns the internal format plus a pixel format/type pair that is
// valid for allocating it without data.
func glFormat(f gpu.TextureFormat) (internal int32, format, xtype uint32) {
	switch f {
	case gpu.FormatRGB10A2:
		return gl.RGB10_A2, gl.RGBA, gl.UNSIGNED_INT_2_10_10_10_REV
	case gpu.FormatRGBA16F:
		return gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT
	case gpu.FormatRGBA32F:
		return gl.RGBA32F, gl.RGBA, gl.FLOAT
	case gpu.FormatDepth24Stencil8:
		return gl.DEPTH24_STENCIL8, gl.DEPTH_STENCIL, gl.UNSIGNED_INT_24_8
	case gpu.FormatDepth32F:
		return gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT
	}
	return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE
}

func glWrap(w gpu.WrapMode) int32 {
	switch w {
	case gpu.WrapRepeat:
		return gl.REPEAT
	case gpu.WrapClampToBorder:
		return gl.CLAMP_TO_BORDER
	}
	return gl.CLAMP_TO_EDGE
}

func (d *Device) NewTexture(desc gpu.TextureDesc) (gpu.TextureID, error) {
	if desc.Width <= 0 || (desc.Target == gpu.Texture2D && desc.Height <= 0) {
		return 0, fmt.Errorf("opengl: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	t := &texture{desc: desc}
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(t.target(), id)

	filter := int32(gl.NEAREST)
	if desc.Filter == gpu.FilterBilinear {
		filter = gl.LINEAR
	}
	gl.TexParameteri(t.target(), gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(t.target(), gl.TEXTURE_MAG_FILTER, filter)
	wrap := glWrap(desc.Wrap)
	gl.TexParameteri(t.target(), gl.TEXTURE_WRAP_S, wrap)
	gl.TexParameteri(t.target(), gl.TEXTURE_WRAP_T, wrap)
	if desc.Target == gpu.TextureCube {
		gl.TexParameteri(t.target(), gl.TEXTURE_WRAP_R, wrap)
	}
	if desc.Wrap == gpu.WrapClampToBorder {
		// Outside the shadow map counts as unoccluded.
		border := [4]float32{1, 1, 1, 1}
		gl.TexParameterfv(t.target(), gl.TEXTURE_BORDER_COLOR, &border[0])
	}
	if desc.DepthCompare {
		gl.TexParameteri(t.target(), gl.TEXTURE_COMPARE_MODE, gl.COMPARE_REF_TO_TEXTURE)
		gl.TexParameteri(t.target(), gl.TEXTURE_COMPARE_FUNC, gl.LEQUAL)
	}

	t.alloc(desc.Width, desc.Height, nil)
	gl.BindTexture(t.target(), 0)

	d.textures[gpu.TextureID(id)] = t
	return gpu.TextureID(id), nil
}

// alloc (re)specifies level 0 of the bound texture. rgba, when non-nil, is
// RGBA float data for a 2D texture.
func (t *texture) alloc(w, h int, rgba []float32) {
	internal, format, xtype := glFormat(t.desc.Format)
	t.desc.Width, t.desc.Height = w, h
	if t.desc.Target == gpu.TextureCube {
		t.desc.Height = w
		for face := range 6 {
			gl.TexImage2D(uint32(gl.TEXTURE_CUBE_MAP_POSITIVE_X+face), 0, internal,
				int32(w), int32(w), 0, format, xtype, nil)
		}
		return
	}
	if rgba != nil {
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(w), int32(h), 0, gl.RGBA, gl.FLOAT, gl.Ptr(rgba))
		return
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(w), int32(h), 0, format, xtype, nil)
}

func (d *Device) ResizeTexture(tex gpu.TextureID, width, height int) {
	t := d.textures[tex]
	if t == nil {
		return
	}
	gl.BindTexture(t.target(), uint32(tex))
	t.alloc(width, height, nil)
	gl.BindTexture(t.target(), 0)
}

// UploadTexture replaces level 0 of a colour texture. Bilinear textures get
// a mip chain.
func (d *Device) UploadTexture(tex gpu.TextureID, width, height int, rgba []float32) {
	t := d.textures[tex]
	if t == nil || t.desc.Target != gpu.Texture2D || t.desc.Format.IsDepth() {
		return
	}
	if len(rgba) < 4*width*height {
		d.log.Warn("texture upload too short", "texture", tex, "want", 4*width*height, "got", len(rgba))
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	t.alloc(width, height, rgba)
	if t.desc.Filter == gpu.FilterBilinear {
		gl.GenerateMipmap(gl.TEXTURE_2D)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

// ReadTexture reads level 0 back as RGBA floats. Depth textures come back
// with depth in every channel.
func (d *Device) ReadTexture(tex gpu.TextureID) (int, int, []float32) {
	t := d.textures[tex]
	if t == nil {
		return 0, 0, nil
	}
	w, h := t.desc.Width, t.desc.Height
	target := uint32(gl.TEXTURE_2D)
	if t.desc.Target == gpu.TextureCube {
		target = gl.TEXTURE_CUBE_MAP_POSITIVE_X
	}
	gl.BindTexture(t.target(), uint32(tex))
	defer gl.BindTexture(t.target(), 0)

	out := make([]float32, 4*w*h)
	if !t.desc.Format.IsDepth() {
		gl.GetTexImage(target, 0, gl.RGBA, gl.FLOAT, gl.Ptr(out))
		return w, h, out
	}
	depth := make([]float32, w*h)
	gl.GetTexImage(target, 0, gl.DEPTH_COMPONENT, gl.FLOAT, gl.Ptr(depth))
	for i, v := range depth {
		out[4*i], out[4*i+1], out[4*i+2], out[4*i+3] = v, v, v, 1
	}
	return w, h, out
}

func (d *Device) TextureSize(tex gpu.TextureID) (int, int) {
	t := d.textures[tex]
	if t == nil {
		return 0, 0
	}
	return t.desc.Width, t.desc.Height
}

func (d *Device) DeleteTexture(tex gpu.TextureID) {
	if _, ok := d.textures[tex]; !ok {
		return
	}
	id := uint32(tex)
	gl.DeleteTextures(1, &id)
	delete(d.textures, tex)
	for unit, bound := range d.units {
		if bound == tex {
			delete(d.units, unit)
		}
	}
}

// BindTexture binds tex to unit, or clears both the 2D and cube bindings of
// the unit when tex is 0.
func (d *Device) BindTexture(unit int, tex gpu.TextureID) {
	gl.ActiveTexture(uint32(gl.TEXTURE0 + unit))
	if tex == 0 {
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.BindTexture(gl.TEXTURE_CUBE_MAP, 0)
		delete(d.units, unit)
		return
	}
	t := d.textures[tex]
	if t == nil {
		return
	}
	gl.BindTexture(t.target(), uint32(tex))
	d.units[unit] = tex
}
