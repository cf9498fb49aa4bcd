package opengl

import (
	"fmt"
	"strings"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"render-engine/gpu"
)

func (d *Device) NewProgram(src gpu.ProgramSource) (gpu.ProgramID, error) {
	prog, err := newProgram(src.Vertex, src.Fragment)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", src.Name, gpu.ErrLinkFailed, err)
	}
	d.log.Debug("program linked", "name", src.Name, "id", prog)
	return gpu.ProgramID(prog), nil
}

func (d *Device) DeleteProgram(p gpu.ProgramID) {
	if p == 0 {
		return
	}
	gl.DeleteProgram(uint32(p))
	if d.prog == p {
		d.prog = 0
	}
}

func (d *Device) UniformLocation(p gpu.ProgramID, name string) int32 {
	return gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
}

func (d *Device) ProgramUniform1i(p gpu.ProgramID, loc int32, v int32) {
	gl.ProgramUniform1i(uint32(p), loc, v)
}

func (d *Device) ProgramUniform1f(p gpu.ProgramID, loc int32, v float32) {
	gl.ProgramUniform1f(uint32(p), loc, v)
}

func (d *Device) ProgramUniform2f(p gpu.ProgramID, loc int32, v mgl32.Vec2) {
	gl.ProgramUniform2f(uint32(p), loc, v[0], v[1])
}

func (d *Device) ProgramUniform3f(p gpu.ProgramID, loc int32, v mgl32.Vec3) {
	gl.ProgramUniform3f(uint32(p), loc, v[0], v[1], v[2])
}

func (d *Device) ProgramUniform4f(p gpu.ProgramID, loc int32, v mgl32.Vec4) {
	gl.ProgramUniform4f(uint32(p), loc, v[0], v[1], v[2], v[3])
}

func (d *Device) ProgramUniform1fv(p gpu.ProgramID, loc int32, v []float32) {
	if len(v) == 0 {
		return
	}
	gl.ProgramUniform1fv(uint32(p), loc, int32(len(v)), &v[0])
}

func (d *Device) ProgramUniform3fv(p gpu.ProgramID, loc int32, v []mgl32.Vec3) {
	if len(v) == 0 {
		return
	}
	gl.ProgramUniform3fv(uint32(p), loc, int32(len(v)), &v[0][0])
}

func (d *Device) ProgramUniformMatrix4f(p gpu.ProgramID, loc int32, m mgl32.Mat4) {
	gl.ProgramUniformMatrix4fv(uint32(p), loc, 1, false, &m[0])
}

func (d *Device) UseProgram(p gpu.ProgramID) {
	if d.prog == p {
		return
	}
	gl.UseProgram(uint32(p))
	d.prog = p
}

func (d *Device) Program() gpu.ProgramID { return d.prog }

// ── Shader helpers ────────────────────────────────────────────────────────────

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	defer gl.DeleteShader(vert)
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment: %w", err)
	}
	defer gl.DeleteShader(frag)

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %v", strings.TrimRight(log, "\x00"))
	}
	return prog, nil
}

// compileShader compiles src, which need not be NUL-terminated.
func compileShader(src string, shaderType uint32) (uint32, error) {
	if !strings.HasSuffix(src, "\x00") {
		src += "\x00"
	}
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %v", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}
