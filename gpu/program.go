package gpu

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
)

// Program wraps a linked shader program with a uniform-location cache and
// per-sampler texture units.
//
// Setting a uniform the program does not declare is skipped and logged once
// per (program, uniform) pair; every Set method reports whether the value
// reached the program.
type Program struct {
	dev  Device
	id   ProgramID
	name string

	locations map[string]int32
	warned    map[string]bool
	units     map[string]int
}

// NewProgram compiles and links src. Link failures wrap ErrLinkFailed.
func NewProgram(dev Device, src ProgramSource) (*Program, error) {
	id, err := dev.NewProgram(src)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", src.Name, err)
	}
	return &Program{
		dev:       dev,
		id:        id,
		name:      src.Name,
		locations: make(map[string]int32),
		warned:    make(map[string]bool),
		units:     make(map[string]int),
	}, nil
}

func (p *Program) ID() ProgramID { return p.id }
func (p *Program) Name() string  { return p.name }

// Use binds the program. Scope the binding with AspectProgram.
func (p *Program) Use() { p.dev.UseProgram(p.id) }

// Has reports whether the program declares name. It never logs.
func (p *Program) Has(name string) bool {
	return p.lookup(name) >= 0
}

// Location returns the cached location of name, warning once if absent.
func (p *Program) Location(name string) int32 {
	loc := p.lookup(name)
	if loc < 0 && !p.warned[name] {
		p.warned[name] = true
		core.Logger().Warn("uniform not found", "program", p.name, "uniform", name)
	}
	return loc
}

func (p *Program) lookup(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := p.dev.UniformLocation(p.id, name)
	p.locations[name] = loc
	return loc
}

func (p *Program) SetInt(name string, v int32) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniform1i(p.id, loc, v)
	return true
}

func (p *Program) SetBool(name string, v bool) bool {
	var i int32
	if v {
		i = 1
	}
	return p.SetInt(name, i)
}

func (p *Program) SetFloat(name string, v float32) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniform1f(p.id, loc, v)
	return true
}

func (p *Program) SetVec2(name string, v mgl32.Vec2) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniform2f(p.id, loc, v)
	return true
}

func (p *Program) SetVec3(name string, v mgl32.Vec3) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniform3f(p.id, loc, v)
	return true
}

func (p *Program) SetVec4(name string, v mgl32.Vec4) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniform4f(p.id, loc, v)
	return true
}

func (p *Program) SetColor(name string, c core.Color) bool {
	return p.SetVec4(name, c.Vec4())
}

func (p *Program) SetFloats(name string, v []float32) bool {
	loc := p.Location(name)
	if loc < 0 || len(v) == 0 {
		return false
	}
	p.dev.ProgramUniform1fv(p.id, loc, v)
	return true
}

func (p *Program) SetVec3s(name string, v []mgl32.Vec3) bool {
	loc := p.Location(name)
	if loc < 0 || len(v) == 0 {
		return false
	}
	p.dev.ProgramUniform3fv(p.id, loc, v)
	return true
}

func (p *Program) SetMat4(name string, m mgl32.Mat4) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.dev.ProgramUniformMatrix4f(p.id, loc, m)
	return true
}

// SetTexture binds tex to the unit reserved for sampler name and points the
// sampler at it. Units are handed out in first-use order.
func (p *Program) SetTexture(name string, tex TextureID) bool {
	loc := p.Location(name)
	if loc < 0 {
		return false
	}
	p.bindSampler(name, loc, tex)
	return true
}

// SetTextureIfPresent is SetTexture without the missing-uniform warning, for
// bindings that are optional by contract.
func (p *Program) SetTextureIfPresent(name string, tex TextureID) bool {
	loc := p.lookup(name)
	if loc < 0 {
		return false
	}
	p.bindSampler(name, loc, tex)
	return true
}

func (p *Program) bindSampler(name string, loc int32, tex TextureID) {
	unit, ok := p.units[name]
	if !ok {
		unit = len(p.units)
		p.units[name] = unit
	}
	p.dev.BindTexture(unit, tex)
	p.dev.ProgramUniform1i(p.id, loc, int32(unit))
}

// Release deletes the program object.
func (p *Program) Release() {
	if p.id == 0 {
		return
	}
	p.dev.DeleteProgram(p.id)
	p.id = 0
}
