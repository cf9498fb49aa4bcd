package deferred

import (
	"render-engine/core"
	"render-engine/gpu"
)

// Tonemap maps the HDR Color attachment to display range in place:
// exposure, exponential Reinhard, then gamma.
type Tonemap struct {
	program  *gpu.Program
	Exposure float32
	Gamma    float32
}

func NewTonemap(dev gpu.Device) (*Tonemap, error) {
	p, err := LoadProgram(dev, ProgramTonemap)
	if err != nil {
		return nil, &PassError{Pass: "tonemap", Shader: ProgramTonemap, Err: err}
	}
	return &Tonemap{program: p, Exposure: 1, Gamma: 2.2}, nil
}

func (t *Tonemap) Render(ctx *FrameContext) error {
	t.program.SetFloat("B_Exposure", max(t.Exposure, 0))
	t.program.SetFloat("B_Gamma", max(t.Gamma, 0.01))
	ctx.GBuffer.ApplyPass(t.program, true, core.NDCRect)
	return checkDevice(ctx.Stack.Device(), "tonemap")
}

func (t *Tonemap) Release() { t.program.Release() }
