package gpu

import (
	"fmt"
	"slices"
	"strings"

	"render-engine/core"
)

// Aspect is a set of independently saved pieces of pipeline state.
type Aspect uint8

const (
	AspectFramebuffer Aspect = 1 << iota
	AspectProgram
	AspectViewport
	AspectBlend
	AspectDepth
	AspectDrawBuffers

	AspectAll = AspectFramebuffer | AspectProgram | AspectViewport |
		AspectBlend | AspectDepth | AspectDrawBuffers
)

var aspectNames = []struct {
	a    Aspect
	name string
}{
	{AspectFramebuffer, "framebuffer"},
	{AspectProgram, "program"},
	{AspectViewport, "viewport"},
	{AspectBlend, "blend"},
	{AspectDepth, "depth"},
	{AspectDrawBuffers, "drawbuffers"},
}

func (a Aspect) String() string {
	var parts []string
	for _, n := range aspectNames {
		if a&n.a != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

type drawBufferSnapshot struct {
	fb   FramebufferID
	atts []Attachment
}

// StateStack saves and restores pipeline state around a pass. Each aspect is
// its own stack: pushing AspectFramebuffer does not save the viewport.
//
// Pass code pairs every Push with a Pop on all exit paths, normally through
//
//	defer stack.Scope(gpu.AspectFramebuffer | gpu.AspectViewport)()
type StateStack struct {
	dev    Device
	strict bool

	framebuffers []FramebufferID
	programs     []ProgramID
	viewports    []ViewportState
	blends       []BlendState
	depths       []DepthState
	drawBuffers  []drawBufferSnapshot
}

// StackOption configures a StateStack.
type StackOption func(*StateStack)

// WithStrict selects what an unbalanced Pop does: panic when strict (the
// default), log a warning and do nothing otherwise.
func WithStrict(strict bool) StackOption {
	return func(s *StateStack) { s.strict = strict }
}

func NewStateStack(dev Device, opts ...StackOption) *StateStack {
	s := &StateStack{dev: dev, strict: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Device returns the device whose state the stack manages.
func (s *StateStack) Device() Device { return s.dev }

// Push snapshots the current value of every aspect in a.
func (s *StateStack) Push(a Aspect) {
	if a&AspectFramebuffer != 0 {
		s.framebuffers = append(s.framebuffers, s.dev.Framebuffer())
	}
	if a&AspectProgram != 0 {
		s.programs = append(s.programs, s.dev.Program())
	}
	if a&AspectViewport != 0 {
		s.viewports = append(s.viewports, s.dev.Viewport())
	}
	if a&AspectBlend != 0 {
		s.blends = append(s.blends, s.dev.Blend())
	}
	if a&AspectDepth != 0 {
		s.depths = append(s.depths, s.dev.Depth())
	}
	if a&AspectDrawBuffers != 0 {
		s.drawBuffers = append(s.drawBuffers, drawBufferSnapshot{
			fb:   s.dev.Framebuffer(),
			atts: slices.Clone(s.dev.DrawBuffers()),
		})
	}
}

// Pop restores the most recent snapshot of every aspect in a and discards it.
// The framebuffer is restored before the draw buffers so that the draw-buffer
// set lands on the framebuffer it was captured from.
func (s *StateStack) Pop(a Aspect) {
	if a&AspectFramebuffer != 0 {
		if fb, ok := pop(s, &s.framebuffers, AspectFramebuffer); ok {
			s.dev.BindFramebuffer(fb)
		}
	}
	if a&AspectDrawBuffers != 0 {
		if snap, ok := pop(s, &s.drawBuffers, AspectDrawBuffers); ok {
			cur := s.dev.Framebuffer()
			if cur != snap.fb {
				s.dev.BindFramebuffer(snap.fb)
			}
			s.dev.SetDrawBuffers(snap.atts)
			if cur != snap.fb {
				s.dev.BindFramebuffer(cur)
			}
		}
	}
	if a&AspectProgram != 0 {
		if p, ok := pop(s, &s.programs, AspectProgram); ok {
			s.dev.UseProgram(p)
		}
	}
	if a&AspectViewport != 0 {
		if vp, ok := pop(s, &s.viewports, AspectViewport); ok {
			s.dev.SetViewport(vp)
		}
	}
	if a&AspectBlend != 0 {
		if b, ok := pop(s, &s.blends, AspectBlend); ok {
			s.dev.SetBlend(b)
		}
	}
	if a&AspectDepth != 0 {
		if d, ok := pop(s, &s.depths, AspectDepth); ok {
			s.dev.SetDepth(d)
		}
	}
}

// Scope pushes a and returns the function that pops it.
func (s *StateStack) Scope(a Aspect) (restore func()) {
	s.Push(a)
	return func() { s.Pop(a) }
}

// Len returns the depth of a single aspect's stack.
func (s *StateStack) Len(a Aspect) int {
	switch a {
	case AspectFramebuffer:
		return len(s.framebuffers)
	case AspectProgram:
		return len(s.programs)
	case AspectViewport:
		return len(s.viewports)
	case AspectBlend:
		return len(s.blends)
	case AspectDepth:
		return len(s.depths)
	case AspectDrawBuffers:
		return len(s.drawBuffers)
	}
	return 0
}

// Balanced reports whether every stack is empty, i.e. all pushes were popped.
func (s *StateStack) Balanced() bool {
	for _, n := range aspectNames {
		if s.Len(n.a) != 0 {
			return false
		}
	}
	return true
}

func pop[T any](s *StateStack, stack *[]T, a Aspect) (T, bool) {
	var zero T
	n := len(*stack)
	if n == 0 {
		if s.strict {
			panic(fmt.Sprintf("gpu: pop of empty %s stack", a))
		}
		core.Logger().Warn("gpu: pop of empty state stack ignored", "aspect", a.String())
		return zero, false
	}
	v := (*stack)[n-1]
	*stack = (*stack)[:n-1]
	return v, true
}
