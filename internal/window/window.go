// Package window opens a GLFW window with an OpenGL 4.1 core context.
package window

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GLFW and the GL context must stay on the main thread.
	runtime.LockOSThread()
}

type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string

	resized func(w, h int)
}

type Config struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	VSync      bool
	Fullscreen bool
}

func DefaultConfig() Config {
	return Config{
		Width:     1280,
		Height:    720,
		Title:     "Render Engine",
		Resizable: true,
		VSync:     true,
	}
}

// New creates the window and makes its context current on the calling
// thread.
func New(config Config) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	var monitor *glfw.Monitor
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	handle.MakeContextCurrent()
	if config.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	w := &Window{
		Handle: handle,
		Width:  config.Width,
		Height: config.Height,
		Title:  config.Title,
	}
	handle.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		w.Width = width
		w.Height = height
	})
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if w.resized != nil {
			w.resized(width, height)
		}
	})
	return w, nil
}

// OnFramebufferResize registers fn to run when the drawable size changes.
func (w *Window) OnFramebufferResize(fn func(width, height int)) {
	w.resized = fn
}

func (w *Window) ShouldClose() bool { return w.Handle.ShouldClose() }

func (w *Window) Close() { w.Handle.SetShouldClose(true) }

func (w *Window) PollEvents() { glfw.PollEvents() }

func (w *Window) SwapBuffers() { w.Handle.SwapBuffers() }

// FramebufferSize is the drawable size in pixels, which differs from the
// window size on high-DPI displays.
func (w *Window) FramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

func (w *Window) IsKeyPressed(key int) bool {
	return w.Handle.GetKey(glfw.Key(key)) == glfw.Press
}

func (w *Window) IsMouseButtonPressed(button int) bool {
	return w.Handle.GetMouseButton(glfw.MouseButton(button)) == glfw.Press
}

func (w *Window) CursorPos() (float64, float64) {
	return w.Handle.GetCursorPos()
}

// ScrollCallback is the type for scroll event handlers
type ScrollCallback func(xoff, yoff float64)

func (w *Window) SetScrollCallback(cb ScrollCallback) {
	w.Handle.SetScrollCallback(func(_ *glfw.Window, xoff, yoff float64) {
		cb(xoff, yoff)
	})
}

// KeyCallback receives key presses, not repeats or releases.
type KeyCallback func(key int)

func (w *Window) SetKeyCallback(cb KeyCallback) {
	w.Handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Press {
			cb(int(key))
		}
	})
}

// Time returns seconds since the window was created.
func Time() float64 { return glfw.GetTime() }

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

const (
	KeySpace  = int(glfw.KeySpace)
	Key1      = int(glfw.Key1)
	Key2      = int(glfw.Key2)
	Key3      = int(glfw.Key3)
	KeyA      = int(glfw.KeyA)
	KeyB      = int(glfw.KeyB)
	KeyD      = int(glfw.KeyD)
	KeyE      = int(glfw.KeyE)
	KeyL      = int(glfw.KeyL)
	KeyO      = int(glfw.KeyO)
	KeyQ      = int(glfw.KeyQ)
	KeyS      = int(glfw.KeyS)
	KeyT      = int(glfw.KeyT)
	KeyW      = int(glfw.KeyW)
	KeyEscape = int(glfw.KeyEscape)
	KeyMinus  = int(glfw.KeyMinus)
	KeyEqual  = int(glfw.KeyEqual)

	MouseButtonLeft  = int(glfw.MouseButtonLeft)
	MouseButtonRight = int(glfw.MouseButtonRight)
)
