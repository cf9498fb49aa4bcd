// Command demo renders a small town square with the deferred pipeline: a
// sun on a day/night cycle, shadowed street lamps, a spot light and
// optional SSAO. A glTF or OBJ model can be dropped into the square with
// -model.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/gpu"
	"render-engine/internal/opengl"
	"render-engine/internal/window"
	"render-engine/renderer"
	"render-engine/scene"
)

type options struct {
	width, height int
	vsync         bool
	verbose       bool
	model         string
	seed          int64

	ssao          bool
	ssaoRadius    float64
	ssaoIntensity float64
	ssaoBlur      int
	ssaoSamples   int
	ssaoAxes      int
	separable     bool
	bilateral     bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.width, "width", 1280, "window width")
	flag.IntVar(&o.height, "height", 720, "window height")
	flag.BoolVar(&o.vsync, "vsync", true, "wait for vertical sync")
	flag.BoolVar(&o.verbose, "v", false, "debug logging")
	flag.StringVar(&o.model, "model", "", "glTF (.gltf/.glb) or .obj file to place in the square")
	flag.Int64Var(&o.seed, "seed", 42, "SSAO random seed")

	flag.BoolVar(&o.ssao, "ssao", true, "enable screen-space ambient occlusion")
	flag.Float64Var(&o.ssaoRadius, "ssao-radius", deferred.DefaultSSAORadius, "SSAO sample radius in world units")
	flag.Float64Var(&o.ssaoIntensity, "ssao-intensity", deferred.DefaultSSAOIntensity, "SSAO strength, 0..1")
	flag.IntVar(&o.ssaoBlur, "ssao-blur", 2, "SSAO blur radius in pixels, 0 disables the blur")
	flag.IntVar(&o.ssaoSamples, "ssao-samples", deferred.DefaultNumSamples, "SSAO samples per pixel")
	flag.IntVar(&o.ssaoAxes, "ssao-axes", deferred.DefaultNumAxes, "random rotation axes")
	flag.BoolVar(&o.separable, "ssao-separable", true, "split SSAO samples into horizontal and vertical sets")
	flag.BoolVar(&o.bilateral, "ssao-bilateral", true, "depth-aware SSAO blur")
	flag.Parse()
	return o
}

func (o options) ssaoConfig() *deferred.SSAOConfig {
	cfg := deferred.NewSSAOConfig()
	cfg.SetRadius(float32(o.ssaoRadius))
	cfg.SetIntensity(float32(o.ssaoIntensity))
	cfg.SetBlurRadius(o.ssaoBlur)
	cfg.SetNumSamples(o.ssaoSamples)
	cfg.SetNumAxes(o.ssaoAxes)
	cfg.SetSeparable(o.separable)
	cfg.SetBilateral(o.bilateral)
	return cfg
}

func main() {
	o := parseFlags()

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	core.SetLogger(logger)

	if err := run(o); err != nil {
		slog.Error("demo failed", "err", err)
		os.Exit(1)
	}
}

func run(o options) error {
	cfg := window.DefaultConfig()
	cfg.Title = "Render Engine - Deferred"
	cfg.Width, cfg.Height = o.width, o.height
	cfg.VSync = o.vsync
	win, err := window.New(cfg)
	if err != nil {
		return err
	}
	defer win.Destroy()

	fbw, fbh := win.FramebufferSize()
	dev, err := opengl.New(fbw, fbh)
	if err != nil {
		return err
	}
	defer dev.Release()

	opts := []renderer.Option{renderer.WithSeed(o.seed)}
	if o.ssao {
		opts = append(opts, renderer.WithSSAO(o.ssaoConfig()))
	}
	re, err := renderer.NewRenderEngine(dev, fbw, fbh, opts...)
	if err != nil {
		return err
	}
	defer re.Release()

	town := buildTown(re)
	if o.model != "" {
		if err := loadModel(town.scene, o.model); err != nil {
			slog.Warn("model not loaded", "path", o.model, "err", err)
		}
	}
	if err := town.scene.Upload(dev, re.GeometryProgram()); err != nil {
		slog.Warn("some scene resources failed to upload", "err", err)
	}
	defer town.scene.Release(dev)

	nodes, tris := town.scene.Stats()
	slog.Info("scene ready", "nodes", nodes, "triangles", tris, "lights", len(town.scene.Lights()))

	cam := scene.NewOrbitCamera(mgl32.Vec3{0, 1.5, 0}, 22, mgl32.DegToRad(60))
	cam.FarPlane = 300
	town.scene.SetCamera(&cam.Camera)
	ctl := newOrbitController(win, cam)

	win.OnFramebufferResize(re.Resize)

	dn := NewDayNight()
	win.SetKeyCallback(func(key int) {
		handleKey(key, win, re, dn)
	})

	var (
		hud       DebugOverlay
		fpsTimer  float64
		fpsFrames int
	)
	last := window.Time()
	for !win.ShouldClose() {
		now := window.Time()
		dt := float32(now - last)
		last = now

		ctl.update()
		dn.Update(dt)
		lampsOn := dn.Apply(re, town.sunNode, town.sun)
		for _, l := range town.lamps {
			l.Enabled = lampsOn
		}
		town.spin(dt)

		if err := re.RenderFrame(town.scene, &cam.Camera); err != nil {
			if errors.Is(err, gpu.ErrContextLost) {
				return err
			}
			slog.Error("frame dropped", "err", err)
		}
		win.SwapBuffers()
		win.PollEvents()

		fpsFrames++
		fpsTimer += float64(dt)
		if fpsTimer >= 1 {
			st := re.DrawStats()
			hud.Clear()
			hud.AddLine("%.0f fps", float64(fpsFrames)/fpsTimer)
			hud.AddLine("%s", dn.TimeOfDayStr())
			hud.AddLine("draws %d+%d", st.Renderables, st.Overlays)
			hud.AddLine("lights %d", st.Lights)
			if s := re.SSAO(); s != nil {
				hud.AddLine("ssao blur %d", s.Config().BlurRadius())
			}
			win.SetTitle(cfg.Title + " | " + hud.Text())
			fpsTimer, fpsFrames = 0, 0
		}
	}
	return nil
}

func handleKey(key int, win *window.Window, re *renderer.RenderEngine, dn *DayNight) {
	switch key {
	case window.KeyEscape:
		win.Close()
	case window.KeyT:
		dn.Active = !dn.Active
	case window.KeyEqual:
		dn.Time += 1.0 / 48
	case window.KeyMinus:
		dn.Time += 1 - 1.0/48
	case window.Key1, window.Key2, window.Key3:
		if s := re.SSAO(); s != nil {
			s.Config().SetBlurRadius(key - window.Key1)
		}
	case window.KeyB:
		if s := re.SSAO(); s != nil {
			s.Config().SetBilateral(!s.Config().Bilateral())
		}
	case window.KeyO:
		if s := re.SSAO(); s != nil {
			cfg := s.Config()
			if cfg.Intensity() > 0 {
				cfg.SetIntensity(0)
			} else {
				cfg.SetIntensity(deferred.DefaultSSAOIntensity)
			}
		}
	}
	dn.Time -= float32(math.Floor(float64(dn.Time)))
}

func loadModel(s *scene.Scene, path string) error {
	holder := scene.NewNode(filepath.Base(path))
	holder.SetPosition(mgl32.Vec3{0, 3.6, 0})

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		res, err := scene.LoadGLTF(path)
		if err != nil {
			return err
		}
		for _, n := range res.Roots {
			holder.AddChild(n)
		}
	case ".obj":
		meshes, err := scene.LoadOBJ(path)
		if err != nil {
			return err
		}
		for _, m := range meshes {
			n := scene.NewNode(m.Name)
			n.Geometry = m
			holder.AddChild(n)
		}
	default:
		return fmt.Errorf("unsupported model format %q", filepath.Ext(path))
	}
	s.AddNode(holder)
	return nil
}

// orbitController turns mouse drags and scrolling into orbit camera moves.
type orbitController struct {
	win        *window.Window
	cam        *scene.OrbitCamera
	lastX      float64
	lastY      float64
	dragging   bool
	lookSpeed  float32
	zoomFactor float32
}

func newOrbitController(win *window.Window, cam *scene.OrbitCamera) *orbitController {
	c := &orbitController{win: win, cam: cam, lookSpeed: 0.005, zoomFactor: 1.5}
	win.SetScrollCallback(func(_, yoff float64) {
		cam.Zoom(-float32(yoff) * c.zoomFactor)
	})
	return c
}

func (c *orbitController) update() {
	if !c.win.IsMouseButtonPressed(window.MouseButtonLeft) && !c.win.IsMouseButtonPressed(window.MouseButtonRight) {
		c.dragging = false
		return
	}
	x, y := c.win.CursorPos()
	if c.dragging {
		c.cam.Orbit(-float32(x-c.lastX)*c.lookSpeed, float32(y-c.lastY)*c.lookSpeed)
	}
	c.lastX, c.lastY = x, y
	c.dragging = true
}
