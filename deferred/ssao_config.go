package deferred

import "render-engine/core"

const (
	DefaultSSAORadius    = 1.0
	DefaultSSAOIntensity = 1.0
	DefaultBlurRadius    = 1
	DefaultNumSamples    = 16
	DefaultNumAxes       = 8

	// MaxSSAOSamples is the size of the offsets array in the occlusion shader.
	MaxSSAOSamples = 64
	// MaxBlurRadius bounds the blur kernel to 2*MaxBlurRadius+1 taps.
	MaxBlurRadius = 16
	MaxNumAxes    = 1024
)

// SSAOConfig holds the SSAO settings. Each setter bumps the version of the
// derived data it invalidates; SSAO rebuilds that data lazily when its
// cached version is stale.
type SSAOConfig struct {
	radius     float32
	intensity  float32
	blurRadius int
	separable  bool
	bilateral  bool
	numSamples int
	numAxes    int
	fbWidth    int
	fbHeight   int

	kernelVersion  uint64
	offsetsVersion uint64
	axesVersion    uint64
	sizeVersion    uint64
}

// NewSSAOConfig returns the default configuration: radius 1, intensity 1,
// blur radius 1, 16 separable samples, 8 random axes, bilateral blur on.
func NewSSAOConfig() *SSAOConfig {
	return &SSAOConfig{
		radius:         DefaultSSAORadius,
		intensity:      DefaultSSAOIntensity,
		blurRadius:     DefaultBlurRadius,
		separable:      true,
		bilateral:      true,
		numSamples:     DefaultNumSamples,
		numAxes:        DefaultNumAxes,
		fbWidth:        1,
		fbHeight:       1,
		kernelVersion:  1,
		offsetsVersion: 1,
		axesVersion:    1,
		sizeVersion:    1,
	}
}

// Clone returns an independent copy with the same versions.
func (c *SSAOConfig) Clone() *SSAOConfig {
	cp := *c
	return &cp
}

// Radius is the sampling radius in view-space units. A negative radius
// means unset and reads as DefaultSSAORadius.
func (c *SSAOConfig) Radius() float32 {
	if c.radius < 0 {
		return DefaultSSAORadius
	}
	return c.radius
}

func (c *SSAOConfig) SetRadius(r float32) { c.radius = r }

func (c *SSAOConfig) Intensity() float32 { return c.intensity }

func (c *SSAOConfig) SetIntensity(v float32) {
	if v < 0 {
		core.Logger().Debug("ssao: negative intensity clamped", "value", v)
		v = 0
	}
	c.intensity = v
}

func (c *SSAOConfig) BlurRadius() int { return c.blurRadius }

// SetBlurRadius sets the blur half-width in pixels, clamped to
// [0, MaxBlurRadius]. Zero disables the blur stages.
func (c *SSAOConfig) SetBlurRadius(r int) {
	if cl := clamp(r, 0, MaxBlurRadius); cl != r {
		core.Logger().Debug("ssao: blur radius clamped", "value", r, "clamped", cl)
		r = cl
	}
	if r != c.blurRadius {
		c.blurRadius = r
		c.kernelVersion++
	}
}

func (c *SSAOConfig) Separable() bool { return c.separable }

// SetSeparable switches between planar and full-hemisphere offsets.
func (c *SSAOConfig) SetSeparable(on bool) {
	if on != c.separable {
		c.separable = on
		c.offsetsVersion++
	}
}

func (c *SSAOConfig) Bilateral() bool      { return c.bilateral }
func (c *SSAOConfig) SetBilateral(on bool) { c.bilateral = on }

func (c *SSAOConfig) NumSamples() int { return c.numSamples }

// SetNumSamples sets the hemisphere sample count, clamped to [1, MaxSSAOSamples].
func (c *SSAOConfig) SetNumSamples(n int) {
	if cl := clamp(n, 1, MaxSSAOSamples); cl != n {
		core.Logger().Debug("ssao: sample count clamped", "value", n, "clamped", cl)
		n = cl
	}
	if n != c.numSamples {
		c.numSamples = n
		c.offsetsVersion++
	}
}

func (c *SSAOConfig) NumAxes() int { return c.numAxes }

// SetNumAxes sets the number of random rotation axes, clamped to [1, MaxNumAxes].
func (c *SSAOConfig) SetNumAxes(n int) {
	if cl := clamp(n, 1, MaxNumAxes); cl != n {
		core.Logger().Debug("ssao: axis count clamped", "value", n, "clamped", cl)
		n = cl
	}
	if n != c.numAxes {
		c.numAxes = n
		c.axesVersion++
	}
}

func (c *SSAOConfig) FBSize() (int, int) { return c.fbWidth, c.fbHeight }

// SetFBSize sets the occlusion framebuffer size.
func (c *SSAOConfig) SetFBSize(w, h int) {
	w, h = max(w, 1), max(h, 1)
	if w != c.fbWidth || h != c.fbHeight {
		c.fbWidth, c.fbHeight = w, h
		c.sizeVersion++
	}
}

// normalize brings a config that did not come from NewSSAOConfig into range
// and gives every derived product a non-zero version, so an SSAO that has
// built nothing yet sees it as stale.
func (c *SSAOConfig) normalize() {
	c.numSamples = clamp(c.numSamples, 1, MaxSSAOSamples)
	c.numAxes = clamp(c.numAxes, 1, MaxNumAxes)
	c.blurRadius = clamp(c.blurRadius, 0, MaxBlurRadius)
	for _, v := range []*uint64{&c.kernelVersion, &c.offsetsVersion, &c.axesVersion, &c.sizeVersion} {
		if *v == 0 {
			*v = 1
		}
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
