package main

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"render-engine/core"
	"render-engine/deferred"
	"render-engine/renderer"
	"render-engine/scene"
)

// dayPalette holds the sky and sun values for one key time of day.
type dayPalette struct {
	t            float32 // normalised time 0..1
	sky          core.Color
	sunColor     core.Color
	sunIntensity float32
	exposure     float32
}

// palettes are ordered by t and wrap (0 == 1).
var palettes = []dayPalette{
	{ // noon
		t:            0.00,
		sky:          core.Color{R: 0.58, G: 0.75, B: 0.95, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.98, B: 0.92, A: 1},
		sunIntensity: 3.0,
		exposure:     1.0,
	},
	{ // golden hour
		t:            0.22,
		sky:          core.Color{R: 0.90, G: 0.52, B: 0.18, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.65, B: 0.25, A: 1},
		sunIntensity: 2.0,
		exposure:     1.2,
	},
	{ // dusk
		t:            0.30,
		sky:          core.Color{R: 0.50, G: 0.22, B: 0.28, A: 1},
		sunColor:     core.Color{R: 0.70, G: 0.40, B: 0.55, A: 1},
		sunIntensity: 0.5,
		exposure:     1.6,
	},
	{ // midnight, moonlight
		t:            0.50,
		sky:          core.Color{R: 0.04, G: 0.04, B: 0.08, A: 1},
		sunColor:     core.Color{R: 0.40, G: 0.45, B: 0.65, A: 1},
		sunIntensity: 0.2,
		exposure:     2.0,
	},
	{ // pre-dawn
		t:            0.70,
		sky:          core.Color{R: 0.40, G: 0.18, B: 0.24, A: 1},
		sunColor:     core.Color{R: 0.75, G: 0.42, B: 0.60, A: 1},
		sunIntensity: 0.4,
		exposure:     1.6,
	},
	{ // sunrise
		t:            0.78,
		sky:          core.Color{R: 0.88, G: 0.45, B: 0.22, A: 1},
		sunColor:     core.Color{R: 1.00, G: 0.60, B: 0.28, A: 1},
		sunIntensity: 1.5,
		exposure:     1.2,
	},
}

// lampThreshold is the sun intensity below which street lamps switch on.
const lampThreshold = 0.8

// DayNight drives the animated day/night cycle.
type DayNight struct {
	Time   float32 // 0..1: 0=noon, 0.25=sunset, 0.5=midnight, 0.75=sunrise
	Speed  float32 // full-cycle duration in seconds
	Active bool    // auto-advance when true
}

func NewDayNight() *DayNight {
	return &DayNight{Speed: 120, Active: true}
}

func (dn *DayNight) Update(dt float32) {
	if !dn.Active || dn.Speed <= 0 {
		return
	}
	dn.Time += dt / dn.Speed
	dn.Time -= float32(math.Floor(float64(dn.Time)))
}

func lerpColor(a, b core.Color, t float32) core.Color {
	return core.Color{
		R: a.R + (b.R-a.R)*t,
		G: a.G + (b.G-a.G)*t,
		B: a.B + (b.B-a.B)*t,
		A: 1,
	}
}

// samplePalette interpolates the two keys around t, wrapping from the last
// key back to noon.
func samplePalette(t float32) dayPalette {
	n := len(palettes)
	a, b := palettes[n-1], palettes[0]
	span := 1 - a.t + b.t
	local := t - a.t
	if local < 0 {
		local += 1
	}
	for i := range n - 1 {
		if t >= palettes[i].t && t < palettes[i+1].t {
			a, b = palettes[i], palettes[i+1]
			span = b.t - a.t
			local = t - a.t
			break
		}
	}
	f := local / span
	return dayPalette{
		t:            t,
		sky:          lerpColor(a.sky, b.sky, f),
		sunColor:     lerpColor(a.sunColor, b.sunColor, f),
		sunIntensity: a.sunIntensity + (b.sunIntensity-a.sunIntensity)*f,
		exposure:     a.exposure + (b.exposure-a.exposure)*f,
	}
}

// sunDirection is a full rotation in the XY plane tilted along Z; straight
// down at noon.
func sunDirection(t float32) mgl32.Vec3 {
	angle := float64(t) * 2 * math.Pi
	return mgl32.Vec3{
		float32(math.Sin(angle)),
		-float32(math.Cos(angle)),
		0.35,
	}.Normalize()
}

// Apply pushes the current time's sky and light state to the engine. It
// reports whether the street lamps should be lit.
func (dn *DayNight) Apply(re *renderer.RenderEngine, sunNode *scene.Node, sun *deferred.Light) bool {
	p := samplePalette(dn.Time)

	if sunNode != nil && sun != nil {
		pos := sunNode.WorldPosition()
		sunNode.LookAt(pos.Add(sunDirection(dn.Time)), mgl32.Vec3{0, 1, 0})
		sun.Color = p.sunColor
		sun.Intensity = p.sunIntensity
		// Below the horizon the sun only casts moonlight, no shadows.
		sun.CastShadows = sunDirection(dn.Time).Y() < -0.1
	}
	re.Background = p.sky
	if tm := re.Tonemap(); tm != nil {
		tm.Exposure = p.exposure
	}
	return p.sunIntensity < lampThreshold
}

// TimeOfDayStr returns a human-readable time label.
func (dn *DayNight) TimeOfDayStr() string {
	// Time 0 is noon.
	hours := math.Mod(float64(dn.Time)*24+12, 24)
	h := int(hours)
	m := int((hours - float64(h)) * 60)
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	displayH := h % 12
	if displayH == 0 {
		displayH = 12
	}
	return fmt.Sprintf("%02d:%02d %s", displayH, m, period)
}
