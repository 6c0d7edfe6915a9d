package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"

	"ridereel/internal/records"
)

var (
	dialFill   = color.RGBA{255, 255, 255, 160}
	gaugeValue = color.RGBA{0xF3, 0x6C, 0x25, 255}
	gaugeRed   = color.RGBA{220, 40, 40, 255}
	gaugeInk   = color.RGBA{0, 0, 0, 255}
)

// Gauge maxima keys.
const (
	GaugeSpeed     = "speed"
	GaugeCadence   = "cadence"
	GaugeHeartRate = "hr"
	GaugeElevation = "elevation"
	GaugeGradient  = "gradient"
)

// heartRateFloor is the dial minimum for heart rate.
const heartRateFloor = 80.0

type gauge struct {
	key, title, unit string
	value            *float64
	min, max         float64
	twoSided         bool
}

// Gauges draws a strip of dials for every telemetry value present on f. It
// returns nil when f carries none.
func Gauges(f *records.Frame, maxima map[string]float64, size int) (*image.RGBA, error) {
	limit := func(key string, fallback float64) float64 {
		if v := maxima[key]; v > 0 {
			return v
		}
		return fallback
	}
	grad := limit(GaugeGradient, 10)
	all := []gauge{
		{GaugeHeartRate, "HEART RATE", "bpm", f.HeartRate, heartRateFloor, limit(GaugeHeartRate, 180), false},
		{GaugeCadence, "CADENCE", "rpm", f.Cadence, 0, limit(GaugeCadence, 120), false},
		{GaugeSpeed, "SPEED", "km/h", f.SpeedKMH, 0, limit(GaugeSpeed, 80), false},
		{GaugeElevation, "ELEVATION", "m", f.Elevation, 0, limit(GaugeElevation, 5000), false},
		{GaugeGradient, "GRADIENT", "%", f.GradientPct, -grad, grad, true},
	}
	var present []gauge
	for _, g := range all {
		if g.value != nil && !math.IsNaN(*g.value) {
			present = append(present, g)
		}
	}
	if len(present) == 0 || size <= 0 {
		return nil, nil
	}

	scale := float64(size) / 120
	title, err := newFace(math.Max(8, 9*scale), false)
	if err != nil {
		return nil, err
	}
	defer title.Close()
	reading, err := newFace(math.Max(8, 20*scale), true)
	if err != nil {
		return nil, err
	}
	defer reading.Close()

	img := newCanvas(size*len(present), size)
	for i, g := range present {
		drawDial(img, g, i*size, size, title, reading)
	}
	return img, nil
}

func drawDial(img *image.RGBA, g gauge, x0, size int, titleFace, valueFace font.Face) {
	cx := float64(x0) + float64(size)/2
	cy := float64(size) / 2
	outer := float64(size)/2 - 6
	fillCircle(img, cx, cy, outer, dialFill)
	strokeArc(img, cx, cy, outer, outer+2, 0, 2*math.Pi, gaugeInk)

	start, end := math.Pi, 2*math.Pi
	inner := outer - 10
	strokeArc(img, cx, cy, inner, outer-2, start, end, track)

	frac := 0.0
	if g.max > g.min {
		frac = (*g.value - g.min) / (g.max - g.min)
	}
	frac = math.Min(math.Max(frac, 0), 1)
	arcColor := gaugeValue
	if frac > 0.9 || (g.twoSided && frac < 0.1) {
		arcColor = gaugeRed
	}
	if g.twoSided {
		mid := (start + end) / 2
		a := start + (end-start)*frac
		strokeArc(img, cx, cy, inner, outer-2, math.Min(mid, a), math.Max(mid, a), arcColor)
	} else {
		strokeArc(img, cx, cy, inner, outer-2, start, start+(end-start)*frac, arcColor)
	}

	needle := start + (end-start)*frac
	nx := cx + (inner-6)*math.Cos(needle)
	ny := cy + (inner-6)*math.Sin(needle)
	strokeLine(img, cx, cy, nx, ny, 3, gaugeInk)
	fillCircle(img, cx, cy, 5, gaugeInk)

	scale := float64(size) / 120
	drawText(img, valueFace, fmt.Sprintf("%d", int(math.Round(*g.value))), int(cx), int(cy+24*scale), 0, gaugeInk)
	drawText(img, titleFace, g.unit, int(cx), int(cy+36*scale), 0, gaugeInk)
	drawText(img, titleFace, g.title, int(cx), int(cy+48*scale), 0, gaugeInk)
}
