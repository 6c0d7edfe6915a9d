package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"ridereel/internal/records"
)

var (
	profileFill = color.RGBA{0x4C, 0xAF, 0x50, 150}
	profileLine = color.RGBA{0x2E, 0x7D, 0x32, 255}
	profileDot  = color.RGBA{0xFF, 0xD7, 0x00, 255}
)

// elevationSample is one (epoch, metres) pair from the track.
type elevationSample struct {
	epoch, metres float64
}

// Elevation draws the ride's elevation profile across width×height with a
// marker at epoch. Height is raised to max(80, width/4). It returns nil when
// fewer than two points carry elevation.
func Elevation(points []records.TrackPoint, epoch float64, width, height int) (*image.RGBA, error) {
	samples := elevationSamples(points)
	if len(samples) < 2 || width <= 0 {
		return nil, nil
	}
	height = max(height, 80, width/4)

	lo, hi := samples[0].metres, samples[0].metres
	for _, s := range samples {
		lo, hi = math.Min(lo, s.metres), math.Max(hi, s.metres)
	}
	span := hi - lo
	if span == 0 {
		span = 100
	}
	yLo, yHi := lo-span*0.10, hi+span*0.15
	t0, t1 := samples[0].epoch, samples[len(samples)-1].epoch
	if t1 <= t0 {
		return nil, nil
	}
	px := func(t float64) float64 { return (t - t0) / (t1 - t0) * float64(width-1) }
	py := func(m float64) float64 { return float64(height-1) - (m-yLo)/(yHi-yLo)*float64(height-1) }

	img := newCanvas(width, height)
	fillRect(img, img.Bounds(), color.RGBA{0, 0, 0, 128})

	profile := make([]routePoint, len(samples))
	for i, smp := range samples {
		profile[i] = routePoint{px(smp.epoch), py(smp.metres)}
	}
	base := float64(height)
	area := append([]routePoint{{profile[0].x, base}}, profile...)
	area = append(area, routePoint{profile[len(profile)-1].x, base})
	fillPolygon(img, area, profileFill)
	strokePolyline(img, profile, 1.5, profileLine)

	at := math.Min(math.Max(epoch, t0), t1)
	mx, my := px(at), py(interpolate(samples, at))
	fillCircle(img, mx, my, 6, color.RGBA{0, 0, 0, 255})
	fillCircle(img, mx, my, 5, profileDot)

	face, err := newFace(11, true)
	if err != nil {
		return nil, err
	}
	defer face.Close()
	drawText(img, face, fmt.Sprintf("%dm", int(hi)), 6, 14, -1, white)
	drawText(img, face, fmt.Sprintf("%dm", int(lo)), 6, height-6, -1, white)
	return img, nil
}

func elevationSamples(points []records.TrackPoint) []elevationSample {
	out := make([]elevationSample, 0, len(points))
	for _, p := range points {
		if p.Elevation != nil && p.Epoch > 0 {
			out = append(out, elevationSample{epoch: p.Epoch, metres: *p.Elevation})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].epoch < out[j].epoch })
	return out
}

// interpolate returns the linear elevation at t, clamped to the ends.
func interpolate(samples []elevationSample, t float64) float64 {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].epoch >= t })
	switch {
	case i == 0:
		return samples[0].metres
	case i == len(samples):
		return samples[len(samples)-1].metres
	}
	a, b := samples[i-1], samples[i]
	if b.epoch == a.epoch {
		return b.metres
	}
	r := (t - a.epoch) / (b.epoch - a.epoch)
	return a.metres + r*(b.metres-a.metres)
}
