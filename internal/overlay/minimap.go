package overlay

import (
	"image"
	"image/color"
	"math"
	"sort"

	"ridereel/internal/records"
)

const (
	minimapPadding = 14
	routeWidth     = 3.0
	markerRadius   = 7.0
)

// routePoint is a track point projected onto the canvas.
type routePoint struct {
	x, y float64
}

// Minimap draws the whole route scaled into a size×size square with a marker
// at the point nearest epoch. It returns nil when fewer than two points carry
// coordinates.
func Minimap(points []records.TrackPoint, epoch float64, size int) *image.RGBA {
	if len(points) < 2 || size <= 2*minimapPadding {
		return nil
	}
	projected := project(points, size)
	if projected == nil {
		return nil
	}

	img := newCanvas(size, size)
	fillRoundedRect(img, img.Bounds(), 12, panel)
	strokePolyline(img, projected, routeWidth, routeGreen)
	m := projected[nearestIndex(points, epoch)]
	fillCircle(img, m.x, m.y, markerRadius+2, color.RGBA{0, 0, 0, 255})
	fillCircle(img, m.x, m.y, markerRadius, markerColor)
	return img
}

// project maps lat/lon onto canvas pixels with an equirectangular projection
// centred on the route, preserving aspect ratio.
func project(points []records.TrackPoint, size int) []routePoint {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		minLat, maxLat = math.Min(minLat, p.Lat), math.Max(maxLat, p.Lat)
		minLon, maxLon = math.Min(minLon, p.Lon), math.Max(maxLon, p.Lon)
	}
	if math.IsInf(minLat, 0) {
		return nil
	}
	scaleX := math.Cos((minLat + maxLat) / 2 * math.Pi / 180)
	spanX := (maxLon - minLon) * scaleX
	spanY := maxLat - minLat
	span := math.Max(spanX, spanY)
	if span <= 0 {
		span = 1e-9
	}
	inner := float64(size - 2*minimapPadding)
	scale := inner / span
	offX := float64(minimapPadding) + (inner-spanX*scale)/2
	offY := float64(minimapPadding) + (inner-spanY*scale)/2

	out := make([]routePoint, len(points))
	for i, p := range points {
		out[i] = routePoint{
			x: offX + (p.Lon-minLon)*scaleX*scale,
			y: offY + (maxLat-p.Lat)*scale,
		}
	}
	return out
}

// nearestIndex returns the index of the point whose epoch is closest to epoch.
// points must be sorted by epoch.
func nearestIndex(points []records.TrackPoint, epoch float64) int {
	i := sort.Search(len(points), func(i int) bool { return points[i].Epoch >= epoch })
	switch {
	case i == 0:
		return 0
	case i == len(points):
		return len(points) - 1
	case epoch-points[i-1].Epoch <= points[i].Epoch-epoch:
		return i - 1
	default:
		return i
	}
}
