package gpx

import (
	"math"
	"sort"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"ridereel/internal/records"
)

// Timeline is a time-sorted telemetry series with nearest-point lookup.
type Timeline struct {
	points []records.TrackPoint
}

// NewTimeline sorts a copy of points by epoch.
func NewTimeline(points []records.TrackPoint) *Timeline {
	sorted := append([]records.TrackPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Epoch < sorted[j].Epoch })
	return &Timeline{points: sorted}
}

// Len returns the number of points.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Points returns the underlying sorted points. Callers must not modify them.
func (t *Timeline) Points() []records.TrackPoint {
	if t == nil {
		return nil
	}
	return t.points
}

// Bounds returns the first and last epoch. ok is false for an empty timeline.
func (t *Timeline) Bounds() (start, end float64, ok bool) {
	if t.Len() == 0 {
		return 0, 0, false
	}
	return t.points[0].Epoch, t.points[len(t.points)-1].Epoch, true
}

// Nearest returns the point closest to epoch when it lies within tolerance
// seconds. The left neighbour wins exact ties.
func (t *Timeline) Nearest(epoch, tolerance float64) (records.TrackPoint, float64, bool) {
	if t.Len() == 0 {
		return records.TrackPoint{}, 0, false
	}
	idx := sort.Search(len(t.points), func(i int) bool { return t.points[i].Epoch >= epoch })
	best := -1
	bestDelta := math.Inf(1)
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= len(t.points) {
			continue
		}
		if d := math.Abs(t.points[i].Epoch - epoch); d < bestDelta {
			best, bestDelta = i, d
		}
	}
	if best < 0 || bestDelta > tolerance {
		return records.TrackPoint{}, 0, false
	}
	return t.points[best], t.points[best].Epoch - epoch, true
}

// Distance returns the cumulative route length in metres.
func (t *Timeline) Distance() float64 {
	total := 0.0
	for i := 1; i < t.Len(); i++ {
		a, b := t.points[i-1], t.points[i]
		total += gpxgo.HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
	}
	return total
}

// Enrich copies the nearest telemetry onto f or marks it as missing.
func (t *Timeline) Enrich(f *records.Frame, tolerance float64) bool {
	p, delta, ok := t.Nearest(f.AbsTimeEpoch, tolerance)
	if !ok {
		f.ClearTelemetry()
		return false
	}
	f.GPXMissing = false
	f.GPXEpoch = records.Float(p.Epoch)
	f.GPXDelta = records.Float(delta)
	f.Lat = records.Float(p.Lat)
	f.Lon = records.Float(p.Lon)
	f.Elevation = p.Elevation
	f.SpeedKMH = p.SpeedKMH
	f.GradientPct = p.GradientPct
	f.HeartRate = p.HeartRate
	f.Cadence = p.Cadence
	return true
}
