package gpx

import (
	"math"

	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"ridereel/internal/records"
)

const (
	resampleStepS  = 1.0
	defaultMaxGrad = 25.0
)

// FlattenOptions tunes resampling.
type FlattenOptions struct {
	// TimeOffsetSeconds is added to every GPS timestamp.
	TimeOffsetSeconds float64
	// MaxGradientPct clamps |gradient|; zero uses 25.
	MaxGradientPct float64
}

// Flatten resamples points onto a 1 Hz grid from the first to the last
// timestamp, taking the nearest trackpoint at each step, then derives speed
// and gradient from consecutive rows.
func Flatten(points []Point, opts FlattenOptions) []records.TrackPoint {
	if len(points) == 0 {
		return nil
	}
	maxGrad := opts.MaxGradientPct
	if maxGrad <= 0 {
		maxGrad = defaultMaxGrad
	}

	start := records.TimeEpoch(points[0].Time)
	end := records.TimeEpoch(points[len(points)-1].Time)
	rows := make([]records.TrackPoint, 0, int(end-start)+1)
	gi := 0
	for t := start; t <= end; t += resampleStepS {
		for gi+1 < len(points) && records.TimeEpoch(points[gi+1].Time) <= t {
			gi++
		}
		best := points[gi]
		if gi+1 < len(points) {
			next := points[gi+1]
			if math.Abs(records.TimeEpoch(next.Time)-t) < math.Abs(records.TimeEpoch(best.Time)-t) {
				best = next
			}
		}
		rows = append(rows, records.TrackPoint{
			Epoch:     records.TimeEpoch(best.Time) + opts.TimeOffsetSeconds,
			Time:      best.Time,
			Lat:       best.Lat,
			Lon:       best.Lon,
			Elevation: best.Elevation,
			HeartRate: best.HeartRate,
			Cadence:   best.Cadence,
		})
	}

	for i := 1; i < len(rows); i++ {
		prev, cur := &rows[i-1], &rows[i]
		dt := cur.Epoch - prev.Epoch
		if dt <= 0 {
			continue
		}
		dist := gpxgo.HaversineDistance(prev.Lat, prev.Lon, cur.Lat, cur.Lon)
		cur.SpeedKMH = records.Float(dist / dt * 3.6)
		if cur.Elevation != nil && prev.Elevation != nil && dist > 0 {
			grad := (*cur.Elevation - *prev.Elevation) / dist * 100
			cur.GradientPct = records.Float(math.Max(-maxGrad, math.Min(maxGrad, grad)))
		}
	}
	return rows
}
