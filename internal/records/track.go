package records

import "time"

// TrackPoint is one row of the 1 Hz GPS timeline produced by the flatten stage.
type TrackPoint struct {
	Epoch       float64
	Time        time.Time
	Lat         float64
	Lon         float64
	Elevation   *float64
	HeartRate   *float64
	Cadence     *float64
	SpeedKMH    *float64
	GradientPct *float64
}
