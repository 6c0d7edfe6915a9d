package records

import (
	"sort"
	"time"
)

// Frame is one sampled instant from one camera, enriched as it moves through
// the analyze and select stages.
type Frame struct {
	Index          string
	Camera         string
	ClipNum        int
	Source         string
	VideoPath      string
	FrameNumber    int
	AbsTimeEpoch   float64
	SessionTS      float64
	ClipStartEpoch float64
	ClipDuration   float64
	OffsetApplied  float64
	FPS            float64

	// Telemetry. Pointers are nil when the GPS match failed.
	GPXMissing  bool
	GPXEpoch    *float64
	GPXDelta    *float64
	Lat         *float64
	Lon         *float64
	Elevation   *float64
	SpeedKMH    *float64
	GradientPct *float64
	HeartRate   *float64
	Cadence     *float64

	DetectScore   float64
	NumDetections int
	BBoxArea      float64
	SceneScore    float64
	SegmentBoost  float64
	SegmentName   string
	SegmentRank   int

	MomentID         int64
	PartnerIndex     string
	PartnerCamera    string
	PartnerVideoPath string
	PartnerDelta     *float64
	BikeDetected     bool
	PairedOK         bool

	Composite float64
	Weighted  float64

	Recommended bool
}

// ClipEndEpoch is the epoch second at which the source clip stops.
func (f *Frame) ClipEndEpoch() float64 {
	return f.ClipStartEpoch + f.ClipDuration
}

// HasTelemetry reports whether a GPS point was matched to the frame.
func (f *Frame) HasTelemetry() bool {
	return !f.GPXMissing && f.Lat != nil && f.Lon != nil
}

// AbsTime returns AbsTimeEpoch as a UTC time.
func (f *Frame) AbsTime() time.Time {
	return EpochTime(f.AbsTimeEpoch)
}

// ClearTelemetry drops every GPS-derived field and marks the frame as unmatched.
func (f *Frame) ClearTelemetry() {
	f.GPXMissing = true
	f.GPXEpoch = nil
	f.GPXDelta = nil
	f.Lat = nil
	f.Lon = nil
	f.Elevation = nil
	f.SpeedKMH = nil
	f.GradientPct = nil
	f.HeartRate = nil
	f.Cadence = nil
}

// SortChronological orders frames by absolute time, then camera, then index.
func SortChronological(frames []Frame) {
	sort.SliceStable(frames, func(i, j int) bool {
		a, b := &frames[i], &frames[j]
		if a.AbsTimeEpoch != b.AbsTimeEpoch {
			return a.AbsTimeEpoch < b.AbsTimeEpoch
		}
		if a.Camera != b.Camera {
			return a.Camera < b.Camera
		}
		return a.Index < b.Index
	})
}

// Float returns a pointer to v, for populating optional telemetry.
func Float(v float64) *float64 {
	return &v
}

// Value dereferences p, returning 0 for nil.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// EpochTime converts fractional epoch seconds to a UTC time with millisecond precision.
func EpochTime(epoch float64) time.Time {
	ms := int64(epoch*1000 + 0.5)
	if epoch < 0 {
		ms = int64(epoch*1000 - 0.5)
	}
	return time.UnixMilli(ms).UTC()
}

// TimeEpoch converts t to fractional epoch seconds.
func TimeEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
