package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type column[T any] struct {
	name string
	get  func(*T) string
	set  func(*T, string) error
}

func stringCol[T any](name string, field func(*T) *string) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return *field(r) },
		set: func(r *T, v string) error {
			*field(r) = v
			return nil
		},
	}
}

func floatCol[T any](name string, prec int, field func(*T) *float64) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return formatFloat(*field(r), prec) },
		set: func(r *T, v string) error {
			if v == "" {
				*field(r) = 0
				return nil
			}
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(r) = parsed
			return nil
		},
	}
}

func optionalCol[T any](name string, prec int, field func(*T) **float64) column[T] {
	return column[T]{
		name: name,
		get: func(r *T) string {
			if p := *field(r); p != nil {
				return formatFloat(*p, prec)
			}
			return ""
		},
		set: func(r *T, v string) error {
			if v == "" {
				*field(r) = nil
				return nil
			}
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(r) = &parsed
			return nil
		},
	}
}

func intCol[T any](name string, field func(*T) *int) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return strconv.Itoa(*field(r)) },
		set: func(r *T, v string) error {
			if v == "" {
				*field(r) = 0
				return nil
			}
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(r) = parsed
			return nil
		},
	}
}

func int64Col[T any](name string, field func(*T) *int64) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return strconv.FormatInt(*field(r), 10) },
		set: func(r *T, v string) error {
			if v == "" {
				*field(r) = 0
				return nil
			}
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			*field(r) = parsed
			return nil
		},
	}
}

func boolCol[T any](name string, field func(*T) *bool) column[T] {
	return column[T]{
		name: name,
		get:  func(r *T) string { return strconv.FormatBool(*field(r)) },
		set: func(r *T, v string) error {
			if v == "" {
				*field(r) = false
				return nil
			}
			parsed, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				return err
			}
			*field(r) = parsed
			return nil
		},
	}
}

// derivedCol is written but ignored when read back.
func derivedCol[T any](name string, get func(*T) string) column[T] {
	return column[T]{name: name, get: get, set: func(*T, string) error { return nil }}
}

func formatFloat(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	if s == "-"+strconv.FormatFloat(0, 'f', prec, 64) {
		return s[1:]
	}
	return s
}

func formatISO(epoch float64) string {
	return EpochTime(epoch).Format("2006-01-02T15:04:05.000Z")
}

const (
	epochPrec = 3
	scorePrec = 4
	coordPrec = 6
	telemPrec = 1
	wholePrec = 0
)

var extractColumns = []column[Frame]{
	stringCol("index", func(f *Frame) *string { return &f.Index }),
	stringCol("camera", func(f *Frame) *string { return &f.Camera }),
	intCol("clip_num", func(f *Frame) *int { return &f.ClipNum }),
	stringCol("source", func(f *Frame) *string { return &f.Source }),
	stringCol("video_path", func(f *Frame) *string { return &f.VideoPath }),
	intCol("frame_number", func(f *Frame) *int { return &f.FrameNumber }),
	floatCol("abs_time_epoch", epochPrec, func(f *Frame) *float64 { return &f.AbsTimeEpoch }),
	derivedCol("abs_time_iso", func(f *Frame) string { return formatISO(f.AbsTimeEpoch) }),
	floatCol("session_ts_s", epochPrec, func(f *Frame) *float64 { return &f.SessionTS }),
	floatCol("clip_start_epoch", epochPrec, func(f *Frame) *float64 { return &f.ClipStartEpoch }),
	floatCol("duration_s", epochPrec, func(f *Frame) *float64 { return &f.ClipDuration }),
	floatCol("offset_applied_s", epochPrec, func(f *Frame) *float64 { return &f.OffsetApplied }),
	floatCol("fps", epochPrec, func(f *Frame) *float64 { return &f.FPS }),
}

var analysisColumns = append(append([]column[Frame](nil), extractColumns...),
	boolCol("gpx_missing", func(f *Frame) *bool { return &f.GPXMissing }),
	optionalCol("gpx_epoch", epochPrec, func(f *Frame) **float64 { return &f.GPXEpoch }),
	optionalCol("gpx_delta_s", epochPrec, func(f *Frame) **float64 { return &f.GPXDelta }),
	optionalCol("lat", coordPrec, func(f *Frame) **float64 { return &f.Lat }),
	optionalCol("lon", coordPrec, func(f *Frame) **float64 { return &f.Lon }),
	optionalCol("elevation", telemPrec, func(f *Frame) **float64 { return &f.Elevation }),
	optionalCol("speed_kmh", telemPrec, func(f *Frame) **float64 { return &f.SpeedKMH }),
	optionalCol("gradient_pct", telemPrec, func(f *Frame) **float64 { return &f.GradientPct }),
	optionalCol("hr_bpm", wholePrec, func(f *Frame) **float64 { return &f.HeartRate }),
	optionalCol("cadence_rpm", wholePrec, func(f *Frame) **float64 { return &f.Cadence }),
	floatCol("detect_score", scorePrec, func(f *Frame) *float64 { return &f.DetectScore }),
	intCol("num_detections", func(f *Frame) *int { return &f.NumDetections }),
	floatCol("bbox_area", telemPrec, func(f *Frame) *float64 { return &f.BBoxArea }),
	floatCol("scene_score", scorePrec, func(f *Frame) *float64 { return &f.SceneScore }),
	floatCol("segment_boost", scorePrec, func(f *Frame) *float64 { return &f.SegmentBoost }),
	stringCol("segment_name", func(f *Frame) *string { return &f.SegmentName }),
	intCol("segment_rank", func(f *Frame) *int { return &f.SegmentRank }),
	int64Col("moment_id", func(f *Frame) *int64 { return &f.MomentID }),
	stringCol("partner_index", func(f *Frame) *string { return &f.PartnerIndex }),
	stringCol("partner_camera", func(f *Frame) *string { return &f.PartnerCamera }),
	stringCol("partner_video_path", func(f *Frame) *string { return &f.PartnerVideoPath }),
	optionalCol("partner_delta_s", epochPrec, func(f *Frame) **float64 { return &f.PartnerDelta }),
	boolCol("bike_detected", func(f *Frame) *bool { return &f.BikeDetected }),
	boolCol("paired_ok", func(f *Frame) *bool { return &f.PairedOK }),
	floatCol("score_composite", scorePrec, func(f *Frame) *float64 { return &f.Composite }),
	floatCol("score_weighted", scorePrec, func(f *Frame) *float64 { return &f.Weighted }),
)

var selectionColumns = append(append([]column[Frame](nil), analysisColumns...),
	boolCol("recommended", func(f *Frame) *bool { return &f.Recommended }),
)

var trackColumns = []column[TrackPoint]{
	floatCol("gpx_epoch", epochPrec, func(p *TrackPoint) *float64 { return &p.Epoch }),
	{
		name: "gpx_time_utc",
		get: func(p *TrackPoint) string {
			if p.Time.IsZero() {
				return ""
			}
			return p.Time.UTC().Format(time.RFC3339)
		},
		set: func(p *TrackPoint, v string) error {
			if v == "" {
				p.Time = time.Time{}
				return nil
			}
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return err
			}
			p.Time = t.UTC()
			return nil
		},
	},
	floatCol("lat", coordPrec, func(p *TrackPoint) *float64 { return &p.Lat }),
	floatCol("lon", coordPrec, func(p *TrackPoint) *float64 { return &p.Lon }),
	optionalCol("elevation", telemPrec, func(p *TrackPoint) **float64 { return &p.Elevation }),
	optionalCol("hr_bpm", wholePrec, func(p *TrackPoint) **float64 { return &p.HeartRate }),
	optionalCol("cadence_rpm", wholePrec, func(p *TrackPoint) **float64 { return &p.Cadence }),
	optionalCol("speed_kmh", telemPrec, func(p *TrackPoint) **float64 { return &p.SpeedKMH }),
	optionalCol("gradient_pct", telemPrec, func(p *TrackPoint) **float64 { return &p.GradientPct }),
}

// Stage identifies which column set a frame record file carries.
type Stage int

const (
	StageExtract Stage = iota
	StageAnalysis
	StageSelection
)

func (s Stage) columns() []column[Frame] {
	switch s {
	case StageAnalysis:
		return analysisColumns
	case StageSelection:
		return selectionColumns
	default:
		return extractColumns
	}
}

func (s Stage) String() string {
	switch s {
	case StageAnalysis:
		return "analysis"
	case StageSelection:
		return "selection"
	default:
		return "extract"
	}
}

// Header returns the CSV header for the stage.
func (s Stage) Header() []string {
	return names(s.columns())
}

func names[T any](cols []column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

func columnError(row int, name string, err error) error {
	return fmt.Errorf("row %d column %s: %w", row, name, err)
}
