// Package extract lays a global sampling grid over the ride and emits one
// frame record per camera clip per grid point it covers.
package extract

import (
	"fmt"
	"log/slog"
	"math"

	"ridereel/internal/camera"
	"ridereel/internal/footage"
	"ridereel/internal/logging"
	"ridereel/internal/records"
)

// Grid is the shared sampling timeline.
type Grid struct {
	Start    float64
	End      float64
	Interval float64
	// Origin is subtracted from grid points to give session time; it is the
	// GPS start when a track exists.
	Origin float64
}

// Points returns every grid instant in [Start, End].
func (g Grid) Points() []float64 {
	if g.Interval <= 0 || g.End < g.Start {
		return nil
	}
	n := int(math.Floor((g.End-g.Start)/g.Interval+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = g.Start + float64(i)*g.Interval
	}
	return out
}

// GridOptions describes how the grid is anchored.
type GridOptions struct {
	Interval  float64
	Extension float64
	// GPSStart and GPSEnd bound the flattened track. HasGPS false spans the
	// union of clip windows instead.
	GPSStart float64
	GPSEnd   float64
	HasGPS   bool
}

// BuildGrid anchors the grid to the GPS timeline, extended on both sides, or
// to the union of clip windows when no track is available.
func BuildGrid(clips []footage.Probed, registry *camera.Registry, opts GridOptions) (Grid, error) {
	if opts.Interval <= 0 {
		return Grid{}, fmt.Errorf("sampling interval must be > 0")
	}
	if opts.HasGPS {
		return Grid{
			Start:    opts.GPSStart - opts.Extension,
			End:      opts.GPSEnd + opts.Extension,
			Interval: opts.Interval,
			Origin:   opts.GPSStart,
		}, nil
	}
	if len(clips) == 0 {
		return Grid{}, fmt.Errorf("no clips to span")
	}
	start, end := math.Inf(1), math.Inf(-1)
	for _, clip := range clips {
		s := clip.Start - registry.Offset(clip.Camera)
		start = math.Min(start, s)
		end = math.Max(end, s+clip.Duration)
	}
	start = math.Floor(start)
	return Grid{Start: start, End: end, Interval: opts.Interval, Origin: start}, nil
}

// Frames samples every clip on the grid. A clip covers grid point g when
// clipStart <= g < clipStart+duration, where clipStart is the corrected start
// shifted back by the camera's alignment offset. Output is chronological.
func Frames(clips []footage.Probed, grid Grid, registry *camera.Registry, logger *slog.Logger) []records.Frame {
	logger = logging.NewComponentLogger(logger, "extract")
	points := grid.Points()
	var out []records.Frame
	for _, clip := range clips {
		offset := registry.Offset(clip.Camera)
		clipStart := round3(clip.Start - offset)
		clipEnd := clipStart + clip.Duration
		first := len(out)
		for _, g := range points {
			if g < clipStart || g >= clipEnd {
				continue
			}
			sec := g - clipStart
			out = append(out, records.Frame{
				Index:          frameIndex(clip, sec, grid.Interval),
				Camera:         clip.Camera,
				ClipNum:        clip.ClipNum,
				Source:         clip.Name,
				VideoPath:      clip.Path,
				FrameNumber:    int(sec * clip.FPS),
				AbsTimeEpoch:   round3(g),
				SessionTS:      round3(g - grid.Origin),
				ClipStartEpoch: clipStart,
				ClipDuration:   clip.Duration,
				OffsetApplied:  offset,
				FPS:            clip.FPS,
				MomentID:       int64(math.Floor(round3(g) / grid.Interval)),
			})
		}
		logger.Debug("clip sampled",
			logging.String(logging.FieldClip, clip.Name),
			logging.String(logging.FieldCamera, clip.Camera),
			logging.Int("frames", len(out)-first),
		)
		if len(out) == first {
			logger.Info("clip outside sampling window",
				logging.String(logging.FieldClip, clip.Name),
				logging.String(logging.FieldCamera, clip.Camera),
				logging.Float64("clip_start_epoch", clipStart),
			)
		}
	}
	records.SortChronological(out)
	return out
}

// frameIndex names a frame by its offset into the clip. Sub-second grids add
// a millisecond suffix so neighbouring samples never share a name.
func frameIndex(clip footage.Probed, sec, interval float64) string {
	ms := int64(math.Round(sec * 1000))
	if interval >= 1 {
		return fmt.Sprintf("%s_%s_%06d", clip.Camera, clip.ClipID, ms/1000)
	}
	return fmt.Sprintf("%s_%s_%06d_%03d", clip.Camera, clip.ClipID, ms/1000, ms%1000)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
