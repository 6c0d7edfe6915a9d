package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"ridereel/internal/align"
	"ridereel/internal/extract"
	"ridereel/internal/gpx"
	"ridereel/internal/logging"
	"ridereel/internal/records"
	"ridereel/internal/runstate"
	"ridereel/internal/services"
)

func runFlatten(_ context.Context, env *Env) (runstate.Outcome, error) {
	path := env.Layout.GPX
	points, err := gpx.ParseFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logging.WarnWithContext(env.Logger, "no GPX track", "gps_unavailable",
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "export the ride as ride.gpx into the project directory"),
			logging.String(logging.FieldImpact, "alignment, telemetry overlays, and GPS filtering are disabled"),
		)
		points = nil
	case err != nil:
		logging.WarnWithContext(env.Logger, "GPX track unreadable", "gps_unavailable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-export the ride; the file is not valid GPX"),
			logging.String(logging.FieldImpact, "alignment, telemetry overlays, and GPS filtering are disabled"),
		)
		points = nil
	case len(points) == 0:
		logging.WarnWithContext(env.Logger, "GPX track has no timed points", "gps_unavailable",
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "export the ride with timestamps"),
			logging.String(logging.FieldImpact, "alignment, telemetry overlays, and GPS filtering are disabled"),
		)
	}

	rows := gpx.Flatten(points, gpx.FlattenOptions{
		TimeOffsetSeconds: env.Config.GPS.TimeOffsetSeconds,
		MaxGradientPct:    env.Config.GPS.MaxGradientPct,
	})
	if err := records.WriteTrack(env.Layout.Flatten(), rows); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write GPS timeline: %w", err)
	}
	timeline := gpx.NewTimeline(rows)
	env.Logger.Info("GPS timeline flattened",
		logging.Int("trackpoints", len(points)),
		logging.Int("rows", len(rows)),
		logging.Float64("distance_km", timeline.Distance()/1000),
	)
	return runstate.Outcome{
		Items:  len(rows),
		Detail: fmt.Sprintf("%d trackpoints, %.1f km", len(points), timeline.Distance()/1000),
	}, nil
}

func runAlign(ctx context.Context, env *Env) (runstate.Outcome, error) {
	probed, skipped, err := env.probed(ctx)
	if err != nil {
		return runstate.Outcome{}, err
	}
	track, err := env.track()
	if err != nil {
		return runstate.Outcome{}, err
	}
	var reference float64
	if len(track) > 0 {
		reference = track[0].Epoch
	}

	result := align.Compute(probed, reference, len(track) > 0, env.Config.Cameras.ManualOffsets, env.Registry, env.Logger)
	if err := align.Apply(result, env.Registry); err != nil {
		return runstate.Outcome{}, services.Wrap(services.ErrValidation, Align, "apply offsets", "", err)
	}
	if err := align.Save(env.Layout.Offsets(), result); err != nil {
		return runstate.Outcome{}, err
	}
	return runstate.Outcome{Items: len(result.Cameras), Skipped: skipped, Detail: formatOffsets(result)}, nil
}

func formatOffsets(result align.Result) string {
	offsets := result.Offsets()
	names := make([]string, 0, len(offsets))
	for name := range offsets {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.3fs", name, offsets[name])
	}
	return strings.Join(parts, " ")
}

func runExtract(ctx context.Context, env *Env) (runstate.Outcome, error) {
	if err := env.ensureOffsets(); err != nil {
		return runstate.Outcome{}, err
	}
	probed, skipped, err := env.probed(ctx)
	if err != nil {
		return runstate.Outcome{}, err
	}
	timeline, err := env.timeline()
	if err != nil {
		return runstate.Outcome{}, err
	}
	start, end, hasGPS := timeline.Bounds()
	grid, err := extract.BuildGrid(probed, env.Registry, extract.GridOptions{
		Interval:  env.Config.Sampling.IntervalSeconds,
		Extension: env.Config.Sampling.GridExtensionSeconds,
		GPSStart:  start,
		GPSEnd:    end,
		HasGPS:    hasGPS,
	})
	if err != nil {
		return runstate.Outcome{}, services.Wrap(services.ErrConfiguration, Extract, "build grid", "", err)
	}
	frames := extract.Frames(probed, grid, env.Registry, env.Logger)
	if err := records.WriteFrames(env.Layout.Extract(), records.StageExtract, frames); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write frame samples: %w", err)
	}
	env.Logger.Info("frames sampled",
		logging.Int("clips", len(probed)),
		logging.Int("frames", len(frames)),
		logging.Bool("gps_anchored", hasGPS),
		logging.Float64("interval_s", grid.Interval),
	)
	return runstate.Outcome{
		Items:   len(frames),
		Skipped: skipped,
		Detail:  fmt.Sprintf("%d clips, %d grid points", len(probed), len(grid.Points())),
	}, nil
}
