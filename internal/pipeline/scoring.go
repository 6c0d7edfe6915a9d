package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"ridereel/internal/analyze"
	"ridereel/internal/logging"
	"ridereel/internal/moments"
	"ridereel/internal/records"
	"ridereel/internal/runstate"
	"ridereel/internal/scoring"
	"ridereel/internal/selection"
	"ridereel/internal/services"
)

func readFrames(path, stage string) ([]records.Frame, error) {
	frames, err := records.ReadFrames(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stage, "read frames", filepath.Base(path), err)
	}
	return frames, nil
}

func runAnalyze(ctx context.Context, env *Env) (runstate.Outcome, error) {
	frames, err := readFrames(env.Layout.Extract(), Analyze)
	if err != nil {
		return runstate.Outcome{}, err
	}
	timeline, err := env.timeline()
	if err != nil {
		return runstate.Outcome{}, err
	}

	cfg := env.Config
	sizes := env.Sizes
	sizes.FFmpeg = env.footageWorkers()
	analyzer := analyze.New(env.Registry, env.Media, env.Detector,
		analyze.NewScorer(cfg.Detection.Classes, cfg.Detection.ClassWeights, cfg.Detection.MinConfidence),
		analyze.Options{
			SampleInterval:   cfg.Sampling.IntervalSeconds,
			SceneWindow:      cfg.Scoring.SceneWindowSeconds,
			ThumbnailSize:    cfg.Sampling.ThumbnailSize,
			GPSTolerance:     cfg.GPS.MatchToleranceSeconds,
			PartnerTolerance: cfg.Pairing.PartnerToleranceSeconds,
			BatchSize:        cfg.Detection.BatchSize,
			ImageSize:        cfg.Detection.ImageSize,
			FramesDir:        env.Layout.Frames,
			ScratchDir:       env.Layout.Scratch,
			Workers:          sizes,
			Progress:         env.Progress,
		},
		env.Logger,
	)
	summary, err := analyzer.Run(ctx, frames, timeline, env.efforts())
	if err != nil {
		return runstate.Outcome{}, err
	}

	stats := scoring.NewCalculator(scoring.WeightsFrom(cfg.Scoring), env.Registry, env.Logger).Apply(frames)
	records.SortChronological(frames)
	if err := records.WriteFrames(env.Layout.Enriched(), records.StageAnalysis, frames); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write scored frames: %w", err)
	}
	env.Logger.Info("frames scored",
		logging.Int("frames", stats.Frames),
		logging.Float64("weighted_avg", stats.WeightedAvg),
		logging.Float64("weighted_max", stats.WeightedMax),
		logging.Bool("detector", summary.DetectorAvailable),
	)
	return runstate.Outcome{
		Items:   len(frames),
		Skipped: summary.DetectFailures,
		Detail: fmt.Sprintf("gps %d, detected %d, paired %d, max %.3f",
			summary.GPSMatched, summary.Detected, summary.Paired, stats.WeightedMax),
	}, nil
}

func runSelect(_ context.Context, env *Env) (runstate.Outcome, error) {
	frames, err := readFrames(env.Layout.Enriched(), Select)
	if err != nil {
		return runstate.Outcome{}, err
	}
	records.SortChronological(frames)

	ms := moments.Pair(frames, env.Registry, env.Config.Sampling.IntervalSeconds)
	paired, single := moments.Count(ms)
	result := selection.New(selection.OptionsFrom(env.Config), env.Logger).Select(ms)
	selection.Mark(frames, result)
	pool := selection.PoolFrames(result)
	if err := records.WriteFrames(env.Layout.Select(), records.StageSelection, pool); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write selected moments: %w", err)
	}
	if result.Recommended == 0 {
		logging.WarnWithContext(env.Logger, "no moments recommended", "selection_empty",
			logging.Int("moments", len(ms)),
			logging.Int("valid", result.Valid),
			logging.String(logging.FieldErrorHint, "relax [selection] min_detect_score or require_gps"),
			logging.String(logging.FieldImpact, "build has nothing to render"),
		)
	}
	env.Logger.Info("moments selected",
		logging.Int("moments", len(ms)),
		logging.Int("paired", paired),
		logging.Int("single_camera", single),
		logging.Int("pool", len(result.Pool)),
		logging.Int("recommended", result.Recommended),
	)
	return runstate.Outcome{
		Items:  result.Recommended,
		Detail: fmt.Sprintf("%d recommended of %d valid (pool %d, target %d)", result.Recommended, result.Valid, len(result.Pool), result.Target),
	}, nil
}
