// Package scoring turns per-signal frame scores into composite and
// camera-weighted ranking scores.
package scoring

import (
	"log/slog"
	"math"
	"sort"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/records"
)

const (
	speedScale    = 60.0
	gradientScale = 8.0
	bboxScale     = 400_000.0
	sceneEpsilon  = 1e-6
	weightSlack   = 0.01
)

// Weights are the per-signal composite weights.
type Weights struct {
	Detect   float64
	Scene    float64
	Speed    float64
	Gradient float64
	BBox     float64
}

// WeightsFrom copies weights out of the scoring config.
func WeightsFrom(cfg config.Scoring) Weights {
	return Weights{
		Detect:   cfg.DetectWeight,
		Scene:    cfg.SceneWeight,
		Speed:    cfg.SpeedWeight,
		Gradient: cfg.GradientWeight,
		BBox:     cfg.BBoxWeight,
	}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Detect + w.Scene + w.Speed + w.Gradient + w.BBox
}

// Balanced reports whether the weights sum to 1 within a small slack.
func (w Weights) Balanced() bool {
	return math.Abs(w.Sum()-1) <= weightSlack
}

// Calculator applies weights and camera multipliers to frames.
type Calculator struct {
	weights  Weights
	registry *camera.Registry
	logger   *slog.Logger
}

// NewCalculator builds a Calculator. Unbalanced weights are logged, not rejected.
func NewCalculator(weights Weights, registry *camera.Registry, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if !weights.Balanced() {
		logging.WarnWithContext(logger, "score weights do not sum to 1.0", "score_weights_unbalanced",
			logging.Float64("sum", weights.Sum()),
			logging.String(logging.FieldErrorHint, "adjust [scoring] weights so they add up to 1.0"),
			logging.String(logging.FieldImpact, "composite scores are scaled but ranking still works"),
		)
	}
	return &Calculator{weights: weights, registry: registry, logger: logger}
}

// NormalizeScenes divides every scene score by the maximum observed and
// returns that maximum. Nothing changes when the scene weight is zero or the
// maximum is negligible.
func (c *Calculator) NormalizeScenes(frames []records.Frame) float64 {
	if len(frames) == 0 {
		return 0
	}
	peak := 0.0
	for i := range frames {
		peak = max(peak, frames[i].SceneScore)
	}
	if c.weights.Scene == 0 || peak <= sceneEpsilon {
		return peak
	}
	for i := range frames {
		frames[i].SceneScore /= peak
	}
	c.logSceneSpread(frames)
	return peak
}

func (c *Calculator) logSceneSpread(frames []records.Frame) {
	scores := make([]float64, len(frames))
	for i := range frames {
		scores[i] = frames[i].SceneScore
	}
	sort.Float64s(scores)
	c.logger.Info("scene scores normalized",
		logging.Float64("top", scores[len(scores)-1]),
		logging.Float64("median", scores[len(scores)/2]),
		logging.Float64("min", scores[0]),
	)
}

// Composite scores one frame. Scene score is expected to be normalized.
// Missing telemetry contributes nothing.
func (c *Calculator) Composite(f *records.Frame) float64 {
	w := c.weights
	speed := clamp(records.Value(f.SpeedKMH)/speedScale, 0, 1)
	gradient := math.Abs(records.Value(f.GradientPct)) / gradientScale
	bbox := f.BBoxArea / bboxScale
	return w.Detect*f.DetectScore +
		w.Scene*f.SceneScore +
		w.Speed*speed +
		w.Gradient*gradient +
		w.BBox*bbox +
		f.SegmentBoost
}

// Apply normalizes scene scores then fills Composite and Weighted on every frame.
func (c *Calculator) Apply(frames []records.Frame) Stats {
	c.NormalizeScenes(frames)
	for i := range frames {
		f := &frames[i]
		f.Composite = c.Composite(f)
		f.Weighted = f.Composite * c.registry.Weight(f.Camera)
	}
	return Summarize(frames)
}

// Stats summarizes composite and weighted scores.
type Stats struct {
	Frames       int
	CompositeAvg float64
	CompositeMax float64
	WeightedAvg  float64
	WeightedMax  float64
}

// Summarize computes Stats over frames.
func Summarize(frames []records.Frame) Stats {
	s := Stats{Frames: len(frames)}
	if len(frames) == 0 {
		return s
	}
	var composite, weighted float64
	for i := range frames {
		composite += frames[i].Composite
		weighted += frames[i].Weighted
		s.CompositeMax = max(s.CompositeMax, frames[i].Composite)
		s.WeightedMax = max(s.WeightedMax, frames[i].Weighted)
	}
	s.CompositeAvg = composite / float64(len(frames))
	s.WeightedAvg = weighted / float64(len(frames))
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
