// Package selection picks a bounded, temporally spaced set of highlight
// moments from the paired frame scores.
package selection

import (
	"log/slog"
	"math"
	"sort"

	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/moments"
	"ridereel/internal/records"
	"ridereel/internal/timemodel"
)

const (
	majorGapFactor = 0.5
	highGapFactor  = 0.75
	majorBoost     = 1.3
	highBoost      = 1.15
)

// Options control validity, pool sizing, and spacing.
type Options struct {
	TargetClips    int
	PoolMultiplier float64
	MinGapSeconds  float64
	ScenePriority  bool
	HighThreshold  float64
	MajorThreshold float64
	MinDetectScore float64
	RequireGPS     bool
	Interval       float64
}

// OptionsFrom reads selection settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		TargetClips:    cfg.TargetClips(),
		PoolMultiplier: cfg.Selection.PoolMultiplier,
		MinGapSeconds:  cfg.Selection.MinGapSeconds,
		ScenePriority:  cfg.Selection.ScenePriority,
		HighThreshold:  cfg.Selection.SceneHighThreshold,
		MajorThreshold: cfg.Selection.SceneMajorThreshold,
		MinDetectScore: cfg.Selection.MinDetectScore,
		RequireGPS:     cfg.Selection.RequireGPS,
		Interval:       cfg.Sampling.IntervalSeconds,
	}
}

// Candidate is one pooled moment with its ranking and spacing decision.
type Candidate struct {
	Moment  moments.Moment
	Primary *records.Frame
	// Rank is the weighted score after any scene re-rank.
	Rank         float64
	Scene        float64
	EffectiveGap float64
	Accepted     bool
}

// Time is the primary frame's absolute epoch.
func (c Candidate) Time() float64 {
	return c.Primary.AbsTimeEpoch
}

// Result is the chronological candidate pool.
type Result struct {
	Pool        []Candidate
	Valid       int
	Target      int
	Recommended int
}

// Selector applies Options to moments.
type Selector struct {
	opts   Options
	logger *slog.Logger
}

// New builds a Selector.
func New(opts Options, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{opts: opts, logger: logging.NewComponentLogger(logger, "selector")}
}

// Select ranks valid moments, pools the best, and accepts a spaced subset.
// The input order must be chronological; ties keep that order.
func (s *Selector) Select(ms []moments.Moment) Result {
	minDetect := s.opts.MinDetectScore
	if minDetect > 0 && !anyDetections(ms) {
		logging.WarnWithContext(s.logger, "no detection scores in input", "detection_floor_skipped",
			logging.Float64("min_detect_score", minDetect),
			logging.String(logging.FieldErrorHint, "configure [detection] command to enable the detect floor"),
			logging.String(logging.FieldImpact, "moments are not filtered by detection score"),
		)
		minDetect = 0
	}

	var pool []Candidate
	for _, m := range ms {
		best := m.Best()
		if best == nil || !s.valid(best, minDetect) {
			continue
		}
		pool = append(pool, Candidate{
			Moment:  m,
			Primary: best,
			Rank:    best.Weighted,
			Scene:   sceneMax(m),
		})
	}
	result := Result{Valid: len(pool), Target: s.opts.TargetClips}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Rank > pool[j].Rank })
	if s.opts.ScenePriority {
		for i := range pool {
			pool[i].Rank *= s.sceneBoost(pool[i].Scene)
		}
		sort.SliceStable(pool, func(i, j int) bool { return pool[i].Rank > pool[j].Rank })
	}

	if size := PoolSize(len(pool), s.opts.TargetClips, s.opts.PoolMultiplier); size < len(pool) {
		pool = pool[:size]
	}

	result.Recommended = s.spread(pool)

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Time() != pool[j].Time() {
			return pool[i].Time() < pool[j].Time()
		}
		return pool[i].Moment.ID < pool[j].Moment.ID
	})
	result.Pool = pool

	s.logger.Info("moments selected",
		logging.Int("moments", len(ms)),
		logging.Int("valid", result.Valid),
		logging.Int("pool", len(pool)),
		logging.Int("recommended", result.Recommended),
		logging.Int("target", result.Target),
	)
	return result
}

func (s *Selector) valid(f *records.Frame, minDetect float64) bool {
	if s.opts.RequireGPS && !f.HasTelemetry() {
		return false
	}
	if f.DetectScore < minDetect {
		return false
	}
	model, err := timemodel.FromFrame(f, s.opts.Interval)
	return err == nil && model.ValidForSeek()
}

func (s *Selector) sceneBoost(scene float64) float64 {
	switch {
	case scene > s.opts.MajorThreshold:
		return majorBoost
	case scene > s.opts.HighThreshold:
		return highBoost
	default:
		return 1
	}
}

// EffectiveGap shrinks the base gap for moments with strong scene change.
func (s *Selector) EffectiveGap(scene float64) float64 {
	base := s.opts.MinGapSeconds
	switch {
	case scene >= s.opts.MajorThreshold:
		return base * majorGapFactor
	case scene >= s.opts.HighThreshold:
		return base * highGapFactor
	default:
		return base
	}
}

// spread walks the ranked pool and accepts candidates whose gap window and
// its neighbours are unused. A candidate closer than the smaller of its own
// and an accepted candidate's gap is also rejected, so windows of different
// sizes cannot pack accepted moments too tightly.
func (s *Selector) spread(pool []Candidate) int {
	used := make(map[int64]bool)
	var accepted []int
	for i := range pool {
		if len(accepted) >= s.opts.TargetClips {
			break
		}
		c := &pool[i]
		c.EffectiveGap = s.EffectiveGap(c.Scene)
		width := math.Max(1, c.EffectiveGap)
		window := int64(math.Floor(c.Time() / width))
		if used[window] {
			continue
		}
		if s.tooClose(pool, accepted, c) {
			continue
		}
		c.Accepted = true
		accepted = append(accepted, i)
		for off := int64(-1); off <= 1; off++ {
			used[window+off] = true
		}
	}
	for i := range pool {
		if pool[i].EffectiveGap == 0 {
			pool[i].EffectiveGap = s.EffectiveGap(pool[i].Scene)
		}
	}
	return len(accepted)
}

func (s *Selector) tooClose(pool []Candidate, accepted []int, c *Candidate) bool {
	for _, k := range accepted {
		other := &pool[k]
		if math.Abs(other.Time()-c.Time()) < math.Min(other.EffectiveGap, c.EffectiveGap) {
			return true
		}
	}
	return false
}

// PoolSize is min(valid, floor(target × multiplier)).
func PoolSize(valid, target int, multiplier float64) int {
	if multiplier <= 0 {
		multiplier = 1
	}
	size := int(math.Floor(float64(target) * multiplier))
	return max(0, min(valid, size))
}

// Mark sets Recommended on every frame: true only for accepted primaries.
// frames must be the slice the moments point into.
func Mark(frames []records.Frame, result Result) {
	for i := range frames {
		frames[i].Recommended = false
	}
	for _, c := range result.Pool {
		if c.Accepted {
			c.Primary.Recommended = true
		}
	}
}

// PoolFrames returns copies of every frame belonging to a pooled moment, in
// chronological order.
func PoolFrames(result Result) []records.Frame {
	var out []records.Frame
	for _, c := range result.Pool {
		for _, f := range []*records.Frame{c.Moment.Front, c.Moment.Rear} {
			if f != nil {
				out = append(out, *f)
			}
		}
	}
	records.SortChronological(out)
	return out
}

func anyDetections(ms []moments.Moment) bool {
	for _, m := range ms {
		for _, f := range []*records.Frame{m.Front, m.Rear} {
			if f != nil && f.DetectScore > 0 {
				return true
			}
		}
	}
	return false
}

func sceneMax(m moments.Moment) float64 {
	scene := 0.0
	for _, f := range []*records.Frame{m.Front, m.Rear} {
		if f != nil {
			scene = max(scene, f.SceneScore)
		}
	}
	return scene
}
