package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"ridereel/internal/camera"
	"ridereel/internal/gpx"
	"ridereel/internal/logging"
	"ridereel/internal/records"
	"ridereel/internal/services"
	"ridereel/internal/timemodel"
	"ridereel/internal/workerpool"
)

// FrameSource grabs stills and thumbnails from video files.
type FrameSource interface {
	GrabFrame(ctx context.Context, video string, seek float64, out string, width int) error
	Thumbnail(ctx context.Context, video string, seek float64, size int, scratchDir string) ([]byte, error)
}

// Options tunes one analyzer run.
type Options struct {
	SampleInterval   float64
	SceneWindow      float64
	ThumbnailSize    int
	GPSTolerance     float64
	PartnerTolerance float64
	// BatchSize is the detector batch size; 0 sizes it from available memory.
	BatchSize int
	ImageSize int
	// FramesDir receives grabbed JPEGs; ScratchDir holds thumbnail temp files.
	FramesDir  string
	ScratchDir string
	Workers    workerpool.Sizes
	Progress   workerpool.Progress
}

// Summary reports what the run managed to score.
type Summary struct {
	Frames            int
	GPSMatched        int
	SegmentFrames     int
	Thumbnails        int
	DetectorAvailable bool
	Detected          int
	DetectFailures    int
	Paired            int
}

// Analyzer scores frames on every independent signal.
type Analyzer struct {
	registry *camera.Registry
	source   FrameSource
	detector Detector
	scorer   Scorer
	opts     Options
	logger   *slog.Logger
}

// New builds an Analyzer. detector may be nil, which disables detection.
func New(registry *camera.Registry, source FrameSource, detector Detector, scorer Scorer, opts Options, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		registry: registry,
		source:   source,
		detector: detector,
		scorer:   scorer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "analyzer"),
	}
}

// Run enriches frames in place and returns them sorted chronologically.
func (a *Analyzer) Run(ctx context.Context, frames []records.Frame, timeline *gpx.Timeline, efforts []Effort) (Summary, error) {
	summary := Summary{Frames: len(frames)}
	if a.opts.SampleInterval <= 0 {
		return summary, services.Wrap(services.ErrConfiguration, "analyze", "validate", "sampling interval must be > 0", nil)
	}
	records.SortChronological(frames)

	summary.GPSMatched = a.enrich(frames, timeline)
	summary.SegmentFrames = applyEfforts(frames, efforts)
	for i := range frames {
		frames[i].MomentID = timemodel.MomentID(frames[i].AbsTimeEpoch, a.opts.SampleInterval)
	}

	thumbs, err := a.scoreScenes(ctx, frames)
	if err != nil {
		return summary, err
	}
	summary.Thumbnails = thumbs

	detected, failures, available, err := a.detect(ctx, frames)
	if err != nil {
		return summary, err
	}
	summary.Detected, summary.DetectFailures, summary.DetectorAvailable = detected, failures, available

	summary.Paired = MatchPartners(frames, a.registry, a.opts.PartnerTolerance)
	records.SortChronological(frames)

	a.logger.Info("frames analyzed",
		logging.Int("frames", summary.Frames),
		logging.Int("gps_matched", summary.GPSMatched),
		logging.Int("thumbnails", summary.Thumbnails),
		logging.Int("detected", summary.Detected),
		logging.Int("paired", summary.Paired),
		logging.Int("segment_frames", summary.SegmentFrames),
	)
	return summary, nil
}

func (a *Analyzer) enrich(frames []records.Frame, timeline *gpx.Timeline) int {
	if timeline.Len() == 0 {
		for i := range frames {
			frames[i].ClearTelemetry()
		}
		if len(frames) > 0 {
			logging.WarnWithContext(a.logger, "no GPS timeline", "gps_unavailable",
				logging.String(logging.FieldErrorHint, "run the flatten stage with a ride.gpx in the project"),
				logging.String(logging.FieldImpact, "speed, gradient, and map overlays are disabled"),
			)
		}
		return 0
	}
	matched := 0
	for i := range frames {
		if timeline.Enrich(&frames[i], a.opts.GPSTolerance) {
			matched++
		}
	}
	return matched
}

func applyEfforts(frames []records.Frame, efforts []Effort) int {
	hits := 0
	for i := range frames {
		f := &frames[i]
		f.SegmentBoost, f.SegmentName, f.SegmentRank = 0, "", 0
		effort, ok := BestEffort(efforts, f.AbsTimeEpoch)
		if !ok {
			continue
		}
		f.SegmentBoost = effort.Boost()
		f.SegmentName = effort.Name
		f.SegmentRank = effort.Rank()
		hits++
	}
	return hits
}

// scoreScenes fetches every thumbnail on the ffmpeg pool, then walks each
// camera's frames in time order through its own window.
func (a *Analyzer) scoreScenes(ctx context.Context, frames []records.Frame) (int, error) {
	if a.source == nil || len(frames) == 0 {
		return 0, nil
	}
	if a.opts.ScratchDir != "" {
		if err := os.MkdirAll(a.opts.ScratchDir, 0o755); err != nil {
			return 0, fmt.Errorf("create scratch directory: %w", err)
		}
	}

	thumbs := make([][]byte, len(frames))
	sampler := logging.NewProgressSampler(10)
	var mu sync.Mutex
	stats, err := workerpool.Run(ctx, a.opts.Workers.FFmpeg, len(frames), func(ctx context.Context, i int) error {
		f := &frames[i]
		seek := f.AbsTimeEpoch - f.ClipStartEpoch
		data, err := a.source.Thumbnail(ctx, f.VideoPath, seek, a.opts.ThumbnailSize, a.opts.ScratchDir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Debug("thumbnail failed",
				logging.String(logging.FieldCamera, f.Camera),
				logging.String("index", f.Index),
				logging.Error(err),
			)
			return services.Wrap(services.ErrItemSkipped, "analyze", "thumbnail", f.Index, err)
		}
		thumbs[i] = data
		return nil
	}, func(done int) {
		a.opts.Progress.Report("scene", done, len(frames))
		mu.Lock()
		defer mu.Unlock()
		if sampler.ShouldLog(done, len(frames)) {
			a.logger.Info("scene thumbnails", logging.Int("done", done), logging.Int("total", len(frames)))
		}
	})
	if err != nil {
		return stats.Done, err
	}

	windows := make(map[string]*SceneWindow)
	for i := range frames {
		f := &frames[i]
		w, ok := windows[f.Camera]
		if !ok {
			w = NewSceneWindow(a.opts.SceneWindow, a.opts.SampleInterval)
			windows[f.Camera] = w
		}
		f.SceneScore = w.Score(thumbs[i])
	}
	return stats.Done, nil
}

// detect grabs stills and runs them through the detector in batches. A
// detector that cannot load degrades to zero scores.
func (a *Analyzer) detect(ctx context.Context, frames []records.Frame) (detected, failures int, available bool, err error) {
	for i := range frames {
		frames[i].DetectScore, frames[i].NumDetections, frames[i].BBoxArea, frames[i].BikeDetected = 0, 0, 0, false
	}
	if a.detector == nil || a.source == nil || len(frames) == 0 {
		return 0, 0, false, nil
	}
	if loadErr := a.detector.Load(ctx); loadErr != nil {
		logging.WarnWithContext(a.logger, "object detector unavailable", "detector_unavailable",
			logging.Error(loadErr),
			logging.String(logging.FieldErrorHint, "set [detection] command to a detector runner"),
			logging.String(logging.FieldImpact, "detection scores are zero; ranking uses scene and telemetry only"),
		)
		return 0, 0, false, nil
	}
	defer func() {
		if closeErr := a.detector.Close(); closeErr != nil {
			a.logger.Warn("detector close failed", logging.Error(closeErr))
		}
	}()

	if err := os.MkdirAll(a.opts.FramesDir, 0o755); err != nil {
		return 0, 0, true, fmt.Errorf("create frames directory: %w", err)
	}

	paths := make([]string, len(frames))
	_, err = workerpool.Run(ctx, a.opts.Workers.FFmpeg, len(frames), func(ctx context.Context, i int) error {
		f := &frames[i]
		out := filepath.Join(a.opts.FramesDir, f.Index+".jpg")
		if grabErr := a.source.GrabFrame(ctx, f.VideoPath, f.AbsTimeEpoch-f.ClipStartEpoch, out, a.opts.ImageSize); grabErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Debug("frame grab failed", logging.String("index", f.Index), logging.Error(grabErr))
			return services.Wrap(services.ErrItemSkipped, "analyze", "grab frame", f.Index, grabErr)
		}
		paths[i] = out
		return nil
	}, func(done int) { a.opts.Progress.Report("grab", done, len(frames)) })
	if err != nil {
		return 0, 0, true, err
	}

	var grabbed []int
	for i, p := range paths {
		if p != "" {
			grabbed = append(grabbed, i)
		}
	}
	batches := batchIndexes(grabbed, a.batchSize())

	var mu sync.Mutex
	_, err = workerpool.Run(ctx, a.opts.Workers.Hardware, len(batches), func(ctx context.Context, b int) error {
		batch := batches[b]
		request := make([]string, len(batch))
		for k, idx := range batch {
			request[k] = paths[idx]
		}
		answers, detErr := a.detector.Detect(ctx, request)
		if detErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("detector batch failed",
				logging.Int("batch", b),
				logging.Int("size", len(batch)),
				logging.Error(detErr),
				logging.String(logging.FieldEventType, "detector_batch_failed"),
				logging.String(logging.FieldImpact, "frames in this batch score zero for detection"),
			)
			mu.Lock()
			failures += len(batch)
			mu.Unlock()
			return services.Wrap(services.ErrItemSkipped, "analyze", "detect", fmt.Sprintf("batch %d", b), detErr)
		}
		hits := 0
		for k, idx := range batch {
			if k >= len(answers) || answers[k].Error != "" {
				continue
			}
			score := a.scorer.Score(answers[k])
			f := &frames[idx]
			f.DetectScore = score.Score
			f.NumDetections = score.Count
			f.BBoxArea = score.BBoxArea
			f.BikeDetected = score.Count > 0
			if score.Count > 0 {
				hits++
			}
		}
		mu.Lock()
		detected += hits
		mu.Unlock()
		return nil
	}, func(done int) { a.opts.Progress.Report("detect", done, len(batches)) })
	return detected, failures, true, err
}

func (a *Analyzer) batchSize() int {
	if a.opts.BatchSize > 0 {
		return a.opts.BatchSize
	}
	return workerpool.DetectorBatchSize(workerpool.AvailableMemory())
}

func batchIndexes(idx []int, size int) [][]int {
	if size <= 0 {
		size = 1
	}
	var out [][]int
	for start := 0; start < len(idx); start += size {
		end := min(start+size, len(idx))
		out = append(out, idx[start:end])
	}
	return out
}
