package pipeline

import (
	"context"
	"fmt"
	"os"

	"ridereel/internal/analyze"
	"ridereel/internal/fileutil"
	"ridereel/internal/logging"
	"ridereel/internal/overlay"
	"ridereel/internal/render"
	"ridereel/internal/runstate"
	"ridereel/internal/segments"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

// ClipEntry is one rendered clip in reel order.
type ClipEntry struct {
	Name     string  `json:"name"`
	MomentID int64   `json:"moment_id"`
	Camera   string  `json:"camera"`
	Partner  string  `json:"partner_camera,omitempty"`
	Synced   bool    `json:"synced"`
	Seek     float64 `json:"seek_s"`
	Overlays int     `json:"overlays"`
	Output   string  `json:"output"`
}

// ClipManifest is what build hands to concat.
type ClipManifest struct {
	RunID string      `json:"run_id"`
	Codec string      `json:"codec"`
	Clips []ClipEntry `json:"clips"`
}

// Outputs returns the clip paths in reel order.
func (m ClipManifest) Outputs() []string {
	out := make([]string, len(m.Clips))
	for i, c := range m.Clips {
		out[i] = c.Output
	}
	return out
}

// SegmentManifest records the segments concat wrote.
type SegmentManifest struct {
	RunID    string             `json:"run_id"`
	Segments []segments.Segment `json:"segments"`
}

// ReadClipManifest loads the last build's clip list.
func ReadClipManifest(path string) (ClipManifest, error) {
	var m ClipManifest
	err := fileutil.ReadJSON(path, &m)
	return m, err
}

// ReadSegmentManifest loads the last concat's segment list.
func ReadSegmentManifest(path string) (SegmentManifest, error) {
	var m SegmentManifest
	err := fileutil.ReadJSON(path, &m)
	return m, err
}

func achievementFor(efforts []analyze.Effort, epoch float64) *overlay.Achievement {
	effort, ok := analyze.BestEffort(efforts, epoch)
	if !ok {
		return nil
	}
	a := overlay.Achievement{
		Name:      effort.Name,
		DistanceM: effort.Distance,
		GradePct:  effort.AverageGrade,
		Rank:      effort.Rank(),
	}
	if !a.Eligible() {
		return nil
	}
	return &a
}

func runBuild(ctx context.Context, env *Env) (runstate.Outcome, error) {
	frames, err := readFrames(env.Layout.Select(), Build)
	if err != nil {
		return runstate.Outcome{}, err
	}
	cfg := env.Config
	opts := render.OptionsFrom(cfg)
	opts.Dir = env.Layout.Clips
	clips := render.Plan(frames, opts, env.Logger)

	manifest := ClipManifest{RunID: env.RunID}
	if len(clips) == 0 {
		logging.WarnWithContext(env.Logger, "no clips to render", "build_empty",
			logging.Int("frames", len(frames)),
			logging.String(logging.FieldErrorHint, "re-run select; no recommended moment can be seeked"),
			logging.String(logging.FieldImpact, "concat will have no clips"),
		)
		if err := fileutil.WriteJSON(env.Layout.ClipManifest(), manifest); err != nil {
			return runstate.Outcome{}, fmt.Errorf("write clip list: %w", err)
		}
		return runstate.Outcome{Detail: "nothing to render"}, nil
	}
	if err := os.MkdirAll(env.Layout.Clips, 0o755); err != nil {
		return runstate.Outcome{}, fmt.Errorf("create clips directory: %w", err)
	}

	codec, codecErr := render.ChooseCodec(ctx, env.Media, cfg.Render.PreferredEncoders, env.Logger)
	if codecErr != nil {
		logging.WarnWithContext(env.Logger, "preferred encoders unavailable", "encoder_fallback",
			logging.String("codec", codec),
			logging.Error(codecErr),
			logging.String(logging.FieldErrorHint, "run ffmpeg -hide_banner -encoders to see what this build supports"),
			logging.String(logging.FieldImpact, "clips encode with the fallback codec"),
		)
	}
	settings := render.SettingsFrom(cfg)
	settings.Codec = codec
	workers := env.footageWorkers()
	if render.IsHardware(codec) {
		workers = workerpool.Override(env.Sizes.Hardware, cfg.Render.HardwareWorkers)
	}

	track, err := env.track()
	if err != nil {
		return runstate.Outcome{}, err
	}
	efforts := env.efforts()
	reqs := make([]overlay.Request, len(clips))
	for i, c := range clips {
		reqs[i] = overlay.Request{Name: c.Name, Frame: c.Primary, Achievement: achievementFor(efforts, c.Primary.AbsTimeEpoch)}
	}
	assets, err := overlay.NewRenderer(overlay.OptionsFrom(cfg), track, env.Layout.Overlays, env.Logger).
		RenderAll(ctx, reqs, env.Sizes.IO, env.Progress)
	if err != nil {
		return runstate.Outcome{}, err
	}

	renderer := render.New(opts, render.NewFFmpegEncoder(env.Media, settings, env.Logger), env.Media, env.Logger)
	env.Logger.Info("rendering clips",
		logging.Int("clips", len(clips)),
		logging.String("codec", codec),
		logging.Int("workers", workers),
	)
	summary, err := renderer.Render(ctx, clips, assets, workers, env.Progress)
	if err != nil {
		return runstate.Outcome{}, err
	}

	manifest.Codec = codec
	rendered := make(map[string]bool, len(summary.Outputs))
	for _, out := range summary.Outputs {
		rendered[out] = true
	}
	for i, c := range clips {
		if !rendered[c.Output] {
			continue
		}
		entry := ClipEntry{
			Name:     c.Name,
			MomentID: c.MomentID,
			Camera:   c.Primary.Camera,
			Synced:   c.Synced,
			Seek:     c.PrimarySeek,
			Overlays: assets[i].Count(),
			Output:   c.Output,
		}
		if c.Partner != nil {
			entry.Partner = c.Partner.Camera
		}
		manifest.Clips = append(manifest.Clips, entry)
	}
	if err := fileutil.WriteJSON(env.Layout.ClipManifest(), manifest); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write clip list: %w", err)
	}
	return runstate.Outcome{
		Items:   summary.Rendered,
		Skipped: summary.Skipped,
		Detail:  fmt.Sprintf("codec %s, %d with audio", codec, summary.Muxed),
	}, nil
}

func runConcat(ctx context.Context, env *Env) (runstate.Outcome, error) {
	manifest, err := ReadClipManifest(env.Layout.ClipManifest())
	if err != nil {
		return runstate.Outcome{}, services.Wrap(services.ErrValidation, Concat, "read clip list", env.Layout.ClipManifest(), err)
	}
	var clips []string
	for _, out := range manifest.Outputs() {
		if fileutil.NonEmpty(out) {
			clips = append(clips, out)
			continue
		}
		logging.WarnWithContext(env.Logger, "rendered clip missing", "clip_missing",
			logging.String(logging.FieldClip, out),
			logging.String(logging.FieldErrorHint, "re-run ridereel build"),
			logging.String(logging.FieldImpact, "clip left out of the segments"),
		)
	}

	opts := segments.OptionsFrom(env.Config)
	opts.WorkDir = env.Layout.Scratch
	opts.OutputDir = env.Layout.Output
	concatenator := segments.New(opts, env.Media, env.Rand, env.Logger)
	segs, err := concatenator.Build(ctx, clips, env.footageWorkers(), env.Progress)
	if err != nil {
		return runstate.Outcome{}, err
	}

	mixed := 0
	for _, s := range segs {
		if s.Mixed {
			mixed++
		}
	}
	if err := fileutil.WriteJSON(env.Layout.SegmentManifest(), SegmentManifest{RunID: env.RunID, Segments: segs}); err != nil {
		return runstate.Outcome{}, fmt.Errorf("write segment list: %w", err)
	}
	return runstate.Outcome{
		Items:  len(segs),
		Detail: fmt.Sprintf("%d clips, %d segments with music", len(clips), mixed),
	}, nil
}
