// Package render encodes one highlight clip per recommended moment: the
// primary camera with the partner camera inset and the telemetry overlays,
// followed by an audio mux from the primary source.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/media/ffmpeg"
	"ridereel/internal/overlay"
	"ridereel/internal/records"
	"ridereel/internal/services"
	"ridereel/internal/timemodel"
	"ridereel/internal/workerpool"
)

// Options controls clip timing and placement.
type Options struct {
	ClipLength      float64
	PreRoll         float64
	Interval        float64
	AudioSampleRate int
	Layout          Layout
	Dir             string
}

// OptionsFrom reads render settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ClipLength:      cfg.Selection.ClipLengthSeconds,
		PreRoll:         cfg.Selection.PreRollSeconds,
		Interval:        cfg.Sampling.IntervalSeconds,
		AudioSampleRate: cfg.Render.AudioSampleRate,
		Layout: Layout{
			PiPScale:    cfg.Render.PiPScale,
			Margin:      cfg.Render.PiPMargin,
			MinimapSize: cfg.Render.MinimapSize,
		},
		Dir: cfg.Paths.ClipsDir,
	}
}

// Clip is one planned highlight.
type Clip struct {
	Name     string
	MomentID int64
	Primary  records.Frame
	// Partner is nil for single-camera moments; the clip has no inset.
	Partner     *records.Frame
	PrimarySeek float64
	PartnerSeek float64
	// Synced is false when the partner seek fell back to the primary's.
	Synced bool
	Output string
}

// Plan turns the selection output into clips, one per recommended frame,
// ordered by moment. Clips whose primary cannot be seeked are dropped.
func Plan(frames []records.Frame, opts Options, logger *slog.Logger) []Clip {
	if logger == nil {
		logger = logging.NewNop()
	}
	byIndex := make(map[string]*records.Frame, len(frames))
	byMoment := make(map[int64][]*records.Frame)
	var primaries []*records.Frame
	for i := range frames {
		f := &frames[i]
		byIndex[f.Index] = f
		byMoment[f.MomentID] = append(byMoment[f.MomentID], f)
		if f.Recommended {
			primaries = append(primaries, f)
		}
	}
	sort.SliceStable(primaries, func(i, j int) bool {
		if primaries[i].MomentID != primaries[j].MomentID {
			return primaries[i].MomentID < primaries[j].MomentID
		}
		return primaries[i].AbsTimeEpoch < primaries[j].AbsTimeEpoch
	})

	var clips []Clip
	for _, p := range primaries {
		model, err := timemodel.FromFrame(p, opts.Interval)
		if err != nil || !model.ValidForSeek() {
			logging.WarnWithContext(logger, "clip skipped", "primary_seek_invalid",
				logging.String("frame", p.Index),
				logging.Float64("offset", model.InClipOffset()),
				logging.String(logging.FieldErrorHint, "check camera offsets and clip durations"),
				logging.String(logging.FieldImpact, "moment left out of the reel"),
			)
			continue
		}
		clip := Clip{
			MomentID:    p.MomentID,
			Primary:     *p,
			PrimarySeek: model.RenderSeek(opts.PreRoll),
		}
		if partner := findPartner(p, byIndex, byMoment); partner != nil {
			copied := *partner
			clip.Partner = &copied
			clip.PartnerSeek, clip.Synced = partnerSeek(partner, clip.PrimarySeek, opts)
			if !clip.Synced {
				logging.WarnWithContext(logger, "partner inset unsynchronised", "partner_seek_fallback",
					logging.String("frame", p.Index),
					logging.String("partner", partner.Index),
					logging.String(logging.FieldErrorHint, "partner clip does not cover the moment"),
					logging.String(logging.FieldImpact, "inset uses the primary seek"),
				)
			}
		}
		clips = append(clips, clip)
	}
	for i := range clips {
		clips[i].Name = fmt.Sprintf("clip_%04d", i+1)
		clips[i].Output = filepath.Join(opts.Dir, clips[i].Name+".mp4")
	}
	return clips
}

func findPartner(p *records.Frame, byIndex map[string]*records.Frame, byMoment map[int64][]*records.Frame) *records.Frame {
	if p.PartnerIndex != "" {
		if f := byIndex[p.PartnerIndex]; f != nil && f.Camera != p.Camera {
			return f
		}
	}
	for _, f := range byMoment[p.MomentID] {
		if f.Camera != p.Camera {
			return f
		}
	}
	return nil
}

// partnerSeek computes the partner's own seek; an invalid one falls back to
// the primary's.
func partnerSeek(partner *records.Frame, primarySeek float64, opts Options) (float64, bool) {
	model, err := timemodel.FromFrame(partner, opts.Interval)
	if err != nil || !model.ValidForSeek() {
		return primarySeek, false
	}
	return model.RenderSeek(opts.PreRoll), true
}

// Summary reports one render pass.
type Summary struct {
	Planned  int
	Rendered int
	Skipped  int
	Muxed    int
	// Outputs lists rendered clips by moment.
	Outputs []string
}

// Renderer encodes and muxes planned clips.
type Renderer struct {
	opts    Options
	encoder Encoder
	muxer   Runner
	logger  *slog.Logger
}

// New builds a Renderer. muxer runs the audio pass; a nil muxer leaves clips
// silent.
func New(opts Options, encoder Encoder, muxer Runner, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Renderer{opts: opts, encoder: encoder, muxer: muxer, logger: logging.NewComponentLogger(logger, "renderer")}
}

// Render encodes clips on a pool of the given size. assets is indexed like
// clips and may be shorter; missing entries render without overlays.
func (r *Renderer) Render(ctx context.Context, clips []Clip, assets []overlay.Assets, workers int, progress workerpool.Progress) (Summary, error) {
	summary := Summary{Planned: len(clips)}
	ok := make([]bool, len(clips))
	var muxed atomic.Int64

	stats, err := workerpool.Run(ctx, workers, len(clips), func(ctx context.Context, i int) error {
		var a overlay.Assets
		if i < len(assets) {
			a = assets[i]
		}
		audio, err := r.renderOne(ctx, clips[i], a)
		if err != nil {
			return err
		}
		ok[i] = true
		if audio {
			muxed.Add(1)
		}
		return nil
	}, func(done int) { progress.Report("clips", done, len(clips)) })
	if err != nil {
		return summary, err
	}

	for i, c := range clips {
		if ok[i] {
			summary.Outputs = append(summary.Outputs, c.Output)
		}
	}
	summary.Rendered = len(summary.Outputs)
	summary.Skipped = stats.Skipped
	summary.Muxed = int(muxed.Load())
	r.logger.Info("clips rendered",
		logging.Int("planned", summary.Planned),
		logging.Int("rendered", summary.Rendered),
		logging.Int("skipped", summary.Skipped),
		logging.Int("with_audio", summary.Muxed),
	)
	return summary, nil
}

func (r *Renderer) renderOne(ctx context.Context, clip Clip, assets overlay.Assets) (bool, error) {
	_ = os.Remove(clip.Output)
	job := Job{
		Name:     clip.Name,
		Primary:  Source{Video: clip.Primary.VideoPath, Seek: clip.PrimarySeek},
		Duration: r.opts.ClipLength,
		Graph:    BuildGraph(r.opts.Layout, clip.Partner != nil, assets),
		Output:   clip.Output,
	}
	if clip.Partner != nil {
		job.Partner = &Source{Video: clip.Partner.VideoPath, Seek: clip.PartnerSeek}
	}
	if err := r.encoder.Encode(ctx, job); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logging.WarnWithContext(r.logger, "clip encode failed", "clip_encode_failed",
			logging.String("clip", clip.Name),
			logging.String("frame", clip.Primary.Index),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "moment left out of the reel"),
		)
		_ = os.Remove(clip.Output)
		return false, services.Wrap(services.ErrItemSkipped, "build", "encode "+clip.Name, "Clip encode failed", err)
	}
	if r.muxer == nil {
		return false, nil
	}
	if err := r.mux(ctx, clip); err != nil {
		if errors.Is(err, context.Canceled) {
			return false, err
		}
		logging.WarnWithContext(r.logger, "audio mux failed", "clip_mux_failed",
			logging.String("clip", clip.Name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "source clip may have no audio track"),
			logging.String(logging.FieldImpact, "clip kept without audio"),
		)
		return false, nil
	}
	return true, nil
}

// mux copies the encoded video and adds the primary camera's audio from the
// same window, replacing the clip only on success.
func (r *Renderer) mux(ctx context.Context, clip Clip) error {
	tmp := strings.TrimSuffix(clip.Output, filepath.Ext(clip.Output)) + ".mux" + filepath.Ext(clip.Output)
	defer os.Remove(tmp)
	if err := r.muxer.Run(ctx, "mux "+clip.Name, MuxArgs(clip, r.opts, tmp)); err != nil {
		return err
	}
	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "build", "mux "+clip.Name, "mux produced no output", err)
	}
	return os.Rename(tmp, clip.Output)
}

// MuxArgs builds the audio mux command writing to out.
func MuxArgs(clip Clip, opts Options, out string) []string {
	rate := opts.AudioSampleRate
	if rate <= 0 {
		rate = 48000
	}
	return []string{"-hide_banner", "-loglevel", "error", "-y",
		"-i", clip.Output,
		"-ss", ffmpeg.FormatSeconds(clip.PrimarySeek), "-t", ffmpeg.FormatSeconds(opts.ClipLength), "-i", clip.Primary.VideoPath,
		"-map", "0:v:0", "-map", "1:a:0?",
		"-c:v", "copy", "-c:a", "aac", "-ar", strconv.Itoa(rate), "-ac", "2",
		"-shortest", out,
	}
}
