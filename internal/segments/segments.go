// Package segments batches rendered clips into fixed-length reel segments
// and mixes background music under the camera audio.
package segments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ridereel/internal/config"
	"ridereel/internal/fileutil"
	"ridereel/internal/logging"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

var musicExtensions = map[string]bool{".mp3": true, ".m4a": true, ".wav": true}

// Runner executes one ffmpeg invocation.
type Runner interface {
	Run(ctx context.Context, operation string, args []string) error
}

// Options control batching and mixing.
type Options struct {
	TargetSeconds float64
	ClipLength    float64
	RawVolume     float64
	MusicVolume   float64
	MusicDir      string
	WorkDir       string
	OutputDir     string
	Seed          int64
}

// OptionsFrom reads concat settings from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		TargetSeconds: cfg.Music.SegmentTargetSeconds,
		ClipLength:    cfg.Selection.ClipLengthSeconds,
		RawVolume:     cfg.Music.RawVolume,
		MusicVolume:   cfg.Music.MusicVolume,
		MusicDir:      cfg.Paths.MusicDir,
		WorkDir:       cfg.Paths.WorkingDir,
		OutputDir:     cfg.Paths.OutputDir,
		Seed:          cfg.Music.Seed,
	}
}

// Segment is one output file built from consecutive clips.
type Segment struct {
	Index  int      `json:"index"`
	Clips  []string `json:"clips"`
	Music  string   `json:"music,omitempty"`
	Output string   `json:"output"`
	// Mixed is true when the output carries the music track.
	Mixed bool `json:"mixed"`
}

// ClipsPerSegment is ceil(target / clipLen), at least one.
func ClipsPerSegment(target, clipLen float64) int {
	if target <= 0 || clipLen <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(target/clipLen)))
}

// Concatenator writes segments.
type Concatenator struct {
	opts   Options
	runner Runner
	rng    *rand.Rand
	logger *slog.Logger
}

// New builds a Concatenator. rng picks music tracks; nil seeds from
// opts.Seed, or the clock when the seed is zero.
func New(opts Options, runner Runner, rng *rand.Rand, logger *slog.Logger) *Concatenator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if rng == nil {
		seed := uint64(opts.Seed)
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return &Concatenator{opts: opts, runner: runner, rng: rng, logger: logging.NewComponentLogger(logger, "segments")}
}

// Plan groups clips in order and assigns each segment a music track.
func (c *Concatenator) Plan(clips []string) []Segment {
	per := ClipsPerSegment(c.opts.TargetSeconds, c.opts.ClipLength)
	tracks := MusicTracks(c.opts.MusicDir)
	var out []Segment
	for start := 0; start < len(clips); start += per {
		end := min(start+per, len(clips))
		seg := Segment{
			Index:  len(out) + 1,
			Clips:  clips[start:end],
			Output: filepath.Join(c.opts.OutputDir, fmt.Sprintf("segment_%03d.mp4", len(out)+1)),
		}
		if len(tracks) > 0 {
			seg.Music = tracks[c.rng.IntN(len(tracks))]
		}
		out = append(out, seg)
	}
	return out
}

// Build concatenates every segment on a pool of the given size.
func (c *Concatenator) Build(ctx context.Context, clips []string, workers int, progress workerpool.Progress) ([]Segment, error) {
	if len(clips) == 0 {
		return nil, services.Wrap(services.ErrValidation, "concat", "plan segments", "No rendered clips to concatenate", nil)
	}
	if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "concat", "create output directory", "Cannot create output directory", err)
	}
	segs := c.Plan(clips)
	if segs[0].Music == "" {
		logging.WarnWithContext(c.logger, "no music tracks found", "music_unavailable",
			logging.String("music_dir", c.opts.MusicDir),
			logging.String(logging.FieldErrorHint, "add .mp3, .m4a or .wav files to the music directory"),
			logging.String(logging.FieldImpact, "segments keep camera audio only"),
		)
	}
	_, err := workerpool.Run(ctx, workers, len(segs), func(ctx context.Context, i int) error {
		return c.buildOne(ctx, &segs[i])
	}, func(done int) { progress.Report("segments", done, len(segs)) })
	if err != nil {
		return nil, err
	}
	mixed := 0
	for _, s := range segs {
		if s.Mixed {
			mixed++
		}
	}
	c.logger.Info("segments written",
		logging.Int("clips", len(clips)),
		logging.Int("segments", len(segs)),
		logging.Int("with_music", mixed),
		logging.String("output_dir", c.opts.OutputDir),
	)
	return segs, nil
}

func (c *Concatenator) buildOne(ctx context.Context, seg *Segment) error {
	name := fmt.Sprintf("segment_%03d", seg.Index)
	list := filepath.Join(c.opts.WorkDir, name+".txt")
	if err := WriteList(list, seg.Clips); err != nil {
		return services.Wrap(services.ErrConfiguration, "concat", "write list", "Cannot write concat list", err)
	}
	joined := filepath.Join(c.opts.WorkDir, name+".concat.mp4")
	defer os.Remove(joined)
	if err := c.runner.Run(ctx, "concat "+name, ConcatArgs(list, joined)); err != nil {
		return err
	}
	if !fileutil.NonEmpty(joined) {
		return services.Wrap(services.ErrExternalTool, "concat", "concat "+name, "ffmpeg produced no output", nil)
	}

	if seg.Music != "" {
		err := c.runner.Run(ctx, "mix "+name, MixArgs(joined, seg.Music, seg.Output, c.opts.RawVolume, c.opts.MusicVolume))
		if err == nil && fileutil.NonEmpty(seg.Output) {
			seg.Mixed = true
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.WarnWithContext(c.logger, "music mix failed", "music_mix_failed",
			logging.String("segment", name),
			logging.String("music", filepath.Base(seg.Music)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "clips may have no audio track to mix against"),
			logging.String(logging.FieldImpact, "segment written without music"),
		)
	}
	if err := fileutil.CopyFile(joined, seg.Output); err != nil {
		return services.Wrap(services.ErrConfiguration, "concat", "copy "+name, "Cannot write segment", err)
	}
	return nil
}

// MusicTracks lists the .mp3, .m4a and .wav files directly under dir.
// A missing or unreadable directory yields no tracks.
func MusicTracks(dir string) []string {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && musicExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

// WriteList writes an ffmpeg concat demuxer list with absolute paths.
func WriteList(path string, clips []string) error {
	return fileutil.WriteAtomic(path, func(w io.Writer) error {
		for _, clip := range clips {
			abs, err := filepath.Abs(clip)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConcatArgs joins the clips in list without re-encoding.
func ConcatArgs(list, out string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0", "-i", list,
		"-c", "copy", out,
	}
}

// MixArgs loops music under the joined video's audio and copies the video.
func MixArgs(video, music, out string, rawVolume, musicVolume float64) []string {
	filter := fmt.Sprintf("[0:a]volume=%s[raw];[1:a]volume=%s[music];[raw][music]amix=inputs=2:dropout_transition=0[aout]",
		formatVolume(rawVolume), formatVolume(musicVolume))
	return []string{"-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-stream_loop", "-1", "-i", music,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy", "-c:a", "aac",
		"-shortest", out,
	}
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
