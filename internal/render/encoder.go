package render

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ridereel/internal/config"
	"ridereel/internal/fileutil"
	"ridereel/internal/logging"
	"ridereel/internal/media/ffmpeg"
	"ridereel/internal/services"
)

// SoftwareCodec is the encoder used when no hardware encoder is usable.
const SoftwareCodec = "libx264"

// Source is one camera input trimmed to the clip window.
type Source struct {
	Video string
	Seek  float64
}

// Job is one clip encode.
type Job struct {
	Name     string
	Primary  Source
	Partner  *Source
	Duration float64
	Graph    Graph
	Output   string
}

// Encoder turns a Job into a video file. Encode succeeds only when the output
// exists and is non-empty.
type Encoder interface {
	Encode(ctx context.Context, job Job) error
}

// Settings are the codec parameters shared by every clip.
type Settings struct {
	Codec   string
	Bitrate string
	MaxRate string
	BufSize string
	PixFmt  string
}

// SettingsFrom reads rate control from cfg. Codec is filled by ChooseCodec.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		Bitrate: cfg.Render.Bitrate,
		MaxRate: cfg.Render.MaxRate,
		BufSize: cfg.Render.BufSize,
		PixFmt:  cfg.Render.PixFmt,
	}
}

// Runner is the part of the ffmpeg client the encoder needs.
type Runner interface {
	Run(ctx context.Context, operation string, args []string) error
}

// FFmpegEncoder encodes jobs with the ffmpeg CLI. When the first hardware
// encode of a run fails, the encoder retries that job with SoftwareCodec and
// keeps using it for the rest of the run.
type FFmpegEncoder struct {
	runner Runner
	logger *slog.Logger

	mu         sync.Mutex
	settings   Settings
	hardwareOK bool
}

// NewFFmpegEncoder builds an encoder over runner.
func NewFFmpegEncoder(runner Runner, settings Settings, logger *slog.Logger) *FFmpegEncoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegEncoder{runner: runner, settings: settings, logger: logging.NewComponentLogger(logger, "encoder")}
}

// Codec reports the codec the next job will use.
func (e *FFmpegEncoder) Codec() string {
	return e.current().Codec
}

func (e *FFmpegEncoder) current() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Encode implements Encoder.
func (e *FFmpegEncoder) Encode(ctx context.Context, job Job) error {
	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "build", "create clip directory", "Cannot create clip directory", err)
	}
	settings := e.current()
	err := e.encode(ctx, job, settings)
	if !IsHardware(settings.Codec) {
		return err
	}
	if err == nil {
		e.mu.Lock()
		e.hardwareOK = true
		e.mu.Unlock()
		return nil
	}
	if ctx.Err() != nil || !e.demote(settings.Codec, err) {
		return err
	}
	return e.encode(ctx, job, e.current())
}

func (e *FFmpegEncoder) encode(ctx context.Context, job Job, settings Settings) error {
	if err := e.runner.Run(ctx, "encode "+job.Name, buildArgs(job, settings)); err != nil {
		return err
	}
	if !fileutil.NonEmpty(job.Output) {
		return services.Wrap(services.ErrExternalTool, "build", "encode "+job.Name, "ffmpeg produced no output", nil)
	}
	return nil
}

// demote switches the run to SoftwareCodec unless a hardware encode already
// succeeded. It reports whether the failed job should be retried.
func (e *FFmpegEncoder) demote(codec string, cause error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings.Codec != codec {
		return true
	}
	if e.hardwareOK {
		return false
	}
	e.settings.Codec = SoftwareCodec
	logging.WarnWithContext(e.logger, "hardware encode failed", "encoder_fallback",
		logging.String("codec", codec),
		logging.String("fallback", SoftwareCodec),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the GPU driver or drop the encoder from render.preferred_encoders"),
		logging.String(logging.FieldImpact, "remaining clips encode in software"),
	)
	return true
}

// Args builds the ffmpeg command line for job.
func (e *FFmpegEncoder) Args(job Job) []string {
	return buildArgs(job, e.current())
}

func buildArgs(job Job, settings Settings) []string {
	dur := ffmpeg.FormatSeconds(job.Duration)
	args := []string{"-hide_banner", "-loglevel", "error", "-y",
		"-ss", ffmpeg.FormatSeconds(job.Primary.Seek), "-t", dur, "-i", job.Primary.Video,
	}
	if job.Partner != nil {
		args = append(args, "-ss", ffmpeg.FormatSeconds(job.Partner.Seek), "-t", dur, "-i", job.Partner.Video)
	}
	for _, img := range job.Graph.Images {
		args = append(args, "-loop", "1", "-t", dur, "-i", img)
	}
	if job.Graph.Filter != "" {
		args = append(args, "-filter_complex", job.Graph.Filter, "-map", "["+job.Graph.Output+"]")
	} else {
		args = append(args, "-map", "0:v:0")
	}
	args = append(args, "-an", "-c:v", settings.Codec)
	if settings.Bitrate != "" {
		args = append(args, "-b:v", settings.Bitrate)
	}
	if settings.MaxRate != "" {
		args = append(args, "-maxrate", settings.MaxRate)
	}
	if settings.BufSize != "" {
		args = append(args, "-bufsize", settings.BufSize)
	}
	if settings.PixFmt != "" {
		args = append(args, "-pix_fmt", settings.PixFmt)
	}
	return append(args, "-movflags", "+faststart", job.Output)
}

// EncoderLister reports the encoders the local ffmpeg supports.
type EncoderLister interface {
	Encoders(ctx context.Context) (map[string]bool, error)
}

// CodecHost lists and runs the local ffmpeg.
type CodecHost interface {
	EncoderLister
	Runner
}

// ChooseCodec returns the first preferred encoder ffmpeg lists and, for
// hardware encoders, can encode a single test frame. When the listing fails or
// nothing qualifies it falls back to the last preference.
func ChooseCodec(ctx context.Context, host CodecHost, preferred []string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(preferred) == 0 {
		preferred = []string{SoftwareCodec}
	}
	available, err := host.Encoders(ctx)
	if err != nil {
		return preferred[len(preferred)-1], err
	}
	for _, name := range preferred {
		name = strings.TrimSpace(name)
		if !available[name] {
			continue
		}
		if !IsHardware(name) {
			return name, nil
		}
		if err := host.Run(ctx, "trial encode "+name, TrialEncodeArgs(name)); err != nil {
			logger.Info("hardware encoder unusable",
				logging.String("codec", name),
				logging.Error(err),
			)
			continue
		}
		return name, nil
	}
	return preferred[len(preferred)-1], services.Wrap(services.ErrDegraded, "build", "choose codec",
		"none of the preferred encoders is usable: "+strings.Join(preferred, ", "), nil)
}

// TrialEncodeArgs encodes one synthetic frame with codec and discards it.
func TrialEncodeArgs(codec string) []string {
	return []string{"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "nullsrc=s=256x256:d=1", "-frames:v", "1",
		"-c:v", codec, "-f", "null", os.DevNull,
	}
}

// IsHardware reports whether codec runs on a hardware encoder.
func IsHardware(codec string) bool {
	for _, suffix := range []string{"_videotoolbox", "_nvenc", "_vaapi", "_qsv", "_amf", "_v4l2m2m"} {
		if strings.HasSuffix(codec, suffix) {
			return true
		}
	}
	return false
}
