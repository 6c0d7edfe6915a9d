// Package pipeline sequences the ridereel stages over one project and records
// every run in the project's run history.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"sync"

	"ridereel/internal/align"
	"ridereel/internal/analyze"
	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/footage"
	"ridereel/internal/gpx"
	"ridereel/internal/logging"
	"ridereel/internal/media/ffmpeg"
	"ridereel/internal/project"
	"ridereel/internal/records"
	"ridereel/internal/render"
	"ridereel/internal/runstate"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

// Media is the ffmpeg surface the stages drive.
type Media interface {
	analyze.FrameSource
	render.EncoderLister
	Run(ctx context.Context, operation string, args []string) error
}

// Env is the explicit context of one run: configuration, the camera
// registry, project layout, and the external tools. Stages receive it instead
// of reaching for globals.
type Env struct {
	Config   *config.Config
	Registry *camera.Registry
	Layout   project.Layout
	Logger   *slog.Logger
	Store    *runstate.Store
	Sizes    workerpool.Sizes
	Media    Media
	Prober   footage.Prober
	Detector analyze.Detector
	Progress workerpool.Progress
	// Rand picks music tracks; nil seeds from config.
	Rand  *rand.Rand
	RunID string

	cache *runCache
}

type runCache struct {
	mu     sync.Mutex
	probed []footage.Probed
	ok     bool
}

// Option customizes an Env.
type Option func(*Env)

// WithStore records runs in store.
func WithStore(store *runstate.Store) Option {
	return func(e *Env) { e.Store = store }
}

// WithMedia replaces the ffmpeg client.
func WithMedia(m Media) Option {
	return func(e *Env) { e.Media = m }
}

// WithProber replaces the ffprobe adapter.
func WithProber(p footage.Prober) Option {
	return func(e *Env) { e.Prober = p }
}

// WithDetector replaces the configured detector command.
func WithDetector(d analyze.Detector) Option {
	return func(e *Env) { e.Detector = d }
}

// WithSizes fixes worker pool sizes instead of probing the host.
func WithSizes(s workerpool.Sizes) Option {
	return func(e *Env) { e.Sizes = s }
}

// WithProgress reports per-item progress.
func WithProgress(p workerpool.Progress) Option {
	return func(e *Env) { e.Progress = p }
}

// WithRand injects the music RNG.
func WithRand(r *rand.Rand) Option {
	return func(e *Env) { e.Rand = r }
}

// NewEnv builds the run context from normalized configuration.
func NewEnv(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Env, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	env := &Env{
		Config:   cfg,
		Registry: camera.NewRegistry(cfg.Cameras, logger),
		Layout:   project.NewLayout(cfg),
		Logger:   logger,
		cache:    &runCache{},
	}
	for _, opt := range opts {
		opt(env)
	}
	if env.Sizes.Cores == 0 {
		env.Sizes = workerpool.DetectSizes()
	}
	if env.Media == nil {
		env.Media = ffmpeg.New(cfg.FFmpegBinary(), ffmpeg.WithLogger(logger))
	}
	if env.Prober == nil {
		env.Prober = footage.BinaryProber{Binary: cfg.FFprobeBinary()}
	}
	if env.Detector == nil {
		env.Detector = analyze.NewCommandDetector(cfg.Detection.Command, cfg.Detection.Args)
	}
	return env, nil
}

// footageWorkers is the pool size for ffmpeg-bound work.
func (e *Env) footageWorkers() int {
	return workerpool.Override(e.Sizes.FFmpeg, e.Config.Render.Workers)
}

// discover lists the project's camera files. No files at all is fatal.
func (e *Env) discover() ([]footage.Clip, error) {
	clips, err := footage.Discover(e.Layout.Input, e.Registry)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "", "discover footage", e.Layout.Input, err)
	}
	if len(clips) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "discover footage",
			fmt.Sprintf("no *_*.MP4 files in %s", e.Layout.Input), nil)
	}
	return clips, nil
}

// probed discovers and probes footage once per run.
func (e *Env) probed(ctx context.Context) ([]footage.Probed, int, error) {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	clips, err := e.discover()
	if err != nil {
		return nil, 0, err
	}
	if e.cache.ok {
		return e.cache.probed, len(clips) - len(e.cache.probed), nil
	}
	corrector, err := footage.NewCorrector(e.Config.Cameras, e.Registry)
	if err != nil {
		return nil, 0, services.Wrap(services.ErrConfiguration, "", "creation time zone", e.Config.Cameras.CreationTimeTZ, err)
	}
	probed, err := corrector.ProbeAll(ctx, e.Prober, clips, e.Sizes.IO, e.Logger)
	if err != nil {
		return nil, 0, err
	}
	if len(probed) == 0 {
		return nil, 0, services.Wrap(services.ErrValidation, "", "probe footage", "no clip could be probed", nil)
	}
	e.cache.probed, e.cache.ok = probed, true
	return probed, len(clips) - len(probed), nil
}

// track reads the flattened timeline. A missing file yields an empty track.
func (e *Env) track() ([]records.TrackPoint, error) {
	points, err := records.ReadTrack(e.Layout.Flatten())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "read GPS timeline", e.Layout.Flatten(), err)
	}
	return points, nil
}

func (e *Env) timeline() (*gpx.Timeline, error) {
	points, err := e.track()
	if err != nil {
		return nil, err
	}
	return gpx.NewTimeline(points), nil
}

// efforts loads segment efforts. An unreadable file disables PR boosts.
func (e *Env) efforts() []analyze.Effort {
	efforts, err := analyze.LoadEfforts(e.Layout.Efforts)
	if err != nil {
		logging.WarnWithContext(e.Logger, "segment efforts unreadable", "segments_unavailable",
			logging.String("path", e.Layout.Efforts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check segments.json is a JSON list of efforts"),
			logging.String(logging.FieldImpact, "no segment boosts or achievement badges"),
		)
		return nil
	}
	return efforts
}

// ensureOffsets loads persisted camera offsets into the registry when this
// run has not aligned yet. Without the artifact every camera stays at 0.
func (e *Env) ensureOffsets() error {
	for _, name := range e.Registry.Names() {
		if e.Registry.HasOffset(name) {
			return nil
		}
	}
	result, err := align.Load(e.Layout.Offsets())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.WarnWithContext(e.Logger, "camera offsets not found", "alignment_missing",
				logging.String("path", e.Layout.Offsets()),
				logging.String(logging.FieldErrorHint, "run ridereel align first"),
				logging.String(logging.FieldImpact, "cameras are sampled without clock correction"),
			)
			return nil
		}
		return services.Wrap(services.ErrValidation, "", "load camera offsets", e.Layout.Offsets(), err)
	}
	return align.Apply(result, e.Registry)
}
