// Package overlay pre-renders the per-clip PNG overlays: route minimap,
// elevation strip, telemetry gauges, and PR badge.
package overlay

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"

	"ridereel/internal/config"
	"ridereel/internal/fileutil"
	"ridereel/internal/logging"
	"ridereel/internal/records"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

// Options sizes each overlay.
type Options struct {
	MinimapSize     int
	ElevationWidth  int
	ElevationHeight int
	GaugeSize       int
	GaugeMaxima     map[string]float64
}

// OptionsFrom reads overlay sizes from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		MinimapSize:     cfg.Render.MinimapSize,
		ElevationWidth:  cfg.Render.ElevationWidth,
		ElevationHeight: cfg.Render.ElevationHeight,
		GaugeSize:       cfg.Render.GaugeSize,
		GaugeMaxima:     cfg.Render.GaugeMaxima,
	}
}

// Request is one clip needing overlays.
type Request struct {
	// Name prefixes every asset file, e.g. "clip_0001".
	Name  string
	Frame records.Frame
	// Achievement is nil when the moment is outside any ranked effort.
	Achievement *Achievement
}

// Assets holds the written overlay paths. Empty fields were skipped.
type Assets struct {
	Minimap   string
	Elevation string
	Gauges    string
	Badge     string
}

// Count returns how many overlays were written.
func (a Assets) Count() int {
	n := 0
	for _, p := range []string{a.Minimap, a.Elevation, a.Gauges, a.Badge} {
		if p != "" {
			n++
		}
	}
	return n
}

// Renderer writes overlays for clips into one directory.
type Renderer struct {
	opts   Options
	track  []records.TrackPoint
	dir    string
	logger *slog.Logger
}

// NewRenderer builds a Renderer over the flattened track. track may be empty,
// in which case only gauges and badges are drawn.
func NewRenderer(opts Options, track []records.TrackPoint, dir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Renderer{opts: opts, track: track, dir: dir, logger: logging.NewComponentLogger(logger, "overlay")}
}

// Render draws every overlay that applies to req. A failed overlay is logged
// and left empty; the clip renders without it.
func (r *Renderer) Render(req Request) Assets {
	var assets Assets
	f := &req.Frame
	epoch := f.AbsTimeEpoch
	if f.GPXEpoch != nil {
		epoch = *f.GPXEpoch
	}

	if f.HasTelemetry() && len(r.track) > 1 {
		if img := Minimap(r.track, epoch, r.opts.MinimapSize); img != nil {
			assets.Minimap = r.save(req.Name, "minimap", img, nil)
		}
		img, err := Elevation(r.track, epoch, r.opts.ElevationWidth, r.opts.ElevationHeight)
		if img != nil || err != nil {
			assets.Elevation = r.save(req.Name, "elevation", img, err)
		}
	}
	img, err := Gauges(f, r.opts.GaugeMaxima, r.opts.GaugeSize)
	if img != nil || err != nil {
		assets.Gauges = r.save(req.Name, "gauges", img, err)
	}
	if req.Achievement != nil && req.Achievement.Eligible() {
		img, err := Badge(*req.Achievement)
		assets.Badge = r.save(req.Name, "badge", img, err)
	}
	return assets
}

// RenderAll renders every request on a pool of the given size. The result is
// indexed like reqs.
func (r *Renderer) RenderAll(ctx context.Context, reqs []Request, workers int, progress workerpool.Progress) ([]Assets, error) {
	out := make([]Assets, len(reqs))
	_, err := workerpool.Run(ctx, workers, len(reqs), func(_ context.Context, i int) error {
		out[i] = r.Render(reqs[i])
		return nil
	}, func(done int) { progress.Report("overlays", done, len(reqs)) })
	if err != nil {
		return nil, err
	}
	total := 0
	for _, a := range out {
		total += a.Count()
	}
	r.logger.Info("overlays rendered",
		logging.Int("clips", len(reqs)),
		logging.Int("assets", total),
		logging.Bool("gps_track", len(r.track) > 1),
	)
	return out, nil
}

func (r *Renderer) save(name, kind string, img image.Image, drawErr error) string {
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.png", name, kind))
	err := drawErr
	if err == nil {
		err = fileutil.WriteAtomic(path, func(w io.Writer) error { return png.Encode(w, img) })
	}
	if err != nil {
		err = services.Wrap(services.ErrItemSkipped, "build", "overlay "+kind, "Overlay rendering failed", err)
		logging.WarnWithContext(r.logger, "overlay skipped", "overlay_failed",
			logging.String("clip", name),
			logging.String("overlay", kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check disk space in the overlay directory"),
			logging.String(logging.FieldImpact, "clip renders without this overlay"),
		)
		return ""
	}
	return path
}
