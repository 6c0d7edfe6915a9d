// Package footage discovers camera clips in the input directory, probes them,
// and corrects their recording start times.
package footage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/media/ffprobe"
	"ridereel/internal/services"
	"ridereel/internal/workerpool"
)

// Clip is one discovered camera file.
type Clip struct {
	Path    string
	Name    string
	Camera  string
	ClipID  string
	ClipNum int
}

// Probed is a clip with the metadata needed to place it on the ride clock.
type Probed struct {
	Clip
	Duration float64
	FPS      float64
	// CreationUTC is the corrected creation instant (end of recording).
	CreationUTC time.Time
	// Start is CreationUTC - Duration - known offset, in epoch seconds.
	Start float64
}

// End is Start + Duration.
func (p Probed) End() float64 {
	return p.Start + p.Duration
}

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// Discover lists "*_*.MP4" files (extension case-insensitive) under dir, sorted
// by name. Camera names are normalized through the registry.
func Discover(dir string, registry *camera.Registry) ([]Clip, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var clips []Clip
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".mp4") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		cam, rest, ok := strings.Cut(stem, "_")
		if !ok || cam == "" || rest == "" {
			continue
		}
		clip := Clip{
			Path:   filepath.Join(dir, name),
			Name:   name,
			Camera: registry.Normalize(cam),
			ClipID: rest,
		}
		if m := trailingDigits.FindString(stem); m != "" {
			clip.ClipNum, _ = strconv.Atoi(m)
			clip.ClipID = m
		}
		clips = append(clips, clip)
	}
	sort.Slice(clips, func(i, j int) bool { return clips[i].Name < clips[j].Name })
	return clips, nil
}

// Prober abstracts ffprobe for tests.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// BinaryProber runs the ffprobe binary.
type BinaryProber struct {
	Binary string
}

// Inspect implements Prober.
func (p BinaryProber) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Binary, path)
}

// Corrector turns creation_time tags into recording start instants.
type Corrector struct {
	zone     *time.Location
	wrongZ   bool
	registry *camera.Registry
}

// NewCorrector builds a Corrector from camera configuration.
func NewCorrector(cfg config.Cameras, registry *camera.Registry) (*Corrector, error) {
	zone, err := config.ParseFixedZone(cfg.CreationTimeTZ)
	if err != nil {
		return nil, err
	}
	return &Corrector{zone: zone, wrongZ: cfg.CreationTimeIsLocalWrongZ, registry: registry}, nil
}

// CreationUTC parses the tag. When the camera writes local wall-clock time
// with a Z suffix, the wall clock is reinterpreted in the configured zone.
func (c *Corrector) CreationUTC(tag string) (time.Time, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return time.Time{}, fmt.Errorf("missing creation_time tag")
	}
	t, err := time.Parse(time.RFC3339Nano, tag)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", tag)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse creation_time %q: %w", tag, err)
		}
	}
	if c.wrongZ {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), c.zone)
	}
	return t.UTC(), nil
}

// Start returns the recording start epoch: creation - duration - known offset.
func (c *Corrector) Start(cameraName string, creationUTC time.Time, duration float64) float64 {
	return float64(creationUTC.UnixNano())/1e9 - duration - c.registry.KnownOffset(cameraName)
}

// Probe inspects one clip and computes its corrected start.
func (c *Corrector) Probe(ctx context.Context, prober Prober, clip Clip) (Probed, error) {
	result, err := prober.Inspect(ctx, clip.Path)
	if err != nil {
		return Probed{}, services.Wrap(services.ErrItemSkipped, "", "probe", clip.Name, err)
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return Probed{}, services.Wrap(services.ErrItemSkipped, "", "probe", clip.Name+": no duration", nil)
	}
	creation, err := c.CreationUTC(result.CreationTimeTag())
	if err != nil {
		return Probed{}, services.Wrap(services.ErrItemSkipped, "", "probe", clip.Name, err)
	}
	fps := result.FPS()
	if fps <= 0 {
		fps = 30
	}
	return Probed{
		Clip:        clip,
		Duration:    duration,
		FPS:         fps,
		CreationUTC: creation,
		Start:       c.Start(clip.Camera, creation, duration),
	}, nil
}

// ProbeAll probes clips on an IO-sized pool. Clips that fail to probe are
// logged and left out; the result keeps discovery order.
func (c *Corrector) ProbeAll(ctx context.Context, prober Prober, clips []Clip, limit int, logger *slog.Logger) ([]Probed, error) {
	results := make([]*Probed, len(clips))
	_, err := workerpool.Run(ctx, limit, len(clips), func(ctx context.Context, i int) error {
		probed, err := c.Probe(ctx, prober, clips[i])
		if err != nil {
			logging.WarnWithContext(logger, "clip probe failed", "probe_failed",
				logging.String(logging.FieldClip, clips[i].Name),
				logging.String(logging.FieldCamera, clips[i].Camera),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the file plays and has a creation_time tag"),
				logging.String(logging.FieldImpact, "clip excluded from this run"),
			)
			return err
		}
		results[i] = &probed
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Probed, 0, len(clips))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ByCamera groups probed clips by canonical camera, keeping name order.
func ByCamera(clips []Probed) map[string][]Probed {
	out := make(map[string][]Probed)
	for _, clip := range clips {
		out[clip.Camera] = append(out[clip.Camera], clip)
	}
	return out
}
