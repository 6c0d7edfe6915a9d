package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ridereel/internal/align"
	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/media/ffprobe"
	"ridereel/internal/pipeline"
	"ridereel/internal/records"
	"ridereel/internal/runstate"
	"ridereel/internal/services"
	"ridereel/internal/testsupport"
	"ridereel/internal/workerpool"
)

const rideStart = 1700000000 // 2023-11-14T22:13:20Z

// fakeMedia writes the last argument of every ffmpeg run as the output file.
type fakeMedia struct {
	mu  sync.Mutex
	ops []string
}

func (m *fakeMedia) GrabFrame(_ context.Context, _ string, _ float64, out string, _ int) error {
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func (m *fakeMedia) Thumbnail(_ context.Context, _ string, seek float64, size int, _ string) ([]byte, error) {
	out := make([]byte, size*size)
	for i := range out {
		out[i] = byte((int(seek) * 37) % 256)
	}
	return out, nil
}

func (m *fakeMedia) Encoders(context.Context) (map[string]bool, error) {
	return map[string]bool{"libx264": true}, nil
}

func (m *fakeMedia) Run(_ context.Context, operation string, args []string) error {
	m.mu.Lock()
	m.ops = append(m.ops, operation)
	m.mu.Unlock()
	out := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("mp4"), 0o644)
}

func (m *fakeMedia) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, op := range m.ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

type stubProber map[string]ffprobe.Result

func (s stubProber) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	r, ok := s[filepath.Base(path)]
	if !ok {
		return ffprobe.Result{}, errors.New("moov atom not found")
	}
	return r, nil
}

// localWrongZ formats an end-of-recording instant the way the cameras do:
// +10:00 wall clock with a Z suffix.
func localWrongZ(endEpoch int64) string {
	zone := time.FixedZone("", 10*3600)
	return time.Unix(endEpoch, 0).In(zone).Format("2006-01-02T15:04:05") + ".000000Z"
}

func probe(duration float64, endEpoch int64) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", AvgFrameRate: "30/1"}},
		Format: ffprobe.Format{
			Duration: fmt.Sprintf("%.3f", duration),
			Tags:     map[string]string{"creation_time": localWrongZ(endEpoch)},
		},
	}
}

func writeGPX(t *testing.T, path string, seconds int) {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>`)
	for s := 0; s <= seconds; s += 10 {
		ts := time.Unix(int64(rideStart+s), 0).UTC().Format(time.RFC3339)
		fmt.Fprintf(&b, `<trkpt lat="%.6f" lon="153.020000"><ele>%.1f</ele><time>%s</time></trkpt>`,
			-27.47-float64(s)*0.00005, 10+float64(s)/4, ts)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeFootage(t *testing.T, cfg *config.Config, names ...string) {
	t.Helper()
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(cfg.Paths.InputDir, name), 1)
	}
}

func newProject(t *testing.T) (*config.Config, *fakeMedia, stubProber) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	cfg.Selection.TargetClips = 3
	cfg.Selection.MinGapSeconds = 20
	writeGPX(t, cfg.Paths.GPXFile, 120)
	writeFootage(t, cfg, "Fly12Sport_0001.MP4", "Fly6Pro_0001.MP4")
	// The rear clock runs two seconds ahead of the front.
	prober := stubProber{
		"Fly12Sport_0001.MP4": probe(120, rideStart+120),
		"Fly6Pro_0001.MP4":    probe(120, rideStart+122),
	}
	return cfg, &fakeMedia{}, prober
}

func newEnv(t *testing.T, cfg *config.Config, media *fakeMedia, prober stubProber, store *runstate.Store) *pipeline.Env {
	t.Helper()
	opts := []pipeline.Option{
		pipeline.WithMedia(media),
		pipeline.WithProber(prober),
		pipeline.WithSizes(workerpool.SizesFor(4)),
	}
	if store != nil {
		opts = append(opts, pipeline.WithStore(store))
	}
	env, err := pipeline.NewEnv(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	return env
}

func TestRunWholePipeline(t *testing.T) {
	cfg, media, prober := newProject(t)
	store := testsupport.MustOpenStore(t, cfg)
	env := newEnv(t, cfg, media, prober, store)
	ctx := context.Background()

	results, err := pipeline.Run(ctx, env, "", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(pipeline.Stages()) {
		t.Fatalf("expected every stage to run, got %d", len(results))
	}

	offsets, err := align.Load(env.Layout.Offsets())
	if err != nil {
		t.Fatalf("load offsets: %v", err)
	}
	got := offsets.Offsets()
	if got[camera.Front] != 0 || got[camera.Rear] < 1.999 || got[camera.Rear] > 2.001 {
		t.Fatalf("offsets = %v, want front 0 rear 2", got)
	}

	sampled, err := records.ReadFrames(env.Layout.Extract())
	if err != nil {
		t.Fatal(err)
	}
	if len(sampled) != 48 {
		t.Fatalf("expected 24 samples per camera, got %d", len(sampled))
	}
	for _, f := range sampled {
		if f.ClipStartEpoch != rideStart {
			t.Fatalf("%s not shifted onto the shared clock: %v", f.Index, f.ClipStartEpoch)
		}
	}

	selected, err := records.ReadFrames(env.Layout.Select())
	if err != nil {
		t.Fatal(err)
	}
	recommended := 0
	for _, f := range selected {
		if f.Recommended {
			recommended++
		}
	}
	if recommended == 0 || recommended > 3 {
		t.Fatalf("recommended = %d, want 1..3", recommended)
	}

	clips, err := pipeline.ReadClipManifest(env.Layout.ClipManifest())
	if err != nil {
		t.Fatal(err)
	}
	if len(clips.Clips) != recommended || clips.Codec != "libx264" {
		t.Fatalf("clip manifest = %+v", clips)
	}
	for i := 1; i < len(clips.Clips); i++ {
		if clips.Clips[i].MomentID <= clips.Clips[i-1].MomentID {
			t.Fatalf("clips out of moment order: %+v", clips.Clips)
		}
	}
	if clips.Clips[0].Partner == "" || clips.Clips[0].Overlays == 0 {
		t.Fatalf("paired clip should carry an inset and overlays: %+v", clips.Clips[0])
	}

	segs, err := pipeline.ReadSegmentManifest(env.Layout.SegmentManifest())
	if err != nil {
		t.Fatal(err)
	}
	if len(segs.Segments) != 1 || segs.Segments[0].Mixed {
		t.Fatalf("expected one unmixed segment, got %+v", segs.Segments)
	}
	if info, err := os.Stat(segs.Segments[0].Output); err != nil || info.Size() == 0 {
		t.Fatalf("segment output missing: %v", err)
	}
	if media.count("concat") != 1 {
		t.Fatalf("expected one concat pass, ops=%v", media.ops)
	}

	runs, err := store.RecentRuns(ctx, 1)
	if err != nil || len(runs) != 1 || runs[0].Status != runstate.StatusCompleted {
		t.Fatalf("run not recorded as completed: %+v %v", runs, err)
	}
	stages, err := store.Stages(ctx, runs[0].ID)
	if err != nil || len(stages) != len(results) {
		t.Fatalf("stage history = %+v %v", stages, err)
	}
	if stages[2].Stage != pipeline.Extract || stages[2].Items != 48 {
		t.Fatalf("extract stage history = %+v", stages[2])
	}
}

func TestStageResumesFromArtifacts(t *testing.T) {
	cfg, media, prober := newProject(t)
	ctx := context.Background()
	if _, err := pipeline.Run(ctx, newEnv(t, cfg, media, prober, nil), pipeline.Flatten, pipeline.Align); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// A fresh process picks the offsets up from disk.
	env := newEnv(t, cfg, media, prober, nil)
	if _, err := pipeline.Run(ctx, env, pipeline.Extract, pipeline.Extract); err != nil {
		t.Fatalf("extract run: %v", err)
	}
	if env.Registry.Offset(camera.Rear) < 1.999 {
		t.Fatalf("offsets not loaded, rear = %v", env.Registry.Offset(camera.Rear))
	}
}

func TestMissingArtifactFailsStage(t *testing.T) {
	cfg, media, prober := newProject(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	results, err := pipeline.Run(ctx, newEnv(t, cfg, media, prober, store), pipeline.Select, "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(results) != 1 || results[0].Stage != pipeline.Select {
		t.Fatalf("run should stop at select: %+v", results)
	}
	latest, ok, err := store.LatestStage(ctx, pipeline.Select)
	if err != nil || !ok || latest.Status != runstate.StatusFailed || !strings.Contains(latest.Error, "scored frames") {
		t.Fatalf("failed stage not recorded: %+v %v %v", latest, ok, err)
	}
}

func TestNoFootageIsFatalBeforeAnyStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	store := testsupport.MustOpenStore(t, cfg)
	env := newEnv(t, cfg, &fakeMedia{}, stubProber{}, store)

	results, err := pipeline.Run(context.Background(), env, "", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("no stage should start, got %+v", results)
	}
	if runs, _ := store.RecentRuns(context.Background(), 5); len(runs) != 0 {
		t.Fatalf("run should not be recorded: %+v", runs)
	}
}

func TestFlattenWithoutGPXDegrades(t *testing.T) {
	cfg, media, prober := newProject(t)
	if err := os.Remove(cfg.Paths.GPXFile); err != nil {
		t.Fatal(err)
	}
	env := newEnv(t, cfg, media, prober, nil)
	results, err := pipeline.Run(context.Background(), env, pipeline.Flatten, pipeline.Extract)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Outcome.Items != 0 {
		t.Fatalf("flatten wrote rows without a track: %+v", results[0])
	}
	offsets, err := align.Load(env.Layout.Offsets())
	if err != nil || offsets.HasReference {
		t.Fatalf("alignment should have no reference: %+v %v", offsets, err)
	}
	frames, err := records.ReadFrames(env.Layout.Extract())
	if err != nil || len(frames) == 0 {
		t.Fatalf("clip-spanning grid should still sample: %d %v", len(frames), err)
	}
}

func TestFlattenWithUnreadableGPXDegrades(t *testing.T) {
	for name, body := range map[string]string{
		"corrupt": "<gpx><trk><trkseg><trkpt lat=",
		"empty":   "",
		"untimed": `<gpx version="1.1"><trk><trkseg><trkpt lat="1" lon="2"></trkpt></trkseg></trk></gpx>`,
	} {
		t.Run(name, func(t *testing.T) {
			cfg, media, prober := newProject(t)
			if err := os.WriteFile(cfg.Paths.GPXFile, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			env := newEnv(t, cfg, media, prober, nil)
			results, err := pipeline.Run(context.Background(), env, pipeline.Flatten, pipeline.Extract)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if results[0].Outcome.Items != 0 {
				t.Fatalf("flatten wrote rows from an unreadable track: %+v", results[0])
			}
			rows, err := records.ReadTrack(env.Layout.Flatten())
			if err != nil || len(rows) != 0 {
				t.Fatalf("expected header-only timeline: %d %v", len(rows), err)
			}
			frames, err := records.ReadFrames(env.Layout.Extract())
			if err != nil || len(frames) == 0 {
				t.Fatalf("clip-spanning grid should still sample: %d %v", len(frames), err)
			}
		})
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		from, to string
		want     []string
		wantErr  bool
	}{
		{"", "", []string{"flatten", "align", "extract", "analyze", "select", "build", "concat"}, false},
		{"select", "", []string{"select", "build", "concat"}, false},
		{"Analyze", "select", []string{"analyze", "select"}, false},
		{"build", "align", nil, true},
		{"render", "", nil, true},
	}
	for _, tt := range tests {
		got, err := pipeline.Range(tt.from, tt.to)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Range(%q, %q) err = %v", tt.from, tt.to, err)
		}
		if tt.wantErr {
			continue
		}
		names := make([]string, len(got))
		for i, s := range got {
			names[i] = s.Name
		}
		if strings.Join(names, ",") != strings.Join(tt.want, ",") {
			t.Fatalf("Range(%q, %q) = %v, want %v", tt.from, tt.to, names, tt.want)
		}
	}
}

func TestCheckListsMissingArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	concat, ok := pipeline.Lookup("concat")
	if !ok || len(pipeline.Stages()) != 7 {
		t.Fatal("concat stage missing")
	}
	env, err := pipeline.NewEnv(cfg, nil, pipeline.WithSizes(workerpool.SizesFor(2)))
	if err != nil {
		t.Fatal(err)
	}
	health := concat.Check(env.Layout)
	if health.Ready() || len(health.Missing) != 2 || !strings.Contains(health.Detail(), "run select") {
		t.Fatalf("unexpected health: %+v %q", health, health.Detail())
	}
	flatten, _ := pipeline.Lookup(pipeline.Flatten)
	if !flatten.Check(env.Layout).Ready() {
		t.Fatal("flatten needs nothing")
	}
}
