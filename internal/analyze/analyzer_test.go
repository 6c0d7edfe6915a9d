package analyze_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ridereel/internal/analyze"
	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/gpx"
	"ridereel/internal/logging"
	"ridereel/internal/records"
	"ridereel/internal/workerpool"
)

type stubSource struct {
	mu      sync.Mutex
	thumb   func(video string, seek float64) ([]byte, error)
	grabbed []string
}

func (s *stubSource) GrabFrame(_ context.Context, _ string, _ float64, out string, _ int) error {
	s.mu.Lock()
	s.grabbed = append(s.grabbed, out)
	s.mu.Unlock()
	return os.WriteFile(out, []byte("jpeg"), 0o644)
}

func (s *stubSource) Thumbnail(_ context.Context, video string, seek float64, size int, _ string) ([]byte, error) {
	if s.thumb == nil {
		return make([]byte, size*size), nil
	}
	return s.thumb(video, seek)
}

type fakeDetector struct {
	mu      sync.Mutex
	loadErr error
	failOn  string
	loads   int
	closes  int
	batches [][]string
}

func (d *fakeDetector) Load(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loads++
	return d.loadErr
}

func (d *fakeDetector) Detect(_ context.Context, paths []string) ([]analyze.Detection, error) {
	d.mu.Lock()
	d.batches = append(d.batches, append([]string(nil), paths...))
	d.mu.Unlock()
	out := make([]analyze.Detection, len(paths))
	for i, p := range paths {
		if d.failOn != "" && strings.Contains(p, d.failOn) {
			return nil, errors.New("inference crashed")
		}
		out[i] = analyze.Detection{Path: p, Boxes: []analyze.Box{
			{Class: "bicycle", Confidence: 0.8, Width: 100, Height: 50},
			{Class: "car", Confidence: 0.99, Width: 900, Height: 900},
		}}
	}
	return out, nil
}

func (d *fakeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func testFrames() []records.Frame {
	var frames []records.Frame
	for _, cam := range []struct {
		name  string
		start float64
	}{{camera.Front, 990}, {camera.Rear, 995}} {
		for k, abs := range []float64{1000, 1005, 1010} {
			frames = append(frames, records.Frame{
				Index:          fmt.Sprintf("%s_0001_%06d", cam.name, k),
				Camera:         cam.name,
				VideoPath:      cam.name + "_0001.MP4",
				AbsTimeEpoch:   abs,
				ClipStartEpoch: cam.start,
				ClipDuration:   60,
				FPS:            30,
			})
		}
	}
	return frames
}

func testTimeline() *gpx.Timeline {
	var points []records.TrackPoint
	for e := 995.0; e <= 1015; e++ {
		points = append(points, records.TrackPoint{
			Epoch:    e,
			Lat:      -27.4 + e/1e6,
			Lon:      153.0,
			SpeedKMH: records.Float(30),
		})
	}
	return gpx.NewTimeline(points)
}

func writeEfforts(t *testing.T, body string) []analyze.Effort {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segments.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	efforts, err := analyze.LoadEfforts(path)
	if err != nil {
		t.Fatalf("LoadEfforts: %v", err)
	}
	return efforts
}

func newAnalyzer(t *testing.T, source analyze.FrameSource, det analyze.Detector, batch int) *analyze.Analyzer {
	t.Helper()
	cfg := config.Default()
	registry := camera.NewRegistry(cfg.Cameras, logging.NewNop())
	dir := t.TempDir()
	opts := analyze.Options{
		SampleInterval:   5,
		SceneWindow:      8,
		ThumbnailSize:    2,
		GPSTolerance:     2,
		PartnerTolerance: 2,
		BatchSize:        batch,
		ImageSize:        640,
		FramesDir:        filepath.Join(dir, "frames"),
		ScratchDir:       filepath.Join(dir, "scratch"),
		Workers:          workerpool.SizesFor(4),
	}
	scorer := analyze.NewScorer(cfg.Detection.Classes, nil, cfg.Detection.MinConfidence)
	return analyze.New(registry, source, det, scorer, opts, logging.NewNop())
}

// thumbBySeek returns a flat thumbnail whose pixel value is 10× the seek.
func thumbBySeek(_ string, seek float64) ([]byte, error) {
	v := byte(seek * 10)
	return []byte{v, v, v, v}, nil
}

func find(frames []records.Frame, cam string, abs float64) *records.Frame {
	for i := range frames {
		if frames[i].Camera == cam && frames[i].AbsTimeEpoch == abs {
			return &frames[i]
		}
	}
	return nil
}

func TestRunScoresEverySignal(t *testing.T) {
	det := &fakeDetector{}
	source := &stubSource{thumb: thumbBySeek}
	a := newAnalyzer(t, source, det, 4)
	start := time.Unix(1004, 0).UTC().Format(time.RFC3339)
	efforts := writeEfforts(t, `[{"name":"Mt Coot-tha","start_time":"`+start+`","elapsed_time":2,"pr_rank":1}]`)

	frames := testFrames()
	summary, err := a.Run(context.Background(), frames, testTimeline(), efforts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.GPSMatched != 6 || summary.Paired != 6 || summary.Thumbnails != 6 || summary.Detected != 6 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if det.loads != 1 || det.closes != 1 {
		t.Fatalf("detector lifecycle: loads=%d closes=%d", det.loads, det.closes)
	}
	if len(det.batches) != 2 {
		t.Fatalf("expected 2 batches of at most 4, got %d", len(det.batches))
	}

	// Front seeks 10, 15, 20 give pixel values 100, 150, 200. The window holds
	// two thumbnails, so the third compares against the first.
	wantScene := []float64{0, 50.0 / 255, 100.0 / 255}
	for k, abs := range []float64{1000, 1005, 1010} {
		f := find(frames, camera.Front, abs)
		if math.Abs(f.SceneScore-wantScene[k]) > 1e-9 {
			t.Fatalf("front scene at %v = %v, want %v", abs, f.SceneScore, wantScene[k])
		}
	}

	f := find(frames, camera.Front, 1005)
	if f.DetectScore != 0.8 || f.BBoxArea != 5000 || f.NumDetections != 1 || !f.BikeDetected {
		t.Fatalf("detection not applied: %+v", f)
	}
	if f.SegmentBoost != 1.0 || f.SegmentName != "Mt Coot-tha" || f.SegmentRank != 1 {
		t.Fatalf("segment boost not applied: %+v", f)
	}
	if find(frames, camera.Front, 1010).SegmentBoost != 0 {
		t.Fatal("frame outside the effort should have no boost")
	}
	if f.MomentID != 201 {
		t.Fatalf("moment id = %d, want 201", f.MomentID)
	}
	if !f.PairedOK || f.PartnerCamera != camera.Rear || records.Value(f.PartnerDelta) != 0 {
		t.Fatalf("partner not matched: %+v", f)
	}
	if f.GPXMissing || records.Value(f.SpeedKMH) != 30 {
		t.Fatalf("telemetry not applied: %+v", f)
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].AbsTimeEpoch < frames[i-1].AbsTimeEpoch {
			t.Fatal("frames not chronological")
		}
	}
}

func TestRunDegradesWithoutDetector(t *testing.T) {
	det := &fakeDetector{loadErr: errors.New("no model")}
	a := newAnalyzer(t, &stubSource{}, det, 0)
	frames := testFrames()
	summary, err := a.Run(context.Background(), frames, testTimeline(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DetectorAvailable || det.closes != 0 {
		t.Fatalf("expected degraded run, summary=%+v closes=%d", summary, det.closes)
	}
	for _, f := range frames {
		if f.DetectScore != 0 || f.BikeDetected {
			t.Fatalf("detection should be zero: %+v", f)
		}
	}
}

func TestRunFailedBatchScoresZero(t *testing.T) {
	// Chronological order pairs front and rear per instant, so batches of two
	// hold one instant each.
	det := &fakeDetector{failOn: camera.Rear + "_0001_000000"}
	a := newAnalyzer(t, &stubSource{}, det, 2)
	frames := testFrames()
	summary, err := a.Run(context.Background(), frames, testTimeline(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DetectFailures != 2 || summary.Detected != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, f := range frames {
		if f.AbsTimeEpoch == 1000 && f.DetectScore != 0 {
			t.Fatalf("frames in the failed batch should score zero: %+v", f)
		}
		if f.AbsTimeEpoch != 1000 && f.DetectScore == 0 {
			t.Fatalf("frames outside the failed batch should score: %+v", f)
		}
	}
}

func TestThumbnailFailureLeavesWindowUntouched(t *testing.T) {
	source := &stubSource{thumb: func(video string, seek float64) ([]byte, error) {
		if seek == 15 && strings.HasPrefix(video, camera.Front) {
			return nil, errors.New("decode error")
		}
		return thumbBySeek(video, seek)
	}}
	a := newAnalyzer(t, source, nil, 0)
	frames := testFrames()
	summary, err := a.Run(context.Background(), frames, testTimeline(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Thumbnails != 5 {
		t.Fatalf("thumbnails = %d, want 5", summary.Thumbnails)
	}
	if got := find(frames, camera.Front, 1005).SceneScore; got != 0 {
		t.Fatalf("failed thumbnail should score 0, got %v", got)
	}
	if got := find(frames, camera.Front, 1010).SceneScore; math.Abs(got-100.0/255) > 1e-9 {
		t.Fatalf("third frame should compare with the first, got %v", got)
	}
}

func TestRunWithoutTimelineMarksMissing(t *testing.T) {
	a := newAnalyzer(t, &stubSource{}, nil, 0)
	frames := testFrames()
	summary, err := a.Run(context.Background(), frames, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.GPSMatched != 0 {
		t.Fatalf("gps matched = %d", summary.GPSMatched)
	}
	for _, f := range frames {
		if !f.GPXMissing || f.HasTelemetry() {
			t.Fatalf("frame should lack telemetry: %+v", f)
		}
	}
}
