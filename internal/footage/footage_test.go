package footage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/media/ffprobe"
)

type stubProber map[string]ffprobe.Result

func (s stubProber) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	r, ok := s[filepath.Base(path)]
	if !ok {
		return ffprobe.Result{}, errors.New("moov atom not found")
	}
	return r, nil
}

func probeResult(duration, creation string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", AvgFrameRate: "30/1"}},
		Format:  ffprobe.Format{Duration: duration, Tags: map[string]string{"creation_time": creation}},
	}
}

func TestDiscoverFiltersAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"FLY6PRO_0002.mp4", "Fly12Sport_0001.MP4", "notes.txt", "nounderscore.MP4", "Fly12Sport_0010.MOV"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	clips, err := Discover(dir, camera.NewRegistry(cfg.Cameras, logging.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %+v", clips)
	}
	if clips[0].Camera != camera.Rear || clips[0].ClipNum != 2 || clips[0].ClipID != "0002" {
		t.Fatalf("unexpected first clip: %+v", clips[0])
	}
	if clips[1].Camera != camera.Front {
		t.Fatalf("unexpected second clip: %+v", clips[1])
	}
}

func TestCreationTimeWrongZ(t *testing.T) {
	cfg := config.Default()
	reg := camera.NewRegistry(cfg.Cameras, logging.NewNop())
	tests := []struct {
		name   string
		wrongZ bool
		tz     string
		tag    string
		want   time.Time
	}{
		{"local with Z", true, "+10:00", "2024-03-02T18:00:00.000000Z", time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)},
		{"honest UTC", false, "+10:00", "2024-03-02T18:00:00Z", time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)},
		{"space separated", true, "-05:00", "2024-03-02 07:00:00", time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCorrector(config.Cameras{CreationTimeTZ: tt.tz, CreationTimeIsLocalWrongZ: tt.wrongZ}, reg)
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.CreationUTC(tt.tag)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("CreationUTC = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeAllComputesStartAndSkipsFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Cameras.KnownOffsets = map[string]float64{camera.Rear: 1.5}
	cfg.Cameras.CreationTimeIsLocalWrongZ = false
	reg := camera.NewRegistry(cfg.Cameras, logging.NewNop())
	c, err := NewCorrector(cfg.Cameras, reg)
	if err != nil {
		t.Fatal(err)
	}
	clips := []Clip{
		{Path: "/in/Fly12Sport_0001.MP4", Name: "Fly12Sport_0001.MP4", Camera: camera.Front},
		{Path: "/in/Fly6Pro_0001.MP4", Name: "Fly6Pro_0001.MP4", Camera: camera.Rear},
		{Path: "/in/Fly6Pro_0002.MP4", Name: "Fly6Pro_0002.MP4", Camera: camera.Rear},
	}
	prober := stubProber{
		"Fly12Sport_0001.MP4": probeResult("600", "2023-11-14T22:23:20Z"),
		"Fly6Pro_0001.MP4":    probeResult("300", "2023-11-14T22:18:20Z"),
	}
	probed, err := c.ProbeAll(context.Background(), prober, clips, 2, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if len(probed) != 2 {
		t.Fatalf("expected failing clip to be skipped, got %d", len(probed))
	}
	if probed[0].Start != 1700000000 || probed[0].FPS != 30 {
		t.Fatalf("front start = %v fps = %v", probed[0].Start, probed[0].FPS)
	}
	if probed[1].Start != 1700000000-1.5 {
		t.Fatalf("rear start should subtract known offset, got %v", probed[1].Start)
	}
	if probed[1].End() != 1700000000-1.5+300 {
		t.Fatalf("rear end = %v", probed[1].End())
	}
	if groups := ByCamera(probed); len(groups[camera.Rear]) != 1 || len(groups[camera.Front]) != 1 {
		t.Fatalf("unexpected grouping: %v", groups)
	}
}
