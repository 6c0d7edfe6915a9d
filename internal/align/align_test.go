package align

import (
	"path/filepath"
	"testing"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/footage"
	"ridereel/internal/logging"
)

func newRegistry() *camera.Registry {
	return camera.NewRegistry(config.Default().Cameras, logging.NewNop())
}

func probed(cam, name string, start float64) footage.Probed {
	return footage.Probed{Clip: footage.Clip{Camera: cam, Name: name}, Start: start, Duration: 300}
}

func TestComputeNormalizesToEarliestCamera(t *testing.T) {
	ref := 1700000000.0
	clips := []footage.Probed{
		probed(camera.Front, "Fly12Sport_0001.MP4", ref+5),
		probed(camera.Front, "Fly12Sport_0002.MP4", ref+305),
		probed(camera.Rear, "Fly6Pro_0001.MP4", ref+7),
	}
	result := Compute(clips, ref, true, nil, newRegistry(), logging.NewNop())
	offsets := result.Offsets()
	if offsets[camera.Front] != 0 {
		t.Fatalf("front offset = %v, want 0", offsets[camera.Front])
	}
	if offsets[camera.Rear] != 2.0 {
		t.Fatalf("rear offset = %v, want 2.0", offsets[camera.Rear])
	}
	for _, c := range result.Cameras {
		if c.Camera == camera.Front && c.Source != "Fly12Sport_0001.MP4" {
			t.Fatalf("front should align on the clip nearest the reference, got %s", c.Source)
		}
	}
}

func TestComputeWithoutReferenceIsZero(t *testing.T) {
	clips := []footage.Probed{probed(camera.Front, "a", 100), probed(camera.Rear, "b", 9000)}
	result := Compute(clips, 0, false, nil, newRegistry(), logging.NewNop())
	for name, off := range result.Offsets() {
		if off != 0 {
			t.Fatalf("%s offset = %v, want 0", name, off)
		}
	}
}

func TestSuspectOffsetStillApplied(t *testing.T) {
	ref := 1700000000.0
	clips := []footage.Probed{probed(camera.Front, "a", ref), probed(camera.Rear, "b", ref+7200)}
	result := Compute(clips, ref, true, nil, newRegistry(), logging.NewNop())
	if result.Offsets()[camera.Rear] != 7200 {
		t.Fatalf("suspect offset should still apply: %v", result.Offsets())
	}
	var flagged bool
	for _, c := range result.Cameras {
		flagged = flagged || (c.Camera == camera.Rear && c.Suspect)
	}
	if !flagged {
		t.Fatal("expected rear offset flagged as suspect")
	}
}

func TestManualOffsetsOverride(t *testing.T) {
	ref := 1700000000.0
	clips := []footage.Probed{probed(camera.Front, "a", ref), probed(camera.Rear, "b", ref+3)}
	result := Compute(clips, ref, true, map[string]float64{"fly6pro": 1.25}, newRegistry(), logging.NewNop())
	if got := result.Offsets()[camera.Rear]; got != 1.25 {
		t.Fatalf("manual offset = %v, want 1.25", got)
	}
}

func TestApplyAndPersist(t *testing.T) {
	reg := newRegistry()
	result := Result{ReferenceEpoch: 1, HasReference: true, Cameras: []CameraOffset{
		{Camera: camera.Front, Offset: 0},
		{Camera: camera.Rear, Offset: 2},
		{Camera: "GoPro", Offset: 9},
	}}
	if err := Apply(result, reg); err != nil {
		t.Fatal(err)
	}
	if reg.Offset(camera.Rear) != 2 {
		t.Fatalf("registry offset = %v", reg.Offset(camera.Rear))
	}
	if err := Apply(result, reg); err == nil {
		t.Fatal("second Apply must fail: offsets are set once per run")
	}

	path := filepath.Join(t.TempDir(), "camera_offsets.json")
	if err := Save(path, result); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Offsets()[camera.Rear] != 2 || !loaded.HasReference {
		t.Fatalf("unexpected loaded result: %+v", loaded)
	}
}
