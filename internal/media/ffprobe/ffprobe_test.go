package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const cameraProbe = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1",
     "duration": "600.100", "tags": {"creation_time": "2024-03-02T08:15:00.000000Z"}},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {"filename": "Fly12Sport_0001.MP4", "duration": "600.066"}
}`

func TestResultHelpers(t *testing.T) {
	result, err := Parse([]byte(cameraProbe))
	if err != nil {
		t.Fatal(err)
	}
	if got := result.DurationSeconds(); got != 600.066 {
		t.Fatalf("duration = %v", got)
	}
	if got := result.FPS(); got < 29.96 || got > 29.98 {
		t.Fatalf("fps = %v, want 29.97", got)
	}
	if got := result.CreationTimeTag(); got != "2024-03-02T08:15:00.000000Z" {
		t.Fatalf("creation_time from stream fallback = %q", got)
	}
}

func TestHelpersFallBackAndTolerateGarbage(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "video", Duration: "12.5", AvgFrameRate: "0/0", RFrameRate: "25/1"}},
		Format:  Format{Duration: "bad", Tags: map[string]string{"CREATION_TIME": " 2024-01-01T00:00:00Z "}},
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("expected stream duration fallback, got %v", result.DurationSeconds())
	}
	if result.FPS() != 25 {
		t.Fatalf("expected r_frame_rate fallback, got %v", result.FPS())
	}
	if result.CreationTimeTag() != "2024-01-01T00:00:00Z" {
		t.Fatalf("format tag should win: %q", result.CreationTimeTag())
	}
	if (Result{}).FPS() != 0 || (Result{}).DurationSeconds() != 0 {
		t.Fatal("empty result should report zeros")
	}
}

func TestInspectRunsBinary(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(payload, []byte(cameraProbe), 0o644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "ffprobe")
	body := "#!/bin/sh\ncat " + payload + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err := Inspect(context.Background(), script, "/videos/Fly12Sport_0001.MP4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if result.Format.Filename != "Fly12Sport_0001.MP4" {
		t.Fatalf("unexpected result: %+v", result.Format)
	}
	if _, err := Inspect(context.Background(), script, " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInspectReportsFailure(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(context.Background(), script, "broken.MP4"); err == nil {
		t.Fatal("expected failure")
	}
}
