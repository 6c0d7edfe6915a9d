package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckOutputDirectory_WillBeCreated(t *testing.T) {
	result := CheckOutputDirectory("clips", filepath.Join(t.TempDir(), "work", "clips"))
	if !result.Passed {
		t.Fatalf("expected pass for creatable dir, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "ride.gpx")
	empty := filepath.Join(dir, "empty.gpx")
	if err := os.WriteFile(full, []byte("<gpx/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		passed bool
		detail string
	}{
		{name: "present", path: full, passed: true},
		{name: "empty", path: empty, detail: "empty"},
		{name: "missing", path: filepath.Join(dir, "nope.gpx"), detail: "missing"},
		{name: "directory", path: dir, detail: "is a directory"},
		{name: "unset", path: "", detail: "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckFile("GPX track", tt.path, true)
			if res.Passed != tt.passed {
				t.Fatalf("Passed = %v, detail %q", res.Passed, res.Detail)
			}
			if !strings.Contains(res.Detail, tt.detail) {
				t.Fatalf("detail %q does not mention %q", res.Detail, tt.detail)
			}
			if res.Blocking() {
				t.Fatal("optional check must never block")
			}
		})
	}
}

func TestCheckFootage(t *testing.T) {
	dir := t.TempDir()
	registry := camera.NewRegistry(config.Default().Cameras, logging.NewNop())

	if res := CheckFootage(dir, registry); res.Passed {
		t.Fatal("expected failure for empty input dir")
	}
	for _, name := range []string{"Fly12Sport_0001.MP4", "Fly6Pro_0001.mp4", "notes.txt", "nounderscore.MP4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := CheckFootage(dir, registry)
	if !res.Passed {
		t.Fatalf("expected pass, got: %s", res.Detail)
	}
	if !strings.HasPrefix(res.Detail, "2 clips") {
		t.Fatalf("unexpected detail: %s", res.Detail)
	}
}

func TestCheckMusic(t *testing.T) {
	dir := t.TempDir()
	if res := CheckMusic(dir); res.Passed || res.Blocking() {
		t.Fatalf("empty music dir should fail without blocking: %#v", res)
	}
	for _, name := range []string{"a.mp3", "b.M4A", "cover.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res := CheckMusic(dir)
	if !res.Passed || !strings.Contains(res.Detail, "2 tracks") {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDirectories())
	binDir := filepath.Join(testsupport.BaseDir(cfg), "bin")
	banner := "echo 'ffmpeg version 7.1 Copyright (c) the FFmpeg developers'\n"
	cfg.Render.FFmpegBinary = testsupport.WriteScript(t, filepath.Join(binDir, "ffmpeg"), banner)
	cfg.Render.FFprobeBinary = testsupport.WriteScript(t, filepath.Join(binDir, "ffprobe"), banner)
	cfg.Detection.Command = "clearly-not-present-detector"

	results := RunAll(context.Background(), cfg)
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	if byName["FFmpeg"].Detail != "ffmpeg version 7.1" {
		t.Fatalf("unexpected ffmpeg detail: %q", byName["FFmpeg"].Detail)
	}
	if det := byName["Detector"]; det.Passed || !det.Optional {
		t.Fatalf("missing detector should be an optional failure: %#v", det)
	}
	if !byName["Working directory"].Passed {
		t.Fatalf("working dir: %s", byName["Working directory"].Detail)
	}

	blocking := Blocking(results)
	if len(blocking) != 1 || blocking[0].Name != "Footage" {
		t.Fatalf("expected only the empty input dir to block, got %#v", blocking)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if got := RunAll(context.Background(), nil); got != nil {
		t.Fatalf("expected nil results, got %#v", got)
	}
}
