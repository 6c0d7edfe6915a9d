package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ridereel/internal/config"
)

func TestLoadDefaultConfigDerivesProjectLayout(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	project := t.TempDir()
	t.Chdir(project)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.ProjectDir != project {
		t.Fatalf("unexpected project dir: got %q want %q", cfg.Paths.ProjectDir, project)
	}
	checks := map[string]string{
		"input":    filepath.Join(project, "source_videos"),
		"gpx":      filepath.Join(project, "ride.gpx"),
		"working":  filepath.Join(project, "working"),
		"clips":    filepath.Join(project, "clips"),
		"output":   filepath.Join(project, "highlights"),
		"segments": filepath.Join(project, "segments.json"),
	}
	got := map[string]string{
		"input":    cfg.Paths.InputDir,
		"gpx":      cfg.Paths.GPXFile,
		"working":  cfg.Paths.WorkingDir,
		"clips":    cfg.Paths.ClipsDir,
		"output":   cfg.Paths.OutputDir,
		"segments": cfg.Paths.SegmentsFile,
	}
	for key, want := range checks {
		if got[key] != want {
			t.Fatalf("unexpected %s path: got %q want %q", key, got[key], want)
		}
	}
	if cfg.Sampling.IntervalSeconds != 5.0 {
		t.Fatalf("unexpected sample interval: %v", cfg.Sampling.IntervalSeconds)
	}
	if cfg.TargetClips() != 64 {
		t.Fatalf("expected 180s / 2.8s = 64 target clips, got %d", cfg.TargetClips())
	}
	if !cfg.ScoreWeightsBalanced() {
		t.Fatal("expected default score weights to sum to 1")
	}
	if cfg.Cameras.Weights["Fly12Sport"] != 2.0 {
		t.Fatalf("unexpected front camera weight: %v", cfg.Cameras.Weights["Fly12Sport"])
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	project := filepath.Join(tempHome, "ride")
	configPath := filepath.Join(tempHome, "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"project_dir": "~/ride",
			"music_dir":   "/srv/music",
		},
		"selection": map[string]any{
			"target_clips":    10,
			"pool_multiplier": 2.5,
		},
		"cameras": map[string]any{
			"manual_offsets": map[string]any{"Fly6Pro": 1.5},
		},
		"logging": map[string]any{
			"format": "JSON",
			"stage_overrides": map[string]any{
				" Analyze ": "DEBUG",
			},
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config %q to be used, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.ProjectDir != project {
		t.Fatalf("unexpected project dir: %q", cfg.Paths.ProjectDir)
	}
	if cfg.Paths.MusicDir != "/srv/music" {
		t.Fatalf("absolute music dir should be kept, got %q", cfg.Paths.MusicDir)
	}
	if cfg.TargetClips() != 10 {
		t.Fatalf("expected explicit target clips, got %d", cfg.TargetClips())
	}
	if cfg.Cameras.ManualOffsets["Fly6Pro"] != 1.5 {
		t.Fatalf("unexpected manual offset: %v", cfg.Cameras.ManualOffsets)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.StageOverrides["analyze"] != "debug" {
		t.Fatalf("expected normalized stage override, got %v", cfg.Logging.StageOverrides)
	}
}

func TestLoadWithProjectOverridesConfigValue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()

	cfg, _, _, err := config.LoadWithProject(filepath.Join(t.TempDir(), "missing.toml"), project)
	if err != nil {
		t.Fatalf("LoadWithProject returned error: %v", err)
	}
	if cfg.Paths.WorkingDir != filepath.Join(project, "working") {
		t.Fatalf("unexpected working dir: %q", cfg.Paths.WorkingDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"interval", func(c *config.Config) { c.Sampling.IntervalSeconds = 0 }, "sampling.interval_s"},
		{"clip length", func(c *config.Config) { c.Selection.ClipLengthSeconds = -1 }, "selection.clip_len_s"},
		{"pool multiplier", func(c *config.Config) { c.Selection.PoolMultiplier = 0.5 }, "pool_multiplier"},
		{"thresholds", func(c *config.Config) { c.Selection.SceneHighThreshold = 0.9 }, "scene_high_threshold"},
		{"pip scale", func(c *config.Config) { c.Render.PiPScale = 1.5 }, "render.pip_scale"},
		{"zone", func(c *config.Config) { c.Cameras.CreationTimeTZ = "Mars" }, "creation_time_tz"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"negative weight", func(c *config.Config) { c.Scoring.BBoxWeight = -0.1 }, "scoring.bbox_weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseFixedZone(t *testing.T) {
	tests := []struct {
		in     string
		offset int
	}{
		{"+10:00", 36000},
		{"-0530", -(5*3600 + 30*60)},
		{"+9", 9 * 3600},
		{"UTC", 0},
	}
	for _, tt := range tests {
		loc, err := config.ParseFixedZone(tt.in)
		if err != nil {
			t.Fatalf("ParseFixedZone(%q) error: %v", tt.in, err)
		}
		_, offset := timeIn(loc)
		if offset != tt.offset {
			t.Fatalf("ParseFixedZone(%q) offset = %d, want %d", tt.in, offset, tt.offset)
		}
	}
	if _, err := config.ParseFixedZone("+25:00"); err == nil {
		t.Fatal("expected out of range zone to fail")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample config to load cleanly, exists=%v err=%v", exists, err)
	}
}

func timeIn(loc *time.Location) (string, int) {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
}
