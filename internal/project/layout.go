// Package project resolves the on-disk layout of a ride project and guards
// it against concurrent runs.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"ridereel/internal/config"
)

// Layout names every artifact a run reads or writes.
type Layout struct {
	Root     string
	Input    string
	GPX      string
	Efforts  string
	Music    string
	Working  string
	Clips    string
	Output   string
	Overlays string
	Frames   string
	Scratch  string
}

// NewLayout derives the layout from normalized config paths.
func NewLayout(cfg *config.Config) Layout {
	working := cfg.Paths.WorkingDir
	return Layout{
		Root:     cfg.Paths.ProjectDir,
		Input:    cfg.Paths.InputDir,
		GPX:      cfg.Paths.GPXFile,
		Efforts:  cfg.Paths.SegmentsFile,
		Music:    cfg.Paths.MusicDir,
		Working:  working,
		Clips:    cfg.Paths.ClipsDir,
		Output:   cfg.Paths.OutputDir,
		Overlays: filepath.Join(working, "overlays"),
		Frames:   filepath.Join(working, "frames"),
		Scratch:  filepath.Join(working, "scratch"),
	}
}

func (l Layout) Flatten() string  { return filepath.Join(l.Working, "flatten.csv") }
func (l Layout) Offsets() string  { return filepath.Join(l.Working, "camera_offsets.json") }
func (l Layout) Extract() string  { return filepath.Join(l.Working, "extract.csv") }
func (l Layout) Enriched() string { return filepath.Join(l.Working, "enriched.csv") }
func (l Layout) Select() string   { return filepath.Join(l.Working, "select.csv") }

// ClipManifest lists the clips the last build rendered, in reel order.
func (l Layout) ClipManifest() string { return filepath.Join(l.Working, "clips.json") }

// SegmentManifest lists the segments the last concat wrote.
func (l Layout) SegmentManifest() string { return filepath.Join(l.Working, "segments_out.json") }

func (l Layout) RunDB() string    { return filepath.Join(l.Working, "runstate.db") }
func (l Layout) LockFile() string { return filepath.Join(l.Working, ".ridereel.lock") }

// Ensure creates every directory the pipeline writes into.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Working, l.Clips, l.Output, l.Overlays, l.Frames, l.Scratch} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
