package preflight

import (
	"context"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Optional failures degrade the output without blocking a run.
	Optional bool
	Detail   string
}

// Blocking reports whether the result should stop a run.
func (r Result) Blocking() bool {
	return !r.Passed && !r.Optional
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	registry := camera.NewRegistry(cfg.Cameras, logging.NewNop())

	results := []Result{
		CheckFootage(cfg.Paths.InputDir, registry),
		CheckFile("GPX track", cfg.Paths.GPXFile, true),
		CheckFile("Segment efforts", cfg.Paths.SegmentsFile, true),
		CheckMusic(cfg.Paths.MusicDir),
	}
	for _, dir := range []struct{ name, path string }{
		{"Working directory", cfg.Paths.WorkingDir},
		{"Clips directory", cfg.Paths.ClipsDir},
		{"Output directory", cfg.Paths.OutputDir},
	} {
		results = append(results, CheckOutputDirectory(dir.name, dir.path))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Blocking returns the results that should stop a run.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Blocking() {
			out = append(out, r)
		}
	}
	return out
}
