package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/deps"
	"ridereel/internal/footage"
	"ridereel/internal/segments"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOutputDirectory is CheckDirectoryAccess for directories the run
// creates. A missing directory passes when its nearest existing ancestor is
// writable.
func CheckOutputDirectory(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return CheckDirectoryAccess(name, path)
	}
	parent := filepath.Dir(path)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			break
		}
		parent = next
	}
	if res := CheckDirectoryAccess(name, parent); !res.Passed {
		return res
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
}

// CheckFootage verifies the input directory holds camera_clip.MP4 files.
func CheckFootage(dir string, registry *camera.Registry) Result {
	const name = "Footage"
	clips, err := footage.Discover(dir, registry)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	if len(clips) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no *_*.MP4 files)", dir)}
	}
	perCamera := make(map[string]int)
	for _, c := range clips {
		perCamera[c.Camera]++
	}
	cams := make([]string, 0, len(perCamera))
	for cam, n := range perCamera {
		cams = append(cams, fmt.Sprintf("%s=%d", cam, n))
	}
	sort.Strings(cams)
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d clips (%s)", len(clips), strings.Join(cams, " "))}
}

// CheckFile verifies a regular, non-empty file exists at path.
func CheckFile(name, path string, optional bool) Result {
	res := Result{Name: name, Optional: optional}
	if strings.TrimSpace(path) == "" {
		res.Detail = "not configured"
		return res
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Detail = fmt.Sprintf("%s (missing)", path)
	case err != nil:
		res.Detail = fmt.Sprintf("%s (error: stat: %v)", path, err)
	case info.IsDir():
		res.Detail = fmt.Sprintf("%s (error: is a directory)", path)
	case info.Size() == 0:
		res.Detail = fmt.Sprintf("%s (empty)", path)
	default:
		res.Passed = true
		res.Detail = path
	}
	return res
}

// CheckMusic counts background tracks. No tracks leaves segments unmixed.
func CheckMusic(dir string) Result {
	res := Result{Name: "Music", Optional: true}
	tracks := segments.MusicTracks(dir)
	if len(tracks) == 0 {
		res.Detail = fmt.Sprintf("%s (no .mp3, .m4a or .wav files)", dir)
		return res
	}
	res.Passed = true
	res.Detail = fmt.Sprintf("%s (%d tracks)", dir, len(tracks))
	return res
}

// CheckSystemDeps evaluates the external binaries for the given config and
// attaches version banners to the ones that resolved.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for thumbnails and rendering",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for clip inspection",
		},
	}
	if strings.TrimSpace(cfg.Detection.Command) != "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Detector",
			Command:     cfg.Detection.Command,
			Description: "Scores frames by detected objects",
			Optional:    true,
		})
	}
	statuses := deps.CheckBinaries(requirements)
	for i := range statuses {
		if !statuses[i].Available || statuses[i].Name == "Detector" {
			continue
		}
		banner, err := deps.Version(ctx, statuses[i].Path)
		if err != nil {
			statuses[i].Detail = err.Error()
			continue
		}
		statuses[i].Detail = deps.ShortVersion(banner)
	}
	return statuses
}

func fromStatus(s deps.Status) Result {
	res := Result{Name: s.Name, Passed: s.Available, Optional: s.Optional, Detail: s.Detail}
	if res.Detail == "" {
		res.Detail = s.Path
	}
	if !s.Available && s.Description != "" {
		res.Detail = fmt.Sprintf("%s; %s", res.Detail, strings.ToLower(s.Description))
	}
	return res
}
