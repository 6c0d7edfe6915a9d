// Package align reconciles both camera clocks against the GPS time reference.
package align

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"ridereel/internal/camera"
	"ridereel/internal/fileutil"
	"ridereel/internal/footage"
	"ridereel/internal/logging"
)

// SuspectOffsetSeconds flags offsets large enough to suggest a wrong clock or
// timezone setting. Suspect offsets are logged and still applied.
const SuspectOffsetSeconds = 3600.0

// CameraOffset records how one camera's offset was derived.
type CameraOffset struct {
	Camera    string  `json:"camera"`
	Offset    float64 `json:"offset_s"`
	RawOffset float64 `json:"raw_offset_s"`
	Source    string  `json:"source_clip,omitempty"`
	Start     float64 `json:"clip_start_epoch,omitempty"`
	Manual    bool    `json:"manual,omitempty"`
	Suspect   bool    `json:"suspect,omitempty"`
}

// Result is the persisted alignment artifact.
type Result struct {
	ReferenceEpoch float64        `json:"reference_epoch"`
	HasReference   bool           `json:"has_reference"`
	Cameras        []CameraOffset `json:"cameras"`
}

// Offsets returns the final offset per camera.
func (r Result) Offsets() map[string]float64 {
	out := make(map[string]float64, len(r.Cameras))
	for _, c := range r.Cameras {
		out[c.Camera] = c.Offset
	}
	return out
}

// Compute derives per-camera offsets. For each camera it picks the clip whose
// corrected start is nearest the reference; raw offset is start - reference.
// Offsets are then shifted so the earliest camera sits at 0. Without a
// reference every camera gets 0. Manual offsets replace computed ones.
func Compute(clips []footage.Probed, reference float64, hasReference bool, manual map[string]float64, registry *camera.Registry, logger *slog.Logger) Result {
	logger = logging.NewComponentLogger(logger, "align")
	result := Result{ReferenceEpoch: reference, HasReference: hasReference}
	groups := footage.ByCamera(clips)

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range registry.Names() {
		if _, ok := groups[name]; !ok {
			logging.ErrorWithContext(logger, "no usable clips for camera", "camera_missing",
				logging.String(logging.FieldCamera, name),
				logging.String(logging.FieldErrorHint, "check the camera's files probe cleanly"),
			)
		}
	}

	if !hasReference {
		logging.WarnWithContext(logger, "gps reference unavailable, offsets set to zero", "align_no_gps",
			logging.String(logging.FieldErrorHint, "provide a GPX file to align cameras"),
			logging.String(logging.FieldImpact, "cameras assumed to share one clock"),
		)
		for _, name := range names {
			result.Cameras = append(result.Cameras, CameraOffset{Camera: name})
		}
		applyManual(&result, manual, registry, logger)
		return result
	}

	minRaw := math.Inf(1)
	for _, name := range names {
		best := groups[name][0]
		for _, clip := range groups[name][1:] {
			if math.Abs(clip.Start-reference) < math.Abs(best.Start-reference) {
				best = clip
			}
		}
		raw := best.Start - reference
		minRaw = math.Min(minRaw, raw)
		result.Cameras = append(result.Cameras, CameraOffset{
			Camera:    name,
			RawOffset: raw,
			Source:    best.Name,
			Start:     best.Start,
		})
	}
	for i := range result.Cameras {
		c := &result.Cameras[i]
		c.Offset = c.RawOffset - minRaw
		if math.Abs(c.Offset) > SuspectOffsetSeconds {
			c.Suspect = true
			logging.WarnWithContext(logger, "camera offset exceeds sanity threshold", "align_offset_suspect",
				logging.String(logging.FieldCamera, c.Camera),
				logging.Float64("offset_s", c.Offset),
				logging.String(logging.FieldErrorHint, "check the camera clock and cameras.creation_time_tz"),
				logging.String(logging.FieldImpact, "offset applied as computed"),
			)
		}
		logger.Info("camera aligned",
			logging.String(logging.FieldCamera, c.Camera),
			logging.Float64("offset_s", c.Offset),
			logging.Float64("raw_offset_s", c.RawOffset),
			logging.String(logging.FieldClip, c.Source),
		)
	}
	applyManual(&result, manual, registry, logger)
	return result
}

func applyManual(result *Result, manual map[string]float64, registry *camera.Registry, logger *slog.Logger) {
	if len(manual) == 0 {
		return
	}
	index := make(map[string]int, len(result.Cameras))
	for i, c := range result.Cameras {
		index[c.Camera] = i
	}
	keys := make([]string, 0, len(manual))
	for k := range manual {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := registry.Normalize(key)
		value := manual[key]
		i, ok := index[name]
		if !ok {
			result.Cameras = append(result.Cameras, CameraOffset{Camera: name})
			i = len(result.Cameras) - 1
			index[name] = i
		}
		result.Cameras[i].Offset = value
		result.Cameras[i].Manual = true
		logger.Info("manual camera offset applied",
			logging.String(logging.FieldCamera, name),
			logging.Float64("offset_s", value),
		)
	}
}

// Apply writes offsets into the registry. SetOffset refuses a second write
// for the same camera within a run.
func Apply(result Result, registry *camera.Registry) error {
	for _, c := range result.Cameras {
		if !registry.Known(c.Camera) {
			continue
		}
		if err := registry.SetOffset(c.Camera, c.Offset); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the alignment result.
func Save(path string, result Result) error {
	if err := fileutil.WriteJSON(path, result); err != nil {
		return fmt.Errorf("write camera offsets: %w", err)
	}
	return nil
}

// Load reads a persisted alignment result.
func Load(path string) (Result, error) {
	var result Result
	if err := fileutil.ReadJSON(path, &result); err != nil {
		return Result{}, fmt.Errorf("read camera offsets: %w", err)
	}
	return result, nil
}
