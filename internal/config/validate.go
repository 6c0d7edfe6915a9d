package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCameras(); err != nil {
		return err
	}
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateTolerances(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validateSelection(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateMusic(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateCameras() error {
	for name, weight := range c.Cameras.Weights {
		if weight < 0 {
			return fmt.Errorf("cameras.weights.%s must be non-negative", name)
		}
	}
	if _, err := ParseFixedZone(c.Cameras.CreationTimeTZ); err != nil {
		return fmt.Errorf("cameras.creation_time_tz: %w", err)
	}
	return nil
}

func (c *Config) validateSampling() error {
	if c.Sampling.IntervalSeconds <= 0 {
		return errors.New("sampling.interval_s must be positive")
	}
	if c.Sampling.GridExtensionSeconds < 0 {
		return errors.New("sampling.grid_extension_s must be non-negative")
	}
	if c.Sampling.ThumbnailSize < 8 {
		return errors.New("sampling.thumbnail_size must be at least 8")
	}
	return nil
}

func (c *Config) validateTolerances() error {
	if c.GPS.MatchToleranceSeconds <= 0 {
		return errors.New("gps.match_tolerance_s must be positive")
	}
	if c.GPS.MaxGradientPct <= 0 {
		return errors.New("gps.max_gradient_pct must be positive")
	}
	if c.Pairing.PartnerToleranceSeconds <= 0 {
		return errors.New("pairing.partner_tolerance_s must be positive")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.BatchSize < 0 {
		return errors.New("detection.batch_size must be zero (auto) or positive")
	}
	if c.Detection.MinConfidence < 0 || c.Detection.MinConfidence > 1 {
		return errors.New("detection.min_confidence must be between 0 and 1")
	}
	for class, weight := range c.Detection.ClassWeights {
		if weight < 0 {
			return fmt.Errorf("detection.class_weights.%s must be non-negative", class)
		}
	}
	return nil
}

func (c *Config) validateScoring() error {
	weights := map[string]float64{
		"detect_weight":   c.Scoring.DetectWeight,
		"scene_weight":    c.Scoring.SceneWeight,
		"speed_weight":    c.Scoring.SpeedWeight,
		"gradient_weight": c.Scoring.GradientWeight,
		"bbox_weight":     c.Scoring.BBoxWeight,
	}
	for key, value := range weights {
		if value < 0 {
			return fmt.Errorf("scoring.%s must be non-negative", key)
		}
	}
	if c.Scoring.SceneWindowSeconds <= 0 {
		return errors.New("scoring.scene_window_s must be positive")
	}
	return nil
}

// ScoreWeightsBalanced reports whether the detect/scene/speed/gradient/bbox weights sum to 1.
// An unbalanced set is allowed but worth a warning.
func (c *Config) ScoreWeightsBalanced() bool {
	sum := c.Scoring.DetectWeight + c.Scoring.SceneWeight + c.Scoring.SpeedWeight +
		c.Scoring.GradientWeight + c.Scoring.BBoxWeight
	return math.Abs(sum-1.0) <= scoreWeightSumTolerance
}

func (c *Config) validateSelection() error {
	s := c.Selection
	if s.ClipLengthSeconds <= 0 {
		return errors.New("selection.clip_len_s must be positive")
	}
	if s.PreRollSeconds < 0 {
		return errors.New("selection.pre_roll_s must be non-negative")
	}
	if s.TargetClips < 0 {
		return errors.New("selection.target_clips must be zero (derive) or positive")
	}
	if s.TargetClips == 0 && s.HighlightTargetSeconds < s.ClipLengthSeconds {
		return errors.New("selection.highlight_target_s must cover at least one clip")
	}
	if s.PoolMultiplier < 1 {
		return errors.New("selection.pool_multiplier must be at least 1")
	}
	if s.MinGapSeconds < 0 {
		return errors.New("selection.min_gap_s must be non-negative")
	}
	if s.SceneHighThreshold < 0 || s.SceneMajorThreshold > 1 || s.SceneHighThreshold > s.SceneMajorThreshold {
		return errors.New("selection.scene_high_threshold must not exceed selection.scene_major_threshold (both within 0..1)")
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	if r.PiPScale <= 0 || r.PiPScale >= 1 {
		return errors.New("render.pip_scale must be between 0 and 1")
	}
	if r.PiPMargin < 0 {
		return errors.New("render.pip_margin must be non-negative")
	}
	if r.MinimapSize <= 0 || r.ElevationWidth <= 0 || r.ElevationHeight <= 0 || r.GaugeSize <= 0 {
		return errors.New("render overlay sizes must be positive")
	}
	for _, value := range []struct{ key, v string }{
		{"render.bitrate", r.Bitrate},
		{"render.maxrate", r.MaxRate},
		{"render.bufsize", r.BufSize},
	} {
		if strings.TrimSpace(value.v) == "" {
			return fmt.Errorf("%s must be set", value.key)
		}
	}
	if r.Workers < 0 || r.HardwareWorkers < 0 {
		return errors.New("render.workers and render.hw_workers must be zero (auto) or positive")
	}
	return nil
}

func (c *Config) validateMusic() error {
	if c.Music.RawVolume < 0 || c.Music.MusicVolume < 0 {
		return errors.New("music volumes must be non-negative")
	}
	if c.Music.SegmentTargetSeconds <= 0 {
		return errors.New("music.segment_target_s must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

// ParseFixedZone parses "+10:00", "-0530", "+10", or "UTC" into a fixed time zone.
func ParseFixedZone(value string) (*time.Location, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "utc") || value == "Z" {
		return time.UTC, nil
	}
	sign := 1
	switch value[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return nil, fmt.Errorf("invalid zone offset %q", value)
	}
	digits := strings.ReplaceAll(value[1:], ":", "")
	var hours, minutes int
	switch len(digits) {
	case 1, 2:
		if _, err := fmt.Sscanf(digits, "%d", &hours); err != nil {
			return nil, fmt.Errorf("invalid zone offset %q", value)
		}
	case 4:
		if _, err := fmt.Sscanf(digits, "%2d%2d", &hours, &minutes); err != nil {
			return nil, fmt.Errorf("invalid zone offset %q", value)
		}
	default:
		return nil, fmt.Errorf("invalid zone offset %q", value)
	}
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("zone offset %q out of range", value)
	}
	offset := sign * (hours*3600 + minutes*60)
	return time.FixedZone(value, offset), nil
}
