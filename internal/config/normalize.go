package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCameras()
	c.normalizeDetection()
	c.normalizeRender()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ProjectDir) == "" {
		c.Paths.ProjectDir = defaultProjectDir
	}
	if c.Paths.ProjectDir, err = expandPath(c.Paths.ProjectDir); err != nil {
		return fmt.Errorf("paths.project_dir: %w", err)
	}

	derived := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.input_dir", &c.Paths.InputDir, defaultInputDirName},
		{"paths.gpx_file", &c.Paths.GPXFile, defaultGPXFileName},
		{"paths.segments_file", &c.Paths.SegmentsFile, defaultSegmentsFileName},
		{"paths.music_dir", &c.Paths.MusicDir, defaultMusicDirName},
		{"paths.working_dir", &c.Paths.WorkingDir, defaultWorkingDirName},
		{"paths.clips_dir", &c.Paths.ClipsDir, defaultClipsDirName},
		{"paths.output_dir", &c.Paths.OutputDir, defaultOutputDirName},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDirName},
	}
	for _, entry := range derived {
		value := strings.TrimSpace(*entry.value)
		if value == "" {
			value = entry.fallback
		}
		// Relative entries live under the project directory.
		if !strings.HasPrefix(value, "~") && !filepath.IsAbs(value) {
			value = filepath.Join(c.Paths.ProjectDir, value)
		}
		if *entry.value, err = expandPath(value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeCameras() {
	if c.Cameras.Weights == nil {
		c.Cameras.Weights = map[string]float64{}
	}
	if c.Cameras.KnownOffsets == nil {
		c.Cameras.KnownOffsets = map[string]float64{}
	}
	if c.Cameras.ManualOffsets == nil {
		c.Cameras.ManualOffsets = map[string]float64{}
	}
	c.Cameras.CreationTimeTZ = strings.TrimSpace(c.Cameras.CreationTimeTZ)
	if c.Cameras.CreationTimeTZ == "" {
		c.Cameras.CreationTimeTZ = defaultCreationTimeTZ
	}
}

func (c *Config) normalizeDetection() {
	c.Detection.Command = strings.TrimSpace(c.Detection.Command)
	classes := make([]string, 0, len(c.Detection.Classes))
	seen := make(map[string]struct{}, len(c.Detection.Classes))
	for _, class := range c.Detection.Classes {
		class = strings.ToLower(strings.TrimSpace(class))
		if class == "" {
			continue
		}
		if _, ok := seen[class]; ok {
			continue
		}
		seen[class] = struct{}{}
		classes = append(classes, class)
	}
	if len(classes) == 0 {
		classes = []string{defaultDetectClass}
	}
	c.Detection.Classes = classes
	if c.Detection.ClassWeights == nil {
		c.Detection.ClassWeights = map[string]float64{}
	}
	if c.Detection.ImageSize <= 0 {
		c.Detection.ImageSize = defaultDetectImageSize
	}
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	c.Render.FFprobeBinary = strings.TrimSpace(c.Render.FFprobeBinary)
	encoders := c.Render.PreferredEncoders[:0]
	for _, enc := range c.Render.PreferredEncoders {
		if enc = strings.TrimSpace(enc); enc != "" {
			encoders = append(encoders, enc)
		}
	}
	if len(encoders) == 0 {
		encoders = append(encoders, defaultPreferredEncoders...)
	}
	c.Render.PreferredEncoders = encoders
	if strings.TrimSpace(c.Render.PixFmt) == "" {
		c.Render.PixFmt = defaultPixFmt
	}
	if c.Render.AudioSampleRate <= 0 {
		c.Render.AudioSampleRate = defaultAudioSampleRate
	}
	if c.Render.GaugeMaxima == nil {
		c.Render.GaugeMaxima = map[string]float64{}
	}
	for key, fallback := range map[string]float64{
		"speed":     defaultGaugeMaxSpeed,
		"cadence":   defaultGaugeMaxCadence,
		"hr":        defaultGaugeMaxHeartRate,
		"elevation": defaultGaugeMaxElevation,
		"gradient":  defaultGaugeMaxGradient,
	} {
		if c.Render.GaugeMaxima[key] <= 0 {
			c.Render.GaugeMaxima[key] = fallback
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			stage = strings.ToLower(strings.TrimSpace(stage))
			level = strings.ToLower(strings.TrimSpace(level))
			if stage == "" || level == "" {
				continue
			}
			normalized[stage] = level
		}
		c.Logging.StageOverrides = normalized
	}
}
