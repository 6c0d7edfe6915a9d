package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains project directory layout configuration.
type Paths struct {
	ProjectDir   string `toml:"project_dir"`
	InputDir     string `toml:"input_dir"`
	GPXFile      string `toml:"gpx_file"`
	SegmentsFile string `toml:"segments_file"`
	MusicDir     string `toml:"music_dir"`
	WorkingDir   string `toml:"working_dir"`
	ClipsDir     string `toml:"clips_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
}

// Cameras contains per-camera weighting and clock correction settings.
type Cameras struct {
	Weights       map[string]float64 `toml:"weights"`
	KnownOffsets  map[string]float64 `toml:"known_offsets"`
	ManualOffsets map[string]float64 `toml:"manual_offsets"`
	// CreationTimeTZ is the fixed zone the camera clock was set to, e.g. "+10:00".
	CreationTimeTZ string `toml:"creation_time_tz"`
	// CreationTimeIsLocalWrongZ marks creation_time tags that carry local wall-clock
	// time with a UTC "Z" suffix.
	CreationTimeIsLocalWrongZ bool `toml:"creation_time_is_local_wrong_z"`
}

// Sampling controls the frame sample grid.
type Sampling struct {
	IntervalSeconds      float64 `toml:"interval_s"`
	GridExtensionSeconds float64 `toml:"grid_extension_s"`
	ThumbnailSize        int     `toml:"thumbnail_size"`
}

// GPS controls GPX timeline handling.
type GPS struct {
	TimeOffsetSeconds     float64 `toml:"time_offset_s"`
	MatchToleranceSeconds float64 `toml:"match_tolerance_s"`
	MaxGradientPct        float64 `toml:"max_gradient_pct"`
}

// Pairing controls front/rear partner matching.
type Pairing struct {
	PartnerToleranceSeconds float64 `toml:"partner_tolerance_s"`
}

// Detection configures the external object detector.
type Detection struct {
	Command       string             `toml:"command"`
	Args          []string           `toml:"args"`
	Classes       []string           `toml:"classes"`
	ClassWeights  map[string]float64 `toml:"class_weights"`
	BatchSize     int                `toml:"batch_size"`
	MinConfidence float64            `toml:"min_confidence"`
	ImageSize     int                `toml:"image_size"`
}

// Scoring configures composite score weights.
type Scoring struct {
	DetectWeight       float64 `toml:"detect_weight"`
	SceneWeight        float64 `toml:"scene_weight"`
	SpeedWeight        float64 `toml:"speed_weight"`
	GradientWeight     float64 `toml:"gradient_weight"`
	BBoxWeight         float64 `toml:"bbox_weight"`
	SceneWindowSeconds float64 `toml:"scene_window_s"`
}

// Selection configures pool sizing and the gap filter.
type Selection struct {
	HighlightTargetSeconds float64 `toml:"highlight_target_s"`
	ClipLengthSeconds      float64 `toml:"clip_len_s"`
	PreRollSeconds         float64 `toml:"pre_roll_s"`
	TargetClips            int     `toml:"target_clips"`
	PoolMultiplier         float64 `toml:"pool_multiplier"`
	MinGapSeconds          float64 `toml:"min_gap_s"`
	ScenePriority          bool    `toml:"scene_priority"`
	SceneHighThreshold     float64 `toml:"scene_high_threshold"`
	SceneMajorThreshold    float64 `toml:"scene_major_threshold"`
	MinDetectScore         float64 `toml:"min_detect_score"`
	RequireGPS             bool    `toml:"require_gps"`
}

// Render configures clip composition and encoding.
type Render struct {
	FFmpegBinary      string             `toml:"ffmpeg_binary"`
	FFprobeBinary     string             `toml:"ffprobe_binary"`
	PreferredEncoders []string           `toml:"preferred_encoders"`
	Bitrate           string             `toml:"bitrate"`
	MaxRate           string             `toml:"maxrate"`
	BufSize           string             `toml:"bufsize"`
	PixFmt            string             `toml:"pix_fmt"`
	PiPScale          float64            `toml:"pip_scale"`
	PiPMargin         int                `toml:"pip_margin"`
	MinimapSize       int                `toml:"minimap_size"`
	ElevationWidth    int                `toml:"elevation_width"`
	ElevationHeight   int                `toml:"elevation_height"`
	GaugeSize         int                `toml:"gauge_size"`
	GaugeMaxima       map[string]float64 `toml:"gauge_maxima"`
	AudioSampleRate   int                `toml:"audio_sample_rate"`
	Workers           int                `toml:"workers"`
	HardwareWorkers   int                `toml:"hw_workers"`
}

// Music configures segment batching and background mixing.
type Music struct {
	RawVolume            float64 `toml:"raw_volume"`
	MusicVolume          float64 `toml:"music_volume"`
	SegmentTargetSeconds float64 `toml:"segment_target_s"`
	Seed                 int64   `toml:"seed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for a ridereel project.
//
// Configuration sections by subsystem:
//   - Paths: project layout and input/output locations
//   - Cameras: weights, clock bias, creation-time quirk handling
//   - Sampling, GPS, Pairing: time grid and tolerances
//   - Detection, Scoring, Selection: frame scoring and highlight choice
//   - Render, Music: clip composition, encoding, and segment assembly
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Cameras   Cameras   `toml:"cameras"`
	Sampling  Sampling  `toml:"sampling"`
	GPS       GPS       `toml:"gps"`
	Pairing   Pairing   `toml:"pairing"`
	Detection Detection `toml:"detection"`
	Scoring   Scoring   `toml:"scoring"`
	Selection Selection `toml:"selection"`
	Render    Render    `toml:"render"`
	Music     Music     `toml:"music"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	return LoadWithProject(path, "")
}

// LoadWithProject behaves like Load but overrides paths.project_dir before derived
// directories are filled in.
func LoadWithProject(path, projectDir string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if strings.TrimSpace(projectDir) != "" {
		cfg.Paths.ProjectDir = projectDir
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ridereel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the project output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkingDir, c.Paths.ClipsDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for extraction and rendering.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Render.FFmpegBinary); v != "" {
		return v
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Render.FFprobeBinary); v != "" {
		return v
	}
	return defaultFFprobeBinary
}

// TargetClips returns the number of clips the highlight reel aims for.
func (c *Config) TargetClips() int {
	if c.Selection.TargetClips > 0 {
		return c.Selection.TargetClips
	}
	if c.Selection.ClipLengthSeconds <= 0 {
		return 0
	}
	return int(c.Selection.HighlightTargetSeconds / c.Selection.ClipLengthSeconds)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
