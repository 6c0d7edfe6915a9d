package config

const (
	defaultConfigPath           = "~/.config/ridereel/config.toml"
	defaultProjectDir           = "."
	defaultInputDirName         = "source_videos"
	defaultGPXFileName          = "ride.gpx"
	defaultSegmentsFileName     = "segments.json"
	defaultMusicDirName         = "music"
	defaultWorkingDirName       = "working"
	defaultClipsDirName         = "clips"
	defaultOutputDirName        = "highlights"
	defaultLogDirName           = "logs"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultCreationTimeTZ       = "+10:00"
	defaultSampleInterval       = 5.0
	defaultThumbnailSize        = 64
	defaultGPSMatchTolerance    = 2.0
	defaultMaxGradientPct       = 25.0
	defaultPartnerTolerance     = 2.0
	defaultDetectBatchSize      = 0
	defaultDetectMinConfidence  = 0.10
	defaultDetectImageSize      = 640
	defaultSceneWindowSeconds   = 8.0
	defaultHighlightTarget      = 180.0
	defaultClipLength           = 2.8
	defaultPreRoll              = 0.2
	defaultPoolMultiplier       = 2.5
	defaultMinGap               = 45.0
	defaultSceneHighThreshold   = 0.50
	defaultSceneMajorThreshold  = 0.70
	defaultMinDetectScore       = 0.10
	defaultBitrate              = "8M"
	defaultMaxRate              = "12M"
	defaultBufSize              = "24M"
	defaultPixFmt               = "yuv420p"
	defaultPiPScale             = 0.30
	defaultPiPMargin            = 30
	defaultMinimapSize          = 360
	defaultElevationWidth       = 360
	defaultElevationHeight      = 90
	defaultGaugeSize            = 150
	defaultAudioSampleRate      = 48000
	defaultRawVolume            = 0.6
	defaultMusicVolume          = 0.5
	defaultSegmentTargetSeconds = 30.0
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	scoreWeightSumTolerance     = 0.01
	defaultFrontCameraWeight    = 2.0
	defaultRearCameraWeight     = 1.0
	defaultFrontCameraName      = "Fly12Sport"
	defaultRearCameraName       = "Fly6Pro"
	defaultDetectClass          = "bicycle"
	defaultGaugeMaxSpeed        = 80.0
	defaultGaugeMaxCadence      = 120.0
	defaultGaugeMaxHeartRate    = 180.0
	defaultGaugeMaxElevation    = 5000.0
	defaultGaugeMaxGradient     = 10.0
	defaultScoreDetectWeight    = 0.20
	defaultScoreSceneWeight     = 0.35
	defaultScoreSpeedWeight     = 0.25
	defaultScoreGradientWeight  = 0.10
	defaultScoreBBoxWeight      = 0.10
)

var defaultPreferredEncoders = []string{"h264_videotoolbox", "h264_nvenc", "libx264"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectDir: defaultProjectDir,
		},
		Cameras: Cameras{
			Weights: map[string]float64{
				defaultFrontCameraName: defaultFrontCameraWeight,
				defaultRearCameraName:  defaultRearCameraWeight,
			},
			KnownOffsets:              map[string]float64{},
			ManualOffsets:             map[string]float64{},
			CreationTimeTZ:            defaultCreationTimeTZ,
			CreationTimeIsLocalWrongZ: true,
		},
		Sampling: Sampling{
			IntervalSeconds: defaultSampleInterval,
			ThumbnailSize:   defaultThumbnailSize,
		},
		GPS: GPS{
			MatchToleranceSeconds: defaultGPSMatchTolerance,
			MaxGradientPct:        defaultMaxGradientPct,
		},
		Pairing: Pairing{
			PartnerToleranceSeconds: defaultPartnerTolerance,
		},
		Detection: Detection{
			Classes:       []string{defaultDetectClass},
			ClassWeights:  map[string]float64{},
			BatchSize:     defaultDetectBatchSize,
			MinConfidence: defaultDetectMinConfidence,
			ImageSize:     defaultDetectImageSize,
		},
		Scoring: Scoring{
			DetectWeight:       defaultScoreDetectWeight,
			SceneWeight:        defaultScoreSceneWeight,
			SpeedWeight:        defaultScoreSpeedWeight,
			GradientWeight:     defaultScoreGradientWeight,
			BBoxWeight:         defaultScoreBBoxWeight,
			SceneWindowSeconds: defaultSceneWindowSeconds,
		},
		Selection: Selection{
			HighlightTargetSeconds: defaultHighlightTarget,
			ClipLengthSeconds:      defaultClipLength,
			PreRollSeconds:         defaultPreRoll,
			PoolMultiplier:         defaultPoolMultiplier,
			MinGapSeconds:          defaultMinGap,
			ScenePriority:          true,
			SceneHighThreshold:     defaultSceneHighThreshold,
			SceneMajorThreshold:    defaultSceneMajorThreshold,
			MinDetectScore:         defaultMinDetectScore,
		},
		Render: Render{
			FFmpegBinary:      defaultFFmpegBinary,
			FFprobeBinary:     defaultFFprobeBinary,
			PreferredEncoders: append([]string(nil), defaultPreferredEncoders...),
			Bitrate:           defaultBitrate,
			MaxRate:           defaultMaxRate,
			BufSize:           defaultBufSize,
			PixFmt:            defaultPixFmt,
			PiPScale:          defaultPiPScale,
			PiPMargin:         defaultPiPMargin,
			MinimapSize:       defaultMinimapSize,
			ElevationWidth:    defaultElevationWidth,
			ElevationHeight:   defaultElevationHeight,
			GaugeSize:         defaultGaugeSize,
			GaugeMaxima: map[string]float64{
				"speed":     defaultGaugeMaxSpeed,
				"cadence":   defaultGaugeMaxCadence,
				"hr":        defaultGaugeMaxHeartRate,
				"elevation": defaultGaugeMaxElevation,
				"gradient":  defaultGaugeMaxGradient,
			},
			AudioSampleRate: defaultAudioSampleRate,
		},
		Music: Music{
			RawVolume:            defaultRawVolume,
			MusicVolume:          defaultMusicVolume,
			SegmentTargetSeconds: defaultSegmentTargetSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
