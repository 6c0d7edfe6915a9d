package scoring_test

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"ridereel/internal/camera"
	"ridereel/internal/config"
	"ridereel/internal/logging"
	"ridereel/internal/records"
	"ridereel/internal/scoring"
)

func defaults(t *testing.T) (scoring.Weights, *camera.Registry) {
	t.Helper()
	cfg := config.Default()
	return scoring.WeightsFrom(cfg.Scoring), camera.NewRegistry(cfg.Cameras, logging.NewNop())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestDefaultWeightsBalanced(t *testing.T) {
	w, _ := defaults(t)
	if !w.Balanced() {
		t.Fatalf("default weights sum to %v", w.Sum())
	}
}

func TestUnbalancedWeightsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	_, registry := defaults(t)
	scoring.NewCalculator(scoring.Weights{Detect: 0.5, Scene: 0.7}, registry, logger)
	if !strings.Contains(buf.String(), "score_weights_unbalanced") {
		t.Fatalf("expected unbalanced warning, got %s", buf.String())
	}
}

func TestCompositeFormula(t *testing.T) {
	w, registry := defaults(t)
	calc := scoring.NewCalculator(w, registry, logging.NewNop())

	tests := []struct {
		name  string
		frame records.Frame
		want  float64
	}{
		{
			name:  "no telemetry",
			frame: records.Frame{DetectScore: 0.5, SceneScore: 1, GPXMissing: true},
			want:  0.20*0.5 + 0.35,
		},
		{
			name: "speed clamps at 60 km/h",
			frame: records.Frame{
				SpeedKMH:    records.Float(90),
				GradientPct: records.Float(-4),
				BBoxArea:    200_000,
			},
			want: 0.25 + 0.10*0.5 + 0.10*0.5,
		},
		{
			name:  "segment boost is additive",
			frame: records.Frame{SpeedKMH: records.Float(30), SegmentBoost: 0.7},
			want:  0.25*0.5 + 0.7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calc.Composite(&tt.frame); !approx(got, tt.want) {
				t.Fatalf("Composite = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyNormalizesAndWeighs(t *testing.T) {
	w, registry := defaults(t)
	calc := scoring.NewCalculator(w, registry, logging.NewNop())
	frames := []records.Frame{
		{Camera: camera.Front, SceneScore: 0.2},
		{Camera: camera.Rear, SceneScore: 0.4},
	}
	stats := calc.Apply(frames)

	if !approx(frames[0].SceneScore, 0.5) || !approx(frames[1].SceneScore, 1) {
		t.Fatalf("scene not normalized: %v %v", frames[0].SceneScore, frames[1].SceneScore)
	}
	if !approx(frames[0].Weighted, frames[0].Composite*2) {
		t.Fatalf("front weight not applied: %v vs %v", frames[0].Weighted, frames[0].Composite)
	}
	if !approx(frames[1].Weighted, frames[1].Composite) {
		t.Fatalf("rear weight should be 1: %v vs %v", frames[1].Weighted, frames[1].Composite)
	}
	if stats.Frames != 2 || !approx(stats.CompositeMax, 0.35) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestNormalizeSkippedWithoutSceneWeight(t *testing.T) {
	_, registry := defaults(t)
	calc := scoring.NewCalculator(scoring.Weights{Detect: 1}, registry, logging.NewNop())
	frames := []records.Frame{{SceneScore: 0.2}, {SceneScore: 0.4}}
	if peak := calc.NormalizeScenes(frames); !approx(peak, 0.4) {
		t.Fatalf("peak = %v", peak)
	}
	if !approx(frames[0].SceneScore, 0.2) {
		t.Fatalf("scene should be untouched, got %v", frames[0].SceneScore)
	}

	w, _ := defaults(t)
	flat := []records.Frame{{SceneScore: 0}, {SceneScore: 1e-9}}
	scoring.NewCalculator(w, registry, logging.NewNop()).NormalizeScenes(flat)
	if flat[1].SceneScore != 1e-9 {
		t.Fatalf("negligible peak should not normalize, got %v", flat[1].SceneScore)
	}
}
