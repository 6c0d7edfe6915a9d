package pipeline

import (
	"context"
	"fmt"
	"strings"

	"ridereel/internal/fileutil"
	"ridereel/internal/project"
	"ridereel/internal/runstate"
)

// Stage names in execution order.
const (
	Flatten = "flatten"
	Align   = "align"
	Extract = "extract"
	Analyze = "analyze"
	Select  = "select"
	Build   = "build"
	Concat  = "concat"
)

// Artifact is one file a stage reads or writes.
type Artifact struct {
	Label string
	Path  string
	// Producer is the stage that writes the artifact.
	Producer string
}

// Exists reports whether the artifact is present and non-empty.
func (a Artifact) Exists() bool {
	return fileutil.NonEmpty(a.Path)
}

// Stage is one named pipeline step.
type Stage struct {
	Name        string
	Description string
	requires    func(project.Layout) []Artifact
	produces    func(project.Layout) []Artifact
	run         func(ctx context.Context, env *Env) (runstate.Outcome, error)
}

// Requires lists the artifacts the stage cannot run without.
func (s Stage) Requires(l project.Layout) []Artifact {
	if s.requires == nil {
		return nil
	}
	return s.requires(l)
}

// Produces lists the artifacts the stage writes.
func (s Stage) Produces(l project.Layout) []Artifact {
	if s.produces == nil {
		return nil
	}
	return s.produces(l)
}

// Health lists what keeps a stage from running.
type Health struct {
	Stage   string
	Missing []Artifact
}

// Ready is true when nothing is missing.
func (h Health) Ready() bool { return len(h.Missing) == 0 }

// Detail describes the first missing artifact.
func (h Health) Detail() string {
	if h.Ready() {
		return ""
	}
	a := h.Missing[0]
	return fmt.Sprintf("missing %s %s (run %s)", a.Label, a.Path, a.Producer)
}

// Check reports which required artifacts are absent.
func (s Stage) Check(l project.Layout) Health {
	h := Health{Stage: s.Name}
	for _, a := range s.Requires(l) {
		if !a.Exists() {
			h.Missing = append(h.Missing, a)
		}
	}
	return h
}

func trackArtifact(l project.Layout) Artifact {
	return Artifact{Label: "GPS timeline", Path: l.Flatten(), Producer: Flatten}
}

func offsetsArtifact(l project.Layout) Artifact {
	return Artifact{Label: "camera offsets", Path: l.Offsets(), Producer: Align}
}

func extractArtifact(l project.Layout) Artifact {
	return Artifact{Label: "frame samples", Path: l.Extract(), Producer: Extract}
}

func enrichedArtifact(l project.Layout) Artifact {
	return Artifact{Label: "scored frames", Path: l.Enriched(), Producer: Analyze}
}

func selectArtifact(l project.Layout) Artifact {
	return Artifact{Label: "selected moments", Path: l.Select(), Producer: Select}
}

func clipsArtifact(l project.Layout) Artifact {
	return Artifact{Label: "rendered clip list", Path: l.ClipManifest(), Producer: Build}
}

func segmentsArtifact(l project.Layout) Artifact {
	return Artifact{Label: "segment list", Path: l.SegmentManifest(), Producer: Concat}
}

func artifacts(fns ...func(project.Layout) Artifact) func(project.Layout) []Artifact {
	return func(l project.Layout) []Artifact {
		out := make([]Artifact, len(fns))
		for i, fn := range fns {
			out[i] = fn(l)
		}
		return out
	}
}

var stages = []Stage{
	{
		Name:        Flatten,
		Description: "Resample ride.gpx onto a 1 Hz telemetry timeline",
		produces:    artifacts(trackArtifact),
		run:         runFlatten,
	},
	{
		Name:        Align,
		Description: "Reconcile camera clocks against the GPS timeline",
		requires:    artifacts(trackArtifact),
		produces:    artifacts(offsetsArtifact),
		run:         runAlign,
	},
	{
		Name:        Extract,
		Description: "Sample both cameras on the shared time grid",
		requires:    artifacts(trackArtifact),
		produces:    artifacts(extractArtifact),
		run:         runExtract,
	},
	{
		Name:        Analyze,
		Description: "Score sampled frames on detection, scene change, and telemetry",
		requires:    artifacts(extractArtifact),
		produces:    artifacts(enrichedArtifact),
		run:         runAnalyze,
	},
	{
		Name:        Select,
		Description: "Pair cameras into moments and pick a spaced highlight set",
		requires:    artifacts(enrichedArtifact),
		produces:    artifacts(selectArtifact),
		run:         runSelect,
	},
	{
		Name:        Build,
		Description: "Render overlays and encode one clip per selected moment",
		requires:    artifacts(selectArtifact),
		produces:    artifacts(clipsArtifact),
		run:         runBuild,
	},
	{
		Name:        Concat,
		Description: "Join clips into music-backed highlight segments",
		requires:    artifacts(selectArtifact, clipsArtifact),
		produces:    artifacts(segmentsArtifact),
		run:         runConcat,
	},
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	return append([]Stage(nil), stages...)
}

// Lookup finds a stage by name, case-insensitively.
func Lookup(name string) (Stage, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// Range returns the stages from..to inclusive. Empty bounds mean the first
// and last stage.
func Range(from, to string) ([]Stage, error) {
	start, end := 0, len(stages)-1
	if strings.TrimSpace(from) != "" {
		i, err := indexOf(from)
		if err != nil {
			return nil, err
		}
		start = i
	}
	if strings.TrimSpace(to) != "" {
		i, err := indexOf(to)
		if err != nil {
			return nil, err
		}
		end = i
	}
	if start > end {
		return nil, fmt.Errorf("stage %q runs after %q", stages[start].Name, stages[end].Name)
	}
	return append([]Stage(nil), stages[start:end+1]...), nil
}

func indexOf(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, s := range stages {
		if s.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(stageNames(), ", "))
}

func stageNames() []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}
