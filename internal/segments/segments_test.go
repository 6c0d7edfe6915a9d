package segments_test

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"ridereel/internal/logging"
	"ridereel/internal/segments"
	"ridereel/internal/services"
)

type stubRunner struct {
	mu      sync.Mutex
	ops     []string
	failMix bool
}

func (s *stubRunner) Run(_ context.Context, operation string, args []string) error {
	s.mu.Lock()
	s.ops = append(s.ops, operation)
	s.mu.Unlock()
	if s.failMix && strings.HasPrefix(operation, "mix") {
		return services.Wrap(services.ErrExternalTool, "", operation, "ffmpeg failed", nil)
	}
	return os.WriteFile(args[len(args)-1], []byte(operation), 0o644)
}

func setup(t *testing.T, clips int, withMusic bool) (segments.Options, []string) {
	t.Helper()
	base := t.TempDir()
	opts := segments.Options{
		TargetSeconds: 30, ClipLength: 2.8, RawVolume: 0.6, MusicVolume: 0.5,
		MusicDir: filepath.Join(base, "music"), WorkDir: filepath.Join(base, "work"), OutputDir: filepath.Join(base, "out"),
	}
	if withMusic {
		if err := os.MkdirAll(opts.MusicDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{"a.mp3", "b.m4a", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(opts.MusicDir, name), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	var paths []string
	for i := 0; i < clips; i++ {
		paths = append(paths, filepath.Join(base, "clips", "clip_"+string(rune('a'+i%26))+".mp4"))
	}
	return opts, paths
}

func TestClipsPerSegment(t *testing.T) {
	tests := []struct {
		target, clipLen float64
		want            int
	}{
		{30, 2.8, 11},
		{28, 2.5, 12},
		{0, 2.8, 1},
		{1, 5, 1},
	}
	for _, tt := range tests {
		if got := segments.ClipsPerSegment(tt.target, tt.clipLen); got != tt.want {
			t.Errorf("ClipsPerSegment(%v, %v) = %d, want %d", tt.target, tt.clipLen, got, tt.want)
		}
	}
}

func TestPlanBatchesAndPicksMusicDeterministically(t *testing.T) {
	opts, clips := setup(t, 25, true)
	first := segments.New(opts, &stubRunner{}, rand.New(rand.NewPCG(1, 2)), logging.NewNop()).Plan(clips)
	second := segments.New(opts, &stubRunner{}, rand.New(rand.NewPCG(1, 2)), logging.NewNop()).Plan(clips)
	if len(first) != 3 || len(first[0].Clips) != 11 || len(first[2].Clips) != 3 {
		t.Fatalf("unexpected batching: %d segments", len(first))
	}
	for i := range first {
		if first[i].Music != second[i].Music {
			t.Fatal("same seed should pick the same music")
		}
		if ext := filepath.Ext(first[i].Music); ext != ".mp3" && ext != ".m4a" {
			t.Fatalf("picked non-music file %s", first[i].Music)
		}
	}
	if filepath.Base(first[1].Output) != "segment_002.mp4" {
		t.Fatalf("output = %s", first[1].Output)
	}
}

func TestBuildMixesMusic(t *testing.T) {
	opts, clips := setup(t, 3, true)
	runner := &stubRunner{}
	segs, err := segments.New(opts, runner, rand.New(rand.NewPCG(1, 2)), logging.NewNop()).Build(context.Background(), clips, 2, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(segs) != 1 || !segs[0].Mixed {
		t.Fatalf("expected one mixed segment, got %+v", segs)
	}
	data, err := os.ReadFile(segs[0].Output)
	if err != nil || string(data) != "mix segment_001" {
		t.Fatalf("segment should be the mix output: %q %v", data, err)
	}
	list, err := os.ReadFile(filepath.Join(opts.WorkDir, "segment_001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(list), "file '"+clips[0]+"'\n") || strings.Count(string(list), "\n") != 3 {
		t.Fatalf("unexpected concat list:\n%s", list)
	}
}

func TestBuildWithoutMusicCopiesThrough(t *testing.T) {
	opts, clips := setup(t, 3, false)
	runner := &stubRunner{}
	segs, err := segments.New(opts, runner, nil, logging.NewNop()).Build(context.Background(), clips, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, _ := os.ReadFile(segs[0].Output)
	if segs[0].Mixed || string(data) != "concat segment_001" {
		t.Fatalf("expected copy-through of concat output, got %q", data)
	}
}

func TestBuildFallsBackWhenMixFails(t *testing.T) {
	opts, clips := setup(t, 2, true)
	runner := &stubRunner{failMix: true}
	segs, err := segments.New(opts, runner, rand.New(rand.NewPCG(3, 4)), logging.NewNop()).Build(context.Background(), clips, 1, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if segs[0].Mixed {
		t.Fatal("mix failed, segment should not be marked mixed")
	}
	if data, _ := os.ReadFile(segs[0].Output); string(data) != "concat segment_001" {
		t.Fatalf("unexpected segment content %q", data)
	}
}

func TestBuildRejectsZeroClips(t *testing.T) {
	opts, _ := setup(t, 0, false)
	_, err := segments.New(opts, &stubRunner{}, nil, logging.NewNop()).Build(context.Background(), nil, 1, nil)
	if err == nil || services.Classify(err) != services.SeverityFatal {
		t.Fatalf("zero clips must be fatal, got %v", err)
	}
}

func TestMixArgs(t *testing.T) {
	got := strings.Join(segments.MixArgs("in.mp4", "song.mp3", "out.mp4", 0.6, 0.5), " ")
	for _, want := range []string{
		"-stream_loop -1 -i song.mp3",
		"[0:a]volume=0.6[raw];[1:a]volume=0.5[music];[raw][music]amix=inputs=2:dropout_transition=0[aout]",
		"-map 0:v -map [aout] -c:v copy",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("mix args missing %q: %s", want, got)
		}
	}
}
