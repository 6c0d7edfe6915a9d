package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ridereel/internal/services"
)

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	stats, err := Run(context.Background(), 3, 20, func(ctx context.Context, i int) error {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		defer inFlight.Add(-1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Done != 20 || stats.Total != 20 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestRunCountsSkippedItems(t *testing.T) {
	var mu sync.Mutex
	var progress []int
	stats, err := Run(context.Background(), 2, 5, func(ctx context.Context, i int) error {
		if i%2 == 0 {
			return services.Wrap(services.ErrItemSkipped, "build", "encode", "clip failed", nil)
		}
		return nil
	}, func(finished int) {
		mu.Lock()
		progress = append(progress, finished)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("per-item errors must not fail the run: %v", err)
	}
	if stats.Done != 2 || stats.Skipped != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(progress) != 5 {
		t.Fatalf("expected 5 progress callbacks, got %v", progress)
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	boom := errors.New("disk full")
	_, err := Run(context.Background(), 1, 10, func(ctx context.Context, i int) error {
		if i == 2 {
			return boom
		}
		return nil
	}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestSizesFor(t *testing.T) {
	tests := []struct {
		cores int
		want  Sizes
	}{
		{1, Sizes{Cores: 1, CPU: 2, IO: 4, FFmpeg: 2, Hardware: 2}},
		{8, Sizes{Cores: 8, CPU: 6, IO: 8, FFmpeg: 4, Hardware: 4}},
		{32, Sizes{Cores: 32, CPU: 30, IO: 16, FFmpeg: 12, Hardware: 8}},
	}
	for _, tt := range tests {
		if got := SizesFor(tt.cores); got != tt.want {
			t.Errorf("SizesFor(%d) = %+v, want %+v", tt.cores, got, tt.want)
		}
	}
	if Override(4, 0) != 4 || Override(4, 9) != 9 {
		t.Fatal("unexpected override behaviour")
	}
}

func TestDetectorBatchSize(t *testing.T) {
	if DetectorBatchSize(4*gib) != 8 || DetectorBatchSize(20*gib) != 16 || DetectorBatchSize(100*gib) != 48 {
		t.Fatal("unexpected batch sizes")
	}
	if DetectSizes().Cores <= 0 {
		t.Fatal("expected a positive core count")
	}
}
