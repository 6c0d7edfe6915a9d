package timemodel

import (
	"errors"
	"testing"

	"ridereel/internal/records"
)

func TestDerivedValues(t *testing.T) {
	m, err := New(1000.0, 990.0, 60.0, 5.0)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.MomentID(); got != 200 {
		t.Fatalf("MomentID = %d, want 200", got)
	}
	if got := m.InClipOffset(); got != 10 {
		t.Fatalf("InClipOffset = %v, want 10", got)
	}
	if got := m.RenderSeek(0.2); got < 9.79 || got > 9.81 {
		t.Fatalf("RenderSeek = %v, want 9.8", got)
	}
	if !m.ValidForSeek() || !m.ValidWithDuration(2.8) {
		t.Fatal("expected valid seek")
	}
}

func TestRenderSeekNeverNegative(t *testing.T) {
	for _, tc := range []struct {
		abs, start, preRoll float64
	}{
		{1000, 1000, 0.2},
		{1000, 1000.1, 0.2},
		{1000, 1005, 0},
		{1000.05, 1000, 1},
	} {
		m, _ := New(tc.abs, tc.start, 30, 5)
		if seek := m.RenderSeek(tc.preRoll); seek < 0 {
			t.Fatalf("RenderSeek(%+v) = %v", tc, seek)
		}
	}
}

func TestValidity(t *testing.T) {
	tests := []struct {
		name       string
		abs        float64
		start      float64
		duration   float64
		seek       bool
		withLength bool
	}{
		{"before start", 99, 100, 10, false, false},
		{"at start", 100, 100, 10, true, true},
		{"near end", 108, 100, 10, true, false},
		{"at end", 110, 100, 10, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := New(tt.abs, tt.start, tt.duration, 5)
			if m.ValidForSeek() != tt.seek {
				t.Fatalf("ValidForSeek = %v, want %v", m.ValidForSeek(), tt.seek)
			}
			if m.ValidWithDuration(2.8) != tt.withLength {
				t.Fatalf("ValidWithDuration = %v, want %v", m.ValidWithDuration(2.8), tt.withLength)
			}
		})
	}
}

func TestCameraAgnosticBuckets(t *testing.T) {
	front := records.Frame{Index: "f", AbsTimeEpoch: 1700000005, ClipStartEpoch: 1700000000, ClipDuration: 600}
	rear := records.Frame{Index: "r", AbsTimeEpoch: 1700000005, ClipStartEpoch: 1699999990, ClipDuration: 600}
	fm, err := FromFrame(&front, 5)
	if err != nil {
		t.Fatal(err)
	}
	rm, err := FromFrame(&rear, 5)
	if err != nil {
		t.Fatal(err)
	}
	if fm.MomentID() != rm.MomentID() {
		t.Fatal("same instant must share a bucket")
	}
	if fm.RenderSeek(0.2) == rm.RenderSeek(0.2) {
		t.Fatal("seeks must be computed per camera")
	}
}

func TestFromFrameRejectsMissingTiming(t *testing.T) {
	cases := []records.Frame{
		{AbsTimeEpoch: 0, ClipStartEpoch: 1, ClipDuration: 1},
		{AbsTimeEpoch: 1, ClipStartEpoch: 0, ClipDuration: 1},
		{AbsTimeEpoch: 1, ClipStartEpoch: 1, ClipDuration: 0},
	}
	for i := range cases {
		if _, err := FromFrame(&cases[i], 5); !errors.Is(err, ErrInvalidTiming) {
			t.Fatalf("case %d: expected ErrInvalidTiming, got %v", i, err)
		}
	}
	if _, err := New(1, 1, 1, 0); !errors.Is(err, ErrInvalidTiming) {
		t.Fatalf("zero interval: %v", err)
	}
}
