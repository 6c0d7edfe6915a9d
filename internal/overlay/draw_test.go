package overlay

import (
	"math"
	"testing"
)

func TestFillCircleAntialiasesRim(t *testing.T) {
	img := newCanvas(40, 40)
	fillCircle(img, 20, 20, 10.5, white)
	if a := img.RGBAAt(20, 20).A; a != 255 {
		t.Fatalf("centre alpha = %d", a)
	}
	if a := img.RGBAAt(2, 2).A; a != 0 {
		t.Fatalf("outside alpha = %d", a)
	}
	partial := 0
	for x := 28; x < 32; x++ {
		if a := img.RGBAAt(x, 20).A; a > 0 && a < 255 {
			partial++
		}
	}
	if partial == 0 {
		t.Fatal("expected a partially covered rim pixel")
	}
}

func TestStrokeArcLeavesHole(t *testing.T) {
	img := newCanvas(60, 60)
	strokeArc(img, 30, 30, 15, 20, 0, 2*math.Pi, white)
	if a := img.RGBAAt(30, 30).A; a != 0 {
		t.Fatalf("ring centre alpha = %d", a)
	}
	if a := img.RGBAAt(47, 30).A; a != 255 {
		t.Fatalf("ring body alpha = %d", a)
	}

	half := newCanvas(60, 60)
	strokeArc(half, 30, 30, 15, 20, 0, math.Pi, white)
	if a := half.RGBAAt(30, 47).A; a != 255 {
		t.Fatalf("lower half alpha = %d", a)
	}
	if a := half.RGBAAt(30, 12).A; a != 0 {
		t.Fatalf("upper half alpha = %d", a)
	}
}

func TestStrokePolylineMergesOverlaps(t *testing.T) {
	img := newCanvas(40, 20)
	// Doubling back must not cancel coverage.
	strokePolyline(img, []routePoint{{5, 10}, {35, 10}, {5, 10}}, 4, white)
	if a := img.RGBAAt(20, 10).A; a != 255 {
		t.Fatalf("overlap alpha = %d", a)
	}
	if a := img.RGBAAt(20, 2).A; a != 0 {
		t.Fatalf("off-line alpha = %d", a)
	}
}

func TestFillRoundedRectClipsCorners(t *testing.T) {
	img := newCanvas(50, 30)
	fillRoundedRect(img, img.Bounds(), 10, white)
	if a := img.RGBAAt(0, 0).A; a != 0 {
		t.Fatalf("corner alpha = %d", a)
	}
	if a := img.RGBAAt(25, 15).A; a != 255 {
		t.Fatalf("centre alpha = %d", a)
	}
	if a := img.RGBAAt(25, 0).A; a != 255 {
		t.Fatalf("top edge alpha = %d", a)
	}
}
