package overlay

import (
	"fmt"
	"image"
	"math"
	"strings"
)

const (
	BadgeWidth  = 450
	BadgeHeight = 80

	badgePadding    = 4
	badgeRadius     = 8
	trophyAreaWidth = 50
	// MaxBadgeRank is the worst PR rank that still earns a badge.
	MaxBadgeRank = 3
)

// Achievement describes a segment effort worth a badge.
type Achievement struct {
	Name      string
	DistanceM float64
	GradePct  float64
	Rank      int
}

// Eligible reports whether the effort ranks inside the podium.
func (a Achievement) Eligible() bool {
	return a.Rank >= 1 && a.Rank <= MaxBadgeRank
}

// Stats formats distance and grade, omitting whichever is zero.
func (a Achievement) Stats() string {
	var parts []string
	if a.DistanceM > 0 {
		parts = append(parts, fmt.Sprintf("%.2f km", a.DistanceM/1000))
	}
	if a.GradePct != 0 {
		parts = append(parts, fmt.Sprintf("%.1f%%", a.GradePct))
	}
	return strings.Join(parts, "  ")
}

// Badge draws the PR badge: an orange trophy tab beside the segment name and
// its stats on a white card.
func Badge(a Achievement) (*image.RGBA, error) {
	img := newCanvas(BadgeWidth, BadgeHeight)
	card := image.Rect(badgePadding, badgePadding, BadgeWidth-badgePadding, BadgeHeight-badgePadding)
	fillRoundedRect(img, card, badgeRadius, badgeWhite)
	tab := image.Rect(badgePadding, badgePadding, trophyAreaWidth, BadgeHeight-badgePadding)
	fillRoundedRect(img, tab, badgeRadius, stravaOrange)
	fillRect(img, image.Rect(trophyAreaWidth-badgeRadius, badgePadding, trophyAreaWidth, BadgeHeight-badgePadding), stravaOrange)
	drawTrophy(img, float64(badgePadding+trophyAreaWidth)/2, float64(BadgeHeight)/2, 28)

	nameFace, err := newFace(20, true)
	if err != nil {
		return nil, err
	}
	defer nameFace.Close()
	statsFace, err := newFace(14, false)
	if err != nil {
		return nil, err
	}
	defer statsFace.Close()

	textX := trophyAreaWidth + 12
	name := a.Name
	if name == "" {
		name = "PR Segment"
	}
	name = truncate(nameFace, name, BadgeWidth-textX-16)
	drawText(img, nameFace, name, textX, 36, -1, darkText)
	if stats := a.Stats(); stats != "" {
		drawText(img, statsFace, stats, textX, 58, -1, grayText)
	}
	return img, nil
}

// drawTrophy paints a cup with handles, stem, and base centred on (cx, cy).
func drawTrophy(img *image.RGBA, cx, cy, size float64) {
	cupW, cupH := size*0.7, size*0.55
	top := cy - size*0.35
	bottom := top + cupH
	bottomHalf := cupW / 2.5
	fillPolygon(img, []routePoint{
		{cx - cupW/2, top}, {cx + cupW/2, top},
		{cx + bottomHalf, bottom}, {cx - bottomHalf, bottom},
	}, white)
	handleR := size * 0.15
	handleY := top + size*0.22
	strokeArc(img, cx-cupW/2, handleY, handleR-1, handleR+1, math.Pi/2, 3*math.Pi/2, white)
	strokeArc(img, cx+cupW/2, handleY, handleR-1, handleR+1, -math.Pi/2, math.Pi/2, white)

	stemW, stemH := size*0.15, size*0.15
	baseW, baseH := size*0.4, size*0.08
	fillRect(img, image.Rect(int(cx-stemW/2), int(bottom), int(cx+stemW/2), int(bottom+stemH)), white)
	fillRect(img, image.Rect(int(cx-baseW/2), int(bottom+stemH), int(cx+baseW/2), int(bottom+stemH+baseH)), white)
}
