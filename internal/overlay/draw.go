package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	transparent  = color.RGBA{}
	white        = color.RGBA{255, 255, 255, 255}
	panel        = color.RGBA{0, 0, 0, 150}
	track        = color.RGBA{80, 80, 80, 200}
	routeGreen   = color.RGBA{0, 255, 0, 255}
	markerColor  = color.RGBA{255, 255, 0, 255}
	stravaOrange = color.RGBA{0xF3, 0x6C, 0x25, 255}
	badgeWhite   = color.RGBA{255, 255, 255, 245}
	darkText     = color.RGBA{51, 51, 51, 255}
	grayText     = color.RGBA{128, 128, 128, 255}
)

var (
	parseRegular = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(goregular.TTF) })
	parseBold    = sync.OnceValues(func() (*opentype.Font, error) { return opentype.Parse(gobold.TTF) })
)

// newFace returns a fresh face; faces are not safe for concurrent use, so each
// render builds its own.
func newFace(size float64, bold bool) (font.Face, error) {
	parse := parseRegular
	if bold {
		parse = parseBold
	}
	f, err := parse()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

func newCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(transparent), image.Point{}, draw.Src)
	return img
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// kappa places cubic control points so a quarter curve approximates a circle.
const kappa = 0.5522847498

// fillPath rasterises the subpaths traced by trace with anti-aliasing and
// paints them over dst. Overlapping subpaths of the same winding merge.
func fillPath(dst *image.RGBA, c color.Color, trace func(z *vector.Rasterizer)) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	trace(z)
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// fillRoundedRect paints r with corners of the given radius.
func fillRoundedRect(dst *image.RGBA, r image.Rectangle, radius int, c color.Color) {
	rad := float32(min(radius, r.Dx()/2, r.Dy()/2))
	x0, y0, x1, y1 := float32(r.Min.X), float32(r.Min.Y), float32(r.Max.X), float32(r.Max.Y)
	k := rad * (1 - kappa)
	fillPath(dst, c, func(z *vector.Rasterizer) {
		z.MoveTo(x0+rad, y0)
		z.LineTo(x1-rad, y0)
		z.CubeTo(x1-k, y0, x1, y0+k, x1, y0+rad)
		z.LineTo(x1, y1-rad)
		z.CubeTo(x1, y1-k, x1-k, y1, x1-rad, y1)
		z.LineTo(x0+rad, y1)
		z.CubeTo(x0+k, y1, x0, y1-k, x0, y1-rad)
		z.LineTo(x0, y0+rad)
		z.CubeTo(x0, y0+k, x0+k, y0, x0+rad, y0)
		z.ClosePath()
	})
}

// arc extends the current subpath along a circle from angle a0 to a1.
// Angles grow clockwise on screen.
func arc(z *vector.Rasterizer, cx, cy, radius, a0, a1 float64) {
	steps := max(8, int(math.Ceil(math.Abs(a1-a0)*radius/2)))
	for i := 0; i <= steps; i++ {
		a := a0 + (a1-a0)*float64(i)/float64(steps)
		z.LineTo(float32(cx+radius*math.Cos(a)), float32(cy+radius*math.Sin(a)))
	}
}

func moveToAngle(z *vector.Rasterizer, cx, cy, radius, a float64) {
	z.MoveTo(float32(cx+radius*math.Cos(a)), float32(cy+radius*math.Sin(a)))
}

// fillCircle paints a disc centred on (cx, cy).
func fillCircle(dst *image.RGBA, cx, cy, radius float64, c color.Color) {
	fillPath(dst, c, func(z *vector.Rasterizer) {
		moveToAngle(z, cx, cy, radius, 0)
		arc(z, cx, cy, radius, 0, 2*math.Pi)
		z.ClosePath()
	})
}

// fillPolygon paints the closed polygon through pts.
func fillPolygon(dst *image.RGBA, pts []routePoint, c color.Color) {
	if len(pts) < 3 {
		return
	}
	fillPath(dst, c, func(z *vector.Rasterizer) {
		z.MoveTo(float32(pts[0].x), float32(pts[0].y))
		for _, p := range pts[1:] {
			z.LineTo(float32(p.x), float32(p.y))
		}
		z.ClosePath()
	})
}

// capsule traces a round-capped segment. Every capsule winds the same way,
// so neighbours in one path merge instead of cancelling.
func capsule(z *vector.Rasterizer, a, b routePoint, width float64) {
	r := width / 2
	theta := math.Atan2(b.y-a.y, b.x-a.x)
	moveToAngle(z, b.x, b.y, r, theta-math.Pi/2)
	arc(z, b.x, b.y, r, theta-math.Pi/2, theta+math.Pi/2)
	arc(z, a.x, a.y, r, theta+math.Pi/2, theta+3*math.Pi/2)
	z.ClosePath()
}

// strokeLine draws a round-capped line of the given width.
func strokeLine(dst *image.RGBA, x0, y0, x1, y1, width float64, c color.Color) {
	strokePolyline(dst, []routePoint{{x0, y0}, {x1, y1}}, width, c)
}

// strokePolyline draws connected segments through pts in one pass, so joints
// are not painted twice.
func strokePolyline(dst *image.RGBA, pts []routePoint, width float64, c color.Color) {
	if len(pts) < 2 {
		return
	}
	fillPath(dst, c, func(z *vector.Rasterizer) {
		for i := 1; i < len(pts); i++ {
			capsule(z, pts[i-1], pts[i], width)
		}
	})
}

// strokeArc paints an annular segment from start to end radians, clockwise on
// screen, between inner and outer radius.
func strokeArc(dst *image.RGBA, cx, cy, inner, outer, start, end float64, c color.Color) {
	if end < start {
		return
	}
	end = math.Min(end, start+2*math.Pi)
	fillPath(dst, c, func(z *vector.Rasterizer) {
		moveToAngle(z, cx, cy, outer, start)
		arc(z, cx, cy, outer, start, end)
		arc(z, cx, cy, inner, end, start)
		z.ClosePath()
	})
}

// textWidth measures s in pixels.
func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// drawText draws s with its baseline at y. Horizontal alignment: -1 left of
// x, 0 centred on x, 1 right of x.
func drawText(dst *image.RGBA, face font.Face, s string, x, y, align int, c color.Color) {
	switch align {
	case 0:
		x -= textWidth(face, s) / 2
	case 1:
		x -= textWidth(face, s)
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face, Dot: fixed.P(x, y)}
	d.DrawString(s)
}

// truncate shortens s with an ellipsis until it fits maxWidth, keeping at
// least ten characters.
func truncate(face font.Face, s string, maxWidth int) string {
	runes := []rune(s)
	for textWidth(face, string(runes)) > maxWidth && len(runes) > 10 {
		runes = append(runes[:len(runes)-4], []rune("...")...)
	}
	return string(runes)
}
