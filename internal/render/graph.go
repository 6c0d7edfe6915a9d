package render

import (
	"fmt"
	"strconv"
	"strings"

	"ridereel/internal/overlay"
)

// Layout positions the inset and overlays.
type Layout struct {
	PiPScale    float64
	Margin      int
	MinimapSize int
}

// Graph is a filter_complex expression plus the still images it reads. Image
// inputs follow the camera inputs in order.
type Graph struct {
	Filter string
	Output string
	Images []string
}

// BuildGraph composes the partner inset and every present overlay onto the
// primary video. Missing assets are left out of the chain; with nothing to
// compose the graph is empty and the primary stream is mapped directly.
func BuildGraph(layout Layout, partner bool, assets overlay.Assets) Graph {
	var (
		g      Graph
		chains []string
		last   = "0:v"
		step   int
	)
	m := strconv.Itoa(layout.Margin)
	next := func() string {
		step++
		return "v" + strconv.Itoa(step)
	}

	input := 1
	if partner {
		input = 2
		label := next()
		chains = append(chains,
			fmt.Sprintf("[1:v]scale=iw*%s:-1[pip]", strconv.FormatFloat(layout.PiPScale, 'f', -1, 64)),
			fmt.Sprintf("[%s][pip]overlay=W-w-%s:H-h-%s[%s]", last, m, m, label),
		)
		last = label
	}

	elevationY := m
	if assets.Minimap != "" {
		elevationY = strconv.Itoa(2*layout.Margin + layout.MinimapSize)
	}
	placements := []struct {
		path string
		x, y string
	}{
		{assets.Minimap, "W-w-" + m, m},
		{assets.Elevation, "W-w-" + m, elevationY},
		{assets.Badge, m, m},
		{assets.Gauges, m, "H-h-" + m},
	}
	for _, p := range placements {
		if p.path == "" {
			continue
		}
		label := next()
		chains = append(chains, fmt.Sprintf("[%s][%d:v]overlay=%s:%s[%s]", last, input, p.x, p.y, label))
		g.Images = append(g.Images, p.path)
		input++
		last = label
	}

	if len(chains) == 0 {
		return g
	}
	g.Filter = strings.Join(chains, ";")
	g.Output = last
	return g
}
