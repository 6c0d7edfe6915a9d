package gpx

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

// Point is one parsed trackpoint.
type Point struct {
	Time      time.Time
	Lat       float64
	Lon       float64
	Elevation *float64
	HeartRate *float64
	Cadence   *float64
}

// ParseFile reads a GPX file.
func ParseFile(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseBytes(data)
}

// Parse decodes trackpoints from r, dropping points without a timestamp, and
// returns them sorted by time.
func Parse(r io.Reader) ([]Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gpx: %w", err)
	}
	return parseBytes(data)
}

func parseBytes(data []byte) ([]Point, error) {
	doc, err := gpxgo.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}
	var points []Point
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, raw := range seg.Points {
				if raw.Timestamp.IsZero() {
					continue
				}
				points = append(points, fromTrackPoint(raw))
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

func fromTrackPoint(raw gpxgo.GPXPoint) Point {
	p := Point{Time: raw.Timestamp.UTC(), Lat: raw.Latitude, Lon: raw.Longitude}
	if raw.Elevation.NotNull() {
		ele := raw.Elevation.Value()
		p.Elevation = &ele
	}
	walkExtensions(raw.Extensions.Nodes, func(name, value string) {
		switch {
		case strings.Contains(name, "cad"):
			if v := parseWhole(value); v != nil {
				p.Cadence = v
			}
		case strings.Contains(name, "hr"):
			if v := parseWhole(value); v != nil {
				p.HeartRate = v
			}
		}
	})
	return p
}

// walkExtensions visits every leaf element under nodes, such as the Garmin
// TrackPointExtension hr and cad children.
func walkExtensions(nodes []gpxgo.ExtensionNode, fn func(name, value string)) {
	for _, n := range nodes {
		if len(n.Nodes) == 0 {
			fn(strings.ToLower(n.XMLName.Local), strings.TrimSpace(n.Data))
			continue
		}
		walkExtensions(n.Nodes, fn)
	}
}

// parseWhole accepts integer extension values; zero readings count as absent.
func parseWhole(value string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 {
		return nil
	}
	whole := float64(int64(v))
	return &whole
}
