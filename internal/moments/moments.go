// Package moments groups frames from both cameras into shared time buckets.
package moments

import (
	"math"
	"sort"

	"ridereel/internal/camera"
	"ridereel/internal/records"
)

// Moment is one sampling bucket holding at most one frame per camera.
type Moment struct {
	ID    int64
	Front *records.Frame
	Rear  *records.Frame
}

// Best returns the higher-weighted perspective. Front wins ties; nil when empty.
func (m Moment) Best() *records.Frame {
	switch {
	case m.Front == nil:
		return m.Rear
	case m.Rear == nil:
		return m.Front
	case m.Rear.Weighted > m.Front.Weighted:
		return m.Rear
	default:
		return m.Front
	}
}

// Partner returns the frame from the other camera, or nil.
func (m Moment) Partner(primary *records.Frame) *records.Frame {
	switch primary {
	case nil:
		return nil
	case m.Front:
		return m.Rear
	case m.Rear:
		return m.Front
	default:
		return nil
	}
}

// Paired reports whether both cameras contributed a frame.
func (m Moment) Paired() bool {
	return m.Front != nil && m.Rear != nil
}

// Time returns the best frame's absolute time, or 0 for an empty moment.
func (m Moment) Time() float64 {
	if b := m.Best(); b != nil {
		return b.AbsTimeEpoch
	}
	return 0
}

// Pair buckets frames by MomentID. Within a bucket each camera keeps the frame
// nearest the bucket start; earlier input wins exact ties. Frames from cameras
// the registry does not know are ignored. The returned moments point into
// frames and are ordered by id.
func Pair(frames []records.Frame, registry *camera.Registry, interval float64) []Moment {
	byID := make(map[int64]*Moment)
	for i := range frames {
		f := &frames[i]
		var slot **records.Frame
		m := byID[f.MomentID]
		if m == nil {
			m = &Moment{ID: f.MomentID}
		}
		switch registry.Role(f.Camera) {
		case camera.RoleFront:
			slot = &m.Front
		case camera.RoleRear:
			slot = &m.Rear
		default:
			continue
		}
		byID[f.MomentID] = m
		if *slot == nil || nearer(f, *slot, m.ID, interval) {
			*slot = f
		}
	}

	out := make([]Moment, 0, len(byID))
	for _, m := range byID {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func nearer(candidate, held *records.Frame, id int64, interval float64) bool {
	start := float64(id) * interval
	return math.Abs(candidate.AbsTimeEpoch-start) < math.Abs(held.AbsTimeEpoch-start)
}

// Count returns how many moments hold both cameras and how many hold one.
func Count(ms []Moment) (paired, single int) {
	for _, m := range ms {
		if m.Paired() {
			paired++
		} else if m.Front != nil || m.Rear != nil {
			single++
		}
	}
	return paired, single
}
