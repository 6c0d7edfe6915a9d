package analyze

import (
	"math"
	"sort"

	"ridereel/internal/camera"
	"ridereel/internal/records"
)

// MatchPartners links every frame to the nearest opposite-camera frame within
// tolerance seconds. Frames without a partner have PairedOK false.
func MatchPartners(frames []records.Frame, registry *camera.Registry, tolerance float64) int {
	byCamera := make(map[string][]int)
	for i := range frames {
		byCamera[frames[i].Camera] = append(byCamera[frames[i].Camera], i)
	}
	for _, idx := range byCamera {
		sort.SliceStable(idx, func(a, b int) bool { return frames[idx[a]].AbsTimeEpoch < frames[idx[b]].AbsTimeEpoch })
	}

	paired := 0
	for i := range frames {
		f := &frames[i]
		f.PartnerIndex, f.PartnerCamera, f.PartnerVideoPath, f.PartnerDelta, f.PairedOK = "", "", "", nil, false
		other := registry.Opposite(f.Camera)
		candidates := byCamera[other]
		if other == "" || len(candidates) == 0 {
			continue
		}
		pos := sort.Search(len(candidates), func(k int) bool {
			return frames[candidates[k]].AbsTimeEpoch >= f.AbsTimeEpoch
		})
		best, bestDelta := -1, math.Inf(1)
		for _, k := range []int{pos - 1, pos} {
			if k < 0 || k >= len(candidates) {
				continue
			}
			if d := math.Abs(frames[candidates[k]].AbsTimeEpoch - f.AbsTimeEpoch); d < bestDelta {
				best, bestDelta = candidates[k], d
			}
		}
		if best < 0 || bestDelta > tolerance {
			continue
		}
		p := &frames[best]
		f.PartnerIndex = p.Index
		f.PartnerCamera = p.Camera
		f.PartnerVideoPath = p.VideoPath
		f.PartnerDelta = records.Float(p.AbsTimeEpoch - f.AbsTimeEpoch)
		f.PairedOK = true
		paired++
	}
	return paired
}
