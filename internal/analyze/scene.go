package analyze

import "math"

// SceneWindow scores scene change for one camera by comparing each thumbnail
// with the oldest one still held in a bounded window.
type SceneWindow struct {
	size   int
	frames [][]byte
}

// NewSceneWindow holds ceil(windowSeconds / intervalSeconds) thumbnails.
func NewSceneWindow(windowSeconds, intervalSeconds float64) *SceneWindow {
	size := 1
	if intervalSeconds > 0 && windowSeconds > 0 {
		size = max(1, int(math.Ceil(windowSeconds/intervalSeconds)))
	}
	return &SceneWindow{size: size}
}

// Size returns the window capacity.
func (w *SceneWindow) Size() int {
	return w.size
}

// Score returns the mean absolute pixel difference between thumb and the
// oldest held thumbnail, scaled to [0, 1], then pushes thumb. The first
// thumbnail scores 0. A nil thumb (failed grab) scores 0 and leaves the
// window untouched.
func (w *SceneWindow) Score(thumb []byte) float64 {
	if len(thumb) == 0 {
		return 0
	}
	score := 0.0
	if len(w.frames) > 0 {
		score = meanAbsDiff(w.frames[0], thumb) / 255
	}
	w.frames = append(w.frames, thumb)
	if len(w.frames) > w.size {
		w.frames = w.frames[len(w.frames)-w.size:]
	}
	return score
}

func meanAbsDiff(a, b []byte) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		d := int64(a[i]) - int64(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(n)
}
