package logging

// ProgressSampler suppresses repetitive per-item progress logs. It emits when
// the completed fraction crosses a bucket boundary (default 10%) and always
// on the final item. It is not safe for concurrent use.
type ProgressSampler struct {
	bucketPct  float64
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in percent.
func NewProgressSampler(bucketPct float64) *ProgressSampler {
	if bucketPct <= 0 {
		bucketPct = 10
	}
	return &ProgressSampler{bucketPct: bucketPct, lastBucket: -1}
}

// ShouldLog reports whether progress at done/total should be logged.
func (s *ProgressSampler) ShouldLog(done, total int) bool {
	if s == nil || total <= 0 {
		return true
	}
	if done >= total {
		return true
	}
	bucket := int(float64(done) / float64(total) * 100 / s.bucketPct)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}
