// Package timemodel converts between absolute sample times, moment buckets,
// and per-clip seek positions.
package timemodel

import (
	"errors"
	"fmt"
	"math"

	"ridereel/internal/records"
)

// ErrInvalidTiming reports a frame whose timing fields cannot place it in a clip.
var ErrInvalidTiming = errors.New("invalid frame timing")

// Model holds the timing facts of one frame in one clip.
type Model struct {
	AbsTime   float64
	ClipStart float64
	Duration  float64
	Interval  float64
}

// New builds a model. Interval must be positive.
func New(absTime, clipStart, duration, interval float64) (Model, error) {
	if interval <= 0 {
		return Model{}, fmt.Errorf("%w: sampling interval %.3f must be > 0", ErrInvalidTiming, interval)
	}
	return Model{AbsTime: absTime, ClipStart: clipStart, Duration: duration, Interval: interval}, nil
}

// FromFrame builds a model from a frame record.
func FromFrame(f *records.Frame, interval float64) (Model, error) {
	switch {
	case f == nil:
		return Model{}, fmt.Errorf("%w: nil frame", ErrInvalidTiming)
	case f.AbsTimeEpoch <= 0:
		return Model{}, fmt.Errorf("%w: %s has no absolute time", ErrInvalidTiming, f.Index)
	case f.ClipStartEpoch <= 0:
		return Model{}, fmt.Errorf("%w: %s has no clip start", ErrInvalidTiming, f.Index)
	case f.ClipDuration <= 0:
		return Model{}, fmt.Errorf("%w: %s has no clip duration", ErrInvalidTiming, f.Index)
	}
	return New(f.AbsTimeEpoch, f.ClipStartEpoch, f.ClipDuration, interval)
}

// MomentID is the sampling bucket: floor(abs / interval).
func (m Model) MomentID() int64 {
	return MomentID(m.AbsTime, m.Interval)
}

// InClipOffset is the position of the instant inside its clip. It is negative
// when the clip starts after the instant.
func (m Model) InClipOffset() float64 {
	return m.AbsTime - m.ClipStart
}

// RenderSeek is the ffmpeg seek for a clip that starts preRoll seconds early,
// clamped at zero.
func (m Model) RenderSeek(preRoll float64) float64 {
	return math.Max(0, m.InClipOffset()-preRoll)
}

// ValidForSeek reports 0 <= offset < duration.
func (m Model) ValidForSeek() bool {
	offset := m.InClipOffset()
	return offset >= 0 && offset < m.Duration
}

// ValidWithDuration reports whether a clipLen-second excerpt starting at the
// instant fits inside the source clip.
func (m Model) ValidWithDuration(clipLen float64) bool {
	offset := m.InClipOffset()
	return offset >= 0 && offset+clipLen <= m.Duration
}

// MomentID buckets an absolute time. Interval must be positive.
func MomentID(abs, interval float64) int64 {
	return int64(math.Floor(abs / interval))
}
