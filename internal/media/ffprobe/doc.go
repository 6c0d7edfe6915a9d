// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns a Result whose helpers expose the three
// facts the pipeline needs from a camera clip: duration, frame rate, and the
// creation_time tag.
package ffprobe
