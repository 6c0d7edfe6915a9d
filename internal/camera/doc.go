// Package camera holds the two-camera registry: canonical names, alias
// resolution, scoring weights, recording-time bias, and the per-run alignment
// offsets written by the aligner.
package camera
