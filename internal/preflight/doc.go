// Package preflight checks that a ride project is ready to run: footage and
// GPX present, output directories writable, external binaries on PATH.
//
// The CLI "ridereel preflight" command prints every result. "ridereel run"
// calls RunAll first and refuses to start when a required check fails, so a
// missing ffmpeg surfaces before an hour of thumbnail extraction, not after.
//
// Optional checks cover inputs whose absence only degrades the reel (no GPX
// means no overlays, no music directory means silent segments).
package preflight
