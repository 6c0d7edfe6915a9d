// Package ffmpeg wraps the ffmpeg CLI behind an injectable Executor.
//
// Client covers the one-shot invocations the pipeline needs outside of clip
// encoding: encoder discovery, JPEG frame grabs for the detector, and small
// grayscale thumbnails for scene-change scoring. Clip encoding and segment
// concatenation build their own argument lists and call Client.Run.
package ffmpeg
