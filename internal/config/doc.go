// Package config loads, normalizes, and validates ridereel project configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and derives the project layout (input videos,
// GPX track, working record sets, clips, highlights) from a single project
// directory. The Config type centralizes every knob the pipeline stages need.
//
// Always obtain settings through this package so stages receive sanitized
// paths, canonical log formats, and clear validation errors.
package config
