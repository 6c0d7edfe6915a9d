// Package gpx parses GPX tracks and flattens them into the 1 Hz telemetry
// timeline that every later stage matches frames against.
package gpx
