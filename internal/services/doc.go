// Package services defines shared error and context conventions used by every
// pipeline stage.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and camera names for
//     logging.
//   - Structured error markers plus the Wrap helper, and Classify, which maps a
//     failure onto the fatal / degraded / per-item policy.
package services
