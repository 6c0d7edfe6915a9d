// Package workerpool runs per-item stage work on a bounded errgroup and sizes
// pools from host CPU and memory.
//
// Items that fail with a per-item error (services.ErrItemSkipped) are counted
// and the remaining items still run. Any other error cancels the shared
// context; items already started finish before Run returns.
package workerpool
