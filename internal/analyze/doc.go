// Package analyze scores every sampled frame on independent signals: object
// detection, scene change, GPS telemetry, and segment efforts. It also pairs
// each frame with its nearest opposite-camera partner.
//
// The analyzer works per camera for scene scoring (each camera keeps its own
// sliding thumbnail window) and across detector batches for detection. Both
// run on bounded worker pools. The detector model is loaded once per stage
// run and always released when the stage returns.
package analyze
