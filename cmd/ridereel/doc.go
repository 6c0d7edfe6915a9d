// Package main hosts the ridereel CLI entrypoint and command graph.
//
// Each pipeline stage is a subcommand, and "run" chains a range of them.
// The root command resolves configuration and the project directory once;
// commands that write artifacts also take the project lock and open the run
// history store before handing a pipeline.Env to internal/pipeline.
//
// Keep this package lean: behaviour lives in the internal packages and is
// surfaced here through flags and terminal rendering only.
package main
