// Package records defines the typed rows each pipeline stage persists under
// the working directory and their CSV encoding.
//
// Record sets are nested: the extract columns are a prefix of the analysis
// columns, which are a prefix of the selection columns. Epoch seconds carry
// three decimals, scores four, booleans are written as true/false, and missing
// telemetry is an empty cell. Reading a file and writing it back reproduces
// the same bytes.
package records
