// Package types defines the core data types shared by the telemetry storage layers.
//
// Key types:
//   - DataPoint: a single timestamped value of one parameter
//   - Range: the inclusive value bounds of a parameter
//   - AggregateResult: aggregated statistics for a time bucket
package types
