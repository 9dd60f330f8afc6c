// Package parquet implements Parquet file reading and writing for telemetry
// points and bucket aggregates.
//
// The package provides:
//   - PointWriter/PointReader for raw telemetry points
//   - AggregateWriter/AggregateReader for bucket statistics
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - Type conversion between storage types and Parquet rows
package parquet
