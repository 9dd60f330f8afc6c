// Package storage groups the telemetry storage layers of satmon.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Manager   │────▶│   Series    │────▶│   Query     │
//	│  (ingest)   │     │ (in-memory) │     │   Engine    │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │     WAL     │     │  Aggregate  │
//	                    │  (journal)  │     │ (DDSketch)  │
//	                    └─────────────┘     └─────────────┘
//	                                               │
//	                                               ▼
//	                                        ┌─────────────┐
//	                                        │   Archive   │
//	                                        │  (Parquet)  │
//	                                        └─────────────┘
//
// Subpackages:
//   - series: per-parameter append-only series with bounds checks
//   - wal: crash-safe journal of accepted points, replayed at startup
//   - aggregate: epoch-aligned buckets with DDSketch percentiles
//   - parquet: typed point and aggregate files
//   - archive: Parquet exports summarized through DuckDB, with retention
//   - types: shared point and aggregate types
package storage
