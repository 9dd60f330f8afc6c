package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// Options configures the Parquet writers.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the target number of rows per row group
	RowGroupSize int

	// PageSize is the target page size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		RowGroupSize: 100000,
		PageSize:     1024 * 1024,
	}
}

// ParseCompressionType parses a compression type string. Unknown values
// fall back to zstd.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

func writerOptions(opts Options) []parquet.WriterOption {
	wo := []parquet.WriterOption{parquet.Compression(getCompression(opts.Compression))}
	if opts.PageSize > 0 {
		wo = append(wo, parquet.PageBufferSize(opts.PageSize))
	}
	if opts.RowGroupSize > 0 {
		wo = append(wo, parquet.MaxRowsPerRowGroup(int64(opts.RowGroupSize)))
	}
	return wo
}

// PointRow is a telemetry point in Parquet format.
type PointRow struct {
	ParameterID string  `parquet:"parameter_id,dict"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Value       float64 `parquet:"value"`
}

// AggregateRow is a bucket aggregate in Parquet format. Percentiles are
// null when they were not computed.
type AggregateRow struct {
	ParameterID string   `parquet:"parameter_id,dict"`
	BucketStart int64    `parquet:"bucket_start"`
	BucketEnd   int64    `parquet:"bucket_end"`
	Count       int64    `parquet:"count"`
	Sum         float64  `parquet:"sum"`
	Min         float64  `parquet:"min"`
	Max         float64  `parquet:"max"`
	Avg         float64  `parquet:"avg"`
	P50         *float64 `parquet:"p50,optional"`
	P90         *float64 `parquet:"p90,optional"`
	P95         *float64 `parquet:"p95,optional"`
	P99         *float64 `parquet:"p99,optional"`
	FirstTs     int64    `parquet:"first_ts"`
	LastTs      int64    `parquet:"last_ts"`
}

// PointToRow converts a DataPoint to a PointRow.
func PointToRow(p *types.DataPoint) PointRow {
	return PointRow{
		ParameterID: p.ParameterID,
		TimestampMs: p.TimestampMs,
		Value:       p.Value,
	}
}

// RowToPoint converts a PointRow to a DataPoint.
func RowToPoint(r *PointRow) types.DataPoint {
	return types.DataPoint{
		ParameterID: r.ParameterID,
		TimestampMs: r.TimestampMs,
		Value:       r.Value,
	}
}

// AggregateToRow converts an AggregateResult to an AggregateRow.
func AggregateToRow(a *types.AggregateResult) AggregateRow {
	return AggregateRow{
		ParameterID: a.ParameterID,
		BucketStart: a.BucketStart,
		BucketEnd:   a.BucketEnd,
		Count:       a.Count,
		Sum:         a.Sum,
		Min:         a.Min,
		Max:         a.Max,
		Avg:         a.Avg,
		P50:         a.P50,
		P90:         a.P90,
		P95:         a.P95,
		P99:         a.P99,
		FirstTs:     a.FirstTs,
		LastTs:      a.LastTs,
	}
}

// RowToAggregate converts an AggregateRow to an AggregateResult.
func RowToAggregate(r *AggregateRow) types.AggregateResult {
	return types.AggregateResult{
		ParameterID: r.ParameterID,
		BucketStart: r.BucketStart,
		BucketEnd:   r.BucketEnd,
		Count:       r.Count,
		Sum:         r.Sum,
		Min:         r.Min,
		Max:         r.Max,
		Avg:         r.Avg,
		P50:         r.P50,
		P90:         r.P90,
		P95:         r.P95,
		P99:         r.P99,
		FirstTs:     r.FirstTs,
		LastTs:      r.LastTs,
	}
}

// Writer writes rows of type T to one Parquet file.
type Writer[T any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

func newWriter[T any](path string, opts Options) (*Writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	return &Writer[T]{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[T](f, writerOptions(opts)...),
	}, nil
}

func (w *Writer[T]) writeRows(rows []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes and closes the file.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[T]) Path() string {
	return w.path
}

// PointWriter writes telemetry points.
type PointWriter struct {
	*Writer[PointRow]
}

// NewPointWriter creates a point writer at path.
func NewPointWriter(path string, opts Options) (*PointWriter, error) {
	w, err := newWriter[PointRow](path, opts)
	if err != nil {
		return nil, err
	}
	return &PointWriter{w}, nil
}

// Write appends points to the file.
func (w *PointWriter) Write(points []types.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([]PointRow, len(points))
	for i := range points {
		rows[i] = PointToRow(&points[i])
	}
	return w.writeRows(rows)
}

// AggregateWriter writes bucket aggregates.
type AggregateWriter struct {
	*Writer[AggregateRow]
}

// NewAggregateWriter creates an aggregate writer at path.
func NewAggregateWriter(path string, opts Options) (*AggregateWriter, error) {
	w, err := newWriter[AggregateRow](path, opts)
	if err != nil {
		return nil, err
	}
	return &AggregateWriter{w}, nil
}

// Write appends aggregates to the file.
func (w *AggregateWriter) Write(aggregates []types.AggregateResult) error {
	if len(aggregates) == 0 {
		return nil
	}
	rows := make([]AggregateRow, len(aggregates))
	for i := range aggregates {
		rows[i] = AggregateToRow(&aggregates[i])
	}
	return w.writeRows(rows)
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
