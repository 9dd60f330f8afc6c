package parquet

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// Reader reads rows of type T from one Parquet file.
type Reader[T any] struct {
	file   *os.File
	reader *parquet.GenericReader[T]
	path   string
}

func newReader[T any](path string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &Reader[T]{
		file:   f,
		reader: parquet.NewGenericReader[T](f, parquet.ReadBufferSize(1024*1024)),
		path:   path,
	}, nil
}

// readRows reads up to n rows. It returns io.EOF only when no rows are left.
func (r *Reader[T]) readRows(n int) ([]T, error) {
	rows := make([]T, n)
	count, err := r.reader.Read(rows)
	if err != nil && !(errors.Is(err, io.EOF) && count > 0) {
		return nil, err
	}
	return rows[:count], nil
}

func (r *Reader[T]) readAll() ([]T, error) {
	total := int(r.reader.NumRows())
	out := make([]T, 0, total)
	for len(out) < total {
		rows, err := r.readRows(min(total-len(out), 64*1024))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// NumRows returns the total number of rows in the file.
func (r *Reader[T]) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *Reader[T]) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *Reader[T]) Path() string {
	return r.path
}

// PointReader reads telemetry points.
type PointReader struct {
	*Reader[PointRow]
}

// NewPointReader opens a point file.
func NewPointReader(path string) (*PointReader, error) {
	r, err := newReader[PointRow](path)
	if err != nil {
		return nil, err
	}
	return &PointReader{r}, nil
}

// Read reads up to n points. It returns io.EOF when the file is exhausted.
func (r *PointReader) Read(n int) ([]types.DataPoint, error) {
	rows, err := r.readRows(n)
	if err != nil {
		return nil, err
	}
	points := make([]types.DataPoint, len(rows))
	for i := range rows {
		points[i] = RowToPoint(&rows[i])
	}
	return points, nil
}

// ReadAll reads every point in the file.
func (r *PointReader) ReadAll() ([]types.DataPoint, error) {
	rows, err := r.readAll()
	if err != nil {
		return nil, err
	}
	points := make([]types.DataPoint, len(rows))
	for i := range rows {
		points[i] = RowToPoint(&rows[i])
	}
	return points, nil
}

// AggregateReader reads bucket aggregates.
type AggregateReader struct {
	*Reader[AggregateRow]
}

// NewAggregateReader opens an aggregate file.
func NewAggregateReader(path string) (*AggregateReader, error) {
	r, err := newReader[AggregateRow](path)
	if err != nil {
		return nil, err
	}
	return &AggregateReader{r}, nil
}

// ReadAll reads every aggregate in the file.
func (r *AggregateReader) ReadAll() ([]types.AggregateResult, error) {
	rows, err := r.readAll()
	if err != nil {
		return nil, err
	}
	results := make([]types.AggregateResult, len(rows))
	for i := range rows {
		results[i] = RowToAggregate(&rows[i])
	}
	return results, nil
}

// FileInfo holds information about a Parquet file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// GetFileInfo returns size and row count of a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: pf.NumRows(),
	}, nil
}
