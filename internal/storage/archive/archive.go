// Package archive exports telemetry series to Parquet files and summarizes
// the archive directory with DuckDB.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/aggregate"
	"github.com/xtxerr/satmon/internal/storage/parquet"
	"github.com/xtxerr/satmon/internal/storage/types"
)

var log = logging.Component("archive")

const (
	pointsPrefix     = "points-"
	aggregatesPrefix = "aggregates-"
)

// SeriesReader reads raw points of one series.
type SeriesReader interface {
	Query(parameterID string, start, end *int64) ([]types.DataPoint, error)
}

// Archive owns one directory of Parquet exports and an in-memory DuckDB
// connection used to query them.
type Archive struct {
	mu sync.Mutex

	dir  string
	opts parquet.Options
	db   *sql.DB
	now  func() time.Time
	seq  atomic.Int64
}

// Option configures an Archive.
type Option func(*Archive)

// WithOptions sets the Parquet writer options.
func WithOptions(opts parquet.Options) Option {
	return func(a *Archive) {
		a.opts = opts
	}
}

// WithClock overrides the clock used for file names.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		a.now = now
	}
}

// New opens an archive rooted at dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Archive, error) {
	if dir == "" {
		return nil, errors.NewMissingField("archive_dir")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w: %w", err, errors.ErrDatabase)
	}

	a := &Archive{
		dir:  dir,
		opts: parquet.DefaultOptions(),
		db:   db,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close closes the DuckDB connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// =============================================================================
// Export
// =============================================================================

// ExportRequest selects the series and window to export. A positive Bucket
// also writes per-bucket aggregates next to the raw points.
type ExportRequest struct {
	ParameterIDs []string
	Start        *int64
	End          *int64
	Bucket       time.Duration
}

// ExportResult describes the files written by one export.
type ExportResult struct {
	PointsFile     string
	AggregatesFile string
	Parameters     int
	Points         int64
	Aggregates     int64
	Duration       time.Duration
}

// Export writes the selected series into a new Parquet file. Nothing is
// written when the selection holds no points.
func (a *Archive) Export(ctx context.Context, src SeriesReader, req ExportRequest) (*ExportResult, error) {
	if len(req.ParameterIDs) == 0 {
		return nil, errors.NewMissingField("parameter_ids")
	}
	if req.Start != nil && req.End != nil && *req.Start > *req.End {
		return nil, errors.NewInvalidRange("start is after end")
	}
	if req.Bucket < 0 {
		return nil, errors.NewInvalidValue("bucket", req.Bucket, "must not be negative")
	}

	began := time.Now()

	ids := append([]string(nil), req.ParameterIDs...)
	sort.Strings(ids)

	var points []types.DataPoint
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pts, err := src.Query(id, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		points = append(points, pts...)
	}

	result := &ExportResult{Parameters: len(ids)}
	if len(points) == 0 {
		result.Duration = time.Since(began)
		return result, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stamp := fmt.Sprintf("%d-%04d", a.now().UnixMilli(), a.seq.Add(1))

	pointsPath := filepath.Join(a.dir, pointsPrefix+stamp+".parquet")
	if err := writePoints(pointsPath, a.opts, points); err != nil {
		return nil, err
	}
	result.PointsFile = pointsPath
	result.Points = int64(len(points))

	if req.Bucket > 0 {
		var aggs []types.AggregateResult
		for _, id := range ids {
			var own []types.DataPoint
			for _, p := range points {
				if p.ParameterID == id {
					own = append(own, p)
				}
			}
			aggs = append(aggs, aggregate.Buckets(own, req.Bucket, aggregate.DefaultAccuracy)...)
		}

		aggPath := filepath.Join(a.dir, aggregatesPrefix+stamp+".parquet")
		if err := writeAggregates(aggPath, a.opts, aggs); err != nil {
			return nil, err
		}
		result.AggregatesFile = aggPath
		result.Aggregates = int64(len(aggs))
	}

	result.Duration = time.Since(began)
	log.Info("series exported",
		"file", filepath.Base(pointsPath),
		"parameters", result.Parameters,
		"points", result.Points,
		"aggregates", result.Aggregates,
		"duration", result.Duration)

	return result, nil
}

func writePoints(path string, opts parquet.Options, points []types.DataPoint) error {
	w, err := parquet.NewPointWriter(path, opts)
	if err != nil {
		return err
	}
	if err := w.Write(points); err != nil {
		w.Close()
		os.Remove(path)
		return err
	}
	return w.Close()
}

func writeAggregates(path string, opts parquet.Options, aggs []types.AggregateResult) error {
	w, err := parquet.NewAggregateWriter(path, opts)
	if err != nil {
		return err
	}
	if err := w.Write(aggs); err != nil {
		w.Close()
		os.Remove(path)
		return err
	}
	return w.Close()
}

// =============================================================================
// Query
// =============================================================================

// Summary holds statistics of one parameter over every archived file.
// Points exported more than once are counted once.
type Summary struct {
	ParameterID string    `json:"parameter_id"`
	Count       int64     `json:"count"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Avg         float64   `json:"avg"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
	FirstValue  float64   `json:"first_value"`
	LastValue   float64   `json:"last_value"`
}

// Summarize runs a DuckDB aggregation over the archived point files. An
// empty parameterID summarizes every parameter. No archive files yield an
// empty result.
func (a *Archive) Summarize(ctx context.Context, parameterID string) ([]Summary, error) {
	pattern := filepath.Join(a.dir, pointsPrefix+"*.parquet")

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob archive: %w", err)
	}
	if len(matches) == 0 {
		return []Summary{}, nil
	}

	query := fmt.Sprintf(`
		SELECT
			parameter_id,
			count(*),
			min(value), max(value), avg(value),
			min(timestamp_ms), max(timestamp_ms),
			arg_min(value, timestamp_ms), arg_max(value, timestamp_ms)
		FROM (
			SELECT DISTINCT parameter_id, timestamp_ms, value
			FROM read_parquet(%s)
		)
		WHERE $1 = '' OR parameter_id = $1
		GROUP BY parameter_id
		ORDER BY parameter_id
	`, quoteLiteral(pattern))

	rows, err := a.db.QueryContext(ctx, query, parameterID)
	if err != nil {
		return nil, fmt.Errorf("summarize archive: %w: %w", err, errors.ErrDatabase)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		var first, last int64
		if err := rows.Scan(&s.ParameterID, &s.Count, &s.Min, &s.Max, &s.Avg,
			&first, &last, &s.FirstValue, &s.LastValue); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.First = time.UnixMilli(first).UTC()
		s.Last = time.UnixMilli(last).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// File describes one archived Parquet file.
type File struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Size    int64  `json:"size"`
	NumRows int64  `json:"rows"`
}

// Files lists the archived files ordered by name.
func (a *Archive) Files() ([]File, error) {
	matches, err := filepath.Glob(filepath.Join(a.dir, "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	files := make([]File, 0, len(matches))
	for _, path := range matches {
		info, err := parquet.GetFileInfo(path)
		if err != nil {
			log.Warn("skipping unreadable archive file", "file", path, "error", err)
			continue
		}
		name := filepath.Base(path)
		kind := "points"
		if strings.HasPrefix(name, aggregatesPrefix) {
			kind = "aggregates"
		}
		files = append(files, File{Name: name, Kind: kind, Size: info.Size, NumRows: info.NumRows})
	}
	return files, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
