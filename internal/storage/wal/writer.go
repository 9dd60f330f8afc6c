package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/storage/types"
)

var log = logging.Component("wal")

// Writer implements a Write-Ahead Log for crash-safe telemetry persistence.
// Each segment file contains a sequence of records with CRC checksums.
//
// File format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
type Writer struct {
	mu sync.Mutex

	dir            string
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	segmentSeq     int64

	writer *bufio.Writer

	opts Options

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	closed   bool

	stats WriterStats
}

// Options configures the WAL writer.
type Options struct {
	// MaxSegmentSize is the maximum size of a segment file before rotation.
	MaxSegmentSize int64

	// SyncMode controls how writes are synced to disk.
	// "async" - buffered, flushed every SyncInterval
	// "sync"  - flushed after each record
	// "fsync" - flushed and fsynced after each record
	SyncMode string

	// SyncInterval is the flush interval for async mode.
	SyncInterval time.Duration

	// BufferSize is the size of the write buffer.
	BufferSize int
}

// DefaultOptions returns default WAL options.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize: 64 * 1024 * 1024,
		SyncMode:       "sync",
		SyncInterval:   time.Second,
		BufferSize:     64 * 1024,
	}
}

// WriterStats holds WAL writer statistics.
type WriterStats struct {
	SegmentsCreated int64
	RecordsWritten  int64
	PointsWritten   int64
	BytesWritten    int64
	SyncsPerformed  int64
	Errors          int64
}

const (
	walMagic         = 0x53415457414C0001 // "SATWAL" + version 1
	walVersion       = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc
	maxRecordSize    = 64 * 1024 * 1024
)

// NewWriter creates a new WAL writer. New records always go to a fresh
// segment; existing segments are left for Replay.
func NewWriter(dir string, opts Options) (*Writer, error) {
	def := DefaultOptions()
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = def.MaxSegmentSize
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = def.SyncInterval
	}
	switch opts.SyncMode {
	case "":
		opts.SyncMode = def.SyncMode
	case "async", "sync", "fsync":
	default:
		return nil, fmt.Errorf("invalid sync mode %q", opts.SyncMode)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	w := &Writer{
		dir:  dir,
		opts: opts,
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		w.segmentSeq = segments[len(segments)-1].seq + 1
	}

	if err := w.rotateUnlocked(); err != nil {
		return nil, fmt.Errorf("create initial segment: %w", err)
	}

	if opts.SyncMode == "async" {
		w.stopCh = make(chan struct{})
		w.doneCh = make(chan struct{})
		go w.flushLoop()
	}

	return w, nil
}

// Write appends a batch of points as a single record.
func (w *Writer) Write(points []types.DataPoint) error {
	if len(points) == 0 {
		return nil
	}

	payload, err := encodePoints(points)
	if err != nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return fmt.Errorf("encode points: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("wal closed")
	}

	recordSize := int64(recordHeaderSize + len(payload))
	if w.currentSize+recordSize > w.opts.MaxSegmentSize && w.currentSize > headerSize {
		if err := w.rotateUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("rotate segment: %w", err)
		}
	}

	if err := w.writeRecord(payload); err != nil {
		w.stats.Errors++
		return fmt.Errorf("write record: %w", err)
	}

	w.stats.RecordsWritten++
	w.stats.PointsWritten += int64(len(points))
	w.stats.BytesWritten += recordSize

	if w.opts.SyncMode != "async" {
		if err := w.syncUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync: %w", err)
		}
	}

	return nil
}

func (w *Writer) writeRecord(payload []byte) error {
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.ChecksumIEEE(payload))

	if _, err := w.writer.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}

	w.currentSize += int64(recordHeaderSize + len(payload))
	return nil
}

func (w *Writer) flushLoop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.opts.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Sync(); err != nil {
				log.Warn("periodic flush failed", "error", err)
			}
		}
	}
}

// Sync flushes buffered data to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncUnlocked()
}

func (w *Writer) syncUnlocked() error {
	if w.writer == nil || w.closed {
		return nil
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}

	if w.opts.SyncMode == "fsync" {
		if err := w.currentSegment.Sync(); err != nil {
			return err
		}
	}

	w.stats.SyncsPerformed++
	return nil
}

// Rotate closes the current segment and creates a new one.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateUnlocked()
}

func (w *Writer) rotateUnlocked() error {
	if w.currentSegment != nil {
		if w.writer != nil {
			if err := w.writer.Flush(); err != nil {
				return fmt.Errorf("flush segment: %w", err)
			}
		}
		w.currentSegment.Close()
	}

	segmentPath := filepath.Join(w.dir, fmt.Sprintf("%016d.wal", w.segmentSeq))

	f, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", segmentPath, err)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], walMagic)
	binary.LittleEndian.PutUint32(header[8:12], walVersion)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(segmentPath)
		return fmt.Errorf("write header: %w", err)
	}

	w.currentSegment = f
	w.currentPath = segmentPath
	w.currentSize = headerSize
	w.writer = bufio.NewWriterSize(f, w.opts.BufferSize)
	w.segmentSeq++
	w.stats.SegmentsCreated++

	return nil
}

// Close flushes and closes the WAL writer.
func (w *Writer) Close() error {
	w.stopOnce.Do(func() {
		if w.stopCh != nil {
			close(w.stopCh)
			<-w.doneCh
		}
	})

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var flushErr error
	if w.writer != nil {
		flushErr = w.writer.Flush()
	}
	if w.currentSegment != nil {
		if err := w.currentSegment.Close(); err != nil {
			return err
		}
	}
	return flushErr
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// CurrentSegment returns the current segment path.
func (w *Writer) CurrentSegment() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentPath
}

// Dir returns the segment directory.
func (w *Writer) Dir() string {
	return w.dir
}

type segmentInfo struct {
	path string
	seq  int64
}

// listSegments returns all segment files in sequence order.
func listSegments(dir string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []segmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if len(name) != 20 || name[16:] != ".wal" {
			continue
		}

		var seq int64
		if _, err := fmt.Sscanf(name, "%016d.wal", &seq); err != nil {
			continue
		}

		segments = append(segments, segmentInfo{
			path: filepath.Join(dir, name),
			seq:  seq,
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].seq < segments[j].seq
	})

	return segments, nil
}

// ListSegments returns all segment file paths in dir, oldest first.
func ListSegments(dir string) ([]string, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(segments))
	for i, s := range segments {
		paths[i] = s.path
	}
	return paths, nil
}
