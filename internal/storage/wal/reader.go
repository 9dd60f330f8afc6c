package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/xtxerr/satmon/internal/storage/types"
)

// Reader reads points from a WAL segment file.
type Reader struct {
	path string
	file *os.File

	stats ReaderStats
}

// ReaderStats holds WAL reader statistics.
type ReaderStats struct {
	RecordsRead    int64
	PointsRead     int64
	BytesRead      int64
	CorruptRecords int64
}

// NewReader opens a segment file and verifies its header.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}

	if magic := binary.LittleEndian.Uint64(header[0:8]); magic != walMagic {
		f.Close()
		return nil, fmt.Errorf("invalid magic: expected %x, got %x", walMagic, magic)
	}
	if version := binary.LittleEndian.Uint32(header[8:12]); version != walVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported version: %d", version)
	}

	return &Reader{path: path, file: f}, nil
}

// ReadRecord reads the next record from the segment.
// Returns io.EOF when there are no more records.
func (r *Reader) ReadRecord() ([]types.DataPoint, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(r.file, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxRecordSize {
		return nil, fmt.Errorf("record too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.file, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if actualCRC := crc32.ChecksumIEEE(payload); actualCRC != expectedCRC {
		return nil, fmt.Errorf("CRC mismatch: expected %x, got %x", expectedCRC, actualCRC)
	}

	points, err := decodePoints(payload)
	if err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}

	r.stats.RecordsRead++
	r.stats.PointsRead += int64(len(points))
	r.stats.BytesRead += int64(recordHeaderSize + len(payload))

	return points, nil
}

// ReadAll reads every intact record of the segment. A torn or corrupt
// record ends the segment: everything after it is unreliable.
func (r *Reader) ReadAll() ([]types.DataPoint, error) {
	var all []types.DataPoint

	for {
		points, err := r.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.stats.CorruptRecords++
			log.Warn("truncated segment at corrupt record", "path", r.path, "error", err)
			break
		}
		all = append(all, points...)
	}

	return all, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// ReadSegment reads all points from a segment file.
func ReadSegment(path string) ([]types.DataPoint, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}

// Replay reads every segment in dir, oldest first, and calls fn once per
// record. Replay stops at the first error returned by fn.
func Replay(dir string, fn func(points []types.DataPoint) error) (ReaderStats, error) {
	var total ReaderStats

	paths, err := ListSegments(dir)
	if err != nil {
		return total, fmt.Errorf("list segments: %w", err)
	}

	for _, path := range paths {
		r, err := NewReader(path)
		if err != nil {
			// A crash right after rotation leaves a headerless file.
			log.Warn("skipping unreadable segment", "path", path, "error", err)
			continue
		}

		for {
			points, err := r.ReadRecord()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				r.stats.CorruptRecords++
				log.Warn("truncated segment at corrupt record", "path", path, "error", err)
				break
			}
			if err := fn(points); err != nil {
				r.Close()
				return total, err
			}
		}

		s := r.Stats()
		total.RecordsRead += s.RecordsRead
		total.PointsRead += s.PointsRead
		total.BytesRead += s.BytesRead
		total.CorruptRecords += s.CorruptRecords
		r.Close()
	}

	return total, nil
}
