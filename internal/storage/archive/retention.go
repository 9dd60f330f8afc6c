package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
)

// PruneResult holds the result of a retention pass.
type PruneResult struct {
	Cutoff       time.Time `json:"cutoff"`
	DryRun       bool      `json:"dry_run"`
	FilesDeleted int       `json:"files_deleted"`
	FilesSkipped int       `json:"files_skipped"`
	BytesFreed   int64     `json:"bytes_freed"`
	Deleted      []string  `json:"deleted"`
	Errors       []string  `json:"errors,omitempty"`
}

// Prune deletes archive files exported more than maxAge ago. The export
// time is read from the file name; files whose name does not carry one are
// skipped. With dryRun set nothing is removed.
func (a *Archive) Prune(maxAge time.Duration, dryRun bool) (*PruneResult, error) {
	if maxAge <= 0 {
		return nil, errors.NewInvalidValue("max_age", maxAge, "must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := &PruneResult{
		Cutoff:  a.now().Add(-maxAge).UTC(),
		DryRun:  dryRun,
		Deleted: []string{},
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".parquet" {
			continue
		}

		exported, ok := exportTime(name)
		if !ok || exported.After(res.Cutoff) {
			res.FilesSkipped++
			continue
		}

		info, err := entry.Info()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("stat %s: %v", name, err))
			continue
		}
		if !dryRun {
			if err := os.Remove(filepath.Join(a.dir, name)); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", name, err))
				continue
			}
		}

		res.FilesDeleted++
		res.BytesFreed += info.Size()
		res.Deleted = append(res.Deleted, name)
	}

	if res.FilesDeleted > 0 {
		log.Info("archive pruned",
			"deleted", res.FilesDeleted,
			"bytes", res.BytesFreed,
			"dry_run", dryRun,
			"cutoff", res.Cutoff)
	}
	return res, nil
}

// exportTime parses "<kind>-<unix ms>-<seq>.parquet".
func exportTime(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, ".parquet")
	for _, prefix := range []string{pointsPrefix, aggregatesPrefix} {
		if rest, ok := strings.CutPrefix(base, prefix); ok {
			ms, _, _ := strings.Cut(rest, "-")
			n, err := strconv.ParseInt(ms, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.UnixMilli(n), true
		}
	}
	return time.Time{}, false
}
