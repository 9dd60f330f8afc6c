package handler

import (
	"net/http"
	"path/filepath"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/storage/archive"
	"github.com/xtxerr/satmon/internal/validation"
)

type exportRequest struct {
	SatelliteID  string   `json:"satellite_id"`
	UnitID       string   `json:"unit_id"`
	ParameterIDs []string `json:"parameter_ids"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Bucket       string   `json:"bucket"`
}

type exportResponse struct {
	PointsFile     string `json:"points_file,omitempty"`
	AggregatesFile string `json:"aggregates_file,omitempty"`
	Parameters     int    `json:"parameters"`
	Points         int64  `json:"points"`
	Aggregates     int64  `json:"aggregates"`
}

func (h *Handler) requireArchive(w http.ResponseWriter, r *http.Request) bool {
	if h.archive == nil {
		writeError(w, r, errors.NewNotFound("archive", "disabled"))
		return false
	}
	return true
}

func (h *Handler) exportArchive(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w, r) {
		return
	}

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ar, err := h.exportSelection(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.archive.Export(r.Context(), h.mgr.Series(), ar)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exportResponse{
		PointsFile:     baseName(res.PointsFile),
		AggregatesFile: baseName(res.AggregatesFile),
		Parameters:     res.Parameters,
		Points:         res.Points,
		Aggregates:     res.Aggregates,
	})
}

// exportSelection resolves the request to parameter ids. Explicit ids win
// over a unit, a unit wins over a satellite.
func (h *Handler) exportSelection(req exportRequest) (archive.ExportRequest, error) {
	var ar archive.ExportRequest

	switch {
	case len(req.ParameterIDs) > 0:
		for _, id := range req.ParameterIDs {
			if _, err := h.mgr.ResolveParameter(id); err != nil {
				return ar, err
			}
		}
		ar.ParameterIDs = req.ParameterIDs
	case req.UnitID != "":
		_, ut, err := h.mgr.ResolveUnit(req.UnitID)
		if err != nil {
			return ar, err
		}
		for _, p := range ut.Parameters {
			ar.ParameterIDs = append(ar.ParameterIDs, p.ID)
		}
	case req.SatelliteID != "":
		tree, err := h.mgr.Tree(req.SatelliteID)
		if err != nil {
			return ar, err
		}
		ar.ParameterIDs = tree.ParameterIDs()
	default:
		return ar, errors.NewMissingField("satellite_id, unit_id or parameter_ids")
	}

	if len(ar.ParameterIDs) == 0 {
		return ar, errors.NewNotFound("parameter", "selection is empty")
	}

	if req.Start != "" {
		t, err := validation.ParseTime("start", req.Start)
		if err != nil {
			return ar, err
		}
		ms := validation.CeilMilli(t)
		ar.Start = &ms
	}
	if req.End != "" {
		t, err := validation.ParseTime("end", req.End)
		if err != nil {
			return ar, err
		}
		ms := t.UnixMilli()
		ar.End = &ms
	}
	if req.Bucket != "" {
		d, err := parseDuration("bucket", req.Bucket)
		if err != nil {
			return ar, err
		}
		ar.Bucket = d
	}
	return ar, nil
}

func (h *Handler) archiveSummary(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w, r) {
		return
	}

	sums, err := h.archive.Summarize(r.Context(), r.URL.Query().Get("parameter_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parameters": sums})
}

func (h *Handler) archiveFiles(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w, r) {
		return
	}

	files, err := h.archive.Files()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// pruneArchive deletes files exported more than older_than ago.
func (h *Handler) pruneArchive(w http.ResponseWriter, r *http.Request) {
	if !h.requireArchive(w, r) {
		return
	}
	if r.URL.Query().Get("older_than") == "" {
		writeError(w, r, errors.NewMissingField("older_than"))
		return
	}
	maxAge, err := queryDuration(r, "older_than")
	if err != nil {
		writeError(w, r, err)
		return
	}
	dryRun, err := queryBool(r, "dry_run")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.archive.Prune(maxAge, dryRun)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
