package handler

import (
	"net/http"
	"time"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/ingest"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/storage/types"
)

func parseFilter(r *http.Request) (query.TelemetryFilter, error) {
	q := r.URL.Query()
	f := query.TelemetryFilter{
		SatelliteID:  q.Get("satellite_id"),
		UnitID:       q.Get("unit_id"),
		ParameterIDs: queryList(r, "parameter_id", "parameter_ids"),
	}

	var err error
	if f.Start, err = queryTime(r, "start"); err != nil {
		return f, err
	}
	if f.End, err = queryTime(r, "end"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) telemetry(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	series, err := h.engine.Telemetry(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]seriesView, len(series))
	for i, s := range series {
		out[i] = newSeriesView(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": out})
}

func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("bucket") == "" {
		writeError(w, r, errors.NewMissingField("bucket"))
		return
	}
	bucket, err := queryDuration(r, "bucket")
	if err != nil {
		writeError(w, r, err)
		return
	}

	series, err := h.engine.Aggregate(r.Context(), f, bucket)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]aggregateView, len(series))
	for i, s := range series {
		out[i] = newAggregateView(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": out})
}

type ingestRequest struct {
	ParameterID string           `json:"parameter_id"`
	Points      []ingest.Message `json:"points"`
}

type ingestResponse struct {
	ParameterID string `json:"parameter_id"`
	Accepted    int    `json:"accepted"`
}

// ingest appends a batch to one parameter. The batch is all or nothing.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ParameterID == "" {
		writeError(w, r, errors.NewMissingField("parameter_id"))
		return
	}
	if len(req.Points) == 0 {
		writeError(w, r, errors.NewMissingField("points"))
		return
	}

	now := time.Now()
	points := make([]types.DataPoint, len(req.Points))
	for i, m := range req.Points {
		ts, err := m.TimestampMs(now)
		if err != nil {
			writeError(w, r, err)
			return
		}
		points[i] = types.DataPoint{ParameterID: req.ParameterID, TimestampMs: ts, Value: m.Value}
	}

	if err := h.mgr.IngestBatch(req.ParameterID, points); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{ParameterID: req.ParameterID, Accepted: len(points)})
}

type statsResponse struct {
	Satellites int         `json:"satellites"`
	Units      int         `json:"units"`
	Parameters int         `json:"parameters"`
	Series     int         `json:"series"`
	Points     int64       `json:"points"`
	Accepted   int64       `json:"accepted"`
	Rejected   int64       `json:"rejected"`
	Queries    query.Stats `json:"queries"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	sats, units, params := h.mgr.Counts()
	ss := h.mgr.Series().Stats()
	accepted, rejected := h.mgr.Stats().Aggregate()

	writeJSON(w, http.StatusOK, statsResponse{
		Satellites: sats,
		Units:      units,
		Parameters: params,
		Series:     ss.Series,
		Points:     ss.Points,
		Accepted:   accepted,
		Rejected:   rejected,
		Queries:    h.engine.Stats(),
	})
}
