package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/store"
	"github.com/xtxerr/satmon/internal/validation"
)

type registerSatelliteRequest struct {
	Name       string            `json:"name"`
	LaunchDate string            `json:"launch_date"`
	Metadata   map[string]string `json:"metadata"`
}

type updateSatelliteRequest struct {
	Name       *string           `json:"name"`
	LaunchDate *string           `json:"launch_date"`
	Metadata   map[string]string `json:"metadata"`
}

func (h *Handler) listSatellites(w http.ResponseWriter, r *http.Request) {
	lp, err := parseListParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page := h.mgr.Satellites.List(manager.ListOptions{
		IncludeDisabled: lp.includeDisabled,
		Page:            lp.page,
		PageSize:        lp.pageSize,
	})
	writeJSON(w, http.StatusOK, newPageView(page, newSatelliteView))
}

func (h *Handler) registerSatellite(w http.ResponseWriter, r *http.Request) {
	var req registerSatelliteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.LaunchDate == "" {
		writeError(w, r, errors.NewMissingField("launch_date"))
		return
	}
	launch, err := parseDate("launch_date", req.LaunchDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sat, err := h.mgr.Satellites.Register(req.Name, launch, req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSatelliteView(sat))
}

func (h *Handler) getSatellite(w http.ResponseWriter, r *http.Request) {
	sat, err := h.mgr.Satellites.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSatelliteView(sat))
}

func (h *Handler) updateSatellite(w http.ResponseWriter, r *http.Request) {
	var req updateSatelliteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upd := manager.SatelliteUpdate{Name: req.Name, Metadata: req.Metadata}
	if req.LaunchDate != nil {
		launch, err := parseDate("launch_date", *req.LaunchDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upd.LaunchDate = &launch
	}

	sat, err := h.mgr.Satellites.Update(chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSatelliteView(sat))
}

func (h *Handler) activateSatellite(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.mgr.Satellites.Activate)
}

func (h *Handler) disableSatellite(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.mgr.Satellites.Disable)
}

func (h *Handler) enableSatellite(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.mgr.Satellites.Reenable)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(string) (*store.Satellite, error)) {
	sat, err := fn(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSatelliteView(sat))
}

func (h *Handler) satelliteStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.SatelliteStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatusView(st))
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	lp, err := parseListParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.engine.Hierarchy(r.Context(), query.HierarchyOptions{
		SatelliteID:     r.URL.Query().Get("satellite_id"),
		IncludeDisabled: lp.includeDisabled,
		Page:            lp.page,
		PageSize:        lp.pageSize,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageView(page, newSatelliteTreeView))
}

// =============================================================================
// Synthetic data
// =============================================================================

// maxGeneratePoints caps one backfill per parameter (a week at 1s).
const maxGeneratePoints = 7 * 24 * 3600

type generateRequest struct {
	Window   string `json:"window"`
	Interval string `json:"interval"`
	End      string `json:"end"`
}

type generateResponse struct {
	SatelliteID string         `json:"satellite_id"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Interval    string         `json:"interval"`
	Parameters  int            `json:"parameters"`
	Points      int            `json:"points"`
	Skipped     int            `json:"skipped"`
	PerParam    map[string]int `json:"per_parameter"`
}

// generate backfills synthetic telemetry for every parameter of a
// satellite. An empty body uses the generator's default window.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errors.ErrMissingField) {
			writeError(w, r, err)
			return
		}
	}

	win, err := h.generateWindow(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	satID := chi.URLParam(r, "id")
	tree, err := h.mgr.Tree(satID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch tree.Satellite.Status {
	case store.StatusDisabled:
		writeError(w, r, errors.NewSatelliteDisabled(satID))
		return
	case store.StatusPending:
		writeError(w, r, errors.NewSatellitePending(satID))
		return
	}

	var params []*store.Parameter
	for _, ut := range tree.Units {
		params = append(params, ut.Parameters...)
	}

	ctx := logging.ContextWithSatelliteID(r.Context(), satID)
	res, err := generator.Backfill(ctx, h.gen, h.mgr, params, win, h.gen.Config().Workers)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.WithContext(ctx).Info("synthetic telemetry generated",
		"parameters", res.Parameters, "points", res.Points, "skipped", res.Skipped)

	writeJSON(w, http.StatusOK, generateResponse{
		SatelliteID: satID,
		Start:       win.Start.UTC(),
		End:         win.End.UTC(),
		Interval:    win.Interval.String(),
		Parameters:  res.Parameters,
		Points:      res.Points,
		Skipped:     res.Skipped,
		PerParam:    res.PerParam,
	})
}

func (h *Handler) generateWindow(req generateRequest) (generator.Window, error) {
	win := h.gen.DefaultWindow()

	if req.Interval != "" {
		d, err := parseDuration("interval", req.Interval)
		if err != nil {
			return win, err
		}
		win.Interval = d
	}
	if req.End != "" {
		end, err := validation.ParseTime("end", req.End)
		if err != nil {
			return win, err
		}
		span := win.End.Sub(win.Start)
		win.End = end
		win.Start = end.Add(-span)
	}
	if req.Window != "" {
		d, err := parseDuration("window", req.Window)
		if err != nil {
			return win, err
		}
		win.Start = win.End.Add(-d)
	}
	if err := win.Validate(); err != nil {
		return win, err
	}
	if n := win.Count(); n > maxGeneratePoints {
		return win, errors.NewInvalidValue("window", win.End.Sub(win.Start),
			fmt.Sprintf("%d points per parameter exceeds %d", n, maxGeneratePoints))
	}
	return win, nil
}

// parseDate accepts a calendar date or any API time value.
func parseDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return validation.ParseTime(field, s)
}
