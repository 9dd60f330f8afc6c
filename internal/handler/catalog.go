package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/store"
)

// =============================================================================
// Units
// =============================================================================

type createUnitRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateUnitRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type deleteUnitResponse struct {
	ID                string   `json:"id"`
	DeletedParameters []string `json:"deleted_parameters"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.mgr.Units.ListBySatellite(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]unitView, len(units))
	for i, u := range units {
		out[i] = newUnitView(u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.mgr.Units.Create(chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUnitView(u))
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.mgr.Units.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUnitView(u))
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	var req updateUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.mgr.Units.Update(chi.URLParam(r, "id"), manager.UnitUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUnitView(u))
}

func (h *Handler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, err := h.mgr.Units.Delete(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, deleteUnitResponse{ID: id, DeletedParameters: removed})
}

// =============================================================================
// Parameters
// =============================================================================

type defineParameterRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
	UOM  string `json:"uom"`
}

type updateParameterRequest struct {
	Name *string `json:"name"`
	Type *string `json:"type"`
	UOM  *string `json:"uom"`
}

type parameterTypeView struct {
	Type string  `json:"type"`
	UOM  string  `json:"uom"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func (h *Handler) listParameters(w http.ResponseWriter, r *http.Request) {
	params, err := h.mgr.Parameters.ListByUnit(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParameterViews(params))
}

func (h *Handler) defineParameter(w http.ResponseWriter, r *http.Request) {
	var req defineParameterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.mgr.Parameters.Define(chi.URLParam(r, "id"), req.Name, store.ParameterType(req.Type), req.UOM)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newParameterView(p))
}

func (h *Handler) getParameter(w http.ResponseWriter, r *http.Request) {
	p, err := h.mgr.Parameters.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParameterView(p))
}

func (h *Handler) updateParameter(w http.ResponseWriter, r *http.Request) {
	var req updateParameterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upd := manager.ParameterUpdate{Name: req.Name, UOM: req.UOM}
	if req.Type != nil {
		t := store.ParameterType(*req.Type)
		upd.Type = &t
	}

	p, err := h.mgr.Parameters.Update(chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newParameterView(p))
}

func (h *Handler) deleteParameter(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Parameters.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parameterTypes(w http.ResponseWriter, r *http.Request) {
	specs := store.Types()
	out := make([]parameterTypeView, len(specs))
	for i, s := range specs {
		out[i] = parameterTypeView{Type: string(s.Type), UOM: s.UOM, Min: s.Min, Max: s.Max}
	}
	writeJSON(w, http.StatusOK, out)
}
