// Package handler serves the satmon REST API.
//
// Handlers are organized by entity type (satellite, unit, parameter,
// telemetry, archive). Every error is written as
//
//	{"error": {"code": "...", "message": "..."}}
//
// with the status taken from errors.ErrorToHTTPStatus.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/xtxerr/satmon/config"
	"github.com/xtxerr/satmon/internal/errors"
	"github.com/xtxerr/satmon/internal/generator"
	"github.com/xtxerr/satmon/internal/logging"
	"github.com/xtxerr/satmon/internal/manager"
	"github.com/xtxerr/satmon/internal/query"
	"github.com/xtxerr/satmon/internal/storage/archive"
	"github.com/xtxerr/satmon/internal/validation"
)

var log = logging.Component("http")

// =============================================================================
// Handler
// =============================================================================

// Deps are the components behind the API. Archive may be nil, in which case
// the archive endpoints answer 404.
type Deps struct {
	Manager   *manager.Manager
	Engine    *query.Engine
	Generator *generator.Generator
	Archive   *archive.Archive

	// Metastore, when set, is pinged by /health.
	Metastore HealthChecker

	// RequestTimeout bounds every request context. Zero disables it.
	RequestTimeout time.Duration
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler holds the API dependencies.
type Handler struct {
	mgr     *manager.Manager
	engine  *query.Engine
	gen     *generator.Generator
	archive *archive.Archive
	meta    HealthChecker
	timeout time.Duration
}

// New creates a handler.
func New(d Deps) *Handler {
	return &Handler{
		mgr:     d.Manager,
		engine:  d.Engine,
		gen:     d.Generator,
		archive: d.Archive,
		meta:    d.Metastore,
		timeout: d.RequestTimeout,
	}
}

// corsOptions opens the API to any origin. Credentials are not allowed: the
// API has no cookie or session auth, and browsers reject credentialed
// responses carrying a wildcard origin.
var corsOptions = cors.Options{
	AllowedOrigins:       []string{"*"},
	AllowedMethods:       []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
	AllowedHeaders:       []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	AllowCredentials:     false,
	MaxAge:               300,
	OptionsSuccessStatus: http.StatusNoContent,
}

// Routes returns the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions))
	if h.timeout > 0 {
		r.Use(middleware.Timeout(h.timeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errors.NewNotFound("route", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Code:    errors.CodeInvalidRequest,
			Message: r.Method + " not allowed on " + r.URL.Path,
		}})
	})

	r.Get("/health", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/satellites", func(r chi.Router) {
			r.Get("/", h.listSatellites)
			r.Post("/", h.registerSatellite)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getSatellite)
				r.Patch("/", h.updateSatellite)
				r.Get("/status", h.satelliteStatus)
				r.Post("/activate", h.activateSatellite)
				r.Post("/disable", h.disableSatellite)
				r.Post("/enable", h.enableSatellite)
				r.Get("/units", h.listUnits)
				r.Post("/units", h.createUnit)
				r.Post("/generate", h.generate)
			})
		})

		r.Route("/units/{id}", func(r chi.Router) {
			r.Get("/", h.getUnit)
			r.Patch("/", h.updateUnit)
			r.Delete("/", h.deleteUnit)
			r.Get("/parameters", h.listParameters)
			r.Post("/parameters", h.defineParameter)
		})

		r.Route("/parameters/{id}", func(r chi.Router) {
			r.Get("/", h.getParameter)
			r.Patch("/", h.updateParameter)
			r.Delete("/", h.deleteParameter)
		})

		r.Get("/parameter-types", h.parameterTypes)
		r.Get("/hierarchy", h.hierarchy)

		r.Route("/telemetry", func(r chi.Router) {
			r.Get("/", h.telemetry)
			r.Post("/", h.ingest)
			r.Get("/aggregate", h.aggregate)
		})

		r.Route("/archive", func(r chi.Router) {
			r.Get("/", h.archiveFiles)
			r.Post("/", h.exportArchive)
			r.Delete("/", h.pruneArchive)
			r.Get("/summary", h.archiveSummary)
		})

		r.Get("/stats", h.stats)
	})

	return r
}

// health answers 503 when the metastore cannot be reached.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.meta != nil {
		if err := h.meta.Health(r.Context()); err != nil {
			log.Warn("metastore health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "degraded",
				"metastore": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Responses
// =============================================================================

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "error", err)
	}
}

// writeError maps err onto the API error body. Internal errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.ErrorToHTTPStatus(err)
	code := errors.ErrorToCode(err)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// =============================================================================
// Request parsing
// =============================================================================

// decodeJSON decodes a request body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, config.DefaultMaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.NewMissingField("body")
		}
		return errors.NewInvalidValue("body", "json", err.Error())
	}
	return nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := validation.ParseTime(name, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.NewInvalidValue(name, v, "expected an integer")
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.NewInvalidValue(name, v, "expected true or false")
	}
	return b, nil
}

func queryDuration(r *http.Request, name string) (time.Duration, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return parseDuration(name, v)
}

func parseDuration(name, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.NewInvalidValue(name, v, "expected a duration such as 10s or 5m")
	}
	return d, nil
}

// queryList collects repeated and comma-separated values of the given keys.
func queryList(r *http.Request, names ...string) []string {
	var out []string
	q := r.URL.Query()
	for _, name := range names {
		for _, v := range q[name] {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

type listParams struct {
	includeDisabled bool
	page            int
	pageSize        int
}

func parseListParams(r *http.Request) (listParams, error) {
	var p listParams
	var err error
	if p.includeDisabled, err = queryBool(r, "include_disabled"); err != nil {
		return p, err
	}
	if p.page, err = queryInt(r, "page"); err != nil {
		return p, err
	}
	if p.pageSize, err = queryInt(r, "page_size"); err != nil {
		return p, err
	}
	return p, nil
}
