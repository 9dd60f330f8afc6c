package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/xtxerr/satmon/internal/logging"
)

// requestLogger logs one line per request and carries the chi request id
// into the logging context.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
			r = r.WithContext(ctx)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		l := logging.WithContext(ctx)
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		}
		switch {
		case status >= 500:
			l.Error("request", args...)
		case status >= 400:
			l.Warn("request", args...)
		default:
			l.Debug("request", args...)
		}
	})
}
