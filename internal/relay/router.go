package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logx "notifyrelay/pkg/logx"
)

// newRouter wires middleware and routes:
//
//	POST /notify   accept a notification
//	GET  /health   liveness
//	GET  /metrics  Prometheus exposition (when a gatherer is set)
func newRouter(h *handlers, gatherer prometheus.Gatherer, log logx.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(allowAnyOrigin)

	r.Post("/notify", h.notify)
	r.Get("/health", h.health)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// allowAnyOrigin reflects the caller's Origin so browser-based hooks can
// post from any page, and answers preflight requests itself.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", origin)
		hdr.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				hdr.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				hdr.Set("Access-Control-Allow-Headers", "Content-Type")
			}
			hdr.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug on the way in and info on the
// way out, except /health and /metrics which stay at debug.
func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())

			log.Debug("request started",
				logx.String("request_id", reqID),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.String("remote_addr", r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []logx.Field{
				logx.String("request_id", reqID),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("duration", time.Since(start)),
			}
			if quietPath(r.URL.Path) {
				log.Debug("request completed", fields...)
				return
			}
			log.Info("request completed", fields...)
		})
	}
}

func quietPath(p string) bool {
	return p == "/health" || strings.HasPrefix(p, "/metrics")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
