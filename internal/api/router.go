package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"catalog/repricer/internal/metrics"
)

// NewRouter creates a chi router with all repricer routes registered.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogging)
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Health)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pricing/calculate", h.Calculate)
		r.Post("/pricing/preview", h.Preview)

		r.Get("/categories", h.Categories)
		r.Get("/categories/selection", h.GetSelection)
		r.Put("/categories/selection", h.PutSelection)
		r.Delete("/categories/selection", h.ClearSelection)
		r.Post("/categories/selection/check", h.CheckCategory)
		r.Post("/categories/selection/all", h.SelectAll)

		r.Post("/batches", h.CreateBatch)
		r.Post("/batches/import", h.ImportBatch)
		r.Get("/batches/{id}", h.GetBatch)

		r.Post("/exports", h.CreateExport)
	})

	return r
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": chimw.GetReqID(r.Context()),
		}).Debug("request handled")
	})
}
