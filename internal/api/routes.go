package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/clips"
	"github.com/clipforge/clipforge/internal/config"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Post("/api/clips", submitHandler(cfg))
	r.Get("/api/jobs", listJobsHandler(cfg))
	r.Get("/api/jobs/{id}", getJobHandler(cfg))

	// Rendered artifacts are served directly; their expiry is an external
	// concern.
	fileServer := http.StripPrefix("/clips/", http.FileServer(http.Dir(cfg.ClipsDir)))
	r.Get("/clips/*", fileServer.ServeHTTP)

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Store.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Store.GetJob(r.Context(), id)
		if err == clips.ErrJobNotFound {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}
