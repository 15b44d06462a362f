// Package api implements the HTTP handlers for the ingestion service.
//
// Scrape-job routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET    /health                      → liveness
//	GET    /sources                     → supported sources and request budgets
//	POST   /import/url                  → import one posting
//	POST   /import/preview              → extract one posting without storing it
//	POST   /import/bulk                 → import up to 50 postings
//	POST   /import/repository           → import a GitHub README table
//	GET    /scrape-jobs                 → list the caller's scheduled jobs
//	POST   /scrape-jobs                 → create a scheduled job
//	GET    /scrape-jobs/{id}            → fetch one job
//	PATCH  /scrape-jobs/{id}            → update a job
//	DELETE /scrape-jobs/{id}            → delete a job
//	POST   /scrape-jobs/{id}/trigger    → run a job now
//	POST   /scrape-jobs/{id}/pause      → disable a job
//	POST   /scrape-jobs/{id}/resume     → enable a job
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/model"
	"jobmate/job-ingest/internal/scheduler"
	"jobmate/job-ingest/internal/source"
)

const maxBodyBytes = 1 << 20

// Importer is the import surface the handlers drive.
type Importer interface {
	ImportURL(ctx context.Context, url string) importer.Result
	Preview(ctx context.Context, url string) importer.Result
	ValidateBulk(urls []string) error
	BulkImport(ctx context.Context, urls []string, persist importer.PersistFunc) importer.BulkResult
	ImportRepository(ctx context.Context, repoURL string, filters model.RepoFilters, maxCount int) importer.RepoResult
}

// Budget reports the remaining per-minute requests of a source.
type Budget interface {
	Remaining(src model.Source) int
}

// Handler holds shared dependencies.
type Handler struct {
	importer  Importer
	scheduler *scheduler.Scheduler
	persist   importer.PersistFunc
	budget    Budget
	version   string
	log       *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithPersist stores successful imports through persist.
func WithPersist(persist importer.PersistFunc) Option {
	return func(h *Handler) { h.persist = persist }
}

// WithBudget adds remaining request budgets to /sources.
func WithBudget(b Budget) Option {
	return func(h *Handler) { h.budget = b }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// NewHandler returns a configured Handler.
func NewHandler(imp Importer, sched *scheduler.Scheduler, log *zap.Logger, opts ...Option) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{importer: imp, scheduler: sched, version: "dev", log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts every route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/sources", h.handleSources)
	mux.HandleFunc("/import/url", h.postOnly(h.importURL))
	mux.HandleFunc("/import/preview", h.postOnly(h.preview))
	mux.HandleFunc("/import/bulk", h.postOnly(h.bulkImport))
	mux.HandleFunc("/import/repository", h.postOnly(h.importRepository))
	mux.HandleFunc("/scrape-jobs", h.handleScrapeJobs)
	mux.HandleFunc("/scrape-jobs/", h.handleScrapeJob)
}

// Routes returns a mux with every route mounted.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, map[string]any{
		"status":    "ok",
		"service":   "job-ingest",
		"version":   h.version,
		"scheduler": h.scheduler != nil && h.scheduler.Running(),
	})
}

type sourceInfo struct {
	source.Info
	Remaining *int `json:"remaining,omitempty"`
}

func (h *Handler) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	supported := source.Supported()
	out := make([]sourceInfo, 0, len(supported))
	for _, info := range supported {
		si := sourceInfo{Info: info}
		if h.budget != nil {
			n := h.budget.Remaining(info.Source)
			si.Remaining = &n
		}
		out = append(out, si)
	}
	jsonOK(w, out)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (h *Handler) postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("x-user-id")
	if id == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
