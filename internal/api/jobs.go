package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"jobmate/job-ingest/internal/scheduler"
	"jobmate/job-ingest/internal/scraper"
)

// handleScrapeJobs handles GET|POST /scrape-jobs
func (h *Handler) handleScrapeJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		jsonOK(w, h.scheduler.List(owner))
	case http.MethodPost:
		var cfg scheduler.JobConfig
		if !decode(w, r, &cfg) {
			return
		}
		job, err := h.scheduler.Add(owner, cfg)
		if err != nil {
			h.jobError(w, err)
			return
		}
		jsonStatus(w, http.StatusCreated, job)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleScrapeJob handles /scrape-jobs/{id} and /scrape-jobs/{id}/{action}
func (h *Handler) handleScrapeJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := userID(w, r)
	if !ok {
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch len(parts) {
	case 2:
		h.scrapeJob(w, r, parts[1], owner)
	case 3:
		if r.Method != http.MethodPost {
			jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.scrapeJobAction(w, r, parts[1], parts[2], owner)
	default:
		jsonError(w, "invalid path", http.StatusNotFound)
	}
}

func (h *Handler) scrapeJob(w http.ResponseWriter, r *http.Request, id, owner string) {
	switch r.Method {
	case http.MethodGet:
		job, ok := h.scheduler.Get(id, owner)
		if !ok {
			jsonError(w, "scrape job not found", http.StatusNotFound)
			return
		}
		jsonOK(w, job)
	case http.MethodPatch:
		var u scheduler.JobUpdate
		if !decode(w, r, &u) {
			return
		}
		job, err := h.scheduler.Update(id, owner, u)
		if err != nil {
			h.jobError(w, err)
			return
		}
		jsonOK(w, job)
	case http.MethodDelete:
		if !h.scheduler.Remove(id, owner) {
			jsonError(w, "scrape job not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) scrapeJobAction(w http.ResponseWriter, r *http.Request, id, action, owner string) {
	switch action {
	case "trigger":
		res, err := h.scheduler.Trigger(r.Context(), id, owner)
		if err != nil {
			h.jobError(w, err)
			return
		}
		jsonOK(w, res)
	case "pause":
		job, err := h.scheduler.PauseJob(id, owner)
		if err != nil {
			h.jobError(w, err)
			return
		}
		jsonOK(w, job)
	case "resume":
		job, err := h.scheduler.ResumeJob(id, owner)
		if err != nil {
			h.jobError(w, err)
			return
		}
		jsonOK(w, job)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

func (h *Handler) jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		jsonError(w, "scrape job not found", http.StatusNotFound)
	case errors.Is(err, scheduler.ErrInvalidInterval), errors.Is(err, scheduler.ErrInvalidSource),
		errors.Is(err, scraper.ErrNoFeeds):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrInvalidTransition), errors.Is(err, scheduler.ErrJobExists):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("scrape job operation failed", zap.Error(err))
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
