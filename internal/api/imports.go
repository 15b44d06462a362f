package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	ingesterrors "jobmate/job-ingest/internal/errors"
	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/model"
)

type urlRequest struct {
	URL string `json:"url"`
}

type bulkRequest struct {
	URLs []string `json:"urls"`
}

type repositoryRequest struct {
	URL      string            `json:"url"`
	Filters  model.RepoFilters `json:"filters"`
	MaxCount int               `json:"maxCount"`
}

func (h *Handler) readURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body urlRequest
	if !decode(w, r, &body) {
		return "", false
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		jsonError(w, "body must contain url", http.StatusBadRequest)
		return "", false
	}
	return url, true
}

func (h *Handler) importURL(w http.ResponseWriter, r *http.Request) {
	url, ok := h.readURL(w, r)
	if !ok {
		return
	}

	res := h.importer.ImportURL(r.Context(), url)
	if res.Success && h.persist != nil {
		id, err := h.persist(r.Context(), *res.Posting)
		if err != nil {
			h.log.Warn("persisting imported posting failed", zap.String("url", url), zap.Error(err))
			res.Warnings = append(res.Warnings, "posting imported but not saved: "+err.Error())
		} else {
			res.PostingID = id
		}
	}
	writeResult(w, res)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	url, ok := h.readURL(w, r)
	if !ok {
		return
	}
	writeResult(w, h.importer.Preview(r.Context(), url))
}

func (h *Handler) bulkImport(w http.ResponseWriter, r *http.Request) {
	var body bulkRequest
	if !decode(w, r, &body) {
		return
	}
	urls := make([]string, 0, len(body.URLs))
	for _, u := range body.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if err := h.importer.ValidateBulk(urls); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonOK(w, h.importer.BulkImport(r.Context(), urls, h.persist))
}

func (h *Handler) importRepository(w http.ResponseWriter, r *http.Request) {
	var body repositoryRequest
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		jsonError(w, "body must contain url", http.StatusBadRequest)
		return
	}

	res := h.importer.ImportRepository(r.Context(), strings.TrimSpace(body.URL), body.Filters, body.MaxCount)
	if res.Success {
		jsonOK(w, res)
		return
	}
	jsonStatus(w, errorStatus(res.Error), res)
}

func writeResult(w http.ResponseWriter, res importer.Result) {
	if res.Success {
		jsonOK(w, res)
		return
	}
	jsonStatus(w, errorStatus(res.Error), res)
}

// errorStatus maps an import failure to the response status. Upstream
// failures are reported as 502 so callers can tell them from bad input.
func errorStatus(err *ingesterrors.ImportError) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	switch err.Code {
	case ingesterrors.CodeInvalidRepositoryURL:
		return http.StatusBadRequest
	case ingesterrors.CodeParse:
		return http.StatusUnprocessableEntity
	case ingesterrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case ingesterrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case ingesterrors.CodeNotFound, ingesterrors.CodeReadmeNotFound:
		return http.StatusNotFound
	case ingesterrors.CodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
