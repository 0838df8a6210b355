package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	corpus "github.com/avollmer/corpus"
	"github.com/avollmer/corpus/release"
)

type handler struct {
	service *corpus.Service
}

func newHandler(s *corpus.Service) *handler {
	return &handler{service: s}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors: not-found conditions are 404,
// everything else is a client error.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, corpus.ErrNotFound) ||
		errors.Is(err, corpus.ErrNoActiveRelease) ||
		errors.Is(err, release.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeError(w, status, err.Error())
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /domains
func (h *handler) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": h.service.Domains()})
}

// POST /ingestion/run
func (h *handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req corpus.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := h.service.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /ingestion/run/batch
func (h *handler) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req corpus.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := h.service.RunBatch(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      err.Error(),
			"release_id": result.ReleaseID,
			"results":    result.Results,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type rawCaptureRequest struct {
	Domain               string `json:"domain"`
	SourceID             string `json:"source_id"`
	URL                  string `json:"url"`
	TimeoutS             int    `json:"timeout,omitempty"`
	Clean                bool   `json:"clean,omitempty"`
	QuarantineSuspicious bool   `json:"quarantine_suspicious,omitempty"`
}

// POST /ingestion/raw-capture
func (h *handler) handleRawCapture(w http.ResponseWriter, r *http.Request) {
	var req rawCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := h.service.CaptureURL(r.Context(), corpus.CaptureRequest{
		Domain:               req.Domain,
		SourceID:             req.SourceID,
		URL:                  req.URL,
		Timeout:              time.Duration(req.TimeoutS) * time.Second,
		Clean:                req.Clean,
		QuarantineSuspicious: req.QuarantineSuspicious,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type rawCaptureBatchRequest struct {
	Domain          string              `json:"domain"`
	Items           []rawCaptureRequest `json:"items"`
	ContinueOnError bool                `json:"continue_on_error,omitempty"`
}

func captureItems(items []rawCaptureRequest) []corpus.CaptureBatchItem {
	out := make([]corpus.CaptureBatchItem, 0, len(items))
	for _, item := range items {
		out = append(out, corpus.CaptureBatchItem{
			SourceID:             item.SourceID,
			URL:                  item.URL,
			Timeout:              time.Duration(item.TimeoutS) * time.Second,
			Clean:                item.Clean,
			QuarantineSuspicious: item.QuarantineSuspicious,
		})
	}
	return out
}

// POST /ingestion/raw-capture/batch
func (h *handler) handleRawCaptureBatch(w http.ResponseWriter, r *http.Request) {
	var req rawCaptureBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := h.service.CaptureBatch(r.Context(), corpus.CaptureBatchRequest{
		Domain:          req.Domain,
		Items:           captureItems(req.Items),
		ContinueOnError: req.ContinueOnError,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type ingestBatchRequest struct {
	Domain          string              `json:"domain"`
	ReleaseID       string              `json:"release_id,omitempty"`
	CreatedBy       string              `json:"created_by,omitempty"`
	Items           []rawCaptureRequest `json:"items"`
	ContinueOnError bool                `json:"continue_on_error,omitempty"`
	Force           bool                `json:"force,omitempty"`
}

// POST /ingestion/ingest/batch
func (h *handler) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := h.service.CaptureIngestBatch(r.Context(), corpus.IngestBatchRequest{
		Domain:          req.Domain,
		ReleaseID:       req.ReleaseID,
		CreatedBy:       req.CreatedBy,
		Items:           captureItems(req.Items),
		ContinueOnError: req.ContinueOnError,
		Force:           req.Force,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      err.Error(),
			"release_id": result.ReleaseID,
			"results":    result.Results,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /ingestion/file-capture (multipart form)
func (h *handler) handleFileCapture(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	c, err := h.service.CaptureFile(corpus.FileCaptureRequest{
		Domain:               r.FormValue("domain"),
		SourceID:             r.FormValue("source_id"),
		Filename:             header.Filename,
		ContentType:          header.Header.Get("Content-Type"),
		Data:                 data,
		Clean:                r.FormValue("clean") == "true",
		QuarantineSuspicious: r.FormValue("quarantine_suspicious") != "false",
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// POST /ingestion/quarantine
func (h *handler) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain    string `json:"domain"`
		CaptureID string `json:"capture_id"`
		Reason    string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := h.service.Quarantine(req.Domain, req.CaptureID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GET /ingestion/{domain}/events
func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	events, err := h.service.Events(domain, queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "events": events})
}

// GET /ingestion/{domain}/metrics
func (h *handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Metrics(r.PathValue("domain"), queryInt(r, "hours", 24))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GET /releases/{domain}
func (h *handler) handleListReleases(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	active, ids, err := h.service.Releases(domain)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":         domain,
		"active_release": active,
		"releases":       ids,
	})
}

// GET /releases/{domain}/audit
func (h *handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	domain := r.PathValue("domain")
	events, err := h.service.Audit(domain, queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "events": events})
}

// POST /releases/{domain}/promote
func (h *handler) handlePromoteBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReleaseID  string `json:"release_id"`
		PromotedBy string `json:"promoted_by,omitempty"`
		Reason     string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ReleaseID == "" {
		writeError(w, http.StatusBadRequest, "release_id is required")
		return
	}
	h.promote(w, r.PathValue("domain"), req.ReleaseID, req.PromotedBy, req.Reason, true)
}

// POST /releases/{domain}/{release_id}/promote
func (h *handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PromotedBy string `json:"promoted_by,omitempty"`
		Reason     string `json:"reason,omitempty"`
	}
	// an empty body is allowed
	json.NewDecoder(r.Body).Decode(&req)
	h.promote(w, r.PathValue("domain"), r.PathValue("release_id"), req.PromotedBy, req.Reason, false)
}

func (h *handler) promote(w http.ResponseWriter, domain, releaseID, promotedBy, reason string, wrap bool) {
	event, err := h.service.Promote(domain, releaseID, promotedBy, reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !wrap {
		writeJSON(w, http.StatusOK, event)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":              domain,
		"active_release_id":   releaseID,
		"previous_release_id": event.PreviousReleaseID,
		"audit_event":         event,
	})
}

// POST /releases/{domain}/merge
func (h *handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req corpus.MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Domain = r.PathValue("domain")
	result, err := h.service.Merge(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("release merge failed: %v", err))
		slog.Error("merge error", "domain", req.Domain, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /retrieve and POST /retrieval/query
func (h *handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req corpus.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := h.service.Retrieve(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
