package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/delivery/http/request"
	"github.com/user/harvester/internal/delivery/http/response"
	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/usecase"
)

type Handler struct {
	status  usecase.StatusService
	tracker *usecase.RunTracker
	logger  *zap.Logger
}

func NewHandler(status usecase.StatusService, tracker *usecase.RunTracker, logger *zap.Logger) *Handler {
	return &Handler{
		status:  status,
		tracker: tracker,
		logger:  logger,
	}
}

func (h *Handler) HandleSubmitCrawl(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.tracker.Start(req.Source)
	switch {
	case errors.Is(err, usecase.ErrUnknownSource):
		h.writeJSONError(w, "Unknown source", http.StatusBadRequest)
		return
	case errors.Is(err, usecase.ErrRunInProgress):
		h.writeJSONError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("failed to start run", zap.String("source", req.Source), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.SubmitCrawlResponse{
		Status:  "success",
		Message: "Run started",
		Source:  req.Source,
	})
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	report, running, err := h.tracker.Last(source)
	if errors.Is(err, usecase.ErrUnknownSource) {
		h.writeJSONError(w, "Unknown source", http.StatusNotFound)
		return
	}
	if report == nil {
		if running {
			h.writeJSON(w, http.StatusOK, response.RunResponse{Source: source, Running: true})
			return
		}
		h.writeJSONError(w, "No run recorded for this source", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, runResponse(report, running))
}

func runResponse(r *entity.RunReport, running bool) response.RunResponse {
	return response.RunResponse{
		Source:    r.Source,
		RunID:     r.RunID,
		State:     r.State.String(),
		Total:     r.Counters.Total,
		Processed: r.Counters.Processed,
		Success:   r.Counters.Success,
		Error:     r.Counters.Error,
		Skipped:   r.Counters.Skipped,
		Reason:    r.Reason,
		Started:   r.Started,
		Finished:  r.Finished,
		Running:   running,
	}
}

func (h *Handler) HandleGetItemStatus(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		h.writeJSONError(w, "Invalid URL format in query parameter", http.StatusBadRequest)
		return
	}
	platform := r.URL.Query().Get("source")

	status, err := h.status.GetStatus(r.Context(), platform, rawURL)
	if err != nil {
		h.logger.Error("failed to get item status", zap.String("url", rawURL), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if status.Status == entity.ItemStatusNotFound {
		h.writeJSONError(w, "Item not found for the given URL", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, response.ItemStatusResponse{
		SourceID:    status.SourceID,
		Platform:    status.Platform,
		Status:      status.Status,
		Title:       status.Title,
		PublishTime: status.PublishTime,
		ScrapeTime:  status.ScrapeTime,
	})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sources": h.tracker.Sources()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
