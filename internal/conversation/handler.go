package conversation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jiwon-platform/chatmemory/internal/api"
	"github.com/jiwon-platform/chatmemory/internal/similarity"
)

// Handler handles conversation HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new conversation handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// Search ranks stored messages against a free-text query.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	resp, err := h.svc.Search(r.Context(), req)
	if err != nil {
		if IsUnavailable(err) {
			slog.Warn("searching messages", "error", err)
			api.HandleError(w, api.ErrSearchUnavailable)
			return
		}
		h.handleServiceError(w, "searching messages", err)
		return
	}

	api.JSON(w, http.StatusOK, resp)
}

// Record stores one chat message.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	msg, err := h.svc.Record(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, "recording message", err)
		return
	}

	api.JSON(w, http.StatusCreated, MessageView{Message: *msg, HasEmbedding: msg.HasEmbedding()})
}

// History returns a session's messages in chronological order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, err := h.svc.History(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, "listing session history", err)
		return
	}

	api.JSON(w, http.StatusOK, msgs)
}

// Recent returns the short-term window of a session.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 {
			api.HandleError(w, api.NewBadRequestError("limit must be a positive integer"))
			return
		}
		limit = v
	}

	entries, err := h.svc.Recent(r.Context(), sessionID, limit)
	if err != nil {
		h.handleServiceError(w, "reading recent messages", err)
		return
	}

	api.JSON(w, http.StatusOK, entries)
}

// ClearSession deletes every message of a session.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	deleted, err := h.svc.ClearSession(r.Context(), sessionID)
	if err != nil {
		h.handleServiceError(w, "clearing session", err)
		return
	}

	api.JSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) handleServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidUserID):
		api.HandleError(w, api.NewValidationError(err.Error()))
	case errors.Is(err, ErrSearchUnavailable):
		slog.Warn(op, "error", err)
		api.HandleError(w, api.ErrSearchUnavailable)
	case errors.Is(err, ErrStoreUnavailable):
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrServiceUnavailable)
	case errors.Is(err, similarity.ErrDimensionMismatch):
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	default:
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}
