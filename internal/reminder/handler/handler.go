// Package handler exposes the reminder service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vocabremind/internal/reminder"
	"vocabremind/internal/storage"
	logx "vocabremind/pkg/logx"
)

const maxBodyBytes = 64 << 10

// Service defines the reminder operations the handler needs.
type Service interface {
	Upsert(ctx context.Context, in reminder.Input) (reminder.Reminder, bool, error)
	ActiveForUser(ctx context.Context, userID string) (reminder.Reminder, error)
	Cancel(ctx context.Context, id string) error
}

type Handler struct {
	service Service
	log     logx.Logger
}

func New(service Service, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{service: service, log: log}
}

// Register mounts reminder endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/reminder", h.HandleUpsert)
	r.Get("/reminders/{userId}", h.HandleGetActive)
	r.Delete("/reminder/{id}", h.HandleCancel)
}

type upsertResponse struct {
	Message  string            `json:"message"`
	Reminder reminder.Reminder `json:"reminder"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// HandleUpsert handles POST /reminder.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var in reminder.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	rem, created, err := h.service.Upsert(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if created {
		h.log.Info("reminder created", logx.String("reminder", rem.ID), logx.String("user", rem.UserID), logx.String("frequency", rem.Frequency))
		writeJSON(w, http.StatusCreated, upsertResponse{Message: "Reminder created successfully", Reminder: rem})
		return
	}
	h.log.Info("reminder updated", logx.String("reminder", rem.ID), logx.String("user", rem.UserID), logx.String("frequency", rem.Frequency))
	writeJSON(w, http.StatusOK, upsertResponse{Message: "Reminder updated successfully", Reminder: rem})
}

// HandleGetActive handles GET /reminders/{userId}.
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	rem, err := h.service.ActiveForUser(r.Context(), userID)
	if errors.Is(err, reminder.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "No active reminder found for this user"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// HandleCancel handles DELETE /reminder/{id}.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Reminder cancelled successfully"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *reminder.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(verr), Fields: verr.Fields})
	case errors.Is(err, reminder.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Reminder not found"})
	case errors.Is(err, reminder.ErrNoActiveJob):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No active job found for this reminder"})
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "User already has an active reminder"})
	default:
		h.log.Error("reminder request failed",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Err(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

// validationMessage surfaces the end-before-start problem on its own, the
// way clients already match on it.
func validationMessage(verr *reminder.ValidationError) string {
	if len(verr.Fields) == 1 && verr.Fields["endDate"] == reminder.MsgEndBeforeStart {
		return reminder.MsgEndBeforeStart
	}
	return verr.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
