package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/generation"
	"github.com/parleychat/parley/internal/manager"
	"github.com/parleychat/parley/pkg/utils"
)

// Handler exposes the send/cancel/temperature operations.
type Handler struct {
	mgr *manager.Manager
}

func New(mgr *manager.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/send", h.handleSend)
	r.Post("/chat/cancel", h.handleCancel)
	r.Put("/chat/temperature", h.handleTemperature)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.mgr.SendMessage(r.Context(), payload.Text)
	switch {
	case errors.Is(err, manager.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, manager.ErrRequestInFlight):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generation.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sending"})
	}
}

// handleCancel is always accepted: cancelling an idle manager is a no-op.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.mgr.Cancel()
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleTemperature(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Temperature float32 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.mgr.SetTemperature(payload.Temperature); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]float32{"temperature": h.mgr.Temperature()})
}
