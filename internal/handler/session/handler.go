package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/manager"
	"github.com/parleychat/parley/pkg/utils"
)

// Handler exposes the session lifecycle operations.
type Handler struct {
	mgr *manager.Manager
}

func New(mgr *manager.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Post("/sessions", h.handleCreate)
	r.Post("/sessions/{sessionID}/activate", h.handleActivate)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
	r.Get("/sessions/{sessionID}/messages", h.handleMessages)
}

type sessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Active       bool   `json:"active"`
	MessageCount int    `json:"messageCount"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	activeID := h.mgr.ActiveID()
	sessions := h.mgr.Sessions()

	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			Active:       s.ID == activeID,
			MessageCount: len(s.Messages),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.mgr.NewChat(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, ok, err := h.mgr.SwitchTo(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       sessionID,
		"messages": msgs,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.mgr.Delete(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"activeId": h.mgr.ActiveID()})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, ok := h.mgr.Messages(sessionID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}
