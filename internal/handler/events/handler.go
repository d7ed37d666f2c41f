package events

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parleychat/parley/internal/events"
	"github.com/parleychat/parley/pkg/utils"
)

// Handler streams manager events to the browser over Server-Sent Events.
type Handler struct {
	hub *events.Hub
}

func New(hub *events.Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes mounts the event stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ch, cancel := h.hub.Subscribe()
	defer cancel()

	ctx := r.Context()
	log.Printf("[sse] event stream opened")

	utils.SendSSEChunk(w, flusher, map[string]string{"type": "connected"})

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] event stream closed")
			return
		case ev := <-ch:
			utils.SendSSEChunk(w, flusher, ev)
		}
	}
}
