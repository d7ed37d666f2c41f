package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/parleychat/parley/internal/events"
	chathandler "github.com/parleychat/parley/internal/handler/chat"
	eventshandler "github.com/parleychat/parley/internal/handler/events"
	sessionhandler "github.com/parleychat/parley/internal/handler/session"
	speechhandler "github.com/parleychat/parley/internal/handler/speech"
	"github.com/parleychat/parley/internal/manager"
	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/pkg/utils"
)

// NewRouter wires HTTP routes to the session manager.
func NewRouter(mgr *manager.Manager, hub *events.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	sessionHandler := sessionhandler.New(mgr)
	chatHandler := chathandler.New(mgr)
	eventsHandler := eventshandler.New(hub)
	speechHandler := speechhandler.New(mgr, hub)

	r.Route("/api", func(api chi.Router) {
		sessionHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)

		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
