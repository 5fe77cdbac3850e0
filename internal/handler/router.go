package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/rasa-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/rasa-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/rasa-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/rasa-chat/backend/internal/middleware"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
	"github.com/zhouzirui/rasa-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session registry.
func NewRouter(sessions *session.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": sessions.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		chat.New(sessions).RegisterRoutes(api)
		stream.New(sessions).RegisterRoutes(api)
		ws.New(sessions).RegisterRoutes(api)
	})

	return r
}
