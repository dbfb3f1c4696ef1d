package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/pymind/backend/internal/handler/chat"
	"github.com/zhouzirui/pymind/backend/internal/handler/persona"
	"github.com/zhouzirui/pymind/backend/internal/handler/stream"
	"github.com/zhouzirui/pymind/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/pymind/backend/internal/middleware"
	personaModel "github.com/zhouzirui/pymind/backend/internal/model/persona"
	chatService "github.com/zhouzirui/pymind/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	personaHandler := persona.New(personas, chatSvc.Persona())
	chatHandler := chat.New(chatSvc)
	streamHandler := stream.New(chatSvc)
	wsHandler := ws.New(chatSvc)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
