package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tutor360/tutorvoice/internal/config"
	"github.com/tutor360/tutorvoice/internal/storage/sqlite"
	"github.com/tutor360/tutorvoice/internal/voicechat"
	"github.com/tutor360/tutorvoice/internal/websocket"
	"github.com/tutor360/tutorvoice/pkg/logger"
)

// Router wires the HTTP API.
type Router struct {
	handler *Handler
	cfg     *config.Config
	logger  *logger.Logger
}

// NewRouter creates the API router.
func NewRouter(
	chatService *voicechat.Service,
	turnStorage *sqlite.TurnStorage,
	wsServer *websocket.Server,
	cfg *config.Config,
	log *logger.Logger,
) *Router {
	return &Router{
		handler: NewHandler(chatService, turnStorage, wsServer, log),
		cfg:     cfg,
		logger:  log.Named("api"),
	}
}

// Routes builds the route tree.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", rt.handler.GetHealth)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", rt.handler.ListSessions)
			r.Post("/", rt.handler.CreateSession)
			r.Get("/{sessionId}", rt.handler.GetSession)
			r.Delete("/{sessionId}", rt.handler.EndSession)
			r.Post("/{sessionId}/messages", rt.handler.SendMessage)
			r.Get("/{sessionId}/transcript", rt.handler.GetTranscript)
			r.Get("/{sessionId}/history", rt.handler.GetHistory)
		})

		r.Get("/usage", rt.handler.GetUsage)
		r.Get("/ws", rt.handler.HandleWebSocket)
	})

	return r
}

// corsMiddleware applies the configured allowed origins.
func (rt *Router) corsMiddleware(next http.Handler) http.Handler {
	allowed := rt.cfg.Server.CORSAllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, o := range allowed {
				if o == "*" || o == origin {
					w.Header().Set("Access-Control-Allow-Origin", o)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					break
				}
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
