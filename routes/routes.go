package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/edudati/openheal-research/handlers"
	"github.com/edudati/openheal-research/middleware"
	"github.com/edudati/openheal-research/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

type Options struct {
	JWTSecret      string
	IngestAPIKey   string
	AllowedOrigins []string
	Logger         *slog.Logger
}

func SetupRoutes(
	router chi.Router,
	opts Options,
	authHandler *handlers.AuthHandler,
	studyHandler *handlers.StudyHandler,
	participantHandler *handlers.ParticipantHandler,
	matchHandler *handlers.MatchHandler,
	ingestHandler *handlers.IngestHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	authenticate := middleware.Authenticate(opts.JWTSecret, opts.Logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.With(chiMiddleware.Timeout(30*time.Second)).Post("/auth/login", authHandler.Login)

		r.With(middleware.RequireAPIKey(opts.IngestAPIKey)).Post("/roblox/ingest/", ingestHandler.Ingest)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)

			// websocket-соединение живёт дольше любого таймаута запроса
			r.Get("/ws/studies/{studyID}", webSocketHandler.ServeWs)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(60 * time.Second))

				r.Route("/studies", func(r chi.Router) {
					r.Get("/", studyHandler.List)
					r.With(middleware.Authorize(models.RoleSuperuser)).Post("/", studyHandler.Create)
					r.Get("/{studyID}", studyHandler.Get)
				})

				r.Route("/participants", func(r chi.Router) {
					r.Get("/", participantHandler.List)
					r.Post("/", participantHandler.Create)
					r.Get("/{participantID}", participantHandler.Get)
					r.Delete("/{participantID}", participantHandler.Delete)
				})

				r.Route("/matches", func(r chi.Router) {
					r.Get("/", matchHandler.List)
					r.Get("/{matchID}", matchHandler.Get)
					r.Patch("/{matchID}", matchHandler.Update)
				})
			})
		})
	})
}
