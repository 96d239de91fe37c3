package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/markdave123-py/cova/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/cova/internal/api/middlewares"
	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/services"
)

// Services are the backends of the HTTP API.
type Services struct {
	Users         *services.UserService
	Conversations *services.ConversationService
	Generations   *services.GenerationService
	Documents     *services.DocumentService
}

// The recorder registers its collectors once per process.
var httpMetrics = sync.OnceValue(func() httpmetrics.Middleware {
	return httpmetrics.New(httpmetrics.Config{
		Recorder: metrics.NewRecorder(metrics.Config{}),
	})
})

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewRouter builds and wires all routes.
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	authHandler := handlers.NewAuthHandler(svc.Users, []byte(cfg.JWTSecret))
	tenantHandler := handlers.NewTenantHandler(svc.Users)
	convHandler := handlers.NewConversationHandler(svc.Conversations)
	genHandler := handlers.NewGenerateHandler(svc.Generations)
	docHandler := handlers.NewDocumentHandler(svc.Documents)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"x-message-id", "x-expanded"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	jwt := appMiddleware.JWTMiddleware([]byte(cfg.JWTSecret))
	measured := std.HandlerProvider("", httpMetrics())

	r.Route("/api", func(api chi.Router) {
		// Generation streams for as long as the model produces text and
		// counts its own outcomes.
		api.With(jwt).Post("/generate", genHandler.Generate)
		api.With(jwt, measured).Post("/documents/upload", docHandler.UploadDocument)

		api.Group(func(bounded chi.Router) {
			bounded.Use(measured)
			bounded.Use(middleware.Timeout(60 * time.Second))

			// public endpoints
			bounded.Post("/signup", authHandler.Signup)
			bounded.Post("/login", authHandler.Login)

			// protected endpoints
			bounded.Group(func(protected chi.Router) {
				protected.Use(jwt)
				protected.Get("/tenant", tenantHandler.GetTenant)
				protected.Post("/conversations", convHandler.Create)
				protected.Get("/conversations/{conversationID}/messages", convHandler.ListMessages)
				protected.Get("/conversations/{conversationID}/messages/{messageID}", convHandler.GetMessage)
				protected.Get("/documents", docHandler.GetDocuments)
			})
		})
	})

	return r
}

func NewServer(cfg *config.Config, svc Services) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
