package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rpupo63/portfolio-api/config"
	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/services"
	"github.com/rs/zerolog/log"
)

// Services carries the collaborators the HTTP layer needs beyond the database.
type Services struct {
	Contact        contactSubmitter
	Files          services.FileStore
	UploadMaxBytes int64
	AdminToken     string
}

type Server struct {
	*http.Server
	startupTime time.Time
}

func NewServer(db database.Database, c map[string]string, svc Services) (Server, error) {
	if svc.AdminToken == "" {
		return Server{}, errors.New("admin token is empty")
	}
	if svc.Contact == nil || svc.Files == nil {
		return Server{}, errors.New("contact service and file store are required")
	}

	port := config.GetString(c, "PORT", "8000")
	address := fmt.Sprintf("0.0.0.0:%s", port) // Bind to 0.0.0.0 for external access

	startupTime := time.Now()

	router := newRouter(db, svc, withConfig(c), withStartupTime(startupTime))

	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.GetSeconds(c, "READ_TIMEOUT_SECONDS", 180*time.Second),
		WriteTimeout:      config.GetSeconds(c, "WRITE_TIMEOUT_SECONDS", 180*time.Second),
		IdleTimeout:       config.GetSeconds(c, "IDLE_TIMEOUT_SECONDS", 180*time.Second),
	}

	return Server{server, startupTime}, nil
}

type router struct {
	config      map[string]string
	startupTime time.Time
}

func withConfig(c map[string]string) func(*router) {
	return func(r *router) {
		r.config = c
	}
}

func withStartupTime(startupTime time.Time) func(*router) {
	return func(r *router) {
		r.startupTime = startupTime
	}
}

func newRouter(db database.Database, svc Services, opts ...func(*router)) *chi.Mux {
	router := router{startupTime: time.Now()}
	for _, opt := range opts {
		opt(&router)
	}

	chiRouter := chi.NewRouter()
	chiRouter.Use(LogInternalServerErrors)
	if config.GetBool(router.config, "TRUST_PROXY_HEADERS", false) {
		chiRouter.Use(middleware.RealIP)
	}

	acceptedOrigins := config.GetList(router.config, "ACCEPTED_ORIGINS", []string{"*"})
	chiRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   acceptedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	chiRouter.Use(HTTPLoggingMiddleware)

	handlers := initializeHandlers(db, svc, router.startupTime)
	authMiddleware := newAuthMiddleware(svc.AdminToken, config.GetString(router.config, "ADMIN_IDENTITY", database.DefaultActor))

	var uploadDir string
	if local, ok := svc.Files.(*services.LocalFileStore); ok {
		uploadDir = local.Dir()
	}
	setupRoutes(chiRouter, handlers, authMiddleware, uploadDir)

	return chiRouter
}

func (s Server) Start(errChannel chan<- error) {
	log.Info().Msgf("Server started on: %s", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errChannel <- err
	}
}

func (s Server) ShutdownGracefully(timeout time.Duration) {
	log.Info().Msg("Gracefully shutting down...")

	gracefullCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(gracefullCtx); err != nil {
		log.Error().Msgf("Error shutting down the server: %v", err)
	} else {
		log.Info().Msg("HttpServer gracefully shut down")
	}
}
