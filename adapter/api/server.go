// Package api exposes recurrence rules, tasks and the notification inbox over
// HTTP, together with the websocket push endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/app"
	notificationWS "github.com/felixgeelhaar/tracklane/internal/notifications/infrastructure/websocket"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	server *http.Server
	logger *slog.Logger

	container     *app.Container
	rules         *RulesHandler
	notifications *NotificationsHandler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	UserHeader     string
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "0.0.0.0:8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		AllowedOrigins: []string{"*"},
		UserHeader:     notificationWS.DefaultUserHeader,
	}
}

// NewServer creates a server backed by the container's handlers.
func NewServer(cfg ServerConfig, c *app.Container) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.UserHeader == "" {
		cfg.UserHeader = notificationWS.DefaultUserHeader
	}

	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger,
		container:     c,
		rules:         NewRulesHandler(c, logger),
		notifications: NewNotificationsHandler(c, logger),
	}
	s.registerRoutes(cfg)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(cfg ServerConfig) {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", cfg.UserHeader, correlationHeader},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(requestContext(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	auth := notificationWS.HeaderAuthenticator{Header: cfg.UserHeader}
	r.Method(http.MethodGet, "/ws", notificationWS.NewHandler(
		s.container.Hub,
		auth,
		s.container.Backlog(),
		notificationWS.HandlerConfig{
			ConnectRate:  s.container.Config.WSConnectRate,
			ConnectBurst: s.container.Config.WSConnectBurst,
			CheckOrigin:  originChecker(cfg.AllowedOrigins),
		},
		s.logger,
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticate(auth))

		r.Get("/rules", s.rules.List)
		r.Post("/rules", s.rules.Create)
		r.Get("/rules/{ruleID}", s.rules.Get)
		r.Put("/rules/{ruleID}", s.rules.Update)
		r.Delete("/rules/{ruleID}", s.rules.Delete)
		r.Post("/rules/{ruleID}/pause", s.rules.Pause)
		r.Post("/rules/{ruleID}/resume", s.rules.Resume)

		r.Get("/tasks", s.rules.ListTasks)

		r.Get("/notifications", s.notifications.List)
		r.Post("/notifications", s.notifications.Create)
		r.Get("/notifications/unread-count", s.notifications.UnreadCount)
		r.Post("/notifications/read-all", s.notifications.MarkAllRead)
		r.Post("/notifications/{notificationID}/read", s.notifications.MarkRead)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports liveness plus the sweep and presence state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"sweep":    s.container.SweepRunner.Stats(),
		"outbox":   s.container.OutboxProcessor.GetStats(),
		"presence": s.container.Presence.Stats(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := s.container.Health.Check(ctx)
	status := http.StatusOK
	if health.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	s.container.Hub.Close()
	return s.server.Shutdown(ctx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
