// Package api exposes the production services over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/service"
	"example.com/premeepro/production/internal/tracing"
)

// Services groups the services the API serves
type Services struct {
	Jobs          *service.JobService
	Templates     *service.TemplateService
	StepData      *service.StepDataService
	Notifications *service.NotificationService
	Changes       *service.ChangeFeedService
}

// Server represents the HTTP server
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	svc Services,
	authn Authenticator,
	m *metrics.Metrics,
	tracer tracing.Tracer,
	checks map[string]HealthCheck,
) *Server {
	server := &Server{config: cfg}
	server.router = server.setupRouter(svc, authn, m, tracer, checks)
	server.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter(svc Services, authn Authenticator, m *metrics.Metrics, tracer tracing.Tracer, checks map[string]HealthCheck) *gin.Engine {
	if s.config.Mode != "" {
		gin.SetMode(s.config.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger())
	router.Use(Metrics(m))
	if tracer != nil {
		if app := tracer.Application(); app != nil {
			router.Use(nrgin.Middleware(app))
		}
	}
	if s.config.CorsEnabled {
		router.Use(CORS(s.config.CorsOrigins))
	}

	ops := NewMetricsHandler(m, checks)
	router.GET("/health", ops.HandleGetHealthCheck)
	if s.config.MetricsEnabled {
		router.GET("/metrics", ops.HandleGetMetrics)
	}

	v1 := router.Group("/api/v1", Authenticate(authn))
	NewTemplateHandler(svc.Templates).RegisterRoutes(v1)
	NewJobHandler(svc.Jobs).RegisterRoutes(v1)
	NewStepDataHandler(svc.StepData).RegisterRoutes(v1)
	NewNotificationHandler(svc.Notifications).RegisterRoutes(v1)
	NewChangeFeedHandler(svc.Changes).RegisterRoutes(v1)

	return router
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
