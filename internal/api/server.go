// Package api exposes the trainer services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/metrics"
	"github.com/clinical-case-trainer/internal/middleware"
	"github.com/clinical-case-trainer/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthCheck reports the health of one dependency
type HealthCheck func(ctx context.Context) error

// Dependencies are the services and collaborators the server routes to
type Dependencies struct {
	Reasoning    *service.ReasoningService
	Learning     *service.LearningService
	Cases        *service.CaseService
	Metrics      *metrics.Manager
	Logger       *logrus.Logger
	HealthChecks map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	limiter       *middleware.RateLimiter
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) *Server {
	cfg := configManager.GetConfig()
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		deps:          deps,
		router:        router,
	}

	if cfg.RateLimit.Enabled {
		server.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	server.setupRoutes()

	return server
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if s.limiter != nil {
		go s.limiter.Run(ctx, time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.deps.Logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	cfg := s.configManager.GetConfig()

	s.router.GET("/health", s.handleHealth)
	if cfg.Metrics.Enabled && s.deps.Metrics != nil {
		s.router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(s.limiter.Middleware())
	}
	{
		v1.GET("/cases", s.handleListCases)
		v1.GET("/cases/:caseId", s.handleGetCase)
		v1.GET("/departments", s.handleListDepartments)

		v1.POST("/attempts", s.handleStartAttempt)
		v1.POST("/attempts/:attemptId/quiz", s.handleSubmitQuiz)

		v1.PUT("/attempts/:attemptId/reasoning", s.handleSaveReasoning)
		v1.GET("/attempts/:attemptId/reasoning", s.handleGetReasoning)
		v1.POST("/attempts/:attemptId/reasoning/score", s.handleComputeScore)

		v1.PUT("/reflections", s.handleSaveReflection)

		v1.GET("/students/:studentId/progress", s.handleStudentProgress)
		v1.GET("/students/:studentId/dashboard", s.handleDashboard)
	}
}

// handleHealth runs every registered check
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(gin.H, len(s.deps.HealthChecks))

	for name, check := range s.deps.HealthChecks {
		if err := check(c.Request.Context()); err != nil {
			s.deps.Logger.WithField("check", name).WithError(err).Warn("Health check failed")
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}
