// Package http provides the HTTP server, its router and shared middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/payouts/internal/database"
	"github.com/allisson/payouts/internal/metrics"
	releaseHTTP "github.com/allisson/payouts/internal/release/http"
	webhookHTTP "github.com/allisson/payouts/internal/webhook/http"
)

// RouterConfig holds the optional middleware settings of the API router.
type RouterConfig struct {
	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	CORSEnabled             bool
	CORSAllowOrigins        string
	MetricsProvider         *metrics.Provider
	MetricsNamespace        string
}

// Server is the public API server.
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new API server. The router is built by SetupRouter.
func NewServer(db *sql.DB, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers the middleware chain and every route.
func (s *Server) SetupRouter(
	cfg RouterConfig,
	releaseHandler *releaseHTTP.ReleaseHandler,
	webhookHandler *webhookHTTP.WebhookHandler,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cors := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); cors != nil {
		router.Use(cors)
	}

	if cfg.MetricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(cfg.MetricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	releases := router.Group("/completion-release")
	{
		if releaseHandler != nil {
			create := []gin.HandlerFunc{}
			if cfg.RateLimitEnabled {
				create = append(create, RateLimitMiddleware(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
			}
			create = append(create, releaseHandler.ReleaseHandler)

			releases.POST("", create...)
			releases.GET("/:bountyId/status", releaseHandler.StatusHandler)
		}
		if webhookHandler != nil {
			releases.POST("/webhook", webhookHandler.IngestHandler)
		}
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves requests until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.SetupRouter(RouterConfig{}, nil, nil)
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready only when the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	db, status, code := "ok", "ready", http.StatusOK
	if err := database.Ping(c.Request.Context(), s.db, 2*time.Second); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		db, status, code = "error", "not_ready", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": gin.H{"database": db},
	})
}
