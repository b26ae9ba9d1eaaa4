// Package server provides the HTTP API for docidx.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docidx/internal/docmgr"
	"github.com/fyrsmithlabs/docidx/internal/registry"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the customer and document operations over HTTP.
type Server struct {
	echo      *echo.Echo
	manager   *docmgr.Manager
	customers *registry.Customers
	logger    *zap.Logger
	config    *Config
}

// New creates the HTTP server and registers all routes.
func New(manager *docmgr.Manager, customers *registry.Customers, logger *zap.Logger, cfg *Config) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("document manager is required")
	}
	if customers == nil {
		return nil, fmt.Errorf("customer registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(metricsMiddleware())

	s := &Server{
		echo:      e,
		manager:   manager,
		customers: customers,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogger logs one line per completed request.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/customers", s.handleRegisterCustomer)
	v1.GET("/customers", s.handleListCustomers)
	v1.GET("/customers/:id", s.handleGetCustomer)
	v1.PUT("/customers/:id", s.handleUpdateCustomer)
	v1.DELETE("/customers/:id", s.handleDeregisterCustomer)

	v1.POST("/documents", s.handleUploadDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.POST("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
