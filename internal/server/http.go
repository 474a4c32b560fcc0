package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"barback/internal/auditlog"
)

// DefaultBodySizeLimit caps admin request bodies at 10MB.
const DefaultBodySizeLimit int64 = 10 * 1024 * 1024

// Config holds server configuration options.
type Config struct {
	// MasterKey protects the admin API. When empty, admin routes are open
	// (unsafe mode; the app logs a warning at startup).
	MasterKey string

	// MetricsEnabled exposes the Prometheus metrics endpoint.
	MetricsEnabled bool

	// MetricsEndpoint is the metrics path (default: /metrics).
	MetricsEndpoint string

	// BodySizeLimit caps request body size in bytes (default: 10MB).
	BodySizeLimit int64
}

// Server wraps the Echo server.
type Server struct {
	echo *echo.Echo
}

// New builds the HTTP server: public catalog reads, health and metrics, and
// the admin API behind master key authentication.
func New(cat Catalog, audit auditlog.Recorder, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(cat)
	admin := NewAdminHandler(cat, audit)

	// Global middleware stack (order matters).
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger())
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg != nil && cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	// Public routes.
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			// Normalize to prevent traversal.
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api/v1")
	api.GET("/cocktails", handler.GetCocktails)
	api.GET("/ingredients", handler.GetIngredients)
	api.GET("/glass-types", handler.GetGlassTypes)
	api.GET("/categories", handler.GetCategories)

	// Admin routes: authenticated, with request body decompression for
	// clients that compress their catalog uploads.
	var masterKey string
	if cfg != nil {
		masterKey = cfg.MasterKey
	}
	adminGroup := e.Group("/admin/api/v1", AuthMiddleware(masterKey), DecompressRequest())
	adminGroup.PUT("/:collection", admin.SaveCollection)
	adminGroup.POST("/cache/refresh", admin.RefreshCache)
	adminGroup.DELETE("/cache", admin.ClearCache)
	adminGroup.GET("/cache/stats", admin.CacheStats)
	adminGroup.GET("/audit", admin.ListAudit)

	return &Server{echo: e}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server can be driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// requestLogger logs one line per request through slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				slog.Warn("request", attrs...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	})
}
