package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server represents the HTTP API server
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	cfg    config.ServerConfig
}

// NewServer creates a new HTTP server with Fiber
func NewServer(cfg config.ServerConfig, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Facet Analytics Server",
		ReadTimeout:           time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             int(cfg.MaxPayloadSize),
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
	})

	// Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://127.0.0.1:3000",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,x-api-key,Content-Encoding",
	}))

	// Security headers middleware
	app.Use(securityHeaders())

	// pprof profiling endpoints
	app.Use(pprof.New())

	// Request logging middleware
	app.Use(requestLogger(logger))

	return &Server{
		app:    app,
		logger: logger.With().Str("component", "api-server").Logger(),
		cfg:    cfg,
	}
}

// RegisterRoutes registers the built-in server routes
func (s *Server) RegisterRoutes() {
	// Health check
	s.app.Get("/healthz", s.healthHandler)

	// Readiness check (for Kubernetes)
	s.app.Get("/ready", s.readyHandler)

	// Application logs endpoint
	s.app.Get("/api/v1/logs", s.logsHandler)
}

// healthHandler returns server health status
func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// readyHandler returns server readiness status (for Kubernetes readiness probes)
func (s *Server) readyHandler(c *fiber.Ctx) error {
	uptime := time.Since(startTime).Seconds()

	return c.JSON(fiber.Map{
		"status":     "ready",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime_sec": uptime,
	})
}

var startTime = time.Now()

// Start starts the HTTP server. It blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if s.cfg.TLSEnabled {
		s.logger.Info().
			Str("addr", addr).
			Str("cert", s.cfg.TLSCertFile).
			Msg("Starting Facet HTTPS server")
		return s.app.ListenTLS(addr, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	s.logger.Info().
		Str("addr", addr).
		Msg("Starting Facet HTTP server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// GetApp returns the underlying Fiber app (for registering custom routes)
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// boundedQueryInt parses an integer query parameter, falling back to def
// when missing, non-numeric, or outside (0, max].
func boundedQueryInt(c *fiber.Ctx, key string, def, max int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 || parsed > max {
		return def
	}
	return parsed
}

// logsHandler returns recent application logs
func (s *Server) logsHandler(c *fiber.Ctx) error {
	limit := boundedQueryInt(c, "limit", 100, 1000)
	sinceMinutes := boundedQueryInt(c, "since_minutes", 60, 1440)
	level := c.Query("level") // e.g., "error", "warn", "info", "debug"

	entries := logger.GetBuffer().Recent(limit, level, time.Duration(sinceMinutes)*time.Minute)

	return c.JSON(fiber.Map{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"count":         len(entries),
		"limit":         limit,
		"level_filter":  level,
		"since_minutes": sinceMinutes,
		"logs":          entries,
	})
}

// customErrorHandler handles Fiber errors
func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		evt := logger.Error().
			Err(err).
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path())
		if id, ok := c.Locals("request_id").(string); ok {
			evt = evt.Str("request_id", id)
		}
		evt.Msg("Request error")

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// securityHeaders adds security headers to all responses. This is an
// API-only service, so framing and resource loading are denied outright.
func securityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		return c.Next()
	}
}

// requestLogger assigns each request an ID and logs failures
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("X-Request-ID", requestID)
		c.Locals("request_id", requestID)

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		// Only log errors to keep the hot path quiet
		if status >= 400 {
			logEvent := logger.Warn()
			if status >= 500 {
				logEvent = logger.Error()
			}

			logEvent.
				Str("request_id", requestID).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Dur("duration_ms", duration).
				Int("size", len(c.Response().Body())).
				Str("ip", c.IP()).
				Msg("HTTP request error")
		}

		return err
	}
}
