package api

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/facet-labs/facet/internal/auth"
	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/seed"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Stats holds per-handler request counters, shared across the API handlers.
type Stats struct {
	ChatRequests   atomic.Int64
	ChatErrors     atomic.Int64
	QueryRequests  atomic.Int64
	QueryErrors    atomic.Int64
	RenderRequests atomic.Int64
	RenderErrors   atomic.Int64
	ImportRequests atomic.Int64
	ImportErrors   atomic.Int64
	RowsImported   atomic.Int64
}

// StatsHandler serves the aggregated server statistics endpoint.
type StatsHandler struct {
	store     database.Store
	stats     *Stats
	refresher *seed.Refresher
	auth      *auth.Manager
	logger    zerolog.Logger
}

// NewStatsHandler creates a stats handler. refresher and authManager may be
// nil when those subsystems are disabled.
func NewStatsHandler(store database.Store, stats *Stats, refresher *seed.Refresher, authManager *auth.Manager, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		store:     store,
		stats:     stats,
		refresher: refresher,
		auth:      authManager,
		logger:    logger.With().Str("component", "stats-handler").Logger(),
	}
}

// RegisterRoutes registers the stats endpoint
func (h *StatsHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/v1/stats", h.getStats)
}

// getStats handles GET /api/v1/stats
func (h *StatsHandler) getStats(c *fiber.Ctx) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStats := h.store.Stats()

	tableRows := int64(-1)
	if n, err := database.CountRows(c.Context(), h.store); err == nil {
		tableRows = n
	} else {
		h.logger.Warn().Err(err).Msg("Failed to count table rows")
	}

	resp := fiber.Map{
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"uptime_sec": time.Since(startTime).Seconds(),
		"requests": fiber.Map{
			"chat_requests":   h.stats.ChatRequests.Load(),
			"chat_errors":     h.stats.ChatErrors.Load(),
			"query_requests":  h.stats.QueryRequests.Load(),
			"query_errors":    h.stats.QueryErrors.Load(),
			"render_requests": h.stats.RenderRequests.Load(),
			"import_requests": h.stats.ImportRequests.Load(),
			"import_errors":   h.stats.ImportErrors.Load(),
			"rows_imported":   h.stats.RowsImported.Load(),
		},
		"database": fiber.Map{
			"engine":             h.store.Engine(),
			"table_rows":         tableRows,
			"connections_open":   dbStats.OpenConnections,
			"connections_in_use": dbStats.InUse,
			"connections_idle":   dbStats.Idle,
			"wait_count":         dbStats.WaitCount,
		},
		"runtime": fiber.Map{
			"goroutines":   runtime.NumGoroutine(),
			"alloc_bytes":  memStats.Alloc,
			"sys_bytes":    memStats.Sys,
			"heap_objects": memStats.HeapObjects,
			"gc_cycles":    memStats.NumGC,
			"go_version":   runtime.Version(),
		},
	}

	if h.refresher != nil {
		resp["seed_refresher"] = h.refresher.Status()
	}
	if h.auth != nil {
		resp["auth_cache"] = h.auth.CacheStats()
	}

	return c.JSON(resp)
}
