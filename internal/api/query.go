package api

import (
	"strings"
	"time"

	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/sqlguard"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// QueryHandler handles the ad-hoc SQL query endpoints.
type QueryHandler struct {
	store        database.Store
	maxSQLLength int
	maxRows      int
	stats        *Stats
	logger       zerolog.Logger
}

// QueryRequest represents a SQL query request
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse represents a SQL query response
type QueryResponse struct {
	Success         bool            `json:"success"`
	Columns         []string        `json:"columns"`
	Data            [][]interface{} `json:"data"`
	RowCount        int             `json:"row_count"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
	Timestamp       string          `json:"timestamp"`
	Error           string          `json:"error,omitempty"`
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(store database.Store, maxSQLLength, maxRows int, stats *Stats, logger zerolog.Logger) *QueryHandler {
	return &QueryHandler{
		store:        store,
		maxSQLLength: maxSQLLength,
		maxRows:      maxRows,
		stats:        stats,
		logger:       logger.With().Str("component", "query-handler").Logger(),
	}
}

// RegisterRoutes registers query endpoints
func (h *QueryHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/query", h.executeQuery)
	app.Post("/api/v1/query/arrow", h.executeQueryArrow)
	app.Post("/api/v1/query/msgpack", h.executeQueryMsgPack)
}

// checkSQL screens common request problems. It returns a non-empty message
// when the SQL must be rejected.
func (h *QueryHandler) checkSQL(sql string) string {
	if strings.TrimSpace(sql) == "" {
		return "SQL query is required"
	}
	if len(sql) > h.maxSQLLength {
		return "SQL query exceeds maximum length"
	}
	if err := sqlguard.Validate(sqlguard.Strip(sql)); err != nil {
		return err.Error()
	}
	return ""
}

// runQuery strips and executes a validated query, capping the result size.
func (h *QueryHandler) runQuery(c *fiber.Ctx, sql string) (*models.QueryResult, error) {
	result, err := h.store.Query(c.Context(), sqlguard.Strip(sql))
	if err != nil {
		return nil, err
	}
	if len(result.Rows) > h.maxRows {
		result.Rows = result.Rows[:h.maxRows]
	}
	return result, nil
}

// executeQuery handles POST /api/v1/query - returns JSON response
func (h *QueryHandler) executeQuery(c *fiber.Ctx) error {
	h.stats.QueryRequests.Add(1)
	start := time.Now()

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(QueryResponse{
			Success:   false,
			Error:     "Invalid request body: " + err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	if msg := h.checkSQL(req.SQL); msg != "" {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(QueryResponse{
			Success:   false,
			Error:     msg,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}

	result, err := h.runQuery(c, req.SQL)
	if err != nil {
		h.stats.QueryErrors.Add(1)
		h.logger.Error().Err(err).Str("sql", req.SQL).Msg("Query execution failed")
		return c.Status(fiber.StatusInternalServerError).JSON(QueryResponse{
			Success:         false,
			Error:           "Query execution failed", // Don't expose database error details
			ExecutionTimeMs: float64(time.Since(start).Milliseconds()),
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
		})
	}

	data := rowsToData(result)

	h.logger.Debug().
		Str("sql", req.SQL).
		Int("rows", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("Query completed")

	return c.JSON(QueryResponse{
		Success:         true,
		Columns:         result.Columns,
		Data:            data,
		RowCount:        len(data),
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// rowsToData flattens map rows into arrays ordered by the result columns.
func rowsToData(result *models.QueryResult) [][]interface{} {
	data := make([][]interface{}, len(result.Rows))
	for i, row := range result.Rows {
		values := make([]interface{}, len(result.Columns))
		for j, col := range result.Columns {
			values[j] = row[col]
		}
		data[i] = values
	}
	return data
}
