package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// executeQueryMsgPack handles POST /api/v1/query/msgpack - returns the same
// payload as the JSON endpoint, MessagePack-encoded. Useful for clients that
// want compact transfers without Arrow tooling.
func (h *QueryHandler) executeQueryMsgPack(c *fiber.Ctx) error {
	h.stats.QueryRequests.Add(1)
	start := time.Now()

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
	}

	if msg := h.checkSQL(req.SQL); msg != "" {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   msg,
		})
	}

	result, err := h.runQuery(c, req.SQL)
	if err != nil {
		h.stats.QueryErrors.Add(1)
		h.logger.Error().Err(err).Str("sql", req.SQL).Msg("MsgPack query execution failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Query execution failed",
		})
	}

	data := rowsToData(result)

	encoded, err := msgpack.Marshal(QueryResponse{
		Success:         true,
		Columns:         result.Columns,
		Data:            data,
		RowCount:        len(data),
		ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.stats.QueryErrors.Add(1)
		h.logger.Error().Err(err).Msg("Failed to encode MessagePack response")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to encode response",
		})
	}

	h.logger.Debug().
		Str("sql", req.SQL).
		Int("rows", len(data)).
		Int("bytes", len(encoded)).
		Dur("elapsed", time.Since(start)).
		Msg("MsgPack query completed")

	c.Set("Content-Type", "application/msgpack")
	return c.Send(encoded)
}
