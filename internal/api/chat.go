package api

import (
	"strings"
	"time"

	"github.com/facet-labs/facet/internal/chat"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ChatHandler serves the conversational analytics endpoint.
type ChatHandler struct {
	service *chat.Service
	stats   *Stats
	logger  zerolog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(service *chat.Service, stats *Stats, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		stats:   stats,
		logger:  logger.With().Str("component", "chat-handler").Logger(),
	}
}

// RegisterRoutes registers chat endpoints
func (h *ChatHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/chat", h.handleChat)
}

// handleChat handles POST /api/v1/chat. Model and database failures come
// back as a 200 with the problem explained in the answer text; only a bad
// request envelope is an error status.
func (h *ChatHandler) handleChat(c *fiber.Ctx) error {
	h.stats.ChatRequests.Add(1)
	start := time.Now()

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		h.stats.ChatErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: " + err.Error(),
		})
	}

	if strings.TrimSpace(req.Message) == "" {
		h.stats.ChatErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	payload := h.service.Ask(c.Context(), req)

	h.logger.Debug().
		Str("message", req.Message).
		Bool("has_sql", payload.SQL != "").
		Int("rows", len(payload.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("Chat request completed")

	return c.JSON(payload)
}
