package api

import (
	"github.com/facet-labs/facet/internal/render"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RenderHandler turns a viz spec plus query rows into chart-ready series.
type RenderHandler struct {
	stats  *Stats
	logger zerolog.Logger
}

// NewRenderHandler creates a new render handler
func NewRenderHandler(stats *Stats, logger zerolog.Logger) *RenderHandler {
	return &RenderHandler{
		stats:  stats,
		logger: logger.With().Str("component", "render-handler").Logger(),
	}
}

// RegisterRoutes registers render endpoints
func (h *RenderHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/render", h.handleRender)
}

// RenderRequest carries a viz spec and the rows to render. View selects the
// top-N budget: "full" for full-screen, anything else for inline.
type RenderRequest struct {
	Viz     *models.VizSpec  `json:"viz"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	View    string           `json:"view"`
}

// handleRender handles POST /api/v1/render
func (h *RenderHandler) handleRender(c *fiber.Ctx) error {
	h.stats.RenderRequests.Add(1)

	var req RenderRequest
	if err := c.BodyParser(&req); err != nil {
		h.stats.RenderErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body: " + err.Error(),
		})
	}

	if req.Viz == nil {
		h.stats.RenderErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "viz spec is required",
		})
	}

	limit := render.InlineTopN
	if req.View == "full" {
		limit = render.FullScreenTopN
	}

	out := render.Transform(*req.Viz, render.RowSet{Columns: req.Columns, Rows: req.Rows}, limit)

	h.logger.Debug().
		Str("type", req.Viz.Type).
		Str("kind", string(out.Series.Kind)).
		Int("rows_in", len(req.Rows)).
		Int("top", len(out.Top)).
		Msg("Render request completed")

	return c.JSON(out)
}
