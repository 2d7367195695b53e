package api

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/facet-labs/facet/internal/render"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

func setupRenderApp() (*fiber.App, *Stats) {
	stats := &Stats{}
	app := fiber.New()
	NewRenderHandler(stats, zerolog.Nop()).RegisterRoutes(app)
	return app, stats
}

// renderBody builds a request with n category rows, net_sales descending
// from 100.
func renderBody(t *testing.T, n int, view string) string {
	t.Helper()
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"category":  fmt.Sprintf("Category %02d", i),
			"net_sales": float64(100 - i),
		}
	}
	body, err := json.Marshal(RenderRequest{
		Viz: &models.VizSpec{
			Type:        "bar",
			X:           "category",
			Y:           []string{"net_sales"},
			Aggregation: "sum",
		},
		Columns: []string{"category", "net_sales"},
		Rows:    rows,
		View:    view,
	})
	if err != nil {
		t.Fatalf("Failed to build request body: %v", err)
	}
	return string(body)
}

func TestRenderEndpoint(t *testing.T) {
	app, stats := setupRenderApp()

	resp := postJSON(t, app, "/api/v1/render", renderBody(t, 12, ""))

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var out render.Output
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if out.Series.Kind != render.KindPoints {
		t.Errorf("Expected points series, got %q", out.Series.Kind)
	}
	if len(out.Series.Points) != 12 {
		t.Errorf("Expected 12 points, got %d", len(out.Series.Points))
	}
	if out.Series.XField != "category" || out.Series.YField != "net_sales" {
		t.Errorf("Unexpected resolved fields: %q/%q", out.Series.XField, out.Series.YField)
	}

	// Inline view keeps the shorter top-N budget.
	if len(out.Top) != render.InlineTopN {
		t.Fatalf("Expected %d top items, got %d", render.InlineTopN, len(out.Top))
	}
	if out.Top[0].Label != "Category 00" {
		t.Errorf("Expected highest category first, got %q", out.Top[0].Label)
	}

	if stats.RenderRequests.Load() != 1 {
		t.Errorf("Expected 1 render request counted, got %d", stats.RenderRequests.Load())
	}
}

func TestRenderEndpointFullView(t *testing.T) {
	app, _ := setupRenderApp()

	resp := postJSON(t, app, "/api/v1/render", renderBody(t, 12, "full"))

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var out render.Output
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// Full-screen view admits all 12, inline would have cut at 10.
	if len(out.Top) != 12 {
		t.Errorf("Expected 12 top items in full view, got %d", len(out.Top))
	}
}

func TestRenderEndpointMissingViz(t *testing.T) {
	app, _ := setupRenderApp()

	resp := postJSON(t, app, "/api/v1/render", `{"columns": ["a"], "rows": []}`)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["error"] != "viz spec is required" {
		t.Errorf("Unexpected error: %q", result["error"])
	}
}

func TestRenderEndpointInvalidBody(t *testing.T) {
	app, _ := setupRenderApp()

	resp := postJSON(t, app, "/api/v1/render", `not json at all`)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}
