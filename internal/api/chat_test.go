package api

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/facet-labs/facet/internal/chat"
	"github.com/facet-labs/facet/internal/config"
	"github.com/facet-labs/facet/internal/llm"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// setupChatApp wires a ChatHandler over the real chat pipeline with the mock
// model provider, so requests exercise enhancement, validation, and execution.
func setupChatApp(store *fakeStore, maxRows int) (*fiber.App, *Stats) {
	cfg := &config.Config{}
	cfg.Query.MaxRows = maxRows

	service := chat.NewService(store, llm.NewMock(zerolog.Nop()), cfg, zerolog.Nop())

	stats := &Stats{}
	app := fiber.New()
	NewChatHandler(service, stats, zerolog.Nop()).RegisterRoutes(app)
	return app, stats
}

func TestChatEndpoint(t *testing.T) {
	store := &fakeStore{
		result: &models.QueryResult{
			Columns: []string{"date", "region", "net_sales"},
			Schema: []models.ColumnSchema{
				{Name: "date", Type: "date"},
				{Name: "region", Type: "string"},
				{Name: "net_sales", Type: "float"},
			},
			Rows: []map[string]any{
				{"date": "2025-01-15", "region": "North", "net_sales": 1250.50},
				{"date": "2025-01-16", "region": "South", "net_sales": 980.25},
			},
		},
	}
	app, stats := setupChatApp(store, 1000)

	resp := postJSON(t, app, "/api/v1/chat", `{"message": "show me net sales trends"}`)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var payload models.ChatPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if payload.Answer == "" {
		t.Error("Expected an answer")
	}
	if !strings.Contains(payload.SQL, "FROM retail_sales") {
		t.Errorf("Expected SQL over retail_sales, got %q", payload.SQL)
	}
	if payload.Viz == nil || payload.Viz.Type != "line" {
		t.Errorf("Expected line viz, got %+v", payload.Viz)
	}
	if len(payload.Columns) != 3 {
		t.Errorf("Expected 3 columns, got %v", payload.Columns)
	}
	if len(payload.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(payload.Rows))
	}

	if stats.ChatRequests.Load() != 1 {
		t.Errorf("Expected 1 chat request counted, got %d", stats.ChatRequests.Load())
	}
	if stats.ChatErrors.Load() != 0 {
		t.Errorf("Expected 0 chat errors counted, got %d", stats.ChatErrors.Load())
	}
}

func TestChatEndpointEmptyMessage(t *testing.T) {
	store := &fakeStore{}
	app, stats := setupChatApp(store, 1000)

	resp := postJSON(t, app, "/api/v1/chat", `{"message": "   "}`)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["error"] != "message is required" {
		t.Errorf("Unexpected error message: %q", result["error"])
	}
	if stats.ChatErrors.Load() != 1 {
		t.Errorf("Expected 1 chat error counted, got %d", stats.ChatErrors.Load())
	}
}

func TestChatEndpointInvalidBody(t *testing.T) {
	store := &fakeStore{}
	app, _ := setupChatApp(store, 1000)

	resp := postJSON(t, app, "/api/v1/chat", `{broken`)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

// Database failures surface as a readable answer, not a 5xx: clients render
// the explanation in the conversation.
func TestChatEndpointDatabaseError(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("connection refused")}
	app, stats := setupChatApp(store, 1000)

	resp := postJSON(t, app, "/api/v1/chat", `{"message": "show me net sales trends"}`)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200 on degraded answer, got %d", resp.StatusCode)
	}

	var payload models.ChatPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !strings.HasPrefix(payload.Answer, "Database error:") {
		t.Errorf("Expected database error answer, got %q", payload.Answer)
	}
	if payload.SQL == "" {
		t.Error("Expected the failing SQL to be attached for debugging")
	}
	if len(payload.Rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(payload.Rows))
	}
	if stats.ChatErrors.Load() != 0 {
		t.Errorf("Degraded answers are not handler errors, got %d", stats.ChatErrors.Load())
	}
}

// Asking for categories must not come back grouped by region.
func TestChatEndpointDimensionCorrection(t *testing.T) {
	store := &fakeStore{
		result: &models.QueryResult{
			Columns: []string{"date", "category", "net_sales"},
			Rows:    []map[string]any{{"date": "2025-01-15", "category": "Electronics", "net_sales": 100.0}},
		},
	}
	app, _ := setupChatApp(store, 1000)

	resp := postJSON(t, app, "/api/v1/chat", `{"message": "net sales by category"}`)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var payload models.ChatPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if strings.Contains(payload.SQL, "region") {
		t.Errorf("Expected region swapped out of SQL, got %q", payload.SQL)
	}
	if !strings.Contains(payload.SQL, "category") {
		t.Errorf("Expected category grouping in SQL, got %q", payload.SQL)
	}
	if payload.Viz == nil || len(payload.Viz.GroupBy) == 0 || payload.Viz.GroupBy[0] != "category" {
		t.Errorf("Expected viz grouped by category, got %+v", payload.Viz)
	}
}

func TestChatEndpointRowCap(t *testing.T) {
	rows := make([]map[string]any, 10)
	for i := range rows {
		rows[i] = map[string]any{"net_sales": float64(i)}
	}
	store := &fakeStore{
		result: &models.QueryResult{Columns: []string{"net_sales"}, Rows: rows},
	}
	app, _ := setupChatApp(store, 3)

	resp := postJSON(t, app, "/api/v1/chat", `{"message": "show me net sales trends"}`)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var payload models.ChatPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(payload.Rows) != 3 {
		t.Errorf("Expected rows capped at 3, got %d", len(payload.Rows))
	}
}
