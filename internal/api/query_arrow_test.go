package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/facet-labs/facet/pkg/models"
	"github.com/gofiber/fiber/v2"
)

func TestQueryArrowEndpoint(t *testing.T) {
	store := &fakeStore{
		result: &models.QueryResult{
			Columns: []string{"region", "units", "net_sales", "flagged"},
			Schema: []models.ColumnSchema{
				{Name: "region", Type: "string"},
				{Name: "units", Type: "integer"},
				{Name: "net_sales", Type: "float"},
				{Name: "flagged", Type: "bool"},
			},
			Rows: []map[string]any{
				{"region": "North", "units": int64(12), "net_sales": 340.75, "flagged": false},
				{"region": "South", "units": int64(7), "net_sales": 120.5, "flagged": true},
				{"region": nil, "units": nil, "net_sales": nil, "flagged": nil},
			},
		},
	}
	app, _ := setupQueryApp(store, 10000, 5000)

	resp := postJSON(t, app, "/api/v1/query/arrow",
		`{"sql": "SELECT region, units, net_sales, flagged FROM retail_sales"}`)

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.apache.arrow.stream" {
		t.Fatalf("Unexpected content type %q", ct)
	}

	reader, err := ipc.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("Failed to open Arrow stream: %v", err)
	}
	defer reader.Release()

	schema := reader.Schema()
	if len(schema.Fields()) != 4 {
		t.Fatalf("Expected 4 fields, got %d", len(schema.Fields()))
	}
	if schema.Field(0).Name != "region" || schema.Field(3).Name != "flagged" {
		t.Errorf("Unexpected field order: %v", schema.Fields())
	}

	rows := 0
	for reader.Next() {
		rec := reader.Record()
		rows += int(rec.NumRows())

		regions := rec.Column(0).(*array.String)
		units := rec.Column(1).(*array.Int64)
		sales := rec.Column(2).(*array.Float64)
		flagged := rec.Column(3).(*array.Boolean)

		if regions.Value(0) != "North" {
			t.Errorf("Expected region 'North', got %q", regions.Value(0))
		}
		if units.Value(0) != 12 {
			t.Errorf("Expected units 12, got %d", units.Value(0))
		}
		if sales.Value(1) != 120.5 {
			t.Errorf("Expected net_sales 120.5, got %f", sales.Value(1))
		}
		if !flagged.Value(1) {
			t.Error("Expected flagged=true in second row")
		}
		if !regions.IsNull(2) || !units.IsNull(2) {
			t.Error("Expected null cells in third row")
		}
	}
	if err := reader.Err(); err != nil {
		t.Fatalf("Arrow stream error: %v", err)
	}
	if rows != 3 {
		t.Errorf("Expected 3 rows, got %d", rows)
	}
}

func TestQueryArrowEndpointRejectsSQL(t *testing.T) {
	store := &fakeStore{}
	app, _ := setupQueryApp(store, 10000, 5000)

	resp := postJSON(t, app, "/api/v1/query/arrow", `{"sql": "DROP TABLE retail_sales"}`)

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["success"] != false {
		t.Error("Expected success=false")
	}
	if len(store.queries) != 0 {
		t.Errorf("Expected no store queries, got %v", store.queries)
	}
}

func TestQueryArrowEndpointDatabaseError(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("io error")}
	app, _ := setupQueryApp(store, 10000, 5000)

	resp := postJSON(t, app, "/api/v1/query/arrow", `{"sql": "SELECT * FROM retail_sales"}`)

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["error"] != "Query execution failed" {
		t.Errorf("Expected generic error message, got %v", result["error"])
	}
}

func TestAppendValueToBuilderConversions(t *testing.T) {
	// Int64 builder accepts every integer width the drivers produce.
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()

	ib := b.Field(0).(*array.Int64Builder)
	appendValueToBuilder(ib, int64(1))
	appendValueToBuilder(ib, int32(2))
	appendValueToBuilder(ib, 3)
	appendValueToBuilder(ib, uint64(4))
	appendValueToBuilder(ib, float64(5))
	appendValueToBuilder(ib, "not a number")
	appendValueToBuilder(ib, nil)

	rec := b.NewRecord()
	defer rec.Release()

	col := rec.Column(0).(*array.Int64)
	want := []int64{1, 2, 3, 4, 5}
	for i, w := range want {
		if col.Value(i) != w {
			t.Errorf("Value(%d) = %d, want %d", i, col.Value(i), w)
		}
	}
	if !col.IsNull(5) || !col.IsNull(6) {
		t.Error("Expected unconvertible and nil values to be null")
	}
}
