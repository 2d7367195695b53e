package render

import (
	"reflect"
	"testing"

	"github.com/facet-labs/facet/pkg/models"
)

func lineSpec() models.VizSpec {
	return models.VizSpec{
		Type:        models.ChartLine,
		X:           "date",
		Y:           []string{"net_sales"},
		GroupBy:     []string{"region"},
		Aggregation: "sum",
	}
}

func salesRows() RowSet {
	return testRows(
		[]string{"month", "region", "total_net_sales"},
		map[string]any{"month": "2024-02", "region": "North", "total_net_sales": 5.0},
		map[string]any{"month": "2024-01", "region": "North", "total_net_sales": 10.0},
		map[string]any{"month": "2024-01", "region": "South", "total_net_sales": 20.0},
	)
}

func TestTransformEndToEnd(t *testing.T) {
	got := Transform(lineSpec(), salesRows(), InlineTopN)

	// The aliased measure resolves via fuzzy matching, the month column via
	// the temporal candidate list.
	if got.Series.Kind != KindPivot {
		t.Fatalf("series kind = %q, want %q", got.Series.Kind, KindPivot)
	}
	if got.Series.XField != "month" || got.Series.YField != "total_net_sales" {
		t.Errorf("resolved fields = %q/%q, want month/total_net_sales", got.Series.XField, got.Series.YField)
	}
	wantRows := []PivotRow{
		{"x": "2024-01", "North": 10.0, "South": 20.0},
		{"x": "2024-02", "North": 5.0},
	}
	if !reflect.DeepEqual(got.Series.Rows, wantRows) {
		t.Errorf("series rows = %+v, want %+v", got.Series.Rows, wantRows)
	}
	wantTop := []RankedItem{
		{Label: "South", Value: 20.0},
		{Label: "North", Value: 15.0},
	}
	if !reflect.DeepEqual(got.Top, wantTop) {
		t.Errorf("top = %+v, want %+v", got.Top, wantTop)
	}
}

func TestTransformIdempotent(t *testing.T) {
	spec := lineSpec()
	rs := salesRows()

	first := Transform(spec, rs, FullScreenTopN)
	second := Transform(spec, rs, FullScreenTopN)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("transform not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestTransformDoesNotMutateInputs(t *testing.T) {
	spec := models.VizSpec{Type: "pie", X: "date", Y: []string{"net_sales", ""}, GroupBy: []string{"region"}}
	rs := salesRows()
	rowsBefore := len(rs.Rows[0])

	Transform(spec, rs, InlineTopN)

	if spec.Type != "pie" || len(spec.Y) != 2 {
		t.Errorf("spec mutated: %+v", spec)
	}
	if len(rs.Rows[0]) != rowsBefore {
		t.Errorf("rows mutated: %+v", rs.Rows[0])
	}
}

func TestTransformTableSkipsSeries(t *testing.T) {
	spec := models.VizSpec{Type: models.ChartTable, Y: []string{"net_sales"}}
	got := Transform(spec, salesRows(), InlineTopN)

	if got.Series.Kind != KindTable {
		t.Fatalf("series kind = %q, want %q", got.Series.Kind, KindTable)
	}
	if got.Series.Points != nil || got.Series.Rows != nil {
		t.Errorf("table series should carry no data, got %+v", got.Series)
	}
	if len(got.Top) == 0 {
		t.Error("ranking should still be computed for tables")
	}
}

func TestTransformUnknownTypeBecomesTable(t *testing.T) {
	spec := models.VizSpec{Type: "scatter", Y: []string{"net_sales"}}
	got := Transform(spec, salesRows(), InlineTopN)
	if got.Series.Kind != KindTable {
		t.Errorf("series kind = %q, want %q", got.Series.Kind, KindTable)
	}
}

func TestCustomResolver(t *testing.T) {
	eng := New(WithResolver(staticResolver{"month", "total_net_sales"}))
	got := eng.Transform(lineSpec(), salesRows(), InlineTopN)
	if got.Series.Kind != KindPivot {
		t.Fatalf("series kind = %q, want %q", got.Series.Kind, KindPivot)
	}
	if got.Series.XField != "month" {
		t.Errorf("x field = %q, want month", got.Series.XField)
	}
}

// staticResolver maps every x hint to one column and every other hint to
// another, standing in for an explicit schema contract.
type staticResolver struct {
	x, other string
}

func (s staticResolver) ResolveX(string, RowSet) (string, bool) { return s.x, true }
func (s staticResolver) Resolve(hint string, rs RowSet) (string, bool) {
	if hint == "" {
		return "", false
	}
	if hint == "region" {
		return "region", true
	}
	return s.other, true
}
