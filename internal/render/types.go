package render

import (
	"sort"

	"github.com/facet-labs/facet/pkg/models"
)

// Top-N display limits for the two rendering contexts.
const (
	InlineTopN     = 10
	FullScreenTopN = 20
)

// UnknownLabel stands in for null or unresolvable dimension values.
const UnknownLabel = "Unknown"

// pivotXKey is the reserved x column of pivoted rows.
const pivotXKey = "x"

// RowSet is the tabular input to the transform: the rows a generated query
// produced, plus the column order the SELECT established (maps lose it).
// Rows are not assumed uniform; any row may miss any key.
type RowSet struct {
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows"`
}

// FromResult adapts an executed query into a RowSet.
func FromResult(res *models.QueryResult) RowSet {
	if res == nil {
		return RowSet{}
	}
	return RowSet{Columns: res.Columns, Rows: res.Rows}
}

// Empty reports whether there are no rows at all.
func (rs RowSet) Empty() bool { return len(rs.Rows) == 0 }

// sample returns the first row, the one resolution inspects.
func (rs RowSet) sample() map[string]any {
	if len(rs.Rows) == 0 {
		return nil
	}
	return rs.Rows[0]
}

// columnList returns the declared column order, falling back to the sorted
// keys of the first row so resolution stays deterministic when the caller
// did not supply ordering.
func (rs RowSet) columnList() []string {
	if len(rs.Columns) > 0 {
		return rs.Columns
	}
	first := rs.sample()
	if len(first) == 0 {
		return nil
	}
	cols := make([]string, 0, len(first))
	for k := range first {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// SeriesKind tells the renderer what shape the series data takes.
type SeriesKind string

const (
	// KindPoints is a single series of (x, y) pairs (flat or folded).
	KindPoints SeriesKind = "points"
	// KindPivot is wide rows: one per x value, one numeric column per group.
	KindPivot SeriesKind = "pivot"
	// KindTable means the caller should render the raw rows as-is.
	KindTable SeriesKind = "table"
	// KindEmpty means no usable points survived; AvailableColumns carries
	// the diagnostic key listing.
	KindEmpty SeriesKind = "empty"
)

// Point is one chartable (x, y) pair. Y is always a finite number; rows
// whose measure fails numeric coercion never become points.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// PivotRow is one wide row of a pivoted series: the reserved "x" key plus
// one float64 per group value present at that x.
type PivotRow map[string]any

// Series is the render-ready output of the Series Builder.
type Series struct {
	Kind        SeriesKind `json:"kind"`
	Points      []Point    `json:"points,omitempty"`
	Rows        []PivotRow `json:"rows,omitempty"`
	SeriesNames []string   `json:"seriesNames,omitempty"`

	// Resolved concrete columns, for debugging and diagnostics.
	XField string `json:"xField,omitempty"`
	YField string `json:"yField,omitempty"`

	// AvailableColumns is set on KindEmpty: the sorted keys actually present
	// in the first row, so the caller can render an actionable message.
	AvailableColumns []string `json:"availableColumns,omitempty"`
}

// RankedItem is one entry of a top-N summary. Value is the displayed value:
// a float64 for aggregated branches, otherwise the raw cell (never mutated,
// even when non-numeric values sort as zero).
type RankedItem struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Output bundles the two independent reductions of one (spec, rows) input.
type Output struct {
	Series Series       `json:"series"`
	Top    []RankedItem `json:"top"`
}
