package render

import (
	"fmt"
	"sort"

	"github.com/facet-labs/facet/pkg/models"
)

// TopItems reduces the rows into a bounded descending-ranked list. Its
// aggregation diverges from the Series Builder when the spec mixes a time
// axis with a grouping dimension: the chart answers "how does each group
// trend over time", the ranking answers "which group wins overall", so here
// the measure is summed per group across the whole range. Ties are stable:
// equal values keep their input order.
func (e *Engine) TopItems(spec models.VizSpec, rs RowSet, limit int) []RankedItem {
	spec.Normalize()
	if limit <= 0 {
		limit = InlineTopN
	}
	if rs.Empty() {
		return nil
	}

	xCol, _ := e.resolver.ResolveX(spec.X, rs)
	yCol, _ := e.resolver.Resolve(spec.FirstY(), rs)

	if spec.X != "" && isTemporalX(spec.X, xCol) && len(spec.GroupBy) > 0 {
		return e.topGrouped(spec, rs, xCol, yCol, limit)
	}
	return topPerRow(rs, xCol, yCol, limit)
}

// topGrouped sums the measure per value of the first groupBy dimension,
// ignoring both the time axis and any further dimensions.
func (e *Engine) topGrouped(spec models.VizSpec, rs RowSet, xCol, yCol string, limit int) []RankedItem {
	dimCol, ok := e.resolver.Resolve(spec.GroupBy[0], rs)
	if !ok {
		// Can't group; list the leading rows as they came.
		return rawRows(rs, xCol, yCol, limit)
	}

	sums := make(map[string]float64)
	order := make([]string, 0, 8)
	for _, row := range rs.Rows {
		name := stringify(row[dimCol])
		if _, exists := sums[name]; !exists {
			order = append(order, name)
		}
		sums[name] += coerceOrZero(row[yCol])
	}

	items := make([]RankedItem, 0, len(order))
	for _, name := range order {
		items = append(items, RankedItem{Label: name, Value: sums[name]})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Value.(float64) > items[j].Value.(float64)
	})
	return truncate(items, limit)
}

// topPerRow ranks rows individually. The displayed value is the raw cell;
// non-numeric values order as zero but are shown untouched.
func topPerRow(rs RowSet, xCol, yCol string, limit int) []RankedItem {
	type entry struct {
		item RankedItem
		key  float64
	}
	entries := make([]entry, 0, len(rs.Rows))
	for i, row := range rs.Rows {
		item := RankedItem{Label: rowLabel(row, xCol, i), Value: rowValue(row, yCol)}
		entries = append(entries, entry{item: item, key: coerceOrZero(item.Value)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key > entries[j].key
	})
	items := make([]RankedItem, 0, len(entries))
	for _, en := range entries {
		items = append(items, en.item)
	}
	return truncate(items, limit)
}

// rawRows lists the first rows in original order, unranked.
func rawRows(rs RowSet, xCol, yCol string, limit int) []RankedItem {
	n := len(rs.Rows)
	if n > limit {
		n = limit
	}
	items := make([]RankedItem, 0, n)
	for i := 0; i < n; i++ {
		row := rs.Rows[i]
		items = append(items, RankedItem{Label: rowLabel(row, xCol, i), Value: rowValue(row, yCol)})
	}
	return items
}

func rowLabel(row map[string]any, xCol string, i int) string {
	if xCol == "" {
		return fmt.Sprintf("Row %d", i+1)
	}
	return stringify(row[xCol])
}

func rowValue(row map[string]any, yCol string) any {
	if yCol != "" {
		if raw, exists := row[yCol]; exists && raw != nil {
			return raw
		}
	}
	return float64(0)
}

func truncate(items []RankedItem, limit int) []RankedItem {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
