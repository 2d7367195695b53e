package render

import (
	"sort"
	"strings"

	"github.com/facet-labs/facet/pkg/models"
)

// compositeSep joins multi-dimension fold keys. The joined key is internal;
// only the first dimension's value is rendered.
const compositeSep = "|"

// BuildSeries reconciles a visualization spec against a row set and returns
// a render-ready series. Mismatches degrade (empty result with diagnostics),
// they never error: LLM-generated SQL aliasing things unpredictably is the
// normal case here, not the exception.
func (e *Engine) BuildSeries(spec models.VizSpec, rs RowSet) Series {
	spec.Normalize()
	if rs.Empty() {
		return emptySeries("", "", rs)
	}

	xCol, xOK := e.resolver.ResolveX(spec.X, rs)
	yCol, yOK := e.resolver.Resolve(spec.FirstY(), rs)
	if !yOK {
		// No measure to plot; report what the rows actually contain.
		return emptySeries(xCol, "", rs)
	}

	switch {
	case len(spec.GroupBy) == 0:
		return e.buildFlat(rs, xCol, yCol)
	case spec.X == "" || !xOK:
		return e.buildFold(spec, rs, yCol)
	default:
		return e.buildPivot(spec, rs, xCol, yCol)
	}
}

// buildFlat maps rows one-to-one onto points, preserving row order. Rows
// whose measure fails numeric coercion are dropped.
func (e *Engine) buildFlat(rs RowSet, xCol, yCol string) Series {
	points := make([]Point, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		y, ok := coerceNumber(row[yCol])
		if !ok {
			continue
		}
		points = append(points, Point{X: stringify(row[xCol]), Y: y})
	}
	if len(points) == 0 {
		return emptySeries(xCol, yCol, rs)
	}
	return Series{Kind: KindPoints, Points: points, XField: xCol, YField: yCol}
}

// buildFold aggregates rows that share a groupBy value combination. The fold
// always sums: the upstream query already fixed each row's semantics, this
// step only merges duplicate buckets, whatever the aggregation hint says.
func (e *Engine) buildFold(spec models.VizSpec, rs RowSet, yCol string) Series {
	dimCols := e.resolveDims(spec.GroupBy, rs)

	type bucket struct {
		x   string
		sum float64
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0, len(rs.Rows))

	parts := make([]string, len(dimCols))
	for _, row := range rs.Rows {
		y, ok := coerceNumber(row[yCol])
		if !ok {
			continue
		}
		for i, col := range dimCols {
			if col == "" {
				parts[i] = UnknownLabel
				continue
			}
			parts[i] = stringify(row[col])
		}
		key := strings.Join(parts, compositeSep)
		b := buckets[key]
		if b == nil {
			b = &bucket{x: parts[0]}
			buckets[key] = b
			order = append(order, key)
		}
		b.sum += y
	}

	if len(order) == 0 {
		return emptySeries("", yCol, rs)
	}
	points := make([]Point, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		points = append(points, Point{X: b.x, Y: b.sum})
	}
	return Series{Kind: KindPoints, Points: points, XField: dimCols[0], YField: yCol}
}

// buildPivot turns long-format rows into wide ones: one row per distinct x,
// one summed column per group value. Missing combinations stay absent rather
// than zero-filled so sparse series chart correctly.
func (e *Engine) buildPivot(spec models.VizSpec, rs RowSet, xCol, yCol string) Series {
	dimCols := e.resolveDims(spec.GroupBy, rs)

	rowsByX := make(map[string]PivotRow)
	xOrder := make([]string, 0, len(rs.Rows))
	names := make([]string, 0, 8)
	seen := make(map[string]bool)

	for _, row := range rs.Rows {
		y, ok := coerceNumber(row[yCol])
		if !ok {
			continue
		}
		xVal := stringify(row[xCol])
		pr := rowsByX[xVal]
		if pr == nil {
			pr = PivotRow{pivotXKey: xVal}
			rowsByX[xVal] = pr
			xOrder = append(xOrder, xVal)
		}
		for _, col := range dimCols {
			name := UnknownLabel
			if col != "" {
				name = stringify(row[col])
			}
			if name == pivotXKey {
				// A group value colliding with the reserved key cannot be a
				// series column.
				continue
			}
			prev, _ := pr[name].(float64)
			pr[name] = prev + y
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	if len(xOrder) == 0 {
		return emptySeries(xCol, yCol, rs)
	}

	out := make([]PivotRow, 0, len(xOrder))
	for _, xVal := range xOrder {
		out = append(out, rowsByX[xVal])
	}

	temporal := isTemporalX(spec.X, xCol)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i][pivotXKey].(string)
		b, _ := out[j][pivotXKey].(string)
		if temporal {
			return chronoLess(a, b)
		}
		return a < b
	})

	return Series{Kind: KindPivot, Rows: out, SeriesNames: names, XField: xCol, YField: yCol}
}

func (e *Engine) resolveDims(dims []string, rs RowSet) []string {
	cols := make([]string, len(dims))
	for i, d := range dims {
		cols[i], _ = e.resolver.Resolve(d, rs)
	}
	return cols
}

func emptySeries(xCol, yCol string, rs RowSet) Series {
	s := Series{Kind: KindEmpty, XField: xCol, YField: yCol}
	if first := rs.sample(); len(first) > 0 {
		keys := make([]string, 0, len(first))
		for k := range first {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s.AvailableColumns = keys
	}
	return s
}
