package render

import "strings"

// temporalHint is the abstract temporal dimension name in the spec
// vocabulary.
const temporalHint = "date"

// temporalCandidates are likely temporal column names, tried in order when
// the x hint is the temporal dimension.
var temporalCandidates = []string{"date", "month", "year", "quarter", "week", "day"}

// temporalSubstrings mark a column name as date-like for both fallback
// resolution and chronological sorting.
var temporalSubstrings = []string{"date", "month", "year"}

// FieldResolver maps an abstract field hint from a visualization spec to a
// concrete column present in the rows. The default implementation is a
// heuristic; it sits behind this interface so it can be swapped for an
// explicit schema contract without touching the series or ranking code.
type FieldResolver interface {
	// ResolveX resolves the x-axis hint. It falls back to the first
	// string-typed column (then the first column) rather than failing, so it
	// only returns false when there are no columns at all.
	ResolveX(hint string, rs RowSet) (string, bool)

	// Resolve resolves a measure or grouping hint. No fallback: unresolvable
	// hints return false and callers degrade.
	Resolve(hint string, rs RowSet) (string, bool)
}

// NewResolver returns the default heuristic resolver. It is stateless and
// deterministic: equal inputs always resolve identically.
func NewResolver() FieldResolver { return heuristicResolver{} }

type heuristicResolver struct{}

func (heuristicResolver) ResolveX(hint string, rs RowSet) (string, bool) {
	cols := rs.columnList()
	if len(cols) == 0 {
		return "", false
	}
	if hint != "" {
		if col, ok := exactMatch(hint, cols); ok {
			return col, true
		}
		if hint == temporalHint {
			if col, ok := temporalMatch(cols); ok {
				return col, true
			}
		}
		if col, ok := fuzzyMatch(hint, cols); ok {
			return col, true
		}
		if col, ok := storeAlias(hint, cols); ok {
			return col, true
		}
	}
	// Last resort for an axis: something string-like to label points with.
	sample := rs.sample()
	for _, col := range cols {
		if _, isString := sample[col].(string); isString {
			return col, true
		}
	}
	return cols[0], true
}

func (heuristicResolver) Resolve(hint string, rs RowSet) (string, bool) {
	if hint == "" {
		return "", false
	}
	cols := rs.columnList()
	if len(cols) == 0 {
		return "", false
	}
	if col, ok := exactMatch(hint, cols); ok {
		return col, true
	}
	if col, ok := fuzzyMatch(hint, cols); ok {
		return col, true
	}
	return storeAlias(hint, cols)
}

func exactMatch(hint string, cols []string) (string, bool) {
	for _, col := range cols {
		if col == hint {
			return col, true
		}
	}
	return "", false
}

func temporalMatch(cols []string) (string, bool) {
	for _, cand := range temporalCandidates {
		for _, col := range cols {
			if strings.EqualFold(col, cand) {
				return col, true
			}
		}
	}
	for _, col := range cols {
		lower := strings.ToLower(col)
		for _, sub := range temporalSubstrings {
			if strings.Contains(lower, sub) {
				return col, true
			}
		}
	}
	return "", false
}

// fuzzyMatch tolerates the aliasing a separately-generated SELECT introduces:
// the hint net_sales matches a column total_net_sales, and netsales matches
// net_sales once underscores are stripped.
func fuzzyMatch(hint string, cols []string) (string, bool) {
	h := strings.ToLower(hint)
	hn := strings.ReplaceAll(h, "_", "")
	for _, col := range cols {
		c := strings.ToLower(col)
		if strings.Contains(c, h) || strings.Contains(h, c) {
			return col, true
		}
		if strings.ReplaceAll(c, "_", "") == hn {
			return col, true
		}
	}
	return "", false
}

func storeAlias(hint string, cols []string) (string, bool) {
	if !strings.EqualFold(hint, "store") {
		return "", false
	}
	for _, alias := range []string{"store_name", "store_id"} {
		for _, col := range cols {
			if strings.EqualFold(col, alias) {
				return col, true
			}
		}
	}
	return "", false
}

// isTemporalX reports whether the x axis should be treated as time: either
// the hint itself is the temporal dimension, or the resolved column name
// looks date-like.
func isTemporalX(hint, col string) bool {
	if hint == temporalHint {
		return true
	}
	if col == "" {
		return false
	}
	lower := strings.ToLower(col)
	for _, sub := range temporalSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
