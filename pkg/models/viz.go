package models

// Chart types understood by the renderer. Anything else is coerced to a
// table by Normalize.
const (
	ChartLine  = "line"
	ChartBar   = "bar"
	ChartTable = "table"
)

// VizSpec is the declarative visualization intent produced by the model
// alongside its answer. Field names describe intent, not guaranteed column
// names: the SQL is generated independently and may alias anything.
type VizSpec struct {
	Type         string   `json:"type"`
	X            string   `json:"x,omitempty"`
	Y            []string `json:"y,omitempty"`
	GroupBy      []string `json:"groupBy,omitempty"`
	Aggregation  string   `json:"aggregation,omitempty"` // sum | avg | count
	Explanations []string `json:"explanations,omitempty"`
}

// Normalize cleans up the artifacts models tend to produce: empty strings in
// place of omitted fields, empty lists, unknown chart types. It never adds
// intent, only removes noise.
func (v *VizSpec) Normalize() {
	if v == nil {
		return
	}
	switch v.Type {
	case ChartLine, ChartBar, ChartTable:
	default:
		v.Type = ChartTable
	}
	v.Y = dropEmpty(v.Y)
	v.GroupBy = dropEmpty(v.GroupBy)
	if v.Aggregation != "sum" && v.Aggregation != "avg" && v.Aggregation != "count" {
		v.Aggregation = ""
	}
}

// FirstY returns the first y measure hint, or "" when none is set. Charts
// consume only the first measure; table mode uses all columns.
func (v *VizSpec) FirstY() string {
	if v == nil || len(v.Y) == 0 {
		return ""
	}
	return v.Y[0]
}

// dropEmpty filters "" entries without touching the input's backing array:
// callers may share the slice across goroutines.
func dropEmpty(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	empty := 0
	for _, s := range in {
		if s == "" {
			empty++
		}
	}
	if empty == 0 {
		return in
	}
	if empty == len(in) {
		return nil
	}
	out := make([]string, 0, len(in)-empty)
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
