package models

// ModelEnvelope is the JSON object the model is instructed to produce as its
// final turn: a prose answer plus the SQL it settled on and how to chart it.
type ModelEnvelope struct {
	Answer string   `json:"answer"`
	SQL    string   `json:"sql,omitempty"`
	Viz    *VizSpec `json:"viz,omitempty"`
}

// ColumnSchema describes one result column with a coarse inferred type
// (string, integer, float, date, bool, other).
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryResult is an executed query's row set. Columns preserves the SELECT
// order, which Go maps would otherwise lose.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Schema  []ColumnSchema   `json:"schema,omitempty"`
	Rows    []map[string]any `json:"rows"`
}

// RowCount returns the number of rows.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message string `json:"message"`
	Role    string `json:"role,omitempty"` // manager | analyst
}

// ChatPayload is the chat response. Model or database failures surface as a
// readable Answer with whatever SQL/viz context exists, never as a 5xx.
type ChatPayload struct {
	Answer  string           `json:"answer"`
	SQL     string           `json:"sql,omitempty"`
	Viz     *VizSpec         `json:"viz,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Schema  []ColumnSchema   `json:"schema,omitempty"`
}
