package chat

import (
	"strings"

	"github.com/facet-labs/facet/internal/llm"
)

// systemPrompt instructs the model to answer through the query_sql tool and
// finish with a single JSON envelope.
const systemPrompt = `You are an analytics assistant for a retail sales dataset. Use the query_sql tool to answer questions with data.

The only table is retail_sales with columns: date, store_id, store_name, region, category, sku, units, net_sales.

After using the tool, reply with a single JSON object and nothing else:
{"answer": "<short prose answer>", "sql": "<the final SELECT you used>", "viz": {"type": "line|bar|table", "x": "<x column>", "y": ["<measure column>"], "groupBy": ["<dimension column>"], "aggregation": "sum|avg|count", "explanations": ["<assumption you made>"]}}

Rules:
- Only SELECT statements over retail_sales. No semicolons, comments, or DDL.
- Always write complete SQL. Never use '...' or placeholders.
- When the user asks about categories, use the category column. When they ask about regions, use the region column.`

// queryTool is the one tool offered to every provider. The description leans
// hard on completeness and dimension choice because small models get both
// wrong constantly.
func queryTool() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "query_sql",
		Description: "Execute a validated SELECT query over retail_sales table. IMPORTANT: The SQL query must be COMPLETE and valid. It MUST include: SELECT columns FROM retail_sales [optional clauses]. Never use '...' or placeholders. The table has columns: date, store_id, store_name, region, category, sku, units, net_sales. When the user asks about 'categories', use the category column. When they ask about 'regions', use the region column. Always match the exact dimension the user specifies.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "A complete, valid SQL SELECT query. Must include SELECT, FROM retail_sales, and any necessary WHERE/GROUP BY/ORDER BY clauses. Do not use '...' or incomplete statements.",
				},
			},
			"required": []string{"sql"},
		},
	}
}

// enhanceMessage reinforces the dimension the user named, so the model does
// not answer a category question with a region grouping or vice versa.
func enhanceMessage(message string) string {
	lower := strings.ToLower(message)
	hasCategory := strings.Contains(lower, "categor")
	hasRegion := strings.Contains(lower, "region")
	switch {
	case hasCategory && !hasRegion:
		return message + " IMPORTANT: Use the category column, NOT region."
	case hasRegion && !hasCategory:
		return message + " IMPORTANT: Use the region column."
	default:
		return message
	}
}
