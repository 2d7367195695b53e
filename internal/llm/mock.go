package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/pkg/models"
)

// Mock is an offline provider that routes a handful of keyword intents to
// canned SQL and viz hints. It lets the full chat pipeline run in dev and CI
// without model credentials.
type Mock struct {
	logger zerolog.Logger
}

func NewMock(logger zerolog.Logger) *Mock {
	return &Mock{logger: logger.With().Str("component", "llm.mock").Logger()}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Converse(ctx context.Context, systemPrompt string, messages []Message, tools []ToolSpec, runTool ToolFunc) (*models.ModelEnvelope, error) {
	prompt := lastUserMessage(messages)
	env := m.route(strings.ToLower(prompt))

	// Exercise the tool path the way a real model round-trip would.
	if runTool != nil && env.SQL != "" {
		runTool(ctx, "query_sql", map[string]any{"sql": env.SQL})
	}

	m.logger.Debug().Str("answer", env.Answer).Msg("Mock intent selected")
	return env, nil
}

func (m *Mock) route(msg string) *models.ModelEnvelope {
	var (
		isTop   = strings.Contains(msg, "top") || strings.Contains(msg, "best")
		product = strings.Contains(msg, "product") || strings.Contains(msg, "sku")
		units   = strings.Contains(msg, "unit")
		sales   = strings.Contains(msg, "sales") || strings.Contains(msg, "revenue")
		quarter = strings.Contains(msg, "quarter")
		compare = strings.Contains(msg, "compare") || strings.Contains(msg, "vs")
		price   = strings.Contains(msg, "price")
	)

	switch {
	case isTop && product && sales:
		where := ""
		answer := "Top products by net sales."
		if quarter {
			where = "WHERE date >= current_date - INTERVAL 90 DAY "
			answer = "Top products by net sales in the last quarter."
		}
		return &models.ModelEnvelope{
			Answer: answer,
			SQL:    "SELECT sku, SUM(net_sales) AS net_sales FROM retail_sales " + where + "GROUP BY sku ORDER BY net_sales DESC LIMIT 10",
			Viz: &models.VizSpec{
				Type:         "bar",
				X:            "category",
				Y:            []string{"net_sales"},
				GroupBy:      []string{"sku"},
				Aggregation:  "sum",
				Explanations: []string{"Sorted by total net sales", "Limit 10"},
			},
		}
	case isTop && product && units:
		return &models.ModelEnvelope{
			Answer: "Top products by units sold.",
			SQL:    "SELECT sku, SUM(units) AS units FROM retail_sales GROUP BY sku ORDER BY units DESC LIMIT 10",
			Viz: &models.VizSpec{
				Type:         "bar",
				X:            "category",
				Y:            []string{"units"},
				GroupBy:      []string{"sku"},
				Aggregation:  "sum",
				Explanations: []string{"Sorted by total units", "Limit 10"},
			},
		}
	case compare && price && product:
		return &models.ModelEnvelope{
			Answer: "Average unit price for top-selling SKUs (approximation).",
			SQL:    "SELECT sku, SUM(units) AS units, CASE WHEN SUM(units) = 0 THEN NULL ELSE SUM(net_sales) / SUM(units) END AS avg_unit_price FROM retail_sales GROUP BY sku ORDER BY units DESC LIMIT 10",
			Viz: &models.VizSpec{
				Type:         "bar",
				X:            "category",
				Y:            []string{"avg_unit_price"},
				GroupBy:      []string{"sku"},
				Aggregation:  "avg",
				Explanations: []string{"avg_unit_price = net_sales / units"},
			},
		}
	default:
		return &models.ModelEnvelope{
			Answer: "Here is a breakdown of net sales over time by region.",
			SQL:    "SELECT date, region, sum(net_sales) AS net_sales FROM retail_sales GROUP BY date, region ORDER BY date",
			Viz: &models.VizSpec{
				Type:         "line",
				X:            "date",
				Y:            []string{"net_sales"},
				GroupBy:      []string{"region"},
				Aggregation:  "sum",
				Explanations: []string{"Summed by date and region"},
			},
		}
	}
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
