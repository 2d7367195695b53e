package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockIntents(t *testing.T) {
	cases := []struct {
		name        string
		message     string
		wantSQLPart string
		wantType    string
		wantAgg     string
		wantY       string
	}{
		{
			name:        "top products by sales",
			message:     "What are the top products by sales?",
			wantSQLPart: "SUM(net_sales) AS net_sales FROM retail_sales GROUP BY sku ORDER BY net_sales DESC LIMIT 10",
			wantType:    "bar",
			wantAgg:     "sum",
			wantY:       "net_sales",
		},
		{
			name:        "top products by sales last quarter",
			message:     "Show the top products by revenue this quarter",
			wantSQLPart: "WHERE date >= current_date - INTERVAL 90 DAY",
			wantType:    "bar",
			wantAgg:     "sum",
			wantY:       "net_sales",
		},
		{
			name:        "best skus by units",
			message:     "best skus by units sold",
			wantSQLPart: "SUM(units) AS units FROM retail_sales GROUP BY sku ORDER BY units DESC LIMIT 10",
			wantType:    "bar",
			wantAgg:     "sum",
			wantY:       "units",
		},
		{
			name:        "compare price across products",
			message:     "compare the average price across products",
			wantSQLPart: "CASE WHEN SUM(units) = 0 THEN NULL ELSE SUM(net_sales) / SUM(units) END AS avg_unit_price",
			wantType:    "bar",
			wantAgg:     "avg",
			wantY:       "avg_unit_price",
		},
		{
			name:        "default trend",
			message:     "how is the business doing?",
			wantSQLPart: "SELECT date, region, sum(net_sales) AS net_sales FROM retail_sales GROUP BY date, region ORDER BY date",
			wantType:    "line",
			wantAgg:     "sum",
			wantY:       "net_sales",
		},
	}

	mock := NewMock(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := mock.Converse(context.Background(), "system", []Message{{Role: "user", Content: tc.message}}, nil, nil)
			require.NoError(t, err)
			assert.Contains(t, env.SQL, tc.wantSQLPart)
			assert.NotEmpty(t, env.Answer)
			require.NotNil(t, env.Viz)
			assert.Equal(t, tc.wantType, env.Viz.Type)
			assert.Equal(t, tc.wantAgg, env.Viz.Aggregation)
			require.NotEmpty(t, env.Viz.Y)
			assert.Equal(t, tc.wantY, env.Viz.Y[0])
		})
	}
}

func TestMockRunsQueryTool(t *testing.T) {
	mock := NewMock(zerolog.Nop())

	var gotName string
	var gotSQL string
	runTool := func(ctx context.Context, name string, input map[string]any) map[string]any {
		gotName = name
		gotSQL, _ = input["sql"].(string)
		return map[string]any{"rows": []any{}}
	}

	env, err := mock.Converse(context.Background(), "system", []Message{{Role: "user", Content: "top products by sales"}}, nil, runTool)
	require.NoError(t, err)
	assert.Equal(t, "query_sql", gotName)
	assert.Equal(t, env.SQL, gotSQL)
}

func TestMockUsesLastUserMessage(t *testing.T) {
	mock := NewMock(zerolog.Nop())

	messages := []Message{
		{Role: "user", Content: "top products by sales"},
		{Role: "assistant", Content: "Top products by net sales."},
		{Role: "user", Content: "now compare price across products"},
	}

	env, err := mock.Converse(context.Background(), "system", messages, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, env.SQL, "avg_unit_price")
}

func TestMockQuarterKeyword(t *testing.T) {
	mock := NewMock(zerolog.Nop())

	env, err := mock.Converse(context.Background(), "system", []Message{{Role: "user", Content: "top products by sales"}}, nil, nil)
	require.NoError(t, err)
	assert.False(t, strings.Contains(env.SQL, "INTERVAL"), "no time filter without a quarter mention")
	assert.Equal(t, "Top products by net sales.", env.Answer)
}
