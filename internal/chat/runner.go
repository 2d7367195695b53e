package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/sqlguard"
)

// Runner executes the query_sql tool on behalf of the model. Failures come
// back as error + hint entries in the result map rather than Go errors: the
// conversation continues and the model gets a chance to correct itself.
type Runner struct {
	store   database.Store
	maxRows int
	logger  zerolog.Logger
}

func NewRunner(store database.Store, maxRows int, logger zerolog.Logger) *Runner {
	return &Runner{
		store:   store,
		maxRows: maxRows,
		logger:  logger.With().Str("component", "chat.runner").Logger(),
	}
}

// Run implements llm.ToolFunc.
func (r *Runner) Run(ctx context.Context, name string, input map[string]any) map[string]any {
	if name != "query_sql" {
		return map[string]any{"error": "Unknown tool " + name}
	}

	sql, _ := input["sql"].(string)
	sql = strings.TrimSpace(sql)

	if sqlguard.Incomplete(sql) {
		return map[string]any{
			"error": "SQL query is incomplete. Please provide a complete SELECT statement with FROM clause. Example: SELECT column FROM retail_sales WHERE condition",
			"hint":  "The SQL must include: SELECT, FROM retail_sales, and optionally WHERE/GROUP BY/ORDER BY clauses. Do not use '...' or incomplete statements.",
		}
	}

	sql = sqlguard.Strip(sql)
	if r.store.Engine() == "clickhouse" {
		sql = sqlguard.TranslateClickHouse(sql)
	}

	if err := sqlguard.Validate(sql); err != nil {
		r.logger.Warn().Str("sql", sql).Err(err).Msg("Tool rejected unsafe SQL")
		return map[string]any{
			"error": err.Error(),
			"hint":  "Valid SQL format: SELECT columns FROM retail_sales [WHERE conditions] [GROUP BY columns] [ORDER BY columns]. Your SQL: " + truncate(sql, 100),
		}
	}

	result, err := r.store.Query(ctx, sql)
	if err != nil {
		msg := err.Error()
		hint := dbHint(msg)
		if hint != "" {
			hint += " "
		}
		hint += "Available columns: " + strings.Join(sqlguard.AllowedColumns, ", ")
		return map[string]any{
			"error": "Database error: " + truncate(coreError(msg), 150),
			"hint":  hint,
		}
	}

	rows := result.Rows
	if r.maxRows > 0 && len(rows) > r.maxRows {
		rows = rows[:r.maxRows]
	}

	r.logger.Debug().Str("sql", sql).Int("rows", len(rows)).Msg("Tool query executed")
	return map[string]any{"rows": rows, "schema": result.Schema}
}

// coreError reduces a driver error to its first meaningful sentence.
// ClickHouse wraps everything in "Code: N. DB::Exception: message. <stack>".
func coreError(msg string) string {
	i := strings.Index(msg, "DB::Exception:")
	if i < 0 {
		return msg
	}
	core := strings.TrimSpace(msg[i+len("DB::Exception:"):])
	if j := strings.IndexByte(core, '.'); j >= 0 {
		core = core[:j+1]
	}
	return core
}

func dbHint(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "Unknown expression") || strings.Contains(lower, "function"):
		return "Use standard SQL functions only."
	case strings.Contains(msg, "Syntax error") || strings.Contains(msg, "failed at position"):
		return "Check SQL syntax, especially string quotes and parentheses."
	case strings.Contains(lower, "table") && strings.Contains(lower, "does not exist"):
		return "Only use the retail_sales table."
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
