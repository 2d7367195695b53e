package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/facet-labs/facet/pkg/models"
)

// scanRows drains a result set into maps keyed by column name. The schema
// carries normalized type names so clients never see driver-specific ones.
func scanRows(rows *sql.Rows) (*models.QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	out := make([]map[string]any, 0, 64)
	var firstRaw []any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if firstRaw == nil {
			firstRaw = values
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = convertValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	schema := make([]models.ColumnSchema, len(cols))
	for i, c := range cols {
		var sample any
		if firstRaw != nil {
			sample = firstRaw[i]
		}
		schema[i] = models.ColumnSchema{Name: c, Type: fieldType(types[i].DatabaseTypeName(), sample)}
	}

	return &models.QueryResult{Columns: cols, Schema: schema, Rows: out}, nil
}

// convertValue maps driver values to JSON-friendly types. Date columns come
// back at midnight and render as plain dates; anything with a time component
// keeps full precision.
func convertValue(v any) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	case sql.NullString:
		if val.Valid {
			return val.String
		}
		return nil
	case sql.NullInt64:
		if val.Valid {
			return val.Int64
		}
		return nil
	case sql.NullFloat64:
		if val.Valid {
			return val.Float64
		}
		return nil
	case sql.NullBool:
		if val.Valid {
			return val.Bool
		}
		return nil
	default:
		return val
	}
}

// fieldType normalizes a driver type name to one of: string, integer, float,
// date, bool, other. When the driver reports no type name, the first-row
// value decides.
func fieldType(dbType string, sample any) string {
	t := strings.ToUpper(dbType)
	switch {
	case t == "":
		return sampleType(sample)
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"),
		strings.Contains(t, "STRING"), strings.Contains(t, "UUID"):
		return "string"
	case strings.Contains(t, "BOOL"):
		return "bool"
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return "date"
	case strings.Contains(t, "INT"):
		return "integer"
	case strings.Contains(t, "DOUBLE"), strings.Contains(t, "FLOAT"),
		strings.Contains(t, "REAL"), strings.Contains(t, "DEC"),
		strings.Contains(t, "NUMERIC"):
		return "float"
	default:
		return "other"
	}
}

func sampleType(v any) string {
	switch v.(type) {
	case string, []byte:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float32, float64:
		return "float"
	case time.Time:
		return "date"
	case bool:
		return "bool"
	default:
		return "other"
	}
}
