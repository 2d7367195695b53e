package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Table is the single warehouse table all queries run against.
const Table = "retail_sales"

// Row is one retail_sales record.
type Row struct {
	Date      time.Time
	StoreID   string
	StoreName string
	Region    string
	Category  string
	SKU       string
	Units     int
	NetSales  float64
}

// insertChunkSize keeps multi-row inserts well under Postgres's 65535
// parameter limit (8 columns per row).
const insertChunkSize = 500

func tableDDL(engine string) string {
	switch engine {
	case "clickhouse":
		return `CREATE TABLE IF NOT EXISTS retail_sales (
			date Date,
			store_id String,
			store_name String,
			region String,
			category String,
			sku String,
			units Int32,
			net_sales Float64
		) ENGINE = MergeTree ORDER BY (date, store_id)`
	case "postgres":
		return `CREATE TABLE IF NOT EXISTS retail_sales (
			date DATE,
			store_id TEXT,
			store_name TEXT,
			region TEXT,
			category TEXT,
			sku TEXT,
			units INTEGER,
			net_sales DOUBLE PRECISION
		)`
	default: // duckdb
		return `CREATE TABLE IF NOT EXISTS retail_sales (
			date DATE,
			store_id VARCHAR,
			store_name VARCHAR,
			region VARCHAR,
			category VARCHAR,
			sku VARCHAR,
			units INTEGER,
			net_sales DOUBLE
		)`
	}
}

// EnsureTable creates the retail_sales table if it does not exist.
func EnsureTable(ctx context.Context, s Store) error {
	if err := s.Exec(ctx, tableDDL(s.Engine())); err != nil {
		return fmt.Errorf("create %s: %w", Table, err)
	}
	return nil
}

// CountRows returns the number of rows in retail_sales.
func CountRows(ctx context.Context, s Store) (int64, error) {
	res, err := s.Query(ctx, "SELECT COUNT(*) AS n FROM "+Table)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	switch n := res.Rows[0]["n"].(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", n)
	}
}

// InsertRows loads records in chunks of insertChunkSize per statement.
func InsertRows(ctx context.Context, s Store, rows []Row) error {
	for start := 0; start < len(rows); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		stmt := insertStatement(s.Engine(), len(chunk))
		args := make([]any, 0, len(chunk)*8)
		for _, r := range chunk {
			args = append(args, r.Date, r.StoreID, r.StoreName, r.Region, r.Category, r.SKU, r.Units, r.NetSales)
		}
		if err := s.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert %d rows into %s: %w", len(chunk), Table, err)
		}
	}
	return nil
}

// insertStatement builds a multi-row INSERT with the engine's placeholder
// style: $1..$n for postgres, ? elsewhere.
func insertStatement(engine string, rowCount int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(Table)
	sb.WriteString(" (date, store_id, store_name, region, category, sku, units, net_sales) VALUES ")

	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for c := 0; c < 8; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			if engine == "postgres" {
				fmt.Fprintf(&sb, "$%d", arg)
				arg++
			} else {
				sb.WriteString("?")
			}
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// TruncateTable removes all rows. DuckDB and Postgres support TRUNCATE;
// ClickHouse spells it the same way for MergeTree tables.
func TruncateTable(ctx context.Context, s Store) error {
	if err := s.Exec(ctx, "TRUNCATE TABLE "+Table); err != nil {
		return fmt.Errorf("truncate %s: %w", Table, err)
	}
	return nil
}
