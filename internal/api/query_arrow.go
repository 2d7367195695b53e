package api

import (
	"bufio"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gofiber/fiber/v2"
)

// arrowBatchSize is the number of rows per Arrow record batch. Smaller
// batches reduce peak memory usage and let clients start reading early.
const arrowBatchSize = 10000

// executeQueryArrow handles POST /api/v1/query/arrow - returns Arrow IPC stream
func (h *QueryHandler) executeQueryArrow(c *fiber.Ctx) error {
	h.stats.QueryRequests.Add(1)
	start := time.Now()

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
	}

	if msg := h.checkSQL(req.SQL); msg != "" {
		h.stats.QueryErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   msg,
		})
	}

	result, err := h.runQuery(c, req.SQL)
	if err != nil {
		h.stats.QueryErrors.Add(1)
		h.logger.Error().Err(err).Str("sql", req.SQL).Msg("Arrow query execution failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Query execution failed",
		})
	}

	// Build Arrow schema from the normalized result schema
	arrowFields := make([]arrow.Field, len(result.Columns))
	for i, col := range result.Schema {
		arrowFields[i] = arrow.Field{
			Name:     col.Name,
			Type:     fieldTypeToArrowType(col.Type),
			Nullable: true,
		}
	}
	schema := arrow.NewSchema(arrowFields, nil)

	c.Set("Content-Type", "application/vnd.apache.arrow.stream")

	// Stream record batches directly into the response body
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		mem := memory.NewGoAllocator()
		ipcWriter := ipc.NewWriter(w, ipc.WithSchema(schema))
		defer ipcWriter.Close()

		recordBuilder := array.NewRecordBuilder(mem, schema)
		defer recordBuilder.Release()

		flush := func() bool {
			record := recordBuilder.NewRecord()
			defer record.Release()
			if err := ipcWriter.Write(record); err != nil {
				h.logger.Error().Err(err).Msg("Failed to write Arrow batch")
				return false
			}
			return true
		}

		batchRows := 0
		for _, row := range result.Rows {
			for colIdx, col := range result.Columns {
				appendValueToBuilder(recordBuilder.Field(colIdx), row[col])
			}
			batchRows++

			if batchRows >= arrowBatchSize {
				if !flush() {
					return
				}
				w.Flush()
				batchRows = 0
			}
		}

		if batchRows > 0 && !flush() {
			return
		}

		h.logger.Debug().
			Int("row_count", len(result.Rows)).
			Dur("elapsed", time.Since(start)).
			Msg("Arrow streaming query completed")
	})

	return nil
}

// fieldTypeToArrowType maps the store's normalized column types to Arrow
// types. Dates are already serialized as strings by the scan layer.
func fieldTypeToArrowType(fieldType string) arrow.DataType {
	switch fieldType {
	case "integer":
		return arrow.PrimitiveTypes.Int64
	case "float":
		return arrow.PrimitiveTypes.Float64
	case "bool":
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// appendValueToBuilder appends a scanned value to the matching Arrow builder
func appendValueToBuilder(builder array.Builder, val interface{}) {
	if val == nil {
		builder.AppendNull()
		return
	}

	switch b := builder.(type) {
	case *array.Int64Builder:
		switch v := val.(type) {
		case int64:
			b.Append(v)
		case int32:
			b.Append(int64(v))
		case int:
			b.Append(int64(v))
		case uint64:
			b.Append(int64(v))
		case float64:
			b.Append(int64(v))
		default:
			b.AppendNull()
		}
	case *array.Float64Builder:
		switch v := val.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		case int64:
			b.Append(float64(v))
		case int:
			b.Append(float64(v))
		default:
			b.AppendNull()
		}
	case *array.StringBuilder:
		switch v := val.(type) {
		case string:
			b.Append(v)
		case []byte:
			b.Append(string(v))
		case time.Time:
			b.Append(v.Format(time.RFC3339Nano))
		default:
			b.Append(fmt.Sprintf("%v", v))
		}
	case *array.BooleanBuilder:
		switch v := val.(type) {
		case bool:
			b.Append(v)
		default:
			b.AppendNull()
		}
	default:
		builder.AppendNull()
	}
}
