package api

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/facet-labs/facet/internal/database"
	"github.com/facet-labs/facet/internal/sqlguard"
	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Pool for decompression buffers - reduces GC pressure under repeated imports
var decompressBufferPool = sync.Pool{
	New: func() interface{} {
		// Pre-allocate 256KB to cover most decompressed payloads
		buf := make([]byte, 0, 256*1024)
		return &buf
	},
}

// Pool for gzip readers - klauspost gzip.Reader carries ~32KB of internal
// state that can be reused via Reset()
var gzipReaderPool = sync.Pool{
	// No New func - readers are created on-demand since gzip.NewReader
	// requires valid data
}

// PooledBuffer wraps a decompression buffer that must be returned to the
// pool after use. Safe to Release more than once.
type PooledBuffer struct {
	Data   []byte
	bufPtr *[]byte
}

// Release returns the buffer to the pool
func (pb *PooledBuffer) Release() {
	if pb.bufPtr != nil {
		*pb.bufPtr = (*pb.bufPtr)[:0] // Reset length, keep capacity
		decompressBufferPool.Put(pb.bufPtr)
		pb.bufPtr = nil
		pb.Data = nil
	}
}

// ImportResult holds the outcome of a CSV import.
type ImportResult struct {
	RowsImported int64 `json:"rows_imported"`
	Truncated    bool  `json:"truncated"`
	DurationMs   int64 `json:"duration_ms"`
}

// ImportHandler loads CSV data into the sales table.
type ImportHandler struct {
	store  database.Store
	stats  *Stats
	logger zerolog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(store database.Store, stats *Stats, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		store:  store,
		stats:  stats,
		logger: logger.With().Str("component", "import-handler").Logger(),
	}
}

// RegisterRoutes registers import endpoints
func (h *ImportHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/import/csv", h.handleCSVImport)
}

// handleCSVImport handles POST /api/v1/import/csv. The body is raw CSV,
// optionally gzip-compressed; ?truncate=true replaces the table contents
// instead of appending.
func (h *ImportHandler) handleCSVImport(c *fiber.Ctx) error {
	h.stats.ImportRequests.Add(1)
	start := time.Now()

	// Raw bytes: decompression is handled here with pooled readers instead
	// of fasthttp's per-request gunzip.
	payload := c.Request().Body()

	if len(payload) == 0 {
		h.stats.ImportErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Empty payload",
		})
	}

	const maxPayloadSize = 100 * 1024 * 1024 // 100MB
	if len(payload) > maxPayloadSize {
		h.stats.ImportErrors.Add(1)
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Payload too large (max 100MB)",
		})
	}

	wasCompressed := len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b
	if wasCompressed {
		pooledBuf, err := decompressGzip(payload)
		if err != nil {
			h.stats.ImportErrors.Add(1)
			h.logger.Error().Err(err).Msg("Failed to decompress gzip payload")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Invalid gzip compression: %v", err),
			})
		}
		// parseCSV copies what it keeps, so releasing after parse is safe
		defer pooledBuf.Release()

		h.logger.Debug().
			Int("compressed_size", len(payload)).
			Int("decompressed_size", len(pooledBuf.Data)).
			Msg("Decompressed gzip payload")
		payload = pooledBuf.Data
	}

	rows, err := parseCSV(payload)
	if err != nil {
		h.stats.ImportErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	truncate := c.QueryBool("truncate", false)
	if truncate {
		if err := database.TruncateTable(c.Context(), h.store); err != nil {
			h.stats.ImportErrors.Add(1)
			h.logger.Error().Err(err).Msg("Failed to truncate table")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to truncate table",
			})
		}
	}

	if err := database.InsertRows(c.Context(), h.store, rows); err != nil {
		h.stats.ImportErrors.Add(1)
		h.logger.Error().Err(err).Int("rows", len(rows)).Msg("Failed to insert rows")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to insert rows",
		})
	}

	result := &ImportResult{
		RowsImported: int64(len(rows)),
		Truncated:    truncate,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	h.stats.RowsImported.Add(result.RowsImported)

	h.logger.Info().
		Int64("rows", result.RowsImported).
		Bool("truncated", truncate).
		Bool("compressed", wasCompressed).
		Int64("duration_ms", result.DurationMs).
		Msg("CSV import completed")

	return c.JSON(fiber.Map{
		"status": "ok",
		"result": result,
	})
}

// parseCSV reads the payload into table rows. The header must carry exactly
// the table's columns; order is free.
func parseCSV(payload []byte) ([]database.Row, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []database.Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV contains no data rows")
	}
	return rows, nil
}

// columnIndex maps each table column to its position in the header.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	if len(header) != len(sqlguard.AllowedColumns) || len(index) != len(sqlguard.AllowedColumns) {
		return nil, fmt.Errorf("CSV header must contain exactly the columns: %s", strings.Join(sqlguard.AllowedColumns, ", "))
	}
	for _, col := range sqlguard.AllowedColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q (expected: %s)", col, strings.Join(sqlguard.AllowedColumns, ", "))
		}
	}
	return index, nil
}

func parseRecord(record []string, index map[string]int) (database.Row, error) {
	field := func(col string) string {
		return strings.TrimSpace(record[index[col]])
	}

	date, err := time.Parse("2006-01-02", field("date"))
	if err != nil {
		return database.Row{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", field("date"))
	}

	units, err := strconv.Atoi(field("units"))
	if err != nil {
		return database.Row{}, fmt.Errorf("invalid units %q (expected integer)", field("units"))
	}

	netSales, err := strconv.ParseFloat(field("net_sales"), 64)
	if err != nil {
		return database.Row{}, fmt.Errorf("invalid net_sales %q (expected number)", field("net_sales"))
	}

	return database.Row{
		Date:      date,
		StoreID:   field("store_id"),
		StoreName: field("store_name"),
		Region:    field("region"),
		Category:  field("category"),
		SKU:       field("sku"),
		Units:     units,
		NetSales:  netSales,
	}, nil
}

// decompressGzip decompresses gzip data with size limits, reusing pooled
// readers and output buffers. The caller must Release() the returned buffer.
func decompressGzip(data []byte) (*PooledBuffer, error) {
	const maxDecompressedSize = 100 * 1024 * 1024 // 100MB
	const readChunkSize = 32 * 1024               // 32KB chunks

	var reader *gzip.Reader
	var err error
	if pooled := gzipReaderPool.Get(); pooled != nil {
		reader = pooled.(*gzip.Reader)
		err = reader.Reset(bytes.NewReader(data))
	} else {
		reader, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		if reader != nil {
			gzipReaderPool.Put(reader)
		}
		return nil, fmt.Errorf("failed to initialize gzip reader: %w", err)
	}

	bufPtr := decompressBufferPool.Get().(*[]byte)
	buf := (*bufPtr)[:0] // Reset length but keep capacity

	limitedReader := io.LimitReader(reader, maxDecompressedSize+1)
	for {
		if cap(buf)-len(buf) < readChunkSize {
			newBuf := make([]byte, len(buf), cap(buf)*2+readChunkSize)
			copy(newBuf, buf)
			buf = newBuf
		}

		n, readErr := limitedReader.Read(buf[len(buf) : len(buf)+readChunkSize])
		buf = buf[:len(buf)+n]

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			gzipReaderPool.Put(reader)
			*bufPtr = (*bufPtr)[:0]
			decompressBufferPool.Put(bufPtr)
			return nil, fmt.Errorf("failed to decompress: %w", readErr)
		}
	}

	gzipReaderPool.Put(reader)

	if len(buf) > maxDecompressedSize {
		*bufPtr = (*bufPtr)[:0]
		decompressBufferPool.Put(bufPtr)
		return nil, fmt.Errorf("decompressed payload exceeds 100MB limit")
	}

	*bufPtr = buf

	return &PooledBuffer{
		Data:   buf,
		bufPtr: bufPtr,
	}, nil
}
