// Query benchmark for Facet
// Usage: go run benchmarks/query_bench/main.go [flags]
//
// Examples:
//   go run benchmarks/query_bench/main.go --query "SELECT * FROM retail_sales LIMIT 5000"
//   go run benchmarks/query_bench/main.go --format arrow --iterations 10
//   go run benchmarks/query_bench/main.go --format all

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"
)

type Config struct {
	Query      string
	Format     string // "json", "arrow", "msgpack", or "all"
	Iterations int
	Host       string
	Port       int
	Token      string
}

type QueryRequest struct {
	SQL string `json:"sql"`
}

type Stats struct {
	latencies []float64
	bytesRead []int64
	rows      []int64
}

func (s *Stats) addResult(latencyMs float64, bytes int64, rows int64) {
	s.latencies = append(s.latencies, latencyMs)
	s.bytesRead = append(s.bytesRead, bytes)
	s.rows = append(s.rows, rows)
}

func (s *Stats) percentile(p float64) float64 {
	if len(s.latencies) == 0 {
		return 0
	}

	sorted := make([]float64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *Stats) avgLatency() float64 {
	if len(s.latencies) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.latencies {
		sum += v
	}
	return sum / float64(len(s.latencies))
}

func (s *Stats) avgBytes() float64 {
	if len(s.bytesRead) == 0 {
		return 0
	}
	var sum int64
	for _, v := range s.bytesRead {
		sum += v
	}
	return float64(sum) / float64(len(s.bytesRead))
}

func endpointFor(format string) string {
	switch format {
	case "arrow":
		return "/api/v1/query/arrow"
	case "msgpack":
		return "/api/v1/query/msgpack"
	default:
		return "/api/v1/query"
	}
}

func runQuery(cfg *Config, client *http.Client) (latencyMs float64, respBytes int64, rows int64, err error) {
	url := fmt.Sprintf("http://%s:%d%s", cfg.Host, cfg.Port, endpointFor(cfg.Format))
	body, _ := json.Marshal(QueryRequest{SQL: cfg.Query})

	start := time.Now()

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, 0, err
	}

	latencyMs = float64(time.Since(start).Microseconds()) / 1000.0
	respBytes = int64(len(respBody))

	if resp.StatusCode != 200 {
		return latencyMs, respBytes, 0, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody[:min(200, len(respBody))]))
	}

	// Row count comes free with the JSON format; the binary formats would
	// need decoding, which we keep out of the timed path.
	rows = -1
	if cfg.Format == "json" {
		var result map[string]interface{}
		if err := json.Unmarshal(respBody, &result); err == nil {
			if n, ok := result["row_count"].(float64); ok {
				rows = int64(n)
			}
		}
	}

	return latencyMs, respBytes, rows, nil
}

func main() {
	cfg := Config{}

	flag.StringVar(&cfg.Query, "query", "SELECT region, category, sum(net_sales) AS net_sales, sum(units) AS units FROM retail_sales GROUP BY region, category ORDER BY net_sales DESC", "SQL query to execute")
	flag.StringVar(&cfg.Format, "format", "all", "Response format: json, arrow, msgpack, or all")
	flag.IntVar(&cfg.Iterations, "iterations", 5, "Number of iterations per format")
	flag.StringVar(&cfg.Host, "host", "localhost", "Server host")
	flag.IntVar(&cfg.Port, "port", 8000, "Server port")
	flag.Parse()

	cfg.Token = os.Getenv("FACET_TOKEN")

	fmt.Println("================================================================================")
	fmt.Println("FACET QUERY BENCHMARK")
	fmt.Println("================================================================================")
	fmt.Printf("Target: http://%s:%d\n", cfg.Host, cfg.Port)
	fmt.Printf("Query: %s\n", cfg.Query)
	fmt.Printf("Iterations: %d per format\n", cfg.Iterations)
	fmt.Printf("Format: %s\n", cfg.Format)
	fmt.Println("================================================================================")
	fmt.Println()

	if cfg.Token != "" {
		fmt.Printf("Using auth token: %s...\n", cfg.Token[:min(8, len(cfg.Token))])
	} else {
		fmt.Println("No FACET_TOKEN set - authentication may fail")
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: 120 * time.Second,
	}

	formats := []string{cfg.Format}
	if cfg.Format == "all" {
		formats = []string{"json", "arrow", "msgpack"}
	}

	results := make(map[string]*Stats)

	for _, format := range formats {
		fmt.Printf("\n--- Testing %s format ---\n", format)
		testCfg := cfg
		testCfg.Format = format

		stats := &Stats{}

		// Warmup
		fmt.Println("Warmup run...")
		if _, _, _, err := runQuery(&testCfg, client); err != nil {
			fmt.Printf("Warmup failed: %v\n", err)
			continue
		}

		for i := 0; i < cfg.Iterations; i++ {
			latency, bytes, rows, err := runQuery(&testCfg, client)
			if err != nil {
				fmt.Printf("  Run %d: ERROR - %v\n", i+1, err)
				continue
			}
			stats.addResult(latency, bytes, rows)
			fmt.Printf("  Run %d: %.2f ms, %.1f KB", i+1, latency, float64(bytes)/1024)
			if rows >= 0 {
				fmt.Printf(", %d rows", rows)
			}
			fmt.Println()
		}

		results[format] = stats
	}

	fmt.Println()
	fmt.Println("================================================================================")
	fmt.Println("RESULTS")
	fmt.Println("================================================================================")

	var baseline float64
	for _, format := range formats {
		stats := results[format]
		if stats == nil || len(stats.latencies) == 0 {
			continue
		}

		avg := stats.avgLatency()
		if format == "json" {
			baseline = avg
		}

		fmt.Printf("\n%s format:\n", format)
		fmt.Printf("  Avg latency:  %.2f ms\n", avg)
		fmt.Printf("  p50 latency:  %.2f ms\n", stats.percentile(0.50))
		fmt.Printf("  p95 latency:  %.2f ms\n", stats.percentile(0.95))
		fmt.Printf("  p99 latency:  %.2f ms\n", stats.percentile(0.99))
		fmt.Printf("  Avg response: %.1f KB\n", stats.avgBytes()/1024)

		if baseline > 0 && format != "json" && avg > 0 {
			fmt.Printf("  vs JSON:      %.2fx latency\n", avg/baseline)
		}
	}

	fmt.Println()
	fmt.Println("================================================================================")
}
