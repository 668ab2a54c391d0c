// Benchmark tool for testing Kestrel against labeled client data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/clients.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled client records (with expected-opportunity labels)
//   2. Sends each client to Kestrel for scanning
//   3. Compares Kestrel's verdict (opportunity / no opportunity) with labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// The CSV needs a client_id column and a has_opportunity label column (0/1).
// Every other column becomes an entity attribute; numeric values are parsed
// as numbers so criteria can compare against them.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ClientRecord represents a labeled row from the benchmark dataset
type ClientRecord struct {
	ClientID       string
	Attributes     map[string]interface{}
	HasOpportunity bool
}

// ScanRequest is the Kestrel API request format
type ScanRequest struct {
	Entities []EntityRequest `json:"entities"`
	Strategy string          `json:"strategy,omitempty"`
}

type EntityRequest struct {
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ScanResponse is the Kestrel API response format
type ScanResponse struct {
	ScanID        string `json:"scanId"`
	Opportunities []struct {
		EntityID         string  `json:"entityId"`
		ScenarioID       string  `json:"scenarioId"`
		MatchScore       float64 `json:"matchScore"`
		EstimatedRevenue float64 `json:"estimatedRevenue"`
		Rank             int     `json:"rank"`
	} `json:"opportunities"`
	Summary struct {
		OpportunityCount int     `json:"opportunityCount"`
		TotalRevenue     float64 `json:"totalRevenue"`
	} `json:"summary"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Expected opportunity, scan found one
	FalsePositives int64 // No opportunity expected, scan found one
	TrueNegatives  int64 // No opportunity expected, scan found none
	FalseNegatives int64 // Expected opportunity, scan missed it

	TotalProcessed int64
	TotalPositive  int64
	TotalNegative  int64
	TotalErrors    int64

	TotalRevenue     int64 // cents, to keep atomics integral
	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled client CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum clients to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each client result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/clients.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Opportunity Detection              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read client data
	fmt.Printf("\nReading client data from %s...\n", *csvPath)
	clients, err := readClientCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d clients\n", len(clients))

	// Count labeled positives vs negatives
	positiveCount := 0
	for _, c := range clients {
		if c.HasOpportunity {
			positiveCount++
		}
	}
	fmt.Printf("  - With opportunity:    %d (%.2f%%)\n", positiveCount, 100*float64(positiveCount)/float64(len(clients)))
	fmt.Printf("  - Without opportunity: %d (%.2f%%)\n", len(clients)-positiveCount, 100*float64(len(clients)-positiveCount)/float64(len(clients)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(clients, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readClientCSV(path string, limit int) ([]ClientRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idCol, labelCol := -1, -1
	for i, col := range header {
		switch col {
		case "client_id":
			idCol = i
		case "has_opportunity":
			labelCol = i
		}
	}
	if idCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("CSV must have client_id and has_opportunity columns")
	}

	var clients []ClientRecord

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		attrs := make(map[string]interface{}, len(header)-2)
		for i, col := range header {
			if i == idCol || i == labelCol || i >= len(record) {
				continue
			}
			// Numeric columns become numbers so criteria can compare them
			if f, err := strconv.ParseFloat(record[i], 64); err == nil {
				attrs[col] = f
			} else {
				attrs[col] = record[i]
			}
		}

		clients = append(clients, ClientRecord{
			ClientID:       record[idCol],
			Attributes:     attrs,
			HasOpportunity: record[labelCol] == "1",
		})

		if limit > 0 && len(clients) >= limit {
			break
		}
	}

	return clients, nil
}

func runBenchmark(clients []ClientRecord, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan ClientRecord, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for c := range work {
				start := time.Now()
				result, err := scanClient(client, baseURL, tenantID, c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", c.ClientID, err)
					}
					continue
				}

				// Track actual labels
				if c.HasOpportunity {
					atomic.AddInt64(&metrics.TotalPositive, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNegative, 1)
				}

				atomic.AddInt64(&metrics.TotalRevenue, int64(result.Summary.TotalRevenue*100))

				// Calculate confusion matrix
				predicted := result.Summary.OpportunityCount > 0
				actual := c.HasOpportunity

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					name := c.ClientID
					if len(name) > 12 {
						name = name[:12]
					}
					fmt.Printf("%s %-12s | Expected: %-5v | Found: %2d opportunities | Revenue: $%10.2f\n",
						status,
						name,
						c.HasOpportunity,
						result.Summary.OpportunityCount,
						result.Summary.TotalRevenue,
					)
				}
			}
		}()
	}

	// Send work
	for _, c := range clients {
		work <- c
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func scanClient(client *http.Client, baseURL, tenantID string, c ClientRecord) (*ScanResponse, error) {
	reqBody := ScanRequest{
		Entities: []EntityRequest{
			{ID: c.ClientID, Attributes: c.Attributes},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/scan", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Printf("Processed:   %d clients in %s\n", m.TotalProcessed, duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("Throughput:  %.1f scans/sec\n", float64(m.TotalProcessed)/duration.Seconds())
		fmt.Printf("Avg latency: %.1f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
	}
	fmt.Printf("Errors:      %d\n", m.TotalErrors)
	fmt.Printf("Revenue:     $%.2f (estimated, across all scans)\n", float64(m.TotalRevenue)/100)
	fmt.Println()

	fmt.Println("Confusion Matrix:")
	fmt.Printf("                     Predicted Yes   Predicted No\n")
	fmt.Printf("  Actual Yes        %8d        %8d\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("  Actual No         %8d        %8d\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println()

	precision := 0.0
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := 0.0
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	accuracy := 0.0
	total := m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("Precision:   %.2f%%\n", precision*100)
	fmt.Printf("Recall:      %.2f%%\n", recall*100)
	fmt.Printf("F1 Score:    %.2f%%\n", f1*100)
	fmt.Printf("Accuracy:    %.2f%%\n", accuracy*100)
	fmt.Println()
}
