package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// labeledSample is one row of a benchmark CSV.
type labeledSample struct {
	Kind  domain.InputKind
	Value string
	Scam  bool
}

// confusion tracks benchmark results. Scam and likely_scam verdicts count
// as positive.
type confusion struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	Processed int64
	Errors    int64
	LatencyMs int64
}

func (c *confusion) add(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&c.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&c.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&c.TrueNegatives, 1)
	default:
		atomic.AddInt64(&c.FalseNegatives, 1)
	}
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c *confusion) precision() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
}

func (c *confusion) recall() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
}

func (c *confusion) f1() float64 {
	p, r := c.precision(), c.recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c *confusion) accuracy() float64 {
	total := c.TruePositives + c.TrueNegatives + c.FalsePositives + c.FalseNegatives
	return ratio(c.TruePositives+c.TrueNegatives, total)
}

// NewBenchmarkCommand replays a labeled CSV against a running server.
func NewBenchmarkCommand() *cobra.Command {
	var (
		csvPath string
		baseURL string
		mode    string
		limit   int
		workers int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure detection quality against a labeled CSV",
		Long: `Measure detection quality against a labeled CSV

Reads rows of type,value,label (label is a verdict name or 1/0), sends each
to POST /analyze on a running server and prints the confusion matrix,
precision, recall and throughput.`,
		Example: `  kestrel benchmark --csv samples.csv --url http://localhost:8080 --workers 20`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if csvPath == "" {
				return errors.New("--csv is required")
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			samples, err := readLabeledCSV(f, limit)
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			if err := checkHealth(client, baseURL); err != nil {
				return fmt.Errorf("kestrel not reachable at %s: %w", baseURL, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded %d samples, running with %d workers...\n", len(samples), workers)

			start := time.Now()
			m := runBenchmark(client, baseURL, domain.FusionMode(mode), samples, workers, func(s labeledSample, label domain.Label, err error) {
				if !verbose {
					return
				}
				if err != nil {
					fmt.Fprintf(out, "ERROR %s %q: %v\n", s.Kind, s.Value, err)
					return
				}
				mark := "ok"
				if label.IsScam() != s.Scam {
					mark = "MISS"
				}
				fmt.Fprintf(out, "%-4s %-5s %-12s %q\n", mark, s.Kind, label, s.Value)
			})
			printResults(out, m, time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "labeled CSV file (type,value,label)")
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Kestrel base URL")
	cmd.Flags().StringVar(&mode, "fusion", string(domain.DefaultMode), "fusion mode sent with each request")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to send (0 = all)")
	cmd.Flags().IntVar(&workers, "workers", 10, "number of concurrent workers")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print each result")

	return cmd
}

// readLabeledCSV parses type,value,label rows. A header row and malformed
// rows are skipped.
func readLabeledCSV(r io.Reader, limit int) ([]labeledSample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var samples []labeledSample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 3 {
			continue
		}

		kind := domain.InputKind(strings.ToLower(strings.TrimSpace(record[0])))
		if !kind.Valid() {
			continue
		}

		label := strings.ToLower(strings.TrimSpace(record[2]))
		samples = append(samples, labeledSample{
			Kind:  kind,
			Value: record[1],
			Scam:  label == "1" || label == "true" || domain.Label(label).IsScam(),
		})

		if limit > 0 && len(samples) >= limit {
			break
		}
	}

	if len(samples) == 0 {
		return nil, errors.New("no usable rows in CSV")
	}
	return samples, nil
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func runBenchmark(client *http.Client, baseURL string, mode domain.FusionMode, samples []labeledSample, numWorkers int, report func(labeledSample, domain.Label, error)) *confusion {
	if numWorkers < 1 {
		numWorkers = 1
	}

	m := &confusion{}
	work := make(chan labeledSample, 100)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				start := time.Now()
				label, err := analyzeRemote(client, baseURL, mode, s)
				atomic.AddInt64(&m.LatencyMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&m.Processed, 1)

				if err != nil {
					atomic.AddInt64(&m.Errors, 1)
				} else {
					m.add(label.IsScam(), s.Scam)
				}

				mu.Lock()
				report(s, label, err)
				mu.Unlock()
			}
		}()
	}

	for _, s := range samples {
		work <- s
	}
	close(work)
	wg.Wait()

	return m
}

func analyzeRemote(client *http.Client, baseURL string, mode domain.FusionMode, s labeledSample) (domain.Label, error) {
	body, err := json.Marshal(map[string]string{
		"type":  string(s.Kind),
		"value": s.Value,
		"mode":  string(mode),
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(baseURL+"/analyze", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Label, nil
}

func printResults(out io.Writer, m *confusion, duration time.Duration) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Confusion matrix (positive = scam or likely_scam)")
	fmt.Fprintln(out, "                    Predicted")
	fmt.Fprintln(out, "                  scam     not scam")
	fmt.Fprintf(out, "   Actual scam  %8d  %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Fprintf(out, "     not scam   %8d  %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Precision:  %.4f\n", m.precision())
	fmt.Fprintf(out, "Recall:     %.4f\n", m.recall())
	fmt.Fprintf(out, "F1-Score:   %.4f\n", m.f1())
	fmt.Fprintf(out, "Accuracy:   %.4f\n", m.accuracy())
	fmt.Fprintf(out, "Errors:     %d\n", m.Errors)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Duration:   %v\n", duration.Round(time.Millisecond))
	if m.Processed > 0 {
		fmt.Fprintf(out, "Latency:    %.2f ms avg\n", float64(m.LatencyMs)/float64(m.Processed))
		fmt.Fprintf(out, "Throughput: %.2f req/sec\n", float64(m.Processed)/duration.Seconds())
	}
}
