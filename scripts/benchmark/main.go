package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:8080", "botwatch API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	handles = flag.String("handles", "jack,nasa,github", "Comma-separated handles to scrape")
	target  = flag.Int("target", 50, "Posts to collect per run")
	runs    = flag.Int("runs", 3, "Number of runs per handle for averaging")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- API types (mirror the models package) ---

type scrapeRequest struct {
	Handle      string `json:"handle"`
	TargetCount int    `json:"target_count"`
}

type scrapeJob struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CurrentCount int    `json:"current_count"`
	Error        *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// --- Benchmark result types ---

type runResult struct {
	Run         int     `json:"run"`
	TotalMs     int64   `json:"total_ms"`
	Posts       int     `json:"posts"`
	PostsPerSec float64 `json:"posts_per_sec"`
	Status      string  `json:"status"`
	Error       string  `json:"error,omitempty"`
}

type handleAverages struct {
	TotalMs     float64 `json:"total_ms"`
	Posts       float64 `json:"posts"`
	PostsPerSec float64 `json:"posts_per_sec"`
}

type handleResult struct {
	Handle   string          `json:"handle"`
	Runs     []runResult     `json:"runs"`
	Averages *handleAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	Target        int            `json:"target"`
	RunsPerHandle int            `json:"runs_per_handle"`
	Results       []handleResult `json:"results"`
}

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	flag.Parse()

	fmt.Println("=== botwatch Scrape Benchmark ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Target:       %d posts\n", *target)
	fmt.Printf("Runs/handle:  %d\n", *runs)
	fmt.Printf("Output:       %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure botwatch is running (e.g. go run ./cmd/botwatch)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		Target:        *target,
		RunsPerHandle: *runs,
	}

	for _, h := range strings.Split(*handles, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		fmt.Printf("Benchmarking @%s ...\n", h)
		hr := handleResult{Handle: h}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkHandle(h, i)
			if rr.Error == "" {
				fmt.Printf("%s  %dms  %d posts  %.2f posts/s\n", rr.Status, rr.TotalMs, rr.Posts, rr.PostsPerSec)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			hr.Runs = append(hr.Runs, rr)
		}

		hr.Averages = computeAverages(hr.Runs)
		report.Results = append(report.Results, hr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func send(method, path string, payload any, out any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}
	req, err := http.NewRequest(method, *apiURL+path, &body)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// benchmarkHandle starts one scrape job and polls it to the end.
func benchmarkHandle(handle string, run int) runResult {
	rr := runResult{Run: run}
	start := time.Now()

	var job scrapeJob
	if err := send(http.MethodPost, "/api/v1/scrape", scrapeRequest{Handle: handle, TargetCount: *target}, &job); err != nil {
		rr.Error = err.Error()
		return rr
	}

	for job.Status == "processing" {
		time.Sleep(time.Second)
		if err := send(http.MethodGet, "/api/v1/scrape/"+job.ID, nil, &job); err != nil {
			rr.Error = err.Error()
			return rr
		}
	}

	elapsed := time.Since(start)
	rr.TotalMs = elapsed.Milliseconds()
	rr.Status = job.Status
	rr.Posts = job.CurrentCount
	if secs := elapsed.Seconds(); secs > 0 {
		rr.PostsPerSec = float64(rr.Posts) / secs
	}
	if job.Error != nil {
		rr.Error = job.Error.Code + ": " + job.Error.Message
	}
	return rr
}

func computeAverages(runs []runResult) *handleAverages {
	var n float64
	var avg handleAverages
	for _, r := range runs {
		if r.Error != "" {
			continue
		}
		n++
		avg.TotalMs += float64(r.TotalMs)
		avg.Posts += float64(r.Posts)
		avg.PostsPerSec += r.PostsPerSec
	}
	if n == 0 {
		return nil
	}
	avg.TotalMs /= n
	avg.Posts /= n
	avg.PostsPerSec /= n
	return &avg
}

func printTable(results []handleResult) {
	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Handle\tAvg Latency\tAvg Posts\tPosts/s\tStatus\n")
	fmt.Fprintf(w, "──────\t───────────\t─────────\t───────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "@%s\tFAILED\t-\t-\t-\n", r.Handle)
			continue
		}
		fmt.Fprintf(w, "@%s\t%dms\t%.1f\t%.2f\t%s\n",
			r.Handle,
			int64(r.Averages.TotalMs),
			r.Averages.Posts,
			r.Averages.PostsPerSec,
			dominantStatus(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

// dominantStatus returns the most frequent terminal status of the runs.
func dominantStatus(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if r.Error == "" {
			counts[r.Status]++
		}
	}
	best, bestCount := "", 0
	for status, count := range counts {
		if count > bestCount || (count == bestCount && status < best) {
			best = status
			bestCount = count
		}
	}
	return best
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
