package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiError mirrors the botwatch error envelope.
type apiError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post mirrors the botwatch post record.
type post struct {
	IsReply      bool   `json:"is_reply"`
	RetweetCount int    `json:"retweet_count"`
	ReplyCount   int    `json:"reply_count"`
	LikeCount    int    `json:"like_count"`
	Text         string `json:"text"`
}

// profile mirrors the botwatch profile record.
type profile struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Location       string `json:"location"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	TweetCount     int    `json:"tweet_count"`
	Tweets         []post `json:"tweets"`
}

// scrapeJob mirrors GET /api/v1/scrape/:id.
type scrapeJob struct {
	apiError
	ID           string   `json:"id"`
	Handle       string   `json:"handle"`
	Status       string   `json:"status"`
	CurrentCount int      `json:"current_count"`
	TargetCount  int      `json:"target_count"`
	CacheStatus  string   `json:"cache_status"`
	Profile      *profile `json:"profile"`
}

// analysisState mirrors GET /api/v1/analysis/:id.
type analysisState struct {
	apiError
	ID                 string  `json:"id"`
	Username           string  `json:"username"`
	Status             string  `json:"status"`
	IsBot              bool    `json:"is_bot"`
	Classification     string  `json:"classification"`
	RawOutput          string  `json:"raw_output"`
	TweetCount         int     `json:"tweet_count"`
	NearDuplicateRatio float64 `json:"near_duplicate_ratio"`
	AnalysisDate       string  `json:"analysis_date"`
}

// bridge calls the botwatch HTTP API on behalf of MCP tools.
type bridge struct {
	client   *http.Client
	apiURL   string
	apiKey   string
	interval time.Duration
}

func main() {
	apiURL := os.Getenv("BOTWATCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	b := &bridge{
		client:   &http.Client{Timeout: 30 * time.Second},
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   os.Getenv("BOTWATCH_API_KEY"),
		interval: 2 * time.Second,
	}

	s := server.NewMCPServer(
		"botwatch",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeProfileTool := mcp.NewTool("scrape_profile",
		mcp.WithDescription("Open a social profile in a headless browser, scroll its timeline and return the collected profile with its posts and engagement counts."),
		mcp.WithString("handle",
			mcp.Description("Account handle, with or without @. Either handle or url is required."),
		),
		mcp.WithString("url",
			mcp.Description("Profile URL, e.g. https://x.com/jack"),
		),
		mcp.WithNumber("target_count",
			mcp.Description("Number of posts to collect (default: 50)"),
		),
		mcp.WithBoolean("include_replies",
			mcp.Description("Keep replies to other accounts (default: false)"),
		),
		mcp.WithBoolean("include_retweets",
			mcp.Description("Keep reposts (default: false)"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached profile collected at most this many milliseconds ago"),
		),
	)
	s.AddTool(scrapeProfileTool, b.handleScrapeProfile)

	analyzeProfileTool := mcp.NewTool("analyze_profile",
		mcp.WithDescription("Classify an account as BOT or HUMAN. Scrapes the profile first unless scrape_id names a finished scrape."),
		mcp.WithString("handle",
			mcp.Description("Account handle to scrape and classify"),
		),
		mcp.WithString("scrape_id",
			mcp.Description("Id of a finished scrape job to classify instead of scraping"),
		),
		mcp.WithNumber("target_count",
			mcp.Description("Number of posts to collect when scraping (default: 50)"),
		),
	)
	s.AddTool(analyzeProfileTool, b.handleAnalyzeProfile)

	getStatsTool := mcp.NewTool("get_stats",
		mcp.WithDescription("Return scrape totals: posts and accounts scraped, and per-account history."),
	)
	s.AddTool(getStatsTool, b.handleGetStats)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// do sends a request to the botwatch API and returns the status and body.
func (b *bridge) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.apiURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// call sends a request and decodes a successful response into out.
func (b *bridge) call(ctx context.Context, method, path string, payload, out any) error {
	status, data, err := b.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != nil {
			return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
		}
		return fmt.Errorf("API returned status %d", status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// poll fetches path until done reports true for the decoded body or ctx ends.
func poll[T any](ctx context.Context, b *bridge, path string, done func(*T) bool) (*T, error) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var v T
			if err := b.call(ctx, http.MethodGet, path, nil, &v); err != nil {
				return nil, err
			}
			if done(&v) {
				return &v, nil
			}
		}
	}
}

// scrape starts a scrape job and waits for it to finish.
func (b *bridge) scrape(ctx context.Context, payload map[string]any) (*scrapeJob, error) {
	var job scrapeJob
	if err := b.call(ctx, http.MethodPost, "/api/v1/scrape", payload, &job); err != nil {
		return nil, err
	}
	if job.Status != "processing" {
		// served from cache
		return &job, nil
	}
	return poll(ctx, b, "/api/v1/scrape/"+job.ID, func(j *scrapeJob) bool {
		return j.Status != "processing"
	})
}

func scrapePayload(request mcp.CallToolRequest) (map[string]any, error) {
	handle := request.GetString("handle", "")
	url := request.GetString("url", "")
	if handle == "" && url == "" {
		return nil, fmt.Errorf("handle or url is required")
	}
	payload := map[string]any{
		"include_replies":  request.GetBool("include_replies", false),
		"include_retweets": request.GetBool("include_retweets", false),
	}
	if handle != "" {
		payload["handle"] = handle
	}
	if url != "" {
		payload["url"] = url
	}
	if n := request.GetInt("target_count", 0); n > 0 {
		payload["target_count"] = n
	}
	if n := request.GetInt("max_age", 0); n > 0 {
		payload["max_age"] = n
	}
	return payload, nil
}

func (b *bridge) handleScrapeProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := scrapePayload(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job, err := b.scrape(ctx, payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %v", err)), nil
	}
	if job.Profile == nil {
		msg := "scrape " + job.Status
		if job.Error != nil {
			msg = fmt.Sprintf("scrape %s: %s: %s", job.Status, job.Error.Code, job.Error.Message)
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(formatProfile(job)), nil
}

func (b *bridge) handleAnalyzeProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scrapeID := request.GetString("scrape_id", "")
	if scrapeID == "" {
		payload, err := scrapePayload(request)
		if err != nil {
			return mcp.NewToolResultError("handle or scrape_id is required"), nil
		}
		job, err := b.scrape(ctx, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape failed: %v", err)), nil
		}
		if job.Profile == nil {
			return mcp.NewToolResultError("scrape " + job.Status + ": no profile collected"), nil
		}
		scrapeID = job.ID
	}

	var accepted struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := b.call(ctx, http.MethodPost, "/api/v1/analyze", map[string]any{"scrape_id": scrapeID}, &accepted); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analyze request failed: %v", err)), nil
	}

	st, err := poll(ctx, b, "/api/v1/analysis/"+accepted.ID, func(a *analysisState) bool {
		return a.Status != "queued" && a.Status != "processing"
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("polling analysis failed: %v", err)), nil
	}
	if st.Status != "completed" {
		msg := "analysis " + st.Status
		if st.Error != nil {
			msg += ": " + st.Error.Message
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(formatAnalysis(st)), nil
}

func (b *bridge) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats json.RawMessage
	if err := b.call(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stats request failed: %v", err)), nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, stats, "", "  "); err != nil {
		return mcp.NewToolResultText(string(stats)), nil
	}
	return mcp.NewToolResultText(pretty.String()), nil
}

func formatProfile(job *scrapeJob) string {
	p := job.Profile
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%s (%s)\n", p.Username, p.Name)
	if p.Description != "" {
		fmt.Fprintf(&sb, "%s\n", p.Description)
	}
	fmt.Fprintf(&sb, "Followers: %d | Following: %d | Posts: %d\n",
		p.FollowersCount, p.FollowingCount, p.TweetCount)
	fmt.Fprintf(&sb, "Collected %d posts (status: %s, scrape id: %s)\n\n", len(p.Tweets), job.Status, job.ID)

	for i, t := range p.Tweets {
		kind := ""
		if t.IsReply {
			kind = " [reply]"
		}
		fmt.Fprintf(&sb, "%d.%s %s\n   likes %d, reposts %d, replies %d\n",
			i+1, kind, t.Text, t.LikeCount, t.RetweetCount, t.ReplyCount)
	}
	return sb.String()
}

func formatAnalysis(a *analysisState) string {
	var sb strings.Builder
	verdict := "HUMAN"
	if a.IsBot {
		verdict = "BOT"
	}
	fmt.Fprintf(&sb, "@%s: %s\n", a.Username, verdict)
	fmt.Fprintf(&sb, "Classification: %s\n", a.Classification)
	fmt.Fprintf(&sb, "Posts analysed: %d\n", a.TweetCount)
	fmt.Fprintf(&sb, "Near-duplicate posts: %.0f%%\n", a.NearDuplicateRatio*100)
	if a.RawOutput != "" {
		fmt.Fprintf(&sb, "\nModel output:\n%s\n", a.RawOutput)
	}
	return sb.String()
}
