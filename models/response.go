package models

// Scrape job statuses. The terminal ones mirror the collector's statuses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobStuck      = "stuck"
	JobAborted    = "aborted"
)

// Analysis statuses.
const (
	AnalysisQueued     = "queued"
	AnalysisProcessing = "processing"
	AnalysisCompleted  = "completed"
	AnalysisFailed     = "failed"
	AnalysisDropped    = "dropped"
)

// ScrapeJob tracks one collection run.
type ScrapeJob struct {
	ID           string         `json:"id"`
	Handle       string         `json:"handle"`
	Status       string         `json:"status"`
	CurrentCount int            `json:"current_count"`
	TargetCount  int            `json:"target_count"`
	Message      string         `json:"message,omitempty"`
	CacheStatus  string         `json:"cache_status,omitempty"`
	Profile      *ProfileRecord `json:"profile,omitempty"`
	Error        *ErrorDetail   `json:"error,omitempty"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// Finished reports whether the job reached a terminal status.
func (j *ScrapeJob) Finished() bool {
	return j.Status != JobProcessing
}

// AnalysisState is the lifecycle record of one classification request.
type AnalysisState struct {
	ID                 string       `json:"id"`
	Username           string       `json:"username"`
	Status             string       `json:"status"`
	IsBot              bool         `json:"is_bot"`
	Classification     string       `json:"classification,omitempty"`
	RawOutput          string       `json:"raw_output,omitempty"`
	TweetCount         int          `json:"tweet_count"`
	NearDuplicateRatio float64      `json:"near_duplicate_ratio"`
	AnalysisDate       string       `json:"analysis_date,omitempty"`
	Error              *ErrorDetail `json:"error,omitempty"`
	UpdatedAt          int64        `json:"updated_at"`
}

// AccountStats aggregates the scrapes of one account.
type AccountStats struct {
	FirstScrapedAt string `json:"first_scraped_at"`
	LastScrapedAt  string `json:"last_scraped_at"`
	TimesScraped   int    `json:"times_scraped"`
	TotalTweets    int    `json:"total_tweets"`
}

// TotalStats aggregates all finished scrapes since start-up.
type TotalStats struct {
	TotalTweetsScraped   int                      `json:"total_tweets_scraped"`
	TotalAccountsScraped int                      `json:"total_accounts_scraped"`
	LastScrapedUsername  string                   `json:"last_scraped_username,omitempty"`
	LastScrapedAt        string                   `json:"last_scraped_at,omitempty"`
	ScrapedAccounts      map[string]*AccountStats `json:"scraped_accounts"`
}

// ScrapeAccepted is the immediate response for POST /api/v1/scrape.
type ScrapeAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Handle string `json:"handle"`
}

// AnalyzeAccepted is the immediate response for POST /api/v1/analyze.
type AnalyzeAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse wraps an error for API clients.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string    `json:"status"` // "healthy" or "degraded"
	Uptime     string    `json:"uptime"`
	PoolStats  PoolStats `json:"pool_stats"`
	QueueDepth int       `json:"queue_depth"`
	Classifier string    `json:"classifier"` // "operational", "unreachable", "unknown"
	Version    string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
