package models

import "github.com/google/uuid"

// Cookie is an extra browser cookie set before navigation.
type Cookie struct {
	Name   string `json:"name" binding:"required"`
	Value  string `json:"value" binding:"required"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the profile page to scrape. Either URL or Handle is required.
	URL string `json:"url,omitempty" binding:"omitempty,url"`

	// Handle is used to build the profile URL when URL is empty. It is also
	// the fallback handle when the page URL does not yield one.
	Handle string `json:"handle,omitempty" binding:"omitempty,max=15"`

	// TargetCount is the number of posts to collect. Default: 50.
	TargetCount int `json:"target_count,omitempty" binding:"omitempty,min=1"`

	// IncludeReplies keeps posts that reply to other accounts.
	IncludeReplies bool `json:"include_replies,omitempty"`

	// IncludeRetweets keeps reposts of other accounts' posts.
	IncludeRetweets bool `json:"include_retweets,omitempty"`

	// Timeout is the maximum duration in seconds for the whole job.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1"`

	// Stealth overrides the configured stealth setting when non-nil.
	Stealth *bool `json:"stealth,omitempty"`

	// Cookies are set on the page before navigation.
	Cookies []Cookie `json:"cookies,omitempty" binding:"omitempty,dive"`

	// MaxAge (ms) allows serving a cached profile collected with the same
	// options no longer than MaxAge ago. 0 disables the cache.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives progress/completed/error events.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults(defaultTarget, defaultTimeout int) {
	if r.TargetCount == 0 {
		r.TargetCount = defaultTarget
	}
	if r.Timeout == 0 {
		r.Timeout = defaultTimeout
	}
}

// AnalyzeRequest is the payload for POST /api/v1/analyze. Exactly one of
// Profile or ScrapeID must be set.
type AnalyzeRequest struct {
	Profile  *ProfileRecord `json:"profile,omitempty"`
	ScrapeID string         `json:"scrape_id,omitempty"`

	// APIURL overrides the configured classifier endpoint.
	APIURL string `json:"api_url,omitempty" binding:"omitempty,url"`
}

// AnalysisRequest is a queued classification request.
type AnalysisRequest struct {
	ID         string         `json:"id"`
	Profile    *ProfileRecord `json:"profile"`
	APIURL     string         `json:"api_url"`
	EnqueuedAt int64          `json:"enqueued_at"`
}

// NewID returns a prefixed random identifier for jobs and requests.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
