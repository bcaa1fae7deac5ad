package scraper

import (
	"time"

	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/models"
)

// CollectRequest describes one profile collection on a pool page.
type CollectRequest struct {
	// URL is the profile page to open.
	URL string

	// Options are passed to the collector unchanged.
	Options collector.Options

	// Timeout bounds navigation plus collection. Clamped to MaxTimeout.
	Timeout time.Duration

	// Stealth injects the evasion script before navigation.
	Stealth bool

	// Cookies are set on the page in addition to the configured auth cookie.
	Cookies []models.Cookie
}

// NewCollectRequest builds a CollectRequest from an API scrape request
// whose defaults were already applied.
func NewCollectRequest(req *models.ScrapeRequest, profileURL string, stealth bool) CollectRequest {
	if req.Stealth != nil {
		stealth = *req.Stealth
	}
	return CollectRequest{
		URL: profileURL,
		Options: collector.Options{
			TargetCount:     req.TargetCount,
			IncludeReplies:  req.IncludeReplies,
			IncludeRetweets: req.IncludeRetweets,
			Handle:          req.Handle,
		},
		Timeout: time.Duration(req.Timeout) * time.Second,
		Stealth: stealth,
		Cookies: req.Cookies,
	}
}
