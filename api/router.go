package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/botwatch/api/handler"
	"github.com/use-agent/botwatch/api/middleware"
	"github.com/use-agent/botwatch/cache"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/state"
	"github.com/use-agent/botwatch/webhook"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Scraper    handler.ProfileScraper
	Queue      handler.AnalysisQueue
	Classifier handler.StatusChecker
	Store      *state.Store
	Cache      *cache.Cache
	Webhook    *webhook.Notifier
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(d.Scraper, d.Queue, d.Classifier, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape jobs
	protected.POST("/scrape", handler.Scrape(d.Scraper, d.Store, d.Cache, d.Webhook, cfg))
	protected.GET("/scrape/:id", handler.GetScrape(d.Store))
	protected.DELETE("/scrape/:id", handler.CancelScrape(d.Scraper, d.Store))
	protected.GET("/scrape/:id/events", handler.ScrapeEvents(d.Store))

	// Classification
	protected.POST("/analyze", handler.Analyze(d.Queue, d.Store))
	protected.GET("/analysis/:id", handler.GetAnalysis(d.Store))

	// Totals
	protected.GET("/stats", handler.Stats(d.Store))

	return r
}
