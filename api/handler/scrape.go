package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/botwatch/cache"
	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/extract"
	"github.com/use-agent/botwatch/models"
	"github.com/use-agent/botwatch/scraper"
	"github.com/use-agent/botwatch/state"
	"github.com/use-agent/botwatch/webhook"
)

// ProfileScraper runs collections on browser pages.
type ProfileScraper interface {
	Collect(ctx context.Context, req scraper.CollectRequest, sink collector.Sink) (collector.Result, error)
	Cancel(handle string) bool
	Stats() models.PoolStats
}

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Resolve the profile URL and handle.
//  3. Create the job; serve a cached profile when max_age allows.
//  4. Start the collection in the background and return 202.
func Scrape(sc ProfileScraper, store *state.Store, cc *cache.Cache, wh *webhook.Notifier, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, models.ErrCodeInvalidInput, err.Error())
			return
		}
		req.Defaults(cfg.Collector.DefaultTarget, int(cfg.Scraper.DefaultTimeout.Seconds()))
		if limit := cfg.Collector.MaxTarget; limit > 0 && req.TargetCount > limit {
			req.TargetCount = limit
		}

		// ── 2. Resolve target ───────────────────────────────────────
		profileURL, err := resolveProfile(&req, cfg.Scraper.BaseURL)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 3. Job + cache lookup ───────────────────────────────────
		jobID := models.NewID("scrape")
		store.CreateJob(jobID, req.Handle, req.TargetCount)
		cacheKey := cache.Key(req.Handle, req.TargetCount, req.IncludeReplies, req.IncludeRetweets)

		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				job, _ := store.UpdateJob(jobID, func(j *models.ScrapeJob) {
					j.Status = models.JobCompleted
					j.CurrentCount = len(cached.Posts)
					j.Profile = cached
					j.CacheStatus = "hit"
				})
				c.JSON(http.StatusOK, job)
				return
			}
		}

		// ── 4. Launch ───────────────────────────────────────────────
		var hooks []func(state.Event)
		if req.WebhookURL != "" && wh != nil {
			hooks = append(hooks, wh.Relay(req.WebhookURL))
		}
		collectReq := scraper.NewCollectRequest(&req, profileURL, cfg.Scraper.Stealth)
		go runJob(sc, store, cc, jobID, collectReq, hooks)

		c.JSON(http.StatusAccepted, models.ScrapeAccepted{
			ID:     jobID,
			Status: models.JobProcessing,
			Handle: req.Handle,
		})
	}
}

// resolveProfile validates the request target and fills req.Handle.
func resolveProfile(req *models.ScrapeRequest, baseURL string) (string, error) {
	switch {
	case req.URL != "":
		if !extract.IsProfileURL(req.URL) {
			return "", models.PreconditionError("not a profile page: " + req.URL)
		}
		// the page decides whose profile is collected
		req.Handle = extract.HandleFromURL(req.URL)
		return req.URL, nil
	case req.Handle != "":
		req.Handle = strings.TrimPrefix(req.Handle, "@")
		profileURL := extract.ProfileURL(baseURL, req.Handle)
		if !extract.IsProfileURL(profileURL) {
			return "", models.NewError(models.ErrCodeInvalidInput, "invalid handle: "+req.Handle, nil)
		}
		return profileURL, nil
	default:
		return "", models.NewError(models.ErrCodeInvalidInput, "url or handle is required", nil)
	}
}

func runJob(sc ProfileScraper, store *state.Store, cc *cache.Cache, jobID string, req scraper.CollectRequest, hooks []func(state.Event)) {
	start := time.Now()
	result, err := sc.Collect(context.Background(), req, store.Sink(jobID, hooks...))
	if err != nil {
		slog.Warn("scrape job failed",
			"job_id", jobID,
			"handle", req.Options.Handle,
			"error", err,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		return
	}

	slog.Info("scrape job finished",
		"job_id", jobID,
		"handle", result.Profile.Handle,
		"status", result.Status,
		"posts", len(result.Profile.Posts),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if cc != nil && result.Status != collector.StatusAborted {
		profile := result.Profile
		opts := req.Options
		cc.Set(cache.Key(profile.Handle, opts.TargetCount, opts.IncludeReplies, opts.IncludeRetweets), &profile)
		store.UpdateJob(jobID, func(j *models.ScrapeJob) { j.CacheStatus = "miss" })
	}
}

// GetScrape returns a handler for GET /api/v1/scrape/:id.
func GetScrape(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Job(c.Param("id"))
		if !ok {
			respondCode(c, models.ErrCodeNotFound, "scrape job not found")
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// CancelScrape returns a handler for DELETE /api/v1/scrape/:id. The run
// finishes as aborted through its own error event.
func CancelScrape(sc ProfileScraper, store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Job(c.Param("id"))
		if !ok {
			respondCode(c, models.ErrCodeNotFound, "scrape job not found")
			return
		}
		if job.Finished() || !sc.Cancel(job.Handle) {
			c.JSON(http.StatusOK, job)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "canceled": true})
	}
}

// ScrapeEvents returns a handler for GET /api/v1/scrape/:id/events. It
// streams the job's events as server-sent events until a terminal one.
func ScrapeEvents(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := store.Job(id); !ok {
			respondCode(c, models.ErrCodeNotFound, "scrape job not found")
			return
		}

		events, cancel := store.Bus().Subscribe(id, 16)
		defer cancel()

		// Re-read after subscribing so a run finishing in between is not missed.
		job, ok := store.Job(id)
		if !ok {
			respondCode(c, models.ErrCodeNotFound, "scrape job not found")
			return
		}
		if job.Finished() {
			c.SSEvent(terminalEvent(job), job)
			return
		}
		c.SSEvent("state", job)
		c.Writer.Flush()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case ev, open := <-events:
				if !open {
					return false
				}
				c.SSEvent(ev.Type, ev)
				return !ev.Terminal()
			}
		})
	}
}

func terminalEvent(job *models.ScrapeJob) string {
	if job.Status == models.JobAborted {
		return state.EventError
	}
	return state.EventCompleted
}
