package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/models"
	"github.com/ysmood/gson"
)

// authCookieName is the session cookie of the social network.
const authCookieName = "auth_token"

// Collect opens req.URL on a pool page and runs the post collector on it.
// Runs for the same handle supersede each other; the stale run is
// cancelled and finishes as aborted.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard          – hard deadline on navigation plus collection
//  2. Acquire page           – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup         – about:blank + return to pool, or retire the page
//  4. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  5. Headers and cookies    – language pin, auth cookie, request cookies
//  6. Hijack mount           – block images/fonts/media and trackers
//  7. Navigate               – bounded by NavigationTimeout
//  8. Wait                   – DOM stable
//  9. Collect                – supervised collector run on the live page
//
// Navigation failures are reported to sink as errors so that every run
// ends with exactly one completed or error event.
func (s *Scraper) Collect(ctx context.Context, req CollectRequest, sink collector.Sink) (collector.Result, error) {
	key := req.Options.Handle
	if key == "" {
		key = req.URL
	}

	var result collector.Result
	err := s.supervisor.Run(ctx, key, func(ctx context.Context) error {
		var runErr error
		result, runErr = s.collect(ctx, req, sink)
		return runErr
	})
	if err != nil && result.Status == "" {
		// superseded before the run started
		result = collector.Result{
			Profile: models.ProfileRecord{Handle: req.Options.Handle, Posts: []models.PostRecord{}},
			Status:  collector.StatusAborted,
		}
		notifyError(sink, err)
	}
	return result, err
}

func notifyError(sink collector.Sink, cause error) {
	if sinkErr := sink.Error(cause); sinkErr != nil {
		slog.Warn("event delivery failed", "event", "error", "error", sinkErr)
	}
}

func (s *Scraper) collect(ctx context.Context, req CollectRequest, sink collector.Sink) (result collector.Result, err error) {
	aborted := func(cause error) (collector.Result, error) {
		notifyError(sink, cause)
		return collector.Result{
			Profile: models.ProfileRecord{Handle: req.Options.Handle, Posts: []models.PostRecord{}},
			Status:  collector.StatusAborted,
		}, cause
	}

	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.scraperCfg.DefaultTimeout
	}
	if timeout > s.scraperCfg.MaxTimeout {
		timeout = s.scraperCfg.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Acquire page from pool ─────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		s.pagePool.Put(nil)
		return aborted(models.NewError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", acquireErr))
	}

	// ── 3. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	defer func() {
		if s.health.release(page, pageHealthy(err)) {
			slog.Info("retiring pool page", "handle", req.Options.Handle)
			_ = page.Close()
			s.pagePool.Put(nil)
			return
		}
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		s.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ──────────────────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 5. Headers and cookies ────────────────────────────────────────
	// Reply and repost markers are matched in English.
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)
	s.setCookies(page, req)

	// ── 6. Mount hijack router ────────────────────────────────────────
	router := setupHijack(page, s.scraperCfg.BlockedResourceTypes, true)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 7. Navigate ───────────────────────────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
	if navErr := page.Context(navCtx).Navigate(req.URL); navErr != nil {
		navCancel()
		return aborted(categorizeError(navErr, "navigation to profile page failed"))
	}

	// ── 8. Wait for the DOM to settle ─────────────────────────────────
	if stableErr := page.Context(navCtx).WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}
	navCancel()

	// ── 9. Collect ────────────────────────────────────────────────────
	return s.collector.Run(ctx, &livePage{page: page}, req.Options, sink)
}

func (s *Scraper) setCookies(page *rod.Page, req CollectRequest) {
	if s.scraperCfg.AuthToken != "" {
		_, err := proto.NetworkSetCookie{
			Name:     authCookieName,
			Value:    s.scraperCfg.AuthToken,
			Domain:   s.scraperCfg.CookieDomain,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
		}.Call(page)
		if err != nil {
			slog.Warn("failed to set auth cookie", "error", err)
		}
	}

	for _, cookie := range req.Cookies {
		domain := cookie.Domain
		if domain == "" {
			if u, parseErr := url.Parse(req.URL); parseErr == nil {
				domain = u.Host
			}
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		_, _ = proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}.Call(page)
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw navigation errors into typed errors so the API
// layer can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewError(models.ErrCodeCanceled, "collection canceled", err)
	default:
		return models.NewError(models.ErrCodeNavigation, msg, err)
	}
}
