// Package collector implements the incremental post collector: a
// scroll, scan, filter and accumulate loop over a live profile page.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/extract"
	"github.com/use-agent/botwatch/models"
)

// Status is the terminal status of a collection run.
type Status string

const (
	StatusCompleted Status = models.JobCompleted
	StatusStuck     Status = models.JobStuck
	StatusAborted   Status = models.JobAborted
)

// Page is the live document a run reads from. ScrollBy is its only side
// effect.
type Page interface {
	URL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (*goquery.Document, error)
	ScrollBy(ctx context.Context, dy int) error
	ScrollHeight(ctx context.Context) (int, error)
}

// Sink receives the events of a run. Delivery is fire-and-forget: a
// returned error is logged and never aborts the run.
type Sink interface {
	Progress(accepted, target int) error
	Completed(result Result) error
	Error(err error) error
}

// Options configures one run.
type Options struct {
	TargetCount     int
	IncludeReplies  bool
	IncludeRetweets bool

	// Handle is used when the page URL does not yield one.
	Handle string
}

// Result is the outcome of a run. Profile.Posts holds the accepted posts
// in discovery order.
type Result struct {
	Profile models.ProfileRecord
	Status  Status
}

// Collector runs collection loops with fixed timing. It holds no per-run
// state and is safe for concurrent use on different pages.
type Collector struct {
	cfg    config.CollectorConfig
	sleep  func(ctx context.Context, d time.Duration) error
	intn   func(n int) int
	logger *slog.Logger
}

// Option customises a Collector.
type Option func(*Collector)

// WithSleep replaces the settle/delay wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Collector) { c.sleep = fn }
}

// WithRand replaces the jitter source; fn must return a value in [0, n).
func WithRand(fn func(n int) int) Option {
	return func(c *Collector) { c.intn = fn }
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// New creates a Collector with the given timing configuration.
func New(cfg config.CollectorConfig, opts ...Option) *Collector {
	c := &Collector{
		cfg:    cfg,
		sleep:  sleepContext,
		intn:   rand.IntN,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run collects posts from page until opts.TargetCount posts are accepted,
// the page stops growing, or the run fails. Exactly one of Completed or
// Error is sent to sink. A non-nil error is returned only for aborted runs.
func (c *Collector) Run(ctx context.Context, page Page, opts Options, sink Sink) (Result, error) {
	r := &run{
		c:      c,
		page:   page,
		opts:   opts,
		sink:   sink,
		seen:   make(map[string]struct{}),
		logger: c.logger.With("handle", opts.Handle, "target", opts.TargetCount),
	}

	status, err := r.collect(ctx)

	if r.profile.Handle == "" {
		r.profile.Handle = opts.Handle
	}
	r.profile.Posts = r.posts
	if r.profile.Posts == nil {
		r.profile.Posts = []models.PostRecord{}
	}
	result := Result{Profile: r.profile, Status: status}

	if err != nil {
		result.Status = StatusAborted
		r.logger.Warn("collection aborted", "accepted", len(r.posts), "error", err)
		r.emit("error", sink.Error(err))
		return result, err
	}

	r.logger.Info("collection finished", "status", status, "accepted", len(r.posts))
	r.emit("completed", sink.Completed(result))
	return result, nil
}

// run is the state of one collection: accepted posts, seen identity keys,
// last observed scroll extent and the consecutive no-growth counter.
type run struct {
	c    *Collector
	page Page
	opts Options
	sink Sink

	profile    models.ProfileRecord
	posts      []models.PostRecord
	seen       map[string]struct{}
	lastExtent int
	stuck      int

	logger *slog.Logger
}

func (r *run) collect(ctx context.Context) (Status, error) {
	cfg := r.c.cfg

	// ── 1. Precondition ──────────────────────────────────────────────
	if r.opts.TargetCount <= 0 {
		return StatusAborted, models.NewError(models.ErrCodeInvalidInput,
			fmt.Sprintf("target count must be positive, got %d", r.opts.TargetCount), nil)
	}
	pageURL, err := r.page.URL(ctx)
	if err != nil {
		return StatusAborted, pageError(ctx, "read page url", err)
	}
	if !extract.IsProfileURL(pageURL) {
		return StatusAborted, models.PreconditionError("not a profile page: " + pageURL)
	}

	// ── 2. Profile header ────────────────────────────────────────────
	doc, err := r.page.Snapshot(ctx)
	if err != nil {
		return StatusAborted, pageError(ctx, "snapshot page", err)
	}
	r.profile = extract.ExtractProfile(doc, pageURL)
	switch {
	case r.profile.Handle == "":
		r.profile.Handle = r.opts.Handle
	case r.opts.Handle != "" && r.profile.Handle != r.opts.Handle:
		r.logger.Info("handle mismatch, using page handle", "page_handle", r.profile.Handle)
	}

	// ── 3. Initial scroll and scan ───────────────────────────────────
	if err := r.scrollAndSettle(ctx, cfg.InitialScroll, cfg.InitialSettle); err != nil {
		return StatusAborted, err
	}
	if err := r.scan(ctx); err != nil {
		return StatusAborted, err
	}

	// ── 4. Second chance when the first scan found nothing ───────────
	if len(r.posts) == 0 {
		r.logger.Debug("no posts on first scan, scrolling further")
		if err := r.scrollAndSettle(ctx, cfg.RetryScroll, cfg.RetrySettle); err != nil {
			return StatusAborted, err
		}
		if err := r.scan(ctx); err != nil {
			return StatusAborted, err
		}
		if len(r.posts) == 0 {
			if err := r.heuristicScan(ctx); err != nil {
				return StatusAborted, err
			}
		}
		if len(r.posts) == 0 {
			return StatusAborted, models.NewError(models.ErrCodeNoPosts,
				"could not find any posts on the profile page", nil)
		}
	}

	// ── 5. Scroll/scan cycles ────────────────────────────────────────
	for !r.done() {
		extent, err := r.page.ScrollHeight(ctx)
		if err != nil {
			return StatusAborted, pageError(ctx, "measure scroll height", err)
		}

		if extent == r.lastExtent {
			r.stuck++
			r.logger.Debug("page extent unchanged", "extent", extent, "stuck", r.stuck)
			if r.stuck == cfg.StuckRecoverAt {
				if err := r.heuristicScan(ctx); err != nil {
					return StatusAborted, err
				}
				if r.done() {
					break
				}
			}
			if r.stuck >= cfg.StuckLimit {
				return StatusStuck, nil
			}
		} else {
			r.stuck = 0
			r.lastExtent = extent
		}

		if err := r.scrollAndSettle(ctx, cfg.ScrollBase+r.jitter(cfg.ScrollJitter), cfg.ScrollSettle); err != nil {
			return StatusAborted, err
		}
		if err := r.scan(ctx); err != nil {
			return StatusAborted, err
		}
		if r.done() {
			break
		}

		jitterMs := r.jitter(int(cfg.CycleDelayJitter / time.Millisecond))
		delay := cfg.CycleDelayBase + time.Duration(jitterMs)*time.Millisecond
		if err := r.wait(ctx, delay); err != nil {
			return StatusAborted, err
		}
	}

	return StatusCompleted, nil
}

func (r *run) done() bool {
	return len(r.posts) >= r.opts.TargetCount
}

// scan takes a fresh snapshot and processes its structural candidates,
// falling back to a heuristic pass when no post selector matches.
func (r *run) scan(ctx context.Context) error {
	doc, err := r.page.Snapshot(ctx)
	if err != nil {
		return pageError(ctx, "snapshot page", err)
	}
	r.scanDocument(doc)
	return nil
}

func (r *run) scanDocument(doc *goquery.Document) {
	candidates, selector, ok := extract.StructuralCandidates(doc)
	if !ok {
		r.logger.Debug("no post selector matched, using heuristic pass")
		r.process(extract.HeuristicCandidates(doc))
		return
	}
	r.logger.Debug("scanning candidates", "selector", selector, "found", candidates.Length())
	r.process(candidates)
}

func (r *run) heuristicScan(ctx context.Context) error {
	doc, err := r.page.Snapshot(ctx)
	if err != nil {
		return pageError(ctx, "snapshot page", err)
	}
	r.process(extract.HeuristicCandidates(doc))
	return nil
}

// process evaluates candidates in order until the target is reached.
// Filtered candidates are remembered so they are not parsed again;
// candidates without text are not, since their text may still load.
func (r *run) process(candidates *goquery.Selection) {
	candidates.EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if r.done() {
			return false
		}

		key := extract.IdentityKey(el)
		if _, dup := r.seen[key]; dup {
			return true
		}

		post, repost, ok := extract.ParsePost(el)
		if !ok {
			return true
		}
		r.seen[key] = struct{}{}

		if repost && !r.opts.IncludeRetweets {
			return true
		}
		if post.IsReply && !r.opts.IncludeReplies {
			return true
		}

		r.posts = append(r.posts, post)
		if every := r.c.cfg.ProgressEvery; every > 0 && len(r.posts)%every == 0 {
			r.emit("progress", r.sink.Progress(len(r.posts), r.opts.TargetCount))
		}
		return true
	})
}

func (r *run) scrollAndSettle(ctx context.Context, dy int, settle time.Duration) error {
	if err := r.page.ScrollBy(ctx, dy); err != nil {
		return pageError(ctx, "scroll page", err)
	}
	return r.wait(ctx, settle)
}

func (r *run) wait(ctx context.Context, d time.Duration) error {
	if err := r.c.sleep(ctx, d); err != nil {
		return contextError(err)
	}
	return nil
}

func (r *run) jitter(n int) int {
	if n <= 0 {
		return 0
	}
	return r.c.intn(n)
}

func (r *run) emit(event string, err error) {
	if err != nil {
		r.logger.Warn("event delivery failed", "event", event, "error", err)
	}
}

// pageError classifies a failed page operation. Context errors win over
// the browser error they caused.
func pageError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx.Err())
	}
	return models.NewError(models.ErrCodeBrowserCrash, op+" failed", err)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.ErrCodeTimeout, "collection timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewError(models.ErrCodeCanceled, "collection canceled", err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
