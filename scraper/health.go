package scraper

import (
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/use-agent/botwatch/models"
)

// Page retirement thresholds.
const (
	retireErrScore = 3.0
	retireUses     = 20
	retireAge      = 50 * time.Minute
)

// pageHealth scores one pool page.
//
//   - success: errScore -= 0.5 (min 0)
//   - failure: errScore += 1.0
type pageHealth struct {
	errScore float64
	useCount int
	created  time.Time
}

func (h *pageHealth) record(ok bool) {
	h.useCount++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

func (h *pageHealth) shouldRetire(now time.Time) bool {
	return h.errScore >= retireErrScore ||
		h.useCount >= retireUses ||
		now.Sub(h.created) >= retireAge
}

// healthTracker holds the score of every live pool page.
type healthTracker struct {
	mu    sync.Mutex
	pages map[*rod.Page]*pageHealth
	now   func() time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{pages: make(map[*rod.Page]*pageHealth), now: time.Now}
}

// release records the outcome of a run on page and reports whether the
// page should be closed instead of returned to the pool. A retired page
// is forgotten.
func (t *healthTracker) release(page *rod.Page, ok bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, found := t.pages[page]
	if !found {
		h = &pageHealth{created: t.now()}
		t.pages[page] = h
	}
	h.record(ok)
	if h.shouldRetire(t.now()) {
		delete(t.pages, page)
		return true
	}
	return false
}

// pageHealthy reports whether err leaves the page usable. Errors about
// the profile itself say nothing about the renderer.
func pageHealthy(err error) bool {
	if err == nil {
		return true
	}
	switch models.CodeOf(err) {
	case models.ErrCodeNotProfile, models.ErrCodeNoPosts, models.ErrCodeCanceled:
		return true
	}
	return false
}
