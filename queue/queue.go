// Package queue runs classification requests one at a time.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/botwatch/classifier"
	"github.com/use-agent/botwatch/config"
	"github.com/use-agent/botwatch/models"
	"github.com/use-agent/botwatch/simhash"
	"github.com/use-agent/botwatch/state"
	"golang.org/x/time/rate"
)

// Policy decides which pending requests the consumer picks up.
type Policy string

const (
	// PolicyFIFO processes every request in arrival order.
	PolicyFIFO Policy = "fifo"
	// PolicyLatest keeps only the newest pending request; older ones are
	// marked dropped.
	PolicyLatest Policy = "latest"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFIFO, PolicyLatest:
		return Policy(s), nil
	}
	return "", fmt.Errorf("queue: unknown policy %q (want fifo or latest)", s)
}

// Classifier is the remote verdict source.
type Classifier interface {
	Classify(ctx context.Context, profile *models.ProfileRecord, endpoint string) (*classifier.Verdict, error)
}

// Queue holds pending analysis requests for a single consumer.
type Queue struct {
	mu       sync.Mutex
	pending  []*models.AnalysisRequest
	busy     bool
	policy   Policy
	capacity int

	store      *state.Store
	classifier Classifier
	limiter    *rate.Limiter
	wake       chan struct{}
	now        func() time.Time
}

// New creates a Queue. rps <= 0 disables pacing of classifier calls.
func New(cfg config.QueueConfig, rps float64, store *state.Store, cl Classifier) (*Queue, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Queue{
		policy:     policy,
		capacity:   cfg.Capacity,
		store:      store,
		classifier: cl,
		limiter:    rate.NewLimiter(limit, 1),
		wake:       make(chan struct{}, 1),
		now:        time.Now,
	}, nil
}

// Enqueue records a queued analysis for profile and schedules it.
// apiURL overrides the classifier endpoint when non-empty.
func (q *Queue) Enqueue(profile *models.ProfileRecord, apiURL string) (*models.AnalysisState, error) {
	if profile == nil {
		return nil, models.NewError(models.ErrCodeInvalidInput, "profile is required", nil)
	}

	req := &models.AnalysisRequest{
		ID:         models.NewID("analysis"),
		Profile:    profile,
		APIURL:     apiURL,
		EnqueuedAt: q.now().UnixMilli(),
	}
	st := models.AnalysisState{
		ID:         req.ID,
		Username:   profile.Handle,
		Status:     models.AnalysisQueued,
		TweetCount: len(profile.Posts),
	}

	q.mu.Lock()
	var dropped []*models.AnalysisRequest
	if q.policy == PolicyLatest {
		dropped = q.pending
		q.pending = nil
	}
	if q.capacity > 0 && len(q.pending) >= q.capacity {
		q.mu.Unlock()
		return nil, models.NewError(models.ErrCodeQueueFull,
			fmt.Sprintf("analysis queue is full (%d pending)", q.capacity), nil)
	}
	q.store.PutAnalysis(st)
	q.pending = append(q.pending, req)
	q.mu.Unlock()

	for _, old := range dropped {
		q.store.UpdateAnalysis(old.ID, func(a *models.AnalysisState) {
			a.Status = models.AnalysisDropped
		})
		slog.Info("analysis superseded", "id", old.ID, "by", req.ID)
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return &st, nil
}

// Depth returns the number of pending requests plus the one in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.busy {
		n++
	}
	return n
}

// Run consumes requests until ctx is done. Call it from one goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		req := q.next()
		if req == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.process(ctx, req)
		q.mu.Lock()
		q.busy = false
		q.mu.Unlock()
	}
}

func (q *Queue) next() *models.AnalysisRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	q.busy = true
	return req
}

func (q *Queue) process(ctx context.Context, req *models.AnalysisRequest) {
	q.store.UpdateAnalysis(req.ID, func(a *models.AnalysisState) {
		a.Status = models.AnalysisProcessing
	})

	texts := make([]string, len(req.Profile.Posts))
	for i, p := range req.Profile.Posts {
		texts[i] = p.Text
	}
	ratio := simhash.DuplicateRatio(texts, simhash.DefaultThreshold)

	verdict, err := q.classify(ctx, req)
	if err != nil {
		detail := models.AsError(err).ToDetail()
		q.store.UpdateAnalysis(req.ID, func(a *models.AnalysisState) {
			a.Status = models.AnalysisFailed
			a.Error = detail
			a.NearDuplicateRatio = ratio
		})
		slog.Warn("analysis failed", "id", req.ID, "username", req.Profile.Handle, "error", err)
		return
	}

	date := q.now().UTC().Format(time.RFC3339)
	q.store.UpdateAnalysis(req.ID, func(a *models.AnalysisState) {
		a.Status = models.AnalysisCompleted
		a.IsBot = verdict.IsBot
		a.Classification = verdict.Classification
		a.RawOutput = verdict.RawOutput
		a.NearDuplicateRatio = ratio
		a.AnalysisDate = date
	})
	slog.Info("analysis completed",
		"id", req.ID,
		"username", req.Profile.Handle,
		"classification", verdict.Classification,
		"near_duplicate_ratio", ratio,
	)
}

func (q *Queue) classify(ctx context.Context, req *models.AnalysisRequest) (*classifier.Verdict, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return nil, models.NewError(models.ErrCodeCanceled, "analysis canceled", err)
	}
	return q.classifier.Classify(ctx, req.Profile, req.APIURL)
}
