// Package state holds scrape jobs, analyses and scrape totals in memory
// and broadcasts their changes to subscribers.
package state

import (
	"sync"
	"time"

	"github.com/use-agent/botwatch/models"
)

// Store is the in-process state of the service. It is safe for
// concurrent use. Finished jobs and analyses are evicted after the TTL.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*models.ScrapeJob
	analyses map[string]*models.AnalysisState
	stats    models.TotalStats

	bus  *Bus
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// New creates a Store and starts its eviction loop. ttl <= 0 keeps
// records forever.
func New(ttl time.Duration) *Store {
	s := &Store{
		jobs:     make(map[string]*models.ScrapeJob),
		analyses: make(map[string]*models.AnalysisState),
		stats:    models.TotalStats{ScrapedAccounts: make(map[string]*models.AccountStats)},
		bus:      NewBus(),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Bus returns the store's subscription bus. Topics are job and analysis ids.
func (s *Store) Bus() *Bus { return s.bus }

// Close stops the eviction loop.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

// CreateJob registers a new processing job.
func (s *Store) CreateJob(id, handle string, target int) *models.ScrapeJob {
	ts := s.now().UnixMilli()
	job := &models.ScrapeJob{
		ID:          id,
		Handle:      handle,
		Status:      models.JobProcessing,
		TargetCount: target,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()
	return copyJob(job)
}

// Job returns a snapshot of the job.
func (s *Store) Job(id string) (*models.ScrapeJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return copyJob(job), true
}

// UpdateJob applies fn to the job under the write lock and returns the
// resulting snapshot.
func (s *Store) UpdateJob(id string, fn func(*models.ScrapeJob)) (*models.ScrapeJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	fn(job)
	job.UpdatedAt = s.now().UnixMilli()
	return copyJob(job), true
}

// PutAnalysis stores a, replacing any state with the same id.
func (s *Store) PutAnalysis(a models.AnalysisState) {
	a.UpdatedAt = s.now().UnixMilli()
	s.mu.Lock()
	s.analyses[a.ID] = &a
	s.mu.Unlock()
	s.bus.Publish(a.ID, NewEvent(EventAnalysis, a.ID, a))
}

// Analysis returns a snapshot of the analysis.
func (s *Store) Analysis(id string) (*models.AnalysisState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// UpdateAnalysis applies fn to the analysis and publishes the result.
func (s *Store) UpdateAnalysis(id string, fn func(*models.AnalysisState)) (*models.AnalysisState, bool) {
	s.mu.Lock()
	a, ok := s.analyses[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	fn(a)
	a.UpdatedAt = s.now().UnixMilli()
	cp := *a
	s.mu.Unlock()

	s.bus.Publish(id, NewEvent(EventAnalysis, id, cp))
	return &cp, true
}

// RecordScrape adds a finished scrape of handle with n posts to the totals.
func (s *Store) RecordScrape(handle string, n int) {
	ts := s.now().UTC().Format(time.RFC3339)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalTweetsScraped += n
	acc, ok := s.stats.ScrapedAccounts[handle]
	if !ok {
		s.stats.TotalAccountsScraped++
		acc = &models.AccountStats{FirstScrapedAt: ts}
		s.stats.ScrapedAccounts[handle] = acc
	}
	acc.TimesScraped++
	acc.TotalTweets += n
	acc.LastScrapedAt = ts

	s.stats.LastScrapedUsername = handle
	s.stats.LastScrapedAt = ts
}

// Stats returns a deep copy of the totals.
func (s *Store) Stats() models.TotalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	out.ScrapedAccounts = make(map[string]*models.AccountStats, len(s.stats.ScrapedAccounts))
	for h, acc := range s.stats.ScrapedAccounts {
		cp := *acc
		out.ScrapedAccounts[h] = &cp
	}
	return out
}

func (s *Store) cleanupLoop() {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evict()
		}
	}
}

// evict drops finished records not updated within the TTL.
func (s *Store) evict() int {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if job.Finished() && job.UpdatedAt < cutoff {
			delete(s.jobs, id)
			removed++
		}
	}
	for id, a := range s.analyses {
		if analysisFinished(a.Status) && a.UpdatedAt < cutoff {
			delete(s.analyses, id)
			removed++
		}
	}
	return removed
}

func analysisFinished(status string) bool {
	switch status {
	case models.AnalysisCompleted, models.AnalysisFailed, models.AnalysisDropped:
		return true
	}
	return false
}

func copyJob(j *models.ScrapeJob) *models.ScrapeJob {
	cp := *j
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}
