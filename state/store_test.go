package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/models"
)

func fixedClock(s *Store, t time.Time) *time.Time {
	now := t
	s.now = func() time.Time { return now }
	return &now
}

func TestRecordScrape(t *testing.T) {
	s := New(0)
	clock := fixedClock(s, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	s.RecordScrape("jack", 10)
	*clock = clock.Add(time.Hour)
	s.RecordScrape("jack", 4)
	s.RecordScrape("alice", 7)

	st := s.Stats()
	assert.Equal(t, 21, st.TotalTweetsScraped)
	assert.Equal(t, 2, st.TotalAccountsScraped)
	assert.Equal(t, "alice", st.LastScrapedUsername)
	assert.Equal(t, "2024-03-01T13:00:00Z", st.LastScrapedAt)

	jack := st.ScrapedAccounts["jack"]
	require.NotNil(t, jack)
	assert.Equal(t, 2, jack.TimesScraped)
	assert.Equal(t, 14, jack.TotalTweets)
	assert.Equal(t, "2024-03-01T12:00:00Z", jack.FirstScrapedAt)
	assert.Equal(t, "2024-03-01T13:00:00Z", jack.LastScrapedAt)
}

func TestStats_ReturnsCopy(t *testing.T) {
	s := New(0)
	s.RecordScrape("jack", 1)

	st := s.Stats()
	st.ScrapedAccounts["jack"].TotalTweets = 99
	st.TotalTweetsScraped = 99

	again := s.Stats()
	assert.Equal(t, 1, again.TotalTweetsScraped)
	assert.Equal(t, 1, again.ScrapedAccounts["jack"].TotalTweets)
}

func TestJobLifecycle(t *testing.T) {
	s := New(0)
	s.CreateJob("j1", "jack", 10)

	events, cancel := s.Bus().Subscribe("j1", 8)
	defer cancel()

	var hooked []string
	sink := s.Sink("j1", func(ev Event) { hooked = append(hooked, ev.Type) })

	require.NoError(t, sink.Progress(5, 10))
	job, ok := s.Job("j1")
	require.True(t, ok)
	assert.Equal(t, 5, job.CurrentCount)
	assert.Equal(t, models.JobProcessing, job.Status)
	assert.Equal(t, "Scraped 5/10 tweets", job.Message)

	posts := make([]models.PostRecord, 10)
	for i := range posts {
		posts[i] = models.PostRecord{Text: "t"}
	}
	require.NoError(t, sink.Completed(collector.Result{
		Profile: models.ProfileRecord{Handle: "jack", Posts: posts},
		Status:  collector.StatusCompleted,
	}))

	job, _ = s.Job("j1")
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.True(t, job.Finished())
	require.NotNil(t, job.Profile)
	assert.Len(t, job.Profile.Posts, 10)
	assert.Equal(t, 10, s.Stats().TotalTweetsScraped)

	ev := <-events
	assert.Equal(t, EventProgress, ev.Type)
	assert.Equal(t, ProgressData{Current: 5, Target: 10}, ev.Data)
	ev = <-events
	assert.Equal(t, EventCompleted, ev.Type)
	assert.True(t, ev.Terminal())

	assert.Equal(t, []string{EventProgress, EventCompleted}, hooked)
}

func TestJobSink_Error(t *testing.T) {
	s := New(0)
	s.CreateJob("j1", "jack", 10)

	require.NoError(t, s.Sink("j1").Error(models.PreconditionError("not a profile page")))

	job, _ := s.Job("j1")
	assert.Equal(t, models.JobAborted, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.ErrCodeNotProfile, job.Error.Code)
	assert.Zero(t, s.Stats().TotalTweetsScraped)
}

func TestJobSink_ForeignErrorIsInternal(t *testing.T) {
	s := New(0)
	s.CreateJob("j1", "jack", 10)
	require.NoError(t, s.Sink("j1").Error(errors.New("boom")))

	job, _ := s.Job("j1")
	assert.Equal(t, models.ErrCodeInternal, job.Error.Code)
}

func TestJobSink_UnknownJob(t *testing.T) {
	s := New(0)
	err := s.Sink("missing").Progress(5, 10)
	assert.Equal(t, models.ErrCodeNotFound, models.CodeOf(err))
}

func TestJobSink_StuckWithoutPostsNotCounted(t *testing.T) {
	s := New(0)
	s.CreateJob("j1", "", 10)
	require.NoError(t, s.Sink("j1").Completed(collector.Result{
		Profile: models.ProfileRecord{Handle: "jack", Posts: []models.PostRecord{}},
		Status:  collector.StatusStuck,
	}))

	job, _ := s.Job("j1")
	assert.Equal(t, models.JobStuck, job.Status)
	assert.Equal(t, "jack", job.Handle)
	assert.Zero(t, s.Stats().TotalAccountsScraped)
}

func TestJob_ReturnsCopy(t *testing.T) {
	s := New(0)
	s.CreateJob("j1", "jack", 10)

	job, _ := s.Job("j1")
	job.Status = models.JobCompleted

	again, _ := s.Job("j1")
	assert.Equal(t, models.JobProcessing, again.Status)
}

func TestAnalysis_UpdatePublishes(t *testing.T) {
	s := New(0)
	s.PutAnalysis(models.AnalysisState{ID: "a1", Username: "jack", Status: models.AnalysisQueued})

	events, cancel := s.Bus().Subscribe("a1", 1)
	defer cancel()

	_, ok := s.UpdateAnalysis("a1", func(a *models.AnalysisState) {
		a.Status = models.AnalysisCompleted
		a.IsBot = true
	})
	require.True(t, ok)

	ev := <-events
	assert.Equal(t, EventAnalysis, ev.Type)
	got := ev.Data.(models.AnalysisState)
	assert.True(t, got.IsBot)

	_, ok = s.UpdateAnalysis("missing", func(*models.AnalysisState) {})
	assert.False(t, ok)
}

func TestEvict(t *testing.T) {
	s := New(0)
	s.ttl = time.Hour
	clock := fixedClock(s, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	s.CreateJob("running", "a", 10)
	s.CreateJob("done", "b", 10)
	s.UpdateJob("done", func(j *models.ScrapeJob) { j.Status = models.JobCompleted })
	s.PutAnalysis(models.AnalysisState{ID: "a1", Status: models.AnalysisFailed})
	s.PutAnalysis(models.AnalysisState{ID: "a2", Status: models.AnalysisQueued})

	*clock = clock.Add(30 * time.Minute)
	assert.Zero(t, s.evict())

	*clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 2, s.evict())

	_, ok := s.Job("running")
	assert.True(t, ok)
	_, ok = s.Job("done")
	assert.False(t, ok)
	_, ok = s.Analysis("a2")
	assert.True(t, ok)
	_, ok = s.Analysis("a1")
	assert.False(t, ok)
}
