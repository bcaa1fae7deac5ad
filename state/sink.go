package state

import (
	"fmt"

	"github.com/use-agent/botwatch/collector"
	"github.com/use-agent/botwatch/models"
)

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Current int `json:"current"`
	Target  int `json:"target"`
}

// JobSink records the events of one collector run on its job and
// publishes them on the bus. Hooks run after each event, in order.
type JobSink struct {
	store *Store
	jobID string
	hooks []func(Event)
}

var _ collector.Sink = (*JobSink)(nil)

// Sink returns a collector.Sink bound to job id.
func (s *Store) Sink(id string, hooks ...func(Event)) *JobSink {
	return &JobSink{store: s, jobID: id, hooks: hooks}
}

func (k *JobSink) Progress(accepted, target int) error {
	_, ok := k.store.UpdateJob(k.jobID, func(j *models.ScrapeJob) {
		j.CurrentCount = accepted
		j.Message = fmt.Sprintf("Scraped %d/%d tweets", accepted, target)
	})
	if !ok {
		return jobNotFound(k.jobID)
	}
	k.emit(NewEvent(EventProgress, k.jobID, ProgressData{Current: accepted, Target: target}))
	return nil
}

// Completed stores the profile, counts the scrape in the totals and
// publishes the finished job.
func (k *JobSink) Completed(result collector.Result) error {
	profile := result.Profile
	job, ok := k.store.UpdateJob(k.jobID, func(j *models.ScrapeJob) {
		j.Status = string(result.Status)
		j.CurrentCount = len(profile.Posts)
		j.Profile = &profile
		if j.Handle == "" {
			j.Handle = profile.Handle
		}
		j.Message = fmt.Sprintf("Collected %d tweets (%s)", len(profile.Posts), result.Status)
	})
	if !ok {
		return jobNotFound(k.jobID)
	}
	if n := len(profile.Posts); n > 0 {
		k.store.RecordScrape(job.Handle, n)
	}
	k.emit(NewEvent(EventCompleted, k.jobID, job))
	return nil
}

func (k *JobSink) Error(err error) error {
	detail := models.AsError(err).ToDetail()
	_, ok := k.store.UpdateJob(k.jobID, func(j *models.ScrapeJob) {
		j.Status = models.JobAborted
		j.Error = detail
		j.Message = detail.Message
	})
	if !ok {
		return jobNotFound(k.jobID)
	}
	k.emit(NewEvent(EventError, k.jobID, detail))
	return nil
}

func (k *JobSink) emit(ev Event) {
	k.store.bus.Publish(k.jobID, ev)
	for _, hook := range k.hooks {
		hook(ev)
	}
}

func jobNotFound(id string) error {
	return models.NewError(models.ErrCodeNotFound, "scrape job not found: "+id, nil)
}
