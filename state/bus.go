package state

import (
	"log/slog"
	"sync"
	"time"
)

// Event kinds published on the bus.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventError     = "error"
	EventAnalysis  = "analysis"
)

// Event is one state change of a scrape job or analysis.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, jobID string, data any) Event {
	return Event{Type: typ, JobID: jobID, Timestamp: time.Now().UnixMilli(), Data: data}
}

// Terminal reports whether no further events follow for the job.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// Bus fans events out to per-topic subscribers. Publishing never blocks:
// a slow subscriber loses its oldest buffered event instead.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for events on topic. The returned cancel func
// unregisters and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Event]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], ch)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of topic.
func (b *Bus) Publish(topic string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[topic] {
		select {
		case ch <- ev:
			continue
		default:
		}
		// full: drop the oldest and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
			slog.Debug("bus subscriber dropped event", "topic", topic, "event", ev.Type)
		}
	}
}

// Subscribers returns the number of subscribers on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
