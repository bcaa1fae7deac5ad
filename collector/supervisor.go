package collector

import (
	"context"
	"sync"
)

// Supervisor allows at most one active run per key. Starting a run for a
// key cancels the run already active for it and waits for that run to
// return before the new one starts.
type Supervisor struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{runs: make(map[string]*activeRun)}
}

// Run executes fn as the active run for key. fn's context is cancelled
// when ctx is, when a newer run for key supersedes it, or by Cancel(key).
func (s *Supervisor) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	r := &activeRun{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.runs[key]
	s.runs[key] = r
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.runs[key] == r {
			delete(s.runs, key)
		}
		s.mu.Unlock()
		close(r.done)
	}()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	if err := runCtx.Err(); err != nil {
		return contextError(err)
	}
	return fn(runCtx)
}

// Cancel stops the active run for key, if any. It does not wait.
func (s *Supervisor) Cancel(key string) bool {
	s.mu.Lock()
	r, ok := s.runs[key]
	s.mu.Unlock()
	if ok {
		r.cancel()
	}
	return ok
}

// Active returns the number of keys with a registered run.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
