package synchronizer

import (
	"context"
	"sync"
	"time"

	"github.com/atiastack/atia-dashboard/internal/metrics"
	"github.com/atiastack/atia-dashboard/internal/utils"
)

// StreamState is the externally visible state of one polled stream.
//
// Value is the last successfully fetched snapshot and survives failed fetches.
// Err is the most recent failure and is cleared by the next success.
type StreamState[T any] struct {
	Value     T
	HasValue  bool
	Err       error
	Loaded    bool
	Fetching  bool
	UpdatedAt time.Time
}

// Failed reports whether the latest fetch failed.
func (s StreamState[T]) Failed() bool { return s.Err != nil }

// ErrMessage renders the latest failure for display, empty when none.
func (s StreamState[T]) ErrMessage() string { return utils.UserMessage(s.Err) }

// stream runs single-flight fetches for one remote resource.
//
// The in-flight slot is only released by run, so a fetch outliving its
// subscribers still blocks a new one until it returns.
type stream[T any] struct {
	name   string
	fetch  func(ctx context.Context) (T, error)
	now    func() time.Time
	after  func(T, error)
	notify func()

	mu       sync.Mutex
	state    StreamState[T]
	inFlight bool
	attached bool
}

// begin claims the in-flight slot. It returns false, and counts a skip, when a
// fetch is already running.
func (s *stream[T]) begin() bool {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		metrics.ObservePollSkipped(s.name)
		return false
	}
	s.inFlight = true
	s.state.Fetching = true
	s.mu.Unlock()
	s.notify()
	return true
}

// trigger starts a fetch in the background unless one is in flight.
func (s *stream[T]) trigger(ctx context.Context) bool {
	if !s.begin() {
		return false
	}
	go s.run(ctx, false)
	return true
}

// fetchNow runs a fetch on the calling goroutine, subject to the same
// single-flight rule. Its result is applied even with no subscriber attached.
func (s *stream[T]) fetchNow(ctx context.Context) bool {
	if !s.begin() {
		return false
	}
	s.run(ctx, true)
	return true
}

func (s *stream[T]) run(ctx context.Context, force bool) {
	value, err := s.fetch(ctx)
	metrics.ObservePoll(s.name, err)

	s.mu.Lock()
	s.inFlight = false
	s.state.Fetching = false
	if !force && !s.attached {
		// Nobody is subscribed any more.
		s.mu.Unlock()
		return
	}
	s.state.Loaded = true
	s.state.UpdatedAt = s.now()
	if err != nil {
		s.state.Err = err
	} else {
		s.state.Value = value
		s.state.HasValue = true
		s.state.Err = nil
	}
	s.mu.Unlock()

	if s.after != nil {
		s.after(value, err)
	}
	s.notify()
}

// setAttached records whether a subscriber is present. The synchronizer calls
// it while holding its own lock so it changes together with the subscriber set.
func (s *stream[T]) setAttached(attached bool) {
	s.mu.Lock()
	s.attached = attached
	s.mu.Unlock()
}

func (s *stream[T]) snapshot() StreamState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
