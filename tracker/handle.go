package tracker

import (
	"context"
	"sync"

	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/poller"
)

// State is the latest known view of a tracked lecture.
type State struct {
	Lecture  *client.Lecture
	Analysis *client.Analysis
	// Err is set when tracking ended on a failure.
	Err error
	// Ticks counts completed fetch cycles, including ones that failed transiently.
	Ticks int
}

// Finished reports whether the lecture reached a terminal outcome.
func (s State) Finished() bool {
	if s.Err != nil {
		return true
	}
	return s.Lecture != nil && s.Lecture.Status == client.StatusDone && s.Analysis != nil
}

// Handle observes one tracked lecture.
type Handle struct {
	lectureID string
	ctrl      *poller.Controller

	mu        sync.RWMutex
	state     State
	cancelled bool
	changed   chan struct{}
}

func newHandle(lectureID string) *Handle {
	return &Handle{lectureID: lectureID, changed: make(chan struct{}, 1)}
}

func (h *Handle) LectureID() string { return h.lectureID }

// Snapshot returns the current state.
func (h *Handle) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Changed receives a value after the state was updated. Updates coalesce
// while nobody is reading.
func (h *Handle) Changed() <-chan struct{} { return h.changed }

// Cancel stops tracking and discards the exposed state: Snapshot returns
// the zero State from then on and results arriving afterwards are dropped.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.state = State{}
	h.mu.Unlock()
	h.ctrl.Stop()
}

// Done is closed when tracking has ended for any reason.
func (h *Handle) Done() <-chan struct{} { return h.ctrl.Done() }

// Wait blocks until tracking ends and returns the final state together with
// the failure that ended it, if any. If ctx ends first, the current state
// and ctx.Err() are returned.
func (h *Handle) Wait(ctx context.Context) (State, error) {
	select {
	case <-h.ctrl.Done():
		st := h.Snapshot()
		if st.Err != nil {
			return st, st.Err
		}
		return st, h.ctrl.Err()
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

func (h *Handle) update(fn func(*State)) {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	fn(&h.state)
	h.state.Ticks++
	h.mu.Unlock()

	select {
	case h.changed <- struct{}{}:
	default:
	}
}
