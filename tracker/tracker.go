// Package tracker follows a lecture through server-side processing until
// its analysis is available or processing fails.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/client"
	"github.com/lectio/lectio/poller"
	"github.com/rs/zerolog/log"
)

var (
	// ErrResourceNotFound means the lecture does not exist or was removed.
	ErrResourceNotFound = errors.New("lecture not found or already removed")
	// ErrProcessingFailed means the backend gave up on the lecture.
	ErrProcessingFailed = errors.New("lecture processing failed")
	// ErrInvalidLectureID is returned by Track for ids that are not UUIDs.
	ErrInvalidLectureID = errors.New("invalid lecture id")
)

// LectureAPI is the part of the API client the synchronizer needs.
type LectureAPI interface {
	GetLecture(ctx context.Context, id string) (*client.Lecture, error)
	GetAnalysis(ctx context.Context, lectureID string) (*client.Analysis, error)
}

// Synchronizer starts trackers for lectures.
type Synchronizer struct {
	api      LectureAPI
	interval time.Duration
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithInterval sets the delay between two fetch cycles.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New creates a Synchronizer polling every poller.DefaultInterval.
func New(api LectureAPI, opts ...Option) *Synchronizer {
	s := &Synchronizer{api: api, interval: poller.DefaultInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track starts following lectureID. The first fetch happens immediately.
// Cancelling ctx or calling Handle.Cancel stops tracking.
func (s *Synchronizer) Track(ctx context.Context, lectureID string) (*Handle, error) {
	if _, err := uuid.Parse(lectureID); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidLectureID, lectureID, err)
	}

	h := newHandle(lectureID)
	h.ctrl = poller.New(func(ctx context.Context) (bool, error) {
		return s.cycle(ctx, h)
	}, s.interval)

	log.Debug().Str("lecture_id", lectureID).Dur("interval", s.interval).Msg("Tracking lecture")
	if err := h.ctrl.Start(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// cycle performs one fetch and decides whether to keep polling.
func (s *Synchronizer) cycle(ctx context.Context, h *Handle) (bool, error) {
	lecture, err := s.api.GetLecture(ctx, h.lectureID)
	if err != nil {
		switch {
		case client.IsNotFound(err):
			log.Info().Str("lecture_id", h.lectureID).Msg("Lecture not found, stopping")
			h.update(func(st *State) { st.Err = fmt.Errorf("%w: %w", ErrResourceNotFound, err) })
			return false, nil
		case errors.Is(err, auth.ErrSessionExpired):
			log.Warn().Str("lecture_id", h.lectureID).Msg("Session expired, stopping")
			h.update(func(st *State) { st.Err = err })
			return false, err
		case client.IsTransient(err) && ctx.Err() == nil:
			log.Warn().Err(err).Str("lecture_id", h.lectureID).Msg("Temporary failure fetching lecture, will retry")
			h.update(func(st *State) {})
			return true, nil
		default:
			h.update(func(st *State) { st.Err = err })
			return false, err
		}
	}

	var analysis *client.Analysis
	if lecture.Status == client.StatusDone {
		analysis, err = s.fetchAnalysis(ctx, h.lectureID)
		if err != nil {
			h.update(func(st *State) {
				st.Lecture = lecture
				st.Err = err
			})
			return false, err
		}
		if analysis == nil {
			analysis = lecture.Analysis
		}
	}

	more := shouldContinue(lecture.Status, analysis != nil)
	log.Debug().Str("lecture_id", h.lectureID).Str("status", string(lecture.Status)).
		Int("progress", lecture.Progress).Bool("analysis", analysis != nil).Bool("continue", more).Msg("Lecture state fetched")

	h.update(func(st *State) {
		st.Lecture = lecture
		if analysis != nil {
			st.Analysis = analysis
		}
		if lecture.Status == client.StatusError {
			msg := "unknown error"
			if lecture.ErrorMessage != nil && *lecture.ErrorMessage != "" {
				msg = *lecture.ErrorMessage
			}
			st.Err = fmt.Errorf("%w: %s", ErrProcessingFailed, msg)
		}
	})
	return more, nil
}

// fetchAnalysis returns nil without error while the result is not ready.
func (s *Synchronizer) fetchAnalysis(ctx context.Context, lectureID string) (*client.Analysis, error) {
	analysis, err := s.api.GetAnalysis(ctx, lectureID)
	switch {
	case err == nil:
		return analysis, nil
	case errors.Is(err, auth.ErrSessionExpired):
		return nil, err
	case client.IsNotFound(err):
		return nil, nil
	case client.IsTransient(err) && ctx.Err() == nil:
		log.Warn().Err(err).Str("lecture_id", lectureID).Msg("Temporary failure fetching analysis, will retry")
		return nil, nil
	}
	return nil, err
}

// shouldContinue keeps polling while the job is pending or processing, or
// done without a result yet. Unknown statuses keep polling.
func shouldContinue(status client.LectureStatus, hasAnalysis bool) bool {
	switch status {
	case client.StatusDone:
		return !hasAnalysis
	case client.StatusError:
		return false
	}
	return true
}
