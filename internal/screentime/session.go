// Package screentime accounts "color" time per calendar day.
//
// A Session accrues wall-clock time only between StartTracking and
// StopAndAccumulate. Any mutating access on a calendar day other than the
// session's day first resets the session, so an interval that crosses
// midnight is discarded rather than attributed to either day.
package screentime

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Session tracks elapsed color time for the current day.
type Session struct {
	id     string
	clock  domain.Clock
	logger *zap.Logger

	mu    sync.Mutex
	state domain.SessionState

	writer *writer
}

// New creates an in-memory session starting idle on today's date.
// store may be nil, in which case nothing is persisted.
func New(id string, clock domain.Clock, store domain.SessionStore, logger *zap.Logger) *Session {
	s := &Session{
		id:     id,
		clock:  clock,
		logger: logger,
		state:  domain.SessionState{Day: clock.Today()},
	}
	if store != nil {
		s.writer = newWriter(id, store, logger)
	}
	return s
}

// Open restores a session from store, falling back to a fresh one.
// An interval still open in the stored state is dropped, not accumulated.
func Open(id string, clock domain.Clock, store domain.SessionStore, logger *zap.Logger) *Session {
	s := New(id, clock, store, logger)

	state, err := store.LoadSession(id)
	switch {
	case err == nil:
		s.state = state
		logger.Debug("restored screen time session",
			zap.String("session", id),
			zap.String("day", state.Day.String()),
			zap.Int64("used_up_ms", state.UsedUpMs),
			zap.Bool("tracking", state.TrackingSinceEpochMs != 0))
		if state.TrackingSinceEpochMs != 0 {
			// The previous process died mid-interval; when it stopped is unknown.
			s.state.TrackingSinceEpochMs = 0
			s.persistLocked()
			logger.Info("discarded interval left open by previous run",
				zap.String("session", id),
				zap.Int64("tracking_since_ms", state.TrackingSinceEpochMs))
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		logger.Warn("failed to restore screen time session",
			zap.String("session", id),
			zap.Error(err))
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// StartTracking opens a tracking interval if none is open.
// Calling it again while tracking on the same day is a no-op.
func (s *Session) StartTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.rolloverLocked()
	if s.state.TrackingSinceEpochMs == 0 {
		s.state.TrackingSinceEpochMs = s.clock.NowEpochMs()
		changed = true
	}
	if changed {
		s.persistLocked()
	}
}

// StopAndAccumulate closes the open interval and adds it to today's total.
// If the day changed while tracking, the session is reset instead.
func (s *Session) StopAndAccumulate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rolloverLocked() {
		s.persistLocked()
		return
	}
	if s.state.TrackingSinceEpochMs == 0 {
		return
	}

	elapsed := s.clock.NowEpochMs() - s.state.TrackingSinceEpochMs
	if elapsed > 0 {
		s.state.UsedUpMs += elapsed
	}
	s.state.TrackingSinceEpochMs = 0
	s.persistLocked()
}

// CurrentTotal returns today's accumulated time including the open interval.
// It never mutates the session: on a different day it simply reports 0.
func (s *Session) CurrentTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock.Today() != s.state.Day {
		return 0
	}
	total := s.state.UsedUpMs
	if s.state.TrackingSinceEpochMs != 0 {
		if open := s.clock.NowEpochMs() - s.state.TrackingSinceEpochMs; open > 0 {
			total += open
		}
	}
	return total
}

// IsTracking reports whether an interval is open.
func (s *Session) IsTracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.TrackingSinceEpochMs != 0
}

// State returns a copy of the durable fields.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Seed raises today's used time to usedUpMs when an external source measured more.
func (s *Session) Seed(usedUpMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.rolloverLocked()
	if usedUpMs > s.state.UsedUpMs {
		s.state.UsedUpMs = usedUpMs
		changed = true
	}
	if changed {
		s.persistLocked()
	}
}

// Close flushes pending writes. The session stays usable in memory.
func (s *Session) Close() {
	if s.writer != nil {
		s.writer.close()
	}
}

// rolloverLocked resets the session when today differs from its day.
func (s *Session) rolloverLocked() bool {
	today := s.clock.Today()
	if today == s.state.Day {
		return false
	}
	if s.state.UsedUpMs != 0 || s.state.TrackingSinceEpochMs != 0 {
		s.logger.Info("screen time session rolled over",
			zap.String("session", s.id),
			zap.String("previous_day", s.state.Day.String()),
			zap.Int64("previous_used_up_ms", s.state.UsedUpMs))
	}
	s.state = domain.SessionState{Day: today}
	return true
}

func (s *Session) persistLocked() {
	if s.writer != nil {
		s.writer.submit(s.state)
	}
}
