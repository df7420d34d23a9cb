package dispatch

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// pauseMachine is the {NotPausing, Pausing} state machine. It is not safe
// for concurrent use; the Service guards it with its own mutex.
type pauseMachine struct {
	clock       clockwork.Clock
	duration    time.Duration
	minInterval time.Duration

	pausing     bool
	lastPauseAt time.Time
	resumeAt    time.Time
	timer       clockwork.Timer
	// generation invalidates auto-resume callbacks of earlier pauses.
	generation uint64
}

func newPauseMachine(clock clockwork.Clock, duration, minInterval time.Duration) *pauseMachine {
	return &pauseMachine{
		clock:       clock,
		duration:    duration,
		minInterval: minInterval,
	}
}

// canPause reports whether the cooldown since the previous pause has elapsed.
func (p *pauseMachine) canPause() bool {
	if p.lastPauseAt.IsZero() {
		return true
	}
	return p.clock.Since(p.lastPauseAt) >= p.minInterval
}

// enter starts a pause and schedules onExpire with the pause generation.
func (p *pauseMachine) enter(onExpire func(generation uint64)) {
	now := p.clock.Now()
	p.pausing = true
	p.lastPauseAt = now
	p.resumeAt = now.Add(p.duration)
	p.generation++

	gen := p.generation
	p.timer = p.clock.AfterFunc(p.duration, func() { onExpire(gen) })
}

// exit ends the pause and cancels the pending auto-resume.
func (p *pauseMachine) exit() {
	p.pausing = false
	p.resumeAt = time.Time{}
	p.generation++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// remaining returns the time left until auto-resume, 0 when not pausing.
func (p *pauseMachine) remaining() time.Duration {
	if !p.pausing {
		return 0
	}
	if d := p.resumeAt.Sub(p.clock.Now()); d > 0 {
		return d
	}
	return 0
}
