// Package clock adapts clockwork clocks to domain.Clock.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Clock implements domain.Clock on top of a clockwork.Clock so tests can
// drive time with clockwork.FakeClock.
type Clock struct {
	clockwork.Clock
	loc *time.Location
}

// New wraps c, reporting calendar dates in the local time zone.
func New(c clockwork.Clock) *Clock {
	return &Clock{Clock: c, loc: time.Local}
}

// NewInLocation wraps c, reporting calendar dates in loc.
func NewInLocation(c clockwork.Clock, loc *time.Location) *Clock {
	return &Clock{Clock: c, loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return c.Clock.Now().In(c.loc)
}

// NowEpochMs returns milliseconds since the Unix epoch.
func (c *Clock) NowEpochMs() int64 {
	return c.Clock.Now().UnixMilli()
}

// Today returns the calendar date in the clock's location.
func (c *Clock) Today() domain.Date {
	return domain.DateOf(c.Now())
}

// Ensure Clock implements domain.Clock.
var _ domain.Clock = (*Clock)(nil)
