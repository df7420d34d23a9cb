// Package feature defines the capability interfaces a feature can implement
// and the Registry that keeps, per capability, the active features
// implementing it.
package feature

import (
	"strings"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Feature is the base every feature implements.
type Feature interface {
	// ID returns a unique, stable identifier (e.g. "grayscale").
	ID() string

	// Name returns a human-readable name for display.
	Name() string

	// OnStart is called when the dispatcher starts, letting the feature
	// evaluate its current condition once.
	OnStart()

	// OnPause forces the feature out of any transient effect while a pause
	// is active. Active membership is not changed.
	OnPause()

	// OnStop is called when the dispatcher stops.
	OnStop()
}

// AppOpenedResponder reacts to foreground app changes.
type AppOpenedResponder interface {
	Feature
	OnAppOpened(packageID string, isFullscreen bool, eventClass string)
}

// ScrollResponder reacts to scroll gestures. scrollViewID is stable for the
// same view across events.
type ScrollResponder interface {
	Feature
	OnScroll(scrollViewID string, ev domain.ScrollEvent)
}

// ScreenOffResponder reacts to the display turning off.
type ScreenOffResponder interface {
	Feature
	OnScreenTurnedOff()
}

// Scheduled features only enforce inside a schedule window.
type Scheduled interface {
	Feature
	Schedule() domain.ScheduleWindow
}

// ExceptionAware features target apps through an exception list.
type ExceptionAware interface {
	Feature
	ExceptionList() domain.AppExceptionList
}

// ScreenTimeTracker features account daily color time.
type ScreenTimeTracker interface {
	Feature
	// ScreenTimeToday returns today's accumulated time in milliseconds.
	ScreenTimeToday() int64
	// DailyBudgetMs returns the configured budget, 0 meaning none.
	DailyBudgetMs() int64
}

// Capability names one of the optional interfaces above.
type Capability uint8

const (
	RespondsToAppOpened Capability = 1 << iota
	RespondsToScroll
	RespondsToScreenOff
	HasSchedule
	HasAppExceptions
	TracksScreenTime
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{RespondsToAppOpened, "app_opened"},
	{RespondsToScroll, "scroll"},
	{RespondsToScreenOff, "screen_off"},
	{HasSchedule, "schedule"},
	{HasAppExceptions, "app_exceptions"},
	{TracksScreenTime, "screen_time"},
}

// CapabilitySet is a bitmask of capabilities.
type CapabilitySet Capability

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	return Capability(s)&c != 0
}

func (s CapabilitySet) String() string {
	var names []string
	for _, cn := range capabilityNames {
		if s.Has(cn.c) {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, ",")
}

// CapabilitiesOf returns the explicit capability set of f.
func CapabilitiesOf(f Feature) CapabilitySet {
	var c Capability
	if _, ok := f.(AppOpenedResponder); ok {
		c |= RespondsToAppOpened
	}
	if _, ok := f.(ScrollResponder); ok {
		c |= RespondsToScroll
	}
	if _, ok := f.(ScreenOffResponder); ok {
		c |= RespondsToScreenOff
	}
	if _, ok := f.(Scheduled); ok {
		c |= HasSchedule
	}
	if _, ok := f.(ExceptionAware); ok {
		c |= HasAppExceptions
	}
	if _, ok := f.(ScreenTimeTracker); ok {
		c |= TracksScreenTime
	}
	return CapabilitySet(c)
}
