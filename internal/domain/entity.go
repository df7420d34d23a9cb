// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// ServiceState is the externally visible state of the dispatcher.
type ServiceState string

const (
	StateActive   ServiceState = "active"
	StatePaused   ServiceState = "paused"
	StateInactive ServiceState = "inactive"
)

// SystemEvent is one low-level device event delivered by the host.
// The set of implementations is closed: AppOpened, ScrollEvent,
// ScreenTurnedOff and HardwareKey.
type SystemEvent interface {
	// Kind returns a short stable name used in logs and metrics.
	Kind() string
	isSystemEvent()
}

// AppOpened reports a foreground window change.
type AppOpened struct {
	PackageID        string `json:"package_id"`
	EventClass       string `json:"event_class"`
	IsFullscreen     bool   `json:"is_fullscreen"`
	RawSourcePresent bool   `json:"raw_source_present"`
}

// ScrollEvent reports a scroll gesture inside a view.
// MaxScrollExtent is -1 when the host could not measure the view.
type ScrollEvent struct {
	ViewID          string `json:"view_id"`
	EventClass      string `json:"event_class"`
	SourceID        string `json:"source_id"`
	ItemCount       int    `json:"item_count"`
	MaxScrollExtent int    `json:"max_scroll_extent"`
	SourcePresent   bool   `json:"source_present"`
}

// ScreenTurnedOff reports that the display went dark.
type ScreenTurnedOff struct{}

// HardwareKey reports a completed hardware key press.
type HardwareKey struct {
	Code            int   `json:"code"`
	PressDurationMs int64 `json:"press_duration_ms"`
}

func (AppOpened) Kind() string       { return "app_opened" }
func (ScrollEvent) Kind() string     { return "scroll" }
func (ScreenTurnedOff) Kind() string { return "screen_off" }
func (HardwareKey) Kind() string     { return "hardware_key" }

func (AppOpened) isSystemEvent()       {}
func (ScrollEvent) isSystemEvent()     {}
func (ScreenTurnedOff) isSystemEvent() {}
func (HardwareKey) isSystemEvent()     {}

// ExceptionMode selects how an AppExceptionList is interpreted.
type ExceptionMode string

const (
	// ModeIncludeOnly targets only the listed apps.
	ModeIncludeOnly ExceptionMode = "include_only"
	// ModeExclude targets every app except the listed ones.
	ModeExclude ExceptionMode = "exclude"
)

// ParseExceptionMode validates a user supplied mode name.
func ParseExceptionMode(s string) (ExceptionMode, error) {
	switch ExceptionMode(s) {
	case ModeIncludeOnly, ModeExclude:
		return ExceptionMode(s), nil
	}
	return "", fmt.Errorf("unknown exception mode %q (want %s or %s)", s, ModeIncludeOnly, ModeExclude)
}

// AppExceptionList selects which apps the policy applies to.
type AppExceptionList struct {
	Mode    ExceptionMode `json:"mode"`
	Members []string      `json:"members"`
}

// Targets reports whether the policy applies to packageID.
func (l AppExceptionList) Targets(packageID string) bool {
	listed := l.contains(packageID)
	if l.Mode == ModeIncludeOnly {
		return listed
	}
	return !listed
}

func (l AppExceptionList) contains(packageID string) bool {
	for _, m := range l.Members {
		if m == packageID {
			return true
		}
	}
	return false
}

// TimeOfDay is minutes since local midnight, in [0, 1440).
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// ScheduleWindow restricts enforcement to part of the day on selected weekdays.
// A window whose End is not after Start spans midnight.
type ScheduleWindow struct {
	Enabled  bool           `json:"enabled"`
	Start    TimeOfDay      `json:"start"`
	End      TimeOfDay      `json:"end"`
	Weekdays []time.Weekday `json:"weekdays"`
}

// Contains reports whether now falls inside the window. For windows that
// span midnight the weekday check applies to the day the window opened.
func (w ScheduleWindow) Contains(now time.Time) bool {
	minute := TimeOfDay(now.Hour()*60 + now.Minute())
	day := now.Weekday()

	if w.Start < w.End {
		return minute >= w.Start && minute < w.End && w.onDay(day)
	}

	// Spans midnight (or covers the whole day when Start == End).
	if minute >= w.Start {
		return w.onDay(day)
	}
	if minute < w.End {
		return w.onDay((day + 6) % 7)
	}
	return false
}

func (w ScheduleWindow) onDay(d time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, wd := range w.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

// Date is a calendar day in the local time zone.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf returns the local calendar day of t.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsZero reports whether the date was never set.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Start returns local midnight of the day.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// ParseDate parses the YYYY-MM-DD form produced by Date.String.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// SessionState is the durable part of a screen-time session.
// TrackingSinceEpochMs is 0 while idle.
type SessionState struct {
	TrackingSinceEpochMs int64 `json:"tracking_since_epoch_ms"`
	UsedUpMs             int64 `json:"used_up_ms"`
	Day                  Date  `json:"day"`
}

// DimIntensity holds the overlay strengths used when darkening.
type DimIntensity struct {
	Normal float64 `json:"normal"`
	Extra  float64 `json:"extra"`
}

// Clamp limits both intensities to [0,1].
func (d DimIntensity) Clamp() DimIntensity {
	return DimIntensity{Normal: clamp01(d.Normal), Extra: clamp01(d.Extra)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
