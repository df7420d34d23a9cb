// Package grayscale implements the decision engine that shows or hides the
// darkening overlay for the foreground app and accounts its color time.
package grayscale

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
	"github.com/eliteGoblin/focusd/grayd/internal/screentime"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
)

// FeatureID identifies the engine in the feature registry and session store.
const FeatureID = "grayscale"

// SettingsSource yields one consistent settings snapshot per call.
type SettingsSource interface {
	Snapshot() settings.Settings
}

// TransitionObserver is notified after every darken transition.
type TransitionObserver interface {
	DarkenTransition(featureID string, dark bool)
}

// Engine decides per foreground app whether the overlay is shown.
// Overlay calls happen only when isCurrentlyDark changes.
type Engine struct {
	settings SettingsSource
	session  *screentime.Session
	overlay  domain.DisplayOverlay
	clock    domain.Clock
	observer TransitionObserver
	logger   *zap.Logger

	mu                   sync.Mutex
	isCurrentlyDark      bool
	lastTrackedPackageID string
}

// NewEngine creates a grayscale decision engine.
func NewEngine(
	src SettingsSource,
	session *screentime.Session,
	overlay domain.DisplayOverlay,
	clock domain.Clock,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		settings: src,
		session:  session,
		overlay:  overlay,
		clock:    clock,
		logger:   logger,
	}
}

// SetObserver registers an observer for darken transitions.
func (e *Engine) SetObserver(o TransitionObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

func (e *Engine) ID() string {
	return FeatureID
}

func (e *Engine) Name() string {
	return "Grayscale"
}

// OnStart re-evaluates with a neutral event so the decision is correct
// right after (re)start instead of waiting for the next real event.
func (e *Engine) OnStart() {
	e.OnAppOpened("", false, "")
}

// OnPause lifts the overlay without touching the tracking session.
func (e *Engine) OnPause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isCurrentlyDark || e.overlay.IsVisible() {
		e.transitionLocked(false, 0)
	}
}

// OnStop closes any open tracking interval, lifts the overlay and clears
// the decision state.
func (e *Engine) OnStop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.StopAndAccumulate()
	e.lastTrackedPackageID = ""
	if e.isCurrentlyDark || e.overlay.IsVisible() {
		e.transitionLocked(false, 0)
	}
}

// OnScreenTurnedOff always closes the open tracking interval.
func (e *Engine) OnScreenTurnedOff() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.StopAndAccumulate()
	e.logger.Debug("screen off, tracking closed",
		zap.String("last_package", e.lastTrackedPackageID),
		zap.Int64("total_ms", e.session.CurrentTotal()))
}

// OnAppOpened decides for the new foreground app.
func (e *Engine) OnAppOpened(packageID string, isFullscreen bool, eventClass string) {
	s := e.settings.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.Schedule.Enabled && !s.Schedule.Contains(e.clock.Now()) {
		e.logger.Debug("outside schedule window",
			zap.String("package", packageID),
			zap.Stringer("start", s.Schedule.Start),
			zap.Stringer("end", s.Schedule.End))
		e.releaseLocked()
		return
	}

	targeted := s.Exceptions.Targets(packageID)
	fullscreen := isFullscreen || s.IsKnownFullscreen(packageID)

	// An explicitly targeted app bypasses the fullscreen check.
	if !targeted && s.IgnoreNonFullscreen && !fullscreen {
		if e.trackingOtherLocked(packageID) {
			e.session.StopAndAccumulate()
			e.lastTrackedPackageID = ""
		}
		e.logger.Debug("ignoring non-fullscreen app",
			zap.String("package", packageID),
			zap.String("event_class", eventClass))
		return
	}

	if !targeted {
		e.releaseLocked()
		return
	}

	if e.trackingOtherLocked(packageID) {
		e.session.StopAndAccumulate()
	}
	e.session.StartTracking()
	e.lastTrackedPackageID = packageID

	total := e.session.CurrentTotal()
	dark := ShouldDarken(total, s.DailyColorBudgetMs)
	if dark == e.isCurrentlyDark {
		return
	}

	intensity := s.Intensity.Normal
	if s.DailyColorBudgetMs > 0 {
		intensity = s.Intensity.Extra
	}
	e.logger.Info("darken transition",
		zap.String("package", packageID),
		zap.Bool("dark", dark),
		zap.Int64("total_ms", total),
		zap.Int64("budget_ms", s.DailyColorBudgetMs))
	e.transitionLocked(dark, intensity)
}

// ShouldDarken reports whether color time total has reached budget.
// A zero budget means no color time at all.
func ShouldDarken(totalMs, budgetMs int64) bool {
	return budgetMs == 0 || totalMs >= budgetMs
}

// trackingOtherLocked reports whether an interval is open for an app other
// than packageID. The empty package opened by OnStart counts as an app.
func (e *Engine) trackingOtherLocked(packageID string) bool {
	return e.session.IsTracking() && e.lastTrackedPackageID != packageID
}

// releaseLocked closes tracking and goes light: untracked apps never show the overlay.
func (e *Engine) releaseLocked() {
	e.session.StopAndAccumulate()
	e.lastTrackedPackageID = ""
	if e.isCurrentlyDark {
		e.transitionLocked(false, 0)
	}
}

// transitionLocked updates the in-memory flag before the overlay call: the
// flag reflects intent, so a failed render is logged but not retried.
func (e *Engine) transitionLocked(dark bool, intensity float64) {
	e.isCurrentlyDark = dark

	var err error
	if dark {
		err = e.overlay.Show(intensity)
	} else {
		err = e.overlay.Hide()
	}
	if err != nil {
		e.logger.Warn("overlay update failed",
			zap.Bool("dark", dark),
			zap.Float64("intensity", intensity),
			zap.Error(err))
	}

	if e.observer != nil {
		e.observer.DarkenTransition(FeatureID, dark)
	}
}

// IsDark reports the engine's intended overlay state.
func (e *Engine) IsDark() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isCurrentlyDark
}

// LastTrackedPackage returns the package whose time is being accounted.
func (e *Engine) LastTrackedPackage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTrackedPackageID
}

// Schedule implements feature.Scheduled.
func (e *Engine) Schedule() domain.ScheduleWindow {
	return e.settings.Snapshot().Schedule
}

// ExceptionList implements feature.ExceptionAware.
func (e *Engine) ExceptionList() domain.AppExceptionList {
	return e.settings.Snapshot().Exceptions
}

// ScreenTimeToday implements feature.ScreenTimeTracker.
func (e *Engine) ScreenTimeToday() int64 {
	return e.session.CurrentTotal()
}

// DailyBudgetMs implements feature.ScreenTimeTracker.
func (e *Engine) DailyBudgetMs() int64 {
	return e.settings.Snapshot().DailyColorBudgetMs
}

// Ensure Engine implements its capabilities.
var (
	_ feature.AppOpenedResponder = (*Engine)(nil)
	_ feature.ScreenOffResponder = (*Engine)(nil)
	_ feature.Scheduled          = (*Engine)(nil)
	_ feature.ExceptionAware     = (*Engine)(nil)
	_ feature.ScreenTimeTracker  = (*Engine)(nil)
)
