// Package dispatch routes system events to the active features and owns the
// pause state machine.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
)

// KeyListener may claim a hardware key event before pause handling.
type KeyListener interface {
	OnKeyEvent(code int, durationMs int64) bool
}

// KeyListenerFunc adapts a function to KeyListener.
type KeyListenerFunc func(code int, durationMs int64) bool

func (f KeyListenerFunc) OnKeyEvent(code int, durationMs int64) bool {
	return f(code, durationMs)
}

// Hooks observe dispatch outcomes. Implementations must not block.
type Hooks interface {
	EventDispatched(kind string, recipients int)
	EventDropped(kind, reason string)
	FeatureFailed(featureID, op string)
	StateChanged(state domain.ServiceState)
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) EventDispatched(string, int)      {}
func (NopHooks) EventDropped(string, string)      {}
func (NopHooks) FeatureFailed(string, string)     {}
func (NopHooks) StateChanged(domain.ServiceState) {}

// Service receives system events and fans them out to active features.
// All entry points are serialized: each event is processed to completion
// before the next one is accepted.
type Service struct {
	config          Config
	registry        *feature.Registry
	imeSource       domain.InputMethodSource
	clock           clockwork.Clock
	logger          *zap.Logger
	ignoredClasses  stringSet
	ignoredPackages stringSet

	mu            sync.Mutex
	hooks         Hooks
	running       bool
	lastPackageID string
	inputMethods  stringSet
	keyListeners  []KeyListener
	pause         *pauseMachine
}

// NewService creates a dispatcher. imeSource may be nil.
func NewService(
	config Config,
	registry *feature.Registry,
	imeSource domain.InputMethodSource,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		config:          config,
		registry:        registry,
		imeSource:       imeSource,
		clock:           clock,
		logger:          logger,
		ignoredClasses:  newStringSet(config.IgnoredEventClasses),
		ignoredPackages: newStringSet(config.IgnoredPackages),
		hooks:           NopHooks{},
		inputMethods:    stringSet{},
		pause:           newPauseMachine(clock, config.PauseDuration, config.MinTimeBetweenPauses),
	}
}

// SetHooks replaces the dispatch observer.
func (s *Service) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		h = NopHooks{}
	}
	s.hooks = h
}

// AddKeyListener registers a listener consulted before pause handling.
func (s *Service) AddKeyListener(l KeyListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyListeners = append(s.keyListeners, l)
}

// Start marks the service running, loads the input-method ignore set and lets
// each active feature evaluate its current condition once.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.lastPackageID = ""
	s.refreshInputMethodsLocked()

	active := s.registry.Active()
	for _, f := range active {
		s.invoke(f.ID(), "start", f.OnStart)
	}

	s.logger.Info("dispatch service started",
		zap.Int("active_features", len(active)),
		zap.Int("input_methods", len(s.inputMethods)))
	s.hooks.StateChanged(s.stateLocked())
}

// Stop stops every active feature, cancels a pending auto-resume and leaves
// the service Inactive. Stopping a stopped service is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	for _, f := range s.registry.Active() {
		s.invoke(f.ID(), "stop", f.OnStop)
	}
	s.pause.exit()
	s.running = false
	s.lastPackageID = ""

	s.logger.Info("dispatch service stopped")
	s.hooks.StateChanged(domain.StateInactive)
}

// CurrentServiceState derives the state on every call.
func (s *Service) CurrentServiceState() domain.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Service) stateLocked() domain.ServiceState {
	switch {
	case !s.running:
		return domain.StateInactive
	case s.pause.pausing:
		return domain.StatePaused
	default:
		return domain.StateActive
	}
}

// PauseRemaining returns the time until auto-resume, 0 when not paused.
func (s *Service) PauseRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause.remaining()
}

// Dispatch routes one event. It never fails: malformed or filtered events are
// dropped and feature failures are contained.
func (s *Service) Dispatch(ev domain.SystemEvent) {
	if ev == nil {
		return
	}

	// Hardware keys are control input and bypass the pause gate so a
	// pause can always be lifted.
	if key, ok := ev.(domain.HardwareKey); ok {
		s.HandleKeyEvent(key.Code, key.PressDurationMs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.stateLocked() {
	case domain.StateInactive:
		s.drop(ev.Kind(), DropInactive)
		return
	case domain.StatePaused:
		s.drop(ev.Kind(), DropPaused)
		return
	}

	switch e := ev.(type) {
	case domain.AppOpened:
		s.dispatchAppOpenedLocked(e)
	case domain.ScrollEvent:
		s.dispatchScrollLocked(e)
	case domain.ScreenTurnedOff:
		s.dispatchScreenOffLocked()
	default:
		s.drop(ev.Kind(), DropUnknownEvent)
	}
}

func (s *Service) dispatchAppOpenedLocked(ev domain.AppOpened) {
	if reason := s.appOpenedDropReason(ev); reason != "" {
		s.drop(ev.Kind(), reason)
		s.logger.Debug("app opened dropped",
			zap.String("package", ev.PackageID),
			zap.String("event_class", ev.EventClass),
			zap.String("reason", reason))
		return
	}
	s.lastPackageID = ev.PackageID

	recipients := s.registry.AppOpened()
	for _, r := range recipients {
		s.invoke(r.ID(), "app_opened", func() {
			r.OnAppOpened(ev.PackageID, ev.IsFullscreen, ev.EventClass)
		})
	}
	s.hooks.EventDispatched(ev.Kind(), len(recipients))
}

func (s *Service) dispatchScrollLocked(ev domain.ScrollEvent) {
	reason, viewID := scrollDropReason(ev)
	if reason != "" {
		s.drop(ev.Kind(), reason)
		return
	}

	recipients := s.registry.Scroll()
	for _, r := range recipients {
		s.invoke(r.ID(), "scroll", func() {
			r.OnScroll(viewID, ev)
		})
	}
	s.hooks.EventDispatched(ev.Kind(), len(recipients))
}

func (s *Service) dispatchScreenOffLocked() {
	recipients := s.registry.ScreenOff()
	for _, r := range recipients {
		s.invoke(r.ID(), "screen_off", r.OnScreenTurnedOff)
	}
	s.hooks.EventDispatched(domain.ScreenTurnedOff{}.Kind(), len(recipients))
}

// HandleKeyEvent offers a key press to registered listeners, then to the
// pause trigger. It reports whether the event was consumed. Listeners run
// without the service lock held and may call back into the service.
func (s *Service) HandleKeyEvent(code int, durationMs int64) bool {
	s.mu.Lock()
	listeners := append([]KeyListener(nil), s.keyListeners...)
	hooks := s.hooks
	s.mu.Unlock()

	for _, l := range listeners {
		if s.offerKey(l, hooks, code, durationMs) {
			return true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code != s.config.PauseKeyCode || durationMs <= s.config.PauseLongPress.Milliseconds() {
		return false
	}
	s.togglePauseLocked()
	return true
}

// TogglePause flips between NotPausing and Pausing. It reports whether the
// service is paused afterwards.
func (s *Service) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.togglePauseLocked()
	return s.pause.pausing
}

func (s *Service) togglePauseLocked() {
	if !s.running {
		s.logger.Debug("pause toggle ignored, service not running")
		return
	}
	if s.pause.pausing {
		s.resumeLocked("manual")
		return
	}
	if !s.pause.canPause() {
		s.logger.Info("pause rejected, too soon after previous pause",
			zap.Duration("min_interval", s.config.MinTimeBetweenPauses))
		return
	}

	s.pause.enter(s.autoResume)
	for _, f := range s.registry.Active() {
		s.invoke(f.ID(), "pause", f.OnPause)
	}
	s.logger.Info("service paused", zap.Duration("duration", s.config.PauseDuration))
	s.hooks.StateChanged(domain.StatePaused)
}

// autoResume runs on the timer goroutine.
func (s *Service) autoResume(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || !s.pause.pausing || s.pause.generation != generation {
		return
	}
	s.resumeLocked("timer")
}

// resumeLocked leaves Pausing and lets features re-evaluate. The dedup
// memory is cleared so the current foreground app is decided again.
func (s *Service) resumeLocked(trigger string) {
	s.pause.exit()
	s.lastPackageID = ""
	for _, f := range s.registry.Active() {
		s.invoke(f.ID(), "start", f.OnStart)
	}
	s.logger.Info("service resumed", zap.String("trigger", trigger))
	s.hooks.StateChanged(domain.StateActive)
}

// Pump dispatches events from ch in arrival order until ch is closed or ctx
// is canceled, then stops the service.
func (s *Service) Pump(ctx context.Context, ch <-chan domain.SystemEvent) error {
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("event pump stopping")
			return ctx.Err()

		case ev, ok := <-ch:
			if !ok {
				s.logger.Info("event stream closed")
				return nil
			}
			s.Dispatch(ev)
		}
	}
}

func (s *Service) refreshInputMethodsLocked() {
	s.inputMethods = stringSet{}
	if s.imeSource == nil {
		return
	}
	ids, err := s.imeSource.EnabledInputMethods()
	if err != nil {
		s.logger.Warn("failed to list input methods", zap.Error(err))
		return
	}
	s.inputMethods = newStringSet(ids)
}

func (s *Service) drop(kind, reason string) {
	s.hooks.EventDropped(kind, reason)
}

func (s *Service) offerKey(l KeyListener, hooks Hooks, code int, durationMs int64) (claimed bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("key listener failed",
				zap.Int("code", code),
				zap.Any("panic", r))
			hooks.FeatureFailed("key_listener", "key")
			claimed = false
		}
	}()
	return l.OnKeyEvent(code, durationMs)
}

// invoke runs one feature callback, containing any panic so the remaining
// features still receive the event.
func (s *Service) invoke(featureID, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("feature callback failed",
				zap.String("feature", featureID),
				zap.String("op", op),
				zap.Any("panic", r))
			s.hooks.FeatureFailed(featureID, op)
		}
	}()
	fn()
}
