package telemetry

import (
	"strconv"

	"github.com/eliteGoblin/focusd/grayd/internal/dispatch"
	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/grayscale"
)

var allStates = []domain.ServiceState{
	domain.StateActive,
	domain.StatePaused,
	domain.StateInactive,
}

// Hooks records dispatch outcomes and darken transitions.
type Hooks struct {
	m *Metrics
}

// NewHooks creates hooks writing to m. The service starts out Inactive.
func NewHooks(m *Metrics) *Hooks {
	h := &Hooks{m: m}
	h.StateChanged(domain.StateInactive)
	return h
}

func (h *Hooks) EventDispatched(kind string, _ int) {
	h.m.EventsDispatched.WithLabelValues(kind).Inc()
}

func (h *Hooks) EventDropped(kind, reason string) {
	h.m.EventsDropped.WithLabelValues(kind, reason).Inc()
}

func (h *Hooks) FeatureFailed(featureID, op string) {
	h.m.FeatureFailures.WithLabelValues(featureID, op).Inc()
}

func (h *Hooks) StateChanged(state domain.ServiceState) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		h.m.ServiceState.WithLabelValues(string(s)).Set(v)
	}
}

// DarkenTransition implements grayscale.TransitionObserver.
func (h *Hooks) DarkenTransition(featureID string, dark bool) {
	direction := "light"
	if dark {
		direction = "dark"
	}
	h.m.DarkenTransitions.WithLabelValues(featureID, direction).Inc()
}

// OnKeyEvent counts hardware keys by code. It never claims the key.
func (h *Hooks) OnKeyEvent(code int, _ int64) bool {
	h.m.HardwareKeys.WithLabelValues(strconv.Itoa(code)).Inc()
	return false
}

var (
	_ dispatch.Hooks               = (*Hooks)(nil)
	_ dispatch.KeyListener         = (*Hooks)(nil)
	_ grayscale.TransitionObserver = (*Hooks)(nil)
)
