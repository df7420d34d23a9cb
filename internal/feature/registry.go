package feature

import (
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Registry holds features in registration order and, for each capability,
// the subset of active features implementing it.
// The subsets are rebuilt on every registration or toggle, so a reader
// never sees an intersection computed before the latest toggle.
type Registry struct {
	store  domain.SettingsStore
	logger *zap.Logger

	mu       sync.RWMutex
	features []Feature
	caps     map[string]CapabilitySet
	active   map[string]bool
	view     view
}

// view is an immutable snapshot of the active subsets.
type view struct {
	active     []Feature
	appOpened  []AppOpenedResponder
	scroll     []ScrollResponder
	screenOff  []ScreenOffResponder
	scheduled  []Scheduled
	exceptions []ExceptionAware
	trackers   []ScreenTimeTracker
}

// NewRegistry creates an empty registry. Active flags are persisted in
// store when it is non-nil.
func NewRegistry(store domain.SettingsStore, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		caps:   make(map[string]CapabilitySet),
		active: make(map[string]bool),
	}
}

// NewRegistryWithFeatures creates a registry with all features active (for testing).
func NewRegistryWithFeatures(features ...Feature) *Registry {
	r := NewRegistry(nil, zap.NewNop())
	for _, f := range features {
		_ = r.Register(f, true)
	}
	return r
}

// ActiveKey is the settings key holding a feature's active flag.
func ActiveKey(id string) string {
	return "feature." + id + ".enabled"
}

// Register adds f. Its active flag is read from the store, falling back to
// defaultActive when nothing was persisted.
func (r *Registry) Register(f Feature, defaultActive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := f.ID()
	if _, exists := r.caps[id]; exists {
		return fmt.Errorf("feature already registered: %s", id)
	}

	active := defaultActive
	if r.store != nil {
		raw, ok, err := r.store.Get(ActiveKey(id))
		if err != nil {
			r.logger.Warn("failed to read feature toggle, using default",
				zap.String("feature", id),
				zap.Bool("active", defaultActive),
				zap.Error(err))
		} else if ok {
			if v, perr := strconv.ParseBool(raw); perr == nil {
				active = v
			}
		}
	}

	r.features = append(r.features, f)
	r.caps[id] = CapabilitiesOf(f)
	r.active[id] = active
	r.rebuildLocked()

	r.logger.Debug("feature registered",
		zap.String("feature", id),
		zap.Stringer("capabilities", r.caps[id]),
		zap.Bool("active", active))
	return nil
}

// SetActive toggles a feature and persists the flag.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.caps[id]; !ok {
		return fmt.Errorf("feature not found: %s", id)
	}
	r.active[id] = active
	r.rebuildLocked()

	if r.store != nil {
		if err := r.store.Set(ActiveKey(id), strconv.FormatBool(active)); err != nil {
			return fmt.Errorf("failed to persist toggle for %s: %w", id, err)
		}
	}
	return nil
}

// IsActive reports whether the feature is active.
func (r *Registry) IsActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

// Get returns a feature by ID.
func (r *Registry) Get(id string) (Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.features {
		if f.ID() == id {
			return f, true
		}
	}
	return nil, false
}

// Capabilities returns the capability set recorded for id.
func (r *Registry) Capabilities(id string) CapabilitySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[id]
}

// All returns every registered feature in registration order.
func (r *Registry) All() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

// List returns all feature IDs.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.features))
	for i, f := range r.features {
		ids[i] = f.ID()
	}
	return ids
}

// The accessors below return shared immutable slices; callers must not modify them.

func (r *Registry) Active() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.active
}

func (r *Registry) AppOpened() []AppOpenedResponder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.appOpened
}

func (r *Registry) Scroll() []ScrollResponder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.scroll
}

func (r *Registry) ScreenOff() []ScreenOffResponder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.screenOff
}

func (r *Registry) Scheduled() []Scheduled {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.scheduled
}

func (r *Registry) ExceptionAware() []ExceptionAware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.exceptions
}

func (r *Registry) ScreenTimeTrackers() []ScreenTimeTracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view.trackers
}

// rebuildLocked recomputes every capability subset from scratch.
func (r *Registry) rebuildLocked() {
	var v view
	for _, f := range r.features {
		if !r.active[f.ID()] {
			continue
		}
		v.active = append(v.active, f)

		caps := r.caps[f.ID()]
		if caps.Has(RespondsToAppOpened) {
			v.appOpened = append(v.appOpened, f.(AppOpenedResponder))
		}
		if caps.Has(RespondsToScroll) {
			v.scroll = append(v.scroll, f.(ScrollResponder))
		}
		if caps.Has(RespondsToScreenOff) {
			v.screenOff = append(v.screenOff, f.(ScreenOffResponder))
		}
		if caps.Has(HasSchedule) {
			v.scheduled = append(v.scheduled, f.(Scheduled))
		}
		if caps.Has(HasAppExceptions) {
			v.exceptions = append(v.exceptions, f.(ExceptionAware))
		}
		if caps.Has(TracksScreenTime) {
			v.trackers = append(v.trackers, f.(ScreenTimeTracker))
		}
	}
	r.view = v
}
