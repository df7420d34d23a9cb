// Package settings loads user policy settings from the durable SettingsStore
// and serves them to the decision path as immutable snapshots.
package settings

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// DefaultKnownFullscreen lists apps that under-report fullscreen state on
// some vendors' builds. They are treated as fullscreen regardless of the flag.
var DefaultKnownFullscreen = []string{
	"com.google.android.youtube",
	"com.instagram.android",
	"com.zhiliaoapp.musically",
	"com.ss.android.ugc.trill",
}

// Settings is one consistent view of every user-configurable value.
type Settings struct {
	Exceptions          domain.AppExceptionList `json:"exceptions"`
	IgnoreNonFullscreen bool                    `json:"ignore_non_fullscreen"`
	DailyColorBudgetMs  int64                   `json:"daily_color_budget_ms"`
	// Intensity.Normal is used while no budget is set (always dark),
	// Intensity.Extra once a non-zero budget is used up.
	Intensity       domain.DimIntensity   `json:"intensity"`
	Schedule        domain.ScheduleWindow `json:"schedule"`
	KnownFullscreen []string              `json:"known_fullscreen"`
}

// Default returns the settings used before the user configures anything.
func Default() Settings {
	return Settings{
		Exceptions:         domain.AppExceptionList{Mode: domain.ModeIncludeOnly},
		DailyColorBudgetMs: 0,
		Intensity:          domain.DimIntensity{Normal: 0.6, Extra: 0.85},
		KnownFullscreen:    append([]string(nil), DefaultKnownFullscreen...),
	}
}

// IsKnownFullscreen reports whether packageID is on the known-fullscreen list.
func (s Settings) IsKnownFullscreen(packageID string) bool {
	for _, p := range s.KnownFullscreen {
		if p == packageID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate slices safely.
func (s Settings) Clone() Settings {
	c := s
	c.Exceptions.Members = append([]string(nil), s.Exceptions.Members...)
	c.Schedule.Weekdays = append(c.Schedule.Weekdays[:0:0], s.Schedule.Weekdays...)
	c.KnownFullscreen = append([]string(nil), s.KnownFullscreen...)
	return c
}

// Validate rejects values the engine cannot act on.
func (s Settings) Validate() error {
	if _, err := domain.ParseExceptionMode(string(s.Exceptions.Mode)); err != nil {
		return err
	}
	if s.DailyColorBudgetMs < 0 {
		return fmt.Errorf("daily budget must not be negative: %d", s.DailyColorBudgetMs)
	}
	if s.Schedule.Start < 0 || s.Schedule.Start >= 24*60 || s.Schedule.End < 0 || s.Schedule.End >= 24*60 {
		return fmt.Errorf("schedule bounds out of range: %s-%s", s.Schedule.Start, s.Schedule.End)
	}
	return nil
}

// Key is a typed settings key stored as JSON.
type Key[T any] struct {
	Name string
}

// Get returns the stored value or def when absent or undecodable.
func (k Key[T]) Get(store domain.SettingsStore, def T) (T, error) {
	raw, ok, err := store.Get(k.Name)
	if err != nil {
		return def, fmt.Errorf("failed to read %s: %w", k.Name, err)
	}
	if !ok {
		return def, nil
	}
	var v T
	if err := sonic.UnmarshalString(raw, &v); err != nil {
		return def, fmt.Errorf("failed to decode %s: %w", k.Name, err)
	}
	return v, nil
}

// Set stores v.
func (k Key[T]) Set(store domain.SettingsStore, v T) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", k.Name, err)
	}
	return store.Set(k.Name, string(data))
}

// Keys under which the engine settings are persisted.
var (
	ExceptionsKey          = Key[domain.AppExceptionList]{Name: "grayscale.exceptions"}
	IgnoreNonFullscreenKey = Key[bool]{Name: "grayscale.ignore_non_fullscreen"}
	DailyBudgetKey         = Key[int64]{Name: "grayscale.daily_color_budget_ms"}
	IntensityKey           = Key[domain.DimIntensity]{Name: "grayscale.intensity"}
	ScheduleKey            = Key[domain.ScheduleWindow]{Name: "grayscale.schedule"}
	KnownFullscreenKey     = Key[[]string]{Name: "grayscale.known_fullscreen"}
)

// Provider serves Settings snapshots without I/O and writes updates through
// to the store.
type Provider struct {
	store  domain.SettingsStore
	logger *zap.Logger

	current atomic.Pointer[Settings]
	writeMu sync.Mutex
}

// NewProvider creates a provider holding s without reading a store (for testing).
func NewProvider(s Settings) *Provider {
	p := &Provider{logger: zap.NewNop()}
	p.current.Store(&s)
	return p
}

// Load reads every key from store. Unreadable keys keep their default and
// are logged.
func Load(store domain.SettingsStore, logger *zap.Logger) *Provider {
	p := &Provider{store: store, logger: logger}
	s := p.read()
	p.current.Store(&s)
	return p
}

// Snapshot returns the current settings. The returned value must be treated
// as read-only.
func (p *Provider) Snapshot() Settings {
	return *p.current.Load()
}

// Reload re-reads the store, picking up changes written by another process.
func (p *Provider) Reload() {
	if p.store == nil {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	s := p.read()
	p.current.Store(&s)
}

// Update applies fn to a copy of the current settings, persists the result
// and publishes it. Nothing is published if validation or persisting fails.
func (p *Provider) Update(fn func(*Settings)) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	next := p.Snapshot().Clone()
	fn(&next)
	next.Intensity = next.Intensity.Clamp()
	if err := next.Validate(); err != nil {
		return err
	}
	if p.store != nil {
		if err := write(p.store, next); err != nil {
			return err
		}
	}
	p.current.Store(&next)
	return nil
}

func (p *Provider) read() Settings {
	def := Default()
	s := def

	warn := func(err error) {
		if err != nil {
			p.logger.Warn("failed to load setting, using default", zap.Error(err))
		}
	}

	var err error
	s.Exceptions, err = ExceptionsKey.Get(p.store, def.Exceptions)
	warn(err)
	s.IgnoreNonFullscreen, err = IgnoreNonFullscreenKey.Get(p.store, def.IgnoreNonFullscreen)
	warn(err)
	s.DailyColorBudgetMs, err = DailyBudgetKey.Get(p.store, def.DailyColorBudgetMs)
	warn(err)
	s.Intensity, err = IntensityKey.Get(p.store, def.Intensity)
	warn(err)
	s.Schedule, err = ScheduleKey.Get(p.store, def.Schedule)
	warn(err)
	s.KnownFullscreen, err = KnownFullscreenKey.Get(p.store, def.KnownFullscreen)
	warn(err)

	s.Intensity = s.Intensity.Clamp()
	return s
}

// batchStore is implemented by stores that can apply several keys atomically.
type batchStore interface {
	SetAll(values map[string]string) error
}

func write(store domain.SettingsStore, s Settings) error {
	values := make(map[string]string)
	enc := func(name string, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		values[name] = string(data)
		return nil
	}

	fields := []struct {
		name string
		v    any
	}{
		{ExceptionsKey.Name, s.Exceptions},
		{IgnoreNonFullscreenKey.Name, s.IgnoreNonFullscreen},
		{DailyBudgetKey.Name, s.DailyColorBudgetMs},
		{IntensityKey.Name, s.Intensity},
		{ScheduleKey.Name, s.Schedule},
		{KnownFullscreenKey.Name, s.KnownFullscreen},
	}
	for _, f := range fields {
		if err := enc(f.name, f.v); err != nil {
			return err
		}
	}

	if b, ok := store.(batchStore); ok {
		return b.SetAll(values)
	}
	for _, f := range fields {
		if err := store.Set(f.name, values[f.name]); err != nil {
			return err
		}
	}
	return nil
}
