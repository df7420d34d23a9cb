package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
)

// recordingFeature implements every event capability and records calls.
type recordingFeature struct {
	id string

	mu     sync.Mutex
	calls  []string
	apps   []string
	scroll []string
}

func newRecordingFeature(id string) *recordingFeature {
	return &recordingFeature{id: id}
}

func (f *recordingFeature) ID() string   { return f.id }
func (f *recordingFeature) Name() string { return f.id }
func (f *recordingFeature) OnStart()     { f.record("start") }
func (f *recordingFeature) OnPause()     { f.record("pause") }
func (f *recordingFeature) OnStop()      { f.record("stop") }

func (f *recordingFeature) OnAppOpened(packageID string, _ bool, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "app")
	f.apps = append(f.apps, packageID)
}

func (f *recordingFeature) OnScroll(scrollViewID string, _ domain.ScrollEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "scroll")
	f.scroll = append(f.scroll, scrollViewID)
}

func (f *recordingFeature) OnScreenTurnedOff() { f.record("screen_off") }

func (f *recordingFeature) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *recordingFeature) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *recordingFeature) openedApps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.apps...)
}

// panickingFeature fails on every app event.
type panickingFeature struct{ recordingFeature }

func (f *panickingFeature) OnAppOpened(string, bool, string) { panic("boom") }

// mockHooks records hook notifications.
type mockHooks struct {
	mu         sync.Mutex
	dispatched map[string]int
	dropped    map[string]int
	failed     []string
	states     []domain.ServiceState
}

func newMockHooks() *mockHooks {
	return &mockHooks{dispatched: map[string]int{}, dropped: map[string]int{}}
}

func (h *mockHooks) EventDispatched(kind string, _ int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatched[kind]++
}

func (h *mockHooks) EventDropped(_, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped[reason]++
}

func (h *mockHooks) FeatureFailed(featureID, op string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, featureID+"/"+op)
}

func (h *mockHooks) StateChanged(state domain.ServiceState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *mockHooks) droppedFor(reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped[reason]
}

// mockInputMethods is a static InputMethodSource.
type mockInputMethods struct {
	ids []string
	err error
}

func (m *mockInputMethods) EnabledInputMethods() ([]string, error) {
	return m.ids, m.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PauseDuration = 5 * time.Minute
	cfg.MinTimeBetweenPauses = 30 * time.Minute
	return cfg
}

type fixture struct {
	svc   *Service
	clock *clockwork.FakeClock
	hooks *mockHooks
	reg   *feature.Registry
}

func newFixture(t *testing.T, ime domain.InputMethodSource, features ...feature.Feature) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local))
	reg := feature.NewRegistryWithFeatures(features...)
	svc := NewService(testConfig(), reg, ime, clock, zap.NewNop())
	hooks := newMockHooks()
	svc.SetHooks(hooks)
	t.Cleanup(svc.Stop)
	return &fixture{svc: svc, clock: clock, hooks: hooks, reg: reg}
}

func appOpened(pkg string) domain.AppOpened {
	return domain.AppOpened{PackageID: pkg, EventClass: pkg + ".MainActivity", RawSourcePresent: true}
}

func longPress() (int, int64) {
	return KeyCodeVolumeDown, 2001
}

func TestService_Lifecycle(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)

	assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())

	fx.svc.Start()
	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())
	assert.Equal(t, 1, f.count("start"))

	// Second start is a no-op.
	fx.svc.Start()
	assert.Equal(t, 1, f.count("start"))

	fx.svc.Stop()
	assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())
	assert.Equal(t, 1, f.count("stop"))

	fx.svc.Stop()
	assert.Equal(t, 1, f.count("stop"))
}

func TestService_DropsEventsWhileInactive(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)

	fx.svc.Dispatch(appOpened("x"))
	fx.svc.Dispatch(domain.ScreenTurnedOff{})

	assert.Empty(t, f.openedApps())
	assert.Equal(t, 2, fx.hooks.droppedFor(DropInactive))
}

func TestService_AppOpenedStrictDedup(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	for _, pkg := range []string{"x", "x", "y", "x", "x"} {
		fx.svc.Dispatch(appOpened(pkg))
	}

	assert.Equal(t, []string{"x", "y", "x"}, f.openedApps())
	assert.Equal(t, 2, fx.hooks.droppedFor(DropRepeatPackage))
}

func TestService_AppOpenedFilters(t *testing.T) {
	tests := []struct {
		name   string
		event  domain.AppOpened
		reason string
	}{
		{
			name:   "empty package",
			event:  domain.AppOpened{EventClass: "android.widget.FrameLayout"},
			reason: DropEmptyPackage,
		},
		{
			name:   "soft input window",
			event:  domain.AppOpened{PackageID: "com.example.keyboard", EventClass: "android.inputmethodservice.SoftInputWindow"},
			reason: DropIgnoredClass,
		},
		{
			name:   "volume dialog",
			event:  domain.AppOpened{PackageID: "com.vendor.ui", EventClass: "com.android.systemui.volume.VolumeDialogImpl$CustomDialog"},
			reason: DropIgnoredClass,
		},
		{
			name:   "recents",
			event:  domain.AppOpened{PackageID: "com.android.launcher3", EventClass: "com.android.quickstep.RecentsActivity"},
			reason: DropIgnoredClass,
		},
		{
			name:   "system ui package",
			event:  domain.AppOpened{PackageID: "com.android.systemui", EventClass: "android.widget.FrameLayout"},
			reason: DropIgnoredPackage,
		},
		{
			name:   "enabled input method",
			event:  domain.AppOpened{PackageID: "com.google.android.inputmethod.latin", EventClass: "android.widget.LinearLayout"},
			reason: DropInputMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecordingFeature("rec")
			ime := &mockInputMethods{ids: []string{"com.google.android.inputmethod.latin"}}
			fx := newFixture(t, ime, f)
			fx.svc.Start()

			fx.svc.Dispatch(tt.event)

			assert.Empty(t, f.openedApps())
			assert.Equal(t, 1, fx.hooks.droppedFor(tt.reason))
		})
	}
}

func TestService_FilteredEventDoesNotResetDedup(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	fx.svc.Dispatch(appOpened("x"))
	fx.svc.Dispatch(domain.AppOpened{PackageID: "com.android.systemui", EventClass: "com.android.systemui.volume.VolumeDialogImpl"})
	fx.svc.Dispatch(appOpened("x"))

	assert.Equal(t, []string{"x"}, f.openedApps())
}

func TestService_InputMethodSourceError(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, &mockInputMethods{err: errors.New("unavailable")}, f)

	fx.svc.Start()
	fx.svc.Dispatch(appOpened("x"))

	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())
	assert.Equal(t, []string{"x"}, f.openedApps())
}

func TestService_ScrollFiltering(t *testing.T) {
	tests := []struct {
		name   string
		event  domain.ScrollEvent
		viewID string
		reason string
	}{
		{
			name:   "with view id",
			event:  domain.ScrollEvent{EventClass: "androidx.recyclerview.widget.RecyclerView", ViewID: "feed", ItemCount: 20, MaxScrollExtent: 900, SourcePresent: true},
			viewID: "androidx.recyclerview.widget.RecyclerView:feed",
		},
		{
			name:   "falls back to source id",
			event:  domain.ScrollEvent{EventClass: "android.widget.ListView", SourceID: "42", ItemCount: 3, MaxScrollExtent: -1, SourcePresent: true},
			viewID: "android.widget.ListView:42",
		},
		{
			name:   "no source",
			event:  domain.ScrollEvent{EventClass: "android.widget.ListView", ViewID: "list", ItemCount: 3, SourcePresent: false},
			reason: DropNoScrollSource,
		},
		{
			name:   "empty and unbounded",
			event:  domain.ScrollEvent{EventClass: "android.widget.ListView", ViewID: "list", ItemCount: 0, MaxScrollExtent: -1, SourcePresent: true},
			reason: DropEmptyScroll,
		},
		{
			name:   "no identifiers",
			event:  domain.ScrollEvent{EventClass: "android.widget.ListView", ItemCount: 3, MaxScrollExtent: 10, SourcePresent: true},
			reason: DropNoScrollViewID,
		},
		{
			name:   "no class",
			event:  domain.ScrollEvent{ViewID: "list", ItemCount: 3, MaxScrollExtent: 10, SourcePresent: true},
			reason: DropNoScrollViewID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecordingFeature("rec")
			fx := newFixture(t, nil, f)
			fx.svc.Start()

			fx.svc.Dispatch(tt.event)

			if tt.reason != "" {
				assert.Equal(t, 0, f.count("scroll"))
				assert.Equal(t, 1, fx.hooks.droppedFor(tt.reason))
				return
			}
			require.Equal(t, 1, f.count("scroll"))
			assert.Equal(t, tt.viewID, f.scroll[0])
		})
	}
}

func TestService_ScreenOffAlwaysFansOut(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	fx.svc.Dispatch(domain.ScreenTurnedOff{})
	fx.svc.Dispatch(domain.ScreenTurnedOff{})

	assert.Equal(t, 2, f.count("screen_off"))
}

func TestService_FeatureFailureIsolated(t *testing.T) {
	bad := &panickingFeature{recordingFeature{id: "bad"}}
	good := newRecordingFeature("good")
	fx := newFixture(t, nil, bad, good)
	fx.svc.Start()

	assert.NotPanics(t, func() {
		fx.svc.Dispatch(appOpened("x"))
	})

	assert.Equal(t, []string{"x"}, good.openedApps())
	assert.Equal(t, []string{"bad/app_opened"}, fx.hooks.failed)
}

func TestService_InactiveFeatureNotDispatched(t *testing.T) {
	on := newRecordingFeature("on")
	off := newRecordingFeature("off")
	fx := newFixture(t, nil, on, off)
	require.NoError(t, fx.reg.SetActive("off", false))
	fx.svc.Start()

	fx.svc.Dispatch(appOpened("x"))

	assert.Equal(t, []string{"x"}, on.openedApps())
	assert.Empty(t, off.openedApps())
	assert.Equal(t, 0, off.count("start"))
}

func TestHandleKeyEvent(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		durationMs int64
		consumed   bool
		state      domain.ServiceState
	}{
		{name: "short press", code: KeyCodeVolumeDown, durationMs: 500, consumed: false, state: domain.StateActive},
		{name: "exactly threshold", code: KeyCodeVolumeDown, durationMs: 2000, consumed: false, state: domain.StateActive},
		{name: "other key", code: 24, durationMs: 5000, consumed: false, state: domain.StateActive},
		{name: "long press", code: KeyCodeVolumeDown, durationMs: 2001, consumed: true, state: domain.StatePaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, nil, newRecordingFeature("rec"))
			fx.svc.Start()

			assert.Equal(t, tt.consumed, fx.svc.HandleKeyEvent(tt.code, tt.durationMs))
			assert.Equal(t, tt.state, fx.svc.CurrentServiceState())
		})
	}
}

func TestHandleKeyEvent_ListenerClaimsFirst(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()

	var seen []int
	fx.svc.AddKeyListener(KeyListenerFunc(func(code int, _ int64) bool {
		seen = append(seen, code)
		return code == KeyCodeVolumeDown
	}))

	code, dur := longPress()
	assert.True(t, fx.svc.HandleKeyEvent(code, dur))
	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())

	assert.False(t, fx.svc.HandleKeyEvent(24, 100))
	assert.Equal(t, []int{KeyCodeVolumeDown, 24}, seen)
}

func TestHandleKeyEvent_ListenerMayCallBackIntoService(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()

	var before domain.ServiceState
	fx.svc.AddKeyListener(KeyListenerFunc(func(code int, _ int64) bool {
		if code != 24 {
			return false
		}
		before = fx.svc.CurrentServiceState()
		fx.svc.TogglePause()
		return true
	}))

	done := make(chan bool, 1)
	go func() { done <- fx.svc.HandleKeyEvent(24, 100) }()

	select {
	case consumed := <-done:
		assert.True(t, consumed)
	case <-time.After(2 * time.Second):
		t.Fatal("HandleKeyEvent did not return")
	}
	assert.Equal(t, domain.StateActive, before)
	assert.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
}

func TestHandleKeyEvent_PanickingListener(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()
	fx.svc.AddKeyListener(KeyListenerFunc(func(int, int64) bool { panic("listener") }))

	code, dur := longPress()
	assert.True(t, fx.svc.HandleKeyEvent(code, dur))
	assert.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
	assert.Equal(t, []string{"key_listener/key"}, fx.hooks.failed)
}

func TestPause_SuppressesDispatch(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	code, dur := longPress()
	require.True(t, fx.svc.HandleKeyEvent(code, dur))
	require.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
	assert.Equal(t, 1, f.count("pause"))

	fx.svc.Dispatch(appOpened("x"))
	fx.svc.Dispatch(domain.ScreenTurnedOff{})
	fx.svc.Dispatch(domain.ScrollEvent{EventClass: "c", ViewID: "v", ItemCount: 1, SourcePresent: true})

	assert.Empty(t, f.openedApps())
	assert.Equal(t, 0, f.count("screen_off"))
	assert.Equal(t, 0, f.count("scroll"))
	assert.Equal(t, 3, fx.hooks.droppedFor(DropPaused))

	// Active membership is untouched by pausing.
	assert.True(t, fx.reg.IsActive("rec"))
}

func TestPause_ToggleResumes(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()
	fx.svc.Dispatch(appOpened("x"))

	code, dur := longPress()
	fx.svc.HandleKeyEvent(code, dur)
	fx.svc.HandleKeyEvent(code, dur)

	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())
	assert.Equal(t, 2, f.count("start"))

	// The foreground app is decided again after a resume.
	fx.svc.Dispatch(appOpened("x"))
	assert.Equal(t, []string{"x", "x"}, f.openedApps())
}

func TestPause_MinimumInterval(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()
	code, dur := longPress()

	fx.svc.HandleKeyEvent(code, dur)
	fx.svc.HandleKeyEvent(code, dur)
	require.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())

	// Too soon after the previous pause: still consumed, but no pause.
	assert.True(t, fx.svc.HandleKeyEvent(code, dur))
	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())

	fx.clock.Advance(30 * time.Minute)
	fx.svc.HandleKeyEvent(code, dur)
	assert.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
}

func TestPause_AutoResume(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	assert.True(t, fx.svc.TogglePause())
	assert.Equal(t, 5*time.Minute, fx.svc.PauseRemaining())

	fx.clock.Advance(2 * time.Minute)
	assert.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
	assert.Equal(t, 3*time.Minute, fx.svc.PauseRemaining())

	fx.clock.Advance(3 * time.Minute)
	assert.Eventually(t, func() bool {
		return fx.svc.CurrentServiceState() == domain.StateActive
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Duration(0), fx.svc.PauseRemaining())
	assert.Equal(t, 2, f.count("start"))
}

func TestPause_ManualResumeCancelsTimer(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()

	fx.svc.TogglePause()
	fx.svc.TogglePause()
	fx.clock.Advance(30 * time.Minute)

	// A second pause must not be cut short by the first pause's timer.
	fx.svc.TogglePause()
	require.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
	fx.clock.Advance(time.Minute)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())
}

func TestStop_WhilePausedCancelsAutoResume(t *testing.T) {
	f := newRecordingFeature("rec")
	fx := newFixture(t, nil, f)
	fx.svc.Start()
	fx.svc.TogglePause()

	fx.svc.Stop()
	assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())

	fx.clock.Advance(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())
	assert.Equal(t, 1, f.count("start"))
}

func TestDispatch_HardwareKeyBypassesPause(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()

	fx.svc.Dispatch(domain.HardwareKey{Code: KeyCodeVolumeDown, PressDurationMs: 2500})
	require.Equal(t, domain.StatePaused, fx.svc.CurrentServiceState())

	fx.svc.Dispatch(domain.HardwareKey{Code: KeyCodeVolumeDown, PressDurationMs: 2500})
	assert.Equal(t, domain.StateActive, fx.svc.CurrentServiceState())
}

func TestPump(t *testing.T) {
	t.Run("closed stream stops service", func(t *testing.T) {
		f := newRecordingFeature("rec")
		fx := newFixture(t, nil, f)
		fx.svc.Start()

		ch := make(chan domain.SystemEvent, 3)
		ch <- appOpened("x")
		ch <- appOpened("y")
		ch <- domain.ScreenTurnedOff{}
		close(ch)

		err := fx.svc.Pump(context.Background(), ch)
		require.NoError(t, err)

		assert.Equal(t, []string{"x", "y"}, f.openedApps())
		assert.Equal(t, 1, f.count("screen_off"))
		assert.Equal(t, 1, f.count("stop"))
		assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())
	})

	t.Run("context cancel", func(t *testing.T) {
		fx := newFixture(t, nil, newRecordingFeature("rec"))
		fx.svc.Start()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- fx.svc.Pump(ctx, make(chan domain.SystemEvent))
		}()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("pump did not return")
		}
		assert.Equal(t, domain.StateInactive, fx.svc.CurrentServiceState())
	})
}

func TestScrollViewID(t *testing.T) {
	id, ok := ScrollViewID(domain.ScrollEvent{EventClass: "c", ViewID: "v", SourceID: "s"})
	assert.True(t, ok)
	assert.Equal(t, "c:v", id)

	_, ok = ScrollViewID(domain.ScrollEvent{EventClass: "c"})
	assert.False(t, ok)
}

func TestHooks_StateChanges(t *testing.T) {
	fx := newFixture(t, nil, newRecordingFeature("rec"))
	fx.svc.Start()
	fx.svc.TogglePause()
	fx.svc.TogglePause()
	fx.svc.Stop()

	assert.Equal(t, []domain.ServiceState{
		domain.StateActive,
		domain.StatePaused,
		domain.StateActive,
		domain.StateInactive,
	}, fx.hooks.states)
}
