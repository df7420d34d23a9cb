//go:build integration

package integration

import (
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/clock"
	"github.com/eliteGoblin/focusd/grayd/internal/dispatch"
	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
	"github.com/eliteGoblin/focusd/grayd/internal/grayscale"
	"github.com/eliteGoblin/focusd/grayd/internal/infra"
	"github.com/eliteGoblin/focusd/grayd/internal/screentime"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
)

func opened(pkg string) domain.AppOpened {
	return domain.AppOpened{PackageID: pkg, EventClass: pkg + ".MainActivity", IsFullscreen: true, RawSourcePresent: true}
}

func longPress() domain.HardwareKey {
	return domain.HardwareKey{Code: dispatch.KeyCodeVolumeDown, PressDurationMs: 2500}
}

var _ = Describe("Grayscale dispatch", func() {
	var (
		fake     *clockwork.FakeClock
		store    *infra.MemoryStore
		overlay  *infra.LogOverlay
		provider *settings.Provider
		session  *screentime.Session
		engine   *grayscale.Engine
		service  *dispatch.Service
	)

	build := func(mutate func(*settings.Settings)) {
		logger := zap.NewNop()
		c := clock.New(fake)

		provider = settings.Load(store, logger)
		if mutate != nil {
			Expect(provider.Update(mutate)).To(Succeed())
		}

		registry := feature.NewRegistry(store, logger)
		session = screentime.Open(grayscale.FeatureID, c, store, logger)
		engine = grayscale.NewEngine(provider, session, overlay, c, logger)
		Expect(registry.Register(engine, true)).To(Succeed())

		service = dispatch.NewService(dispatch.DefaultConfig(), registry, nil, c, logger)
		service.Start()
	}

	BeforeEach(func() {
		// Monday noon.
		fake = clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local))
		store = infra.NewMemoryStore()
		overlay = infra.NewLogOverlay(zap.NewNop())
	})

	AfterEach(func() {
		service.Stop()
		session.Close()
	})

	Describe("targeted apps without a budget", func() {
		BeforeEach(func() {
			build(func(s *settings.Settings) {
				s.Exceptions = domain.AppExceptionList{Mode: domain.ModeIncludeOnly, Members: []string{"com.video"}}
			})
		})

		It("darkens immediately at normal intensity", func() {
			service.Dispatch(opened("com.video"))

			Expect(overlay.IsVisible()).To(BeTrue())
			Expect(overlay.Intensity()).To(Equal(settings.Default().Intensity.Normal))
		})

		It("goes light for an untargeted app", func() {
			service.Dispatch(opened("com.video"))
			service.Dispatch(opened("com.reader"))

			Expect(overlay.IsVisible()).To(BeFalse())
			shows, hides := overlay.Counts()
			Expect(shows).To(Equal(1))
			Expect(hides).To(Equal(1))
		})

		It("ignores the keyboard popping up over the targeted app", func() {
			service.Dispatch(opened("com.video"))
			service.Dispatch(domain.AppOpened{
				PackageID:        "com.android.inputmethod",
				EventClass:       "android.inputmethodservice.SoftInputWindow",
				RawSourcePresent: true,
			})

			Expect(overlay.IsVisible()).To(BeTrue())
		})
	})

	Describe("a daily color budget", func() {
		BeforeEach(func() {
			build(func(s *settings.Settings) {
				s.Exceptions = domain.AppExceptionList{Mode: domain.ModeIncludeOnly, Members: []string{"com.video", "com.feed"}}
				s.DailyColorBudgetMs = (10 * time.Minute).Milliseconds()
			})
		})

		It("keeps color until the budget is used up, then darkens at extra intensity", func() {
			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeFalse())

			fake.Advance(10 * time.Minute)
			service.Dispatch(opened("com.feed"))

			Expect(overlay.IsVisible()).To(BeTrue())
			Expect(overlay.Intensity()).To(Equal(settings.Default().Intensity.Extra))
			Expect(engine.ScreenTimeToday()).To(Equal((10 * time.Minute).Milliseconds()))
		})

		It("does not count time while the screen is off", func() {
			service.Dispatch(opened("com.video"))
			fake.Advance(4 * time.Minute)
			service.Dispatch(domain.ScreenTurnedOff{})
			fake.Advance(time.Hour)

			Expect(engine.ScreenTimeToday()).To(Equal((4 * time.Minute).Milliseconds()))
		})

		It("starts a fresh budget after midnight", func() {
			service.Dispatch(opened("com.video"))
			fake.Advance(11 * time.Minute)
			service.Dispatch(opened("com.feed"))
			Expect(overlay.IsVisible()).To(BeTrue())

			service.Dispatch(opened("com.reader"))
			fake.Advance(13 * time.Hour)
			service.Dispatch(opened("com.video"))

			Expect(overlay.IsVisible()).To(BeFalse())
			Expect(engine.ScreenTimeToday()).To(BeZero())
		})
	})

	Describe("pausing", func() {
		BeforeEach(func() {
			build(func(s *settings.Settings) {
				s.Exceptions = domain.AppExceptionList{Mode: domain.ModeIncludeOnly, Members: []string{"com.video"}}
			})
			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeTrue())
		})

		It("lifts the overlay and drops events until the pause ends", func() {
			service.Dispatch(longPress())

			Expect(service.CurrentServiceState()).To(Equal(domain.StatePaused))
			Expect(overlay.IsVisible()).To(BeFalse())

			service.Dispatch(opened("com.feed"))
			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeFalse())
		})

		It("resumes on its own and re-darkens on the next app event", func() {
			service.Dispatch(longPress())
			fake.Advance(dispatch.DefaultConfig().PauseDuration)

			Eventually(service.CurrentServiceState).Should(Equal(domain.StateActive))

			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeTrue())
		})

		It("refuses to pause again within the minimum interval", func() {
			service.Dispatch(longPress())
			service.Dispatch(longPress())
			Expect(service.CurrentServiceState()).To(Equal(domain.StateActive))

			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeTrue())

			service.Dispatch(longPress())
			Expect(service.CurrentServiceState()).To(Equal(domain.StateActive))
			Expect(overlay.IsVisible()).To(BeTrue())
		})

		It("does not pause on a short press", func() {
			service.Dispatch(domain.HardwareKey{Code: dispatch.KeyCodeVolumeDown, PressDurationMs: 2000})

			Expect(service.CurrentServiceState()).To(Equal(domain.StateActive))
			Expect(overlay.IsVisible()).To(BeTrue())
		})
	})

	Describe("a schedule window", func() {
		BeforeEach(func() {
			build(func(s *settings.Settings) {
				s.Exceptions = domain.AppExceptionList{Mode: domain.ModeIncludeOnly, Members: []string{"com.video"}}
				s.Schedule = domain.ScheduleWindow{
					Enabled: true,
					Start:   domain.NewTimeOfDay(21, 0),
					End:     domain.NewTimeOfDay(7, 0),
				}
			})
		})

		It("only darkens inside the window", func() {
			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeFalse())

			fake.Advance(10 * time.Hour)
			service.Dispatch(opened("com.reader"))
			service.Dispatch(opened("com.video"))
			Expect(overlay.IsVisible()).To(BeTrue())
		})
	})
})
