//go:build integration

package integration

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/clock"
	"github.com/eliteGoblin/focusd/grayd/internal/config"
	"github.com/eliteGoblin/focusd/grayd/internal/daemon"
	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/grayscale"
	"github.com/eliteGoblin/focusd/grayd/internal/infra"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
)

var _ = Describe("Encrypted store across restarts", func() {
	var (
		tmpDir string
		fake   *clockwork.FakeClock
	)

	newRuntime := func(st *infra.EncryptedStore) *daemon.Runtime {
		rt, err := daemon.NewRuntime(daemon.DefaultRuntimeConfig(), daemon.Deps{
			Config:   config.Default(),
			Settings: st,
			Sessions: st,
			Overlay:  infra.NewLogOverlay(zap.NewNop()),
			Clock:    clock.New(fake),
			Logger:   zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return rt
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "grayd-integration-*")
		Expect(err).NotTo(HaveOccurred())
		fake = clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local))
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("keeps settings and today's color time", func() {
		st, err := infra.OpenEncryptedStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		p := settings.Load(st, zap.NewNop())
		Expect(p.Update(func(s *settings.Settings) {
			s.Exceptions = domain.AppExceptionList{Mode: domain.ModeIncludeOnly, Members: []string{"com.video"}}
			s.DailyColorBudgetMs = time.Hour.Milliseconds()
		})).To(Succeed())
		Expect(st.SaveSession(grayscale.FeatureID, domain.SessionState{
			UsedUpMs: (20 * time.Minute).Milliseconds(),
			Day:      domain.DateOf(fake.Now()),
		})).To(Succeed())
		Expect(st.Close()).To(Succeed())

		st, err = infra.OpenEncryptedStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		defer st.Close()

		rt := newRuntime(st)
		Expect(rt.Settings().Snapshot().DailyColorBudgetMs).To(Equal(time.Hour.Milliseconds()))
		Expect(rt.Engine().ScreenTimeToday()).To(Equal((20 * time.Minute).Milliseconds()))
	})

	It("persists time tracked by a run", func() {
		st, err := infra.OpenEncryptedStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		defer st.Close()

		Expect(settings.ExceptionsKey.Set(st, domain.AppExceptionList{
			Mode:    domain.ModeIncludeOnly,
			Members: []string{"com.video"},
		})).To(Succeed())

		events := strings.Join([]string{
			`{"type":"app_opened","package_id":"com.video","is_fullscreen":true}`,
			`{"type":"screen_off"}`,
		}, "\n")
		Expect(newRuntime(st).Run(context.Background(), strings.NewReader(events))).To(Succeed())

		state, err := st.LoadSession(grayscale.FeatureID)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Day).To(Equal(domain.DateOf(fake.Now())))
		Expect(state.TrackingSinceEpochMs).To(BeZero())
	})

	It("refuses to open with a replaced key", func() {
		st, err := infra.OpenEncryptedStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Set("k", "v")).To(Succeed())
		Expect(st.Close()).To(Succeed())

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		Expect(infra.NewFileKeyProvider(tmpDir).StoreKey(key)).To(Succeed())

		_, err = infra.OpenEncryptedStore(tmpDir)
		Expect(err).To(HaveOccurred())
	})
})
