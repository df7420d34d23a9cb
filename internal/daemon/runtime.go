// Package daemon wires the dispatch service, its features and the stores
// into one long-running process fed by an event stream.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/config"
	"github.com/eliteGoblin/focusd/grayd/internal/dispatch"
	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
	"github.com/eliteGoblin/focusd/grayd/internal/grayscale"
	"github.com/eliteGoblin/focusd/grayd/internal/screentime"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
	"github.com/eliteGoblin/focusd/grayd/internal/telemetry"
)

// RuntimeConfig holds the runtime loop configuration.
type RuntimeConfig struct {
	SettingsReloadInterval time.Duration // How often settings are re-read from the store
	StatusInterval         time.Duration // How often a status line is logged
	EventBuffer            int
	ShutdownTimeout        time.Duration
}

// DefaultRuntimeConfig returns default runtime configuration.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		SettingsReloadInterval: 30 * time.Second,
		StatusInterval:         5 * time.Minute,
		EventBuffer:            64,
		ShutdownTimeout:        5 * time.Second,
	}
}

// Clock is the time source shared by the decision path and the pause timers.
type Clock interface {
	domain.Clock
	clockwork.Clock
}

// Deps holds the collaborators a Runtime is assembled from.
// InputMethods, Usage and Registry may be nil.
type Deps struct {
	Config       *config.Config
	Settings     domain.SettingsStore
	Sessions     domain.SessionStore
	Overlay      domain.DisplayOverlay
	InputMethods domain.InputMethodSource
	Usage        domain.UsageStatsSource
	Clock        Clock
	Registry     *prometheus.Registry
	Logger       *zap.Logger
}

// Runtime owns one dispatch service and the features registered with it.
type Runtime struct {
	config   RuntimeConfig
	settings *settings.Provider
	features *feature.Registry
	session  *screentime.Session
	engine   *grayscale.Engine
	service  *dispatch.Service

	metricsAddr string
	metricsReg  *prometheus.Registry

	clock  Clock
	runID  string
	logger *zap.Logger
}

// NewRuntime builds the feature set and the dispatch service.
func NewRuntime(rc RuntimeConfig, d Deps) (*Runtime, error) {
	if d.Config == nil || d.Settings == nil || d.Sessions == nil || d.Overlay == nil || d.Clock == nil {
		return nil, errors.New("runtime requires config, stores, overlay and clock")
	}

	runID := uuid.NewString()
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", runID))

	provider := settings.Load(d.Settings, logger)
	features := feature.NewRegistry(d.Settings, logger)

	session := screentime.Open(grayscale.FeatureID, d.Clock, d.Sessions, logger)
	if d.Config.SeedUsage && d.Usage != nil {
		seedSession(session, provider.Snapshot(), d.Usage, d.Clock, logger)
	}

	engine := grayscale.NewEngine(provider, session, d.Overlay, d.Clock, logger)
	if err := features.Register(engine, true); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", engine.ID(), err)
	}

	service := dispatch.NewService(d.Config.DispatchConfig(), features, d.InputMethods, d.Clock, logger)

	if d.Registry != nil {
		m := telemetry.NewMetrics(d.Registry)
		hooks := telemetry.NewHooks(m)
		service.SetHooks(hooks)
		service.AddKeyListener(hooks)
		engine.SetObserver(hooks)

		if err := features.Register(telemetry.NewFeature(m), true); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", telemetry.FeatureID, err)
		}
		if err := d.Registry.Register(telemetry.NewScreenTimeCollector(features)); err != nil {
			return nil, fmt.Errorf("failed to register screen time collector: %w", err)
		}
	}

	return &Runtime{
		config:      rc,
		settings:    provider,
		features:    features,
		session:     session,
		engine:      engine,
		service:     service,
		metricsAddr: d.Config.MetricsConfig.Addr,
		metricsReg:  d.Registry,
		clock:       d.Clock,
		runID:       runID,
		logger:      logger,
	}, nil
}

// Service returns the dispatch service.
func (r *Runtime) Service() *dispatch.Service {
	return r.service
}

// Engine returns the grayscale decision engine.
func (r *Runtime) Engine() *grayscale.Engine {
	return r.engine
}

// Settings returns the settings provider.
func (r *Runtime) Settings() *settings.Provider {
	return r.settings
}

// Features returns the feature registry.
func (r *Runtime) Features() *feature.Registry {
	return r.features
}

// RunID identifies this runtime in logs.
func (r *Runtime) RunID() string {
	return r.runID
}

// Run starts the service and feeds it events read from events.
// It blocks until events is exhausted or ctx is canceled, then stops the
// service and flushes the screen-time session.
func (r *Runtime) Run(ctx context.Context, events io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.session.Close()

	if r.metricsAddr != "" && r.metricsReg != nil {
		stop, err := r.serveMetrics()
		if err != nil {
			return err
		}
		defer stop()
	}

	ch := make(chan domain.SystemEvent, r.config.EventBuffer)
	readErr := make(chan error, 1)
	go func() {
		readErr <- ReadEvents(ctx, events, ch, r.logger)
	}()

	r.service.Start()
	r.logger.Info("grayd runtime started",
		zap.Strings("features", r.features.List()),
		zap.String("state", string(r.service.CurrentServiceState())))

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- r.service.Pump(ctx, ch)
	}()

	reloadTicker := r.clock.NewTicker(r.config.SettingsReloadInterval)
	statusTicker := r.clock.NewTicker(r.config.StatusInterval)
	defer func() {
		reloadTicker.Stop()
		statusTicker.Stop()
	}()

	for {
		select {
		case err := <-pumpErr:
			r.logStatus()
			if err != nil {
				r.logger.Info("grayd runtime stopping")
				return err
			}
			if err := <-readErr; err != nil {
				return err
			}
			r.logger.Info("grayd runtime finished, event stream exhausted")
			return nil

		case <-reloadTicker.Chan():
			r.settings.Reload()
			r.logger.Debug("settings reloaded")

		case <-statusTicker.Chan():
			r.logStatus()
		}
	}
}

func (r *Runtime) logStatus() {
	r.logger.Info("status",
		zap.String("state", string(r.service.CurrentServiceState())),
		zap.Bool("dark", r.engine.IsDark()),
		zap.Int64("color_time_today_ms", r.engine.ScreenTimeToday()),
		zap.Int64("budget_ms", r.engine.DailyBudgetMs()),
		zap.Duration("pause_remaining", r.service.PauseRemaining()))
}

func (r *Runtime) serveMetrics() (func(), error) {
	ln, err := net.Listen("tcp", r.metricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", r.metricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(r.metricsReg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	r.logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			r.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}, nil
}

// seedSession raises today's color time to what usage reports for the
// targeted apps. Only include-only lists name the apps to measure.
func seedSession(s *screentime.Session, cur settings.Settings, usage domain.UsageStatsSource, clk domain.Clock, logger *zap.Logger) {
	ex := cur.Exceptions
	if ex.Mode != domain.ModeIncludeOnly || len(ex.Members) == 0 {
		return
	}

	since := clk.Today().Start(clk.Now().Location())
	ms, err := usage.ScreenTimeForApps(ex.Members, since)
	if err != nil {
		logger.Warn("failed to seed screen time from usage stats", zap.Error(err))
		return
	}
	s.Seed(ms)
	logger.Info("seeded screen time from usage stats", zap.Int64("used_up_ms", ms))
}
