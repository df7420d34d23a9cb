// Package main is the CLI entry point for grayd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/grayd/internal/clock"
	"github.com/eliteGoblin/focusd/grayd/internal/config"
	"github.com/eliteGoblin/focusd/grayd/internal/daemon"
	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
	"github.com/eliteGoblin/focusd/grayd/internal/grayscale"
	"github.com/eliteGoblin/focusd/grayd/internal/infra"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
	"github.com/eliteGoblin/focusd/grayd/internal/telemetry"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "grayd",
	Short: "Grayscale daemon - darkens distracting apps past a daily color budget",
	Long: `grayd consumes foreground-app, scroll, screen and key events and decides
whether the screen overlay is shown. Targeted apps get a daily color budget;
once it is used up the screen goes dark until midnight.

A long press on the pause key lifts the overlay for a few minutes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatcher on an event stream",
	Long: `Reads newline-delimited JSON events (stdin by default) and dispatches them
until the stream ends or the process is signaled.

Example event lines:
  {"type":"app_opened","package_id":"com.video","is_fullscreen":true}
  {"type":"hardware_key","code":25,"press_duration_ms":2500}`,
	RunE: runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's color time and the active settings",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	RunE:  runVersion,
}

var (
	eventsPath  string
	metricsAddr string
	ephemeral   bool
	jsonOutput  bool
)

func init() {
	runCmd.Flags().StringVar(&eventsPath, "events", "-", "Event stream file ('-' for stdin)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep settings and sessions in memory only")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(featuresCmd)
	rootCmd.AddCommand(versionCmd)
}

// store is what the CLI needs from a settings and session backend.
type store interface {
	domain.SettingsStore
	domain.SessionStore
	AllSettings() (map[string]string, error)
	Close() error
}

var (
	_ store = (*infra.EncryptedStore)(nil)
	_ store = (*infra.MemoryStore)(nil)
)

// loadConfig reads the environment and applies command-line overrides.
func loadConfig() (*config.Config, *infra.ExecModeConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if ephemeral {
		cfg.Ephemeral = true
	}
	if metricsAddr != "" {
		cfg.MetricsConfig.Addr = metricsAddr
	}

	execMode := infra.DetectExecMode()
	if cfg.DataDir != "" {
		execMode.DataDir = cfg.DataDir
	}
	return cfg, execMode, nil
}

func openStore(cfg *config.Config, execMode *infra.ExecModeConfig) (store, error) {
	if cfg.Ephemeral {
		return infra.NewMemoryStore(), nil
	}
	s, err := infra.OpenEncryptedStore(execMode.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store in %s: %w", execMode.DataDir, err)
	}
	return s, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, execMode, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg, execMode)
	defer func() { _ = logger.Sync() }()

	st, err := openStore(cfg, execMode)
	if err != nil {
		return err
	}
	defer st.Close()

	events, closeEvents, err := openEvents(eventsPath)
	if err != nil {
		return err
	}
	defer closeEvents()

	wall := clockwork.NewRealClock()
	rt, err := daemon.NewRuntime(daemon.DefaultRuntimeConfig(), daemon.Deps{
		Config:       cfg,
		Settings:     st,
		Sessions:     st,
		Overlay:      infra.NewLogOverlay(logger),
		InputMethods: infra.NewProcessInputMethods(nil),
		Usage:        infra.NewProcessUsageSource(wall),
		Clock:        clock.New(wall),
		Registry:     telemetry.NewRegistry(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("grayd starting",
		zap.String("version", Version),
		zap.Stringer("mode", execMode.Mode),
		zap.Bool("ephemeral", cfg.Ephemeral),
		zap.String("events", eventsPath))

	if err := rt.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("grayd stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func openEvents(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, execMode, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, execMode)
	if err != nil {
		return err
	}
	defer st.Close()

	s := settings.Load(st, zap.NewNop()).Snapshot()
	c := clock.New(clockwork.NewRealClock())
	used := colorTimeToday(st, c)

	fmt.Println("\n=== grayd Status ===")
	fmt.Printf("Execution mode: %s\n", execMode.Mode)
	fmt.Printf("Data dir: %s\n", execMode.DataDir)
	fmt.Printf("Color time today: %s\n", used.Round(time.Second))
	if s.DailyColorBudgetMs == 0 {
		fmt.Println("Daily budget: none (targeted apps are always dark)")
	} else {
		budget := time.Duration(s.DailyColorBudgetMs) * time.Millisecond
		remaining := budget - used
		if remaining < 0 {
			remaining = 0
		}
		fmt.Printf("Daily budget: %s (%s left)\n", budget, remaining.Round(time.Second))
	}
	fmt.Printf("Exceptions: %s %v\n", s.Exceptions.Mode, s.Exceptions.Members)
	if s.Schedule.Enabled {
		fmt.Printf("Schedule: %s-%s\n", s.Schedule.Start, s.Schedule.End)
	} else {
		fmt.Println("Schedule: always")
	}
	fmt.Println("====================")
	return nil
}

// colorTimeToday reads the persisted session, counting an interval a running
// daemon still has open.
func colorTimeToday(st domain.SessionStore, c domain.Clock) time.Duration {
	state, err := st.LoadSession(grayscale.FeatureID)
	if err != nil || state.Day != c.Today() {
		return 0
	}
	ms := state.UsedUpMs
	if state.TrackingSinceEpochMs != 0 {
		if open := c.NowEpochMs() - state.TrackingSinceEpochMs; open > 0 {
			ms += open
		}
	}
	return time.Duration(ms) * time.Millisecond
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List or toggle features",
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List features and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error {
			for _, id := range []string{grayscale.FeatureID, telemetry.FeatureID} {
				fmt.Printf("  %-10s %s\n", id, enabledLabel(featureEnabled(st, id)))
			}
			return nil
		})
	},
}

var featuresEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error { return setFeature(st, args[0], true) })
	},
}

var featuresDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error { return setFeature(st, args[0], false) })
	},
}

func init() {
	featuresCmd.AddCommand(featuresListCmd, featuresEnableCmd, featuresDisableCmd)
}

func featureEnabled(st domain.SettingsStore, id string) bool {
	raw, ok, err := st.Get(feature.ActiveKey(id))
	if err != nil || !ok {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err != nil || v
}

func setFeature(st domain.SettingsStore, id string, active bool) error {
	switch id {
	case grayscale.FeatureID, telemetry.FeatureID:
	default:
		return fmt.Errorf("unknown feature: %s", id)
	}
	if err := st.Set(feature.ActiveKey(id), strconv.FormatBool(active)); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", id, enabledLabel(active))
	return nil
}

func enabledLabel(active bool) string {
	if active {
		return "enabled"
	}
	return "disabled"
}

func withStore(fn func(st store) error) error {
	cfg, execMode, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, execMode)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func createLogger(cfg *config.Config, execMode *infra.ExecModeConfig) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.LogConfig.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel())
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logFile := cfg.LogConfig.File
	if logFile == "" && !cfg.Ephemeral {
		if err := os.MkdirAll(execMode.LogDir, 0700); err == nil {
			logFile = filepath.Join(execMode.LogDir, "grayd.log")
		}
	}
	if logFile != "" {
		zc.OutputPaths = []string{logFile}
		zc.ErrorOutputPaths = []string{logFile}
	}

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		data, err := sonic.Marshal(versionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime})
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("grayd %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
	return nil
}
