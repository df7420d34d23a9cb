package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/feature"
)

// FeatureID identifies the telemetry feature in the registry.
const FeatureID = "telemetry"

// maxScrollViews bounds the distinct scroll view set.
const maxScrollViews = 4096

// Feature counts the events it receives. It never affects the display.
type Feature struct {
	m *Metrics

	mu          sync.Mutex
	scrollViews map[string]struct{}
	foreground  string
}

// NewFeature creates the telemetry feature.
func NewFeature(m *Metrics) *Feature {
	return &Feature{
		m:           m,
		scrollViews: make(map[string]struct{}),
	}
}

func (f *Feature) ID() string   { return FeatureID }
func (f *Feature) Name() string { return "Telemetry" }
func (f *Feature) OnStart()     {}
func (f *Feature) OnPause()     {}

// OnStop forgets per-run state.
func (f *Feature) OnStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrollViews = make(map[string]struct{})
	f.foreground = ""
	f.m.ScrollViews.Set(0)
}

func (f *Feature) OnAppOpened(packageID string, _ bool, _ string) {
	f.mu.Lock()
	f.foreground = packageID
	f.mu.Unlock()
	f.m.EventsObserved.WithLabelValues(domain.AppOpened{}.Kind()).Inc()
}

func (f *Feature) OnScroll(scrollViewID string, _ domain.ScrollEvent) {
	f.m.EventsObserved.WithLabelValues(domain.ScrollEvent{}.Kind()).Inc()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, seen := f.scrollViews[scrollViewID]; seen || len(f.scrollViews) >= maxScrollViews {
		return
	}
	f.scrollViews[scrollViewID] = struct{}{}
	f.m.ScrollViews.Set(float64(len(f.scrollViews)))
}

func (f *Feature) OnScreenTurnedOff() {
	f.m.EventsObserved.WithLabelValues(domain.ScreenTurnedOff{}.Kind()).Inc()
}

// Foreground returns the last app reported to the feature.
func (f *Feature) Foreground() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

var (
	_ feature.AppOpenedResponder = (*Feature)(nil)
	_ feature.ScrollResponder    = (*Feature)(nil)
	_ feature.ScreenOffResponder = (*Feature)(nil)
)

// ScreenTimeCollector reports today's color time and budget of every active
// screen-time tracking feature at scrape time.
type ScreenTimeCollector struct {
	registry *feature.Registry

	usedDesc   *prometheus.Desc
	budgetDesc *prometheus.Desc
}

// NewScreenTimeCollector creates a collector over the registry.
func NewScreenTimeCollector(registry *feature.Registry) *ScreenTimeCollector {
	return &ScreenTimeCollector{
		registry: registry,
		usedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "color_time_today_seconds"),
			"Color time consumed today.",
			[]string{"feature"}, nil,
		),
		budgetDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "color_budget_seconds"),
			"Configured daily color budget; 0 means no color time.",
			[]string{"feature"}, nil,
		),
	}
}

func (c *ScreenTimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usedDesc
	ch <- c.budgetDesc
}

func (c *ScreenTimeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, t := range c.registry.ScreenTimeTrackers() {
		ch <- prometheus.MustNewConstMetric(c.usedDesc, prometheus.GaugeValue,
			float64(t.ScreenTimeToday())/1000, t.ID())
		ch <- prometheus.MustNewConstMetric(c.budgetDesc, prometheus.GaugeValue,
			float64(t.DailyBudgetMs())/1000, t.ID())
	}
}
