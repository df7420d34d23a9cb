// Package infra implements infrastructure concerns (storage, keys, process
// sources, overlay).
package infra

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// DefaultInputMethodProcesses are desktop input-method daemons whose windows
// should never count as the foreground app.
var DefaultInputMethodProcesses = []string{
	"ibus-daemon",
	"ibus-ui-gtk3",
	"ibus-extension-gtk3",
	"fcitx",
	"fcitx5",
	"uim-xim",
	"scim",
	"onboard",
}

// processLister abstracts gopsutil for tests.
type processLister interface {
	Processes() ([]processInfo, error)
}

// processInfo is the subset of a process the sources need.
type processInfo struct {
	Name       string
	CreateTime time.Time
}

type gopsutilLister struct{}

func (gopsutilLister) Processes() ([]processInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make([]processInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		created, err := p.CreateTime()
		if err != nil {
			continue
		}
		out = append(out, processInfo{Name: name, CreateTime: time.UnixMilli(created)})
	}
	return out, nil
}

// ProcessInputMethods implements domain.InputMethodSource by reporting the
// known input-method daemons that are currently running.
type ProcessInputMethods struct {
	known  []string
	lister processLister
}

// NewProcessInputMethods creates a source matching the given process names
// (DefaultInputMethodProcesses when empty).
func NewProcessInputMethods(known []string) *ProcessInputMethods {
	if len(known) == 0 {
		known = DefaultInputMethodProcesses
	}
	return &ProcessInputMethods{known: known, lister: gopsutilLister{}}
}

// EnabledInputMethods returns the names of running input-method daemons.
func (s *ProcessInputMethods) EnabledInputMethods() ([]string, error) {
	procs, err := s.lister.Processes()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var found []string
	for _, p := range procs {
		for _, k := range s.known {
			if strings.EqualFold(p.Name, k) && !seen[k] {
				seen[k] = true
				found = append(found, k)
			}
		}
	}
	return found, nil
}

// ProcessUsageSource implements domain.UsageStatsSource by estimating how long
// the named processes have been running since a given instant. Each app is
// counted from its earliest running instance.
type ProcessUsageSource struct {
	lister processLister
	clock  clockwork.Clock
}

// NewProcessUsageSource creates a gopsutil-backed usage source. clock must be
// the one the session uses so since and now share a time base.
func NewProcessUsageSource(clock clockwork.Clock) *ProcessUsageSource {
	return &ProcessUsageSource{lister: gopsutilLister{}, clock: clock}
}

// ScreenTimeForApps returns milliseconds of runtime since since, summed over
// ids. A process counts from max(created, since) until now.
func (s *ProcessUsageSource) ScreenTimeForApps(ids []string, since time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	procs, err := s.lister.Processes()
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	earliest := make(map[string]time.Time)
	for _, p := range procs {
		for _, id := range ids {
			if !strings.EqualFold(p.Name, id) {
				continue
			}
			start := p.CreateTime
			if start.Before(since) {
				start = since
			}
			if cur, ok := earliest[id]; !ok || start.Before(cur) {
				earliest[id] = start
			}
		}
	}

	var total int64
	for _, start := range earliest {
		if d := now.Sub(start); d > 0 {
			total += d.Milliseconds()
		}
	}
	return total, nil
}

var (
	_ domain.InputMethodSource = (*ProcessInputMethods)(nil)
	_ domain.UsageStatsSource  = (*ProcessUsageSource)(nil)
)
