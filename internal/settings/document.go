package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Document is the hand-editable YAML form of Settings used by export and import.
type Document struct {
	ExceptionMode       string            `yaml:"exception_mode"`
	ExceptionMembers    []string          `yaml:"exception_members"`
	IgnoreNonFullscreen bool              `yaml:"ignore_non_fullscreen"`
	DailyBudget         string            `yaml:"daily_budget"` // Go duration, "0s" means no color time
	Intensity           DocumentIntensity `yaml:"intensity"`
	Schedule            DocumentSchedule  `yaml:"schedule"`
	KnownFullscreen     []string          `yaml:"known_fullscreen"`
}

type DocumentIntensity struct {
	Normal float64 `yaml:"normal"`
	Extra  float64 `yaml:"extra"`
}

type DocumentSchedule struct {
	Enabled  bool     `yaml:"enabled"`
	Start    string   `yaml:"start"` // HH:MM
	End      string   `yaml:"end"`
	Weekdays []string `yaml:"weekdays,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekday accepts "mon" or "monday" in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if len(key) > 3 {
		for i := time.Sunday; i <= time.Saturday; i++ {
			if key == strings.ToLower(i.String()) {
				return i, nil
			}
		}
	}
	if d, ok := weekdayNames[key]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String()[:3])
}

// NewDocument renders s.
func NewDocument(s Settings) Document {
	doc := Document{
		ExceptionMode:       string(s.Exceptions.Mode),
		ExceptionMembers:    append([]string{}, s.Exceptions.Members...),
		IgnoreNonFullscreen: s.IgnoreNonFullscreen,
		DailyBudget:         (time.Duration(s.DailyColorBudgetMs) * time.Millisecond).String(),
		Intensity:           DocumentIntensity{Normal: s.Intensity.Normal, Extra: s.Intensity.Extra},
		Schedule: DocumentSchedule{
			Enabled: s.Schedule.Enabled,
			Start:   s.Schedule.Start.String(),
			End:     s.Schedule.End.String(),
		},
		KnownFullscreen: append([]string{}, s.KnownFullscreen...),
	}
	for _, d := range s.Schedule.Weekdays {
		doc.Schedule.Weekdays = append(doc.Schedule.Weekdays, weekdayName(d))
	}
	return doc
}

// Settings converts the document back, validating every field.
func (d Document) Settings() (Settings, error) {
	mode, err := domain.ParseExceptionMode(d.ExceptionMode)
	if err != nil {
		return Settings{}, err
	}
	budget, err := time.ParseDuration(d.DailyBudget)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid daily budget: %w", err)
	}
	start, err := domain.ParseTimeOfDay(d.Schedule.Start)
	if err != nil {
		return Settings{}, fmt.Errorf("schedule start: %w", err)
	}
	end, err := domain.ParseTimeOfDay(d.Schedule.End)
	if err != nil {
		return Settings{}, fmt.Errorf("schedule end: %w", err)
	}

	s := Settings{
		Exceptions:          domain.AppExceptionList{Mode: mode, Members: append([]string(nil), d.ExceptionMembers...)},
		IgnoreNonFullscreen: d.IgnoreNonFullscreen,
		DailyColorBudgetMs:  budget.Milliseconds(),
		Intensity:           domain.DimIntensity{Normal: d.Intensity.Normal, Extra: d.Intensity.Extra}.Clamp(),
		Schedule:            domain.ScheduleWindow{Enabled: d.Schedule.Enabled, Start: start, End: end},
		KnownFullscreen:     append([]string(nil), d.KnownFullscreen...),
	}
	for _, name := range d.Schedule.Weekdays {
		wd, err := ParseWeekday(name)
		if err != nil {
			return Settings{}, err
		}
		s.Schedule.Weekdays = append(s.Schedule.Weekdays, wd)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MarshalYAML renders s as a YAML document.
func MarshalYAML(s Settings) ([]byte, error) {
	return yaml.Marshal(NewDocument(s))
}

// ParseYAML reads a document written by MarshalYAML. Omitted fields keep
// their defaults; unknown fields are rejected.
func ParseYAML(data []byte) (Settings, error) {
	doc := NewDocument(Default())
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.Strict()); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings document: %w", err)
	}
	return doc.Settings()
}
