package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
	"github.com/eliteGoblin/focusd/grayd/internal/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change user settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error {
			data, err := settings.MarshalYAML(settings.Load(st, zap.NewNop()).Snapshot())
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Keys:
  exception_mode         include_only | exclude
  exception_members      comma separated package ids ("" clears)
  ignore_non_fullscreen  true | false
  daily_budget           Go duration, 0s for no color time
  intensity_normal       0..1
  intensity_extra        0..1
  schedule               off | HH:MM-HH:MM[,weekday...]
  known_fullscreen       comma separated package ids`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error {
			p := settings.Load(st, zap.NewNop())
			var applyErr error
			err := p.Update(func(s *settings.Settings) {
				applyErr = applySetting(s, args[0], args[1])
			})
			if applyErr != nil {
				return applyErr
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s updated\n", args[0])
			return nil
		})
	},
}

var configFile string

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write settings to a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error {
			data, err := settings.MarshalYAML(settings.Load(st, zap.NewNop()).Snapshot())
			if err != nil {
				return err
			}
			if configFile == "" || configFile == "-" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(configFile, data, 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", configFile, err)
			}
			fmt.Printf("Settings exported to %s\n", configFile)
			return nil
		})
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace settings with a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", configFile, err)
		}
		imported, err := settings.ParseYAML(data)
		if err != nil {
			return err
		}
		return withStore(func(st store) error {
			p := settings.Load(st, zap.NewNop())
			if err := p.Update(func(s *settings.Settings) { *s = imported }); err != nil {
				return err
			}
			fmt.Printf("Settings imported from %s\n", configFile)
			return nil
		})
	},
}

var configKeysCmd = &cobra.Command{
	Use:    "keys",
	Short:  "List raw stored keys",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st store) error {
			all, err := st.AllSettings()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s = %s\n", k, all[k])
			}
			return nil
		})
	},
}

func init() {
	configExportCmd.Flags().StringVar(&configFile, "file", "", "Output file ('-' or empty for stdout)")
	configImportCmd.Flags().StringVar(&configFile, "file", "", "YAML file written by 'config export'")
	configCmd.AddCommand(configShowCmd, configSetCmd, configExportCmd, configImportCmd, configKeysCmd)
}

// applySetting parses value for key into s. Validation of the combined
// result happens in Provider.Update.
func applySetting(s *settings.Settings, key, value string) error {
	switch key {
	case "exception_mode":
		mode, err := domain.ParseExceptionMode(value)
		if err != nil {
			return err
		}
		s.Exceptions.Mode = mode
	case "exception_members":
		s.Exceptions.Members = splitList(value)
	case "ignore_non_fullscreen":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		s.IgnoreNonFullscreen = v
	case "daily_budget":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: must not be negative", key)
		}
		s.DailyColorBudgetMs = d.Milliseconds()
	case "intensity_normal", "intensity_extra":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid %s: %v not in [0,1]", key, v)
		}
		if key == "intensity_normal" {
			s.Intensity.Normal = v
		} else {
			s.Intensity.Extra = v
		}
	case "schedule":
		w, err := parseSchedule(value)
		if err != nil {
			return err
		}
		s.Schedule = w
	case "known_fullscreen":
		s.KnownFullscreen = splitList(value)
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

// parseSchedule accepts "off" or "HH:MM-HH:MM" optionally followed by
// comma separated weekdays.
func parseSchedule(value string) (domain.ScheduleWindow, error) {
	if value == "off" || value == "" {
		return domain.ScheduleWindow{}, nil
	}

	parts := splitList(value)
	bounds := strings.SplitN(parts[0], "-", 2)
	if len(bounds) != 2 {
		return domain.ScheduleWindow{}, fmt.Errorf("invalid schedule %q, want HH:MM-HH:MM", value)
	}
	start, err := domain.ParseTimeOfDay(bounds[0])
	if err != nil {
		return domain.ScheduleWindow{}, err
	}
	end, err := domain.ParseTimeOfDay(bounds[1])
	if err != nil {
		return domain.ScheduleWindow{}, err
	}

	w := domain.ScheduleWindow{Enabled: true, Start: start, End: end}
	for _, name := range parts[1:] {
		wd, err := settings.ParseWeekday(name)
		if err != nil {
			return domain.ScheduleWindow{}, err
		}
		w.Weekdays = append(w.Weekdays, wd)
	}
	return w, nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
