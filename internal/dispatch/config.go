package dispatch

import "time"

// Config holds dispatcher configuration.
type Config struct {
	PauseKeyCode         int           // Hardware key that toggles pause when held
	PauseLongPress       time.Duration // Minimum hold before the pause key counts (strictly greater)
	PauseDuration        time.Duration // How long a pause lasts before auto-resume
	MinTimeBetweenPauses time.Duration // Cooldown measured from the start of the previous pause

	IgnoredEventClasses []string // Window classes never dispatched as AppOpened
	IgnoredPackages     []string // Packages never dispatched as AppOpened
}

// KeyCodeVolumeDown is the default pause key.
const KeyCodeVolumeDown = 25

// DefaultIgnoredEventClasses are input-method windows and system overlays
// that appear on top of the real foreground app.
var DefaultIgnoredEventClasses = []string{
	"android.inputmethodservice.SoftInputWindow",
	"com.android.systemui.volume.VolumeDialogImpl$CustomDialog",
	"com.android.systemui.volume.VolumeDialogImpl",
	"com.android.systemui.recents.RecentsActivity",
	"com.android.quickstep.RecentsActivity",
	"com.android.launcher3.uioverlay.RecentsActivity",
}

// DefaultIgnoredPackages are packages whose windows never represent a
// user-chosen foreground app.
var DefaultIgnoredPackages = []string{
	"com.android.systemui",
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		PauseKeyCode:         KeyCodeVolumeDown,
		PauseLongPress:       2 * time.Second,
		PauseDuration:        5 * time.Minute,
		MinTimeBetweenPauses: 30 * time.Minute,
		IgnoredEventClasses:  append([]string(nil), DefaultIgnoredEventClasses...),
		IgnoredPackages:      append([]string(nil), DefaultIgnoredPackages...),
	}
}
