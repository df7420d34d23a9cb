package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a key or session has never been written.
var ErrNotFound = errors.New("not found")

// DisplayOverlay renders the darkening effect.
// Implementation: provided by the host (screen filter, compositor shader, ...).
type DisplayOverlay interface {
	// Show displays the overlay at intensity in [0,1].
	// Repeated calls update the intensity in place.
	Show(intensity float64) error

	// Hide removes the overlay. No-op if it is not shown.
	Hide() error

	// IsVisible reports whether the overlay is currently shown.
	IsVisible() bool
}

// SettingsStore is durable key-value storage for user settings.
// Reads after a successful Set in the same process observe the new value.
type SettingsStore interface {
	// Get returns the raw value and whether the key exists.
	Get(key string) (string, bool, error)

	// Set stores value under key.
	Set(key, value string) error
}

// SessionStore persists screen-time sessions across restarts.
type SessionStore interface {
	// LoadSession returns the stored state or ErrNotFound.
	LoadSession(id string) (SessionState, error)

	// SaveSession overwrites the stored state.
	SaveSession(id string, state SessionState) error
}

// Clock supplies wall-clock time to the decision path.
type Clock interface {
	// NowEpochMs returns milliseconds since the Unix epoch.
	NowEpochMs() int64

	// Today returns the calendar date in the local time zone.
	Today() Date

	// Now returns the current local time.
	Now() time.Time
}

// UsageStatsSource is an optional alternative accounting input.
// Not used by the decision engine; it can seed a session at startup.
type UsageStatsSource interface {
	// ScreenTimeForApps returns milliseconds of foreground time for ids since the given instant.
	ScreenTimeForApps(ids []string, since time.Time) (int64, error)
}

// InputMethodSource lists input-method package ids currently enabled on the device.
// AppOpened events for these packages are never dispatched.
type InputMethodSource interface {
	EnabledInputMethods() ([]string, error)
}

// KeyProvider abstracts the source of encryption keys for the durable store.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
