package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/grayd/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "grayd.db"
	schemaVersion = "1"
)

// EncryptedStore implements domain.SettingsStore and domain.SessionStore
// using a SQLCipher encrypted SQLite database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// The pragma key is applied per connection.
	db.SetMaxOpenConns(1)

	// A wrong key surfaces here or on the first query.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS screen_time_sessions (
		id TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		used_up_ms INTEGER NOT NULL,
		tracking_since_ms INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion)
	return err
}

// --- domain.SettingsStore implementation ---

// Get returns the stored value and whether the key exists.
func (s *EncryptedStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores a single setting.
func (s *EncryptedStore) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// SetAll writes every entry in one transaction.
func (s *EncryptedStore) SetAll(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare settings write: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for k, v := range values {
		if _, err := stmt.Exec(k, v, now); err != nil {
			return fmt.Errorf("failed to write setting %q: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings: %w", err)
	}
	return nil
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *EncryptedStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}
	return nil
}

// AllSettings returns every stored setting (for the config command).
func (s *EncryptedStore) AllSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// --- domain.SessionStore implementation ---

// LoadSession returns the stored session state or domain.ErrNotFound.
func (s *EncryptedStore) LoadSession(id string) (domain.SessionState, error) {
	var day string
	var state domain.SessionState
	err := s.db.QueryRow(`SELECT day, used_up_ms, tracking_since_ms FROM screen_time_sessions WHERE id = ?`, id).
		Scan(&day, &state.UsedUpMs, &state.TrackingSinceEpochMs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionState{}, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("failed to load session %q: %w", id, err)
	}

	state.Day, err = domain.ParseDate(day)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("corrupt session %q: %w", id, err)
	}
	return state, nil
}

// SaveSession overwrites the stored session state.
func (s *EncryptedStore) SaveSession(id string, state domain.SessionState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO screen_time_sessions (id, day, used_up_ms, tracking_since_ms, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, state.Day.String(), state.UsedUpMs, state.TrackingSinceEpochMs, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %q: %w", id, err)
	}
	return nil
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both interfaces.
var _ domain.SettingsStore = (*EncryptedStore)(nil)
var _ domain.SessionStore = (*EncryptedStore)(nil)
