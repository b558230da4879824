package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// SettingsStore handles key/value settings stored in the MetaStore's
// settings table, taking precedence over environment variables once loaded
// (spec §4.1). Satisfies config.SettingsReader.
type SettingsStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSettingsStore constructs a SettingsStore over the MetaStore connection.
func NewSettingsStore(ms *MetaStore) *SettingsStore {
	return &SettingsStore{db: ms.Conn(), log: ms.log.With().Str("repository", "settings").Logger()}
}

// Get retrieves a setting value by key. Returns nil if the setting doesn't exist.
func (r *SettingsStore) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set writes a setting value, creating or overwriting it.
func (r *SettingsStore) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAll retrieves all settings as a map.
func (r *SettingsStore) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("failed to scan setting row")
			continue
		}
		result[key] = value
	}
	return result, rows.Err()
}

// GetInt retrieves a setting value as an integer, returning defaultValue if
// the setting is absent or unparseable. Parses via float first to tolerate
// "4.0"-style stored values.
func (r *SettingsStore) GetInt(key string, defaultValue int) (int, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Str("value", *value).Msg("failed to parse int setting")
		return defaultValue, nil
	}
	return int(f), nil
}

// SetInt stores an integer setting.
func (r *SettingsStore) SetInt(key string, value int) error {
	return r.Set(key, strconv.Itoa(value))
}

// GetFloat retrieves a setting value as a float64, returning defaultValue if
// the setting is absent or unparseable.
func (r *SettingsStore) GetFloat(key string, defaultValue float64) (float64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Str("value", *value).Msg("failed to parse float setting")
		return defaultValue, nil
	}
	return f, nil
}

// SetFloat stores a float setting.
func (r *SettingsStore) SetFloat(key string, value float64) error {
	return r.Set(key, fmt.Sprintf("%f", value))
}

// GetBool retrieves a setting value as a bool, returning defaultValue if the
// setting is absent or unparseable.
func (r *SettingsStore) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(*value)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Str("value", *value).Msg("failed to parse bool setting")
		return defaultValue, nil
	}
	return b, nil
}

// SetBool stores a bool setting.
func (r *SettingsStore) SetBool(key string, value bool) error {
	return r.Set(key, strconv.FormatBool(value))
}
