package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Well-known setting keys and categories.
const (
	CategoryGeneral = "general"

	SettingActivePlanID = "active_plan_id"
	SettingDBEngine     = "db_engine"
)

// SaveSetting upserts a key/value pair within a category.
func (s *SQLiteStore) SaveSetting(key, value, category, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveSettingTx(tx, key, value, category, description); err != nil {
		return err
	}
	return s.commitNotify(tx)
}

func saveSettingTx(tx *sql.Tx, key, value, category, description string) error {
	if category == "" {
		category = CategoryGeneral
	}
	_, err := tx.Exec(`
		INSERT INTO app_settings (key, category, value, description, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, category) DO UPDATE SET
			value = excluded.value,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, key, category, value, description, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save setting %s/%s: %w", category, key, err)
	}
	return nil
}

// LoadSetting returns the value and whether the key exists.
func (s *SQLiteStore) LoadSetting(key, category string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if category == "" {
		category = CategoryGeneral
	}
	var value string
	err := s.db.QueryRow(`
		SELECT value FROM app_settings WHERE key = ? AND category = ?
	`, key, category).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load setting %s/%s: %w", category, key, err)
	}
	return value, true, nil
}

// DeleteSetting removes a key. Deleting a missing key is not an error.
func (s *SQLiteStore) DeleteSetting(key, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == "" {
		category = CategoryGeneral
	}
	if _, err := s.db.Exec(`DELETE FROM app_settings WHERE key = ? AND category = ?`, key, category); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// ListSettings returns all settings in a category, ordered by key.
func (s *SQLiteStore) ListSettings(category string) ([]*AppSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if category == "" {
		category = CategoryGeneral
	}
	rows, err := s.db.Query(`
		SELECT key, category, value, description, updated_at
		FROM app_settings WHERE category = ? ORDER BY key
	`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings for %s: %w", category, err)
	}
	defer rows.Close()

	var settings []*AppSetting
	for rows.Next() {
		var st AppSetting
		if err := rows.Scan(&st.Key, &st.Category, &st.Value, &st.Description, &st.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, &st)
	}
	return settings, rows.Err()
}
