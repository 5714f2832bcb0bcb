package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/aegis-chat/internal/types"
)

const (
	settingSystemPrompt = "system_prompt"
	settingFeatureFlags = "feature_flags"
)

// SettingsStore keeps admin settings as JSON values in a key/value table.
type SettingsStore struct {
	db DB
}

func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// SystemPrompt returns "" when no persona has been set.
func (s *SettingsStore) SystemPrompt(ctx context.Context) (string, error) {
	var prompt string
	found, err := s.get(ctx, settingSystemPrompt, &prompt)
	if err != nil || !found {
		return "", err
	}
	return prompt, nil
}

// FeatureFlags returns the defaults when no flags have been set.
func (s *SettingsStore) FeatureFlags(ctx context.Context) (types.FeatureFlags, error) {
	flags := types.DefaultFeatureFlags()
	if _, err := s.get(ctx, settingFeatureFlags, &flags); err != nil {
		return types.DefaultFeatureFlags(), err
	}
	return flags, nil
}

func (s *SettingsStore) SetSystemPrompt(ctx context.Context, prompt string) error {
	return s.set(ctx, settingSystemPrompt, prompt)
}

func (s *SettingsStore) SetFeatureFlags(ctx context.Context, flags types.FeatureFlags) error {
	return s.set(ctx, settingFeatureFlags, flags)
}

func (s *SettingsStore) get(ctx context.Context, key string, dest any) (bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

func (s *SettingsStore) set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
