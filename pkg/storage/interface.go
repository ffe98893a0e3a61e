package storage

import (
	"context"

	"chatpilot/pkg/config"
)

// SettingsStore persists the single settings record. The engine is a
// read-mostly client; the popup process owns most writes, the engine writes
// back quota counters, command usage and quick-reply state.
type SettingsStore interface {
	// LoadSettings returns the persisted settings. found is false when no
	// record exists yet; callers fall back to defaults.
	LoadSettings(ctx context.Context) (s config.Settings, found bool, err error)

	// SaveSettings replaces the persisted settings record.
	SaveSettings(ctx context.Context, s config.Settings) error

	// Close releases the underlying database.
	Close() error
}
