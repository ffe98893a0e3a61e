package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"chatpilot/pkg/config"
	"chatpilot/pkg/log"
	"chatpilot/pkg/utils"
)

const (
	settingsKey = "settings:v1"     // Single well-known key for the settings record
	stateDBDir  = "chatpilot_state" // Subdirectory within stateDir for Badger DB files
)

// BadgerStore implements SettingsStore on BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the settings database under stateDir.
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, stateDBDir)
	logger.Infof("Initializing settings database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest settings record matters

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %v", utils.ErrDatabase, dbPath, err)
	}

	logger.Info("Settings database initialized successfully")
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction
// conflicts. Concurrent MVCC transactions on overlapping keys can return
// badger.ErrConflict; these resolve in microseconds, so a tight retry loop
// is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// LoadSettings implements SettingsStore.
func (s *BadgerStore) LoadSettings(ctx context.Context) (config.Settings, bool, error) {
	if err := ctx.Err(); err != nil {
		return config.Settings{}, false, err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingsKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return config.Settings{}, false, nil
	}
	if err != nil {
		return config.Settings{}, false, fmt.Errorf("%w: reading settings: %v", utils.ErrDatabase, err)
	}

	var loaded config.Settings
	if err := json.Unmarshal(raw, &loaded); err != nil {
		// A corrupt record is not fatal; the session starts from defaults
		s.log.Errorf("Persisted settings are corrupt, ignoring: %v", err)
		return config.Settings{}, false, nil
	}
	if warnings, _ := loaded.Validate(); len(warnings) > 0 {
		for _, w := range warnings {
			s.log.Warnf("Persisted settings adjusted: %s", w)
		}
	}
	return loaded, true, nil
}

// SaveSettings implements SettingsStore.
func (s *BadgerStore) SaveSettings(ctx context.Context, cfg config.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	err = s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingsKey), raw)
	})
	if err != nil {
		return fmt.Errorf("%w: writing settings: %v", utils.ErrDatabase, err)
	}
	return nil
}

// Close implements SettingsStore.
func (s *BadgerStore) Close() error {
	s.log.Info("Closing settings database")
	return s.db.Close()
}
