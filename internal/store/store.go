package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// maxTxnRetries bounds how often a write transaction is re-run after Badger
// reports a commit conflict with a concurrent transaction.
const maxTxnRetries = 16

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// New opens (or creates) a Badger database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}

	return &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.StorageUnavailable(badger.ErrDBClosed, "ping")
	}
	return nil
}

// update runs fn in a read-write transaction, re-running it when the commit
// loses a race. fn must reset any captured results on each call.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if attempt == maxTxnRetries {
			return fmt.Errorf("%s: gave up after %d conflicting commits: %w", op, attempt+1, err)
		}
		if s.logger != nil {
			s.logger.Debug("retrying conflicted transaction", "op", op, "attempt", attempt+1)
		}
	}
}

// getJSON reads and decodes the value at key inside txn.
// It returns the item's commit version alongside.
func getJSON(txn *badger.Txn, key []byte, dest any) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		return 0, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
	if err != nil {
		return 0, err
	}
	return item.Version(), nil
}

// setJSON encodes value and stores it at key inside txn.
func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set(key, data)
}

func readEntity(txn *badger.Txn, key []byte) (*domain.Entity, error) {
	var e domain.Entity
	version, err := getJSON(txn, key, &e)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Seq = version
	return &e, nil
}
