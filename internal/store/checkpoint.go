package store

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/id"
)

// GetCheckpoint returns the stored checkpoint or ErrNotFound.
func (s *Store) GetCheckpoint(ctx context.Context, userID, deviceID string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := checkpointKey(userID, deviceID)
	defer releaseKey(key)

	var cp domain.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getJSON(txn, key, &cp)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.NotFound("checkpoint not found")
	}
	if err != nil {
		return nil, Unavailable(err, "get checkpoint")
	}
	return &cp, nil
}

// AdvanceCheckpoint moves the device's watermark forward, creating the
// checkpoint on first use.
func (s *Store) AdvanceCheckpoint(ctx context.Context, u CheckpointUpdate) (*domain.Checkpoint, error) {
	key := checkpointKey(u.UserID, u.DeviceID)
	defer releaseKey(key)

	var saved *domain.Checkpoint
	err := s.update(ctx, "advance checkpoint", func(txn *badger.Txn) error {
		cp := domain.NewCheckpoint(u.UserID, u.DeviceID)
		_, err := getJSON(txn, key, cp)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			cp.ID = id.MustGenerate(id.PrefixCheckpoint)
			cp.InitTimestamps(u.At)
		case err != nil:
			return err
		default:
			cp.Touch(u.At)
		}

		applyCheckpointUpdate(cp, u)
		if err := setJSON(txn, key, cp); err != nil {
			return err
		}
		saved = cp
		return nil
	})
	if err != nil {
		return nil, Unavailable(err, "advance checkpoint")
	}
	return saved, nil
}

// applyCheckpointUpdate folds an advance into cp. Shared by every backend that
// does the merge in Go rather than in SQL.
func applyCheckpointUpdate(cp *domain.Checkpoint, u CheckpointUpdate) {
	cp.Watermark = cp.Watermark.Max(u.Watermark)
	cp.LastSyncAt = u.At.UTC()
	if u.DeviceName != "" {
		cp.DeviceName = u.DeviceName
	}
}

// ListCheckpoints returns every device checkpoint of a user ordered by device id.
func (s *Store) ListCheckpoints(ctx context.Context, userID string) ([]*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := checkpointUserPrefix(userID)
	defer releaseKey(prefix)

	var out []*domain.Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var cp domain.Checkpoint
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			})
			if err != nil {
				return err
			}
			out = append(out, &cp)
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable(err, "list checkpoints")
	}
	// Escaping can reorder keys relative to the raw ids.
	slices.SortFunc(out, func(a, b *domain.Checkpoint) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out, nil
}
