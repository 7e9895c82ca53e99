package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/id"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

const checkpointColumns = `id, user_id, device_id, device_name, watermark, last_sync_at, created_at, updated_at`

func scanCheckpoint(row scanner) (*domain.Checkpoint, error) {
	var (
		cp         domain.Checkpoint
		deviceName sql.NullString
		watermark  int64
		lastSyncAt string
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&cp.ID, &cp.UserID, &cp.DeviceID, &deviceName, &watermark, &lastSyncAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	cp.DeviceName = deviceName.String
	cp.Watermark = domain.Watermark(watermark)
	if cp.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
		return nil, fmt.Errorf("parse last_sync_at: %w", err)
	}
	if cp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &cp, nil
}

// GetCheckpoint returns the stored checkpoint or ErrNotFound.
func (s *Store) GetCheckpoint(ctx context.Context, userID, deviceID string) (*domain.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE user_id = ? AND device_id = ?`,
		userID, deviceID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("checkpoint not found")
	}
	if err != nil {
		return nil, store.Unavailable(err, "get checkpoint")
	}
	return cp, nil
}

// AdvanceCheckpoint upserts the checkpoint, keeping the larger watermark.
func (s *Store) AdvanceCheckpoint(ctx context.Context, u store.CheckpointUpdate) (*domain.Checkpoint, error) {
	at := formatTime(u.At)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sync_checkpoints (`+checkpointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			watermark    = MAX(sync_checkpoints.watermark, excluded.watermark),
			device_name  = COALESCE(excluded.device_name, sync_checkpoints.device_name),
			last_sync_at = excluded.last_sync_at,
			updated_at   = excluded.updated_at
		RETURNING `+checkpointColumns,
		id.MustGenerate(id.PrefixCheckpoint), u.UserID, u.DeviceID, nullString(u.DeviceName),
		int64(u.Watermark), at, at, at)

	cp, err := scanCheckpoint(row)
	if err != nil {
		return nil, store.Unavailable(err, "advance checkpoint")
	}
	return cp, nil
}

// ListCheckpoints returns every device checkpoint of a user ordered by device id.
func (s *Store) ListCheckpoints(ctx context.Context, userID string) ([]*domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE user_id = ? ORDER BY device_id`, userID)
	if err != nil {
		return nil, store.Unavailable(err, "list checkpoints")
	}
	defer rows.Close()

	var out []*domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, store.Unavailable(err, "scan checkpoint")
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable(err, "list checkpoints")
	}
	return out, nil
}
