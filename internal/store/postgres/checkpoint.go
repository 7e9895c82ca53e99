package postgres

import (
	"context"
	"database/sql"

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
	)
	if err := row.Scan(&cp.ID, &cp.UserID, &cp.DeviceID, &deviceName, &watermark, &cp.LastSyncAt, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
		return nil, err
	}
	cp.DeviceName = deviceName.String
	cp.Watermark = domain.Watermark(watermark)
	cp.LastSyncAt = cp.LastSyncAt.UTC()
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.UpdatedAt = cp.UpdatedAt.UTC()
	return &cp, nil
}

// GetCheckpoint returns the stored checkpoint or ErrNotFound.
func (s *Store) GetCheckpoint(ctx context.Context, userID, deviceID string) (*domain.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID))
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
	var deviceName any
	if u.DeviceName != "" {
		deviceName = u.DeviceName
	}
	at := u.At.UTC()

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, `
		INSERT INTO sync_checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			watermark    = GREATEST(sync_checkpoints.watermark, EXCLUDED.watermark),
			device_name  = COALESCE(EXCLUDED.device_name, sync_checkpoints.device_name),
			last_sync_at = EXCLUDED.last_sync_at,
			updated_at   = EXCLUDED.updated_at
		RETURNING `+checkpointColumns,
		id.MustGenerate(id.PrefixCheckpoint), u.UserID, u.DeviceID, deviceName, int64(u.Watermark), at))
	if err != nil {
		return nil, store.Unavailable(err, "advance checkpoint")
	}
	return cp, nil
}

// ListCheckpoints returns every device checkpoint of a user ordered by device id.
func (s *Store) ListCheckpoints(ctx context.Context, userID string) ([]*domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkpointColumns+` FROM sync_checkpoints WHERE user_id = $1 ORDER BY device_id`, userID)
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
