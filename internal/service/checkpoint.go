package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

// CheckpointManager tracks how far each device of a user has synced.
type CheckpointManager struct {
	store  store.CheckpointStore
	logger *slog.Logger
	now    func() time.Time
}

// NewCheckpointManager creates a new checkpoint manager.
func NewCheckpointManager(cs store.CheckpointStore, logger *slog.Logger) *CheckpointManager {
	return &CheckpointManager{
		store:  cs,
		logger: logger,
		now:    time.Now,
	}
}

// GetCheckpoint returns the device's checkpoint, or a zero-watermark default
// when the device has never synced.
func (m *CheckpointManager) GetCheckpoint(ctx context.Context, userID, deviceID string) (*domain.Checkpoint, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}
	cp, err := m.store.GetCheckpoint(ctx, userID, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewCheckpoint(userID, deviceID), nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// AdvanceCheckpoint records a completed pull. The stored watermark never moves
// backwards; an empty deviceName keeps the stored one.
func (m *CheckpointManager) AdvanceCheckpoint(ctx context.Context, userID, deviceID, deviceName string, w domain.Watermark) (*domain.Checkpoint, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}
	cp, err := m.store.AdvanceCheckpoint(ctx, store.CheckpointUpdate{
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Watermark:  w,
		At:         m.now(),
	})
	if err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Debug("checkpoint advanced",
			"user_id", userID,
			"device_id", deviceID,
			"watermark", uint64(cp.Watermark),
		)
	}
	return cp, nil
}

// ListDevices returns every device that has synced for the user.
func (m *CheckpointManager) ListDevices(ctx context.Context, userID string) ([]*domain.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx, userID)
}

func validateDeviceID(deviceID string) error {
	if deviceID == "" {
		return errors.Validation("deviceId is required")
	}
	if len(deviceID) > domain.MaxIDLength {
		return errors.Validationf("deviceId exceeds %d characters", domain.MaxIDLength)
	}
	return nil
}
