package service

import (
	"context"
	"strings"
	"testing"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointManager_DefaultsToZero(t *testing.T) {
	_, testStore, _ := setupTestSync(t)
	m := NewCheckpointManager(testStore, nil)

	cp, err := m.GetCheckpoint(context.Background(), "u1", "phone")
	require.NoError(t, err)
	assert.True(t, cp.IsNew())
	assert.True(t, cp.Watermark.IsZero())
	assert.Equal(t, "phone", cp.DeviceID)
}

func TestCheckpointManager_AdvanceNeverMovesBackwards(t *testing.T) {
	_, testStore, _ := setupTestSync(t)
	m := NewCheckpointManager(testStore, nil)
	ctx := context.Background()

	cp, err := m.AdvanceCheckpoint(ctx, "u1", "phone", "Pixel 9", 50)
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(50), cp.Watermark)
	assert.False(t, cp.LastSyncAt.IsZero())

	cp, err = m.AdvanceCheckpoint(ctx, "u1", "phone", "", 20)
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(50), cp.Watermark)
	assert.Equal(t, "Pixel 9", cp.DeviceName, "empty name keeps the stored one")

	got, err := m.GetCheckpoint(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(50), got.Watermark)
	assert.False(t, got.IsNew())
}

func TestCheckpointManager_ListDevices(t *testing.T) {
	_, testStore, _ := setupTestSync(t)
	m := NewCheckpointManager(testStore, nil)
	ctx := context.Background()

	_, err := m.AdvanceCheckpoint(ctx, "u1", "tablet", "iPad", 3)
	require.NoError(t, err)
	_, err = m.AdvanceCheckpoint(ctx, "u1", "phone", "Pixel", 7)
	require.NoError(t, err)
	_, err = m.AdvanceCheckpoint(ctx, "u2", "laptop", "", 1)
	require.NoError(t, err)

	devices, err := m.ListDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "phone", devices[0].DeviceID)
	assert.Equal(t, "tablet", devices[1].DeviceID)
}

func TestCheckpointManager_ValidatesDeviceID(t *testing.T) {
	_, testStore, _ := setupTestSync(t)
	m := NewCheckpointManager(testStore, nil)

	_, err := m.GetCheckpoint(context.Background(), "u1", "")
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = m.AdvanceCheckpoint(context.Background(), "u1", strings.Repeat("d", domain.MaxIDLength+1), "", 1)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
