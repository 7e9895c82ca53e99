// Package store defines the persistence interface for the FuelUp sync engine
// and provides the default Badger-backed implementation.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fuelupapp/fuelup-server/internal/domain"
)

// Mutation is the new state requested by an accepted change.
type Mutation struct {
	Payload json.RawMessage
	Delete  bool
}

// ChangePage is one page of a change listing.
// When HasMore is false, Watermark is the read's observation point and a later
// listing from it misses nothing.
type ChangePage struct {
	Entities  []*domain.Entity
	Watermark domain.Watermark
	HasMore   bool
}

// EntityStore owns syncable records.
type EntityStore interface {
	Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entity, error)
	Create(ctx context.Context, kind domain.Kind, id, ownerID string, payload json.RawMessage) (*domain.Entity, error)
	// ApplyIfVersion is linearizable per (kind, id). On a mismatch it returns a
	// *ConflictError holding the current record and mutates nothing.
	ApplyIfVersion(ctx context.Context, kind domain.Kind, id, ownerID string, expected int64, m Mutation) (*domain.Entity, error)
	ListChangedSince(ctx context.Context, ownerID string, kinds []domain.Kind, since domain.Watermark, limit int) (*ChangePage, error)
}

// CheckpointUpdate carries the fields written by an advance.
type CheckpointUpdate struct {
	UserID     string
	DeviceID   string
	DeviceName string
	Watermark  domain.Watermark
	At         time.Time
}

// CheckpointStore owns per-device sync positions.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, userID, deviceID string) (*domain.Checkpoint, error)
	// AdvanceCheckpoint upserts the checkpoint. The stored watermark never moves backwards.
	AdvanceCheckpoint(ctx context.Context, u CheckpointUpdate) (*domain.Checkpoint, error)
	ListCheckpoints(ctx context.Context, userID string) ([]*domain.Checkpoint, error)
}

// Backend is a complete storage driver.
type Backend interface {
	EntityStore
	CheckpointStore
	Ping(ctx context.Context) error
	Close() error
}

var _ Backend = (*Store)(nil)
