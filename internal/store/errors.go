package store

import (
	"fmt"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// Sentinel errors. They share codes with internal/errors so errors.Is works
// across both packages.
var (
	ErrNotFound           = errors.NotFound("entity not found")
	ErrAlreadyExists      = errors.AlreadyExists("entity already exists")
	ErrVersionConflict    = errors.ErrVersionConflict
	ErrEntityDeleted      = errors.ErrEntityDeleted
	ErrStorageUnavailable = errors.ErrStorageUnavailable
	ErrInvalidCursor      = errors.Validation("invalid watermark")
)

// ConflictError is returned by ApplyIfVersion when the write was not accepted.
// Current is the stored record at the moment of the check; nothing was mutated.
type ConflictError struct {
	Current *domain.Entity
	Err     error // ErrVersionConflict or ErrEntityDeleted
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s at version %d: %v", e.Current.Kind, e.Current.ID, e.Current.Version, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func versionConflict(current *domain.Entity) error {
	return &ConflictError{Current: current, Err: ErrVersionConflict}
}

func entityDeleted(current *domain.Entity) error {
	return &ConflictError{Current: current, Err: ErrEntityDeleted}
}

// CheckVersion decides whether a mutation expecting version expected may be
// applied to current. Every backend runs it inside its write transaction.
func CheckVersion(current *domain.Entity, ownerID string, expected int64) error {
	if current.OwnerID != ownerID {
		return ErrNotFound
	}
	if current.Version != expected {
		return versionConflict(current)
	}
	if current.IsDeleted() {
		return entityDeleted(current)
	}
	return nil
}

// Unavailable wraps a backend failure as STORAGE_UNAVAILABLE unless it already
// carries a domain code.
func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		return err
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return err
	}
	return errors.StorageUnavailable(err, op)
}
