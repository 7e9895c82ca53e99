package domain

import (
	"encoding/json"

	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// Change is one client-side edit submitted in a push.
// A nil BaseVersion means the client is creating the record.
type Change struct {
	Kind        Kind
	ID          string
	BaseVersion *int64
	Payload     json.RawMessage
	Delete      bool
}

// IsCreate reports whether the client believes the record is new.
func (c Change) IsCreate() bool { return c.BaseVersion == nil }

// Base returns the claimed base version, zero for a create.
func (c Change) Base() int64 {
	if c.BaseVersion == nil {
		return 0
	}
	return *c.BaseVersion
}

// Status is the terminal state of one push item.
type Status string

// Push item states.
const (
	StatusApplied  Status = "applied"
	StatusConflict Status = "conflict"
	StatusRejected Status = "rejected"
)

// Outcome is the per-item result of a push.
type Outcome struct {
	ID           string
	Kind         Kind
	Status       Status
	Version      int64
	ServerEntity *Entity
	Reason       errors.Code
	Message      string
}

// Applied builds an applied outcome.
func Applied(c Change, e *Entity) Outcome {
	return Outcome{ID: e.ID, Kind: c.Kind, Status: StatusApplied, Version: e.Version}
}

// Conflicted builds a conflict outcome carrying the server's copy.
func Conflicted(c Change, current *Entity) Outcome {
	return Outcome{
		ID:           c.ID,
		Kind:         c.Kind,
		Status:       StatusConflict,
		Version:      current.Version,
		ServerEntity: current,
		Reason:       errors.CodeVersionConflict,
	}
}

// Rejected builds a rejected outcome from a coded error.
func Rejected(c Change, err error) Outcome {
	o := Outcome{ID: c.ID, Kind: c.Kind, Status: StatusRejected, Reason: errors.CodeOf(err)}
	if err != nil {
		o.Message = err.Error()
	}
	return o
}
