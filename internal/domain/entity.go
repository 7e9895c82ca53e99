package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// MaxIDLength bounds client-chosen entity and device identifiers.
const MaxIDLength = 128

// Entity is the stored form of one syncable record.
//
// Version starts at 1 and is bumped by exactly one on every accepted mutation,
// including the delete that turns the record into a tombstone. Seq is the
// position of the last write in the owner's change stream and orders pulls.
type Entity struct {
	Syncable
	Kind    Kind            `json:"kind"`
	OwnerID string          `json:"owner_id"`
	Version int64           `json:"version"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	if e.DeletedAt != nil {
		d := *e.DeletedAt
		c.DeletedAt = &d
	}
	if e.Payload != nil {
		c.Payload = bytes.Clone(e.Payload)
	}
	return &c
}

// SamePayload reports whether p is semantically the same JSON document as the
// stored payload. Key order and whitespace are ignored.
func (e *Entity) SamePayload(p json.RawMessage) bool {
	a, errA := canonicalJSON(e.Payload)
	b, errB := canonicalJSON(p)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on output.
	return json.Marshal(v)
}

// ValidateID checks a client-supplied identifier.
func ValidateID(field, id string) error {
	if id == "" {
		return errors.Validationf("%s is required", field)
	}
	if len(id) > MaxIDLength {
		return errors.Validationf("%s exceeds %d characters", field, MaxIDLength)
	}
	if strings.ContainsRune(id, ':') || strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return errors.Validationf("%s contains invalid characters", field)
	}
	return nil
}
