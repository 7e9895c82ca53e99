package service

import (
	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// Verdict is the resolver's decision for a change the store refused.
type Verdict int

// Resolver verdicts.
const (
	// VerdictConflict returns the server's copy to the client.
	VerdictConflict Verdict = iota
	// VerdictRetry means the refusal was a transient race worth one more attempt.
	VerdictRetry
	// VerdictReject refuses the change with Resolution.Reason.
	VerdictReject
	// VerdictNoOp reports the change as already in effect.
	VerdictNoOp
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictReject:
		return "reject"
	case VerdictNoOp:
		return "noop"
	default:
		return "conflict"
	}
}

// Resolution is a verdict plus what the coordinator needs to report it.
type Resolution struct {
	Verdict Verdict
	Reason  errors.Code
	Current *domain.Entity
}

// Resolve decides what to do with a change that the store refused because the
// stored record is at current. The first matching rule wins:
//
//  1. base newer than stored: reject with INVALID_VERSION
//  2. stored is a tombstone and the change is an update: reject with ENTITY_DELETED
//  3. stored is a tombstone and the change deletes it at the stored version: no-op
//  4. base equals stored: retry
//  5. base older than stored: conflict, server wins
//
// Resolve never merges fields.
func Resolve(c domain.Change, current *domain.Entity) Resolution {
	base := c.Base()
	switch {
	case base > current.Version:
		return Resolution{Verdict: VerdictReject, Reason: errors.CodeInvalidVersion, Current: current}
	case current.IsDeleted() && !c.Delete:
		return Resolution{Verdict: VerdictReject, Reason: errors.CodeEntityDeleted, Current: current}
	case current.IsDeleted() && base == current.Version:
		return Resolution{Verdict: VerdictNoOp, Current: current}
	case base == current.Version:
		return Resolution{Verdict: VerdictRetry, Current: current}
	default:
		return Resolution{Verdict: VerdictConflict, Reason: errors.CodeVersionConflict, Current: current}
	}
}

// outcome turns a final resolution into the item result.
func (r Resolution) outcome(c domain.Change) domain.Outcome {
	switch r.Verdict {
	case VerdictNoOp:
		return domain.Applied(c, r.Current)
	case VerdictReject:
		o := domain.Rejected(c, rejectError(r.Reason, c, r.Current))
		if r.Reason == errors.CodeEntityDeleted {
			o.ServerEntity = r.Current
		}
		return o
	default:
		// A second retry verdict is reported as a conflict.
		return domain.Conflicted(c, r.Current)
	}
}

func rejectError(code errors.Code, c domain.Change, current *domain.Entity) error {
	switch code {
	case errors.CodeInvalidVersion:
		return errors.InvalidVersionf("base version %d is ahead of stored version %d", c.Base(), current.Version)
	case errors.CodeEntityDeleted:
		return errors.Wrapf(errors.ErrEntityDeleted, errors.CodeEntityDeleted, "%s %s was deleted at version %d", c.Kind, c.ID, current.Version)
	default:
		return &errors.Error{Code: code, Message: string(code)}
	}
}
