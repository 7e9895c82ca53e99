package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// Get returns the current record for (kind, id), tombstones included.
// Seq is the commit version of the last write.
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := entityKey(kind, id)
	defer releaseKey(key)

	var e *domain.Entity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = readEntity(txn, key)
		return err
	})
	if err != nil {
		return nil, Unavailable(err, "get entity")
	}
	return e, nil
}

// Create stores a new record at version 1.
// Returns ErrAlreadyExists if the id was ever used for this kind.
func (s *Store) Create(ctx context.Context, kind domain.Kind, id, ownerID string, payload json.RawMessage) (*domain.Entity, error) {
	ek := entityKey(kind, id)
	defer releaseKey(ek)
	ok := ownerKey(ownerID, kind, id)
	defer releaseKey(ok)

	var created *domain.Entity
	err := s.update(ctx, "create entity", func(txn *badger.Txn) error {
		created = nil

		_, err := txn.Get(ek)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing key: %w", err)
		}

		e := &domain.Entity{Kind: kind, OwnerID: ownerID, Version: 1, Payload: payload}
		e.ID = id
		e.InitTimestamps(s.now())
		if err := writeEntity(txn, ek, ok, e); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, Unavailable(err, "create entity")
	}
	return created, nil
}

// ApplyIfVersion writes m if the stored version still equals expected.
//
// The read and the write share one transaction. Badger tracks the read key and
// fails the commit if another transaction wrote it first; the retry then sees
// the new version and reports a conflict instead of overwriting it.
func (s *Store) ApplyIfVersion(ctx context.Context, kind domain.Kind, id, ownerID string, expected int64, m Mutation) (*domain.Entity, error) {
	ek := entityKey(kind, id)
	defer releaseKey(ek)
	ok := ownerKey(ownerID, kind, id)
	defer releaseKey(ok)

	var applied *domain.Entity
	err := s.update(ctx, "apply entity", func(txn *badger.Txn) error {
		applied = nil

		current, err := readEntity(txn, ek)
		if err != nil {
			return err
		}
		if err := CheckVersion(current, ownerID, expected); err != nil {
			return err
		}

		next := current.Clone()
		next.Version++
		next.Seq = 0
		now := s.now()
		if m.Delete {
			next.MarkDeleted(now)
		} else {
			next.Payload = m.Payload
			next.Touch(now)
		}

		if err := writeEntity(txn, ek, ok, next); err != nil {
			return err
		}
		applied = next
		return nil
	})
	if err != nil {
		return nil, Unavailable(err, "apply entity")
	}
	return applied, nil
}

// writeEntity sets the record and its owner index in the same transaction so
// both carry the same commit version.
func writeEntity(txn *badger.Txn, entityKey, ownerKey []byte, e *domain.Entity) error {
	if err := setJSON(txn, entityKey, e); err != nil {
		return fmt.Errorf("failed to set entity: %w", err)
	}
	if err := txn.Set(ownerKey, nil); err != nil {
		return fmt.Errorf("failed to set owner index: %w", err)
	}
	return nil
}

type changeRef struct {
	kind domain.Kind
	id   string
	seq  uint64
}

// ListChangedSince returns the owner's records written after since.
//
// Everything happens in one read transaction. Its read timestamp is taken when
// the transaction opens, before any row is read, and every commit at or below
// it is visible, so it is a safe resumption point for a complete listing.
func (s *Store) ListChangedSince(ctx context.Context, ownerID string, kinds []domain.Kind, since domain.Watermark, limit int) (*ChangePage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = domain.AllKinds()
	}
	if limit <= 0 {
		limit = 1
	}

	page := &ChangePage{}
	err := s.db.View(func(txn *badger.Txn) error {
		observed := domain.Watermark(txn.ReadTs())

		// One extra ref tells whether another page follows.
		lowest := newLowestRefs(limit + 1)
		for _, kind := range kinds {
			scanOwnerKind(txn, ownerID, kind, since, lowest)
		}
		refs := lowest.sorted()

		if len(refs) > limit {
			refs = refs[:limit]
			page.HasMore = true
		}

		page.Entities = make([]*domain.Entity, 0, len(refs))
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := entityKey(ref.kind, ref.id)
			e, err := readEntity(txn, key)
			releaseKey(key)
			if err != nil {
				return fmt.Errorf("read %s %s: %w", ref.kind, ref.id, err)
			}
			page.Entities = append(page.Entities, e)
		}

		if page.HasMore {
			page.Watermark = domain.Watermark(refs[len(refs)-1].seq)
		} else {
			page.Watermark = since.Max(observed)
		}
		return nil
	})
	if err != nil {
		return nil, Unavailable(err, "list changes")
	}
	return page, nil
}

func scanOwnerKind(txn *badger.Txn, ownerID string, kind domain.Kind, since domain.Watermark, into *lowestRefs) {
	prefix := ownerKindPrefix(ownerID, kind)
	defer releaseKey(prefix)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if item.Version() <= uint64(since) {
			continue
		}
		into.add(changeRef{
			kind: kind,
			id:   unescapeKeyPart(item.Key()[len(prefix):]),
			seq:  item.Version(),
		})
	}
}

func compareRefs(a, b changeRef) int {
	return cmp.Or(cmp.Compare(a.seq, b.seq), cmp.Compare(a.kind, b.kind), cmp.Compare(a.id, b.id))
}

// lowestRefs keeps the n smallest refs seen, in (seq, kind, id) order.
// The owner index is keyed by id rather than seq, so the walk visits every
// key, but the buffer never grows past 2n.
type lowestRefs struct {
	n    int
	refs []changeRef
}

func newLowestRefs(n int) *lowestRefs {
	return &lowestRefs{n: n, refs: make([]changeRef, 0, min(2*n, 1024))}
}

func (l *lowestRefs) add(r changeRef) {
	l.refs = append(l.refs, r)
	if len(l.refs) >= 2*l.n {
		l.trim()
	}
}

func (l *lowestRefs) trim() {
	slices.SortFunc(l.refs, compareRefs)
	if len(l.refs) > l.n {
		l.refs = l.refs[:l.n]
	}
}

// sorted returns the kept refs in order.
func (l *lowestRefs) sorted() []changeRef {
	l.trim()
	return l.refs
}
