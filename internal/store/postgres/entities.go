package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

const entityColumns = `kind, id, owner_id, version, seq, payload, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*domain.Entity, error) {
	var (
		e         domain.Entity
		kind      string
		seq       int64
		payload   []byte
		deletedAt sql.NullTime
	)
	if err := row.Scan(&kind, &e.ID, &e.OwnerID, &e.Version, &seq, &payload, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	e.Kind = domain.Kind(kind)
	e.Seq = uint64(seq)
	if payload != nil {
		e.Payload = json.RawMessage(payload)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		e.DeletedAt = &t
	}
	return &e, nil
}

func payloadArg(p json.RawMessage) any {
	if p == nil {
		return nil
	}
	return string(p)
}

func deletedArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

const nextSeqQuery = `
	INSERT INTO sync_clocks (owner_id, value) VALUES ($1, 1)
	ON CONFLICT (owner_id) DO UPDATE SET value = sync_clocks.value + 1
	RETURNING value`

// nextSeq bumps the owner's change counter and returns the new value.
// The row lock it takes is held until the transaction ends.
func nextSeq(ctx context.Context, q dbtx, ownerID string) (uint64, error) {
	var v int64
	if err := q.QueryRowContext(ctx, nextSeqQuery, ownerID).Scan(&v); err != nil {
		return 0, fmt.Errorf("bump clock: %w", err)
	}
	return uint64(v), nil
}

func getEntity(ctx context.Context, q dbtx, kind domain.Kind, id string, forUpdate bool) (*domain.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntity(q.QueryRowContext(ctx, query, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

// Get returns the current record for (kind, id).
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entity, error) {
	e, err := getEntity(ctx, s.db, kind, id, false)
	if err != nil {
		return nil, store.Unavailable(err, "get entity")
	}
	return e, nil
}

// Create inserts a record at version 1. A concurrent insert of the same key
// waits for the first to finish and then finds the conflict.
func (s *Store) Create(ctx context.Context, kind domain.Kind, id, ownerID string, payload json.RawMessage) (*domain.Entity, error) {
	e := &domain.Entity{Kind: kind, OwnerID: ownerID, Version: 1, Payload: payload}
	e.ID = id
	e.InitTimestamps(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSeq(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		e.Seq = seq

		res, err := tx.ExecContext(ctx, `
			INSERT INTO entities (`+entityColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
			ON CONFLICT (kind, id) DO NOTHING`,
			string(kind), id, ownerID, e.Version, int64(seq), payloadArg(payload), e.CreatedAt, e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrAlreadyExists
		}
		return nil
	})
	if err != nil {
		return nil, store.Unavailable(err, "create entity")
	}
	return e, nil
}

// ApplyIfVersion locks the row, checks the version, and writes the mutation.
func (s *Store) ApplyIfVersion(ctx context.Context, kind domain.Kind, id, ownerID string, expected int64, m store.Mutation) (*domain.Entity, error) {
	var applied *domain.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEntity(ctx, tx, kind, id, true)
		if err != nil {
			return err
		}
		if err := store.CheckVersion(current, ownerID, expected); err != nil {
			return err
		}

		next := current.Clone()
		next.Version++
		now := s.now()
		if m.Delete {
			next.MarkDeleted(now)
		} else {
			next.Payload = m.Payload
			next.Touch(now)
		}
		if next.Seq, err = nextSeq(ctx, tx, ownerID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE entities
			SET version = $1, seq = $2, payload = $3, updated_at = $4, deleted_at = $5
			WHERE kind = $6 AND id = $7 AND version = $8`,
			next.Version, int64(next.Seq), payloadArg(next.Payload), next.UpdatedAt, deletedArg(next.DeletedAt),
			string(kind), id, expected)
		if err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		applied = next
		return nil
	})
	if err != nil {
		return nil, store.Unavailable(err, "apply entity")
	}
	return applied, nil
}

// ListChangedSince returns the owner's records with seq in (since, clock].
// A committed clock value covers only committed writes because the clock row
// lock orders the owner's transactions.
func (s *Store) ListChangedSince(ctx context.Context, ownerID string, kinds []domain.Kind, since domain.Watermark, limit int) (*store.ChangePage, error) {
	if len(kinds) == 0 {
		kinds = domain.AllKinds()
	}
	if limit <= 0 {
		limit = 1
	}

	var clock int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_clocks WHERE owner_id = $1`, ownerID).Scan(&clock)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, store.Unavailable(err, "read clock")
	}
	observed := domain.Watermark(clock)

	page := &store.ChangePage{Watermark: since.Max(observed)}
	if observed <= since {
		return page, nil
	}

	args := []any{ownerID, int64(since), clock}
	placeholders := make([]string, len(kinds))
	for i, k := range kinds {
		args = append(args, string(k))
		placeholders[i] = "$" + strconv.Itoa(len(args))
	}
	args = append(args, limit+1)
	limitArg := "$" + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = $1 AND seq > $2 AND seq <= $3 AND kind IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY seq
		LIMIT `+limitArg, args...)
	if err != nil {
		return nil, store.Unavailable(err, "list changes")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, store.Unavailable(err, "scan change")
		}
		page.Entities = append(page.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable(err, "list changes")
	}

	if len(page.Entities) > limit {
		page.Entities = page.Entities[:limit]
		page.HasMore = true
		page.Watermark = domain.Watermark(page.Entities[limit-1].Seq)
	}
	return page, nil
}
