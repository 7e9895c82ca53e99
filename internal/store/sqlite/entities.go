package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

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
		payload   sql.NullString
		createdAt string
		updatedAt string
		deletedAt sql.NullString
	)
	if err := row.Scan(&kind, &e.ID, &e.OwnerID, &e.Version, &seq, &payload, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	var err error
	e.Kind = domain.Kind(kind)
	e.Seq = uint64(seq)
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if e.DeletedAt, err = parseNullableTime(deletedAt); err != nil {
		return nil, fmt.Errorf("parse deleted_at: %w", err)
	}
	return &e, nil
}

func payloadString(p json.RawMessage) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(p), Valid: true}
}

func getEntity(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, kind domain.Kind, id string) (*domain.Entity, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = ? AND id = ?`, string(kind), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

// nextSeq bumps the owner's change counter inside tx and returns the new value.
func nextSeq(ctx context.Context, tx *sql.Tx, ownerID string) (uint64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO sync_clocks (owner_id, value) VALUES (?, 1)
		ON CONFLICT (owner_id) DO UPDATE SET value = value + 1
		RETURNING value`, ownerID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("bump clock: %w", err)
	}
	return uint64(v), nil
}

// Get returns the current record for (kind, id).
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (*domain.Entity, error) {
	e, err := getEntity(ctx, s.db, kind, id)
	if err != nil {
		return nil, store.Unavailable(err, "get entity")
	}
	return e, nil
}

// Create inserts a record at version 1.
func (s *Store) Create(ctx context.Context, kind domain.Kind, id, ownerID string, payload json.RawMessage) (*domain.Entity, error) {
	e := &domain.Entity{Kind: kind, OwnerID: ownerID, Version: 1, Payload: payload}
	e.ID = id
	e.InitTimestamps(s.now())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM entities WHERE kind = ? AND id = ?`, string(kind), id).Scan(&exists)
		if err == nil {
			return store.ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check existing: %w", err)
		}

		seq, err := nextSeq(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		e.Seq = seq

		_, err = tx.ExecContext(ctx, `INSERT INTO entities (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
			string(kind), id, ownerID, e.Version, int64(seq), payloadString(payload),
			formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return err
	})
	if err != nil {
		return nil, store.Unavailable(err, "create entity")
	}
	return e, nil
}

// ApplyIfVersion updates the record when its version still equals expected.
// The UPDATE is additionally keyed on the version it read.
func (s *Store) ApplyIfVersion(ctx context.Context, kind domain.Kind, id, ownerID string, expected int64, m store.Mutation) (*domain.Entity, error) {
	var applied *domain.Entity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getEntity(ctx, tx, kind, id)
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

		res, err := tx.ExecContext(ctx, `
			UPDATE entities
			SET version = ?, seq = ?, payload = ?, updated_at = ?, deleted_at = ?
			WHERE kind = ? AND id = ? AND version = ?`,
			next.Version, int64(next.Seq), payloadString(next.Payload),
			formatTime(next.UpdatedAt), nullTimeString(next.DeletedAt),
			string(kind), id, expected)
		if err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n != 1 {
			// Only reachable if the write lock was not held; re-read for the caller.
			latest, err := getEntity(ctx, tx, kind, id)
			if err != nil {
				return err
			}
			return store.CheckVersion(latest, ownerID, expected)
		}

		applied = next
		return nil
	})
	if err != nil {
		return nil, store.Unavailable(err, "apply entity")
	}
	return applied, nil
}

// ListChangedSince returns the owner's records with seq in (since, clock],
// where clock is read first. Every seq at or below a committed clock value
// belongs to a committed write, so the clock is a safe resumption point.
func (s *Store) ListChangedSince(ctx context.Context, ownerID string, kinds []domain.Kind, since domain.Watermark, limit int) (*store.ChangePage, error) {
	if len(kinds) == 0 {
		kinds = domain.AllKinds()
	}
	if limit <= 0 {
		limit = 1
	}

	var clock int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_clocks WHERE owner_id = ?`, ownerID).Scan(&clock)
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
		placeholders[i] = "?"
		args = append(args, string(k))
	}
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE owner_id = ? AND seq > ? AND seq <= ? AND kind IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY seq
		LIMIT ?`, args...)
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
