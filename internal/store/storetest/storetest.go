// Package storetest holds the behavioral tests every store.Backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty backend for one test.
type Factory func(t *testing.T) store.Backend

// Run executes the full suite against backends produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Backend)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"ApplyAccepted", testApplyAccepted},
		{"ApplyStaleVersion", testApplyStaleVersion},
		{"ApplyWrongOwner", testApplyWrongOwner},
		{"DeleteTombstones", testDeleteTombstones},
		{"ConcurrentApplySameVersion", testConcurrentApplySameVersion},
		{"ConcurrentCreateSameID", testConcurrentCreateSameID},
		{"ListChangedSince", testListChangedSince},
		{"ListChangedSincePaginates", testListChangedSincePaginates},
		{"ListChangedSinceInterleavedWrites", testListChangedSinceInterleavedWrites},
		{"ListChangedSinceAcrossKinds", testListChangedSinceAcrossKinds},
		{"SeparatorInUserAndDeviceIDs", testSeparatorInUserAndDeviceIDs},
		{"CheckpointLifecycle", testCheckpointLifecycle},
		{"ConcurrentCheckpointAdvance", testConcurrentCheckpointAdvance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func payload(format string, args ...any) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(format, args...))
}

func mustCreate(t *testing.T, s store.Backend, kind domain.Kind, id, owner string) *domain.Entity {
	t.Helper()
	e, err := s.Create(context.Background(), kind, id, owner, payload(`{"name":%q}`, id))
	require.NoError(t, err)
	return e
}

func testCreateAndGet(t *testing.T, s store.Backend) {
	ctx := context.Background()

	created, err := s.Create(ctx, domain.KindFoodEntry, "f1", "u1", payload(`{"name":"Oats","calories":150}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, "u1", created.OwnerID)
	assert.False(t, created.UpdatedAt.IsZero())
	assert.False(t, created.IsDeleted())

	got, err := s.Get(ctx, domain.KindFoodEntry, "f1")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)
	assert.Equal(t, domain.KindFoodEntry, got.Kind)
	assert.Equal(t, int64(1), got.Version)
	assert.NotZero(t, got.Seq)
	assert.JSONEq(t, `{"name":"Oats","calories":150}`, string(got.Payload))

	// Same id under another kind is a different record.
	_, err = s.Get(ctx, domain.KindFavoriteFood, "f1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testCreateDuplicate(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindPeptide, "p1", "u1")

	_, err := s.Create(ctx, domain.KindPeptide, "p1", "u1", payload(`{}`))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))

	_, err = s.Create(ctx, domain.KindPeptide, "p1", "u2", payload(`{}`))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "ids are global per kind")

	_, err = s.ApplyIfVersion(ctx, domain.KindPeptide, "p1", "u1", 1, store.Mutation{Delete: true})
	require.NoError(t, err)

	_, err = s.Create(ctx, domain.KindPeptide, "p1", "u1", payload(`{}`))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists), "tombstoned ids are never reused")
}

func testGetMissing(t *testing.T, s store.Backend) {
	_, err := s.Get(context.Background(), domain.KindExercise, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testApplyAccepted(t *testing.T, s store.Backend) {
	ctx := context.Background()
	created := mustCreate(t, s, domain.KindDailyLog, "d1", "u1")

	updated, err := s.ApplyIfVersion(ctx, domain.KindDailyLog, "d1", "u1", 1, store.Mutation{Payload: payload(`{"steps":9000}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	again, err := s.ApplyIfVersion(ctx, domain.KindDailyLog, "d1", "u1", 2, store.Mutation{Payload: payload(`{"steps":9500}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Version)

	got, err := s.Get(ctx, domain.KindDailyLog, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.JSONEq(t, `{"steps":9500}`, string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func testApplyStaleVersion(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindDailyGoal, "g1", "u1")
	_, err := s.ApplyIfVersion(ctx, domain.KindDailyGoal, "g1", "u1", 1, store.Mutation{Payload: payload(`{"v":2}`)})
	require.NoError(t, err)

	for _, expected := range []int64{1, 5} {
		_, err = s.ApplyIfVersion(ctx, domain.KindDailyGoal, "g1", "u1", expected, store.Mutation{Payload: payload(`{"v":"lost"}`)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrVersionConflict))

		var conflict *store.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, int64(2), conflict.Current.Version)
		assert.JSONEq(t, `{"v":2}`, string(conflict.Current.Payload))
	}

	got, err := s.Get(ctx, domain.KindDailyGoal, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version, "conflicts never mutate")
}

func testApplyWrongOwner(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindWorkoutSession, "w1", "u1")

	_, err := s.ApplyIfVersion(ctx, domain.KindWorkoutSession, "w1", "intruder", 1, store.Mutation{Delete: true})
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = s.ApplyIfVersion(ctx, domain.KindWorkoutSession, "missing", "u1", 1, store.Mutation{Delete: true})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testDeleteTombstones(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindFoodEntry, "f1", "u1")
	_, err := s.ApplyIfVersion(ctx, domain.KindFoodEntry, "f1", "u1", 1, store.Mutation{Payload: payload(`{"name":"edited"}`)})
	require.NoError(t, err)

	deleted, err := s.ApplyIfVersion(ctx, domain.KindFoodEntry, "f1", "u1", 2, store.Mutation{Delete: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted.Version)
	require.True(t, deleted.IsDeleted())
	assert.True(t, deleted.DeletedAt.Equal(deleted.UpdatedAt))

	got, err := s.Get(ctx, domain.KindFoodEntry, "f1")
	require.NoError(t, err, "tombstones are retained")
	assert.True(t, got.IsDeleted())

	// Matching version on a tombstone still refuses to write.
	_, err = s.ApplyIfVersion(ctx, domain.KindFoodEntry, "f1", "u1", 3, store.Mutation{Payload: payload(`{"name":"zombie"}`)})
	assert.True(t, errors.Is(err, store.ErrEntityDeleted))
	var conflict *store.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(3), conflict.Current.Version)

	// Stale base on a tombstone is an ordinary version conflict.
	_, err = s.ApplyIfVersion(ctx, domain.KindFoodEntry, "f1", "u1", 2, store.Mutation{Delete: true})
	assert.True(t, errors.Is(err, store.ErrVersionConflict))
}

func testConcurrentApplySameVersion(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindBodyComposition, "b1", "u1")

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyIfVersion(ctx, domain.KindBodyComposition, "b1", "u1", 1,
				store.Mutation{Payload: payload(`{"writer":%d}`, i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	got, err := s.Get(ctx, domain.KindBodyComposition, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func testConcurrentCreateSameID(t *testing.T, s store.Backend) {
	ctx := context.Background()

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, domain.KindExercise, "x1", "u1", payload(`{}`))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrAlreadyExists) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func ids(entities []*domain.Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, string(e.Kind)+"/"+e.ID)
	}
	return out
}

func testListChangedSince(t *testing.T, s store.Backend) {
	ctx := context.Background()
	mustCreate(t, s, domain.KindFoodEntry, "f1", "u1")
	mustCreate(t, s, domain.KindPeptide, "p1", "u1")
	mustCreate(t, s, domain.KindFoodEntry, "other", "u2")

	full, err := s.ListChangedSince(ctx, "u1", nil, 0, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"food_entry/f1", "peptide/p1"}, ids(full.Entities))
	assert.False(t, full.HasMore)
	assert.False(t, full.Watermark.IsZero())

	onlyPeptides, err := s.ListChangedSince(ctx, "u1", []domain.Kind{domain.KindPeptide}, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"peptide/p1"}, ids(onlyPeptides.Entities))

	empty, err := s.ListChangedSince(ctx, "u1", nil, full.Watermark, 100)
	require.NoError(t, err)
	assert.Empty(t, empty.Entities)
	assert.GreaterOrEqual(t, empty.Watermark, full.Watermark, "watermarks never move backwards")

	_, err = s.ApplyIfVersion(ctx, domain.KindFoodEntry, "f1", "u1", 1, store.Mutation{Delete: true})
	require.NoError(t, err)

	delta, err := s.ListChangedSince(ctx, "u1", nil, full.Watermark, 100)
	require.NoError(t, err)
	require.Len(t, delta.Entities, 1)
	assert.Equal(t, "f1", delta.Entities[0].ID)
	assert.True(t, delta.Entities[0].IsDeleted(), "tombstones propagate")
	assert.Equal(t, int64(2), delta.Entities[0].Version)
	assert.Greater(t, delta.Watermark, full.Watermark)
}

func testListChangedSincePaginates(t *testing.T, s store.Backend) {
	ctx := context.Background()
	const total = 7
	for i := range total {
		mustCreate(t, s, domain.KindFoodEntry, fmt.Sprintf("f%d", i), "u1")
	}

	var (
		seen      []string
		watermark domain.Watermark
		pages     int
		lastSeq   uint64
	)
	for {
		page, err := s.ListChangedSince(ctx, "u1", nil, watermark, 3)
		require.NoError(t, err)
		pages++
		for _, e := range page.Entities {
			assert.Greater(t, e.Seq, lastSeq, "ordered by change position")
			lastSeq = e.Seq
		}
		seen = append(seen, ids(page.Entities)...)
		assert.Greater(t, page.Watermark, watermark)
		watermark = page.Watermark
		if !page.HasMore {
			break
		}
		require.Len(t, page.Entities, 3)
		require.Less(t, pages, 10)
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, total)
	assert.ElementsMatch(t, seen, uniq(seen), "no entity is returned twice")
}

func uniq(in []string) []string {
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func testListChangedSinceInterleavedWrites(t *testing.T, s store.Backend) {
	ctx := context.Background()
	for i := range 4 {
		mustCreate(t, s, domain.KindExercise, fmt.Sprintf("x%d", i), "u1")
	}

	first, err := s.ListChangedSince(ctx, "u1", nil, 0, 2)
	require.NoError(t, err)
	require.True(t, first.HasMore)
	require.Len(t, first.Entities, 2)

	// Writes land between pages: one already-delivered record changes, one is new.
	delivered := first.Entities[0]
	_, err = s.ApplyIfVersion(ctx, delivered.Kind, delivered.ID, "u1", 1, store.Mutation{Payload: payload(`{"edited":true}`)})
	require.NoError(t, err)
	mustCreate(t, s, domain.KindExercise, "late", "u1")

	latest := map[string]int64{}
	watermark := first.Watermark
	for {
		page, err := s.ListChangedSince(ctx, "u1", nil, watermark, 2)
		require.NoError(t, err)
		for _, e := range page.Entities {
			latest[e.ID] = e.Version
		}
		watermark = page.Watermark
		if !page.HasMore {
			break
		}
	}

	assert.Equal(t, int64(2), latest[delivered.ID], "edit after delivery is seen")
	assert.Contains(t, latest, "late")
	assert.Contains(t, latest, "x2")
	assert.Contains(t, latest, "x3")

	tail, err := s.ListChangedSince(ctx, "u1", nil, watermark, 2)
	require.NoError(t, err)
	assert.Empty(t, tail.Entities)
}

func testCheckpointLifecycle(t *testing.T, s store.Backend) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.GetCheckpoint(ctx, "u1", "phone")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	cp, err := s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "u1", DeviceID: "phone", DeviceName: "Pixel", Watermark: 40, At: now})
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, domain.Watermark(40), cp.Watermark)
	assert.Equal(t, "Pixel", cp.DeviceName)

	// A racing pull that finished later with an older watermark loses.
	cp2, err := s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "u1", DeviceID: "phone", Watermark: 12, At: now.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(40), cp2.Watermark)
	assert.Equal(t, "Pixel", cp2.DeviceName, "empty name keeps the stored one")
	assert.Equal(t, cp.ID, cp2.ID)
	assert.True(t, cp2.LastSyncAt.Equal(now.Add(time.Second)))

	_, err = s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "u1", DeviceID: "ipad", Watermark: 7, At: now})
	require.NoError(t, err)
	_, err = s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "u2", DeviceID: "web", Watermark: 99, At: now})
	require.NoError(t, err)

	got, err := s.GetCheckpoint(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(40), got.Watermark)

	list, err := s.ListCheckpoints(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ipad", list[0].DeviceID)
	assert.Equal(t, "phone", list[1].DeviceID)
}

func testConcurrentCheckpointAdvance(t *testing.T, s store.Backend) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{
				UserID: "u1", DeviceID: "phone", Watermark: domain.Watermark(i * 10), At: time.Now(),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetCheckpoint(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.Equal(t, domain.Watermark(100), got.Watermark)
}

func testListChangedSinceAcrossKinds(t *testing.T, s store.Backend) {
	ctx := context.Background()
	kinds := []domain.Kind{domain.KindFoodEntry, domain.KindDailyLog, domain.KindExercise}

	var want []string
	for i := range 30 {
		id := fmt.Sprintf("r%02d", i)
		if i == 17 {
			id = "50%"
		}
		kind := kinds[i%len(kinds)]
		mustCreate(t, s, kind, id, "u1")
		want = append(want, string(kind)+"/"+id)
	}

	var (
		seen      []string
		watermark domain.Watermark
	)
	for range 20 {
		page, err := s.ListChangedSince(ctx, "u1", kinds, watermark, 4)
		require.NoError(t, err)
		seen = append(seen, ids(page.Entities)...)
		watermark = page.Watermark
		if !page.HasMore {
			break
		}
		require.Len(t, page.Entities, 4)
	}

	assert.Equal(t, want, seen, "creation order, each record once")
}

func testSeparatorInUserAndDeviceIDs(t *testing.T, s store.Backend) {
	ctx := context.Background()
	now := time.Now()

	_, err := s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "a", DeviceID: "b:c", Watermark: 50, At: now})
	require.NoError(t, err)
	_, err = s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "a:b", DeviceID: "c", Watermark: 10, At: now})
	require.NoError(t, err)

	cp, err := s.GetCheckpoint(ctx, "a:b", "c")
	require.NoError(t, err)
	assert.Equal(t, "a:b", cp.UserID)
	assert.Equal(t, domain.Watermark(10), cp.Watermark)

	cp, err = s.GetCheckpoint(ctx, "a", "b:c")
	require.NoError(t, err)
	assert.Equal(t, "a", cp.UserID)
	assert.Equal(t, domain.Watermark(50), cp.Watermark)

	_, err = s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "alice:x", DeviceID: "laptop", Watermark: 1, At: now})
	require.NoError(t, err)
	_, err = s.AdvanceCheckpoint(ctx, store.CheckpointUpdate{UserID: "alice", DeviceID: "phone", Watermark: 1, At: now})
	require.NoError(t, err)

	list, err := s.ListCheckpoints(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "phone", list[0].DeviceID)

	// An owner id ending in a kind name must not leak into another owner's listing.
	mustCreate(t, s, domain.KindFoodEntry, "X", "a:food_entry")
	mustCreate(t, s, domain.KindFoodEntry, "mine", "a")

	page, err := s.ListChangedSince(ctx, "a", []domain.Kind{domain.KindFoodEntry}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"food_entry/mine"}, ids(page.Entities))

	page, err = s.ListChangedSince(ctx, "a:food_entry", nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"food_entry/X"}, ids(page.Entities))
}
