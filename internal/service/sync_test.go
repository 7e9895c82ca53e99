package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/errors"
	"github.com/fuelupapp/fuelup-server/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	userID string
	origin string
	kinds  []domain.Kind
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) NotifyChanged(userID, originDeviceID string, kinds []domain.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{userID: userID, origin: originDeviceID, kinds: kinds})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.events...)
}

type validatorFunc func(domain.Kind, json.RawMessage) error

func (f validatorFunc) ValidatePayload(kind domain.Kind, payload json.RawMessage) error {
	return f(kind, payload)
}

// setupTestSync creates a sync service over a Badger store in a temp dir.
func setupTestSync(t *testing.T, opts ...func(*SyncOptions)) (*SyncService, *store.Store, *recordingNotifier) {
	t.Helper()

	testStore, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { testStore.Close() })

	o := SyncOptions{PageSize: 100, MaxPageSize: 200, MaxBatchSize: 50, PushConcurrency: 4}
	for _, fn := range opts {
		fn(&o)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &recordingNotifier{}
	checkpoints := NewCheckpointManager(testStore, logger)
	rejectBad := validatorFunc(func(_ domain.Kind, payload json.RawMessage) error {
		var doc map[string]any
		if err := json.Unmarshal(payload, &doc); err != nil {
			return errors.Validation("payload must be a JSON object")
		}
		if doc["bad"] == true {
			return errors.Validation("bad payload")
		}
		return nil
	})

	return NewSyncService(testStore, checkpoints, rejectBad, notifier, o, logger), testStore, notifier
}

func createChange(id, payload string) domain.Change {
	return domain.Change{Kind: domain.KindFoodEntry, ID: id, Payload: json.RawMessage(payload)}
}

func updateChange(id string, base int64, payload string) domain.Change {
	return domain.Change{Kind: domain.KindFoodEntry, ID: id, BaseVersion: ptr(base), Payload: json.RawMessage(payload)}
}

func deleteChange(id string, base int64) domain.Change {
	return domain.Change{Kind: domain.KindFoodEntry, ID: id, BaseVersion: ptr(base), Delete: true}
}

func pushOne(t *testing.T, s *SyncService, userID, deviceID string, c domain.Change) domain.Outcome {
	t.Helper()
	resp, err := s.Push(context.Background(), userID, PushRequest{DeviceID: deviceID, Changes: []domain.Change{c}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	return resp.Results[0]
}

func TestPush_EditConflictScenario(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	out := pushOne(t, s, "u1", "device-a", createChange("F1", `{"name":"Eggs","calories":140}`))
	assert.Equal(t, domain.StatusApplied, out.Status)
	assert.Equal(t, int64(1), out.Version)

	pulled, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "device-b"})
	require.NoError(t, err)
	require.Len(t, pulled.Entities, 1)
	assert.Equal(t, "F1", pulled.Entities[0].ID)
	assert.Equal(t, int64(1), pulled.Entities[0].Version)

	out = pushOne(t, s, "u1", "device-a", updateChange("F1", 1, `{"name":"Eggs","calories":150}`))
	assert.Equal(t, domain.StatusApplied, out.Status)
	assert.Equal(t, int64(2), out.Version)

	out = pushOne(t, s, "u1", "device-b", updateChange("F1", 1, `{"name":"Eggs","calories":999}`))
	assert.Equal(t, domain.StatusConflict, out.Status)
	require.NotNil(t, out.ServerEntity)
	assert.Equal(t, int64(2), out.ServerEntity.Version)
	assert.JSONEq(t, `{"name":"Eggs","calories":150}`, string(out.ServerEntity.Payload))

	out = pushOne(t, s, "u1", "device-b", updateChange("F1", 2, `{"name":"Eggs","calories":999}`))
	assert.Equal(t, domain.StatusApplied, out.Status)
	assert.Equal(t, int64(3), out.Version)
}

func TestPush_DeleteReplayScenario(t *testing.T) {
	s, testStore, _ := setupTestSync(t)
	ctx := context.Background()

	pushOne(t, s, "u1", "a", createChange("F1", `{"name":"Toast"}`))
	pushOne(t, s, "u1", "a", updateChange("F1", 1, `{"name":"Rye toast"}`))

	out := pushOne(t, s, "u1", "a", deleteChange("F1", 2))
	assert.Equal(t, domain.StatusApplied, out.Status)
	assert.Equal(t, int64(3), out.Version)

	stored, err := testStore.Get(ctx, domain.KindFoodEntry, "F1")
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted())
	assert.Equal(t, int64(3), stored.Version)

	out = pushOne(t, s, "u1", "a", deleteChange("F1", 2))
	assert.Equal(t, domain.StatusConflict, out.Status)
	require.NotNil(t, out.ServerEntity)
	assert.Equal(t, int64(3), out.ServerEntity.Version)
	assert.True(t, out.ServerEntity.IsDeleted())

	stored, err = testStore.Get(ctx, domain.KindFoodEntry, "F1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version, "replayed delete must not bump the version")
}

func TestPush_DeleteOfTombstoneAtStoredVersionIsNoOp(t *testing.T) {
	s, testStore, notifier := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("F1", `{}`))
	pushOne(t, s, "u1", "a", deleteChange("F1", 1))
	before := len(notifier.all())

	out := pushOne(t, s, "u1", "b", deleteChange("F1", 2))
	assert.Equal(t, domain.StatusApplied, out.Status)
	assert.Equal(t, int64(2), out.Version)
	assert.Len(t, notifier.all(), before, "no write, no notification")

	stored, err := testStore.Get(context.Background(), domain.KindFoodEntry, "F1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestPush_UpdateOfTombstoneRejected(t *testing.T) {
	s, _, _ := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("F1", `{}`))
	pushOne(t, s, "u1", "a", deleteChange("F1", 1))

	out := pushOne(t, s, "u1", "b", updateChange("F1", 2, `{"name":"back"}`))
	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, errors.CodeEntityDeleted, out.Reason)
	require.NotNil(t, out.ServerEntity)
	assert.True(t, out.ServerEntity.IsDeleted())
}

func TestPush_CreateOnTombstoneRejected(t *testing.T) {
	s, _, _ := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("F1", `{}`))
	pushOne(t, s, "u1", "a", deleteChange("F1", 1))

	out := pushOne(t, s, "u1", "a", createChange("F1", `{}`))
	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, errors.CodeEntityDeleted, out.Reason)
}

func TestPush_Idempotence(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	batch := []domain.Change{
		createChange("a", `{"name":"Apple","calories":95}`),
		createChange("b", `{"name":"Banana","calories":105}`),
	}
	first, err := s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: batch})
	require.NoError(t, err)

	// Same create batch again, keys reordered: a replay, not a new write.
	replay := []domain.Change{
		createChange("a", `{"calories":95,"name":"Apple"}`),
		createChange("b", `{"name":"Banana","calories":105}`),
	}
	second, err := s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: replay})
	require.NoError(t, err)
	for i := range batch {
		assert.Equal(t, domain.StatusApplied, second.Results[i].Status)
		assert.Equal(t, first.Results[i].Version, second.Results[i].Version)
	}

	// Building on the returned versions applies only the genuine delta.
	next, err := s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: []domain.Change{
		updateChange("a", second.Results[0].Version, `{"name":"Apple","calories":100}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, next.Results[0].Status)
	assert.Equal(t, int64(2), next.Results[0].Version)

	// The exact same base version again is a conflict.
	again, err := s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: []domain.Change{
		updateChange("a", second.Results[0].Version, `{"name":"Apple","calories":100}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConflict, again.Results[0].Status)
	assert.Equal(t, int64(2), again.Results[0].ServerEntity.Version)
}

func TestPush_CreateWithDifferentPayloadConflicts(t *testing.T) {
	s, _, _ := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("F1", `{"name":"Rice"}`))
	out := pushOne(t, s, "u1", "b", createChange("F1", `{"name":"Beans"}`))
	assert.Equal(t, domain.StatusConflict, out.Status)
	require.NotNil(t, out.ServerEntity)
	assert.JSONEq(t, `{"name":"Rice"}`, string(out.ServerEntity.Payload))
}

func TestPush_CreateOverOtherUsersRecord(t *testing.T) {
	s, _, _ := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("shared", `{}`))
	out := pushOne(t, s, "u2", "x", createChange("shared", `{}`))
	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, errors.CodeAlreadyExists, out.Reason)
	assert.Nil(t, out.ServerEntity)

	out = pushOne(t, s, "u2", "x", updateChange("shared", 1, `{}`))
	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, errors.CodeNotFound, out.Reason)
}

func TestPush_ItemValidation(t *testing.T) {
	s, _, _ := setupTestSync(t)
	pushOne(t, s, "u1", "a", createChange("exists", `{}`))

	resp, err := s.Push(context.Background(), "u1", PushRequest{
		DeviceID: "a",
		Changes: []domain.Change{
			{Kind: "meal_plan", ID: "x", Payload: json.RawMessage(`{}`)},
			createChange("bad:id", `{}`),
			createChange("ok", `{"bad":true}`),
			{Kind: domain.KindFoodEntry, ID: "exists", Delete: true},
			updateChange("exists", 0, `{}`),
			updateChange("exists", 7, `{}`),
			updateChange("missing", 1, `{}`),
			createChange("fine", `{"name":"Kale"}`),
		},
	})
	require.NoError(t, err)

	reasons := make([]errors.Code, len(resp.Results))
	for i, r := range resp.Results {
		reasons[i] = r.Reason
	}
	assert.Equal(t, []errors.Code{
		errors.CodeValidation,
		errors.CodeValidation,
		errors.CodeValidation,
		errors.CodeInvalidVersion,
		errors.CodeInvalidVersion,
		errors.CodeInvalidVersion,
		errors.CodeNotFound,
		"",
	}, reasons)
	assert.Equal(t, domain.StatusApplied, resp.Results[7].Status)
}

func TestPush_BatchValidation(t *testing.T) {
	s, _, _ := setupTestSync(t, func(o *SyncOptions) { o.MaxBatchSize = 2 })
	ctx := context.Background()

	_, err := s.Push(ctx, "u1", PushRequest{Changes: []domain.Change{createChange("a", `{}`)}})
	assert.True(t, errors.Is(err, errors.ErrValidation), "missing device id")

	_, err = s.Push(ctx, "u1", PushRequest{DeviceID: "a"})
	assert.True(t, errors.Is(err, errors.ErrValidation), "empty batch")

	_, err = s.Push(ctx, "u1", PushRequest{DeviceID: "a", Changes: []domain.Change{
		createChange("a", `{}`), createChange("b", `{}`), createChange("c", `{}`),
	}})
	assert.True(t, errors.Is(err, errors.ErrValidation), "oversized batch")
}

func TestPush_ServerAssignsMissingIDs(t *testing.T) {
	s, testStore, _ := setupTestSync(t)

	resp, err := s.Push(context.Background(), "u1", PushRequest{DeviceID: "a", Changes: []domain.Change{
		createChange("", `{"name":"one"}`),
		createChange("", `{"name":"two"}`),
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.NotEmpty(t, resp.Results[0].ID)
	assert.NotEqual(t, resp.Results[0].ID, resp.Results[1].ID)

	stored, err := testStore.Get(context.Background(), domain.KindFoodEntry, resp.Results[1].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"two"}`, string(stored.Payload))
}

func TestPush_SameIDRunsInBatchOrder(t *testing.T) {
	s, _, _ := setupTestSync(t)

	resp, err := s.Push(context.Background(), "u1", PushRequest{DeviceID: "a", Changes: []domain.Change{
		createChange("x", `{"n":1}`),
		createChange("y", `{"n":1}`),
		updateChange("x", 1, `{"n":2}`),
		updateChange("x", 2, `{"n":3}`),
		deleteChange("y", 1),
	}})
	require.NoError(t, err)

	for i, want := range []int64{1, 1, 2, 3, 2} {
		assert.Equal(t, domain.StatusApplied, resp.Results[i].Status, "item %d", i)
		assert.Equal(t, want, resp.Results[i].Version, "item %d", i)
	}
	assert.Equal(t, "y", resp.Results[4].ID)
}

func TestPush_ConcurrentConflictingEdits(t *testing.T) {
	s, _, _ := setupTestSync(t)
	pushOne(t, s, "u1", "a", createChange("F1", `{"v":0}`))

	const devices = 8
	outcomes := make([]domain.Outcome, devices)
	var wg sync.WaitGroup
	for i := range devices {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.Push(context.Background(), "u1", PushRequest{
				DeviceID: fmt.Sprintf("device-%d", i),
				Changes:  []domain.Change{updateChange("F1", 1, fmt.Sprintf(`{"v":%d}`, i+1))},
			})
			if assert.NoError(t, err) {
				outcomes[i] = resp.Results[0]
			}
		}()
	}
	wg.Wait()

	var applied, conflicts int
	var winner json.RawMessage
	for _, o := range outcomes {
		switch o.Status {
		case domain.StatusApplied:
			applied++
			assert.Equal(t, int64(2), o.Version)
		case domain.StatusConflict:
			conflicts++
			require.NotNil(t, o.ServerEntity)
			assert.Equal(t, int64(2), o.ServerEntity.Version)
			if winner == nil {
				winner = o.ServerEntity.Payload
			}
			assert.JSONEq(t, string(winner), string(o.ServerEntity.Payload))
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, devices-1, conflicts)
}

func TestPush_ConcurrentDistinctCreatesAllSucceed(t *testing.T) {
	s, _, _ := setupTestSync(t)

	var wg sync.WaitGroup
	for d := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changes := make([]domain.Change, 10)
			for i := range changes {
				changes[i] = createChange(fmt.Sprintf("d%d-%d", d, i), `{}`)
			}
			resp, err := s.Push(context.Background(), "u1", PushRequest{DeviceID: fmt.Sprintf("d%d", d), Changes: changes})
			if assert.NoError(t, err) {
				for _, r := range resp.Results {
					assert.Equal(t, domain.StatusApplied, r.Status)
				}
			}
		}()
	}
	wg.Wait()

	pulled, err := s.Pull(context.Background(), "u1", PullRequest{DeviceID: "reader"})
	require.NoError(t, err)
	assert.Len(t, pulled.Entities, 40)
}

func TestPush_NotifiesOtherDevices(t *testing.T) {
	s, _, notifier := setupTestSync(t)
	ctx := context.Background()

	_, err := s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: []domain.Change{
		createChange("f", `{}`),
		{Kind: domain.KindPeptide, ID: "p", Payload: json.RawMessage(`{}`)},
		createChange("g", `{}`),
	}})
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].userID)
	assert.Equal(t, "phone", events[0].origin)
	assert.Equal(t, []domain.Kind{domain.KindFoodEntry, domain.KindPeptide}, events[0].kinds)

	_, err = s.Push(ctx, "u1", PushRequest{DeviceID: "phone", Changes: []domain.Change{
		updateChange("nope", 1, `{}`),
	}})
	require.NoError(t, err)
	assert.Len(t, notifier.all(), 1, "nothing written, nothing sent")
}

func TestPush_WithPull(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	pushOne(t, s, "u1", "tablet", domain.Change{Kind: domain.KindExercise, ID: "squat", Payload: json.RawMessage(`{}`)})

	resp, err := s.Push(ctx, "u1", PushRequest{
		DeviceID: "phone",
		Changes:  []domain.Change{createChange("F1", `{}`)},
		Pull:     true,
		Kinds:    []string{"exercise"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Changes)
	require.Len(t, resp.Changes.Entities, 1)
	assert.Equal(t, "squat", resp.Changes.Entities[0].ID)
	assert.NotEmpty(t, resp.Changes.Watermark)
}

func TestPull_TombstonePropagation(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	pushOne(t, s, "u1", "a", createChange("E", `{"name":"Whey"}`))

	first, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b"})
	require.NoError(t, err)
	require.Len(t, first.Entities, 1)

	out := pushOne(t, s, "u1", "a", deleteChange("E", 1))
	require.Equal(t, domain.StatusApplied, out.Status)

	second, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b"})
	require.NoError(t, err)
	require.Len(t, second.Entities, 1)
	e := second.Entities[0]
	assert.Equal(t, "E", e.ID)
	assert.Equal(t, int64(2), e.Version)
	require.NotNil(t, e.DeletedAt)
	assert.Nil(t, e.Payload, "tombstones carry no payload")
}

func TestPull_PaginatesToCompletion(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	for i := range 7 {
		pushOne(t, s, "u1", "a", createChange(fmt.Sprintf("f%d", i), `{}`))
	}

	seen := make(map[string]int)
	var pages int
	watermark := ""
	for {
		resp, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Watermark: watermark, Limit: 3})
		require.NoError(t, err)
		pages++
		for _, e := range resp.Entities {
			seen[e.ID]++
		}
		watermark = resp.Watermark
		if !resp.HasMore {
			break
		}
		// A write between pages shows up in a later page.
		if pages == 1 {
			pushOne(t, s, "u1", "a", createChange("late", `{}`))
		}
	}

	assert.Len(t, seen, 8)
	for id, n := range seen {
		assert.Equal(t, 1, n, "entity %s returned more than once", id)
	}

	resp, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Watermark: watermark})
	require.NoError(t, err)
	assert.Empty(t, resp.Entities)

	prev, err := store.DecodeWatermark(watermark)
	require.NoError(t, err)
	next, err := store.DecodeWatermark(resp.Watermark)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, uint64(next), uint64(prev))
}

func TestPull_ClientWatermarkWinsOverCheckpoint(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	pushOne(t, s, "u1", "a", createChange("one", `{}`))
	pushOne(t, s, "u1", "a", createChange("two", `{}`))

	page1, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Limit: 1})
	require.NoError(t, err)
	require.True(t, page1.HasMore)

	page2, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b"})
	require.NoError(t, err)
	require.Len(t, page2.Entities, 1)
	assert.Equal(t, "two", page2.Entities[0].ID)

	replay, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Watermark: page1.Watermark})
	require.NoError(t, err)
	require.Len(t, replay.Entities, 1)
	assert.Equal(t, "two", replay.Entities[0].ID)

	devices, err := s.ListDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, replay.Watermark, store.EncodeWatermark(devices[0].Watermark))
}

func TestPull_FiltersKinds(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	pushOne(t, s, "u1", "a", createChange("food", `{}`))
	pushOne(t, s, "u1", "a", domain.Change{Kind: domain.KindBodyComposition, ID: "scan", Payload: json.RawMessage(`{}`)})

	resp, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Kinds: []string{"body_composition"}})
	require.NoError(t, err)
	require.Len(t, resp.Entities, 1)
	assert.Equal(t, domain.KindBodyComposition, resp.Entities[0].Kind)
}

func TestPull_IsolatesUsers(t *testing.T) {
	s, _, _ := setupTestSync(t)

	pushOne(t, s, "u1", "a", createChange("mine", `{}`))
	resp, err := s.Pull(context.Background(), "u2", PullRequest{DeviceID: "a"})
	require.NoError(t, err)
	assert.Empty(t, resp.Entities)
}

func TestPull_RejectsBadInput(t *testing.T) {
	s, _, _ := setupTestSync(t)
	ctx := context.Background()

	_, err := s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Kinds: []string{"meal_plan"}})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = s.Pull(ctx, "u1", PullRequest{DeviceID: "b", Watermark: "%%%"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = s.Pull(ctx, "u1", PullRequest{})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

// failingStore reports every call as a storage outage.
type failingStore struct{}

func (failingStore) Get(context.Context, domain.Kind, string) (*domain.Entity, error) {
	return nil, errors.StorageUnavailable(io.ErrUnexpectedEOF, "get entity")
}

func (failingStore) Create(context.Context, domain.Kind, string, string, json.RawMessage) (*domain.Entity, error) {
	return nil, errors.StorageUnavailable(io.ErrUnexpectedEOF, "create entity")
}

func (failingStore) ApplyIfVersion(context.Context, domain.Kind, string, string, int64, store.Mutation) (*domain.Entity, error) {
	return nil, errors.StorageUnavailable(io.ErrUnexpectedEOF, "apply entity")
}

func (failingStore) ListChangedSince(context.Context, string, []domain.Kind, domain.Watermark, int) (*store.ChangePage, error) {
	return nil, errors.StorageUnavailable(io.ErrUnexpectedEOF, "list changes")
}

func TestPush_StorageFailureFailsWholeRequest(t *testing.T) {
	_, testStore, _ := setupTestSync(t)
	s := NewSyncService(failingStore{}, NewCheckpointManager(testStore, nil), nil, nil, SyncOptions{}, nil)

	_, err := s.Push(context.Background(), "u1", PushRequest{DeviceID: "a", Changes: []domain.Change{
		updateChange("x", 1, `{}`),
		createChange("y", `{}`),
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorageUnavailable))
	assert.True(t, errors.CodeOf(err).Retryable())

	_, err = s.Pull(context.Background(), "u1", PullRequest{DeviceID: "a"})
	assert.True(t, errors.Is(err, errors.ErrStorageUnavailable))
}
