package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oatsPayload = `{"name":"Oats","calories":150,"proteinGrams":5,"timestamp":"2025-03-01T08:00:00Z"}`

func change(kind, id string, base any, payload string) map[string]any {
	return map[string]any{
		"kind":        kind,
		"id":          id,
		"baseVersion": base,
		"payload":     json.RawMessage(payload),
	}
}

func (ts *testServer) push(t *testing.T, user string, body map[string]any) PushResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/sync/push", ts.bearer(t, user), body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode[PushResponse](t, resp.Body.Bytes())
}

func (ts *testServer) pull(t *testing.T, user string, body map[string]any) PullResponse {
	t.Helper()
	resp := ts.api.Post("/api/v1/sync/pull", ts.bearer(t, user), body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode[PullResponse](t, resp.Body.Bytes())
}

func TestPushPull_RoundTrip(t *testing.T) {
	ts := setupTestServer(t)

	pushed := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", nil, oatsPayload)},
	})
	require.Len(t, pushed.Results, 1)
	assert.Equal(t, ResultResponse{ID: "f1", Kind: "food_entry", Status: "applied", Version: 1}, pushed.Results[0])

	resp := ts.api.Post("/api/v1/sync/pull", ts.bearer(t, "u1"), map[string]any{
		"deviceId": "tablet",
		"kinds":    []string{"food_entry"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// Wire fields are camelCase and deletedAt is an explicit null.
	raw := decode[map[string]any](t, resp.Body.Bytes())
	assert.Contains(t, raw, "hasMore")
	entity := raw["entities"].([]any)[0].(map[string]any)
	assert.Contains(t, entity, "updatedAt")
	assert.Contains(t, entity, "deletedAt")
	assert.Nil(t, entity["deletedAt"])

	page := decode[PullResponse](t, resp.Body.Bytes())
	require.Len(t, page.Entities, 1)
	assert.Equal(t, "f1", page.Entities[0].ID)
	assert.EqualValues(t, 1, page.Entities[0].Version)
	assert.JSONEq(t, oatsPayload, string(page.Entities[0].Payload))
	assert.NotEmpty(t, page.Watermark)
	assert.False(t, page.HasMore)
}

func TestPush_DeleteWithTombstonePayload(t *testing.T) {
	ts := setupTestServer(t)

	ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", nil, oatsPayload)},
	})
	before := ts.pull(t, "u1", map[string]any{"deviceId": "tablet"})

	deleted := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", 1, `{"deleted": true}`)},
	})
	assert.Equal(t, "applied", deleted.Results[0].Status)
	assert.EqualValues(t, 2, deleted.Results[0].Version)

	after := ts.pull(t, "u1", map[string]any{"deviceId": "tablet", "watermark": before.Watermark})
	require.Len(t, after.Entities, 1)
	tomb := after.Entities[0]
	assert.EqualValues(t, 2, tomb.Version)
	assert.NotNil(t, tomb.DeletedAt)
	assert.Empty(t, tomb.Payload)

	// Replaying the delete at the old base conflicts with the tombstone.
	replay := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", 1, `{"deleted": true}`)},
	})
	assert.Equal(t, "conflict", replay.Results[0].Status)
	require.NotNil(t, replay.Results[0].ServerEntity)
	assert.NotNil(t, replay.Results[0].ServerEntity.DeletedAt)
}

func TestPush_ConflictCarriesServerEntity(t *testing.T) {
	ts := setupTestServer(t)

	ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", nil, oatsPayload)},
	})
	edited := `{"name":"Oats","calories":300,"proteinGrams":10,"timestamp":"2025-03-01T08:00:00Z"}`
	ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", 1, edited)},
	})

	stale := ts.push(t, "u1", map[string]any{
		"deviceId": "tablet",
		"changes":  []any{change("food_entry", "f1", 1, oatsPayload)},
	})
	result := stale.Results[0]
	assert.Equal(t, "conflict", result.Status)
	assert.Equal(t, "VERSION_CONFLICT", result.Reason)
	assert.EqualValues(t, 2, result.Version)
	require.NotNil(t, result.ServerEntity)
	assert.JSONEq(t, edited, string(result.ServerEntity.Payload))
}

func TestPush_RejectedItemsDoNotFailTheBatch(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes": []any{
			change("food_entry", "ok", nil, oatsPayload),
			change("meal_plan", "bad-kind", nil, `{}`),
			change("food_entry", "bad-payload", nil, `{"name":"x"}`),
			change("food_entry", "ok", 7, oatsPayload),
		},
	})
	require.Len(t, resp.Results, 4)
	assert.Equal(t, "applied", resp.Results[0].Status)
	assert.Equal(t, "rejected", resp.Results[1].Status)
	assert.Equal(t, "VALIDATION", resp.Results[1].Reason)
	assert.Equal(t, "rejected", resp.Results[2].Status)
	assert.Equal(t, "VALIDATION", resp.Results[2].Reason)
	assert.Equal(t, "rejected", resp.Results[3].Status)
	assert.Equal(t, "INVALID_VERSION", resp.Results[3].Reason)
}

func TestPush_WithPull(t *testing.T) {
	ts := setupTestServer(t)

	ts.push(t, "u1", map[string]any{
		"deviceId": "tablet",
		"changes":  []any{change("daily_log", "d1", nil, `{"date":"2025-03-01","steps":1000}`)},
	})

	resp := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", nil, oatsPayload)},
		"pull":     true,
	})
	require.NotNil(t, resp.Changes)
	ids := make([]string, 0, len(resp.Changes.Entities))
	for _, e := range resp.Changes.Entities {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"d1", "f1"}, ids)
}

func TestPush_ServerAssignsID(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes": []any{map[string]any{
			"kind":    "favorite_food",
			"payload": json.RawMessage(`{"name":"Oats","calories":150,"proteinGrams":5}`),
		}},
	})
	assert.Equal(t, "applied", resp.Results[0].Status)
	assert.Len(t, resp.Results[0].ID, 36)
}

func TestPush_RequestValidation(t *testing.T) {
	ts := setupTestServer(t)
	u1 := ts.bearer(t, "u1")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing device", map[string]any{"changes": []any{change("food_entry", "f1", nil, oatsPayload)}}},
		{"empty batch", map[string]any{"deviceId": "phone", "changes": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/api/v1/sync/push", u1, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
			assert.Equal(t, "VALIDATION", errorCode(t, resp.Body.Bytes()))
		})
	}
}

func TestPull_RejectsBadInput(t *testing.T) {
	ts := setupTestServer(t)
	u1 := ts.bearer(t, "u1")

	resp := ts.api.Post("/api/v1/sync/pull", u1, map[string]any{"deviceId": "phone", "watermark": "%%%"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", errorCode(t, resp.Body.Bytes()))

	resp = ts.api.Post("/api/v1/sync/pull", u1, map[string]any{"deviceId": "phone", "kinds": []string{"recipes"}})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPull_UsersAreIsolated(t *testing.T) {
	ts := setupTestServer(t)

	ts.push(t, "u1", map[string]any{
		"deviceId": "phone",
		"changes":  []any{change("food_entry", "f1", nil, oatsPayload)},
	})

	page := ts.pull(t, "u2", map[string]any{"deviceId": "phone"})
	assert.Empty(t, page.Entities)
}

func TestListDevices(t *testing.T) {
	ts := setupTestServer(t)

	ts.pull(t, "u1", map[string]any{"deviceId": "phone", "deviceName": "Pixel"})
	ts.pull(t, "u1", map[string]any{"deviceId": "tablet"})
	ts.pull(t, "u2", map[string]any{"deviceId": "laptop"})

	resp := ts.api.Get("/api/v1/sync/devices", ts.bearer(t, "u1"))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body struct {
		Devices []DeviceResponse `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "phone", body.Devices[0].DeviceID)
	assert.Equal(t, "Pixel", body.Devices[0].DeviceName)
	assert.Equal(t, "tablet", body.Devices[1].DeviceID)
	assert.False(t, body.Devices[0].LastSyncAt.IsZero())
}

func TestIsTombstonePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"deleted":true}`, true},
		{`{ "deleted" : true }`, true},
		{`{"deleted":false}`, false},
		{`{"deleted":true,"name":"x"}`, false},
		{`{"deleted":"true"}`, false},
		{`{}`, false},
		{`null`, false},
		{``, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTombstonePayload(json.RawMessage(tt.payload)), tt.payload)
	}
}
