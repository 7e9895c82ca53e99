package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/fuelupapp/fuelup-server/internal/service"
	"github.com/fuelupapp/fuelup-server/internal/sse"
	"github.com/fuelupapp/fuelup-server/internal/store"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "syncPush",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/push",
		Summary:     "Push changes",
		Description: "Applies a batch of client changes. Each change gets its own result; only a storage outage fails the whole request.",
		Tags:        []string{"Sync"},
		Security:    bearer,
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handlePush)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncPull",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/pull",
		Summary:     "Pull changes",
		Description: "Returns records changed after the watermark, tombstones included, and advances the device checkpoint.",
		Tags:        []string{"Sync"},
		Security:    bearer,
		Middlewares: huma.Middlewares{s.rateLimit},
	}, s.handlePull)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncDevices",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/devices",
		Summary:     "List synced devices",
		Tags:        []string{"Sync"},
		Security:    bearer,
	}, s.handleListDevices)

	// Huma has no streaming responses, so SSE is served by chi directly.
	if s.services.Events != nil {
		s.router.Get("/api/v1/sync/events", sse.NewHandler(s.services.Events, UserFromContext, s.logger).ServeHTTP)
	}
}

// === DTOs ===

// ChangeRequest is one client edit. A payload of exactly {"deleted": true}
// deletes the record.
type ChangeRequest struct {
	Kind        string          `json:"kind" doc:"Record kind" example:"food_entry"`
	ID          string          `json:"id,omitempty" doc:"Record id. Creates without one get a server-assigned UUID."`
	BaseVersion *int64          `json:"baseVersion,omitempty" nullable:"true" doc:"Version the edit was made against; null for a create"`
	Payload     json.RawMessage `json:"payload" doc:"Record fields, or {\"deleted\": true}"`
}

// PushRequest is the push body.
type PushRequest struct {
	DeviceID   string          `json:"deviceId" doc:"Stable id of the pushing device"`
	DeviceName string          `json:"deviceName,omitempty" doc:"Display name of the device"`
	Changes    []ChangeRequest `json:"changes" doc:"Changes in the order they were made"`
	Pull       bool            `json:"pull,omitempty" doc:"Also return the changes since watermark"`
	Kinds      []string        `json:"kinds,omitempty" doc:"Kinds to pull; empty means all"`
	Watermark  string          `json:"watermark,omitempty" doc:"Pull cursor; empty resumes from the device checkpoint"`
}

// PushInput wraps the push request for Huma.
type PushInput struct {
	Body PushRequest
}

// EntityResponse is a record as sent to clients.
type EntityResponse struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *time.Time      `json:"deletedAt" nullable:"true"`
	Payload   json.RawMessage `json:"payload,omitempty" doc:"Absent for tombstones"`
}

// ResultResponse is the outcome of one pushed change.
type ResultResponse struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status" enum:"applied,conflict,rejected"`
	Version      int64           `json:"version,omitempty" doc:"New version when applied, server version on conflict"`
	ServerEntity *EntityResponse `json:"serverEntity,omitempty" doc:"Current server copy on conflict"`
	Reason       string          `json:"reason,omitempty" doc:"Error code when not applied"`
	Message      string          `json:"message,omitempty"`
}

// PullResponse is one page of changes.
type PullResponse struct {
	Entities  []EntityResponse `json:"entities"`
	Watermark string           `json:"watermark" doc:"Opaque cursor for the next pull"`
	HasMore   bool             `json:"hasMore" doc:"More changes are waiting; pull again with watermark"`
}

// PushResponse is the push result.
type PushResponse struct {
	Results []ResultResponse `json:"results"`
	Changes *PullResponse    `json:"changes,omitempty"`
}

// PushOutput wraps the push response for Huma.
type PushOutput struct {
	Body PushResponse
}

// PullRequest is the pull body.
type PullRequest struct {
	DeviceID   string   `json:"deviceId" doc:"Stable id of the pulling device"`
	DeviceName string   `json:"deviceName,omitempty"`
	Kinds      []string `json:"kinds,omitempty" doc:"Kinds to pull; empty means all"`
	Watermark  string   `json:"watermark,omitempty" doc:"Cursor from the previous pull; empty resumes from the device checkpoint"`
	Limit      int      `json:"limit,omitempty" minimum:"0" doc:"Page size"`
}

// PullInput wraps the pull request for Huma.
type PullInput struct {
	Body PullRequest
}

// PullOutput wraps the pull response for Huma.
type PullOutput struct {
	Body PullResponse
}

// DeviceResponse is one device checkpoint.
type DeviceResponse struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName,omitempty"`
	Watermark  string    `json:"watermark" doc:"Cursor the device has synced up to"`
	LastSyncAt time.Time `json:"lastSyncAt"`
}

// ListDevicesOutput wraps the device list for Huma.
type ListDevicesOutput struct {
	Body struct {
		Devices []DeviceResponse `json:"devices"`
	}
}

// === Handlers ===

func (s *Server) handlePush(ctx context.Context, input *PushInput) (*PushOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.PushRequest{
		DeviceID:   input.Body.DeviceID,
		DeviceName: input.Body.DeviceName,
		Changes:    make([]domain.Change, len(input.Body.Changes)),
		Pull:       input.Body.Pull,
		Kinds:      input.Body.Kinds,
		Watermark:  input.Body.Watermark,
	}
	for i, c := range input.Body.Changes {
		req.Changes[i] = toChange(c)
	}

	resp, err := s.services.Sync.Push(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	out := &PushOutput{Body: PushResponse{Results: make([]ResultResponse, len(resp.Results))}}
	for i, o := range resp.Results {
		out.Body.Results[i] = toResultResponse(o)
	}
	if resp.Changes != nil {
		page := toPullResponse(resp.Changes)
		out.Body.Changes = &page
	}
	return out, nil
}

func (s *Server) handlePull(ctx context.Context, input *PullInput) (*PullOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.services.Sync.Pull(ctx, userID, service.PullRequest{
		DeviceID:   input.Body.DeviceID,
		DeviceName: input.Body.DeviceName,
		Kinds:      input.Body.Kinds,
		Watermark:  input.Body.Watermark,
		Limit:      input.Body.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &PullOutput{Body: toPullResponse(resp)}, nil
}

func (s *Server) handleListDevices(ctx context.Context, _ *struct{}) (*ListDevicesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	checkpoints, err := s.services.Sync.ListDevices(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &ListDevicesOutput{}
	out.Body.Devices = make([]DeviceResponse, len(checkpoints))
	for i, cp := range checkpoints {
		out.Body.Devices[i] = DeviceResponse{
			DeviceID:   cp.DeviceID,
			DeviceName: cp.DeviceName,
			Watermark:  store.EncodeWatermark(cp.Watermark),
			LastSyncAt: cp.LastSyncAt,
		}
	}
	return out, nil
}

// === Conversions ===

var tombstoneMarker = []byte("true")

// isTombstonePayload reports whether raw is exactly {"deleted": true}.
func isTombstonePayload(raw json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) != 1 {
		return false
	}
	v, ok := fields["deleted"]
	return ok && bytes.Equal(bytes.TrimSpace(v), tombstoneMarker)
}

func toChange(c ChangeRequest) domain.Change {
	change := domain.Change{
		Kind:        domain.Kind(c.Kind),
		ID:          c.ID,
		BaseVersion: c.BaseVersion,
	}
	if isTombstonePayload(c.Payload) {
		change.Delete = true
	} else {
		change.Payload = c.Payload
	}
	return change
}

func toEntityResponse(e *domain.Entity) EntityResponse {
	r := EntityResponse{
		Kind:      string(e.Kind),
		ID:        e.ID,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
		DeletedAt: e.DeletedAt,
	}
	if !e.IsDeleted() {
		r.Payload = e.Payload
	}
	return r
}

func toResultResponse(o domain.Outcome) ResultResponse {
	r := ResultResponse{
		ID:      o.ID,
		Kind:    string(o.Kind),
		Status:  string(o.Status),
		Version: o.Version,
		Reason:  string(o.Reason),
		Message: o.Message,
	}
	if o.ServerEntity != nil {
		e := toEntityResponse(o.ServerEntity)
		r.ServerEntity = &e
	}
	return r
}

func toPullResponse(p *service.PullResponse) PullResponse {
	out := PullResponse{
		Entities:  make([]EntityResponse, len(p.Entities)),
		Watermark: p.Watermark,
		HasMore:   p.HasMore,
	}
	for i, e := range p.Entities {
		out.Entities[i] = toEntityResponse(e)
	}
	return out
}
