// Package sse pushes change hints to a user's other connected devices.
// Clients still pull to learn what changed; an event only says that something did.
package sse

import (
	"time"

	"github.com/fuelupapp/fuelup-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"
	// EventSyncChanged tells a device that records of the listed kinds changed.
	EventSyncChanged EventType = "sync.changed"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Routing fields, never serialized.
	UserID         string `json:"-"`
	OriginDeviceID string `json:"-"`
}

// SyncChangedData is the payload of a sync.changed event.
type SyncChangedData struct {
	Kinds          []domain.Kind `json:"kinds"`
	OriginDeviceID string        `json:"originDeviceId"`
}

// NewSyncChangedEvent builds a sync.changed event addressed to userID.
func NewSyncChangedEvent(userID, originDeviceID string, kinds []domain.Kind) Event {
	return Event{
		Type:      EventSyncChanged,
		Timestamp: time.Now(),
		Data: SyncChangedData{
			Kinds:          kinds,
			OriginDeviceID: originDeviceID,
		},
		UserID:         userID,
		OriginDeviceID: originDeviceID,
	}
}
