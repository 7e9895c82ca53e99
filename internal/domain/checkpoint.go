package domain

import "time"

// Checkpoint records how far one device of one user has synced.
type Checkpoint struct {
	Syncable
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name,omitempty"`
	Watermark  Watermark `json:"watermark"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// NewCheckpoint returns the default checkpoint for a device that never synced.
func NewCheckpoint(userID, deviceID string) *Checkpoint {
	return &Checkpoint{UserID: userID, DeviceID: deviceID}
}

// IsNew reports whether the checkpoint has never been persisted.
func (c *Checkpoint) IsNew() bool {
	return c.ID == ""
}
