package domain

import "time"

// Syncable provides common fields for records that participate in synchronization.
// It is embedded in Entity and Checkpoint.
type Syncable struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	ID        string     `json:"id"`
}

// Touch sets UpdatedAt to now. Stores call this inside the write transaction
// that bumps the version.
func (s *Syncable) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// InitTimestamps sets both CreatedAt and UpdatedAt to now.
func (s *Syncable) InitTimestamps(now time.Time) {
	now = now.UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
}

// IsDeleted returns true if this record is a tombstone.
func (s *Syncable) IsDeleted() bool {
	return s.DeletedAt != nil
}

// MarkDeleted turns the record into a tombstone.
// UpdatedAt moves with it so the deletion shows up in change queries.
func (s *Syncable) MarkDeleted(now time.Time) {
	now = now.UTC()
	s.DeletedAt = &now
	s.UpdatedAt = now
}
