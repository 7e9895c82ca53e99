// Package id generates identifiers for server-side records.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for server-owned records.
const (
	PrefixCheckpoint = "ckpt"
	PrefixToken      = "tok"
	PrefixRequest    = "req"
)

// Generate creates a prefixed NanoID, e.g. "ckpt-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewEntityID returns an id for a syncable record the client created without one.
// Clients generate UUIDs themselves, so server ids use the same shape.
func NewEntityID() string {
	return uuid.NewString()
}
