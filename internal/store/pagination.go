package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/fuelupapp/fuelup-server/internal/domain"
)

const watermarkPrefix = "w1:"

// PaginationParams contains page size limits for change listings.
type PaginationParams struct {
	Limit    int // Requested page size; zero means Default
	Default  int
	MaxLimit int
}

// Validate clamps the requested limit into [1, MaxLimit].
func (p *PaginationParams) Validate() {
	if p.Default <= 0 {
		p.Default = 500
	}
	if p.MaxLimit <= 0 {
		p.MaxLimit = 1000
	}
	if p.Limit <= 0 {
		p.Limit = p.Default
	}
	if p.Limit > p.MaxLimit {
		p.Limit = p.MaxLimit
	}
}

// EncodeCursor creates an opaque cursor from a key.
func EncodeCursor(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor decodes a cursor back to a key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor: %w", err)
	}

	return string(decoded), nil
}

// EncodeWatermark renders a watermark as the opaque token handed to clients.
func EncodeWatermark(w domain.Watermark) string {
	if w.IsZero() {
		return ""
	}
	return EncodeCursor(watermarkPrefix + strconv.FormatUint(uint64(w), 10))
}

// DecodeWatermark parses a token produced by EncodeWatermark.
// The empty token is the zero watermark.
func DecodeWatermark(token string) (domain.Watermark, error) {
	raw, err := DecodeCursor(token)
	if err != nil {
		return 0, ErrInvalidCursor.WithCause(err)
	}
	if raw == "" {
		return 0, nil
	}
	digits, ok := strings.CutPrefix(raw, watermarkPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, ErrInvalidCursor.WithCause(err)
	}
	return domain.Watermark(n), nil
}
