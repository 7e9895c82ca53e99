package store

import (
	"bytes"
	"sync"

	"github.com/fuelupapp/fuelup-server/internal/domain"
)

// Key layout:
//
//	e:{kind}:{id}                  entity record (JSON)
//	o:{owner}:{kind}:{id}          owner index, written with every entity write
//	c:{user}:{device}              checkpoint (JSON)
//
// Parts are escaped so ':' only ever separates them: '%' becomes "%25" and
// ':' becomes "%3A". User and device ids are opaque and may contain either.
const (
	entityPrefix     = "e:"
	ownerPrefix      = "o:"
	checkpointPrefix = "c:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 256)
	},
}

// buildKey joins escaped parts behind prefix with ':' into a pooled buffer.
// Callers MUST call releaseKey when done with the key, and never before the
// transaction that used it has committed.
func buildKey(prefix string, parts ...string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = append(buf[:0], prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = appendKeyPart(buf, p)
	}
	return buf
}

func appendKeyPart(buf []byte, part string) []byte {
	for i := 0; i < len(part); i++ {
		switch c := part[i]; c {
		case '%':
			buf = append(buf, "%25"...)
		case ':':
			buf = append(buf, "%3A"...)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

// unescapeKeyPart reverses appendKeyPart for one part read back from a key.
func unescapeKeyPart(part []byte) string {
	if !bytes.ContainsRune(part, '%') {
		return string(part)
	}
	out := make([]byte, 0, len(part))
	for i := 0; i < len(part); i++ {
		if part[i] == '%' && i+2 < len(part) {
			switch string(part[i+1 : i+3]) {
			case "25":
				out = append(out, '%')
				i += 2
				continue
			case "3A":
				out = append(out, ':')
				i += 2
				continue
			}
		}
		out = append(out, part[i])
	}
	return string(out)
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}

func entityKey(kind domain.Kind, id string) []byte {
	return buildKey(entityPrefix, string(kind), id)
}

func ownerKey(owner string, kind domain.Kind, id string) []byte {
	return buildKey(ownerPrefix, owner, string(kind), id)
}

// ownerKindPrefix ends with ':' so one kind never matches a longer kind name.
func ownerKindPrefix(owner string, kind domain.Kind) []byte {
	return append(buildKey(ownerPrefix, owner, string(kind)), ':')
}

func checkpointKey(userID, deviceID string) []byte {
	return buildKey(checkpointPrefix, userID, deviceID)
}

func checkpointUserPrefix(userID string) []byte {
	return append(buildKey(checkpointPrefix, userID), ':')
}
