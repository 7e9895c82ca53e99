package store

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/fuelupapp/fuelup-server/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCheckpointKey_PartsDoNotCollide(t *testing.T) {
	a := checkpointKey("a", "b:c")
	b := checkpointKey("a:b", "c")
	defer releaseKey(a)
	defer releaseKey(b)

	assert.NotEqual(t, string(a), string(b))
	assert.Equal(t, "c:a:b%3Ac", string(a))
	assert.Equal(t, "c:a%3Ab:c", string(b))
}

func TestCheckpointUserPrefix_ExcludesLongerUserIDs(t *testing.T) {
	prefix := checkpointUserPrefix("alice")
	other := checkpointKey("alice:x", "phone")
	defer releaseKey(prefix)
	defer releaseKey(other)

	assert.False(t, bytes.HasPrefix(other, prefix))
}

func TestOwnerKindPrefix_ExcludesOwnerWithKindSuffix(t *testing.T) {
	prefix := ownerKindPrefix("a", domain.KindFoodEntry)
	key := ownerKey("a:food_entry", domain.KindFoodEntry, "X")
	defer releaseKey(prefix)
	defer releaseKey(key)

	assert.False(t, bytes.HasPrefix(key, prefix))
}

func TestUnescapeKeyPart(t *testing.T) {
	for _, part := range []string{"", "plain", "a:b", "100%", "%3A", "%25", "::%%", "x%3"} {
		t.Run(part, func(t *testing.T) {
			escaped := appendKeyPart(nil, part)
			assert.NotContains(t, string(escaped), ":")
			assert.Equal(t, part, unescapeKeyPart(escaped))
		})
	}
}

func TestLowestRefs_KeepsSmallestInOrder(t *testing.T) {
	var all []changeRef
	for i := range 500 {
		all = append(all, changeRef{kind: domain.KindFoodEntry, id: fmt.Sprintf("id-%03d", i), seq: uint64(i + 1)})
	}
	shuffled := slices.Clone(all)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	lowest := newLowestRefs(7)
	for _, r := range shuffled {
		lowest.add(r)
		assert.Less(t, len(lowest.refs), 14)
	}

	assert.Equal(t, all[:7], lowest.sorted())
}

func TestLowestRefs_FewerThanN(t *testing.T) {
	lowest := newLowestRefs(10)
	lowest.add(changeRef{kind: domain.KindDailyLog, id: "b", seq: 2})
	lowest.add(changeRef{kind: domain.KindDailyLog, id: "a", seq: 2})
	lowest.add(changeRef{kind: domain.KindFoodEntry, id: "z", seq: 1})

	got := lowest.sorted()
	assert.Equal(t, []string{"z", "a", "b"}, []string{got[0].id, got[1].id, got[2].id})
}
