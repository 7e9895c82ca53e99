package domain

import (
	"slices"

	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// Kind names a syncable record type.
type Kind string

// Syncable kinds.
const (
	KindFoodEntry       Kind = "food_entry"
	KindDailyLog        Kind = "daily_log"
	KindDailyGoal       Kind = "daily_goal"
	KindBodyComposition Kind = "body_composition"
	KindPeptide         Kind = "peptide"
	KindPeptideEntry    Kind = "peptide_entry"
	KindFavoriteFood    Kind = "favorite_food"
	KindWorkoutSession  Kind = "workout_session"
	KindExercise        Kind = "exercise"
)

var allKinds = []Kind{
	KindFoodEntry,
	KindDailyLog,
	KindDailyGoal,
	KindBodyComposition,
	KindPeptide,
	KindPeptideEntry,
	KindFavoriteFood,
	KindWorkoutSession,
	KindExercise,
}

// AllKinds returns every syncable kind in a stable order.
func AllKinds() []Kind {
	return slices.Clone(allKinds)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(allKinds, k)
}

func (k Kind) String() string { return string(k) }

// ParseKind validates a wire kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.Validationf("unknown kind %q", s)
	}
	return k, nil
}

// ParseKinds validates and de-duplicates a list of kind names.
// An empty list selects every kind.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return AllKinds(), nil
	}

	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(kinds, k) {
			kinds = append(kinds, k)
		}
	}
	slices.Sort(kinds)
	return kinds, nil
}
