package validation

import (
	"encoding/json"

	"github.com/fuelupapp/fuelup-server/internal/domain"
)

// FoodEntry is a logged meal item. Timestamps in all payloads are RFC 3339;
// calendar dates are ISO 8601 days.
type FoodEntry struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Brand        string   `json:"brand" validate:"max=200"`
	Calories     *int     `json:"calories" validate:"required,gte=0"`
	ProteinGrams *float64 `json:"proteinGrams" validate:"required,gte=0"`
	CarbsGrams   *float64 `json:"carbsGrams" validate:"omitempty,gte=0"`
	FatGrams     *float64 `json:"fatGrams" validate:"omitempty,gte=0"`
	FiberGrams   *float64 `json:"fiberGrams" validate:"omitempty,gte=0"`
	ServingSize  string   `json:"servingSize" validate:"max=100"`
	MealType     string   `json:"mealType" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	PhotoURL     string   `json:"photoUrl" validate:"omitempty,url"`
	Timestamp    string   `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// DailyLog is one day of activity and recovery metrics.
type DailyLog struct {
	Date                     string            `json:"date" validate:"required,datetime=2006-01-02"`
	Steps                    *int              `json:"steps" validate:"omitempty,gte=0"`
	ActiveCalories           *int              `json:"activeCalories" validate:"omitempty,gte=0"`
	SleepHours               *float64          `json:"sleepHours" validate:"omitempty,gte=0,lte=24"`
	SleepScore               *int              `json:"sleepScore" validate:"omitempty,gte=0,lte=100"`
	ReadinessScore           *int              `json:"readinessScore" validate:"omitempty,gte=0,lte=100"`
	HRVAverage               *float64          `json:"hrvAverage" validate:"omitempty,gte=0"`
	RestingHeartRate         *int              `json:"restingHeartRate" validate:"omitempty,gt=0"`
	BodyTemperatureDeviation *float64          `json:"bodyTemperatureDeviation"`
	HydrationOz              *int              `json:"hydrationOz" validate:"omitempty,gte=0"`
	SupplementsTaken         []string          `json:"supplementsTaken"`
	WorkoutSummaries         []json.RawMessage `json:"workoutSummaries"`
}

// DailyGoal holds the user's daily targets. Missing targets use client defaults.
type DailyGoal struct {
	CaloriesTarget  *int     `json:"caloriesTarget" validate:"omitempty,gt=0"`
	ProteinTarget   *int     `json:"proteinTarget" validate:"omitempty,gte=0"`
	CarbsTarget     *int     `json:"carbsTarget" validate:"omitempty,gte=0"`
	FatTarget       *int     `json:"fatTarget" validate:"omitempty,gte=0"`
	StepsTarget     *int     `json:"stepsTarget" validate:"omitempty,gte=0"`
	HydrationTarget *int     `json:"hydrationTarget" validate:"omitempty,gte=0"`
	Supplements     []string `json:"supplements"`
}

// BodyComposition is one weigh-in or body scan.
type BodyComposition struct {
	Date               string   `json:"date" validate:"required,datetime=2006-01-02"`
	WeightLbs          *float64 `json:"weightLbs" validate:"required,gt=0"`
	BodyFatPercent     *float64 `json:"bodyFatPercent" validate:"omitempty,gte=0,lte=100"`
	MuscleMassLbs      *float64 `json:"muscleMassLbs" validate:"omitempty,gte=0"`
	VisceralFat        *int     `json:"visceralFat" validate:"omitempty,gte=0"`
	BasalMetabolicRate *int     `json:"basalMetabolicRate" validate:"omitempty,gte=0"`
	ScanPhotoURL       string   `json:"scanPhotoUrl" validate:"omitempty,url"`
	Source             string   `json:"source" validate:"omitempty,oneof=inbody wyze manual"`
}

// Peptide is a compound in the user's protocol.
type Peptide struct {
	Name            string   `json:"name" validate:"required,max=200"`
	ShortName       string   `json:"shortName" validate:"required,max=50"`
	Category        string   `json:"category" validate:"required,oneof=ghSecretagogue healing weightManagement skinHealth other"`
	Vendor          string   `json:"vendor" validate:"max=200"`
	RecommendedDose *float64 `json:"recommendedDose" validate:"required,gte=0"`
	DoseUnit        string   `json:"doseUnit" validate:"max=20"`
	Frequency       string   `json:"frequency" validate:"required,oneof=daily twiceDaily everyOtherDay weekly"`
	IsActive        *bool    `json:"isActive"`
	Notes           string   `json:"notes"`
}

// PeptideEntry is one logged dose.
type PeptideEntry struct {
	PeptideID     string   `json:"peptideId" validate:"required,max=128"`
	Dose          *float64 `json:"dose" validate:"required,gte=0"`
	DoseUnit      string   `json:"doseUnit" validate:"max=20"`
	InjectionSite string   `json:"injectionSite" validate:"required,max=100"`
	AIVerified    *bool    `json:"aiVerified"`
	PhotoURL      string   `json:"photoUrl" validate:"omitempty,url"`
	Timestamp     string   `json:"timestamp" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// FavoriteFood is a saved food template.
type FavoriteFood struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Brand        string   `json:"brand" validate:"max=200"`
	Calories     *int     `json:"calories" validate:"required,gte=0"`
	ProteinGrams *float64 `json:"proteinGrams" validate:"required,gte=0"`
	CarbsGrams   *float64 `json:"carbsGrams" validate:"omitempty,gte=0"`
	FatGrams     *float64 `json:"fatGrams" validate:"omitempty,gte=0"`
	ServingSize  string   `json:"servingSize" validate:"max=100"`
	PhotoURL     string   `json:"photoUrl" validate:"omitempty,url"`
}

// WorkoutSession groups exercises done on one day.
type WorkoutSession struct {
	Date                string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string `json:"startTime" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime             string `json:"endTime" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes     *int   `json:"durationMinutes" validate:"omitempty,gte=0"`
	TotalCaloriesBurned *int   `json:"totalCaloriesBurned" validate:"omitempty,gte=0"`
	Notes               string `json:"notes"`
	VoiceTranscript     string `json:"voiceTranscript"`
}

// Exercise is one movement within a workout session.
type Exercise struct {
	SessionID         string   `json:"sessionId" validate:"required,max=128"`
	Name              string   `json:"name" validate:"required,max=200"`
	MuscleGroup       string   `json:"muscleGroup" validate:"omitempty,oneof=chest back legs shoulders arms core cardio"`
	Sets              *int     `json:"sets" validate:"omitempty,gte=0"`
	Reps              *int     `json:"reps" validate:"omitempty,gte=0"`
	WeightLbs         *float64 `json:"weightLbs" validate:"omitempty,gte=0"`
	DurationSeconds   *int     `json:"durationSeconds" validate:"omitempty,gte=0"`
	CaloriesBurned    *int     `json:"caloriesBurned" validate:"omitempty,gte=0"`
	EquipmentPhotoURL string   `json:"equipmentPhotoUrl" validate:"omitempty,url"`
	Notes             string   `json:"notes"`
}

var payloadSchemas = map[domain.Kind]func() any{
	domain.KindFoodEntry:       func() any { return new(FoodEntry) },
	domain.KindDailyLog:        func() any { return new(DailyLog) },
	domain.KindDailyGoal:       func() any { return new(DailyGoal) },
	domain.KindBodyComposition: func() any { return new(BodyComposition) },
	domain.KindPeptide:         func() any { return new(Peptide) },
	domain.KindPeptideEntry:    func() any { return new(PeptideEntry) },
	domain.KindFavoriteFood:    func() any { return new(FavoriteFood) },
	domain.KindWorkoutSession:  func() any { return new(WorkoutSession) },
	domain.KindExercise:        func() any { return new(Exercise) },
}
