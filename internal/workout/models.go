// Package workout plans multi-week training blocks: it turns block templates into loggable workout sessions,
// applies week-over-week progression rules, normalizes templates for display, and reports completion metrics.
package workout

import (
	"time"

	"github.com/google/uuid"
)

// ExerciseKind tells which set shape an exercise prescribes.
type ExerciseKind string

const (
	KindStrength     ExerciseKind = "strength"
	KindConditioning ExerciseKind = "conditioning"
)

// ProgressionType selects how expected set values change week over week.
type ProgressionType string

const (
	ProgressionWeight ProgressionType = "weight"
	ProgressionVolume ProgressionType = "volume"
	// ProgressionCustom is left to manual or AI-defined edits. The session factory never mutates it.
	ProgressionCustom ProgressionType = "custom"
)

// Category is the movement pattern of an exercise.
type Category string

const (
	CategorySquat Category = "squat"
	CategoryHinge Category = "hinge"
	CategoryPress Category = "press"
	CategoryPull  Category = "pull"
	CategoryOther Category = "other"
)

// DefaultDeltaWeight is the weekly weight increase of the weight rule when none is given.
const DefaultDeltaWeight = 5.0

// MaxWeeks is the longest block that can be stored or generated, one year of weekly sessions.
const MaxWeeks = 52

// BlockTemplate is a multi-week training program. It owns its days, exercises and sets.
type BlockTemplate struct {
	ID            uuid.UUID
	Name          string
	Goal          *string
	NumberOfWeeks int
	// Progression is the block-level default rule type for exercises without their own rule.
	Progression ProgressionType
	Days        []DayTemplate
	CreatedAt   time.Time
}

// DayTemplate is one training day that repeats every week of the block.
type DayTemplate struct {
	ID uuid.UUID
	// Order positions the day within the block. Slice position carries no meaning.
	Order     int
	Name      string
	ShortCode string
	Goal      *string
	Exercises []ExerciseTemplate
}

// ExerciseTemplate prescribes the sets for one exercise. Only the set list matching Kind is used.
type ExerciseTemplate struct {
	ID               uuid.UUID
	Name             string
	Kind             ExerciseKind
	Category         *Category
	ConditioningType *string
	Notes            string
	StrengthSets     []StrengthSet
	ConditioningSets []ConditioningSet
	// Progression overrides the block default when set.
	Progression *ProgressionRule
}

// StrengthSet is a prescribed set with a rep target. A nil Weight is a bodyweight set.
type StrengthSet struct {
	Index       int
	Reps        int
	Weight      *float64
	RPE         *float64
	RestSeconds *int
}

// ConditioningSet is a prescribed set measured by any subset of time, distance, calories, rounds or effort.
type ConditioningSet struct {
	Index           int
	DurationSeconds *int
	DistanceMeters  *float64
	Calories        *int
	Rounds          *int
	Effort          *string
	RestSeconds     *int
}

func (s ConditioningSet) hasMetric() bool {
	return s.DurationSeconds != nil || s.DistanceMeters != nil || s.Calories != nil ||
		s.Rounds != nil || (s.Effort != nil && *s.Effort != "")
}

// ProgressionRule governs expected values over the weeks of a block.
type ProgressionRule struct {
	Type ProgressionType `json:"type"`
	// DeltaWeight is the weekly increase of the weight rule. Nil means DefaultDeltaWeight.
	DeltaWeight *float64 `json:"delta_weight,omitempty"`
}

// Delta returns the weekly weight increase of the rule.
func (r ProgressionRule) Delta() float64 {
	if r.DeltaWeight == nil {
		return DefaultDeltaWeight
	}
	return *r.DeltaWeight
}

// EffectiveRule returns the exercise's own rule or the block default.
func (e ExerciseTemplate) EffectiveRule(blockDefault ProgressionType) ProgressionRule {
	if e.Progression != nil {
		return *e.Progression
	}
	if blockDefault == "" {
		blockDefault = ProgressionCustom
	}
	return ProgressionRule{Type: blockDefault, DeltaWeight: nil}
}

// Day returns the day with the given id.
func (b *BlockTemplate) Day(id uuid.UUID) (*DayTemplate, bool) {
	for i := range b.Days {
		if b.Days[i].ID == id {
			return &b.Days[i], true
		}
	}
	return nil, false
}

// Exercise finds an exercise template anywhere in the block.
func (b *BlockTemplate) Exercise(id uuid.UUID) (*ExerciseTemplate, bool) {
	for i := range b.Days {
		for j := range b.Days[i].Exercises {
			if b.Days[i].Exercises[j].ID == id {
				return &b.Days[i].Exercises[j], true
			}
		}
	}
	return nil, false
}
