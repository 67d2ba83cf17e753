package workout

import (
	"fmt"
	"slices"

	"github.com/myrjola/blockplan/internal/ptr"
)

// BlockSource is one of the shapes a block can be authored in: NativeSource or AuthoredSource.
type BlockSource interface {
	blockSource()
}

// NativeSource is a block in the typed template model.
type NativeSource struct {
	Block BlockTemplate
}

// AuthoredSource is a block in the free-form JSON format produced by AI authoring.
type AuthoredSource struct {
	JSON []byte
}

func (NativeSource) blockSource()   {}
func (AuthoredSource) blockSource() {}

// UnifiedBlock is the read-only display shape of a block regardless of how it was authored. It is never fed
// back into session generation. Days repeat in each of the NumberOfWeeks weeks.
type UnifiedBlock struct {
	Title         string          `json:"title"`
	Goal          *string         `json:"goal,omitempty"`
	NumberOfWeeks int             `json:"number_of_weeks"`
	Progression   ProgressionType `json:"progression"`
	Days          []UnifiedDay    `json:"days"`
}

type UnifiedDay struct {
	Name      string            `json:"name"`
	ShortCode string            `json:"short_code"`
	Goal      *string           `json:"goal,omitempty"`
	Exercises []UnifiedExercise `json:"exercises"`
}

type UnifiedExercise struct {
	Name             string          `json:"name"`
	Kind             ExerciseKind    `json:"kind"`
	Category         *Category       `json:"category,omitempty"`
	ConditioningType *string         `json:"conditioning_type,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Progression      ProgressionRule `json:"progression"`
	Sets             []UnifiedSet    `json:"sets"`
}

// UnifiedSet carries the metrics of both set kinds. Only the ones relevant to the exercise are set.
type UnifiedSet struct {
	Index           int      `json:"index"`
	Reps            *int     `json:"reps,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	RPE             *float64 `json:"rpe,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
	Calories        *int     `json:"calories,omitempty"`
	Rounds          *int     `json:"rounds,omitempty"`
	Effort          *string  `json:"effort,omitempty"`
	RestSeconds     *int     `json:"rest_seconds,omitempty"`
}

// Normalize converts src into the unified display shape. Malformed authored JSON fails with a *FormatError and
// nothing is partially normalized.
func Normalize(src BlockSource) (UnifiedBlock, error) {
	switch s := src.(type) {
	case NativeSource:
		return normalizeNative(s.Block), nil
	case AuthoredSource:
		return normalizeAuthored(s.JSON)
	default:
		return UnifiedBlock{}, fmt.Errorf("unsupported block source %T", src)
	}
}

func normalizeNative(block BlockTemplate) UnifiedBlock {
	progression := block.Progression
	if progression == "" {
		progression = ProgressionCustom
	}
	days := orderedDays(block.Days)
	unified := UnifiedBlock{
		Title:         block.Name,
		Goal:          ptr.Clone(block.Goal),
		NumberOfWeeks: block.NumberOfWeeks,
		Progression:   progression,
		Days:          make([]UnifiedDay, len(days)),
	}
	for i, day := range days {
		exercises := make([]UnifiedExercise, len(day.Exercises))
		for j, ex := range day.Exercises {
			exercises[j] = unifyExercise(ex, progression)
		}
		unified.Days[i] = UnifiedDay{
			Name:      day.Name,
			ShortCode: day.ShortCode,
			Goal:      ptr.Clone(day.Goal),
			Exercises: exercises,
		}
	}
	return unified
}

func unifyExercise(ex ExerciseTemplate, blockDefault ProgressionType) UnifiedExercise {
	rule := ex.EffectiveRule(blockDefault)
	resolved := ProgressionRule{Type: rule.Type, DeltaWeight: nil}
	if rule.Type == ProgressionWeight {
		resolved.DeltaWeight = ptr.Ref(rule.Delta())
	}

	var sets []UnifiedSet
	switch ex.Kind {
	case KindStrength:
		sets = make([]UnifiedSet, 0, len(ex.StrengthSets))
		for _, s := range ex.StrengthSets {
			sets = append(sets, UnifiedSet{ //nolint:exhaustruct // conditioning metrics do not apply.
				Index:       s.Index,
				Reps:        ptr.Ref(s.Reps),
				Weight:      ptr.Clone(s.Weight),
				RPE:         ptr.Clone(s.RPE),
				RestSeconds: ptr.Clone(s.RestSeconds),
			})
		}
	case KindConditioning:
		sets = make([]UnifiedSet, 0, len(ex.ConditioningSets))
		for _, s := range ex.ConditioningSets {
			sets = append(sets, UnifiedSet{ //nolint:exhaustruct // strength metrics do not apply.
				Index:           s.Index,
				DurationSeconds: ptr.Clone(s.DurationSeconds),
				DistanceMeters:  ptr.Clone(s.DistanceMeters),
				Calories:        ptr.Clone(s.Calories),
				Rounds:          ptr.Clone(s.Rounds),
				Effort:          ptr.Clone(s.Effort),
				RestSeconds:     ptr.Clone(s.RestSeconds),
			})
		}
	}
	slices.SortStableFunc(sets, func(a, b UnifiedSet) int { return a.Index - b.Index })

	return UnifiedExercise{
		Name:             ex.Name,
		Kind:             ex.Kind,
		Category:         ptr.Clone(ex.Category),
		ConditioningType: ptr.Clone(ex.ConditioningType),
		Notes:            ex.Notes,
		Progression:      resolved,
		Sets:             sets,
	}
}
