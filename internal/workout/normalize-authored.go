package workout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/ptr"
)

// authoredBlock mirrors the JSON produced by AI authoring. Pointers tell missing fields apart from zero values.
// Unrecognized fields are ignored.
type authoredBlock struct {
	Title         *string        `json:"Title"`
	Goal          *string        `json:"Goal"`
	NumberOfWeeks *int           `json:"NumberOfWeeks"`
	Progression   *string        `json:"Progression"`
	Days          *[]authoredDay `json:"Days"`
}

type authoredDay struct {
	Name      *string             `json:"name"`
	ShortCode *string             `json:"shortCode"`
	Goal      *string             `json:"goal"`
	Exercises *[]authoredExercise `json:"exercises"`
}

type authoredExercise struct {
	Name             *string        `json:"name"`
	Type             *string        `json:"type"`
	Category         *string        `json:"category"`
	ConditioningType *string        `json:"conditioningType"`
	Notes            *string        `json:"notes"`
	Progression      *string        `json:"progression"`
	DeltaWeight      *float64       `json:"deltaWeight"`
	Sets             *[]authoredSet `json:"sets"`
	// An exercise without a set list may carry the fields of a single set itself.
	authoredSet
}

// authoredSet holds the fields of both set kinds. Fields of the other kind than the exercise's are ignored.
type authoredSet struct {
	Index            *int     `json:"index"`
	Reps             *int     `json:"reps"`
	Weight           *float64 `json:"weight"`
	RPE              *float64 `json:"rpe"`
	RestSeconds      *int     `json:"restSeconds"`
	DurationSeconds  *int     `json:"durationSeconds"`
	Rounds           *int     `json:"rounds"`
	DistanceMeters   *float64 `json:"distanceMeters"`
	Calories         *int     `json:"calories"`
	EffortDescriptor *string  `json:"effortDescriptor"`
}

func (s authoredSet) hasValues() bool {
	return s.Reps != nil || s.Weight != nil || s.RPE != nil || s.RestSeconds != nil || s.DurationSeconds != nil ||
		s.Rounds != nil || s.DistanceMeters != nil || s.Calories != nil || s.EffortDescriptor != nil
}

func normalizeAuthored(data []byte) (UnifiedBlock, error) {
	block, err := TemplateFromAuthored(data)
	if err != nil {
		return UnifiedBlock{}, err
	}
	return normalizeNative(block), nil
}

// TemplateFromAuthored converts authored JSON into a native block template with fresh identities so that an
// AI-authored block can be saved and generate sessions. Malformed input fails with a *FormatError.
//
// Days keep their array order. Sets without an explicit index are indexed by array position. An exercise without
// a set list whose own fields describe a set gets that single set. A block without a progression field uses the
// custom rule.
func TemplateFromAuthored(data []byte) (BlockTemplate, error) {
	var raw authoredBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return BlockTemplate{}, jsonFormatError(err)
	}

	title, err := required(raw.Title, "Title")
	if err != nil {
		return BlockTemplate{}, err
	}
	weeks, err := required(raw.NumberOfWeeks, "NumberOfWeeks")
	if err != nil {
		return BlockTemplate{}, err
	}
	if weeks < 1 || weeks > MaxWeeks {
		return BlockTemplate{}, formatErr("NumberOfWeeks",
			fmt.Sprintf("must be between 1 and %d, got %d", MaxWeeks, weeks))
	}
	progression := ProgressionCustom
	if raw.Progression != nil {
		progression = ProgressionType(*raw.Progression)
		if progression == "" || !validProgression(progression) {
			return BlockTemplate{}, formatErr("Progression", fmt.Sprintf("unknown progression %q", *raw.Progression))
		}
	}
	days, err := required(raw.Days, "Days")
	if err != nil {
		return BlockTemplate{}, err
	}

	block := BlockTemplate{
		ID:            uuid.New(),
		Name:          title,
		Goal:          nonEmpty(raw.Goal),
		NumberOfWeeks: weeks,
		Progression:   progression,
		Days:          make([]DayTemplate, len(days)),
		CreatedAt:     time.Now().UTC(),
	}
	for i, d := range days {
		if block.Days[i], err = convertAuthoredDay(d, i, fmt.Sprintf("Days[%d]", i)); err != nil {
			return BlockTemplate{}, err
		}
	}
	return block, nil
}

func convertAuthoredDay(d authoredDay, order int, path string) (DayTemplate, error) {
	name, err := required(d.Name, path+".name")
	if err != nil {
		return DayTemplate{}, err
	}
	exercises, err := required(d.Exercises, path+".exercises")
	if err != nil {
		return DayTemplate{}, err
	}
	day := DayTemplate{
		ID:        uuid.New(),
		Order:     order,
		Name:      name,
		ShortCode: ptr.Deref(d.ShortCode, ""),
		Goal:      nonEmpty(d.Goal),
		Exercises: make([]ExerciseTemplate, len(exercises)),
	}
	for i, e := range exercises {
		if day.Exercises[i], err = convertAuthoredExercise(e, fmt.Sprintf("%s.exercises[%d]", path, i)); err != nil {
			return DayTemplate{}, err
		}
	}
	return day, nil
}

func convertAuthoredExercise(e authoredExercise, path string) (ExerciseTemplate, error) {
	name, err := required(e.Name, path+".name")
	if err != nil {
		return ExerciseTemplate{}, err
	}
	typ, err := required(e.Type, path+".type")
	if err != nil {
		return ExerciseTemplate{}, err
	}
	kind := ExerciseKind(typ)
	if !validKind(kind) {
		return ExerciseTemplate{}, formatErr(path+".type", fmt.Sprintf("unknown exercise type %q", typ))
	}
	sets, setPathOf, err := authoredSets(e, path)
	if err != nil {
		return ExerciseTemplate{}, err
	}

	ex := ExerciseTemplate{
		ID:               uuid.New(),
		Name:             name,
		Kind:             kind,
		Category:         nil,
		ConditioningType: nonEmpty(e.ConditioningType),
		Notes:            ptr.Deref(e.Notes, ""),
		StrengthSets:     nil,
		ConditioningSets: nil,
		Progression:      nil,
	}
	if e.Category != nil && *e.Category != "" {
		category := Category(*e.Category)
		if !validCategory(category) {
			return ExerciseTemplate{}, formatErr(path+".category", fmt.Sprintf("unknown category %q", *e.Category))
		}
		ex.Category = &category
	}
	if e.Progression != nil {
		rule := ProgressionType(*e.Progression)
		if rule == "" || !validProgression(rule) {
			return ExerciseTemplate{}, formatErr(path+".progression",
				fmt.Sprintf("unknown progression %q", *e.Progression))
		}
		ex.Progression = &ProgressionRule{Type: rule, DeltaWeight: ptr.Clone(e.DeltaWeight)}
	}

	seen := make(map[int]bool, len(sets))
	for i, s := range sets {
		setPath := setPathOf(i)
		index := ptr.Deref(s.Index, i)
		if seen[index] {
			return ExerciseTemplate{}, formatErr(setPath+".index", fmt.Sprintf("duplicate set index %d", index))
		}
		seen[index] = true

		switch kind {
		case KindStrength:
			reps, repsErr := required(s.Reps, setPath+".reps")
			if repsErr != nil {
				return ExerciseTemplate{}, repsErr
			}
			ex.StrengthSets = append(ex.StrengthSets, StrengthSet{
				Index:       index,
				Reps:        reps,
				Weight:      ptr.Clone(s.Weight),
				RPE:         ptr.Clone(s.RPE),
				RestSeconds: ptr.Clone(s.RestSeconds),
			})
		case KindConditioning:
			set := ConditioningSet{
				Index:           index,
				DurationSeconds: ptr.Clone(s.DurationSeconds),
				DistanceMeters:  ptr.Clone(s.DistanceMeters),
				Calories:        ptr.Clone(s.Calories),
				Rounds:          ptr.Clone(s.Rounds),
				Effort:          nonEmpty(s.EffortDescriptor),
				RestSeconds:     ptr.Clone(s.RestSeconds),
			}
			if !set.hasMetric() {
				return ExerciseTemplate{}, formatErr(setPath,
					"conditioning set needs one of durationSeconds, distanceMeters, calories, rounds or effortDescriptor")
			}
			ex.ConditioningSets = append(ex.ConditioningSets, set)
		}
	}
	return ex, nil
}

// authoredSets returns the sets of an exercise and the error path of each set. Without a set list, set fields
// on the exercise itself form a single set at index 0 whose errors point at the exercise.
func authoredSets(e authoredExercise, path string) ([]authoredSet, func(i int) string, error) {
	if e.Sets != nil {
		return *e.Sets, func(i int) string { return fmt.Sprintf("%s.sets[%d]", path, i) }, nil
	}
	if !e.authoredSet.hasValues() {
		return nil, nil, formatErr(path+".sets", "required field is missing")
	}
	single := e.authoredSet
	single.Index = nil
	return []authoredSet{single}, func(int) string { return path }, nil
}

// jsonFormatError turns decoding failures into a *FormatError, keeping the decoder's field path.
func jsonFormatError(err error) *FormatError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &FormatError{
			Path:   typeErr.Field,
			Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Err:    err,
		}
	}
	return &FormatError{Path: "", Reason: "invalid JSON", Err: err}
}

func required[T any](v *T, path string) (T, error) {
	if v == nil {
		var zero T
		return zero, formatErr(path, "required field is missing")
	}
	return *v, nil
}

// nonEmpty maps missing and empty strings to nil.
func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return ptr.Ref(*s)
}
