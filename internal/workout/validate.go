package workout

import (
	"errors"
	"fmt"
)

// Validate checks the invariants a block must hold before sessions are generated from it.
// All problems are reported together, each wrapping ErrInvalidTemplate.
func (b BlockTemplate) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTemplate, fmt.Sprintf(format, args...)))
	}

	if b.Name == "" {
		invalid("name is empty")
	}
	if b.NumberOfWeeks < 1 {
		invalid("number of weeks %d is less than 1", b.NumberOfWeeks)
	}
	if b.NumberOfWeeks > MaxWeeks {
		invalid("number of weeks %d is more than %d", b.NumberOfWeeks, MaxWeeks)
	}
	if !validProgression(b.Progression) {
		invalid("unknown progression %q", b.Progression)
	}

	for di, day := range b.Days {
		if day.Name == "" {
			invalid("day %d: name is empty", di)
		}
		for ei, ex := range day.Exercises {
			for _, problem := range ex.problems() {
				invalid("day %q exercise %d (%s): %s", day.Name, ei, ex.Name, problem)
			}
		}
	}
	return errors.Join(errs...)
}

func (e ExerciseTemplate) problems() []string {
	var problems []string
	if e.Name == "" {
		problems = append(problems, "name is empty")
	}
	if e.Category != nil && !validCategory(*e.Category) {
		problems = append(problems, fmt.Sprintf("unknown category %q", *e.Category))
	}
	if e.Progression != nil && (e.Progression.Type == "" || !validProgression(e.Progression.Type)) {
		problems = append(problems, fmt.Sprintf("unknown progression %q", e.Progression.Type))
	}

	seen := make(map[int]bool)
	duplicate := func(index int) {
		if seen[index] {
			problems = append(problems, fmt.Sprintf("duplicate set index %d", index))
		}
		seen[index] = true
	}

	switch e.Kind {
	case KindStrength:
		if len(e.ConditioningSets) > 0 {
			problems = append(problems, "strength exercise has conditioning sets")
		}
		for _, s := range e.StrengthSets {
			duplicate(s.Index)
			if s.Reps < 0 || (s.Weight != nil && *s.Weight < 0) {
				problems = append(problems, fmt.Sprintf("set %d has negative targets", s.Index))
			}
		}
	case KindConditioning:
		if len(e.StrengthSets) > 0 {
			problems = append(problems, "conditioning exercise has strength sets")
		}
		for _, s := range e.ConditioningSets {
			duplicate(s.Index)
			if !s.hasMetric() {
				problems = append(problems, fmt.Sprintf("set %d has no metric", s.Index))
			}
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown kind %q", e.Kind))
	}
	return problems
}

// validProgression accepts the empty type, which falls back to custom.
func validProgression(p ProgressionType) bool {
	switch p {
	case "", ProgressionWeight, ProgressionVolume, ProgressionCustom:
		return true
	}
	return false
}

func validCategory(c Category) bool {
	switch c {
	case CategorySquat, CategoryHinge, CategoryPress, CategoryPull, CategoryOther:
		return true
	}
	return false
}

func validKind(k ExerciseKind) bool {
	return k == KindStrength || k == KindConditioning
}
