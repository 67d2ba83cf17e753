package workout

import (
	"slices"

	"github.com/myrjola/blockplan/internal/ptr"
)

// plannedSet is a prescribed set of either kind flattened into the values a session tracks.
type plannedSet struct {
	index  int
	values SetValues
}

// baseSets returns the exercise's prescribed sets ordered by index, keeping declaration order for ties.
func baseSets(ex ExerciseTemplate) []plannedSet {
	var sets []plannedSet
	switch ex.Kind {
	case KindStrength:
		for _, s := range ex.StrengthSets {
			sets = append(sets, plannedSet{
				index: s.Index,
				values: SetValues{
					Reps:           ptr.Ref(s.Reps),
					Weight:         ptr.Clone(s.Weight),
					TimeSeconds:    nil,
					DistanceMeters: nil,
					Calories:       nil,
				},
			})
		}
	case KindConditioning:
		for _, s := range ex.ConditioningSets {
			sets = append(sets, plannedSet{
				index: s.Index,
				values: SetValues{
					Reps:           nil,
					Weight:         nil,
					TimeSeconds:    ptr.Clone(s.DurationSeconds),
					DistanceMeters: ptr.Clone(s.DistanceMeters),
					Calories:       ptr.Clone(s.Calories),
				},
			})
		}
	}
	slices.SortStableFunc(sets, func(a, b plannedSet) int { return a.index - b.index })
	return sets
}

// applyProgression computes the expected sets for week offset weekOffset (week 1 is offset 0) from the
// immutable base sets. It never reads a previous week's result.
func applyProgression(rule ProgressionRule, base []plannedSet, weekOffset int) []plannedSet {
	sets := make([]plannedSet, len(base))
	for i, s := range base {
		sets[i] = plannedSet{index: s.index, values: s.values.Clone()}
	}
	if weekOffset <= 0 {
		return sets
	}

	switch rule.Type {
	case ProgressionWeight:
		delta := rule.Delta() * float64(weekOffset)
		for i := range sets {
			// Only sets carrying a weight progress, so conditioning and bodyweight sets stay as they are.
			if sets[i].values.Weight != nil {
				*sets[i].values.Weight += delta
			}
		}
	case ProgressionVolume:
		if len(sets) == 0 {
			return sets
		}
		last := sets[len(sets)-1]
		nextIndex := maxIndex(sets) + 1
		for i := range weekOffset {
			sets = append(sets, plannedSet{index: nextIndex + i, values: last.values.Clone()})
		}
	case ProgressionCustom:
		// Custom progression is defined outside the factory and never applied automatically.
	}
	return sets
}

func maxIndex(sets []plannedSet) int {
	highest := sets[0].index
	for _, s := range sets[1:] {
		highest = max(highest, s.index)
	}
	return highest
}
