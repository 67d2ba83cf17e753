package workout

import (
	"slices"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/ptr"
)

// MakeSessions expands block into one session per (week, day) pair, week-major and then in day order.
//
// The factory is a pure generator. Every call returns fresh identities, so deduplicating sessions that already
// exist for a triple is up to the caller. A block with fewer than one or more than MaxWeeks weeks is invalid and
// yields no sessions.
func MakeSessions(block BlockTemplate) []WorkoutSession {
	if block.NumberOfWeeks < 1 || block.NumberOfWeeks > MaxWeeks {
		return nil
	}
	days := orderedDays(block.Days)
	sessions := make([]WorkoutSession, 0, block.NumberOfWeeks*len(days))
	for week := 1; week <= block.NumberOfWeeks; week++ {
		for _, day := range days {
			sessions = append(sessions, makeSession(block, week, day))
		}
	}
	return sessions
}

// MakeSession builds the session of a single (week, day) triple. It returns false when the week is outside the
// block or the day does not belong to it.
func MakeSession(block BlockTemplate, week int, dayID uuid.UUID) (WorkoutSession, bool) {
	if week < 1 || week > block.NumberOfWeeks || week > MaxWeeks {
		return WorkoutSession{}, false
	}
	day, ok := block.Day(dayID)
	if !ok {
		return WorkoutSession{}, false
	}
	return makeSession(block, week, *day), true
}

func makeSession(block BlockTemplate, week int, day DayTemplate) WorkoutSession {
	exercises := make([]SessionExercise, len(day.Exercises))
	for i, ex := range day.Exercises {
		exercises[i] = makeSessionExercise(ex, block.Progression, week)
	}
	return WorkoutSession{
		ID:        uuid.New(),
		BlockID:   block.ID,
		WeekIndex: week,
		DayID:     day.ID,
		DayName:   day.Name,
		Date:      nil,
		Status:    StatusNotStarted,
		Exercises: exercises,
	}
}

func makeSessionExercise(ex ExerciseTemplate, blockDefault ProgressionType, week int) SessionExercise {
	planned := applyProgression(ex.EffectiveRule(blockDefault), baseSets(ex), week-1)
	sets := make([]SessionSet, len(planned))
	for i, p := range planned {
		sets[i] = SessionSet{
			ID:       uuid.New(),
			Index:    p.index,
			Expected: p.values,
			// Logged starts as a value-equal copy of expected and diverges only through user edits.
			Logged:      p.values.Clone(),
			Completed:   false,
			Notes:       "",
			CompletedAt: nil,
		}
	}
	return SessionExercise{
		ID:                 uuid.New(),
		ExerciseTemplateID: ptr.Ref(ex.ID),
		NameSnapshot:       ex.Name,
		NameOverride:       nil,
		Kind:               ex.Kind,
		Sets:               sets,
	}
}

// orderedDays sorts days by their explicit Order, keeping declaration order for ties.
func orderedDays(days []DayTemplate) []DayTemplate {
	sorted := slices.Clone(days)
	slices.SortStableFunc(sorted, func(a, b DayTemplate) int { return a.Order - b.Order })
	return sorted
}
