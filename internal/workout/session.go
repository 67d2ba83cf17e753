package workout

import (
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/ptr"
)

// SessionStatus is set by the logging workflow. The core never derives it.
type SessionStatus string

const (
	StatusNotStarted SessionStatus = "notStarted"
	StatusInProgress SessionStatus = "inProgress"
	StatusCompleted  SessionStatus = "completed"
)

// SetState is the lifecycle stage of a single session set.
type SetState string

const (
	SetStatePlanned   SetState = "planned"
	SetStateLogged    SetState = "logged"
	SetStateCompleted SetState = "completed"
)

// WorkoutSession is the loggable instance of one (block, week, day) triple. It owns its exercises and sets but
// only references the block and day templates, which may be deleted while the session lives on.
type WorkoutSession struct {
	ID      uuid.UUID
	BlockID uuid.UUID
	// WeekIndex is 1-based.
	WeekIndex int
	DayID     uuid.UUID
	// DayName is a snapshot of the day's name at creation.
	DayName string
	// Date stays nil until the session is first opened.
	Date      *time.Time
	Status    SessionStatus
	Exercises []SessionExercise
}

// SessionExercise is an exercise within a session.
type SessionExercise struct {
	ID uuid.UUID
	// ExerciseTemplateID is nil once the template has been deleted upstream.
	ExerciseTemplateID *uuid.UUID
	NameSnapshot       string
	NameOverride       *string
	Kind               ExerciseKind
	Sets               []SessionSet
}

// SetValues are the metrics of a set. Nil fields are not applicable to the set, which is different from zero.
type SetValues struct {
	Reps           *int
	Weight         *float64
	TimeSeconds    *int
	DistanceMeters *float64
	Calories       *int
}

// Clone returns a deep copy that shares no pointers with v.
func (v SetValues) Clone() SetValues {
	return SetValues{
		Reps:           ptr.Clone(v.Reps),
		Weight:         ptr.Clone(v.Weight),
		TimeSeconds:    ptr.Clone(v.TimeSeconds),
		DistanceMeters: ptr.Clone(v.DistanceMeters),
		Calories:       ptr.Clone(v.Calories),
	}
}

// Equal compares the values, not the pointers.
func (v SetValues) Equal(o SetValues) bool {
	return ptr.Equal(v.Reps, o.Reps) &&
		ptr.Equal(v.Weight, o.Weight) &&
		ptr.Equal(v.TimeSeconds, o.TimeSeconds) &&
		ptr.Equal(v.DistanceMeters, o.DistanceMeters) &&
		ptr.Equal(v.Calories, o.Calories)
}

// volume returns reps × weight and whether both metrics are present.
func (v SetValues) volume() (float64, bool) {
	if v.Reps == nil || v.Weight == nil {
		return 0, false
	}
	return float64(*v.Reps) * *v.Weight, true
}

// SessionSet holds the immutable plan in Expected and the user's actuals in Logged.
type SessionSet struct {
	ID          uuid.UUID
	Index       int
	Expected    SetValues
	Logged      SetValues
	Completed   bool
	Notes       string
	CompletedAt *time.Time
}

// State reports where the set is in its planned → logged → completed lifecycle.
func (s SessionSet) State() SetState {
	switch {
	case s.Completed:
		return SetStateCompleted
	case !s.Logged.Equal(s.Expected):
		return SetStateLogged
	default:
		return SetStatePlanned
	}
}

// AllSetsCompleted reports whether every set of the session is flagged completed. Sessions without sets are
// never considered completed.
func (s WorkoutSession) AllSetsCompleted() bool {
	total := 0
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			if !set.Completed {
				return false
			}
			total++
		}
	}
	return total > 0
}

// Log replaces the logged values of a set. Expected values are never touched.
func (s *SessionSet) Log(values SetValues) {
	s.Logged = values.Clone()
}

// MarkCompleted flags the set and stamps the time of completion. Reopening clears the stamp.
func (s *SessionSet) MarkCompleted(completed bool, now time.Time) {
	s.Completed = completed
	if completed {
		s.CompletedAt = &now
	} else {
		s.CompletedAt = nil
	}
}
