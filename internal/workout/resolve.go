package workout

// ResolvedExercise is a session exercise ready for display.
type ResolvedExercise struct {
	Name string
	// Orphaned is set when the exercise template no longer exists. Such exercises are display-only and their
	// progression can no longer be recomputed.
	Orphaned bool
	Exercise SessionExercise
}

// ResolveExercise picks the display name of ex: the override, then the live template name, then the snapshot
// taken when the session was created. A nil block is treated as deleted.
func ResolveExercise(block *BlockTemplate, ex SessionExercise) ResolvedExercise {
	var tmpl *ExerciseTemplate
	if block != nil && ex.ExerciseTemplateID != nil {
		tmpl, _ = block.Exercise(*ex.ExerciseTemplateID)
	}

	resolved := ResolvedExercise{Name: ex.NameSnapshot, Orphaned: tmpl == nil, Exercise: ex}
	switch {
	case ex.NameOverride != nil && *ex.NameOverride != "":
		resolved.Name = *ex.NameOverride
	case tmpl != nil:
		resolved.Name = tmpl.Name
	}
	return resolved
}

// ResolveSession resolves every exercise of sess against block, which may be nil.
func ResolveSession(block *BlockTemplate, sess WorkoutSession) []ResolvedExercise {
	resolved := make([]ResolvedExercise, len(sess.Exercises))
	for i, ex := range sess.Exercises {
		resolved[i] = ResolveExercise(block, ex)
	}
	return resolved
}

// RefreshExpected recomputes the expected sets of a session that has not been started yet, picking up edits made
// to the block after the session was generated. Logged values are reset to the new expected values.
//
// Started sessions are returned unchanged, as are orphaned exercises. Identity, date and status are kept.
func RefreshExpected(block BlockTemplate, sess WorkoutSession) WorkoutSession {
	if sess.Status != StatusNotStarted || sess.BlockID != block.ID {
		return sess
	}
	refreshed := sess
	refreshed.Exercises = make([]SessionExercise, len(sess.Exercises))
	for i, ex := range sess.Exercises {
		refreshed.Exercises[i] = ex
		if ex.ExerciseTemplateID == nil {
			continue
		}
		tmpl, ok := block.Exercise(*ex.ExerciseTemplateID)
		if !ok {
			continue
		}
		fresh := makeSessionExercise(*tmpl, block.Progression, sess.WeekIndex)
		fresh.ID = ex.ID
		fresh.NameOverride = ex.NameOverride
		refreshed.Exercises[i] = fresh
	}
	return refreshed
}
