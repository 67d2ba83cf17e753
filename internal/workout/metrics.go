package workout

// BlockMetrics summarizes planned against completed work across a block's sessions. Percentages are fractions
// between 0 and 1.
type BlockMetrics struct {
	PlannedSets                 int     `json:"planned_sets"`
	CompletedSets               int     `json:"completed_sets"`
	PlannedVolume               float64 `json:"planned_volume"`
	CompletedVolume             float64 `json:"completed_volume"`
	TotalWorkouts               int     `json:"total_workouts"`
	CompletedWorkouts           int     `json:"completed_workouts"`
	CompletionPercentage        float64 `json:"completion_percentage"`
	VolumePercentage            float64 `json:"volume_percentage"`
	WorkoutCompletionPercentage float64 `json:"workout_completion_percentage"`
}

// Calculate aggregates the sessions belonging to block. Sessions of other blocks are ignored.
//
// Volume only counts sets that carry both reps and weight. Completed work is read from the logged values of
// sets flagged completed, using whatever those values are now.
func Calculate(block BlockTemplate, sessions []WorkoutSession) BlockMetrics {
	var m BlockMetrics
	for _, sess := range sessions {
		if sess.BlockID != block.ID {
			continue
		}
		m.TotalWorkouts++
		if sess.Status == StatusCompleted {
			m.CompletedWorkouts++
		}
		for _, ex := range sess.Exercises {
			for _, set := range ex.Sets {
				m.PlannedSets++
				if v, ok := set.Expected.volume(); ok {
					m.PlannedVolume += v
				}
				if !set.Completed {
					continue
				}
				m.CompletedSets++
				if v, ok := set.Logged.volume(); ok {
					m.CompletedVolume += v
				}
			}
		}
	}

	m.CompletionPercentage = ratio(float64(m.CompletedSets), float64(m.PlannedSets))
	m.VolumePercentage = ratio(m.CompletedVolume, m.PlannedVolume)
	m.WorkoutCompletionPercentage = ratio(float64(m.CompletedWorkouts), float64(m.TotalWorkouts))
	return m
}

func ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole
}
