package blockview_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/blockplan/internal/blockview"
	"github.com/myrjola/blockplan/internal/ptr"
	"github.com/myrjola/blockplan/internal/workout"
)

func testBlock() workout.UnifiedBlock {
	return workout.UnifiedBlock{
		Title:         "Five by five",
		Goal:          ptr.Ref("strength"),
		NumberOfWeeks: 4,
		Progression:   workout.ProgressionWeight,
		Days: []workout.UnifiedDay{
			{
				Name:      "Lower",
				ShortCode: "L",
				Goal:      nil,
				Exercises: []workout.UnifiedExercise{
					{
						Name:             "Back squat",
						Kind:             workout.KindStrength,
						Category:         ptr.Ref(workout.CategorySquat),
						ConditioningType: nil,
						Notes:            "Belt | on <script>",
						Progression: workout.ProgressionRule{
							Type: workout.ProgressionWeight, DeltaWeight: ptr.Ref(2.5),
						},
						Sets: []workout.UnifiedSet{
							{ //nolint:exhaustruct // strength metrics only.
								Index: 0, Reps: ptr.Ref(5), Weight: ptr.Ref(100.0), RestSeconds: ptr.Ref(180),
							},
							{ //nolint:exhaustruct // strength metrics only.
								Index: 1, Reps: ptr.Ref(10), RPE: ptr.Ref(7.5),
							},
						},
					},
				},
			},
			{
				Name:      "Engine",
				ShortCode: "",
				Goal:      ptr.Ref("aerobic"),
				Exercises: []workout.UnifiedExercise{
					{
						Name:             "Rower",
						Kind:             workout.KindConditioning,
						Category:         nil,
						ConditioningType: ptr.Ref("steady state"),
						Notes:            "",
						Progression:      workout.ProgressionRule{Type: workout.ProgressionCustom, DeltaWeight: nil},
						Sets: []workout.UnifiedSet{
							{ //nolint:exhaustruct // conditioning metrics only.
								Index: 0, DurationSeconds: ptr.Ref(600), DistanceMeters: ptr.Ref(2000.0),
								Effort: ptr.Ref("easy"),
							},
							{ //nolint:exhaustruct // conditioning metrics only.
								Index: 1, DurationSeconds: ptr.Ref(45), Rounds: ptr.Ref(1), Calories: ptr.Ref(15),
							},
						},
					},
				},
			},
			{Name: "Rest", ShortCode: "R", Goal: nil, Exercises: nil},
		},
	}
}

func TestMarkdown(t *testing.T) {
	want := `# Five by five

Goal: strength

4 weeks, weight progression.

## Lower (L)

| Exercise | Sets | Progression | Notes |
| --- | --- | --- | --- |
| Back squat (squat) | 5 × 100 kg, rest 3 min; 10 reps, RPE 7.5 | weight +2.5 kg/week | Belt \| on <script> |

## Engine

_aerobic_

| Exercise | Sets | Progression | Notes |
| --- | --- | --- | --- |
| Rower (steady state) | 10 min, 2000 m, easy; 45 s, 15 cal, 1 round | custom |  |

## Rest (R)

Rest day.
`
	if diff := cmp.Diff(want, blockview.Markdown(testBlock())); diff != "" {
		t.Errorf("markdown mismatch (-want +got):\n%s", diff)
	}
}

func TestHTML(t *testing.T) {
	got, err := blockview.HTML(testBlock())
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	for _, want := range []string{
		"<h1>Five by five</h1>",
		"<h2>Lower (L)</h2>",
		"<table>",
		"<td>Back squat (squat)</td>",
		"<em>aerobic</em>",
		"Belt | on",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("HTML does not contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML from notes was rendered:\n%s", got)
	}
}
