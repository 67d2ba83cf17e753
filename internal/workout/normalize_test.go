package workout_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/blockplan/internal/ptr"
	"github.com/myrjola/blockplan/internal/workout"
)

const authoredHypertrophy = `{
  "Title": "Hypertrophy",
  "Goal": "size",
  "NumberOfWeeks": 4,
  "Progression": "weight",
  "Source": "ignored",
  "Days": [
    {
      "name": "Push",
      "shortCode": "P",
      "exercises": [
        {
          "name": "Bench press",
          "type": "strength",
          "category": "press",
          "sets": [
            {"index": 1, "reps": 8, "weight": 80},
            {"index": 0, "reps": 10, "weight": 70, "restSeconds": 120}
          ]
        },
        {
          "name": "Assault bike",
          "type": "conditioning",
          "conditioningType": "intervals",
          "progression": "custom",
          "sets": [{"durationSeconds": 30, "rounds": 8, "effortDescriptor": "hard"}]
        }
      ]
    }
  ]
}`

func TestNormalize_Authored(t *testing.T) {
	got, err := workout.Normalize(workout.AuthoredSource{JSON: []byte(authoredHypertrophy)})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	want := workout.UnifiedBlock{
		Title:         "Hypertrophy",
		Goal:          ptr.Ref("size"),
		NumberOfWeeks: 4,
		Progression:   workout.ProgressionWeight,
		Days: []workout.UnifiedDay{
			{
				Name:      "Push",
				ShortCode: "P",
				Goal:      nil,
				Exercises: []workout.UnifiedExercise{
					{
						Name:             "Bench press",
						Kind:             workout.KindStrength,
						Category:         ptr.Ref(workout.CategoryPress),
						ConditioningType: nil,
						Notes:            "",
						Progression: workout.ProgressionRule{
							Type:        workout.ProgressionWeight,
							DeltaWeight: ptr.Ref(workout.DefaultDeltaWeight),
						},
						Sets: []workout.UnifiedSet{
							{ //nolint:exhaustruct // strength set.
								Index: 0, Reps: ptr.Ref(10), Weight: ptr.Ref(70.0), RestSeconds: ptr.Ref(120),
							},
							{ //nolint:exhaustruct // strength set.
								Index: 1, Reps: ptr.Ref(8), Weight: ptr.Ref(80.0),
							},
						},
					},
					{
						Name:             "Assault bike",
						Kind:             workout.KindConditioning,
						Category:         nil,
						ConditioningType: ptr.Ref("intervals"),
						Notes:            "",
						Progression:      workout.ProgressionRule{Type: workout.ProgressionCustom, DeltaWeight: nil},
						Sets: []workout.UnifiedSet{
							{ //nolint:exhaustruct // conditioning set.
								Index: 0, DurationSeconds: ptr.Ref(30), Rounds: ptr.Ref(8), Effort: ptr.Ref("hard"),
							},
						},
					},
				},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unified block mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	src := workout.AuthoredSource{JSON: []byte(authoredHypertrophy)}
	first, err := workout.Normalize(src)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	second, err := workout.Normalize(src)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("normalization is not deterministic (-first +second):\n%s", diff)
	}
}

func TestNormalize_NativeMatchesAuthored(t *testing.T) {
	authored, err := workout.Normalize(workout.AuthoredSource{JSON: []byte(authoredHypertrophy)})
	if err != nil {
		t.Fatalf("Normalize authored: %v", err)
	}
	tmpl, err := workout.TemplateFromAuthored([]byte(authoredHypertrophy))
	if err != nil {
		t.Fatalf("TemplateFromAuthored: %v", err)
	}
	native, err := workout.Normalize(workout.NativeSource{Block: tmpl})
	if err != nil {
		t.Fatalf("Normalize native: %v", err)
	}
	if diff := cmp.Diff(authored, native); diff != "" {
		t.Errorf("native and authored forms differ (-authored +native):\n%s", diff)
	}
}

func TestNormalize_Native(t *testing.T) {
	second := day(2, "Second", strengthExercise("Row", nil, strengthSet(0, 8, 60)))
	first := day(1, "First",
		strengthExercise("Squat", nil, strengthSet(2, 3, 120), strengthSet(0, 5, 100), strengthSet(2, 1, 130)),
		strengthExercise("Deadlift", &workout.ProgressionRule{Type: workout.ProgressionVolume, DeltaWeight: nil},
			strengthSet(0, 5, 140)),
	)
	b := block(3, "", second, first)

	got, err := workout.Normalize(workout.NativeSource{Block: b})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if got.Progression != workout.ProgressionCustom {
		t.Errorf("empty block progression normalized to %q, want custom", got.Progression)
	}
	if got.Days[0].Name != "First" || got.Days[1].Name != "Second" {
		t.Errorf("days not ordered by Order: %q, %q", got.Days[0].Name, got.Days[1].Name)
	}
	if got.Days[0].Exercises[0].Name != "Squat" || got.Days[0].Exercises[1].Name != "Deadlift" {
		t.Error("exercises lost their declared order")
	}

	// Ties on index keep declaration order.
	var reps []int
	for _, s := range got.Days[0].Exercises[0].Sets {
		reps = append(reps, *s.Reps)
	}
	if diff := cmp.Diff([]int{5, 3, 1}, reps); diff != "" {
		t.Errorf("set order mismatch (-want +got):\n%s", diff)
	}

	wantRule := workout.ProgressionRule{Type: workout.ProgressionVolume, DeltaWeight: nil}
	if diff := cmp.Diff(wantRule, got.Days[0].Exercises[1].Progression); diff != "" {
		t.Errorf("exercise rule mismatch (-want +got):\n%s", diff)
	}

	// The template must not alias the unified output.
	*got.Days[0].Exercises[0].Sets[0].Weight = 0
	if *first.Exercises[0].StrengthSets[1].Weight != 100 {
		t.Error("unified set shares its weight with the template")
	}
}

func TestNormalize_AuthoredDefaults(t *testing.T) {
	got, err := workout.Normalize(workout.AuthoredSource{JSON: []byte(`{
		"Title": "Minimal",
		"NumberOfWeeks": 1,
		"Days": [{"name": "Only", "exercises": [{"name": "Squat", "type": "strength", "sets": [{"reps": 5}]}]}]
	}`)})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Goal != nil {
		t.Errorf("missing goal normalized to %q, want absent", *got.Goal)
	}
	if got.Progression != workout.ProgressionCustom {
		t.Errorf("missing progression normalized to %q, want custom", got.Progression)
	}
	set := got.Days[0].Exercises[0].Sets[0]
	if set.Weight != nil {
		t.Errorf("missing weight normalized to %v, want absent", *set.Weight)
	}
	if set.Index != 0 {
		t.Errorf("set without index got index %d, want array position 0", set.Index)
	}
}

func TestNormalize_AuthoredExerciseLevelSet(t *testing.T) {
	got, err := workout.Normalize(workout.AuthoredSource{JSON: []byte(`{
		"Title": "Single sets",
		"NumberOfWeeks": 2,
		"Days": [{"name": "Only", "exercises": [
			{"name": "Squat", "type": "strength", "reps": 5, "weight": 225, "restSeconds": 90},
			{"name": "Row", "type": "conditioning", "index": 3, "distanceMeters": 2000, "effortDescriptor": "steady"},
			{"name": "Bench", "type": "strength", "reps": 1, "sets": [{"reps": 8}, {"reps": 6}]}
		]}]
	}`)})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	exercises := got.Days[0].Exercises
	want := []workout.UnifiedSet{
		{ //nolint:exhaustruct // strength metrics only.
			Index: 0, Reps: ptr.Ref(5), Weight: ptr.Ref(225.0), RestSeconds: ptr.Ref(90),
		},
		{ //nolint:exhaustruct // conditioning metrics only.
			Index: 0, DistanceMeters: ptr.Ref(2000.0), Effort: ptr.Ref("steady"),
		},
	}
	for i, w := range want {
		if diff := cmp.Diff([]workout.UnifiedSet{w}, exercises[i].Sets); diff != "" {
			t.Errorf("exercise %d sets mismatch (-want +got):\n%s", i, diff)
		}
	}
	if n := len(exercises[2].Sets); n != 2 {
		t.Errorf("set list with exercise-level reps normalized to %d sets, want the 2 listed", n)
	}
}

func TestNormalize_FormatError(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantPath string
	}{
		{
			name:     "not json",
			json:     `{"Title": `,
			wantPath: "",
		},
		{
			name:     "missing title",
			json:     `{"NumberOfWeeks": 2, "Days": []}`,
			wantPath: "Title",
		},
		{
			name:     "weeks of wrong type",
			json:     `{"Title": "X", "NumberOfWeeks": "four", "Days": []}`,
			wantPath: "NumberOfWeeks",
		},
		{
			name:     "zero weeks",
			json:     `{"Title": "X", "NumberOfWeeks": 0, "Days": []}`,
			wantPath: "NumberOfWeeks",
		},
		{
			name:     "more weeks than a year",
			json:     `{"Title": "X", "NumberOfWeeks": 53, "Days": []}`,
			wantPath: "NumberOfWeeks",
		},
		{
			name:     "unknown block progression",
			json:     `{"Title": "X", "NumberOfWeeks": 1, "Progression": "linear", "Days": []}`,
			wantPath: "Progression",
		},
		{
			name:     "missing days",
			json:     `{"Title": "X", "NumberOfWeeks": 1}`,
			wantPath: "Days",
		},
		{
			name:     "missing day name",
			json:     `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"exercises": []}]}`,
			wantPath: "Days[0].name",
		},
		{
			name: "unknown exercise type",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "sets": []},
				{"name": "Yoga", "type": "mobility", "sets": []}]}]}`,
			wantPath: "Days[0].exercises[1].type",
		},
		{
			name: "strength set without reps",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "sets": [{"reps": 5}, {"weight": 100}]}]}]}`,
			wantPath: "Days[0].exercises[0].sets[1].reps",
		},
		{
			name: "exercise without sets or set fields",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "notes": "heavy"}]}]}`,
			wantPath: "Days[0].exercises[0].sets",
		},
		{
			name: "exercise-level strength set without reps",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "weight": 225, "restSeconds": 90}]}]}`,
			wantPath: "Days[0].exercises[0].reps",
		},
		{
			name: "conditioning set without metrics",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Row", "type": "conditioning", "sets": [{"restSeconds": 60}]}]}]}`,
			wantPath: "Days[0].exercises[0].sets[0]",
		},
		{
			name: "duplicate set index",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "sets": [{"index": 0, "reps": 5}, {"index": 0, "reps": 3}]}]}]}`,
			wantPath: "Days[0].exercises[0].sets[1].index",
		},
		{
			name: "unknown category",
			json: `{"Title": "X", "NumberOfWeeks": 1, "Days": [{"name": "A", "exercises": [
				{"name": "Squat", "type": "strength", "category": "legs", "sets": []}]}]}`,
			wantPath: "Days[0].exercises[0].category",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workout.Normalize(workout.AuthoredSource{JSON: []byte(tt.json)})
			var formatErr *workout.FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected *FormatError, got %v", err)
			}
			if formatErr.Path != tt.wantPath {
				t.Errorf("path = %q, want %q (%v)", formatErr.Path, tt.wantPath, err)
			}
			if diff := cmp.Diff(workout.UnifiedBlock{}, got); diff != "" { //nolint:exhaustruct // zero value.
				t.Errorf("expected no partial result (-want +got):\n%s", diff)
			}
		})
	}
}
