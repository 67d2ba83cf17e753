// Package blockview renders unified blocks as Markdown and HTML.
package blockview

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/myrjola/blockplan/internal/workout"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in names and notes is escaped because WithUnsafe is not set.
//
//nolint:gochecknoglobals // goldmark instances are safe for concurrent use.
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Markdown renders the block with one section and one exercise table per day.
func Markdown(b workout.UnifiedBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", b.Title)
	if b.Goal != nil {
		fmt.Fprintf(&sb, "Goal: %s\n\n", *b.Goal)
	}
	fmt.Fprintf(&sb, "%s, %s progression.\n", plural(b.NumberOfWeeks, "week"), b.Progression)

	for _, day := range b.Days {
		sb.WriteString("\n## ")
		sb.WriteString(day.Name)
		if day.ShortCode != "" {
			fmt.Fprintf(&sb, " (%s)", day.ShortCode)
		}
		sb.WriteString("\n\n")
		if day.Goal != nil {
			fmt.Fprintf(&sb, "_%s_\n\n", *day.Goal)
		}
		if len(day.Exercises) == 0 {
			sb.WriteString("Rest day.\n")
			continue
		}
		sb.WriteString("| Exercise | Sets | Progression | Notes |\n")
		sb.WriteString("| --- | --- | --- | --- |\n")
		for _, ex := range day.Exercises {
			sets := make([]string, len(ex.Sets))
			for i, s := range ex.Sets {
				sets[i] = formatSet(ex.Kind, s)
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
				cell(exerciseLabel(ex)), cell(strings.Join(sets, "; ")), cell(formatRule(ex.Progression)),
				cell(ex.Notes))
		}
	}
	return sb.String()
}

// HTML renders the Markdown of the block to an HTML fragment.
func HTML(b workout.UnifiedBlock) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(Markdown(b)), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

func exerciseLabel(ex workout.UnifiedExercise) string {
	switch {
	case ex.Category != nil:
		return fmt.Sprintf("%s (%s)", ex.Name, *ex.Category)
	case ex.ConditioningType != nil:
		return fmt.Sprintf("%s (%s)", ex.Name, *ex.ConditioningType)
	default:
		return ex.Name
	}
}

func formatSet(kind workout.ExerciseKind, s workout.UnifiedSet) string {
	var parts []string
	if kind == workout.KindStrength {
		reps := 0
		if s.Reps != nil {
			reps = *s.Reps
		}
		if s.Weight != nil {
			parts = append(parts, fmt.Sprintf("%d × %s kg", reps, number(*s.Weight)))
		} else {
			parts = append(parts, plural(reps, "rep"))
		}
		if s.RPE != nil {
			parts = append(parts, "RPE "+number(*s.RPE))
		}
	} else {
		if s.DurationSeconds != nil {
			parts = append(parts, formatDuration(*s.DurationSeconds))
		}
		if s.DistanceMeters != nil {
			parts = append(parts, number(*s.DistanceMeters)+" m")
		}
		if s.Calories != nil {
			parts = append(parts, strconv.Itoa(*s.Calories)+" cal")
		}
		if s.Rounds != nil {
			parts = append(parts, plural(*s.Rounds, "round"))
		}
		if s.Effort != nil {
			parts = append(parts, *s.Effort)
		}
	}
	if s.RestSeconds != nil {
		parts = append(parts, "rest "+formatDuration(*s.RestSeconds))
	}
	return strings.Join(parts, ", ")
}

func formatRule(r workout.ProgressionRule) string {
	if r.Type == workout.ProgressionWeight {
		return fmt.Sprintf("weight +%s kg/week", number(r.Delta()))
	}
	return string(r.Type)
}

func formatDuration(seconds int) string {
	if seconds >= 60 && seconds%60 == 0 { //nolint:mnd // seconds per minute.
		return fmt.Sprintf("%d min", seconds/60) //nolint:mnd // seconds per minute.
	}
	return fmt.Sprintf("%d s", seconds)
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// cell escapes table separators and line breaks.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
