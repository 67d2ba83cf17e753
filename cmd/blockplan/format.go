package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/myrjola/blockplan/internal/workout"
)

// optionalInt is a flag that stays nil unless given.
type optionalInt struct{ p **int }

func (o optionalInt) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return strconv.Itoa(**o.p)
}

func (o optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("parse integer: %w", err)
	}
	*o.p = &v
	return nil
}

// optionalFloat is a flag that stays nil unless given.
type optionalFloat struct{ p **float64 }

func (o optionalFloat) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return strconv.FormatFloat(**o.p, 'f', -1, 64)
}

func (o optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number: %w", err)
	}
	*o.p = &v
	return nil
}

func printSession(w io.Writer, detail workout.SessionDetail) error {
	sess := detail.Session
	fmt.Fprintf(w, "session %s\n", sess.ID)
	fmt.Fprintf(w, "week %d, %s, %s, %s\n", sess.WeekIndex, sess.DayName, sess.Status, formatDate(sess.Date))
	if detail.BlockDeleted {
		fmt.Fprintln(w, "block deleted, showing names from when the session was created")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	fmt.Fprintln(tw, "EX\tEXERCISE\tSET\tEXPECTED\tLOGGED\tSTATE")
	for i, ex := range detail.Exercises {
		for _, set := range ex.Exercise.Sets {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
				i, ex.Name, set.Index, formatValues(set.Expected), formatValues(set.Logged), set.State())
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return nil
}

func formatValues(v workout.SetValues) string {
	var parts []string
	if v.Reps != nil {
		parts = append(parts, strconv.Itoa(*v.Reps)+" reps")
	}
	if v.Weight != nil {
		parts = append(parts, strconv.FormatFloat(*v.Weight, 'f', -1, 64)+" kg")
	}
	if v.TimeSeconds != nil {
		parts = append(parts, strconv.Itoa(*v.TimeSeconds)+" s")
	}
	if v.DistanceMeters != nil {
		parts = append(parts, strconv.FormatFloat(*v.DistanceMeters, 'f', -1, 64)+" m")
	}
	if v.Calories != nil {
		parts = append(parts, strconv.Itoa(*v.Calories)+" cal")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateOnly)
}

func percent(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', 0, 64) + "%" //nolint:mnd // percent.
}
