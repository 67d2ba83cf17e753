package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/blockview"
	"github.com/myrjola/blockplan/internal/workout"
)

type command struct {
	args    string
	summary string
	run     func(app *application, ctx context.Context, args []string) error
}

func commandTable() map[string]command {
	return map[string]command{
		"import": {
			args: "<file>", summary: "store a YAML, TOML or JSON block template",
			run: (*application).importBlock,
		},
		"generate-ai": {
			args: "<prompt>", summary: "draft a block with OpenAI and store it",
			run: (*application).generateBlock,
		},
		"list": {args: "", summary: "list stored blocks", run: (*application).listBlocks},
		"show": {
			args: "[-html | -json] <block-id>", summary: "print a block as Markdown, HTML or JSON",
			run: (*application).showBlock,
		},
		"ensure": {
			args: "<block-id>", summary: "create every session of a block that does not exist yet",
			run: (*application).ensureSessions,
		},
		"refresh": {
			args: "<block-id>", summary: "apply block edits to sessions that have not been started",
			run: (*application).refreshSessions,
		},
		"sessions": {args: "<block-id>", summary: "list the sessions of a block", run: (*application).listSessions},
		"open": {
			args: "<block-id> <week> <day>", summary: "open the session of a week and day, creating it if needed",
			run: (*application).openSession,
		},
		"session": {args: "<session-id>", summary: "print a session", run: (*application).showSession},
		"log": {
			args:    "[-reps n] [-weight kg] [-time s] [-distance m] [-calories n] <session-id> <exercise> <set>",
			summary: "record the actual values of a set",
			run:     (*application).logSet,
		},
		"complete": {
			args: "[-undo] <session-id> <exercise> <set>", summary: "flag a set completed or reopen it",
			run: (*application).completeSet,
		},
		"finish": {args: "<session-id>", summary: "mark a session completed", run: (*application).finishSession},
		"metrics": {args: "<block-id>", summary: "print block metrics as JSON", run: (*application).metrics},
		"progress": {args: "", summary: "summarize every block", run: (*application).progress},
		"export": {
			args: "<block-id>", summary: "write a block and its sessions to a standalone SQLite file",
			run: (*application).exportBlock,
		},
		"delete": {
			args: "<block-id>", summary: "delete a block, keeping its sessions", run: (*application).deleteBlock,
		},
		"query": {
			args: "[-json] [-limit n] <sql>", summary: "run a read-only SQL query against the database",
			run: (*application).query,
		},
	}
}

func printUsage(w io.Writer, commands map[string]command) {
	fmt.Fprintln(w, "usage: blockplan <command> [arguments]")
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s %s\t%s\n", name, commands[name].args, commands[name].summary)
	}
	_ = tw.Flush()
}

func (app *application) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(app.stdout)
	return fs
}

// parseArgs parses flags placed anywhere among args and returns the positional arguments. A negative count
// accepts one or more positional arguments.
func parseArgs(fs *flag.FlagSet, args []string, count int) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
	switch {
	case count < 0 && len(positional) == 0:
		return nil, fmt.Errorf("%w: %s expects arguments", errUsage, fs.Name())
	case count >= 0 && len(positional) != count:
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", errUsage, fs.Name(), count, len(positional))
	}
	return positional, nil
}

func parseID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s %q", errUsage, what, s)
	}
	return id, nil
}

func parseIndex(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errUsage, what, s)
	}
	return n, nil
}

// blockArg parses the single block ID argument shared by several commands.
func blockArg(fs *flag.FlagSet, args []string) (uuid.UUID, error) {
	positional, err := parseArgs(fs, args, 1)
	if err != nil {
		return uuid.Nil, err
	}
	return parseID(positional[0], "block id")
}

// setArgs parses the session ID, exercise position and set index arguments.
func setArgs(fs *flag.FlagSet, args []string) (uuid.UUID, int, int, error) {
	positional, err := parseArgs(fs, args, 3) //nolint:mnd // session, exercise and set.
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	id, err := parseID(positional[0], "session id")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	exercise, err := parseIndex(positional[1], "exercise")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	set, err := parseIndex(positional[2], "set")
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	return id, exercise, set, nil
}

func (app *application) importBlock(ctx context.Context, args []string) error {
	positional, err := parseArgs(app.newFlagSet("import"), args, 1)
	if err != nil {
		return err
	}
	block, err := app.workoutService.ImportBlockFile(ctx, positional[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s\t%s\n", block.ID, block.Name)
	return nil
}

func (app *application) generateBlock(ctx context.Context, args []string) error {
	positional, err := parseArgs(app.newFlagSet("generate-ai"), args, -1)
	if err != nil {
		return err
	}
	block, err := app.workoutService.GenerateBlock(ctx, strings.Join(positional, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s\t%s\n", block.ID, block.Name)
	return nil
}

func (app *application) listBlocks(ctx context.Context, args []string) error {
	if _, err := parseArgs(app.newFlagSet("list"), args, 0); err != nil {
		return err
	}
	blocks, err := app.workoutService.ListBlocks(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	fmt.Fprintln(tw, "ID\tNAME\tWEEKS\tDAYS\tPROGRESSION\tCREATED")
	for _, b := range blocks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			b.ID, b.Name, b.NumberOfWeeks, len(b.Days), b.Progression, b.CreatedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}

func (app *application) showBlock(ctx context.Context, args []string) error {
	fs := app.newFlagSet("show")
	asHTML := fs.Bool("html", false, "render HTML")
	asJSON := fs.Bool("json", false, "print the unified block as JSON")
	id, err := blockArg(fs, args)
	if err != nil {
		return err
	}
	unified, err := app.workoutService.Unified(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case *asJSON:
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(unified)
	case *asHTML:
		html, htmlErr := blockview.HTML(unified)
		if htmlErr != nil {
			return htmlErr
		}
		_, err = io.WriteString(app.stdout, html)
		return err
	default:
		_, err = io.WriteString(app.stdout, blockview.Markdown(unified))
		return err
	}
}

func (app *application) ensureSessions(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("ensure"), args)
	if err != nil {
		return err
	}
	created, err := app.workoutService.EnsureSessions(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "created %d sessions\n", created)
	return nil
}

func (app *application) refreshSessions(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("refresh"), args)
	if err != nil {
		return err
	}
	refreshed, err := app.workoutService.RefreshSessions(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "refreshed %d sessions\n", refreshed)
	return nil
}

func (app *application) listSessions(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("sessions"), args)
	if err != nil {
		return err
	}
	sessions, err := app.workoutService.ListSessions(ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	fmt.Fprintln(tw, "ID\tWEEK\tDAY\tSTATUS\tDATE\tSETS")
	for _, sess := range sessions {
		total, completed := 0, 0
		for _, ex := range sess.Exercises {
			for _, set := range ex.Sets {
				total++
				if set.Completed {
					completed++
				}
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d/%d\n",
			sess.ID, sess.WeekIndex, sess.DayName, sess.Status, formatDate(sess.Date), completed, total)
	}
	return tw.Flush()
}

// openSession accepts the day as its ID, short code or name.
func (app *application) openSession(ctx context.Context, args []string) error {
	positional, err := parseArgs(app.newFlagSet("open"), args, 3) //nolint:mnd // block, week and day.
	if err != nil {
		return err
	}
	blockID, err := parseID(positional[0], "block id")
	if err != nil {
		return err
	}
	week, err := parseIndex(positional[1], "week")
	if err != nil {
		return err
	}
	block, err := app.workoutService.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	dayID, ok := findDay(block, positional[2])
	if !ok {
		return fmt.Errorf("day %q: %w", positional[2], workout.ErrNotFound)
	}

	sess, err := app.workoutService.OpenSession(ctx, blockID, week, dayID)
	if err != nil {
		return err
	}
	detail, err := app.workoutService.GetSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	return printSession(app.stdout, detail)
}

func findDay(block workout.BlockTemplate, ref string) (uuid.UUID, bool) {
	for _, day := range block.Days {
		if day.ID.String() == ref || strings.EqualFold(day.ShortCode, ref) || strings.EqualFold(day.Name, ref) {
			return day.ID, true
		}
	}
	return uuid.Nil, false
}

func (app *application) showSession(ctx context.Context, args []string) error {
	positional, err := parseArgs(app.newFlagSet("session"), args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(positional[0], "session id")
	if err != nil {
		return err
	}
	detail, err := app.workoutService.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return printSession(app.stdout, detail)
}

// logSet only replaces the values given as flags. The other logged values are kept.
func (app *application) logSet(ctx context.Context, args []string) error {
	var given workout.SetValues
	fs := app.newFlagSet("log")
	fs.Var(optionalInt{&given.Reps}, "reps", "repetitions done")
	fs.Var(optionalFloat{&given.Weight}, "weight", "weight lifted in kg")
	fs.Var(optionalInt{&given.TimeSeconds}, "time", "time in seconds")
	fs.Var(optionalFloat{&given.DistanceMeters}, "distance", "distance in meters")
	fs.Var(optionalInt{&given.Calories}, "calories", "calories")
	sessionID, exerciseIndex, setIndex, err := setArgs(fs, args)
	if err != nil {
		return err
	}
	if given.Equal(workout.SetValues{}) { //nolint:exhaustruct // the empty value.
		return fmt.Errorf("%w: log needs at least one value flag", errUsage)
	}

	detail, err := app.workoutService.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	current, ok := sessionSet(detail.Session, exerciseIndex, setIndex)
	if !ok {
		return fmt.Errorf("exercise %d set %d: %w", exerciseIndex, setIndex, workout.ErrNotFound)
	}
	values := current.Logged.Clone()
	if given.Reps != nil {
		values.Reps = given.Reps
	}
	if given.Weight != nil {
		values.Weight = given.Weight
	}
	if given.TimeSeconds != nil {
		values.TimeSeconds = given.TimeSeconds
	}
	if given.DistanceMeters != nil {
		values.DistanceMeters = given.DistanceMeters
	}
	if given.Calories != nil {
		values.Calories = given.Calories
	}
	if err = app.workoutService.LogSet(ctx, sessionID, exerciseIndex, setIndex, values); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "logged %s\n", formatValues(values))
	return nil
}

func sessionSet(sess workout.WorkoutSession, exerciseIndex, setIndex int) (workout.SessionSet, bool) {
	if exerciseIndex < 0 || exerciseIndex >= len(sess.Exercises) {
		return workout.SessionSet{}, false
	}
	for _, set := range sess.Exercises[exerciseIndex].Sets {
		if set.Index == setIndex {
			return set, true
		}
	}
	return workout.SessionSet{}, false
}

func (app *application) completeSet(ctx context.Context, args []string) error {
	fs := app.newFlagSet("complete")
	undo := fs.Bool("undo", false, "reopen the set")
	sessionID, exerciseIndex, setIndex, err := setArgs(fs, args)
	if err != nil {
		return err
	}
	return app.workoutService.SetCompleted(ctx, sessionID, exerciseIndex, setIndex, !*undo)
}

func (app *application) finishSession(ctx context.Context, args []string) error {
	positional, err := parseArgs(app.newFlagSet("finish"), args, 1)
	if err != nil {
		return err
	}
	id, err := parseID(positional[0], "session id")
	if err != nil {
		return err
	}
	detail, err := app.workoutService.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err = app.workoutService.SetSessionStatus(ctx, id, workout.StatusCompleted); err != nil {
		return err
	}
	if detail.Session.AllSetsCompleted() {
		fmt.Fprintln(app.stdout, "session completed")
	} else {
		fmt.Fprintln(app.stdout, "session completed with sets left open")
	}
	return nil
}

func (app *application) metrics(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("metrics"), args)
	if err != nil {
		return err
	}
	m, err := app.workoutService.Metrics(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func (app *application) progress(ctx context.Context, args []string) error {
	if _, err := parseArgs(app.newFlagSet("progress"), args, 0); err != nil {
		return err
	}
	progress, err := app.workoutService.Progress(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	fmt.Fprintln(tw, "ID\tNAME\tWORKOUTS\tSETS\tVOLUME")
	for _, p := range progress {
		m := p.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			p.Block.ID, p.Block.Name, m.CompletedWorkouts, m.TotalWorkouts,
			percent(m.CompletionPercentage), percent(m.VolumePercentage))
	}
	return tw.Flush()
}

func (app *application) exportBlock(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("export"), args)
	if err != nil {
		return err
	}
	path, err := app.workoutService.ExportBlock(ctx, id, app.cfg.ExportDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, path)
	return nil
}

func (app *application) deleteBlock(ctx context.Context, args []string) error {
	id, err := blockArg(app.newFlagSet("delete"), args)
	if err != nil {
		return err
	}
	if err = app.workoutService.DeleteBlock(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "deleted block %s\n", id)
	return nil
}

// query joins its arguments so that the statement does not have to be quoted as a whole.
func (app *application) query(ctx context.Context, args []string) error {
	fs := app.newFlagSet("query")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	limit := fs.Int("limit", 100, "maximum number of rows") //nolint:mnd // fits a terminal.
	positional, err := parseArgs(fs, args, -1)
	if err != nil {
		return err
	}
	result, err := app.db.Query(ctx, strings.Join(positional, " "), *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	tw := tabwriter.NewWriter(app.stdout, 0, 0, 2, ' ', 0) //nolint:mnd // column padding.
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(result.Columns, "\t")))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err = tw.Flush(); err != nil {
		return err
	}
	if result.Truncated {
		fmt.Fprintf(app.stdout, "(showing the first %d rows)\n", len(result.Rows))
	}
	return nil
}
