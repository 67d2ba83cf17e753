package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/myrjola/blockplan/internal/sqlite"
	"github.com/myrjola/blockplan/internal/testhelpers"
	"github.com/myrjola/blockplan/internal/workout"
)

// cli runs commands against one database file shared by all calls.
type cli struct {
	t   *testing.T
	env map[string]string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{
		t: t,
		env: map[string]string{
			"BLOCKPLAN_SQLITE_URL": filepath.Join(dir, "blockplan.sqlite3"),
			"BLOCKPLAN_EXPORT_DIR": dir,
		},
	}
}

func (c *cli) lookupEnv(key string) (string, bool) {
	v, ok := c.env[key]
	return v, ok
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var stdout bytes.Buffer
	logger := testhelpers.NewLogger(testhelpers.NewWriter(c.t))
	err := run(c.t.Context(), logger, args, c.lookupEnv, &stdout)
	return stdout.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("blockplan %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// firstField returns the first whitespace separated field of the line starting with prefix.
func firstField(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			return strings.Fields(rest)[0]
		}
	}
	t.Fatalf("no line starting with %q in:\n%s", prefix, out)
	return ""
}

func Test_run_Workflow(t *testing.T) {
	c := newCLI(t)

	blockID := strings.Fields(c.mustRun("import", "../../internal/workout/testdata/strength.yaml"))[0]

	if out := c.mustRun("list"); !strings.Contains(out, blockID) || !strings.Contains(out, "Five by five") {
		t.Errorf("list does not show the imported block:\n%s", out)
	}
	if out := c.mustRun("show", blockID); !strings.Contains(out, "| Back squat (squat) |") {
		t.Errorf("show did not render markdown:\n%s", out)
	}
	if out := c.mustRun("show", "-html", blockID); !strings.Contains(out, "<table>") {
		t.Errorf("show -html did not render a table:\n%s", out)
	}

	out := c.mustRun("open", blockID, "1", "l")
	sessionID := firstField(t, out, "session ")
	if !strings.Contains(out, "week 1, Lower, notStarted") {
		t.Errorf("open printed an unexpected header:\n%s", out)
	}

	if out = c.mustRun("ensure", blockID); out != "created 7 sessions\n" {
		t.Errorf("ensure printed %q", out)
	}
	if out = c.mustRun("ensure", blockID); out != "created 0 sessions\n" {
		t.Errorf("second ensure printed %q", out)
	}

	c.mustRun("log", sessionID, "0", "0", "-reps", "4")
	c.mustRun("complete", sessionID, "0", "0")
	c.mustRun("complete", "-undo", sessionID, "0", "1")
	out = c.mustRun("session", sessionID)
	if !strings.Contains(out, "4 reps 100 kg") || !strings.Contains(out, "completed") {
		t.Errorf("session does not show the logged set:\n%s", out)
	}
	if out = c.mustRun("finish", sessionID); out != "session completed with sets left open\n" {
		t.Errorf("finish printed %q", out)
	}

	var metrics workout.BlockMetrics
	if err := json.Unmarshal([]byte(c.mustRun("metrics", blockID)), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.TotalWorkouts != 8 || metrics.CompletedWorkouts != 1 || metrics.CompletedSets != 1 {
		t.Errorf("unexpected metrics %+v", metrics)
	}
	if out = c.mustRun("progress"); !strings.Contains(out, "1/8") {
		t.Errorf("progress does not count the finished workout:\n%s", out)
	}

	out = c.mustRun("query", "SELECT count(*) AS sessions FROM workout_sessions WHERE status =", "'completed'")
	if out != "SESSIONS\n1\n" {
		t.Errorf("query printed %q", out)
	}

	path := strings.TrimSpace(c.mustRun("export", blockID))
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file: %v", err)
	}

	c.mustRun("delete", blockID)
	out = c.mustRun("session", sessionID)
	if !strings.Contains(out, "block deleted") || !strings.Contains(out, "Back squat") {
		t.Errorf("session of deleted block:\n%s", out)
	}
}

func Test_run_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "no command", args: nil, wantErr: errUsage},
		{name: "unknown command", args: []string{"dance"}, wantErr: errUsage},
		{name: "missing argument", args: []string{"metrics"}, wantErr: errUsage},
		{name: "invalid block id", args: []string{"metrics", "not-a-uuid"}, wantErr: errUsage},
		{name: "unknown flag", args: []string{"show", "-pdf", "00000000-0000-0000-0000-000000000001"}, wantErr: errUsage},
		{name: "log without values", args: []string{"log", "00000000-0000-0000-0000-000000000001", "0", "0"}, wantErr: errUsage},
		{name: "unknown block", args: []string{"metrics", "00000000-0000-0000-0000-000000000001"}, wantErr: workout.ErrNotFound},
		{name: "restricted query", args: []string{"query", "PRAGMA", "query_only"}, wantErr: sqlite.ErrRestrictedQuery},
		{name: "ai not configured", args: []string{"generate-ai", "four", "weeks"}, wantErr: workout.ErrAuthoringDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCLI(t).run(tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("run() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func Test_run_Help(t *testing.T) {
	out, err := newCLI(t).run("help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for name := range commandTable() {
		if !strings.Contains(out, "  "+name+" ") {
			t.Errorf("usage does not list %s:\n%s", name, out)
		}
	}
}

func Test_run_SlowCommandTrace(t *testing.T) {
	c := newCLI(t)
	traceDir := filepath.Join(t.TempDir(), "traces")
	c.env["BLOCKPLAN_TRACE_DIR"] = traceDir
	c.env["BLOCKPLAN_SLOW_COMMAND"] = "0s"

	c.mustRun("list")

	entries, err := os.ReadDir(traceDir)
	if err != nil {
		t.Fatalf("read trace directory: %v", err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "slow-list-") {
		t.Errorf("expected one trace of the list command, got %v", entries)
	}
}
