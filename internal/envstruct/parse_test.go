package envstruct_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/blockplan/internal/envstruct"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

type plannerConfig struct {
	SqliteURL   string        `env:"SQLITE_URL" envDefault:":memory:"`
	Weeks       int           `env:"WEEKS" envDefault:"4"`
	DeltaWeight float64       `env:"DELTA_WEIGHT" envDefault:"5"`
	Verbose     bool          `env:"VERBOSE" envDefault:"false"`
	SlowCommand time.Duration `env:"SLOW_COMMAND" envDefault:"2s"`
	Untagged    string
}

func TestPopulate(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		env     map[string]string
		want    any
		wantErr error
	}{
		{
			name:    "nil",
			v:       nil,
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name:    "not pointer",
			v:       plannerConfig{}, //nolint:exhaustruct // populated later
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name: "defaults",
			v:    &plannerConfig{}, //nolint:exhaustruct // populated later
			env:  nil,
			want: &plannerConfig{
				SqliteURL: ":memory:", Weeks: 4, DeltaWeight: 5, Verbose: false, SlowCommand: 2 * time.Second,
				Untagged: "",
			},
		},
		{
			name: "environment overrides defaults",
			v:    &plannerConfig{}, //nolint:exhaustruct // populated later
			env: map[string]string{
				"SQLITE_URL":   "./blocks.sqlite3",
				"WEEKS":        "6",
				"DELTA_WEIGHT": "2.5",
				"VERBOSE":      "true",
				"SLOW_COMMAND": "150ms",
			},
			want: &plannerConfig{
				SqliteURL: "./blocks.sqlite3", Weeks: 6, DeltaWeight: 2.5, Verbose: true,
				SlowCommand: 150 * time.Millisecond, Untagged: "",
			},
		},
		{
			name: "missing without default",
			v: &struct { //nolint:exhaustruct // populated later
				APIKey string `env:"API_KEY"`
			}{},
			wantErr: envstruct.ErrEnvNotSet,
		},
		{
			name:    "malformed int",
			v:       &plannerConfig{}, //nolint:exhaustruct // populated later
			env:     map[string]string{"WEEKS": "four"},
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name:    "malformed duration",
			v:       &plannerConfig{}, //nolint:exhaustruct // populated later
			env:     map[string]string{"SLOW_COMMAND": "2"},
			wantErr: envstruct.ErrInvalidValue,
		},
		{
			name: "unsupported kind",
			v: &struct { //nolint:exhaustruct // populated later
				Days []string `env:"DAYS" envDefault:"mon"`
			}{},
			wantErr: envstruct.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := envstruct.Populate(tt.v, env(tt.env))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Populate() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Populate() unexpected error = %v", err)
			}
			if diff := cmp.Diff(tt.want, tt.v); diff != "" {
				t.Errorf("Populate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
