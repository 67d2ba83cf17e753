package workout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/ptr"
	"gopkg.in/yaml.v3"
)

// TemplateFormat is the encoding of a block template file.
type TemplateFormat string

const (
	FormatYAML TemplateFormat = "yaml"
	FormatTOML TemplateFormat = "toml"
	FormatJSON TemplateFormat = "json"
)

// FormatFromPath picks the template format from the file extension.
func FormatFromPath(path string) (TemplateFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported template file extension %q", filepath.Ext(path))
	}
}

// templateFile is the hand-written template format. The same shape is read from YAML, TOML and JSON.
type templateFile struct {
	Name        string    `json:"name"                  toml:"name"                  yaml:"name"`
	Goal        string    `json:"goal,omitempty"        toml:"goal,omitempty"        yaml:"goal,omitempty"`
	Weeks       int       `json:"weeks"                 toml:"weeks"                 yaml:"weeks"`
	Progression string    `json:"progression,omitempty" toml:"progression,omitempty" yaml:"progression,omitempty"`
	Days        []dayFile `json:"days"                  toml:"days"                  yaml:"days"`
}

type dayFile struct {
	Name      string         `json:"name"                 toml:"name"                 yaml:"name"`
	ShortCode string         `json:"short_code,omitempty" toml:"short_code,omitempty" yaml:"short_code,omitempty"`
	Goal      string         `json:"goal,omitempty"       toml:"goal,omitempty"       yaml:"goal,omitempty"`
	Order     *int           `json:"order,omitempty"      toml:"order,omitempty"      yaml:"order,omitempty"`
	Exercises []exerciseFile `json:"exercises"            toml:"exercises"            yaml:"exercises"`
}

type exerciseFile struct {
	Name             string           `json:"name"                        toml:"name"                        yaml:"name"`
	Kind             string           `json:"kind"                        toml:"kind"                        yaml:"kind"`
	Category         string           `json:"category,omitempty"          toml:"category,omitempty"          yaml:"category,omitempty"`
	ConditioningType string           `json:"conditioning_type,omitempty" toml:"conditioning_type,omitempty" yaml:"conditioning_type,omitempty"`
	Notes            string           `json:"notes,omitempty"             toml:"notes,omitempty"             yaml:"notes,omitempty"`
	Progression      *progressionFile `json:"progression,omitempty"       toml:"progression,omitempty"       yaml:"progression,omitempty"`
	Sets             []setFile        `json:"sets"                        toml:"sets"                        yaml:"sets"`
}

type progressionFile struct {
	Type        string   `json:"type"                   toml:"type"                   yaml:"type"`
	DeltaWeight *float64 `json:"delta_weight,omitempty" toml:"delta_weight,omitempty" yaml:"delta_weight,omitempty"`
}

type setFile struct {
	Index           *int     `json:"index,omitempty"            toml:"index,omitempty"            yaml:"index,omitempty"`
	Reps            *int     `json:"reps,omitempty"             toml:"reps,omitempty"             yaml:"reps,omitempty"`
	Weight          *float64 `json:"weight,omitempty"           toml:"weight,omitempty"           yaml:"weight,omitempty"`
	RPE             *float64 `json:"rpe,omitempty"              toml:"rpe,omitempty"              yaml:"rpe,omitempty"`
	RestSeconds     *int     `json:"rest_seconds,omitempty"     toml:"rest_seconds,omitempty"     yaml:"rest_seconds,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty" toml:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"  toml:"distance_meters,omitempty"  yaml:"distance_meters,omitempty"`
	Calories        *int     `json:"calories,omitempty"         toml:"calories,omitempty"         yaml:"calories,omitempty"`
	Rounds          *int     `json:"rounds,omitempty"           toml:"rounds,omitempty"           yaml:"rounds,omitempty"`
	Effort          string   `json:"effort,omitempty"           toml:"effort,omitempty"           yaml:"effort,omitempty"`
}

// LoadTemplateFile reads a block template from a YAML, TOML or JSON file.
func LoadTemplateFile(path string) (BlockTemplate, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return BlockTemplate{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("read template file: %w", err)
	}
	block, err := ParseTemplate(data, format)
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return block, nil
}

// ParseTemplate decodes a block template and assigns fresh identities. Unknown keys are rejected.
//
// JSON input in the AI-authored shape, recognized by its top-level Title key, is converted with
// TemplateFromAuthored instead.
func ParseTemplate(data []byte, format TemplateFormat) (BlockTemplate, error) {
	var file templateFile
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return BlockTemplate{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return BlockTemplate{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}
			sort.Strings(keys)
			return BlockTemplate{}, fmt.Errorf("decode toml: unknown keys %s", strings.Join(keys, ", "))
		}
	case FormatJSON:
		if isAuthoredJSON(data) {
			return TemplateFromAuthored(data)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return BlockTemplate{}, fmt.Errorf("decode json: %w", err)
		}
	default:
		return BlockTemplate{}, fmt.Errorf("unsupported template format %q", format)
	}

	block := file.toTemplate()
	if err := block.Validate(); err != nil {
		return BlockTemplate{}, err
	}
	return block, nil
}

func isAuthoredJSON(data []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return false
	}
	_, ok := keys["Title"]
	return ok
}

func (f templateFile) toTemplate() BlockTemplate {
	block := BlockTemplate{
		ID:            uuid.New(),
		Name:          f.Name,
		Goal:          nonEmpty(&f.Goal),
		NumberOfWeeks: f.Weeks,
		Progression:   ProgressionType(f.Progression),
		Days:          make([]DayTemplate, len(f.Days)),
		CreatedAt:     time.Now().UTC(),
	}
	if block.Progression == "" {
		block.Progression = ProgressionCustom
	}
	for i, d := range f.Days {
		day := DayTemplate{
			ID:        uuid.New(),
			Order:     ptr.Deref(d.Order, i),
			Name:      d.Name,
			ShortCode: d.ShortCode,
			Goal:      nonEmpty(&d.Goal),
			Exercises: make([]ExerciseTemplate, len(d.Exercises)),
		}
		for j, e := range d.Exercises {
			day.Exercises[j] = e.toTemplate()
		}
		block.Days[i] = day
	}
	return block
}

func (e exerciseFile) toTemplate() ExerciseTemplate {
	ex := ExerciseTemplate{
		ID:               uuid.New(),
		Name:             e.Name,
		Kind:             ExerciseKind(e.Kind),
		Category:         nil,
		ConditioningType: nonEmpty(&e.ConditioningType),
		Notes:            e.Notes,
		StrengthSets:     nil,
		ConditioningSets: nil,
		Progression:      nil,
	}
	if e.Category != "" {
		ex.Category = ptr.Ref(Category(e.Category))
	}
	if e.Progression != nil {
		ex.Progression = &ProgressionRule{Type: ProgressionType(e.Progression.Type), DeltaWeight: e.Progression.DeltaWeight}
	}
	for i, s := range e.Sets {
		index := ptr.Deref(s.Index, i)
		// Sets are stored by exercise kind. Validate reports an unknown kind.
		if ex.Kind == KindConditioning {
			ex.ConditioningSets = append(ex.ConditioningSets, ConditioningSet{
				Index:           index,
				DurationSeconds: s.DurationSeconds,
				DistanceMeters:  s.DistanceMeters,
				Calories:        s.Calories,
				Rounds:          s.Rounds,
				Effort:          nonEmpty(&s.Effort),
				RestSeconds:     s.RestSeconds,
			})
			continue
		}
		ex.StrengthSets = append(ex.StrengthSets, StrengthSet{
			Index:       index,
			Reps:        ptr.Deref(s.Reps, 0),
			Weight:      s.Weight,
			RPE:         s.RPE,
			RestSeconds: s.RestSeconds,
		})
	}
	return ex
}
