package behave

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/rayjudge/api"
)

// SpecLanguage is an entry of the [[languages]] registry.
type SpecLanguage struct {
	Language    string
	CompileArgs []string
}

// SpecProgram is the submission a job judges. Either reference a registered
// language by lang_id, or provide fields inline.
type SpecProgram struct {
	LangID      string   `toml:"lang_id"`
	Language    string   `toml:"language"`
	CompileArgs []string `toml:"compile_args"`
	Sources     []string `toml:"sources"`
	EntryPoint  string   `toml:"entry_point"`
}

// SpecStage is one judge stage of a job.
type SpecStage struct {
	Name      string `toml:"name"`
	Preset    string `toml:"preset"`
	RequireOn string `toml:"require_on"`
	Run       string `toml:"run"`
	Compare   string `toml:"compare"`
	TimeMs    int64  `toml:"time_ms"`
	MemoryKiB int64  `toml:"memory_kib"`
	Testcase  int32  `toml:"testcase"`
	Grade     int32  `toml:"grade"`
}

type SpecTestcase struct {
	ID      int32    `toml:"id"`
	Sources []string `toml:"sources"`
	Hidden  bool     `toml:"hidden"`
}

// specJob maps to [[jobs]] entries.
type specJob struct {
	Description string         `toml:"description"`
	ID          int64          `toml:"id"`
	Version     string         `toml:"version"`
	Type        string         `toml:"type"`
	Program     SpecProgram    `toml:"program"`
	Stages      []SpecStage    `toml:"stages"`
	Testcases   []SpecTestcase `toml:"testcases"`
}

type specRoot struct {
	Jobs []specJob `toml:"jobs"`
	// Optional registry of languages available for reference via lang_id
	Languages []struct {
		ID          string   `toml:"id"`
		Language    string   `toml:"language"`
		CompileArgs []string `toml:"compile_args"`
	} `toml:"languages"`
}

// Case is a publishable judge request read from a scenario file.
type Case struct {
	Name   string
	Config api.JudgeConfig
}

// Load reads judge requests from a TOML scenario file or a JSON file
// holding one request or an array of them.
func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var cases []Case
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cases, err = ParseJSON(data)
	default:
		cases, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// ParseJSON accepts a single judge request or an array of them.
func ParseJSON(data []byte) ([]Case, error) {
	var raws []json.RawMessage
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	} else {
		raws = []json.RawMessage{data}
	}

	cases := make([]Case, 0, len(raws))
	for _, raw := range raws {
		cfg, err := api.ParseJudgeConfig(raw)
		if err != nil {
			return nil, err
		}
		cases = append(cases, Case{Name: fmt.Sprintf("job %d", cfg.ID), Config: *cfg})
	}
	return cases, checkUniqueIDs(cases)
}

// Parse converts a TOML scenario file into judge requests. Jobs without an
// id get a random one.
func Parse(data []byte) ([]Case, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if len(root.Jobs) == 0 {
		return nil, fmt.Errorf("scenario file has no [[jobs]] entries")
	}

	langByID := make(map[string]SpecLanguage)
	for _, l := range root.Languages {
		if l.ID == "" {
			continue
		}
		langByID[l.ID] = SpecLanguage{Language: l.Language, CompileArgs: l.CompileArgs}
	}

	cases := make([]Case, 0, len(root.Jobs))
	for i, job := range root.Jobs {
		var eff SpecLanguage
		if job.Program.LangID != "" {
			base, ok := langByID[job.Program.LangID]
			if !ok {
				return nil, fmt.Errorf("job %d: unknown language id: %s", i, job.Program.LangID)
			}
			eff = base
		}
		if job.Program.Language != "" {
			eff.Language = job.Program.Language
		}
		if job.Program.CompileArgs != nil {
			eff.CompileArgs = job.Program.CompileArgs
		}
		if eff.Language == "" {
			return nil, fmt.Errorf("job %d: program language is missing (lang_id=%q)", i, job.Program.LangID)
		}

		cfg := job.toConfig(eff)
		name := job.Description
		if name == "" {
			name = fmt.Sprintf("job %d", cfg.ID)
		}
		cases = append(cases, Case{Name: name, Config: cfg})
	}
	return cases, checkUniqueIDs(cases)
}

func (job specJob) toConfig(lang SpecLanguage) api.JudgeConfig {
	id := job.ID
	if id == 0 {
		id = int64(uuid.New().ID())
	}
	typ := job.Type
	if typ == "" {
		typ = "programming"
	}

	program := api.Program{
		Language:    lang.Language,
		CompileArgs: nonNil(lang.CompileArgs),
		Sources:     files(job.Program.Sources),
	}
	if job.Program.EntryPoint != "" {
		ep := job.Program.EntryPoint
		program.EntryPoint = &ep
	}

	stages := make([]api.Stage, 0, len(job.Stages))
	for _, s := range job.Stages {
		stages = append(stages, s.toStage())
	}

	testcases := make([]api.Testcase, 0, len(job.Testcases))
	for _, tc := range job.Testcases {
		testcase := api.Testcase{ID: tc.ID, Sources: files(tc.Sources)}
		if tc.Hidden {
			hidden := true
			testcase.Hidden = &hidden
		}
		testcases = append(testcases, testcase)
	}

	return api.JudgeConfig{
		ID:        id,
		Version:   job.Version,
		Type:      typ,
		Stages:    stages,
		Program:   program,
		Testcases: testcases,
	}
}

func (s SpecStage) toStage() api.Stage {
	stage := api.Stage{Name: s.Name, Grade: s.Grade}
	if s.Preset != "" {
		stage.Preset = &s.Preset
	}
	if s.RequireOn != "" {
		stage.Require = &api.Require{On: s.RequireOn}
	}
	if s.Run != "" || s.Compare != "" {
		stage.Script = &api.Script{}
		if s.Run != "" {
			stage.Script.Run = &s.Run
		}
		if s.Compare != "" {
			stage.Script.Compare = &s.Compare
		}
	}
	if s.TimeMs != 0 || s.MemoryKiB != 0 {
		stage.Limits = &api.Limits{}
		if s.TimeMs != 0 {
			stage.Limits.Time = &s.TimeMs
		}
		if s.MemoryKiB != 0 {
			stage.Limits.Memory = &s.MemoryKiB
		}
	}
	if s.Testcase != 0 {
		stage.Testcase = &api.TestcaseEntry{ID: s.Testcase}
	}
	return stage
}

func files(paths []string) []api.File {
	res := make([]api.File, 0, len(paths))
	for _, p := range paths {
		res = append(res, api.File{Path: p})
	}
	return res
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func checkUniqueIDs(cases []Case) error {
	seen := mapset.NewThreadUnsafeSet[int64]()
	for _, c := range cases {
		if !seen.Add(c.Config.ID) {
			return fmt.Errorf("duplicate job id %d", c.Config.ID)
		}
	}
	return nil
}

// Sample is the csharp job published by `publish --sample`.
func Sample() api.JudgeConfig {
	return api.JudgeConfig{
		ID:      1,
		Version: "v5",
		Type:    "programming",
		Stages:  []api.Stage{},
		Program: api.Program{
			Language:    "csharp",
			CompileArgs: []string{},
			Sources:     []api.File{},
		},
		Testcases: []api.Testcase{},
	}
}
