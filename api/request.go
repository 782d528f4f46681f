package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JudgeConfig is a judge request as it travels over the broker.
type JudgeConfig struct {
	ID               int64      `json:"id"`
	Version          string     `json:"version"`
	Type             string     `json:"type"`
	Stages           []Stage    `json:"stages"`
	Program          Program    `json:"program"`
	RandomGenerator  *Program   `json:"random_generator"`
	CustomComparator *Program   `json:"custom_comparator"`
	Testcases        []Testcase `json:"testcases"`
}

type Program struct {
	Language    string   `json:"language"`
	CompileArgs []string `json:"compile_args"`
	Sources     []File   `json:"sources"`
	GitRepoName *string  `json:"git_repo_name"`
	EntryPoint  *string  `json:"entry_point"`
}

type File struct {
	Path   string  `json:"path"`
	Locked *bool   `json:"locked"`
	Hidden *bool   `json:"hidden"`
	Type   *string `json:"type"`
}

// Stage is one phase of the judge pipeline. Replicas fan a stage out into
// sub-stages sharing its definition.
type Stage struct {
	Name     string         `json:"name"`
	Preset   *string        `json:"preset"`
	Require  *Require       `json:"require"`
	Script   *Script        `json:"script"`
	Limits   *Limits        `json:"limits"`
	Testcase *TestcaseEntry `json:"testcase"`
	Grade    int32          `json:"grade"`
	Replicas []Stage        `json:"replicas"`
}

type Require struct {
	On   string  `json:"on"`
	Cond *string `json:"cond"`
}

type Script struct {
	Check   *string `json:"check"`
	Run     *string `json:"run"`
	Compare *string `json:"compare"`
}

type Limits struct {
	Time   *int64 `json:"time"`
	Memory *int64 `json:"memory"`
	File   *int64 `json:"file"`
	Proc   *int64 `json:"proc"`
}

type TestcaseEntry struct {
	ID       int32 `json:"id"`
	IsRandom *bool `json:"is_random"`
}

type Testcase struct {
	ID      int32  `json:"id"`
	Sources []File `json:"sources"`
	Hidden  *bool  `json:"hidden"`
}

// ParseJudgeConfig decodes a judge request, rejecting documents with
// missing or null required fields and type mismatches.
func ParseJudgeConfig(data []byte) (*JudgeConfig, error) {
	var cfg JudgeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse judge config: %w", err)
	}
	return &cfg, nil
}

func (c JudgeConfig) String() string {
	return fmt.Sprintf("judge config #%d (type=%q version=%q language=%q stages=%d testcases=%d)",
		c.ID, c.Type, c.Version, c.Program.Language, len(c.Stages), len(c.Testcases))
}

func (c *JudgeConfig) UnmarshalJSON(b []byte) error {
	type plain JudgeConfig
	if err := checkFields(b, judgeConfigFields, "id", "type", "stages", "program", "testcases"); err != nil {
		return err
	}
	return json.Unmarshal(b, (*plain)(c))
}

func (p *Program) UnmarshalJSON(b []byte) error {
	type plain Program
	if err := checkFields(b, programFields, "language", "compile_args", "sources"); err != nil {
		return fmt.Errorf("program: %w", err)
	}
	return json.Unmarshal(b, (*plain)(p))
}

func (f *File) UnmarshalJSON(b []byte) error {
	type plain File
	if err := checkFields(b, fileFields, "path"); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	return json.Unmarshal(b, (*plain)(f))
}

func (s *Stage) UnmarshalJSON(b []byte) error {
	type plain Stage
	if err := checkFields(b, stageFields, "name", "grade"); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	return json.Unmarshal(b, (*plain)(s))
}

func (r *Require) UnmarshalJSON(b []byte) error {
	type plain Require
	if err := checkFields(b, requireFieldNames, "on"); err != nil {
		return fmt.Errorf("require: %w", err)
	}
	return json.Unmarshal(b, (*plain)(r))
}

func (t *TestcaseEntry) UnmarshalJSON(b []byte) error {
	type plain TestcaseEntry
	if err := checkFields(b, testcaseEntryFields, "id"); err != nil {
		return fmt.Errorf("testcase entry: %w", err)
	}
	return json.Unmarshal(b, (*plain)(t))
}

func (t *Testcase) UnmarshalJSON(b []byte) error {
	type plain Testcase
	if err := checkFields(b, testcaseFields, "id", "sources"); err != nil {
		return fmt.Errorf("testcase: %w", err)
	}
	return json.Unmarshal(b, (*plain)(t))
}

func (s *Script) UnmarshalJSON(b []byte) error {
	type plain Script
	if err := checkFields(b, scriptFields); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return json.Unmarshal(b, (*plain)(s))
}

func (l *Limits) UnmarshalJSON(b []byte) error {
	type plain Limits
	if err := checkFields(b, limitsFields); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	return json.Unmarshal(b, (*plain)(l))
}

var (
	judgeConfigFields   = []string{"id", "version", "type", "stages", "program", "random_generator", "custom_comparator", "testcases"}
	programFields       = []string{"language", "compile_args", "sources", "git_repo_name", "entry_point"}
	fileFields          = []string{"path", "locked", "hidden", "type"}
	stageFields         = []string{"name", "preset", "require", "script", "limits", "testcase", "grade", "replicas"}
	requireFieldNames   = []string{"on", "cond"}
	scriptFields        = []string{"check", "run", "compare"}
	limitsFields        = []string{"time", "memory", "file", "proc"}
	testcaseEntryFields = []string{"id", "is_random"}
	testcaseFields      = []string{"id", "sources", "hidden"}
)

// checkFields checks that b is a JSON object holding every required key with
// a non-null value. A key differing from a known field only in case is
// refused. Other unknown keys are ignored.
func checkFields(b []byte, known []string, required ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("expected object, got null")
	}
	for key := range obj {
		for _, field := range known {
			if key != field && strings.EqualFold(key, field) {
				return fmt.Errorf("field %q does not match %q", key, field)
			}
		}
	}
	for _, k := range required {
		v, ok := obj[k]
		if !ok {
			return fmt.Errorf("missing field %q", k)
		}
		if string(v) == "null" {
			return fmt.Errorf("field %q is null", k)
		}
	}
	return nil
}
