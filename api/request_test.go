package api_test

import (
	"encoding/json"
	"testing"

	"github.com/programme-lv/rayjudge/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `{
	"id": 42,
	"version": "v5",
	"type": "programming",
	"program": {
		"language": "cpp",
		"compile_args": ["-O2", "-std=c++17"],
		"sources": [{"path": "main.cpp", "locked": false, "hidden": null, "type": "source"}],
		"git_repo_name": "submissions",
		"entry_point": "main.cpp"
	},
	"stages": [
		{
			"name": "compile",
			"preset": "gcc",
			"script": {"run": "make"},
			"limits": {"time": 10000, "memory": 262144},
			"grade": 0
		},
		{
			"name": "run",
			"require": {"on": "compile", "cond": "ok"},
			"testcase": {"id": 1, "is_random": false},
			"grade": 100,
			"replicas": [{"name": "run-1", "grade": 50}, {"name": "run-2", "grade": 50}]
		}
	],
	"random_generator": null,
	"custom_comparator": {"language": "python", "compile_args": [], "sources": []},
	"testcases": [{"id": 1, "sources": [{"path": "1.in"}, {"path": "1.ans"}], "hidden": true}]
}`

func TestParseJudgeConfig_Full(t *testing.T) {
	cfg, err := api.ParseJudgeConfig([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.ID)
	assert.Equal(t, "v5", cfg.Version)
	assert.Equal(t, "programming", cfg.Type)
	assert.Equal(t, "cpp", cfg.Program.Language)
	assert.Equal(t, []string{"-O2", "-std=c++17"}, cfg.Program.CompileArgs)
	require.Len(t, cfg.Program.Sources, 1)
	assert.Equal(t, "main.cpp", cfg.Program.Sources[0].Path)
	assert.Nil(t, cfg.Program.Sources[0].Hidden)
	require.NotNil(t, cfg.Program.EntryPoint)
	assert.Equal(t, "main.cpp", *cfg.Program.EntryPoint)

	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, int64(10000), *cfg.Stages[0].Limits.Time)
	assert.Nil(t, cfg.Stages[0].Limits.File)
	assert.Equal(t, "compile", cfg.Stages[1].Require.On)
	require.Len(t, cfg.Stages[1].Replicas, 2)
	assert.Equal(t, "run-2", cfg.Stages[1].Replicas[1].Name)

	assert.Nil(t, cfg.RandomGenerator)
	require.NotNil(t, cfg.CustomComparator)
	assert.Equal(t, "python", cfg.CustomComparator.Language)

	require.Len(t, cfg.Testcases, 1)
	assert.True(t, *cfg.Testcases[0].Hidden)
}

func ptr[T any](v T) *T { return &v }

func TestParseJudgeConfig_MatchesPayloadFieldForField(t *testing.T) {
	want := &api.JudgeConfig{
		ID:      42,
		Version: "v5",
		Type:    "programming",
		Program: api.Program{
			Language:    "cpp",
			CompileArgs: []string{"-O2", "-std=c++17"},
			Sources:     []api.File{{Path: "main.cpp", Locked: ptr(false), Type: ptr("source")}},
			GitRepoName: ptr("submissions"),
			EntryPoint:  ptr("main.cpp"),
		},
		Stages: []api.Stage{
			{
				Name:   "compile",
				Preset: ptr("gcc"),
				Script: &api.Script{Run: ptr("make")},
				Limits: &api.Limits{Time: ptr(int64(10000)), Memory: ptr(int64(262144))},
				Grade:  0,
			},
			{
				Name:     "run",
				Require:  &api.Require{On: "compile", Cond: ptr("ok")},
				Testcase: &api.TestcaseEntry{ID: 1, IsRandom: ptr(false)},
				Grade:    100,
				Replicas: []api.Stage{{Name: "run-1", Grade: 50}, {Name: "run-2", Grade: 50}},
			},
		},
		RandomGenerator:  nil,
		CustomComparator: &api.Program{Language: "python", CompileArgs: []string{}, Sources: []api.File{}},
		Testcases: []api.Testcase{
			{ID: 1, Sources: []api.File{{Path: "1.in"}, {Path: "1.ans"}}, Hidden: ptr(true)},
		},
	}

	got, err := api.ParseJudgeConfig([]byte(fullConfig))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseJudgeConfig_MinimalPayloadFieldForField(t *testing.T) {
	got, err := api.ParseJudgeConfig([]byte(`{"id":1,"type":"programming",` +
		`"program":{"language":"csharp","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`))
	require.NoError(t, err)
	assert.Equal(t, &api.JudgeConfig{
		ID:        1,
		Type:      "programming",
		Stages:    []api.Stage{},
		Program:   api.Program{Language: "csharp", CompileArgs: []string{}, Sources: []api.File{}},
		Testcases: []api.Testcase{},
	}, got)
}

func TestParseJudgeConfig_IgnoresUnknownKeys(t *testing.T) {
	got, err := api.ParseJudgeConfig([]byte(`{"id":1,"type":"programming","priority":9,` +
		`"program":{"language":"go","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "programming", got.Type)
}

func TestParseJudgeConfig_RoundTripKeepsFields(t *testing.T) {
	cfg, err := api.ParseJudgeConfig([]byte(fullConfig))
	require.NoError(t, err)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	again, err := api.ParseJudgeConfig(b)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestParseJudgeConfig_VersionIsOptional(t *testing.T) {
	cfg, err := api.ParseJudgeConfig([]byte(`{"id":1,"type":"programming",` +
		`"program":{"language":"csharp","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Version)
	assert.Empty(t, cfg.Stages)
}

func TestParseJudgeConfig_SchemaMismatch(t *testing.T) {
	cases := map[string]string{
		"not json":          `not json`,
		"null document":     `null`,
		"array document":    `[]`,
		"missing id":        `{"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"string id":         `{"id":"1","type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"null stages":       `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":null,"testcases":[]}`,
		"missing language":  `{"id":1,"type":"t","program":{"compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"stage wants grade": `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[{"name":"x"}],"testcases":[]}`,
		"null stage":        `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[null],"testcases":[]}`,
		"file wants path":   `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[{}]},"stages":[],"testcases":[]}`,
		"bad replica":       `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[{"name":"x","grade":1,"replicas":[{"grade":1}]}],"testcases":[]}`,
		"testcase no src":   `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[{"id":1}]}`,
		"upper-case type":   `{"id":1,"type":"t","TYPE":"x","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"title-case key":    `{"id":1,"Version":"v9","type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"only cased id":     `{"ID":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[],"testcases":[]}`,
		"cased entry point": `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[],"Entry_Point":"x.cs"},"stages":[],"testcases":[]}`,
		"cased limits key":  `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[]},"stages":[{"name":"x","grade":1,"limits":{"Time":5}}],"testcases":[]}`,
		"cased file key":    `{"id":1,"type":"t","program":{"language":"c","compile_args":[],"sources":[{"path":"a","Hidden":true}]},"stages":[],"testcases":[]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := api.ParseJudgeConfig([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestJudgeConfig_String(t *testing.T) {
	cfg := api.JudgeConfig{ID: 7, Type: "programming", Program: api.Program{Language: "go"}}
	assert.Contains(t, cfg.String(), "#7")
	assert.Contains(t, cfg.String(), `language="go"`)
}
