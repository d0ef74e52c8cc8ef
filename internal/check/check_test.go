package check

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/schema"
	"github.com/vertex-deployer/deployer/internal/testutil"
)

func newChecker(t *testing.T, proj *testutil.Project) *Checker {
	t.Helper()
	c := New(proj.PipelinesRoot, proj.ConfigsRoot)
	c.ScratchDir = filepath.Join(proj.Root, "scratch")
	return c
}

func issueFields(issues []Issue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Field)
	}
	return out
}

func TestValidate_ETLScenario(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "dev.json", `{"input_table": "ds.t1"}`)
	proj.AddConfig(t, "etl", "prod.json", `{"input_table": "ds.t1", "threshold": 0.9, "extra": 1}`)

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{{Pipeline: "etl"}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)

	out := report.Outcomes[0]
	require.Nil(t, out.Error)
	require.Len(t, out.Configs, 2)

	dev, prod := out.Configs[0], out.Configs[1]
	assert.Equal(t, "dev.json", dev.Name)
	assert.True(t, dev.OK())
	require.Len(t, dev.Warnings, 1)
	assert.Equal(t, DefaultValueWarning, dev.Warnings[0].Kind)
	assert.Equal(t, "threshold", dev.Warnings[0].Field)
	assert.Equal(t, 0.5, dev.Warnings[0].Value)
	assert.Equal(t, "default value used: 0.5", dev.Warnings[0].Message)

	assert.Equal(t, "prod.json", prod.Name)
	require.Len(t, prod.Errors, 1)
	assert.Equal(t, SchemaViolationError, prod.Errors[0].Kind)
	assert.Equal(t, "extra", prod.Errors[0].Field)
	assert.Equal(t, "extra fields not permitted", prod.Errors[0].Message)
	assert.Empty(t, prod.Warnings)

	assert.True(t, report.HasErrors())
	assert.Empty(t, report.PipelineErrors())
	assert.Equal(t, map[string]map[string][]Issue{"etl": {"prod.json": prod.Errors}}, report.ConfigErrors())
	assert.Equal(t, map[string]map[string][]Issue{"etl": {"dev.json": dev.Warnings}}, report.DefaultWarnings())
}

func TestValidate_ErrorIsolation(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddPipeline(t, "broken", testutil.BrokenSyntaxPipeline)
	proj.AddPipeline(t, "dummy", testutil.DummyPipeline)
	proj.AddConfig(t, "etl", "dev.json", `{"input_table": "ds.t1"}`)
	proj.AddConfig(t, "broken", "dev.json", `{"x": "y"}`)
	proj.AddConfig(t, "dummy", "dev.yaml", "name: n\nraw_data: gs://bucket/raw\n")

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{
		{Pipeline: "etl"}, {Pipeline: "broken"}, {Pipeline: "dummy"},
	})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, []string{"etl", "broken", "dummy"},
		[]string{report.Outcomes[0].Pipeline, report.Outcomes[1].Pipeline, report.Outcomes[2].Pipeline})

	a, b, c := report.Outcomes[0], report.Outcomes[1], report.Outcomes[2]
	assert.True(t, a.OK())
	require.Len(t, a.Configs, 1)

	require.NotNil(t, b.Error)
	assert.Equal(t, PipelineImportError, b.Error.Kind)
	assert.Contains(t, b.Error.Message, "ImportError")
	assert.NotEmpty(t, b.Error.Trace)
	assert.Empty(t, b.Configs)

	assert.True(t, c.OK())
	require.Len(t, c.Configs, 1)

	assert.Len(t, report.PipelineErrors(), 1)
	assert.Empty(t, report.ConfigErrors())
}

func TestValidate_PipelineFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup       func(t *testing.T, proj *testutil.Project)
		pipeline    string
		wantKind    Kind
		wantMessage string
	}{
		"missing module": {
			setup:       func(*testing.T, *testutil.Project) {},
			pipeline:    "ghost",
			wantKind:    PipelineImportError,
			wantMessage: "ModuleNotFound",
		},
		"missing pipeline block": {
			setup: func(t *testing.T, proj *testutil.Project) {
				proj.AddPipeline(t, "other", testutil.ETLPipeline)
			},
			pipeline:    "other",
			wantKind:    PipelineImportError,
			wantMessage: "PipelineNotFound",
		},
		"cycle": {
			setup: func(t *testing.T, proj *testutil.Project) {
				proj.AddPipeline(t, "cyclic", testutil.CyclicPipeline)
				proj.AddConfig(t, "cyclic", "dev.json", `{"x": "y"}`)
			},
			pipeline:    "cyclic",
			wantKind:    PipelineCompileError,
			wantMessage: "circular dependency",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			proj := testutil.NewProject(t)
			tt.setup(t, proj)

			report, err := newChecker(t, proj).Validate(context.Background(), []Request{{Pipeline: tt.pipeline}})
			require.NoError(t, err)

			out := report.Outcomes[0]
			require.NotNil(t, out.Error)
			assert.Equal(t, tt.wantKind, out.Error.Kind)
			assert.Contains(t, out.Error.Message, tt.wantMessage)
			assert.Empty(t, out.Configs, "pipeline failures skip config checks")
			assert.True(t, report.HasErrors())
		})
	}
}

func TestValidate_DefaultDetection(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "dummy", testutil.DummyPipeline)
	omitted := proj.AddConfig(t, "dummy", "omitted.json",
		`{"name": "n", "raw_data": "gs://b/raw", "model_name": "m", "epochs": 3, "features": []}`)
	explicit := proj.AddConfig(t, "dummy", "explicit.json",
		`{"name": "n", "raw_data": "gs://b/raw", "model_name": "m", "epochs": 3, "features": [], "enable_caching": false}`)

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{
		{Pipeline: "dummy", ConfigPaths: []string{omitted, explicit}},
	})
	require.NoError(t, err)

	configs := report.Outcomes[0].Configs
	require.Len(t, configs, 2)

	assert.True(t, configs[0].OK())
	require.Len(t, configs[0].Warnings, 1)
	assert.Equal(t, "enable_caching", configs[0].Warnings[0].Field)
	assert.Equal(t, false, configs[0].Warnings[0].Value)

	assert.True(t, configs[1].OK())
	assert.Empty(t, configs[1].Warnings)
}

func TestValidate_MultiErrorAggregation(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "dummy", testutil.DummyPipeline)
	proj.AddConfig(t, "dummy", "bad.json", `{"foo": 1, "epochs": "ten"}`)

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{{Pipeline: "dummy"}})
	require.NoError(t, err)

	cfg := report.Outcomes[0].Configs[0]
	assert.Equal(t, []string{"name", "epochs", "raw_data", "foo"}, issueFields(cfg.Errors))
	for _, e := range cfg.Errors {
		assert.Equal(t, SchemaViolationError, e.Kind)
	}
}

func TestValidate_ArtifactAcceptsString(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "dummy", testutil.DummyPipeline)
	proj.AddConfig(t, "dummy", "a.json", `{"name": "n", "raw_data": "gs://b/raw"}`)
	proj.AddConfig(t, "dummy", "b.json",
		`{"name": "n", "raw_data": {"name": "raw", "uri": "gs://b/raw", "metadata": {}}}`)

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{{Pipeline: "dummy"}})
	require.NoError(t, err)

	configs := report.Outcomes[0].Configs
	require.Len(t, configs, 2)
	assert.True(t, configs[0].OK())
	assert.Equal(t, []string{"raw_data"}, issueFields(configs[1].Errors))
}

func TestValidate_BadConfigIsolation(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "a.json", `{"input_table": `)
	proj.AddConfig(t, "etl", "b.toml", "input_table = \"ds.t1\"\nthreshold = 0.7\n")
	proj.AddConfig(t, "etl", "c.py", "parameter_values = {\"input_table\": \"ds.t1\"}\ninput_artifacts = {\"input_table\": \"x\"}\n")
	proj.AddConfig(t, "etl", "notes.txt", "ignored")

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{{Pipeline: "etl"}})
	require.NoError(t, err)

	configs := report.Outcomes[0].Configs
	require.Len(t, configs, 3)
	assert.Equal(t, []string{"a.json", "b.toml", "c.py"}, []string{configs[0].Name, configs[1].Name, configs[2].Name})

	require.Len(t, configs[0].Errors, 1)
	assert.Equal(t, BadConfigError, configs[0].Errors[0].Kind)
	assert.Empty(t, configs[0].Errors[0].Field)

	assert.True(t, configs[1].OK())
	assert.Empty(t, configs[1].Warnings)

	require.Len(t, configs[2].Errors, 1)
	assert.Equal(t, BadConfigError, configs[2].Errors[0].Kind)
	assert.Contains(t, configs[2].Errors[0].Message, "common keys: input_table")
}

func TestValidate_NoConfigs(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "dev.json", `{"input_table": "ds.t1"}`)

	report, err := newChecker(t, proj).Validate(context.Background(), []Request{
		{Pipeline: "etl", ConfigPaths: []string{}},
	})
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.Nil(t, out.Error)
	assert.Empty(t, out.Configs)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, NoConfigWarning, out.Warnings[0].Kind)
	assert.False(t, report.HasErrors())

	rows := report.Rows(true)
	require.Len(t, rows, 1)
	assert.Equal(t, StatusWarn, rows[0].Status)
}

func TestValidate_ScratchDirRemoved(t *testing.T) {
	t.Parallel()

	t.Run("after success", func(t *testing.T) {
		t.Parallel()
		proj := testutil.NewProject(t)
		proj.AddPipeline(t, "etl", testutil.ETLPipeline)
		c := newChecker(t, proj)

		_, err := c.Validate(context.Background(), []Request{{Pipeline: "etl"}})
		require.NoError(t, err)
		assert.NoDirExists(t, c.ScratchDir)
	})

	t.Run("after failures", func(t *testing.T) {
		t.Parallel()
		proj := testutil.NewProject(t)
		proj.AddPipeline(t, "cyclic", testutil.CyclicPipeline)
		c := newChecker(t, proj)

		_, err := c.Validate(context.Background(), []Request{{Pipeline: "cyclic"}, {Pipeline: "ghost"}})
		require.NoError(t, err)
		assert.NoDirExists(t, c.ScratchDir)
	})

	t.Run("after panic", func(t *testing.T) {
		t.Parallel()
		proj := testutil.NewProject(t)
		c := newChecker(t, proj)
		c.Pipelines = panickingLoader{}

		assert.Panics(t, func() {
			_, _ = c.Validate(context.Background(), []Request{{Pipeline: "etl"}})
		})
		assert.NoDirExists(t, c.ScratchDir)
	})

	t.Run("after programmer error", func(t *testing.T) {
		t.Parallel()
		proj := testutil.NewProject(t)
		c := newChecker(t, proj)
		c.Pipelines = nilLoader{}

		_, err := c.Validate(context.Background(), []Request{{Pipeline: "etl"}})
		assert.ErrorIs(t, err, schema.ErrNilPipeline)
		assert.NoDirExists(t, c.ScratchDir)
	})
}

func TestValidate_CompilesIntoScratchDir(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	c := newChecker(t, proj)
	rec := &recordingCompiler{}
	c.Compiler = rec

	_, err := c.Validate(context.Background(), []Request{{Pipeline: "etl"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(c.ScratchDir, "etl.yaml")}, rec.paths)
	assert.True(t, rec.dirExisted)
}

func TestValidate_CompileErrorFromCollaborator(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	c := newChecker(t, proj)
	c.Compiler = &recordingCompiler{err: errors.New("boom")}

	report, err := c.Validate(context.Background(), []Request{{Pipeline: "etl"}})
	require.NoError(t, err)
	require.NotNil(t, report.Outcomes[0].Error)
	assert.Equal(t, PipelineCompileError, report.Outcomes[0].Error.Kind)
	assert.Equal(t, "boom", report.Outcomes[0].Error.Message)
}

type panickingLoader struct{}

func (panickingLoader) Load(context.Context, string, string) (*pipeline.Pipeline, error) {
	panic("loader exploded")
}

type nilLoader struct{}

func (nilLoader) Load(context.Context, string, string) (*pipeline.Pipeline, error) {
	return nil, nil
}

type recordingCompiler struct {
	paths      []string
	dirExisted bool
	err        error
}

func (r *recordingCompiler) Compile(_ context.Context, _ *pipeline.Pipeline, outputPath string) error {
	r.paths = append(r.paths, outputPath)
	r.dirExisted = testutil.FileExists(filepath.Dir(outputPath))
	return r.err
}

func TestValidate_NaNDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "a.yaml", "input_table: ds.t1\nthreshold: .nan\n")
	proj.AddConfig(t, "etl", "b.toml", "input_table = \"ds.t1\"\nthreshold = nan\n")
	proj.AddConfig(t, "etl", "c.json", `{"input_table": "ds.t1", "threshold": 0.7}`)
	proj.AddPipeline(t, "dummy", testutil.DummyPipeline)
	proj.AddConfig(t, "dummy", "dev.yaml", "name: n\nraw_data: gs://bucket/raw\n")

	c := newChecker(t, proj)
	report, err := c.Validate(context.Background(), []Request{{Pipeline: "etl"}, {Pipeline: "dummy"}})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 2)
	assert.NoDirExists(t, c.ScratchDir)

	configs := report.Outcomes[0].Configs
	require.Len(t, configs, 3)
	for _, co := range configs[:2] {
		require.Len(t, co.Errors, 1, co.Name)
		assert.Equal(t, SchemaViolationError, co.Errors[0].Kind, co.Name)
		assert.Equal(t, "threshold", co.Errors[0].Field, co.Name)
		assert.Contains(t, co.Errors[0].Message, "NaN", co.Name)
	}
	assert.True(t, configs[2].OK())

	dummy := report.Outcomes[1]
	require.Len(t, dummy.Configs, 1)
	assert.True(t, dummy.Configs[0].OK())
}
