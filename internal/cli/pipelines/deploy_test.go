package pipelines

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/history"
	"github.com/vertex-deployer/deployer/internal/testutil"
	"github.com/vertex-deployer/deployer/internal/vertex"
)

func TestNormalizeCron(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in, want string
	}{
		"empty":       {in: "", want: ""},
		"spaces kept": {in: "0 2 * * 1-5", want: "0 2 * * 1-5"},
		"underscores": {in: "0_2_*_*_1-5", want: "0 2 * * 1-5"},
		"dashes":      {in: "0-2-*-*-*", want: "0 2 * * *"},
		"trimmed":     {in: "  0 2 * * *  ", want: "0 2 * * *"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalizeCron(tt.in))
		})
	}
}

func TestDeploy_OptionErrors(t *testing.T) {
	tests := map[string]struct {
		args    []string
		wantMsg string
	}{
		"nothing to do": {
			args:    []string{"etl", "--compile=false"},
			wantMsg: "at least one of --compile",
		},
		"two configs": {
			args:    []string{"etl", "--config-filepath", "a.json", "--config-name", "b.json"},
			wantMsg: "cannot use --config-filepath with --config-name",
		},
		"run without config": {
			args:    []string{"etl", "--run"},
			wantMsg: "needs a config file",
		},
		"schedule without cron": {
			args:    []string{"etl", "--schedule", "--config-name", "prod.json"},
			wantMsg: "--cron is required",
		},
		"upload without tags": {
			args:    []string{"etl", "--upload", "--tags", ""},
			wantMsg: "--tags is required",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			proj := testutil.NewProject(t)
			proj.AddPipeline(t, "etl", testutil.ETLPipeline)

			res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root, tt.args...)
			require.Error(t, res.err)
			cliErr := clierrors.AsCLIError(res.err)
			require.NotNil(t, cliErr)
			assert.Equal(t, clierrors.Argument, cliErr.Category)
			assert.Contains(t, cliErr.Error(), tt.wantMsg)
		})
	}
}

func TestDeploy_CompileOnly(t *testing.T) {
	testutil.ClearVertexEnv(t)
	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	out := filepath.Join(proj.Root, "compiled")

	res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root, "etl", "--local-package-path", out)
	require.NoError(t, res.err, res.stderr)

	assert.FileExists(t, filepath.Join(out, "etl.yaml"))
	assert.Contains(t, res.stdout, "Compiled to "+filepath.Join(out, "etl.yaml"))
	assert.Contains(t, res.stderr, "[1/1] Running compile")

	f, err := history.Load(filepath.Join(proj.Root, history.DefaultDir))
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, "etl", f.Entries[0].Pipeline)
	assert.Equal(t, []string{"compile"}, f.Entries[0].Steps)
	assert.Equal(t, history.StatusCompleted, f.Entries[0].Status)
}

func TestDeploy_ValidationFailureStopsDeploy(t *testing.T) {
	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	cfg := proj.AddConfig(t, "etl", "bad.json", `{"threshold": 1}`)
	out := filepath.Join(proj.Root, "compiled")

	res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root,
		"etl", "--config-filepath", cfg, "--local-package-path", out)
	require.Error(t, res.err)
	assert.Equal(t, shared.ExitChecksFailed, shared.ExitCode(res.err))
	assert.Contains(t, res.stderr, "input_table")
	assert.NoFileExists(t, filepath.Join(out, "etl.yaml"))
}

func TestDeploy_MissingVertexSettings(t *testing.T) {
	testutil.ClearVertexEnv(t)
	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	cfg := proj.AddConfig(t, "etl", "prod.json", `{"input_table": "sales"}`)

	res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root,
		"etl", "--run", "--config-filepath", cfg)
	require.Error(t, res.err)
	cliErr := clierrors.AsCLIError(res.err)
	require.NotNil(t, cliErr)
	assert.Equal(t, clierrors.Configuration, cliErr.Category)
	assert.Contains(t, cliErr.Error(), "PROJECT_ID")
}

// useFakeVertex points the deploy command at fake and restores the real
// client when the test ends.
func useFakeVertex(t *testing.T, fake *testutil.FakeVertex) {
	t.Helper()
	oldClient, oldConfigure := newHTTPClient, configureDeployer
	newHTTPClient = func(context.Context) (*http.Client, error) { return fake.Client(), nil }
	configureDeployer = func(d *vertex.Deployer) {
		d.Endpoint = fake.URL()
		d.Registry.Host = fake.RegistryHost()
	}
	t.Cleanup(func() { newHTTPClient, configureDeployer = oldClient, oldConfigure })

	testutil.ClearVertexEnv(t)
	t.Setenv("PROJECT_ID", "my-project")
	t.Setenv("GCP_REGION", "europe-west1")
	t.Setenv("VERTEX_STAGING_BUCKET_NAME", "bucket")
	t.Setenv("VERTEX_SERVICE_ACCOUNT", "runner@my-project.iam.gserviceaccount.com")
}

func TestDeploy_CompileUploadRun(t *testing.T) {
	fake := testutil.NewFakeVertexBuilder(t).Build()
	useFakeVertex(t, fake)

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "prod.json", `{"input_table": "sales"}`)

	res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root,
		"etl", "--upload", "--run", "--tags", "v1,latest", "--config-name", "prod.json",
		"--enable-caching=false", "--local-package-path", filepath.Join(proj.Root, "compiled"))
	require.NoError(t, res.err, res.stderr)

	assert.Contains(t, res.stderr, "[1/3] Running compile")
	assert.Contains(t, res.stderr, "[3/3] Running run")
	assert.Contains(t, res.stdout, "Uploaded with tags v1, latest")
	assert.Contains(t, res.stdout, "Console: https://console.cloud.google.com/vertex-ai/")

	fake.AssertCalled(t, "POST", testutil.RegistryPath)
	var sent aiplatformpb.PipelineJob
	fake.DecodeProto(t, "POST", "/pipelineJobs", &sent)
	assert.Contains(t, sent.GetTemplateUri(), fake.RegistryHost()+"/etl/sha256:")
	assert.Equal(t, "sales", sent.GetRuntimeConfig().GetParameterValues()["input_table"].GetStringValue())
}

func TestDeploy_ScheduleUnknownTag(t *testing.T) {
	fake := testutil.NewFakeVertexBuilder(t).WithTag("etl", "latest", "sha256:feed", "root: {}\n").Build()
	useFakeVertex(t, fake)

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	proj.AddConfig(t, "etl", "prod.json", `{"input_table": "sales"}`)

	res := execute(t, newDeployCmd(), projectSettings(t, proj), proj.Root,
		"etl", "--compile=false", "--schedule", "--cron", "0_2_*_*_*", "--tags", "nightly",
		"--config-name", "prod.json")
	require.Error(t, res.err)
	cliErr := clierrors.AsCLIError(res.err)
	require.NotNil(t, cliErr)
	assert.Equal(t, clierrors.Argument, cliErr.Category)
	fake.AssertNotCalled(t, "POST", "/schedules")

	f, err := history.Load(filepath.Join(proj.Root, history.DefaultDir))
	require.NoError(t, err)
	require.Len(t, f.Entries, 1)
	assert.Equal(t, history.StatusFailed, f.Entries[0].Status)
	assert.Equal(t, []string{"nightly"}, f.Entries[0].Tags)
}

func TestStepError(t *testing.T) {
	t.Parallel()

	timeout := stepError("run", 5, context.DeadlineExceeded)
	cliErr := clierrors.AsCLIError(timeout)
	require.NotNil(t, cliErr)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	registry := clierrors.AsCLIError(stepError("upload", 0, vertex.ErrMissingRegistryHost))
	require.NotNil(t, registry)
	assert.Equal(t, clierrors.Configuration, registry.Category)
}
