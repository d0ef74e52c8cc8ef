package vertex

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/settings"
	"github.com/vertex-deployer/deployer/internal/testutil"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestRunName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		pipeline, runName, tag string
		want                   string
		wantErr                bool
	}{
		"pipeline name":      {pipeline: "etl", want: "etl-20260314-092653"},
		"with tag":           {pipeline: "etl", tag: "v1", want: "etl-v1-20260314-092653"},
		"underscores":        {pipeline: "my_etl", want: "my-etl-20260314-092653"},
		"explicit run name":  {pipeline: "etl", runName: "nightly", tag: "v1", want: "nightly-20260314-092653"},
		"invalid first char": {pipeline: "1etl", wantErr: true},
		"invalid upper case": {pipeline: "ETL", wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := RunName(tt.pipeline, tt.runName, tt.tag, fixedNow)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExperimentName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "my-etl-experiment", ExperimentName("my_etl", ""))
	assert.Equal(t, "team-runs", ExperimentName("etl", "team_runs"))
}

type deployerFixture struct {
	fake     *testutil.FakeVertex
	deployer *Deployer
	logs     *bytes.Buffer
	ctx      context.Context
}

func newDeployerFixture(t *testing.T, b *testutil.FakeVertexBuilder, withRegistry bool) deployerFixture {
	t.Helper()

	proj := testutil.NewProject(t)
	proj.AddPipeline(t, "etl", testutil.ETLPipeline)
	p, err := pipeline.Load(context.Background(), proj.PipelinesRoot, "etl")
	require.NoError(t, err)

	fake := b.Build()
	vs := settings.VertexSettings{
		ProjectID:         "my-project",
		GCPRegion:         "europe-west1",
		StagingBucketName: "bucket",
		ServiceAccount:    "runner@my-project.iam.gserviceaccount.com",
	}
	d := NewDeployer(fake.Client(), p, vs, filepath.Join(proj.Root, "compiled"))
	d.Endpoint = fake.URL()
	t.Cleanup(func() { _ = d.Close() })
	d.Registry.Host = ""
	if withRegistry {
		d.Registry.Host = fake.RegistryHost()
	}
	d.Now = func() time.Time { return fixedNow }

	logs := &bytes.Buffer{}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(logs, nil)))
	require.NoError(t, d.Compile(ctx))

	return deployerFixture{fake: fake, deployer: d, logs: logs, ctx: ctx}
}

func TestDeployer_RunLocalTemplate(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), false)
	disabled := false

	job, err := f.deployer.Run(f.ctx, RunOptions{
		EnableCaching:   &disabled,
		ParameterValues: map[string]any{"input_table": "sales", "threshold": 0.7},
		InputArtifacts:  map[string]any{"raw": "projects/p/artifacts/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/my-project/locations/europe-west1/pipelineJobs/etl-20260314-092653", job.GetName())
	assert.Equal(t, aiplatformpb.PipelineState_PIPELINE_STATE_PENDING, job.GetState())

	var sent aiplatformpb.PipelineJob
	f.fake.DecodeProto(t, "POST", "/pipelineJobs", &sent)
	assert.Equal(t, "etl", sent.GetDisplayName())
	assert.Empty(t, sent.GetTemplateUri())
	runtime := sent.GetRuntimeConfig()
	assert.Equal(t, "gs://bucket/root", runtime.GetGcsOutputDirectory())
	assert.Equal(t, "sales", runtime.GetParameterValues()["input_table"].GetStringValue())
	assert.InDelta(t, 0.7, runtime.GetParameterValues()["threshold"].GetNumberValue(), 1e-9)
	assert.Equal(t, "projects/p/artifacts/1", runtime.GetInputArtifacts()["raw"].GetArtifactId())
	assert.Equal(t, "runner@my-project.iam.gserviceaccount.com", sent.GetServiceAccount())

	tasks := sent.GetPipelineSpec().AsMap()["root"].(map[string]any)["dag"].(map[string]any)["tasks"].(map[string]any)
	require.NotEmpty(t, tasks)
	for name, task := range tasks {
		caching := task.(map[string]any)["cachingOptions"].(map[string]any)
		assert.Equal(t, false, caching["enableCache"], name)
	}

	f.fake.AssertCalled(t, "POST", "/metadataStores/default/contexts")
	f.fake.AssertCalled(t, "POST", "etl-experiment:addContextChildren")
}

func TestDeployer_RunExperimentFailureIsWarning(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t).WithFailure(":addContextChildren", 500), false)

	job, err := f.deployer.Run(f.ctx, RunOptions{ExperimentName: "shared"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.GetName())
	assert.Contains(t, f.logs.String(), "Could not link the job to its experiment.")
}

func TestDeployer_RunExistingExperiment(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), false)

	_, err := f.deployer.Run(f.ctx, RunOptions{ExperimentName: "shared"})
	require.NoError(t, err)
	f.deployer.RunName = "second"
	_, err = f.deployer.Run(f.ctx, RunOptions{ExperimentName: "shared"})
	require.NoError(t, err)

	assert.Len(t, f.fake.GetCallsByMethod("POST", "shared:addContextChildren"), 2)
	assert.NotContains(t, f.logs.String(), "Could not link the job to its experiment.")
}

func TestDeployer_RunBigIntParameter(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), false)
	rows, ok := new(big.Int).SetString("100000000000000000000", 10)
	require.True(t, ok)

	_, err := f.deployer.Run(f.ctx, RunOptions{ParameterValues: map[string]any{
		"input_table": "sales",
		"rows":        rows,
		"windows":     []any{rows, int64(3)},
	}})
	require.NoError(t, err)

	var sent aiplatformpb.PipelineJob
	f.fake.DecodeProto(t, "POST", "/pipelineJobs", &sent)
	params := sent.GetRuntimeConfig().GetParameterValues()
	assert.InDelta(t, 1e20, params["rows"].GetNumberValue(), 1)
	windows := params["windows"].GetListValue().GetValues()
	require.Len(t, windows, 2)
	assert.InDelta(t, 3, windows[1].GetNumberValue(), 1e-9)
}

func TestDeployer_RunFailure(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t).WithFailure("/pipelineJobs", 400), false)

	_, err := f.deployer.Run(f.ctx, RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating pipeline job etl-20260314-092653")
	f.fake.AssertNotCalled(t, "POST", "/contexts")
}

func TestDeployer_UploadThenRunUsesVersion(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), true)

	require.NoError(t, f.deployer.UploadToRegistry(f.ctx, []string{"latest"}))
	_, err := f.deployer.Run(f.ctx, RunOptions{Tag: "latest"})
	require.NoError(t, err)

	var sent aiplatformpb.PipelineJob
	f.fake.DecodeProto(t, "POST", "/pipelineJobs", &sent)
	assert.Contains(t, sent.GetTemplateUri(), f.fake.RegistryHost()+"/etl/sha256:")
	assert.NotEmpty(t, sent.GetPipelineSpec().GetFields())
}

func TestDeployer_TemplatePath(t *testing.T) {
	t.Parallel()

	f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), true)
	host := f.fake.RegistryHost()

	assert.Equal(t, host+"/etl/v1", f.deployer.TemplatePath(f.ctx, "v1"))
	assert.Equal(t, f.deployer.SpecPath(), f.deployer.TemplatePath(f.ctx, ""))

	f.deployer.Registry.Host = ""
	assert.Equal(t, f.deployer.SpecPath(), f.deployer.TemplatePath(f.ctx, "v1"))
}

func TestDeployer_Schedule(t *testing.T) {
	t.Parallel()

	b := testutil.NewFakeVertexBuilder(t).
		WithTag("etl", "latest", "sha256:feed", "root:\n  dag:\n    tasks:\n      extract: {}\n").
		WithSchedules(
			testutil.FakeSchedule{Name: "projects/my-project/locations/europe-west1/schedules/2", DisplayName: "schedule-etl", Cron: "0 1 * * *"},
			testutil.FakeSchedule{Name: "projects/my-project/locations/europe-west1/schedules/1", DisplayName: "schedule-etl", Cron: "0 2 * * *"},
		)
	f := newDeployerFixture(t, b, true)
	enabled := true

	sched, err := f.deployer.Schedule(f.ctx, ScheduleOptions{
		Cron:               "0 3 * * *",
		Tag:                "latest",
		EnableCaching:      &enabled,
		DeleteLastSchedule: true,
	})
	require.NoError(t, err)
	assert.Equal(t, aiplatformpb.Schedule_ACTIVE, sched.GetState())

	deletes := f.fake.GetCallsByMethod("DELETE", "/schedules/")
	require.Len(t, deletes, 1)
	assert.Equal(t, "/v1/projects/my-project/locations/europe-west1/schedules/2", deletes[0].Path)

	var sent aiplatformpb.Schedule
	f.fake.DecodeProto(t, "POST", "/schedules", &sent)
	assert.Equal(t, "schedule-etl", sent.GetDisplayName())
	assert.Equal(t, "TZ=Europe/Paris 0 3 * * *", sent.GetCron())
	assert.Equal(t, int64(1), sent.GetMaxConcurrentRunCount())
	require.NotNil(t, sent.GetCreatePipelineJobRequest())
	job := sent.GetCreatePipelineJobRequest().GetPipelineJob()
	assert.Equal(t, f.fake.RegistryHost()+"/etl/sha256:feed", job.GetTemplateUri())
	extract := job.GetPipelineSpec().AsMap()["root"].(map[string]any)["dag"].(map[string]any)["tasks"].(map[string]any)["extract"]
	assert.Equal(t, map[string]any{"enableCache": true}, extract.(map[string]any)["cachingOptions"])
}

func TestDeployer_ScheduleKeepsExisting(t *testing.T) {
	t.Parallel()

	b := testutil.NewFakeVertexBuilder(t).
		WithTag("etl", "latest", "sha256:feed", "a: 1\n").
		WithSchedules(testutil.FakeSchedule{Name: "projects/my-project/locations/europe-west1/schedules/1", DisplayName: "schedule-etl"})
	f := newDeployerFixture(t, b, true)

	_, err := f.deployer.Schedule(f.ctx, ScheduleOptions{Cron: "* * * * *", Tag: "latest", Timezone: "UTC"})
	require.NoError(t, err)
	f.fake.AssertNotCalled(t, "DELETE", "/schedules/")

	var sent aiplatformpb.Schedule
	f.fake.DecodeProto(t, "POST", "/schedules", &sent)
	assert.Equal(t, "TZ=UTC * * * * *", sent.GetCron())
}

func TestDeployer_ScheduleErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing registry", func(t *testing.T) {
		t.Parallel()
		f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t), false)
		_, err := f.deployer.Schedule(f.ctx, ScheduleOptions{Cron: "* * * * *"})
		assert.ErrorIs(t, err, ErrMissingRegistryHost)
	})

	t.Run("unknown tag", func(t *testing.T) {
		t.Parallel()
		f := newDeployerFixture(t, testutil.NewFakeVertexBuilder(t).WithTag("etl", "latest", "sha256:1", "a: 1\n"), true)
		_, err := f.deployer.Schedule(f.ctx, ScheduleOptions{Cron: "* * * * *", Tag: "nope"})
		var notFound *TagNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, []string{"latest"}, notFound.Available)
		f.fake.AssertNotCalled(t, "POST", "/schedules")
	})
}

func TestDeployer_ScheduleDeleteFailure(t *testing.T) {
	t.Parallel()

	b := testutil.NewFakeVertexBuilder(t).
		WithTag("etl", "latest", "sha256:feed", "a: 1\n").
		WithSchedules(testutil.FakeSchedule{Name: "projects/my-project/locations/europe-west1/schedules/7", DisplayName: "schedule-etl"}).
		WithFailure("/schedules/7", 403)
	f := newDeployerFixture(t, b, true)

	_, err := f.deployer.Schedule(f.ctx, ScheduleOptions{Cron: "* * * * *", Tag: "latest", DeleteLastSchedule: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deleting schedule projects/my-project/locations/europe-west1/schedules/7")
	f.fake.AssertNotCalled(t, "POST", "/schedules")
}
