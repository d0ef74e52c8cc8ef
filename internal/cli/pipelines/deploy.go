package pipelines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertex-deployer/deployer/internal/check"
	"github.com/vertex-deployer/deployer/internal/cli/shared"
	"github.com/vertex-deployer/deployer/internal/configfile"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	clierrors "github.com/vertex-deployer/deployer/internal/errors"
	"github.com/vertex-deployer/deployer/internal/history"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/progress"
	"github.com/vertex-deployer/deployer/internal/settings"
	"github.com/vertex-deployer/deployer/internal/vertex"
)

var (
	// newHTTPClient builds the authorized client for remote steps.
	newHTTPClient = vertex.NewHTTPClient
	// configureDeployer adjusts a deployer before its steps run.
	configureDeployer = func(*vertex.Deployer) {}
	// historyDir receives the deploy history, relative to the working
	// directory.
	historyDir = history.DefaultDir
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <pipeline-name>",
		Short: "Compile, upload, run and schedule a pipeline",
		Long: `Deploy a pipeline to Vertex AI.

Steps run in order: compile, upload, run, schedule. At least one is
required. Before deploying, the pipeline and its config are checked unless
--skip-validation is given.

Google Cloud resources come from the environment, optionally loaded from
--env-file: PROJECT_ID, GCP_REGION, VERTEX_STAGING_BUCKET_NAME,
VERTEX_SERVICE_ACCOUNT, and GAR_LOCATION with GAR_PIPELINES_REPO_ID for the
Artifact Registry steps.`,
		Example: `  # Compile, upload with tags and run with a config
  vertex-deployer deploy dummy_pipeline --compile --upload --run \
    --env-file example.env --tags my-tag --config-filepath vertex/configs/dummy_pipeline/test.json

  # Replace the current schedule
  vertex-deployer deploy dummy_pipeline --schedule --delete-last-schedule \
    --cron "0 2 * * *" --tags latest --config-name test.json`,
		Args:              cobra.ExactArgs(1),
		RunE:              runDeploy,
		ValidArgsFunction: completePipelineNames,
	}
	cmd.GroupID = shared.GroupPipelines

	f := cmd.Flags()
	f.StringP("env-file", "e", "", "Dotenv file with the Vertex settings")
	f.BoolP("compile", "c", false, "Compile the pipeline")
	f.BoolP("upload", "u", false, "Upload the compiled pipeline to Artifact Registry")
	f.BoolP("run", "r", false, "Run the pipeline")
	f.BoolP("schedule", "s", false, "Schedule the pipeline")
	f.String("cron", "", "Cron expression of the schedule")
	f.Bool("delete-last-schedule", false, "Delete the most recent schedule of the pipeline first")
	f.String("scheduler-timezone", "", "Time zone of the cron expression (default from settings)")
	f.StringSlice("tags", nil, "Tags of the uploaded pipeline; the first one is used to run and schedule")
	f.StringP("config-filepath", "f", "", "Config file to run or schedule with")
	f.String("config-name", "", "Config file name in the pipeline's config directory")
	f.Bool("enable-caching", false, "Override the caching option of every task")
	f.String("experiment-name", "", "Experiment of the run (default {pipeline}-experiment)")
	f.String("run-name", "", "Prefix of the run name (default the pipeline name)")
	f.String("local-package-path", "", "Directory of compiled pipelines")
	f.Bool("skip-validation", false, "Deploy without checking the pipeline and its config")
	f.Duration("timeout", 0, "Abort when a step takes longer than this")
	return cmd
}

type deployOptions struct {
	pipeline           string
	envFile            string
	compile            bool
	upload             bool
	run                bool
	schedule           bool
	cron               string
	deleteLastSchedule bool
	timezone           string
	tags               []string
	configPath         string
	enableCaching      *bool
	experimentName     string
	runName            string
	localPackagePath   string
	skipValidation     bool
	timeout            time.Duration
}

func (o deployOptions) remote() bool {
	return o.upload || o.run || o.schedule
}

func (o deployOptions) tag() string {
	if len(o.tags) == 0 {
		return ""
	}
	return o.tags[0]
}

func parseDeployOptions(cmd *cobra.Command, s *settings.DeployerSettings, name string) (deployOptions, error) {
	ds := s.Deploy
	o := deployOptions{
		pipeline:           name,
		envFile:            shared.StringFlag(cmd, "env-file", ds.EnvFile),
		compile:            shared.BoolFlag(cmd, "compile", ds.Compile),
		upload:             shared.BoolFlag(cmd, "upload", ds.Upload),
		run:                shared.BoolFlag(cmd, "run", ds.Run),
		schedule:           shared.BoolFlag(cmd, "schedule", ds.Schedule),
		cron:               normalizeCron(shared.StringFlag(cmd, "cron", ds.Cron)),
		deleteLastSchedule: shared.BoolFlag(cmd, "delete-last-schedule", ds.DeleteLastSchedule),
		timezone:           shared.StringFlag(cmd, "scheduler-timezone", ds.SchedulerTimezone),
		tags:               shared.StringSliceFlag(cmd, "tags", ds.Tags),
		experimentName:     shared.StringFlag(cmd, "experiment-name", ds.ExperimentName),
		runName:            shared.StringFlag(cmd, "run-name", ""),
		localPackagePath:   shared.StringFlag(cmd, "local-package-path", ds.LocalPackagePath),
		skipValidation:     shared.BoolFlag(cmd, "skip-validation", ds.SkipValidation),
	}
	o.timeout, _ = cmd.Flags().GetDuration("timeout")

	if cmd.Flags().Changed("enable-caching") || ds.EnableCaching {
		v := shared.BoolFlag(cmd, "enable-caching", ds.EnableCaching)
		o.enableCaching = &v
	}

	if !o.compile && !o.remote() {
		return o, clierrors.DeployActionRequired()
	}

	configFilepath := shared.StringFlag(cmd, "config-filepath", ds.ConfigFilepath)
	configName := shared.StringFlag(cmd, "config-name", ds.ConfigName)
	switch {
	case configFilepath != "" && configName != "":
		return o, clierrors.InvalidFlagCombination("--config-filepath", "--config-name", "only one config can be used")
	case configName != "":
		o.configPath = filepath.Join(configfile.Dir(s.ConfigRootPath, name), configName)
	default:
		o.configPath = configFilepath
	}
	if (o.run || o.schedule) && o.configPath == "" {
		return o, clierrors.ConfigRequired(name)
	}
	if o.schedule && o.cron == "" {
		return o, clierrors.NewArgumentErrorWithUsage("--cron is required with --schedule",
			`vertex-deployer deploy <pipeline-name> --schedule --cron "0 2 * * *"`)
	}
	if o.upload && len(o.tags) == 0 {
		return o, clierrors.NewArgumentError("--tags is required with --upload",
			"Pass --tags latest or set deploy.tags in "+settings.FileName)
	}
	return o, nil
}

// normalizeCron accepts a cron expression written without spaces, with
// fields separated by "_" or "-", for use in environment variables.
func normalizeCron(cron string) string {
	cron = strings.TrimSpace(cron)
	if cron == "" || strings.Contains(cron, " ") {
		return cron
	}
	if strings.Contains(cron, "_") {
		return strings.ReplaceAll(cron, "_", " ")
	}
	return strings.ReplaceAll(cron, "-", " ")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := shared.Settings(ctx)

	names, err := resolvePipelines(s, "deploy", args, false)
	if err != nil {
		return err
	}
	opts, err := parseDeployOptions(cmd, s, names[0])
	if err != nil {
		return err
	}

	if !opts.skipValidation {
		if err := validateBeforeDeploy(cmd, s, opts); err != nil {
			return err
		}
	}

	p, err := pipeline.Load(ctx, s.PipelinesRootPath, opts.pipeline)
	if err != nil {
		return clierrors.Wrap(err, clierrors.Configuration, "Run 'vertex-deployer check "+opts.pipeline+"' for details")
	}

	var (
		vs     settings.VertexSettings
		client *http.Client
	)
	if opts.remote() {
		loaded, err := settings.LoadVertex(opts.envFile)
		if err != nil {
			var missing *settings.MissingVertexSettingsError
			if errors.As(err, &missing) {
				return clierrors.MissingVertexSettings(missing.Missing)
			}
			return clierrors.Wrap(err, clierrors.Configuration)
		}
		vs = *loaded
		if client, err = newHTTPClient(ctx); err != nil {
			return clierrors.Wrap(err, clierrors.Prerequisite,
				"Run 'gcloud auth application-default login'",
				"Or set GOOGLE_APPLICATION_CREDENTIALS to a service account key file")
		}
	}

	d := vertex.NewDeployer(client, p, vs, opts.localPackagePath)
	d.RunName = opts.runName
	configureDeployer(d)
	defer d.Close()

	var params, artifacts map[string]any
	if opts.configPath != "" {
		if params, artifacts, err = configfile.Load(opts.configPath); err != nil {
			return clierrors.Wrap(err, clierrors.Configuration)
		}
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	var rec deployRecord
	steps := deploySteps(d, opts, params, artifacts, &rec)
	id := startHistory(ctx, opts, steps)
	err = runSteps(ctx, cmd, opts, steps)
	finishHistory(ctx, id, rec, err)
	return err
}

// deployRecord collects what the remote steps created.
type deployRecord struct {
	jobName  string
	schedule string
}

func startHistory(ctx context.Context, opts deployOptions, steps []deployStep) string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	entry := history.Entry{Pipeline: opts.pipeline, Steps: names, ConfigPath: opts.configPath}
	if opts.remote() {
		entry.Tags = opts.tags
	}
	id, err := history.NewWriter(historyDir, history.DefaultMaxEntries).Start(entry)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Could not record the deploy in the history.", "error", err)
		return ""
	}
	return id
}

func finishHistory(ctx context.Context, id string, rec deployRecord, err error) {
	if id == "" {
		return
	}
	out := history.Outcome{JobName: rec.jobName, Schedule: rec.schedule, Err: err}
	if err := history.NewWriter(historyDir, history.DefaultMaxEntries).Finish(id, out); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not record the deploy in the history.", "error", err)
	}
}

func validateBeforeDeploy(cmd *cobra.Command, s *settings.DeployerSettings, opts deployOptions) error {
	req := check.Request{Pipeline: opts.pipeline}
	if opts.configPath != "" {
		req.ConfigPaths = []string{opts.configPath}
	}
	report, err := check.New(s.PipelinesRootPath, s.ConfigRootPath).Validate(cmd.Context(), []check.Request{req})
	if err != nil {
		return err
	}
	if !report.HasErrors() {
		ctxlog.FromContext(cmd.Context()).Debug("Pipeline checked.", "pipeline", opts.pipeline)
		return nil
	}
	renderReport(cmd.ErrOrStderr(), report, false)
	clierrors.FprintError(cmd.ErrOrStderr(), clierrors.ChecksFailed(failedPipelines(report)))
	return shared.NewExitError(shared.ExitChecksFailed)
}

type deployStep struct {
	name string
	run  func(ctx context.Context, out *stepOutput) error
}

type stepOutput struct {
	lines []string
}

func (o *stepOutput) printf(format string, args ...any) {
	o.lines = append(o.lines, fmt.Sprintf(format, args...))
}

func deploySteps(d *vertex.Deployer, opts deployOptions, params, artifacts map[string]any, rec *deployRecord) []deployStep {
	var steps []deployStep
	if opts.compile {
		steps = append(steps, deployStep{"compile", func(ctx context.Context, out *stepOutput) error {
			if err := d.Compile(ctx); err != nil {
				return err
			}
			out.printf("Compiled to %s", d.SpecPath())
			return nil
		}})
	}
	if opts.upload {
		steps = append(steps, deployStep{"upload", func(ctx context.Context, out *stepOutput) error {
			if err := d.UploadToRegistry(ctx, opts.tags); err != nil {
				return err
			}
			out.printf("Uploaded with tags %s", strings.Join(opts.tags, ", "))
			return nil
		}})
	}
	if opts.run {
		steps = append(steps, deployStep{"run", func(ctx context.Context, out *stepOutput) error {
			job, err := d.Run(ctx, vertex.RunOptions{
				EnableCaching:   opts.enableCaching,
				ParameterValues: params,
				InputArtifacts:  artifacts,
				ExperimentName:  opts.experimentName,
				Tag:             opts.tag(),
			})
			if err != nil {
				return err
			}
			rec.jobName = job.GetName()
			out.printf("Submitted %s", job.GetName())
			out.printf("Console: %s", consoleURL(d.Settings, job.GetName()))
			return nil
		}})
	}
	if opts.schedule {
		steps = append(steps, deployStep{"schedule", func(ctx context.Context, out *stepOutput) error {
			sched, err := d.Schedule(ctx, vertex.ScheduleOptions{
				Cron:               opts.cron,
				EnableCaching:      opts.enableCaching,
				ParameterValues:    params,
				InputArtifacts:     artifacts,
				Tag:                opts.tag(),
				DeleteLastSchedule: opts.deleteLastSchedule,
				Timezone:           opts.timezone,
			})
			if err != nil {
				return err
			}
			rec.schedule = sched.GetName()
			out.printf("Created schedule %s (%s)", sched.GetName(), sched.GetCron())
			return nil
		}})
	}
	return steps
}

func runSteps(ctx context.Context, cmd *cobra.Command, opts deployOptions, steps []deployStep) error {
	display := shared.NewDisplay(cmd)
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}

	for i, step := range progress.Steps(names...) {
		if err := display.Start(step); err != nil {
			return err
		}
		var out stepOutput
		if err := steps[i].run(ctx, &out); err != nil {
			display.Fail(step, err)
			return stepError(step.Name, opts.timeout, err)
		}
		display.Done(step)
		for _, line := range out.lines {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", line)
		}
	}
	return nil
}

func stepError(step string, timeout time.Duration, err error) error {
	var tagErr *vertex.TagNotFoundError
	switch {
	case errors.Is(err, context.DeadlineExceeded) && timeout > 0:
		timeoutErr := clierrors.DeployTimeout(step, timeout)
		timeoutErr.Err = err
		return timeoutErr
	case errors.Is(err, vertex.ErrMissingRegistryHost):
		return clierrors.Wrap(err, clierrors.Configuration,
			"Set GAR_LOCATION and GAR_PIPELINES_REPO_ID in your env file")
	case errors.As(err, &tagErr):
		return clierrors.Wrap(err, clierrors.Argument, "Pass one of the available tags with --tags")
	}
	return clierrors.WrapWithMessage(err, clierrors.Runtime, step+" failed")
}

// consoleURL links a pipeline job in the Google Cloud console.
func consoleURL(vs settings.VertexSettings, jobName string) string {
	jobID := jobName[strings.LastIndex(jobName, "/")+1:]
	return fmt.Sprintf("https://console.cloud.google.com/vertex-ai/locations/%s/pipelines/runs/%s?project=%s",
		vs.GCPRegion, jobID, vs.ProjectID)
}
