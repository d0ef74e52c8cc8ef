package vertex

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/settings"
)

// ValidRunName matches the job IDs accepted by Vertex AI.
var ValidRunName = regexp.MustCompile(`^[a-z][-a-z0-9]{0,127}$`)

// PipelineCompiler writes a compiled pipeline spec.
type PipelineCompiler interface {
	Compile(ctx context.Context, p *pipeline.Pipeline, outputPath string) error
}

// Deployer compiles, uploads, runs and schedules one pipeline.
type Deployer struct {
	Pipeline         *pipeline.Pipeline
	Settings         settings.VertexSettings
	LocalPackagePath string
	// RunName overrides the pipeline name as the run name prefix.
	RunName string

	Compiler PipelineCompiler
	// HTTP carries every Vertex AI and registry request.
	HTTP *http.Client
	// Endpoint overrides the regional Vertex AI endpoint.
	Endpoint string
	Registry *Registry
	Now      func() time.Time

	api          *Client
	templateName string
	versionName  string
}

// NewDeployer wires a Deployer to the Vertex AI and Artifact Registry APIs
// through httpClient.
func NewDeployer(httpClient *http.Client, p *pipeline.Pipeline, vs settings.VertexSettings, localPackagePath string) *Deployer {
	return &Deployer{
		Pipeline:         p,
		Settings:         vs,
		LocalPackagePath: localPackagePath,
		Compiler:         pipeline.Compiler{},
		HTTP:             httpClient,
		Registry: &Registry{
			HTTP: httpClient,
			Host: RegistryHost(vs.GARLocation, vs.ProjectID, vs.GARPipelinesRepoID),
		},
		Now: time.Now,
	}
}

// client connects to Vertex AI on first use.
func (d *Deployer) client(ctx context.Context) (*Client, error) {
	if d.api != nil {
		return d.api, nil
	}
	api, err := NewClient(ctx, d.HTTP, d.Settings.ProjectID, d.Settings.GCPRegion, d.Endpoint)
	if err != nil {
		return nil, err
	}
	d.api = api
	return api, nil
}

// Close releases the Vertex AI connections, if any were made.
func (d *Deployer) Close() error {
	if d.api == nil {
		return nil
	}
	err := d.api.Close()
	d.api = nil
	return err
}

func (d *Deployer) name() string {
	return d.Pipeline.Name
}

// SpecPath is where Compile writes the pipeline spec.
func (d *Deployer) SpecPath() string {
	return filepath.Join(d.LocalPackagePath, d.name()+".yaml")
}

// StagingURI is the pipeline root of every run.
func (d *Deployer) StagingURI() string {
	return d.Settings.StagingBucketURI() + "/root"
}

// Compile writes the pipeline spec under LocalPackagePath.
func (d *Deployer) Compile(ctx context.Context) error {
	if err := os.MkdirAll(d.LocalPackagePath, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", d.LocalPackagePath, err)
	}
	if err := d.Compiler.Compile(ctx, d.Pipeline, d.SpecPath()); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Pipeline compiled.", "pipeline", d.name(), "path", d.SpecPath())
	return nil
}

// UploadToRegistry pushes the compiled spec to Artifact Registry. Later runs
// use the uploaded version.
func (d *Deployer) UploadToRegistry(ctx context.Context, tags []string) error {
	if d.Registry == nil || d.Registry.Host == "" {
		return ErrMissingRegistryHost
	}
	pkg, version, err := d.Registry.Upload(ctx, d.SpecPath(), tags)
	if err != nil {
		return err
	}
	d.templateName, d.versionName = pkg, version
	ctxlog.FromContext(ctx).Info("Pipeline uploaded.",
		"pipeline", d.name(), "host", d.Registry.Host, "tags", strings.Join(tags, ","))
	return nil
}

// TemplatePath returns the template a run uses: the uploaded version, then
// the registry tag, then the local spec.
func (d *Deployer) TemplatePath(ctx context.Context, tag string) string {
	if host := d.registryHost(); host != "" {
		if d.templateName != "" && d.versionName != "" {
			return strings.Join([]string{host, d.templateName, d.versionName}, "/")
		}
		if tag != "" {
			return strings.Join([]string{host, PackageName(d.name()), tag}, "/")
		}
		ctxlog.FromContext(ctx).Warn("No tag or uploaded version; falling back to the local package.")
	}
	return d.SpecPath()
}

func (d *Deployer) registryHost() string {
	if d.Registry == nil {
		return ""
	}
	return d.Registry.Host
}

// ExperimentName returns name with underscores replaced, or
// {pipeline}-experiment when name is empty.
func ExperimentName(pipelineName, name string) string {
	if name == "" {
		name = pipelineName + "-experiment"
	}
	return strings.ReplaceAll(name, "_", "-")
}

// RunName builds a unique job ID: {prefix}[-{tag}]-{YYYYMMDD-HHMMSS}. The
// prefix is runName when set, the pipeline name otherwise.
func RunName(pipelineName, runName, tag string, now time.Time) (string, error) {
	name := runName
	if name == "" {
		name = pipelineName
		if tag != "" {
			name += "-" + tag
		}
	}
	name = strings.ReplaceAll(name, "_", "-") + "-" + now.Format("20060102-150405")
	if !ValidRunName.MatchString(name) {
		return "", fmt.Errorf("run name %s does not match the pattern %s", name, ValidRunName)
	}
	return name, nil
}

// RunOptions configure a pipeline run.
type RunOptions struct {
	// EnableCaching overrides every task's caching option when set.
	EnableCaching   *bool
	ParameterValues map[string]any
	InputArtifacts  map[string]any
	ExperimentName  string
	Tag             string
}

// Run submits a pipeline job and links it to its experiment.
func (d *Deployer) Run(ctx context.Context, opts RunOptions) (*aiplatformpb.PipelineJob, error) {
	logger := ctxlog.FromContext(ctx)
	api, err := d.client(ctx)
	if err != nil {
		return nil, err
	}

	experiment := ExperimentName(d.name(), opts.ExperimentName)
	jobID, err := RunName(d.name(), d.RunName, opts.Tag, d.now())
	if err != nil {
		return nil, err
	}
	templatePath := d.TemplatePath(ctx, opts.Tag)
	logger.Debug("Running pipeline.", "pipeline", d.name(), "template", templatePath,
		"experiment", experiment, "run", jobID)

	job, err := d.buildJob(ctx, templatePath, opts.EnableCaching, opts.ParameterValues, opts.InputArtifacts)
	if err != nil {
		return nil, err
	}
	created, err := api.CreatePipelineJob(ctx, jobID, job)
	if err != nil {
		return nil, err
	}
	logger.Info("Pipeline run submitted.", "pipeline", d.name(), "job", created.GetName())

	experimentName, err := api.EnsureExperiment(ctx, experiment)
	if err == nil {
		err = api.AddToExperiment(ctx, experimentName, created)
	}
	if err != nil {
		logger.Warn("Could not link the job to its experiment. The job runs anyway; link it manually.",
			"job", created.GetName(), "experiment", experiment, "error", err)
	}
	return created, nil
}

// ScheduleOptions configure a recurring run.
type ScheduleOptions struct {
	Cron               string
	EnableCaching      *bool
	ParameterValues    map[string]any
	InputArtifacts     map[string]any
	Tag                string
	DeleteLastSchedule bool
	Timezone           string
}

// ScheduleDisplayName is the display name of a pipeline's schedules.
func ScheduleDisplayName(pipelineName string) string {
	return "schedule-" + pipelineName
}

// Schedule creates a schedule for the pipeline, optionally deleting the most
// recent existing one. Schedules always use a registry template.
func (d *Deployer) Schedule(ctx context.Context, opts ScheduleOptions) (*aiplatformpb.Schedule, error) {
	if d.registryHost() == "" {
		return nil, ErrMissingRegistryHost
	}
	logger := ctxlog.FromContext(ctx)
	api, err := d.client(ctx)
	if err != nil {
		return nil, err
	}

	displayName := ScheduleDisplayName(d.name())
	existing, err := api.ListSchedules(ctx, displayName)
	if err != nil {
		return nil, err
	}
	logger.Info("Found existing schedules.", "pipeline", d.name(), "count", len(existing))
	if len(existing) > 0 && opts.DeleteLastSchedule {
		logger.Info("Deleting schedule.", "schedule", existing[0].GetName(), "cron", existing[0].GetCron())
		if err := api.DeleteSchedule(ctx, existing[0].GetName()); err != nil {
			return nil, err
		}
	}

	version := ""
	if opts.Tag != "" {
		if version, err = d.Registry.ResolveTag(ctx, PackageName(d.name()), opts.Tag); err != nil {
			return nil, err
		}
	}
	templatePath := d.TemplatePath(ctx, version)

	job, err := d.buildJob(ctx, templatePath, opts.EnableCaching, opts.ParameterValues, opts.InputArtifacts)
	if err != nil {
		return nil, err
	}

	timezone := opts.Timezone
	if timezone == "" {
		timezone = settings.DefaultSchedulerTimezone
	}
	cron := fmt.Sprintf("TZ=%s %s", timezone, opts.Cron)
	logger.Info("Creating schedule.", "pipeline", d.name(), "cron", cron, "template", templatePath)
	return api.CreateSchedule(ctx, displayName, cron, job)
}

func (d *Deployer) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Deployer) buildJob(ctx context.Context, templatePath string, enableCaching *bool, params, artifacts map[string]any) (*aiplatformpb.PipelineJob, error) {
	var (
		content []byte
		err     error
	)
	remote := strings.HasPrefix(templatePath, "https://")
	if remote {
		content, err = d.Registry.Download(ctx, templatePath)
	} else {
		content, err = os.ReadFile(templatePath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading pipeline template: %w", err)
	}

	var spec map[string]any
	if err := yaml.Unmarshal(content, &spec); err != nil {
		return nil, fmt.Errorf("parsing pipeline template %s: %w", templatePath, err)
	}
	if enableCaching != nil {
		setCaching(spec, *enableCaching)
	}

	pipelineSpec, err := structpb.NewStruct(protoSafe(spec).(map[string]any))
	if err != nil {
		return nil, fmt.Errorf("converting pipeline template %s: %w", templatePath, err)
	}
	runtime := &aiplatformpb.PipelineJob_RuntimeConfig{GcsOutputDirectory: d.StagingURI()}
	if len(params) > 0 {
		runtime.ParameterValues = make(map[string]*structpb.Value, len(params))
		for k, v := range params {
			if runtime.ParameterValues[k], err = structpb.NewValue(protoSafe(v)); err != nil {
				return nil, fmt.Errorf("parameter %s: %w", k, err)
			}
		}
	}
	if len(artifacts) > 0 {
		runtime.InputArtifacts = make(map[string]*aiplatformpb.PipelineJob_RuntimeConfig_InputArtifact, len(artifacts))
		for k, v := range artifacts {
			runtime.InputArtifacts[k] = &aiplatformpb.PipelineJob_RuntimeConfig_InputArtifact{
				Kind: &aiplatformpb.PipelineJob_RuntimeConfig_InputArtifact_ArtifactId{ArtifactId: fmt.Sprint(v)},
			}
		}
	}

	job := &aiplatformpb.PipelineJob{
		DisplayName:    d.name(),
		PipelineSpec:   pipelineSpec,
		ServiceAccount: d.Settings.ServiceAccount,
		RuntimeConfig:  runtime,
	}
	if remote {
		job.TemplateUri = templatePath
	}
	return job, nil
}

// protoSafe rewrites config values into the types structpb accepts: big
// integers become floats and times become RFC 3339 strings.
func protoSafe(v any) any {
	switch x := v.(type) {
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case time.Time:
		return x.Format(time.RFC3339)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = protoSafe(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = protoSafe(e)
		}
		return out
	}
	return v
}

// setCaching overrides the caching option of every root task.
func setCaching(spec map[string]any, enabled bool) {
	root, _ := spec["root"].(map[string]any)
	dag, _ := root["dag"].(map[string]any)
	tasks, _ := dag["tasks"].(map[string]any)
	for _, t := range tasks {
		task, ok := t.(map[string]any)
		if !ok {
			continue
		}
		task["cachingOptions"] = map[string]any{"enableCache": enabled}
	}
}
