// Package check validates pipelines and their run configs before deployment.
//
// For each pipeline the checker imports the definition, compiles it into a
// scratch directory, derives a parameter schema and validates every config
// file against it. Problems are collected into a Report rather than returned
// as errors, so a broken config or pipeline never hides its siblings.
package check

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vertex-deployer/deployer/internal/configfile"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/schema"
)

// DefaultScratchDir holds compiled specs while a batch runs.
const DefaultScratchDir = ".vertex-deployer-temp"

// PipelineLoader imports a pipeline definition by name.
type PipelineLoader interface {
	Load(ctx context.Context, root, name string) (*pipeline.Pipeline, error)
}

// PipelineCompiler writes the compiled spec of a pipeline.
type PipelineCompiler interface {
	Compile(ctx context.Context, p *pipeline.Pipeline, outputPath string) error
}

// ConfigLoader reads one config file.
type ConfigLoader interface {
	Load(path string) (params, artifacts map[string]any, err error)
}

// Request names a pipeline and the config files to check it against. A nil
// ConfigPaths discovers every supported file under the pipeline's config
// directory; an empty non-nil slice checks no configs.
type Request struct {
	Pipeline    string
	ConfigPaths []string
}

// Checker runs pipeline checks.
type Checker struct {
	PipelinesRoot string
	ConfigsRoot   string
	// ScratchDir receives compiled specs. It is created before a batch and
	// removed after it.
	ScratchDir string

	Pipelines PipelineLoader
	Compiler  PipelineCompiler
	Configs   ConfigLoader
}

// New returns a Checker wired to the HCL pipeline loader, the spec compiler
// and the config file loader.
func New(pipelinesRoot, configsRoot string) *Checker {
	return &Checker{
		PipelinesRoot: pipelinesRoot,
		ConfigsRoot:   configsRoot,
		ScratchDir:    DefaultScratchDir,
		Pipelines:     pipeline.Loader{},
		Compiler:      pipeline.Compiler{},
		Configs:       configfile.Loader{},
	}
}

// Validate checks every request in order. The scratch directory is created
// once up front and removed on every exit path, including a panic raised by
// a collaborator. Compiler logging below warning level is silenced for the
// duration of the batch.
//
// Pipeline and config problems are recorded in the report. An error is
// returned only for misuse, such as a loader returning no pipeline.
func (c *Checker) Validate(ctx context.Context, reqs []Request) (*Report, error) {
	release, err := c.acquireScratch()
	if err != nil {
		return nil, err
	}
	defer release()

	logger := ctxlog.FromContext(ctx)
	ctx = ctxlog.Quiet(ctx, slog.LevelWarn)

	report := &Report{Outcomes: make([]Outcome, 0, len(reqs))}
	for _, req := range reqs {
		logger.Debug("Checking pipeline.", "pipeline", req.Pipeline)
		out, err := c.ValidatePipeline(ctx, req)
		if err != nil {
			return nil, err
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report, nil
}

func (c *Checker) scratchDir() string {
	if c.ScratchDir == "" {
		return DefaultScratchDir
	}
	return c.ScratchDir
}

func (c *Checker) acquireScratch() (func(), error) {
	dir := c.scratchDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return func() {
		_ = os.RemoveAll(dir)
	}, nil
}

// ValidatePipeline imports, compiles and type-checks one pipeline against its
// configs. Each stage runs only if the previous one succeeded. The scratch
// directory must exist; Validate manages it.
func (c *Checker) ValidatePipeline(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Pipeline: req.Pipeline}

	p, err := c.Pipelines.Load(ctx, c.PipelinesRoot, req.Pipeline)
	if err != nil {
		out.Error = importIssue(err)
		return out, nil
	}
	if p == nil {
		return out, fmt.Errorf("checking pipeline %q: %w", req.Pipeline, schema.ErrNilPipeline)
	}

	specPath := filepath.Join(c.scratchDir(), req.Pipeline+".yaml")
	if err := c.Compiler.Compile(ctx, p, specPath); err != nil {
		out.Error = &Issue{Kind: PipelineCompileError, Message: describe(err)}
		return out, nil
	}

	base, err := schema.FromPipeline(p, schema.WithTypeConverter(schema.ArtifactsAsStrings))
	if err != nil {
		return out, fmt.Errorf("checking pipeline %q: %w", req.Pipeline, err)
	}
	strict, err := schema.FromPipeline(p,
		schema.WithTypeConverter(schema.ArtifactsAsStrings), schema.WithDefaultsRequired())
	if err != nil {
		return out, fmt.Errorf("checking pipeline %q: %w", req.Pipeline, err)
	}

	paths := req.ConfigPaths
	if paths == nil {
		dir := configfile.Dir(c.ConfigsRoot, req.Pipeline)
		if paths, err = configfile.List(dir); err != nil {
			out.Configs = append(out.Configs, ConfigOutcome{
				Name:   filepath.Base(dir),
				Path:   dir,
				Errors: []Issue{{Kind: BadConfigError, Message: err.Error()}},
			})
			return out, nil
		}
	}
	if len(paths) == 0 {
		out.Warnings = append(out.Warnings, Issue{
			Kind:    NoConfigWarning,
			Message: fmt.Sprintf("no config files found in %s", configfile.Dir(c.ConfigsRoot, req.Pipeline)),
		})
		return out, nil
	}
	for _, path := range paths {
		out.Configs = append(out.Configs, c.validateConfig(path, base, strict))
	}
	return out, nil
}

func (c *Checker) validateConfig(path string, base, strict *schema.Schema) ConfigOutcome {
	co := ConfigOutcome{Name: filepath.Base(path), Path: path}

	params, artifacts, err := c.Configs.Load(path)
	if err != nil {
		var bad *configfile.BadConfigError
		issue := Issue{Kind: BadConfigError, Message: err.Error()}
		if errors.As(err, &bad) {
			issue.Message = bad.Reason
			if bad.Line > 0 {
				issue.Message = fmt.Sprintf("line %d, column %d: %s", bad.Line, bad.Column, bad.Reason)
			}
		}
		co.Errors = append(co.Errors, issue)
		return co
	}
	values := configfile.Merge(params, artifacts)

	for _, v := range base.Validate(values) {
		co.Errors = append(co.Errors, Issue{Kind: SchemaViolationError, Field: v.Path, Message: v.Message})
	}

	// Fields that only the strict schema reports missing fell back to their
	// declared default.
	for _, v := range strict.Validate(values) {
		if v.Kind != schema.Missing || v.Path != v.Field {
			continue
		}
		f, ok := base.Field(v.Field)
		if !ok || !f.HasDefault() {
			continue
		}
		val, err := pipeline.GoValue(*f.Default)
		if err != nil {
			continue
		}
		co.Warnings = append(co.Warnings, Issue{
			Kind:    DefaultValueWarning,
			Field:   f.Name,
			Message: "default value used: " + formatValue(val),
			Value:   val,
		})
	}
	return co
}

func importIssue(err error) *Issue {
	issue := &Issue{Kind: PipelineImportError, Message: describe(err)}
	var importErr *pipeline.ImportError
	if errors.As(err, &importErr) {
		issue.Trace = importErr.Trace()
	}
	return issue
}

// describe prefixes an error message with the name of its error class.
func describe(err error) string {
	var (
		importErr  *pipeline.ImportError
		compileErr *pipeline.CompileError
	)
	switch {
	case errors.As(err, &importErr):
		return "ImportError: " + err.Error()
	case errors.As(err, &compileErr):
		return "CompileError: " + err.Error()
	case errors.Is(err, pipeline.ErrModuleNotFound):
		return "ModuleNotFound: " + err.Error()
	case errors.Is(err, pipeline.ErrPipelineNotFound):
		return "PipelineNotFound: " + err.Error()
	}
	return err.Error()
}

func formatValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
