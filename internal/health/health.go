// Package health diagnoses a deployer project: settings, directories,
// Vertex variables and Google credentials.
package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/settings"
	"github.com/vertex-deployer/deployer/internal/vertex"
)

// CheckResult is the outcome of one check. A failed optional check does not
// fail the report.
type CheckResult struct {
	Name     string
	Passed   bool
	Optional bool
	Message  string
}

// Report holds every check in the order they ran.
type Report struct {
	Checks []CheckResult
	Passed bool
}

func (r *Report) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Passed && !c.Optional {
		r.Passed = false
	}
}

// Options select what to check.
type Options struct {
	SettingsPath string
	// EnvFile is the dotenv file read for the Vertex variables; empty uses
	// the settings' deploy.env_file.
	EnvFile string
	// Credentials finds Google credentials and returns their project.
	Credentials func(ctx context.Context) (string, error)
}

// Run executes every check. Later checks that depend on the settings are
// skipped when the settings cannot be loaded.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{Passed: true}

	s, result := CheckSettings(opts.SettingsPath)
	report.add(result)
	if s == nil {
		return report
	}
	report.add(CheckPipelinesRoot(s.PipelinesRootPath))
	report.add(CheckDirectory("Configs root", s.ConfigRootPath))

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = s.Deploy.EnvFile
	}
	vs, result := CheckVertexSettings(envFile)
	report.add(result)
	if vs != nil {
		report.add(CheckRegistry(vs))
	}

	creds := opts.Credentials
	if creds == nil {
		creds = vertex.FindCredentials
	}
	report.add(CheckCredentials(ctx, creds))
	return report
}

// CheckSettings loads the settings file. A missing file is fine: the
// defaults apply.
func CheckSettings(path string) (*settings.DeployerSettings, CheckResult) {
	result := CheckResult{Name: "Settings"}
	s, err := settings.Load(path)
	if err != nil {
		result.Message = err.Error()
		return nil, result
	}
	result.Passed = true
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		result.Message = fmt.Sprintf("%s not found, using defaults", path)
	} else {
		result.Message = "loaded " + path
	}
	return s, result
}

// CheckPipelinesRoot verifies the pipelines directory and counts its
// definitions.
func CheckPipelinesRoot(root string) CheckResult {
	result := CheckResult{Name: "Pipelines root"}
	names, err := pipeline.List(root)
	if err != nil {
		result.Message = fmt.Sprintf("%s: %v", root, unwrapPathError(err))
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%d pipeline(s) in %s", len(names), root)
	return result
}

// CheckDirectory verifies that path is a directory.
func CheckDirectory(name, path string) CheckResult {
	result := CheckResult{Name: name}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		result.Message = fmt.Sprintf("%s: %v", path, unwrapPathError(err))
	case !info.IsDir():
		result.Message = path + " is not a directory"
	default:
		result.Passed = true
		result.Message = path
	}
	return result
}

// CheckVertexSettings loads the Vertex variables from envFile and the
// environment.
func CheckVertexSettings(envFile string) (*settings.VertexSettings, CheckResult) {
	result := CheckResult{Name: "Vertex settings"}
	vs, err := settings.LoadVertex(envFile)
	if err != nil {
		var missing *settings.MissingVertexSettingsError
		if errors.As(err, &missing) {
			result.Message = "missing " + strings.Join(missing.Missing, ", ")
		} else {
			result.Message = err.Error()
		}
		return nil, result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("project %s, region %s", vs.ProjectID, vs.GCPRegion)
	return vs, result
}

// CheckRegistry reports whether upload and schedule can reach Artifact
// Registry. It is optional: compile and run work without it.
func CheckRegistry(vs *settings.VertexSettings) CheckResult {
	result := CheckResult{Name: "Artifact Registry", Optional: true}
	host := vertex.RegistryHost(vs.GARLocation, vs.ProjectID, vs.GARPipelinesRepoID)
	if host == "" {
		result.Message = "GAR_LOCATION and GAR_PIPELINES_REPO_ID unset, upload and schedule are unavailable"
		return result
	}
	result.Passed = true
	result.Message = host
	return result
}

// CheckCredentials looks up Application Default Credentials.
func CheckCredentials(ctx context.Context, find func(ctx context.Context) (string, error)) CheckResult {
	result := CheckResult{Name: "Google credentials"}
	project, err := find(ctx)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Passed = true
	result.Message = "application default credentials found"
	if project != "" {
		result.Message += " for project " + project
	}
	return result
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
