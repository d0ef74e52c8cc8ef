package errors

import (
	"fmt"
	"strings"
	"time"
)

// MissingPipelineName is returned when a command needs pipeline names and got none.
func MissingPipelineName(command string) *CLIError {
	return NewArgumentErrorWithUsage(
		"no pipeline name given",
		fmt.Sprintf("vertex-deployer %s <pipeline-name>... [flags]", command),
		"Run 'vertex-deployer list' to see available pipelines",
		"Pass --all to target every pipeline",
	)
}

// PipelineNotFound is returned for names that have no definition under the pipelines root.
func PipelineNotFound(name string, available []string) *CLIError {
	remediation := []string{"Run 'vertex-deployer create " + name + "' to scaffold it"}
	if len(available) > 0 {
		remediation = append(remediation, "Available pipelines: "+strings.Join(available, ", "))
	}
	return NewPrerequisiteError(
		fmt.Sprintf("pipeline %q not found", name),
		remediation...,
	)
}

// PipelinesRootMissing is returned when the pipelines directory does not exist.
func PipelinesRootMissing(path string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("pipelines directory not found: %s", path),
		"Run 'vertex-deployer init' to create the project layout",
		"Or set pipelines_root_path in vertex-deployer.yml",
	)
}

// ConfigsRootMissing is returned when the configs directory does not exist.
func ConfigsRootMissing(path string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("configs directory not found: %s", path),
		"Run 'vertex-deployer init' to create the project layout",
		"Or set config_root_path in vertex-deployer.yml",
	)
}

// SettingsParseError wraps a failure to read vertex-deployer.yml.
func SettingsParseError(path string, err error) *CLIError {
	e := NewConfigError(
		fmt.Sprintf("failed to parse settings file %s: %v", path, err),
		"Check the YAML syntax",
		"Run 'vertex-deployer config list' to see the effective settings",
	)
	e.Err = err
	return e
}

// MissingVertexSettings lists the environment variables that were not provided.
func MissingVertexSettings(missing []string) *CLIError {
	return NewConfigError(
		fmt.Sprintf("missing Vertex settings: %s", strings.Join(missing, ", ")),
		"Define them in your .env file or export them",
		"Use --env-file to point to another file",
	)
}

// InvalidFlagCombination is returned when two flags conflict.
func InvalidFlagCombination(flag1, flag2, reason string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("cannot use %s with %s: %s", flag1, flag2, reason),
		fmt.Sprintf("Remove either %s or %s", flag1, flag2),
	)
}

// DeployActionRequired is returned when deploy is asked to do nothing.
func DeployActionRequired() *CLIError {
	return NewArgumentErrorWithUsage(
		"at least one of --compile, --upload, --run or --schedule is required",
		"vertex-deployer deploy <pipeline-name> --compile --upload",
	)
}

// ConfigRequired is returned when running or scheduling without a config.
func ConfigRequired(pipeline string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("pipeline %q needs a config file to run or schedule", pipeline),
		"Pass --config-filepath or --config-name",
	)
}

// DeployTimeout is returned when a deploy step exceeds its deadline.
func DeployTimeout(step string, timeout time.Duration) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("%s timed out after %s", step, timeout),
		"Retry with a longer --timeout",
	)
}

// DirectoryNotFound is returned for a missing directory.
func DirectoryNotFound(path string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("directory not found: %s", path),
		"Create it with: mkdir -p "+path,
	)
}

// FileNotWritable is returned when a file cannot be written.
func FileNotWritable(path string) *CLIError {
	return NewPrerequisiteError(
		fmt.Sprintf("cannot write file: %s", path),
		"Check the directory permissions",
	)
}

// ChecksFailed is returned by the check command when the report contains errors.
func ChecksFailed(failed int) *CLIError {
	return NewRuntimeError(
		fmt.Sprintf("%d pipeline check(s) failed", failed),
		"Fix the errors listed above and run 'vertex-deployer check' again",
	)
}
