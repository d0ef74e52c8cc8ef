// Package testutil provides fixtures shared by vertex-deployer tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Project is a temporary vertex-deployer project layout.
type Project struct {
	Root          string
	PipelinesRoot string
	ConfigsRoot   string
}

// NewProject creates {tmp}/vertex/pipelines and {tmp}/vertex/configs.
func NewProject(t *testing.T) *Project {
	t.Helper()

	root := t.TempDir()
	p := &Project{
		Root:          root,
		PipelinesRoot: filepath.Join(root, "vertex", "pipelines"),
		ConfigsRoot:   filepath.Join(root, "vertex", "configs"),
	}
	for _, dir := range []string{p.PipelinesRoot, p.ConfigsRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	return p
}

// AddPipeline writes {pipelines}/{name}.hcl and returns its path.
func (p *Project) AddPipeline(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.PipelinesRoot, name+".hcl")
	WriteFile(t, path, content)
	return path
}

// AddConfig writes {configs}/{pipeline}/{file} and returns its path.
func (p *Project) AddConfig(t *testing.T, pipeline, file, content string) string {
	t.Helper()
	path := filepath.Join(p.ConfigsRoot, pipeline, file)
	WriteFile(t, path, content)
	return path
}

// WriteFile writes content to a file, creating parent directories if needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads file content, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return string(content)
}

// vertexEnvVars lists the variables that point the deployer at a real project.
var vertexEnvVars = []string{
	"PROJECT_ID",
	"GCP_REGION",
	"GAR_LOCATION",
	"GAR_PIPELINES_REPO_ID",
	"VERTEX_STAGING_BUCKET_NAME",
	"VERTEX_SERVICE_ACCOUNT",
	"GOOGLE_APPLICATION_CREDENTIALS",
}

// ClearVertexEnv unsets every variable that could make a test reach a real
// Google Cloud project. Values are restored when the test ends.
func ClearVertexEnv(t *testing.T) {
	t.Helper()
	for _, key := range vertexEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
