// Package scaffold writes new pipelines, their example configs and the
// project layout from embedded templates.
package scaffold

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"github.com/vertex-deployer/deployer/internal/configfile"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/vertex-deployer/deployer/internal/settings"
)

//go:embed templates/*.tmpl
var TemplateFS embed.FS

// EnvTemplateFile is the dotenv file written by InitLayout.
const EnvTemplateFile = "template.env"

var (
	// ErrInvalidName is returned for pipeline names that are not lowercase
	// identifiers.
	ErrInvalidName = errors.New("pipeline name must match ^[a-z][a-z0-9_]*$")
	// ErrPipelineExists is returned by CreatePipeline when the file exists.
	ErrPipelineExists = errors.New("pipeline already exists")
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Action says what happened to a path.
type Action string

const (
	Created Action = "created"
	Skipped Action = "skipped"
)

// Result records one file or directory written or skipped.
type Result struct {
	Path   string
	Action Action
}

// ValidateName checks that name can be used as a pipeline file and block
// name.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// Render executes the embedded template name with data.
func Render(name string, data any) ([]byte, error) {
	tmpl, err := template.ParseFS(TemplateFS, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// ConfigFileName is the example config written for a new pipeline.
func ConfigFileName(t configfile.Type) string {
	return "config_test" + t.Extension()
}

// CreatePipeline writes {pipelinesRoot}/{name}.hcl and an example config of
// type t under {configsRoot}/{name}/.
func CreatePipeline(pipelinesRoot, configsRoot, name string, t configfile.Type) ([]Result, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	pipelinePath := pipeline.Path(pipelinesRoot, name)
	if _, err := os.Stat(pipelinePath); err == nil {
		return nil, fmt.Errorf("%s: %w", pipelinePath, ErrPipelineExists)
	}

	content, err := Render("pipeline.hcl.tmpl", struct{ Name string }{name})
	if err != nil {
		return nil, err
	}
	configContent, err := Render("config"+t.Extension()+".tmpl", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", configfile.ErrUnsupportedConfigType, t)
	}

	var results []Result
	r, err := writeFile(pipelinePath, content)
	if err != nil {
		return nil, err
	}
	results = append(results, r)

	r, err = writeFile(filepath.Join(configfile.Dir(configsRoot, name), ConfigFileName(t)), configContent)
	if err != nil {
		return results, err
	}
	return append(results, r), nil
}

// InitLayout creates the pipelines and configs directories and a dotenv
// template listing the Vertex variables. Existing paths are skipped.
func InitLayout(projectDir, pipelinesRoot, configsRoot string) ([]Result, error) {
	var results []Result
	for _, dir := range []string{pipelinesRoot, configsRoot} {
		dir = resolve(projectDir, dir)
		action := Created
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			action = Skipped
		} else if err := os.MkdirAll(dir, 0o755); err != nil {
			return results, fmt.Errorf("creating %s: %w", dir, err)
		}
		results = append(results, Result{Path: dir, Action: action})
	}

	env, err := Render(EnvTemplateFile+".tmpl", struct{ Keys []string }{settings.VertexEnvKeys()})
	if err != nil {
		return results, err
	}
	r, err := writeFile(filepath.Join(projectDir, EnvTemplateFile), env)
	if err != nil {
		return results, err
	}
	return append(results, r), nil
}

func resolve(projectDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}

// writeFile creates path with content unless it exists.
func writeFile(path string, content []byte) (Result, error) {
	if _, err := os.Stat(path); err == nil {
		return Result{Path: path, Action: Skipped}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return Result{}, fmt.Errorf("writing %s: %w", path, err)
	}
	return Result{Path: path, Action: Created}, nil
}
