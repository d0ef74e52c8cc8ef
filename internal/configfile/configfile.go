// Package configfile loads pipeline run configs: parameter values and input
// artifacts stored as JSON, YAML, TOML, HCL or a Python literal module.
package configfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Type is a supported config file type, named by its extension.
type Type string

const (
	JSON   Type = "json"
	YAML   Type = "yaml"
	TOML   Type = "toml"
	Python Type = "py"
	HCL    Type = "hcl"
)

// Types lists every type accepted by ParseType.
func Types() []Type {
	return []Type{JSON, YAML, TOML, Python, HCL}
}

// ParseType validates a type name such as "json" or "yml".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	case "py":
		return Python, nil
	case "hcl":
		return HCL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedConfigType, s)
}

// Extension returns the file extension for t, including the dot.
func (t Type) Extension() string {
	return "." + string(t)
}

var (
	// ErrUnsupportedConfigType is returned for files with an unknown extension.
	ErrUnsupportedConfigType = errors.New("unsupported config file type")
)

// BadConfigError reports a config file that is syntactically or
// structurally invalid. Line and Column are 0 when unknown.
type BadConfigError struct {
	Path   string
	Line   int
	Column int
	Reason string
	Err    error
}

func (e *BadConfigError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Path, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *BadConfigError) Unwrap() error {
	return e.Err
}

func badConfig(path string, err error, reason string) *BadConfigError {
	return &BadConfigError{Path: path, Reason: reason, Err: err}
}

// Loader reads configs from disk.
type Loader struct{}

// Load implements the check engine's config loader.
func (Loader) Load(path string) (params, artifacts map[string]any, err error) {
	return Load(path)
}

// Load reads a config file. JSON, YAML and TOML files hold parameter values
// only. Python and HCL files may define parameter_values, input_artifacts or
// both, and the two must not share keys.
func Load(path string) (params, artifacts map[string]any, err error) {
	typ, err := ParseType(filepath.Ext(path))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	switch typ {
	case JSON:
		params, err = loadJSON(path, data)
	case YAML:
		params, err = loadYAML(path, data)
	case TOML:
		params, err = loadTOML(path, data)
	case Python:
		params, artifacts, err = loadPython(path, data)
	case HCL:
		params, artifacts, err = loadHCL(path, data)
	}
	if err != nil {
		return nil, nil, err
	}
	if typ == Python || typ == HCL {
		if err := checkMappings(path, params, artifacts); err != nil {
			return nil, nil, err
		}
	}
	return params, artifacts, nil
}

func checkMappings(path string, params, artifacts map[string]any) error {
	if params == nil && artifacts == nil {
		return badConfig(path, nil, "config file must define parameter_values and/or input_artifacts")
	}
	var common []string
	for k := range params {
		if _, ok := artifacts[k]; ok {
			common = append(common, k)
		}
	}
	if len(common) > 0 {
		sort.Strings(common)
		return badConfig(path, nil, fmt.Sprintf(
			"parameter_values and input_artifacts must not share keys, common keys: %s", strings.Join(common, ", ")))
	}
	return nil
}

// Merge returns the union of parameter values and input artifacts.
func Merge(params, artifacts map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(artifacts))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range artifacts {
		out[k] = v
	}
	return out
}

// IsSupported reports whether path has a supported config extension.
func IsSupported(path string) bool {
	_, err := ParseType(filepath.Ext(path))
	return err == nil && filepath.Ext(path) != ""
}

// List returns every supported config file directly under dir, sorted by
// name. A missing directory yields no files.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing configs in %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Dir returns the config directory of a pipeline.
func Dir(configsRoot, pipeline string) string {
	return filepath.Join(configsRoot, pipeline)
}
