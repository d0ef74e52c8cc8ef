package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/hclfuncs"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrModuleNotFound is returned when no definition file exists for a pipeline name.
	ErrModuleNotFound = errors.New("pipeline module not found")
	// ErrPipelineNotFound is returned when the file has no pipeline block named after it.
	ErrPipelineNotFound = errors.New("pipeline object not found")
)

// ImportError reports HCL diagnostics raised while reading a pipeline file.
type ImportError struct {
	Pipeline string
	Path     string
	Diags    hcl.Diagnostics
	files    map[string]*hcl.File
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("importing pipeline %q: %s", e.Pipeline, e.Diags.Error())
}

func (e *ImportError) Unwrap() error {
	return e.Diags
}

// Trace renders the diagnostics located in the pipeline's own file, with
// source snippets. Diagnostics from other sources are left out.
func (e *ImportError) Trace() string {
	var own hcl.Diagnostics
	for _, d := range e.Diags {
		if d.Subject != nil && d.Subject.Filename == e.Path {
			own = append(own, d)
		}
	}
	if len(own) == 0 {
		return ""
	}
	var buf bytes.Buffer
	wr := hcl.NewDiagnosticTextWriter(&buf, e.files, 0, false)
	if err := wr.WriteDiagnostics(own); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

type fileSchema struct {
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type pipelineBlock struct {
	Name        string            `hcl:"name,label"`
	DisplayName string            `hcl:"display_name,optional"`
	Description string            `hcl:"description,optional"`
	Params      []*paramBlock     `hcl:"param,block"`
	Components  []*componentBlock `hcl:"component,block"`
}

type paramBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type componentBlock struct {
	Name      string            `hcl:"name,label"`
	Image     string            `hcl:"image,optional"`
	Command   []string          `hcl:"command,optional"`
	Args      []string          `hcl:"args,optional"`
	Env       map[string]string `hcl:"env,optional"`
	Inputs    hcl.Expression    `hcl:"inputs,optional"`
	Outputs   map[string]string `hcl:"outputs,optional"`
	DependsOn []string          `hcl:"depends_on,optional"`
	Caching   *bool             `hcl:"caching,optional"`
	Body      hcl.Body          `hcl:",remain"`
}

// Loader reads pipeline definitions from disk.
type Loader struct{}

// Load implements the check engine's pipeline loader.
func (Loader) Load(ctx context.Context, root, name string) (*Pipeline, error) {
	return Load(ctx, root, name)
}

// Path returns where the definition of name is expected.
func Path(root, name string) string {
	return filepath.Join(root, name+FileExtension)
}

// Load reads {root}/{name}.hcl and returns the pipeline block named name.
func Load(ctx context.Context, root, name string) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx)
	path := Path(root, name)
	logger.Debug("Loading pipeline definition.", "pipeline", name, "path", path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no module named %q in %s", ErrModuleNotFound, name, root)
		}
		return nil, fmt.Errorf("reading pipeline %q: %w", name, err)
	}

	parser := hclparse.NewParser()
	importErr := func(diags hcl.Diagnostics) error {
		return &ImportError{Pipeline: name, Path: path, Diags: diags, files: parser.Files()}
	}

	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, importErr(diags)
	}

	var parsed fileSchema
	if diags := gohcl.DecodeBody(file.Body, hclfuncs.EvalContext(), &parsed); diags.HasErrors() {
		return nil, importErr(diags)
	}

	if diags := duplicatePipelineDiags(file, name); diags.HasErrors() {
		return nil, importErr(diags)
	}
	var block *pipelineBlock
	for _, b := range parsed.Pipelines {
		if b.Name == name {
			block = b
			break
		}
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %s has no pipeline %q block", ErrPipelineNotFound, path, name)
	}

	p, diags := translatePipeline(block, path)
	if diags.HasErrors() {
		return nil, importErr(diags)
	}
	logger.Debug("Loaded pipeline definition.", "pipeline", name, "params", len(p.Params), "components", len(p.Components))
	return p, nil
}

func duplicatePipelineDiags(file *hcl.File, name string) hcl.Diagnostics {
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil
	}
	var diags hcl.Diagnostics
	seen := false
	for _, blk := range body.Blocks {
		if blk.Type != "pipeline" || len(blk.Labels) != 1 || blk.Labels[0] != name {
			continue
		}
		if seen {
			r := blk.DefRange()
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate pipeline block",
				Detail:   fmt.Sprintf("Only one pipeline %q block is allowed.", name),
				Subject:  &r,
			})
		}
		seen = true
	}
	return diags
}

func translatePipeline(b *pipelineBlock, path string) (*Pipeline, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	p := &Pipeline{
		Name:        b.Name,
		DisplayName: b.DisplayName,
		Description: b.Description,
		Path:        path,
	}
	if p.DisplayName == "" {
		p.DisplayName = b.Name
	}

	for _, pb := range b.Params {
		param, paramDiags := translateParam(pb)
		diags = append(diags, paramDiags...)
		if !paramDiags.HasErrors() {
			p.Params = append(p.Params, param)
		}
	}

	for _, cb := range b.Components {
		c, compDiags := translateComponent(cb)
		diags = append(diags, compDiags...)
		if !compDiags.HasErrors() {
			p.Components = append(p.Components, c)
		}
	}
	return p, diags
}

var paramAttributes = map[string]bool{"type": true, "default": true, "description": true}

func translateParam(pb *paramBlock) (Param, hcl.Diagnostics) {
	param := Param{Name: pb.Name, Range: pb.Body.MissingItemRange()}

	attrs, diags := pb.Body.JustAttributes()
	if diags.HasErrors() {
		return param, diags
	}

	for name, attr := range attrs {
		if !paramAttributes[name] {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported argument",
				Detail:   fmt.Sprintf("An argument named %q is not expected in param %q.", name, pb.Name),
				Subject:  &attr.NameRange,
			})
		}
	}

	typeAttr, ok := attrs["type"]
	if !ok {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing required argument",
			Detail:   fmt.Sprintf("Param %q must declare a type.", pb.Name),
			Subject:  &param.Range,
		})
		return param, diags
	}
	param.Range = typeAttr.Range

	ty, typeDiags := ParseParamType(typeAttr.Expr)
	diags = append(diags, typeDiags...)
	param.Type = ty

	if attr, ok := attrs["default"]; ok {
		val, valDiags := attr.Expr.Value(hclfuncs.EvalContext())
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() {
			param.Default = &val
		}
	}

	if attr, ok := attrs["description"]; ok {
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if !valDiags.HasErrors() {
			if val.Type() != cty.String || val.IsNull() {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid description",
					Detail:   "A param description must be a string.",
					Subject:  &attr.Range,
				})
			} else {
				param.Description = val.AsString()
			}
		}
	}
	return param, diags
}

func translateComponent(cb *componentBlock) (*Component, hcl.Diagnostics) {
	c := &Component{
		Name:      cb.Name,
		Image:     cb.Image,
		Command:   cb.Command,
		Args:      cb.Args,
		Env:       cb.Env,
		DependsOn: cb.DependsOn,
		Caching:   cb.Caching,
		Range:     cb.Body.MissingItemRange(),
	}

	var diags hcl.Diagnostics
	if attrs, _ := cb.Body.JustAttributes(); len(attrs) > 0 {
		for name, attr := range attrs {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported argument",
				Detail:   fmt.Sprintf("An argument named %q is not expected in component %q.", name, cb.Name),
				Subject:  &attr.NameRange,
			})
		}
	}

	inputs, inputDiags := componentInputs(cb.Inputs)
	diags = append(diags, inputDiags...)
	c.Inputs = inputs

	names := make([]string, 0, len(cb.Outputs))
	for name := range cb.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Outputs = append(c.Outputs, Output{Name: name, Kind: cb.Outputs[name]})
	}
	return c, diags
}

func componentInputs(expr hcl.Expression) ([]Input, hcl.Diagnostics) {
	if expr == nil {
		return nil, nil
	}
	if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
		return nil, nil
	}

	pairs, diags := hcl.ExprMap(expr)
	if diags.HasErrors() {
		return nil, diags
	}

	inputs := make([]Input, 0, len(pairs))
	for _, pair := range pairs {
		name := hcl.ExprAsKeyword(pair.Key)
		if name == "" {
			key, keyDiags := pair.Key.Value(nil)
			if keyDiags.HasErrors() || key.Type() != cty.String || key.IsNull() {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid input name",
					Detail:   "Component input names must be static strings.",
					Subject:  pair.Key.Range().Ptr(),
				})
				continue
			}
			name = key.AsString()
		}
		inputs = append(inputs, Input{Name: name, Expr: pair.Value})
	}
	return inputs, diags
}

// List returns the names of every pipeline definition under root, sorted.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing pipelines in %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != FileExtension {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), FileExtension))
	}
	sort.Strings(names)
	return names, nil
}
