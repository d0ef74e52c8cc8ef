package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vertex-deployer/deployer/internal/ctxlog"
	"github.com/vertex-deployer/deployer/internal/dag"
	"github.com/vertex-deployer/deployer/internal/hclfuncs"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// CompileError lists every problem found in a pipeline graph.
type CompileError struct {
	Pipeline string
	Problems []string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling pipeline %q: %s", e.Pipeline, strings.Join(e.Problems, "; "))
}

// Compiler checks a pipeline graph and writes its spec.
type Compiler struct {
	// SDKVersion is recorded in the spec's sdkVersion field.
	SDKVersion string
}

// Compile writes the spec of p to outputPath.
func (c Compiler) Compile(ctx context.Context, p *Pipeline, outputPath string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Compiling pipeline.", "pipeline", p.Name, "output", outputPath)

	spec, err := c.Build(p)
	if err != nil {
		return err
	}
	if err := spec.WriteFile(outputPath); err != nil {
		return err
	}

	logger.Info("Pipeline compiled.", "pipeline", p.Name, "tasks", len(spec.Root.DAG.Tasks))
	return nil
}

type inputSource int

const (
	fromParam inputSource = iota
	fromParamArtifact
	fromTaskArtifact
	fromConstant
)

type resolvedInput struct {
	name      string
	source    inputSource
	param     string
	producer  string
	outputKey string
	kind      ArtifactKind
	valueType cty.Type
	value     cty.Value
}

func (r resolvedInput) isArtifact() bool {
	return r.source == fromParamArtifact || r.source == fromTaskArtifact
}

// Build checks the pipeline graph and returns its spec. Every problem found
// is reported in a single *CompileError.
func (c Compiler) Build(p *Pipeline) (*Spec, error) {
	if p == nil {
		return nil, errors.New("compiling pipeline: nil pipeline")
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seenParams := make(map[string]bool, len(p.Params))
	for _, prm := range p.Params {
		if seenParams[prm.Name] {
			add("duplicate parameter %q", prm.Name)
		}
		seenParams[prm.Name] = true

		switch {
		case prm.Type.Output:
			add("parameter %q: output artifacts cannot be pipeline inputs", prm.Name)
		case prm.Type.IsArtifact() && prm.HasDefault():
			add("parameter %q: artifact parameters cannot have a default", prm.Name)
		case prm.HasDefault() && !prm.Default.IsNull():
			if _, err := convert.Convert(*prm.Default, prm.Type.Type); err != nil {
				add("parameter %q: default value is not a valid %s: %s", prm.Name, prm.Type, err)
			}
		}
	}

	if len(p.Components) == 0 {
		add("pipeline has no components")
	}

	graph := dag.New()
	resolved := make(map[string][]resolvedInput, len(p.Components))
	for _, comp := range p.Components {
		if comp.Image == "" {
			add("component %q: image is required", comp.Name)
		}
		for _, out := range comp.Outputs {
			if _, ok := ParseArtifactKind(out.Kind); !ok {
				add("component %q: output %q has unknown artifact kind %q", comp.Name, out.Name, out.Kind)
			}
		}

		deps := append([]string{}, comp.DependsOn...)
		for _, in := range comp.Inputs {
			r, err := resolveInput(p, comp, in)
			if err != nil {
				add("%s", err)
				continue
			}
			if r.source == fromTaskArtifact {
				deps = append(deps, r.producer)
			}
			resolved[comp.Name] = append(resolved[comp.Name], r)
		}

		if err := graph.AddNode(comp.Name, deps); err != nil {
			add("%s", err)
		}
	}

	if err := graph.Build(); err != nil {
		add("%s", err)
	}
	if len(problems) > 0 {
		return nil, &CompileError{Pipeline: p.Name, Problems: problems}
	}

	return c.render(p, graph, resolved)
}

func resolveInput(p *Pipeline, comp *Component, in Input) (resolvedInput, error) {
	if trav, diags := hcl.AbsTraversalForExpr(in.Expr); !diags.HasErrors() {
		return resolveReference(p, comp, in.Name, trav)
	}
	if len(in.Expr.Variables()) > 0 {
		return resolvedInput{}, fmt.Errorf("component %q: input %q must be a single reference or a constant", comp.Name, in.Name)
	}

	v, diags := in.Expr.Value(hclfuncs.EvalContext())
	if diags.HasErrors() {
		return resolvedInput{}, fmt.Errorf("component %q: input %q: %s", comp.Name, in.Name, diags.Error())
	}
	return resolvedInput{name: in.Name, source: fromConstant, value: v, valueType: v.Type()}, nil
}

func resolveReference(p *Pipeline, comp *Component, input string, trav hcl.Traversal) (resolvedInput, error) {
	names, ok := traversalNames(trav)
	if !ok || len(names) < 2 {
		return resolvedInput{}, fmt.Errorf("component %q: input %q: unsupported reference", comp.Name, input)
	}
	ref := strings.Join(names, ".")

	switch names[0] {
	case "param":
		if len(names) != 2 {
			return resolvedInput{}, fmt.Errorf("component %q: input %q: invalid parameter reference %q", comp.Name, input, ref)
		}
		prm, found := p.Param(names[1])
		if !found {
			return resolvedInput{}, fmt.Errorf("component %q: input %q references unknown parameter %q", comp.Name, input, names[1])
		}
		if prm.Type.IsArtifact() {
			return resolvedInput{name: input, source: fromParamArtifact, param: prm.Name, kind: prm.Type.Artifact}, nil
		}
		return resolvedInput{name: input, source: fromParam, param: prm.Name, valueType: prm.Type.Type}, nil

	case "component":
		if len(names) != 4 || names[2] != "outputs" {
			return resolvedInput{}, fmt.Errorf("component %q: input %q: expected component.<name>.outputs.<output>, got %q", comp.Name, input, ref)
		}
		producer := p.Component(names[1])
		if producer == nil {
			return resolvedInput{}, fmt.Errorf("component %q: input %q references unknown component %q", comp.Name, input, names[1])
		}
		if producer == comp {
			return resolvedInput{}, fmt.Errorf("component %q: input %q references its own output", comp.Name, input)
		}
		out, found := producer.Output(names[3])
		if !found {
			return resolvedInput{}, fmt.Errorf("component %q: input %q: component %q has no output %q", comp.Name, input, producer.Name, names[3])
		}
		kind, _ := ParseArtifactKind(out.Kind)
		return resolvedInput{name: input, source: fromTaskArtifact, producer: producer.Name, outputKey: out.Name, kind: kind}, nil

	default:
		return resolvedInput{}, fmt.Errorf("component %q: input %q: unsupported reference %q", comp.Name, input, ref)
	}
}

func traversalNames(trav hcl.Traversal) ([]string, bool) {
	names := make([]string, 0, len(trav))
	for _, step := range trav {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			names = append(names, s.Name)
		case hcl.TraverseAttr:
			names = append(names, s.Name)
		default:
			return nil, false
		}
	}
	return names, true
}

func componentKey(name string) string {
	return "comp-" + strings.ReplaceAll(name, "_", "-")
}

func executorKey(name string) string {
	return "exec-" + strings.ReplaceAll(name, "_", "-")
}

func (c Compiler) render(p *Pipeline, graph *dag.Graph, resolved map[string][]resolvedInput) (*Spec, error) {
	spec := &Spec{
		Components:     make(map[string]ComponentSpec, len(p.Components)),
		DeploymentSpec: DeploymentSpec{Executors: make(map[string]ExecutorSpec, len(p.Components))},
		PipelineInfo:   PipelineInfo{Name: p.DisplayName, Description: p.Description},
		Root:           RootSpec{DAG: DAGSpec{Tasks: make(map[string]TaskSpec, len(p.Components))}},
		SchemaVersion:  SchemaVersion,
		SDKVersion:     c.SDKVersion,
	}

	rootInputs, err := rootInputDefinitions(p)
	if err != nil {
		return nil, err
	}
	spec.Root.InputDefinitions = rootInputs

	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, &CompileError{Pipeline: p.Name, Problems: []string{err.Error()}}
	}

	for _, name := range order {
		comp := p.Component(name)
		compSpec, task, err := renderComponent(comp, resolved[name])
		if err != nil {
			return nil, &CompileError{Pipeline: p.Name, Problems: []string{err.Error()}}
		}
		task.DependentTasks = graph.Node(name).Dependencies
		spec.Components[componentKey(name)] = compSpec
		spec.Root.DAG.Tasks[name] = task
		spec.DeploymentSpec.Executors[executorKey(name)] = ExecutorSpec{Container: containerSpec(comp)}
	}
	return spec, nil
}

func rootInputDefinitions(p *Pipeline) (*InputDefinitions, error) {
	if len(p.Params) == 0 {
		return nil, nil
	}
	defs := &InputDefinitions{}
	for _, prm := range p.Params {
		if prm.Type.IsArtifact() {
			if defs.Artifacts == nil {
				defs.Artifacts = make(map[string]ArtifactSpec)
			}
			defs.Artifacts[prm.Name] = ArtifactSpec{ArtifactType: artifactType(prm.Type.Artifact), Description: prm.Description}
			continue
		}

		ps := ParameterSpec{ParameterType: parameterType(prm.Type.Type), Description: prm.Description}
		if prm.HasDefault() {
			ps.IsOptional = true
			value, err := GoValue(*prm.Default)
			if err != nil {
				return nil, &CompileError{Pipeline: p.Name, Problems: []string{fmt.Sprintf("parameter %q: default value: %s", prm.Name, err)}}
			}
			ps.DefaultValue = value
		}
		if defs.Parameters == nil {
			defs.Parameters = make(map[string]ParameterSpec)
		}
		defs.Parameters[prm.Name] = ps
	}
	return defs, nil
}

func renderComponent(comp *Component, inputs []resolvedInput) (ComponentSpec, TaskSpec, error) {
	compSpec := ComponentSpec{ExecutorLabel: executorKey(comp.Name)}
	task := TaskSpec{
		CachingOptions: CachingOptions{EnableCache: comp.Caching == nil || *comp.Caching},
		ComponentRef:   ComponentRef{Name: componentKey(comp.Name)},
		TaskInfo:       TaskInfo{Name: comp.Name},
	}

	if len(inputs) > 0 {
		compSpec.InputDefinitions = &InputDefinitions{}
		task.Inputs = &TaskInputs{}
	}
	for _, in := range inputs {
		if in.isArtifact() {
			if compSpec.InputDefinitions.Artifacts == nil {
				compSpec.InputDefinitions.Artifacts = make(map[string]ArtifactSpec)
				task.Inputs.Artifacts = make(map[string]TaskArtifact)
			}
			compSpec.InputDefinitions.Artifacts[in.name] = ArtifactSpec{ArtifactType: artifactType(in.kind)}
			if in.source == fromParamArtifact {
				task.Inputs.Artifacts[in.name] = TaskArtifact{ComponentInputArtifact: in.param}
			} else {
				task.Inputs.Artifacts[in.name] = TaskArtifact{TaskOutputArtifact: &TaskOutputArtifact{
					OutputArtifactKey: in.outputKey,
					ProducerTask:      in.producer,
				}}
			}
			continue
		}

		if compSpec.InputDefinitions.Parameters == nil {
			compSpec.InputDefinitions.Parameters = make(map[string]ParameterSpec)
			task.Inputs.Parameters = make(map[string]TaskParameter)
		}
		compSpec.InputDefinitions.Parameters[in.name] = ParameterSpec{ParameterType: parameterType(in.valueType)}
		if in.source == fromParam {
			task.Inputs.Parameters[in.name] = TaskParameter{ComponentInputParameter: in.param}
			continue
		}
		value, err := GoValue(in.value)
		if err != nil {
			return compSpec, task, fmt.Errorf("component %q: input %q: %w", comp.Name, in.name, err)
		}
		task.Inputs.Parameters[in.name] = TaskParameter{RuntimeValue: &RuntimeValue{Constant: value}}
	}

	if len(comp.Outputs) > 0 {
		compSpec.OutputDefinitions = &OutputDefinitions{Artifacts: make(map[string]ArtifactSpec, len(comp.Outputs))}
		for _, out := range comp.Outputs {
			kind, _ := ParseArtifactKind(out.Kind)
			compSpec.OutputDefinitions.Artifacts[out.Name] = ArtifactSpec{ArtifactType: artifactType(kind)}
		}
	}
	return compSpec, task, nil
}

func containerSpec(comp *Component) ContainerSpec {
	cs := ContainerSpec{Image: comp.Image, Command: comp.Command, Args: comp.Args}
	if len(comp.Env) > 0 {
		names := make([]string, 0, len(comp.Env))
		for name := range comp.Env {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cs.Env = append(cs.Env, EnvVar{Name: name, Value: comp.Env[name]})
		}
	}
	return cs
}

// Graph returns the component dependency graph of a pipeline that compiles.
func (c Compiler) Graph(p *Pipeline) (*dag.Graph, error) {
	if _, err := c.Build(p); err != nil {
		return nil, err
	}
	graph := dag.New()
	for _, comp := range p.Components {
		deps := append([]string{}, comp.DependsOn...)
		for _, in := range comp.Inputs {
			if r, err := resolveInput(p, comp, in); err == nil && r.source == fromTaskArtifact {
				deps = append(deps, r.producer)
			}
		}
		if err := graph.AddNode(comp.Name, deps); err != nil {
			return nil, err
		}
	}
	if err := graph.Build(); err != nil {
		return nil, err
	}
	if _, err := graph.ComputeWaves(); err != nil {
		return nil, err
	}
	return graph, nil
}
