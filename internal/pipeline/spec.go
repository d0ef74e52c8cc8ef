package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the pipeline spec schema version written by the compiler.
const SchemaVersion = "2.1.0"

const artifactSchemaVersion = "0.0.1"

// Spec is a compiled pipeline, laid out like a KFP v2 pipeline spec.
type Spec struct {
	Components     map[string]ComponentSpec `yaml:"components"`
	DeploymentSpec DeploymentSpec           `yaml:"deploymentSpec"`
	PipelineInfo   PipelineInfo             `yaml:"pipelineInfo"`
	Root           RootSpec                 `yaml:"root"`
	SchemaVersion  string                   `yaml:"schemaVersion"`
	SDKVersion     string                   `yaml:"sdkVersion"`
}

type PipelineInfo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type InputDefinitions struct {
	Artifacts  map[string]ArtifactSpec  `yaml:"artifacts,omitempty"`
	Parameters map[string]ParameterSpec `yaml:"parameters,omitempty"`
}

type OutputDefinitions struct {
	Artifacts map[string]ArtifactSpec `yaml:"artifacts,omitempty"`
}

type ParameterSpec struct {
	DefaultValue  any    `yaml:"defaultValue,omitempty"`
	Description   string `yaml:"description,omitempty"`
	IsOptional    bool   `yaml:"isOptional,omitempty"`
	ParameterType string `yaml:"parameterType"`
}

type ArtifactSpec struct {
	ArtifactType ArtifactType `yaml:"artifactType"`
	Description  string       `yaml:"description,omitempty"`
}

type ArtifactType struct {
	SchemaTitle   string `yaml:"schemaTitle"`
	SchemaVersion string `yaml:"schemaVersion"`
}

type ComponentSpec struct {
	ExecutorLabel     string             `yaml:"executorLabel"`
	InputDefinitions  *InputDefinitions  `yaml:"inputDefinitions,omitempty"`
	OutputDefinitions *OutputDefinitions `yaml:"outputDefinitions,omitempty"`
}

type DeploymentSpec struct {
	Executors map[string]ExecutorSpec `yaml:"executors"`
}

type ExecutorSpec struct {
	Container ContainerSpec `yaml:"container"`
}

type ContainerSpec struct {
	Args    []string `yaml:"args,omitempty"`
	Command []string `yaml:"command,omitempty"`
	Env     []EnvVar `yaml:"env,omitempty"`
	Image   string   `yaml:"image"`
}

type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type RootSpec struct {
	DAG              DAGSpec           `yaml:"dag"`
	InputDefinitions *InputDefinitions `yaml:"inputDefinitions,omitempty"`
}

type DAGSpec struct {
	Tasks map[string]TaskSpec `yaml:"tasks"`
}

type TaskSpec struct {
	CachingOptions CachingOptions `yaml:"cachingOptions"`
	ComponentRef   ComponentRef   `yaml:"componentRef"`
	DependentTasks []string       `yaml:"dependentTasks,omitempty"`
	Inputs         *TaskInputs    `yaml:"inputs,omitempty"`
	TaskInfo       TaskInfo       `yaml:"taskInfo"`
}

type CachingOptions struct {
	EnableCache bool `yaml:"enableCache"`
}

type ComponentRef struct {
	Name string `yaml:"name"`
}

type TaskInfo struct {
	Name string `yaml:"name"`
}

type TaskInputs struct {
	Artifacts  map[string]TaskArtifact  `yaml:"artifacts,omitempty"`
	Parameters map[string]TaskParameter `yaml:"parameters,omitempty"`
}

type TaskParameter struct {
	ComponentInputParameter string        `yaml:"componentInputParameter,omitempty"`
	RuntimeValue            *RuntimeValue `yaml:"runtimeValue,omitempty"`
}

type RuntimeValue struct {
	Constant any `yaml:"constant"`
}

type TaskArtifact struct {
	ComponentInputArtifact string              `yaml:"componentInputArtifact,omitempty"`
	TaskOutputArtifact     *TaskOutputArtifact `yaml:"taskOutputArtifact,omitempty"`
}

type TaskOutputArtifact struct {
	OutputArtifactKey string `yaml:"outputArtifactKey"`
	ProducerTask      string `yaml:"producerTask"`
}

// WriteFile encodes the spec as YAML at path.
func (s *Spec) WriteFile(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding pipeline spec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding pipeline spec: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing pipeline spec: %w", err)
	}
	return nil
}

// ReadSpec decodes a compiled spec file.
func ReadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline spec: %w", err)
	}
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing pipeline spec %s: %w", path, err)
	}
	return &s, nil
}

func parameterType(ty cty.Type) string {
	switch {
	case ty == cty.String:
		return "STRING"
	case ty == cty.Number:
		return "NUMBER_DOUBLE"
	case ty == cty.Bool:
		return "BOOLEAN"
	case ty.IsListType(), ty.IsSetType(), ty.IsTupleType():
		return "LIST"
	default:
		return "STRUCT"
	}
}

func artifactType(kind ArtifactKind) ArtifactType {
	return ArtifactType{SchemaTitle: kind.SchemaTitle(), SchemaVersion: artifactSchemaVersion}
}

// GoValue converts a cty value into plain Go values (string, float64, bool,
// []any, map[string]any or nil) suitable for YAML and JSON encoding.
func GoValue(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
