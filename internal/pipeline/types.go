// Package pipeline loads pipeline definitions written in HCL, checks their
// component graph and compiles them into a pipeline spec.
//
// A pipeline file lives at {root}/{name}.hcl and holds a block named after
// the file:
//
//	pipeline "etl" {
//	  display_name = "etl-pipeline"
//
//	  param "input_table" { type = string }
//	  param "threshold"   { type = number, default = 0.5 }
//	  param "raw"         { type = input(Dataset) }
//
//	  component "extract" {
//	    image   = "europe-docker.pkg.dev/project/repo/etl:latest"
//	    command = ["python", "-m", "etl.extract"]
//	    inputs  = { table = param.input_table }
//	    outputs = { dataset = "Dataset" }
//	  }
//	}
package pipeline

import (
	"sort"
	"strings"
	"unicode"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/zclconf/go-cty/cty"
)

// FileExtension is the extension of pipeline definition files.
const FileExtension = ".hcl"

// ArtifactKind names a class of pipeline-managed data.
type ArtifactKind string

const (
	KindArtifact                    ArtifactKind = "Artifact"
	KindDataset                     ArtifactKind = "Dataset"
	KindModel                       ArtifactKind = "Model"
	KindMetrics                     ArtifactKind = "Metrics"
	KindClassificationMetrics       ArtifactKind = "ClassificationMetrics"
	KindSlicedClassificationMetrics ArtifactKind = "SlicedClassificationMetrics"
	KindHTML                        ArtifactKind = "HTML"
	KindMarkdown                    ArtifactKind = "Markdown"
)

var artifactKinds = map[string]ArtifactKind{
	string(KindArtifact):                    KindArtifact,
	string(KindDataset):                     KindDataset,
	string(KindModel):                       KindModel,
	string(KindMetrics):                     KindMetrics,
	string(KindClassificationMetrics):       KindClassificationMetrics,
	string(KindSlicedClassificationMetrics): KindSlicedClassificationMetrics,
	string(KindHTML):                        KindHTML,
	string(KindMarkdown):                    KindMarkdown,
}

// ParseArtifactKind returns the kind named s.
func ParseArtifactKind(s string) (ArtifactKind, bool) {
	k, ok := artifactKinds[s]
	return k, ok
}

// ArtifactKinds returns every known kind, sorted.
func ArtifactKinds() []string {
	names := make([]string, 0, len(artifactKinds))
	for name := range artifactKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaTitle is the artifact type title used in compiled specs.
func (k ArtifactKind) SchemaTitle() string {
	return "system." + string(k)
}

// ArtifactObjectType is the structured shape of an artifact handle.
var ArtifactObjectType = cty.Object(map[string]cty.Type{
	"name":     cty.String,
	"uri":      cty.String,
	"metadata": cty.Map(cty.String),
})

// ParamType is the declared type of a pipeline parameter: either a value
// type or an artifact marker.
type ParamType struct {
	Type     cty.Type
	Artifact ArtifactKind // empty for value parameters
	Output   bool         // output(Kind) rather than input(Kind)
}

// ValueType returns a value parameter type.
func ValueType(ty cty.Type) ParamType {
	return ParamType{Type: ty}
}

// InputArtifact returns an input(kind) parameter type.
func InputArtifact(kind ArtifactKind) ParamType {
	return ParamType{Type: ArtifactObjectType, Artifact: kind}
}

// IsArtifact reports whether t is an artifact marker.
func (t ParamType) IsArtifact() bool {
	return t.Artifact != ""
}

func (t ParamType) String() string {
	if t.IsArtifact() {
		dir := "input"
		if t.Output {
			dir = "output"
		}
		return dir + "(" + string(t.Artifact) + ")"
	}
	if t.Type == cty.NilType {
		return "any"
	}
	return typeexpr.TypeString(t.Type)
}

// Param is one declared pipeline parameter, in declaration order.
type Param struct {
	Name        string
	Type        ParamType
	Default     *cty.Value // nil when no default is declared
	Description string
	Range       hcl.Range
}

// HasDefault reports whether the parameter declares a default.
func (p Param) HasDefault() bool {
	return p.Default != nil
}

// Input is one named input of a component. Expr is either a reference
// (param.X or component.Y.outputs.Z) or a constant.
type Input struct {
	Name string
	Expr hcl.Expression
}

// Output is an artifact produced by a component.
type Output struct {
	Name string
	Kind string
}

// Component is one containerized step of a pipeline.
type Component struct {
	Name      string
	Image     string
	Command   []string
	Args      []string
	Env       map[string]string
	Inputs    []Input
	Outputs   []Output // sorted by name
	DependsOn []string
	Caching   *bool
	Range     hcl.Range
}

// Output returns the named output, or false.
func (c *Component) Output(name string) (Output, bool) {
	for _, o := range c.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// Pipeline is a loaded pipeline definition.
type Pipeline struct {
	Name        string // file and block name
	DisplayName string // declared name, defaults to Name
	Description string
	Path        string
	Params      []Param
	Components  []*Component
}

// Param returns the named parameter, or false.
func (p *Pipeline) Param(name string) (Param, bool) {
	for _, prm := range p.Params {
		if prm.Name == name {
			return prm, true
		}
	}
	return Param{}, false
}

// Component returns the named component, or nil.
func (p *Pipeline) Component(name string) *Component {
	for _, c := range p.Components {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// TitleName turns a declared name such as "etl-daily_v2" into "EtlDailyV2".
func TitleName(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
