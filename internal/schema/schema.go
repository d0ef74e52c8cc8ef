// Package schema derives a closed record schema from a pipeline's parameter
// list and validates untyped config values against it.
package schema

import (
	"errors"

	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrNilPipeline is returned when FromPipeline is given no pipeline.
	ErrNilPipeline = errors.New("schema: pipeline is nil")
	// ErrNoSignature is returned for a pipeline value that was never loaded
	// and so has no parameter list to read.
	ErrNoSignature = errors.New("schema: pipeline has no signature")
)

// TypeConverter maps a declared parameter type to the type config values
// are checked against.
type TypeConverter func(pipeline.ParamType) cty.Type

// Identity keeps the declared type, including the structured artifact shape.
func Identity(t pipeline.ParamType) cty.Type {
	return t.Type
}

// ArtifactsAsStrings checks artifact parameters as plain strings, the form
// in which the execution service accepts artifact references.
func ArtifactsAsStrings(t pipeline.ParamType) cty.Type {
	if t.IsArtifact() {
		return cty.String
	}
	return t.Type
}

// Field is one schema field, in parameter order.
type Field struct {
	Name     string
	Type     cty.Type
	Declared pipeline.ParamType
	Required bool
	Default  *cty.Value // set only when the field is optional
}

// HasDefault reports whether the field falls back to a default.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// Schema is a named, closed set of fields. Keys outside Fields are rejected.
type Schema struct {
	Name   string
	Fields []Field
}

// Field returns the named field, or false.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type options struct {
	convert          TypeConverter
	defaultsRequired bool
}

// Option configures FromPipeline.
type Option func(*options)

// WithTypeConverter sets the hook applied to every declared type.
func WithTypeConverter(fn TypeConverter) Option {
	return func(o *options) {
		if fn != nil {
			o.convert = fn
		}
	}
}

// WithDefaultsRequired marks every field required, including those that
// declare a default. Validating against such a schema reports which
// defaulted fields a config left out.
func WithDefaultsRequired() Option {
	return func(o *options) {
		o.defaultsRequired = true
	}
}

// FromPipeline builds the schema of p's parameters.
func FromPipeline(p *pipeline.Pipeline, opts ...Option) (*Schema, error) {
	if p == nil {
		return nil, ErrNilPipeline
	}
	if p.Name == "" {
		return nil, ErrNoSignature
	}

	o := options{convert: Identity}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Schema{
		Name:   pipeline.TitleName(p.DisplayName),
		Fields: make([]Field, 0, len(p.Params)),
	}
	for _, prm := range p.Params {
		f := Field{
			Name:     prm.Name,
			Type:     o.convert(prm.Type),
			Declared: prm.Type,
			Required: o.defaultsRequired || !prm.HasDefault(),
		}
		if f.Type == cty.NilType {
			f.Type = cty.DynamicPseudoType
		}
		if !f.Required {
			d := *prm.Default
			f.Default = &d
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}
