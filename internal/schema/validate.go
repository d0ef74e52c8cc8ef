package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

// ViolationKind classifies a field-level validation failure.
type ViolationKind int

const (
	// Missing is a required field absent from the config.
	Missing ViolationKind = iota
	// WrongType is a value that does not conform to its field type.
	WrongType
	// Extra is a key the schema does not declare.
	Extra
)

func (k ViolationKind) String() string {
	switch k {
	case Missing:
		return "missing"
	case WrongType:
		return "type_error"
	case Extra:
		return "extra_forbidden"
	default:
		return "unknown"
	}
}

// Violation is one field-level failure. Field is the top-level field name;
// Path locates nested failures (e.g. "features[1]" or "settings.name").
type Violation struct {
	Kind    ViolationKind
	Field   string
	Path    string
	Message string
}

func (v Violation) Error() string {
	return v.Path + ": " + v.Message
}

// Violations is every failure found in one config.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(vs), strings.Join(msgs, "; "))
}

// Fields returns the distinct top-level fields named by the violations.
func (vs Violations) Fields() []string {
	seen := make(map[string]bool, len(vs))
	var out []string
	for _, v := range vs {
		if !seen[v.Field] {
			seen[v.Field] = true
			out = append(out, v.Field)
		}
	}
	return out
}

const (
	msgRequired = "field required"
	msgExtra    = "extra fields not permitted"
	msgNone     = "none is not an allowed value"
)

// Validate checks values against the schema and returns every violation:
// missing and ill-typed fields in field order, then extra keys sorted.
func (s *Schema) Validate(values map[string]any) Violations {
	var out Violations

	declared := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = true

		raw, ok := values[f.Name]
		if !ok {
			if f.Required {
				out = append(out, Violation{Kind: Missing, Field: f.Name, Path: f.Name, Message: msgRequired})
			}
			continue
		}

		val, err := ValueOf(raw)
		if err != nil {
			out = append(out, Violation{Kind: WrongType, Field: f.Name, Path: f.Name, Message: err.Error()})
			continue
		}
		if val.IsNull() && f.HasDefault() && f.Default.IsNull() {
			continue
		}
		out = append(out, conform(val, f.Type, f.Name, f.Name)...)
	}

	extras := make([]string, 0)
	for k := range values {
		if !declared[k] {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		out = append(out, Violation{Kind: Extra, Field: k, Path: k, Message: msgExtra})
	}
	return out
}

func wrongType(field, path string, ty cty.Type) Violation {
	return Violation{Kind: WrongType, Field: field, Path: path, Message: "value is not a valid " + typeName(ty)}
}

func typeName(ty cty.Type) string {
	switch {
	case ty == cty.String:
		return "string"
	case ty == cty.Number:
		return "number"
	case ty == cty.Bool:
		return "boolean"
	case ty.IsListType(), ty.IsTupleType():
		return "list"
	case ty.IsSetType():
		return "set"
	case ty.IsMapType(), ty.IsObjectType():
		if ty.Equals(pipeline.ArtifactObjectType) {
			return "artifact"
		}
		return "dict"
	default:
		return typeexpr.TypeString(ty)
	}
}

// conform checks val against ty without coercion between primitive types.
func conform(val cty.Value, ty cty.Type, field, path string) Violations {
	if ty == cty.DynamicPseudoType {
		return nil
	}
	if val.IsNull() {
		return Violations{{Kind: WrongType, Field: field, Path: path, Message: msgNone}}
	}
	vt := val.Type()

	switch {
	case ty.IsPrimitiveType():
		if !vt.Equals(ty) {
			return Violations{wrongType(field, path, ty)}
		}
		return nil

	case ty.IsListType(), ty.IsSetType():
		if !isSequence(vt) {
			return Violations{wrongType(field, path, ty)}
		}
		var out Violations
		elems := val.AsValueSlice()
		for i, e := range elems {
			out = append(out, conform(e, ty.ElementType(), field, fmt.Sprintf("%s[%d]", path, i))...)
		}
		if ty.IsSetType() && len(out) == 0 && hasDuplicates(elems) {
			out = append(out, Violation{Kind: WrongType, Field: field, Path: path, Message: "set items must be unique"})
		}
		return out

	case ty.IsTupleType():
		if !isSequence(vt) {
			return Violations{wrongType(field, path, ty)}
		}
		want := ty.TupleElementTypes()
		elems := val.AsValueSlice()
		if len(elems) != len(want) {
			return Violations{{Kind: WrongType, Field: field, Path: path,
				Message: fmt.Sprintf("expected %d items, got %d", len(want), len(elems))}}
		}
		var out Violations
		for i, e := range elems {
			out = append(out, conform(e, want[i], field, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return out

	case ty.IsMapType():
		if !isMapping(vt) {
			return Violations{wrongType(field, path, ty)}
		}
		var out Violations
		m := val.AsValueMap()
		for _, k := range sortedKeys(m) {
			out = append(out, conform(m[k], ty.ElementType(), field, path+"."+k)...)
		}
		return out

	case ty.IsObjectType():
		if !isMapping(vt) {
			return Violations{wrongType(field, path, ty)}
		}
		return conformObject(val.AsValueMap(), ty, field, path)
	}

	return Violations{wrongType(field, path, ty)}
}

func conformObject(m map[string]cty.Value, ty cty.Type, field, path string) Violations {
	var out Violations
	attrs := ty.AttributeTypes()
	for _, name := range sortedKeys(attrs) {
		v, ok := m[name]
		if !ok {
			if !ty.AttributeOptional(name) {
				out = append(out, Violation{Kind: Missing, Field: field, Path: path + "." + name, Message: msgRequired})
			}
			continue
		}
		if v.IsNull() && ty.AttributeOptional(name) {
			continue
		}
		out = append(out, conform(v, attrs[name], field, path+"."+name)...)
	}
	for _, k := range sortedKeys(m) {
		if _, ok := attrs[k]; !ok {
			out = append(out, Violation{Kind: Extra, Field: field, Path: path + "." + k, Message: msgExtra})
		}
	}
	return out
}

func isSequence(ty cty.Type) bool {
	return ty.IsTupleType() || ty.IsListType() || ty.IsSetType()
}

func isMapping(ty cty.Type) bool {
	return ty.IsObjectType() || ty.IsMapType()
}

func hasDuplicates(elems []cty.Value) bool {
	for i := range elems {
		for j := i + 1; j < len(elems); j++ {
			if elems[i].RawEquals(elems[j]) {
				return true
			}
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply returns values with every absent defaulted field filled in. Values
// should be validated first; a default that cannot be converted is an error.
func (s *Schema) Apply(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.Fields))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range s.Fields {
		if _, ok := out[f.Name]; ok || !f.HasDefault() {
			continue
		}
		v, err := pipeline.GoValue(*f.Default)
		if err != nil {
			return nil, fmt.Errorf("applying default for %q: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}
