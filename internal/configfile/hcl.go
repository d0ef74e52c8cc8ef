package configfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vertex-deployer/deployer/internal/hclfuncs"
	"github.com/vertex-deployer/deployer/internal/pipeline"
)

// loadHCL reads an HCL config. Only the parameter_values and input_artifacts
// attributes are allowed, and each must evaluate to an object or map. The
// expressions may call the functions in hclfuncs.
func loadHCL(path string, data []byte) (params, artifacts map[string]any, err error) {
	file, diags := hclparse.NewParser().ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, nil, hclBadConfig(path, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, nil, hclBadConfig(path, diags)
	}

	ctx := hclfuncs.EvalContext()
	for name, attr := range attrs {
		var dst *map[string]any
		switch name {
		case parameterValuesName:
			dst = &params
		case inputArtifactsName:
			dst = &artifacts
		default:
			return nil, nil, hclBadConfig(path, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unsupported attribute",
				Detail:   fmt.Sprintf("An attribute named %q is not expected here; use %s or %s.", name, parameterValuesName, inputArtifactsName),
				Subject:  attr.NameRange.Ptr(),
			}})
		}

		val, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return nil, nil, hclBadConfig(path, diags)
		}
		if !val.IsWhollyKnown() || val.IsNull() || !(val.Type().IsObjectType() || val.Type().IsMapType()) {
			return nil, nil, hclBadConfig(path, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid config value",
				Detail:   fmt.Sprintf("%s must be an object.", name),
				Subject:  attr.Expr.Range().Ptr(),
			}})
		}
		m, err := objectToMap(val)
		if err != nil {
			return nil, nil, badConfig(path, err, err.Error())
		}
		*dst = m
	}
	return params, artifacts, nil
}

func objectToMap(val cty.Value) (map[string]any, error) {
	out := make(map[string]any, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		gv, err := pipeline.GoValue(v)
		if err != nil {
			return nil, fmt.Errorf("converting %q: %w", k.AsString(), err)
		}
		out[k.AsString()] = gv
	}
	return out, nil
}

func hclBadConfig(path string, diags hcl.Diagnostics) *BadConfigError {
	bad := badConfig(path, diags, diags.Error())
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		bad.Reason = d.Summary
		if d.Detail != "" {
			bad.Reason += ": " + d.Detail
		}
		if d.Subject != nil {
			bad.Line, bad.Column = d.Subject.Start.Line, d.Subject.Start.Column
		}
		break
	}
	return bad
}
