package pipeline

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
)

// ParseParamType reads a param type expression. Artifact markers
// input(Kind) and output(Kind) are handled here; anything else goes through
// the HCL type constraint syntax (string, list(number), object({...}), any).
func ParseParamType(expr hcl.Expression) (ParamType, hcl.Diagnostics) {
	if call, diags := hcl.ExprCall(expr); !diags.HasErrors() && (call.Name == "input" || call.Name == "output") {
		return parseArtifactMarker(call)
	}

	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return ParamType{}, diags
	}
	return ValueType(ty), nil
}

func parseArtifactMarker(call *hcl.StaticCall) (ParamType, hcl.Diagnostics) {
	if len(call.Arguments) != 1 {
		return ParamType{}, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid artifact type",
			Detail:   fmt.Sprintf("%s() takes exactly one artifact kind.", call.Name),
			Subject:  call.ArgsRange.Ptr(),
		}}
	}

	kw := hcl.ExprAsKeyword(call.Arguments[0])
	kind, ok := ParseArtifactKind(kw)
	if !ok {
		return ParamType{}, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unknown artifact kind",
			Detail:   fmt.Sprintf("%q is not an artifact kind. Expected one of: %s.", kw, strings.Join(ArtifactKinds(), ", ")),
			Subject:  call.Arguments[0].Range().Ptr(),
		}}
	}

	pt := InputArtifact(kind)
	pt.Output = call.Name == "output"
	return pt, nil
}
