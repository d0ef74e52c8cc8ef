package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{Outcomes: []Outcome{
		{
			Pipeline: "etl",
			Configs: []ConfigOutcome{
				{Name: "dev.json", Warnings: []Issue{{Kind: DefaultValueWarning, Field: "threshold", Message: "default value used: 0.5"}}},
				{Name: "prod.json", Errors: []Issue{
					{Kind: SchemaViolationError, Field: "a", Message: "field required"},
					{Kind: SchemaViolationError, Field: "b", Message: "extra fields not permitted"},
				}},
			},
		},
		{
			Pipeline: "broken",
			Error:    &Issue{Kind: PipelineImportError, Message: "ImportError: bad"},
		},
	}}
}

func TestReport_Rows(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		withWarnings bool
		want         []Row
	}{
		"with warnings": {
			withWarnings: true,
			want: []Row{
				{Status: StatusWarn, Pipeline: "etl", ConfigFile: "dev.json", Attribute: "threshold",
					ConfigErrorType: "DefaultValueWarning", ConfigErrorMessage: "default value used: 0.5"},
				{Status: StatusFail, Pipeline: "etl", ConfigFile: "prod.json", Attribute: "a",
					ConfigErrorType: "SchemaViolationError", ConfigErrorMessage: "field required"},
				{Status: StatusFail, Pipeline: "etl", ConfigFile: "prod.json", Attribute: "b",
					ConfigErrorType: "SchemaViolationError", ConfigErrorMessage: "extra fields not permitted"},
				{Status: StatusFail, Pipeline: "broken", PipelineErrorMessage: "ImportError: bad"},
			},
		},
		"without warnings": {
			withWarnings: false,
			want: []Row{
				{Status: StatusPass, Pipeline: "etl", ConfigFile: "dev.json"},
				{Status: StatusFail, Pipeline: "etl", ConfigFile: "prod.json", Attribute: "a",
					ConfigErrorType: "SchemaViolationError", ConfigErrorMessage: "field required"},
				{Status: StatusFail, Pipeline: "etl", ConfigFile: "prod.json", Attribute: "b",
					ConfigErrorType: "SchemaViolationError", ConfigErrorMessage: "extra fields not permitted"},
				{Status: StatusFail, Pipeline: "broken", PipelineErrorMessage: "ImportError: bad"},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sampleReport().Rows(tt.withWarnings))
		})
	}
}

func TestReport_Partitions(t *testing.T) {
	t.Parallel()

	r := sampleReport()
	assert.True(t, r.HasErrors())

	pipelineErrs := r.PipelineErrors()
	require.Contains(t, pipelineErrs, "broken")
	assert.Equal(t, PipelineImportError, pipelineErrs["broken"].Kind)

	configErrs := r.ConfigErrors()
	assert.Len(t, configErrs["etl"]["prod.json"], 2)
	assert.NotContains(t, configErrs["etl"], "dev.json")

	warnings := r.DefaultWarnings()
	assert.Len(t, warnings["etl"]["dev.json"], 1)

	assert.False(t, (&Report{}).HasErrors())
}

func TestKind(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{PipelineImportError, PipelineCompileError, BadConfigError, SchemaViolationError} {
		assert.True(t, k.IsError(), k.String())
	}
	for _, k := range []Kind{DefaultValueWarning, NoConfigWarning} {
		assert.False(t, k.IsError(), k.String())
	}
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestStatus_Glyph(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "✅", StatusPass.Glyph())
	assert.Equal(t, "⚠️", StatusWarn.Glyph())
	assert.Equal(t, "❌", StatusFail.Glyph())
	assert.Equal(t, "fail", StatusFail.String())
}
