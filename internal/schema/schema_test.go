package schema

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertex-deployer/deployer/internal/pipeline"
	"github.com/zclconf/go-cty/cty"
)

func ptr(v cty.Value) *cty.Value { return &v }

func etl() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name:        "etl",
		DisplayName: "etl-pipeline",
		Params: []pipeline.Param{
			{Name: "input_table", Type: pipeline.ValueType(cty.String)},
			{Name: "threshold", Type: pipeline.ValueType(cty.Number), Default: ptr(cty.NumberFloatVal(0.5))},
			{Name: "raw", Type: pipeline.InputArtifact(pipeline.KindDataset)},
		},
	}
}

func TestFromPipeline(t *testing.T) {
	t.Parallel()

	s, err := FromPipeline(etl())
	require.NoError(t, err)

	assert.Equal(t, "EtlPipeline", s.Name)
	require.Len(t, s.Fields, 3)
	assert.Equal(t, []string{"input_table", "threshold", "raw"}, []string{s.Fields[0].Name, s.Fields[1].Name, s.Fields[2].Name})

	assert.True(t, s.Fields[0].Required)
	assert.False(t, s.Fields[1].Required)
	require.True(t, s.Fields[1].HasDefault())
	assert.True(t, s.Fields[1].Default.Equals(cty.NumberFloatVal(0.5)).True())
	assert.True(t, s.Fields[2].Type.Equals(pipeline.ArtifactObjectType), "identity keeps the artifact shape")
}

func TestFromPipeline_Options(t *testing.T) {
	t.Parallel()

	s, err := FromPipeline(etl(), WithTypeConverter(ArtifactsAsStrings), WithDefaultsRequired())
	require.NoError(t, err)

	for _, f := range s.Fields {
		assert.True(t, f.Required, f.Name)
		assert.False(t, f.HasDefault(), f.Name)
	}
	raw, ok := s.Field("raw")
	require.True(t, ok)
	assert.Equal(t, cty.String, raw.Type)
	assert.True(t, raw.Declared.IsArtifact())

	_, ok = s.Field("nope")
	assert.False(t, ok)
}

func TestFromPipeline_ProgrammerErrors(t *testing.T) {
	t.Parallel()

	_, err := FromPipeline(nil)
	assert.True(t, errors.Is(err, ErrNilPipeline))

	_, err = FromPipeline(&pipeline.Pipeline{})
	assert.True(t, errors.Is(err, ErrNoSignature))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	objType := cty.ObjectWithOptionalAttrs(map[string]cty.Type{
		"name":  cty.String,
		"limit": cty.Number,
	}, []string{"limit"})

	p := &pipeline.Pipeline{
		Name:        "typed",
		DisplayName: "typed",
		Params: []pipeline.Param{
			{Name: "s", Type: pipeline.ValueType(cty.String)},
			{Name: "n", Type: pipeline.ValueType(cty.Number), Default: ptr(cty.NumberIntVal(1))},
			{Name: "b", Type: pipeline.ValueType(cty.Bool), Default: ptr(cty.False)},
			{Name: "l", Type: pipeline.ValueType(cty.List(cty.Number)), Default: ptr(cty.ListValEmpty(cty.Number))},
			{Name: "m", Type: pipeline.ValueType(cty.Map(cty.String)), Default: ptr(cty.MapValEmpty(cty.String))},
			{Name: "o", Type: pipeline.ValueType(objType), Default: ptr(cty.NullVal(objType))},
			{Name: "t", Type: pipeline.ValueType(cty.Tuple([]cty.Type{cty.String, cty.Bool})), Default: ptr(cty.NullVal(cty.DynamicPseudoType))},
			{Name: "a", Type: pipeline.ValueType(cty.DynamicPseudoType), Default: ptr(cty.NullVal(cty.DynamicPseudoType))},
			{Name: "set", Type: pipeline.ValueType(cty.Set(cty.String)), Default: ptr(cty.SetValEmpty(cty.String))},
		},
	}
	s, err := FromPipeline(p)
	require.NoError(t, err)

	tests := map[string]struct {
		values map[string]any
		want   []string // violation paths
		kinds  []ViolationKind
	}{
		"only required": {
			values: map[string]any{"s": "x"},
		},
		"all valid": {
			values: map[string]any{
				"s": "x", "n": json.Number("2.5"), "b": true,
				"l": []any{1, 2.5}, "m": map[string]any{"k": "v"},
				"o": map[string]any{"name": "n"}, "t": []any{"a", false},
				"a": []any{1, "mixed"}, "set": []any{"x", "y"},
			},
		},
		"null for null default": {
			values: map[string]any{"s": "x", "o": nil, "t": nil},
		},
		"missing required": {
			values: map[string]any{},
			want:   []string{"s"},
			kinds:  []ViolationKind{Missing},
		},
		"no string coercion": {
			values: map[string]any{"s": 1, "n": "1", "b": "true"},
			want:   []string{"s", "n", "b"},
			kinds:  []ViolationKind{WrongType, WrongType, WrongType},
		},
		"nested": {
			values: map[string]any{
				"s": "x",
				"l": []any{1, "two"},
				"m": map[string]any{"a": "ok", "b": 2},
				"o": map[string]any{"limit": 3, "colour": "red"},
			},
			want:  []string{"l[1]", "m.b", "o.name", "o.colour"},
			kinds: []ViolationKind{WrongType, WrongType, Missing, Extra},
		},
		"tuple length": {
			values: map[string]any{"s": "x", "t": []any{"a"}},
			want:   []string{"t"},
			kinds:  []ViolationKind{WrongType},
		},
		"set duplicates": {
			values: map[string]any{"s": "x", "set": []any{"a", "a"}},
			want:   []string{"set"},
			kinds:  []ViolationKind{WrongType},
		},
		"null for required": {
			values: map[string]any{"s": nil},
			want:   []string{"s"},
			kinds:  []ViolationKind{WrongType},
		},
		"two missing one extra": {
			values: map[string]any{"zzz": 1},
			want:   []string{"s", "zzz"},
			kinds:  []ViolationKind{Missing, Extra},
		},
		"unsupported value": {
			values: map[string]any{"s": make(chan int)},
			want:   []string{"s"},
			kinds:  []ViolationKind{WrongType},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := s.Validate(tt.values)
			paths := make([]string, 0, len(got))
			kinds := make([]ViolationKind, 0, len(got))
			for _, v := range got {
				paths = append(paths, v.Path)
				kinds = append(kinds, v.Kind)
			}

			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, paths)
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestValidate_MultiErrorAggregation(t *testing.T) {
	t.Parallel()

	p := &pipeline.Pipeline{
		Name: "p", DisplayName: "p",
		Params: []pipeline.Param{
			{Name: "a", Type: pipeline.ValueType(cty.String)},
			{Name: "b", Type: pipeline.ValueType(cty.Number)},
		},
	}
	s, err := FromPipeline(p)
	require.NoError(t, err)

	got := s.Validate(map[string]any{"extra": true})
	require.Len(t, got, 3)
	assert.Equal(t, "field required", got[0].Message)
	assert.Equal(t, "field required", got[1].Message)
	assert.Equal(t, "extra fields not permitted", got[2].Message)
	assert.Equal(t, []string{"a", "b", "extra"}, got.Fields())
	assert.Contains(t, got.Error(), "3 validation error(s)")
}

func TestValidate_ArtifactNormalization(t *testing.T) {
	t.Parallel()

	values := map[string]any{"input_table": "ds.t1", "raw": "projects/p/locations/l/metadataStores/default/artifacts/1"}

	asStrings, err := FromPipeline(etl(), WithTypeConverter(ArtifactsAsStrings))
	require.NoError(t, err)
	assert.Empty(t, asStrings.Validate(values))

	rich, err := FromPipeline(etl())
	require.NoError(t, err)
	got := rich.Validate(values)
	require.Len(t, got, 1)
	assert.Equal(t, "raw", got[0].Field)
	assert.Equal(t, "value is not a valid artifact", got[0].Message)

	richValue := map[string]any{"input_table": "t", "raw": map[string]any{"name": "d", "uri": "gs://b/d", "metadata": map[string]any{}}}
	assert.Empty(t, rich.Validate(richValue))
	assert.NotEmpty(t, asStrings.Validate(richValue))
}

func TestApply(t *testing.T) {
	t.Parallel()

	s, err := FromPipeline(etl())
	require.NoError(t, err)

	got, err := s.Apply(map[string]any{"input_table": "t"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"input_table": "t", "threshold": 0.5}, got)

	got, err = s.Apply(map[string]any{"input_table": "t", "threshold": 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.9, got["threshold"])
}

func TestValueOf(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := map[string]struct {
		in   any
		want cty.Value
	}{
		"nil":         {in: nil, want: cty.NullVal(cty.DynamicPseudoType)},
		"string":      {in: "x", want: cty.StringVal("x")},
		"int":         {in: 3, want: cty.NumberIntVal(3)},
		"uint64":      {in: uint64(3), want: cty.NumberIntVal(3)},
		"float":       {in: 0.5, want: cty.NumberFloatVal(0.5)},
		"json number": {in: json.Number("7"), want: cty.NumberIntVal(7)},
		"big int":     {in: new(big.Int).Lsh(big.NewInt(1), 80), want: cty.MustParseNumberVal("1208925819614629174706176")},
		"infinity":    {in: math.Inf(1), want: cty.PositiveInfinity},
		"time":        {in: when, want: cty.StringVal("2024-01-02T03:04:05Z")},
		"empty list":  {in: []any{}, want: cty.EmptyTupleVal},
		"typed slice": {in: []string{"a"}, want: cty.TupleVal([]cty.Value{cty.StringVal("a")})},
		"map":         {in: map[string]any{"k": true}, want: cty.ObjectVal(map[string]cty.Value{"k": cty.True})},
		"any map":     {in: map[any]any{1: "one"}, want: cty.ObjectVal(map[string]cty.Value{"1": cty.StringVal("one")})},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ValueOf(tt.in)
			require.NoError(t, err)
			assert.True(t, got.RawEquals(tt.want) || got.Equals(tt.want).True(), "got %#v", got)
		})
	}
}

func TestValueOf_NaN(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in any
	}{
		"float64":     {in: math.NaN()},
		"float32":     {in: float32(math.NaN())},
		"nested list": {in: []any{1.0, math.NaN()}},
		"nested map":  {in: map[string]any{"k": math.NaN()}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ValueOf(tt.in)
			assert.ErrorIs(t, err, ErrNotANumber)
		})
	}
}

func TestValidate_NaNIsWrongType(t *testing.T) {
	t.Parallel()

	s, err := FromPipeline(etl(), WithTypeConverter(ArtifactsAsStrings))
	require.NoError(t, err)

	vs := s.Validate(map[string]any{"input_table": "t", "threshold": math.NaN(), "raw": "uri"})
	require.Len(t, vs, 1)
	assert.Equal(t, WrongType, vs[0].Kind)
	assert.Equal(t, "threshold", vs[0].Field)
	assert.Equal(t, "NaN is not a valid number", vs[0].Message)
}
