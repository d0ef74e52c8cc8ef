package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"
)

// ValueOf converts a decoded config value into a cty value. Sequences
// become tuples and mappings become objects so that their shape can be
// checked element by element.
func ValueOf(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int8:
		return cty.NumberIntVal(int64(x)), nil
	case int16:
		return cty.NumberIntVal(int64(x)), nil
	case int32:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case uint:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint8:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint16:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint32:
		return cty.NumberUIntVal(uint64(x)), nil
	case uint64:
		return cty.NumberUIntVal(x), nil
	case float32:
		return floatVal(float64(x))
	case float64:
		return floatVal(x)
	case *big.Float:
		return cty.NumberVal(x), nil
	case *big.Int:
		return cty.NumberVal(new(big.Float).SetInt(x)), nil
	case json.Number:
		return cty.ParseNumberVal(x.String())
	case time.Time:
		return cty.StringVal(x.Format(time.RFC3339)), nil
	case []any:
		return tupleOf(x)
	case map[string]any:
		return objectOf(x)
	case fmt.Stringer:
		return cty.StringVal(x.String()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]any, rv.Len())
		for i := range elems {
			elems[i] = rv.Index(i).Interface()
		}
		return tupleOf(elems)
	case reflect.Map:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return objectOf(m)
	case reflect.Pointer:
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType), nil
		}
		return ValueOf(rv.Elem().Interface())
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
}

// ErrNotANumber is returned for NaN, which has no cty number value.
var ErrNotANumber = errors.New("NaN is not a valid number")

func floatVal(f float64) (cty.Value, error) {
	if math.IsNaN(f) {
		return cty.NilVal, ErrNotANumber
	}
	return cty.NumberFloatVal(f), nil
}

func tupleOf(elems []any) (cty.Value, error) {
	if len(elems) == 0 {
		return cty.EmptyTupleVal, nil
	}
	vals := make([]cty.Value, len(elems))
	for i, e := range elems {
		val, err := ValueOf(e)
		if err != nil {
			return cty.NilVal, fmt.Errorf("[%d]: %w", i, err)
		}
		vals[i] = val
	}
	return cty.TupleVal(vals), nil
}

func objectOf(m map[string]any) (cty.Value, error) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make(map[string]cty.Value, len(m))
	for _, k := range keys {
		val, err := ValueOf(m[k])
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", k, err)
		}
		attrs[k] = val
	}
	return cty.ObjectVal(attrs), nil
}
