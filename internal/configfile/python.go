package configfile

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-python/gpython/ast"
	"github.com/go-python/gpython/parser"
	"github.com/go-python/gpython/py"
)

// Python configs are parsed, never executed: import statements and
// docstrings are skipped, and every other statement must assign a literal
// (str, int, float, bool, None, list, tuple, dict) or a name bound earlier.
// Calls, attribute access and operators other than unary sign are rejected.

const (
	parameterValuesName = "parameter_values"
	inputArtifactsName  = "input_artifacts"
)

func loadPython(path string, data []byte) (params, artifacts map[string]any, err error) {
	mod, err := parser.Parse(bytes.NewReader(data), path, "exec")
	if err != nil {
		return nil, nil, pySyntaxBadConfig(path, err)
	}
	module, ok := mod.(*ast.Module)
	if !ok {
		return nil, nil, badConfig(path, nil, fmt.Sprintf("unexpected parse result %T", mod))
	}

	ev := &pyEvaluator{scope: map[string]any{}, nodes: map[string]ast.Ast{}}
	for _, stmt := range module.Body {
		if err := ev.statement(stmt); err != nil {
			return nil, nil, pyBadConfig(path, err)
		}
	}

	if params, err = ev.mapping(parameterValuesName); err != nil {
		return nil, nil, pyBadConfig(path, err)
	}
	if artifacts, err = ev.mapping(inputArtifactsName); err != nil {
		return nil, nil, pyBadConfig(path, err)
	}
	return params, artifacts, nil
}

// pySyntaxBadConfig reads the position gpython stores on SyntaxError
// exceptions.
func pySyntaxBadConfig(path string, err error) *BadConfigError {
	bad := badConfig(path, err, err.Error())
	var exc *py.Exception
	if !errors.As(err, &exc) {
		return bad
	}
	if args, ok := exc.Args.(py.Tuple); ok && len(args) > 0 {
		if msg, ok := args[0].(py.String); ok {
			bad.Reason = string(msg)
		}
	}
	if line, ok := exc.Dict["lineno"].(py.Int); ok {
		bad.Line = int(line)
		bad.Column = 1
		if offset, ok := exc.Dict["offset"].(py.Int); ok && offset > 0 {
			bad.Column = int(offset)
		}
	}
	return bad
}

func pyBadConfig(path string, err error) *BadConfigError {
	bad := badConfig(path, err, err.Error())
	var pe *pyError
	if errors.As(err, &pe) {
		bad.Line, bad.Column, bad.Reason = pe.Line, pe.Column, pe.Msg
	}
	return bad
}

type pyError struct {
	Line, Column int
	Msg          string
}

func (e *pyError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

func errorAt(node ast.Ast, format string, args ...any) error {
	return &pyError{Line: node.GetLineno(), Column: node.GetColOffset() + 1, Msg: fmt.Sprintf(format, args...)}
}

// nodeName names an AST node type for messages, e.g. "FunctionDef".
func nodeName(node ast.Ast) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", node), "*ast.")
}

type pyEvaluator struct {
	scope map[string]any
	nodes map[string]ast.Ast
}

func (ev *pyEvaluator) statement(stmt ast.Stmt) error {
	switch s := stmt.(type) {
	case *ast.Import, *ast.ImportFrom, *ast.Pass:
		return nil
	case *ast.ExprStmt:
		if _, ok := s.Value.(*ast.Str); ok {
			return nil
		}
		return errorAt(s, "only assignments and imports are supported, found a bare %s expression", nodeName(s.Value))
	case *ast.Assign:
		v, err := ev.expr(s.Value)
		if err != nil {
			return err
		}
		for _, target := range s.Targets {
			name, ok := target.(*ast.Name)
			if !ok {
				return errorAt(target, "only assignments to plain names are supported, found %s", nodeName(target))
			}
			ev.scope[string(name.Id)] = v
			ev.nodes[string(name.Id)] = name
		}
		return nil
	}
	return errorAt(stmt, "only assignments and imports are supported, found %s", nodeName(stmt))
}

func (ev *pyEvaluator) expr(e ast.Expr) (any, error) {
	switch x := e.(type) {
	case *ast.Str:
		return string(x.S), nil
	case *ast.Num:
		return ev.number(x)
	case *ast.NameConstant:
		switch v := x.Value.(type) {
		case py.Bool:
			return bool(v), nil
		case py.NoneType:
			return nil, nil
		}
		return nil, errorAt(x, "unsupported constant %v", x.Value)
	case *ast.Name:
		v, ok := ev.scope[string(x.Id)]
		if !ok {
			return nil, errorAt(x, "name %q is not defined", string(x.Id))
		}
		return v, nil
	case *ast.List:
		return ev.sequence(x.Elts)
	case *ast.Tuple:
		return ev.sequence(x.Elts)
	case *ast.Dict:
		return ev.dict(x)
	case *ast.UnaryOp:
		return ev.unary(x)
	case *ast.BinOp:
		return nil, errorAt(x, "operator %q is not supported", binOpSymbol(x.Op))
	case *ast.BoolOp, *ast.Compare:
		return nil, errorAt(x, "operators are not supported")
	case *ast.Call, *ast.Attribute, *ast.Subscript:
		return nil, errorAt(x, "calls and attribute access are not supported")
	case *ast.Set:
		return nil, errorAt(x, "set literals are not supported")
	case *ast.Bytes:
		return nil, errorAt(x, "bytes literals are not supported")
	}
	return nil, errorAt(e, "%s expressions are not supported", nodeName(e))
}

func (ev *pyEvaluator) number(n *ast.Num) (any, error) {
	switch v := n.N.(type) {
	case py.Int:
		return int64(v), nil
	case *py.BigInt:
		return normalizeInt(new(big.Int).Set((*big.Int)(v))), nil
	case py.Float:
		return float64(v), nil
	}
	return nil, errorAt(n, "%s literals are not supported", n.N.Type().Name)
}

// normalizeInt returns an int64 when i fits, and i otherwise.
func normalizeInt(i *big.Int) any {
	if i.IsInt64() {
		return i.Int64()
	}
	return i
}

func (ev *pyEvaluator) unary(u *ast.UnaryOp) (any, error) {
	if u.Op != ast.USub && u.Op != ast.UAdd {
		return nil, errorAt(u, "unary operator %v is not supported", u.Op)
	}
	v, err := ev.expr(u.Operand)
	if err != nil {
		return nil, err
	}
	if u.Op == ast.UAdd {
		switch v.(type) {
		case int64, *big.Int, float64:
			return v, nil
		}
	} else {
		switch x := v.(type) {
		case int64:
			return normalizeInt(new(big.Int).Neg(big.NewInt(x))), nil
		case *big.Int:
			return normalizeInt(new(big.Int).Neg(x)), nil
		case float64:
			return -x, nil
		}
	}
	return nil, errorAt(u, "unary sign needs a number, got %s", pyTypeName(v))
}

func (ev *pyEvaluator) sequence(elts []ast.Expr) ([]any, error) {
	out := make([]any, 0, len(elts))
	for _, elt := range elts {
		v, err := ev.expr(elt)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ev *pyEvaluator) dict(d *ast.Dict) (map[string]any, error) {
	out := make(map[string]any, len(d.Keys))
	for i, k := range d.Keys {
		key, ok := k.(*ast.Str)
		if !ok {
			return nil, errorAt(k, "dict keys must be strings")
		}
		v, err := ev.expr(d.Values[i])
		if err != nil {
			return nil, err
		}
		out[string(key.S)] = v
	}
	return out, nil
}

func (ev *pyEvaluator) mapping(name string) (map[string]any, error) {
	v, ok := ev.scope[name]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errorAt(ev.nodes[name], "%s must be a dict, got %s", name, pyTypeName(v))
	}
	return m, nil
}

func binOpSymbol(op ast.OperatorNumber) string {
	switch op {
	case ast.Add:
		return "+"
	case ast.Sub:
		return "-"
	case ast.Mult:
		return "*"
	case ast.Div:
		return "/"
	case ast.FloorDiv:
		return "//"
	case ast.Modulo:
		return "%"
	case ast.Pow:
		return "**"
	}
	return fmt.Sprint(op)
}

func pyTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case string:
		return "str"
	case bool:
		return "bool"
	case int64, *big.Int:
		return "int"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	}
	return fmt.Sprintf("%T", v)
}
