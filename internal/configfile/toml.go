package configfile

import (
	"errors"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// loadTOML decodes a TOML config and flattens standard tables into their
// parent, joining keys with "_". Inline tables and arrays of tables are kept
// as values.
func loadTOML(path string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		bad := badConfig(path, err, err.Error())
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			bad.Line, bad.Column = decodeErr.Position()
		}
		return nil, bad
	}
	tables := tomlTables(data)
	out := map[string]any{}
	flattenTables(out, doc, "", "", tables)
	return out, nil
}

// tomlTables returns the dotted path of every standard table header, plus
// the implicit parent tables the header creates.
func tomlTables(data []byte) map[string]bool {
	tables := map[string]bool{}
	var p unstable.Parser
	p.Reset(data)
	for p.NextExpression() {
		expr := p.Expression()
		if expr.Kind != unstable.Table {
			continue
		}
		var parts []string
		for it := expr.Key(); it.Next(); {
			parts = append(parts, string(it.Node().Data))
			tables[strings.Join(parts, ".")] = true
		}
	}
	return tables
}

func flattenTables(out, table map[string]any, keyPrefix, path string, tables map[string]bool) {
	for k, v := range table {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		key := k
		if keyPrefix != "" {
			key = keyPrefix + "_" + k
		}
		if sub, ok := v.(map[string]any); ok && tables[childPath] {
			flattenTables(out, sub, key, childPath, tables)
			continue
		}
		out[key] = v
	}
}
