package configfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"gopkg.in/yaml.v3"
)

func loadJSON(path string, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, badConfig(path, nil, "empty JSON document")
	}
	out, err := koanfjson.Parser().Unmarshal(data)
	if err != nil {
		bad := badConfig(path, err, err.Error())
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &syntaxErr):
			bad.Line, bad.Column = lineColumn(data, syntaxErr.Offset)
		case errors.As(err, &typeErr):
			bad.Line, bad.Column = lineColumn(data, typeErr.Offset)
			bad.Reason = fmt.Sprintf("top-level value must be an object, got %s", typeErr.Value)
		}
		return nil, bad
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// lineColumn converts a byte offset into a 1-based line and column.
func lineColumn(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func loadYAML(path string, data []byte) (map[string]any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		line, col := extractLineColumn(err.Error())
		return nil, &BadConfigError{Path: path, Line: line, Column: col, Reason: cleanYAMLError(err.Error()), Err: err}
	}
	if len(node.Content) == 0 {
		return map[string]any{}, nil
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &BadConfigError{Path: path, Line: root.Line, Column: root.Column, Reason: "top-level value must be a mapping"}
	}
	var out map[string]any
	if err := root.Decode(&out); err != nil {
		line, col := extractLineColumn(err.Error())
		return nil, &BadConfigError{Path: path, Line: line, Column: col, Reason: cleanYAMLError(err.Error()), Err: err}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

var yamlLineRe = regexp.MustCompile(`line (\d+)(?:: column (\d+))?`)

// extractLineColumn pulls the position out of a yaml.v3 error such as
// "yaml: line 5: could not find expected ':'".
func extractLineColumn(errMsg string) (line, column int) {
	m := yamlLineRe.FindStringSubmatch(errMsg)
	if m == nil {
		return 0, 0
	}
	fmt.Sscanf(m[1], "%d", &line)
	column = 1
	if m[2] != "" {
		fmt.Sscanf(m[2], "%d", &column)
	}
	return line, column
}

func cleanYAMLError(errMsg string) string {
	if !strings.HasPrefix(errMsg, "yaml:") {
		return errMsg
	}
	if idx := strings.LastIndex(errMsg, ": "); idx > 0 {
		return errMsg[idx+2:]
	}
	return strings.TrimSpace(strings.TrimPrefix(errMsg, "yaml:"))
}
