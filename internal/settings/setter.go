package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyKeyPath is returned when an empty key path is provided.
var ErrEmptyKeyPath = errors.New("empty key path")

func parseKeyPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyKeyPath
	}
	return strings.Split(path, "."), nil
}

// SetValue validates value for key and writes it to the settings file at
// path, keeping the rest of the document and its comments. The file is
// created if needed.
func SetValue(path, key, value string) error {
	parsed, err := ParseValue(key, value)
	if err != nil {
		return fmt.Errorf("validating value: %w", err)
	}
	root, err := loadOrCreateYAML(path)
	if err != nil {
		return err
	}
	keyPath, err := parseKeyPath(key)
	if err != nil {
		return err
	}
	if err := setNestedValue(root, keyPath, parsed); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return writeYAML(path, root)
}

// UnsetValue removes key from the settings file so the default applies
// again. Removing an absent key is not an error. Parent mappings left empty
// are removed too.
func UnsetValue(path, key string) error {
	if _, err := KeySchemaFor(key); err != nil {
		return err
	}
	root, err := loadOrCreateYAML(path)
	if err != nil {
		return err
	}
	keyPath, err := parseKeyPath(key)
	if err != nil {
		return err
	}
	mapNode := documentMapping(root)
	if mapNode == nil || !removeKey(mapNode, keyPath) {
		return nil
	}
	return writeYAML(path, root)
}

// Values returns the settings file's own keys, flattened to dotted paths.
func Values(path string) (map[string]any, error) {
	root, err := loadOrCreateYAML(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	mapNode := documentMapping(root)
	if mapNode == nil {
		return out, nil
	}
	var raw map[string]any
	if err := mapNode.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	flatten("", raw, out)
	return out, nil
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}

func documentMapping(root *yaml.Node) *yaml.Node {
	switch {
	case root.Kind == yaml.DocumentNode && len(root.Content) > 0 && root.Content[0].Kind == yaml.MappingNode:
		return root.Content[0]
	case root.Kind == yaml.MappingNode:
		return root
	}
	return nil
}

func setNestedValue(root *yaml.Node, keyPath []string, value any) error {
	if root.Kind == 0 || (root.Kind == yaml.DocumentNode && len(root.Content) == 0) {
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{{Kind: yaml.MappingNode}}
	}
	mapNode := documentMapping(root)
	if mapNode == nil {
		return fmt.Errorf("settings document must be a mapping")
	}
	return setValueInMap(mapNode, keyPath, value)
}

func setValueInMap(node *yaml.Node, keyPath []string, value any) error {
	key, remaining := keyPath[0], keyPath[1:]

	idx := findKeyIndex(node, key)
	if idx == -1 {
		child := &yaml.Node{Kind: yaml.MappingNode}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
		idx = len(node.Content) - 2
	}

	child := node.Content[idx+1]
	if len(remaining) == 0 {
		setScalarValue(child, value)
		return nil
	}
	if child.Kind != yaml.MappingNode {
		child.Kind = yaml.MappingNode
		child.Tag = ""
		child.Value = ""
		child.Content = nil
	}
	return setValueInMap(child, remaining, value)
}

func findKeyIndex(node *yaml.Node, key string) int {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func setScalarValue(node *yaml.Node, value any) {
	node.Content = nil
	node.Style = 0
	switch v := value.(type) {
	case bool:
		node.Kind, node.Tag, node.Value = yaml.ScalarNode, "!!bool", fmt.Sprintf("%t", v)
	case []string:
		node.Kind, node.Tag, node.Value = yaml.SequenceNode, "!!seq", ""
		for _, item := range v {
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
	default:
		node.Kind, node.Tag, node.Value = yaml.ScalarNode, "!!str", fmt.Sprint(v)
	}
}

// removeKey deletes keyPath from node and reports whether anything changed.
func removeKey(node *yaml.Node, keyPath []string) bool {
	idx := findKeyIndex(node, keyPath[0])
	if idx == -1 {
		return false
	}
	if len(keyPath) == 1 {
		node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
		return true
	}
	child := node.Content[idx+1]
	if child.Kind != yaml.MappingNode || !removeKey(child, keyPath[1:]) {
		return false
	}
	if len(child.Content) == 0 {
		node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
	}
	return true
}

func loadOrCreateYAML(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &InvalidSettingsError{Path: path, Err: err}
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	return &root, nil
}

func writeYAML(path string, root *yaml.Node) error {
	content, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := writeAtomically(path, content); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// writeAtomically writes content through a temporary file and a rename.
func writeAtomically(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	tmpPath = ""
	return nil
}
