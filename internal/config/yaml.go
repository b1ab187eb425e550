package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON normalizes a config file to JSON bytes. The format is picked by
// extension; YAML documents go through a YAML->JSON round trip so both
// formats share the strict decoder (DisallowUnknownFields) in Parse.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites map keys to strings. YAML permits non-string keys
// that json.Marshal rejects.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range node {
			node[k] = stringifyKeys(val)
		}
		return node
	case []any:
		for i, val := range node {
			node[i] = stringifyKeys(val)
		}
		return node
	}
	return v
}
