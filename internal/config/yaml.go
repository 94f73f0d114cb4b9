package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// asJSON returns the raw config bytes in JSON form so Parse runs one strict
// decoder (DisallowUnknownFields) over both formats. Files with a .yaml or
// .yml extension are decoded and re-marshaled; anything else is taken as
// JSON already. The returned format tag ("json" or "yaml") feeds log lines.
func asJSON(path string, raw []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, "json", nil
	}

	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, "yaml", fmt.Errorf("decode yaml: %w", err)
	}
	data, err := json.Marshal(stringKeys(tree))
	if err != nil {
		return nil, "yaml", fmt.Errorf("re-encode yaml as json: %w", err)
	}
	return data, "yaml", nil
}

// stringKeys rewrites map[any]any nodes, which the YAML decoder can emit
// and encoding/json refuses to marshal.
func stringKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	}
	return node
}
