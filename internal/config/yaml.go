package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// configJSON returns the config file as JSON so YAML and JSON share the strict
// decoder. The format is picked by extension: .yaml and .yml are YAML,
// anything else is read as JSON.
func configJSON(path string, data []byte) (out []byte, format string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc == nil {
		// Empty or comment-only file: everything comes from env and defaults.
		return []byte("{}"), "yaml", nil
	}
	out, err = json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("convert %s to json: %w", filepath.Base(path), err)
	}
	return out, "yaml", nil
}

// stringKeys rewrites map keys as strings. YAML allows non-string keys
// (an unquoted 123: under a mapping) that encoding/json cannot marshal.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	}
	return v
}
