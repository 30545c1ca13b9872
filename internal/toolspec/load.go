package toolspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawTool struct {
	Type        string          `json:"type"`
	Function    *rawFunction    `json:"function"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type rawFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Load reads tool definitions from a .json, .yaml or .yml file.
func Load(path string) ([]*Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tools %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing tools %s: %w", path, err)
		}
	}
	tools, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing tools %s: %w", path, err)
	}
	return tools, nil
}

// Parse decodes a JSON list of tools. Both the plain {name, description,
// parameters} shape and the OpenAI {type, function} wrapper are accepted.
func Parse(data []byte) ([]*Tool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("tool definitions must be a JSON list")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no tools defined")
	}

	tools := make([]*Tool, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, item := range items {
		var rt rawTool
		if err := json.Unmarshal(item, &rt); err != nil {
			return nil, fmt.Errorf("tool %d: %w", i, err)
		}
		name, desc, params := rt.Name, rt.Description, rt.Parameters
		if rt.Function != nil {
			name, desc, params = rt.Function.Name, rt.Function.Description, rt.Function.Parameters
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("tool %d: name is required", i)
		}
		if j, dup := seen[name]; dup {
			return nil, fmt.Errorf("tool %d: duplicate name %q (first defined at %d)", i, name, j)
		}
		seen[name] = i
		tools = append(tools, New(name, desc, params))
	}
	return tools, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
