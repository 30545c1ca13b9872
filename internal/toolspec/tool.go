package toolspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// emptyParameters is used for tools that declare no parameters.
var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

// Tool is one function definition offered to the model. Tools are loaded once
// and shared read-only by every sample; the parameter schema compiles lazily so
// a broken schema only fails the samples that use it.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage

	once   sync.Once
	schema *Schema
	err    error
}

// Definition is the OpenAI function-tool wire shape.
type Definition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

func New(name, description string, parameters json.RawMessage) *Tool {
	if len(bytes.TrimSpace(parameters)) == 0 || bytes.Equal(bytes.TrimSpace(parameters), []byte("null")) {
		parameters = emptyParameters
	}
	return &Tool{Name: name, Description: description, Parameters: parameters}
}

// Schema returns the compiled parameter schema.
func (t *Tool) Schema() (*Schema, error) {
	t.once.Do(func() {
		s, err := CompileParameters(t.Parameters)
		if err != nil {
			t.err = fmt.Errorf("tool %q: invalid parameter schema: %w", t.Name, err)
			return
		}
		t.schema = s
	})
	return t.schema, t.err
}

// ParamCount is the number of top-level parameters. Tools with a broken schema
// count as zero.
func (t *Tool) ParamCount() int {
	s, err := t.Schema()
	if err != nil {
		return 0
	}
	return len(s.PropertyNames())
}

// ParamNames returns the top-level parameter names in sorted order.
func (t *Tool) ParamNames() []string {
	s, err := t.Schema()
	if err != nil {
		return nil
	}
	return s.PropertyNames()
}

func (t *Tool) Definition() Definition {
	return Definition{
		Type: "function",
		Function: FunctionDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		},
	}
}

// ValidateArguments parses a JSON object of call arguments, checks it against
// the tool schema and returns its canonical encoding.
func (t *Tool) ValidateArguments(data []byte) (json.RawMessage, error) {
	s, err := t.Schema()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("tool %q: arguments are not valid JSON: %w", t.Name, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("tool %q: trailing data after arguments", t.Name)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("tool %q: arguments must be a JSON object", t.Name)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("tool %q: %w", t.Name, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("tool %q: encoding arguments: %w", t.Name, err)
	}
	return out, nil
}

// Names returns the tool names in order.
func Names(tools []*Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Definitions converts a subset to its wire form.
func Definitions(tools []*Tool) []Definition {
	defs := make([]Definition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}

// Find returns the tool with the given name.
func Find(tools []*Tool, name string) (*Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
