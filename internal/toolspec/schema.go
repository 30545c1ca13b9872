package toolspec

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// schemaURL names the single resource each parameter schema is compiled as.
// Every tool gets its own compiler, so one broken schema never affects another.
const schemaURL = "parameters.json"

// Schema is a compiled tool parameter schema.
type Schema struct {
	compiled *jsonschema.Schema
	// Raw is the decoded document, numbers kept as json.Number.
	Raw        map[string]any
	properties []string
}

// ArgumentError reports where a value departs from its schema. Path is a
// JSON pointer into the arguments ("/" for the object itself).
type ArgumentError struct {
	Path string
	Msg  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

// CompileParameters compiles a tool parameter schema. The root must describe
// an object. On top of JSON Schema, function-calling APIs require every array
// to declare items and every enum to list at least one value.
func CompileParameters(raw []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, errors.New("schema must be an object")
	}
	if t, ok := root["type"]; ok && !hasType(t, "object") {
		return nil, errors.New(`parameters must be of type "object"`)
	}
	if err := checkFunctionSchema(root, "#"); err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, err
	}

	s := &Schema{compiled: compiled, Raw: root}
	if props, ok := root["properties"].(map[string]any); ok {
		for name := range props {
			s.properties = append(s.properties, name)
		}
		sort.Strings(s.properties)
	}
	return s, nil
}

func checkFunctionSchema(node map[string]any, path string) error {
	if t, ok := node["type"]; ok && hasType(t, "array") {
		if _, ok := node["items"]; !ok {
			return fmt.Errorf("%s: array schema requires items", path)
		}
	}
	if e, ok := node["enum"]; ok {
		if list, ok := e.([]any); ok && len(list) == 0 {
			return fmt.Errorf("%s: enum must list at least one value", path)
		}
	}
	for _, key := range []string{"properties", "$defs", "definitions"} {
		children, _ := node[key].(map[string]any)
		for name, child := range children {
			if err := checkChild(child, path+"/"+key+"/"+name); err != nil {
				return err
			}
		}
	}
	for _, key := range []string{"items", "additionalProperties"} {
		if err := checkChild(node[key], path+"/"+key); err != nil {
			return err
		}
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		list, _ := node[key].([]any)
		for i, child := range list {
			if err := checkChild(child, fmt.Sprintf("%s/%s/%d", path, key, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkChild(v any, path string) error {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return checkFunctionSchema(m, path)
}

func hasType(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if e == want {
				return true
			}
		}
	}
	return false
}

// PropertyNames returns the declared top-level property names sorted.
func (s *Schema) PropertyNames() []string {
	return append([]string(nil), s.properties...)
}

// Validate checks a value decoded with json.Decoder.UseNumber.
func (s *Schema) Validate(v any) error {
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &ArgumentError{
		Path: "/" + strings.Join(leaf.InstanceLocation, "/"),
		Msg:  leaf.ErrorKind.LocalizedString(printer),
	}
}
