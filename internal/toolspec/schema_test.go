package toolspec_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"not object", `"string"`},
		{"unknown type", `{"type": "object", "properties": {"a": {"type": "text"}}}`},
		{"array without items", `{"type": "object", "properties": {"a": {"type": "array"}}}`},
		{"nested array without items", `{"type": "object", "properties": {"a": {"type": "array", "items": {"type": "array"}}}}`},
		{"properties not object", `{"type": "object", "properties": []}`},
		{"required not list", `{"type": "object", "required": "a"}`},
		{"root not object", `{"type": "string"}`},
		{"empty enum", `{"type": "object", "properties": {"a": {"enum": []}}}`},
		{"array without items under anyOf", `{"type": "object", "properties": {"a": {"anyOf": [{"type": "array"}, {"type": "string"}]}}}`},
		{"bad keyword value", `{"type": "object", "properties": {"a": {"type": "string", "maxLength": "ten"}}}`},
		{"negative minLength", `{"type": "object", "properties": {"a": {"type": "string", "minLength": -1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toolspec.CompileParameters(json.RawMessage(tt.schema))
			assert.Error(t, err)
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	schema, err := toolspec.CompileParameters(json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 2, "maxLength": 5},
			"count": {"type": "integer", "minimum": 0, "maximum": 10},
			"ratio": {"type": "number"},
			"mode": {"enum": ["fast", "slow"]},
			"matrix": {"type": "array", "items": {"type": "array", "items": {"type": "number"}}, "maxItems": 2},
			"id": {"anyOf": [{"type": "string"}, {"type": "integer"}]},
			"note": {"type": ["string", "null"]}
		},
		"additionalProperties": false
	}`))
	require.NoError(t, err)

	tests := []struct {
		name     string
		value    string
		wantErr  bool
		wantPath string
	}{
		{"valid", `{"name": "abc", "count": 3, "ratio": 0.5, "mode": "fast", "matrix": [[1, 2.5], []], "id": 7, "note": null}`, false, ""},
		{"integer accepted as number", `{"ratio": 2}`, false, ""},
		{"integral float is an integer", `{"count": 5.0}`, false, ""},
		{"exponent integer", `{"count": 1e1}`, false, ""},
		{"too short", `{"name": "a"}`, true, "/name"},
		{"too long", `{"name": "abcdef"}`, true, "/name"},
		{"fraction for integer", `{"count": 1.5}`, true, "/count"},
		{"above maximum", `{"count": 11}`, true, "/count"},
		{"bad enum", `{"mode": "medium"}`, true, "/mode"},
		{"deep item type", `{"matrix": [[1], ["x"]]}`, true, "/matrix/1/0"},
		{"too many items", `{"matrix": [[], [], []]}`, true, "/matrix"},
		{"anyOf miss", `{"id": true}`, true, "/id"},
		{"unexpected property", `{"extra": 1}`, true, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(decode(t, tt.value))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var argErr *toolspec.ArgumentError
			require.True(t, errors.As(err, &argErr), "got %v", err)
			assert.Equal(t, tt.wantPath, argErr.Path)
			assert.NotEmpty(t, argErr.Msg)
		})
	}
}

func TestOneOf(t *testing.T) {
	schema, err := toolspec.CompileParameters(json.RawMessage(`{
		"properties": {"v": {"oneOf": [{"type": "number"}, {"type": "integer"}]}}
	}`))
	require.NoError(t, err)

	assert.NoError(t, schema.Validate(decode(t, `{"v": 1.5}`)))
	assert.Error(t, schema.Validate(decode(t, `{"v": 2}`)), "integer matches both branches")
}

func TestCompiledSchemasAreIndependent(t *testing.T) {
	_, err := toolspec.CompileParameters([]byte(`{"type": "object", "properties": {"a": {"type": "nope"}}}`))
	require.Error(t, err)

	good, err := toolspec.CompileParameters([]byte(`{"type": "object", "properties": {"b": {"type": "integer"}}, "required": ["b"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, good.PropertyNames())
	assert.NoError(t, good.Validate(decode(t, `{"b": 2}`)))
}
