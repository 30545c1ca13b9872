package toolspec_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

func TestLoadJSON(t *testing.T) {
	tools, err := toolspec.Load("../../testdata/tools.json")
	require.NoError(t, err)
	require.Len(t, tools, 3)

	assert.Equal(t, []string{"get_weather", "search_flights", "send_email"}, toolspec.Names(tools))
	assert.Equal(t, 2, tools[0].ParamCount())
	assert.Equal(t, 4, tools[1].ParamCount())
	assert.Equal(t, "Send an email message to a list of recipients", tools[2].Description)
}

func TestLoadYAML(t *testing.T) {
	tools, err := toolspec.Load("../../testdata/tools.yaml")
	require.NoError(t, err)
	require.Len(t, tools, 3)

	assert.Equal(t, "create_event", tools[2].Name)
	assert.Equal(t, 0, tools[1].ParamCount(), "tool without parameters")
	_, err = tools[1].Schema()
	assert.NoError(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not a list", `{"name": "x"}`},
		{"empty list", `[]`},
		{"missing name", `[{"description": "d"}]`},
		{"duplicate", `[{"name": "a"}, {"name": "a"}]`},
		{"garbage", `[{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toolspec.Parse([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestMalformedSchemaLoadsButFailsCompile(t *testing.T) {
	tools, err := toolspec.Parse([]byte(`[
		{"name": "ok", "parameters": {"type": "object", "properties": {"a": {"type": "string"}}}},
		{"name": "broken", "parameters": {"type": "object", "properties": {"tags": {"type": "array"}}}}
	]`))
	require.NoError(t, err)

	_, err = tools[0].Schema()
	assert.NoError(t, err)
	_, err = tools[1].Schema()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires items")
	assert.Equal(t, 0, tools[1].ParamCount())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := toolspec.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadYAMLNonList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0o644))
	_, err := toolspec.Load(path)
	assert.Error(t, err)
}

func TestValidateArguments(t *testing.T) {
	tools, err := toolspec.Load("../../testdata/tools.yaml")
	require.NoError(t, err)
	event := tools[2]

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"minimal", `{"title": "sync"}`, false},
		{"nested items", `{"title": "sync", "attendees": [{"email": "a@b.c", "optional": true}]}`, false},
		{"nested item missing required", `{"title": "sync", "attendees": [{"optional": true}]}`, true},
		{"nested item wrong type", `{"title": "sync", "attendees": [{"email": 3}]}`, true},
		{"missing required", `{"attendees": []}`, true},
		{"not object", `["sync"]`, true},
		{"invalid json", `{"title": `, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := event.ValidateArguments([]byte(tt.args))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateArgumentsCanonical(t *testing.T) {
	tools, err := toolspec.Load("../../testdata/tools.json")
	require.NoError(t, err)

	out, err := tools[1].ValidateArguments([]byte(`{"passengers": 2, "origin": "SFO", "destination": "JFK", "date": "2025-01-01"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-01-01","destination":"JFK","origin":"SFO","passengers":2}`, string(out))
	assert.Equal(t, `{"date":"2025-01-01","destination":"JFK","origin":"SFO","passengers":2}`, string(out))

	_, err = tools[1].ValidateArguments([]byte(`{"origin": "SFO", "destination": "JFK", "date": "x", "passengers": 0}`))
	assert.Error(t, err, "below minimum")
}

func TestValidateArgumentsIntegralNumbers(t *testing.T) {
	tool := toolspec.New("count", "", json.RawMessage(`{"type": "object", "properties": {"n": {"type": "integer"}}, "required": ["n"]}`))
	for _, args := range []string{`{"n": 5}`, `{"n": 5.0}`, `{"n": 1e2}`} {
		_, err := tool.ValidateArguments([]byte(args))
		assert.NoError(t, err, args)
	}
	_, err := tool.ValidateArguments([]byte(`{"n": 2.5}`))
	var argErr *toolspec.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "/n", argErr.Path)
}

func TestDefinition(t *testing.T) {
	tool := toolspec.New("noop", "does nothing", nil)
	data, err := json.Marshal(tool.Definition())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"noop","description":"does nothing","parameters":{"type":"object","properties":{}}}}`, string(data))
}
