package prompts_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/toolsgen/internal/prompts"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

func TestProblemSystem(t *testing.T) {
	b, err := prompts.NewBuilder(0)
	require.NoError(t, err)
	tools := []*toolspec.Tool{
		toolspec.New("get_weather", "Current weather", nil),
		toolspec.New("noop", "", nil),
	}

	p := b.ProblemSystem(tools, "tr")
	assert.Contains(t, p, "- get_weather: Current weather")
	assert.Contains(t, p, "- noop: No description")
	assert.Contains(t, p, "in Turkish")
	assert.Equal(t, p, b.ProblemSystem(tools, "tr"), "cached listing renders identically")
}

func TestJudgeSystem(t *testing.T) {
	b, err := prompts.NewBuilder(4)
	require.NoError(t, err)
	tools := []*toolspec.Tool{toolspec.New("get_weather", "Current weather", json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`))}

	p := b.JudgeSystem("Weather in Oslo?", tools, []prompts.Call{{Name: "get_weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)}})
	assert.Contains(t, p, "Weather in Oslo?")
	assert.Contains(t, p, `- get_weather({"city":"Oslo"})`)
	assert.Contains(t, p, `"city": {`)

	empty := b.JudgeSystem("x", tools, nil)
	assert.Contains(t, empty, "assistant:\nNone")
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", prompts.LanguageName("en"))
	assert.Equal(t, "Spanish", prompts.LanguageName("ES"))
	assert.Equal(t, "Klingon", prompts.LanguageName("Klingon"))
}
