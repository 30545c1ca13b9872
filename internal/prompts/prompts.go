package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

const (
	ProblemUserMessage = "Generate a realistic user request that would require using these tools."
	CallerSystemPrompt = "You are a helpful assistant that uses tools to answer user requests. Generate appropriate tool calls based on the user's request."
	JudgeUserMessage   = "Evaluate the tool calls according to the rubric and return the JSON score."
)

const defaultCacheSize = 256

var languageNames = map[string]string{
	"en": "English",
	"tr": "Turkish",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
	"ar": "Arabic",
	"hi": "Hindi",
}

// LanguageName maps an ISO 639-1 code to its English name. Unknown values are
// returned unchanged so callers may pass full names.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// Call is a validated tool call as shown to the judge.
type Call struct {
	Name      string
	Arguments json.RawMessage
}

// Builder renders stage prompts. Tool listings are cached per subset since
// batching and small pools repeat the same subsets many times.
type Builder struct {
	brief    *lru.Cache[string, string]
	detailed *lru.Cache[string, string]
}

func NewBuilder(cacheSize int) (*Builder, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	brief, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating prompt cache: %w", err)
	}
	detailed, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating prompt cache: %w", err)
	}
	return &Builder{brief: brief, detailed: detailed}, nil
}

// ProblemSystem is the problem generator's system prompt.
func (b *Builder) ProblemSystem(tools []*toolspec.Tool, language string) string {
	return fmt.Sprintf(`You write realistic requests that a user might send to an AI assistant.

The assistant has access to these tools:
%s

Write ONE natural, specific request in %s that can only be fulfilled by calling one or more of the tools above.
Include every concrete detail (names, places, dates, amounts) the tools would need.
Do not mention the tools by name and do not explain anything. Reply with the request text only.`,
		b.briefList(tools), LanguageName(language))
}

// JudgeSystem is the judge's system prompt with the rubric.
func (b *Builder) JudgeSystem(userRequest string, tools []*toolspec.Tool, calls []Call) string {
	var cl strings.Builder
	for _, c := range calls {
		fmt.Fprintf(&cl, "- %s(%s)\n", c.Name, string(c.Arguments))
	}
	callsList := strings.TrimRight(cl.String(), "\n")
	if callsList == "" {
		callsList = "None"
	}
	return fmt.Sprintf(`You are a strict reviewer of tool-calling training data.

User request:
%s

Available tools:
%s

Tool calls made by the assistant:
%s

Score the tool calls with this rubric:
- tool_relevance (0.0 to 0.4): the right tools were chosen for the request and nothing needed is missing.
- argument_quality (0.0 to 0.4): arguments are complete, correctly typed and faithful to the request.
- clarity (0.0 to 0.2): the request is natural and unambiguous.

score is the sum of the three. verdict is "accept" when score >= 0.7, otherwise "reject".
Respond with ONLY a JSON object with the keys rationale, tool_relevance, argument_quality, clarity, score and verdict.`,
		userRequest, b.detailedList(tools), callsList)
}

func subsetKey(tools []*toolspec.Tool) string {
	return strings.Join(toolspec.Names(tools), "\x00")
}

func (b *Builder) briefList(tools []*toolspec.Tool) string {
	key := subsetKey(tools)
	if s, ok := b.brief.Get(key); ok {
		return s
	}
	lines := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = fmt.Sprintf("- %s: %s", t.Name, describe(t))
	}
	s := strings.Join(lines, "\n")
	b.brief.Add(key, s)
	return s
}

func (b *Builder) detailedList(tools []*toolspec.Tool) string {
	key := subsetKey(tools)
	if s, ok := b.detailed.Get(key); ok {
		return s
	}
	lines := make([]string, len(tools))
	for i, t := range tools {
		var params bytes.Buffer
		if err := json.Indent(&params, t.Parameters, "", "  "); err != nil {
			params.Reset()
			params.Write(t.Parameters)
		}
		lines[i] = fmt.Sprintf("- %s: %s (params: %s)", t.Name, describe(t), params.String())
	}
	s := strings.Join(lines, "\n")
	b.detailed.Add(key, s)
	return s
}

func describe(t *toolspec.Tool) string {
	if t.Description == "" {
		return "No description"
	}
	return t.Description
}
