// Package llmtest provides a deterministic completion client for tests and
// dry runs. It never touches the network.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

// Handler answers one request for a role.
type Handler func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Scripted answers every role with a handler. Unset handlers fall back to
// defaults that always produce output the pipeline accepts.
type Scripted struct {
	Problem Handler
	Caller  Handler
	Judge   Handler

	mu    sync.Mutex
	calls map[llm.Role]int
}

func New() *Scripted {
	return &Scripted{calls: make(map[llm.Role]int)}
}

func (s *Scripted) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[llm.Role]int)
	}
	s.calls[req.Role]++
	s.mu.Unlock()

	var h Handler
	switch req.Role {
	case llm.RoleProblemGenerator:
		h = s.Problem
		if h == nil {
			h = DefaultProblem
		}
	case llm.RoleToolCaller:
		h = s.Caller
		if h == nil {
			h = DefaultCaller
		}
	case llm.RoleJudge:
		h = s.Judge
		if h == nil {
			h = JudgeScores(0.4, 0.35, 0.18)
		}
	default:
		return nil, fmt.Errorf("llmtest: unknown role %q", req.Role)
	}
	return h(ctx, req)
}

// Calls reports how many requests a role has received.
func (s *Scripted) Calls(role llm.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[role]
}

// DefaultProblem returns a request that depends only on the request seed.
func DefaultProblem(_ context.Context, req *llm.Request) (*llm.Response, error) {
	seed := int64(0)
	if req.Seed != nil {
		seed = *req.Seed
	}
	return &llm.Response{Content: fmt.Sprintf("Please handle request #%d for me.", seed%100000)}, nil
}

// DefaultCaller calls the first offered tool with arguments synthesized from
// its parameter schema.
func DefaultCaller(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if len(req.Tools) == 0 {
		return &llm.Response{Content: "no tools"}, nil
	}
	fn := req.Tools[0].Function
	args, err := Arguments(fn.Parameters)
	if err != nil {
		return nil, err
	}
	return &llm.Response{ToolCalls: []llm.ToolCall{{ID: "tc_1", Name: fn.Name, Arguments: string(args)}}}, nil
}

// JudgeScores answers every judge request with fixed component scores.
func JudgeScores(relevance, quality, clarity float64) Handler {
	return func(_ context.Context, _ *llm.Request) (*llm.Response, error) {
		payload := fmt.Sprintf(`{"rationale":"scripted","tool_relevance":%g,"argument_quality":%g,"clarity":%g,"score":%g,"verdict":"accept"}`,
			relevance, quality, clarity, relevance+quality+clarity)
		return &llm.Response{Content: payload, Structured: json.RawMessage(payload)}, nil
	}
}

// Arguments builds a minimal value satisfying a parameter schema: every
// required property is filled, optional ones are left out.
func Arguments(params json.RawMessage) (json.RawMessage, error) {
	s, err := toolspec.CompileParameters(params)
	if err != nil {
		return nil, err
	}
	v := synthesize(s.Raw)
	if _, ok := v.(map[string]any); !ok {
		v = map[string]any{}
	}
	return json.Marshal(v)
}

func synthesize(node any) any {
	s, ok := node.(map[string]any)
	if !ok {
		return "x"
	}
	if enum, ok := s["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	for _, key := range []string{"anyOf", "oneOf"} {
		if alts, ok := s[key].([]any); ok && len(alts) > 0 {
			return synthesize(alts[0])
		}
	}
	typ := "object"
	switch t := s["type"].(type) {
	case string:
		typ = t
	case []any:
		if len(t) > 0 {
			typ, _ = t[0].(string)
		}
	}
	switch typ {
	case "string":
		return strings.Repeat("x", max(1, intKeyword(s, "minLength", 1)))
	case "integer", "number":
		n := 1.0
		if lo, ok := numberKeyword(s, "minimum"); ok && lo > n {
			n = lo
		}
		if hi, ok := numberKeyword(s, "maximum"); ok && hi < n {
			n = hi
		}
		if typ == "integer" {
			return int64(n)
		}
		return n
	case "boolean":
		return true
	case "null":
		return nil
	case "array":
		items := make([]any, max(1, intKeyword(s, "minItems", 1)))
		for i := range items {
			items[i] = synthesize(s["items"])
		}
		return items
	}
	obj := map[string]any{}
	props, _ := s["properties"].(map[string]any)
	required, _ := s["required"].([]any)
	names := make([]string, 0, len(required))
	for _, r := range required {
		if name, ok := r.(string); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		obj[name] = synthesize(props[name])
	}
	return obj
}

func numberKeyword(s map[string]any, key string) (float64, bool) {
	n, ok := s[key].(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	return f, err == nil
}

func intKeyword(s map[string]any, key string, def int) int {
	if f, ok := numberKeyword(s, key); ok {
		return int(f)
	}
	return def
}
