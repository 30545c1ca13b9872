package llm

import (
	"context"
	"encoding/json"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

// Role names the pipeline stage a request belongs to. Each role can be bound
// to its own model.
type Role string

const (
	RoleProblemGenerator Role = "problem_generator"
	RoleToolCaller       Role = "tool_caller"
	RoleJudge            Role = "judge"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is one function call returned by the model. Arguments is the raw
// string the provider sent and may be malformed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ResponseSchema requests structured output. Validate decides whether a
// payload conforms; a non-nil error is treated as a transient schema violation.
type ResponseSchema struct {
	Name     string
	Schema   json.RawMessage
	Validate func(payload json.RawMessage) error
}

type Request struct {
	Role           Role
	Model          string
	Messages       []Message
	Tools          []toolspec.Definition
	ToolChoice     string
	ResponseSchema *ResponseSchema
	Temperature    float64
	MaxTokens      int
	Seed           *int64
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

type Response struct {
	Content    string
	ToolCalls  []ToolCall
	Structured json.RawMessage
	Usage      Usage
	Model      string
}

// Client performs one completion without retrying.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ClientFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
