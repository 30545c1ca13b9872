package result

import (
	"encoding/json"

	"github.com/signalnine/toolsgen/internal/judge"
	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

const ManifestVersion = "0.1.0"

// Record is one accepted training example, written as a single JSONL line.
type Record struct {
	ID              string                `json:"id"`
	Language        string                `json:"language"`
	Tools           []toolspec.Definition `json:"tools"`
	Messages        []llm.Message         `json:"messages"`
	AssistantCalls  []AssistantCall       `json:"assistant_calls"`
	ProblemMetadata ProblemMetadata       `json:"problem_metadata"`
	Judge           judge.Score           `json:"judge"`
	QualityTags     []string              `json:"quality_tags"`
}

type AssistantCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function CallFunction `json:"function"`
}

type CallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ProblemMetadata struct {
	Generated     bool   `json:"generated"`
	UserRequest   string `json:"user_request"`
	TaskIndex     int    `json:"task_index"`
	Strategy      string `json:"strategy"`
	Regenerations int    `json:"regenerations"`
}

type Stage string

const (
	StageGeneration Stage = "generation"
	StageToolCall   Stage = "tool_call"
	StageJudge      Stage = "judge"
	StageValidation Stage = "validation"
)

type Reason string

const (
	ReasonValidation       Reason = "validation"
	ReasonLowQuality       Reason = "low_quality"
	ReasonRetriesExhausted Reason = "retries_exhausted"
)

// Failure is the terminal outcome of a task that produced no record.
type Failure struct {
	TaskIndex int    `json:"task_index"`
	Stage     Stage  `json:"stage"`
	Reason    Reason `json:"reason"`
	Detail    string `json:"detail"`
	Attempts  int    `json:"attempts"`
}

// Outcome is what a worker returns for one task: exactly one of Record and
// Failure is set.
type Outcome struct {
	Index   int
	Record  *Record
	Failure *Failure
	Usage   map[llm.Role]llm.Usage
}

func (o Outcome) Accepted() bool { return o.Record != nil }

type Manifest struct {
	Version      string                 `json:"version"`
	NumRequested int                    `json:"num_requested"`
	NumGenerated int                    `json:"num_generated"`
	NumFailed    int                    `json:"num_failed"`
	Strategy     string                 `json:"strategy"`
	Seed         int64                  `json:"seed"`
	TrainSplit   float64                `json:"train_split"`
	ToolsCount   int                    `json:"tools_count"`
	Models       Models                 `json:"models"`
	Splits       Splits                 `json:"splits"`
	Failures     map[Reason]int         `json:"failures,omitempty"`
	Usage        map[llm.Role]llm.Usage `json:"usage,omitempty"`
	Aborted      bool                   `json:"aborted,omitempty"`
	RunID        string                 `json:"run_id,omitempty"`
}

type Models struct {
	ProblemGenerator string `json:"problem_generator"`
	ToolCaller       string `json:"tool_caller"`
	Judge            string `json:"judge"`
}

type Splits struct {
	Train int `json:"train"`
	Val   int `json:"val"`
}
