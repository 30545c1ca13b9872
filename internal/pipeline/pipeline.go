package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signalnine/toolsgen/internal/judge"
	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/metrics"
	"github.com/signalnine/toolsgen/internal/prompts"
	"github.com/signalnine/toolsgen/internal/result"
	"github.com/signalnine/toolsgen/internal/runner"
	"github.com/signalnine/toolsgen/internal/telemetry"
	"github.com/signalnine/toolsgen/internal/tokens"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

// ModelSettings binds one role to a model.
type ModelSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Config struct {
	ProblemGenerator ModelSettings
	ToolCaller       ModelSettings
	Judge            ModelSettings
	Threshold        float64
	// RetryOnReject is how many fresh problems a rejected sample may try.
	RetryOnReject int
	// JudgeVotes > 1 judges each sample several times and keeps the median.
	JudgeVotes int
	Language   string
	Strategy   string
}

// Completer is the retrying completion adapter.
type Completer interface {
	Do(ctx context.Context, req *llm.Request) llm.Outcome
}

// Pipeline turns a SampleTask into a record or a failure through three
// completions: problem, tool calls, judge.
type Pipeline struct {
	client  Completer
	prompts *prompts.Builder
	cfg     Config
	logger  *slog.Logger
}

func New(client Completer, builder *prompts.Builder, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.JudgeVotes < 1 {
		cfg.JudgeVotes = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{client: client, prompts: builder, cfg: cfg, logger: logger}
}

// sample carries the state of one task through the stages.
type sample struct {
	task          runner.SampleTask
	state         State
	request       string
	calls         []result.AssistantCall
	score         judge.Score
	regenerations int
	attempts      int
	usage         map[llm.Role]llm.Usage
}

func (s *sample) advance(to State) {
	if !s.state.CanAdvance(to) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", s.state, to))
	}
	s.state = to
}

// Process runs one task to completion. The returned error is non-nil only
// when the run must stop: a fatal API error or cancellation.
func (p *Pipeline) Process(ctx context.Context, task runner.SampleTask) (result.Outcome, error) {
	ctx, span := telemetry.StartSampleSpan(ctx, task.Index, task.ToolNames())
	s := &sample{task: task, usage: make(map[llm.Role]llm.Usage)}
	log := p.logger.With("task", task.Index)

	err := p.run(ctx, s)
	telemetry.EndSpan(span, err)

	out := result.Outcome{Index: task.Index, Usage: s.usage}
	var verr *ValidationError
	var xerr *exhaustedError
	switch {
	case err == nil && s.state == StateAccepted:
		out.Record = p.record(s)
		metrics.SamplesTotal.WithLabelValues("accepted").Inc()
		log.Debug("sample accepted", "score", s.score.Score, "regenerations", s.regenerations)
		return out, nil
	case err == nil && s.state == StateRejected:
		out.Failure = &result.Failure{
			TaskIndex: task.Index,
			Stage:     result.StageJudge,
			Reason:    result.ReasonLowQuality,
			Detail:    fmt.Sprintf("score %.4f below threshold %.2f: %s", s.score.Score, p.cfg.Threshold, s.score.Rationale),
			Attempts:  s.regenerations + 1,
		}
	case errors.As(err, &verr):
		out.Failure = &result.Failure{
			TaskIndex: task.Index,
			Stage:     verr.Stage,
			Reason:    result.ReasonValidation,
			Detail:    verr.Err.Error(),
			Attempts:  s.attempts,
		}
	case errors.As(err, &xerr):
		out.Failure = &result.Failure{
			TaskIndex: task.Index,
			Stage:     xerr.stage,
			Reason:    result.ReasonRetriesExhausted,
			Detail:    xerr.err.Error(),
			Attempts:  xerr.attempts,
		}
	default:
		return out, err
	}
	s.state = StateFailed
	metrics.SamplesTotal.WithLabelValues("failed").Inc()
	metrics.StageFailuresTotal.WithLabelValues(string(out.Failure.Stage), string(out.Failure.Reason)).Inc()
	log.Info("sample failed", "stage", out.Failure.Stage, "reason", out.Failure.Reason, "detail", out.Failure.Detail)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, s *sample) error {
	for _, t := range s.task.Tools {
		if _, err := t.Schema(); err != nil {
			return &ValidationError{Stage: result.StageValidation, Err: err}
		}
	}
	for {
		if err := p.generateProblem(ctx, s); err != nil {
			return err
		}
		if err := p.generateCalls(ctx, s); err != nil {
			return err
		}
		if err := p.judge(ctx, s); err != nil {
			return err
		}
		if s.state == StateAccepted || s.regenerations >= p.cfg.RetryOnReject {
			return nil
		}
		s.regenerations++
		p.logger.Debug("sample rejected, regenerating", "task", s.task.Index, "score", s.score.Score, "regeneration", s.regenerations)
		s.request, s.calls, s.score = "", nil, judge.Score{}
	}
}

func (p *Pipeline) generateProblem(ctx context.Context, s *sample) error {
	m := p.cfg.ProblemGenerator
	req := &llm.Request{
		Role:  llm.RoleProblemGenerator,
		Model: m.Model,
		Messages: []llm.Message{
			{Role: "system", Content: p.prompts.ProblemSystem(s.task.Tools, p.cfg.Language)},
			{Role: "user", Content: prompts.ProblemUserMessage},
		},
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Seed:        requestSeed(s),
	}
	resp, err := p.call(ctx, s, result.StageGeneration, req)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return invalid(result.StageGeneration, "empty user request")
	}
	s.request = text
	s.advance(StateProblemGenerated)
	return nil
}

func (p *Pipeline) generateCalls(ctx context.Context, s *sample) error {
	m := p.cfg.ToolCaller
	req := &llm.Request{
		Role:  llm.RoleToolCaller,
		Model: m.Model,
		Messages: []llm.Message{
			{Role: "system", Content: prompts.CallerSystemPrompt},
			{Role: "user", Content: s.request},
		},
		Tools:       toolspec.Definitions(s.task.Tools),
		ToolChoice:  "auto",
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Seed:        requestSeed(s),
	}
	resp, err := p.call(ctx, s, result.StageToolCall, req)
	if err != nil {
		return err
	}
	calls, err := ValidateCalls(s.task.Tools, resp.ToolCalls)
	if err != nil {
		return err
	}
	s.calls = calls
	s.advance(StateToolCallGenerated)
	return nil
}

// ValidateCalls checks every call against the subset and returns them with
// canonical arguments and sequential ids.
func ValidateCalls(tools []*toolspec.Tool, calls []llm.ToolCall) ([]result.AssistantCall, error) {
	if len(calls) == 0 {
		return nil, invalid(result.StageToolCall, "model returned no tool calls")
	}
	out := make([]result.AssistantCall, 0, len(calls))
	for i, tc := range calls {
		tool, ok := toolspec.Find(tools, tc.Name)
		if !ok {
			return nil, invalid(result.StageToolCall, "call %d: tool %q is not in the sampled subset", i, tc.Name)
		}
		raw := strings.TrimSpace(tc.Arguments)
		if raw == "" {
			raw = "{}"
		}
		fixed, err := llm.RepairJSON(raw)
		if err != nil {
			return nil, invalid(result.StageToolCall, "call %d: %v", i, err)
		}
		args, err := tool.ValidateArguments(fixed)
		if err != nil {
			return nil, invalid(result.StageToolCall, "call %d: %v", i, err)
		}
		out = append(out, result.AssistantCall{
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: result.CallFunction{Name: tool.Name, Arguments: args},
		})
	}
	return out, nil
}

func (p *Pipeline) judge(ctx context.Context, s *sample) error {
	m := p.cfg.Judge
	calls := make([]prompts.Call, len(s.calls))
	for i, c := range s.calls {
		calls[i] = prompts.Call{Name: c.Function.Name, Arguments: c.Function.Arguments}
	}
	system := p.prompts.JudgeSystem(s.request, s.task.Tools, calls)

	votes := make([]*judge.Response, 0, p.cfg.JudgeVotes)
	for v := 0; v < p.cfg.JudgeVotes; v++ {
		req := &llm.Request{
			Role:  llm.RoleJudge,
			Model: m.Model,
			Messages: []llm.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: prompts.JudgeUserMessage},
			},
			ResponseSchema: judge.ResponseSchema(),
			Temperature:    m.Temperature,
			MaxTokens:      m.MaxTokens,
		}
		resp, err := p.call(ctx, s, result.StageJudge, req)
		if err != nil {
			return err
		}
		parsed, err := judge.Parse(resp.Structured)
		if err != nil {
			return invalid(result.StageJudge, "%v", err)
		}
		votes = append(votes, parsed)
	}

	s.score = judge.Evaluate(judge.Combine(votes), p.cfg.Threshold, m.Model, m.Temperature)
	s.advance(StateJudged)
	if s.score.Verdict == judge.Accept {
		s.advance(StateAccepted)
	} else {
		s.advance(StateRejected)
	}
	return nil
}

// call runs one retried completion and maps its outcome onto the stage.
func (p *Pipeline) call(ctx context.Context, s *sample, stage result.Stage, req *llm.Request) (*llm.Response, error) {
	ctx, span := telemetry.StartStageSpan(ctx, string(stage), s.regenerations+1)
	out := p.client.Do(ctx, req)
	telemetry.EndSpan(span, out.Err)
	s.attempts += out.Attempts

	switch out.Status {
	case llm.StatusSuccess:
		p.addUsage(s, req, out.Response)
		return out.Response, nil
	case llm.StatusExhausted:
		return nil, &exhaustedError{stage: stage, attempts: out.Attempts, err: out.Err}
	case llm.StatusCancelled:
		return nil, out.Err
	default:
		return nil, &llm.FatalError{Role: req.Role, Err: out.Err}
	}
}

func (p *Pipeline) addUsage(s *sample, req *llm.Request, resp *llm.Response) {
	u := resp.Usage
	if u.Total() == 0 {
		for _, m := range req.Messages {
			u.InputTokens += tokens.Count(m.Content)
		}
		u.OutputTokens = tokens.Count(resp.Content)
		for _, tc := range resp.ToolCalls {
			u.OutputTokens += tokens.Count(tc.Name) + tokens.Count(tc.Arguments)
		}
	}
	total := s.usage[req.Role]
	total.Add(u)
	s.usage[req.Role] = total
}

func (p *Pipeline) record(s *sample) *result.Record {
	return &result.Record{
		Language: p.cfg.Language,
		Tools:    toolspec.Definitions(s.task.Tools),
		Messages: []llm.Message{
			{Role: "system", Content: prompts.CallerSystemPrompt},
			{Role: "user", Content: s.request},
		},
		AssistantCalls: s.calls,
		ProblemMetadata: result.ProblemMetadata{
			Generated:     true,
			UserRequest:   s.request,
			TaskIndex:     s.task.Index,
			Strategy:      p.cfg.Strategy,
			Regenerations: s.regenerations,
		},
		Judge:       s.score,
		QualityTags: judge.QualityTags(s.score),
	}
}

// requestSeed varies with regenerations so a retried problem differs.
func requestSeed(s *sample) *int64 {
	v := int64((s.task.Seed >> 1) + uint64(s.regenerations))
	return &v
}
