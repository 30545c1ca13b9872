package judge

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/signalnine/toolsgen/internal/llm"
)

const (
	RubricVersion    = "0.1.0"
	DefaultThreshold = 0.7

	MaxToolRelevance   = 0.4
	MaxArgumentQuality = 0.4
	MaxClarity         = 0.2
)

type Verdict string

const (
	Accept Verdict = "accept"
	Reject Verdict = "reject"
)

// Score is the judge result stored on every record. Score always equals the
// sum of the three components and Verdict is derived from the threshold.
type Score struct {
	ToolRelevance   float64 `json:"tool_relevance"`
	ArgumentQuality float64 `json:"argument_quality"`
	Clarity         float64 `json:"clarity"`
	Score           float64 `json:"score"`
	Verdict         Verdict `json:"verdict"`
	Rationale       string  `json:"rationale"`
	RubricVersion   string  `json:"rubric_version"`
	Model           string  `json:"model,omitempty"`
	Temperature     float64 `json:"temperature"`
}

// Response is the structured payload the judge model returns.
type Response struct {
	Rationale       string   `json:"rationale"`
	ToolRelevance   *float64 `json:"tool_relevance"`
	ArgumentQuality *float64 `json:"argument_quality"`
	Clarity         *float64 `json:"clarity"`
	Score           float64  `json:"score"`
	Verdict         string   `json:"verdict"`
}

var responseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "rationale": {"type": "string"},
    "tool_relevance": {"type": "number", "description": "0.0 to 0.4"},
    "argument_quality": {"type": "number", "description": "0.0 to 0.4"},
    "clarity": {"type": "number", "description": "0.0 to 0.2"},
    "score": {"type": "number", "description": "sum of the three scores"},
    "verdict": {"type": "string", "enum": ["accept", "reject"]}
  },
  "required": ["rationale", "tool_relevance", "argument_quality", "clarity", "score", "verdict"],
  "additionalProperties": false
}`)

// ResponseSchema is the structured-output contract for the judge role.
func ResponseSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name:   "judge_response",
		Schema: responseSchema,
		Validate: func(payload json.RawMessage) error {
			_, err := Parse(payload)
			return err
		},
	}
}

// Parse decodes and range-checks a judge payload.
func Parse(payload []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("parsing judge response: %w", err)
	}
	checks := []struct {
		name string
		v    *float64
		max  float64
	}{
		{"tool_relevance", r.ToolRelevance, MaxToolRelevance},
		{"argument_quality", r.ArgumentQuality, MaxArgumentQuality},
		{"clarity", r.Clarity, MaxClarity},
	}
	for _, c := range checks {
		if c.v == nil {
			return nil, fmt.Errorf("judge response missing %s", c.name)
		}
		if math.IsNaN(*c.v) || *c.v < 0 || *c.v > c.max+1e-9 {
			return nil, fmt.Errorf("judge %s %v outside [0, %v]", c.name, *c.v, c.max)
		}
	}
	if r.Verdict != "" && r.Verdict != string(Accept) && r.Verdict != string(Reject) {
		return nil, fmt.Errorf("judge verdict %q is not accept or reject", r.Verdict)
	}
	return &r, nil
}

// Evaluate turns a judge payload into a Score. The model's own total and
// verdict are ignored; both are recomputed from the rounded components.
func Evaluate(r *Response, threshold float64, model string, temperature float64) Score {
	s := Score{
		ToolRelevance:   clamp(round4(*r.ToolRelevance), MaxToolRelevance),
		ArgumentQuality: clamp(round4(*r.ArgumentQuality), MaxArgumentQuality),
		Clarity:         clamp(round4(*r.Clarity), MaxClarity),
		Rationale:       r.Rationale,
		RubricVersion:   RubricVersion,
		Model:           model,
		Temperature:     temperature,
	}
	s.Score = s.ToolRelevance + s.ArgumentQuality + s.Clarity
	s.Verdict = VerdictFor(s.Score, threshold)
	return s
}

// VerdictFor accepts scores at or above threshold.
func VerdictFor(score, threshold float64) Verdict {
	if score >= threshold {
		return Accept
	}
	return Reject
}

// Consistent reports whether a stored score obeys the sum and verdict rules.
func (s Score) Consistent(threshold float64) error {
	if sum := s.ToolRelevance + s.ArgumentQuality + s.Clarity; sum != s.Score {
		return fmt.Errorf("score %v is not the sum of its components (%v)", s.Score, sum)
	}
	if want := VerdictFor(s.Score, threshold); s.Verdict != want {
		return fmt.Errorf("verdict %q does not match score %v at threshold %v", s.Verdict, s.Score, threshold)
	}
	return nil
}

// Combine merges several judge votes by taking the median of each component.
// The rationale of the first vote is kept.
func Combine(votes []*Response) *Response {
	if len(votes) == 1 {
		return votes[0]
	}
	pick := func(get func(*Response) float64) *float64 {
		vals := make([]float64, len(votes))
		for i, v := range votes {
			vals[i] = get(v)
		}
		m := MedianScore(vals)
		return &m
	}
	return &Response{
		Rationale:       votes[0].Rationale,
		ToolRelevance:   pick(func(r *Response) float64 { return *r.ToolRelevance }),
		ArgumentQuality: pick(func(r *Response) float64 { return *r.ArgumentQuality }),
		Clarity:         pick(func(r *Response) float64 { return *r.Clarity }),
	}
}

// MedianScore returns the median of scores.
func MedianScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}
