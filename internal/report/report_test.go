package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/signalnine/toolsgen/internal/judge"
	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/pricing"
	"github.com/signalnine/toolsgen/internal/report"
	"github.com/signalnine/toolsgen/internal/result"
)

func writeOutput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	w, err := result.Create(dir)
	if err != nil {
		t.Fatal(err)
	}
	scores := []float64{0.95, 0.85, 0.75}
	for i, sc := range scores {
		s := judge.Score{Score: sc, Verdict: judge.Accept}
		rec := &result.Record{Judge: s, QualityTags: judge.QualityTags(s)}
		usage := map[llm.Role]llm.Usage{llm.RoleJudge: {InputTokens: 1000, OutputTokens: 100}}
		if err := w.Emit(result.Outcome{Index: i, Record: rec, Usage: usage}); err != nil {
			t.Fatal(err)
		}
	}
	failures := []result.Failure{
		{TaskIndex: 3, Stage: result.StageJudge, Reason: result.ReasonLowQuality},
		{TaskIndex: 4, Stage: result.StageToolCall, Reason: result.ReasonValidation},
		{TaskIndex: 5, Stage: result.StageJudge, Reason: result.ReasonLowQuality},
	}
	for i := range failures {
		if err := w.Emit(result.Outcome{Index: failures[i].TaskIndex, Failure: &failures[i]}); err != nil {
			t.Fatal(err)
		}
	}
	m := &result.Manifest{
		NumRequested: 6,
		Strategy:     "random",
		Seed:         42,
		TrainSplit:   0.67,
		Models:       result.Models{ProblemGenerator: "gpt-4o-mini", ToolCaller: "gpt-4o-mini", Judge: "gpt-4o-mini"},
	}
	if err := w.Finalize(m); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestGenerateTable(t *testing.T) {
	dir := writeOutput(t)
	var buf bytes.Buffer
	if err := report.Generate(dir, "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"50%", "low_quality", "tool_call", "excellent"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if strings.Contains(output, "ESTIMATED COST") {
		t.Error("cost must only appear with a pricing table")
	}
}

func TestBuild(t *testing.T) {
	dir := writeOutput(t)
	s, err := report.Build(dir, pricing.Default())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Generated != 3 || s.Failed != 3 || s.Train != 2 || s.Val != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.MeanScore < 0.849 || s.MeanScore > 0.851 {
		t.Errorf("mean score: got %f, want 0.85", s.MeanScore)
	}
	if len(s.Failures) != 2 || s.Failures[0].Reason != result.ReasonLowQuality || s.Failures[0].Count != 2 {
		t.Errorf("failures: got %+v", s.Failures)
	}
	if s.Quality["excellent"] != 1 || s.Quality["good"] != 1 || s.Quality["acceptable"] != 1 {
		t.Errorf("quality: got %v", s.Quality)
	}
	if s.Cost == nil || s.Cost.Total <= 0 {
		t.Errorf("expected a positive cost, got %+v", s.Cost)
	}
}

func TestGenerateJSONAndMarkdown(t *testing.T) {
	dir := writeOutput(t)
	var buf bytes.Buffer
	if err := report.Generate(dir, "json", &buf); err != nil {
		t.Fatal(err)
	}
	var s report.Summary
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if s.Requested != 6 {
		t.Errorf("requested: got %d", s.Requested)
	}

	buf.Reset()
	if err := report.Generate(dir, "markdown", &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "| Requested |") {
		t.Errorf("unexpected markdown:\n%s", buf.String())
	}
}

func TestGenerateMissingManifest(t *testing.T) {
	if err := report.Generate(t.TempDir(), "table", &bytes.Buffer{}); err == nil {
		t.Error("expected error without manifest.json")
	}
}
