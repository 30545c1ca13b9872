package result_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/toolsgen/internal/judge"
	"github.com/signalnine/toolsgen/internal/llm"
	"github.com/signalnine/toolsgen/internal/result"
)

func record(task int) *result.Record {
	return &result.Record{
		Language: "en",
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
		AssistantCalls: []result.AssistantCall{{
			ID:       "call_0",
			Type:     "function",
			Function: result.CallFunction{Name: "noop", Arguments: json.RawMessage(`{}`)},
		}},
		ProblemMetadata: result.ProblemMetadata{Generated: true, UserRequest: "hello", TaskIndex: task},
		Judge:           judge.Score{Verdict: judge.Accept},
		QualityTags:     []string{},
	}
}

func writeRun(t *testing.T, dir string, accepted, failed int, split float64) *result.Manifest {
	t.Helper()
	w, err := result.Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx := 0
	for i := 0; i < accepted; i++ {
		if err := w.Emit(result.Outcome{Index: idx, Record: record(idx), Usage: map[llm.Role]llm.Usage{llm.RoleJudge: {InputTokens: 10, OutputTokens: 2}}}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
		idx++
	}
	for i := 0; i < failed; i++ {
		f := &result.Failure{TaskIndex: idx, Stage: result.StageJudge, Reason: result.ReasonLowQuality}
		if err := w.Emit(result.Outcome{Index: idx, Failure: f}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
		idx++
	}
	m := &result.Manifest{NumRequested: accepted + failed, TrainSplit: split, Strategy: "random"}
	if err := w.Finalize(m); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return m
}

func readIDs(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec result.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestWriterSplit(t *testing.T) {
	dir := t.TempDir()
	m := writeRun(t, dir, 5, 2, 0.8)

	if m.Splits.Train != 4 || m.Splits.Val != 1 {
		t.Errorf("splits: got %+v, want train 4 val 1", m.Splits)
	}
	if m.NumGenerated != 5 || m.NumFailed != 2 {
		t.Errorf("counts: got generated %d failed %d", m.NumGenerated, m.NumFailed)
	}
	if m.Splits.Train+m.Splits.Val != m.NumGenerated {
		t.Error("train + val must equal num_generated")
	}
	if m.Failures[result.ReasonLowQuality] != 2 {
		t.Errorf("failure reasons: got %v", m.Failures)
	}
	if got := m.Usage[llm.RoleJudge]; got.InputTokens != 50 || got.OutputTokens != 10 {
		t.Errorf("usage: got %+v", got)
	}

	train := readIDs(t, filepath.Join(dir, result.TrainFile))
	want := []string{"record_000000", "record_000001", "record_000002", "record_000003"}
	if strings.Join(train, ",") != strings.Join(want, ",") {
		t.Errorf("train ids: got %v, want %v", train, want)
	}
	val := readIDs(t, filepath.Join(dir, result.ValFile))
	if len(val) != 1 || val[0] != "record_000004" {
		t.Errorf("val ids: got %v", val)
	}
	if _, err := os.Stat(filepath.Join(dir, result.TrainFile+".tmp")); !os.IsNotExist(err) {
		t.Error("temporary split file left behind")
	}
}

func TestWriterFullTrainSplit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, result.ValFile), []byte("stale\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := writeRun(t, dir, 3, 0, 1.0)

	if _, err := os.Stat(filepath.Join(dir, result.ValFile)); !os.IsNotExist(err) {
		t.Error("val.jsonl must not exist when train_split is 1.0")
	}
	if m.Splits.Val != 0 || m.Splits.Train != 3 {
		t.Errorf("splits: got %+v", m.Splits)
	}
	if len(readIDs(t, filepath.Join(dir, result.TrainFile))) != 3 {
		t.Error("expected 3 train records")
	}
}

func TestWriterEmptyRun(t *testing.T) {
	dir := t.TempDir()
	m := writeRun(t, dir, 0, 3, 0.5)
	if m.NumGenerated != 0 || m.Splits.Train != 0 || m.Splits.Val != 0 {
		t.Errorf("unexpected manifest: %+v", m)
	}
	failures, err := result.ReadFailures(filepath.Join(dir, result.FailuresFile))
	if err != nil {
		t.Fatalf("ReadFailures: %v", err)
	}
	if len(failures) != 3 || failures[0].TaskIndex != 0 || failures[2].TaskIndex != 2 {
		t.Errorf("failures: got %+v", failures)
	}
}

func TestWriteAndReadManifest(t *testing.T) {
	dir := t.TempDir()
	m := &result.Manifest{
		Version:      result.ManifestVersion,
		NumRequested: 10,
		NumGenerated: 8,
		NumFailed:    2,
		Strategy:     "param_aware",
		Seed:         42,
		TrainSplit:   0.9,
		ToolsCount:   12,
		Models:       result.Models{ProblemGenerator: "a", ToolCaller: "b", Judge: "c"},
		Splits:       result.Splits{Train: 7, Val: 1},
	}
	if err := result.WriteManifest(dir, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := result.ReadManifest(filepath.Join(dir, result.ManifestFile))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.Models.ToolCaller != "b" || got.Seed != 42 || got.Splits.Train != 7 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	var raw map[string]any
	data, _ := os.ReadFile(filepath.Join(dir, result.ManifestFile))
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"version", "num_requested", "num_generated", "num_failed", "strategy", "seed", "train_split", "tools_count", "models", "splits"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("manifest missing %q", key)
		}
	}
	if _, ok := raw["aborted"]; ok {
		t.Error("aborted should be omitted when false")
	}
}

func TestTrainCount(t *testing.T) {
	tests := []struct {
		p    float64
		m    int
		want int
	}{
		{1.0, 7, 7},
		{0.8, 5, 4},
		{0.5, 3, 1},
		{0.29, 100, 29},
		{0.0, 4, 0},
		{0.9, 0, 0},
	}
	for _, tt := range tests {
		if got := result.TrainCount(tt.p, tt.m); got != tt.want {
			t.Errorf("TrainCount(%v, %d) = %d, want %d", tt.p, tt.m, got, tt.want)
		}
	}
}

func TestRecordFieldOrder(t *testing.T) {
	rec := record(0)
	rec.ID = result.RecordID(0)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	keys := []string{`"id"`, `"language"`, `"tools"`, `"messages"`, `"assistant_calls"`, `"problem_metadata"`, `"judge"`, `"quality_tags"`}
	last := -1
	for _, k := range keys {
		i := strings.Index(s, k)
		if i < last {
			t.Errorf("key %s out of order in %s", k, s)
		}
		last = i
	}
}

func TestRecordIDFollowsTaskIndex(t *testing.T) {
	dir := t.TempDir()
	w, err := result.Create(dir)
	if err != nil {
		t.Fatal(err)
	}
	f := &result.Failure{TaskIndex: 0, Stage: result.StageJudge, Reason: result.ReasonLowQuality}
	if err := w.Emit(result.Outcome{Index: 0, Failure: f}); err != nil {
		t.Fatal(err)
	}
	for _, task := range []int{1, 3} {
		if err := w.Emit(result.Outcome{Index: task, Record: record(task)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finalize(&result.Manifest{NumRequested: 4, TrainSplit: 1}); err != nil {
		t.Fatal(err)
	}
	got := readIDs(t, filepath.Join(dir, result.TrainFile))
	if strings.Join(got, ",") != "record_000001,record_000003" {
		t.Errorf("ids: got %v, want record_000001 and record_000003", got)
	}
}

func TestSplitFileRemovesPartialVal(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	dir := t.TempDir()
	trainPath := filepath.Join(dir, result.TrainFile)
	valPath := filepath.Join(dir, result.ValFile)
	lines := "{\"id\":\"a\"}\n{\"id\":\"b\"}\n{\"id\":\"c\"}\n"
	if err := os.WriteFile(trainPath, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/dev/full", valPath); err != nil {
		t.Skipf("symlink: %v", err)
	}

	if err := result.SplitFile(dir, 1); err == nil {
		t.Fatal("expected an error writing to a full device")
	}
	if _, err := os.Lstat(valPath); !os.IsNotExist(err) {
		t.Errorf("val.jsonl left behind: %v", err)
	}
	if _, err := os.Stat(trainPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	got, err := os.ReadFile(trainPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != lines {
		t.Errorf("train.jsonl changed: %q", got)
	}
}

func TestEmitRejectsEmptyOutcome(t *testing.T) {
	w, err := result.Create(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Emit(result.Outcome{Index: 3}); err == nil {
		t.Error("expected error for empty outcome")
	}
}
