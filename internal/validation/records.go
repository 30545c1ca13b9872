// Package validation re-checks generated records against the tool pool and
// the judge rubric, independently of the run that produced them.
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/toolsgen/internal/result"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

type Issue struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Record string `json:"record"`
	Msg    string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s:%d %s: %s", i.File, i.Line, i.Record, i.Msg)
}

type Report struct {
	Records int     `json:"records"`
	Issues  []Issue `json:"issues"`
}

func (r *Report) OK() bool { return len(r.Issues) == 0 }

// CheckRecord lists everything wrong with one record: offered tools must
// come from the pool, every call must name an offered tool with valid
// arguments, and the judge score must be consistent with the threshold.
func CheckRecord(rec *result.Record, pool []*toolspec.Tool, threshold float64) []string {
	var issues []string
	offered := make(map[string]bool, len(rec.Tools))
	for _, d := range rec.Tools {
		offered[d.Function.Name] = true
		if _, ok := toolspec.Find(pool, d.Function.Name); !ok {
			issues = append(issues, fmt.Sprintf("tool %q is not in the pool", d.Function.Name))
		}
	}
	if len(rec.AssistantCalls) == 0 {
		issues = append(issues, "record has no assistant calls")
	}
	for i, call := range rec.AssistantCalls {
		name := call.Function.Name
		if !offered[name] {
			issues = append(issues, fmt.Sprintf("call %d: tool %q was not offered", i, name))
			continue
		}
		tool, ok := toolspec.Find(pool, name)
		if !ok {
			continue
		}
		if _, err := tool.ValidateArguments(call.Function.Arguments); err != nil {
			issues = append(issues, fmt.Sprintf("call %d: %v", i, err))
		}
	}
	if err := rec.Judge.Consistent(threshold); err != nil {
		issues = append(issues, err.Error())
	}
	if rec.ProblemMetadata.UserRequest == "" {
		issues = append(issues, "empty user request")
	}
	return issues
}

// CheckDir validates train.jsonl and val.jsonl in dir. Each record id must
// name its task index, and ids must increase across the two files.
func CheckDir(dir string, pool []*toolspec.Tool, threshold float64) (*Report, error) {
	rep := &Report{}
	last := -1
	for _, name := range []string{result.TrainFile, result.ValFile} {
		path := filepath.Join(dir, name)
		err := result.EachRecord(path, func(line int, rec *result.Record) error {
			rep.Records++
			add := func(msg string) {
				rep.Issues = append(rep.Issues, Issue{File: name, Line: line, Record: rec.ID, Msg: msg})
			}
			task := rec.ProblemMetadata.TaskIndex
			if want := result.RecordID(task); rec.ID != want {
				add(fmt.Sprintf("id does not match task %d, want %s", task, want))
			}
			if task <= last {
				add(fmt.Sprintf("task %d out of order after task %d", task, last))
			}
			last = task
			for _, msg := range CheckRecord(rec, pool, threshold) {
				add(msg)
			}
			return nil
		})
		if errors.Is(err, os.ErrNotExist) && name == result.ValFile {
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return rep, nil
}
