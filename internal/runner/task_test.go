package runner_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/signalnine/toolsgen/internal/runner"
	"github.com/signalnine/toolsgen/internal/sampling"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

func pool(n int) []*toolspec.Tool {
	tools := make([]*toolspec.Tool, n)
	for i := range tools {
		tools[i] = toolspec.New(fmt.Sprintf("tool_%d", i), "does a thing", json.RawMessage(`{"type":"object","properties":{}}`))
	}
	return tools
}

func TestBuildTasksDeterministic(t *testing.T) {
	tools := pool(8)
	strategy, err := sampling.New(sampling.Random)
	if err != nil {
		t.Fatal(err)
	}
	sizing := runner.Sizing{K: 3, Shuffle: true}
	a, err := runner.BuildTasks(tools, strategy, sizing, 42, 20)
	if err != nil {
		t.Fatal(err)
	}
	b, err := runner.BuildTasks(tools, strategy, sizing, 42, 20)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Index != i {
			t.Errorf("task %d has index %d", i, a[i].Index)
		}
		if len(a[i].Tools) != 3 {
			t.Errorf("task %d has %d tools", i, len(a[i].Tools))
		}
		if !reflect.DeepEqual(a[i].ToolNames(), b[i].ToolNames()) || a[i].Seed != b[i].Seed {
			t.Errorf("task %d differs between identical builds", i)
		}
	}

	// A task's subset depends only on its index, not on how many tasks exist.
	short, err := runner.BuildTasks(tools, strategy, sizing, 42, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range short {
		if !reflect.DeepEqual(short[i].ToolNames(), a[i].ToolNames()) {
			t.Errorf("task %d changed with n", i)
		}
	}
}

func TestBuildTasksVariableSize(t *testing.T) {
	strategy, _ := sampling.New(sampling.ParamAware)
	tasks, err := runner.BuildTasks(pool(6), strategy, runner.Sizing{Min: 1, Max: 4}, 7, 50)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if n := len(task.Tools); n < 1 || n > 4 {
			t.Errorf("task %d: subset size %d outside [1, 4]", task.Index, n)
		}
	}
}

func TestBuildTasksInsufficientTools(t *testing.T) {
	strategy, _ := sampling.New(sampling.Random)
	_, err := runner.BuildTasks(pool(2), strategy, runner.Sizing{K: 5}, 1, 3)
	var ierr *sampling.InsufficientToolsError
	if !errors.As(err, &ierr) {
		t.Fatalf("got %v, want InsufficientToolsError", err)
	}
	if ierr.Requested != 5 || ierr.Available != 2 {
		t.Errorf("unexpected error fields: %+v", ierr)
	}
}
