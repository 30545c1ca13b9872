package runner

import (
	"fmt"

	"github.com/signalnine/toolsgen/internal/sampling"
	"github.com/signalnine/toolsgen/internal/toolspec"
)

// SampleTask is one unit of work. Tasks are created before dispatch and never
// change afterwards.
type SampleTask struct {
	Index int
	Tools []*toolspec.Tool
	// Seed is the per-task rng component derived from the run seed.
	Seed uint64
}

// ToolNames lists the subset in presentation order.
func (t SampleTask) ToolNames() []string { return toolspec.Names(t.Tools) }

// Sizing decides the subset size per task. K > 0 fixes the size; otherwise
// it is drawn from [Min, Max].
type Sizing struct {
	K       int
	Min     int
	Max     int
	Shuffle bool
}

// BuildTasks samples the subsets for tasks [0, n). Sampling errors abort the
// run before any completion is requested.
func BuildTasks(tools []*toolspec.Tool, strategy sampling.Strategy, sizing Sizing, seed int64, n int) ([]SampleTask, error) {
	tasks := make([]SampleTask, n)
	for i := range tasks {
		k := sizing.K
		if k <= 0 {
			k = sampling.SubsetSize(sizing.Min, sizing.Max, len(tools), seed, i)
		}
		subset, err := strategy.Sample(tools, k, seed, i)
		if err != nil {
			return nil, fmt.Errorf("sampling task %d: %w", i, err)
		}
		if sizing.Shuffle {
			subset = sampling.Shuffle(subset, seed, i)
		}
		tasks[i] = SampleTask{Index: i, Tools: subset, Seed: sampling.DeriveSeed(seed, i)}
	}
	return tasks, nil
}
