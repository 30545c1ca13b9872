package sampling

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

const (
	Random     = "random"
	ParamAware = "param_aware"
	Semantic   = "semantic"
)

// Strategy selects an ordered subset of k tools. Implementations are pure
// functions of (tools, k, seed, callIndex).
type Strategy interface {
	Name() string
	Sample(tools []*toolspec.Tool, k int, seed int64, callIndex int) ([]*toolspec.Tool, error)
}

// InsufficientToolsError is returned when a subset larger than the pool is requested.
type InsufficientToolsError struct {
	Requested int
	Available int
}

func (e *InsufficientToolsError) Error() string {
	return fmt.Sprintf("cannot sample %d tools from a pool of %d", e.Requested, e.Available)
}

// Names lists the supported strategy names.
func Names() []string {
	return []string{Random, ParamAware, Semantic}
}

// New maps a strategy name to its implementation.
func New(name string) (Strategy, error) {
	switch name {
	case Random:
		return randomStrategy{}, nil
	case ParamAware:
		return paramAwareStrategy{}, nil
	case Semantic:
		return semanticStrategy{threshold: DefaultClusterThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q (want one of %v)", name, Names())
	}
}

// NewRand returns the deterministic source for one sampling call.
func NewRand(seed int64, callIndex int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(callIndex)))
}

// DeriveSeed mixes the run seed with a task index into a per-task seed
// component (splitmix64).
func DeriveSeed(seed int64, index int) uint64 {
	z := uint64(seed) + uint64(index+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func checkSize(tools []*toolspec.Tool, k int) error {
	if k < 1 {
		return fmt.Errorf("subset size must be at least 1, got %d", k)
	}
	if k > len(tools) {
		return &InsufficientToolsError{Requested: k, Available: len(tools)}
	}
	return nil
}

// Shuffle permutes a subset's presentation order with the call's seed.
func Shuffle(subset []*toolspec.Tool, seed int64, callIndex int) []*toolspec.Tool {
	out := append([]*toolspec.Tool(nil), subset...)
	rng := rand.New(rand.NewPCG(DeriveSeed(seed, callIndex), uint64(callIndex)))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SubsetSize draws k in [min, max] for one call, clamped to the pool size.
func SubsetSize(minK, maxK, poolSize int, seed int64, callIndex int) int {
	if maxK > poolSize {
		maxK = poolSize
	}
	if minK < 1 {
		minK = 1
	}
	if minK >= maxK {
		return minK
	}
	rng := rand.New(rand.NewPCG(uint64(seed)^0x5bd1e995, uint64(callIndex)))
	return minK + rng.IntN(maxK-minK+1)
}

type randomStrategy struct{}

func (randomStrategy) Name() string { return Random }

func (randomStrategy) Sample(tools []*toolspec.Tool, k int, seed int64, callIndex int) ([]*toolspec.Tool, error) {
	if err := checkSize(tools, k); err != nil {
		return nil, err
	}
	return pickRandom(tools, k, NewRand(seed, callIndex)), nil
}

// pickRandom takes the first k entries of a partial Fisher-Yates shuffle.
func pickRandom(tools []*toolspec.Tool, k int, rng *rand.Rand) []*toolspec.Tool {
	idx := make([]int, len(tools))
	for i := range idx {
		idx[i] = i
	}
	out := make([]*toolspec.Tool, k)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = tools[idx[i]]
	}
	return out
}

type paramAwareStrategy struct{}

func (paramAwareStrategy) Name() string { return ParamAware }

// Sample draws a weighted subset without replacement where a tool's weight is
// its parameter count plus one (Efraimidis-Spirakis keys).
func (paramAwareStrategy) Sample(tools []*toolspec.Tool, k int, seed int64, callIndex int) ([]*toolspec.Tool, error) {
	if err := checkSize(tools, k); err != nil {
		return nil, err
	}
	rng := NewRand(seed, callIndex)
	type keyed struct {
		tool *toolspec.Tool
		key  float64
	}
	ks := make([]keyed, len(tools))
	for i, t := range tools {
		w := float64(t.ParamCount() + 1)
		u := rng.Float64()
		ks[i] = keyed{tool: t, key: math.Pow(u, 1/w)}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key > ks[j].key })
	out := make([]*toolspec.Tool, k)
	for i := range out {
		out[i] = ks[i].tool
	}
	return out, nil
}
