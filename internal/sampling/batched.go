package sampling

import (
	"fmt"

	"github.com/signalnine/toolsgen/internal/toolspec"
)

// Batched precomputes a fixed number of subsets and hands them out
// cyclically by call index.
type Batched struct {
	inner   Strategy
	batches [][]*toolspec.Tool
}

// NewBatched draws count subsets of size batchSize from inner using call
// indices 0..count-1.
func NewBatched(inner Strategy, tools []*toolspec.Tool, count, batchSize int, seed int64) (*Batched, error) {
	if count < 1 {
		return nil, fmt.Errorf("batch count must be at least 1, got %d", count)
	}
	b := &Batched{inner: inner, batches: make([][]*toolspec.Tool, count)}
	for i := range b.batches {
		subset, err := inner.Sample(tools, batchSize, seed, i)
		if err != nil {
			return nil, fmt.Errorf("precomputing batch %d: %w", i, err)
		}
		b.batches[i] = subset
	}
	return b, nil
}

func (b *Batched) Name() string { return b.inner.Name() }

// Sample ignores tools, k and seed; the batches were fixed at construction.
func (b *Batched) Sample(_ []*toolspec.Tool, _ int, _ int64, callIndex int) ([]*toolspec.Tool, error) {
	if callIndex < 0 {
		return nil, fmt.Errorf("negative call index %d", callIndex)
	}
	src := b.batches[callIndex%len(b.batches)]
	return append([]*toolspec.Tool(nil), src...), nil
}

// Len is the number of precomputed batches.
func (b *Batched) Len() int { return len(b.batches) }
