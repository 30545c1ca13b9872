package runner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/signalnine/toolsgen/internal/result"
)

// Processor runs one task. A non-nil error stops the whole run.
type Processor interface {
	Process(ctx context.Context, task SampleTask) (result.Outcome, error)
}

type ProcessorFunc func(ctx context.Context, task SampleTask) (result.Outcome, error)

func (f ProcessorFunc) Process(ctx context.Context, task SampleTask) (result.Outcome, error) {
	return f(ctx, task)
}

// Sink receives outcomes in ascending task order.
type Sink interface {
	Emit(o result.Outcome) error
}

// Scheduler spreads tasks over Workers goroutines in chunks of BatchSize and
// hands outcomes to the sink in task order.
type Scheduler struct {
	Workers   int
	BatchSize int
	// Target > 0 stops dispatch once that many records were emitted.
	Target int
	Logger *slog.Logger
}

type Summary struct {
	Processed int
	Emitted   int
	Accepted  int
	Discarded int
}

type chunkResult struct {
	chunk int
	outs  []result.Outcome
}

// Run processes tasks until all are done, the target is met, or an error
// stops the run. The summary is valid in every case.
func (s *Scheduler) Run(ctx context.Context, tasks []SampleTask, proc Processor, sink Sink) (Summary, error) {
	workers, size := s.Workers, s.BatchSize
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if workers == 1 {
		return s.runInline(ctx, tasks, proc, sink)
	}

	chunks := (len(tasks) + size - 1) / size
	if chunks < workers {
		workers = max(chunks, 1)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	win := newWindow(2 * workers)
	results := make(chan chunkResult, workers)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for c := w; c < chunks; c += workers {
				if !win.wait(gctx, c) {
					return nil
				}
				lo, hi := c*size, min((c+1)*size, len(tasks))
				logger.Debug("chunk started", "worker", w, "chunk", c, "tasks", hi-lo)
				outs := make([]result.Outcome, 0, hi-lo)
				for _, t := range tasks[lo:hi] {
					o, err := proc.Process(gctx, t)
					if err != nil {
						return fmt.Errorf("task %d: %w", t.Index, err)
					}
					outs = append(outs, o)
				}
				select {
				case results <- chunkResult{chunk: c, outs: outs}:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	var workErr error
	done := make(chan struct{})
	go func() {
		workErr = g.Wait()
		close(results)
		close(done)
	}()

	var sum Summary
	var emitErr error
	order := newReorder()
	for r := range results {
		sum.Processed += len(r.outs)
		for _, outs := range order.push(r.chunk, r.outs) {
			for _, o := range outs {
				if emitErr != nil || s.reached(sum) {
					sum.Discarded++
					continue
				}
				if err := sink.Emit(o); err != nil {
					emitErr = fmt.Errorf("emitting task %d: %w", o.Index, err)
					cancel()
					sum.Discarded++
					continue
				}
				sum.Emitted++
				if o.Accepted() {
					sum.Accepted++
				}
			}
		}
		win.advance(order.next)
		if s.reached(sum) {
			win.stop()
		}
	}
	<-done

	// Chunks that arrived out of order behind a failed chunk are never emitted.
	for _, outs := range order.pending {
		sum.Discarded += len(outs)
	}
	if emitErr != nil {
		return sum, emitErr
	}
	if workErr != nil {
		return sum, workErr
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Scheduler) runInline(ctx context.Context, tasks []SampleTask, proc Processor, sink Sink) (Summary, error) {
	var sum Summary
	for _, t := range tasks {
		if s.reached(sum) {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		o, err := proc.Process(ctx, t)
		if err != nil {
			return sum, fmt.Errorf("task %d: %w", t.Index, err)
		}
		sum.Processed++
		if err := sink.Emit(o); err != nil {
			return sum, fmt.Errorf("emitting task %d: %w", t.Index, err)
		}
		sum.Emitted++
		if o.Accepted() {
			sum.Accepted++
		}
	}
	return sum, nil
}

func (s *Scheduler) reached(sum Summary) bool {
	return s.Target > 0 && sum.Accepted >= s.Target
}
