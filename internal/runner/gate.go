package runner

import (
	"context"
	"sync"

	"github.com/signalnine/toolsgen/internal/result"
)

// window bounds how far chunk dispatch may run ahead of emission.
type window struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    int
	span    int
	stopped bool
}

func newWindow(span int) *window {
	w := &window{span: span}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// wait blocks until chunk may start. It reports false when dispatch has
// stopped or ctx is done.
func (w *window) wait(ctx context.Context, chunk int) bool {
	stop := context.AfterFunc(ctx, w.wake)
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for chunk >= w.next+w.span && !w.stopped && ctx.Err() == nil {
		w.cond.Wait()
	}
	return !w.stopped && ctx.Err() == nil
}

func (w *window) advance(next int) {
	w.mu.Lock()
	w.next = next
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *window) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

func (w *window) wake() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// reorder releases chunk results strictly in chunk order.
type reorder struct {
	pending map[int][]result.Outcome
	next    int
}

func newReorder() *reorder {
	return &reorder{pending: make(map[int][]result.Outcome)}
}

// push stores a chunk and returns every chunk that is now contiguous.
func (r *reorder) push(chunk int, outs []result.Outcome) [][]result.Outcome {
	r.pending[chunk] = outs
	var ready [][]result.Outcome
	for {
		outs, ok := r.pending[r.next]
		if !ok {
			return ready
		}
		delete(r.pending, r.next)
		ready = append(ready, outs)
		r.next++
	}
}
