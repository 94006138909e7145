package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/event/dispatch"
	"github.com/dshills/flowpanel/internal/metric"
	"github.com/dshills/flowpanel/internal/rules"
)

// Request is one unit of deferred state evaluation.
type Request struct {
	Seq      uint64
	Rules    []rules.Rule
	Series   []metric.Series
	Diagrams []*diagram.Diagram
}

// EvaluatorStats counts evaluator activity.
type EvaluatorStats struct {
	Submitted  uint64
	Completed  uint64
	Superseded uint64
	Panics     uint64
}

// EvaluateFunc processes one request.
type EvaluateFunc func(ctx context.Context, req Request)

// Evaluator drains a single slot holding the latest evaluation request.
// Submitting while a request is pending replaces it; the replaced request
// never runs. Before Start and after Stop, Submit evaluates inline.
type Evaluator struct {
	fn   EvaluateFunc
	exec *dispatch.Executor
	log  zerolog.Logger

	mu       sync.Mutex
	pending  *Request
	seq      uint64
	settled  uint64
	progress chan struct{}
	stats    EvaluatorStats

	running bool
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewEvaluator returns a stopped evaluator running fn.
func NewEvaluator(fn EvaluateFunc, log zerolog.Logger) *Evaluator {
	e := &Evaluator{
		fn:       fn,
		log:      log,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	e.exec = dispatch.NewExecutor(dispatch.WithPanicHook(func(_ any, v any, stack []byte) {
		e.log.Error().Interface("panic", v).Bytes("stack", stack).Msg("evaluation panicked")
	}))
	return e
}

// Submit queues req, superseding any request not yet started, and returns
// the sequence number assigned to it.
func (e *Evaluator) Submit(ctx context.Context, req Request) uint64 {
	e.mu.Lock()
	e.seq++
	req.Seq = e.seq
	e.stats.Submitted++

	if !e.running {
		e.mu.Unlock()
		e.process(ctx, req)
		return req.Seq
	}

	if e.pending != nil {
		e.stats.Superseded++
		e.log.Debug().Uint64("seq", e.pending.Seq).Msg("evaluation superseded")
		e.settleLocked()
	}
	e.pending = &req
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return req.Seq
}

// Start launches the drain goroutine. It stops when ctx is done or Stop
// is called. Starting a running evaluator is a no-op.
func (e *Evaluator) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(ctx, e.stop, e.done)
}

func (e *Evaluator) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	defer func() {
		e.mu.Lock()
		e.running = false
		// A request left behind is still owed an evaluation.
		req := e.pending
		e.pending = nil
		e.mu.Unlock()
		if req != nil {
			e.process(context.WithoutCancel(ctx), *req)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-e.wake:
		}

		e.mu.Lock()
		req := e.pending
		e.pending = nil
		e.mu.Unlock()
		if req != nil {
			e.process(ctx, *req)
		}
	}
}

func (e *Evaluator) process(ctx context.Context, req Request) {
	out := e.exec.Run(ctx, req, func(ctx context.Context) error {
		e.fn(ctx, req)
		return nil
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if out.Panicked() {
		e.stats.Panics++
	}
	e.stats.Completed++
	e.settleLocked()
}

// settleLocked records that one submitted request has been dealt with.
func (e *Evaluator) settleLocked() {
	e.settled++
	close(e.progress)
	e.progress = make(chan struct{})
}

// Stop stops the drain goroutine and waits for it, bounded by ctx. A
// pending request is evaluated before Stop returns.
func (e *Evaluator) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running || e.stop == nil {
		e.mu.Unlock()
		return nil
	}
	stop, done := e.stop, e.done
	e.stop = nil
	e.mu.Unlock()

	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted request has completed or been
// superseded.
func (e *Evaluator) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.settled >= e.seq {
			e.mu.Unlock()
			return nil
		}
		progress := e.progress
		e.mu.Unlock()

		select {
		case <-progress:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns a snapshot of the counters.
func (e *Evaluator) Stats() EvaluatorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
