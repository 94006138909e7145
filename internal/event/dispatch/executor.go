package dispatch

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Func is one isolated unit of work.
type Func func(ctx context.Context) error

// Outcome describes how a Func ended.
type Outcome struct {
	// Err is the error returned by the call, or the context error when the
	// call was skipped.
	Err error

	// Panic is the recovered panic value, nil if the call did not panic.
	Panic any

	// Stack is the stack captured at the panic.
	Stack []byte

	// Elapsed is how long the call ran.
	Elapsed time.Duration

	// Skipped is set when the context was already done and the call never ran.
	Skipped bool
}

// OK reports whether the call ran and returned nil.
func (o Outcome) OK() bool {
	return !o.Skipped && o.Panic == nil && o.Err == nil
}

// Panicked reports whether the call panicked.
func (o Outcome) Panicked() bool {
	return o.Panic != nil
}

// PanicHook is told about every recovered panic. subject is whatever the
// caller passed to Run.
type PanicHook func(subject any, value any, stack []byte)

// Stats counts executor calls.
type Stats struct {
	Runs     uint64
	Failures uint64
	Panics   uint64
	Skipped  uint64
}

// Executor runs Funcs with panic recovery.
type Executor struct {
	hook    PanicHook
	timeout time.Duration

	runs     atomic.Uint64
	failures atomic.Uint64
	panics   atomic.Uint64
	skipped  atomic.Uint64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHook sets the hook called for recovered panics.
func WithPanicHook(h PanicHook) ExecutorOption {
	return func(e *Executor) {
		e.hook = h
	}
}

// WithTimeout bounds every call by d. The call must honour its context
// for this to take effect. Zero means no bound.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run calls fn unless ctx is already done. A panic in fn is recovered,
// reported to the hook and returned in the Outcome.
func (e *Executor) Run(ctx context.Context, subject any, fn Func) (out Outcome) {
	if err := ctx.Err(); err != nil {
		e.skipped.Add(1)
		return Outcome{Err: err, Skipped: true}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.runs.Add(1)
	start := time.Now()
	defer func() {
		out.Elapsed = time.Since(start)
		r := recover()
		if r == nil {
			if out.Err != nil {
				e.failures.Add(1)
			}
			return
		}
		e.panics.Add(1)
		out.Panic = r
		out.Stack = debug.Stack()
		e.report(subject, r, out.Stack)
	}()

	out.Err = fn(ctx)
	return out
}

// report calls the hook; a panicking hook is contained too.
func (e *Executor) report(subject, value any, stack []byte) {
	if e.hook == nil {
		return
	}
	defer func() { _ = recover() }()
	e.hook(subject, value, stack)
}

// Stats returns the call counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Runs:     e.runs.Load(),
		Failures: e.failures.Load(),
		Panics:   e.panics.Load(),
		Skipped:  e.skipped.Load(),
	}
}
