// Package dispatch runs bus listeners and pipeline stage steps in
// isolation.
//
// Every call goes through an Executor, which recovers panics, times the
// call and reports it as an Outcome. A call that panics or fails never
// prevents the caller from moving on to the next one.
//
//	exec := dispatch.NewExecutor(dispatch.WithPanicHook(func(subject, v any, stack []byte) {
//	    log.Error().Interface("panic", v).Bytes("stack", stack).Msg("listener panicked")
//	}))
//	out := exec.Run(ctx, entity, func(ctx context.Context) error {
//	    return listener(ctx, entity)
//	})
//	if !out.OK() {
//	    // out.Err, out.Panic or out.Skipped
//	}
package dispatch
