package pipeline

import "slices"

// Report describes what one render tick did.
type Report struct {
	// Guarded is true when the drag guard suppressed recomputation.
	Guarded bool

	// Flags is the dirty state observed at tick start.
	Flags Flags

	// Stages lists the stages that ran, in order.
	Stages []Stage

	// Submitted is the sequence number of the evaluation request handed
	// to the evaluator, or zero.
	Submitted uint64

	// Failures collects per-diagram stage failures.
	Failures []*StageError
}

// Ran reports whether stage s ran.
func (r Report) Ran(s Stage) bool {
	return slices.Contains(r.Stages, s)
}

// Failed reports whether stage s had any failure.
func (r Report) Failed(s Stage) bool {
	for _, f := range r.Failures {
		if f.Stage == s {
			return true
		}
	}
	return false
}
