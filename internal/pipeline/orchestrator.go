// Package pipeline implements the render orchestrator: it owns the managed
// diagrams and the four dirty flags, and on each render tick decides which
// recomputation stages run.
//
// Stage order is fixed: source, options, rules/data, post options, refresh.
// A stage runs only when its flag was set at tick start (or an earlier stage
// forces it), and its flag is cleared only once every diagram completed the
// stage. Rule evaluation is deferred to the Evaluator so a slow evaluation
// never holds up the tick; its commit triggers a follow-up refresh.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/editor"
	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/event/dispatch"
	"github.com/dshills/flowpanel/internal/mapping"
	"github.com/dshills/flowpanel/internal/metric"
	"github.com/dshills/flowpanel/internal/rules"
)

// DefaultDiagramName is the name of the current diagram until SetCurrent.
const DefaultDiagramName = "Main"

// GraphFactory creates the drawing engine for a new diagram.
type GraphFactory func(name, container string) diagram.Graph

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus sets the event bus completion events are published on.
func WithBus(b *event.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithGraphFactory sets how drawing engines are created.
func WithGraphFactory(f GraphFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.graphs = f
		}
	}
}

// WithRuleEvaluator sets the evaluator diagrams use for state levels.
func WithRuleEvaluator(ev rules.Evaluator) Option {
	return func(o *Orchestrator) {
		o.ruleEval = ev
	}
}

// WithSeries sets the metric source read by each evaluation.
func WithSeries(src metric.Source) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.series = src
		}
	}
}

// WithEditorHost sets the host editor messages arrive on.
func WithEditorHost(h editor.Host) Option {
	return func(o *Orchestrator) {
		o.host = h
	}
}

// WithDragInterval sets the drag guard interval.
func WithDragInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.dragInterval = d
	}
}

// Orchestrator owns the managed diagrams and runs render ticks.
type Orchestrator struct {
	// tick serializes Render; ticks never overlap.
	tick sync.Mutex

	mu        sync.Mutex
	diagrams  []*diagram.Diagram
	current   string
	ruleSet   []rules.Rule
	firstTick bool

	flags  flagSet
	guard  *DragGuard
	eval   *Evaluator
	slot   *mapping.Slot
	editor *editor.Session
	exec   *dispatch.Executor

	bus          *event.Bus
	graphs       GraphFactory
	ruleEval     rules.Evaluator
	series       metric.Source
	host         editor.Host
	dragInterval time.Duration
	log          zerolog.Logger

	uid string
}

// New creates an orchestrator with an empty collection. The first tick
// always runs the post stage.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		current:   DefaultDiagramName,
		firstTick: true,
		graphs:    func(string, string) diagram.Graph { return diagram.NopGraph{} },
		series:    metric.NewStatic(),
		log:       zerolog.Nop(),
		uid:       "pipeline",
	}
	for _, opt := range opts {
		opt(o)
	}

	o.guard = NewDragGuard(o.dragInterval)
	o.slot = mapping.NewSlot(o.log)
	o.editor = editor.NewSession(o.host, o, o.log.With().Str("component", "editor").Logger())
	o.eval = NewEvaluator(o.evaluate, o.log)
	o.exec = dispatch.NewExecutor(dispatch.WithPanicHook(func(subject any, v any, stack []byte) {
		o.log.Error().
			Interface("panic", v).
			Str("diagram", diagramName(subject)).
			Bytes("stack", stack).
			Msg("stage panicked")
	}))
	// Options must be applied once even if nothing is ever marked.
	o.flags.mark(FlagOptions)
	return o
}

// Start starts the deferred evaluator.
func (o *Orchestrator) Start(ctx context.Context) {
	o.eval.Start(ctx)
}

// Close stops the evaluator and the drag guard and closes any editor
// session.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.editor.Close()
	o.guard.Close()
	return o.eval.Stop(ctx)
}

// MarkSourceChanged latches the source flag.
func (o *Orchestrator) MarkSourceChanged() { o.flags.mark(FlagSource) }

// MarkOptionsChanged latches the options flag.
func (o *Orchestrator) MarkOptionsChanged() { o.flags.mark(FlagOptions) }

// MarkRulesChanged latches the rules flag.
func (o *Orchestrator) MarkRulesChanged() { o.flags.mark(FlagRules) }

// MarkDataChanged latches the data flag.
func (o *Orchestrator) MarkDataChanged() { o.flags.mark(FlagData) }

// Flags returns the current dirty flags.
func (o *Orchestrator) Flags() Flags { return o.flags.current() }

// DragGuard returns the guard fed by pointer events.
func (o *Orchestrator) DragGuard() *DragGuard { return o.guard }

// Evaluator returns the deferred evaluator.
func (o *Orchestrator) Evaluator() *Evaluator { return o.eval }

// SetRules replaces the rule set and latches the rules flag.
func (o *Orchestrator) SetRules(rs []rules.Rule) {
	cp := append([]rules.Rule(nil), rs...)
	rules.Sort(cp)
	o.mu.Lock()
	o.ruleSet = cp
	o.mu.Unlock()
	o.MarkRulesChanged()
}

// Rules returns the current rule set.
func (o *Orchestrator) Rules() []rules.Rule {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]rules.Rule(nil), o.ruleSet...)
}

// Render runs one tick and reports what it did. Ticks are serialized.
func (o *Orchestrator) Render(ctx context.Context) Report {
	o.tick.Lock()
	defer o.tick.Unlock()

	var rep Report
	snap := o.flags.snapshot()
	rep.Flags = snap.flags()
	diagrams := o.Diagrams()

	if o.guard.Active() {
		rep.Guarded = true
		o.refresh(ctx, diagrams, &rep)
		return rep
	}

	var (
		ran         bool
		forceRules  bool
		needOptions = snap.has(FlagOptions)
	)

	if snap.has(FlagSource) {
		ok := o.each(ctx, StageSource, diagrams, &rep, func(d *diagram.Diagram) error {
			return d.Reload(ctx)
		})
		if ok {
			o.flags.clear(FlagSource, snap)
		}
		ran, forceRules, needOptions = true, true, true
	}

	if needOptions {
		ok := o.each(ctx, StageOptions, diagrams, &rep, func(d *diagram.Diagram) error {
			d.SetOptions()
			return nil
		})
		if ok {
			o.flags.clear(FlagOptions, snap)
		}
		ran = true
	}

	if snap.has(FlagRules) || snap.has(FlagData) || forceRules {
		rs := o.Rules()
		if snap.has(FlagRules) || forceRules {
			ok := o.each(ctx, StageRules, diagrams, &rep, func(d *diagram.Diagram) error {
				d.UpdateStates(rs)
				return nil
			})
			if ok {
				o.flags.clear(FlagRules, snap)
			}
		}

		rep.Stages = append(rep.Stages, StageData)
		rep.Submitted = o.eval.Submit(ctx, Request{
			Rules:    rs,
			Series:   o.series.Series(),
			Diagrams: diagrams,
		})
		o.flags.clear(FlagData, snap)
		ran = true
	}

	o.mu.Lock()
	first := o.firstTick
	o.mu.Unlock()
	if ran || first {
		ok := o.each(ctx, StagePost, diagrams, &rep, func(d *diagram.Diagram) error {
			return d.ApplyOptions()
		})
		if ok {
			o.mu.Lock()
			o.firstTick = false
			o.mu.Unlock()
		}
	}

	o.refresh(ctx, diagrams, &rep)

	if len(rep.Failures) > 0 {
		o.log.Warn().Int("failures", len(rep.Failures)).Msg("render tick incomplete")
	}
	return rep
}

func (o *Orchestrator) refresh(ctx context.Context, diagrams []*diagram.Diagram, rep *Report) {
	o.each(ctx, StageRefresh, diagrams, rep, func(d *diagram.Diagram) error {
		return d.Refresh()
	})
	for _, d := range diagrams {
		o.publish(ctx, d, event.NameRefreshed)
	}
}

// each runs fn for every diagram in isolation and reports whether all of
// them completed.
func (o *Orchestrator) each(ctx context.Context, stage Stage, diagrams []*diagram.Diagram, rep *Report, fn func(*diagram.Diagram) error) bool {
	if rep != nil {
		rep.Stages = append(rep.Stages, stage)
	}
	ok := true
	for _, d := range diagrams {
		out := o.exec.Run(ctx, d, func(context.Context) error { return fn(d) })
		if out.OK() {
			continue
		}
		ok = false
		serr := &StageError{Stage: stage, Diagram: d.Name(), Panic: out.Panicked(), Err: out.Err}
		if out.Panicked() {
			serr.Err = fmt.Errorf("%v", out.Panic)
		} else {
			o.log.Error().Err(out.Err).Str("stage", stage.String()).Str("diagram", d.Name()).Msg("stage failed")
		}
		if rep != nil {
			rep.Failures = append(rep.Failures, serr)
		}
	}
	return ok
}

// evaluate is the evaluator body: compute and commit the states of every
// diagram, then refresh them.
func (o *Orchestrator) evaluate(ctx context.Context, req Request) {
	o.each(ctx, StageEvaluate, req.Diagrams, nil, func(d *diagram.Diagram) error {
		d.SetStates(ctx, req.Rules, req.Series)
		return d.ApplyStates(ctx)
	})
	o.each(ctx, StageRefresh, req.Diagrams, nil, func(d *diagram.Diagram) error {
		return d.Refresh()
	})
	if o.bus != nil {
		o.bus.Acknowledge(ctx, event.KindState, event.NameRefreshed)
	}
	o.log.Debug().Uint64("seq", req.Seq).Int("diagrams", len(req.Diagrams)).Msg("evaluation committed")
}

func (o *Orchestrator) publish(ctx context.Context, e event.Entity, name event.Name) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, e, name); err != nil {
		o.log.Error().Err(err).Msg("publish failed")
	}
}

func diagramName(subject any) string {
	if d, ok := subject.(*diagram.Diagram); ok {
		return d.Name()
	}
	return ""
}
