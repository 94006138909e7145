// Package diagram implements the managed diagram: one independently drawn
// flowchart with its layout document, options and visual state cache.
//
// A Diagram is owned by the pipeline orchestrator, which drives it through
// the stage methods (Reload, SetOptions, UpdateStates, SetStates,
// ApplyStates, ApplyOptions, Refresh). Engine failures are returned to the
// caller; the diagram never retries.
package diagram

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/mapping"
	"github.com/dshills/flowpanel/internal/metric"
	"github.com/dshills/flowpanel/internal/rules"
)

// Publisher is the part of the event bus a diagram uses.
type Publisher interface {
	Publish(ctx context.Context, e event.Entity, name event.Name) error
}

// Option configures a Diagram.
type Option func(*Diagram)

// WithGraph sets the drawing engine. The default is NopGraph.
func WithGraph(g Graph) Option {
	return func(d *Diagram) {
		if g != nil {
			d.graph = g
		}
	}
}

// WithEvaluator sets the rule evaluator used by SetStates.
func WithEvaluator(ev rules.Evaluator) Option {
	return func(d *Diagram) {
		d.eval = ev
	}
}

// WithPublisher sets where graph and state events are published.
func WithPublisher(p Publisher) Option {
	return func(d *Diagram) {
		d.pub = p
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Diagram) {
		d.log = l
	}
}

// Diagram is one managed flowchart.
type Diagram struct {
	mu sync.Mutex

	uid       string
	container string

	// record is the source of truth; xml and options are what the
	// engine currently shows.
	record  Record
	xml     string
	options Options
	loaded  bool

	rules     []rules.Rule
	index     *rules.Index
	pending   map[string]State
	committed map[string]State

	session mapping.Session

	graph Graph
	eval  rules.Evaluator
	pub   Publisher
	log   zerolog.Logger
}

// New creates a diagram rendered into container with the default record.
func New(name, container string, opts ...Option) *Diagram {
	d := &Diagram{
		uid:       uuid.NewString(),
		container: container,
		record:    DefaultRecord(name),
		options:   DefaultOptions(),
		pending:   make(map[string]State),
		committed: make(map[string]State),
		graph:     NopGraph{},
		log:       zerolog.Nop(),
	}
	d.xml = d.record.XML
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With().Str("diagram", name).Logger()
	return d
}

// Kind implements event.Entity.
func (d *Diagram) Kind() event.Kind { return event.KindFlowchart }

// UID returns the diagram's unique id.
func (d *Diagram) UID() string { return d.uid }

// Container returns the id of the rendering container.
func (d *Diagram) Container() string { return d.container }

// Name returns the diagram name.
func (d *Diagram) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record.Name
}

// Record returns a copy of the persisted record.
func (d *Diagram) Record() Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record
}

// XML returns the layout document currently shown.
func (d *Diagram) XML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.xml
}

// Options returns the options currently in effect.
func (d *Diagram) Options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options
}

// Import applies rec to the diagram. Empty fields keep their defaults.
// Nothing is loaded into the engine until Reload.
func (d *Diagram) Import(rec Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec.Name != "" {
		d.record.Name = rec.Name
	}
	if rec.XML != "" {
		d.record.XML = rec.XML
	}
	d.record.Options = rec.Options
	if d.record.Options.EditorURL == "" {
		d.record.Options.EditorURL = DefaultEditorURL
	}
	if d.record.Options.EditorTheme == "" {
		d.record.Options.EditorTheme = DefaultEditorTheme
	}
}

// Configure edits the record options. The change takes effect on the next
// SetOptions.
func (d *Diagram) Configure(fn func(*Options)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.record.Options)
}

// Reload loads the record's layout document into the engine.
func (d *Diagram) Reload(ctx context.Context) error {
	return d.Redraw(ctx, "")
}

// Redraw replaces the layout document with xml and loads it. An empty xml
// reloads the current document.
func (d *Diagram) Redraw(ctx context.Context, xml string) error {
	if err := d.load(xml); err != nil {
		return err
	}
	d.publish(ctx, d.graphRef(), event.NameChanged)
	return nil
}

func (d *Diagram) load(xml string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if xml != "" {
		d.record.XML = xml
	}
	d.xml = d.record.XML
	return d.loadLocked()
}

func (d *Diagram) loadLocked() error {
	if err := d.graph.Load(d.xml); err != nil {
		return errors.Wrap(err, "load layout")
	}
	if !d.loaded {
		d.loaded = true
		d.log.Debug().Msg("graph initialized")
	}
	return nil
}

// SetOptions copies the record options into effect.
func (d *Diagram) SetOptions() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.options = d.record.Options
}

// ApplyOptions pushes the options in effect to the engine.
func (d *Diagram) ApplyOptions() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.graph.ApplyOptions(d.options); err != nil {
		return errors.Wrap(err, "apply options")
	}
	return nil
}

// UpdateStates rebuilds the cell index from rs. Pending states of cells no
// longer targeted by any rule are dropped.
func (d *Diagram) UpdateStates(rs []rules.Rule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = append(d.rules[:0:0], rs...)
	d.index = rules.NewIndex(d.rules)

	for cell := range d.pending {
		if len(d.index.Rules(cell)) == 0 {
			delete(d.pending, cell)
		}
	}
}

// SetStates evaluates rs against series and stores the result as pending
// states. Each indexed cell gets the highest level of any matching rule.
// Evaluation errors are logged and count as level 0.
//
// Rules are evaluated without holding the diagram lock, so ticks keep
// refreshing while a slow script runs.
func (d *Diagram) SetStates(ctx context.Context, rs []rules.Rule, series []metric.Series) {
	d.mu.Lock()
	if d.index == nil {
		d.index = rules.NewIndex(rs)
	}
	cells := d.index.Cells()
	d.mu.Unlock()

	pending := make(map[string]State, len(cells))
	for _, cell := range cells {
		pending[cell] = State{CellID: cell}
	}

	for _, r := range rs {
		if r.Hidden {
			continue
		}
		for _, s := range series {
			if !r.Matches(s.Name) {
				continue
			}
			level := d.level(ctx, r, s)
			last, ok := s.Last()
			for _, cell := range r.Cells {
				cur, tracked := pending[cell]
				if !tracked {
					continue
				}
				next := State{
					CellID:  cell,
					Level:   level,
					Value:   last.Value,
					HasData: ok,
					RuleUID: r.UID,
				}
				if outranks(next, cur) {
					pending[cell] = next
				}
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// UpdateStates may have re-indexed meanwhile.
	for cell := range pending {
		if len(d.index.Rules(cell)) == 0 {
			delete(pending, cell)
		}
	}
	d.pending = pending
}

// outranks orders candidate states for one cell: higher level first, then
// states backed by data, then the lower rule uid. The result does not
// depend on rule order.
func outranks(a, b State) bool {
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if a.HasData != b.HasData {
		return a.HasData
	}
	if b.RuleUID == "" {
		return a.RuleUID != ""
	}
	return a.RuleUID != "" && a.RuleUID < b.RuleUID
}

// level is called without d.mu held.
func (d *Diagram) level(ctx context.Context, r rules.Rule, s metric.Series) int {
	if d.eval == nil {
		return 0
	}
	level, err := d.eval.Level(ctx, r, s)
	if err != nil {
		d.log.Error().Err(err).Str("rule", r.UID).Str("series", s.Name).Msg("rule evaluation failed")
		return 0
	}
	return level
}

// ApplyStates commits the pending states and paints them.
func (d *Diagram) ApplyStates(ctx context.Context) error {
	changed, err := d.commit()
	if err != nil {
		return errors.Wrap(err, "apply states")
	}
	for _, st := range changed {
		d.publish(ctx, st, event.NameChanged)
	}
	return nil
}

// commit moves pending states to committed and returns those that differ
// from the previous commit.
func (d *Diagram) commit() ([]State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.committed
	d.committed = maps.Clone(d.pending)
	var changed []State
	for cell, st := range d.committed {
		if old, ok := prev[cell]; !ok || old != st {
			changed = append(changed, st)
		}
	}
	return changed, d.graph.ApplyStates(maps.Clone(d.committed))
}

// Refresh asks the engine to repaint.
func (d *Diagram) Refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.graph.Refresh(); err != nil {
		return errors.Wrap(err, "refresh")
	}
	return nil
}

// States returns a copy of the committed states.
func (d *Diagram) States() map[string]State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.committed)
}

// Pending returns a copy of the states not yet committed.
func (d *Diagram) Pending() map[string]State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.pending)
}

// SetMap records the mapping session and forwards it to the engine.
func (d *Diagram) SetMap(s mapping.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = s
	if m, ok := d.graph.(Mapper); ok {
		m.SetMap(s)
	}
}

// UnsetMap clears the mapping session.
func (d *Diagram) UnsetMap() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = mapping.Session{}
	if m, ok := d.graph.(Mapper); ok {
		m.UnsetMap()
	}
}

// Mapping returns the diagram's mapping session.
func (d *Diagram) Mapping() mapping.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Diagram) graphRef() GraphRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return GraphRef{DiagramUID: d.uid, Name: d.record.Name}
}

func (d *Diagram) publish(ctx context.Context, e event.Entity, name event.Name) {
	if d.pub == nil {
		return
	}
	if err := d.pub.Publish(ctx, e, name); err != nil {
		d.log.Error().Err(err).Msg("publish failed")
	}
}
