// Package app wires the panel together: the event bus, the render
// pipeline, the rule evaluator, the data files and their watchers, the
// broker used for event forwarding and the editor, and the optional
// terminal preview.
package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/flowpanel/internal/config"
	"github.com/dshills/flowpanel/internal/editor"
	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/logging"
	"github.com/dshills/flowpanel/internal/metric"
	"github.com/dshills/flowpanel/internal/pipeline"
	"github.com/dshills/flowpanel/internal/preview"
	"github.com/dshills/flowpanel/internal/rules"
	"github.com/dshills/flowpanel/internal/watch"
)

// Application is the central coordinator of the panel.
type Application struct {
	cfg        config.Config
	configPath string
	log        zerolog.Logger

	bus       *event.Bus
	orch      *pipeline.Orchestrator
	ruleEval  *rules.LuaEvaluator
	series    *metric.Static
	broker    *gochannel.GoChannel
	forwarder *event.Forwarder
	host      *editor.PubSubHost
	watcher   *watch.Watcher

	screen tcell.Screen
	panel  *preview.Panel

	forwarded atomic.Uint64
	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the root logger.
func WithLogger(l zerolog.Logger) Option {
	return func(app *Application) {
		app.log = l
	}
}

// WithScreen draws the preview on s instead of the terminal. The screen is
// initialized by New and finalized by Close.
func WithScreen(s tcell.Screen) Option {
	return func(app *Application) {
		app.screen = s
	}
}

// WithConfigPath names the config file to watch for changes.
func WithConfigPath(path string) Option {
	return func(app *Application) {
		app.configPath = path
	}
}

// New builds every component and loads the data files named in cfg.
func New(cfg config.Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg: cfg,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if err := app.bootstrap(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// bootstrap initializes the components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Event bus and broker
	app.bus = event.NewBus(event.WithLogger(logging.Component(app.log, "bus")))
	app.broker = gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		newBrokerLogger(logging.Component(app.log, "broker")),
	)

	// 2. Rule evaluator and metric source
	app.ruleEval = rules.NewLuaEvaluator()
	app.series = metric.NewStatic()

	// 3. Preview
	if app.cfg.Preview.Enabled || app.screen != nil {
		if err := app.initScreen(); err != nil {
			return &InitError{Component: "preview", Err: err}
		}
		app.panel = preview.NewPanel(app.screen)
	}

	// 4. Editor host
	app.host = &editor.PubSubHost{
		Sub: app.broker,
		Pub: app.broker,
		In:  app.cfg.Editor.InTopic,
		Out: app.cfg.Editor.OutTopic,
		Log: logging.Component(app.log, "editor-host"),
	}

	// 5. Pipeline
	pipeOpts := []pipeline.Option{
		pipeline.WithBus(app.bus),
		pipeline.WithLogger(logging.Component(app.log, "pipeline")),
		pipeline.WithRuleEvaluator(app.ruleEval),
		pipeline.WithSeries(app.series),
		pipeline.WithEditorHost(app.host),
		pipeline.WithDragInterval(app.cfg.Render.DragInterval.Std()),
	}
	if app.panel != nil {
		pipeOpts = append(pipeOpts, pipeline.WithGraphFactory(app.panel.Graph))
	}
	app.orch = pipeline.New(pipeOpts...)

	// 6. Subscriptions
	app.bus.SubscribeAll(app.orch)
	app.bus.SubscribeAll(app)
	if app.cfg.Events.Forward {
		app.forwarder = event.NewForwarder(app.broker, app.cfg.Events.Topic, logging.Component(app.log, "forwarder"))
		app.bus.SubscribeAll(app.forwarder)
	}

	// 7. Data files
	ctx := context.Background()
	if err := app.loadFiles(ctx); err != nil {
		return err
	}
	if app.orch.Count() == 0 {
		app.orch.Add(ctx, pipeline.DefaultDiagramName)
	}

	// 8. File watcher
	w, err := watch.New(watch.WithLogger(logging.Component(app.log, "watch")))
	if err != nil {
		return &InitError{Component: "watcher", Err: err}
	}
	app.watcher = w
	if err := app.watchFiles(); err != nil {
		return &InitError{Component: "watcher", Err: err}
	}
	return nil
}

func (app *Application) initScreen() error {
	if app.screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return err
		}
		app.screen = s
	}
	if err := app.screen.Init(); err != nil {
		return err
	}
	app.screen.EnableMouse()
	return nil
}

// Config returns the active configuration.
func (app *Application) Config() config.Config { return app.cfg }

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus { return app.bus }

// Orchestrator returns the render pipeline.
func (app *Application) Orchestrator() *pipeline.Orchestrator { return app.orch }

// Series returns the metric source fed by the series file.
func (app *Application) Series() *metric.Static { return app.series }

// Broker returns the in-process message broker.
func (app *Application) Broker() *gochannel.GoChannel { return app.broker }

// Forwarded returns how many forwarded bus events were read back from the
// broker.
func (app *Application) Forwarded() uint64 { return app.forwarded.Load() }

// Close releases every component. It is safe to call more than once.
func (app *Application) Close() {
	app.closeOnce.Do(func() {
		app.closed.Store(true)
		if app.watcher != nil {
			_ = app.watcher.Close()
		}
		if app.orch != nil {
			if err := app.orch.Close(context.Background()); err != nil {
				app.log.Warn().Err(err).Msg("close pipeline")
			}
			app.bus.UnsubscribeAll(app.orch)
		}
		if app.bus != nil {
			app.bus.UnsubscribeAll(app)
			if app.forwarder != nil {
				app.bus.UnsubscribeAll(app.forwarder)
			}
		}
		if app.ruleEval != nil {
			_ = app.ruleEval.Close()
		}
		if app.broker != nil {
			_ = app.broker.Close()
		}
		if app.screen != nil {
			app.screen.Fini()
		}
	})
}
