package app

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gdamore/tcell/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/flowpanel/internal/event"
)

// mappingScope is the scope of mapping sessions started from the preview.
const mappingScope = "cell"

// Run starts the evaluator and runs the tick loop, the file watcher, the
// forwarded-event monitor and, with a preview, the input loop. It returns
// when ctx is cancelled, the user quits the preview, or a loop fails.
// Close must still be called afterwards.
func (app *Application) Run(ctx context.Context) error {
	if app.closed.Load() {
		return ErrClosed
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	var msgs <-chan *message.Message
	if app.forwarder != nil {
		var err error
		msgs, err = app.broker.Subscribe(ctx, app.forwarder.Topic())
		if err != nil {
			return errors.Wrap(err, "subscribe to forwarded events")
		}
	}

	app.orch.Start(ctx)
	app.log.Info().
		Int("diagrams", app.orch.Count()).
		Dur("interval", app.cfg.Render.Interval.Std()).
		Msg("panel running")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.tickLoop(ctx) })
	g.Go(func() error { return app.watcher.Run(ctx) })
	if msgs != nil {
		g.Go(func() error { return app.monitor(ctx, msgs) })
	}
	if app.screen != nil {
		g.Go(func() error {
			app.pollInput(ctx, quit)
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			// Wakes PollEvent.
			app.screen.PostEvent(tcell.NewEventInterrupt(nil))
			return nil
		})
	}

	err := g.Wait()
	app.log.Info().Msg("panel stopped")
	return err
}

// Tick runs one render tick and logs its outcome.
func (app *Application) Tick(ctx context.Context) {
	rep := app.orch.Render(ctx)
	for _, f := range rep.Failures {
		app.log.Warn().Err(f).Msg("render stage failed")
	}
	if rep.Guarded {
		app.log.Trace().Msg("tick skipped during drag")
	}
}

func (app *Application) tickLoop(ctx context.Context) error {
	t := time.NewTicker(app.cfg.Render.Interval.Std())
	defer t.Stop()

	for {
		app.Tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// monitor reads the forwarded bus events back from the broker and logs
// them.
func (app *Application) monitor(ctx context.Context, msgs <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			env, err := event.DecodeEnvelope(msg.Payload)
			msg.Ack()
			if err != nil {
				app.log.Warn().Err(err).Msg("bad forwarded event")
				continue
			}
			app.forwarded.Add(1)
			app.log.Trace().
				Str("channel", env.Channel.String()).
				Str("uid", env.UID).
				Time("at", env.At).
				Msg("forwarded")
		}
	}
}

// pollInput handles preview keys and maps mouse drags onto the drag guard.
// It returns when the screen stops delivering events or an interrupt arrives.
func (app *Application) pollInput(ctx context.Context, quit context.CancelFunc) {
	guard := app.orch.DragGuard()
	pressed := false
	defer func() {
		if pressed {
			guard.Release()
		}
	}()

	for {
		ev := app.screen.PollEvent()
		switch e := ev.(type) {
		case nil, *tcell.EventInterrupt:
			return

		case *tcell.EventKey:
			if app.handleKey(ctx, e) {
				quit()
				return
			}

		case *tcell.EventMouse:
			down := e.Buttons()&tcell.Button1 != 0
			switch {
			case down && !pressed:
				guard.Press()
			case !down && pressed:
				guard.Release()
			}
			pressed = down

		case *tcell.EventResize:
			app.screen.Sync()
			app.orch.MarkOptionsChanged()
		}
	}
}

// handleKey runs the preview key bindings and reports whether the key
// quits the panel.
//
//	q, Esc, Ctrl-C  quit
//	r               reload the layout documents
//	e               open the external editor on the current diagram
//	m               map the first rule onto a cell, or end the mapping
func (app *Application) handleKey(ctx context.Context, e *tcell.EventKey) bool {
	switch {
	case e.Key() == tcell.KeyCtrlC, e.Key() == tcell.KeyEscape:
		return true
	case e.Key() != tcell.KeyRune:
		return false
	}

	switch e.Rune() {
	case 'q':
		return true
	case 'r':
		app.orch.MarkSourceChanged()
	case 'e':
		if err := app.orch.OpenEditor(ctx, app.host); err != nil {
			app.log.Error().Err(err).Msg("open editor")
		}
	case 'm':
		app.toggleMapping()
	}
	return false
}

func (app *Application) toggleMapping() {
	if app.orch.IsMapping(nil) {
		app.orch.UnsetMap()
		return
	}
	rs := app.orch.Rules()
	if len(rs) == 0 {
		app.log.Warn().Msg("no rule to map")
		return
	}
	if err := app.orch.SetMap(rs[0], mappingScope); err != nil {
		app.log.Error().Err(err).Msg("start mapping")
	}
}
