package app

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/dshills/flowpanel/internal/config"
	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/metric"
	"github.com/dshills/flowpanel/internal/rules"
	"github.com/dshills/flowpanel/internal/watch"
)

// loadFiles reads every configured data file once.
func (app *Application) loadFiles(ctx context.Context) error {
	files := app.cfg.Files
	if files.Records != "" {
		if err := app.reloadRecords(ctx, files.Records); err != nil {
			return err
		}
	}
	if files.Rules != "" {
		if err := app.reloadRules(ctx, files.Rules); err != nil {
			return err
		}
	}
	if files.Series != "" {
		if err := app.reloadSeries(ctx, files.Series); err != nil {
			return err
		}
	}
	return nil
}

// reloadRecords replaces the diagram collection from path.
func (app *Application) reloadRecords(ctx context.Context, path string) error {
	recs, err := diagram.LoadRecords(path)
	if err != nil {
		return errors.Wrap(err, "load records")
	}
	app.orch.Import(ctx, recs)
	return nil
}

// reloadRules replaces the rule set from path and announces each rule.
func (app *Application) reloadRules(ctx context.Context, path string) error {
	rs, err := rules.LoadFile(path)
	if err != nil {
		return errors.Wrap(err, "load rules")
	}
	app.orch.SetRules(rs)
	for _, r := range rs {
		app.publish(ctx, r, event.NameChanged)
	}
	app.log.Info().Int("rules", len(rs)).Str("file", path).Msg("rules loaded")
	return nil
}

// reloadSeries replaces the metric series from path and announces each one.
func (app *Application) reloadSeries(ctx context.Context, path string) error {
	series, err := metric.LoadFile(path)
	if err != nil {
		return errors.Wrap(err, "load series")
	}
	app.series.Set(series)
	for _, s := range app.series.Series() {
		app.publish(ctx, s, event.NameChanged)
	}
	app.log.Info().Int("series", len(series)).Str("file", path).Msg("series loaded")
	return nil
}

// reloadConfig re-reads the config file. Only the editor settings take
// effect without a restart; they are applied through the options stage.
func (app *Application) reloadConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return errors.Wrap(err, "reload config")
	}
	app.cfg.Editor.URL = cfg.Editor.URL
	app.cfg.Editor.Theme = cfg.Editor.Theme
	for _, d := range app.orch.Diagrams() {
		d.Configure(func(o *diagram.Options) {
			o.EditorURL = cfg.Editor.URL
			o.EditorTheme = cfg.Editor.Theme
		})
	}
	app.orch.MarkOptionsChanged()
	app.log.Info().Str("file", path).Msg("config reloaded")
	return nil
}

func (app *Application) publish(ctx context.Context, e event.Entity, name event.Name) {
	if err := app.bus.Publish(ctx, e, name); err != nil {
		app.log.Error().Err(err).Msg("publish")
	}
}

// watchFiles registers a reload callback for every configured file.
func (app *Application) watchFiles() error {
	type entry struct {
		path   string
		reload func(ctx context.Context, path string) error
	}
	entries := []entry{
		{app.cfg.Files.Records, app.reloadRecords},
		{app.cfg.Files.Rules, app.reloadRules},
		{app.cfg.Files.Series, app.reloadSeries},
		{app.configPath, func(_ context.Context, path string) error { return app.reloadConfig(path) }},
	}
	for _, e := range entries {
		if e.path == "" {
			continue
		}
		reload := e.reload
		err := app.watcher.Add(e.path, func(ctx context.Context, ev watch.Event) {
			if _, err := os.Stat(ev.Path); os.IsNotExist(err) {
				app.log.Warn().Str("file", ev.Path).Str("op", ev.Op.String()).Msg("watched file removed")
				return
			}
			if err := reload(ctx, ev.Path); err != nil {
				app.log.Error().Err(err).Str("file", ev.Path).Msg("reload failed")
			}
		})
		if err != nil {
			return errors.Wrapf(err, "watch %s", e.path)
		}
	}
	return nil
}
