// Package config loads the panel configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults (Default)
//  2. the TOML config file, if it exists
//  3. FLOWPANEL_* variables from a .env file, if it exists
//  4. FLOWPANEL_* variables from the process environment
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/dshills/flowpanel/internal/diagram"
	"github.com/dshills/flowpanel/internal/event"
	"github.com/dshills/flowpanel/internal/logging"
	"github.com/dshills/flowpanel/internal/pipeline"
)

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete panel configuration.
type Config struct {
	Log     logging.Config `toml:"log"`
	Render  Render         `toml:"render"`
	Editor  Editor         `toml:"editor"`
	Events  Events         `toml:"events"`
	Files   Files          `toml:"files"`
	Preview Preview        `toml:"preview"`
}

// Render controls the tick loop.
type Render struct {
	// Interval between render ticks.
	Interval Duration `toml:"interval"`

	// DragInterval is how often the drag guard advances.
	DragInterval Duration `toml:"drag_interval"`
}

// Editor configures the external diagram editor.
type Editor struct {
	URL      string `toml:"url"`
	Theme    string `toml:"theme"`
	InTopic  string `toml:"in_topic"`
	OutTopic string `toml:"out_topic"`
}

// Events configures forwarding of bus events to the broker.
type Events struct {
	Topic   string `toml:"topic"`
	Forward bool   `toml:"forward"`
}

// Files names the data files loaded at startup and watched afterwards.
// Empty paths are skipped.
type Files struct {
	Records string `toml:"records"`
	Rules   string `toml:"rules"`
	Series  string `toml:"series"`
}

// Preview configures the terminal preview.
type Preview struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: logging.DefaultConfig(),
		Render: Render{
			Interval:     Duration(500 * time.Millisecond),
			DragInterval: Duration(pipeline.DefaultDragInterval),
		},
		Editor: Editor{
			URL:      diagram.DefaultEditorURL,
			Theme:    diagram.DefaultEditorTheme,
			InTopic:  "flowpanel.editor.in",
			OutTopic: "flowpanel.editor.out",
		},
		Events: Events{
			Topic:   event.DefaultForwardTopic,
			Forward: true,
		},
	}
}

// Validate checks the configuration for values the app cannot run with.
func (c Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Render.Interval <= 0 {
		return errors.Wrap(ErrInvalidInterval, "render.interval")
	}
	if c.Render.DragInterval <= 0 {
		return errors.Wrap(ErrInvalidInterval, "render.drag_interval")
	}
	if c.Editor.InTopic == "" {
		return errors.Wrap(ErrMissingTopic, "editor.in_topic")
	}
	if c.Editor.OutTopic == "" {
		return errors.Wrap(ErrMissingTopic, "editor.out_topic")
	}
	if c.Events.Forward && c.Events.Topic == "" {
		return errors.Wrap(ErrMissingTopic, "events.topic")
	}
	return nil
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	envFile string
	lookup  func(string) (string, bool)
}

// WithEnvFile sets the dotenv file read by Load. The default is ".env";
// an empty path disables it.
func WithEnvFile(path string) LoadOption {
	return func(c *loadConfig) {
		c.envFile = path
	}
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) LoadOption {
	return func(c *loadConfig) {
		c.lookup = fn
	}
}

// Load builds the configuration from defaults, the TOML file at path, the
// dotenv file and the environment, then validates it. A missing file at
// path is not an error; an empty path skips the file layer.
func Load(path string, opts ...LoadOption) (Config, error) {
	lc := loadConfig{envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&lc)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	env, err := newEnvLoader(lc.envFile, lc.lookup)
	if err != nil {
		return cfg, err
	}
	if err := env.apply(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// Encode renders c as TOML.
func (c Config) Encode() ([]byte, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return b, nil
}
