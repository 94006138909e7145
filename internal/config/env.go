package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWPANEL_"

type setter func(c *Config, v string) error

// envMapping maps each environment variable, without prefix, to the field
// it overrides.
var envMapping = map[string]setter{
	"LOG_LEVEL":        func(c *Config, v string) error { c.Log.Level = v; return nil },
	"LOG_FORMAT":       func(c *Config, v string) error { c.Log.Format = v; return nil },
	"LOG_OUTPUT":       func(c *Config, v string) error { c.Log.Output = v; return nil },
	"LOG_FILE":         func(c *Config, v string) error { c.Log.FilePath = v; return nil },
	"RENDER_INTERVAL":  durationSetter(func(c *Config) *Duration { return &c.Render.Interval }),
	"RENDER_DRAG":      durationSetter(func(c *Config) *Duration { return &c.Render.DragInterval }),
	"EDITOR_URL":       func(c *Config, v string) error { c.Editor.URL = v; return nil },
	"EDITOR_THEME":     func(c *Config, v string) error { c.Editor.Theme = v; return nil },
	"EDITOR_IN_TOPIC":  func(c *Config, v string) error { c.Editor.InTopic = v; return nil },
	"EDITOR_OUT_TOPIC": func(c *Config, v string) error { c.Editor.OutTopic = v; return nil },
	"EVENTS_TOPIC":     func(c *Config, v string) error { c.Events.Topic = v; return nil },
	"EVENTS_FORWARD":   boolSetter(func(c *Config) *bool { return &c.Events.Forward }),
	"FILES_RECORDS":    func(c *Config, v string) error { c.Files.Records = v; return nil },
	"FILES_RULES":      func(c *Config, v string) error { c.Files.Rules = v; return nil },
	"FILES_SERIES":     func(c *Config, v string) error { c.Files.Series = v; return nil },
	"PREVIEW_ENABLED":  boolSetter(func(c *Config) *bool { return &c.Preview.Enabled }),
}

func durationSetter(field func(*Config) *Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = Duration(d)
		return nil
	}
}

func boolSetter(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		switch strings.ToLower(v) {
		case "yes", "on":
			*field(c) = true
			return nil
		case "no", "off":
			*field(c) = false
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// envLoader resolves overrides from the process environment first and the
// dotenv file second.
type envLoader struct {
	lookup func(string) (string, bool)
	file   map[string]string
}

func newEnvLoader(path string, lookup func(string) (string, bool)) (*envLoader, error) {
	l := &envLoader{lookup: lookup}
	if path == "" {
		return l, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return l, nil
		}
		return nil, errors.Wrapf(err, "read env file %s", path)
	}
	l.file = vals
	return l, nil
}

func (l *envLoader) get(key string) (string, bool) {
	if l.lookup != nil {
		if v, ok := l.lookup(key); ok {
			return v, true
		}
	}
	v, ok := l.file[key]
	return v, ok
}

func (l *envLoader) apply(c *Config) error {
	for name, set := range envMapping {
		key := EnvPrefix + name
		v, ok := l.get(key)
		if !ok {
			continue
		}
		if err := set(c, v); err != nil {
			return errors.Wrapf(ErrInvalidEnv, "%s=%q: %v", key, v, err)
		}
	}
	return nil
}
