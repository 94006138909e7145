// Package logging builds the zerolog loggers used across the panel.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config configures the root logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error, disabled.
	Level string `toml:"level"`

	// Format is json or console.
	Format string `toml:"format"`

	// Output is stderr, stdout or file.
	Output string `toml:"output"`

	// FilePath is the log file when Output is file.
	FilePath string `toml:"file"`

	// Writer overrides Output when set.
	Writer io.Writer `toml:"-"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Format:   "console",
		Output:   "stderr",
		FilePath: filepath.Join("logs", "flowpanel.log"),
	}
}

// Validate checks the level, format and output names.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return errors.Wrapf(err, "log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
	default:
		return errors.Errorf("log format %q: want json or console", c.Format)
	}
	switch strings.ToLower(c.Output) {
	case "stderr", "stdout":
	case "file":
		if c.FilePath == "" {
			return errors.New("log output file needs a path")
		}
	default:
		return errors.Errorf("log output %q: want stderr, stdout or file", c.Output)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the root logger. The closer releases the log file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	level, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch {
	case cfg.Writer != nil:
		out = cfg.Writer
	case strings.EqualFold(cfg.Output, "stdout"):
		out = os.Stdout
	case strings.EqualFold(cfg.Output, "file"):
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return zerolog.Nop(), closer, errors.Wrap(err, "create log directory")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, errors.Wrapf(err, "open log file %s", cfg.FilePath)
		}
		out, closer = f, f
	default:
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.Writer != nil}
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l, closer, nil
}

// Component returns l tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
